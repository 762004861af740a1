package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ecofood/foodshare/internal/geo"
	"github.com/ecofood/foodshare/internal/model"
)

func TestListingRepository_CreateAndByID(t *testing.T) {
	database := setupTestDB(t)
	accounts := NewAccountRepository(database)
	listings := NewListingRepository(database)
	ctx := context.Background()

	donor := createAccount(t, accounts, model.RoleDonor, 77.10, 28.60)
	l := createListing(t, listings, donor.ID, 77.10, 28.60)

	got, err := listings.ByID(ctx, l.ID)
	if err != nil {
		t.Fatalf("ByID: %v", err)
	}
	if got.Name != "Hot Meals" {
		t.Errorf("Name = %q, want %q", got.Name, "Hot Meals")
	}
	if got.Status != model.ListingStatusAvailable {
		t.Errorf("Status = %q, want %q", got.Status, model.ListingStatusAvailable)
	}
	if got.VerificationCode != nil || got.PickupExpiresAt != nil || got.ClaimedBy != nil {
		t.Errorf("available listing carries claim fields: %+v", got)
	}

	_, err = listings.ByID(ctx, "missing")
	if !errors.Is(err, ErrListingNotFound) {
		t.Errorf("ByID(missing) error = %v, want ErrListingNotFound", err)
	}
}

func TestListingRepository_ClaimIsExclusive(t *testing.T) {
	database := setupTestDB(t)
	accounts := NewAccountRepository(database)
	listings := NewListingRepository(database)
	ctx := context.Background()

	donor := createAccount(t, accounts, model.RoleDonor, 0, 0)
	l := createListing(t, listings, donor.ID, 0, 0)

	const claimers = 12
	orgs := make([]*model.Account, claimers)
	for i := range orgs {
		orgs[i] = createAccount(t, accounts, model.RoleOrganization, 0, 0.01)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		winners   []string
		conflicts int
		start     = make(chan struct{})
	)
	now := time.Now().UTC()
	for _, org := range orgs {
		wg.Add(1)
		go func(orgID string) {
			defer wg.Done()
			<-start
			_, err := listings.Claim(ctx, l.ID, orgID, "123456", now.Add(2*time.Hour), now)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, orgID)
			case errors.Is(err, ErrListingConflict):
				conflicts++
			default:
				t.Errorf("Claim: unexpected error %v", err)
			}
		}(org.ID)
	}
	close(start)
	wg.Wait()

	if len(winners) != 1 {
		t.Fatalf("expected exactly 1 winner, got %d", len(winners))
	}
	if conflicts != claimers-1 {
		t.Errorf("conflicts = %d, want %d", conflicts, claimers-1)
	}

	got, err := listings.ByID(ctx, l.ID)
	if err != nil {
		t.Fatalf("ByID: %v", err)
	}
	if got.Status != model.ListingStatusPending {
		t.Errorf("Status = %q, want Pending", got.Status)
	}
	if got.ClaimedBy == nil || *got.ClaimedBy != winners[0] {
		t.Errorf("ClaimedBy = %v, want %s", got.ClaimedBy, winners[0])
	}
}

func TestListingRepository_CompleteRequiresCodeAndDonor(t *testing.T) {
	database := setupTestDB(t)
	accounts := NewAccountRepository(database)
	listings := NewListingRepository(database)
	ctx := context.Background()

	donor := createAccount(t, accounts, model.RoleDonor, 0, 0)
	org := createAccount(t, accounts, model.RoleOrganization, 0, 0)
	l := createListing(t, listings, donor.ID, 0, 0)
	now := time.Now().UTC()

	_, err := listings.Complete(ctx, l.ID, donor.ID, "123456", now)
	if !errors.Is(err, ErrListingConflict) {
		t.Fatalf("Complete on Available: error = %v, want ErrListingConflict", err)
	}

	if _, err := listings.Claim(ctx, l.ID, org.ID, "123456", now.Add(2*time.Hour), now); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	tests := []struct {
		name    string
		donorID string
		code    string
	}{
		{"wrong code", donor.ID, "654321"},
		{"empty code", donor.ID, ""},
		{"wrong donor", org.ID, "123456"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := listings.Complete(ctx, l.ID, tt.donorID, tt.code, now)
			if !errors.Is(err, ErrListingConflict) {
				t.Errorf("error = %v, want ErrListingConflict", err)
			}
		})
	}

	got, err := listings.Complete(ctx, l.ID, donor.ID, "123456", now)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got.Status != model.ListingStatusCompleted {
		t.Errorf("Status = %q, want Completed", got.Status)
	}
	if got.VerificationCode != nil || got.PickupExpiresAt != nil {
		t.Errorf("code/timer not cleared: code=%v timer=%v", got.VerificationCode, got.PickupExpiresAt)
	}
	if got.ClaimedBy == nil || *got.ClaimedBy != org.ID {
		t.Errorf("ClaimedBy = %v, want %s", got.ClaimedBy, org.ID)
	}
}

func TestListingRepository_ReleaseOnlyAfterTimer(t *testing.T) {
	database := setupTestDB(t)
	accounts := NewAccountRepository(database)
	listings := NewListingRepository(database)
	ctx := context.Background()

	donor := createAccount(t, accounts, model.RoleDonor, 0, 0)
	org := createAccount(t, accounts, model.RoleOrganization, 0, 0)
	l := createListing(t, listings, donor.ID, 0, 0)
	now := time.Now().UTC()

	if _, err := listings.Claim(ctx, l.ID, org.ID, "111111", now.Add(2*time.Hour), now); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	_, err := listings.Release(ctx, l.ID, now.Add(time.Hour))
	if !errors.Is(err, ErrListingConflict) {
		t.Fatalf("Release before timer: error = %v, want ErrListingConflict", err)
	}

	expired, err := listings.ExpiredClaims(ctx, now.Add(3*time.Hour), 10)
	if err != nil {
		t.Fatalf("ExpiredClaims: %v", err)
	}
	if len(expired) != 1 || expired[0].ID != l.ID {
		t.Fatalf("ExpiredClaims = %+v, want [%s]", expired, l.ID)
	}

	got, err := listings.Release(ctx, l.ID, now.Add(3*time.Hour))
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if got.Status != model.ListingStatusAvailable {
		t.Errorf("Status = %q, want Available", got.Status)
	}
	if got.ClaimedBy != nil || got.VerificationCode != nil || got.PickupExpiresAt != nil {
		t.Errorf("claim fields not cleared: %+v", got)
	}
}

func TestListingRepository_Query(t *testing.T) {
	database := setupTestDB(t)
	accounts := NewAccountRepository(database)
	listings := NewListingRepository(database)
	ctx := context.Background()

	donorA := createAccount(t, accounts, model.RoleDonor, 0, 0)
	donorB := createAccount(t, accounts, model.RoleDonor, 0, 0)
	org := createAccount(t, accounts, model.RoleOrganization, 0, 0)

	a1 := createListing(t, listings, donorA.ID, 0, 0)
	createListing(t, listings, donorA.ID, 0, 0)
	createListing(t, listings, donorB.ID, 0, 0)

	now := time.Now().UTC()
	if _, err := listings.Claim(ctx, a1.ID, org.ID, "222222", now.Add(time.Hour), now); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	tests := []struct {
		name   string
		filter ListingFilter
		want   int
	}{
		{"all", ListingFilter{}, 3},
		{"by donor", ListingFilter{DonorID: donorA.ID}, 2},
		{"by status", ListingFilter{Status: model.ListingStatusAvailable}, 2},
		{"by organization", ListingFilter{ClaimedBy: org.ID}, 1},
		{"limit", ListingFilter{Limit: 1}, 1},
		{"offset", ListingFilter{Limit: 10, Offset: 2}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := listings.Query(ctx, tt.filter)
			if err != nil {
				t.Fatalf("Query: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d listings, want %d", len(got), tt.want)
			}
		})
	}
}

func TestListingRepository_NearbyAvailable(t *testing.T) {
	database := setupTestDB(t)
	accounts := NewAccountRepository(database)
	listings := NewListingRepository(database)
	ctx := context.Background()

	donor := createAccount(t, accounts, model.RoleDonor, 0, 0)
	org := createAccount(t, accounts, model.RoleOrganization, 0, 0)

	near := createListing(t, listings, donor.ID, 0, 0.02)
	nearest := createListing(t, listings, donor.ID, 0, 0.01)
	createListing(t, listings, donor.ID, 0, 0.15)
	claimed := createListing(t, listings, donor.ID, 0, 0.005)

	now := time.Now().UTC()
	if _, err := listings.Claim(ctx, claimed.ID, org.ID, "333333", now.Add(time.Hour), now); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	got, err := listings.NearbyAvailable(ctx, geo.Point{Lng: 0, Lat: 0}, 10_000, 50)
	if err != nil {
		t.Fatalf("NearbyAvailable: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 nearby listings, got %d", len(got))
	}
	if got[0].ID != nearest.ID || got[1].ID != near.ID {
		t.Errorf("order = [%s %s], want [%s %s]", got[0].ID, got[1].ID, nearest.ID, near.ID)
	}
	if got[0].DistanceMeters == nil || *got[0].DistanceMeters > 1200 {
		t.Errorf("DistanceMeters = %v, want ~1112", got[0].DistanceMeters)
	}
}

func TestListingRepository_StatsAndImage(t *testing.T) {
	database := setupTestDB(t)
	accounts := NewAccountRepository(database)
	listings := NewListingRepository(database)
	ctx := context.Background()

	donor := createAccount(t, accounts, model.RoleDonor, 0, 0)
	org := createAccount(t, accounts, model.RoleOrganization, 0, 0)
	l := createListing(t, listings, donor.ID, 0, 0)
	createListing(t, listings, donor.ID, 0, 0)

	now := time.Now().UTC()
	if _, err := listings.Claim(ctx, l.ID, org.ID, "444444", now.Add(time.Hour), now); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if _, err := listings.Complete(ctx, l.ID, donor.ID, "444444", now); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	stats, err := listings.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	want := model.ImpactStats{DonationsCompleted: 1, OrganizationsHelped: 1, DonorsContributing: 1, AvailableNow: 1}
	if *stats != want {
		t.Errorf("Stats = %+v, want %+v", *stats, want)
	}

	updated, err := listings.SetImage(ctx, l.ID, donor.ID, "public/listings/x.png", now)
	if err != nil {
		t.Fatalf("SetImage: %v", err)
	}
	if updated.ImageRef == nil || *updated.ImageRef != "public/listings/x.png" {
		t.Errorf("ImageRef = %v", updated.ImageRef)
	}

	_, err = listings.SetImage(ctx, l.ID, org.ID, "public/listings/y.png", now)
	if !errors.Is(err, ErrListingNotFound) {
		t.Errorf("SetImage by non-owner: error = %v, want ErrListingNotFound", err)
	}
}
