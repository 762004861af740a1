package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ecofood/foodshare/internal/db"
	"github.com/ecofood/foodshare/internal/geo"
	"github.com/ecofood/foodshare/internal/model"
	"github.com/ecofood/foodshare/internal/repository"
	"github.com/ecofood/foodshare/internal/tasks"
)

type sentAlert struct {
	kind        string
	to          string
	listingID   string
	counterpart string
}

// fakeSender records alerts. Sends to failFor return an error and sends to
// panicFor panic; neither is recorded.
type fakeSender struct {
	mu       sync.Mutex
	sent     []sentAlert
	failFor  string
	panicFor string
}

func (f *fakeSender) record(kind, to, listingID, counterpart string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case to == f.failFor:
		return errors.New("smtp: connection refused")
	case to == f.panicFor:
		panic("sender: nil transport")
	}
	f.sent = append(f.sent, sentAlert{kind: kind, to: to, listingID: listingID, counterpart: counterpart})
	return nil
}

func (f *fakeSender) SendPostedAlert(ctx context.Context, to *model.Account, listing *model.Listing, donor *model.Account) error {
	return f.record("posted", to.ID, listing.ID, donor.Name)
}

func (f *fakeSender) SendClaimedAlert(ctx context.Context, to *model.Account, listing *model.Listing, org *model.Account) error {
	return f.record("claimed", to.ID, listing.ID, org.Name)
}

func (f *fakeSender) SendPickupCompletedAlert(ctx context.Context, to *model.Account, listing *model.Listing, donor *model.Account) error {
	return f.record("pickup_completed", to.ID, listing.ID, donor.Name)
}

// failing configures the sender before any test traffic.
func (f *fakeSender) failing(failFor, panicFor string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failFor = failFor
	f.panicFor = panicFor
}

func (f *fakeSender) alerts(kind string) []sentAlert {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentAlert
	for _, a := range f.sent {
		if a.kind == kind {
			out = append(out, a)
		}
	}
	return out
}

type testEnv struct {
	listings      repository.ListingRepository
	accountRepo   repository.AccountRepository
	notifications repository.NotificationRepository
	index         *geo.Index
	sender        *fakeSender
	runner        *tasks.Runner
	fanout        *FanoutService
	lifecycle     *LifecycleService
	inbox         *InboxService
	accounts      *AccountService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "test.db") +
		"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)"

	database, err := db.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}

	env := &testEnv{
		listings:      repository.NewListingRepository(database),
		accountRepo:   repository.NewAccountRepository(database),
		notifications: repository.NewNotificationRepository(database),
		index:         geo.NewIndex(geo.DefaultMaxResults),
		sender:        &fakeSender{},
		runner:        tasks.NewRunner(5 * time.Second),
	}
	env.fanout = NewFanoutService(env.accountRepo, env.notifications, env.index, env.sender, env.runner, 50)
	env.lifecycle = NewLifecycleService(env.listings, env.accountRepo, env.fanout, env.runner, nil, LifecycleConfig{
		PickupWindow:       2 * time.Hour,
		ExpiryEnforced:     true,
		ReminderLead:       30 * time.Minute,
		ExpiringLead:       2 * time.Hour,
		FanoutRadiusMeters: 10_000,
		NearbyRadiusMeters: 5_000,
	})
	env.inbox = NewInboxService(env.notifications, 7*24*time.Hour)
	env.accounts = NewAccountService(env.accountRepo, env.index)

	// Background tasks must finish before the database closes.
	t.Cleanup(func() {
		env.runner.Wait()
		database.Close()
	})
	return env
}

func (e *testEnv) account(t *testing.T, name, role, approval string, lng, lat float64) model.Actor {
	t.Helper()
	a, err := e.accounts.Upsert(context.Background(), &model.Account{
		Name:     name,
		Email:    name + "@example.com",
		Role:     role,
		Approval: approval,
		Active:   true,
		Lng:      &lng,
		Lat:      &lat,
	})
	if err != nil {
		t.Fatalf("Upsert %s: %v", name, err)
	}
	return model.Actor{ID: a.ID, Role: a.Role}
}

func (e *testEnv) donor(t *testing.T, name string, lng, lat float64) model.Actor {
	t.Helper()
	return e.account(t, name, model.RoleDonor, "", lng, lat)
}

func (e *testEnv) org(t *testing.T, name string, lng, lat float64) model.Actor {
	t.Helper()
	return e.account(t, name, model.RoleOrganization, model.ApprovalApproved, lng, lat)
}

func (e *testEnv) post(t *testing.T, donor model.Actor, lng, lat float64) *model.Listing {
	t.Helper()
	l, err := e.lifecycle.Post(context.Background(), donor, PostListingRequest{
		Name:      "Hot Meals",
		Category:  model.CategoryVeg,
		Quantity:  "10 units",
		ExpiresAt: time.Now().UTC().Add(5 * time.Hour).Format(time.RFC3339),
		Lng:       &lng,
		Lat:       &lat,
	})
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	e.runner.Wait()
	return l
}

func (e *testEnv) inboxOf(t *testing.T, actor model.Actor, kind string) []*model.Notification {
	t.Helper()
	inbox, err := e.inbox.List(context.Background(), actor, 100, 0)
	if err != nil {
		t.Fatalf("List inbox: %v", err)
	}
	var out []*model.Notification
	for _, n := range inbox.Notifications {
		if kind == "" || n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}
