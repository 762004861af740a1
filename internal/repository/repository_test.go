package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ecofood/foodshare/internal/db"
	"github.com/ecofood/foodshare/internal/model"
)

func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "test.db") +
		"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)"

	database, err := db.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func createAccount(t *testing.T, repo AccountRepository, role string, lng, lat float64) *model.Account {
	t.Helper()
	now := time.Now().UTC()
	id := uuid.New().String()
	a := &model.Account{
		ID:        id,
		Name:      role + "-" + id[:8],
		Email:     id + "@example.com",
		Role:      role,
		Approval:  model.ApprovalApproved,
		Active:    true,
		Lng:       &lng,
		Lat:       &lat,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repo.Upsert(context.Background(), a); err != nil {
		t.Fatalf("Upsert account: %v", err)
	}
	return a
}

func createListing(t *testing.T, repo ListingRepository, donorID string, lng, lat float64) *model.Listing {
	t.Helper()
	now := time.Now().UTC()
	l := &model.Listing{
		ID:        uuid.New().String(),
		DonorID:   donorID,
		Name:      "Hot Meals",
		Category:  model.CategoryVeg,
		Quantity:  "10 units",
		ExpiresAt: now.Add(5 * time.Hour),
		Lng:       lng,
		Lat:       lat,
		Status:    model.ListingStatusAvailable,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repo.Create(context.Background(), l); err != nil {
		t.Fatalf("Create listing: %v", err)
	}
	return l
}
