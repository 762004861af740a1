package model

import (
	"time"

	"github.com/ecofood/foodshare/internal/geo"
)

const (
	ListingStatusAvailable = "Available"
	ListingStatusPending   = "Pending"
	ListingStatusCompleted = "Completed"
)

const (
	CategoryVeg    = "Veg"
	CategoryNonVeg = "Non-Veg"
)

// Listing is a single donated item and where it is in its lifecycle.
type Listing struct {
	ID               string     `db:"id" json:"id"`
	DonorID          string     `db:"donor_id" json:"donor_id"`
	Name             string     `db:"name" json:"name"`
	Category         string     `db:"category" json:"category"`
	Quantity         string     `db:"quantity" json:"quantity"`
	ExpiresAt        time.Time  `db:"expires_at" json:"expires_at"`
	Lng              float64    `db:"lng" json:"lng"`
	Lat              float64    `db:"lat" json:"lat"`
	ImageRef         *string    `db:"image_ref" json:"-"`
	Status           string     `db:"status" json:"status"`
	ClaimedBy        *string    `db:"claimed_by" json:"claimed_by,omitempty"`
	VerificationCode *string    `db:"verification_code" json:"-"`                           // Pending only; shown to the claimer alone
	PickupExpiresAt  *time.Time `db:"pickup_expires_at" json:"pickup_expires_at,omitempty"` // Pending only
	ClaimedAt        *time.Time `db:"claimed_at" json:"claimed_at,omitempty"`
	CompletedAt      *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`

	// Computed fields (not in database)
	ImageURL       string   `db:"-" json:"image_url,omitempty"`
	DistanceMeters *float64 `db:"-" json:"distance_meters,omitempty"`
}

func (l *Listing) Point() geo.Point {
	return geo.Point{Lng: l.Lng, Lat: l.Lat}
}

func (l *Listing) IsAvailable() bool {
	return l.Status == ListingStatusAvailable
}

func (l *Listing) IsPending() bool {
	return l.Status == ListingStatusPending
}

// PickupOverdue reports whether a pending claim has outlived its pickup timer.
func (l *Listing) PickupOverdue(now time.Time) bool {
	return l.IsPending() && l.PickupExpiresAt != nil && now.After(*l.PickupExpiresAt)
}

func (l *Listing) Code() string {
	if l.VerificationCode == nil {
		return ""
	}
	return *l.VerificationCode
}

// ValidCategory reports whether c is one of the perishable classifications.
func ValidCategory(c string) bool {
	return c == CategoryVeg || c == CategoryNonVeg
}

// ImpactStats summarises completed handovers.
type ImpactStats struct {
	DonationsCompleted  int `db:"donations_completed" json:"donations_completed"`
	OrganizationsHelped int `db:"organizations_helped" json:"organizations_helped"`
	DonorsContributing  int `db:"donors_contributing" json:"donors_contributing"`
	AvailableNow        int `db:"available_now" json:"available_now"`
}
