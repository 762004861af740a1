package model

import (
	"time"

	"github.com/ecofood/foodshare/internal/geo"
)

const (
	RoleDonor        = "donor"
	RoleOrganization = "organization"
	RoleModerator    = "moderator"
)

const (
	ApprovalPending  = "Pending"
	ApprovalApproved = "Approved"
	ApprovalRejected = "Rejected"
)

// Account is the slice of an identity record the donation lifecycle needs.
type Account struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	Phone     *string   `db:"phone" json:"phone,omitempty"`
	Role      string    `db:"role" json:"role"`
	Approval  string    `db:"approval" json:"approval"`
	Active    bool      `db:"active" json:"active"`
	Lng       *float64  `db:"lng" json:"lng,omitempty"`
	Lat       *float64  `db:"lat" json:"lat,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Location returns the account's point, if it has one.
func (a *Account) Location() (geo.Point, bool) {
	if a.Lng == nil || a.Lat == nil {
		return geo.Point{}, false
	}
	return geo.Point{Lng: *a.Lng, Lat: *a.Lat}, true
}

// CanReceiveListings reports whether the account is a valid fanout target.
func (a *Account) CanReceiveListings() bool {
	return a.Role == RoleOrganization && a.Approval == ApprovalApproved && a.Active
}

// GeoEntry converts the account into a proximity index entry.
func (a *Account) GeoEntry() (geo.Entry, bool) {
	p, ok := a.Location()
	if !ok {
		return geo.Entry{}, false
	}
	return geo.Entry{
		ID:       a.ID,
		Point:    p,
		Role:     a.Role,
		Approval: a.Approval,
		Active:   a.Active,
	}, true
}

func ValidRole(role string) bool {
	switch role {
	case RoleDonor, RoleOrganization, RoleModerator:
		return true
	}
	return false
}
