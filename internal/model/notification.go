package model

import (
	"fmt"
	"time"
)

const (
	NotificationPosted          = "posted"
	NotificationClaimed         = "claimed"
	NotificationExpiring        = "expiring"
	NotificationPickupReminder  = "pickup_reminder"
	NotificationPickupCompleted = "pickup_completed"
	NotificationClaimLapsed     = "claim_lapsed"
)

type Notification struct {
	ID           string     `db:"id" json:"id"`
	RecipientID  string     `db:"recipient_id" json:"recipient_id"`
	ListingID    string     `db:"listing_id" json:"listing_id"`
	OriginatorID *string    `db:"originator_id" json:"originator_id,omitempty"`
	Kind         string     `db:"kind" json:"kind"`
	Title        string     `db:"title" json:"title"`
	Body         string     `db:"body" json:"body"`
	Read         bool       `db:"read" json:"read"`
	ReadAt       *time.Time `db:"read_at" json:"read_at,omitempty"`
	DedupeKey    *string    `db:"dedupe_key" json:"-"` // Unique when set
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// BroadcastKey identifies one broadcast event for one recipient, so the
// same event never lands twice in an inbox.
func BroadcastKey(kind, listingID, recipientID string) *string {
	key := fmt.Sprintf("%s:%s:%s", kind, listingID, recipientID)
	return &key
}

// Inbox is one page of a recipient's notifications.
type Inbox struct {
	Notifications []*Notification `json:"notifications"`
	Total         int             `json:"total"`
	Unread        int             `json:"unread"`
}

// ClaimKey is BroadcastKey scoped to a single claim, so a listing that lapses
// and is claimed again gets its own notifications.
func ClaimKey(kind, listingID, recipientID string, claimedAt time.Time) *string {
	key := fmt.Sprintf("%s:%s:%s:%d", kind, listingID, recipientID, claimedAt.Unix())
	return &key
}
