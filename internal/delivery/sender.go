// Package delivery sends alerts about listing events outside the app, by
// email or through a Kafka outbox consumed by an SMS/push worker.
package delivery

import (
	"context"

	"github.com/ecofood/foodshare/internal/model"
)

const (
	AlertPosted          = "posted"
	AlertClaimed         = "claimed"
	AlertPickupCompleted = "pickup_completed"
)

// Sender delivers alerts to one recipient. Implementations must be safe for
// concurrent use; callers run each send as its own task.
type Sender interface {
	// SendPostedAlert tells an organization the donor posted a listing near it.
	SendPostedAlert(ctx context.Context, to *model.Account, listing *model.Listing, donor *model.Account) error
	// SendClaimedAlert tells the donor which organization claimed the listing.
	SendClaimedAlert(ctx context.Context, to *model.Account, listing *model.Listing, organization *model.Account) error
	// SendPickupCompletedAlert tells the organization the donor confirmed handover.
	SendPickupCompletedAlert(ctx context.Context, to *model.Account, listing *model.Listing, donor *model.Account) error
}
