package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ecofood/foodshare/internal/delivery"
	"github.com/ecofood/foodshare/internal/geo"
	"github.com/ecofood/foodshare/internal/model"
	"github.com/ecofood/foodshare/internal/repository"
	"github.com/ecofood/foodshare/internal/tasks"
)

// FanoutService turns listing events into inbox notifications and outbound
// alerts.
type FanoutService struct {
	accounts      repository.AccountRepository
	notifications repository.NotificationRepository
	index         *geo.Index
	sender        delivery.Sender
	runner        *tasks.Runner
	maxRecipients int
	clock         func() time.Time
}

func NewFanoutService(
	accounts repository.AccountRepository,
	notifications repository.NotificationRepository,
	index *geo.Index,
	sender delivery.Sender,
	runner *tasks.Runner,
	maxRecipients int,
) *FanoutService {
	if maxRecipients <= 0 {
		maxRecipients = geo.DefaultMaxResults
	}
	return &FanoutService{
		accounts:      accounts,
		notifications: notifications,
		index:         index,
		sender:        sender,
		runner:        runner,
		maxRecipients: maxRecipients,
		clock:         func() time.Time { return time.Now().UTC() },
	}
}

// BroadcastPosted notifies every eligible organization within radiusMeters
// of a new listing and returns how many were newly notified. Repeating the
// broadcast for the same listing notifies nobody twice.
func (s *FanoutService) BroadcastPosted(ctx context.Context, listing *model.Listing, radiusMeters float64) (int, error) {
	donor := s.accountOr(ctx, listing.DonorID, "A donor")

	created, recipients, err := s.broadcast(ctx, listing, radiusMeters, model.NotificationPosted,
		"New food donation nearby",
		func(distance float64) string {
			return fmt.Sprintf("%s posted %s (%s, %s), %.1f km from you. Best before %s.",
				donor.Name, listing.Name, listing.Quantity, listing.Category, distance/1000, formatTime(listing.ExpiresAt))
		})
	if err != nil {
		return 0, err
	}

	for _, n := range created {
		org := recipients[n.RecipientID]
		s.deliver(ctx, "send-posted-alert", func(ctx context.Context) error {
			return s.sender.SendPostedAlert(ctx, org, listing, donor)
		})
	}

	slog.Info("listing broadcast", "listing_id", listing.ID, "kind", model.NotificationPosted, "notified", len(created))
	return len(created), nil
}

// BroadcastExpiring warns nearby organizations that an unclaimed listing is
// about to expire. In-app only.
func (s *FanoutService) BroadcastExpiring(ctx context.Context, listing *model.Listing, radiusMeters float64) (int, error) {
	created, _, err := s.broadcast(ctx, listing, radiusMeters, model.NotificationExpiring,
		"Donation expiring soon",
		func(distance float64) string {
			return fmt.Sprintf("%s (%s), %.1f km from you, expires at %s and is still unclaimed.",
				listing.Name, listing.Quantity, distance/1000, formatTime(listing.ExpiresAt))
		})
	if err != nil {
		return 0, err
	}

	slog.Info("listing broadcast", "listing_id", listing.ID, "kind", model.NotificationExpiring, "notified", len(created))
	return len(created), nil
}

func (s *FanoutService) broadcast(
	ctx context.Context,
	listing *model.Listing,
	radiusMeters float64,
	kind, title string,
	body func(distance float64) string,
) ([]*model.Notification, map[string]*model.Account, error) {
	matches := s.index.FindNear(listing.Point(), radiusMeters, geo.Filter{
		Role:       model.RoleOrganization,
		Approval:   model.ApprovalApproved,
		ActiveOnly: true,
	}, s.maxRecipients)
	if len(matches) == 0 {
		return nil, nil, nil
	}

	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ID
	}

	// The index may lag behind approval or deactivation changes.
	fresh, err := s.accounts.ByIDs(ctx, ids)
	if err != nil {
		return nil, nil, storeErr("load recipients", err)
	}

	now := s.clock()
	batch := make([]*model.Notification, 0, len(matches))
	for _, m := range matches {
		org, ok := fresh[m.ID]
		if !ok || !org.CanReceiveListings() || org.ID == listing.DonorID {
			continue
		}
		batch = append(batch, &model.Notification{
			ID:           uuid.New().String(),
			RecipientID:  org.ID,
			ListingID:    listing.ID,
			OriginatorID: &listing.DonorID,
			Kind:         kind,
			Title:        title,
			Body:         body(m.DistanceMeters),
			DedupeKey:    model.BroadcastKey(kind, listing.ID, org.ID),
			CreatedAt:    now,
		})
	}

	created, err := s.notifications.CreateBatch(ctx, batch)
	if err != nil {
		return nil, nil, storeErr("create notifications", err)
	}
	return created, fresh, nil
}

// NotifyClaimed tells the donor who claimed their listing and gives the
// organization its pickup code.
func (s *FanoutService) NotifyClaimed(ctx context.Context, listing *model.Listing, org *model.Account) error {
	donor, err := s.accounts.ByID(ctx, listing.DonorID)
	if err != nil {
		return storeErr("load donor", err)
	}

	pickupBy := ""
	if listing.PickupExpiresAt != nil {
		pickupBy = " Please collect it by " + formatTime(*listing.PickupExpiresAt) + "."
	}

	now := s.clock()
	_, err = s.notifications.CreateBatch(ctx, []*model.Notification{
		{
			ID:           uuid.New().String(),
			RecipientID:  donor.ID,
			ListingID:    listing.ID,
			OriginatorID: &org.ID,
			Kind:         model.NotificationClaimed,
			Title:        "Your donation was claimed",
			Body: fmt.Sprintf("%s claimed %s. They will show you a 6-digit code at pickup; enter it to confirm the handover.",
				org.Name, listing.Name),
			CreatedAt: now,
		},
		{
			ID:           uuid.New().String(),
			RecipientID:  org.ID,
			ListingID:    listing.ID,
			OriginatorID: &donor.ID,
			Kind:         model.NotificationClaimed,
			Title:        "Claim confirmed",
			Body: fmt.Sprintf("You claimed %s from %s. Your pickup code is %s.%s",
				listing.Name, donor.Name, listing.Code(), pickupBy),
			CreatedAt: now,
		},
	})
	if err != nil {
		return storeErr("create claim notifications", err)
	}

	s.deliver(ctx, "send-claimed-alert", func(ctx context.Context) error {
		return s.sender.SendClaimedAlert(ctx, donor, listing, org)
	})
	return nil
}

// NotifyPickupCompleted tells both sides the donor confirmed the handover.
func (s *FanoutService) NotifyPickupCompleted(ctx context.Context, listing *model.Listing, orgID string) error {
	byID, err := s.accounts.ByIDs(ctx, []string{listing.DonorID, orgID})
	if err != nil {
		return storeErr("load accounts", err)
	}
	donor, org := byID[listing.DonorID], byID[orgID]
	if donor == nil || org == nil {
		return fmt.Errorf("notify pickup completed for %s: %w", listing.ID, repository.ErrAccountNotFound)
	}

	now := s.clock()
	_, err = s.notifications.CreateBatch(ctx, []*model.Notification{
		{
			ID:           uuid.New().String(),
			RecipientID:  donor.ID,
			ListingID:    listing.ID,
			OriginatorID: &org.ID,
			Kind:         model.NotificationPickupCompleted,
			Title:        "Pickup confirmed",
			Body:         fmt.Sprintf("%s collected %s. Thank you for donating!", org.Name, listing.Name),
			CreatedAt:    now,
		},
		{
			ID:           uuid.New().String(),
			RecipientID:  org.ID,
			ListingID:    listing.ID,
			OriginatorID: &donor.ID,
			Kind:         model.NotificationPickupCompleted,
			Title:        "Pickup complete",
			Body:         fmt.Sprintf("%s confirmed your pickup of %s.", donor.Name, listing.Name),
			CreatedAt:    now,
		},
	})
	if err != nil {
		return storeErr("create completion notifications", err)
	}

	s.deliver(ctx, "send-pickup-completed-alert", func(ctx context.Context) error {
		return s.sender.SendPickupCompletedAlert(ctx, org, listing, donor)
	})
	return nil
}

// NotifyClaimLapsed tells both sides a claim was released because the pickup
// window passed. listing is the released (Available again) row.
func (s *FanoutService) NotifyClaimLapsed(ctx context.Context, listing *model.Listing, orgID string) error {
	org := s.accountOr(ctx, orgID, "The organization")

	now := s.clock()
	_, err := s.notifications.CreateBatch(ctx, []*model.Notification{
		{
			ID:           uuid.New().String(),
			RecipientID:  listing.DonorID,
			ListingID:    listing.ID,
			OriginatorID: &orgID,
			Kind:         model.NotificationClaimLapsed,
			Title:        "Pickup window missed",
			Body:         fmt.Sprintf("%s did not collect %s in time. It is available to other organizations again.", org.Name, listing.Name),
			CreatedAt:    now,
		},
		{
			ID:          uuid.New().String(),
			RecipientID: orgID,
			ListingID:   listing.ID,
			Kind:        model.NotificationClaimLapsed,
			Title:       "Claim released",
			Body:        fmt.Sprintf("Your claim on %s expired before pickup and has been released.", listing.Name),
			CreatedAt:   now,
		},
	})
	if err != nil {
		return storeErr("create lapse notifications", err)
	}
	return nil
}

// RemindPickup sends the claiming organization one reminder per claim.
// It reports whether a new reminder was created.
func (s *FanoutService) RemindPickup(ctx context.Context, listing *model.Listing) (bool, error) {
	if !listing.IsPending() || listing.ClaimedBy == nil || listing.PickupExpiresAt == nil {
		return false, nil
	}
	orgID := *listing.ClaimedBy

	claimedAt := listing.UpdatedAt
	if listing.ClaimedAt != nil {
		claimedAt = *listing.ClaimedAt
	}

	created, err := s.notifications.CreateBatch(ctx, []*model.Notification{{
		ID:           uuid.New().String(),
		RecipientID:  orgID,
		ListingID:    listing.ID,
		OriginatorID: &listing.DonorID,
		Kind:         model.NotificationPickupReminder,
		Title:        "Pickup reminder",
		Body: fmt.Sprintf("Your claim on %s ends at %s. Collect it before then or it will be released.",
			listing.Name, formatTime(*listing.PickupExpiresAt)),
		DedupeKey: model.ClaimKey(model.NotificationPickupReminder, listing.ID, orgID, claimedAt),
		CreatedAt: s.clock(),
	}})
	if err != nil {
		return false, storeErr("create reminder", err)
	}
	return len(created) > 0, nil
}

// deliver runs one outbound alert as its own task so a slow or failing
// recipient never affects the others.
func (s *FanoutService) deliver(ctx context.Context, name string, send func(ctx context.Context) error) {
	if s.sender == nil {
		return
	}
	s.runner.Go(ctx, name, send)
}

// accountOr loads an account for message text. A failed lookup yields a
// stand-in carrying only the ID and fallbackName.
func (s *FanoutService) accountOr(ctx context.Context, accountID, fallbackName string) *model.Account {
	a, err := s.accounts.ByID(ctx, accountID)
	if err != nil {
		if !errors.Is(err, repository.ErrAccountNotFound) {
			slog.Warn("account lookup failed", "error", err, "account_id", accountID)
		}
		return &model.Account{ID: accountID, Name: fallbackName}
	}
	return a
}

func formatTime(t time.Time) string {
	return t.UTC().Format("Jan 2 15:04 MST")
}
