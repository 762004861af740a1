package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ecofood/foodshare/internal/geo"
	"github.com/ecofood/foodshare/internal/model"
	"github.com/ecofood/foodshare/internal/repository"
	"github.com/ecofood/foodshare/internal/storage"
	"github.com/ecofood/foodshare/internal/tasks"
	"github.com/ecofood/foodshare/internal/validation"
)

const (
	defaultListLimit = 50
	maxListLimit     = 100
	maxNearbyKm      = 50
	jobBatchSize     = 200
)

type LifecycleConfig struct {
	PickupWindow       time.Duration
	ExpiryEnforced     bool
	ReminderLead       time.Duration
	ExpiringLead       time.Duration
	FanoutRadiusMeters float64
	NearbyRadiusMeters float64
}

// PostListingRequest is what a donor submits. Pointers distinguish a missing
// coordinate from zero.
type PostListingRequest struct {
	Name      string   `json:"name"`
	Category  string   `json:"category"`
	Quantity  string   `json:"quantity"`
	ExpiresAt string   `json:"expires_at"`
	Lng       *float64 `json:"lng"`
	Lat       *float64 `json:"lat"`
}

// LifecycleService moves listings Available -> Pending -> Completed.
type LifecycleService struct {
	listings repository.ListingRepository
	accounts repository.AccountRepository
	fanout   *FanoutService
	runner   *tasks.Runner
	images   storage.Storage
	cfg      LifecycleConfig
	clock    func() time.Time
	codes    func() (string, error)
}

func NewLifecycleService(
	listings repository.ListingRepository,
	accounts repository.AccountRepository,
	fanout *FanoutService,
	runner *tasks.Runner,
	images storage.Storage,
	cfg LifecycleConfig,
) *LifecycleService {
	return &LifecycleService{
		listings: listings,
		accounts: accounts,
		fanout:   fanout,
		runner:   runner,
		images:   images,
		cfg:      cfg,
		clock:    func() time.Time { return time.Now().UTC() },
		codes:    newVerificationCode,
	}
}

// Post creates an Available listing for a donor and broadcasts it to nearby
// organizations in the background.
func (s *LifecycleService) Post(ctx context.Context, actor model.Actor, req PostListingRequest) (*model.Listing, error) {
	if !actor.IsDonor() {
		return nil, fmt.Errorf("%w: only donors can post listings", ErrUnauthorized)
	}

	now := s.clock()
	expiresAt, point, err := validatePost(req, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, err)
	}

	if _, err := s.activeAccount(ctx, actor); err != nil {
		return nil, err
	}

	listing := &model.Listing{
		ID:        uuid.New().String(),
		DonorID:   actor.ID,
		Name:      strings.TrimSpace(req.Name),
		Category:  req.Category,
		Quantity:  strings.TrimSpace(req.Quantity),
		ExpiresAt: expiresAt,
		Lng:       point.Lng,
		Lat:       point.Lat,
		Status:    model.ListingStatusAvailable,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.listings.Create(ctx, listing); err != nil {
		return nil, storeErr("create listing", err)
	}

	slog.Info("listing posted", "listing_id", listing.ID, "donor_id", actor.ID)

	snapshot := *listing
	s.runner.Go(ctx, "broadcast-posted", func(ctx context.Context) error {
		_, err := s.fanout.BroadcastPosted(ctx, &snapshot, s.cfg.FanoutRadiusMeters)
		return err
	})
	return listing, nil
}

func validatePost(req PostListingRequest, now time.Time) (time.Time, geo.Point, error) {
	if err := validation.ValidateListingName(req.Name); err != nil {
		return time.Time{}, geo.Point{}, err
	}
	if err := validation.ValidateCategory(req.Category); err != nil {
		return time.Time{}, geo.Point{}, err
	}
	if err := validation.ValidateQuantity(req.Quantity); err != nil {
		return time.Time{}, geo.Point{}, err
	}
	expiresAt, err := validation.ValidateExpiry(req.ExpiresAt, now)
	if err != nil {
		return time.Time{}, geo.Point{}, err
	}
	point, err := validation.ValidateCoordinates(req.Lng, req.Lat)
	if err != nil {
		return time.Time{}, geo.Point{}, err
	}
	return expiresAt, point, nil
}

// Claim reserves an Available listing for an approved organization. Of any
// number of concurrent claims exactly one succeeds.
func (s *LifecycleService) Claim(ctx context.Context, actor model.Actor, listingID string) (*model.Listing, error) {
	if !actor.IsOrganization() {
		return nil, fmt.Errorf("%w: only organizations can claim listings", ErrUnauthorized)
	}

	org, err := s.activeAccount(ctx, actor)
	if err != nil {
		return nil, err
	}
	if !org.CanReceiveListings() {
		return nil, fmt.Errorf("%w: organization is not approved", ErrUnauthorized)
	}

	code, err := s.codes()
	if err != nil {
		return nil, fmt.Errorf("generate verification code: %w", err)
	}

	now := s.clock()
	listing, err := s.listings.Claim(ctx, listingID, org.ID, code, now.Add(s.cfg.PickupWindow), now)
	if errors.Is(err, repository.ErrListingConflict) {
		return nil, s.classifyConflict(ctx, listingID, "listing is no longer available")
	}
	if err != nil {
		return nil, storeErr("claim listing", err)
	}

	slog.Info("listing claimed", "listing_id", listing.ID, "organization_id", org.ID)

	snapshot := *listing
	s.runner.Go(ctx, "notify-claimed", func(ctx context.Context) error {
		return s.fanout.NotifyClaimed(ctx, &snapshot, org)
	})
	return listing, nil
}

// Verify completes a Pending listing once the donor enters the code the
// organization shows at pickup.
func (s *LifecycleService) Verify(ctx context.Context, actor model.Actor, listingID, code string) (*model.Listing, error) {
	listing, err := s.listings.ByID(ctx, listingID)
	if errors.Is(err, repository.ErrListingNotFound) {
		return nil, fmt.Errorf("%w: listing not found", ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("load listing", err)
	}

	if !listing.IsPending() {
		return nil, fmt.Errorf("%w: listing is not awaiting pickup", ErrInvalidState)
	}
	if listing.DonorID != actor.ID {
		return nil, fmt.Errorf("%w: only the donor can confirm pickup", ErrUnauthorized)
	}
	if !codesEqual(code, listing.Code()) {
		return nil, fmt.Errorf("%w: invalid verification code", ErrCodeMismatch)
	}

	completed, err := s.listings.Complete(ctx, listingID, actor.ID, code, s.clock())
	if errors.Is(err, repository.ErrListingConflict) {
		// Completed or released between the read and the update.
		return nil, s.classifyConflict(ctx, listingID, "listing is not awaiting pickup")
	}
	if err != nil {
		return nil, storeErr("complete listing", err)
	}

	slog.Info("pickup verified", "listing_id", completed.ID, "donor_id", actor.ID)

	if completed.ClaimedBy != nil {
		snapshot := *completed
		orgID := *completed.ClaimedBy
		s.runner.Go(ctx, "notify-pickup-completed", func(ctx context.Context) error {
			return s.fanout.NotifyPickupCompleted(ctx, &snapshot, orgID)
		})
	}
	return completed, nil
}

func codesEqual(given, stored string) bool {
	if given == "" || stored == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(given), []byte(stored)) == 1
}

// classifyConflict explains why a conditional transition matched no row.
func (s *LifecycleService) classifyConflict(ctx context.Context, listingID, stateMsg string) error {
	_, err := s.listings.ByID(ctx, listingID)
	if errors.Is(err, repository.ErrListingNotFound) {
		return fmt.Errorf("%w: listing not found", ErrNotFound)
	}
	if err != nil {
		return storeErr("load listing", err)
	}
	return fmt.Errorf("%w: %s", ErrInvalidState, stateMsg)
}

// SweepExpiredClaims releases Pending listings whose pickup window has passed
// and tells both sides. It returns the number released.
func (s *LifecycleService) SweepExpiredClaims(ctx context.Context, now time.Time) (int, error) {
	if !s.cfg.ExpiryEnforced {
		return 0, nil
	}

	expired, err := s.listings.ExpiredClaims(ctx, now, jobBatchSize)
	if err != nil {
		return 0, storeErr("load expired claims", err)
	}

	released := 0
	for _, l := range expired {
		if l.ClaimedBy == nil {
			continue
		}
		orgID := *l.ClaimedBy

		listing, err := s.listings.Release(ctx, l.ID, now)
		if errors.Is(err, repository.ErrListingConflict) {
			continue // verified in the meantime
		}
		if err != nil {
			return released, storeErr("release claim", err)
		}
		released++

		slog.Info("claim lapsed", "listing_id", listing.ID, "organization_id", orgID)
		if err := s.fanout.NotifyClaimLapsed(ctx, listing, orgID); err != nil {
			slog.Error("lapse notification failed", "error", err, "listing_id", listing.ID)
		}
	}
	return released, nil
}

// SendPickupReminders reminds organizations whose pickup window ends within
// the reminder lead. Each claim is reminded at most once.
func (s *LifecycleService) SendPickupReminders(ctx context.Context, now time.Time) (int, error) {
	due, err := s.listings.PickupsDueBefore(ctx, now.Add(s.cfg.ReminderLead), jobBatchSize)
	if err != nil {
		return 0, storeErr("load pickups due", err)
	}

	sent := 0
	for _, l := range due {
		if l.PickupOverdue(now) {
			continue
		}
		created, err := s.fanout.RemindPickup(ctx, l)
		if err != nil {
			return sent, err
		}
		if created {
			sent++
		}
	}
	return sent, nil
}

// AlertExpiring warns nearby organizations about unclaimed listings that
// expire within the configured lead.
func (s *LifecycleService) AlertExpiring(ctx context.Context, now time.Time) (int, error) {
	expiring, err := s.listings.ExpiringAvailable(ctx, now, now.Add(s.cfg.ExpiringLead), jobBatchSize)
	if err != nil {
		return 0, storeErr("load expiring listings", err)
	}

	notified := 0
	for _, l := range expiring {
		n, err := s.fanout.BroadcastExpiring(ctx, l, s.cfg.FanoutRadiusMeters)
		if err != nil {
			return notified, err
		}
		notified += n
	}
	return notified, nil
}

func (s *LifecycleService) ListAvailable(ctx context.Context, limit int) ([]*model.Listing, error) {
	listings, err := s.listings.Query(ctx, repository.ListingFilter{
		Status: model.ListingStatusAvailable,
		Limit:  clampLimit(limit),
	})
	if err != nil {
		return nil, storeErr("list available", err)
	}
	return s.withImages(listings), nil
}

// ListNearby returns Available listings within radiusKm of point, nearest
// first. A non-positive radius means the default.
func (s *LifecycleService) ListNearby(ctx context.Context, point geo.Point, radiusKm float64) ([]*model.Listing, error) {
	if !point.Valid() {
		return nil, fmt.Errorf("%w: location is out of range", ErrValidation)
	}

	radius := s.cfg.NearbyRadiusMeters
	if radiusKm > 0 {
		radius = min(radiusKm, maxNearbyKm) * 1000
	}

	listings, err := s.listings.NearbyAvailable(ctx, point, radius, geo.DefaultMaxResults)
	if err != nil {
		return nil, storeErr("list nearby", err)
	}
	return s.withImages(listings), nil
}

func (s *LifecycleService) MyDonations(ctx context.Context, actor model.Actor) ([]*model.Listing, error) {
	if !actor.IsDonor() {
		return nil, fmt.Errorf("%w: only donors have donations", ErrUnauthorized)
	}
	listings, err := s.listings.Query(ctx, repository.ListingFilter{DonorID: actor.ID, Limit: maxListLimit})
	if err != nil {
		return nil, storeErr("list donations", err)
	}
	return s.withImages(listings), nil
}

func (s *LifecycleService) MyClaims(ctx context.Context, actor model.Actor) ([]*model.Listing, error) {
	if !actor.IsOrganization() {
		return nil, fmt.Errorf("%w: only organizations have claims", ErrUnauthorized)
	}
	listings, err := s.listings.Query(ctx, repository.ListingFilter{ClaimedBy: actor.ID, Limit: maxListLimit})
	if err != nil {
		return nil, storeErr("list claims", err)
	}
	return s.withImages(listings), nil
}

func (s *LifecycleService) Impact(ctx context.Context) (*model.ImpactStats, error) {
	stats, err := s.listings.Stats(ctx)
	if err != nil {
		return nil, storeErr("impact stats", err)
	}
	return stats, nil
}

// AttachImage stores a photo for one of the donor's listings. The caller
// validates the file and passes its content type and extension.
func (s *LifecycleService) AttachImage(ctx context.Context, actor model.Actor, listingID string, body io.Reader, contentType, ext string) (*model.Listing, error) {
	if s.images == nil {
		return nil, fmt.Errorf("%w: image storage is not configured", ErrUnavailable)
	}

	listing, err := s.listings.ByID(ctx, listingID)
	if errors.Is(err, repository.ErrListingNotFound) {
		return nil, fmt.Errorf("%w: listing not found", ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("load listing", err)
	}
	if listing.DonorID != actor.ID {
		return nil, fmt.Errorf("%w: only the donor can change the photo", ErrUnauthorized)
	}

	path := fmt.Sprintf("public/listings/%s%s", uuid.New().String(), ext)
	if err := s.images.Save(ctx, path, body, contentType); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	updated, err := s.listings.SetImage(ctx, listingID, actor.ID, path, s.clock())
	if err != nil {
		if delErr := s.images.Delete(ctx, path); delErr != nil {
			slog.Error("failed to delete image during cleanup", "error", delErr, "path", path)
		}
		if errors.Is(err, repository.ErrListingNotFound) {
			return nil, fmt.Errorf("%w: listing not found", ErrNotFound)
		}
		return nil, storeErr("set image", err)
	}

	if listing.ImageRef != nil {
		old := *listing.ImageRef
		s.runner.Go(ctx, "delete-old-image", func(ctx context.Context) error {
			return s.images.Delete(ctx, old)
		})
	}

	return s.withImages([]*model.Listing{updated})[0], nil
}

// Remove force-deletes a listing and its notifications. Moderators only.
func (s *LifecycleService) Remove(ctx context.Context, actor model.Actor, listingID string) error {
	if !actor.IsModerator() {
		return fmt.Errorf("%w: only moderators can remove listings", ErrUnauthorized)
	}

	listing, err := s.listings.ByID(ctx, listingID)
	if errors.Is(err, repository.ErrListingNotFound) {
		return fmt.Errorf("%w: listing not found", ErrNotFound)
	}
	if err != nil {
		return storeErr("load listing", err)
	}

	err = s.listings.Delete(ctx, listingID)
	if errors.Is(err, repository.ErrListingNotFound) {
		return fmt.Errorf("%w: listing not found", ErrNotFound)
	}
	if err != nil {
		return storeErr("delete listing", err)
	}

	slog.Info("listing removed", "listing_id", listingID, "moderator_id", actor.ID)

	if listing.ImageRef != nil && s.images != nil {
		ref := *listing.ImageRef
		s.runner.Go(ctx, "delete-image", func(ctx context.Context) error {
			return s.images.Delete(ctx, ref)
		})
	}
	return nil
}

func (s *LifecycleService) withImages(listings []*model.Listing) []*model.Listing {
	if s.images == nil {
		return listings
	}
	for _, l := range listings {
		if l.ImageRef != nil {
			l.ImageURL = s.images.URL(*l.ImageRef)
		}
	}
	return listings
}

// activeAccount loads the caller's account; unknown and deactivated accounts
// may not act.
func (s *LifecycleService) activeAccount(ctx context.Context, actor model.Actor) (*model.Account, error) {
	account, err := s.accounts.ByID(ctx, actor.ID)
	if errors.Is(err, repository.ErrAccountNotFound) {
		return nil, fmt.Errorf("%w: account is not registered", ErrUnauthorized)
	}
	if err != nil {
		return nil, storeErr("load account", err)
	}
	if account.Role != actor.Role {
		return nil, fmt.Errorf("%w: token role does not match account", ErrUnauthorized)
	}
	if !account.Active {
		return nil, fmt.Errorf("%w: account is not active", ErrUnauthorized)
	}
	return account, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return min(limit, maxListLimit)
}
