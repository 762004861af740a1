package repository

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/ecofood/foodshare/internal/geo"
	"github.com/ecofood/foodshare/internal/model"
)

var (
	ErrListingNotFound = errors.New("listing not found")
	// ErrListingConflict means a conditional transition matched no row: the
	// listing is absent or no longer in the expected state.
	ErrListingConflict = errors.New("listing state changed")
)

// psql builds statements with $n placeholders, which both pgx and sqlite accept.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// nearbyCandidateCap bounds the rows pulled by the bounding-box prefilter.
const nearbyCandidateCap = 1000

type ListingFilter struct {
	Status        string
	DonorID       string
	ClaimedBy     string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	ExpiresBefore *time.Time
	Limit         int
	Offset        int
}

type ListingRepository interface {
	Create(ctx context.Context, listing *model.Listing) error
	ByID(ctx context.Context, id string) (*model.Listing, error)
	Query(ctx context.Context, filter ListingFilter) ([]*model.Listing, error)
	NearbyAvailable(ctx context.Context, point geo.Point, radiusMeters float64, limit int) ([]*model.Listing, error)
	Claim(ctx context.Context, id, organizationID, code string, pickupExpiresAt, now time.Time) (*model.Listing, error)
	Complete(ctx context.Context, id, donorID, code string, now time.Time) (*model.Listing, error)
	Release(ctx context.Context, id string, now time.Time) (*model.Listing, error)
	ExpiredClaims(ctx context.Context, now time.Time, limit int) ([]*model.Listing, error)
	PickupsDueBefore(ctx context.Context, deadline time.Time, limit int) ([]*model.Listing, error)
	ExpiringAvailable(ctx context.Context, from, to time.Time, limit int) ([]*model.Listing, error)
	SetImage(ctx context.Context, id, donorID, ref string, now time.Time) (*model.Listing, error)
	Stats(ctx context.Context) (*model.ImpactStats, error)
	Delete(ctx context.Context, id string) error
}

type listingRepository struct {
	db *sqlx.DB
}

func NewListingRepository(db *sqlx.DB) ListingRepository {
	return &listingRepository{db: db}
}

func (r *listingRepository) Create(ctx context.Context, l *model.Listing) error {
	query, args, err := psql.Insert("listings").
		Columns("id", "donor_id", "name", "category", "quantity", "expires_at", "lng", "lat",
			"image_ref", "status", "created_at", "updated_at").
		Values(l.ID, l.DonorID, l.Name, l.Category, l.Quantity, l.ExpiresAt, l.Lng, l.Lat,
			l.ImageRef, l.Status, l.CreatedAt, l.UpdatedAt).
		ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}

func (r *listingRepository) ByID(ctx context.Context, id string) (*model.Listing, error) {
	listing := &model.Listing{}
	err := r.db.GetContext(ctx, listing, `SELECT * FROM listings WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrListingNotFound
	}
	if err != nil {
		return nil, err
	}
	return listing, nil
}

func (r *listingRepository) Query(ctx context.Context, f ListingFilter) ([]*model.Listing, error) {
	where := sq.And{}
	if f.Status != "" {
		where = append(where, sq.Eq{"status": f.Status})
	}
	if f.DonorID != "" {
		where = append(where, sq.Eq{"donor_id": f.DonorID})
	}
	if f.ClaimedBy != "" {
		where = append(where, sq.Eq{"claimed_by": f.ClaimedBy})
	}
	if f.CreatedAfter != nil {
		where = append(where, sq.GtOrEq{"created_at": *f.CreatedAfter})
	}
	if f.CreatedBefore != nil {
		where = append(where, sq.Lt{"created_at": *f.CreatedBefore})
	}
	if f.ExpiresBefore != nil {
		where = append(where, sq.Lt{"expires_at": *f.ExpiresBefore})
	}

	builder := psql.Select("*").From("listings").OrderBy("created_at DESC", "id")
	if len(where) > 0 {
		builder = builder.Where(where)
	}
	if f.Limit > 0 {
		builder = builder.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		builder = builder.Offset(uint64(f.Offset))
	}

	return r.selectListings(ctx, builder)
}

// NearbyAvailable returns Available listings within radiusMeters of point,
// nearest first. The bounding box narrows rows in SQL; the exact great-circle
// distance decides membership.
func (r *listingRepository) NearbyAvailable(ctx context.Context, point geo.Point, radiusMeters float64, limit int) ([]*model.Listing, error) {
	boxes := sq.Or{}
	for _, rect := range geo.BoundingBox(point, radiusMeters) {
		boxes = append(boxes, sq.And{
			sq.GtOrEq{"lng": rect.Min.Lng},
			sq.LtOrEq{"lng": rect.Max.Lng},
			sq.GtOrEq{"lat": rect.Min.Lat},
			sq.LtOrEq{"lat": rect.Max.Lat},
		})
	}

	builder := psql.Select("*").From("listings").
		Where(sq.Eq{"status": model.ListingStatusAvailable}).
		Where(boxes).
		OrderBy("created_at DESC").
		Limit(nearbyCandidateCap)

	candidates, err := r.selectListings(ctx, builder)
	if err != nil {
		return nil, err
	}

	var nearby []*model.Listing
	for _, l := range candidates {
		d := geo.Distance(point, l.Point())
		if d > radiusMeters {
			continue
		}
		l.DistanceMeters = &d
		nearby = append(nearby, l)
	}

	sort.SliceStable(nearby, func(i, j int) bool {
		return *nearby[i].DistanceMeters < *nearby[j].DistanceMeters
	})
	if limit > 0 && len(nearby) > limit {
		nearby = nearby[:limit]
	}
	return nearby, nil
}

// Claim moves an Available listing to Pending in a single conditional UPDATE,
// so exactly one of several concurrent claimers gets a row back.
func (r *listingRepository) Claim(ctx context.Context, id, organizationID, code string, pickupExpiresAt, now time.Time) (*model.Listing, error) {
	return r.transition(ctx, psql.Update("listings").
		SetMap(map[string]any{
			"status":            model.ListingStatusPending,
			"claimed_by":        organizationID,
			"verification_code": code,
			"pickup_expires_at": pickupExpiresAt,
			"claimed_at":        now,
			"updated_at":        now,
		}).
		Where(sq.Eq{"id": id, "status": model.ListingStatusAvailable}))
}

// Complete moves a Pending listing to Completed when the donor and code match,
// clearing the code and pickup timer in the same statement.
func (r *listingRepository) Complete(ctx context.Context, id, donorID, code string, now time.Time) (*model.Listing, error) {
	return r.transition(ctx, psql.Update("listings").
		SetMap(map[string]any{
			"status":            model.ListingStatusCompleted,
			"verification_code": nil,
			"pickup_expires_at": nil,
			"completed_at":      now,
			"updated_at":        now,
		}).
		Where(sq.Eq{
			"id":                id,
			"status":            model.ListingStatusPending,
			"donor_id":          donorID,
			"verification_code": code,
		}))
}

// Release returns a Pending listing whose pickup timer elapsed before now to
// Available and clears everything the claim set.
func (r *listingRepository) Release(ctx context.Context, id string, now time.Time) (*model.Listing, error) {
	return r.transition(ctx, psql.Update("listings").
		SetMap(map[string]any{
			"status":            model.ListingStatusAvailable,
			"claimed_by":        nil,
			"verification_code": nil,
			"pickup_expires_at": nil,
			"claimed_at":        nil,
			"updated_at":        now,
		}).
		Where(sq.Eq{"id": id, "status": model.ListingStatusPending}).
		Where(sq.Lt{"pickup_expires_at": now}))
}

func (r *listingRepository) transition(ctx context.Context, update sq.UpdateBuilder) (*model.Listing, error) {
	query, args, err := update.Suffix("RETURNING *").ToSql()
	if err != nil {
		return nil, err
	}

	listing := &model.Listing{}
	err = r.db.GetContext(ctx, listing, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrListingConflict
	}
	if err != nil {
		return nil, err
	}
	return listing, nil
}

func (r *listingRepository) ExpiredClaims(ctx context.Context, now time.Time, limit int) ([]*model.Listing, error) {
	return r.selectListings(ctx, psql.Select("*").From("listings").
		Where(sq.Eq{"status": model.ListingStatusPending}).
		Where(sq.Lt{"pickup_expires_at": now}).
		OrderBy("pickup_expires_at").
		Limit(uint64(limit)))
}

func (r *listingRepository) PickupsDueBefore(ctx context.Context, deadline time.Time, limit int) ([]*model.Listing, error) {
	return r.selectListings(ctx, psql.Select("*").From("listings").
		Where(sq.Eq{"status": model.ListingStatusPending}).
		Where(sq.LtOrEq{"pickup_expires_at": deadline}).
		OrderBy("pickup_expires_at").
		Limit(uint64(limit)))
}

func (r *listingRepository) ExpiringAvailable(ctx context.Context, from, to time.Time, limit int) ([]*model.Listing, error) {
	return r.selectListings(ctx, psql.Select("*").From("listings").
		Where(sq.Eq{"status": model.ListingStatusAvailable}).
		Where(sq.GtOrEq{"expires_at": from}).
		Where(sq.LtOrEq{"expires_at": to}).
		OrderBy("expires_at").
		Limit(uint64(limit)))
}

func (r *listingRepository) SetImage(ctx context.Context, id, donorID, ref string, now time.Time) (*model.Listing, error) {
	listing, err := r.transition(ctx, psql.Update("listings").
		SetMap(map[string]any{"image_ref": ref, "updated_at": now}).
		Where(sq.Eq{"id": id, "donor_id": donorID}))
	if errors.Is(err, ErrListingConflict) {
		return nil, ErrListingNotFound
	}
	return listing, err
}

func (r *listingRepository) Stats(ctx context.Context) (*model.ImpactStats, error) {
	stats := &model.ImpactStats{}
	query := `
		SELECT
			(SELECT COUNT(*) FROM listings WHERE status = $1) AS donations_completed,
			(SELECT COUNT(DISTINCT claimed_by) FROM listings WHERE status = $1) AS organizations_helped,
			(SELECT COUNT(DISTINCT donor_id) FROM listings WHERE status = $1) AS donors_contributing,
			(SELECT COUNT(*) FROM listings WHERE status = $2) AS available_now
	`
	err := r.db.GetContext(ctx, stats, query, model.ListingStatusCompleted, model.ListingStatusAvailable)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (r *listingRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM listings WHERE id = $1`, id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrListingNotFound
	}
	return nil
}

func (r *listingRepository) selectListings(ctx context.Context, builder sq.SelectBuilder) ([]*model.Listing, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}

	listings := []*model.Listing{}
	err = r.db.SelectContext(ctx, &listings, query, args...)
	if err != nil {
		return nil, err
	}
	return listings, nil
}
