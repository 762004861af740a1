package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/ecofood/foodshare/internal/model"
)

var (
	ErrNotificationNotFound = errors.New("notification not found")
)

type NotificationRepository interface {
	CreateBatch(ctx context.Context, notifications []*model.Notification) ([]*model.Notification, error)
	ByID(ctx context.Context, id string) (*model.Notification, error)
	List(ctx context.Context, recipientID string, limit, offset int) ([]*model.Notification, error)
	Counts(ctx context.Context, recipientID string) (total, unread int, err error)
	MarkRead(ctx context.Context, id string, now time.Time) error
	MarkAllRead(ctx context.Context, recipientID string, now time.Time) (int64, error)
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context, recipientID string) (int64, error)
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type notificationRepository struct {
	db *sqlx.DB
}

func NewNotificationRepository(db *sqlx.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

// CreateBatch inserts the notifications in one transaction and returns the
// ones actually written. A notification whose dedupe key already exists is
// skipped, which makes repeated broadcasts of the same event harmless.
func (r *notificationRepository) CreateBatch(ctx context.Context, notifications []*model.Notification) ([]*model.Notification, error) {
	if len(notifications) == 0 {
		return nil, nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	created := make([]*model.Notification, 0, len(notifications))
	for _, n := range notifications {
		query, args, err := psql.Insert("notifications").
			Columns("id", "recipient_id", "listing_id", "originator_id", "kind", "title", "body",
				"read", "read_at", "dedupe_key", "created_at").
			Values(n.ID, n.RecipientID, n.ListingID, n.OriginatorID, n.Kind, n.Title, n.Body,
				n.Read, n.ReadAt, n.DedupeKey, n.CreatedAt).
			Suffix("ON CONFLICT (dedupe_key) DO NOTHING").
			ToSql()
		if err != nil {
			return nil, err
		}

		result, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return nil, err
		}
		if rows > 0 {
			created = append(created, n)
		}
	}

	err = tx.Commit()
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *notificationRepository) ByID(ctx context.Context, id string) (*model.Notification, error) {
	n := &model.Notification{}
	err := r.db.GetContext(ctx, n, `SELECT * FROM notifications WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotificationNotFound
	}
	if err != nil {
		return nil, err
	}
	return n, nil
}

// List returns a page of the recipient's notifications, newest first.
func (r *notificationRepository) List(ctx context.Context, recipientID string, limit, offset int) ([]*model.Notification, error) {
	query, args, err := psql.Select("*").From("notifications").
		Where(sq.Eq{"recipient_id": recipientID}).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, err
	}

	notifications := []*model.Notification{}
	err = r.db.SelectContext(ctx, &notifications, query, args...)
	if err != nil {
		return nil, err
	}
	return notifications, nil
}

func (r *notificationRepository) Counts(ctx context.Context, recipientID string) (int, int, error) {
	var counts struct {
		Total  int `db:"total"`
		Unread int `db:"unread"`
	}
	query := `
		SELECT
			COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN read THEN 0 ELSE 1 END), 0) AS unread
		FROM notifications
		WHERE recipient_id = $1
	`
	err := r.db.GetContext(ctx, &counts, query, recipientID)
	if err != nil {
		return 0, 0, err
	}
	return counts.Total, counts.Unread, nil
}

// MarkRead flags a single notification as read. Already-read notifications
// keep their original read_at.
func (r *notificationRepository) MarkRead(ctx context.Context, id string, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET read = $1, read_at = $2 WHERE id = $3 AND read = $4`,
		true, now, id, false,
	)
	return err
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, recipientID string, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET read = $1, read_at = $2 WHERE recipient_id = $3 AND read = $4`,
		true, now, recipientID, false,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *notificationRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = $1`, id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

func (r *notificationRepository) DeleteAll(ctx context.Context, recipientID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE recipient_id = $1`, recipientID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// DeleteCreatedBefore enforces the retention window; read state is ignored.
func (r *notificationRepository) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
