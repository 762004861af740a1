package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/ecofood/foodshare/internal/geo"
	"github.com/ecofood/foodshare/internal/model"
)

var (
	ErrAccountNotFound = errors.New("account not found")
)

type AccountRepository interface {
	Upsert(ctx context.Context, account *model.Account) error
	ByID(ctx context.Context, id string) (*model.Account, error)
	ByEmail(ctx context.Context, email string) (*model.Account, error)
	ByIDs(ctx context.Context, ids []string) (map[string]*model.Account, error)
	Located(ctx context.Context, role string) ([]*model.Account, error)
	UpdateLocation(ctx context.Context, id string, point geo.Point, now time.Time) (*model.Account, error)
	SetApproval(ctx context.Context, id, approval string, now time.Time) (*model.Account, error)
	SetActive(ctx context.Context, id string, active bool, now time.Time) (*model.Account, error)
}

type accountRepository struct {
	db *sqlx.DB
}

func NewAccountRepository(db *sqlx.DB) AccountRepository {
	return &accountRepository{db: db}
}

// Upsert inserts the account or overwrites the profile fields of an existing
// one with the same ID. Accounts are owned by the identity service; this is
// how they are mirrored locally.
func (r *accountRepository) Upsert(ctx context.Context, a *model.Account) error {
	query := `
		INSERT INTO accounts (id, name, email, phone, role, approval, active, lng, lat, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			phone = excluded.phone,
			role = excluded.role,
			approval = excluded.approval,
			active = excluded.active,
			lng = excluded.lng,
			lat = excluded.lat,
			updated_at = excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		a.ID,
		a.Name,
		a.Email,
		a.Phone,
		a.Role,
		a.Approval,
		a.Active,
		a.Lng,
		a.Lat,
		a.CreatedAt,
		a.UpdatedAt,
	)
	return err
}

func (r *accountRepository) ByID(ctx context.Context, id string) (*model.Account, error) {
	account := &model.Account{}
	err := r.db.GetContext(ctx, account, `SELECT * FROM accounts WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return account, nil
}

func (r *accountRepository) ByEmail(ctx context.Context, email string) (*model.Account, error) {
	account := &model.Account{}
	err := r.db.GetContext(ctx, account, `SELECT * FROM accounts WHERE email = $1`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return account, nil
}

// ByIDs loads several accounts at once. Missing IDs are simply absent from
// the result.
func (r *accountRepository) ByIDs(ctx context.Context, ids []string) (map[string]*model.Account, error) {
	byID := make(map[string]*model.Account, len(ids))
	if len(ids) == 0 {
		return byID, nil
	}

	query, args, err := psql.Select("*").From("accounts").Where(sq.Eq{"id": ids}).ToSql()
	if err != nil {
		return nil, err
	}

	var accounts []*model.Account
	err = r.db.SelectContext(ctx, &accounts, query, args...)
	if err != nil {
		return nil, err
	}
	for _, a := range accounts {
		byID[a.ID] = a
	}
	return byID, nil
}

// Located returns every account of the given role that has a location.
func (r *accountRepository) Located(ctx context.Context, role string) ([]*model.Account, error) {
	query, args, err := psql.Select("*").From("accounts").
		Where(sq.Eq{"role": role}).
		Where(sq.NotEq{"lng": nil, "lat": nil}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, err
	}

	accounts := []*model.Account{}
	err = r.db.SelectContext(ctx, &accounts, query, args...)
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *accountRepository) UpdateLocation(ctx context.Context, id string, p geo.Point, now time.Time) (*model.Account, error) {
	return r.update(ctx, id, map[string]any{"lng": p.Lng, "lat": p.Lat, "updated_at": now})
}

func (r *accountRepository) SetApproval(ctx context.Context, id, approval string, now time.Time) (*model.Account, error) {
	return r.update(ctx, id, map[string]any{"approval": approval, "updated_at": now})
}

func (r *accountRepository) SetActive(ctx context.Context, id string, active bool, now time.Time) (*model.Account, error) {
	return r.update(ctx, id, map[string]any{"active": active, "updated_at": now})
}

func (r *accountRepository) update(ctx context.Context, id string, fields map[string]any) (*model.Account, error) {
	query, args, err := psql.Update("accounts").
		SetMap(fields).
		Where(sq.Eq{"id": id}).
		Suffix("RETURNING *").
		ToSql()
	if err != nil {
		return nil, err
	}

	account := &model.Account{}
	err = r.db.GetContext(ctx, account, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return account, nil
}
