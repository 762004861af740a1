package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ecofood/foodshare/internal/geo"
	"github.com/ecofood/foodshare/internal/model"
	"github.com/ecofood/foodshare/internal/repository"
	"github.com/ecofood/foodshare/internal/validation"
)

// AccountService mirrors the identity service's accounts locally and keeps
// the organization proximity index in step with them.
type AccountService struct {
	repo  repository.AccountRepository
	index *geo.Index
	clock func() time.Time
}

func NewAccountService(repo repository.AccountRepository, index *geo.Index) *AccountService {
	return &AccountService{
		repo:  repo,
		index: index,
		clock: func() time.Time { return time.Now().UTC() },
	}
}

func (s *AccountService) ByID(ctx context.Context, id string) (*model.Account, error) {
	account, err := s.repo.ByID(ctx, id)
	if errors.Is(err, repository.ErrAccountNotFound) {
		return nil, fmt.Errorf("%w: account not found", ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("load account", err)
	}
	return account, nil
}

// Upsert validates and stores an account. A blank ID gets a new one;
// non-organization accounts are always Approved.
func (s *AccountService) Upsert(ctx context.Context, a *model.Account) (*model.Account, error) {
	a.Name = strings.TrimSpace(a.Name)
	a.Email = strings.ToLower(strings.TrimSpace(a.Email))
	if err := validation.ValidateAccountName(a.Name); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, err)
	}
	if err := validation.ValidateAccountEmail(a.Email); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, err)
	}
	if !model.ValidRole(a.Role) {
		return nil, fmt.Errorf("%w: unknown role %q", ErrValidation, a.Role)
	}
	if a.Lng != nil || a.Lat != nil {
		if _, err := validation.ValidateCoordinates(a.Lng, a.Lat); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrValidation, err)
		}
	}

	switch {
	case a.Role != model.RoleOrganization:
		a.Approval = model.ApprovalApproved
	case a.Approval == "":
		a.Approval = model.ApprovalPending
	}

	existing, err := s.repo.ByEmail(ctx, a.Email)
	switch {
	case errors.Is(err, repository.ErrAccountNotFound):
	case err != nil:
		return nil, storeErr("load account by email", err)
	case existing.ID != a.ID:
		return nil, fmt.Errorf("%w: email already in use", ErrValidation)
	}

	now := s.clock()
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	if err := s.repo.Upsert(ctx, a); err != nil {
		return nil, storeErr("upsert account", err)
	}
	s.syncIndex(a)
	return a, nil
}

// UpdateLocation moves the actor's own account.
func (s *AccountService) UpdateLocation(ctx context.Context, actor model.Actor, lng, lat *float64) (*model.Account, error) {
	point, err := validation.ValidateCoordinates(lng, lat)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, err)
	}

	account, err := s.repo.UpdateLocation(ctx, actor.ID, point, s.clock())
	if errors.Is(err, repository.ErrAccountNotFound) {
		return nil, fmt.Errorf("%w: account not found", ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("update location", err)
	}

	s.syncIndex(account)
	return account, nil
}

// SetApproval records a moderation decision on an organization.
func (s *AccountService) SetApproval(ctx context.Context, actor model.Actor, id, approval string) (*model.Account, error) {
	if !actor.IsModerator() {
		return nil, fmt.Errorf("%w: only moderators can approve organizations", ErrUnauthorized)
	}
	switch approval {
	case model.ApprovalPending, model.ApprovalApproved, model.ApprovalRejected:
	default:
		return nil, fmt.Errorf("%w: unknown approval %q", ErrValidation, approval)
	}

	account, err := s.repo.SetApproval(ctx, id, approval, s.clock())
	if errors.Is(err, repository.ErrAccountNotFound) {
		return nil, fmt.Errorf("%w: account not found", ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("set approval", err)
	}

	s.syncIndex(account)
	return account, nil
}

func (s *AccountService) SetActive(ctx context.Context, actor model.Actor, id string, active bool) (*model.Account, error) {
	if !actor.IsModerator() {
		return nil, fmt.Errorf("%w: only moderators can deactivate accounts", ErrUnauthorized)
	}

	account, err := s.repo.SetActive(ctx, id, active, s.clock())
	if errors.Is(err, repository.ErrAccountNotFound) {
		return nil, fmt.Errorf("%w: account not found", ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("set active", err)
	}

	s.syncIndex(account)
	return account, nil
}

// RefreshIndex rebuilds the proximity index from every located organization.
func (s *AccountService) RefreshIndex(ctx context.Context) (int, error) {
	orgs, err := s.repo.Located(ctx, model.RoleOrganization)
	if err != nil {
		return 0, storeErr("load organizations", err)
	}

	entries := make([]geo.Entry, 0, len(orgs))
	for _, a := range orgs {
		if e, ok := a.GeoEntry(); ok {
			entries = append(entries, e)
		}
	}
	s.index.Replace(entries)

	slog.Debug("geo index refreshed", "entries", len(entries))
	return len(entries), nil
}

// syncIndex keeps only organizations with a location in the index, so an
// account that stops being an organization drops out of fanout at once.
func (s *AccountService) syncIndex(a *model.Account) {
	if a.Role == model.RoleOrganization {
		if e, ok := a.GeoEntry(); ok {
			s.index.Upsert(e)
			return
		}
	}
	s.index.Remove(a.ID)
}
