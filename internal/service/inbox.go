package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ecofood/foodshare/internal/model"
	"github.com/ecofood/foodshare/internal/repository"
)

type InboxService struct {
	notifications repository.NotificationRepository
	retention     time.Duration
	clock         func() time.Time
}

func NewInboxService(notifications repository.NotificationRepository, retention time.Duration) *InboxService {
	return &InboxService{
		notifications: notifications,
		retention:     retention,
		clock:         func() time.Time { return time.Now().UTC() },
	}
}

// List returns a page of the actor's notifications, newest first, with the
// inbox totals.
func (s *InboxService) List(ctx context.Context, actor model.Actor, limit, offset int) (*model.Inbox, error) {
	if offset < 0 {
		offset = 0
	}

	notifications, err := s.notifications.List(ctx, actor.ID, clampLimit(limit), offset)
	if err != nil {
		return nil, storeErr("list notifications", err)
	}

	total, unread, err := s.notifications.Counts(ctx, actor.ID)
	if err != nil {
		return nil, storeErr("count notifications", err)
	}

	return &model.Inbox{
		Notifications: notifications,
		Total:         total,
		Unread:        unread,
	}, nil
}

func (s *InboxService) UnreadCount(ctx context.Context, actor model.Actor) (int, error) {
	_, unread, err := s.notifications.Counts(ctx, actor.ID)
	if err != nil {
		return 0, storeErr("count notifications", err)
	}
	return unread, nil
}

// MarkRead marks one of the actor's notifications read. Marking an already
// read notification succeeds and changes nothing.
func (s *InboxService) MarkRead(ctx context.Context, actor model.Actor, id string) error {
	if _, err := s.owned(ctx, actor, id); err != nil {
		return err
	}
	if err := s.notifications.MarkRead(ctx, id, s.clock()); err != nil {
		return storeErr("mark read", err)
	}
	return nil
}

func (s *InboxService) MarkAllRead(ctx context.Context, actor model.Actor) (int64, error) {
	n, err := s.notifications.MarkAllRead(ctx, actor.ID, s.clock())
	if err != nil {
		return 0, storeErr("mark all read", err)
	}
	return n, nil
}

func (s *InboxService) Delete(ctx context.Context, actor model.Actor, id string) error {
	if _, err := s.owned(ctx, actor, id); err != nil {
		return err
	}
	err := s.notifications.Delete(ctx, id)
	if errors.Is(err, repository.ErrNotificationNotFound) {
		return fmt.Errorf("%w: notification not found", ErrNotFound)
	}
	if err != nil {
		return storeErr("delete notification", err)
	}
	return nil
}

func (s *InboxService) DeleteAll(ctx context.Context, actor model.Actor) (int64, error) {
	n, err := s.notifications.DeleteAll(ctx, actor.ID)
	if err != nil {
		return 0, storeErr("delete notifications", err)
	}
	return n, nil
}

// Purge drops notifications older than the retention window.
func (s *InboxService) Purge(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.notifications.DeleteCreatedBefore(ctx, now.Add(-s.retention))
	if err != nil {
		return 0, storeErr("purge notifications", err)
	}
	if n > 0 {
		slog.Info("notifications purged", "count", n)
	}
	return n, nil
}

func (s *InboxService) owned(ctx context.Context, actor model.Actor, id string) (*model.Notification, error) {
	n, err := s.notifications.ByID(ctx, id)
	if errors.Is(err, repository.ErrNotificationNotFound) {
		return nil, fmt.Errorf("%w: notification not found", ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("load notification", err)
	}
	if n.RecipientID != actor.ID {
		return nil, fmt.Errorf("%w: notification belongs to another account", ErrUnauthorized)
	}
	return n, nil
}
