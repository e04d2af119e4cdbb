// Package inbox serves the delivered-notification surface: a user's own
// inbox plus the administrator's broadcast and cleanup actions.
package inbox

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MariamAlaa-8/realstate-backend/auth"
	"github.com/MariamAlaa-8/realstate-backend/errs"
	"github.com/MariamAlaa-8/realstate-backend/notification"
	"github.com/MariamAlaa-8/realstate-backend/store"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

var (
	ErrNotAdmin     = errs.New(errs.CodeAuthorization, "inbox: administrator role required")
	ErrNotQueued    = errs.New(errs.CodeInternal, "inbox: notification could not be queued")
	ErrEmptyMessage = errs.New(errs.CodeValidation, "inbox: title and message are required")
)

// ListParams narrows a listing. A zero Limit means DefaultLimit.
type ListParams struct {
	UnreadOnly bool
	Limit      int
}

func (p ListParams) limit() int {
	switch {
	case p.Limit <= 0:
		return DefaultLimit
	case p.Limit > MaxLimit:
		return MaxLimit
	}
	return p.Limit
}

type Service struct {
	store      store.Store
	dispatcher *notification.Dispatcher
	logger     *slog.Logger
	now        func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func New(st store.Store, d *notification.Dispatcher, opts ...Option) *Service {
	s := &Service{store: st, dispatcher: d, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns userID's notifications, newest first.
func (s *Service) List(ctx context.Context, userID string, p ListParams) ([]notification.Notification, error) {
	return s.list(ctx, store.NotificationFilter{UserID: userID, UnreadOnly: p.UnreadOnly, Limit: p.limit()})
}

// ListAll returns notifications across every user.
func (s *Service) ListAll(ctx context.Context, adminID string, p ListParams) ([]notification.Notification, error) {
	var out []notification.Notification
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		if err := requireAdmin(ctx, tx, adminID); err != nil {
			return err
		}
		var err error
		out, err = tx.ListNotifications(ctx, store.NotificationFilter{UnreadOnly: p.UnreadOnly, Limit: p.limit()})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("inbox: list all: %w", err)
	}
	return out, nil
}

func (s *Service) list(ctx context.Context, filter store.NotificationFilter) ([]notification.Notification, error) {
	var out []notification.Notification
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListNotifications(ctx, filter)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("inbox: list: %w", err)
	}
	return out, nil
}

func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		n, err = tx.CountUnread(ctx, userID)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("inbox: unread count: %w", err)
	}
	return n, nil
}

// MarkRead acknowledges one of userID's notifications. Notifications owned by
// someone else read as not found.
func (s *Service) MarkRead(ctx context.Context, userID, id string) error {
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		return tx.MarkNotificationRead(ctx, id, userID, s.now().UTC())
	})
	if err != nil {
		return fmt.Errorf("inbox: mark read %s: %w", id, err)
	}
	return nil
}

func (s *Service) MarkAllRead(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		n, err = tx.MarkAllNotificationsRead(ctx, userID, s.now().UTC())
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("inbox: mark all read: %w", err)
	}
	return n, nil
}

func (s *Service) Delete(ctx context.Context, adminID, id string) error {
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		if err := requireAdmin(ctx, tx, adminID); err != nil {
			return err
		}
		return tx.DeleteNotification(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("inbox: delete %s: %w", id, err)
	}
	s.logger.InfoContext(ctx, "notification deleted", "notification_id", id, "admin_id", adminID)
	return nil
}

// Send queues an ad-hoc notification from an administrator. It goes through
// the outbox like every other notification and reaches the inbox once the
// relay delivers it.
func (s *Service) Send(ctx context.Context, adminID string, in notification.Intent) error {
	in.Title = strings.TrimSpace(in.Title)
	in.Message = strings.TrimSpace(in.Message)
	if in.Title == "" || in.Message == "" {
		return ErrEmptyMessage
	}
	if in.Type == "" {
		in.Type = notification.TypeGeneral
	}
	if !in.Type.Valid() {
		return errs.Newf(errs.CodeValidation, "inbox: unknown notification type %q", in.Type)
	}

	err := s.store.InTx(ctx, func(tx store.Tx) error {
		if err := requireAdmin(ctx, tx, adminID); err != nil {
			return err
		}
		if _, err := tx.GetUserByID(ctx, in.UserID); err != nil {
			return err
		}
		if !s.dispatcher.Enqueue(ctx, tx, in) {
			return ErrNotQueued
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("inbox: send: %w", err)
	}
	s.logger.InfoContext(ctx, "notification queued", "user_id", in.UserID, "type", in.Type, "admin_id", adminID)
	return nil
}

func requireAdmin(ctx context.Context, tx store.Tx, userID string) error {
	u, err := tx.GetUserByID(ctx, userID)
	if err != nil {
		if errs.HasCode(err, errs.CodeNotFound) {
			return ErrNotAdmin
		}
		return err
	}
	if u.Role != auth.RoleAdmin {
		return ErrNotAdmin
	}
	return nil
}
