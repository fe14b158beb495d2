// Package feed exposes the per-recipient notification feed: listing with an
// unread badge, bulk read acknowledgement and live updates.
package feed

import (
	"context"
	"strings"
	"time"

	"ferry77-dispatch/internal/apperr"
	"ferry77-dispatch/internal/domain"
	"ferry77-dispatch/internal/logx"
)

// DefaultLimit caps a feed page when the caller does not ask for one.
const DefaultLimit = 50

type notificationRepository interface {
	ListByRecipient(ctx context.Context, recipientID string, limit int) ([]domain.Notification, error)
	UnreadCount(ctx context.Context, recipientID string) (int, error)
	MarkAllRead(ctx context.Context, recipientID string) (int, error)
	Watch(ctx context.Context, recipientID string) (<-chan []domain.Notification, error)
}

// Feed is one page of notifications plus the unread badge.
type Feed struct {
	Notifications []domain.Notification
	Unread        int
}

// Service reads and acknowledges notification feeds.
type Service struct {
	notifications    notificationRepository
	operationTimeout time.Duration
	logger           logx.Logger
}

// NewService creates a feed Service.
func NewService(notifications notificationRepository, timeout time.Duration, logger logx.Logger) *Service {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Service{notifications: notifications, operationTimeout: timeout, logger: logger}
}

// List returns the recipient's feed, newest first.
func (s *Service) List(ctx context.Context, recipientID string, limit int) (Feed, error) {
	recipientID, err := validateRecipient(recipientID)
	if err != nil {
		return Feed{}, err
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	ctx, cancel := context.WithTimeout(ctx, s.operationTimeout)
	defer cancel()

	list, err := s.notifications.ListByRecipient(ctx, recipientID, limit)
	if err != nil {
		return Feed{}, err
	}
	unread, err := s.notifications.UnreadCount(ctx, recipientID)
	if err != nil {
		return Feed{}, err
	}
	return Feed{Notifications: list, Unread: unread}, nil
}

// MarkAllRead acknowledges every unread notification and returns how many
// were flipped. Replays are harmless and report zero.
func (s *Service) MarkAllRead(ctx context.Context, recipientID string) (int, error) {
	recipientID, err := validateRecipient(recipientID)
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.operationTimeout)
	defer cancel()

	marked, err := s.notifications.MarkAllRead(ctx, recipientID)
	if err != nil {
		return 0, err
	}
	if marked > 0 {
		s.logger.Info("notifications acknowledged",
			logx.String("event", "notifications_read"),
			logx.String("recipient_id", recipientID),
			logx.Int("marked", marked),
		)
	}
	return marked, nil
}

// Watch streams the recipient's feed on every change.
func (s *Service) Watch(ctx context.Context, recipientID string) (<-chan []domain.Notification, error) {
	recipientID, err := validateRecipient(recipientID)
	if err != nil {
		return nil, err
	}
	return s.notifications.Watch(ctx, recipientID)
}

func validateRecipient(raw string) (string, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", apperr.ErrInvalid
	}
	return id, nil
}
