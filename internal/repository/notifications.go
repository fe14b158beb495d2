package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"ferry77-dispatch/internal/docstore"
	"ferry77-dispatch/internal/domain"
	"ferry77-dispatch/internal/logx"
)

// NotificationRepo persists per-recipient notifications.
type NotificationRepo struct {
	store  docstore.Store
	logger logx.Logger
}

// NewNotificationRepo creates a new NotificationRepo.
func NewNotificationRepo(store docstore.Store, logger logx.Logger) *NotificationRepo {
	return &NotificationRepo{store: store, logger: logger}
}

// Insert stores a new notification and returns its generated ID.
func (r *NotificationRepo) Insert(ctx context.Context, n domain.Notification) (string, error) {
	id := n.ID
	if id == "" {
		id = uuid.NewString()
	}
	doc := docstore.Record{
		"recipientId": n.RecipientID,
		"kind":        string(n.Kind),
		"title":       n.Title,
		"message":     n.Message,
		"read":        n.Read,
		"createdAt":   n.CreatedAt.UTC().Format(time.RFC3339),
	}
	if err := r.store.Insert(ctx, docstore.CollectionNotifications, id, doc); err != nil {
		return "", fmt.Errorf("insert notification: %w", err)
	}
	return id, nil
}

// ListByRecipient returns the recipient's notifications, newest first,
// capped at limit when limit > 0.
func (r *NotificationRepo) ListByRecipient(ctx context.Context, recipientID string, limit int) ([]domain.Notification, error) {
	records, err := r.store.Query(ctx, docstore.CollectionNotifications, docstore.Predicate{
		Eq: map[string]any{"recipientId": recipientID},
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Notification, 0, len(records))
	for _, raw := range records {
		out = append(out, parseNotification(raw))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UnreadCount returns how many of the recipient's notifications are unread.
func (r *NotificationRepo) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	records, err := r.store.Query(ctx, docstore.CollectionNotifications, docstore.Predicate{
		Eq: map[string]any{"recipientId": recipientID, "read": false},
	})
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// MarkAllRead flips every unread notification of the recipient to read.
func (r *NotificationRepo) MarkAllRead(ctx context.Context, recipientID string) (int, error) {
	records, err := r.store.Query(ctx, docstore.CollectionNotifications, docstore.Predicate{
		Eq: map[string]any{"recipientId": recipientID, "read": false},
	})
	if err != nil {
		return 0, err
	}
	marked := 0
	for _, raw := range records {
		id, _ := raw["id"].(string)
		if id == "" {
			continue
		}
		if err := r.store.Update(ctx, docstore.CollectionNotifications, id, docstore.Record{"read": true}); err != nil {
			r.logger.Warn("mark notification read failed",
				logx.String("notification_id", id),
				logx.Err(err),
			)
			continue
		}
		marked++
	}
	return marked, nil
}

// Watch streams the recipient's notification list on every change.
func (r *NotificationRepo) Watch(ctx context.Context, recipientID string) (<-chan []domain.Notification, error) {
	ch, err := r.store.Subscribe(ctx, docstore.CollectionNotifications, docstore.Predicate{
		Eq: map[string]any{"recipientId": recipientID},
	})
	if err != nil {
		return nil, err
	}
	out := make(chan []domain.Notification, 1)
	go func() {
		defer close(out)
		for snap := range ch {
			list := make([]domain.Notification, 0, len(snap))
			for _, raw := range snap {
				list = append(list, parseNotification(raw))
			}
			sort.SliceStable(list, func(i, j int) bool {
				return list[i].CreatedAt.After(list[j].CreatedAt)
			})
			select {
			case out <- list:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func parseNotification(raw docstore.Record) domain.Notification {
	n := domain.Notification{Kind: domain.NotificationGeneral}
	n.ID, _ = raw["id"].(string)
	n.RecipientID, _ = raw["recipientId"].(string)
	if k, _ := raw["kind"].(string); k != "" {
		n.Kind = domain.NotificationKind(k)
	}
	n.Title, _ = raw["title"].(string)
	n.Message, _ = raw["message"].(string)
	n.Read, _ = raw["read"].(bool)
	if s, _ := raw["createdAt"].(string); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			n.CreatedAt = t
		}
	}
	return n
}
