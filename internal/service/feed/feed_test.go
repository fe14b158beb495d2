package feed

import (
	"context"
	"errors"
	"testing"
	"time"

	"ferry77-dispatch/internal/apperr"
	"ferry77-dispatch/internal/docstore"
	"ferry77-dispatch/internal/domain"
	"ferry77-dispatch/internal/logx"
	"ferry77-dispatch/internal/repository"
)

func newFeed(t *testing.T) (*Service, *repository.NotificationRepo) {
	t.Helper()
	repo := repository.NewNotificationRepo(docstore.NewMemory(), logx.Nop())
	return NewService(repo, time.Second, logx.Nop()), repo
}

func TestList_ReturnsFeedWithUnreadBadge(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, repo := newFeed(t)

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := repo.Insert(ctx, domain.Notification{
			RecipientID: "drv-1",
			Kind:        domain.NotificationDelivery,
			Read:        i == 0,
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	feed, err := svc.List(ctx, "drv-1", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(feed.Notifications) != 3 {
		t.Fatalf("notifications = %d, want 3", len(feed.Notifications))
	}
	if feed.Unread != 2 {
		t.Fatalf("unread = %d, want 2", feed.Unread)
	}
	if !feed.Notifications[0].CreatedAt.After(feed.Notifications[2].CreatedAt) {
		t.Fatal("feed not newest first")
	}

	limited, err := svc.List(ctx, "drv-1", 1)
	if err != nil {
		t.Fatalf("limited list: %v", err)
	}
	if len(limited.Notifications) != 1 {
		t.Fatalf("limited = %d, want 1", len(limited.Notifications))
	}
	if limited.Unread != 2 {
		t.Fatalf("unread badge must count beyond the page, got %d", limited.Unread)
	}
}

func TestMarkAllRead_Idempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, repo := newFeed(t)

	for i := 0; i < 2; i++ {
		if _, err := repo.Insert(ctx, domain.Notification{RecipientID: "drv-1", CreatedAt: time.Now()}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	marked, err := svc.MarkAllRead(ctx, "drv-1")
	if err != nil {
		t.Fatalf("mark all read: %v", err)
	}
	if marked != 2 {
		t.Fatalf("marked = %d, want 2", marked)
	}

	marked, err = svc.MarkAllRead(ctx, "drv-1")
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if marked != 0 {
		t.Fatalf("replay marked = %d, want 0", marked)
	}

	feed, err := svc.List(ctx, "drv-1", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if feed.Unread != 0 {
		t.Fatalf("unread after mark = %d, want 0", feed.Unread)
	}
}

func TestFeed_Validation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newFeed(t)

	if _, err := svc.List(ctx, "  ", 0); !errors.Is(err, apperr.ErrInvalid) {
		t.Fatalf("list err = %v, want ErrInvalid", err)
	}
	if _, err := svc.MarkAllRead(ctx, ""); !errors.Is(err, apperr.ErrInvalid) {
		t.Fatalf("mark err = %v, want ErrInvalid", err)
	}
	if _, err := svc.Watch(ctx, ""); !errors.Is(err, apperr.ErrInvalid) {
		t.Fatalf("watch err = %v, want ErrInvalid", err)
	}
}

func TestWatch_StreamsFeed(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc, repo := newFeed(t)

	ch, err := svc.Watch(ctx, "drv-1")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	<-ch // initial empty snapshot

	if _, err := repo.Insert(ctx, domain.Notification{RecipientID: "drv-1", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	select {
	case list := <-ch:
		if len(list) != 1 {
			t.Fatalf("snapshot = %d notifications, want 1", len(list))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot after insert")
	}
}
