package notification

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newClockedRepo() *MemoryRepository {
	repo := NewMemoryRepository()
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	repo.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	return repo
}

func TestMemoryRepositoryCreateCoercesEnums(t *testing.T) {
	repo := newClockedRepo()
	n, err := repo.Create(context.Background(), "Title", "Body", Kind("bogus"), Audience("aliens"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Kind != KindInfo || n.Audience != AudienceAll {
		t.Fatalf("expected coerced defaults, got kind=%s audience=%s", n.Kind, n.Audience)
	}
	if n.ID == "" || n.CreatedAt.IsZero() {
		t.Fatalf("expected generated id and timestamp: %+v", n)
	}
	if n.IsRead || n.SentViaMessagingChannel || n.SentViaEmailChannel || n.SentAt != nil {
		t.Fatalf("new notification must be unread and unsent: %+v", n)
	}
}

func TestMemoryRepositoryListOrdering(t *testing.T) {
	ctx := context.Background()
	repo := newClockedRepo()

	var ids []string
	for i := 0; i < 5; i++ {
		n, _ := repo.Create(ctx, "t", "b", KindReminder, AudienceAll)
		ids = append(ids, n.ID)
	}
	// newest and oldest become read
	_, _ = repo.MarkRead(ctx, ids[4])
	_, _ = repo.MarkRead(ctx, ids[0])

	list, err := repo.List(ctx, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{ids[3], ids[2], ids[1], ids[4], ids[0]}
	if len(list) != len(want) {
		t.Fatalf("got %d items, expected %d", len(list), len(want))
	}
	for i := range want {
		if list[i].ID != want[i] {
			t.Fatalf("position %d: got %s, expected %s", i, list[i].ID, want[i])
		}
	}

	seenRead := false
	for i, n := range list {
		if n.IsRead {
			seenRead = true
		} else if seenRead {
			t.Fatalf("unread notification at %d after a read one", i)
		}
		if i > 0 && list[i-1].IsRead == n.IsRead && list[i-1].CreatedAt.Before(n.CreatedAt) {
			t.Fatalf("createdAt not descending at %d", i)
		}
	}
}

func TestMemoryRepositoryListFiltersByKind(t *testing.T) {
	ctx := context.Background()
	repo := newClockedRepo()
	_, _ = repo.Create(ctx, "a", "b", KindFastingReminder, AudienceAll)
	_, _ = repo.Create(ctx, "c", "d", KindInfo, AudienceAll)

	kind := KindFastingReminder
	list, _ := repo.List(ctx, &kind)
	if len(list) != 1 || list[0].Kind != KindFastingReminder {
		t.Fatalf("unexpected filtered list: %+v", list)
	}
}

func TestMemoryRepositoryMutationsReportNotFound(t *testing.T) {
	ctx := context.Background()
	repo := newClockedRepo()
	n, _ := repo.Create(ctx, "t", "b", KindInfo, AudienceAll)

	if ok, _ := repo.MarkRead(ctx, "missing"); ok {
		t.Fatalf("MarkRead on missing id must report false")
	}
	if ok, _ := repo.MarkRead(ctx, n.ID); !ok {
		t.Fatalf("MarkRead on existing id must report true")
	}
	if ok, _ := repo.MarkRead(ctx, n.ID); !ok {
		t.Fatalf("MarkRead must be idempotent")
	}
	if err := repo.MarkSent(ctx, "missing", true, true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("MarkSent on missing id: expected ErrNotFound, got %v", err)
	}
	if ok, _ := repo.Delete(ctx, n.ID); !ok {
		t.Fatalf("Delete on existing id must report true")
	}
	if ok, _ := repo.Delete(ctx, n.ID); ok {
		t.Fatalf("second Delete must report false")
	}
	if _, err := repo.Get(ctx, n.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after delete: expected ErrNotFound, got %v", err)
	}
}

func TestMemoryRepositoryMarkSentIsMonotonic(t *testing.T) {
	ctx := context.Background()
	repo := newClockedRepo()
	n, _ := repo.Create(ctx, "t", "b", KindInfo, AudienceAll)

	if err := repo.MarkSent(ctx, n.ID, true, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := repo.MarkSent(ctx, n.ID, false, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := repo.Get(ctx, n.ID)
	if !got.SentViaMessagingChannel || !got.SentViaEmailChannel {
		t.Fatalf("expected both flags set: %+v", got)
	}
	if got.SentAt == nil {
		t.Fatalf("expected sentAt to be set")
	}
	if got.IsRead {
		t.Fatalf("MarkSent must not touch read state")
	}
}
