package notification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps notifications in process. It backs tests and local
// runs without a database.
type MemoryRepository struct {
	mu    sync.RWMutex
	items map[string]Notification
	now   func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		items: make(map[string]Notification),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryRepository) Create(_ context.Context, title, body string, kind Kind, audience Audience) (Notification, error) {
	n := Notification{
		ID:        uuid.NewString(),
		Title:     title,
		Body:      body,
		Kind:      ParseKind(string(kind)),
		Audience:  ParseAudience(string(audience)),
		CreatedAt: r.now(),
	}
	r.mu.Lock()
	r.items[n.ID] = n
	r.mu.Unlock()
	return n, nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.items[id]
	if !ok {
		return Notification{}, ErrNotFound
	}
	return n, nil
}

func (r *MemoryRepository) List(_ context.Context, kind *Kind) ([]Notification, error) {
	r.mu.RLock()
	out := make([]Notification, 0, len(r.items))
	for _, n := range r.items {
		if kind != nil && n.Kind != *kind {
			continue
		}
		out = append(out, n)
	}
	r.mu.RUnlock()
	SortForDisplay(out)
	return out, nil
}

func (r *MemoryRepository) MarkRead(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.items[id]
	if !ok {
		return false, nil
	}
	n.IsRead = true
	r.items[id] = n
	return true, nil
}

func (r *MemoryRepository) Delete(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return false, nil
	}
	delete(r.items, id)
	return true, nil
}

func (r *MemoryRepository) MarkSent(_ context.Context, id string, messagingSent, emailSent bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.items[id]
	if !ok {
		return ErrNotFound
	}
	n.SentViaMessagingChannel = n.SentViaMessagingChannel || messagingSent
	n.SentViaEmailChannel = n.SentViaEmailChannel || emailSent
	sentAt := r.now()
	n.SentAt = &sentAt
	r.items[id] = n
	return nil
}
