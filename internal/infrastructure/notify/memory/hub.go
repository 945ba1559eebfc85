// Package memory provides in-process job signals and status notifications for
// deployments without NATS. Delivery only reaches the current process.
package memory

import (
	"context"
	"sync"

	"github.com/lawknot/legal-assistant/internal/core/domain"
)

type Hub struct {
	mu       sync.Mutex
	nextID   uint64
	watchers map[string]map[uint64]chan domain.DocumentStatus
	jobs     map[uint64]chan string
}

func NewHub() *Hub {
	return &Hub{
		watchers: make(map[string]map[uint64]chan domain.DocumentStatus),
		jobs:     make(map[uint64]chan string),
	}
}

func (h *Hub) PublishStatus(_ context.Context, documentID string, status domain.DocumentStatus) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.watchers[documentID] {
		select {
		case ch <- status:
		default:
		}
	}
	return nil
}

func (h *Hub) Watch(_ context.Context, documentID string) (<-chan domain.DocumentStatus, func(), error) {
	ch := make(chan domain.DocumentStatus, 1)

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	if h.watchers[documentID] == nil {
		h.watchers[documentID] = make(map[uint64]chan domain.DocumentStatus)
	}
	h.watchers[documentID][id] = ch
	h.mu.Unlock()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.watchers[documentID], id)
			if len(h.watchers[documentID]) == 0 {
				delete(h.watchers, documentID)
			}
			h.mu.Unlock()
		})
	}
	return ch, stop, nil
}

// PublishJobEnqueued wakes one idle subscriber, if any. A full buffer means
// the subscriber already has a pending wake-up.
func (h *Hub) PublishJobEnqueued(_ context.Context, documentID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.jobs {
		select {
		case ch <- documentID:
			return nil
		default:
		}
	}
	return nil
}

func (h *Hub) SubscribeJobEnqueued(ctx context.Context, handler func(context.Context, string)) error {
	ch := make(chan string, 1)

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.jobs[id] = ch
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.jobs, id)
		h.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case documentID := <-ch:
			handler(ctx, documentID)
		}
	}
}

func (h *Hub) watcherCount(documentID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.watchers[documentID])
}
