package violation

import (
	"context"
	"sync"
	"time"

	"github.com/ChauDoan21165/MercyB-sub006/internal/moderation"
)

// MemoryStore is an in-process moderation.Store used by tests and local
// development. It honors the same per-user serialization contract as the
// PostgreSQL store: Update holds a per-user mutex for the duration of fn.
type MemoryStore struct {
	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	events map[string][]moderation.ViolationEvent
	status map[string]moderation.Status
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		locks:  make(map[string]*sync.Mutex),
		events: make(map[string][]moderation.ViolationEvent),
		status: make(map[string]moderation.Status),
	}
}

// Update serializes fn per user via a per-user mutex.
func (s *MemoryStore) Update(ctx context.Context, userID string, fn func(tx moderation.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	lock, ok := s.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[userID] = lock
	}
	s.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()
	return fn(s)
}

// GetStatus returns a copy of the user's status, or nil if absent.
func (s *MemoryStore) GetStatus(ctx context.Context, userID string) (*moderation.Status, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	status, ok := s.status[userID]
	if !ok {
		return nil, nil
	}
	statusCopy := status
	return &statusCopy, nil
}

// UpsertStatus writes the user's status.
func (s *MemoryStore) UpsertStatus(ctx context.Context, status moderation.Status) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.status[status.UserID] = status
	return nil
}

// AppendViolation records one violation event.
func (s *MemoryStore) AppendViolation(ctx context.Context, event moderation.ViolationEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.events[event.UserID] = append(s.events[event.UserID], event)
	return nil
}

// CountViolationsSince counts the user's events with occurred_at >= since.
func (s *MemoryStore) CountViolationsSince(ctx context.Context, userID string, since time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, event := range s.events[userID] {
		if !event.OccurredAt.Before(since) {
			count++
		}
	}
	return count, nil
}

// Events returns a copy of the user's violation log, oldest first.
func (s *MemoryStore) Events(userID string) []moderation.ViolationEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := make([]moderation.ViolationEvent, len(s.events[userID]))
	copy(events, s.events[userID])
	return events
}
