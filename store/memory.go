package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/humanflow/types"
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryStore is an in-process implementation of Store for development and
// testing. Records are kept as their JSON encodings so reads always return
// fresh copies, matching the reload-before-append semantics of the Redis
// backend.
type MemoryStore struct {
	mu          sync.RWMutex
	entries     map[string]memoryEntry
	subscribers map[int]chan *types.CompletionEvent
	nextSubID   int
	closed      bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:     make(map[string]memoryEntry),
		subscribers: make(map[int]chan *types.CompletionEvent),
	}
}

func (s *MemoryStore) set(key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	entry := memoryEntry{data: data}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	s.entries[key] = entry
	return nil
}

func (s *MemoryStore) get(key string, dest any) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrStoreClosed
	}
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok || entry.expired(time.Now()) {
		return ErrNotFound
	}
	if err := json.Unmarshal(entry.data, dest); err != nil {
		return fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return nil
}

// SaveInteraction implements Store.
func (s *MemoryStore) SaveInteraction(ctx context.Context, interaction *types.Interaction, ttl time.Duration) error {
	return s.set("interaction:"+interaction.ID, interaction, ttl)
}

// GetInteraction implements Store.
func (s *MemoryStore) GetInteraction(ctx context.Context, id string) (*types.Interaction, error) {
	var interaction types.Interaction
	if err := s.get("interaction:"+id, &interaction); err != nil {
		return nil, err
	}
	return &interaction, nil
}

// SaveResponses implements Store.
func (s *MemoryStore) SaveResponses(ctx context.Context, id string, responses []*types.Response, ttl time.Duration) error {
	return s.set("responses:"+id, responses, ttl)
}

// GetResponses implements Store.
func (s *MemoryStore) GetResponses(ctx context.Context, id string) ([]*types.Response, error) {
	var responses []*types.Response
	err := s.get("responses:"+id, &responses)
	if err == ErrNotFound {
		return []*types.Response{}, nil
	}
	if err != nil {
		return nil, err
	}
	return responses, nil
}

// SaveResult implements Store.
func (s *MemoryStore) SaveResult(ctx context.Context, result *types.Result, ttl time.Duration) error {
	return s.set("result:"+result.InteractionID, result, ttl)
}

// GetResult implements Store.
func (s *MemoryStore) GetResult(ctx context.Context, id string) (*types.Result, error) {
	var result types.Result
	if err := s.get("result:"+id, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// PublishCompletion implements Store. Slow subscribers are skipped rather
// than blocking the publisher.
func (s *MemoryStore) PublishCompletion(ctx context.Context, event *types.CompletionEvent) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	for _, sub := range s.subscribers {
		select {
		case sub <- event:
		default:
		}
	}
	return nil
}

// SubscribeCompletions implements Store.
func (s *MemoryStore) SubscribeCompletions(ctx context.Context) (<-chan *types.CompletionEvent, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, nil, ErrStoreClosed
	}

	id := s.nextSubID
	s.nextSubID++
	ch := make(chan *types.CompletionEvent, 16)
	s.subscribers[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(sub)
		}
	}
	return ch, cancel, nil
}

// Ping implements Store.
func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for id, sub := range s.subscribers {
		delete(s.subscribers, id)
		close(sub)
	}
	s.entries = nil
	return nil
}

var _ Store = (*MemoryStore)(nil)
