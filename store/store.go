package store

import (
	"context"
	"errors"
	"time"

	"github.com/BaSui01/humanflow/types"
)

// Common errors
var (
	ErrNotFound    = errors.New("not found")
	ErrStoreClosed = errors.New("store is closed")
)

// Default TTLs. An interaction record lives slightly longer than its own
// timeout; responses and results stay around long enough for late-polling
// async callers.
const (
	DefaultTTLBuffer  = 5 * time.Minute
	DefaultLongTTL    = 24 * time.Hour
	DefaultKeyPrefix  = "humanflow:"
	completionChannel = "completions"
)

// Store is the durable backing of the interaction manager. Keys:
//
//	interaction:{id} -> Interaction  (TTL = timeout + buffer)
//	responses:{id}   -> []Response   (long TTL)
//	result:{id}      -> Result       (long TTL)
//
// plus one completion-event topic.
type Store interface {
	// SaveInteraction persists an interaction with the given TTL,
	// overwriting any previous record.
	SaveInteraction(ctx context.Context, interaction *types.Interaction, ttl time.Duration) error

	// GetInteraction loads an interaction, returning ErrNotFound when the
	// record is absent or expired.
	GetInteraction(ctx context.Context, id string) (*types.Interaction, error)

	// SaveResponses persists the full accumulated response list for an
	// interaction. The list is always rewritten as a whole; callers reload
	// it before appending.
	SaveResponses(ctx context.Context, id string, responses []*types.Response, ttl time.Duration) error

	// GetResponses loads the accumulated response list. A missing record is
	// an empty list, not an error.
	GetResponses(ctx context.Context, id string) ([]*types.Response, error)

	// SaveResult persists a terminal result with the given TTL.
	SaveResult(ctx context.Context, result *types.Result, ttl time.Duration) error

	// GetResult loads a result, returning ErrNotFound when absent.
	GetResult(ctx context.Context, id string) (*types.Result, error)

	// PublishCompletion broadcasts a completion event to all subscribers.
	PublishCompletion(ctx context.Context, event *types.CompletionEvent) error

	// SubscribeCompletions returns a channel of completion events and a
	// cancel function that releases the subscription.
	SubscribeCompletions(ctx context.Context) (<-chan *types.CompletionEvent, func(), error)

	// Ping checks if the store is healthy.
	Ping(ctx context.Context) error

	// Close closes the store and releases resources.
	Close() error
}
