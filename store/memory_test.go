package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/humanflow/types"
)

func TestMemoryStore_InteractionRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	in := types.NewInteraction("q", types.InteractionFreeText, []string{"u1"})
	require.NoError(t, s.SaveInteraction(ctx, in, time.Minute))

	loaded, err := s.GetInteraction(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, in.ID, loaded.ID)

	// Reads return copies, not aliases.
	loaded.Question = "mutated"
	again, err := s.GetInteraction(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, "q", again.Question)
}

func TestMemoryStore_TTLExpiry(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	in := types.NewInteraction("q", types.InteractionFreeText, []string{"u1"})
	require.NoError(t, s.SaveInteraction(ctx, in, 20*time.Millisecond))

	_, err := s.GetInteraction(ctx, in.ID)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)

	_, err = s.GetInteraction(ctx, in.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ZeroTTLNeverExpires(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	result := &types.Result{InteractionID: "int-1", Status: types.StatusCompleted}
	require.NoError(t, s.SaveResult(ctx, result, 0))

	time.Sleep(20 * time.Millisecond)

	_, err := s.GetResult(ctx, "int-1")
	assert.NoError(t, err)
}

func TestMemoryStore_ResponsesMissingIsEmpty(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	responses, err := s.GetResponses(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, responses)
}

func TestMemoryStore_CompletionPubSub(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	events, cancel, err := s.SubscribeCompletions(ctx)
	require.NoError(t, err)

	event := &types.CompletionEvent{InteractionID: "int-1"}
	require.NoError(t, s.PublishCompletion(ctx, event))

	select {
	case got := <-events:
		assert.Equal(t, event, got)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for completion event")
	}

	// After cancel the subscriber channel closes and publishing still works.
	cancel()
	_, open := <-events
	assert.False(t, open)
	assert.NoError(t, s.PublishCompletion(ctx, event))
}

func TestMemoryStore_Close(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	events, _, err := s.SubscribeCompletions(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Close())

	_, open := <-events
	assert.False(t, open)

	assert.ErrorIs(t, s.Ping(ctx), ErrStoreClosed)
	in := types.NewInteraction("q", types.InteractionFreeText, []string{"u1"})
	assert.ErrorIs(t, s.SaveInteraction(ctx, in, time.Minute), ErrStoreClosed)
	_, _, err = s.SubscribeCompletions(ctx)
	assert.ErrorIs(t, err, ErrStoreClosed)
}
