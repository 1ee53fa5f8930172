package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/humanflow/types"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	config := DefaultRedisConfig()
	config.Addr = mr.Addr()

	s, err := NewRedisStore(config, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return mr, s
}

func TestRedisStore_ConnectFailure(t *testing.T) {
	config := DefaultRedisConfig()
	config.Addr = "localhost:1" // nothing listens here

	s, err := NewRedisStore(config, nil)
	assert.Nil(t, s)
	assert.Error(t, err)
}

func TestRedisStore_InteractionRoundTrip(t *testing.T) {
	_, s := setupTestRedis(t)
	ctx := context.Background()

	in := types.NewInteraction("approve?", types.InteractionApproval, []string{"u1", "u2"})
	in.ConsensusMode = types.ConsensusAllRequired

	require.NoError(t, s.SaveInteraction(ctx, in, time.Minute))

	loaded, err := s.GetInteraction(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, in.ID, loaded.ID)
	assert.Equal(t, in.Question, loaded.Question)
	assert.Equal(t, in.TargetHumans, loaded.TargetHumans)
	assert.Equal(t, in.ConsensusMode, loaded.ConsensusMode)
}

func TestRedisStore_InteractionTTLExpiry(t *testing.T) {
	mr, s := setupTestRedis(t)
	ctx := context.Background()

	in := types.NewInteraction("q", types.InteractionFreeText, []string{"u1"})
	require.NoError(t, s.SaveInteraction(ctx, in, 100*time.Millisecond))

	_, err := s.GetInteraction(ctx, in.ID)
	require.NoError(t, err)

	mr.FastForward(200 * time.Millisecond)

	_, err = s.GetInteraction(ctx, in.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_GetInteractionNotFound(t *testing.T) {
	_, s := setupTestRedis(t)
	_, err := s.GetInteraction(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_ResponsesAccumulate(t *testing.T) {
	_, s := setupTestRedis(t)
	ctx := context.Background()

	// Missing record reads as an empty list.
	responses, err := s.GetResponses(ctx, "int-1")
	require.NoError(t, err)
	assert.Empty(t, responses)

	r1 := types.NewResponse("int-1", "u1", types.InteractionFreeText, "yes")
	require.NoError(t, s.SaveResponses(ctx, "int-1", []*types.Response{r1}, time.Minute))

	responses, err = s.GetResponses(ctx, "int-1")
	require.NoError(t, err)
	require.Len(t, responses, 1)

	r2 := types.NewResponse("int-1", "u2", types.InteractionFreeText, "no")
	require.NoError(t, s.SaveResponses(ctx, "int-1", append(responses, r2), time.Minute))

	responses, err = s.GetResponses(ctx, "int-1")
	require.NoError(t, err)
	require.Len(t, responses, 2)
	assert.Equal(t, "u1", responses[0].Respondent)
	assert.Equal(t, "u2", responses[1].Respondent)
}

func TestRedisStore_ResultRoundTrip(t *testing.T) {
	_, s := setupTestRedis(t)
	ctx := context.Background()

	result := &types.Result{
		InteractionID:     "int-1",
		Status:            types.StatusCompleted,
		ConsolidatedValue: "yes",
		CreatedAt:         time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, s.SaveResult(ctx, result, time.Hour))

	loaded, err := s.GetResult(ctx, "int-1")
	require.NoError(t, err)
	assert.Equal(t, result.Status, loaded.Status)
	assert.Equal(t, "yes", loaded.ConsolidatedValue)

	_, err = s.GetResult(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_CompletionPubSub(t *testing.T) {
	_, s := setupTestRedis(t)
	ctx, cancelCtx := context.WithCancel(context.Background())
	defer cancelCtx()

	events, cancel, err := s.SubscribeCompletions(ctx)
	require.NoError(t, err)
	defer cancel()

	event := &types.CompletionEvent{
		InteractionID: "int-1",
		SourceAgent:   "deployer",
		SourceFlow:    "release",
		SourceNode:    "approve",
	}
	require.NoError(t, s.PublishCompletion(ctx, event))

	select {
	case got := <-events:
		assert.Equal(t, event, got)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for completion event")
	}
}

func TestRedisStore_ClosedOperations(t *testing.T) {
	_, s := setupTestRedis(t)
	require.NoError(t, s.Close())

	ctx := context.Background()
	in := types.NewInteraction("q", types.InteractionFreeText, []string{"u1"})

	assert.ErrorIs(t, s.SaveInteraction(ctx, in, time.Minute), ErrStoreClosed)
	_, err := s.GetInteraction(ctx, in.ID)
	assert.ErrorIs(t, err, ErrStoreClosed)
	assert.ErrorIs(t, s.Ping(ctx), ErrStoreClosed)
	assert.NoError(t, s.Close())
}
