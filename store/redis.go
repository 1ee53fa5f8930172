package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/humanflow/types"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisConfig contains Redis-specific configuration.
type RedisConfig struct {
	// Addr is the Redis server address, host:port.
	Addr string `json:"addr" yaml:"addr"`

	// Password is the Redis password (optional).
	Password string `json:"password" yaml:"password"`

	// DB is the Redis database number.
	DB int `json:"db" yaml:"db"`

	// PoolSize is the connection pool size.
	PoolSize int `json:"pool_size" yaml:"pool_size"`

	// MinIdleConns is the minimum number of idle connections.
	MinIdleConns int `json:"min_idle_conns" yaml:"min_idle_conns"`

	// KeyPrefix is the prefix for all Redis keys.
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`
}

// DefaultRedisConfig returns the default Redis configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		KeyPrefix:    DefaultKeyPrefix,
	}
}

// RedisStore is a Redis-based implementation of Store, suitable for
// distributed deployments where interactions must survive process restarts.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	logger    *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(config RedisConfig, logger *zap.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	keyPrefix := config.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}

	s := &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
		logger:    logger.With(zap.String("component", "redis_store")),
	}

	s.logger.Info("redis store initialized",
		zap.String("addr", config.Addr),
		zap.Int("pool_size", config.PoolSize),
	)

	return s, nil
}

func (s *RedisStore) interactionKey(id string) string { return s.keyPrefix + "interaction:" + id }
func (s *RedisStore) responsesKey(id string) string   { return s.keyPrefix + "responses:" + id }
func (s *RedisStore) resultKey(id string) string      { return s.keyPrefix + "result:" + id }
func (s *RedisStore) completionTopic() string         { return s.keyPrefix + completionChannel }

func (s *RedisStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

func (s *RedisStore) setJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		s.logger.Error("store set failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("store set failed: %w", err)
	}
	return nil
}

func (s *RedisStore) getJSON(ctx context.Context, key string, dest any) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	data, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return ErrNotFound
	}
	if err != nil {
		s.logger.Error("store get failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("store get failed: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return nil
}

// SaveInteraction implements Store.
func (s *RedisStore) SaveInteraction(ctx context.Context, interaction *types.Interaction, ttl time.Duration) error {
	return s.setJSON(ctx, s.interactionKey(interaction.ID), interaction, ttl)
}

// GetInteraction implements Store.
func (s *RedisStore) GetInteraction(ctx context.Context, id string) (*types.Interaction, error) {
	var interaction types.Interaction
	if err := s.getJSON(ctx, s.interactionKey(id), &interaction); err != nil {
		return nil, err
	}
	return &interaction, nil
}

// SaveResponses implements Store.
func (s *RedisStore) SaveResponses(ctx context.Context, id string, responses []*types.Response, ttl time.Duration) error {
	return s.setJSON(ctx, s.responsesKey(id), responses, ttl)
}

// GetResponses implements Store.
func (s *RedisStore) GetResponses(ctx context.Context, id string) ([]*types.Response, error) {
	var responses []*types.Response
	err := s.getJSON(ctx, s.responsesKey(id), &responses)
	if err == ErrNotFound {
		return []*types.Response{}, nil
	}
	if err != nil {
		return nil, err
	}
	return responses, nil
}

// SaveResult implements Store.
func (s *RedisStore) SaveResult(ctx context.Context, result *types.Result, ttl time.Duration) error {
	return s.setJSON(ctx, s.resultKey(result.InteractionID), result, ttl)
}

// GetResult implements Store.
func (s *RedisStore) GetResult(ctx context.Context, id string) (*types.Result, error) {
	var result types.Result
	if err := s.getJSON(ctx, s.resultKey(id), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// PublishCompletion implements Store.
func (s *RedisStore) PublishCompletion(ctx context.Context, event *types.CompletionEvent) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal completion event: %w", err)
	}
	if err := s.client.Publish(ctx, s.completionTopic(), data).Err(); err != nil {
		s.logger.Error("completion publish failed",
			zap.String("interaction_id", event.InteractionID),
			zap.Error(err),
		)
		return fmt.Errorf("completion publish failed: %w", err)
	}
	return nil
}

// SubscribeCompletions implements Store. Events that fail to decode are
// logged and skipped.
func (s *RedisStore) SubscribeCompletions(ctx context.Context) (<-chan *types.CompletionEvent, func(), error) {
	if err := s.checkOpen(); err != nil {
		return nil, nil, err
	}

	pubsub := s.client.Subscribe(ctx, s.completionTopic())
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, nil, fmt.Errorf("completion subscribe failed: %w", err)
	}

	out := make(chan *types.CompletionEvent, 16)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			var event types.CompletionEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				s.logger.Warn("dropping malformed completion event", zap.Error(err))
				continue
			}
			select {
			case out <- &event:
			case <-ctx.Done():
				return
			}
		}
	}()

	cancel := func() { pubsub.Close() }
	return out, cancel, nil
}

// Ping implements Store.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.client.Ping(ctx).Err()
}

// Close implements Store.
func (s *RedisStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.logger.Info("closing redis store")
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
