// Package humanflow provides a top-level convenience entry point for creating
// an interaction engine with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/humanflow"
//
//	m, err := humanflow.New(humanflow.WithRedis(store.DefaultRedisConfig()))
//	m, err := humanflow.New() // in-memory, for tests and local development
//
// The returned manager still needs at least one delivery channel registered
// before it can dispatch interactions.
package humanflow

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/BaSui01/humanflow/config"
	"github.com/BaSui01/humanflow/internal/metrics"
	"github.com/BaSui01/humanflow/manager"
	"github.com/BaSui01/humanflow/store"
)

// Option configures the engine created by New.
type Option func(*options)

type options struct {
	logger *zap.Logger
	store  store.Store
	redis  *store.RedisConfig

	metricsNamespace string
	metricsRegistry  prometheus.Registerer

	managerOpts []manager.Option
}

// WithLogger sets a custom zap logger. Defaults to zap.NewNop().
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithStore uses a caller-owned store. The caller keeps responsibility for
// closing it.
func WithStore(st store.Store) Option {
	return func(o *options) { o.store = st }
}

// WithRedis makes the engine create and own a Redis-backed store.
func WithRedis(cfg store.RedisConfig) Option {
	return func(o *options) { o.redis = &cfg }
}

// WithMetrics registers Prometheus collectors under the given namespace. A
// nil registerer uses prometheus.DefaultRegisterer.
func WithMetrics(namespace string, reg prometheus.Registerer) Option {
	return func(o *options) {
		o.metricsNamespace = namespace
		o.metricsRegistry = reg
		if o.metricsNamespace == "" {
			o.metricsNamespace = "humanflow"
		}
	}
}

// WithDefaultTimeout overrides the timeout applied to interactions that do
// not set their own.
func WithDefaultTimeout(d time.Duration) Option {
	return func(o *options) {
		o.managerOpts = append(o.managerOpts, manager.WithDefaultTimeout(d))
	}
}

// WithResultTTL overrides how long results stay readable for async callers.
func WithResultTTL(d time.Duration) Option {
	return func(o *options) {
		o.managerOpts = append(o.managerOpts, manager.WithResultTTL(d))
	}
}

// New creates an interaction manager with minimal configuration. Without
// WithStore or WithRedis it runs on an in-memory store, which is fine for
// tests and single-process use but loses everything on restart.
func New(opts ...Option) (*manager.Manager, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	st := o.store
	managerOpts := o.managerOpts
	if st == nil {
		if o.redis != nil {
			redisStore, err := store.NewRedisStore(*o.redis, o.logger)
			if err != nil {
				return nil, err
			}
			st = redisStore
		} else {
			st = store.NewMemoryStore()
		}
		managerOpts = append(managerOpts, manager.WithOwnedStore())
	}

	if o.metricsNamespace != "" {
		collector := metrics.NewCollector(o.metricsNamespace, o.metricsRegistry, o.logger)
		managerOpts = append(managerOpts, manager.WithMetrics(collector))
	}

	return manager.New(st, o.logger, managerOpts...), nil
}

// NewFromConfig creates an interaction manager from a loaded configuration,
// building the logger and store it describes. The manager owns both.
func NewFromConfig(cfg *config.Config) (*manager.Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := cfg.Log.Build()
	if err != nil {
		return nil, err
	}

	var st store.Store
	switch cfg.Store.Backend {
	case "redis":
		redisStore, err := store.NewRedisStore(store.RedisConfig{
			Addr:         cfg.Store.Redis.Addr,
			Password:     cfg.Store.Redis.Password,
			DB:           cfg.Store.Redis.DB,
			PoolSize:     cfg.Store.Redis.PoolSize,
			MinIdleConns: cfg.Store.Redis.MinIdleConns,
			KeyPrefix:    cfg.Store.Redis.KeyPrefix,
		}, logger)
		if err != nil {
			return nil, err
		}
		st = redisStore
	default:
		st = store.NewMemoryStore()
	}

	return manager.New(st, logger,
		manager.WithOwnedStore(),
		manager.WithDefaultTimeout(cfg.Engine.DefaultTimeout),
		manager.WithTTLBuffer(cfg.Engine.InteractionTTLBuffer),
		manager.WithResultTTL(cfg.Engine.ResultTTL),
	), nil
}
