package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Response ingestion outcomes.
const (
	OutcomeAccepted     = "accepted"
	OutcomeDuplicate    = "duplicate"
	OutcomeIncompatible = "incompatible"
	OutcomeNonTarget    = "non_target"
	OutcomeResolved     = "already_resolved"
	OutcomeUnknown      = "unknown_interaction"
)

// Collector records interaction engine metrics.
type Collector struct {
	interactionsTotal  *prometheus.CounterVec
	resolutionsTotal   *prometheus.CounterVec
	responsesTotal     *prometheus.CounterVec
	timeoutActions     *prometheus.CounterVec
	resolutionDuration *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector creates a metrics collector registered on reg. A nil reg
// falls back to the default Prometheus registerer.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.interactionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interactions_total",
			Help:      "Total number of interactions dispatched",
		},
		[]string{"type", "consensus_mode"},
	)

	c.resolutionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Total number of resolved interactions by terminal status",
		},
		[]string{"status"},
	)

	c.responsesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "responses_total",
			Help:      "Total number of ingested responses by outcome",
		},
		[]string{"outcome"},
	)

	c.timeoutActions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timeout_actions_total",
			Help:      "Total number of fired timeout timers by configured action",
		},
		[]string{"action"},
	)

	c.resolutionDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "resolution_duration_seconds",
			Help:      "Time from interaction creation to resolution",
			Buckets:   prometheus.ExponentialBuckets(0.1, 4, 10),
		},
		[]string{"consensus_mode"},
	)

	return c
}

// InteractionDispatched counts a new interaction entering the engine.
func (c *Collector) InteractionDispatched(interactionType, consensusMode string) {
	if c == nil {
		return
	}
	c.interactionsTotal.WithLabelValues(interactionType, consensusMode).Inc()
}

// InteractionResolved counts a terminal resolution and its latency.
func (c *Collector) InteractionResolved(status, consensusMode string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.resolutionsTotal.WithLabelValues(status).Inc()
	c.resolutionDuration.WithLabelValues(consensusMode).Observe(elapsed.Seconds())
}

// ResponseIngested counts one response ingestion attempt by outcome.
func (c *Collector) ResponseIngested(outcome string) {
	if c == nil {
		return
	}
	c.responsesTotal.WithLabelValues(outcome).Inc()
}

// TimeoutFired counts a fired timeout timer by its configured action.
func (c *Collector) TimeoutFired(action string) {
	if c == nil {
		return
	}
	c.timeoutActions.WithLabelValues(action).Inc()
}
