package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/humanflow/channel"
	"github.com/BaSui01/humanflow/internal/metrics"
	"github.com/BaSui01/humanflow/store"
	"github.com/BaSui01/humanflow/types"
)

// pendingInteraction is the in-memory record of one in-flight interaction.
// Its presence in the pending map is the claim token for exactly-once
// resolution: whichever completion path pops it first wins, the loser is a
// silent no-op.
type pendingInteraction struct {
	interaction *types.Interaction
	channelName string
	timer       *time.Timer
	waiter      *Waiter
}

// Manager orchestrates interactions across channels and the durable store.
// Create one per process with New and pass it explicitly to anything that
// dispatches interactions.
type Manager struct {
	store   store.Store
	logger  *zap.Logger
	metrics *metrics.Collector

	defaultTimeout time.Duration
	ttlBuffer      time.Duration
	resultTTL      time.Duration
	ownsStore      bool

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	channels map[string]channel.Channel
	pending  map[string]*pendingInteraction
	closed   bool

	// respMu serializes the load-append-save cycle of response ingestion so
	// concurrent answers to the same interaction cannot drop each other.
	respMu sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithMetrics attaches a metrics collector. A nil collector is a no-op.
func WithMetrics(c *metrics.Collector) Option {
	return func(m *Manager) { m.metrics = c }
}

// WithDefaultTimeout overrides the timeout applied to interactions that do
// not set their own.
func WithDefaultTimeout(d time.Duration) Option {
	return func(m *Manager) { m.defaultTimeout = d }
}

// WithTTLBuffer overrides how long an interaction record outlives its own
// timeout in the store.
func WithTTLBuffer(d time.Duration) Option {
	return func(m *Manager) { m.ttlBuffer = d }
}

// WithResultTTL overrides how long results and response lists stay in the
// store for late-polling async callers.
func WithResultTTL(d time.Duration) Option {
	return func(m *Manager) { m.resultTTL = d }
}

// WithOwnedStore makes Close also close the store. Used when the manager
// constructed its own store rather than borrowing the caller's.
func WithOwnedStore() Option {
	return func(m *Manager) { m.ownsStore = true }
}

// New creates a Manager on top of the given store.
func New(st store.Store, logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		store:          st,
		logger:         logger.With(zap.String("component", "interaction_manager")),
		defaultTimeout: types.DefaultTimeout,
		ttlBuffer:      store.DefaultTTLBuffer,
		resultTTL:      store.DefaultLongTTL,
		ctx:            ctx,
		cancel:         cancel,
		channels:       make(map[string]channel.Channel),
		pending:        make(map[string]*pendingInteraction),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RegisterChannel adds a delivery channel to the registry and installs the
// manager's response ingestion callback on it.
func (m *Manager) RegisterChannel(ch channel.Channel) {
	m.mu.Lock()
	m.channels[ch.Name()] = ch
	m.mu.Unlock()

	ch.RegisterResponseHandler(m.ReceiveResponse)
	m.logger.Info("channel registered", zap.String("channel", ch.Name()))
}

// Request dispatches the interaction and blocks until a result is available:
// consensus reached, timeout policy resolved, or the manager closed. Expected
// terminal states come back as a well-formed Result, never an error; only
// infrastructure failures and ctx cancellation return errors.
func (m *Manager) Request(ctx context.Context, in *types.Interaction, channelName string) (*types.Result, error) {
	w, err := m.RegisterAndSend(ctx, in, channelName)
	if err != nil {
		return nil, err
	}

	select {
	case result := <-w.Done():
		return result, nil
	case <-ctx.Done():
		m.abandon(in.ID)
		return nil, ctx.Err()
	}
}

// RegisterAndSend persists and dispatches the interaction, then returns the
// completion signal instead of blocking. The signal is registered before
// dispatch because a channel may capture a human's answer synchronously
// during delivery.
func (m *Manager) RegisterAndSend(ctx context.Context, in *types.Interaction, channelName string) (*Waiter, error) {
	ch, err := m.prepare(in, channelName)
	if err != nil {
		return nil, err
	}

	w := newWaiter(in.ID)
	if err := m.track(ctx, in, channelName, w); err != nil {
		return nil, err
	}
	m.dispatch(ctx, in, ch)
	return w, nil
}

// RequestAsync persists and dispatches the interaction and returns its id
// immediately. No in-memory signal is kept: on expiry the timeout handler
// persists a Result and publishes a completion event, and the caller polls
// GetResult or subscribes to SubscribeCompletions.
func (m *Manager) RequestAsync(ctx context.Context, in *types.Interaction, channelName string) (string, error) {
	ch, err := m.prepare(in, channelName)
	if err != nil {
		return "", err
	}

	if err := m.track(ctx, in, channelName, nil); err != nil {
		return "", err
	}
	m.dispatch(ctx, in, ch)
	return in.ID, nil
}

// GetResult loads the persisted result of an interaction, returning
// store.ErrNotFound while it is still unresolved or after the record expired.
func (m *Manager) GetResult(ctx context.Context, id string) (*types.Result, error) {
	return m.store.GetResult(ctx, id)
}

// SubscribeCompletions exposes the store's completion-event topic for
// suspend/resume callers.
func (m *Manager) SubscribeCompletions(ctx context.Context) (<-chan *types.CompletionEvent, func(), error) {
	return m.store.SubscribeCompletions(ctx)
}

// PendingInteractions returns the ids of interactions currently in flight in
// this process.
func (m *Manager) PendingInteractions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.pending))
	for id := range m.pending {
		ids = append(ids, id)
	}
	return ids
}

// Ping checks the health of the backing store.
func (m *Manager) Ping(ctx context.Context) error {
	return m.store.Ping(ctx)
}

// ReceiveResponse ingests one human's answer. Channels call this through the
// registered response handler. Responses for unknown, expired, or already
// resolved interactions are dropped silently; non-target respondents,
// incompatible types, and duplicate respondents are logged and dropped. Only
// store failures return an error.
func (m *Manager) ReceiveResponse(ctx context.Context, resp *types.Response) error {
	in, err := m.store.GetInteraction(ctx, resp.InteractionID)
	if errors.Is(err, store.ErrNotFound) {
		// Expected under normal TTL expiry races.
		m.logger.Debug("dropping response for unknown interaction",
			zap.String("interaction_id", resp.InteractionID),
			zap.String("respondent", resp.Respondent),
		)
		m.metrics.ResponseIngested(metrics.OutcomeUnknown)
		return nil
	}
	if err != nil {
		return types.NewError(types.ErrStoreUnavailable, "load interaction").WithCause(err).WithRetryable(true)
	}

	if in.Status.IsTerminal() || in.Status == types.StatusEscalated {
		// Terminal states have no outgoing transitions; the record only
		// lingers for its TTL buffer.
		m.logger.Debug("dropping response for resolved interaction",
			zap.String("interaction_id", in.ID),
			zap.String("respondent", resp.Respondent),
			zap.String("status", string(in.Status)),
		)
		m.metrics.ResponseIngested(metrics.OutcomeResolved)
		return nil
	}

	if !isTarget(in, resp.Respondent) {
		m.logger.Warn("dropping response from non-target respondent",
			zap.String("interaction_id", in.ID),
			zap.String("respondent", resp.Respondent),
		)
		m.metrics.ResponseIngested(metrics.OutcomeNonTarget)
		return nil
	}

	if !resp.Type.CompatibleWith(in.Type) {
		m.logger.Warn("dropping incompatible response",
			zap.String("interaction_id", in.ID),
			zap.String("respondent", resp.Respondent),
			zap.String("interaction_type", string(in.Type)),
			zap.String("response_type", string(resp.Type)),
		)
		m.metrics.ResponseIngested(metrics.OutcomeIncompatible)
		return nil
	}

	m.respMu.Lock()
	defer m.respMu.Unlock()

	// Always reload the accumulated list from the store, never from memory;
	// this is what makes multi-human consensus crash-safe across restarts.
	responses, err := m.store.GetResponses(ctx, in.ID)
	if err != nil {
		return types.NewError(types.ErrStoreUnavailable, "load responses").WithCause(err).WithRetryable(true)
	}
	for _, r := range responses {
		if r.Respondent == resp.Respondent {
			m.logger.Warn("dropping duplicate response",
				zap.String("interaction_id", in.ID),
				zap.String("respondent", resp.Respondent),
			)
			m.metrics.ResponseIngested(metrics.OutcomeDuplicate)
			return nil
		}
	}

	responses = append(responses, resp)
	if err := m.store.SaveResponses(ctx, in.ID, responses, m.resultTTL); err != nil {
		return types.NewError(types.ErrStoreUnavailable, "save responses").WithCause(err).WithRetryable(true)
	}
	m.metrics.ResponseIngested(metrics.OutcomeAccepted)

	outcome := evaluateConsensus(in, responses)
	if !outcome.reached {
		in.Status = types.StatusPartial
		if err := m.store.SaveInteraction(ctx, in, in.Timeout+m.ttlBuffer); err != nil {
			m.logger.Warn("failed to persist partial status",
				zap.String("interaction_id", in.ID), zap.Error(err))
		}
		return nil
	}

	result := &types.Result{
		InteractionID:     in.ID,
		Status:            types.StatusCompleted,
		Responses:         responses,
		ConsolidatedValue: outcome.value,
		CreatedAt:         time.Now().UTC(),
	}
	m.resolve(ctx, in, result)
	return nil
}

// Close cancels all outstanding timers and fails every outstanding local
// completion signal with a CANCELLED result. It is safe to call twice.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	outstanding := m.pending
	m.pending = make(map[string]*pendingInteraction)
	m.mu.Unlock()

	m.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for id, p := range outstanding {
		if p.timer != nil {
			p.timer.Stop()
		}
		result := &types.Result{
			InteractionID: id,
			Status:        types.StatusCancelled,
			CreatedAt:     time.Now().UTC(),
		}
		if err := m.store.SaveResult(ctx, result, m.resultTTL); err != nil {
			m.logger.Debug("failed to persist cancelled result on close",
				zap.String("interaction_id", id), zap.Error(err))
		}
		if p.waiter != nil {
			p.waiter.ch <- result
		}
		m.publishCompletion(ctx, p.interaction)
	}

	m.logger.Info("interaction manager closed", zap.Int("cancelled", len(outstanding)))

	if m.ownsStore {
		return m.store.Close()
	}
	return nil
}

// prepare validates the interaction, applies defaults, and resolves the
// target channel.
func (m *Manager) prepare(in *types.Interaction, channelName string) (channel.Channel, error) {
	if in == nil {
		return nil, types.NewError(types.ErrInvalidInteraction, "interaction is nil")
	}
	if in.Timeout <= 0 {
		in.Timeout = m.defaultTimeout
	}
	if in.Status == "" {
		in.Status = types.StatusPending
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now().UTC()
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, types.NewError(types.ErrManagerClosed, "manager is closed")
	}
	ch, ok := m.channels[channelName]
	if !ok {
		return nil, types.NewError(types.ErrChannelNotRegistered,
			fmt.Sprintf("no channel registered under %q", channelName))
	}
	return ch, nil
}

// track persists the interaction and registers its pending entry with an
// armed timeout timer.
func (m *Manager) track(ctx context.Context, in *types.Interaction, channelName string, w *Waiter) error {
	if err := m.store.SaveInteraction(ctx, in, in.Timeout+m.ttlBuffer); err != nil {
		return types.NewError(types.ErrStoreUnavailable, "persist interaction").WithCause(err).WithRetryable(true)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return types.NewError(types.ErrManagerClosed, "manager is closed")
	}
	p := &pendingInteraction{interaction: in, channelName: channelName, waiter: w}
	p.timer = time.AfterFunc(in.Timeout, func() { m.onTimeout(in, channelName) })
	m.pending[in.ID] = p
	m.mu.Unlock()

	m.metrics.InteractionDispatched(string(in.Type), string(in.ConsensusMode))
	return nil
}

// dispatch fans the interaction out to every target recipient. A failed
// delivery is logged per recipient and never aborts the interaction; the
// timer still resolves it if nobody answers.
func (m *Manager) dispatch(ctx context.Context, in *types.Interaction, ch channel.Channel) {
	g, gctx := errgroup.WithContext(ctx)
	var delivered int64

	for _, recipient := range in.TargetHumans {
		recipient := recipient
		g.Go(func() error {
			ok, err := ch.SendInteraction(gctx, in, recipient)
			if err != nil || !ok {
				m.logger.Warn("delivery failed",
					zap.String("interaction_id", in.ID),
					zap.String("channel", ch.Name()),
					zap.String("recipient", recipient),
					zap.Error(err),
				)
				return nil // collect every recipient, never cancel the group
			}
			atomic.AddInt64(&delivered, 1)
			return nil
		})
	}
	_ = g.Wait() // goroutines always return nil

	if atomic.LoadInt64(&delivered) > 0 {
		m.markDelivered(ctx, in)
	}

	m.logger.Info("interaction dispatched",
		zap.String("interaction_id", in.ID),
		zap.String("channel", ch.Name()),
		zap.Int("recipients", len(in.TargetHumans)),
		zap.Int64("delivered", atomic.LoadInt64(&delivered)),
	)
}

// isTarget reports whether the respondent is one of the interaction's target
// recipients. Only target votes count toward consensus thresholds.
func isTarget(in *types.Interaction, respondent string) bool {
	for _, target := range in.TargetHumans {
		if target == respondent {
			return true
		}
	}
	return false
}

// markDelivered upgrades PENDING to DELIVERED. The reload guards against a
// synchronous response having already advanced the status during dispatch,
// and respMu keeps an asynchronous one from being overwritten between the
// reload and the save.
func (m *Manager) markDelivered(ctx context.Context, in *types.Interaction) {
	m.respMu.Lock()
	defer m.respMu.Unlock()

	current, err := m.store.GetInteraction(ctx, in.ID)
	if err != nil || current.Status != types.StatusPending {
		return
	}
	current.Status = types.StatusDelivered
	if err := m.store.SaveInteraction(ctx, current, current.Timeout+m.ttlBuffer); err != nil {
		m.logger.Warn("failed to persist delivered status",
			zap.String("interaction_id", in.ID), zap.Error(err))
	}
}

// claim atomically takes ownership of an in-flight interaction, stopping its
// timer. It returns false when another completion path won the race.
func (m *Manager) claim(id string) (*Waiter, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pending[id]
	if !ok {
		return nil, false
	}
	delete(m.pending, id)
	if p.timer != nil {
		p.timer.Stop()
	}
	return p.waiter, true
}

// abandon drops the in-memory state of an interaction whose caller gave up
// waiting. The durable records stay, so late async observers can still find
// whatever was persisted; there is just no local signal or timer anymore.
func (m *Manager) abandon(id string) {
	m.claim(id)
}

// resolve claims the interaction and finishes it. Returns false when it was
// already resolved by the other completion path.
func (m *Manager) resolve(ctx context.Context, in *types.Interaction, result *types.Result) bool {
	w, claimed := m.claim(in.ID)
	if !claimed {
		m.logger.Debug("interaction already resolved",
			zap.String("interaction_id", in.ID))
		return false
	}
	m.finish(ctx, in, result, w)
	return true
}

// finish persists the result exactly once, fires the local signal when one
// exists, and always publishes the completion event for out-of-process
// observers.
func (m *Manager) finish(ctx context.Context, in *types.Interaction, result *types.Result, w *Waiter) {
	if err := m.store.SaveResult(ctx, result, m.resultTTL); err != nil {
		m.logger.Error("failed to persist result",
			zap.String("interaction_id", in.ID), zap.Error(err))
	}

	in.Status = result.Status
	// The terminal interaction record only needs to outlive stragglers.
	if err := m.store.SaveInteraction(ctx, in, m.ttlBuffer); err != nil {
		m.logger.Warn("failed to persist terminal status",
			zap.String("interaction_id", in.ID), zap.Error(err))
	}

	if w != nil {
		w.ch <- result
	}
	m.publishCompletion(ctx, in)

	m.metrics.InteractionResolved(string(result.Status), string(in.ConsensusMode), time.Since(in.CreatedAt))
	m.logger.Info("interaction resolved",
		zap.String("interaction_id", in.ID),
		zap.String("status", string(result.Status)),
		zap.Bool("timed_out", result.TimedOut),
		zap.Bool("escalated", result.Escalated),
	)
}

func (m *Manager) publishCompletion(ctx context.Context, in *types.Interaction) {
	if in == nil {
		return
	}
	event := &types.CompletionEvent{
		InteractionID: in.ID,
		SourceAgent:   in.SourceAgent,
		SourceFlow:    in.SourceFlow,
		SourceNode:    in.SourceNode,
	}
	if err := m.store.PublishCompletion(ctx, event); err != nil {
		m.logger.Error("failed to publish completion event",
			zap.String("interaction_id", in.ID), zap.Error(err))
	}
}
