package manager

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/humanflow/types"
)

// onTimeout runs when an interaction's timer expires. If the interaction is
// already resolved the claim inside the chosen path fails and this is a
// no-op.
func (m *Manager) onTimeout(in *types.Interaction, channelName string) {
	ctx := m.ctx

	// Reload the authoritative record; the closure copy may be stale (a
	// retry rewrites the timeout action, responses advance the status).
	if current, err := m.store.GetInteraction(ctx, in.ID); err == nil {
		in = current
	}

	m.metrics.TimeoutFired(string(in.TimeoutAction))
	m.logger.Info("interaction timer expired",
		zap.String("interaction_id", in.ID),
		zap.String("action", string(in.TimeoutAction)),
	)

	switch in.TimeoutAction {
	case types.TimeoutRetry:
		m.retryInteraction(ctx, in, channelName)
	case types.TimeoutEscalate:
		if len(in.EscalationTargets) > 0 {
			m.escalateInteraction(ctx, in, channelName)
			return
		}
		// No escalation targets to try: degrade to cancel/default.
		m.resolveTimeout(ctx, in)
	default:
		m.resolveTimeout(ctx, in)
	}
}

// resolveTimeout terminates the interaction: DEFAULT policy (or an ESCALATE
// without targets) completes it with the configured default response, any
// other policy ends it as a plain timeout.
func (m *Manager) resolveTimeout(ctx context.Context, in *types.Interaction) {
	result := &types.Result{
		InteractionID: in.ID,
		Status:        types.StatusTimeout,
		TimedOut:      true,
		CreatedAt:     time.Now().UTC(),
	}
	if responses, err := m.store.GetResponses(ctx, in.ID); err == nil {
		result.Responses = responses
	}

	useDefault := in.DefaultResponse != nil &&
		(in.TimeoutAction == types.TimeoutDefault || in.TimeoutAction == types.TimeoutEscalate)
	if useDefault {
		result.Status = types.StatusCompleted
		result.ConsolidatedValue = in.DefaultResponse
	}

	m.resolve(ctx, in, result)
}

// retryInteraction re-dispatches the interaction to the same recipients and
// replaces its timer with one bound to a copy whose timeout action is forced
// to CANCEL, so an unanswered interaction retries exactly once and never
// loops. The forced action is persisted too, keeping the policy stable
// across a process restart.
func (m *Manager) retryInteraction(ctx context.Context, in *types.Interaction, channelName string) {
	retry := in.Clone()
	retry.TimeoutAction = types.TimeoutCancel

	m.mu.Lock()
	p, ok := m.pending[in.ID]
	if !ok {
		// Resolved while the timer was firing.
		m.mu.Unlock()
		return
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	p.interaction = retry
	p.timer = time.AfterFunc(retry.Timeout, func() { m.onTimeout(retry, channelName) })
	ch := m.channels[channelName]
	m.mu.Unlock()

	if err := m.store.SaveInteraction(ctx, retry, retry.Timeout+m.ttlBuffer); err != nil {
		m.logger.Warn("failed to persist retry copy",
			zap.String("interaction_id", in.ID), zap.Error(err))
	}

	m.logger.Info("retrying interaction",
		zap.String("interaction_id", in.ID),
		zap.String("channel", channelName),
	)

	if ch != nil {
		m.dispatch(ctx, retry, ch)
	}
}

// escalateInteraction re-routes an unanswered interaction to its escalation
// targets. A fresh interaction runs through the normal synchronous-wait path
// with its own timeout action forced to CANCEL, which structurally bounds
// escalation to one hop; its result is forwarded, flagged escalated, to
// whatever the original caller is waiting on.
func (m *Manager) escalateInteraction(ctx context.Context, in *types.Interaction, channelName string) {
	// Claim the original first so a late response can no longer race us.
	w, claimed := m.claim(in.ID)
	if !claimed {
		return
	}

	in.Status = types.StatusEscalated
	if err := m.store.SaveInteraction(ctx, in, in.Timeout+m.ttlBuffer); err != nil {
		m.logger.Warn("failed to persist escalated status",
			zap.String("interaction_id", in.ID), zap.Error(err))
	}

	esc := in.Clone()
	esc.ID = uuid.New().String()
	esc.TargetHumans = append([]string(nil), in.EscalationTargets...)
	esc.EscalationTargets = nil
	esc.TimeoutAction = types.TimeoutCancel
	esc.Status = types.StatusPending
	esc.CreatedAt = time.Now().UTC()
	if esc.Metadata == nil {
		esc.Metadata = make(map[string]any, 1)
	}
	esc.Metadata["escalated_from"] = in.ID

	m.logger.Info("escalating interaction",
		zap.String("interaction_id", in.ID),
		zap.String("escalation_id", esc.ID),
		zap.Strings("escalation_targets", esc.TargetHumans),
	)

	escResult, err := m.Request(ctx, esc, channelName)
	if err != nil {
		// Manager shutdown or store failure mid-escalation.
		m.logger.Warn("escalation aborted",
			zap.String("interaction_id", in.ID), zap.Error(err))
		escResult = &types.Result{
			InteractionID: esc.ID,
			Status:        types.StatusCancelled,
			CreatedAt:     time.Now().UTC(),
		}
	}

	forwarded := *escResult
	forwarded.InteractionID = in.ID
	forwarded.Escalated = true
	m.finish(ctx, in, &forwarded, w)
}
