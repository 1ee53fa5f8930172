package types

import (
	"time"

	"github.com/google/uuid"
)

// InteractionType classifies what kind of input is requested from a human.
type InteractionType string

const (
	InteractionFreeText     InteractionType = "free_text"
	InteractionSingleChoice InteractionType = "single_choice"
	InteractionMultiChoice  InteractionType = "multi_choice"
	InteractionApproval     InteractionType = "approval"
	InteractionForm         InteractionType = "form"
	InteractionPoll         InteractionType = "poll"
)

// RequiresOptions reports whether the type needs a non-empty option list.
func (t InteractionType) RequiresOptions() bool {
	switch t {
	case InteractionSingleChoice, InteractionMultiChoice, InteractionPoll:
		return true
	}
	return false
}

// Valid reports whether the type is a known interaction type.
func (t InteractionType) Valid() bool {
	switch t {
	case InteractionFreeText, InteractionSingleChoice, InteractionMultiChoice,
		InteractionApproval, InteractionForm, InteractionPoll:
		return true
	}
	return false
}

// InteractionStatus tracks the lifecycle of an interaction.
type InteractionStatus string

const (
	StatusPending   InteractionStatus = "pending"
	StatusDelivered InteractionStatus = "delivered"
	StatusPartial   InteractionStatus = "partial"
	StatusCompleted InteractionStatus = "completed"
	StatusTimeout   InteractionStatus = "timeout"
	StatusEscalated InteractionStatus = "escalated"
	StatusCancelled InteractionStatus = "cancelled"
)

// IsTerminal reports whether the status is final. A terminal result is never
// overwritten.
func (s InteractionStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusTimeout, StatusCancelled:
		return true
	}
	return false
}

// ConsensusMode is the policy for reducing multiple responses to one outcome.
type ConsensusMode string

const (
	ConsensusFirstResponse ConsensusMode = "first_response"
	ConsensusAllRequired   ConsensusMode = "all_required"
	ConsensusMajority      ConsensusMode = "majority"
	ConsensusQuorum        ConsensusMode = "quorum"
)

// TimeoutAction decides what happens when an interaction's timer expires.
type TimeoutAction string

const (
	TimeoutCancel   TimeoutAction = "cancel"
	TimeoutDefault  TimeoutAction = "default"
	TimeoutEscalate TimeoutAction = "escalate"
	TimeoutRetry    TimeoutAction = "retry"
)

// DefaultTimeout is applied when an interaction does not set its own timeout.
const DefaultTimeout = 2 * time.Hour

// ChoiceOption is one selectable answer for choice and poll interactions.
type ChoiceOption struct {
	Key         string         `json:"key"`
	Label       string         `json:"label"`
	Description string         `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Interaction is a single request for human input. Its ID is generated at
// creation and never changes afterwards.
type Interaction struct {
	ID       string          `json:"id"`
	Question string          `json:"question"`
	Context  string          `json:"context,omitempty"`
	Type     InteractionType `json:"type"`

	Options         []ChoiceOption `json:"options,omitempty"`
	FormSchema      *FormSchema    `json:"form_schema,omitempty"`
	DefaultResponse any            `json:"default_response,omitempty"`

	// TargetHumans are channel-specific recipient identifiers,
	// e.g. "telegram:12345".
	TargetHumans  []string      `json:"target_humans"`
	ConsensusMode ConsensusMode `json:"consensus_mode"`

	Timeout           time.Duration `json:"timeout"`
	TimeoutAction     TimeoutAction `json:"timeout_action"`
	EscalationTargets []string      `json:"escalation_targets,omitempty"`

	// Opaque caller identifiers, never interpreted by the engine.
	SourceAgent string `json:"source_agent,omitempty"`
	SourceFlow  string `json:"source_flow,omitempty"`
	SourceNode  string `json:"source_node,omitempty"`

	// Status is mutated only by the manager.
	Status    InteractionStatus `json:"status"`
	CreatedAt time.Time         `json:"created_at"`

	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewInteraction creates an interaction with a fresh ID and engine defaults:
// first-response consensus, cancel-on-timeout, and the default timeout.
func NewInteraction(question string, interactionType InteractionType, targets []string) *Interaction {
	return &Interaction{
		ID:            uuid.New().String(),
		Question:      question,
		Type:          interactionType,
		TargetHumans:  targets,
		ConsensusMode: ConsensusFirstResponse,
		Timeout:       DefaultTimeout,
		TimeoutAction: TimeoutCancel,
		Status:        StatusPending,
		CreatedAt:     time.Now().UTC(),
	}
}

// Validate checks the structural invariants of an interaction.
func (i *Interaction) Validate() error {
	if i.ID == "" {
		return NewError(ErrInvalidInteraction, "interaction id is empty")
	}
	if i.Question == "" {
		return NewError(ErrInvalidInteraction, "question is required")
	}
	if !i.Type.Valid() {
		return NewError(ErrInvalidInteraction, "unknown interaction type: "+string(i.Type))
	}
	if len(i.TargetHumans) == 0 {
		return NewError(ErrInvalidInteraction, "at least one target human is required")
	}
	if i.Type.RequiresOptions() && len(i.Options) == 0 {
		return NewError(ErrInvalidInteraction, "options are required for type "+string(i.Type))
	}
	switch i.ConsensusMode {
	case ConsensusFirstResponse, ConsensusAllRequired, ConsensusMajority, ConsensusQuorum:
	default:
		return NewError(ErrInvalidInteraction, "unknown consensus mode: "+string(i.ConsensusMode))
	}
	switch i.TimeoutAction {
	case TimeoutCancel, TimeoutDefault, TimeoutEscalate, TimeoutRetry:
	default:
		return NewError(ErrInvalidInteraction, "unknown timeout action: "+string(i.TimeoutAction))
	}
	return nil
}

// Clone returns a deep-enough copy for retry and escalation handling. Slices
// and maps are copied; option metadata values are shared.
func (i *Interaction) Clone() *Interaction {
	clone := *i
	clone.Options = append([]ChoiceOption(nil), i.Options...)
	clone.TargetHumans = append([]string(nil), i.TargetHumans...)
	clone.EscalationTargets = append([]string(nil), i.EscalationTargets...)
	if i.Metadata != nil {
		clone.Metadata = make(map[string]any, len(i.Metadata))
		for k, v := range i.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}
