package types

import "time"

// Result is the consolidated, terminal outcome of an interaction. It is
// created exactly once by the manager, at the moment consensus, timeout,
// escalation, or cancellation resolves the interaction.
type Result struct {
	InteractionID string            `json:"interaction_id"`
	Status        InteractionStatus `json:"status"`
	Responses     []*Response       `json:"responses,omitempty"`

	// ConsolidatedValue is the value consensus produced, the configured
	// default on a DEFAULT timeout, or a *Conflict when an all-required
	// interaction received disagreeing answers.
	ConsolidatedValue any `json:"consolidated_value,omitempty"`

	TimedOut  bool      `json:"timed_out"`
	Escalated bool      `json:"escalated"`
	CreatedAt time.Time `json:"created_at"`
}

// Conflict marks an all-required interaction whose respondents disagreed.
// It carries every submitted value keyed by respondent.
type Conflict struct {
	Conflict bool           `json:"conflict"`
	Values   map[string]any `json:"values"`
}

// NewConflict builds a conflict marker over the given respondent values.
func NewConflict(values map[string]any) *Conflict {
	return &Conflict{Conflict: true, Values: values}
}

// CompletionEvent is published on the completion topic when an interaction
// resolves, so suspended out-of-process callers can match it to their own
// state without fetching the full result body.
type CompletionEvent struct {
	InteractionID string `json:"interaction_id"`
	SourceAgent   string `json:"source_agent,omitempty"`
	SourceFlow    string `json:"source_flow,omitempty"`
	SourceNode    string `json:"source_node,omitempty"`
}
