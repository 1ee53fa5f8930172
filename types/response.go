package types

import "time"

// Response is one human's answer to an interaction. Responses are created by
// channels, accepted and appended by the manager, and never mutated.
//
// The shape of Value depends on Type: string for free-text, single-choice and
// poll; bool for approval; a list of strings for multi-choice; a map for form.
type Response struct {
	InteractionID string          `json:"interaction_id"`
	Respondent    string          `json:"respondent"`
	Type          InteractionType `json:"type"`
	Value         any             `json:"value"`
	Timestamp     time.Time       `json:"timestamp"`

	// Metadata carries channel details such as the channel name or the
	// platform message id.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewResponse creates a response stamped with the current time.
func NewResponse(interactionID, respondent string, responseType InteractionType, value any) *Response {
	return &Response{
		InteractionID: interactionID,
		Respondent:    respondent,
		Type:          responseType,
		Value:         value,
		Timestamp:     time.Now().UTC(),
	}
}

// responseCompatibility is the closed table of response types accepted per
// interaction type. A channel may translate the rendering: a form answered as
// a free-text reply, or a poll answered as a single choice.
var responseCompatibility = map[InteractionType][]InteractionType{
	InteractionFreeText:     {InteractionFreeText},
	InteractionSingleChoice: {InteractionSingleChoice, InteractionFreeText},
	InteractionMultiChoice:  {InteractionMultiChoice, InteractionSingleChoice},
	InteractionApproval:     {InteractionApproval},
	InteractionForm:         {InteractionForm, InteractionFreeText},
	InteractionPoll:         {InteractionPoll, InteractionSingleChoice},
}

// CompatibleWith reports whether a response of this type is acceptable for an
// interaction of the given type.
func (t InteractionType) CompatibleWith(interactionType InteractionType) bool {
	for _, accepted := range responseCompatibility[interactionType] {
		if t == accepted {
			return true
		}
	}
	return false
}
