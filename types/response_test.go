package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResponseCompatibility(t *testing.T) {
	tests := []struct {
		interaction InteractionType
		response    InteractionType
		compatible  bool
	}{
		{InteractionFreeText, InteractionFreeText, true},
		{InteractionFreeText, InteractionSingleChoice, false},
		{InteractionSingleChoice, InteractionSingleChoice, true},
		{InteractionSingleChoice, InteractionFreeText, true},
		{InteractionSingleChoice, InteractionMultiChoice, false},
		{InteractionMultiChoice, InteractionMultiChoice, true},
		{InteractionMultiChoice, InteractionSingleChoice, true},
		{InteractionMultiChoice, InteractionFreeText, false},
		{InteractionApproval, InteractionApproval, true},
		{InteractionApproval, InteractionFreeText, false},
		{InteractionForm, InteractionForm, true},
		{InteractionForm, InteractionFreeText, true},
		{InteractionForm, InteractionSingleChoice, false},
		{InteractionPoll, InteractionPoll, true},
		{InteractionPoll, InteractionSingleChoice, true},
		{InteractionPoll, InteractionMultiChoice, false},
	}

	for _, tt := range tests {
		got := tt.response.CompatibleWith(tt.interaction)
		assert.Equal(t, tt.compatible, got,
			"response %s on interaction %s", tt.response, tt.interaction)
	}
}

func TestResponseCompatibility_UnknownType(t *testing.T) {
	assert.False(t, InteractionFreeText.CompatibleWith(InteractionType("smoke_signal")))
}
