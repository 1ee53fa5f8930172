// Package types defines the shared value types of the humanflow engine:
// interactions, responses, results, completion events, and the enums that
// drive consensus and timeout policy.
//
// Values in this package are immutable by convention. The single exception is
// Interaction.Status, which is owned exclusively by the interaction manager.
package types
