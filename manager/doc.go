// Package manager implements the interaction orchestrator: it dispatches
// interactions to delivery channels, accumulates human responses, evaluates
// consensus, and enforces timeout, escalation, and retry policy.
//
// Three entry modes share the same machinery: Request blocks until a result,
// RegisterAndSend returns the completion signal for a bounded hot-wait, and
// RequestAsync returns immediately for suspend/resume callers that poll
// GetResult or subscribe to completion events.
package manager
