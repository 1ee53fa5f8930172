// Package channel defines the contract between the interaction manager and
// the delivery mechanisms that reach humans (terminal, chat platforms, push
// transports). Concrete platform channels live outside this module; the
// engine only depends on this interface.
package channel
