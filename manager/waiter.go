package manager

import (
	"context"

	"github.com/BaSui01/humanflow/types"
)

// Waiter is the in-memory completion signal for one interaction. It is
// registered before dispatch, so a response captured synchronously during
// delivery still resolves it. The signal fires exactly once.
type Waiter struct {
	id string
	ch chan *types.Result
}

func newWaiter(id string) *Waiter {
	return &Waiter{id: id, ch: make(chan *types.Result, 1)}
}

// InteractionID returns the id of the interaction this waiter belongs to.
func (w *Waiter) InteractionID() string { return w.id }

// Done returns the channel the result is delivered on. It receives exactly
// one value and is never closed.
func (w *Waiter) Done() <-chan *types.Result { return w.ch }

// Wait blocks until the interaction resolves or ctx is done. Callers doing a
// bounded hot-wait pass a short deadline and fall back to polling GetResult;
// the signal stays registered, so a late response still resolves it.
func (w *Waiter) Wait(ctx context.Context) (*types.Result, error) {
	select {
	case result := <-w.ch:
		return result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
