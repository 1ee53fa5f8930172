package channel

import (
	"context"

	"github.com/BaSui01/humanflow/types"
)

// ResponseHandler is installed by the manager and must be invoked by a
// channel whenever a human replies. A channel may call it synchronously from
// inside SendInteraction when it captures an answer during delivery.
type ResponseHandler func(ctx context.Context, response *types.Response) error

// Channel is the capability contract every delivery mechanism implements.
type Channel interface {
	// Name identifies the channel in the manager's registry.
	Name() string

	// SendInteraction renders and delivers the interaction to one recipient.
	// The returned bool reports whether delivery succeeded, not whether the
	// human answered.
	SendInteraction(ctx context.Context, interaction *types.Interaction, recipient string) (bool, error)

	// RegisterResponseHandler installs the callback the channel invokes for
	// every incoming reply.
	RegisterResponseHandler(handler ResponseHandler)

	// SendNotification delivers a fire-and-forget informational message.
	SendNotification(ctx context.Context, recipient, message string) error

	// CancelInteraction withdraws a delivered interaction best-effort, e.g.
	// by disabling its UI control. It never fails the caller.
	CancelInteraction(ctx context.Context, interactionID, recipient string) error
}
