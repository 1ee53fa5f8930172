package channel

import (
	"context"
	"sync"

	"github.com/BaSui01/humanflow/types"
	"go.uber.org/zap"
)

// AutoReply produces a scripted response for a delivered interaction, or nil
// when the scripted recipient stays silent.
type AutoReply func(interaction *types.Interaction, recipient string) *types.Response

// Delivery records one SendInteraction call for test introspection.
type Delivery struct {
	InteractionID string
	Recipient     string
}

// MemoryChannel is an in-process loopback channel for tests and local
// development. Recipients can be scripted to answer synchronously during
// delivery or to fail delivery outright.
type MemoryChannel struct {
	name    string
	logger  *zap.Logger
	handler ResponseHandler

	mu            sync.Mutex
	replies       map[string]AutoReply
	failing       map[string]bool
	deliveries    []Delivery
	cancelled     []Delivery
	notifications map[string][]string
}

// NewMemoryChannel creates a loopback channel with the given registry name.
func NewMemoryChannel(name string, logger *zap.Logger) *MemoryChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryChannel{
		name:          name,
		logger:        logger.With(zap.String("component", "memory_channel"), zap.String("channel", name)),
		replies:       make(map[string]AutoReply),
		failing:       make(map[string]bool),
		notifications: make(map[string][]string),
	}
}

// Name implements Channel.
func (c *MemoryChannel) Name() string { return c.name }

// RegisterResponseHandler implements Channel.
func (c *MemoryChannel) RegisterResponseHandler(handler ResponseHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

// Script makes the recipient answer every delivered interaction through the
// given reply function, synchronously from inside SendInteraction.
func (c *MemoryChannel) Script(recipient string, reply AutoReply) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replies[recipient] = reply
}

// FailDelivery makes every delivery to the recipient report failure.
func (c *MemoryChannel) FailDelivery(recipient string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failing[recipient] = true
}

// SendInteraction implements Channel. A scripted reply is pushed through the
// registered handler before SendInteraction returns, which exercises the
// same-delivery response race the manager has to survive.
func (c *MemoryChannel) SendInteraction(ctx context.Context, interaction *types.Interaction, recipient string) (bool, error) {
	c.mu.Lock()
	if c.failing[recipient] {
		c.mu.Unlock()
		c.logger.Debug("delivery failed",
			zap.String("interaction_id", interaction.ID),
			zap.String("recipient", recipient),
		)
		return false, nil
	}
	c.deliveries = append(c.deliveries, Delivery{InteractionID: interaction.ID, Recipient: recipient})
	reply := c.replies[recipient]
	handler := c.handler
	c.mu.Unlock()

	if reply != nil && handler != nil {
		if response := reply(interaction, recipient); response != nil {
			if err := handler(ctx, response); err != nil {
				c.logger.Warn("response handler rejected scripted reply",
					zap.String("interaction_id", interaction.ID),
					zap.String("recipient", recipient),
					zap.Error(err),
				)
			}
		}
	}
	return true, nil
}

// Respond injects a reply as if the recipient answered asynchronously.
func (c *MemoryChannel) Respond(ctx context.Context, response *types.Response) error {
	c.mu.Lock()
	handler := c.handler
	c.mu.Unlock()
	if handler == nil {
		return types.NewError(types.ErrChannelNotRegistered, "no response handler registered")
	}
	return handler(ctx, response)
}

// SendNotification implements Channel.
func (c *MemoryChannel) SendNotification(ctx context.Context, recipient, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifications[recipient] = append(c.notifications[recipient], message)
	return nil
}

// CancelInteraction implements Channel.
func (c *MemoryChannel) CancelInteraction(ctx context.Context, interactionID, recipient string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelled = append(c.cancelled, Delivery{InteractionID: interactionID, Recipient: recipient})
	return nil
}

// Deliveries returns every recorded delivery in order.
func (c *MemoryChannel) Deliveries() []Delivery {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Delivery(nil), c.deliveries...)
}

// Cancelled returns every recorded cancellation in order.
func (c *MemoryChannel) Cancelled() []Delivery {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Delivery(nil), c.cancelled...)
}

// Notifications returns the messages sent to a recipient.
func (c *MemoryChannel) Notifications(recipient string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.notifications[recipient]...)
}

var _ Channel = (*MemoryChannel)(nil)
