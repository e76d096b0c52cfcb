package notify

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"healthdom/internal/websocket"
)

// Dispatcher is the business-facing send API. It delegates to the connection
// registry and never fails on an offline recipient: notifications are
// fire-and-forget and lost when nobody is connected.
type Dispatcher struct {
	registry *websocket.Registry
	logger   *zap.Logger
}

// NewDispatcher creates a dispatcher over the given registry.
func NewDispatcher(registry *websocket.Registry, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{registry: registry, logger: logger}
}

// Notify delivers text to every live connection of userID. Delivery failures
// are contained inside the registry; callers on business code paths never
// see them.
func (d *Dispatcher) Notify(userID, text string) {
	delivered := d.registry.Send(userID, []byte(text))
	d.logger.Info("notification dispatched",
		zap.String("dispatch_id", uuid.New().String()),
		zap.String("user_id", userID),
		zap.Int("delivered", delivered))
}

// Broadcast delivers text to every connection of every user.
func (d *Dispatcher) Broadcast(text string) {
	delivered := d.registry.Broadcast([]byte(text))
	d.logger.Info("broadcast dispatched",
		zap.String("dispatch_id", uuid.New().String()),
		zap.Int("delivered", delivered))
}
