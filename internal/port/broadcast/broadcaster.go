// Package broadcast defines the port through which run progress reaches
// WebSocket subscribers.
package broadcast

import "context"

// Broadcaster fans a run event out to subscribed clients. Delivery is best
// effort; implementations must not block the run.
type Broadcaster interface {
	BroadcastEvent(ctx context.Context, eventType string, payload any)
}
