package port

import (
	"context"

	"github.com/bleach86/ghostcore-zmq/internal/core/entity"
)

// EventHandler consumes one decoded, sequence-checked notification. source
// names the endpoint that produced it.
type EventHandler func(ctx context.Context, source string, ev entity.Event) error

// Watcher drives a receiver pool and dispatches its events. Implementations
// must support handler injection, lifecycle management, and graceful shutdown.
type Watcher interface {
	SetHandler(handler EventHandler)
	StartWatching() error
	StopWatching()
}
