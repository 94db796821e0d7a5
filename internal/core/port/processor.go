package port

import (
	"context"

	"github.com/bleach86/ghostcore-zmq/internal/core/entity"
	"github.com/redis/go-redis/v9"
)

// ProcessorService coordinates the relay workflow between the watcher, the
// outbox, and the publisher.
type ProcessorService interface {
	HandleEvent(ctx context.Context, source string, ev entity.Event) error
	ReadAndPublish(ctx context.Context, msg redis.XMessage) error
}
