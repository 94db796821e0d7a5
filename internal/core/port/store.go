package port

import (
	"context"

	"github.com/bleach86/ghostcore-zmq/internal/core/entity"
)

// StoreLogger abstracts the deduplicated notification outbox.
type StoreLogger interface {
	StoreNotification(ctx context.Context, rec *entity.Record) (bool, error)
	StorePublishedMarker(ctx context.Context, id string) (bool, error)
	IsPublished(ctx context.Context, id string) (bool, error)
	// StoreDeadLetter parks an entry that can never be published, so the
	// outbox can acknowledge it.
	StoreDeadLetter(ctx context.Context, rec *entity.Record, messageID, reason string) error
}
