package port

import (
	"context"
	"errors"

	"github.com/bleach86/ghostcore-zmq/internal/core/entity"
)

// ErrRecordTooLarge marks a record the publisher can never deliver because it
// exceeds the message size limit. Retrying it cannot succeed.
var ErrRecordTooLarge = errors.New("record exceeds max message size")

type Publisher interface {
	PublishNotification(ctx context.Context, rec *entity.Record, headers map[string]string) error
}
