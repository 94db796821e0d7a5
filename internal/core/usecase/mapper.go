package usecase

import (
	"encoding/json"
	"time"

	"github.com/bleach86/ghostcore-zmq/internal/core/entity"
	"github.com/bleach86/ghostcore-zmq/internal/pkg/apperr"
)

// mapEvent converts a watcher event into the outbox record for it.
func mapEvent(source string, ev entity.Event, receivedAt time.Time) (*entity.Record, error) {
	n := ev.Notification
	if n == nil {
		return nil, apperr.NewRelayProcessErr("event has no notification", nil)
	}
	dto := ToDTO(ev)
	body, err := json.Marshal(dto)
	if err != nil {
		return nil, apperr.NewRelayProcessErr("failed to marshal notification", err)
	}
	return &entity.Record{
		ID:         entity.RecordID(n.Topic, n.Counter, n.Payload),
		Topic:      n.Topic,
		Counter:    n.Counter,
		Verdict:    ev.Verdict.Kind,
		Hash:       recordHash(dto),
		Source:     source,
		ReceivedAt: receivedAt,
		Body:       body,
	}, nil
}

// recordHash picks the most specific hash the document carries.
func recordHash(d *NotificationDTO) string {
	switch {
	case d.Hash != "":
		return d.Hash
	case d.TxID != "":
		return d.TxID
	default:
		return d.BlockHash
	}
}
