package usecase

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/bleach86/ghostcore-zmq/internal/core/entity"
	"github.com/bleach86/ghostcore-zmq/internal/core/port"
	"github.com/bleach86/ghostcore-zmq/internal/pkg/apperr"
	"github.com/bleach86/ghostcore-zmq/internal/pkg/applog"
	imetrics "github.com/bleach86/ghostcore-zmq/internal/pkg/metrics"
	"github.com/redis/go-redis/v9"
)

// RelayProcessorService moves watcher events into the outbox and outbox
// entries out to the publisher.
type RelayProcessorService struct {
	log         applog.AppLogger
	storeLogger port.StoreLogger
	publisher   port.Publisher
	now         func() time.Time
}

func NewRelayProcessorService(log applog.AppLogger, storeLogger port.StoreLogger, publisher port.Publisher) *RelayProcessorService {
	return &RelayProcessorService{log: log, storeLogger: storeLogger, publisher: publisher, now: time.Now}
}

// HandleEvent stores ev in the outbox. A dedup hit is not an error.
func (rps *RelayProcessorService) HandleEvent(ctx context.Context, source string, ev entity.Event) error {
	if ev.Notification == nil {
		return apperr.NewRelayProcessErr("event has no notification", nil)
	}

	rec, err := mapEvent(source, ev, rps.now())
	if err != nil {
		return err
	}
	stored, err := rps.storeLogger.StoreNotification(ctx, rec)
	if err != nil {
		rps.log.Error("failed to store notification", "id", rec.ID, "source", source, "err", err)
		return apperr.NewRelayProcessErr("failed to store notification", err)
	}

	if stored {
		rps.log.Debug("Stored notification", "id", rec.ID, "verdict", rec.Verdict, "source", source)
	} else {
		rps.log.Warn("Notification already stored (dedup hit)", "id", rec.ID, "source", source)
	}
	return nil
}

// ReadAndPublish publishes one outbox entry. It returns nil when the entry
// may be acknowledged: it was published and marked, a marker from an earlier
// attempt already exists, or it is too large to ever publish and was moved to
// the dead-letter stream.
func (rps *RelayProcessorService) ReadAndPublish(ctx context.Context, msg redis.XMessage) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	rec, err := recordFromMessage(msg)
	if err != nil {
		return err
	}

	if ok, err := rps.storeLogger.IsPublished(ctx, rec.ID); err != nil {
		return apperr.NewRelayProcessErr("failed to check published marker", err)
	} else if ok {
		rps.log.Trace("Skipping publish; marker exists", "id", rec.ID)
		return nil
	}

	headers := map[string]string{"source-message-id": msg.ID}
	if err := rps.publisher.PublishNotification(ctx, rec, headers); err != nil {
		if errors.Is(err, port.ErrRecordTooLarge) {
			if dlErr := rps.storeLogger.StoreDeadLetter(ctx, rec, msg.ID, err.Error()); dlErr != nil {
				return apperr.NewRelayProcessErr("failed to dead-letter oversized notification", dlErr)
			}
			imetrics.App().WarningsTotal.WithLabelValues(imetrics.ComponentProcessor, "dead_letter").Inc()
			return nil
		}
		rps.log.Error("failed to publish notification", "id", rec.ID, "err", err)
		return apperr.NewRelayProcessErr("failed to publish notification", err)
	}

	if _, err := rps.storeLogger.StorePublishedMarker(ctx, rec.ID); err != nil {
		rps.log.Error("failed to store published marker", "id", rec.ID, "err", err)
		return apperr.NewRelayProcessErr("failed to store published marker", err)
	}

	if !rec.ReceivedAt.IsZero() {
		imetrics.Pipeline().EndToEndLatencyMS.Observe(float64(rps.now().Sub(rec.ReceivedAt).Milliseconds()))
	}
	rps.log.Trace("Published notification from Redis stream", "id", rec.ID, "message_id", msg.ID)
	return nil
}

// recordFromMessage rebuilds the outbox record from a stream entry and
// checks that the body agrees with the indexed fields.
func recordFromMessage(msg redis.XMessage) (*entity.Record, error) {
	id, err := requiredField(msg, "id")
	if err != nil {
		return nil, err
	}
	topicName, err := requiredField(msg, "topic")
	if err != nil {
		return nil, err
	}
	topic, ok := entity.ParseTopic(topicName)
	if !ok {
		return nil, apperr.NewRelayProcessErr("unknown topic in stream message: "+topicName, nil)
	}
	rawCounter, err := requiredField(msg, "counter")
	if err != nil {
		return nil, err
	}
	counter, err := strconv.ParseUint(rawCounter, 10, 32)
	if err != nil {
		return nil, apperr.NewRelayProcessErr("invalid counter in stream message", err)
	}
	payload, err := requiredField(msg, "payload")
	if err != nil {
		return nil, err
	}

	ev, err := UnmarshalNotificationJSON([]byte(payload))
	if err != nil {
		return nil, apperr.NewRelayProcessErr("failed to unmarshal notification payload", err)
	}
	if ev.Notification.Topic != topic || ev.Notification.Counter != uint32(counter) {
		return nil, apperr.NewRelayProcessErr("stream fields disagree with payload", nil)
	}

	rec := &entity.Record{
		ID:      id,
		Topic:   topic,
		Counter: uint32(counter),
		Verdict: ev.Verdict.Kind,
		Body:    []byte(payload),
	}
	rec.Hash, _ = optionalField(msg, "hash")
	rec.Source, _ = optionalField(msg, "source")
	if ms, ok := optionalField(msg, "received_at_ms"); ok {
		if v, err := strconv.ParseInt(ms, 10, 64); err == nil && v > 0 {
			rec.ReceivedAt = time.UnixMilli(v)
		}
	}
	return rec, nil
}

func requiredField(msg redis.XMessage, key string) (string, error) {
	v, err := extractStringField(msg, key)
	if err != nil {
		return "", err
	}
	if v == "" {
		return "", apperr.NewRelayProcessErr("stream message has empty field: "+key, nil)
	}
	return v, nil
}

func optionalField(msg redis.XMessage, key string) (string, bool) {
	v, err := extractStringField(msg, key)
	if err != nil || v == "" {
		return "", false
	}
	return v, true
}

func extractStringField(msg redis.XMessage, key string) (string, error) {
	val, ok := msg.Values[key]
	if !ok {
		return "", apperr.NewRelayProcessErr("stream message missing field: "+key, nil)
	}

	switch v := val.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", apperr.NewRelayProcessErr("stream field "+key+" must be a string", nil)
	}
}
