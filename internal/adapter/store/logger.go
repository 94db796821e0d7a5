package store

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bleach86/ghostcore-zmq/internal/core/entity"
	"github.com/bleach86/ghostcore-zmq/internal/pkg/apperr"
	"github.com/bleach86/ghostcore-zmq/internal/pkg/applog"
	imetrics "github.com/bleach86/ghostcore-zmq/internal/pkg/metrics"
	"github.com/bleach86/ghostcore-zmq/internal/pkg/pattern"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
)

// addNotification sets the dedup key and appends the entry in one step.
// KEYS: dedup key, stream. ARGV: ttl ms, maxlen, field/value pairs.
// Returns {1, id} when stored, {0, reason} otherwise.
var addNotification = redis.NewScript(`
if not redis.call('SET', KEYS[1], '1', 'NX', 'PX', ARGV[1]) then
  return {0, 'EXISTS'}
end
local args = {'XADD', KEYS[2]}
if tonumber(ARGV[2]) > 0 then
  table.insert(args, 'MAXLEN')
  table.insert(args, '~')
  table.insert(args, ARGV[2])
end
table.insert(args, '*')
for i = 3, #ARGV do
  table.insert(args, ARGV[i])
end
local res = redis.pcall(unpack(args))
if type(res) == 'table' and res.err then
  redis.call('DEL', KEYS[1])
  return {0, 'XADD_ERR'}
end
return {1, res}
`)

// NotificationLogger is a thin Redis-based outbox that appends notifications
// to a stream with idempotency enforced by a SET NX key.
//
// Concurrency: NotificationLogger is safe for concurrent use. It relies on the
// concurrency-safe go-redis client and the atomicity of the Lua script.
type NotificationLogger struct {
	rdb       *redis.Client
	log       applog.AppLogger
	validator *validator.Validate
	cfg       Config
}

// NewNotificationLogger validates the configuration, creates a Redis client
// with optional TLS, and returns an initialized NotificationLogger.
func NewNotificationLogger(log applog.AppLogger, _ *sync.WaitGroup, v *validator.Validate, cfg *Config) (*NotificationLogger, error) {
	if err := v.Struct(cfg); err != nil {
		log.Error("invalid redis config", "err", err)
		return nil, apperr.NewNotificationStoreErr("invalid redis config", err)
	}
	return &NotificationLogger{
		rdb:       newRedisClient(cfg),
		log:       log,
		validator: v,
		cfg:       *cfg,
	}, nil
}

func newRedisClient(cfg *Config) *redis.Client {
	opts := &redis.Options{
		Addr:        net.JoinHostPort(cfg.Host, cfg.Port),
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		MaxRetries:  cfg.MaxRetries,
		DialTimeout: time.Duration(cfg.DialTimeoutSeconds) * time.Second,
	}
	if cfg.UseTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return redis.NewClient(opts)
}

// StoreNotification appends rec to the outbox stream and returns true when
// the dedup key was set and the entry enqueued, false on a dedup hit.
func (nl *NotificationLogger) StoreNotification(ctx context.Context, rec *entity.Record) (bool, error) {
	if rec == nil {
		return false, apperr.NewNotificationStoreErr("record is required", nil)
	}
	if err := nl.validator.Struct(rec); err != nil {
		return false, apperr.NewNotificationStoreErr("invalid record", err)
	}

	keys := []string{nl.key(nl.cfg.Lock.DedupPrefix, rec.ID), nl.cfg.Streams.Key}
	args := []interface{}{
		strconv.FormatInt(int64(nl.cfg.Lock.TTLSeconds)*1000, 10),
		strconv.FormatInt(nl.cfg.Streams.MaxLen, 10),
		"id", rec.ID,
		"hash", rec.Hash,
		"topic", rec.Topic.String(),
		"counter", strconv.FormatUint(uint64(rec.Counter), 10),
		"verdict", rec.Verdict.String(),
		"source", rec.Source,
		"payload", string(rec.Body),
		"received_at_ms", strconv.FormatInt(rec.ReceivedAt.UnixMilli(), 10),
	}

	var stored bool
	var lastReason string
	err := pattern.Retry(
		ctx,
		func(attempt int) error {
			res, err := addNotification.Run(ctx, nl.rdb, keys, args...).Result()
			if err != nil {
				nl.log.Warn("redis add_notification script failed", "attempt", attempt, "err", err)
				lastReason = "script"
				return apperr.NewNotificationStoreErr("redis add_notification script failed", err)
			}

			arr, ok := res.([]interface{})
			if !ok || len(arr) < 1 {
				lastReason = "script_resp"
				return pattern.Permanent(apperr.NewNotificationStoreErr("unexpected script response", fmt.Errorf("type=%T", res)))
			}
			status, ok := arr[0].(int64)
			if !ok {
				lastReason = "script_resp"
				return pattern.Permanent(apperr.NewNotificationStoreErr("unexpected script status type", fmt.Errorf("type=%T", arr[0])))
			}

			if status == 1 {
				stored = true
				return nil
			}
			stored = false
			if len(arr) > 1 {
				if reason, ok := arr[1].(string); ok {
					switch strings.ToUpper(reason) {
					case "EXISTS":
						nl.log.Trace("Notification already logged; skipping", "id", rec.ID)
						return nil
					case "XADD_ERR":
						nl.log.Warn("Redis XADD failed while adding notification", "id", rec.ID)
						lastReason = "xadd_err"
						return apperr.NewNotificationStoreErr("redis add_notification XADD failed", nil)
					}
				}
			}
			lastReason = "unknown"
			return apperr.NewNotificationStoreErr("redis add_notification failed with unknown reason", nil)
		},
		pattern.WithMaxAttempts(3),
		pattern.WithInitialDelay(200*time.Millisecond),
		pattern.WithMaxDelay(1*time.Second),
	)
	if err != nil {
		if lastReason == "" {
			lastReason = "unknown"
		}
		imetrics.App().ErrorsTotal.WithLabelValues(imetrics.ComponentRedis, lastReason).Inc()
		return false, apperr.NewNotificationStoreErr("failed to store notification", err)
	}

	topic := rec.Topic.String()
	if stored {
		imetrics.Pipeline().OutboxStoredTotal.WithLabelValues(topic).Inc()
	} else {
		imetrics.Pipeline().OutboxDedupTotal.WithLabelValues(topic).Inc()
	}
	return stored, nil
}

// StorePublishedMarker writes a durable marker indicating that the record with
// the given id has been published to Kafka. Call it after a successful publish
// and before acknowledging the stream entry, so a crash in between leads to a
// skipped republish rather than a duplicate.
//
// The key is co-located with the stream's hash slot
// (e.g., "{notifications}:published:<id>"). Returns true when the key was
// created, false when it already existed.
func (nl *NotificationLogger) StorePublishedMarker(ctx context.Context, id string) (bool, error) {
	if strings.TrimSpace(id) == "" {
		return false, apperr.NewNotificationStoreErr("empty record id", nil)
	}

	key := nl.key(nl.cfg.Lock.PublishedPrefix, id)
	ttl := time.Duration(nl.cfg.Lock.PublishedTTLSeconds) * time.Second

	var created bool
	err := pattern.Retry(
		ctx,
		func(attempt int) error {
			c, err := nl.rdb.SetNX(ctx, key, "1", ttl).Result()
			if err != nil {
				nl.log.Warn("Redis SETNX published marker failed", "key", key, "attempt", attempt, "err", err)
				return err
			}
			created = c
			return nil
		},
		pattern.WithMaxAttempts(5),
		pattern.WithInitialDelay(100*time.Millisecond),
		pattern.WithMaxDelay(500*time.Millisecond),
		pattern.WithJitter(0.2),
	)
	if err != nil {
		return false, apperr.NewNotificationStoreErr("failed to store published marker", err)
	}

	if created {
		nl.log.Trace("Stored published marker", "key", key)
	} else {
		nl.log.Trace("Published marker already exists", "key", key)
	}
	return created, nil
}

// IsPublished reports whether a published marker exists for id.
func (nl *NotificationLogger) IsPublished(ctx context.Context, id string) (bool, error) {
	if strings.TrimSpace(id) == "" {
		return false, apperr.NewNotificationStoreErr("empty record id", nil)
	}
	n, err := nl.rdb.Exists(ctx, nl.key(nl.cfg.Lock.PublishedPrefix, id)).Result()
	if err != nil {
		return false, apperr.NewNotificationStoreErr("failed to check published marker", err)
	}
	return n == 1, nil
}

// StoreDeadLetter appends rec to the dead-letter stream with the outbox
// message id and the reason it could not be published.
func (nl *NotificationLogger) StoreDeadLetter(ctx context.Context, rec *entity.Record, messageID, reason string) error {
	if rec == nil || strings.TrimSpace(rec.ID) == "" {
		return apperr.NewNotificationStoreErr("record with id is required", nil)
	}

	args := &redis.XAddArgs{
		Stream: nl.deadLetterKey(),
		Values: map[string]any{
			"id":                rec.ID,
			"topic":             rec.Topic.String(),
			"counter":           strconv.FormatUint(uint64(rec.Counter), 10),
			"hash":              rec.Hash,
			"source":            rec.Source,
			"source_message_id": messageID,
			"reason":            reason,
			"size":              strconv.Itoa(len(rec.Body)),
			"payload":           string(rec.Body),
		},
	}
	if nl.cfg.Streams.MaxLen > 0 {
		args.MaxLen = nl.cfg.Streams.MaxLen
		args.Approx = true
	}

	err := pattern.Retry(
		ctx,
		func(attempt int) error {
			if err := nl.rdb.XAdd(ctx, args).Err(); err != nil {
				nl.log.Warn("Redis XADD dead letter failed", "stream", args.Stream, "attempt", attempt, "err", err)
				return err
			}
			return nil
		},
		pattern.WithMaxAttempts(5),
		pattern.WithInitialDelay(100*time.Millisecond),
		pattern.WithMaxDelay(500*time.Millisecond),
		pattern.WithJitter(0.2),
	)
	if err != nil {
		return apperr.NewNotificationStoreErr("failed to store dead letter", err)
	}
	nl.log.Warn("Notification moved to dead-letter stream", "id", rec.ID, "stream", args.Stream, "reason", reason)
	return nil
}

func (nl *NotificationLogger) deadLetterKey() string {
	if nl.cfg.Streams.DeadLetterKey != "" {
		return nl.cfg.Streams.DeadLetterKey
	}
	return fmt.Sprintf("{%s}:deadletter", clusterHashTag(nl.cfg.Streams.Key))
}

// Close releases the Redis client.
func (nl *NotificationLogger) Close() error { return nl.rdb.Close() }

func (nl *NotificationLogger) key(prefix, id string) string {
	return fmt.Sprintf("{%s}:%s:%s", clusterHashTag(nl.cfg.Streams.Key), prefix, id)
}

func clusterHashTag(key string) string {
	start := strings.IndexByte(key, '{')
	if start >= 0 {
		end := strings.IndexByte(key[start+1:], '}')
		if end >= 0 {
			tag := key[start+1 : start+1+end]
			if tag != "" {
				return tag
			}
		}
	}
	return key
}
