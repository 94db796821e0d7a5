package store

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/bleach86/ghostcore-zmq/internal/core/port"
	"github.com/bleach86/ghostcore-zmq/internal/pkg/apperr"
	"github.com/bleach86/ghostcore-zmq/internal/pkg/applog"
	imetrics "github.com/bleach86/ghostcore-zmq/internal/pkg/metrics"
	"github.com/bleach86/ghostcore-zmq/internal/pkg/pattern"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
)

const (
	phasePending = "pending"
	phaseClaimed = "claimed"
	phaseNew     = "new"
)

// NotificationStream reads outbox entries through a consumer group and hands
// each to the configured handler, acknowledging on success.
type NotificationStream struct {
	rdb     *redis.Client
	log     applog.AppLogger
	wg      *sync.WaitGroup
	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
	handler port.StreamMessageHandler
	cfg     Config
}

// NewNotificationStream validates cfg and returns a reader bound to its
// stream and consumer group.
func NewNotificationStream(log applog.AppLogger, wg *sync.WaitGroup, v *validator.Validate, cfg *Config) (*NotificationStream, error) {
	if err := v.Struct(cfg); err != nil {
		log.Error("invalid redis config", "err", err)
		return nil, apperr.NewNotificationStreamErr("invalid redis config", err)
	}
	return &NotificationStream{
		rdb: newRedisClient(cfg),
		log: log,
		wg:  wg,
		cfg: *cfg,
	}, nil
}

// SetHandler installs the callback used for each stream entry. It must be
// set before StartReadFromStream.
func (ns *NotificationStream) SetHandler(handler port.StreamMessageHandler) {
	ns.mu.Lock()
	ns.handler = handler
	ns.mu.Unlock()
}

// StartReadFromStream ensures the consumer group exists and starts the reader
// goroutine. Each pass drains this consumer's pending entries, reclaims stale
// ones from other consumers and then blocks for new ones.
func (ns *NotificationStream) StartReadFromStream() error {
	ns.mu.Lock()
	if ns.handler == nil {
		ns.mu.Unlock()
		return apperr.NewNotificationStreamErr("stream handler is not configured", nil)
	}
	if ns.running {
		ns.mu.Unlock()
		return apperr.NewNotificationStreamErr("notification stream reader already running", nil)
	}

	// A stable consumer name lets a restarted process drain its own PEL.
	consumerName := ns.cfg.Streams.ConsumerName

	streamCtx, cancel := context.WithCancel(context.Background())
	ns.cancel = cancel
	ns.running = true
	ns.mu.Unlock()

	if err := ns.ensureGroupWithRetry(streamCtx); err != nil {
		cancel()
		ns.mu.Lock()
		ns.running = false
		ns.cancel = nil
		ns.mu.Unlock()
		return err
	}

	ns.wg.Add(1)
	go func() {
		defer ns.wg.Done()
		defer func() {
			ns.mu.Lock()
			ns.running = false
			ns.cancel = nil
			ns.mu.Unlock()
			ns.log.Trace("Stopped reading from Redis stream", "stream", ns.cfg.Streams.Key)
		}()

		readCount := ns.cfg.Streams.ReadCount
		blockTimeout := time.Duration(ns.cfg.Streams.ReadBlockTimeoutSeconds) * time.Second
		claimIdle := time.Duration(ns.cfg.Streams.ClaimIdleSeconds) * time.Second

		ns.log.Trace(
			"Starting Redis stream reader",
			"stream", ns.cfg.Streams.Key,
			"group", ns.cfg.Streams.ConsumerGroup,
			"consumer", consumerName,
			"count", readCount,
		)

		for {
			select {
			case <-streamCtx.Done():
				ns.log.Trace("Stream context cancelled, shutting down reader", "stream", ns.cfg.Streams.Key)
				return
			default:
			}

			if err := ns.drainPending(streamCtx, consumerName, readCount); err != nil {
				if isCtxErr(err) {
					return
				}
				ns.log.Warn("Failed to drain pending messages", "stream", ns.cfg.Streams.Key, "err", err)
				sleepCtx(streamCtx, 500*time.Millisecond)
				continue
			}

			if claimIdle > 0 {
				if err := ns.reclaimStale(streamCtx, consumerName, readCount, claimIdle); err != nil {
					if isCtxErr(err) {
						return
					}
					ns.log.Warn("Failed to reclaim stale messages", "stream", ns.cfg.Streams.Key, "err", err)
					sleepCtx(streamCtx, 500*time.Millisecond)
					continue
				}
			}

			if err := ns.readNew(streamCtx, consumerName, readCount, blockTimeout); err != nil {
				if isCtxErr(err) {
					return
				}
				if !errors.Is(err, redis.Nil) {
					ns.log.Warn("Failed to read new messages", "stream", ns.cfg.Streams.Key, "err", err)
					sleepCtx(streamCtx, 200*time.Millisecond)
				}
				continue
			}
		}
	}()

	return nil
}

// StopReadFromStream signals the reader goroutine to stop after the current
// entry. Callers wait on the shared WaitGroup.
func (ns *NotificationStream) StopReadFromStream() {
	ns.mu.Lock()
	if ns.cancel == nil {
		ns.mu.Unlock()
		return
	}
	cancel := ns.cancel
	ns.cancel = nil
	ns.mu.Unlock()
	ns.log.Trace("Stopping Redis stream reader...", "stream", ns.cfg.Streams.Key)
	cancel()
}

// Close releases the Redis client.
func (ns *NotificationStream) Close() error { return ns.rdb.Close() }

// processMessage runs the handler with a background context so the last
// in-flight entry can complete during shutdown. Failed entries stay pending.
func (ns *NotificationStream) processMessage(msg redis.XMessage) {
	ns.mu.Lock()
	handler := ns.handler
	ns.mu.Unlock()
	if handler == nil {
		return
	}
	if err := handler(context.Background(), msg); err != nil {
		imetrics.Redis().HandlerErrorTotal.Inc()
		ns.log.Error("Stream handler failed", "stream", ns.cfg.Streams.Key, "id", msg.ID, "err", err)
		return
	}
	ns.ackMessage(msg.ID)
}

func (ns *NotificationStream) ensureConsumerGroup(ctx context.Context) error {
	err := ns.rdb.XGroupCreateMkStream(ctx, ns.cfg.Streams.Key, ns.cfg.Streams.ConsumerGroup, "0").Err()
	if err == nil {
		ns.log.Trace("Created Redis consumer group", "stream", ns.cfg.Streams.Key, "group", ns.cfg.Streams.ConsumerGroup)
		return nil
	}
	if strings.Contains(err.Error(), "BUSYGROUP") {
		ns.log.Debug("Redis consumer group already exists", "stream", ns.cfg.Streams.Key, "group", ns.cfg.Streams.ConsumerGroup)
		return nil
	}
	return apperr.NewNotificationStreamErr("failed to ensure consumer group", err)
}

// ensureGroupWithRetry retries until the group exists or ctx ends.
func (ns *NotificationStream) ensureGroupWithRetry(ctx context.Context) error {
	return pattern.Retry(
		ctx,
		func(attempt int) error {
			err := ns.ensureConsumerGroup(ctx)
			if err != nil {
				ns.log.Warn(
					"Failed to ensure consumer group",
					"stream", ns.cfg.Streams.Key,
					"group", ns.cfg.Streams.ConsumerGroup,
					"attempt", attempt,
					"err", err,
				)
			}
			return err
		},
		pattern.WithInfiniteAttempts(),
		pattern.WithInitialDelay(500*time.Millisecond),
		pattern.WithMaxDelay(5*time.Second),
		pattern.WithMultiplier(2.0),
		pattern.WithJitter(0.2),
	)
}

// drainPending walks this consumer's PEL once without blocking. Entries the
// handler rejects stay pending for the next pass.
func (ns *NotificationStream) drainPending(ctx context.Context, consumerName string, readCount int) error {
	cursor := "0"
	for {
		streams, err := ns.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    ns.cfg.Streams.ConsumerGroup,
			Consumer: consumerName,
			Streams:  []string{ns.cfg.Streams.Key, cursor},
			Count:    int64(readCount),
			Block:    -1, // omit BLOCK
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil
			}
			return err
		}
		if len(streams) == 0 || len(streams[0].Messages) == 0 {
			return nil
		}
		ns.processAll(streams, phasePending)
		msgs := streams[0].Messages
		cursor = msgs[len(msgs)-1].ID
	}
}

// reclaimStale takes over entries idle on other consumers for at least
// minIdle, following the XAUTOCLAIM cursor to its end.
func (ns *NotificationStream) reclaimStale(ctx context.Context, consumerName string, readCount int, minIdle time.Duration) error {
	start := "0-0"
	for {
		msgs, next, err := ns.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   ns.cfg.Streams.Key,
			Group:    ns.cfg.Streams.ConsumerGroup,
			Consumer: consumerName,
			MinIdle:  minIdle,
			Start:    start,
			Count:    int64(readCount),
		}).Result()
		if err != nil {
			return err
		}
		for _, m := range msgs {
			imetrics.Redis().StreamReadTotal.WithLabelValues(phaseClaimed).Inc()
			ns.processMessage(m)
		}
		if len(msgs) == 0 || next == "" || next == "0-0" || next == start {
			return nil
		}
		start = next
	}
}

// readNew blocks up to blockTimeout for new entries. It returns redis.Nil
// when nothing arrived. A missing group is recreated in place, which covers
// the stream key being deleted under a running reader.
func (ns *NotificationStream) readNew(ctx context.Context, consumerName string, readCount int, blockTimeout time.Duration) error {
	streams, err := ns.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    ns.cfg.Streams.ConsumerGroup,
		Consumer: consumerName,
		Streams:  []string{ns.cfg.Streams.Key, ">"},
		Count:    int64(readCount),
		Block:    blockTimeout,
	}).Result()
	if err != nil {
		if isNoGroupErr(err) {
			ns.log.Warn("Consumer group missing, recreating", "stream", ns.cfg.Streams.Key, "group", ns.cfg.Streams.ConsumerGroup)
			return ns.ensureConsumerGroup(ctx)
		}
		return err
	}
	ns.processAll(streams, phaseNew)
	return nil
}

func (ns *NotificationStream) processAll(streams []redis.XStream, phase string) {
	for _, s := range streams {
		for _, m := range s.Messages {
			imetrics.Redis().StreamReadTotal.WithLabelValues(phase).Inc()
			ns.processMessage(m)
		}
	}
}

// ackMessage acknowledges id with small bounded retries.
func (ns *NotificationStream) ackMessage(id string) {
	if id == "" {
		return
	}
	err := pattern.Retry(
		context.Background(),
		func(attempt int) error {
			_, err := ns.rdb.XAck(context.Background(), ns.cfg.Streams.Key, ns.cfg.Streams.ConsumerGroup, id).Result()
			if err != nil {
				ns.log.Warn("XACK failed", "stream", ns.cfg.Streams.Key, "id", id, "attempt", attempt, "err", err)
			}
			return err
		},
		pattern.WithMaxAttempts(3),
		pattern.WithInitialDelay(100*time.Millisecond),
		pattern.WithMaxDelay(500*time.Millisecond),
		pattern.WithShouldRetry(func(err error) bool { return !errors.Is(err, context.Canceled) }),
	)
	if err != nil {
		imetrics.Redis().StreamAckTotal.WithLabelValues("error").Inc()
		return
	}
	imetrics.Redis().StreamAckTotal.WithLabelValues("ok").Inc()
}

func isNoGroupErr(err error) bool {
	return err != nil && strings.Contains(strings.ToUpper(err.Error()), "NOGROUP")
}

func isCtxErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
