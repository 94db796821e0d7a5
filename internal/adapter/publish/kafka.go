package publish

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/bleach86/ghostcore-zmq/internal/core/entity"
	"github.com/bleach86/ghostcore-zmq/internal/core/port"
	"github.com/bleach86/ghostcore-zmq/internal/pkg/apperr"
	"github.com/bleach86/ghostcore-zmq/internal/pkg/applog"
	imetrics "github.com/bleach86/ghostcore-zmq/internal/pkg/metrics"
	"github.com/bleach86/ghostcore-zmq/internal/pkg/pattern"
)

const (
	defaultRetryAttempts       = 5
	defaultRetryInitialBackoff = 200 * time.Millisecond
	defaultRetryMaxBackoff     = 2 * time.Second
	defaultRetryJitter         = 0.2
	defaultWriteTimeout        = 10 * time.Second
	// broker default max.message.bytes
	defaultMaxMessageBytes = 1048588
)

const (
	HeaderTopic   = "zmq-topic"
	HeaderCounter = "zmq-counter"
	HeaderVerdict = "zmq-verdict"
	HeaderSource  = "zmq-source"
	HeaderHash    = "zmq-hash"
)

// kgoClient is the subset of *kgo.Client the publisher needs.
type kgoClient interface {
	BeginTransaction() error
	EndTransaction(ctx context.Context, commit kgo.TransactionEndTry) error
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

var newKgoClient = func(opts ...kgo.Opt) (kgoClient, error) {
	c, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// KafkaPublisher publishes relayed notifications to Kafka.
type KafkaPublisher struct {
	log             applog.AppLogger
	client          kgoClient
	cfg             Config
	writeTimeout    time.Duration
	maxMessageBytes int
	retryOpts       []pattern.RetryOption
}

// NewKafkaPublisher builds a Kafka-backed publisher with validated configuration and retry settings.
func NewKafkaPublisher(log applog.AppLogger, cfg Config, v *validator.Validate) (*KafkaPublisher, error) {
	if err := v.Struct(cfg); err != nil {
		return nil, apperr.NewInvalidArgErr("invalid kafka publisher config", err)
	}

	maxAttempts := cfg.MaxRetryAttempts
	if maxAttempts == 0 {
		maxAttempts = defaultRetryAttempts
	}

	initialBackoff := millisecondsOrDefault(cfg.RetryInitialBackoffMS, defaultRetryInitialBackoff)
	maxBackoff := millisecondsOrDefault(cfg.RetryMaxBackoffMS, defaultRetryMaxBackoff)
	if maxBackoff < initialBackoff {
		maxBackoff = initialBackoff
	}

	writeTimeout := secondsOrDefault(cfg.WriteTimeoutSeconds, defaultWriteTimeout)
	jitter := cfg.RetryJitter
	if jitter <= 0 {
		jitter = defaultRetryJitter
	}

	maxMessageBytes := cfg.MaxMessageBytes
	if maxMessageBytes == 0 {
		maxMessageBytes = defaultMaxMessageBytes
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchMaxBytes(int32(maxMessageBytes)),
	}
	if cfg.TransactionalID != "" {
		opts = append(opts, kgo.TransactionalID(cfg.TransactionalID))
	}
	client, err := newKgoClient(opts...)
	if err != nil {
		return nil, apperr.NewInvalidArgErr("failed to init kafka client", err)
	}

	kp := &KafkaPublisher{
		log:             log,
		client:          client,
		cfg:             cfg,
		writeTimeout:    writeTimeout,
		maxMessageBytes: maxMessageBytes,
	}

	kp.retryOpts = []pattern.RetryOption{
		pattern.WithMaxAttempts(maxAttempts),
		pattern.WithInitialDelay(initialBackoff),
		pattern.WithMaxDelay(maxBackoff),
		pattern.WithJitter(jitter),
		pattern.WithShouldRetry(kp.shouldRetry),
	}

	return kp, nil
}

// PublishNotification publishes rec.Body keyed by rec.ID so consumers can
// deduplicate. Extra headers (e.g. source-message-id) are appended. Records
// over the size limit fail with port.ErrRecordTooLarge and are not retried.
func (kp *KafkaPublisher) PublishNotification(ctx context.Context, rec *entity.Record, headers map[string]string) error {
	if rec == nil {
		return apperr.NewInvalidArgErr("record is required", nil)
	}
	if rec.ID == "" || len(rec.Body) == 0 {
		return apperr.NewInvalidArgErr("record id and body are required", nil)
	}

	kr := kp.buildRecord(rec, headers)
	m := imetrics.Kafka()
	if size := recordSize(kr); size > kp.maxMessageBytes {
		m.ProduceErrorsTotal.WithLabelValues("record_too_large").Inc()
		kp.log.Error("Notification exceeds kafka max message size", "id", rec.ID, "topic", kr.Topic, "size", size, "max", kp.maxMessageBytes)
		return apperr.NewRelayProcessErr("failed to publish notification to kafka",
			fmt.Errorf("%w: %d > %d bytes", port.ErrRecordTooLarge, size, kp.maxMessageBytes))
	}
	if err := pattern.Retry(ctx, func(attempt int) error {
		if kp.cfg.TransactionalID != "" {
			if err := kp.client.BeginTransaction(); err != nil {
				return err
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, kp.writeTimeout)
		defer cancel()

		m.ProduceAttemptsTotal.Inc()
		started := time.Now()
		res := kp.client.ProduceSync(attemptCtx, kr)
		writeErr := res.FirstErr()
		if kp.cfg.TransactionalID != "" {
			if writeErr == nil {
				if err := kp.client.EndTransaction(context.Background(), kgo.TryCommit); err != nil {
					writeErr = err
				}
			} else {
				_ = kp.client.EndTransaction(context.Background(), kgo.TryAbort)
			}
		}
		m.ProduceLatencyMS.Observe(float64(time.Since(started).Milliseconds()))

		if writeErr != nil {
			if isTooLarge(writeErr) {
				writeErr = fmt.Errorf("%w: %w", port.ErrRecordTooLarge, writeErr)
			}
			m.ProduceErrorsTotal.WithLabelValues(errorType(writeErr)).Inc()
			if kp.shouldRetry(writeErr) {
				kp.log.Warn("Kafka publish attempt failed", "attempt", attempt, "id", rec.ID, "topic", kr.Topic, "err", writeErr)
			} else {
				kp.log.Error("Kafka publish failed (non-retriable)", "id", rec.ID, "topic", kr.Topic, "err", writeErr)
			}
			return writeErr
		}
		m.ProduceSuccessTotal.Inc()
		return nil
	}, kp.retryOpts...); err != nil {
		return apperr.NewRelayProcessErr("failed to publish notification to kafka", err)
	}

	kp.log.Trace("Published notification to Kafka", "topic", kr.Topic, "id", rec.ID, "counter", rec.Counter)
	return nil
}

// topicFor returns the Kafka topic for a notification topic.
func (kp *KafkaPublisher) topicFor(t entity.Topic) string {
	if kp.cfg.TopicPerNotification {
		return kp.cfg.Topic + "." + t.String()
	}
	return kp.cfg.Topic
}

func (kp *KafkaPublisher) buildRecord(rec *entity.Record, extras map[string]string) *kgo.Record {
	// Timestamp left to broker (CreateTime / LogAppendTime), not set explicitly.
	headers := []kgo.RecordHeader{
		{Key: HeaderTopic, Value: []byte(rec.Topic.String())},
		{Key: HeaderCounter, Value: []byte(strconv.FormatUint(uint64(rec.Counter), 10))},
		{Key: HeaderVerdict, Value: []byte(rec.Verdict.String())},
	}
	if rec.Source != "" {
		headers = append(headers, kgo.RecordHeader{Key: HeaderSource, Value: []byte(rec.Source)})
	}
	if rec.Hash != "" {
		headers = append(headers, kgo.RecordHeader{Key: HeaderHash, Value: []byte(rec.Hash)})
	}
	for k, v := range extras {
		if k == "" {
			continue
		}
		headers = append(headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
	}

	return &kgo.Record{
		Topic:   kp.topicFor(rec.Topic),
		Key:     []byte(rec.ID),
		Value:   rec.Body,
		Headers: headers,
	}
}

func (kp *KafkaPublisher) shouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, port.ErrRecordTooLarge) || isTooLarge(err) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	// Broker-marked retriable errors: leader changes, coordinator load,
	// not enough replicas.
	if kerr.IsRetriable(err) {
		return true
	}

	// The topic may be provisioned shortly after startup.
	if errors.Is(err, kerr.UnknownTopicOrPartition) {
		return true
	}
	return false
}

// isTooLarge matches the client-side and broker-side size rejections.
func isTooLarge(err error) bool {
	return errors.Is(err, kgo.ErrRecordTooLarge) ||
		errors.Is(err, kerr.MessageTooLarge) ||
		errors.Is(err, kerr.RecordListTooLarge)
}

func recordSize(r *kgo.Record) int {
	n := len(r.Key) + len(r.Value)
	for _, h := range r.Headers {
		n += len(h.Key) + len(h.Value)
	}
	return n
}

func errorType(err error) string {
	var ke *kerr.Error
	switch {
	case errors.Is(err, port.ErrRecordTooLarge):
		return "record_too_large"
	case errors.As(err, &ke):
		return ke.Message
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "other"
	}
}

func millisecondsOrDefault(ms int, fallback time.Duration) time.Duration {
	if ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

func secondsOrDefault(seconds int, fallback time.Duration) time.Duration {
	if seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}
