package publish

import (
	"context"
	stdErrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/bleach86/ghostcore-zmq/internal/core/entity"
	"github.com/bleach86/ghostcore-zmq/internal/core/port"
)

type fakeKgo struct {
	beginErr error
	endErr   error
	prodErrs []error
	produced []*kgo.Record
}

func (f *fakeKgo) BeginTransaction() error                                           { return f.beginErr }
func (f *fakeKgo) EndTransaction(ctx context.Context, a kgo.TransactionEndTry) error { return f.endErr }
func (f *fakeKgo) ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	f.produced = append(f.produced, rs...)
	if len(f.prodErrs) == 0 {
		return kgo.ProduceResults{{Record: rs[0], Err: nil}}
	}
	e := f.prodErrs[0]
	f.prodErrs = f.prodErrs[1:]
	return kgo.ProduceResults{{Record: rs[0], Err: e}}
}

type testLogger struct{}

func (testLogger) Info(string, ...any)  {}
func (testLogger) Warn(string, ...any)  {}
func (testLogger) Error(string, ...any) {}
func (testLogger) Debug(string, ...any) {}
func (testLogger) Trace(string, ...any) {}
func (testLogger) Fatal(string, ...any) {}

func sampleRecord(counter uint32) *entity.Record {
	return &entity.Record{
		ID:      entity.RecordID(entity.TopicHashBlock, counter, []byte{1}),
		Topic:   entity.TopicHashBlock,
		Counter: counter,
		Verdict: entity.VerdictInOrder,
		Hash:    "00ff",
		Source:  "tcp://node:28332",
		Body:    []byte(`{"topic":"hashblock"}`),
	}
}

func withFakeClient(t *testing.T, fk *fakeKgo) {
	old := newKgoClient
	t.Cleanup(func() { newKgoClient = old })
	newKgoClient = func(opts ...kgo.Opt) (kgoClient, error) { return fk, nil }
}

func TestNewKafkaPublisher_InvalidConfig(t *testing.T) {
	v := validator.New()
	_, err := NewKafkaPublisher(nil, Config{}, v)
	require.Error(t, err)
}

func TestNewKafkaPublisher_ClientInitError(t *testing.T) {
	old := newKgoClient
	t.Cleanup(func() { newKgoClient = old })
	newKgoClient = func(opts ...kgo.Opt) (kgoClient, error) { return nil, stdErrors.New("bad opts") }

	_, err := NewKafkaPublisher(testLogger{}, Config{Brokers: []string{"b:9092"}, Topic: "t", ClientID: "c"}, validator.New())
	require.Error(t, err)
}

func TestKafkaPublisher_PublishNotification(t *testing.T) {
	v := validator.New()
	base := Config{Brokers: []string{"127.0.0.1:9092"}, Topic: "t", ClientID: "c", MaxRetryAttempts: 2, RetryInitialBackoffMS: 1, RetryMaxBackoffMS: 2, RetryJitter: 0.1, WriteTimeoutSeconds: 1}
	cases := []struct {
		name         string
		cfg          Config
		fk           *fakeKgo
		rec          *entity.Record
		headers      map[string]string
		wantErr      bool
		wantProduced int
	}{
		{name: "nil record", cfg: base, fk: &fakeKgo{}, rec: nil, wantErr: true},
		{name: "empty body", cfg: base, fk: &fakeKgo{}, rec: &entity.Record{ID: "x"}, wantErr: true},
		{name: "success no tx", cfg: base, fk: &fakeKgo{}, rec: sampleRecord(1), headers: map[string]string{"k": "v"}, wantProduced: 1},
		{name: "success tx", cfg: func() Config { c := base; c.TransactionalID = "tx"; return c }(), fk: &fakeKgo{}, rec: sampleRecord(2), wantProduced: 1},
		{name: "begin tx fails", cfg: func() Config { c := base; c.TransactionalID = "tx"; return c }(), fk: &fakeKgo{beginErr: stdErrors.New("fenced")}, rec: sampleRecord(2), wantErr: true},
		{name: "retry then succeed", cfg: base, fk: &fakeKgo{prodErrs: []error{context.DeadlineExceeded}}, rec: sampleRecord(3), wantProduced: 2},
		{name: "retries exhausted", cfg: base, fk: &fakeKgo{prodErrs: []error{context.DeadlineExceeded, context.DeadlineExceeded}}, rec: sampleRecord(4), wantErr: true, wantProduced: 2},
		{name: "non retriable stops", cfg: base, fk: &fakeKgo{prodErrs: []error{stdErrors.New("boom")}}, rec: sampleRecord(5), wantErr: true, wantProduced: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			withFakeClient(t, tc.fk)
			kp, err := NewKafkaPublisher(testLogger{}, tc.cfg, v)
			require.NoError(t, err)
			got := kp.PublishNotification(context.Background(), tc.rec, tc.headers)
			if tc.wantErr {
				require.Error(t, got)
			} else {
				require.NoError(t, got)
			}
			require.Len(t, tc.fk.produced, tc.wantProduced)
		})
	}
}

func TestHelpers(t *testing.T) {
	require.Equal(t, time.Duration(123)*time.Millisecond, millisecondsOrDefault(123, time.Second))
	require.Equal(t, time.Second, millisecondsOrDefault(0, time.Second))
	require.Equal(t, time.Duration(3)*time.Second, secondsOrDefault(3, time.Minute))
	require.Equal(t, time.Minute, secondsOrDefault(0, time.Minute))
}

func TestKafkaPublisher_ShouldRetry(t *testing.T) {
	kp := &KafkaPublisher{cfg: Config{Topic: "t"}}
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "broker message too large", err: kerr.MessageTooLarge, want: false},
		{name: "client record too large", err: kgo.ErrRecordTooLarge, want: false},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "unknown topic", err: kerr.UnknownTopicOrPartition, want: true},
		{name: "leader not available", err: kerr.LeaderNotAvailable, want: true},
		{name: "non-retriable", err: stdErrors.New("boom"), want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, kp.shouldRetry(tc.err))
		})
	}
}

func TestKafkaPublisher_BuildRecord(t *testing.T) {
	rec := sampleRecord(9)
	cases := []struct {
		name      string
		cfg       Config
		wantTopic string
	}{
		{name: "single topic", cfg: Config{Topic: "ghost"}, wantTopic: "ghost"},
		{name: "topic per notification", cfg: Config{Topic: "ghost", TopicPerNotification: true}, wantTopic: "ghost.hashblock"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			kp := &KafkaPublisher{cfg: tc.cfg}
			kr := kp.buildRecord(rec, map[string]string{"x": "y", "": "skipped"})
			require.Equal(t, tc.wantTopic, kr.Topic)
			require.Equal(t, []byte(rec.ID), kr.Key)
			require.Equal(t, rec.Body, kr.Value)

			got := map[string]string{}
			for _, h := range kr.Headers {
				got[h.Key] = string(h.Value)
			}
			require.Equal(t, map[string]string{
				HeaderTopic:   "hashblock",
				HeaderCounter: "9",
				HeaderVerdict: "in_order",
				HeaderSource:  "tcp://node:28332",
				HeaderHash:    "00ff",
				"x":           "y",
			}, got)
		})
	}
}

func TestErrorType(t *testing.T) {
	require.Equal(t, "UNKNOWN_TOPIC_OR_PARTITION", errorType(kerr.UnknownTopicOrPartition))
	require.Equal(t, "timeout", errorType(context.DeadlineExceeded))
	require.Equal(t, "canceled", errorType(context.Canceled))
	require.Equal(t, "other", errorType(stdErrors.New("x")))
	require.Equal(t, "record_too_large", errorType(fmt.Errorf("%w: x", port.ErrRecordTooLarge)))
}

func TestKafkaPublisher_RecordTooLarge(t *testing.T) {
	v := validator.New()
	base := Config{Brokers: []string{"127.0.0.1:9092"}, Topic: "t", ClientID: "c", MaxRetryAttempts: 3, RetryInitialBackoffMS: 1, RetryMaxBackoffMS: 2, MaxMessageBytes: 4096}
	big := sampleRecord(1)
	big.Body = make([]byte, 8192)

	cases := []struct {
		name         string
		fk           *fakeKgo
		rec          *entity.Record
		wantCause    error
		wantProduced int
	}{
		{name: "rejected before produce", fk: &fakeKgo{}, rec: big},
		{name: "broker rejects once", fk: &fakeKgo{prodErrs: []error{kerr.MessageTooLarge}}, rec: sampleRecord(2), wantCause: kerr.MessageTooLarge, wantProduced: 1},
		{name: "client rejects once", fk: &fakeKgo{prodErrs: []error{kgo.ErrRecordTooLarge}}, rec: sampleRecord(3), wantCause: kgo.ErrRecordTooLarge, wantProduced: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			withFakeClient(t, tc.fk)
			kp, err := NewKafkaPublisher(testLogger{}, base, v)
			require.NoError(t, err)

			err = kp.PublishNotification(context.Background(), tc.rec, nil)
			require.ErrorIs(t, err, port.ErrRecordTooLarge)
			if tc.wantCause != nil {
				require.ErrorIs(t, err, tc.wantCause)
			}
			require.Len(t, tc.fk.produced, tc.wantProduced, "size rejections are not retried")
		})
	}
}

func TestNewKafkaPublisher_MaxMessageBytesValidation(t *testing.T) {
	withFakeClient(t, &fakeKgo{})
	cfg := Config{Brokers: []string{"b:9092"}, Topic: "t", ClientID: "c", MaxMessageBytes: 10}
	_, err := NewKafkaPublisher(testLogger{}, cfg, validator.New())
	require.Error(t, err)

	cfg.MaxMessageBytes = 0
	kp, err := NewKafkaPublisher(testLogger{}, cfg, validator.New())
	require.NoError(t, err)
	require.Equal(t, defaultMaxMessageBytes, kp.maxMessageBytes)
}
