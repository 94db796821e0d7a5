package subscribe

import (
	"errors"
	"strconv"

	"github.com/bleach86/ghostcore-zmq/internal/core/entity"
	"github.com/bleach86/ghostcore-zmq/internal/core/port"
	"github.com/bleach86/ghostcore-zmq/internal/core/usecase"
	"github.com/bleach86/ghostcore-zmq/internal/pkg/apperr"
	"github.com/bleach86/ghostcore-zmq/internal/pkg/applog"
	imetrics "github.com/bleach86/ghostcore-zmq/internal/pkg/metrics"
)

// Option configures a subscriber facade.
type Option func(*options)

type options struct {
	log      applog.AppLogger
	endpoint string
}

// WithLogger routes per-message diagnostics to log at Trace level.
func WithLogger(log applog.AppLogger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithEndpoint names the source in logs and transport error metrics.
func WithEndpoint(endpoint string) Option {
	return func(o *options) { o.endpoint = endpoint }
}

func buildOptions(opts []Option) options {
	o := options{log: applog.Nop{}, endpoint: "unknown"}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// pipeline is the decode then observe step shared by both facades. It owns
// the tracker of exactly one facade.
type pipeline struct {
	tracker *usecase.SequenceTracker
	log     applog.AppLogger
	source  string
}

func newPipeline(o options) *pipeline {
	return &pipeline{tracker: usecase.NewSequenceTracker(), log: o.log, source: o.endpoint}
}

// process decodes parts and consults the tracker only when decoding succeeds,
// since a malformed frame has no trustworthy counter.
func (p *pipeline) process(parts [][]byte) (entity.Event, error) {
	n, err := usecase.Decode(parts)
	if err != nil {
		p.rejected(err, len(parts))
		return entity.Event{}, err
	}

	v := p.tracker.Observe(n.Topic, n.Counter)
	p.observed(n, v)
	return entity.Event{Notification: n, Verdict: v}, nil
}

// transportErr wraps a collaborator failure. Closure passes through as is.
func (p *pipeline) transportErr(err error) error {
	if errors.Is(err, port.ErrTransportClosed) {
		return port.ErrTransportClosed
	}
	imetrics.Subscriber().TransportErrorsTotal.WithLabelValues(p.source).Inc()
	p.log.Trace("Transport receive failed", "endpoint", p.source, "err", err)
	return apperr.NewTransportErr("receive from "+p.source+" failed", err)
}

func (p *pipeline) rejected(err error, parts int) {
	code := "DECODE_ERROR"
	var de *apperr.FrameDecodeErr
	if errors.As(err, &de) {
		code = de.Code()
	}
	imetrics.Subscriber().DecodeErrorsTotal.WithLabelValues(code).Inc()
	p.log.Trace("Rejected notification frame", "endpoint", p.source, "parts", parts, "code", code, "err", err)
}

func (p *pipeline) observed(n *entity.Notification, v entity.SequenceVerdict) {
	m := imetrics.Subscriber()
	topic := n.Topic.String()
	m.NotificationsTotal.WithLabelValues(topic).Inc()
	m.NotificationBytesTotal.WithLabelValues(topic).Add(float64(len(n.Payload)))
	m.SequenceVerdictsTotal.WithLabelValues(topic, v.Kind.String()).Inc()

	if !v.IsAnomaly() {
		return
	}
	if missed := v.Missed(); missed > 0 {
		m.MissedNotifications.WithLabelValues(topic).Add(float64(missed))
	}
	p.log.Trace("Sequence anomaly", "endpoint", p.source, "topic", topic, "verdict", v.String(), "counter", strconv.FormatUint(uint64(n.Counter), 10))
}
