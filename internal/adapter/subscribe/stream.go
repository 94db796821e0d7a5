package subscribe

import (
	"context"
	"errors"
	"iter"

	"github.com/bleach86/ghostcore-zmq/internal/core/entity"
	"github.com/bleach86/ghostcore-zmq/internal/core/port"
)

// StreamSubscriber is the cooperative facade. Next waits on the transport's
// delivery channel or ctx; abandoning the wait leaves no partial state since
// the tracker is consulted only after a full decode.
type StreamSubscriber struct {
	transport port.AsyncTransport
	pipe      *pipeline
	ch        <-chan port.Delivery
}

func NewStreamSubscriber(t port.AsyncTransport, opts ...Option) *StreamSubscriber {
	return &StreamSubscriber{transport: t, pipe: newPipeline(buildOptions(opts))}
}

// Next returns the next event, ctx.Err() when ctx ends first, or
// port.ErrTransportClosed once the delivery channel is closed.
func (s *StreamSubscriber) Next(ctx context.Context) (entity.Event, error) {
	select {
	case <-ctx.Done():
		return entity.Event{}, ctx.Err()
	case d, ok := <-s.deliveries():
		if !ok {
			return entity.Event{}, port.ErrTransportClosed
		}
		return s.handle(d)
	}
}

// Events yields until the transport closes, ctx ends, or the consumer stops.
// An event decoded before ctx ended is still yielded.
func (s *StreamSubscriber) Events(ctx context.Context) iter.Seq2[entity.Event, error] {
	return func(yield func(entity.Event, error) bool) {
		for {
			ev, err := s.Next(ctx)
			if err != nil && (errors.Is(err, port.ErrTransportClosed) || ctx.Err() != nil) {
				return
			}
			if !yield(ev, err) {
				return
			}
		}
	}
}

// Transport exposes the underlying transport so the owner can close it.
func (s *StreamSubscriber) Transport() port.AsyncTransport { return s.transport }

// Last returns the tracker baseline for topic.
func (s *StreamSubscriber) Last(topic entity.Topic) (uint32, bool) {
	return s.pipe.tracker.Last(topic)
}

func (s *StreamSubscriber) deliveries() <-chan port.Delivery {
	if s.ch == nil {
		s.ch = s.transport.Deliveries()
	}
	return s.ch
}

func (s *StreamSubscriber) handle(d port.Delivery) (entity.Event, error) {
	if d.Err != nil {
		return entity.Event{}, s.pipe.transportErr(d.Err)
	}
	return s.pipe.process(d.Parts)
}
