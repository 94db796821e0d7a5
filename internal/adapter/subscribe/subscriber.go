package subscribe

import (
	"errors"
	"iter"

	"github.com/bleach86/ghostcore-zmq/internal/core/entity"
	"github.com/bleach86/ghostcore-zmq/internal/core/port"
)

// Subscriber is the blocking facade: Next parks the calling goroutine in the
// transport until a message arrives. It never closes the transport.
//
// Not safe for concurrent use; the sequence tracker belongs to one caller.
type Subscriber struct {
	transport port.Transport
	pipe      *pipeline
}

func NewSubscriber(t port.Transport, opts ...Option) *Subscriber {
	return &Subscriber{transport: t, pipe: newPipeline(buildOptions(opts))}
}

// Next receives one message and returns it with its sequence verdict. Decode
// failures are returned without touching the tracker.
func (s *Subscriber) Next() (entity.Event, error) {
	parts, err := s.transport.Recv()
	if err != nil {
		return entity.Event{}, s.pipe.transportErr(err)
	}
	return s.pipe.process(parts)
}

// All yields events until the transport is closed or the consumer stops.
// Errors are yielded alongside a zero Event and iteration continues.
func (s *Subscriber) All() iter.Seq2[entity.Event, error] {
	return func(yield func(entity.Event, error) bool) {
		for {
			ev, err := s.Next()
			if errors.Is(err, port.ErrTransportClosed) {
				return
			}
			if !yield(ev, err) {
				return
			}
		}
	}
}

// Last returns the tracker baseline for topic.
func (s *Subscriber) Last(topic entity.Topic) (uint32, bool) {
	return s.pipe.tracker.Last(topic)
}
