package subscribe

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/bleach86/ghostcore-zmq/internal/core/entity"
	"github.com/bleach86/ghostcore-zmq/internal/core/port"
)

// ErrPoolEmpty is returned by PollAny when no member can deliver anymore.
var ErrPoolEmpty = errors.New("receiver pool has no live members")

// SourceErr attributes a member failure to its index in the pool.
type SourceErr struct {
	Source int
	Err    error
}

func (e *SourceErr) Error() string { return fmt.Sprintf("source %d: %v", e.Source, e.Err) }
func (e *SourceErr) Unwrap() error { return e.Err }

type member struct {
	sub  *StreamSubscriber
	done bool
}

// Pool fans in several StreamSubscribers. Each member keeps its own tracker,
// so ordering holds within a source but not across sources. The pool spawns
// no goroutines; membership changes must be serialised by the owner.
type Pool struct {
	members []member
}

func NewPool(members ...*StreamSubscriber) *Pool {
	p := &Pool{}
	for _, m := range members {
		p.Add(m)
	}
	return p
}

// Add appends a member and returns its index.
func (p *Pool) Add(s *StreamSubscriber) int {
	p.members = append(p.members, member{sub: s})
	return len(p.members) - 1
}

// Remove drops member i and shifts the following indices down. It returns the
// removed subscriber, or nil when i is out of range.
func (p *Pool) Remove(i int) *StreamSubscriber {
	if i < 0 || i >= len(p.members) {
		return nil
	}
	s := p.members[i].sub
	p.members = append(p.members[:i], p.members[i+1:]...)
	return s
}

// Replace swaps member i for s, keeping its index, and returns the previous
// subscriber. The new member starts live.
func (p *Pool) Replace(i int, s *StreamSubscriber) *StreamSubscriber {
	if i < 0 || i >= len(p.members) {
		return nil
	}
	old := p.members[i].sub
	p.members[i] = member{sub: s}
	return old
}

// Member returns subscriber i, or nil when i is out of range.
func (p *Pool) Member(i int) *StreamSubscriber {
	if i < 0 || i >= len(p.members) {
		return nil
	}
	return p.members[i].sub
}

// Len counts members, finished ones included.
func (p *Pool) Len() int { return len(p.members) }

// Active counts members whose delivery channel is still open.
func (p *Pool) Active() int {
	n := 0
	for _, m := range p.members {
		if !m.done {
			n++
		}
	}
	return n
}

// PollAny waits for the first delivery from any live member and runs it
// through that member's pipeline. Member failures come back as *SourceErr; a
// closed delivery channel marks the member done and reports
// port.ErrTransportClosed for it.
func (p *Pool) PollAny(ctx context.Context) (int, entity.Event, error) {
	cases := make([]reflect.SelectCase, 0, len(p.members)+1)
	sources := make([]int, 0, len(p.members))
	for i, m := range p.members {
		if m.done {
			continue
		}
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(m.sub.deliveries())})
		sources = append(sources, i)
	}
	if len(sources) == 0 {
		return -1, entity.Event{}, ErrPoolEmpty
	}
	cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ctx.Done())})

	chosen, v, ok := reflect.Select(cases)
	if chosen == len(sources) {
		return -1, entity.Event{}, ctx.Err()
	}

	src := sources[chosen]
	if !ok {
		p.members[src].done = true
		return src, entity.Event{}, &SourceErr{Source: src, Err: port.ErrTransportClosed}
	}
	ev, err := p.members[src].sub.handle(v.Interface().(port.Delivery))
	if err != nil {
		return src, entity.Event{}, &SourceErr{Source: src, Err: err}
	}
	return src, ev, nil
}
