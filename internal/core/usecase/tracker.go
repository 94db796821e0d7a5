package usecase

import "github.com/bleach86/ghostcore-zmq/internal/core/entity"

// SequenceTracker keeps the last counter seen per topic and classifies each
// new one. Not safe for concurrent use.
type SequenceTracker struct {
	last map[entity.Topic]uint32
}

func NewSequenceTracker() *SequenceTracker {
	return &SequenceTracker{last: make(map[entity.Topic]uint32)}
}

// Observe classifies counter against the last one recorded for topic, using
// serial number arithmetic mod 2^32. Rewinds leave the baseline unchanged.
func (t *SequenceTracker) Observe(topic entity.Topic, counter uint32) entity.SequenceVerdict {
	if t.last == nil {
		t.last = make(map[entity.Topic]uint32)
	}
	last, seen := t.last[topic]
	if !seen {
		t.last[topic] = counter
		return entity.FirstSeen(counter)
	}

	switch d := int32(counter - last); {
	case d == 1:
		t.last[topic] = counter
		return entity.InOrder(counter)
	case d > 1:
		t.last[topic] = counter
		return entity.Gap(last+1, counter)
	default:
		return entity.Rewind(last, counter)
	}
}

// Last returns the baseline for topic, if any.
func (t *SequenceTracker) Last(topic entity.Topic) (uint32, bool) {
	c, ok := t.last[topic]
	return c, ok
}

// Reset forgets every topic; the next observation of each is FirstSeen again.
func (t *SequenceTracker) Reset() {
	clear(t.last)
}
