package entity

import "fmt"

// VerdictKind classifies a counter against the last one seen on its topic.
type VerdictKind uint8

const (
	VerdictFirstSeen VerdictKind = iota
	VerdictInOrder
	VerdictGap
	VerdictRewind
)

func (k VerdictKind) String() string {
	switch k {
	case VerdictFirstSeen:
		return "first_seen"
	case VerdictInOrder:
		return "in_order"
	case VerdictGap:
		return "gap"
	case VerdictRewind:
		return "rewind"
	default:
		return "unknown"
	}
}

// ParseVerdictKind maps a label produced by VerdictKind.String back to its kind.
func ParseVerdictKind(s string) (VerdictKind, bool) {
	for _, k := range []VerdictKind{VerdictFirstSeen, VerdictInOrder, VerdictGap, VerdictRewind} {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}

// SequenceVerdict is the tracker's diagnosis of one counter. Expected is set
// for gaps, Previous for rewinds.
type SequenceVerdict struct {
	Kind     VerdictKind
	Expected uint32
	Previous uint32
	Got      uint32
}

// FirstSeen is the verdict for the first counter observed on a topic.
func FirstSeen(got uint32) SequenceVerdict { return SequenceVerdict{Kind: VerdictFirstSeen, Got: got} }

// InOrder is the verdict for a counter exactly one past the last.
func InOrder(got uint32) SequenceVerdict { return SequenceVerdict{Kind: VerdictInOrder, Got: got} }

// Gap reports that counters expected..got-1 were missed.
func Gap(expected, got uint32) SequenceVerdict {
	return SequenceVerdict{Kind: VerdictGap, Expected: expected, Got: got}
}

// Rewind reports a counter at or behind previous.
func Rewind(previous, got uint32) SequenceVerdict {
	return SequenceVerdict{Kind: VerdictRewind, Previous: previous, Got: got}
}

// IsAnomaly reports a gap or a rewind.
func (v SequenceVerdict) IsAnomaly() bool {
	return v.Kind == VerdictGap || v.Kind == VerdictRewind
}

// Missed is the number of notifications skipped by a gap, mod 2^32.
func (v SequenceVerdict) Missed() uint32 {
	if v.Kind != VerdictGap {
		return 0
	}
	return v.Got - v.Expected
}

func (v SequenceVerdict) String() string {
	switch v.Kind {
	case VerdictGap:
		return fmt.Sprintf("gap(expected=%d, got=%d)", v.Expected, v.Got)
	case VerdictRewind:
		return fmt.Sprintf("rewind(previous=%d, got=%d)", v.Previous, v.Got)
	default:
		return fmt.Sprintf("%s(%d)", v.Kind, v.Got)
	}
}

// Event pairs a decoded notification with its sequence verdict.
type Event struct {
	Notification *Notification
	Verdict      SequenceVerdict
}
