package subscribe

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/bleach86/ghostcore-zmq/internal/core/entity"
	"github.com/bleach86/ghostcore-zmq/internal/core/port"
	"github.com/bleach86/ghostcore-zmq/internal/pkg/apperr"
	"github.com/stretchr/testify/require"
)

func TestPool_EmptyPool(t *testing.T) {
	p := NewPool()
	src, _, err := p.PollAny(context.Background())
	require.Equal(t, -1, src)
	require.ErrorIs(t, err, ErrPoolEmpty)
}

func TestPool_FailingMemberDoesNotAffectOthers(t *testing.T) {
	a, b := newFakeAsync(4), newFakeAsync(4)
	p := NewPool(NewStreamSubscriber(a), NewStreamSubscriber(b))

	a.fail(io.ErrUnexpectedEOF)
	require.NoError(t, a.Close())
	b.push(hashMsg(1))
	b.push(hashMsg(2))

	var events []entity.SequenceVerdict
	var aErrs []error
	for len(events) < 2 || len(aErrs) < 2 {
		src, ev, err := p.PollAny(context.Background())
		if errors.Is(err, ErrPoolEmpty) {
			t.Fatal("pool emptied before b delivered")
		}
		if err != nil {
			var se *SourceErr
			require.ErrorAs(t, err, &se)
			require.Equal(t, src, se.Source)
			require.Equal(t, 0, src)
			aErrs = append(aErrs, se.Err)
			continue
		}
		require.Equal(t, 1, src)
		events = append(events, ev.Verdict)
	}
	require.Equal(t, []entity.SequenceVerdict{entity.FirstSeen(1), entity.InOrder(2)}, events)

	// a's terminal error first, then its closed channel; order within a source holds.
	var te *apperr.TransportErr
	require.ErrorAs(t, aErrs[0], &te)
	require.ErrorIs(t, aErrs[0], io.ErrUnexpectedEOF)
	require.ErrorIs(t, aErrs[1], port.ErrTransportClosed)
	require.Equal(t, 1, p.Active())
	require.Equal(t, 2, p.Len())
}

func TestPool_IndependentTrackers(t *testing.T) {
	a, b := newFakeAsync(1), newFakeAsync(1)
	p := NewPool(NewStreamSubscriber(a), NewStreamSubscriber(b))
	a.push(hashMsg(100))
	b.push(hashMsg(100))

	seen := map[int]entity.SequenceVerdict{}
	for len(seen) < 2 {
		src, ev, err := p.PollAny(context.Background())
		require.NoError(t, err)
		seen[src] = ev.Verdict
	}
	require.Equal(t, entity.FirstSeen(100), seen[0])
	require.Equal(t, entity.FirstSeen(100), seen[1])
}

func TestPool_ContextEnds(t *testing.T) {
	p := NewPool(NewStreamSubscriber(newFakeAsync(0)))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	src, _, err := p.PollAny(ctx)
	require.Equal(t, -1, src)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 1, p.Active())
}

func TestPool_AllClosedThenEmpty(t *testing.T) {
	a := newFakeAsync(0)
	p := NewPool(NewStreamSubscriber(a))
	require.NoError(t, a.Close())

	_, _, err := p.PollAny(context.Background())
	require.ErrorIs(t, err, port.ErrTransportClosed)
	_, _, err = p.PollAny(context.Background())
	require.ErrorIs(t, err, ErrPoolEmpty)
}

func TestPool_ReplaceRevivesAndRemoveShifts(t *testing.T) {
	a, b, c := newFakeAsync(1), newFakeAsync(1), newFakeAsync(1)
	sa, sb := NewStreamSubscriber(a), NewStreamSubscriber(b)
	p := NewPool(sa, sb)
	require.NoError(t, a.Close())
	_, _, err := p.PollAny(context.Background())
	require.ErrorIs(t, err, port.ErrTransportClosed)
	require.Equal(t, 1, p.Active())

	sc := NewStreamSubscriber(c)
	require.Same(t, sa, p.Replace(0, sc))
	require.Equal(t, 2, p.Active())
	c.push(hashMsg(3))
	src, ev, err := p.PollAny(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, src)
	require.Equal(t, entity.FirstSeen(3), ev.Verdict)

	require.Same(t, sc, p.Remove(0))
	require.Same(t, sb, p.Member(0))
	require.Nil(t, p.Remove(5))
	require.Nil(t, p.Replace(-1, sc))
	require.Nil(t, p.Member(3))
	require.Equal(t, 1, p.Len())
	require.Equal(t, 1, p.Add(sc))
}
