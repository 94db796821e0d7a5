package watch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bleach86/ghostcore-zmq/internal/adapter/subscribe"
	"github.com/bleach86/ghostcore-zmq/internal/core/entity"
	"github.com/bleach86/ghostcore-zmq/internal/core/port"
	"github.com/bleach86/ghostcore-zmq/internal/pkg/apperr"
	"github.com/bleach86/ghostcore-zmq/internal/pkg/applog"
	imetrics "github.com/bleach86/ghostcore-zmq/internal/pkg/metrics"
	"github.com/bleach86/ghostcore-zmq/internal/pkg/pattern"
)

// SourceFactory rebuilds the transport of one pool member after it fails.
type SourceFactory struct {
	Endpoint string
	New      func(ctx context.Context) (port.AsyncTransport, error)
}

// NotificationWatcher polls a receiver pool on one goroutine and dispatches
// every event to the handler. Failed members are rebuilt through their
// factory on a separate goroutine while the healthy ones keep delivering;
// members that cannot be rebuilt stay dropped. Only the poll loop touches the
// pool.
//
// Use NewNotificationWatcher to construct an instance and StartWatching to
// begin. StopWatching cancels the loop, which closes every member transport
// on exit.
type NotificationWatcher struct {
	log          applog.AppLogger
	wg           *sync.WaitGroup
	pool         *subscribe.Pool
	factories    []SourceFactory
	dropped      map[int]bool
	rebuilding   map[int]bool
	rebuilt      chan rebuildResult
	rebuildWG    sync.WaitGroup
	handler      port.EventHandler
	mu           sync.Mutex
	cancel       context.CancelFunc
	running      bool
	rebuildRetry []pattern.RetryOption

	wakeMu sync.Mutex
	wake   context.CancelFunc
}

type rebuildResult struct {
	src       int
	transport port.AsyncTransport
	err       error
}

// NewNotificationWatcher pairs pool member i with factories[i].
func NewNotificationWatcher(log applog.AppLogger, wg *sync.WaitGroup, pool *subscribe.Pool, factories []SourceFactory) (*NotificationWatcher, error) {
	if pool == nil || pool.Len() == 0 {
		return nil, apperr.NewWatchErr("receiver pool has no members", nil)
	}
	if len(factories) != pool.Len() {
		return nil, apperr.NewWatchErr("one source factory per pool member is required", nil)
	}
	return &NotificationWatcher{
		log:       log,
		wg:        wg,
		pool:      pool,
		factories:  factories,
		dropped:    make(map[int]bool),
		rebuilding: make(map[int]bool),
		rebuilt:    make(chan rebuildResult, len(factories)),
		rebuildRetry: []pattern.RetryOption{
			pattern.WithMaxAttempts(5),
			pattern.WithInitialDelay(500 * time.Millisecond),
			pattern.WithMaxDelay(10 * time.Second),
			pattern.WithJitter(0.2),
		},
	}, nil
}

// SetRebuildRetry overrides the retry policy used when rebuilding a member.
func (w *NotificationWatcher) SetRebuildRetry(opts ...pattern.RetryOption) {
	w.rebuildRetry = opts
}

func (w *NotificationWatcher) SetHandler(handler port.EventHandler) {
	w.handler = handler
}

func (w *NotificationWatcher) StartWatching() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return apperr.NewWatchErr("watcher already running", nil)
	}
	if w.handler == nil {
		w.mu.Unlock()
		return apperr.NewWatchErr("event handler is not configured", nil)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.running = true
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() {
			w.rebuildWG.Wait()
			w.discardRebuilt()
			w.closeMembers()
			w.mu.Lock()
			w.running = false
			w.cancel = nil
			w.mu.Unlock()
			w.log.Trace("Notification watcher stopped")
		}()
		w.watch(ctx)
	}()
	return nil
}

// Running reports whether the watch loop is active.
func (w *NotificationWatcher) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *NotificationWatcher) StopWatching() {
	w.mu.Lock()
	if w.cancel == nil {
		w.mu.Unlock()
		return
	}
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()
	w.log.Trace("Stopping notification watcher...")
	cancel()
}

func (w *NotificationWatcher) watch(ctx context.Context) {
	m := imetrics.Subscriber()
	for {
		pollCtx, wake := context.WithCancel(ctx)
		w.setWake(wake)
		w.applyRebuilt()
		m.ActiveSources.Set(float64(w.pool.Active()))

		src, ev, err := w.pool.PollAny(pollCtx)
		wake()
		switch {
		case err == nil:
			w.dispatch(src, ev)
		case ctx.Err() != nil:
			return
		case errors.Is(err, subscribe.ErrPoolEmpty):
			if len(w.rebuilding) > 0 {
				w.awaitRebuild(ctx)
				continue
			}
			w.log.Error("No notification source left; watcher stopping")
			imetrics.App().ErrorsTotal.WithLabelValues(imetrics.ComponentWatcher, "pool_empty").Inc()
			return
		case src < 0 && errors.Is(err, context.Canceled):
			// woken by a finished rebuild
		case isDecodeErr(err):
			w.log.Warn("Dropped malformed notification", "endpoint", w.endpoint(src), "err", err)
			imetrics.App().WarningsTotal.WithLabelValues(imetrics.ComponentWatcher, "decode").Inc()
		case w.dropped[src], w.rebuilding[src]:
			// closure of a member that is being or could not be rebuilt
		default:
			w.startRebuild(ctx, src, err)
		}
	}
}

// dispatch runs the handler on a background context, so the event in flight
// completes during shutdown.
func (w *NotificationWatcher) dispatch(src int, ev entity.Event) {
	endpoint := w.endpoint(src)
	if ev.Verdict.IsAnomaly() {
		w.log.Warn("Sequence anomaly detected",
			"endpoint", endpoint,
			"topic", ev.Notification.Topic.String(),
			"verdict", ev.Verdict.String(),
			"missed", ev.Verdict.Missed(),
		)
		imetrics.App().WarningsTotal.WithLabelValues(imetrics.ComponentWatcher, ev.Verdict.Kind.String()).Inc()
	}
	if err := w.handler(context.Background(), endpoint, ev); err != nil {
		w.log.Error("Event handler failed", "endpoint", endpoint, "notification", ev.Notification.String(), "err", err)
		imetrics.App().ErrorsTotal.WithLabelValues(imetrics.ComponentWatcher, "handler").Inc()
	}
}

// startRebuild closes the failed member and redials it in the background.
func (w *NotificationWatcher) startRebuild(ctx context.Context, src int, cause error) {
	f := w.factories[src]
	w.log.Warn("Notification source failed; rebuilding", "endpoint", f.Endpoint, "err", cause)
	if old := w.pool.Member(src); old != nil {
		_ = old.Transport().Close()
	}
	w.rebuilding[src] = true

	w.rebuildWG.Add(1)
	go func() {
		defer w.rebuildWG.Done()
		t, err := w.redial(ctx, f)
		w.rebuilt <- rebuildResult{src: src, transport: t, err: err}
		w.wakePoll()
	}()
}

func (w *NotificationWatcher) redial(ctx context.Context, f SourceFactory) (port.AsyncTransport, error) {
	var t port.AsyncTransport
	err := pattern.Retry(
		ctx,
		func(attempt int) error {
			nt, err := f.New(ctx)
			if err != nil {
				w.log.Warn("Rebuild attempt failed", "endpoint", f.Endpoint, "attempt", attempt, "err", err)
				return err
			}
			t = nt
			return nil
		},
		w.rebuildRetry...,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (w *NotificationWatcher) applyRebuilt() {
	for {
		select {
		case r := <-w.rebuilt:
			w.apply(r)
		default:
			return
		}
	}
}

// awaitRebuild blocks until a pending rebuild finishes or ctx ends. It is
// used when every live member is gone but some are still being redialed.
func (w *NotificationWatcher) awaitRebuild(ctx context.Context) {
	select {
	case r := <-w.rebuilt:
		w.apply(r)
	case <-ctx.Done():
	}
}

func (w *NotificationWatcher) apply(r rebuildResult) {
	delete(w.rebuilding, r.src)
	f := w.factories[r.src]
	if r.err != nil {
		w.dropped[r.src] = true
		imetrics.Subscriber().SourceRebuildsTotal.WithLabelValues("failed").Inc()
		w.log.Error("Dropping notification source", "endpoint", f.Endpoint, "err", r.err)
		return
	}
	w.pool.Replace(r.src, subscribe.NewStreamSubscriber(r.transport, subscribe.WithLogger(w.log), subscribe.WithEndpoint(f.Endpoint)))
	imetrics.Subscriber().SourceRebuildsTotal.WithLabelValues("ok").Inc()
	w.log.Info("Notification source rebuilt", "endpoint", f.Endpoint)
}

// discardRebuilt closes transports that finished dialing after the loop
// stopped.
func (w *NotificationWatcher) discardRebuilt() {
	for {
		select {
		case r := <-w.rebuilt:
			delete(w.rebuilding, r.src)
			if r.transport != nil {
				_ = r.transport.Close()
			}
		default:
			return
		}
	}
}

func (w *NotificationWatcher) setWake(wake context.CancelFunc) {
	w.wakeMu.Lock()
	w.wake = wake
	w.wakeMu.Unlock()
}

// wakePoll interrupts the current PollAny so the loop picks up a rebuild
// result.
func (w *NotificationWatcher) wakePoll() {
	w.wakeMu.Lock()
	wake := w.wake
	w.wakeMu.Unlock()
	if wake != nil {
		wake()
	}
}

func (w *NotificationWatcher) closeMembers() {
	for i := 0; i < w.pool.Len(); i++ {
		if s := w.pool.Member(i); s != nil {
			_ = s.Transport().Close()
		}
	}
	imetrics.Subscriber().ActiveSources.Set(0)
}

func (w *NotificationWatcher) endpoint(src int) string {
	if src < 0 || src >= len(w.factories) {
		return "unknown"
	}
	return w.factories[src].Endpoint
}

func isDecodeErr(err error) bool {
	var de *apperr.FrameDecodeErr
	return errors.As(err, &de)
}
