package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bleach86/ghostcore-zmq/internal/core/port"
	"github.com/bleach86/ghostcore-zmq/internal/pkg/apperr"
	"github.com/bleach86/ghostcore-zmq/internal/pkg/applog"
	imetrics "github.com/bleach86/ghostcore-zmq/internal/pkg/metrics"
	"github.com/bleach86/ghostcore-zmq/internal/pkg/pattern"
	"github.com/go-playground/validator/v10"
	"github.com/go-zeromq/zmq4"
)

// zmqSocket is the subset of zmq4.Socket used by ZMQSubscriber.
type zmqSocket interface {
	Dial(ep string) error
	SetOption(name string, value interface{}) error
	Recv() (zmq4.Msg, error)
	Close() error
}

// newSubSocket is swapped in tests.
var newSubSocket = func(ctx context.Context) zmqSocket {
	return zmq4.NewSub(ctx)
}

// ZMQSubscriber is a SUB socket connected to one node endpoint. It serves both
// port.Transport (Recv) and port.AsyncTransport (Deliveries); use one or the
// other on a given instance.
type ZMQSubscriber struct {
	log    applog.AppLogger
	cfg    Config
	sock   zmqSocket
	cancel context.CancelFunc

	closed    atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error

	pumpOnce sync.Once
	ch       chan port.Delivery
}

// NewZMQSubscriber validates cfg, dials the endpoint with retry bounded by ctx,
// and subscribes to the configured topics. The socket outlives ctx; release it
// with Close.
func NewZMQSubscriber(ctx context.Context, log applog.AppLogger, cfg *Config, v *validator.Validate) (*ZMQSubscriber, error) {
	if err := v.Struct(cfg); err != nil {
		log.Error("invalid zmq config", "err", err)
		return nil, apperr.NewInvalidArgErr("invalid zmq config", err)
	}

	sockCtx, cancel := context.WithCancel(context.Background())
	z := &ZMQSubscriber{
		log:    log,
		cfg:    *cfg,
		sock:   newSubSocket(sockCtx),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	if err := z.dial(ctx); err != nil {
		_ = z.Close()
		return nil, apperr.NewTransportErr("failed to dial "+cfg.Endpoint, err)
	}

	topics := cfg.Topics
	if len(topics) == 0 {
		topics = []string{""}
	}
	for _, topic := range topics {
		if err := z.sock.SetOption(zmq4.OptionSubscribe, topic); err != nil {
			_ = z.Close()
			return nil, apperr.NewTransportErr("failed to subscribe to "+topic, err)
		}
	}

	log.Info("Subscribed to ZMQ endpoint", "endpoint", cfg.Endpoint, "topics", cfg.Topics)
	return z, nil
}

func (z *ZMQSubscriber) dial(ctx context.Context) error {
	opts := []pattern.RetryOption{
		pattern.WithInfiniteAttempts(),
		pattern.WithInitialDelay(500 * time.Millisecond),
		pattern.WithMaxDelay(10 * time.Second),
		pattern.WithMultiplier(2.0),
		pattern.WithJitter(0.2),
	}
	opts = append(opts, dialRetryOptionsFromConfig(&z.cfg)...)

	return pattern.Retry(
		ctx,
		func(attempt int) error {
			err := z.sock.Dial(z.cfg.Endpoint)
			if err != nil {
				z.log.Warn("ZMQ dial failed", "endpoint", z.cfg.Endpoint, "attempt", attempt, "err", err)
				imetrics.App().WarningsTotal.WithLabelValues(imetrics.ComponentSubscriber, "dial").Inc()
			}
			return err
		},
		opts...,
	)
}

// dialRetryOptionsFromConfig builds retry options from the provided Config.
func dialRetryOptionsFromConfig(cfg *Config) []pattern.RetryOption {
	var opts []pattern.RetryOption
	if cfg.DialMaxRetryAttempts > 0 {
		opts = append(opts, pattern.WithMaxAttempts(cfg.DialMaxRetryAttempts))
	}
	if cfg.DialRetryInitialBackoffMS > 0 {
		opts = append(opts, pattern.WithInitialDelay(time.Duration(cfg.DialRetryInitialBackoffMS)*time.Millisecond))
	}
	if cfg.DialRetryMaxBackoffMS > 0 {
		opts = append(opts, pattern.WithMaxDelay(time.Duration(cfg.DialRetryMaxBackoffMS)*time.Millisecond))
	}
	if cfg.DialRetryJitter > 0 {
		opts = append(opts, pattern.WithJitter(cfg.DialRetryJitter))
	}
	return opts
}

// Endpoint returns the address this socket is connected to.
func (z *ZMQSubscriber) Endpoint() string { return z.cfg.Endpoint }

// Recv blocks until the next multipart message arrives. After Close it
// returns port.ErrTransportClosed.
func (z *ZMQSubscriber) Recv() ([][]byte, error) {
	if z.closed.Load() {
		return nil, port.ErrTransportClosed
	}
	msg, err := z.sock.Recv()
	if err != nil {
		if z.closed.Load() {
			return nil, port.ErrTransportClosed
		}
		return nil, err
	}
	return msg.Frames, nil
}

// Deliveries starts the receive pump on first use. The pump forwards each
// message, forwards the first receive error, and then closes the channel.
func (z *ZMQSubscriber) Deliveries() <-chan port.Delivery {
	z.pumpOnce.Do(func() {
		z.ch = make(chan port.Delivery, z.cfg.DeliveryBuffer)
		go z.pump()
	})
	return z.ch
}

func (z *ZMQSubscriber) pump() {
	defer close(z.ch)
	for {
		parts, err := z.Recv()
		if errors.Is(err, port.ErrTransportClosed) {
			return
		}
		select {
		case z.ch <- port.Delivery{Parts: parts, Err: err}:
		case <-z.done:
			return
		}
		if err != nil {
			z.log.Warn("ZMQ receive failed; stopping delivery", "endpoint", z.cfg.Endpoint, "err", err)
			return
		}
	}
}

// Close releases the socket. Calling it more than once is safe.
func (z *ZMQSubscriber) Close() error {
	z.closeOnce.Do(func() {
		z.closed.Store(true)
		close(z.done)
		z.closeErr = z.sock.Close()
		z.cancel()
		z.log.Trace("Closed ZMQ subscriber", "endpoint", z.cfg.Endpoint)
	})
	return z.closeErr
}
