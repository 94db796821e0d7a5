package infra

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/bleach86/ghostcore-zmq/internal/adapter/subscribe"
	"github.com/bleach86/ghostcore-zmq/internal/adapter/transport"
	"github.com/bleach86/ghostcore-zmq/internal/adapter/watch"
	"github.com/bleach86/ghostcore-zmq/internal/core/port"
	"github.com/bleach86/ghostcore-zmq/internal/pkg/applog"
)

// InitReceiverPool dials one ZMQ SUB socket per configured endpoint and
// returns the pool with a matching rebuild factory per member. Sockets that
// were already dialed are closed when a later one fails.
func InitReceiverPool(ctx context.Context, log applog.AppLogger, v *validator.Validate) (*subscribe.Pool, []watch.SourceFactory, error) {
	endpoints := viper.GetStringSlice("zmq.endpoints")
	if len(endpoints) == 0 {
		return nil, nil, fmt.Errorf("infra: zmq.endpoints is empty")
	}

	pool := subscribe.NewPool()
	factories := make([]watch.SourceFactory, 0, len(endpoints))
	for _, endpoint := range endpoints {
		cfg := loadTransportConfig(endpoint)
		t, err := transport.NewZMQSubscriber(ctx, log, &cfg, v)
		if err != nil {
			closePool(pool)
			return nil, nil, fmt.Errorf("infra: failed to init zmq subscriber %s: %w", endpoint, err)
		}
		pool.Add(subscribe.NewStreamSubscriber(t, subscribe.WithLogger(log), subscribe.WithEndpoint(endpoint)))
		factories = append(factories, watch.SourceFactory{
			Endpoint: endpoint,
			New: func(ctx context.Context) (port.AsyncTransport, error) {
				t, err := transport.NewZMQSubscriber(ctx, log, &cfg, v)
				if err != nil {
					return nil, err
				}
				return t, nil
			},
		})
	}
	return pool, factories, nil
}

// InitWatcher builds the receiver pool and the watcher that drives it.
func InitWatcher(ctx context.Context, log applog.AppLogger, wg *sync.WaitGroup, v *validator.Validate) (*watch.NotificationWatcher, error) {
	if wg == nil {
		wg = &sync.WaitGroup{}
	}
	pool, factories, err := InitReceiverPool(ctx, log, v)
	if err != nil {
		return nil, err
	}
	w, err := watch.NewNotificationWatcher(log, wg, pool, factories)
	if err != nil {
		closePool(pool)
		return nil, fmt.Errorf("infra: failed to init watcher: %w", err)
	}
	return w, nil
}

func loadTransportConfig(endpoint string) transport.Config {
	return transport.Config{
		Endpoint:                  endpoint,
		Topics:                    viper.GetStringSlice("zmq.topics"),
		DialMaxRetryAttempts:      viper.GetInt("zmq.dial_max_retry_attempts"),
		DialRetryInitialBackoffMS: viper.GetInt("zmq.dial_retry_initial_backoff_ms"),
		DialRetryMaxBackoffMS:     viper.GetInt("zmq.dial_retry_max_backoff_ms"),
		DialRetryJitter:           viper.GetFloat64("zmq.dial_retry_jitter"),
		DeliveryBuffer:            viper.GetInt("zmq.delivery_buffer"),
	}
}

func closePool(pool *subscribe.Pool) {
	for i := 0; i < pool.Len(); i++ {
		if s := pool.Member(i); s != nil {
			_ = s.Transport().Close()
		}
	}
}
