package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type RedisMetrics struct {
	StreamReadTotal   *prometheus.CounterVec
	StreamAckTotal    *prometheus.CounterVec
	HandlerErrorTotal prometheus.Counter
}

var (
	redisOnce sync.Once
	redisM    *RedisMetrics
)

func Redis() *RedisMetrics {
	redisOnce.Do(func() {
		r := Registerer()
		redisM = &RedisMetrics{
			StreamReadTotal: promauto.With(r).NewCounterVec(
				prometheus.CounterOpts{Name: "redis_stream_read_total", Help: "outbox stream entries read by phase"},
				[]string{"phase"},
			),
			StreamAckTotal: promauto.With(r).NewCounterVec(
				prometheus.CounterOpts{Name: "redis_stream_ack_total", Help: "outbox stream acks by outcome"},
				[]string{"outcome"},
			),
			HandlerErrorTotal: promauto.With(r).NewCounter(prometheus.CounterOpts{
				Name: "redis_stream_handler_errors_total",
				Help: "outbox entries left pending after a handler failure",
			}),
		}
	})
	return redisM
}
