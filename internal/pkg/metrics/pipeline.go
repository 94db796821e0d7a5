package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PipelineMetrics struct {
	EndToEndLatencyMS prometheus.Histogram
	OutboxStoredTotal *prometheus.CounterVec
	OutboxDedupTotal  *prometheus.CounterVec
}

var (
	pipelineOnce sync.Once
	pipeline     *PipelineMetrics
)

func Pipeline() *PipelineMetrics {
	pipelineOnce.Do(func() {
		r := Registerer()
		pipeline = &PipelineMetrics{
			EndToEndLatencyMS: promauto.With(r).NewHistogram(prometheus.HistogramOpts{
				Name:    "relay_end_to_end_latency_ms",
				Help:    "latency from zmq receive to kafka publish+marker+ack (ms)",
				Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 200, 500, 1000, 2000},
			}),
			OutboxStoredTotal: promauto.With(r).NewCounterVec(
				prometheus.CounterOpts{Name: "relay_outbox_stored_total", Help: "notifications appended to the redis outbox"},
				[]string{"topic"},
			),
			OutboxDedupTotal: promauto.With(r).NewCounterVec(
				prometheus.CounterOpts{Name: "relay_outbox_dedup_total", Help: "notifications skipped by the outbox dedup key"},
				[]string{"topic"},
			),
		}
	})
	return pipeline
}
