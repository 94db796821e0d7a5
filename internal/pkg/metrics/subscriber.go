package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type SubscriberMetrics struct {
	NotificationsTotal     *prometheus.CounterVec
	DecodeErrorsTotal      *prometheus.CounterVec
	SequenceVerdictsTotal  *prometheus.CounterVec
	MissedNotifications    *prometheus.CounterVec
	TransportErrorsTotal   *prometheus.CounterVec
	ActiveSources          prometheus.Gauge
	SourceRebuildsTotal    *prometheus.CounterVec
	NotificationBytesTotal *prometheus.CounterVec
}

var (
	subscriberOnce sync.Once
	subscriber     *SubscriberMetrics
)

func Subscriber() *SubscriberMetrics {
	subscriberOnce.Do(func() {
		r := Registerer()
		subscriber = &SubscriberMetrics{
			NotificationsTotal: promauto.With(r).NewCounterVec(
				prometheus.CounterOpts{Name: "zmq_notifications_total", Help: "decoded zmq notifications by topic"},
				[]string{"topic"},
			),
			DecodeErrorsTotal: promauto.With(r).NewCounterVec(
				prometheus.CounterOpts{Name: "zmq_decode_errors_total", Help: "multipart messages rejected by the frame decoder, by reason code"},
				[]string{"code"},
			),
			SequenceVerdictsTotal: promauto.With(r).NewCounterVec(
				prometheus.CounterOpts{Name: "zmq_sequence_verdicts_total", Help: "sequence tracker verdicts by topic"},
				[]string{"topic", "verdict"},
			),
			MissedNotifications: promauto.With(r).NewCounterVec(
				prometheus.CounterOpts{Name: "zmq_missed_notifications_total", Help: "notifications skipped according to sequence gaps"},
				[]string{"topic"},
			),
			TransportErrorsTotal: promauto.With(r).NewCounterVec(
				prometheus.CounterOpts{Name: "zmq_transport_errors_total", Help: "transport receive failures by endpoint"},
				[]string{"endpoint"},
			),
			ActiveSources: promauto.With(r).NewGauge(prometheus.GaugeOpts{
				Name: "zmq_active_sources",
				Help: "subscriber sources currently polled by the receiver pool",
			}),
			SourceRebuildsTotal: promauto.With(r).NewCounterVec(
				prometheus.CounterOpts{Name: "zmq_source_rebuilds_total", Help: "subscriber rebuild attempts by outcome"},
				[]string{"outcome"},
			),
			NotificationBytesTotal: promauto.With(r).NewCounterVec(
				prometheus.CounterOpts{Name: "zmq_notification_bytes_total", Help: "payload bytes received by topic"},
				[]string{"topic"},
			),
		}
	})
	return subscriber
}
