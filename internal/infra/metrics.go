package infra

import (
	"sync"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"

	imetrics "github.com/bleach86/ghostcore-zmq/internal/pkg/metrics"
)

var (
	promRegistry *prometheus.Registry
	registryOnce sync.Once
)

// MetricsRegistry returns the process registry, creating it and binding the
// metric groups to it on first use.
func MetricsRegistry() *prometheus.Registry {
	registryOnce.Do(func() {
		promRegistry = prometheus.NewRegistry()
		promRegistry.MustRegister(collectors.NewGoCollector())
		promRegistry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		svc := viper.GetString("service.name")
		inst := viper.GetString("service.instance")
		bi := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "service_build_info", Help: "build info", ConstLabels: prometheus.Labels{"service": svc, "instance": inst}}, []string{"version", "rev"})
		promRegistry.MustRegister(bi)
		bi.WithLabelValues("dev", "unknown").Set(1)
		imetrics.UseRegisterer(promRegistry)
		_ = imetrics.App()
		_ = imetrics.Subscriber()
		_ = imetrics.Redis()
		_ = imetrics.Kafka()
		_ = imetrics.Pipeline()
		_ = imetrics.Process()
	})
	return promRegistry
}

// InitMetrics exposes the registry on GET /metrics.
func InitMetrics(app *fiber.App) {
	if app == nil {
		return
	}
	reg := MetricsRegistry()
	h := promhttp.InstrumentMetricHandler(reg, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	app.Get("/metrics", adaptor.HTTPHandler(h))
}
