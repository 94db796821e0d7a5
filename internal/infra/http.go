package infra

import (
	"github.com/gofiber/fiber/v3"

	"github.com/bleach86/ghostcore-zmq/internal/adapter/http"
)

// InitRoutes mounts /health, /ready and /metrics. ready may be nil, in which
// case /ready always answers 503.
func InitRoutes(server *fiber.App, ready func() bool) {
	server.Get("/health", http.Health)
	server.Get("/ready", http.Ready(ready))
	InitMetrics(server)
}
