package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/bleach86/ghostcore-zmq/internal/core/usecase"
	"github.com/bleach86/ghostcore-zmq/internal/infra"
	"github.com/bleach86/ghostcore-zmq/internal/pkg/applog"
)

var (
	logger applog.AppLogger
)

func main() {
	configPath := pflag.String("config", "", "path to a config file (defaults to configs/config.yml)")
	pflag.Parse()

	if err := infra.LoadConfig(*configPath); err != nil {
		applog.NewLogger(os.Stderr, "error").Fatal("Failed to load config", "err", err)
	}
	logger = applog.NewAppDefaultLogger()
	infra.MetricsRegistry()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	v, err := infra.NewValidator()
	if err != nil {
		logger.Fatal("Failed to init validator", "err", err)
	}

	var wg sync.WaitGroup

	storeLogger, err := infra.InitStoreLogger(logger, &wg, v)
	if err != nil {
		logger.Fatal("Failed to init store logger", "err", err)
	}
	defer func() { _ = storeLogger.Close() }()

	stream, err := infra.InitNotificationStreamReader(logger, &wg, v)
	if err != nil {
		logger.Fatal("Failed to init notification stream", "err", err)
	}
	defer func() { _ = stream.Close() }()

	publisher, err := infra.InitNotificationPublisher(logger, v)
	if err != nil {
		logger.Fatal("Failed to init publisher", "err", err)
	}

	processor := usecase.NewRelayProcessorService(logger, storeLogger, publisher)

	watcher, err := infra.InitWatcher(ctx, logger, &wg, v)
	if err != nil {
		logger.Fatal("Failed to init watcher", "err", err)
	}
	watcher.SetHandler(processor.HandleEvent)
	stream.SetHandler(processor.ReadAndPublish)

	if err := stream.StartReadFromStream(); err != nil {
		logger.Fatal("Failed to start stream reader", "err", err)
	}
	if err := watcher.StartWatching(); err != nil {
		logger.Fatal("Failed to start watcher", "err", err)
	}

	stopPprof := infra.StartPprof(logger, &wg)

	app := fiber.New()
	infra.InitRoutes(app, watcher.Running)
	addr := viper.GetString("http.addr")
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("HTTP server listening", "addr", addr)
		if err := app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true}); err != nil {
			logger.Error("HTTP server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")

	watcher.StopWatching()
	stream.StopReadFromStream()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown error", "err", err)
	}
	if err := stopPprof(shutdownCtx); err != nil {
		logger.Warn("pprof shutdown error", "err", err)
	}

	wg.Wait()
	logger.Info("Shutdown complete")
}
