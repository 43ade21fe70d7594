package main

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"thermal-render/config"
	"thermal-render/metrics"
	"thermal-render/routes"
	"thermal-render/storage"
)

var logger *zap.Logger

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	config, err := config.Load()
	if err != nil {
		return err
	}

	logger, err = config.NewLogger()
	if err != nil {
		return err
	}
	defer func(logger *zap.Logger) {
		// Sync fails on stderr consoles; nothing to do about it here.
		_ = logger.Sync()
	}(logger)

	app, cleanup, err := newApp(logger, &config)
	if err != nil {
		logger.Error("failed to set up server", zap.Error(err))
		return err
	}
	defer cleanup()

	logger.Info("server starting", zap.String("address", config.Address))
	if err := app.Listen(config.Address); err != nil {
		logger.Error("server stopped", zap.Error(err))
		return err
	}
	return nil
}

// newApp builds the server. cleanup releases the cache and must be called
// once the app has stopped.
func newApp(logger *zap.Logger, config *config.Config) (*fiber.App, func(), error) {
	cache, err := storage.NewCache(config.Cache())
	if err != nil {
		return nil, nil, err
	}

	var s3 *storage.S3Sink
	if config.S3Endpoint != "" && config.S3Bucket != "" {
		s3, err = storage.NewS3Sink(config.S3())
		if err != nil {
			cache.Close()
			return nil, nil, err
		}
		logger.Info("S3 cache enabled", zap.String("bucket", config.S3Bucket), zap.String("prefix", config.S3Prefix))
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		Prefork:               config.Prefork,
		BodyLimit:             int(config.MaxMatrixSize) + 64*1024,
	})

	constLabels := prometheus.Labels{"service": "thermal-render"}
	var counters *metrics.Metrics
	var perf *metrics.PerformanceMetrics
	if config.Metrics != nil && *config.Metrics {
		registry := prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		counters = metrics.InitializeMetrics(registry, constLabels)
		perf = metrics.InitializePerformanceMetrics(registry, constLabels)
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	} else {
		// Routes always count; keep the collectors off any endpoint.
		counters = metrics.InitializeMetrics(prometheus.NewRegistry(), constLabels)
	}

	app.Use(healthcheck.New())
	app.Use(compress.New())

	if err := routes.RegisterFrameRoutes(logger, cache, config, app, counters, perf, s3); err != nil {
		cache.Close()
		return nil, nil, err
	}
	return app, cache.Close, nil
}
