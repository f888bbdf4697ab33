package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	httpapi "github.com/i474232898/umbrella-rain-service/internal/api/http"
	"github.com/i474232898/umbrella-rain-service/internal/config"
	"github.com/i474232898/umbrella-rain-service/internal/logging"
	"github.com/i474232898/umbrella-rain-service/internal/model"
	"github.com/i474232898/umbrella-rain-service/internal/observability"
	"github.com/i474232898/umbrella-rain-service/internal/publish"
	"github.com/i474232898/umbrella-rain-service/internal/reading"
	"github.com/i474232898/umbrella-rain-service/internal/scheduler"
	"github.com/i474232898/umbrella-rain-service/internal/sequence"
	"github.com/i474232898/umbrella-rain-service/internal/store"
	"github.com/i474232898/umbrella-rain-service/internal/trafficgen"
)

type eventStore interface {
	reading.Store
	Ping(ctx context.Context) error
}

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Error("failed to load timezone", "timezone", cfg.Timezone, "error", err)
		os.Exit(1)
	}

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStartup()

	metrics := observability.NewMetrics()

	// Model artifact, from object storage when configured.
	var src model.Source = model.FileSource{}
	if cfg.S3.Endpoint != "" {
		objSrc, err := model.NewObjectSource(model.S3Config{
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			UseSSL:    cfg.S3.UseSSL,
		})
		if err != nil {
			log.Error("failed to create object storage client", "error", err)
			os.Exit(1)
		}
		src = objSrc
	}
	predictor, err := model.Load(startupCtx, src, cfg.BundlePath, cfg.ModelPath)
	if err != nil {
		log.Error("failed to load model", "bundle", cfg.BundlePath, "error", err)
		os.Exit(1)
	}
	log.Info("model loaded", "version", predictor.Version(), "bundle", cfg.BundlePath)

	// Event store: MongoDB when configured, in-memory otherwise.
	var events eventStore
	if cfg.MongoURI != "" {
		mongoStore, err := store.NewMongoStore(startupCtx, store.MongoConfig{
			URI:        cfg.MongoURI,
			Database:   cfg.MongoDatabase,
			Collection: cfg.MongoCollection,
			Timeout:    cfg.MongoTimeout,
		})
		if err != nil {
			log.Error("failed to connect to mongo", "error", err)
			os.Exit(1)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := mongoStore.Close(ctx); err != nil {
				log.Warn("mongo disconnect failed", "error", err)
			}
		}()
		events = mongoStore
	} else {
		log.Warn("MONGO_URI not set; events are kept in memory only")
		events = store.NewMemoryStore()
	}

	opts := []reading.Option{
		reading.WithLocation(loc),
		reading.WithShift(cfg.PresentationShift),
		reading.WithHistoryLimit(cfg.HistoryLimit),
		reading.WithLogger(log),
	}

	if cfg.RedisAddr != "" {
		seq, err := sequence.NewRedis(startupCtx, sequence.RedisConfig{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.RedisKeyPrefix,
		})
		if err != nil {
			log.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer seq.Close()
		opts = append(opts, reading.WithSequencer(seq))
	}

	if len(cfg.KafkaBrokers) > 0 {
		pub := publish.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer pub.Close()
		opts = append(opts, reading.WithPublisher(pub), reading.WithPublishTimeout(cfg.PublishTimeout))
		log.Info("publishing scored events", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers)
	}

	// Core service scoring and querying readings.
	service := reading.NewService(events, predictor, metrics, opts...)

	// Synthetic traffic against the configured device.
	generator := trafficgen.New(&http.Client{Timeout: cfg.Traffic.HTTPTimeout}, trafficgen.Config{
		DeviceURL: cfg.Traffic.DeviceURL,
		DeviceID:  cfg.Traffic.DeviceID,
		Count:     cfg.Traffic.Count,
		Interval:  cfg.Traffic.Interval,
		Location:  loc,
	}, metrics, trafficgen.WithLogger(log))

	sched := scheduler.New(generator, cfg.Traffic.Schedule, log)
	if err := sched.Start(); err != nil {
		log.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}
	defer sched.Stop()

	app := fiber.New(fiber.Config{
		AppName:               "umbrella-rain-service",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		// /insertTestData waits out the pauses between synthetic requests.
		WriteTimeout: time.Duration(cfg.Traffic.Count)*(cfg.Traffic.Interval+cfg.Traffic.HTTPTimeout) + 10*time.Second,
		ErrorHandler: httpapi.ErrorHandler,
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())
	app.Use(cors.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "umbrella-rain-service",
			"model":   predictor.Version(),
		})
	})

	// API routes.
	httpapi.RegisterRoutes(app, service, generator, httpapi.Options{
		CompatErrors: cfg.CompatErrors,
		Ready:        events,
		Logger:       log,
	})

	go func() {
		log.Info("listening", "port", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error("fiber server stopped", "error", err)
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error("error during shutdown", "error", err)
	}
}
