package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"building-studio/internal/common/config"
	"building-studio/internal/common/logging"
	"building-studio/internal/common/middleware"
	"building-studio/internal/studio/client"
	"building-studio/internal/studio/handlers"
	"building-studio/internal/studio/metrics"
	"building-studio/internal/studio/models"
	"building-studio/internal/studio/payload"
	"building-studio/internal/studio/session"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ============================================================
// Studio Service
// ============================================================

func main() {
	cfg := config.Load()
	if os.Getenv("PORT") == "" {
		cfg.Port = "3001"
	}

	logger := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	studioMetrics, err := metrics.NewStudio(prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatalf("register metrics: %v", err)
	}

	timeout := time.Duration(cfg.Studio.RequestTimeout) * time.Second
	sessions := session.NewManager(
		session.Config{
			Anchor:         models.GeoPoint{Lat: cfg.Studio.DefaultLat, Lng: cfg.Studio.DefaultLng},
			CloseThreshold: cfg.Studio.CloseThreshold,
			PreviewScale:   cfg.Studio.PreviewScale,
			Limits: payload.Limits{
				Enforced:   cfg.Studio.ModelMaxBytes,
				Advertised: cfg.Studio.ModelAdvertisedBytes,
			},
		},
		session.Deps{
			Uploader:  client.NewUploader(cfg.Studio.UploadURL, timeout),
			Buildings: client.NewBuildingService(cfg.Studio.BuildingsURL, timeout),
			Logger:    logger,
			Metrics:   studioMetrics,
		},
	)
	studioHandler := handlers.NewStudioHandler(sessions).WithSubmitTimeout(4 * timeout)

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	if idle := time.Duration(cfg.Studio.SessionIdleMinutes) * time.Minute; idle > 0 {
		go sessions.RunJanitor(janitorCtx, time.Minute, idle)
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
		// A submission can carry a full-size model plus an image.
		BodyLimit: int(2*cfg.Studio.ModelMaxBytes) + 1<<20,
		AppName:   "Building Studio",
	})

	// ============================================================
	// Global Middleware
	// ============================================================

	app.Use(recover.New())
	app.Use(middleware.Logger())

	// ============================================================
	// Health Check Routes
	// ============================================================

	app.Get("/health/live", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "alive"})
	})

	app.Get("/health/ready", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ready", "sessions": sessions.Len()})
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// ============================================================
	// Studio Routes
	// ============================================================

	studioHandler.Register(app)

	// ============================================================
	// Server Start
	// ============================================================

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop

		logger.Info(context.Background(), "shutting down", logging.Int("sessions", sessions.Len()))
		stopJanitor()
		sessions.CloseAll()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Shutdown: %v", err)
		}
	}()

	addr := fmt.Sprintf(":%s", cfg.Port)
	log.Printf("Starting Building Studio on %s (env: %s)", addr, cfg.Environment)
	log.Printf("Uploads to %s, buildings at %s", cfg.Studio.UploadURL, cfg.Studio.BuildingsURL)

	if err := app.Listen(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
