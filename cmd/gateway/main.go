package main

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"building-studio/internal/common/config"
	"building-studio/internal/common/middleware"
	"building-studio/internal/gateway/handlers"
	"building-studio/internal/gateway/proxy"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
)

// ============================================================
// API Gateway
// ============================================================

func main() {
	cfg := config.Load()

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
		BodyLimit:    int(2*cfg.Studio.ModelMaxBytes) + 1<<20,
		AppName:      "API Gateway",
	})

	// ============================================================
	// Global Middleware
	// ============================================================

	app.Use(recover.New())
	app.Use(middleware.Logger())
	app.Use(middleware.CORS(origins()...))

	// ============================================================
	// Health Check Routes
	// ============================================================

	studioURL := cfg.Gateway.StudioURL
	buildingsURL := cfg.Gateway.BuildingsURL

	app.Get("/health/live", handlers.LivenessProbe)
	app.Get("/health/ready", handlers.ReadinessProbe(map[string]string{
		"studio":    studioURL,
		"buildings": buildingsURL,
	}))
	app.Get("/health/startup", handlers.StartupProbe)

	// ============================================================
	// Docs
	// ============================================================

	app.Get("/docs", handlers.SwaggerUI)
	app.Get("/docs/openapi.yaml", handlers.SwaggerSpec(getEnv("OPENAPI_PATH", "docs/building-studio.openapi.yaml")))

	// ============================================================
	// API Routes
	// ============================================================

	api := app.Group("/api/v1")

	api.Get("/", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Building Studio API v1",
			"status":  "ok",
		})
	})

	// ============================================================
	// Service Routes (Proxy)
	// ============================================================

	// Studio Service
	api.All("/studio/*", proxy.Mount("/api/v1/studio", studioURL))

	// Buildings Service
	api.Post("/images/upload", proxy.ProxyTo(buildingsURL+"/images/upload"))
	api.All("/buildings", proxy.Mount("/api/v1", buildingsURL))
	api.All("/buildings/*", proxy.Mount("/api/v1", buildingsURL))
	api.Get("/uploads/:name", func(c fiber.Ctx) error {
		return proxy.Forward(c, fmt.Sprintf("%s/uploads/%s", buildingsURL, c.Params("name")))
	})

	// ============================================================
	// Server Start
	// ============================================================

	addr := fmt.Sprintf(":%s", cfg.Port)
	log.Printf("Starting API Gateway on %s (env: %s)", addr, cfg.Environment)
	log.Printf("Proxying /studio to %s, /buildings to %s", studioURL, buildingsURL)

	if err := app.Listen(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// origins reads CORS_ORIGINS as a comma separated list.
func origins() []string {
	var out []string
	for _, o := range strings.Split(getEnv("CORS_ORIGINS", ""), ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}
