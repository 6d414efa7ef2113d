package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
)

// ============================================================
// Health Check Handlers
// ============================================================

// LivenessProbe reports that the process is up.
func LivenessProbe(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "alive",
	})
}

// ReadinessProbe reports ready once every upstream answers its liveness
// probe. Upstreams are base URLs keyed by name.
func ReadinessProbe(upstreams map[string]string) fiber.Handler {
	client := &http.Client{Timeout: 2 * time.Second}
	return func(c fiber.Ctx) error {
		down := fiber.Map{}
		for name, base := range upstreams {
			resp, err := client.Get(strings.TrimRight(base, "/") + "/health/live")
			if err != nil {
				down[name] = err.Error()
				continue
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				down[name] = resp.Status
			}
		}

		if len(down) > 0 {
			return c.Status(http.StatusServiceUnavailable).JSON(fiber.Map{
				"status":    "not ready",
				"upstreams": down,
			})
		}
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	}
}

// StartupProbe reports that the process finished starting.
func StartupProbe(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "started",
	})
}
