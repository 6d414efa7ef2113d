package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
)

func TestReadinessProbe(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health/live" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"status":"alive"}`))
	}))
	defer up.Close()

	for _, tc := range []struct {
		name      string
		upstreams map[string]string
		want      int
	}{
		{"all up", map[string]string{"studio": up.URL}, http.StatusOK},
		{"one down", map[string]string{"studio": up.URL, "buildings": "http://127.0.0.1:1"}, http.StatusServiceUnavailable},
		{"none", nil, http.StatusOK},
	} {
		t.Run(tc.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/health/ready", ReadinessProbe(tc.upstreams))

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health/ready", nil))
			if err != nil {
				t.Fatal(err)
			}
			if resp.StatusCode != tc.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tc.want)
			}
		})
	}
}
