package config

import (
	"os"
	"strconv"
)

// ============================================================
// Configuration
// ============================================================

type Config struct {
	Port         string
	Environment  string
	ReadTimeout  int
	WriteTimeout int
	LogLevel     string
	LogFormat    string

	Studio    StudioConfig
	Buildings BuildingsConfig
	Gateway   GatewayConfig
}

// StudioConfig drives the authoring sessions.
type StudioConfig struct {
	UploadURL      string
	BuildingsURL   string
	DefaultLat     float64
	DefaultLng     float64
	PreviewScale   float64
	CloseThreshold float64 // meters
	// Both model size limits are kept: the uploader enforces ModelMaxBytes
	// while the form advertises ModelAdvertisedBytes.
	ModelMaxBytes        int64
	ModelAdvertisedBytes int64
	RequestTimeout       int
	SessionIdleMinutes   int
}

type BuildingsConfig struct {
	DBPath         string
	MigrationsPath string
	StorageRoot    string
	PublicURL      string
}

type GatewayConfig struct {
	StudioURL    string
	BuildingsURL string
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		Port:         getEnv("PORT", "3000"),
		Environment:  getEnv("ENV", "development"),
		ReadTimeout:  getEnvAsInt("READ_TIMEOUT", 10),
		WriteTimeout: getEnvAsInt("WRITE_TIMEOUT", 10),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogFormat:    getEnv("LOG_FORMAT", "text"),
		Studio: StudioConfig{
			UploadURL:            getEnv("UPLOAD_URL", "http://localhost:3002/images/upload"),
			BuildingsURL:         getEnv("BUILDINGS_URL", "http://localhost:3002"),
			DefaultLat:           getEnvAsFloat("DEFAULT_LAT", 10.874334),
			DefaultLng:           getEnvAsFloat("DEFAULT_LNG", 106.803250),
			PreviewScale:         getEnvAsFloat("PREVIEW_SCALE", 0.1),
			CloseThreshold:       getEnvAsFloat("CLOSE_THRESHOLD_M", 5),
			ModelMaxBytes:        getEnvAsInt64("MODEL_MAX_BYTES", 50<<20),
			ModelAdvertisedBytes: getEnvAsInt64("MODEL_ADVERTISED_BYTES", 10<<20),
			RequestTimeout:       getEnvAsInt("REQUEST_TIMEOUT", 30),
			SessionIdleMinutes:   getEnvAsInt("SESSION_IDLE_MINUTES", 30),
		},
		Buildings: BuildingsConfig{
			DBPath:         getEnv("DB_PATH", "data/db/buildings.db"),
			MigrationsPath: getEnv("MIGRATIONS_PATH", "migrations/001_init_buildings.sql"),
			StorageRoot:    getEnv("STORAGE_ROOT", "data/storage"),
			PublicURL:      getEnv("PUBLIC_URL", "http://localhost:3002"),
		},
		Gateway: GatewayConfig{
			StudioURL:    getEnv("STUDIO_URL", "http://localhost:3001"),
			BuildingsURL: getEnv("BUILDINGS_URL", "http://localhost:3002"),
		},
	}
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsInt64(key string, defaultVal int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
