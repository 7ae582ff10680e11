package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	OTel      OTelConfig
	Transport TransportConfig
	Comments  CommentsConfig
	Panel     PanelConfig
	Env       string
	Port      string
}

type OTelConfig struct {
	Endpoint       string
	Headers        string
	ServiceName    string
	ServiceVersion string
}

type TransportConfig struct {
	RedisURL          string
	SubmitStream      string
	RoomChannelPrefix string
}

type CommentsConfig struct {
	// BaseURL of the external comments service (listing, replies, votes).
	BaseURL        string
	TimeoutSeconds int
}

type PanelConfig struct {
	MarketID   string
	ViewerID   string
	ViewerName string
	// Insertion policy for newly admitted root comments: "prepend" (feed
	// style) or "append" (chat style).
	InsertionPolicy string
}

type ServiceType string

const (
	ServiceTypePanel  ServiceType = "panel"
	ServiceTypeServer ServiceType = "server"
)

// Load loads configuration from environment variables.
// In development, it loads from service-specific .env files:
//   - .env.panel for the panel client
//   - .env.server for the dev comments service
//
// Falls back to .env if the service-specific file doesn't exist.
func Load(serviceType ServiceType) (Config, error) {
	if getEnv("COMMENTSYNC_ENV", "development") == "development" {
		envFile := fmt.Sprintf(".env.%s", serviceType)
		if err := godotenv.Load(envFile); err != nil {
			_ = godotenv.Load(".env")
		}
	}

	cfg := Config{
		Env:  getEnv("COMMENTSYNC_ENV", "development"),
		Port: getEnv("PORT", "8080"),
		OTel: OTelConfig{
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:        getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "commentsync"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
		},
		Transport: TransportConfig{
			RedisURL:          getEnv("REDIS_URL", "redis://localhost:6379/0"),
			SubmitStream:      getEnv("SUBMIT_STREAM", "comments:submit"),
			RoomChannelPrefix: getEnv("ROOM_CHANNEL_PREFIX", "comments:room:"),
		},
		Comments: CommentsConfig{
			BaseURL:        getEnv("COMMENTS_API_URL", "http://localhost:8080"),
			TimeoutSeconds: getEnvInt("COMMENTS_API_TIMEOUT_SECONDS", 10),
		},
		Panel: PanelConfig{
			MarketID:        getEnv("MARKET_ID", ""),
			ViewerID:        getEnv("VIEWER_ID", ""),
			ViewerName:      getEnv("VIEWER_NAME", "anonymous"),
			InsertionPolicy: getEnv("INSERTION_POLICY", "prepend"),
		},
	}

	if serviceType == ServiceTypePanel {
		if cfg.Panel.MarketID == "" {
			return Config{}, fmt.Errorf("MARKET_ID is required")
		}
		if cfg.Panel.ViewerID == "" {
			return Config{}, fmt.Errorf("VIEWER_ID is required")
		}
	}

	return cfg, nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c OTelConfig) Enabled() bool {
	return c.Endpoint != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}
