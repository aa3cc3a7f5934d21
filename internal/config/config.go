package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server     ServerConfig
	Worker     WorkerConfig
	Sources    SourcesConfig
	Projection ProjectionConfig
	DB         DatabaseConfig
	Logging    LoggingConfig
}

type ServerConfig struct {
	Host      string
	Port      int
	RateLimit int // requests per second, global
}

type WorkerConfig struct {
	Count      int
	BufferSize int
}

// SourcesConfig locates the two GeoJSON datasets. A source is either an
// http(s) URL or a file path; an empty source is not loaded.
type SourcesConfig struct {
	PopulationSource string
	ShelterSource    string
	PopulationField  string
	CapacityField    string
	AddressField     string
	RefreshInterval  time.Duration // 0 loads once at startup
	FetchTimeout     time.Duration
}

// ProjectionConfig is the UTM zone projected coordinates are expressed in.
type ProjectionConfig struct {
	UTMZone  int
	Northern bool
}

type DatabaseConfig struct {
	Path string
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:      getEnv("SERVER_HOST", "localhost"),
			Port:      getEnvInt("SERVER_PORT", 8080),
			RateLimit: getEnvInt("RATE_LIMIT_RPS", 20),
		},
		Worker: WorkerConfig{
			Count:      getEnvInt("WORKER_COUNT", 4),
			BufferSize: getEnvInt("WORKER_BUFFER_SIZE", 100),
		},
		Sources: SourcesConfig{
			PopulationSource: getEnv("POPULATION_SOURCE", ""),
			ShelterSource:    getEnv("SHELTER_SOURCE", ""),
			PopulationField:  getEnv("POPULATION_FIELD", "poptot"),
			CapacityField:    getEnv("CAPACITY_FIELD", "plasser"),
			AddressField:     getEnv("ADDRESS_FIELD", "adresse"),
			RefreshInterval:  getEnvDuration("DATASET_REFRESH_INTERVAL", 0),
			FetchTimeout:     getEnvDuration("DATASET_FETCH_TIMEOUT", 30*time.Second),
		},
		Projection: ProjectionConfig{
			UTMZone:  getEnvInt("UTM_ZONE", 33),
			Northern: !strings.EqualFold(getEnv("UTM_HEMISPHERE", "north"), "south"),
		},
		DB: DatabaseConfig{
			Path: getEnv("DB_PATH", "./data/shelter-coverage.db"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.RateLimit < 1 {
		return fmt.Errorf("rate limit must be positive, got %d", c.Server.RateLimit)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	if c.Worker.Count < 1 {
		return fmt.Errorf("worker count must be at least 1, got %d", c.Worker.Count)
	}
	if c.Worker.BufferSize < 0 {
		return fmt.Errorf("worker buffer size must not be negative, got %d", c.Worker.BufferSize)
	}

	if c.Sources.RefreshInterval != 0 && c.Sources.RefreshInterval < time.Minute {
		return fmt.Errorf("dataset refresh interval must be 0 or at least 1 minute")
	}
	if c.Sources.FetchTimeout <= 0 {
		return fmt.Errorf("dataset fetch timeout must be positive")
	}
	if c.Sources.PopulationField == "" || c.Sources.CapacityField == "" {
		return fmt.Errorf("population and capacity field names are required")
	}

	if c.Projection.UTMZone < 1 || c.Projection.UTMZone > 60 {
		return fmt.Errorf("invalid UTM zone: %d", c.Projection.UTMZone)
	}

	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}
