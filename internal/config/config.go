// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration. It is read once at startup and
// passed down as an immutable snapshot; the engine never mutates it.
type Config struct {
	DataDir      string // Base directory for databases and snapshots (always absolute)
	UniverseFile string // CSV with ticker, sector, active_from, active_to
	HolidaysFile string // Optional newline-separated YYYY-MM-DD market holidays
	LogLevel     string
	Port         int
	DevMode      bool

	Signals SignalConfig
	Storage StorageConfig
}

// SignalConfig holds scoring and position construction parameters.
type SignalConfig struct {
	// Weights maps feature name to composite weight. Required: no default
	// weighting is inferred.
	Weights   map[string]float64
	NPerSide  int
	SectorCap int // 0 = no per-sector cap
}

// StorageConfig holds the optional S3 snapshot sync settings.
type StorageConfig struct {
	Enabled     bool
	Bucket      string
	MartsPrefix string
	Region      string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("MOSAIC_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	weights, err := parseWeights(getEnv("SIGNAL_WEIGHTS", ""))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DataDir:      absDataDir,
		UniverseFile: getEnv("UNIVERSE_FILE", filepath.Join(absDataDir, "universe.csv")),
		HolidaysFile: getEnv("HOLIDAYS_FILE", ""),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		Port:         getEnvAsInt("PORT", 8080),
		DevMode:      getEnvAsBool("DEV_MODE", false),
		Signals: SignalConfig{
			Weights:   weights,
			NPerSide:  getEnvAsInt("POSITIONS_PER_SIDE", 10),
			SectorCap: getEnvAsInt("SECTOR_CAP", 0),
		},
		Storage: StorageConfig{
			Enabled:     getEnvAsBool("S3_SYNC_ENABLED", false),
			Bucket:      getEnv("S3_BUCKET", ""),
			MartsPrefix: getEnv("S3_MARTS_PREFIX", "marts/"),
			Region:      getEnv("AWS_REGION", "us-east-1"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if len(c.Signals.Weights) == 0 {
		return fmt.Errorf("SIGNAL_WEIGHTS is required (e.g. \"momentum_60d=0.4,realized_vol_20d=0.2\")")
	}
	for name, w := range c.Signals.Weights {
		if w < 0 {
			return fmt.Errorf("weight for %s must be non-negative", name)
		}
	}
	if c.Signals.NPerSide <= 0 {
		return fmt.Errorf("POSITIONS_PER_SIDE must be positive")
	}
	if c.Signals.SectorCap < 0 {
		return fmt.Errorf("SECTOR_CAP must be zero or positive")
	}
	if c.Storage.Enabled && c.Storage.Bucket == "" {
		return fmt.Errorf("S3_BUCKET is required when S3_SYNC_ENABLED is set")
	}
	return nil
}

// parseWeights parses "name=weight,name=weight" pairs.
func parseWeights(raw string) (map[string]float64, error) {
	weights := make(map[string]float64)
	if raw == "" {
		return weights, nil
	}

	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid weight entry %q (expected name=value)", pair)
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid weight value in %q: %w", pair, err)
		}
		weights[strings.TrimSpace(parts[0])] = value
	}

	return weights, nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
