// Package cfg loads service configuration from a YAML file with environment
// variable overrides, and validates it before the process starts serving.
package cfg

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Settings struct {
	ListenAddr     string
	MetricsPort    int
	RateLimit      float64 // requests per second per client
	RateBurst      int
	JWTSecret      string // empty disables bearer auth
	RequestTimeout time.Duration

	StorageBackend string // "bolt" or "postgres"
	DataPath       string
	DatabaseURL    string

	ModelsDir      string
	BundlePath     string
	FallbackOK     bool // serve heuristic predictions when no bundle loads
	ValidationDays int
	DriftThreshold float64

	AnonymizeSalt string
}

type ConfigFile struct {
	Server struct {
		ListenAddr     string  `yaml:"listenAddr"`
		MetricsPort    int     `yaml:"metricsPort"`
		RateLimit      float64 `yaml:"rateLimit"`
		RateBurst      int     `yaml:"rateBurst"`
		RequestTimeout string  `yaml:"requestTimeout"`
	} `yaml:"server"`

	Storage struct {
		Backend     string `yaml:"backend"`
		DataPath    string `yaml:"dataPath"`
		DatabaseURL string `yaml:"databaseURL"`
	} `yaml:"storage"`

	Model struct {
		ModelsDir      string  `yaml:"modelsDir"`
		BundlePath     string  `yaml:"bundlePath"`
		FallbackOK     bool    `yaml:"fallbackOK"`
		ValidationDays int     `yaml:"validationDays"`
		DriftThreshold float64 `yaml:"driftThreshold"`
	} `yaml:"model"`

	Privacy struct {
		AnonymizeSalt string `yaml:"anonymizeSalt"`
	} `yaml:"privacy"`
}

// Load reads the YAML file named by CONFIG_FILE when set, then applies
// environment overrides and defaults.
func Load() (Settings, error) {
	var config ConfigFile
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return Settings{}, fmt.Errorf("read config file %s: %w", configPath, err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return Settings{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	requestTimeout, err := time.ParseDuration(config.Server.RequestTimeout)
	if err != nil {
		requestTimeout = 30 * time.Second
	}

	s := Settings{
		ListenAddr:     getEnvOrDefault("LISTEN_ADDR", config.Server.ListenAddr),
		MetricsPort:    getIntFromEnvOrConfig("METRICS_PORT", config.Server.MetricsPort),
		RateLimit:      getFloatFromEnvOrConfig("RATE_LIMIT", config.Server.RateLimit),
		RateBurst:      getIntFromEnvOrConfig("RATE_BURST", config.Server.RateBurst),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		RequestTimeout: requestTimeout,
		StorageBackend: getEnvOrDefault("STORAGE_BACKEND", config.Storage.Backend),
		DataPath:       getEnvOrDefault("DATA_PATH", config.Storage.DataPath),
		DatabaseURL:    getEnvOrDefault("DATABASE_URL", config.Storage.DatabaseURL),
		ModelsDir:      getEnvOrDefault("MODELS_DIR", config.Model.ModelsDir),
		BundlePath:     getEnvOrDefault("BUNDLE_PATH", config.Model.BundlePath),
		FallbackOK:     getBoolFromEnvOrConfig("FALLBACK_OK", config.Model.FallbackOK),
		ValidationDays: getIntFromEnvOrConfig("VALIDATION_DAYS", config.Model.ValidationDays),
		DriftThreshold: getFloatFromEnvOrConfig("DRIFT_THRESHOLD", config.Model.DriftThreshold),
		AnonymizeSalt:  getEnvOrDefault("ANONYMIZE_SALT", config.Privacy.AnonymizeSalt),
	}

	applyDefaults(&s)
	if err := validateSettings(s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func applyDefaults(s *Settings) {
	if s.ListenAddr == "" {
		s.ListenAddr = ":8080"
	}
	if s.MetricsPort == 0 {
		s.MetricsPort = 9090
	}
	if s.RateLimit == 0 {
		s.RateLimit = 10
	}
	if s.RateBurst == 0 {
		s.RateBurst = 20
	}
	if s.StorageBackend == "" {
		s.StorageBackend = "bolt"
	}
	if s.DataPath == "" {
		s.DataPath = "data"
	}
	if s.ModelsDir == "" {
		s.ModelsDir = "models"
	}
	if s.ValidationDays == 0 {
		s.ValidationDays = 30
	}
	if s.DriftThreshold == 0 {
		s.DriftThreshold = 0.1
	}
}

func validateSettings(s Settings) error {
	switch s.StorageBackend {
	case "bolt":
	case "postgres":
		if s.DatabaseURL == "" {
			return fmt.Errorf("postgres backend requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", s.StorageBackend)
	}
	if s.RateLimit < 0 || s.RateBurst < 0 {
		return fmt.Errorf("rate limit settings must not be negative")
	}
	if s.DriftThreshold <= 0 || s.DriftThreshold >= 1 {
		return fmt.Errorf("drift threshold %v outside (0, 1)", s.DriftThreshold)
	}
	if s.ValidationDays < 1 {
		return fmt.Errorf("validation window must be at least one day")
	}
	return nil
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getIntFromEnvOrConfig(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getFloatFromEnvOrConfig(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getBoolFromEnvOrConfig(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
