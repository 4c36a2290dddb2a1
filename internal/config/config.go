/**
 * Configuration for the orientation worker
 *
 * Sources, lowest precedence first: built-in defaults, an optional YAML file,
 * environment variables (.env.orient is loaded when present), then flags.
 */

package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/cshinei1990/PDF-rotate/internal/logging"
	"github.com/cshinei1990/PDF-rotate/internal/orientation"
)

var logger = logging.NewLogger("Config")

const (
	DefaultConfidenceThreshold = orientation.DefaultConfidenceThreshold
	DefaultDPI                 = 200
	DefaultLanguages           = "jpn+eng"
	DefaultTextLanguages       = "jpn+jpn_vert+eng"
	DefaultDetectorTimeout     = 60 * time.Second
	DefaultRasterWorkers       = 4
	DefaultQueueName           = "orient:documents"
	DefaultWorkerConcurrency   = 2
	DefaultProcessingTimeout   = 10 * time.Minute

	MinDPI = 50
	MaxDPI = 1200
)

// Config holds worker configuration
type Config struct {
	// Orientation tunables
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	DPI                 int     `yaml:"dpi"`

	// Tesseract configuration
	TesseractPath string `yaml:"tesseract_path"`
	Languages     string `yaml:"languages"`      // OSD
	TextLanguages string `yaml:"text_languages"` // text-presence probe

	// Poppler rasterizer
	PdftoppmPath  string `yaml:"pdftoppm_path"`
	RasterWorkers int    `yaml:"raster_workers"`

	// Pose estimator command; empty disables pose estimation
	PoseCommand string `yaml:"pose_command"`

	DetectorTimeout time.Duration `yaml:"detector_timeout"`

	// Temporary directory for rasterized pages
	TempDir string `yaml:"temp_dir"`

	// Redis (queue + status); empty disables both
	RedisURL string `yaml:"redis_url"`

	// PostgreSQL audit store; empty disables it
	DatabaseURL string `yaml:"database_url"`

	// Worker configuration
	QueueName         string        `yaml:"queue_name"`
	WorkerConcurrency int           `yaml:"worker_concurrency"`
	ProcessingTimeout time.Duration `yaml:"processing_timeout"`

	LogLevel string `yaml:"log_level"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		ConfidenceThreshold: DefaultConfidenceThreshold,
		DPI:                 DefaultDPI,
		TesseractPath:       "tesseract",
		Languages:           DefaultLanguages,
		TextLanguages:       DefaultTextLanguages,
		PdftoppmPath:        "pdftoppm",
		RasterWorkers:       DefaultRasterWorkers,
		DetectorTimeout:     DefaultDetectorTimeout,
		TempDir:             os.TempDir(),
		QueueName:           DefaultQueueName,
		WorkerConcurrency:   DefaultWorkerConcurrency,
		ProcessingTimeout:   DefaultProcessingTimeout,
		LogLevel:            "INFO",
	}
}

// Load builds the configuration. path names an optional YAML file; when it is
// empty ORIENT_CONFIG is consulted.
func Load(path string) (*Config, error) {
	// Missing .env.orient is normal outside containers
	_ = godotenv.Load(".env.orient")

	cfg := Default()

	if path == "" {
		path = os.Getenv("ORIENT_CONFIG")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.ConfidenceThreshold = getEnvAsFloatOrDefault("ORIENT_CONF_THRESHOLD", c.ConfidenceThreshold)
	c.DPI = getEnvAsIntOrDefault("ORIENT_DPI", c.DPI)
	c.TesseractPath = getEnvOrDefault("ORIENT_TESSERACT_PATH", c.TesseractPath)
	c.Languages = getEnvOrDefault("ORIENT_LANGUAGES", c.Languages)
	c.TextLanguages = getEnvOrDefault("ORIENT_TEXT_LANGUAGES", c.TextLanguages)
	c.PdftoppmPath = getEnvOrDefault("ORIENT_PDFTOPPM_PATH", c.PdftoppmPath)
	c.RasterWorkers = getEnvAsIntOrDefault("ORIENT_RASTER_WORKERS", c.RasterWorkers)
	c.PoseCommand = getEnvOrDefault("ORIENT_POSE_COMMAND", c.PoseCommand)
	c.DetectorTimeout = getEnvAsDurationOrDefault("ORIENT_DETECTOR_TIMEOUT", c.DetectorTimeout)
	c.TempDir = getEnvOrDefault("ORIENT_TEMP_DIR", c.TempDir)
	c.RedisURL = getEnvOrDefault("REDIS_URL", c.RedisURL)
	c.DatabaseURL = getEnvOrDefault("DATABASE_URL", c.DatabaseURL)
	c.QueueName = getEnvOrDefault("ORIENT_QUEUE", c.QueueName)
	c.WorkerConcurrency = getEnvAsIntOrDefault("WORKER_CONCURRENCY", c.WorkerConcurrency)
	c.ProcessingTimeout = getEnvAsDurationOrDefault("PROCESSING_TIMEOUT", c.ProcessingTimeout)
	c.LogLevel = getEnvOrDefault("ORIENT_LOG_LEVEL", c.LogLevel)
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if !ValidThreshold(c.ConfidenceThreshold) {
		return fmt.Errorf("confidence threshold must be a non-negative number, got %v", c.ConfidenceThreshold)
	}

	if !ValidDPI(c.DPI) {
		return fmt.Errorf("DPI must be between %d and %d, got %d", MinDPI, MaxDPI, c.DPI)
	}

	if c.RasterWorkers < 1 || c.RasterWorkers > 64 {
		return fmt.Errorf("ORIENT_RASTER_WORKERS must be between 1 and 64, got %d", c.RasterWorkers)
	}

	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 64 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 64, got %d", c.WorkerConcurrency)
	}

	if c.DetectorTimeout <= 0 {
		return fmt.Errorf("detector timeout must be positive, got %v", c.DetectorTimeout)
	}

	if c.QueueName == "" {
		return fmt.Errorf("queue name is required")
	}

	return nil
}

// ValidThreshold reports whether v is usable as a confidence threshold.
func ValidThreshold(v float64) bool {
	return v >= 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ValidDPI reports whether v is within the supported rasterization range.
func ValidDPI(v int) bool {
	return v >= MinDPI && v <= MaxDPI
}

// ResolverConfig returns the resolver's view of the configuration
func (c *Config) ResolverConfig() orientation.Config {
	return orientation.Config{ConfidenceThreshold: c.ConfidenceThreshold}
}

// ParseFloatOrDefault parses raw, returning def when raw is blank or not a
// number. ok is false only for non-blank input that failed to parse.
func ParseFloatOrDefault(raw string, def float64) (value float64, ok bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, true
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def, false
	}
	return v, true
}

// ParseIntOrDefault is ParseFloatOrDefault for integers.
func ParseIntOrDefault(raw string, def int) (value int, ok bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def, false
	}
	return v, true
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	value, ok := ParseIntOrDefault(os.Getenv(key), defaultValue)
	if !ok {
		logger.Warn("Ignoring unparseable integer in environment", "key", key, "value", os.Getenv(key), "default", defaultValue)
	}
	return value
}

// getEnvAsFloatOrDefault gets environment variable as float or returns default
func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	value, ok := ParseFloatOrDefault(os.Getenv(key), defaultValue)
	if !ok {
		logger.Warn("Ignoring unparseable number in environment", "key", key, "value", os.Getenv(key), "default", defaultValue)
	}
	return value
}

// getEnvAsDurationOrDefault accepts Go durations ("90s") or plain milliseconds
func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	valueStr := strings.TrimSpace(os.Getenv(key))
	if valueStr == "" {
		return defaultValue
	}

	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if ms, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond
	}

	logger.Warn("Ignoring unparseable duration in environment", "key", key, "value", valueStr, "default", defaultValue)
	return defaultValue
}
