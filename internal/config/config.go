// Package config loads docscan configuration from YAML, a .env file and
// DOCSCAN_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ironsheep/docscan-mcp/internal/detection"
	"github.com/ironsheep/docscan-mcp/internal/imaging"
)

// DefaultPath is the configuration file looked up when none is given.
const DefaultPath = "docscan.yaml"

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all docscan configuration.
type Config struct {
	Source    SourceConfig     `yaml:"source"`
	Capture   CaptureConfig    `yaml:"capture"`
	Detection detection.Params `yaml:"detection"`
	Storage   StorageConfig    `yaml:"storage"`
	OCR       OCRConfig        `yaml:"ocr"`
	Logging   LoggingConfig    `yaml:"logging"`
}

// SourceConfig selects where stills come from.
type SourceConfig struct {
	// Dir is watched for the newest image file. Empty means stills are only
	// captured from explicit paths.
	Dir string `yaml:"dir"`
}

// CaptureConfig tunes rectification output.
type CaptureConfig struct {
	MinOutputSize int `yaml:"min_output_size"`
	JPEGQuality   int `yaml:"jpeg_quality"`
}

// StorageConfig configures the document store.
type StorageConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DatabasePath string `yaml:"database_path"`
	BlobDir      string `yaml:"blob_dir"`
	DefaultOwner string `yaml:"default_owner"`
}

// OCRConfig configures text extraction.
type OCRConfig struct {
	Language       string `yaml:"language"`
	TessdataPrefix string `yaml:"tessdata_prefix"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// DefaultConfig returns a configuration with every field set.
func DefaultConfig() *Config {
	dataDir := ".docscan"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".docscan")
	}

	return &Config{
		Capture: CaptureConfig{
			MinOutputSize: 32,
			JPEGQuality:   imaging.DefaultJPEGQuality,
		},
		Detection: detection.DefaultParams(),
		Storage: StorageConfig{
			Enabled:      true,
			DatabasePath: filepath.Join(dataDir, "docscan.db"),
			BlobDir:      filepath.Join(dataDir, "documents"),
			DefaultOwner: "local",
		},
		OCR: OCRConfig{
			Language: "eng",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadEnvFile loads variables from a .env file into the process environment.
// A missing file is not an error. Variables already set are kept.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from path, applies environment overrides and
// validates the result. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case os.IsNotExist(err):
		// defaults
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies DOCSCAN_* environment variables.
func (c *Config) applyEnvOverrides() error {
	strs := map[string]*string{
		"DOCSCAN_SOURCE_DIR":      &c.Source.Dir,
		"DOCSCAN_DB_PATH":         &c.Storage.DatabasePath,
		"DOCSCAN_BLOB_DIR":        &c.Storage.BlobDir,
		"DOCSCAN_DEFAULT_OWNER":   &c.Storage.DefaultOwner,
		"DOCSCAN_OCR_LANGUAGE":    &c.OCR.Language,
		"DOCSCAN_TESSDATA_PREFIX": &c.OCR.TessdataPrefix,
		"DOCSCAN_LOG_LEVEL":       &c.Logging.Level,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"DOCSCAN_JPEG_QUALITY":    &c.Capture.JPEGQuality,
		"DOCSCAN_MIN_OUTPUT_SIZE": &c.Capture.MinOutputSize,
		"DOCSCAN_WORKING_SIZE":    &c.Detection.WorkingSize,
	}
	for key, dst := range ints {
		v, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidConfig, key, v)
		}
		*dst = n
	}

	if v, ok := os.LookupEnv("DOCSCAN_ANGLE_TOLERANCE"); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("%w: DOCSCAN_ANGLE_TOLERANCE=%q is not a number", ErrInvalidConfig, v)
		}
		c.Detection.AngleTolerance = f
	}
	if v, ok := os.LookupEnv("DOCSCAN_STORAGE_ENABLED"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: DOCSCAN_STORAGE_ENABLED=%q is not a boolean", ErrInvalidConfig, v)
		}
		c.Storage.Enabled = b
	}
	return nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if err := c.Detection.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Capture.MinOutputSize < 1 {
		return fmt.Errorf("%w: capture.min_output_size must be positive", ErrInvalidConfig)
	}
	if c.Capture.JPEGQuality < 1 || c.Capture.JPEGQuality > 100 {
		return fmt.Errorf("%w: capture.jpeg_quality %d must be in 1..100", ErrInvalidConfig, c.Capture.JPEGQuality)
	}
	if c.Storage.Enabled {
		if c.Storage.DatabasePath == "" || c.Storage.BlobDir == "" {
			return fmt.Errorf("%w: storage needs database_path and blob_dir", ErrInvalidConfig)
		}
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, c.Logging.Level)
	}
	return nil
}
