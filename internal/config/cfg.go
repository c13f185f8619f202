// Package config loads the application configuration and prepares logging.
package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	yaml "gopkg.in/yaml.v3"
)

//go:embed config.yaml
var defaultConfig []byte

type (
	StorageConfig struct {
		Backend string `yaml:"backend" validate:"oneof=file sqlite"`
		Dir     string `yaml:"dir"`
	}

	ServerConfig struct {
		Listen string `yaml:"listen" validate:"required,hostname_port"`
	}

	// ReaderConfig holds the interaction tunables of pixel based hosts.
	ReaderConfig struct {
		RowHeight        float64       `yaml:"row_height" validate:"gt=0"`
		Stride           int           `yaml:"stride" validate:"min=1"`
		ProgressInterval time.Duration `yaml:"progress_interval" validate:"gt=0"`
		RestoreDelay     time.Duration `yaml:"restore_delay" validate:"gte=0"`
		HideDelay        time.Duration `yaml:"hide_delay" validate:"gt=0"`
		HintDuration     time.Duration `yaml:"hint_duration" validate:"gt=0"`
		DoubleTap        time.Duration `yaml:"double_tap" validate:"gt=0"`
		MinHeight        float64       `yaml:"min_height" validate:"gte=0"`
		HeightPadding    float64       `yaml:"height_padding" validate:"gte=0"`
		FontSettle       time.Duration `yaml:"font_settle" validate:"gt=0"`
	}

	// TerminalConfig adapts the reader to a grid of cells.
	TerminalConfig struct {
		RowHeight int `yaml:"row_height" validate:"min=1"`
		// Width caps the text column; 0 uses the terminal width.
		Width int `yaml:"width" validate:"gte=0"`
	}

	Config struct {
		Version  int            `yaml:"version" validate:"eq=1"`
		Library  string         `yaml:"library" validate:"required"`
		Storage  StorageConfig  `yaml:"storage"`
		Server   ServerConfig   `yaml:"server"`
		Reader   ReaderConfig   `yaml:"reader"`
		Terminal TerminalConfig `yaml:"terminal"`
		Logging  LoggingConfig  `yaml:"logging"`
	}
)

// Environment variables that override the configuration.
const (
	EnvLibrary  = "BIVIUM_LIBRARY"
	EnvStateDir = "BIVIUM_STATE_DIR"
	EnvStorage  = "BIVIUM_STORAGE"
	EnvListen   = "BIVIUM_LISTEN"
	EnvLogLevel = "BIVIUM_LOG_LEVEL"
)

func unmarshalConfig(data []byte, cfg *Config) (*Config, error) {
	// only fields we defined are accepted
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration data: %w", err)
	}
	return cfg, nil
}

// LoadConfiguration reads the configuration file at path, if any, on top of
// the built-in defaults, applies .env and environment overrides and validates
// the result.
func LoadConfiguration(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := unmarshalConfig(defaultConfig, &Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to process default configuration: %w", err)
	}

	if len(path) > 0 {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if cfg, err = unmarshalConfig(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to process configuration file: %w", err)
		}
	}

	applyEnv(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	for name, field := range map[string]*string{
		EnvLibrary:  &cfg.Library,
		EnvStateDir: &cfg.Storage.Dir,
		EnvStorage:  &cfg.Storage.Backend,
		EnvListen:   &cfg.Server.Listen,
		EnvLogLevel: &cfg.Logging.ConsoleLogger.Level,
	} {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			*field = v
		}
	}
}

// Validate checks struct tags of the configuration.
func Validate(cfg *Config) error {
	return validator.New().Struct(cfg)
}

// Dump returns the configuration as YAML.
func Dump(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(*cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config to yaml: %v", err)
	}
	return data, nil
}
