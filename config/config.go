// Package config loads settings for the projectenv tool from a YAML, TOML or
// JSON file, PROJECTENV_* environment variables and built-in defaults, in
// that order of increasing precedence for file and environment and with
// defaults filling whatever is left unset.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"dario.cat/mergo"
	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/presbrey/projectenv/envtree"
	"github.com/presbrey/projectenv/propfile"
)

// Settings configures how a project environment is resolved and printed
type Settings struct {
	// File extensions that mark an environment file
	Extensions []string `yaml:"extensions" toml:"extensions" json:"extensions" env:"PROJECTENV_EXTENSIONS" validate:"dive,required,excludesall=/\\"`

	// Scan subdirectories of each project directory
	Recursive bool `yaml:"recursive" toml:"recursive" json:"recursive" env:"PROJECTENV_RECURSIVE"`

	// Encoding of environment files
	Encoding string `yaml:"encoding" toml:"encoding" json:"encoding" env:"PROJECTENV_ENCODING" validate:"oneof=utf-8 utf8 iso-8859-1 latin1 latin-1"`

	// Directory at which the upward project search stops
	StopDir string `yaml:"stop_dir" toml:"stop_dir" json:"stop_dir" env:"PROJECTENV_STOP_DIR"`

	// Silent suppresses all log output
	Silent bool `yaml:"silent" toml:"silent" json:"silent" env:"PROJECTENV_SILENT"`

	// Minimum log level
	LogLevel string `yaml:"log_level" toml:"log_level" json:"log_level" env:"PROJECTENV_LOG_LEVEL" validate:"oneof=trace debug info warn error disabled"`

	// Output format for printed environments
	Format string `yaml:"format" toml:"format" json:"format" env:"PROJECTENV_FORMAT" validate:"oneof=dotenv json yaml toml"`

	// Source is the file the settings were read from, if any
	Source string `yaml:"-" toml:"-" json:"-"`
}

// Default returns the built-in settings
func Default() *Settings {
	return &Settings{
		Extensions: []string{"env"},
		Encoding:   string(propfile.UTF8),
		LogLevel:   "info",
		Format:     "dotenv",
	}
}

var validate = validator.New()

// Load reads settings from source (may be empty), applies PROJECTENV_*
// overrides, fills defaults and validates the result
func Load(source string) (*Settings, error) {
	cfg := &Settings{}

	if source != "" {
		if err := cfg.loadFromFile(source); err != nil {
			return nil, err
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment overrides: %w", err)
	}

	if err := mergo.Merge(cfg, Default()); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile decodes source based on its extension
func (s *Settings) loadFromFile(source string) error {
	data, err := os.ReadFile(source)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch {
	case strings.HasSuffix(source, ".yaml") || strings.HasSuffix(source, ".yml"):
		err = yaml.Unmarshal(data, s)
	case strings.HasSuffix(source, ".toml"):
		err = toml.Unmarshal(data, s)
	case strings.HasSuffix(source, ".json"):
		err = json.Unmarshal(data, s)
	default:
		// Default to YAML
		err = yaml.Unmarshal(data, s)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config %s: %w", source, err)
	}

	s.Source = source
	return nil
}

// Validate checks the settings against their constraints
func (s *Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	return nil
}

// Level returns the zerolog level for LogLevel
func (s *Settings) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(s.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

// Logger builds the logger described by the settings
func (s *Settings) Logger() zerolog.Logger {
	if s.Silent {
		return zerolog.Nop()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(s.Level()).
		With().Timestamp().Logger()
}

// LoaderConfig converts the settings into an envtree configuration
func (s *Settings) LoaderConfig() *envtree.Config {
	cfg := envtree.DefaultConfig()
	cfg.Extensions = append([]string(nil), s.Extensions...)
	cfg.Recursive = s.Recursive
	cfg.Encoding = propfile.Encoding(s.Encoding)
	cfg.StopDir = s.StopDir
	cfg.Silent = s.Silent

	logger := s.Logger()
	cfg.Logger = &logger
	return cfg
}
