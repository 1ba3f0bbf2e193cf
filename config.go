package convo

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/everydev1618/goconvo/dsl"
	"github.com/everydev1618/goconvo/schema"
)

// Config holds engine limits and CLI defaults.
type Config struct {
	// MaxParseDepth bounds statement and string nesting in the parser.
	MaxParseDepth int `yaml:"max_parse_depth"`

	// MaxExecDepth bounds scope nesting during evaluation.
	MaxExecDepth int `yaml:"max_exec_depth"`

	// SchemaDepth bounds type value conversion into validators.
	SchemaDepth int `yaml:"schema_depth"`

	// LogLevel is one of debug, info, warn or error.
	LogLevel string `yaml:"log_level"`

	// DBPath is the snapshot database. Empty means DefaultDBPath.
	DBPath string `yaml:"db_path"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{
		MaxParseDepth: dsl.DefaultMaxParseDepth,
		MaxExecDepth:  dsl.DefaultMaxExecDepth,
		SchemaDepth:   schema.DefaultMaxDepth,
		LogLevel:      "warn",
		DBPath:        DefaultDBPath(),
	}
}

// LoadConfig reads a YAML config file over the defaults. A missing file
// yields the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	if cfg.DBPath == "" {
		cfg.DBPath = DefaultDBPath()
	}
	return cfg, nil
}

// Validate checks the limits and log level.
func (c Config) Validate() error {
	if c.MaxParseDepth < 0 || c.MaxExecDepth < 0 || c.SchemaDepth < 0 {
		return fmt.Errorf("config: depths must not be negative")
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// ParserOptions returns the parser options the config implies.
func (c Config) ParserOptions() []dsl.ParserOption {
	return []dsl.ParserOption{dsl.WithMaxParseDepth(c.MaxParseDepth)}
}

// ContextOptions returns the execution context options the config
// implies, logging through logger.
func (c Config) ContextOptions(logger *slog.Logger) []dsl.ContextOption {
	return []dsl.ContextOption{
		dsl.WithLogger(logger),
		dsl.WithMaxDepth(c.MaxExecDepth),
		dsl.WithSchemaDepth(c.SchemaDepth),
	}
}

// NewLogger builds a text logger writing to w at the named level.
// Unknown levels fall back to info.
func NewLogger(level string, w io.Writer) *slog.Logger {
	l, err := parseLevel(level)
	if err != nil {
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l}))
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
}
