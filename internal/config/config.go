// Package config loads the filemonitor daemon configuration.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"filemonitor/internal/filter"
	"filemonitor/internal/logging"
	"filemonitor/internal/monitor"
)

const (
	DefaultListen     = ":8080"
	DefaultSettle     = 200 * time.Millisecond
	DefaultMaxWatches = 8192
)

type Source string

const (
	SourceDefault Source = "default"
	SourceFile    Source = "file"
	SourceEnv     Source = "env"
)

var ErrNoWatches = errors.New("no watch entries configured")

type Config struct {
	LogLevel   string        `toml:"log_level" yaml:"log_level"`
	LogFormat  string        `toml:"log_format" yaml:"log_format"`
	Settle     time.Duration `toml:"settle" yaml:"settle"`
	Listen     string        `toml:"listen" yaml:"listen"`
	Journal    string        `toml:"journal" yaml:"journal"`
	MaxWatches int           `toml:"max_watches" yaml:"max_watches"`
	Watches    []Watch       `toml:"watch" yaml:"watch"`

	// Sources records where each scalar setting came from.
	Sources map[string]Source `toml:"-" yaml:"-"`
}

// Watch describes one monitor.
type Watch struct {
	Path      string   `toml:"path" yaml:"path"`
	Recursive bool     `toml:"recursive" yaml:"recursive"`
	Flags     []string `toml:"flags" yaml:"flags"`
	Ignore    []string `toml:"ignore" yaml:"ignore"`
}

func Default() Config {
	return Config{
		LogLevel:   string(logging.LevelInfo),
		LogFormat:  string(logging.FormatText),
		Settle:     DefaultSettle,
		Listen:     DefaultListen,
		MaxWatches: DefaultMaxWatches,
		Sources: map[string]Source{
			"log_level":   SourceDefault,
			"log_format":  SourceDefault,
			"settle":      SourceDefault,
			"listen":      SourceDefault,
			"journal":     SourceDefault,
			"max_watches": SourceDefault,
		},
	}
}

// Level returns the parsed log level.
func (c Config) Level() logging.Level {
	level, ok := logging.ParseLevel(c.LogLevel)
	if !ok {
		return logging.LevelInfo
	}
	return level
}

func (c Config) Format() logging.Format {
	format, ok := logging.ParseFormat(c.LogFormat)
	if !ok {
		return logging.FormatText
	}
	return format
}

// MonitorFlags parses the flag names of a watch entry.
func (w Watch) MonitorFlags() (monitor.Flag, error) {
	return monitor.ParseFlags(w.Flags)
}

// Validate reports every problem in the configuration at once.
func (c Config) Validate() error {
	var errs []error
	if _, ok := logging.ParseLevel(c.LogLevel); !ok {
		errs = append(errs, fmt.Errorf("invalid log_level %q", c.LogLevel))
	}
	if _, ok := logging.ParseFormat(c.LogFormat); !ok {
		errs = append(errs, fmt.Errorf("invalid log_format %q", c.LogFormat))
	}
	if c.MaxWatches < 0 {
		errs = append(errs, fmt.Errorf("invalid max_watches %d: must be >= 0", c.MaxWatches))
	}
	if len(c.Watches) == 0 {
		errs = append(errs, ErrNoWatches)
	}
	seen := make(map[string]bool, len(c.Watches))
	for index, watch := range c.Watches {
		path := strings.TrimSpace(watch.Path)
		if path == "" {
			errs = append(errs, fmt.Errorf("watch[%d]: path is required", index))
			continue
		}
		if seen[path] {
			errs = append(errs, fmt.Errorf("watch[%d]: duplicate path %q", index, path))
		}
		seen[path] = true
		if _, err := watch.MonitorFlags(); err != nil {
			errs = append(errs, fmt.Errorf("watch[%d]: %w", index, err))
		}
		if err := filter.Validate(watch.Ignore); err != nil {
			errs = append(errs, fmt.Errorf("watch[%d]: %w", index, err))
		}
	}
	return errors.Join(errs...)
}
