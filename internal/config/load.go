package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const envPrefix = "FILEMONITOR_"

// Load reads path (TOML or YAML by extension), applies FILEMONITOR_*
// environment overrides and validates the result. An empty path loads
// defaults plus environment only.
func Load(path string) (Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv is Load with an injectable environment lookup.
func LoadWithEnv(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		payload, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := decode(path, payload, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}
	normalize(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func decode(path string, payload []byte, cfg *Config) error {
	fileCfg := Config{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		metadata, err := toml.Decode(string(payload), &fileCfg)
		if err != nil {
			return fmt.Errorf("invalid TOML config %s: %w", path, err)
		}
		if undecoded := metadata.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("invalid TOML config %s: unknown key %q", path, undecoded[0].String())
		}
	case ".yaml", ".yml":
		decoder := yaml.NewDecoder(bytes.NewReader(payload))
		decoder.KnownFields(true)
		if err := decoder.Decode(&fileCfg); err != nil {
			return fmt.Errorf("invalid YAML config %s: %w", path, err)
		}
	default:
		return fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
	merge(cfg, fileCfg)
	return nil
}

func merge(cfg *Config, fileCfg Config) {
	if fileCfg.LogLevel != "" {
		cfg.LogLevel = fileCfg.LogLevel
		cfg.Sources["log_level"] = SourceFile
	}
	if fileCfg.LogFormat != "" {
		cfg.LogFormat = fileCfg.LogFormat
		cfg.Sources["log_format"] = SourceFile
	}
	if fileCfg.Settle != 0 {
		cfg.Settle = fileCfg.Settle
		cfg.Sources["settle"] = SourceFile
	}
	if fileCfg.Listen != "" {
		cfg.Listen = fileCfg.Listen
		cfg.Sources["listen"] = SourceFile
	}
	if fileCfg.Journal != "" {
		cfg.Journal = fileCfg.Journal
		cfg.Sources["journal"] = SourceFile
	}
	if fileCfg.MaxWatches != 0 {
		cfg.MaxWatches = fileCfg.MaxWatches
		cfg.Sources["max_watches"] = SourceFile
	}
	cfg.Watches = append(cfg.Watches, fileCfg.Watches...)
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if lookup == nil {
		return nil
	}
	if raw, ok := lookupTrimmed(lookup, "LOG_LEVEL"); ok {
		cfg.LogLevel = raw
		cfg.Sources["log_level"] = SourceEnv
	}
	if raw, ok := lookupTrimmed(lookup, "LOG_FORMAT"); ok {
		cfg.LogFormat = raw
		cfg.Sources["log_format"] = SourceEnv
	}
	if raw, ok := lookupTrimmed(lookup, "SETTLE"); ok {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid %sSETTLE: %w", envPrefix, err)
		}
		cfg.Settle = parsed
		cfg.Sources["settle"] = SourceEnv
	}
	if raw, ok := lookupTrimmed(lookup, "LISTEN"); ok {
		cfg.Listen = raw
		cfg.Sources["listen"] = SourceEnv
	}
	if raw, ok := lookupTrimmed(lookup, "JOURNAL"); ok {
		cfg.Journal = raw
		cfg.Sources["journal"] = SourceEnv
	}
	if raw, ok := lookupTrimmed(lookup, "MAX_WATCHES"); ok {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("invalid %sMAX_WATCHES: %w", envPrefix, err)
		}
		cfg.MaxWatches = parsed
		cfg.Sources["max_watches"] = SourceEnv
	}
	return nil
}

func lookupTrimmed(lookup func(string) (string, bool), key string) (string, bool) {
	raw, ok := lookup(envPrefix + key)
	if !ok {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}

func normalize(cfg *Config) {
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	for index := range cfg.Watches {
		cfg.Watches[index].Path = strings.TrimSpace(cfg.Watches[index].Path)
	}
}
