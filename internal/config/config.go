package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	defaultAgent         = "claude"
	defaultModel         = "sonnet"
	defaultIdleTimeout   = 5 * time.Minute
	defaultHardTimeout   = 2 * time.Hour
	defaultGracePeriod   = 10 * time.Second
	defaultQuitThreshold = 0
	defaultMaxIterations = 0
)

// Config stores runtime settings loaded from TOML files. Zero values for
// QuitThreshold and MaxIterations mean "never stop on failures" and
// "unlimited" respectively.
type Config struct {
	Agent         string
	Model         string
	IdleTimeout   time.Duration
	HardTimeout   time.Duration
	GracePeriod   time.Duration
	QuitThreshold int
	MaxIterations int
}

type fileConfig struct {
	Agent         *string `toml:"agent"`
	Model         *string `toml:"model"`
	IdleTimeout   *string `toml:"idle_timeout"`
	HardTimeout   *string `toml:"hard_timeout"`
	GracePeriod   *string `toml:"grace_period"`
	QuitThreshold *int    `toml:"quit_threshold"`
	MaxIterations *int    `toml:"max_iterations"`
}

// Load reads config from ~/.overnight/config.toml and overlays a
// project-local .overnight/config.toml from the working directory.
func Load(ctx context.Context) (*Config, error) {
	cfg := defaults()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}
	workingDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}

	paths := []string{
		filepath.Join(homeDir, ".overnight", "config.toml"),
		filepath.Join(workingDir, ".overnight", "config.toml"),
	}
	for _, path := range paths {
		if err := overlayFromFile(&cfg, path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints after file and flag overlays.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config must not be nil")
	}
	if strings.TrimSpace(c.Agent) == "" {
		return errors.New("agent must not be empty")
	}
	if c.IdleTimeout <= 0 {
		return errors.New("idle_timeout must be positive")
	}
	if c.HardTimeout <= 0 {
		return errors.New("hard_timeout must be positive")
	}
	if c.GracePeriod <= 0 {
		return errors.New("grace_period must be positive")
	}
	if c.QuitThreshold < 0 {
		return errors.New("quit_threshold must not be negative")
	}
	if c.MaxIterations < 0 {
		return errors.New("max_iterations must not be negative")
	}
	return nil
}

func defaults() Config {
	return Config{
		Agent:         defaultAgent,
		Model:         defaultModel,
		IdleTimeout:   defaultIdleTimeout,
		HardTimeout:   defaultHardTimeout,
		GracePeriod:   defaultGracePeriod,
		QuitThreshold: defaultQuitThreshold,
		MaxIterations: defaultMaxIterations,
	}
}

func overlayFromFile(cfg *Config, path string) error {
	if cfg == nil {
		return errors.New("config must not be nil")
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat config file %q: %w", path, err)
	}

	var decoded fileConfig
	if _, err := toml.DecodeFile(path, &decoded); err != nil {
		return fmt.Errorf("decode config file %q: %w", path, err)
	}

	if decoded.Agent != nil {
		cfg.Agent = strings.TrimSpace(*decoded.Agent)
	}
	if decoded.Model != nil {
		cfg.Model = strings.TrimSpace(*decoded.Model)
	}
	if decoded.QuitThreshold != nil {
		cfg.QuitThreshold = *decoded.QuitThreshold
	}
	if decoded.MaxIterations != nil {
		cfg.MaxIterations = *decoded.MaxIterations
	}
	return overlayDurations(cfg, decoded, path)
}

func overlayDurations(cfg *Config, decoded fileConfig, path string) error {
	if decoded.IdleTimeout != nil {
		value, err := parseDuration(*decoded.IdleTimeout, "idle_timeout", path)
		if err != nil {
			return err
		}
		cfg.IdleTimeout = value
	}
	if decoded.HardTimeout != nil {
		value, err := parseDuration(*decoded.HardTimeout, "hard_timeout", path)
		if err != nil {
			return err
		}
		cfg.HardTimeout = value
	}
	if decoded.GracePeriod != nil {
		value, err := parseDuration(*decoded.GracePeriod, "grace_period", path)
		if err != nil {
			return err
		}
		cfg.GracePeriod = value
	}
	return nil
}

func parseDuration(value, key, path string) (time.Duration, error) {
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s in %q: %w", key, path, err)
	}
	return parsed, nil
}
