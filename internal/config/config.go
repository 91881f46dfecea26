// Package config loads the daemon and CLI configuration from YAML with
// defaults, XDG locations and environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"github.com/roach88/sometimes/internal/ambient"
)

// Environment overrides.
const (
	EnvConfig        = "SOMETIMES_CONFIG"
	EnvDB            = "SOMETIMES_DB"
	EnvTelegramToken = "SOMETIMES_TELEGRAM_TOKEN"
)

// Weather providers.
const (
	WeatherNone      = "none"
	WeatherStatic    = "static"
	WeatherOpenMeteo = "open-meteo"
)

// Transport kinds.
const (
	TransportStdout   = "stdout"
	TransportTelegram = "telegram"
)

// Config holds all application configuration.
type Config struct {
	DBPath         string          `yaml:"db_path"`
	CorpusPath     string          `yaml:"corpus_path"`
	Timezone       string          `yaml:"timezone"`
	LogLevel       string          `yaml:"log_level"`
	LogFormat      string          `yaml:"log_format"`
	ReconcileEvery time.Duration   `yaml:"reconcile_every"`
	Weather        WeatherConfig   `yaml:"weather"`
	Transport      TransportConfig `yaml:"transport"`
	HTTP           HTTPConfig      `yaml:"http"`
}

// WeatherConfig selects and tunes the weather source.
type WeatherConfig struct {
	Provider  string        `yaml:"provider"`
	Endpoint  string        `yaml:"endpoint"`
	Latitude  float64       `yaml:"latitude"`
	Longitude float64       `yaml:"longitude"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
	Timeout   time.Duration `yaml:"timeout"`
	// Condition is the fixed reading of the static provider.
	Condition string `yaml:"condition"`
}

// TransportConfig selects how deliveries reach the user.
type TransportConfig struct {
	Kind     string         `yaml:"kind"`
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig configures the Telegram transport.
type TelegramConfig struct {
	Token  string `yaml:"token"`
	ChatID int64  `yaml:"chat_id"`
}

// HTTPConfig configures the control surface. An empty Addr disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns a Config with all default values set.
func Default() Config {
	return Config{
		DBPath:         DefaultDBPath(),
		Timezone:       "Local",
		LogLevel:       "info",
		LogFormat:      "text",
		ReconcileEvery: 15 * time.Minute,
		Weather: WeatherConfig{
			Provider: WeatherNone,
			CacheTTL: 6 * time.Hour,
			Timeout:  10 * time.Second,
		},
		Transport: TransportConfig{Kind: TransportStdout},
	}
}

// DefaultConfigPath is $XDG_CONFIG_HOME/sometimes/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, "sometimes", "config.yaml")
}

// DefaultDBPath is $XDG_DATA_HOME/sometimes/sometimes.db.
func DefaultDBPath() string {
	return filepath.Join(xdg.DataHome, "sometimes", "sometimes.db")
}

// Load reads the config at path over the defaults and validates it.
//
// SOMETIMES_CONFIG replaces path; an empty path uses DefaultConfigPath. A
// missing file yields the defaults. SOMETIMES_DB and
// SOMETIMES_TELEGRAM_TOKEN override their fields after the file is read.
func Load(path string) (Config, error) {
	if env := os.Getenv(EnvConfig); env != "" {
		path = env
	}
	if path == "" {
		path = DefaultConfigPath()
	}

	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		slog.Debug("config file not found; using defaults", "path", path)
	case err != nil:
		return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
	default:
		if err := decode(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if env := os.Getenv(EnvDB); env != "" {
		cfg.DBPath = env
	}
	if env := os.Getenv(EnvTelegramToken); env != "" {
		cfg.Transport.Telegram.Token = env
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// decode applies data over cfg. Unknown keys are errors.
func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks enums, durations and required fields.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("invalid log_format %q (valid: text, json)", c.LogFormat)
	}
	if c.ReconcileEvery < time.Second {
		return fmt.Errorf("reconcile_every must be at least 1s, got %s", c.ReconcileEvery)
	}

	w := c.Weather
	switch w.Provider {
	case WeatherNone:
	case WeatherStatic:
		if !ambient.Weather(w.Condition).Known() {
			return fmt.Errorf("weather.condition %q is not a weather condition", w.Condition)
		}
	case WeatherOpenMeteo:
		if w.Latitude < -90 || w.Latitude > 90 || w.Longitude < -180 || w.Longitude > 180 {
			return fmt.Errorf("weather coordinates out of range: %g,%g", w.Latitude, w.Longitude)
		}
	default:
		return fmt.Errorf("unknown weather.provider %q (valid: none, static, open-meteo)", w.Provider)
	}
	if w.CacheTTL <= 0 || w.Timeout <= 0 {
		return fmt.Errorf("weather.cache_ttl and weather.timeout must be positive")
	}

	switch c.Transport.Kind {
	case TransportStdout:
	case TransportTelegram:
		if c.Transport.Telegram.Token == "" {
			return fmt.Errorf("transport.telegram.token is required (or set %s)", EnvTelegramToken)
		}
		if c.Transport.Telegram.ChatID == 0 {
			return fmt.Errorf("transport.telegram.chat_id is required")
		}
	default:
		return fmt.Errorf("unknown transport.kind %q (valid: stdout, telegram)", c.Transport.Kind)
	}
	return nil
}

// Location returns the configured time zone. Call after Validate.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Level returns the configured slog level. Call after Validate.
func (c *Config) Level() slog.Level {
	lvl, _ := parseLevel(c.LogLevel)
	return lvl
}

func parseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log_level %q: %w", s, err)
	}
	return lvl, nil
}
