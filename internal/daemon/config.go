// Package daemon manages the Wellspring service lifecycle and configuration.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
	_ "time/tzdata" // Timezones resolve without a system zoneinfo

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"github.com/wellspring-app/wellspring/internal/app/gamification"
	"github.com/wellspring-app/wellspring/internal/domain"
	"github.com/wellspring-app/wellspring/internal/infra/scheduler"
	"github.com/wellspring-app/wellspring/internal/logger"
)

// ErrInvalidConfig wraps every Validate failure.
var ErrInvalidConfig = errors.New("invalid config")

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all service configuration.
type Config struct {
	API           APIConfig                 `toml:"api"`
	Store         StoreConfig               `toml:"store"`
	Gamification  GamificationConfig        `toml:"gamification"`
	Notifications domain.NotificationPolicy `toml:"notifications"`
	Redelivery    RedeliveryConfig          `toml:"redelivery"`
	Logging       logger.Config             `toml:"logging"`
	Telemetry     TelemetryConfig           `toml:"telemetry"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	RequestTimeout Duration `toml:"request_timeout"`
}

// StoreConfig selects the backing store. DSN falls back to the OS keyring
// when empty.
type StoreConfig struct {
	Driver  string `toml:"driver"`
	DSN     string `toml:"dsn"`
	DataDir string `toml:"data_dir"`
}

// GamificationConfig is the TOML form of gamification.Settings.
type GamificationConfig struct {
	LevelSize        int64                    `toml:"level_size"`
	BadgeBonus       int64                    `toml:"badge_bonus"`
	StreakBonus      int64                    `toml:"streak_bonus"`
	StreakBonusEvery int                      `toml:"streak_bonus_every"`
	Timezone         string                   `toml:"timezone"`
	StepTimeout      Duration                 `toml:"step_timeout"`
	Rewards          map[string]int64         `toml:"rewards"`
	Retry            RetryConfig              `toml:"retry"`
	Badges           []domain.BadgeDefinition `toml:"badges"` // Replaces the built-in catalog when set
	CatalogVersion   int                      `toml:"catalog_version"`
}

// RetryConfig tunes the optimistic update loop.
type RetryConfig struct {
	MaxRetries int      `toml:"max_retries"`
	BaseDelay  Duration `toml:"base_delay"`
	MaxDelay   Duration `toml:"max_delay"`
}

// RedeliveryConfig tunes the background retry of failed dispatches.
type RedeliveryConfig struct {
	Enabled    bool     `toml:"enabled"`
	MaxRetries int      `toml:"max_retries"`
	BaseDelay  Duration `toml:"base_delay"`
	MaxDelay   Duration `toml:"max_delay"`
	Interval   Duration `toml:"interval"`
}

// TelemetryConfig controls metrics exposure.
type TelemetryConfig struct {
	Prometheus bool `toml:"prometheus"`
}

// Duration is a time.Duration written as "750ms" in TOML.
type Duration struct{ time.Duration }

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// DefaultConfig returns the local single-user configuration.
func DefaultConfig() Config {
	home := Home()
	s := gamification.DefaultSettings()
	rewards := make(map[string]int64, len(s.Rewards))
	for reason, amount := range s.Rewards {
		rewards[string(reason)] = amount
	}
	retry := scheduler.DefaultRetryConfig()
	logCfg := logger.DefaultConfig()
	logCfg.File = filepath.Join(home, "logs", "wellspring.log")

	return Config{
		API: APIConfig{
			Host:           "127.0.0.1",
			Port:           8787,
			RequestTimeout: Duration{30 * time.Second},
		},
		Store: StoreConfig{
			Driver:  DriverSQLite,
			DataDir: home,
		},
		Gamification: GamificationConfig{
			LevelSize:        s.LevelSize,
			BadgeBonus:       s.BadgeBonus,
			StreakBonus:      s.StreakBonus,
			StreakBonusEvery: s.StreakBonusEvery,
			Timezone:         "UTC",
			StepTimeout:      Duration{s.StepTimeout},
			Rewards:          rewards,
			Retry: RetryConfig{
				MaxRetries: s.Retry.MaxRetries,
				BaseDelay:  Duration{s.Retry.BaseDelay},
				MaxDelay:   Duration{s.Retry.MaxDelay},
			},
			CatalogVersion: gamification.CatalogVersion,
		},
		Notifications: domain.DefaultNotificationPolicy(),
		Redelivery: RedeliveryConfig{
			Enabled:    true,
			MaxRetries: retry.MaxRetries,
			BaseDelay:  Duration{retry.BaseDelay},
			MaxDelay:   Duration{retry.MaxDelay},
			Interval:   Duration{retry.Interval},
		},
		Logging: logCfg,
	}
}

// LoadConfig loads .env from the working directory, then
// $WELLSPRING_HOME/config.toml, then environment overrides.
func LoadConfig() (Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()
	return LoadConfigFile(ConfigPath())
}

// LoadConfigFile reads path over the defaults and applies environment
// overrides. A missing file yields the defaults.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("stat config: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("WELLSPRING_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("WELLSPRING_STORE_DSN"); v != "" {
		cfg.Store.DSN = v
	}
	if v := os.Getenv("WELLSPRING_TIMEZONE"); v != "" {
		cfg.Gamification.Timezone = v
	}
	if v := os.Getenv("WELLSPRING_API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: WELLSPRING_API_PORT %q: %v", ErrInvalidConfig, v, err)
		}
		cfg.API.Port = port
	}
	return nil
}

// SaveConfig writes cfg to path, creating parent directories.
func SaveConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

// Validate reports the first configuration problem.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.DataDir == "" {
			return fmt.Errorf("%w: store.data_dir is required for sqlite", ErrInvalidConfig)
		}
	case DriverPostgres:
	default:
		return fmt.Errorf("%w: unknown store driver %q", ErrInvalidConfig, c.Store.Driver)
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("%w: api.port %d out of range", ErrInvalidConfig, c.API.Port)
	}
	if c.Notifications.MaxPerDay < 0 {
		return fmt.Errorf("%w: notifications.max_per_day must not be negative", ErrInvalidConfig)
	}
	for _, hhmm := range []string{c.Notifications.QuietStart, c.Notifications.QuietEnd} {
		if hhmm != "" && !gamification.ValidHHMM(hhmm) {
			return fmt.Errorf("%w: quiet hour %q is not HH:MM", ErrInvalidConfig, hhmm)
		}
	}
	if c.Redelivery.MaxRetries < 0 {
		return fmt.Errorf("%w: redelivery.max_retries must not be negative", ErrInvalidConfig)
	}
	if c.Logging.Level != "" {
		if _, err := log.ParseLevel(c.Logging.Level); err != nil {
			return fmt.Errorf("%w: logging.level %q", ErrInvalidConfig, c.Logging.Level)
		}
	}
	if _, err := c.Gamification.Settings(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Location resolves the configured timezone.
func (g GamificationConfig) Location() (*time.Location, error) {
	if g.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(g.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", g.Timezone, err)
	}
	return loc, nil
}

// Settings converts g into validated engine settings.
func (g GamificationConfig) Settings() (gamification.Settings, error) {
	s := gamification.DefaultSettings()
	s.LevelSize = g.LevelSize
	s.BadgeBonus = g.BadgeBonus
	s.StreakBonus = g.StreakBonus
	s.StreakBonusEvery = g.StreakBonusEvery
	s.StepTimeout = g.StepTimeout.Duration
	s.Retry = gamification.RetryConfig{
		MaxRetries: g.Retry.MaxRetries,
		BaseDelay:  g.Retry.BaseDelay.Duration,
		MaxDelay:   g.Retry.MaxDelay.Duration,
	}

	s.Rewards = make(map[domain.XPReason]int64, len(g.Rewards))
	for reason, amount := range g.Rewards {
		s.Rewards[domain.XPReason(reason)] = amount
	}

	if len(g.Badges) > 0 {
		s.Catalog = domain.Catalog{Version: g.CatalogVersion, Badges: g.Badges}
	}

	loc, err := g.Location()
	if err != nil {
		return s, fmt.Errorf("%w: %w", gamification.ErrInvalidSettings, err)
	}
	s.Location = loc

	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// Scheduler converts r into retry queue settings.
func (r RedeliveryConfig) Scheduler() scheduler.RetryConfig {
	return scheduler.RetryConfig{
		MaxRetries: r.MaxRetries,
		BaseDelay:  r.BaseDelay.Duration,
		MaxDelay:   r.MaxDelay.Duration,
		Interval:   r.Interval.Duration,
	}
}

// Home returns the Wellspring data directory.
func Home() string {
	if env := os.Getenv("WELLSPRING_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".wellspring")
}

// ConfigPath is $WELLSPRING_HOME/config.toml.
func ConfigPath() string {
	return filepath.Join(Home(), "config.toml")
}
