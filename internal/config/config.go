package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/jask/recurring/internal/matching"
)

// Config holds application configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	Settings SettingsConfig `mapstructure:"settings"`
	Matching MatchingConfig `mapstructure:"matching"`
	Server   ServerConfig   `mapstructure:"server"`
	UI       UIConfig       `mapstructure:"ui"`
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SettingsConfig seeds the settings table on first run.
type SettingsConfig struct {
	AutoRealizePastDueItems bool `mapstructure:"auto_realize_past_due_items"`
	PastDueLookbackDays     int  `mapstructure:"past_due_lookback_days"`
}

// MatchingConfig selects the tolerance profile and confidence thresholds.
type MatchingConfig struct {
	Profile         string                     `mapstructure:"profile"`
	HighThreshold   float64                    `mapstructure:"high_threshold"`
	MediumThreshold float64                    `mapstructure:"medium_threshold"`
	Profiles        map[string]ProfileOverride `mapstructure:"profiles"`
}

// ProfileOverride replaces individual fields of a built-in profile. Unset
// (nil) fields keep the built-in value; zero is a valid override.
type ProfileOverride struct {
	MaxAmountPct        *float64 `mapstructure:"max_amount_pct"`
	MaxDateDays         *int     `mapstructure:"max_date_days"`
	MinDescriptionScore *float64 `mapstructure:"min_description_score"`
	AmountWeight        *float64 `mapstructure:"amount_weight"`
	DateWeight          *float64 `mapstructure:"date_weight"`
	DescriptionWeight   *float64 `mapstructure:"description_weight"`
}

// apply returns p with the set fields of o.
func (o ProfileOverride) apply(p matching.Profile) matching.Profile {
	if o.MaxAmountPct != nil {
		p.MaxAmountPct = decimal.NewFromFloat(*o.MaxAmountPct)
	}
	if o.MaxDateDays != nil {
		p.MaxDateDays = *o.MaxDateDays
	}
	if o.MinDescriptionScore != nil {
		p.MinDescriptionScore = *o.MinDescriptionScore
	}
	if o.AmountWeight != nil {
		p.AmountWeight = *o.AmountWeight
	}
	if o.DateWeight != nil {
		p.DateWeight = *o.DateWeight
	}
	if o.DescriptionWeight != nil {
		p.DescriptionWeight = *o.DescriptionWeight
	}
	return p
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// UIConfig holds presentation settings.
type UIConfig struct {
	Currency string `mapstructure:"currency"`
	Timezone string `mapstructure:"timezone"`
}

// Path returns the config file location, honouring RECURRING_CONFIG.
func Path() string {
	if p := os.Getenv("RECURRING_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(os.Getenv("HOME"), ".config", "recurring", "config.toml")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.path", filepath.Join(os.Getenv("HOME"), ".local", "share", "recurring", "recurring.db"))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("settings.auto_realize_past_due_items", false)
	v.SetDefault("settings.past_due_lookback_days", 30)
	v.SetDefault("matching.profile", matching.Moderate.Name)
	v.SetDefault("matching.high_threshold", matching.DefaultThresholds.High)
	v.SetDefault("matching.medium_threshold", matching.DefaultThresholds.Medium)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("ui.currency", "USD")
	v.SetDefault("ui.timezone", "Local")
}

// Load reads configuration from .env, file and env. Env var overrides use
// prefix RECURRING_.
func Load() (Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigType("toml")
	if p := os.Getenv("RECURRING_CONFIG"); p != "" {
		v.SetConfigFile(p)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "recurring"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("RECURRING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks the matching section resolves to a usable profile.
func (c Config) Validate() error {
	if c.Settings.PastDueLookbackDays < 0 {
		return fmt.Errorf("settings.past_due_lookback_days must not be negative")
	}
	if _, err := c.Profile(""); err != nil {
		return err
	}
	return c.Thresholds().Validate()
}

// Thresholds returns the configured confidence thresholds.
func (c Config) Thresholds() matching.Thresholds {
	return matching.Thresholds{High: c.Matching.HighThreshold, Medium: c.Matching.MediumThreshold}
}

// Profile resolves name (or the configured default when empty) to a built-in
// profile with any configured overrides applied.
func (c Config) Profile(name string) (matching.Profile, error) {
	if name == "" {
		name = c.Matching.Profile
	}
	p, err := matching.ProfileByName(name)
	if err != nil {
		return matching.Profile{}, err
	}
	if o, ok := c.Matching.Profiles[p.Name]; ok {
		p = o.apply(p)
	}
	if err := p.Validate(); err != nil {
		return matching.Profile{}, err
	}
	return p, nil
}

// Location returns the configured timezone used to decide "today".
func (c Config) Location() *time.Location {
	if c.UI.Timezone == "" || strings.EqualFold(c.UI.Timezone, "local") {
		return time.Local
	}
	loc, err := time.LoadLocation(c.UI.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Save writes the provided config to disk, creating the config directory if needed.
func Save(cfg Config) error {
	path := Path()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigType("toml")
	v.Set("database.path", cfg.Database.Path)
	v.Set("log.level", cfg.Log.Level)
	v.Set("log.format", cfg.Log.Format)
	v.Set("settings.auto_realize_past_due_items", cfg.Settings.AutoRealizePastDueItems)
	v.Set("settings.past_due_lookback_days", cfg.Settings.PastDueLookbackDays)
	v.Set("matching.profile", cfg.Matching.Profile)
	v.Set("matching.high_threshold", cfg.Matching.HighThreshold)
	v.Set("matching.medium_threshold", cfg.Matching.MediumThreshold)
	v.Set("server.addr", cfg.Server.Addr)
	v.Set("ui.currency", cfg.UI.Currency)
	v.Set("ui.timezone", cfg.UI.Timezone)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
