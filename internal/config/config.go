// Package config provides configuration management for the trading bot.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/stratyard/tradecore/internal/models"
)

// Config represents the complete application configuration: a set of
// venues to trade against, a set of strategy instances bound to those
// venues, shared risk bounds, and the ambient scheduler/storage/dashboard
// settings.
type Config struct {
	Environment EnvironmentConfig        `yaml:"environment"`
	Venues      []VenueConfig            `yaml:"venues"`
	Strategies  []StrategyInstanceConfig `yaml:"strategies"`
	Risk        RiskConfig               `yaml:"risk"`
	Schedule    ScheduleConfig           `yaml:"schedule"`
	Storage     StorageConfig            `yaml:"storage"`
	Dashboard   DashboardConfig          `yaml:"dashboard"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	Mode     string `yaml:"mode"`      // paper | live
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// VenueConfig describes one exchange/broker this run trades against. Paper
// venues need only name/kind/starting_cash; live venues additionally need
// base_url and credentials. Credentials are expected to arrive as
// ${ENV_VAR} references, expanded by Load before decoding, exactly as the
// original single-broker config expanded broker.api_key.
type VenueConfig struct {
	Name      string `yaml:"name"`
	Kind      string `yaml:"kind"` // paper | live
	BaseURL   string `yaml:"base_url"`
	WSURL     string `yaml:"ws_url"` // empty disables streaming, falls back to polling
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`

	StartingCash  float64 `yaml:"starting_cash"`
	SlippageBps   int64   `yaml:"slippage_bps"`   // paper fill model only
	CommissionBps int64   `yaml:"commission_bps"` // paper and options adapters
	QuoteAsset    string  `yaml:"quote_asset"`
}

// StrategyInstanceConfig binds one registered strategy (spec §4.3) to a
// venue and a list of subjects (spot symbols or option underlyings). The
// scheduler builds one Subject per (strategy, symbol) pair.
type StrategyInstanceConfig struct {
	Name    string             `yaml:"name"` // registry strategy name, e.g. "sma_crossover", "wheel"
	Kind    string             `yaml:"kind"` // spot | options
	Venue   string             `yaml:"venue"`
	Symbols []string           `yaml:"symbols"`
	Params  map[string]float64 `yaml:"params"`
}

// RiskConfig holds the shared risk bounds for every spot strategy instance
// and every options strategy instance in this run (spec §4.7: "created at
// scheduler boot, treated as immutable per run").
type RiskConfig struct {
	Spot    models.RiskConfig        `yaml:"spot"`
	Options models.OptionsRiskConfig `yaml:"options"`
}

// ScheduleConfig tunes the scheduler's tick loop.
type ScheduleConfig struct {
	TickInterval  string `yaml:"tick_interval"`  // e.g. "60s", parsed with time.ParseDuration
	MaxIterations int    `yaml:"max_iterations"` // 0 means run until shutdown
}

// StorageConfig defines storage settings for position data.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// DashboardConfig defines web dashboard settings.
type DashboardConfig struct {
	Enabled   bool   `yaml:"enabled"`    // Enable web dashboard
	Port      int    `yaml:"port"`       // HTTP server port
	AuthToken string `yaml:"auth_token"` // Optional authentication token
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file %q: %w", configPath, err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config %q: %w", configPath, err)
	}

	// Normalize config defaults
	config.Normalize()

	// Validate config
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Venue looks up a venue by name, returning false if unknown.
func (c *Config) Venue(name string) (VenueConfig, bool) {
	for _, v := range c.Venues {
		if v.Name == name {
			return v, true
		}
	}
	return VenueConfig{}, false
}

// TickInterval returns the configured tick interval, falling back to 60s
// if unset or unparsable.
func (c *Config) TickInterval() time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(c.Schedule.TickInterval))
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	// Environment validation
	if c.Environment.Mode != "paper" && c.Environment.Mode != "live" {
		return fmt.Errorf("environment.mode must be 'paper' or 'live'")
	}

	switch strings.ToLower(c.Environment.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("environment.log_level must be one of: debug, info, warn, error")
	}

	if len(c.Venues) == 0 {
		return fmt.Errorf("at least one venue is required")
	}
	seenVenue := make(map[string]bool, len(c.Venues))
	for i, v := range c.Venues {
		if strings.TrimSpace(v.Name) == "" {
			return fmt.Errorf("venues[%d].name is required", i)
		}
		if seenVenue[v.Name] {
			return fmt.Errorf("venues[%d].name %q is duplicated", i, v.Name)
		}
		seenVenue[v.Name] = true

		switch v.Kind {
		case "paper":
		case "live":
			if strings.TrimSpace(v.BaseURL) == "" {
				return fmt.Errorf("venues[%d] (%s): base_url is required for a live venue", i, v.Name)
			}
			if strings.TrimSpace(v.APIKey) == "" || strings.TrimSpace(v.APISecret) == "" {
				return fmt.Errorf("venues[%d] (%s): api_key and api_secret are required for a live venue", i, v.Name)
			}
		default:
			return fmt.Errorf("venues[%d] (%s): kind must be 'paper' or 'live'", i, v.Name)
		}
		if v.Kind == "paper" && v.StartingCash <= 0 {
			return fmt.Errorf("venues[%d] (%s): starting_cash must be > 0 for a paper venue", i, v.Name)
		}
	}

	if c.Environment.Mode == "live" {
		hasLive := false
		for _, v := range c.Venues {
			if v.Kind == "live" {
				hasLive = true
				break
			}
		}
		if !hasLive {
			return fmt.Errorf("environment.mode is 'live' but no venue has kind 'live'")
		}
	}

	if len(c.Strategies) == 0 {
		return fmt.Errorf("at least one strategy instance is required")
	}
	for i, s := range c.Strategies {
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("strategies[%d].name is required", i)
		}
		if s.Kind != "spot" && s.Kind != "options" {
			return fmt.Errorf("strategies[%d] (%s): kind must be 'spot' or 'options'", i, s.Name)
		}
		if strings.TrimSpace(s.Venue) == "" {
			return fmt.Errorf("strategies[%d] (%s): venue is required", i, s.Name)
		}
		if !seenVenue[s.Venue] {
			return fmt.Errorf("strategies[%d] (%s): venue %q is not declared in venues", i, s.Name, s.Venue)
		}
		if len(s.Symbols) == 0 {
			return fmt.Errorf("strategies[%d] (%s): at least one symbol is required", i, s.Name)
		}
	}

	// Risk validation (common spine)
	if c.Risk.Spot.MaxPositionSizePct <= 0 {
		return fmt.Errorf("risk.spot.max_position_size_pct must be > 0")
	}
	if c.Risk.Spot.DailyLossLimitPct <= 0 {
		return fmt.Errorf("risk.spot.daily_loss_limit_pct must be > 0")
	}
	if c.Risk.Spot.MaxDrawdownPct <= 0 {
		return fmt.Errorf("risk.spot.max_drawdown_pct must be > 0")
	}
	if c.Risk.Options.MaxPositionSizePct <= 0 {
		return fmt.Errorf("risk.options.max_position_size_pct must be > 0")
	}
	if c.Risk.Options.DailyLossLimitPct <= 0 {
		return fmt.Errorf("risk.options.daily_loss_limit_pct must be > 0")
	}
	if c.Risk.Options.MaxDrawdownPct <= 0 {
		return fmt.Errorf("risk.options.max_drawdown_pct must be > 0")
	}

	// Schedule validation
	if strings.TrimSpace(c.Schedule.TickInterval) == "" {
		return fmt.Errorf("schedule.tick_interval is required (set in Normalize)")
	}
	if d, err := time.ParseDuration(strings.TrimSpace(c.Schedule.TickInterval)); err != nil {
		return fmt.Errorf("schedule.tick_interval invalid: %w", err)
	} else if d <= 0 {
		return fmt.Errorf("schedule.tick_interval must be > 0")
	}
	if c.Schedule.MaxIterations < 0 {
		return fmt.Errorf("schedule.max_iterations must be >= 0")
	}

	// Storage validation
	if strings.TrimSpace(c.Storage.Path) == "" {
		return fmt.Errorf("storage.path is required")
	}

	// Dashboard validation
	if c.Dashboard.Enabled {
		if c.Dashboard.Port <= 0 || c.Dashboard.Port > 65535 {
			return fmt.Errorf("dashboard.port must be between 1 and 65535")
		}
	}

	return nil
}

// IsPaperTrading returns true if the bot is configured for paper trading.
func (c *Config) IsPaperTrading() bool {
	return c.Environment.Mode == "paper"
}

// Normalize sets default values for configuration fields.
func (c *Config) Normalize() {
	if strings.TrimSpace(c.Environment.Mode) == "" {
		c.Environment.Mode = "paper"
	}
	if strings.TrimSpace(c.Environment.LogLevel) == "" {
		c.Environment.LogLevel = "info"
	}
	if strings.TrimSpace(c.Schedule.TickInterval) == "" {
		c.Schedule.TickInterval = "60s"
	}
	for i := range c.Venues {
		v := &c.Venues[i]
		if v.Kind == "" {
			v.Kind = "paper"
		}
		if v.QuoteAsset == "" {
			v.QuoteAsset = "USD"
		}
		if v.SlippageBps == 0 {
			v.SlippageBps = 5
		}
		if v.CommissionBps == 0 {
			v.CommissionBps = 10
		}
	}
	for i := range c.Strategies {
		if c.Strategies[i].Kind == "" {
			c.Strategies[i].Kind = "spot"
		}
	}
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = 9847
	}
}
