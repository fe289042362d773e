package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stratyard/tradecore/internal/models"
)

func TestLoad(t *testing.T) {
	configPath := filepath.Join("..", "..", "config.yaml.example")
	// The example's live venue reads its credentials from these variables.
	t.Setenv("TRADECORE_API_KEY", "example-key")
	t.Setenv("TRADECORE_API_SECRET", "example-secret")
	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("expected config to load successfully from example file, got error: %v", err)
	}
	if len(cfg.Venues) == 0 {
		t.Error("expected at least one venue from example file")
	}
	if len(cfg.Strategies) == 0 {
		t.Error("expected at least one strategy instance from example file")
	}
}

func TestLoad_InvalidPath(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	if err == nil {
		t.Error("expected error when loading nonexistent config file, got nil")
	}
}

func validBaseConfig() *Config {
	return &Config{
		Environment: EnvironmentConfig{Mode: "paper", LogLevel: "info"},
		Venues: []VenueConfig{
			{Name: "paper-spot", Kind: "paper", StartingCash: 100000, QuoteAsset: "USD"},
		},
		Strategies: []StrategyInstanceConfig{
			{Name: "sma_crossover", Kind: "spot", Venue: "paper-spot", Symbols: []string{"BTC-USD"}},
		},
		Risk: RiskConfig{
			Spot: models.RiskConfig{
				MaxPositionSizePct: 10,
				DailyLossLimitPct:  5,
				MaxDrawdownPct:     20,
			},
			Options: models.OptionsRiskConfig{
				RiskConfig: models.RiskConfig{
					MaxPositionSizePct: 10,
					DailyLossLimitPct:  5,
					MaxDrawdownPct:     20,
				},
			},
		},
		Schedule: ScheduleConfig{TickInterval: "60s"},
		Storage:  StorageConfig{Path: "positions.json"},
	}
}

func TestValidate_BaseConfigIsValid(t *testing.T) {
	if err := validBaseConfig().Validate(); err != nil {
		t.Errorf("expected valid config, got error: %v", err)
	}
}

func TestValidate_RequiresAtLeastOneVenue(t *testing.T) {
	cfg := validBaseConfig()
	cfg.Venues = nil
	if err := cfg.Validate(); err == nil {
		t.Error("expected error when no venues are configured")
	}
}

func TestValidate_RejectsDuplicateVenueNames(t *testing.T) {
	cfg := validBaseConfig()
	cfg.Venues = append(cfg.Venues, cfg.Venues[0])
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "duplicated") {
		t.Errorf("expected duplicate venue name error, got: %v", err)
	}
}

func TestValidate_LiveVenueRequiresCredentials(t *testing.T) {
	cfg := validBaseConfig()
	cfg.Venues = append(cfg.Venues, VenueConfig{Name: "live-exchange", Kind: "live", BaseURL: "https://x"})
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "api_key and api_secret are required") {
		t.Errorf("expected missing-credentials error, got: %v", err)
	}
}

func TestValidate_LiveModeRequiresALiveVenue(t *testing.T) {
	cfg := validBaseConfig()
	cfg.Environment.Mode = "live"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "no venue has kind 'live'") {
		t.Errorf("expected live-mode-without-live-venue error, got: %v", err)
	}
}

func TestValidate_StrategyMustReferenceDeclaredVenue(t *testing.T) {
	cfg := validBaseConfig()
	cfg.Strategies[0].Venue = "does-not-exist"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "is not declared in venues") {
		t.Errorf("expected unknown-venue-reference error, got: %v", err)
	}
}

func TestValidate_StrategyRequiresAtLeastOneSymbol(t *testing.T) {
	cfg := validBaseConfig()
	cfg.Strategies[0].Symbols = nil
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "at least one symbol is required") {
		t.Errorf("expected missing-symbols error, got: %v", err)
	}
}

func TestValidate_RiskBoundsMustBePositive(t *testing.T) {
	cfg := validBaseConfig()
	cfg.Risk.Spot.MaxDrawdownPct = 0
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "risk.spot.max_drawdown_pct must be > 0") {
		t.Errorf("expected risk bound error, got: %v", err)
	}
}

func TestLoad_UnknownFields(t *testing.T) {
	const badYAML = `
environment: { mode: "paper", log_level: "info" }
venues:
  - name: paper-spot
    kind: paper
    starting_cash: 100000
strategies:
  - name: sma_crossover
    kind: spot
    venue: paper-spot
    symbols: [BTC-USD]
risk:
  spot: { max_position_size_pct: 10, daily_loss_limit_pct: 5, max_drawdown_pct: 20 }
  options: { max_position_size_pct: 10, daily_loss_limit_pct: 5, max_drawdown_pct: 20 }
schedule: { tick_interval: "60s" }
storage: { path: "positions.json" }
extra_unknown_key: true
`
	tmp := t.TempDir()
	path := filepath.Join(tmp, "cfg.yaml")
	if err := os.WriteFile(path, []byte(badYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestNormalize_FillsDefaults(t *testing.T) {
	cfg := &Config{
		Venues:     []VenueConfig{{Name: "v1"}},
		Strategies: []StrategyInstanceConfig{{Name: "sma_crossover", Venue: "v1", Symbols: []string{"BTC-USD"}}},
	}
	cfg.Normalize()

	if cfg.Environment.Mode != "paper" {
		t.Errorf("expected default mode 'paper', got %q", cfg.Environment.Mode)
	}
	if cfg.Environment.LogLevel != "info" {
		t.Errorf("expected default log_level 'info', got %q", cfg.Environment.LogLevel)
	}
	if cfg.Schedule.TickInterval != "60s" {
		t.Errorf("expected default tick_interval '60s', got %q", cfg.Schedule.TickInterval)
	}
	if cfg.Venues[0].Kind != "paper" {
		t.Errorf("expected default venue kind 'paper', got %q", cfg.Venues[0].Kind)
	}
	if cfg.Venues[0].QuoteAsset != "USD" {
		t.Errorf("expected default quote asset 'USD', got %q", cfg.Venues[0].QuoteAsset)
	}
	if cfg.Strategies[0].Kind != "spot" {
		t.Errorf("expected default strategy kind 'spot', got %q", cfg.Strategies[0].Kind)
	}
	if cfg.Dashboard.Port != 9847 {
		t.Errorf("expected default dashboard port 9847, got %d", cfg.Dashboard.Port)
	}
}

func TestTickInterval_FallsBackWhenUnparsable(t *testing.T) {
	cfg := &Config{Schedule: ScheduleConfig{TickInterval: "not-a-duration"}}
	if got := cfg.TickInterval(); got.String() != "1m0s" {
		t.Errorf("expected fallback of 60s, got %v", got)
	}
}

func TestVenue_LooksUpByName(t *testing.T) {
	cfg := validBaseConfig()
	v, ok := cfg.Venue("paper-spot")
	if !ok {
		t.Fatal("expected to find venue 'paper-spot'")
	}
	if v.Kind != "paper" {
		t.Errorf("expected kind 'paper', got %q", v.Kind)
	}
	if _, ok := cfg.Venue("missing"); ok {
		t.Error("expected lookup of unknown venue to fail")
	}
}
