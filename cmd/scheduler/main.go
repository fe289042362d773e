// Package main is the spec §4.6 long-running scheduler: it owns one
// options adapter, one risk manager, and an alert sink, and drives a
// fixed set of (strategy, underlying) subjects through a repeating tick
// loop until shut down. Grounded on cmd/bot/main.go's CLI and
// graceful-shutdown pattern, generalized from one bound SPY strangle bot
// to an arbitrary strategy/symbol list.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stratyard/tradecore/internal/alert"
	"github.com/stratyard/tradecore/internal/models"
	"github.com/stratyard/tradecore/internal/options"
	"github.com/stratyard/tradecore/internal/registry"
	"github.com/stratyard/tradecore/internal/risk"
	"github.com/stratyard/tradecore/internal/scheduler"
	"github.com/stratyard/tradecore/internal/status"
	"github.com/stratyard/tradecore/internal/venue"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		strategyFlag  string
		symbolsFlag   string
		timeframe     string
		capital       float64
		live          bool
		apiKey        string
		apiSecret     string
		intervalSecs  int
		maxIterations int
		maxDrawdown   float64
		dailyLossCap  float64
		maxPositions  int
		maxDelta      float64
		dashboardPort int
		dashboardAuth string
	)
	flag.StringVar(&strategyFlag, "strategy", "", "comma-separated options strategy names from the registry")
	flag.StringVar(&symbolsFlag, "symbols", "", "comma-separated underlyings, each strategy runs against every symbol")
	flag.StringVar(&timeframe, "timeframe", "1h", "reference candle timeframe, recorded for operators; strategies here trade off live spot, not bars")
	flag.Float64Var(&capital, "capital", 100_000, "starting paper/live cash")
	flag.BoolVar(&live, "live", false, "place real orders against the venue (requires --api-key/--api-secret); without it, paper mode is mandatory")
	flag.StringVar(&apiKey, "api-key", os.Getenv("TRADECORE_API_KEY"), "venue API key, required with --live")
	flag.StringVar(&apiSecret, "api-secret", os.Getenv("TRADECORE_API_SECRET"), "venue API secret, required with --live")
	flag.IntVar(&intervalSecs, "interval", 60, "seconds between ticks")
	flag.IntVar(&maxIterations, "max-iterations", 0, "stop after this many ticks; 0 runs until shutdown")
	flag.Float64Var(&maxDrawdown, "max-drawdown", 20, "max drawdown from peak portfolio value, percent, before the circuit breaker trips")
	flag.Float64Var(&dailyLossCap, "daily-loss-limit", 5, "max daily loss, percent of the day's starting value, before the circuit breaker trips")
	flag.IntVar(&maxPositions, "max-positions", 20, "max simultaneous open option positions across all underlyings")
	flag.Float64Var(&maxDelta, "max-delta", 50, "max absolute portfolio delta the risk manager allows")
	flag.IntVar(&dashboardPort, "dashboard-port", 0, "serve the status/metrics HTTP API on this port; 0 disables it")
	flag.StringVar(&dashboardAuth, "dashboard-auth-token", os.Getenv("TRADECORE_DASHBOARD_AUTH_TOKEN"), "require this bearer token on the status API; empty disables auth")
	flag.Parse()

	logger := log.New(os.Stdout, "[SCHEDULER] ", log.LstdFlags)

	strategyNames := splitAndTrim(strategyFlag)
	symbols := splitAndTrim(symbolsFlag)
	if len(strategyNames) == 0 || len(symbols) == 0 {
		logger.Println("usage: scheduler --strategy <name[,name...]> --symbols <sym[,sym...]> [flags]")
		return 1
	}

	exchangeURL := os.Getenv("TRADECORE_EXCHANGE_URL")
	if exchangeURL == "" {
		exchangeURL = "http://localhost:8080"
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if live {
		logger.Println("LIVE TRADING MODE - real money at risk!")
		if os.Getenv("TRADECORE_SKIP_LIVE_WAIT") != "1" {
			logger.Println("waiting 5 seconds to confirm... (set TRADECORE_SKIP_LIVE_WAIT=1 to skip, or Ctrl-C to abort)")
			select {
			case <-time.After(5 * time.Second):
			case <-sigChan:
				logger.Println("interrupted during live-mode confirmation, aborting")
				return 1
			}
		}
	} else {
		logger.Println("PAPER TRADING MODE - no real money at risk")
	}

	prices, err := spotPriceSource(exchangeURL, live, apiKey, apiSecret)
	if err != nil {
		logger.Printf("failed to set up market data: %v", err)
		return 1
	}
	chainSource := options.NewSyntheticChainSource(prices, options.DefaultSyntheticChainConfig())
	adapter := options.NewAdapter(chainSource, options.DefaultConfig(), capital)

	riskCfg := models.OptionsRiskConfig{
		RiskConfig: models.RiskConfig{
			MaxPositionSizePct:   10,
			MaxPositionSizeUSD:   capital * 0.25,
			PerTradeStopLossPct:  50,
			MaxNumPositions:      maxPositions,
			MaxTotalExposurePct:  80,
			MaxConsecutiveLosses: 5,
			DailyLossLimitPct:    dailyLossCap,
			MaxDrawdownPct:       maxDrawdown,
			CooldownMinutes:      60,
		},
		MaxPositions:              maxPositions,
		MaxPositionsPerUnderlying: 4,
		MaxPremiumAtRiskPct:       50,
		MinDelta:                  -maxDelta,
		MaxDelta:                  maxDelta,
		MaxAbsGamma:               1_000_000,
		MaxAbsVega:                1_000_000,
		MaxMonthlyHedgeCostPct:    5,
	}
	riskMgr := risk.NewOptionsManager(riskCfg)

	alerts := alert.NewSink(500, alert.StdoutEmitter{})

	reg := registry.NewRegistry()
	subjects, err := buildSubjects(reg, adapter, riskMgr, strategyNames, symbols)
	if err != nil {
		logger.Printf("failed to build subjects: %v", err)
		return 1
	}

	cfg := scheduler.DefaultConfig()
	cfg.SleepInterval = time.Duration(intervalSecs) * time.Second
	cfg.MaxIterations = maxIterations
	cfg.MaxPositionsPerUnderlying = 4

	logger.Printf("starting scheduler: strategies=%v symbols=%v timeframe=%s capital=$%.2f interval=%s",
		strategyNames, symbols, timeframe, capital, cfg.SleepInterval)

	sched := scheduler.New(adapter, riskMgr, alerts, subjects, cfg, logger)

	var statusSrv *status.Server
	if dashboardPort != 0 {
		statusSrv = status.NewServer(status.Config{Port: dashboardPort, AuthToken: dashboardAuth}, adapter, riskMgr, alerts, logrus.StandardLogger())
		go func() {
			if err := statusSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Printf("status server stopped: %v", err)
			}
		}()
		logger.Printf("status API listening on :%d", dashboardPort)
	}

	go func() {
		<-sigChan
		logger.Println("shutdown signal received, finishing current tick...")
		sched.Shutdown()
		if statusSrv != nil {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = statusSrv.Shutdown(shutdownCtx)
			shutdownCancel()
		}
		cancel()
	}()

	if err := sched.Run(ctx); err != nil {
		logger.Printf("scheduler stopped with fatal error: %v", err)
		return 1
	}
	return 0
}

// buildSubjects binds one strategy instance per (strategy, underlying)
// pair; every named strategy runs against every named symbol.
func buildSubjects(reg *registry.Registry, adapter *options.Adapter, riskMgr *risk.OptionsManager, strategyNames, symbols []string) ([]scheduler.Subject, error) {
	var subjects []scheduler.Subject
	for _, name := range strategyNames {
		entry, ok := reg.Options(name)
		if !ok {
			return nil, fmt.Errorf("unknown options strategy %q", name)
		}
		for _, sym := range symbols {
			subjects = append(subjects, scheduler.Subject{
				Name:       entry.Name,
				Underlying: sym,
				Strategy:   entry.New(adapter, riskMgr, entry.DefaultParams),
			})
		}
	}
	return subjects, nil
}

// spotPriceSource picks the feed backing the synthetic options chain: a
// credentialed venue.LiveAdapter when --live is set, or the same
// unauthenticated public ticker the check runner uses otherwise.
func spotPriceSource(exchangeURL string, live bool, apiKey, apiSecret string) (options.SpotPriceSource, error) {
	if !live {
		return options.NewRESTSpotSource(exchangeURL), nil
	}
	creds := venue.Credentials{APIKey: apiKey, APISecret: apiSecret}
	if creds.Empty() {
		return nil, fmt.Errorf("--live requires --api-key and --api-secret")
	}
	adapter, err := venue.NewLiveAdapter(venue.LiveEndpoints{RESTBaseURL: exchangeURL}, creds, venue.NewHMACSigner())
	if err != nil {
		return nil, fmt.Errorf("live adapter: %w", err)
	}
	return adapter, nil
}

func splitAndTrim(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
