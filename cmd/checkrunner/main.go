// Package main is the spec §4.8 stateless check runner: a one-shot CLI
// usable by an external driver that owns its own scheduling and
// persistence. Each invocation performs exactly one evaluation and emits
// exactly one JSON record on stdout; all diagnostics go to stderr.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/stratyard/tradecore/internal/cache"
	"github.com/stratyard/tradecore/internal/checkrunner"
	"github.com/stratyard/tradecore/internal/fetcher"
	"github.com/stratyard/tradecore/internal/models"
	"github.com/stratyard/tradecore/internal/options"
	"github.com/stratyard/tradecore/internal/registry"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return emit(checkrunner.Record{Error: "no command given", Timestamp: time.Now().UTC()})
	}

	exchangeURL := os.Getenv("TRADECORE_EXCHANGE_URL")
	if exchangeURL == "" {
		exchangeURL = "http://localhost:8080"
	}
	logger := log.New(os.Stderr, "[checkrunner] ", log.LstdFlags)
	ctx := context.Background()

	var rec checkrunner.Record
	var records []checkrunner.Record
	var err error

	switch args[0] {
	case "check_strategy":
		rec, err = runCheckStrategy(ctx, exchangeURL, args[1:])
	case "check_options":
		rec, err = runCheckOptions(ctx, exchangeURL, args[1:])
	case "check_price":
		records, err = runCheckPrice(ctx, exchangeURL, args[1:])
	default:
		err = fmt.Errorf("unknown command %q", args[0])
	}

	if err != nil {
		logger.Printf("error: %v", err)
		printUsage()
		return emit(checkrunner.Record{Error: err.Error(), Timestamp: time.Now().UTC()})
	}

	if args[0] == "check_price" {
		return emitBatch(records)
	}
	return emit(rec)
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage:")
	fmt.Fprintln(os.Stderr, "  checkrunner check_strategy <strategy> <symbol> <timeframe> [<symbol_b>]")
	fmt.Fprintln(os.Stderr, "  checkrunner check_options <strategy> <underlying> [positions_json]")
	fmt.Fprintln(os.Stderr, "  checkrunner check_price <symbol> [<symbol>...]")
	fmt.Fprintln(os.Stderr, "positions_json for check_options may also arrive on stdin; stdin takes precedence.")
	fmt.Fprintln(os.Stderr, "set TRADECORE_EXCHANGE_URL to point at a venue's REST gateway (default http://localhost:8080).")
}

func emit(rec checkrunner.Record) int {
	if err := json.NewEncoder(os.Stdout).Encode(rec); err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode record: %v\n", err)
		return 1
	}
	if rec.Failed() {
		return 1
	}
	return 0
}

// emitBatch prints every check_price record as one JSON array, the
// closest fit to the spec's "one JSON record per invocation" for a
// subcommand that evaluates more than one subject at once.
func emitBatch(records []checkrunner.Record) int {
	if err := json.NewEncoder(os.Stdout).Encode(records); err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode records: %v\n", err)
		return 1
	}
	for _, r := range records {
		if r.Failed() {
			return 1
		}
	}
	return 0
}

func runCheckStrategy(ctx context.Context, exchangeURL string, args []string) (checkrunner.Record, error) {
	fs := flag.NewFlagSet("check_strategy", flag.ContinueOnError)
	lookbackDays := fs.Int("lookback-days", 200, "history window in days to fetch")
	cachePath := fs.String("cache", defaultCachePath(), "OHLCV cache sqlite path")
	if err := fs.Parse(args); err != nil {
		return checkrunner.Record{}, err
	}
	rest := fs.Args()
	if len(rest) < 3 {
		return checkrunner.Record{}, fmt.Errorf("check_strategy requires <strategy> <symbol> <timeframe> [<symbol_b>]")
	}
	strategyName, symbol, timeframe := rest[0], rest[1], rest[2]
	var symbolB string
	if len(rest) > 3 {
		symbolB = rest[3]
	}

	store, err := cache.Open(*cachePath)
	if err != nil {
		return checkrunner.Record{}, fmt.Errorf("open cache: %w", err)
	}
	defer store.Close()

	source := fetcher.NewRESTHistoricalSource(exchangeURL)
	f := fetcher.New(source, store, fetcher.DefaultConfig(exchangeLabel(exchangeURL)), log.New(os.Stderr, "[fetcher] ", log.LstdFlags))

	endMs := time.Now().UTC().UnixMilli()
	startMs := time.Now().UTC().AddDate(0, 0, -*lookbackDays).UnixMilli()

	bars, err := f.Fetch(ctx, symbol, timeframe, startMs, endMs)
	if err != nil {
		return checkrunner.Record{}, fmt.Errorf("fetch bars for %s: %w", symbol, err)
	}

	var secondary []models.OHLCVBar
	if symbolB != "" {
		secondary, err = f.Fetch(ctx, symbolB, timeframe, startMs, endMs)
		if err != nil {
			return checkrunner.Record{}, fmt.Errorf("fetch bars for %s: %w", symbolB, err)
		}
	}

	reg := registry.NewRegistry()
	return checkrunner.CheckStrategy(reg, strategyName, symbol, bars, secondary, nil), nil
}

func runCheckOptions(ctx context.Context, exchangeURL string, args []string) (checkrunner.Record, error) {
	if len(args) < 2 {
		return checkrunner.Record{}, fmt.Errorf("check_options requires <strategy> <underlying> [positions_json]")
	}
	strategyName, underlying := args[0], args[1]

	positionsJSON, err := resolvePositionsJSON(args[2:])
	if err != nil {
		return checkrunner.Record{}, err
	}

	prices := options.NewRESTSpotSource(exchangeURL)
	source := options.NewSyntheticChainSource(prices, options.DefaultSyntheticChainConfig())
	reg := registry.NewRegistry()

	return checkrunner.CheckOptions(ctx, reg, source, strategyName, underlying, positionsJSON, checkrunner.DefaultConfig()), nil
}

func runCheckPrice(ctx context.Context, exchangeURL string, args []string) ([]checkrunner.Record, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("check_price requires at least one <symbol>")
	}
	prices := options.NewRESTSpotSource(exchangeURL)
	source := options.NewSyntheticChainSource(prices, options.DefaultSyntheticChainConfig())
	return checkrunner.CheckPrice(ctx, source, args), nil
}

// resolvePositionsJSON reads existing-positions JSON, preferring stdin
// (when piped) over a positional argument, per spec §6: "Positions JSON
// may also arrive on stdin; stdin takes precedence."
func resolvePositionsJSON(positional []string) ([]byte, error) {
	if stat, err := os.Stdin.Stat(); err == nil && (stat.Mode()&os.ModeCharDevice) == 0 {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read positions from stdin: %w", err)
		}
		if len(data) > 0 {
			return data, nil
		}
	}
	if len(positional) > 0 {
		return []byte(positional[0]), nil
	}
	return nil, nil
}

func defaultCachePath() string {
	if p := os.Getenv("TRADECORE_CACHE_PATH"); p != "" {
		return p
	}
	return "tradecore_cache.db"
}

func exchangeLabel(baseURL string) string {
	if l := os.Getenv("TRADECORE_EXCHANGE_NAME"); l != "" {
		return l
	}
	return baseURL
}

