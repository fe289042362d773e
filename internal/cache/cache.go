// Package cache provides sqlite-backed persistence for OHLCV history,
// backtest results, and strategy accumulators (spec §6 "Persistent
// state"). It is a thin keyed store, not an ORM: callers pass and
// receive plain structs. The OHLCV and accumulator tables use
// insert-or-replace semantics on their natural key; backtest results are
// appended, one row per run.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite" // pure-Go sqlite driver, registers "sqlite"

	"github.com/stratyard/tradecore/internal/models"
)

// Store is the sqlite-backed cache: OHLCV bars, backtest result rows,
// and JSON strategy accumulators, all in one file.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the sqlite file at path and ensures
// its schema exists. path may be ":memory:" for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers; avoid "database is locked"

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ohlcv_bars (
			exchange     TEXT NOT NULL,
			symbol       TEXT NOT NULL,
			timeframe    TEXT NOT NULL,
			timestamp_ms INTEGER NOT NULL,
			open         REAL NOT NULL,
			high         REAL NOT NULL,
			low          REAL NOT NULL,
			close        REAL NOT NULL,
			volume       REAL NOT NULL,
			PRIMARY KEY (exchange, symbol, timeframe, timestamp_ms)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ohlcv_bars_range
			ON ohlcv_bars(exchange, symbol, timeframe, timestamp_ms)`,
		`CREATE TABLE IF NOT EXISTS backtest_results (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			strategy        TEXT NOT NULL,
			symbol          TEXT NOT NULL,
			timeframe       TEXT NOT NULL,
			period_start_ms INTEGER NOT NULL,
			period_end_ms   INTEGER NOT NULL,
			initial_capital REAL NOT NULL,
			final_capital   REAL NOT NULL,
			return_pct      REAL NOT NULL,
			max_drawdown_pct REAL NOT NULL,
			sharpe          REAL NOT NULL,
			params_json     TEXT NOT NULL DEFAULT '{}',
			trade_log_json  TEXT NOT NULL DEFAULT '[]',
			created_at_ms   INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS strategy_accumulators (
			name          TEXT PRIMARY KEY,
			data_json     TEXT NOT NULL,
			updated_at_ms INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate cache schema: %w", err)
		}
	}
	return nil
}

// UpsertBars writes bars for (exchange, symbol, timeframe), replacing any
// existing row sharing the same timestamp_ms key.
func (s *Store) UpsertBars(ctx context.Context, exchange, symbol, timeframe string, bars []models.OHLCVBar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert bars: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO ohlcv_bars
			(exchange, symbol, timeframe, timestamp_ms, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert bars: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, exchange, symbol, timeframe, b.TimestampMs, b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			return fmt.Errorf("upsert bar %d: %w", b.TimestampMs, err)
		}
	}

	return tx.Commit()
}

// GetBars returns bars for (exchange, symbol, timeframe) ordered by
// timestamp ascending. startMs/endMs of 0 leave that bound open.
func (s *Store) GetBars(ctx context.Context, exchange, symbol, timeframe string, startMs, endMs int64) ([]models.OHLCVBar, error) {
	query := `
		SELECT timestamp_ms, open, high, low, close, volume
		FROM ohlcv_bars
		WHERE exchange = ? AND symbol = ? AND timeframe = ?
	`
	args := []any{exchange, symbol, timeframe}
	if startMs > 0 {
		query += " AND timestamp_ms >= ?"
		args = append(args, startMs)
	}
	if endMs > 0 {
		query += " AND timestamp_ms <= ?"
		args = append(args, endMs)
	}
	query += " ORDER BY timestamp_ms ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get bars %s/%s/%s: %w", exchange, symbol, timeframe, err)
	}
	defer rows.Close()

	var out []models.OHLCVBar
	for rows.Next() {
		var b models.OHLCVBar
		if err := rows.Scan(&b.TimestampMs, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan bar row: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// BacktestResult is one stored backtest run (spec §6 "Backtest results").
type BacktestResult struct {
	ID             int64
	Strategy       string
	Symbol         string
	Timeframe      string
	PeriodStartMs  int64
	PeriodEndMs    int64
	InitialCapital float64
	FinalCapital   float64
	ReturnPct      float64
	MaxDrawdownPct float64
	Sharpe         float64
	Params         map[string]float64
	TradeLog       []string
	CreatedAtMs    int64
}

// SaveBacktestResult appends a backtest result row, serializing Params
// and TradeLog to JSON columns.
func (s *Store) SaveBacktestResult(ctx context.Context, r BacktestResult) (int64, error) {
	paramsJSON, err := json.Marshal(r.Params)
	if err != nil {
		return 0, fmt.Errorf("marshal backtest params: %w", err)
	}
	tradeLogJSON, err := json.Marshal(r.TradeLog)
	if err != nil {
		return 0, fmt.Errorf("marshal backtest trade log: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO backtest_results
			(strategy, symbol, timeframe, period_start_ms, period_end_ms,
			 initial_capital, final_capital, return_pct, max_drawdown_pct, sharpe,
			 params_json, trade_log_json, created_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.Strategy, r.Symbol, r.Timeframe, r.PeriodStartMs, r.PeriodEndMs,
		r.InitialCapital, r.FinalCapital, r.ReturnPct, r.MaxDrawdownPct, r.Sharpe,
		string(paramsJSON), string(tradeLogJSON), r.CreatedAtMs)
	if err != nil {
		return 0, fmt.Errorf("save backtest result: %w", err)
	}
	return res.LastInsertId()
}

// ListBacktestResults returns every stored result for strategy (all
// symbols/timeframes) ordered most recent first.
func (s *Store) ListBacktestResults(ctx context.Context, strategy string) ([]BacktestResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, strategy, symbol, timeframe, period_start_ms, period_end_ms,
			initial_capital, final_capital, return_pct, max_drawdown_pct, sharpe,
			params_json, trade_log_json, created_at_ms
		FROM backtest_results
		WHERE strategy = ?
		ORDER BY created_at_ms DESC
	`, strategy)
	if err != nil {
		return nil, fmt.Errorf("list backtest results for %s: %w", strategy, err)
	}
	defer rows.Close()

	var out []BacktestResult
	for rows.Next() {
		var r BacktestResult
		var paramsJSON, tradeLogJSON string
		if err := rows.Scan(&r.ID, &r.Strategy, &r.Symbol, &r.Timeframe, &r.PeriodStartMs, &r.PeriodEndMs,
			&r.InitialCapital, &r.FinalCapital, &r.ReturnPct, &r.MaxDrawdownPct, &r.Sharpe,
			&paramsJSON, &tradeLogJSON, &r.CreatedAtMs); err != nil {
			return nil, fmt.Errorf("scan backtest result row: %w", err)
		}
		if err := json.Unmarshal([]byte(paramsJSON), &r.Params); err != nil {
			return nil, fmt.Errorf("unmarshal backtest params: %w", err)
		}
		if err := json.Unmarshal([]byte(tradeLogJSON), &r.TradeLog); err != nil {
			return nil, fmt.Errorf("unmarshal backtest trade log: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SaveAccumulator upserts one JSON-serialized strategy accumulator
// keyed by name (e.g. an arbitrage-memory running-counter object).
func (s *Store) SaveAccumulator(ctx context.Context, name string, data any, updatedAtMs int64) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal accumulator %s: %w", name, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO strategy_accumulators (name, data_json, updated_at_ms)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET data_json = excluded.data_json, updated_at_ms = excluded.updated_at_ms
	`, name, string(payload), updatedAtMs)
	if err != nil {
		return fmt.Errorf("save accumulator %s: %w", name, err)
	}
	return nil
}

// LoadAccumulator decodes the named accumulator into dest, returning
// false if none has been saved yet.
func (s *Store) LoadAccumulator(ctx context.Context, name string, dest any) (bool, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT data_json FROM strategy_accumulators WHERE name = ?`, name).Scan(&payload)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load accumulator %s: %w", name, err)
	}
	if err := json.Unmarshal([]byte(payload), dest); err != nil {
		return false, fmt.Errorf("unmarshal accumulator %s: %w", name, err)
	}
	return true, nil
}
