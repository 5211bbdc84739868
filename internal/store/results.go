package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"algoace/internal/domain"
)

// Errors returned by the result store.
var (
	ErrNotFound = errors.New("backtest result not found")
	ErrLocked   = errors.New("backtest result is locked")
)

// ResultStore persists completed backtest results. Every write is a single
// SQL statement, so a result is either fully stored or not stored at all.
type ResultStore struct {
	db *sql.DB
}

// NewResultStore creates a ResultStore on the given database, creating its
// table if needed.
func NewResultStore(db *sql.DB) (*ResultStore, error) {
	const schema = `
CREATE TABLE IF NOT EXISTS backtest_results (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	strategy_id TEXT NOT NULL,
	timestamp   TEXT NOT NULL,
	params      TEXT NOT NULL,
	summary     TEXT NOT NULL,
	equity      TEXT NOT NULL,
	trades      TEXT NOT NULL,
	log_output  TEXT NOT NULL DEFAULT '',
	ai_analysis TEXT,
	locked      INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_results_strategy ON backtest_results(strategy_id, timestamp);`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("creating backtest_results table: %w", err)
	}
	return &ResultStore{db: db}, nil
}

// Create inserts a completed result and returns it with its assigned ID.
// New results are never locked.
func (s *ResultStore) Create(ctx context.Context, r domain.BacktestResult) (domain.BacktestResult, error) {
	params, err := json.Marshal(r.Params)
	if err != nil {
		return domain.BacktestResult{}, fmt.Errorf("encoding params: %w", err)
	}
	summary, err := json.Marshal(r.Summary)
	if err != nil {
		return domain.BacktestResult{}, fmt.Errorf("encoding summary: %w", err)
	}
	equity, err := json.Marshal(r.EquityCurve)
	if err != nil {
		return domain.BacktestResult{}, fmt.Errorf("encoding equity curve: %w", err)
	}
	trades, err := json.Marshal(r.Trades)
	if err != nil {
		return domain.BacktestResult{}, fmt.Errorf("encoding trades: %w", err)
	}

	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	r.Locked = false
	r.AIAnalysis = nil

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO backtest_results (strategy_id, timestamp, params, summary, equity, trades, log_output, locked)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)`,
		r.StrategyID, r.Timestamp.Format(time.RFC3339Nano),
		string(params), string(summary), string(equity), string(trades), r.LogOutput,
	)
	if err != nil {
		return domain.BacktestResult{}, fmt.Errorf("inserting result: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.BacktestResult{}, err
	}
	r.ID = id
	return r, nil
}

const resultColumns = `id, strategy_id, timestamp, params, summary, equity, trades, log_output, ai_analysis, locked`

// Get returns a result by ID, or ErrNotFound.
func (s *ResultStore) Get(ctx context.Context, id int64) (domain.BacktestResult, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+resultColumns+` FROM backtest_results WHERE id = ?`, id)
	return scanResult(row)
}

// List returns results newest-first, up to limit (0 means no limit).
func (s *ResultStore) List(ctx context.Context, limit int) ([]domain.BacktestResult, error) {
	q := `SELECT ` + resultColumns + ` FROM backtest_results ORDER BY timestamp DESC, id DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryResults(ctx, q, args...)
}

// ListByStrategy returns a strategy's results newest-first.
func (s *ResultStore) ListByStrategy(ctx context.Context, strategyID string) ([]domain.BacktestResult, error) {
	return s.queryResults(ctx, `
		SELECT `+resultColumns+` FROM backtest_results
		WHERE strategy_id = ? ORDER BY timestamp DESC, id DESC`, strategyID)
}

// Latest returns the most recent result for a strategy, or ErrNotFound.
func (s *ResultStore) Latest(ctx context.Context, strategyID string) (domain.BacktestResult, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+resultColumns+` FROM backtest_results
		WHERE strategy_id = ? ORDER BY timestamp DESC, id DESC LIMIT 1`, strategyID)
	return scanResult(row)
}

// Delete removes a result. Locked results are refused with ErrLocked and
// left untouched; missing results return ErrNotFound.
func (s *ResultStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM backtest_results WHERE id = ? AND locked = 0`, id)
	if err != nil {
		return fmt.Errorf("deleting result %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var locked bool
	err = s.db.QueryRowContext(ctx,
		`SELECT locked FROM backtest_results WHERE id = ?`, id).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if locked {
		return ErrLocked
	}
	return ErrNotFound
}

// SetLocked flips a result's lock flag.
func (s *ResultStore) SetLocked(ctx context.Context, id int64, locked bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE backtest_results SET locked = ? WHERE id = ?`, boolToInt(locked), id)
	if err != nil {
		return fmt.Errorf("updating lock on result %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// PruneOld keeps a strategy's keep most recent results and deletes the rest,
// skipping locked results. Returns the number of deleted rows.
func (s *ResultStore) PruneOld(ctx context.Context, strategyID string, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM backtest_results
		WHERE strategy_id = ? AND locked = 0 AND id NOT IN (
			SELECT id FROM backtest_results
			WHERE strategy_id = ?
			ORDER BY timestamp DESC, id DESC LIMIT ?
		)`, strategyID, strategyID, keep)
	if err != nil {
		return 0, fmt.Errorf("pruning results for %s: %w", strategyID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// AttachAnalysis stores an AI analysis on a result exactly once: when an
// analysis already exists and force is false, the stored text is returned
// with created=false and nothing is written.
func (s *ResultStore) AttachAnalysis(ctx context.Context, id int64, analysis string, force bool) (string, bool, error) {
	// The existence check lives in the statement itself so two concurrent
	// attaches cannot both write: only the first finds the column empty.
	res, err := s.db.ExecContext(ctx, `
		UPDATE backtest_results SET ai_analysis = ?
		WHERE id = ? AND (ai_analysis IS NULL OR ai_analysis = '' OR ?)`,
		analysis, id, boolToInt(force))
	if err != nil {
		return "", false, fmt.Errorf("storing analysis on result %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", false, err
	}
	if n > 0 {
		return analysis, true, nil
	}

	// Nothing written: the row is missing or already carries an analysis.
	current, err := s.Get(ctx, id)
	if err != nil {
		return "", false, err
	}
	if current.AIAnalysis == nil {
		return "", false, nil
	}
	return *current.AIAnalysis, false, nil
}

func (s *ResultStore) queryResults(ctx context.Context, q string, args ...any) ([]domain.BacktestResult, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying results: %w", err)
	}
	defer rows.Close()

	var out []domain.BacktestResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanResult(s scanner) (domain.BacktestResult, error) {
	var (
		r         domain.BacktestResult
		timestamp string
		params    string
		summary   string
		equity    string
		trades    string
		analysis  sql.NullString
		locked    int
	)
	err := s.Scan(&r.ID, &r.StrategyID, &timestamp, &params, &summary, &equity, &trades,
		&r.LogOutput, &analysis, &locked)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.BacktestResult{}, ErrNotFound
	}
	if err != nil {
		return domain.BacktestResult{}, fmt.Errorf("scanning result row: %w", err)
	}

	r.Timestamp, err = time.Parse(time.RFC3339Nano, timestamp)
	if err != nil {
		return domain.BacktestResult{}, fmt.Errorf("parsing result timestamp: %w", err)
	}
	if err := json.Unmarshal([]byte(params), &r.Params); err != nil {
		return domain.BacktestResult{}, fmt.Errorf("decoding params: %w", err)
	}
	if err := json.Unmarshal([]byte(summary), &r.Summary); err != nil {
		return domain.BacktestResult{}, fmt.Errorf("decoding summary: %w", err)
	}
	if err := json.Unmarshal([]byte(equity), &r.EquityCurve); err != nil {
		return domain.BacktestResult{}, fmt.Errorf("decoding equity curve: %w", err)
	}
	if err := json.Unmarshal([]byte(trades), &r.Trades); err != nil {
		return domain.BacktestResult{}, fmt.Errorf("decoding trades: %w", err)
	}
	if analysis.Valid {
		r.AIAnalysis = &analysis.String
	}
	r.Locked = locked != 0
	return r, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
