package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"smc-trading-engine/internal/analysis"
	"smc-trading-engine/internal/composer"
	"smc-trading-engine/internal/cooldown"
	"smc-trading-engine/internal/lifecycle"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Repository provides data access methods
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck performs a database health check
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// ============================================================================
// ANALYSIS RUNS
// ============================================================================

// SaveAnalysis stores a full composer result
func (r *Repository) SaveAnalysis(ctx context.Context, result *composer.AnalysisResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode analysis result: %w", err)
	}
	query := `
		INSERT INTO analysis_runs (id, instrument, final_decision, session_valid, result, generated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = r.db.Pool.Exec(
		ctx, query,
		result.ID, result.Instrument, string(result.FinalDecision),
		result.SessionValid, payload, result.GeneratedAt,
	)
	return err
}

// GetAnalysis retrieves a stored composer result by ID
func (r *Repository) GetAnalysis(ctx context.Context, id string) (*composer.AnalysisResult, error) {
	var payload []byte
	err := r.db.Pool.QueryRow(ctx,
		`SELECT result FROM analysis_runs WHERE id = $1`, id,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var result composer.AnalysisResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("decode analysis result: %w", err)
	}
	return &result, nil
}

// ListAnalysisRuns returns recent run summaries for an instrument
func (r *Repository) ListAnalysisRuns(ctx context.Context, instrument string, limit int) ([]*AnalysisRun, error) {
	query := `
		SELECT id, instrument, final_decision, session_valid, generated_at, created_at
		FROM analysis_runs
		WHERE instrument = $1
		ORDER BY generated_at DESC
		LIMIT $2
	`
	rows, err := r.db.Pool.Query(ctx, query, instrument, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*AnalysisRun
	for rows.Next() {
		run := &AnalysisRun{}
		if err := rows.Scan(
			&run.ID, &run.Instrument, &run.FinalDecision,
			&run.SessionValid, &run.GeneratedAt, &run.CreatedAt,
		); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ============================================================================
// WATCHLIST SIGNALS
// ============================================================================

// CreateSignal inserts a new watchlist signal
func (r *Repository) CreateSignal(ctx context.Context, sig *lifecycle.WatchlistSignal) error {
	tps, analysisJSON, err := encodeSignalJSON(sig)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO watchlist_signals (
			id, instrument, status, direction, entry_price, stop_loss, take_profits,
			current_price, analysis, signal_generated_at, last_analyzed_at,
			exit_price, exit_reason, trade_closed_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err = r.db.Pool.Exec(
		ctx, query,
		sig.ID, sig.Instrument, string(sig.Status), string(sig.Direction),
		sig.EntryPrice, sig.StopLoss, tps, sig.CurrentPrice, analysisJSON,
		sig.SignalGeneratedAt, sig.LastAnalyzedAt,
		sig.ExitPrice, exitReasonStr(sig.ExitReason), sig.TradeClosedAt,
		sig.CreatedAt, sig.UpdatedAt,
	)
	return err
}

// UpdateSignal rewrites the mutable fields of a signal
func (r *Repository) UpdateSignal(ctx context.Context, sig *lifecycle.WatchlistSignal) error {
	tps, analysisJSON, err := encodeSignalJSON(sig)
	if err != nil {
		return err
	}
	// Terminal rows are immutable: a concurrent loop holding a copy listed
	// before the close must not write it back over hit_sl/hit_tp.
	query := `
		UPDATE watchlist_signals
		SET status = $2, direction = $3, entry_price = $4, stop_loss = $5,
		    take_profits = $6, current_price = $7, analysis = $8,
		    signal_generated_at = $9, last_analyzed_at = $10,
		    exit_price = $11, exit_reason = $12, trade_closed_at = $13, updated_at = $14
		WHERE id = $1 AND status NOT IN ($15, $16)
	`
	tag, err := r.db.Pool.Exec(
		ctx, query,
		sig.ID, string(sig.Status), string(sig.Direction),
		sig.EntryPrice, sig.StopLoss, tps, sig.CurrentPrice, analysisJSON,
		sig.SignalGeneratedAt, sig.LastAnalyzedAt,
		sig.ExitPrice, exitReasonStr(sig.ExitReason), sig.TradeClosedAt, sig.UpdatedAt,
		string(lifecycle.StatusHitSL), string(lifecycle.StatusHitTP),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var status string
		err := r.db.Pool.QueryRow(ctx,
			`SELECT status FROM watchlist_signals WHERE id = $1`, sig.ID).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if lifecycle.SignalStatus(status).IsTerminal() {
			return nil
		}
		return ErrNotFound
	}
	return nil
}

// GetSignalByID retrieves a signal by ID
func (r *Repository) GetSignalByID(ctx context.Context, id string) (*lifecycle.WatchlistSignal, error) {
	row := r.db.Pool.QueryRow(ctx, signalSelect+` WHERE id = $1`, id)
	sig, err := scanSignal(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return sig, err
}

// ListSignalsByStatus retrieves signals in any of the given statuses
func (r *Repository) ListSignalsByStatus(ctx context.Context, statuses ...lifecycle.SignalStatus) ([]*lifecycle.WatchlistSignal, error) {
	vals := make([]string, len(statuses))
	for i, s := range statuses {
		vals[i] = string(s)
	}
	rows, err := r.db.Pool.Query(ctx,
		signalSelect+` WHERE status = ANY($1) ORDER BY created_at`, vals)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sigs []*lifecycle.WatchlistSignal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		sigs = append(sigs, sig)
	}
	return sigs, rows.Err()
}

const signalSelect = `
	SELECT id, instrument, status, direction, entry_price, stop_loss, take_profits,
	       current_price, analysis, signal_generated_at, last_analyzed_at,
	       exit_price, exit_reason, trade_closed_at, created_at, updated_at
	FROM watchlist_signals`

func encodeSignalJSON(sig *lifecycle.WatchlistSignal) ([]byte, []byte, error) {
	tps, err := json.Marshal(sig.TakeProfits)
	if err != nil {
		return nil, nil, fmt.Errorf("encode take profits: %w", err)
	}
	var analysisJSON []byte
	if sig.Analysis != nil {
		analysisJSON, err = json.Marshal(sig.Analysis)
		if err != nil {
			return nil, nil, fmt.Errorf("encode analysis snapshot: %w", err)
		}
	}
	return tps, analysisJSON, nil
}

func exitReasonStr(r *lifecycle.ExitReason) *string {
	if r == nil {
		return nil
	}
	s := string(*r)
	return &s
}

func scanSignal(row pgx.Row) (*lifecycle.WatchlistSignal, error) {
	sig := &lifecycle.WatchlistSignal{}
	var (
		status, direction string
		tps, analysisJSON []byte
		exitReason        *string
	)
	err := row.Scan(
		&sig.ID, &sig.Instrument, &status, &direction,
		&sig.EntryPrice, &sig.StopLoss, &tps, &sig.CurrentPrice, &analysisJSON,
		&sig.SignalGeneratedAt, &sig.LastAnalyzedAt,
		&sig.ExitPrice, &exitReason, &sig.TradeClosedAt,
		&sig.CreatedAt, &sig.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	sig.Status = lifecycle.SignalStatus(status)
	sig.Direction = analysis.Direction(direction)
	if len(tps) > 0 {
		if err := json.Unmarshal(tps, &sig.TakeProfits); err != nil {
			return nil, fmt.Errorf("decode take profits: %w", err)
		}
	}
	if len(analysisJSON) > 0 {
		if err := json.Unmarshal(analysisJSON, &sig.Analysis); err != nil {
			return nil, fmt.Errorf("decode analysis snapshot: %w", err)
		}
	}
	if exitReason != nil {
		r := lifecycle.ExitReason(*exitReason)
		sig.ExitReason = &r
	}
	return sig, nil
}

// ============================================================================
// TRADES
// ============================================================================

// CreateTrade inserts a new trade
func (r *Repository) CreateTrade(ctx context.Context, trade *Trade) error {
	if trade.ID == "" {
		trade.ID = uuid.New().String()
	}
	query := `
		INSERT INTO trades (id, signal_id, owner, instrument, contract_id, side, quantity, entry_price, status, opened_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`
	return r.db.Pool.QueryRow(
		ctx, query,
		trade.ID, trade.SignalID, trade.Owner, trade.Instrument, trade.ContractID,
		trade.Side, trade.Quantity, trade.EntryPrice, trade.Status, trade.OpenedAt,
	).Scan(&trade.CreatedAt, &trade.UpdatedAt)
}

// CloseTrade records a trade's settlement
func (r *Repository) CloseTrade(ctx context.Context, contractID string, exitPrice, pnl float64, closedAt time.Time) error {
	query := `
		UPDATE trades
		SET exit_price = $2, pnl = $3, status = $4, closed_at = $5, updated_at = NOW()
		WHERE contract_id = $1 AND status = $6
	`
	tag, err := r.db.Pool.Exec(ctx, query, contractID, exitPrice, pnl, TradeStatusClosed, closedAt, TradeStatusOpen)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetOpenTradesByOwner retrieves an owner's open trades
func (r *Repository) GetOpenTradesByOwner(ctx context.Context, owner string) ([]*Trade, error) {
	query := `
		SELECT id, signal_id, owner, instrument, contract_id, side, quantity, entry_price,
		       exit_price, pnl, status, opened_at, closed_at, created_at, updated_at
		FROM trades
		WHERE owner = $1 AND status = $2
		ORDER BY opened_at DESC
	`
	rows, err := r.db.Pool.Query(ctx, query, owner, TradeStatusOpen)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*Trade
	for rows.Next() {
		trade := &Trade{}
		if err := rows.Scan(
			&trade.ID, &trade.SignalID, &trade.Owner, &trade.Instrument, &trade.ContractID,
			&trade.Side, &trade.Quantity, &trade.EntryPrice, &trade.ExitPrice, &trade.PnL,
			&trade.Status, &trade.OpenedAt, &trade.ClosedAt, &trade.CreatedAt, &trade.UpdatedAt,
		); err != nil {
			return nil, err
		}
		trades = append(trades, trade)
	}
	return trades, rows.Err()
}

// ============================================================================
// COOLDOWNS
// ============================================================================

var _ cooldown.Store = (*Repository)(nil)

// SaveCooldown stores a cooldown window
func (r *Repository) SaveCooldown(ctx context.Context, e cooldown.Entry) error {
	query := `
		INSERT INTO cooldowns (id, owner, kind, net_pnl, started_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.Pool.Exec(ctx, query,
		uuid.New().String(), e.Owner, string(e.Kind), e.NetPnL, e.StartedAt, e.ExpiresAt)
	return err
}

// LatestCooldown returns the owner's most recent cooldown window, or nil
func (r *Repository) LatestCooldown(ctx context.Context, owner string) (*cooldown.Entry, error) {
	query := `
		SELECT owner, kind, net_pnl, started_at, expires_at
		FROM cooldowns
		WHERE owner = $1
		ORDER BY expires_at DESC
		LIMIT 1
	`
	var e cooldown.Entry
	var kind string
	err := r.db.Pool.QueryRow(ctx, query, owner).Scan(
		&e.Owner, &kind, &e.NetPnL, &e.StartedAt, &e.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e.Kind = cooldown.Kind(kind)
	return &e, nil
}
