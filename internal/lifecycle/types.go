package lifecycle

import (
	"time"

	"smc-trading-engine/internal/analysis"
	"smc-trading-engine/internal/composer"
)

// SignalStatus represents the lifecycle state of a watchlist signal
type SignalStatus string

const (
	StatusWatching    SignalStatus = "watching"
	StatusSignalReady SignalStatus = "signal_ready"
	StatusActive      SignalStatus = "active"
	StatusHitSL       SignalStatus = "hit_sl"
	StatusHitTP       SignalStatus = "hit_tp"
)

// IsTerminal reports whether the status admits no further transitions
func (s SignalStatus) IsTerminal() bool {
	return s == StatusHitSL || s == StatusHitTP
}

// ExitReason records which exit level closed a signal
type ExitReason string

const (
	ExitStopLoss   ExitReason = "stop_loss"
	ExitTakeProfit ExitReason = "take_profit"
)

// WatchlistSignal is a tracked instrument signal. It is mutated only by the
// lifecycle Manager.
type WatchlistSignal struct {
	ID                string                   `json:"id"`
	Instrument        string                   `json:"instrument"`
	Status            SignalStatus             `json:"status"`
	Direction         analysis.Direction       `json:"direction"`
	EntryPrice        float64                  `json:"entry_price"`
	StopLoss          float64                  `json:"stop_loss"`
	TakeProfits       []float64                `json:"take_profits"`
	CurrentPrice      float64                  `json:"current_price"`
	Analysis          *composer.AnalysisResult `json:"analysis,omitempty"`
	SignalGeneratedAt *time.Time               `json:"signal_generated_at,omitempty"`
	LastAnalyzedAt    time.Time                `json:"last_analyzed_at"`
	ExitPrice         *float64                 `json:"exit_price,omitempty"`
	ExitReason        *ExitReason              `json:"exit_reason,omitempty"`
	TradeClosedAt     *time.Time               `json:"trade_closed_at,omitempty"`
	CreatedAt         time.Time                `json:"created_at"`
	UpdatedAt         time.Time                `json:"updated_at"`
}
