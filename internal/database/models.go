package database

import "time"

// Trade status values
const (
	TradeStatusOpen   = "open"
	TradeStatusClosed = "closed"
)

// Trade records a position opened from a signal
type Trade struct {
	ID         string     `json:"id"`
	SignalID   *string    `json:"signal_id,omitempty"`
	Owner      string     `json:"owner"`
	Instrument string     `json:"instrument"`
	ContractID string     `json:"contract_id"`
	Side       string     `json:"side"`
	Quantity   float64    `json:"quantity"`
	EntryPrice float64    `json:"entry_price"`
	ExitPrice  *float64   `json:"exit_price,omitempty"`
	PnL        *float64   `json:"pnl,omitempty"`
	Status     string     `json:"status"`
	OpenedAt   time.Time  `json:"opened_at"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// AnalysisRun is the stored summary row for one composer run
type AnalysisRun struct {
	ID            string    `json:"id"`
	Instrument    string    `json:"instrument"`
	FinalDecision string    `json:"final_decision"`
	SessionValid  bool      `json:"session_valid"`
	GeneratedAt   time.Time `json:"generated_at"`
	CreatedAt     time.Time `json:"created_at"`
}
