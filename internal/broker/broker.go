package broker

import (
	"context"

	"smc-trading-engine/internal/cooldown"
)

// Side of a position to open.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// OrderRequest describes a position to open. Contract sizing and margin
// semantics belong to the broker; callers only name levels.
type OrderRequest struct {
	Instrument  string    `json:"instrument"`
	Side        Side      `json:"side"`
	Quantity    float64   `json:"quantity"`
	StopLoss    float64   `json:"stop_loss"`
	TakeProfits []float64 `json:"take_profits,omitempty"`
}

// Broker is the execution facade. Each call is all-or-nothing: a returned
// error means no position was opened and no trade was closed.
type Broker interface {
	// CurrentPrice returns the latest traded price for an instrument.
	CurrentPrice(ctx context.Context, instrument string) (float64, error)

	// OpenPosition opens a position and returns the broker's contract ID.
	OpenPosition(ctx context.Context, req OrderRequest) (string, error)

	// CloseContracts closes the named contracts and reports the realized
	// PnL per contract. Contracts that fail to close are reported in the
	// failed list; completed closes are never rolled back.
	CloseContracts(ctx context.Context, contractIDs []string) (closed []cooldown.ClosedTrade, failed []string, err error)
}
