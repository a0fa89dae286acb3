package composer

import (
	"time"

	"smc-trading-engine/internal/analysis"
	"smc-trading-engine/internal/market"
)

// Decision represents the final gated outcome of an analysis run
type Decision string

const (
	NoTrade    Decision = "NO_TRADE"
	Watch      Decision = "WATCH"
	TradeSetup Decision = "TRADE_SETUP"
)

// Zone classifies where price sits relative to the range midpoint
type Zone string

const (
	Premium  Zone = "premium"
	Discount Zone = "discount"
)

// BiasAnalysis is the 2h stage output
type BiasAnalysis struct {
	Timeframe         market.Timeframe                  `json:"timeframe"`
	Bias              analysis.Direction                `json:"bias"`
	RangeHigh         float64                           `json:"range_high"`
	RangeLow          float64                           `json:"range_low"`
	PDLevel           float64                           `json:"pd_level"`
	Zone              Zone                              `json:"zone"`
	FVGs              []analysis.FairValueGap           `json:"fvgs,omitempty"`
	LiquidityPools    []analysis.LiquidityPool          `json:"liquidity_pools,omitempty"`
	Levels            []analysis.SupportResistanceLevel `json:"levels,omitempty"`
	BuySideLiquidity  []float64                         `json:"buy_side_liquidity,omitempty"`
	SellSideLiquidity []float64                         `json:"sell_side_liquidity,omitempty"`
}

// LiquidityAnalysis is the 15m stage output
type LiquidityAnalysis struct {
	Timeframe      market.Timeframe             `json:"timeframe"`
	LiquidityTaken bool                         `json:"liquidity_taken"`
	FVGPresent     bool                         `json:"fvg_present"`
	SetupValid     bool                         `json:"setup_valid"`
	SweptPools     []analysis.LiquidityPool     `json:"swept_pools,omitempty"`
	FVGs           []analysis.FairValueGap      `json:"fvgs,omitempty"`
	Displacements  []analysis.DisplacementEvent `json:"displacements,omitempty"`
}

// ExecutionSignal is the 5m stage output
type ExecutionSignal struct {
	Timeframe          market.Timeframe                `json:"timeframe"`
	TradeSignal        bool                            `json:"trade_signal"`
	StructureConfirmed bool                            `json:"structure_confirmed"`
	Direction          analysis.Direction              `json:"direction"`
	EntryPrice         float64                         `json:"entry_price"`
	StopLoss           float64                         `json:"stop_loss"`
	TakeProfits        []float64                       `json:"take_profits,omitempty"`
	RiskReward         *float64                        `json:"risk_reward,omitempty"`
	Shifts             []analysis.MarketStructureShift `json:"shifts,omitempty"`
	FVGs               []analysis.FairValueGap         `json:"fvgs,omitempty"`
}

// AnalysisResult is the full three-timeframe aggregate. It is created once
// per run and never mutated afterwards.
type AnalysisResult struct {
	ID            string            `json:"id"`
	Instrument    string            `json:"instrument"`
	GeneratedAt   time.Time         `json:"generated_at"`
	Bias          BiasAnalysis      `json:"bias"`
	Liquidity     LiquidityAnalysis `json:"liquidity"`
	Execution     ExecutionSignal   `json:"execution"`
	FinalDecision Decision          `json:"final_decision"`
	SessionValid  bool              `json:"session_valid"`
}
