package composer

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"smc-trading-engine/internal/analysis"
	"smc-trading-engine/internal/market"
)

// Config holds composer tuning parameters
type Config struct {
	LookbackWindow time.Duration // recent window the series must cover
	ConfirmWindow  int           // MSS confirmation bars
	PoolTolerance  float64       // equal high/low tolerance
	LevelTolerance float64       // support/resistance tolerance
	RiskMultiples  []float64     // target projection multiples
}

// DefaultConfig returns the repository defaults
func DefaultConfig() Config {
	return Config{
		LookbackWindow: 48 * time.Hour,
		ConfirmWindow:  analysis.DefaultConfirmationWindow,
		RiskMultiples:  []float64{2.0},
	}
}

// Composer combines three timeframe series into one gated AnalysisResult.
// It holds only detectors and configuration: runs are pure functions of the
// input series and safe to execute concurrently across instruments.
type Composer struct {
	cfg          Config
	fvg          *analysis.FVGDetector
	displacement *analysis.DisplacementDetector
	mss          *analysis.MSSDetector
	liquidity    *analysis.LiquidityDetector
	levels       *analysis.LevelDetector
	logger       zerolog.Logger
}

// New creates a new Composer
func New(cfg Config, logger zerolog.Logger) *Composer {
	if len(cfg.RiskMultiples) == 0 {
		cfg.RiskMultiples = []float64{2.0}
	}
	if cfg.LookbackWindow <= 0 {
		cfg.LookbackWindow = 48 * time.Hour
	}
	return &Composer{
		cfg:          cfg,
		fvg:          analysis.NewFVGDetector(),
		displacement: analysis.NewDisplacementDetector(),
		mss:          analysis.NewMSSDetector(cfg.ConfirmWindow),
		liquidity:    analysis.NewLiquidityDetector(cfg.PoolTolerance),
		levels:       analysis.NewLevelDetector(cfg.LevelTolerance),
		logger:       logger.With().Str("component", "composer").Logger(),
	}
}

// Run executes the three-stage pipeline. Starved detectors yield empty
// result sets; the run always produces an AnalysisResult, defaulting to
// NO_TRADE when critical stages lack data.
func (c *Composer) Run(instrument string, seriesByTF map[market.Timeframe]market.Series) *AnalysisResult {
	bias2h := seriesByTF[market.TF2h]
	liq15m := seriesByTF[market.TF15m]
	exec5m := seriesByTF[market.TF5m]

	result := &AnalysisResult{
		ID:          uuid.New().String(),
		Instrument:  instrument,
		GeneratedAt: time.Now(),
	}

	result.Bias = c.runBiasStage(bias2h)
	result.Liquidity = c.runLiquidityStage(liq15m, result.Bias)
	result.Execution = c.runExecutionStage(exec5m, result.Bias)
	result.SessionValid = c.sessionValid(bias2h, liq15m, exec5m)
	result.FinalDecision = c.decide(result)

	c.logger.Debug().
		Str("instrument", instrument).
		Str("bias", string(result.Bias.Bias)).
		Bool("setup_valid", result.Liquidity.SetupValid).
		Bool("trade_signal", result.Execution.TradeSignal).
		Str("decision", string(result.FinalDecision)).
		Msg("analysis run complete")

	return result
}

// runBiasStage derives directional bias, premium/discount zoning, and key
// liquidity levels from the 2h series.
func (c *Composer) runBiasStage(s market.Series) BiasAnalysis {
	out := BiasAnalysis{Timeframe: market.TF2h, Bias: analysis.Neutral}
	if s.Len() == 0 {
		return out
	}

	out.FVGs = c.fvg.Detect(s)
	out.LiquidityPools = c.liquidity.Detect(s)
	out.Levels = c.levels.Detect(s)

	out.RangeHigh, out.RangeLow = s.HighLow()
	out.PDLevel = (out.RangeHigh + out.RangeLow) / 2

	if last, ok := s.Last(); ok {
		if last.Close > out.PDLevel {
			out.Zone = Premium
		} else {
			out.Zone = Discount
		}
	}

	for _, p := range out.LiquidityPools {
		switch p.Type {
		case analysis.BuySide:
			out.BuySideLiquidity = append(out.BuySideLiquidity, p.Price)
		case analysis.SellSide:
			out.SellSideLiquidity = append(out.SellSideLiquidity, p.Price)
		}
	}

	out.Bias = c.netStructureDirection(s.Candles)
	return out
}

// netStructureDirection reads the swing structure: higher highs and higher
// lows vote bullish, lower highs and lower lows vote bearish.
func (c *Composer) netStructureDirection(candles []market.Candle) analysis.Direction {
	highs := c.mss.FindSwingHighs(candles)
	lows := c.mss.FindSwingLows(candles)

	bullish, bearish := 0, 0
	for i := 1; i < len(highs); i++ {
		if highs[i].Price > highs[i-1].Price {
			bullish++
		} else if highs[i].Price < highs[i-1].Price {
			bearish++
		}
	}
	for i := 1; i < len(lows); i++ {
		if lows[i].Price > lows[i-1].Price {
			bullish++
		} else if lows[i].Price < lows[i-1].Price {
			bearish++
		}
	}

	switch {
	case bullish > bearish:
		return analysis.Bullish
	case bearish > bullish:
		return analysis.Bearish
	default:
		return analysis.Neutral
	}
}

// runLiquidityStage checks the 15m window for sweeps of the tracked 2h pools
// and for fresh imbalances.
func (c *Composer) runLiquidityStage(s market.Series, bias BiasAnalysis) LiquidityAnalysis {
	out := LiquidityAnalysis{Timeframe: market.TF15m}
	if s.Len() == 0 {
		return out
	}

	out.FVGs = c.fvg.Detect(s)
	out.Displacements = c.displacement.Detect(s)

	for _, pool := range bias.LiquidityPools {
		if c.liquidity.IsSwept(s, pool.Price, pool.Type) {
			out.SweptPools = append(out.SweptPools, pool)
		}
	}
	out.LiquidityTaken = len(out.SweptPools) > 0
	out.FVGPresent = len(c.fvg.Unfilled(out.FVGs)) > 0
	out.SetupValid = out.LiquidityTaken && out.FVGPresent

	return out
}

// runExecutionStage looks for a confirmed MSS aligned with the 2h bias plus
// an unfilled FVG in the same direction, then derives entry/stop/target.
func (c *Composer) runExecutionStage(s market.Series, bias BiasAnalysis) ExecutionSignal {
	out := ExecutionSignal{Timeframe: market.TF5m, Direction: analysis.Neutral}
	if s.Len() == 0 {
		return out
	}

	out.Shifts = c.mss.Detect(s)
	out.FVGs = c.fvg.Detect(s)

	if bias.Bias == analysis.Neutral {
		return out
	}

	var confirmed *analysis.MarketStructureShift
	for i := range out.Shifts {
		m := out.Shifts[i]
		if m.Direction == bias.Bias && c.mss.IsConfirmed(m, s.Candles) {
			confirmed = &out.Shifts[i]
		}
	}
	if confirmed == nil {
		return out
	}
	out.StructureConfirmed = true

	gap, ok := c.fvg.LatestUnfilled(out.FVGs, bias.Bias)
	if !ok {
		return out
	}

	out.TradeSignal = true
	out.Direction = bias.Bias
	out.EntryPrice = gap.Midpoint()

	if bias.Bias == analysis.Bullish {
		out.StopLoss = gap.Bottom
		if swing := nearestSwingBelow(c.mss.FindSwingLows(s.Candles), out.EntryPrice); swing > 0 && swing > out.StopLoss {
			out.StopLoss = swing
		}
	} else {
		out.StopLoss = gap.Top
		if swing := nearestSwingAbove(c.mss.FindSwingHighs(s.Candles), out.EntryPrice); swing > 0 && swing < out.StopLoss {
			out.StopLoss = swing
		}
	}

	risk := math.Abs(out.EntryPrice - out.StopLoss)
	for _, mult := range c.cfg.RiskMultiples {
		if bias.Bias == analysis.Bullish {
			out.TakeProfits = append(out.TakeProfits, out.EntryPrice+mult*risk)
		} else {
			out.TakeProfits = append(out.TakeProfits, out.EntryPrice-mult*risk)
		}
	}

	// risk_reward is undefined when stop equals entry
	if risk > 0 && len(out.TakeProfits) > 0 {
		rr := math.Abs(out.TakeProfits[0]-out.EntryPrice) / risk
		out.RiskReward = &rr
	}

	return out
}

// sessionValid reports whether all three series carry data inside the
// configured lookback window.
func (c *Composer) sessionValid(series ...market.Series) bool {
	cutoff := time.Now().Add(-c.cfg.LookbackWindow).Unix()
	for _, s := range series {
		last, ok := s.Last()
		if !ok {
			return false
		}
		if last.OpenTime < cutoff {
			return false
		}
	}
	return true
}

// decide evaluates the final gate top-down with short-circuit: a neutral 2h
// bias always forces NO_TRADE regardless of the lower timeframes.
func (c *Composer) decide(r *AnalysisResult) Decision {
	if r.Bias.Bias == analysis.Neutral {
		return NoTrade
	}
	if r.Liquidity.SetupValid && r.Execution.TradeSignal && r.Execution.Direction == r.Bias.Bias {
		return TradeSetup
	}
	// Bias is clear but the lower-timeframe conditions are only partial. A
	// confirmed 5m structure shift still waiting on its entry gap counts.
	if r.Liquidity.LiquidityTaken || r.Liquidity.FVGPresent ||
		r.Execution.TradeSignal || r.Execution.StructureConfirmed {
		return Watch
	}
	return NoTrade
}

func nearestSwingBelow(lows []analysis.SwingPoint, price float64) float64 {
	best := 0.0
	for _, sp := range lows {
		if sp.Price < price && sp.Price > best {
			best = sp.Price
		}
	}
	return best
}

func nearestSwingAbove(highs []analysis.SwingPoint, price float64) float64 {
	best := 0.0
	for _, sp := range highs {
		if sp.Price > price && (best == 0 || sp.Price < best) {
			best = sp.Price
		}
	}
	return best
}
