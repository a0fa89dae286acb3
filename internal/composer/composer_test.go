package composer

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"smc-trading-engine/internal/analysis"
	"smc-trading-engine/internal/market"
)

func testComposer() *Composer {
	return New(DefaultConfig(), zerolog.Nop())
}

func c(openTime int64, open, high, low, close float64) market.Candle {
	return market.Candle{OpenTime: openTime, Open: open, High: high, Low: low, Close: close, Volume: 1000}
}

func mkSeries(instrument string, tf market.Timeframe, candles []market.Candle) market.Series {
	return market.Series{Instrument: instrument, Timeframe: tf, Candles: candles}
}

// bullish2hSeries builds a 2h window with rising swing structure and a pair
// of equal lows at ~100 forming a buy-side liquidity pool.
func bullish2hSeries(end int64) []market.Candle {
	step := int64(7200)
	t := func(i int) int64 { return end - step*int64(7-i) }
	return []market.Candle{
		c(t(0), 102, 103, 101, 102.5),
		c(t(1), 102.5, 105, 102, 104),
		c(t(2), 104, 104.2, 100.0, 101),
		c(t(3), 101.6, 106, 101.5, 105.5),
		c(t(4), 105.5, 110, 102.5, 109),
		c(t(5), 109, 109.5, 100.05, 101),
		c(t(6), 101.3, 104, 101.2, 103.5),
		c(t(7), 103.5, 104.5, 103, 104),
	}
}

// sweep15mSeries breaks below the 2h buy-side pool at ~100.025 and closes
// back above it, then leaves an unfilled bullish FVG.
func sweep15mSeries(end int64) []market.Candle {
	step := int64(900)
	t := func(i int) int64 { return end - step*int64(5-i) }
	return []market.Candle{
		c(t(0), 101, 101.5, 100.8, 101.2),
		c(t(1), 101.2, 101.4, 99.9, 100.1),
		c(t(2), 100.1, 101.8, 100.0, 101.5),
		c(t(3), 101.5, 102.5, 101.3, 102.3),
		c(t(4), 102.4, 103.5, 101.9, 103.2),
		c(t(5), 103.2, 104, 102.8, 103.6),
	}
}

// signal5mSeries carries a confirmed bullish MSS and an unfilled bullish FVG
// with midpoint 105.25.
func signal5mSeries(end int64) []market.Candle {
	step := int64(300)
	t := func(i int) int64 { return end - step*int64(6-i) }
	return []market.Candle{
		c(t(0), 100, 103, 99, 102),
		c(t(1), 102, 105, 101, 104),
		c(t(2), 104, 104.5, 102, 103),
		c(t(3), 103, 110, 102.5, 109),
		c(t(4), 109, 109, 106, 107),
		c(t(5), 107, 108, 105.5, 106),
		c(t(6), 106, 107, 106, 106.5),
	}
}

// flatSeries produces no swings, no gaps, and no sweeps of levels away
// from the given base price
func flatSeries(end int64, step int64, n int, base float64) []market.Candle {
	out := make([]market.Candle, n)
	for i := 0; i < n; i++ {
		out[i] = c(end-step*int64(n-1-i), base, base+1, base-1, base+0.5)
	}
	return out
}

// TestTradeSetupDecision tests the full pipeline producing TRADE_SETUP
func TestTradeSetupDecision(t *testing.T) {
	now := time.Now().Unix()
	comp := testComposer()

	result := comp.Run("BTCUSDT", map[market.Timeframe]market.Series{
		market.TF2h:  mkSeries("BTCUSDT", market.TF2h, bullish2hSeries(now)),
		market.TF15m: mkSeries("BTCUSDT", market.TF15m, sweep15mSeries(now)),
		market.TF5m:  mkSeries("BTCUSDT", market.TF5m, signal5mSeries(now)),
	})

	if result.Bias.Bias != analysis.Bullish {
		t.Fatalf("Expected bullish 2h bias, got %s", result.Bias.Bias)
	}
	if !result.Liquidity.LiquidityTaken {
		t.Error("Expected the 2h buy-side pool to register as swept on 15m")
	}
	if !result.Liquidity.SetupValid {
		t.Error("Expected setup_valid with sweep plus unfilled FVG")
	}
	if !result.Execution.TradeSignal {
		t.Fatal("Expected a 5m trade signal")
	}
	if result.Execution.Direction != analysis.Bullish {
		t.Errorf("Expected bullish execution direction, got %s", result.Execution.Direction)
	}
	if result.Execution.EntryPrice != 105.25 {
		t.Errorf("Expected entry at FVG midpoint 105.25, got %f", result.Execution.EntryPrice)
	}
	if result.Execution.StopLoss != 104.5 {
		t.Errorf("Expected stop at FVG bottom 104.5, got %f", result.Execution.StopLoss)
	}
	if result.Execution.RiskReward == nil {
		t.Fatal("Expected risk/reward to be set")
	}
	if rr := *result.Execution.RiskReward; rr < 1.99 || rr > 2.01 {
		t.Errorf("Expected risk/reward ~2.0, got %f", rr)
	}
	if result.FinalDecision != TradeSetup {
		t.Errorf("Expected TRADE_SETUP, got %s", result.FinalDecision)
	}
	if !result.SessionValid {
		t.Error("Expected session_valid for a fresh window")
	}
}

// TestNeutralBiasShortCircuit tests that a neutral 2h bias forces NO_TRADE
// regardless of the lower timeframes
func TestNeutralBiasShortCircuit(t *testing.T) {
	now := time.Now().Unix()
	comp := testComposer()

	result := comp.Run("BTCUSDT", map[market.Timeframe]market.Series{
		market.TF2h:  mkSeries("BTCUSDT", market.TF2h, flatSeries(now, 7200, 8, 100)),
		market.TF15m: mkSeries("BTCUSDT", market.TF15m, sweep15mSeries(now)),
		market.TF5m:  mkSeries("BTCUSDT", market.TF5m, signal5mSeries(now)),
	})

	if result.Bias.Bias != analysis.Neutral {
		t.Fatalf("Expected neutral bias from flat structure, got %s", result.Bias.Bias)
	}
	if result.FinalDecision != NoTrade {
		t.Errorf("Neutral bias must short-circuit to NO_TRADE, got %s", result.FinalDecision)
	}
}

// TestWatchOnPartialConditions tests WATCH when bias is clear but the setup
// is incomplete
func TestWatchOnPartialConditions(t *testing.T) {
	now := time.Now().Unix()
	comp := testComposer()

	// 15m sweeps the pool but carries no FVG; 5m is flat
	step := int64(900)
	t15 := func(i int) int64 { return now - step*int64(3-i) }
	sweepNoFVG := []market.Candle{
		c(t15(0), 101, 101.5, 100.8, 101.2),
		c(t15(1), 101.2, 101.4, 99.9, 100.1),
		c(t15(2), 100.1, 101.8, 100.0, 101.5),
		c(t15(3), 101.5, 102.0, 101.0, 101.8),
	}

	result := comp.Run("BTCUSDT", map[market.Timeframe]market.Series{
		market.TF2h:  mkSeries("BTCUSDT", market.TF2h, bullish2hSeries(now)),
		market.TF15m: mkSeries("BTCUSDT", market.TF15m, sweepNoFVG),
		market.TF5m:  mkSeries("BTCUSDT", market.TF5m, flatSeries(now, 300, 6, 104)),
	})

	if result.Bias.Bias != analysis.Bullish {
		t.Fatalf("Expected bullish bias, got %s", result.Bias.Bias)
	}
	if result.Liquidity.SetupValid {
		t.Error("Setup must not validate without an unfilled FVG")
	}
	if result.FinalDecision != Watch {
		t.Errorf("Expected WATCH on partial conditions, got %s", result.FinalDecision)
	}
}

// confirmedShiftNoGap5mSeries carries a confirmed bullish MSS (break of the
// 105 swing high at candle 3, held for three bars) whose only bullish FVG is
// later filled by the dip at candle 7, leaving no entry gap.
func confirmedShiftNoGap5mSeries(end int64) []market.Candle {
	step := int64(300)
	t := func(i int) int64 { return end - step*int64(8-i) }
	return []market.Candle{
		c(t(0), 100, 103, 99, 102),
		c(t(1), 102, 105, 101, 104),
		c(t(2), 104, 104.5, 102, 103),
		c(t(3), 103, 108, 102.5, 107),
		c(t(4), 107, 107.5, 105.2, 106),
		c(t(5), 106, 107, 105.3, 106.5),
		c(t(6), 106.5, 107.2, 105.4, 106.8),
		c(t(7), 106.8, 107, 104.3, 104.8),
		c(t(8), 104.8, 105.5, 104.2, 105),
	}
}

// TestWatchOnConfirmedShiftWithoutGap tests that a confirmed bias-aligned 5m
// structure shift keeps the instrument on WATCH even when no unfilled FVG
// exists to anchor an entry
func TestWatchOnConfirmedShiftWithoutGap(t *testing.T) {
	now := time.Now().Unix()
	comp := testComposer()

	result := comp.Run("BTCUSDT", map[market.Timeframe]market.Series{
		market.TF2h:  mkSeries("BTCUSDT", market.TF2h, bullish2hSeries(now)),
		market.TF15m: mkSeries("BTCUSDT", market.TF15m, flatSeries(now, 900, 6, 104)),
		market.TF5m:  mkSeries("BTCUSDT", market.TF5m, confirmedShiftNoGap5mSeries(now)),
	})

	if result.Bias.Bias != analysis.Bullish {
		t.Fatalf("Expected bullish bias, got %s", result.Bias.Bias)
	}
	if result.Execution.TradeSignal {
		t.Fatal("No trade signal expected without an unfilled FVG")
	}
	if !result.Execution.StructureConfirmed {
		t.Fatal("Expected the 5m structure shift to register as confirmed")
	}
	if result.FinalDecision != Watch {
		t.Errorf("Expected WATCH on a confirmed shift awaiting its gap, got %s", result.FinalDecision)
	}
}

// TestNoTradeOnQuietLowerTimeframes tests NO_TRADE when bias is clear but
// nothing else lines up
func TestNoTradeOnQuietLowerTimeframes(t *testing.T) {
	now := time.Now().Unix()
	comp := testComposer()

	result := comp.Run("BTCUSDT", map[market.Timeframe]market.Series{
		market.TF2h:  mkSeries("BTCUSDT", market.TF2h, bullish2hSeries(now)),
		market.TF15m: mkSeries("BTCUSDT", market.TF15m, flatSeries(now, 900, 6, 104)),
		market.TF5m:  mkSeries("BTCUSDT", market.TF5m, flatSeries(now, 300, 6, 104)),
	})

	if result.FinalDecision != NoTrade {
		t.Errorf("Expected NO_TRADE with quiet lower timeframes, got %s", result.FinalDecision)
	}
}

// TestStarvedSeriesStillProducesResult tests graceful degradation with
// missing data
func TestStarvedSeriesStillProducesResult(t *testing.T) {
	comp := testComposer()

	result := comp.Run("BTCUSDT", map[market.Timeframe]market.Series{})

	if result == nil {
		t.Fatal("Composer must always produce a result")
	}
	if result.FinalDecision != NoTrade {
		t.Errorf("Expected NO_TRADE for starved input, got %s", result.FinalDecision)
	}
	if result.SessionValid {
		t.Error("Empty window must not be session-valid")
	}
}

// TestPremiumDiscountZone tests the 50% range midpoint classification
func TestPremiumDiscountZone(t *testing.T) {
	now := time.Now().Unix()
	comp := testComposer()

	result := comp.Run("BTCUSDT", map[market.Timeframe]market.Series{
		market.TF2h: mkSeries("BTCUSDT", market.TF2h, bullish2hSeries(now)),
	})

	// Range is [100.0, 110]; pd level 105; last close 104 sits below it
	if result.Bias.PDLevel != 105 {
		t.Errorf("Expected pd level 105, got %f", result.Bias.PDLevel)
	}
	if result.Bias.Zone != Discount {
		t.Errorf("Expected discount zone, got %s", result.Bias.Zone)
	}
}
