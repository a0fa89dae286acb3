package analysis

import (
	"testing"

	"smc-trading-engine/internal/market"
)

// TestDetectBullishFVG tests detection of bullish Fair Value Gaps
func TestDetectBullishFVG(t *testing.T) {
	detector := NewFVGDetector()

	s := series(
		// Candle 1: high at 1.0
		candle(1000, 0.95, 1.0, 0.9, 0.98),
		// Candle 2: gap creator (middle candle)
		candle(2000, 0.98, 1.05, 0.95, 1.04),
		// Candle 3: low at 1.1 (gap between 1.0 and 1.1)
		candle(3000, 1.12, 1.2, 1.1, 1.18),
	)

	gaps := detector.Detect(s)

	if len(gaps) != 1 {
		t.Fatalf("Expected 1 FVG, got %d", len(gaps))
	}

	gap := gaps[0]

	if gap.Direction != Bullish {
		t.Errorf("Expected bullish FVG, got %s", gap.Direction)
	}
	if gap.Bottom != 1.0 {
		t.Errorf("Expected Bottom 1.0, got %f", gap.Bottom)
	}
	if gap.Top != 1.1 {
		t.Errorf("Expected Top 1.1, got %f", gap.Top)
	}
	if gap.Filled {
		t.Error("FVG should not be marked as filled initially")
	}
}

// TestDetectBearishFVG tests detection of bearish Fair Value Gaps
func TestDetectBearishFVG(t *testing.T) {
	detector := NewFVGDetector()

	s := series(
		// Candle 1: low at 100
		candle(1000, 105, 106, 100, 102),
		// Candle 2: gap creator
		candle(2000, 102, 103, 95, 96),
		// Candle 3: high at 99 (gap between 99 and 100)
		candle(3000, 96, 99, 92, 94),
	)

	gaps := detector.Detect(s)

	if len(gaps) != 1 {
		t.Fatalf("Expected 1 FVG, got %d", len(gaps))
	}

	gap := gaps[0]

	if gap.Direction != Bearish {
		t.Errorf("Expected bearish FVG, got %s", gap.Direction)
	}
	if gap.Bottom != 99 {
		t.Errorf("Expected Bottom 99, got %f", gap.Bottom)
	}
	if gap.Top != 100 {
		t.Errorf("Expected Top 100, got %f", gap.Top)
	}
}

// TestNoFVGOnOverlap tests that overlapping candles produce no gaps
func TestNoFVGOnOverlap(t *testing.T) {
	detector := NewFVGDetector()

	s := series(
		candle(1000, 95, 100, 94, 98),
		candle(2000, 98, 102, 97, 100),
		candle(3000, 100, 104, 99, 102),
	)

	if gaps := detector.Detect(s); len(gaps) != 0 {
		t.Errorf("Expected 0 FVGs for overlapping candles, got %d", len(gaps))
	}
}

// TestFVGShortSeries tests the minimum bar requirement
func TestFVGShortSeries(t *testing.T) {
	detector := NewFVGDetector()

	if gaps := detector.Detect(series()); gaps != nil {
		t.Errorf("Expected nil for empty series, got %v", gaps)
	}
	if gaps := detector.Detect(series(candle(1000, 1, 2, 0.5, 1.5))); gaps != nil {
		t.Errorf("Expected nil for 1-candle series, got %v", gaps)
	}
}

// TestFVGInvariant checks Top > Bottom on every returned gap
func TestFVGInvariant(t *testing.T) {
	detector := NewFVGDetector()

	s := series(
		candle(1000, 95, 100, 94, 99),
		candle(2000, 100, 110, 99, 109),
		candle(3000, 109, 115, 105, 112),
		candle(4000, 112, 120, 111, 119),
		candle(5000, 119, 125, 118, 124),
	)

	gaps := detector.Detect(s)
	for _, g := range gaps {
		if g.Top <= g.Bottom {
			t.Errorf("Gap invariant violated: top=%f bottom=%f", g.Top, g.Bottom)
		}
	}
}

// TestFVGFillOnBreach tests that a gap fills only when a later candle
// breaches the invalidating side, not when price merely trades inside it
func TestFVGFillOnBreach(t *testing.T) {
	detector := NewFVGDetector()

	gap := FairValueGap{
		StartTime: 1000,
		EndTime:   3000,
		Top:       1.1,
		Bottom:    1.0,
		Direction: Bullish,
		Timeframe: market.TF15m,
	}

	// Wick into the gap but holding above the bottom: still unfilled
	inside := []market.Candle{candle(4000, 1.15, 1.16, 1.05, 1.12)}
	detector.UpdateFilled(&gap, inside)
	if gap.Filled {
		t.Error("Gap should stay unfilled while price holds above the bottom")
	}

	// Breach below the bottom invalidates the gap
	breach := []market.Candle{candle(5000, 1.05, 1.06, 0.98, 1.02)}
	detector.UpdateFilled(&gap, breach)
	if !gap.Filled {
		t.Error("Gap should be filled after price broke below the bottom")
	}
	if gap.FilledAt == nil || *gap.FilledAt != 5000 {
		t.Error("FilledAt should record the breaching candle time")
	}
}

// TestFVGMidpoint tests the 50% entry reference level
func TestFVGMidpoint(t *testing.T) {
	gap := FairValueGap{Top: 110, Bottom: 100}
	if mid := gap.Midpoint(); mid != 105 {
		t.Errorf("Expected midpoint 105, got %f", mid)
	}
}

// TestLatestUnfilled tests directional selection of the newest open gap
func TestLatestUnfilled(t *testing.T) {
	detector := NewFVGDetector()

	gaps := []FairValueGap{
		{StartTime: 1000, Direction: Bullish, Top: 2, Bottom: 1},
		{StartTime: 2000, Direction: Bullish, Top: 4, Bottom: 3, Filled: true},
		{StartTime: 3000, Direction: Bearish, Top: 6, Bottom: 5},
	}

	g, ok := detector.LatestUnfilled(gaps, Bullish)
	if !ok || g.StartTime != 1000 {
		t.Errorf("Expected unfilled bullish gap at 1000, got %+v ok=%v", g, ok)
	}

	if _, ok := detector.LatestUnfilled(gaps[1:2], Bullish); ok {
		t.Error("Expected no unfilled bullish gap")
	}
}

// BenchmarkDetectFVGs benchmarks FVG detection performance
func BenchmarkDetectFVGs(b *testing.B) {
	detector := NewFVGDetector()

	candles := make([]market.Candle, 1000)
	for i := range candles {
		candles[i] = candle(int64((i+1)*1000), float64(100+i), float64(105+i), float64(95+i), float64(102+i))
	}
	s := market.Series{Instrument: "BTCUSDT", Timeframe: market.TF15m, Candles: candles}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		detector.Detect(s)
	}
}
