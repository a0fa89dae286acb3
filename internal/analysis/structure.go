package analysis

import (
	"smc-trading-engine/internal/market"
)

// DefaultConfirmationWindow is the number of bars after an MSS that must hold
// beyond the broken level for the shift to confirm.
const DefaultConfirmationWindow = 3

// SwingPoint represents a single-bar swing high or low
type SwingPoint struct {
	Price       float64 `json:"price"`
	CandleIndex int     `json:"candle_index"`
	Time        int64   `json:"time"`
	Type        string  `json:"type"` // "high" or "low"
}

// MarketStructureShift represents a break of a prior swing high or low
type MarketStructureShift struct {
	Time         int64            `json:"time"`
	Direction    Direction        `json:"direction"`
	PreviousHigh float64          `json:"previous_high,omitempty"`
	NewHigh      float64          `json:"new_high,omitempty"`
	PreviousLow  float64          `json:"previous_low,omitempty"`
	NewLow       float64          `json:"new_low,omitempty"`
	CandleIndex  int              `json:"candle_index"`
	Timeframe    market.Timeframe `json:"timeframe"`
}

// MSSDetector detects market structure shifts in candle series
type MSSDetector struct {
	confirmWindow int
}

// NewMSSDetector creates a new MSS detector. A non-positive window falls back
// to the default 3-bar confirmation.
func NewMSSDetector(confirmWindow int) *MSSDetector {
	if confirmWindow <= 0 {
		confirmWindow = DefaultConfirmationWindow
	}
	return &MSSDetector{confirmWindow: confirmWindow}
}

// FindSwingHighs identifies candles strictly higher than both neighbors
func (md *MSSDetector) FindSwingHighs(candles []market.Candle) []SwingPoint {
	var swings []SwingPoint
	for i := 1; i+1 < len(candles); i++ {
		if candles[i].High > candles[i-1].High && candles[i].High > candles[i+1].High {
			swings = append(swings, SwingPoint{
				Price:       candles[i].High,
				CandleIndex: i,
				Time:        candles[i].OpenTime,
				Type:        "high",
			})
		}
	}
	return swings
}

// FindSwingLows identifies candles strictly lower than both neighbors
func (md *MSSDetector) FindSwingLows(candles []market.Candle) []SwingPoint {
	var swings []SwingPoint
	for i := 1; i+1 < len(candles); i++ {
		if candles[i].Low < candles[i-1].Low && candles[i].Low < candles[i+1].Low {
			swings = append(swings, SwingPoint{
				Price:       candles[i].Low,
				CandleIndex: i,
				Time:        candles[i].OpenTime,
				Type:        "low",
			})
		}
	}
	return swings
}

// Detect finds structure shifts: a bullish MSS when a swing high exceeds the
// immediately preceding swing high, a bearish MSS when a swing low undercuts
// the immediately preceding swing low.
func (md *MSSDetector) Detect(series market.Series) []MarketStructureShift {
	candles := series.Candles
	if len(candles) < MinBarsMSS {
		return nil
	}

	var shifts []MarketStructureShift

	highs := md.FindSwingHighs(candles)
	for i := 1; i < len(highs); i++ {
		prev, cur := highs[i-1], highs[i]
		if cur.Price > prev.Price {
			shifts = append(shifts, MarketStructureShift{
				Time:         cur.Time,
				Direction:    Bullish,
				PreviousHigh: prev.Price,
				NewHigh:      cur.Price,
				CandleIndex:  cur.CandleIndex,
				Timeframe:    series.Timeframe,
			})
		}
	}

	lows := md.FindSwingLows(candles)
	for i := 1; i < len(lows); i++ {
		prev, cur := lows[i-1], lows[i]
		if cur.Price < prev.Price {
			shifts = append(shifts, MarketStructureShift{
				Time:         cur.Time,
				Direction:    Bearish,
				PreviousLow:  prev.Price,
				NewLow:       cur.Price,
				CandleIndex:  cur.CandleIndex,
				Timeframe:    series.Timeframe,
			})
		}
	}

	return shifts
}

// IsConfirmed checks the bars in the confirmation window after the shift:
// a bullish MSS confirms only when every bar holds above the broken prior
// high, a bearish MSS only when every bar holds below the broken prior low.
// Deterministic for identical inputs.
func (md *MSSDetector) IsConfirmed(mss MarketStructureShift, candles []market.Candle) bool {
	start := mss.CandleIndex + 1
	end := start + md.confirmWindow
	if end > len(candles) {
		return false
	}

	for i := start; i < end; i++ {
		switch mss.Direction {
		case Bullish:
			if candles[i].Low <= mss.PreviousHigh {
				return false
			}
		case Bearish:
			if candles[i].High >= mss.PreviousLow {
				return false
			}
		default:
			return false
		}
	}
	return true
}
