package analysis

import (
	"smc-trading-engine/internal/market"
)

// Displacement thresholds relative to the series average range
const (
	displacementRangeMult = 1.5
	displacementBodyRatio = 0.7
	displacementBodyMult  = 1.2
	strongDisplacement    = 0.6
)

// DisplacementEvent represents an unusually large, low-wick momentum candle
type DisplacementEvent struct {
	Time        int64            `json:"time"`
	Strength    float64          `json:"strength"` // 0.0 to 1.0
	Direction   Direction        `json:"direction"`
	CandleIndex int              `json:"candle_index"`
	Timeframe   market.Timeframe `json:"timeframe"`
}

// IsStrong reports whether the event clears the strong-displacement threshold
func (d DisplacementEvent) IsStrong() bool {
	return d.Strength > strongDisplacement
}

// DisplacementDetector detects displacement candles in candle series
type DisplacementDetector struct{}

// NewDisplacementDetector creates a new displacement detector
func NewDisplacementDetector() *DisplacementDetector {
	return &DisplacementDetector{}
}

// Detect flags candles whose range and body dwarf the series average range.
// A candle qualifies only when all three thresholds hold: range > 1.5x avg,
// body/range > 0.7, body > 1.2x avg.
func (dd *DisplacementDetector) Detect(series market.Series) []DisplacementEvent {
	candles := series.Candles
	if len(candles) < MinBarsDisplace {
		return nil
	}

	var totalRange float64
	for _, c := range candles {
		totalRange += c.Range()
	}
	avgRange := totalRange / float64(len(candles))
	if avgRange == 0 {
		return nil
	}

	var events []DisplacementEvent
	for i, c := range candles {
		rng := c.Range()
		body := c.Body()
		if rng == 0 {
			continue
		}
		if rng <= displacementRangeMult*avgRange {
			continue
		}
		if body/rng <= displacementBodyRatio {
			continue
		}
		if body <= displacementBodyMult*avgRange {
			continue
		}

		dir := Bearish
		if c.IsBullish() {
			dir = Bullish
		}

		strength := rng / (2 * avgRange)
		if strength > 1 {
			strength = 1
		}

		events = append(events, DisplacementEvent{
			Time:        c.OpenTime,
			Strength:    strength,
			Direction:   dir,
			CandleIndex: i,
			Timeframe:   series.Timeframe,
		})
	}

	return events
}
