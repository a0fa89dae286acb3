package analysis

import (
	"smc-trading-engine/internal/market"
)

// FairValueGap represents a 3-candle price imbalance
type FairValueGap struct {
	StartTime int64            `json:"start_time"`
	EndTime   int64            `json:"end_time"`
	Top       float64          `json:"top"`
	Bottom    float64          `json:"bottom"`
	Direction Direction        `json:"direction"`
	Timeframe market.Timeframe `json:"timeframe"`
	Filled    bool             `json:"filled"`
	FilledAt  *int64           `json:"filled_at,omitempty"`
}

// Midpoint returns the 50% level of the gap, used as an entry reference
func (f FairValueGap) Midpoint() float64 {
	return (f.Top + f.Bottom) / 2
}

// FVGDetector detects Fair Value Gaps in candle series
type FVGDetector struct{}

// NewFVGDetector creates a new FVG detector
func NewFVGDetector() *FVGDetector {
	return &FVGDetector{}
}

// Detect identifies all Fair Value Gaps in the series. Overlapping gaps are
// all retained. Each returned gap satisfies Top > Bottom.
func (fd *FVGDetector) Detect(series market.Series) []FairValueGap {
	candles := series.Candles
	if len(candles) < MinBarsFVG {
		return nil
	}

	var gaps []FairValueGap

	// Scan consecutive triples; the middle candle is the gap creator
	for i := 0; i+2 < len(candles); i++ {
		c1 := candles[i]
		c3 := candles[i+2]

		// Bullish FVG: gap between c1 high and c3 low
		if c1.High < c3.Low {
			gaps = append(gaps, FairValueGap{
				StartTime: c1.OpenTime,
				EndTime:   c3.OpenTime,
				Top:       c3.Low,
				Bottom:    c1.High,
				Direction: Bullish,
				Timeframe: series.Timeframe,
			})
		}

		// Bearish FVG: gap between c3 high and c1 low
		if c1.Low > c3.High {
			gaps = append(gaps, FairValueGap{
				StartTime: c1.OpenTime,
				EndTime:   c3.OpenTime,
				Top:       c1.Low,
				Bottom:    c3.High,
				Direction: Bearish,
				Timeframe: series.Timeframe,
			})
		}
	}

	// Mark gaps already invalidated by later candles in the same series
	for idx := range gaps {
		fd.UpdateFilled(&gaps[idx], candles)
	}

	return gaps
}

// UpdateFilled marks the gap filled once any candle after the gap's end
// breaches it on the invalidating side: below Bottom for bullish gaps,
// above Top for bearish gaps.
func (fd *FVGDetector) UpdateFilled(gap *FairValueGap, candles []market.Candle) {
	if gap.Filled {
		return
	}

	for _, c := range candles {
		if c.OpenTime <= gap.EndTime {
			continue
		}
		switch gap.Direction {
		case Bullish:
			if c.Low < gap.Bottom {
				gap.Filled = true
				t := c.OpenTime
				gap.FilledAt = &t
				return
			}
		case Bearish:
			if c.High > gap.Top {
				gap.Filled = true
				t := c.OpenTime
				gap.FilledAt = &t
				return
			}
		}
	}
}

// Unfilled returns only gaps that have not been invalidated
func (fd *FVGDetector) Unfilled(gaps []FairValueGap) []FairValueGap {
	var out []FairValueGap
	for _, g := range gaps {
		if !g.Filled {
			out = append(out, g)
		}
	}
	return out
}

// LatestUnfilled returns the most recent unfilled gap in the given direction
// and false when none exists.
func (fd *FVGDetector) LatestUnfilled(gaps []FairValueGap, dir Direction) (FairValueGap, bool) {
	for i := len(gaps) - 1; i >= 0; i-- {
		if !gaps[i].Filled && gaps[i].Direction == dir {
			return gaps[i], true
		}
	}
	return FairValueGap{}, false
}
