package analysis

import (
	"sort"

	"smc-trading-engine/internal/market"
)

// LevelType classifies a support/resistance level
type LevelType string

const (
	Support    LevelType = "support"
	Resistance LevelType = "resistance"
)

const (
	levelTolerance   = 0.005 // 0.5% relative bucketing tolerance
	levelPivotWing   = 2     // neighbors each side for a 5-bar pivot
	levelMinStrength = 0.2   // levels at or below this are discarded
	recentWindow     = 10    // touches newer than the 10th-from-last candle count as recent
)

// SupportResistanceLevel represents a scored horizontal level
type SupportResistanceLevel struct {
	Price     float64          `json:"price"`
	Type      LevelType        `json:"type"`
	Strength  float64          `json:"strength"` // 0.0 to 1.0
	Touches   int              `json:"touches"`
	Timeframe market.Timeframe `json:"timeframe"`
}

// LevelDetector detects support and resistance levels from pivots
type LevelDetector struct {
	tolerance float64
}

// NewLevelDetector creates a new support/resistance detector
func NewLevelDetector(tolerance float64) *LevelDetector {
	if tolerance <= 0 {
		tolerance = levelTolerance
	}
	return &LevelDetector{tolerance: tolerance}
}

type pivot struct {
	price float64
	time  int64
}

// Detect finds 5-bar pivot highs/lows, buckets them with the greedy scheme,
// scores each cluster, drops weak levels, and returns the rest sorted by
// descending strength.
func (ld *LevelDetector) Detect(series market.Series) []SupportResistanceLevel {
	candles := series.Candles
	if len(candles) < MinBarsLevels {
		return nil
	}

	// Touches are "recent" when newer than the 10th-from-last candle
	var recentCutoff int64
	if len(candles) >= recentWindow {
		recentCutoff = candles[len(candles)-recentWindow].OpenTime
	} else {
		recentCutoff = candles[0].OpenTime
	}

	var highs, lows []pivot
	for i := levelPivotWing; i+levelPivotWing < len(candles); i++ {
		isHigh, isLow := true, true
		for j := i - levelPivotWing; j <= i+levelPivotWing; j++ {
			if j == i {
				continue
			}
			if candles[j].High >= candles[i].High {
				isHigh = false
			}
			if candles[j].Low <= candles[i].Low {
				isLow = false
			}
		}
		if isHigh {
			highs = append(highs, pivot{price: candles[i].High, time: candles[i].OpenTime})
		}
		if isLow {
			lows = append(lows, pivot{price: candles[i].Low, time: candles[i].OpenTime})
		}
	}

	levels := ld.clusterPivots(highs, Resistance, series.Timeframe, recentCutoff)
	levels = append(levels, ld.clusterPivots(lows, Support, series.Timeframe, recentCutoff)...)

	sort.Slice(levels, func(i, j int) bool {
		return levels[i].Strength > levels[j].Strength
	})

	return levels
}

type levelBucket struct {
	sum    float64
	count  int
	recent int
}

func (ld *LevelDetector) clusterPivots(pivots []pivot, lt LevelType, tf market.Timeframe, recentCutoff int64) []SupportResistanceLevel {
	var buckets []*levelBucket
	for _, p := range pivots {
		placed := false
		for _, b := range buckets {
			mean := b.sum / float64(b.count)
			diff := p.price - mean
			if diff < 0 {
				diff = -diff
			}
			if mean != 0 && diff/mean <= ld.tolerance {
				b.sum += p.price
				b.count++
				if p.time > recentCutoff {
					b.recent++
				}
				placed = true
				break
			}
		}
		if !placed {
			b := &levelBucket{sum: p.price, count: 1}
			if p.time > recentCutoff {
				b.recent = 1
			}
			buckets = append(buckets, b)
		}
	}

	var levels []SupportResistanceLevel
	for _, b := range buckets {
		if b.count < 2 {
			continue
		}
		strength := (float64(b.count)*0.3 + float64(b.recent)*0.7) / 3
		if strength > 1 {
			strength = 1
		}
		if strength <= levelMinStrength {
			continue
		}
		levels = append(levels, SupportResistanceLevel{
			Price:     b.sum / float64(b.count),
			Type:      lt,
			Strength:  strength,
			Touches:   b.count,
			Timeframe: tf,
		})
	}
	return levels
}
