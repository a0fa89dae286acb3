package analysis

import (
	"fmt"

	"smc-trading-engine/internal/market"
)

// PoolType classifies which side of the market a liquidity pool sits on
type PoolType string

const (
	// SellSide pools form at equal highs; a sweep breaks above then closes back below.
	SellSide PoolType = "sell-side"
	// BuySide pools form at equal lows; a sweep breaks below then closes back above.
	BuySide PoolType = "buy-side"
)

// defaultPoolTolerance is the relative tolerance for treating highs/lows as equal
const defaultPoolTolerance = 0.001 // 0.1%

// LiquidityPool represents a cluster of equal highs or equal lows
type LiquidityPool struct {
	Price       float64          `json:"price"`
	Type        PoolType         `json:"type"`
	Timeframe   market.Timeframe `json:"timeframe"`
	Timestamp   int64            `json:"timestamp"`
	Description string           `json:"description"`
}

// LiquidityDetector detects equal-high/equal-low liquidity pools
type LiquidityDetector struct {
	tolerance float64
}

// NewLiquidityDetector creates a new liquidity pool detector. A non-positive
// tolerance falls back to 0.1%.
func NewLiquidityDetector(tolerance float64) *LiquidityDetector {
	if tolerance <= 0 {
		tolerance = defaultPoolTolerance
	}
	return &LiquidityDetector{tolerance: tolerance}
}

// priceBucket accumulates near-equal prices with a running average
type priceBucket struct {
	sum      float64
	count    int
	lastTime int64
}

func (b *priceBucket) mean() float64 {
	return b.sum / float64(b.count)
}

// Detect collects equal highs and equal lows into pools. Bucketing is the
// greedy single-pass scheme over series order: each value joins the first
// bucket whose running average is within tolerance, else starts a new bucket.
// This is order-dependent and may under-merge near tolerance boundaries; it
// is kept as-is for parity with live signal behavior.
func (ld *LiquidityDetector) Detect(series market.Series) []LiquidityPool {
	candles := series.Candles
	if len(candles) < MinBarsLiquidity {
		return nil
	}

	var pools []LiquidityPool

	highBuckets := ld.bucketize(candles, func(c market.Candle) float64 { return c.High })
	for _, b := range highBuckets {
		if b.count < 2 {
			continue
		}
		pools = append(pools, LiquidityPool{
			Price:       b.mean(),
			Type:        SellSide,
			Timeframe:   series.Timeframe,
			Timestamp:   b.lastTime,
			Description: fmt.Sprintf("equal highs (%d touches)", b.count),
		})
	}

	lowBuckets := ld.bucketize(candles, func(c market.Candle) float64 { return c.Low })
	for _, b := range lowBuckets {
		if b.count < 2 {
			continue
		}
		pools = append(pools, LiquidityPool{
			Price:       b.mean(),
			Type:        BuySide,
			Timeframe:   series.Timeframe,
			Timestamp:   b.lastTime,
			Description: fmt.Sprintf("equal lows (%d touches)", b.count),
		})
	}

	return pools
}

func (ld *LiquidityDetector) bucketize(candles []market.Candle, pick func(market.Candle) float64) []*priceBucket {
	var buckets []*priceBucket
	for _, c := range candles {
		v := pick(c)
		placed := false
		for _, b := range buckets {
			mean := b.mean()
			if mean == 0 {
				continue
			}
			diff := v - mean
			if diff < 0 {
				diff = -diff
			}
			if diff/mean <= ld.tolerance {
				b.sum += v
				b.count++
				b.lastTime = c.OpenTime
				placed = true
				break
			}
		}
		if !placed {
			buckets = append(buckets, &priceBucket{sum: v, count: 1, lastTime: c.OpenTime})
		}
	}
	return buckets
}

// IsSwept reports whether price crossed through the pool level and later
// closed back on the other side within the series. Sell-side: a candle
// breaks above the level, a later candle closes back below it. Buy-side
// mirrors the conditions.
func (ld *LiquidityDetector) IsSwept(series market.Series, level float64, poolType PoolType) bool {
	candles := series.Candles
	for i, c := range candles {
		switch poolType {
		case SellSide:
			if c.High > level {
				for _, later := range candles[i+1:] {
					if later.Close < level {
						return true
					}
				}
			}
		case BuySide:
			if c.Low < level {
				for _, later := range candles[i+1:] {
					if later.Close > level {
						return true
					}
				}
			}
		}
	}
	return false
}
