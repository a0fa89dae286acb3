package market

import (
	"fmt"
	"math"
	"time"
)

// Timeframe represents the chart timeframes used by the engine
type Timeframe string

const (
	TF2h  Timeframe = "2h"
	TF15m Timeframe = "15m"
	TF5m  Timeframe = "5m"
)

// Timeframes returns the three timeframes the analysis pipeline consumes,
// ordered from bias to execution.
func Timeframes() []Timeframe {
	return []Timeframe{TF2h, TF15m, TF5m}
}

// Candle represents a single OHLCV candle
type Candle struct {
	OpenTime int64   `json:"open_time"` // Unix seconds
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   float64 `json:"volume"`
}

// Time returns the candle open time as time.Time
func (c Candle) Time() time.Time {
	return time.Unix(c.OpenTime, 0)
}

// Range returns the full high-low range of the candle
func (c Candle) Range() float64 {
	return c.High - c.Low
}

// Body returns the absolute open-close body size
func (c Candle) Body() float64 {
	return math.Abs(c.Close - c.Open)
}

// IsBullish reports whether the candle closed above its open
func (c Candle) IsBullish() bool {
	return c.Close > c.Open
}

// Validate checks the OHLC bound invariant: low <= min(open,close) and
// max(open,close) <= high.
func (c Candle) Validate() error {
	bodyLow := math.Min(c.Open, c.Close)
	bodyHigh := math.Max(c.Open, c.Close)
	if c.Low > bodyLow || bodyHigh > c.High {
		return fmt.Errorf("candle at %d violates OHLC bounds: o=%f h=%f l=%f c=%f",
			c.OpenTime, c.Open, c.High, c.Low, c.Close)
	}
	return nil
}

// Series is a chronologically ordered candle sequence for one timeframe
type Series struct {
	Instrument string
	Timeframe  Timeframe
	Candles    []Candle
}

// NewSeries builds a Series from raw candles. Malformed candles are rejected
// rather than failing the whole series, duplicates by timestamp are dropped,
// and the result is sorted by open time. The returned count is the number of
// rejected candles.
func NewSeries(instrument string, tf Timeframe, candles []Candle) (Series, int) {
	seen := make(map[int64]bool, len(candles))
	kept := make([]Candle, 0, len(candles))
	rejected := 0

	for _, c := range candles {
		if c.Validate() != nil {
			rejected++
			continue
		}
		if seen[c.OpenTime] {
			rejected++
			continue
		}
		seen[c.OpenTime] = true
		kept = append(kept, c)
	}

	// Insertion sort keeps already-ordered feeds cheap
	for i := 1; i < len(kept); i++ {
		for j := i; j > 0 && kept[j].OpenTime < kept[j-1].OpenTime; j-- {
			kept[j], kept[j-1] = kept[j-1], kept[j]
		}
	}

	return Series{Instrument: instrument, Timeframe: tf, Candles: kept}, rejected
}

// Len returns the number of candles in the series
func (s Series) Len() int {
	return len(s.Candles)
}

// Last returns the most recent candle and false when the series is empty
func (s Series) Last() (Candle, bool) {
	if len(s.Candles) == 0 {
		return Candle{}, false
	}
	return s.Candles[len(s.Candles)-1], true
}

// HighLow returns the highest high and lowest low across the series
func (s Series) HighLow() (high, low float64) {
	if len(s.Candles) == 0 {
		return 0, 0
	}
	high = s.Candles[0].High
	low = s.Candles[0].Low
	for _, c := range s.Candles[1:] {
		if c.High > high {
			high = c.High
		}
		if c.Low < low {
			low = c.Low
		}
	}
	return high, low
}
