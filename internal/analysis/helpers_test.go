package analysis

import (
	"smc-trading-engine/internal/market"
)

// candle is a test helper for building candles with explicit OHLC values
func candle(openTime int64, open, high, low, close float64) market.Candle {
	return market.Candle{
		OpenTime: openTime,
		Open:     open,
		High:     high,
		Low:      low,
		Close:    close,
		Volume:   1000,
	}
}

// series wraps candles into a 15m test series
func series(candles ...market.Candle) market.Series {
	return market.Series{
		Instrument: "BTCUSDT",
		Timeframe:  market.TF15m,
		Candles:    candles,
	}
}
