package market

import "context"

// DataProvider defines the interface for market data operations
type DataProvider interface {
	// GetCandles fetches up to limit candles for the instrument/timeframe,
	// oldest first. Providers may return fewer bars than requested; detectors
	// degrade rather than fail on short series.
	GetCandles(ctx context.Context, instrument string, tf Timeframe, limit int) ([]Candle, error)
}

// Ensure both Client and MockClient implement DataProvider
var _ DataProvider = (*Client)(nil)
var _ DataProvider = (*MockClient)(nil)
