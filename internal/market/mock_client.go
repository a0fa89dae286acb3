package market

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"
)

// MockClient provides simulated candle data for development/testing
type MockClient struct {
	prices map[string]float64
	mu     sync.RWMutex
}

// NewMockClient creates a new mock client with realistic base prices
func NewMockClient() *MockClient {
	return &MockClient{
		prices: map[string]float64{
			"BTCUSDT": 104500.00,
			"ETHUSDT": 3900.00,
			"SOLUSDT": 220.00,
			"XRPUSDT": 2.35,
			"EURUSD":  1.0850,
			"GBPUSD":  1.2700,
		},
	}
}

// GetCandles generates a random-walk candle series ending near the base price
func (mc *MockClient) GetCandles(_ context.Context, instrument string, tf Timeframe, limit int) ([]Candle, error) {
	mc.mu.RLock()
	base, ok := mc.prices[instrument]
	mc.mu.RUnlock()
	if !ok {
		base = 100.0
	}

	step := tfSeconds(tf)
	now := time.Now().Unix()
	start := now - int64(limit)*step

	candles := make([]Candle, 0, limit)
	price := base * (1 - 0.002*float64(limit)*rand.Float64()*0.1)

	for i := 0; i < limit; i++ {
		drift := base * 0.001 * (rand.Float64()*2 - 1)
		open := price
		close := price + drift
		high := math.Max(open, close) + base*0.0005*rand.Float64()
		low := math.Min(open, close) - base*0.0005*rand.Float64()

		candles = append(candles, Candle{
			OpenTime: start + int64(i)*step,
			Open:     open,
			High:     high,
			Low:      low,
			Close:    close,
			Volume:   1000 + rand.Float64()*5000,
		})
		price = close
	}

	return candles, nil
}

// SetPrice overrides the mock base price for an instrument
func (mc *MockClient) SetPrice(instrument string, price float64) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.prices[instrument] = price
}

func tfSeconds(tf Timeframe) int64 {
	switch tf {
	case TF2h:
		return 7200
	case TF15m:
		return 900
	case TF5m:
		return 300
	default:
		return 60
	}
}
