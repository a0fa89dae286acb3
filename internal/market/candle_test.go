package market

import "testing"

// TestCandleValidate exercises the OHLC bound invariant on both sides.
func TestCandleValidate(t *testing.T) {
	tests := []struct {
		name    string
		candle  Candle
		wantErr bool
	}{
		{"well formed bullish", Candle{OpenTime: 1, Open: 100, High: 106, Low: 99, Close: 105}, false},
		{"well formed bearish", Candle{OpenTime: 2, Open: 105, High: 106, Low: 99, Close: 100}, false},
		{"doji touching bounds", Candle{OpenTime: 3, Open: 100, High: 100, Low: 100, Close: 100}, false},
		{"high below low", Candle{OpenTime: 4, Open: 100, High: 98, Low: 102, Close: 100}, true},
		{"close above high", Candle{OpenTime: 5, Open: 100, High: 104, Low: 99, Close: 105}, true},
		{"open below low", Candle{OpenTime: 6, Open: 98, High: 106, Low: 99, Close: 105}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.candle.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// TestNewSeriesRejectsMalformedCandles verifies malformed candles are dropped
// without failing the whole series, and the rejection count reflects them.
func TestNewSeriesRejectsMalformedCandles(t *testing.T) {
	candles := []Candle{
		{OpenTime: 100, Open: 100, High: 101, Low: 99, Close: 100.5},
		{OpenTime: 200, Open: 100, High: 98, Low: 102, Close: 100},  // high below low
		{OpenTime: 300, Open: 100, High: 104, Low: 99, Close: 105},  // close above high
		{OpenTime: 400, Open: 100.5, High: 102, Low: 100, Close: 101},
	}

	series, rejected := NewSeries("BTCUSDT", TF5m, candles)
	if rejected != 2 {
		t.Errorf("rejected = %d, want 2", rejected)
	}
	if series.Len() != 2 {
		t.Fatalf("kept = %d, want 2", series.Len())
	}
	if series.Candles[0].OpenTime != 100 || series.Candles[1].OpenTime != 400 {
		t.Errorf("kept candles out of order: %d, %d",
			series.Candles[0].OpenTime, series.Candles[1].OpenTime)
	}
}

// TestNewSeriesDropsDuplicateTimestamps verifies that the first candle per
// open time wins and later duplicates count as rejected.
func TestNewSeriesDropsDuplicateTimestamps(t *testing.T) {
	candles := []Candle{
		{OpenTime: 100, Open: 100, High: 101, Low: 99, Close: 100.5},
		{OpenTime: 100, Open: 200, High: 201, Low: 199, Close: 200.5},
		{OpenTime: 200, Open: 101, High: 102, Low: 100, Close: 101.5},
	}

	series, rejected := NewSeries("BTCUSDT", TF15m, candles)
	if rejected != 1 {
		t.Errorf("rejected = %d, want 1", rejected)
	}
	if series.Len() != 2 {
		t.Fatalf("kept = %d, want 2", series.Len())
	}
	if series.Candles[0].Open != 100 {
		t.Errorf("kept open = %f, want the first candle at the timestamp", series.Candles[0].Open)
	}
}

// TestNewSeriesSortsByOpenTime verifies an out-of-order feed comes back in
// chronological order.
func TestNewSeriesSortsByOpenTime(t *testing.T) {
	candles := []Candle{
		{OpenTime: 300, Open: 102, High: 103, Low: 101, Close: 102.5},
		{OpenTime: 100, Open: 100, High: 101, Low: 99, Close: 100.5},
		{OpenTime: 200, Open: 101, High: 102, Low: 100, Close: 101.5},
	}

	series, rejected := NewSeries("ETHUSDT", TF2h, candles)
	if rejected != 0 {
		t.Errorf("rejected = %d, want 0", rejected)
	}
	for i, want := range []int64{100, 200, 300} {
		if series.Candles[i].OpenTime != want {
			t.Errorf("candle %d open time = %d, want %d", i, series.Candles[i].OpenTime, want)
		}
	}
	last, ok := series.Last()
	if !ok || last.OpenTime != 300 {
		t.Errorf("Last() = %+v, %v; want the candle at 300", last, ok)
	}
}

// TestSeriesHighLow verifies the extremes span the whole series.
func TestSeriesHighLow(t *testing.T) {
	series, _ := NewSeries("BTCUSDT", TF5m, []Candle{
		{OpenTime: 100, Open: 100, High: 105, Low: 96, Close: 101},
		{OpenTime: 200, Open: 101, High: 110, Low: 100, Close: 108},
		{OpenTime: 300, Open: 108, High: 109, Low: 95, Close: 97},
	})

	high, low := series.HighLow()
	if high != 110 || low != 95 {
		t.Errorf("HighLow() = %f, %f; want 110, 95", high, low)
	}

	var empty Series
	if h, l := empty.HighLow(); h != 0 || l != 0 {
		t.Errorf("empty HighLow() = %f, %f; want zeros", h, l)
	}
	if _, ok := empty.Last(); ok {
		t.Error("empty Last() should report no candle")
	}
}
