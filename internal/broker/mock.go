package broker

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/google/uuid"

	"smc-trading-engine/internal/cooldown"
)

// Mock is an in-memory broker for tests and dry-run mode. Prices drift
// randomly around a settable level per instrument.
type Mock struct {
	mu        sync.Mutex
	prices    map[string]float64
	positions map[string]OrderRequest
	rng       *rand.Rand
}

var _ Broker = (*Mock)(nil)

// NewMock creates a mock broker seeded with a few liquid instruments.
func NewMock() *Mock {
	return &Mock{
		prices: map[string]float64{
			"BTCUSDT": 43000,
			"ETHUSDT": 2300,
			"SOLUSDT": 98,
		},
		positions: make(map[string]OrderRequest),
		rng:       rand.New(rand.NewSource(42)),
	}
}

// SetPrice pins an instrument's price, for deterministic tests.
func (m *Mock) SetPrice(instrument string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[instrument] = price
}

func (m *Mock) CurrentPrice(_ context.Context, instrument string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prices[instrument]
	if !ok {
		return 0, fmt.Errorf("unknown instrument %s", instrument)
	}
	drift := p * 0.0005 * (m.rng.Float64()*2 - 1)
	m.prices[instrument] = p + drift
	return m.prices[instrument], nil
}

func (m *Mock) OpenPosition(_ context.Context, req OrderRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.prices[req.Instrument]; !ok {
		return "", fmt.Errorf("unknown instrument %s", req.Instrument)
	}
	id := uuid.New().String()
	m.positions[id] = req
	return id, nil
}

func (m *Mock) CloseContracts(_ context.Context, contractIDs []string) ([]cooldown.ClosedTrade, []string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var closed []cooldown.ClosedTrade
	var failed []string
	for _, id := range contractIDs {
		req, ok := m.positions[id]
		if !ok {
			failed = append(failed, id)
			continue
		}
		delete(m.positions, id)
		pnl := m.prices[req.Instrument] * 0.001 * (m.rng.Float64()*2 - 1)
		closed = append(closed, cooldown.ClosedTrade{
			ContractID: id,
			Instrument: req.Instrument,
			PnL:        pnl,
		})
	}
	return closed, failed, nil
}

// OpenCount reports how many mock positions remain open.
func (m *Mock) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.positions)
}
