package lifecycle

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"smc-trading-engine/internal/analysis"
	"smc-trading-engine/internal/composer"
)

var (
	// ErrTerminalSignal is returned when a transition is attempted on a
	// signal that already hit its stop or target.
	ErrTerminalSignal = errors.New("signal is in a terminal state")

	// ErrNotReady is returned when activation is attempted before the
	// signal has produced entry levels.
	ErrNotReady = errors.New("signal has no trade setup to activate")
)

// Manager owns all state transitions for watchlist signals. Every mutation
// of a signal goes through the manager under that signal's lock, so
// overlapping analysis and price-tick passes never interleave on the same
// signal.
type Manager struct {
	log zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager creates a lifecycle manager.
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		log:   log.With().Str("component", "lifecycle").Logger(),
		locks: make(map[string]*sync.Mutex),
	}
}

// signalLock returns the mutex for a signal ID, creating it on first use.
func (m *Manager) signalLock(id string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

// ReleaseLock discards the per-signal mutex once a signal is terminal and
// persisted. Safe to call for unknown IDs.
func (m *Manager) ReleaseLock(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, id)
}

// NewSignal creates a fresh watching signal for an instrument.
func (m *Manager) NewSignal(instrument string) *WatchlistSignal {
	now := time.Now().UTC()
	return &WatchlistSignal{
		ID:             uuid.New().String(),
		Instrument:     instrument,
		Status:         StatusWatching,
		LastAnalyzedAt: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Advance applies a fresh analysis result to a signal. The analysis snapshot
// and last-analyzed timestamp are always refreshed. A TRADE_SETUP decision
// promotes a watching signal to signal_ready and captures its levels; on a
// signal that is already signal_ready the levels are refreshed in place and
// the original generation timestamp is kept. Active and terminal signals only
// receive the snapshot refresh. Returns true when the status changed.
func (m *Manager) Advance(sig *WatchlistSignal, result *composer.AnalysisResult) (bool, error) {
	if sig == nil || result == nil {
		return false, errors.New("nil signal or result")
	}

	l := m.signalLock(sig.ID)
	l.Lock()
	defer l.Unlock()

	now := time.Now().UTC()
	sig.Analysis = result
	sig.LastAnalyzedAt = now
	sig.UpdatedAt = now

	if sig.Status.IsTerminal() || sig.Status == StatusActive {
		return false, nil
	}

	if result.FinalDecision != composer.TradeSetup || !result.Execution.TradeSignal {
		// A setup that evaporated demotes signal_ready back to watching.
		if sig.Status == StatusSignalReady {
			sig.Status = StatusWatching
			sig.SignalGeneratedAt = nil
			m.log.Info().
				Str("signal_id", sig.ID).
				Str("instrument", sig.Instrument).
				Msg("setup no longer valid, back to watching")
			return true, nil
		}
		return false, nil
	}

	exec := &result.Execution
	sig.Direction = exec.Direction
	sig.EntryPrice = exec.EntryPrice
	sig.StopLoss = exec.StopLoss
	sig.TakeProfits = append([]float64(nil), exec.TakeProfits...)

	if sig.Status == StatusWatching {
		sig.Status = StatusSignalReady
		sig.SignalGeneratedAt = &now
		m.log.Info().
			Str("signal_id", sig.ID).
			Str("instrument", sig.Instrument).
			Float64("entry", sig.EntryPrice).
			Float64("stop", sig.StopLoss).
			Msg("signal ready")
		return true, nil
	}

	// signal_ready refresh: levels updated, status unchanged
	return false, nil
}

// Activate moves a signal_ready signal to active once a position has been
// opened for it.
func (m *Manager) Activate(sig *WatchlistSignal) error {
	l := m.signalLock(sig.ID)
	l.Lock()
	defer l.Unlock()

	if sig.Status.IsTerminal() {
		return ErrTerminalSignal
	}
	if sig.Status != StatusSignalReady {
		return ErrNotReady
	}
	sig.Status = StatusActive
	sig.UpdatedAt = time.Now().UTC()
	m.log.Info().
		Str("signal_id", sig.ID).
		Str("instrument", sig.Instrument).
		Msg("signal active")
	return nil
}

// EvaluateExit applies a price tick to a signal. The current price is always
// recorded. For active signals the stop and targets are checked: a long exits
// at hit_sl when price drops to or below the stop, and at hit_tp when price
// reaches any target; shorts mirror both. The stop is checked first, so a
// tick that somehow satisfies both sides resolves to the loss. Once a signal
// is terminal no further tick can change it. Returns true when the signal
// transitioned to a terminal state on this tick.
func (m *Manager) EvaluateExit(sig *WatchlistSignal, price float64) bool {
	l := m.signalLock(sig.ID)
	l.Lock()
	defer l.Unlock()

	if sig.Status.IsTerminal() {
		return false
	}

	sig.CurrentPrice = price
	sig.UpdatedAt = time.Now().UTC()

	if sig.Status != StatusActive {
		return false
	}

	long := sig.Direction != analysis.Bearish

	hitSL := false
	hitTP := false
	if long {
		hitSL = price <= sig.StopLoss
		for _, tp := range sig.TakeProfits {
			if price >= tp {
				hitTP = true
				break
			}
		}
	} else {
		hitSL = price >= sig.StopLoss
		for _, tp := range sig.TakeProfits {
			if price <= tp {
				hitTP = true
				break
			}
		}
	}

	switch {
	case hitSL:
		m.close(sig, price, StatusHitSL, ExitStopLoss)
		return true
	case hitTP:
		m.close(sig, price, StatusHitTP, ExitTakeProfit)
		return true
	}
	return false
}

func (m *Manager) close(sig *WatchlistSignal, price float64, status SignalStatus, reason ExitReason) {
	now := time.Now().UTC()
	sig.Status = status
	sig.ExitPrice = &price
	r := reason
	sig.ExitReason = &r
	sig.TradeClosedAt = &now
	m.log.Info().
		Str("signal_id", sig.ID).
		Str("instrument", sig.Instrument).
		Str("status", string(status)).
		Float64("exit_price", price).
		Msg("signal closed")
}
