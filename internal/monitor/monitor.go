// Package monitor runs the background loops that keep watchlist signals
// current: periodic re-analysis and price-driven exit evaluation.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"smc-trading-engine/internal/broker"
	"smc-trading-engine/internal/cache"
	"smc-trading-engine/internal/composer"
	"smc-trading-engine/internal/events"
	"smc-trading-engine/internal/lifecycle"
	"smc-trading-engine/internal/market"
)

// Config controls the monitor loops.
type Config struct {
	AnalysisInterval time.Duration `json:"analysis_interval"`
	TickInterval     time.Duration `json:"tick_interval"`
	WorkerCount      int           `json:"worker_count"`
	CandleLimit      int           `json:"candle_limit"`
}

// DefaultConfig returns sensible loop settings.
func DefaultConfig() Config {
	return Config{
		AnalysisInterval: 5 * time.Minute,
		TickInterval:     15 * time.Second,
		WorkerCount:      4,
		CandleLimit:      100,
	}
}

// SignalStore is the slice of persistence the monitor needs.
type SignalStore interface {
	ListSignalsByStatus(ctx context.Context, statuses ...lifecycle.SignalStatus) ([]*lifecycle.WatchlistSignal, error)
	UpdateSignal(ctx context.Context, sig *lifecycle.WatchlistSignal) error
	SaveAnalysis(ctx context.Context, result *composer.AnalysisResult) error
}

// Monitor orchestrates re-analysis and price ticks over tracked signals.
type Monitor struct {
	cfg      Config
	provider market.DataProvider
	broker   broker.Broker
	prices   *cache.PriceCache
	comp     *composer.Composer
	manager  *lifecycle.Manager
	store    SignalStore
	bus      *events.EventBus
	log      zerolog.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New creates a monitor. The price cache may be nil.
func New(
	cfg Config,
	provider market.DataProvider,
	brk broker.Broker,
	prices *cache.PriceCache,
	comp *composer.Composer,
	manager *lifecycle.Manager,
	store SignalStore,
	bus *events.EventBus,
	log zerolog.Logger,
) *Monitor {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	return &Monitor{
		cfg:      cfg,
		provider: provider,
		broker:   brk,
		prices:   prices,
		comp:     comp,
		manager:  manager,
		store:    store,
		bus:      bus,
		log:      log.With().Str("component", "monitor").Logger(),
	}
}

// Start launches the analysis and tick loops.
func (m *Monitor) Start() {
	m.stopChan = make(chan struct{})
	m.wg.Add(2)
	go m.runAnalysisLoop()
	go m.runTickLoop()
	m.log.Info().
		Dur("analysis_interval", m.cfg.AnalysisInterval).
		Dur("tick_interval", m.cfg.TickInterval).
		Msg("monitor started")
}

// Stop halts both loops and waits for in-flight passes to finish.
func (m *Monitor) Stop() {
	close(m.stopChan)
	m.wg.Wait()
	m.log.Info().Msg("monitor stopped")
}

func (m *Monitor) runAnalysisLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.AnalysisInterval)
	defer ticker.Stop()

	m.analysisPass()
	for {
		select {
		case <-ticker.C:
			m.analysisPass()
		case <-m.stopChan:
			return
		}
	}
}

func (m *Monitor) runTickLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.tickPass()
		case <-m.stopChan:
			return
		}
	}
}

// analysisPass re-runs the composer for every non-terminal signal, spreading
// the work over a bounded pool.
func (m *Monitor) analysisPass() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	sigs, err := m.store.ListSignalsByStatus(ctx,
		lifecycle.StatusWatching, lifecycle.StatusSignalReady, lifecycle.StatusActive)
	if err != nil {
		m.log.Error().Err(err).Msg("list signals for analysis")
		m.bus.PublishError("monitor.analysis", err)
		return
	}
	if len(sigs) == 0 {
		return
	}

	sigChan := make(chan *lifecycle.WatchlistSignal, len(sigs))
	var wg sync.WaitGroup
	for i := 0; i < m.cfg.WorkerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sig := range sigChan {
				m.analyzeSignal(ctx, sig)
			}
		}()
	}
	for _, sig := range sigs {
		sigChan <- sig
	}
	close(sigChan)
	wg.Wait()
}

func (m *Monitor) analyzeSignal(ctx context.Context, sig *lifecycle.WatchlistSignal) {
	result, err := m.RunAnalysis(ctx, sig.Instrument)
	if err != nil {
		// Skip this cycle; the signal state is untouched.
		m.log.Warn().Err(err).
			Str("signal_id", sig.ID).
			Str("instrument", sig.Instrument).
			Msg("analysis skipped this cycle")
		return
	}

	prev := sig.Status
	changed, err := m.manager.Advance(sig, result)
	if err != nil {
		m.log.Error().Err(err).Str("signal_id", sig.ID).Msg("advance signal")
		return
	}
	if err := m.store.UpdateSignal(ctx, sig); err != nil {
		m.log.Error().Err(err).Str("signal_id", sig.ID).Msg("persist signal")
		return
	}
	if changed {
		m.publishTransition(sig, prev)
	}
}

// RunAnalysis fetches all three timeframes for an instrument and runs the
// composer over them. The result is persisted before returning.
func (m *Monitor) RunAnalysis(ctx context.Context, instrument string) (*composer.AnalysisResult, error) {
	seriesByTF := make(map[market.Timeframe]market.Series, 3)
	for _, tf := range market.Timeframes() {
		candles, err := m.provider.GetCandles(ctx, instrument, tf, m.cfg.CandleLimit)
		if err != nil {
			return nil, err
		}
		series, rejected := market.NewSeries(instrument, tf, candles)
		if rejected > 0 {
			m.log.Warn().
				Str("instrument", instrument).
				Str("timeframe", string(tf)).
				Int("rejected", rejected).
				Msg("malformed candles excluded")
		}
		seriesByTF[tf] = series
	}

	result := m.comp.Run(instrument, seriesByTF)
	if err := m.store.SaveAnalysis(ctx, result); err != nil {
		m.log.Error().Err(err).Str("analysis_id", result.ID).Msg("persist analysis")
	}
	m.bus.PublishAnalysisCompleted(result.ID, instrument, string(result.FinalDecision))
	return result, nil
}

// tickPass fetches one price per unique instrument and applies it to every
// signal tracking that instrument.
func (m *Monitor) tickPass() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sigs, err := m.store.ListSignalsByStatus(ctx,
		lifecycle.StatusWatching, lifecycle.StatusSignalReady, lifecycle.StatusActive)
	if err != nil {
		m.log.Error().Err(err).Msg("list signals for tick")
		return
	}
	if len(sigs) == 0 {
		return
	}

	byInstrument := make(map[string][]*lifecycle.WatchlistSignal)
	for _, sig := range sigs {
		byInstrument[sig.Instrument] = append(byInstrument[sig.Instrument], sig)
	}

	var wg sync.WaitGroup
	for instrument, group := range byInstrument {
		wg.Add(1)
		go func(instrument string, group []*lifecycle.WatchlistSignal) {
			defer wg.Done()
			price, err := m.fetchPrice(ctx, instrument)
			if err != nil {
				m.log.Warn().Err(err).Str("instrument", instrument).Msg("price fetch skipped this cycle")
				return
			}
			m.bus.PublishPriceUpdate(instrument, price)
			for _, sig := range group {
				m.applyTick(ctx, sig, price)
			}
		}(instrument, group)
	}
	wg.Wait()
}

// fetchPrice consults the cache first and falls back to the broker. Broker
// prices are written back to the cache best-effort.
func (m *Monitor) fetchPrice(ctx context.Context, instrument string) (float64, error) {
	if m.prices != nil {
		if price, err := m.prices.GetPrice(ctx, instrument); err == nil {
			return price, nil
		}
	}
	price, err := m.broker.CurrentPrice(ctx, instrument)
	if err != nil {
		return 0, err
	}
	if m.prices != nil {
		if err := m.prices.SetPrice(ctx, instrument, price); err != nil {
			m.log.Debug().Err(err).Str("instrument", instrument).Msg("price cache write failed")
		}
	}
	return price, nil
}

func (m *Monitor) applyTick(ctx context.Context, sig *lifecycle.WatchlistSignal, price float64) {
	closed := m.manager.EvaluateExit(sig, price)
	if err := m.store.UpdateSignal(ctx, sig); err != nil {
		m.log.Error().Err(err).Str("signal_id", sig.ID).Msg("persist tick")
		return
	}
	if closed {
		m.bus.PublishSignalTransition(events.EventSignalClosed, sig.ID, sig.Instrument, string(sig.Status))
		m.manager.ReleaseLock(sig.ID)
	}
}

func (m *Monitor) publishTransition(sig *lifecycle.WatchlistSignal, prev lifecycle.SignalStatus) {
	var eventType events.EventType
	switch sig.Status {
	case lifecycle.StatusSignalReady:
		eventType = events.EventSignalReady
	case lifecycle.StatusWatching:
		eventType = events.EventSignalWatching
	case lifecycle.StatusActive:
		eventType = events.EventSignalActive
	default:
		eventType = events.EventSignalClosed
	}
	m.log.Info().
		Str("signal_id", sig.ID).
		Str("from", string(prev)).
		Str("to", string(sig.Status)).
		Msg("signal transition")
	m.bus.PublishSignalTransition(eventType, sig.ID, sig.Instrument, string(sig.Status))
}
