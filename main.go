package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"smc-trading-engine/config"
	"smc-trading-engine/internal/api"
	"smc-trading-engine/internal/broker"
	"smc-trading-engine/internal/cache"
	"smc-trading-engine/internal/composer"
	"smc-trading-engine/internal/cooldown"
	"smc-trading-engine/internal/database"
	"smc-trading-engine/internal/events"
	"smc-trading-engine/internal/lifecycle"
	"smc-trading-engine/internal/logging"
	"smc-trading-engine/internal/market"
	"smc-trading-engine/internal/monitor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(logging.Config{
		Level:  cfg.LoggingConfig.Level,
		Pretty: cfg.LoggingConfig.Pretty,
	})
	logger.Info().Msg("Structured logging initialized")

	eventBus := events.NewEventBus()

	db, err := database.NewDB(database.Config{
		Host:     cfg.DatabaseConfig.Host,
		Port:     cfg.DatabaseConfig.Port,
		User:     cfg.DatabaseConfig.User,
		Password: cfg.DatabaseConfig.Password,
		Database: cfg.DatabaseConfig.Database,
		SSLMode:  cfg.DatabaseConfig.SSLMode,
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.RunMigrations(ctx); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	repo := database.NewRepository(db)

	// Market data provider
	var provider market.DataProvider
	if cfg.MarketConfig.MockMode {
		provider = market.NewMockClient()
		logger.Warn().Msg("Market data running in mock mode")
	} else {
		provider = market.NewClient(market.ClientConfig{
			BaseURL:        cfg.MarketConfig.BaseURL,
			Timeout:        cfg.MarketConfig.Timeout,
			RequestsPerSec: cfg.MarketConfig.RequestsPerSec,
			MaxRetryTime:   cfg.MarketConfig.MaxRetryTime,
		})
	}

	// Broker execution facade
	var brk broker.Broker
	if cfg.BrokerConfig.MockMode {
		brk = broker.NewMock()
		logger.Warn().Msg("Broker running in mock mode, no real orders")
	} else {
		brk = broker.NewClient(broker.ClientConfig{
			BaseURL:      cfg.BrokerConfig.BaseURL,
			APIKey:       cfg.BrokerConfig.APIKey,
			Timeout:      cfg.BrokerConfig.Timeout,
			MaxRetryTime: cfg.BrokerConfig.MaxRetryTime,
		}, logger)
	}

	// Price cache is optional; the tick pass falls back to the broker.
	var prices *cache.PriceCache
	if cfg.RedisConfig.Enabled {
		prices, err = cache.NewPriceCache(cache.RedisConfig{
			Enabled:  cfg.RedisConfig.Enabled,
			Address:  cfg.RedisConfig.Address,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
			PoolSize: cfg.RedisConfig.PoolSize,
		}, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("Price cache unavailable, continuing without it")
			prices = nil
		} else {
			defer prices.Close()
		}
	}

	comp := composer.New(composer.DefaultConfig(), logger)
	manager := lifecycle.NewManager(logger)
	gate := cooldown.NewGate(repo, logger)

	mon := monitor.New(
		monitor.Config{
			AnalysisInterval: cfg.MonitorConfig.AnalysisInterval,
			TickInterval:     cfg.MonitorConfig.TickInterval,
			WorkerCount:      cfg.MonitorConfig.WorkerCount,
			CandleLimit:      cfg.MonitorConfig.CandleLimit,
		},
		provider, brk, prices, comp, manager, repo, eventBus, logger,
	)

	// Seed configured instruments onto the watchlist if not already tracked.
	if err := seedWatchlist(ctx, repo, manager, cfg.EngineConfig.Instruments); err != nil {
		logger.Error().Err(err).Msg("Failed to seed watchlist")
	}

	mon.Start()

	server := api.NewServer(
		api.ServerConfig{
			Host:           cfg.ServerConfig.Host,
			Port:           cfg.ServerConfig.Port,
			ProductionMode: cfg.ServerConfig.ProductionMode,
			AllowedOrigins: cfg.ServerConfig.AllowedOrigins,
		},
		repo, mon, manager, gate, brk, eventBus, logger,
	)
	go func() {
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("HTTP server error")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error shutting down web server")
	}
	mon.Stop()

	logger.Info().Msg("Shutdown complete")
}

// seedWatchlist ensures each configured instrument has a live signal.
func seedWatchlist(ctx context.Context, repo *database.Repository, manager *lifecycle.Manager, instruments []string) error {
	existing, err := repo.ListSignalsByStatus(ctx,
		lifecycle.StatusWatching, lifecycle.StatusSignalReady, lifecycle.StatusActive)
	if err != nil {
		return err
	}
	tracked := make(map[string]bool, len(existing))
	for _, sig := range existing {
		tracked[sig.Instrument] = true
	}

	for _, instrument := range instruments {
		if tracked[instrument] {
			continue
		}
		sig := manager.NewSignal(instrument)
		if err := repo.CreateSignal(ctx, sig); err != nil {
			return err
		}
	}
	return nil
}
