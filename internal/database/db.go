package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// Config holds database configuration
type Config struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// NewDB creates a new database connection
func NewDB(cfg Config) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	log.Printf("Successfully connected to PostgreSQL database: %s", cfg.Database)

	return &DB{Pool: pool}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		log.Println("Database connection closed")
	}
}

// RunMigrations executes database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	log.Println("Running database migrations...")

	migrations := []string{
		// Analysis runs: full composer output kept as JSONB for auditing
		`CREATE TABLE IF NOT EXISTS analysis_runs (
			id UUID PRIMARY KEY,
			instrument VARCHAR(20) NOT NULL,
			final_decision VARCHAR(20) NOT NULL,
			session_valid BOOLEAN NOT NULL DEFAULT TRUE,
			result JSONB NOT NULL,
			generated_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_analysis_runs_instrument ON analysis_runs(instrument)`,
		`CREATE INDEX IF NOT EXISTS idx_analysis_runs_generated_at ON analysis_runs(generated_at)`,

		// Watchlist signals
		`CREATE TABLE IF NOT EXISTS watchlist_signals (
			id UUID PRIMARY KEY,
			instrument VARCHAR(20) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'watching',
			direction VARCHAR(10),
			entry_price DECIMAL(20, 8),
			stop_loss DECIMAL(20, 8),
			take_profits JSONB,
			current_price DECIMAL(20, 8),
			analysis JSONB,
			signal_generated_at TIMESTAMPTZ,
			last_analyzed_at TIMESTAMPTZ NOT NULL,
			exit_price DECIMAL(20, 8),
			exit_reason VARCHAR(20),
			trade_closed_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ DEFAULT NOW(),
			updated_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_instrument ON watchlist_signals(instrument)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_status ON watchlist_signals(status)`,

		// Trades opened from signals
		`CREATE TABLE IF NOT EXISTS trades (
			id UUID PRIMARY KEY,
			signal_id UUID REFERENCES watchlist_signals(id) ON DELETE SET NULL,
			owner VARCHAR(100) NOT NULL,
			instrument VARCHAR(20) NOT NULL,
			contract_id VARCHAR(100) NOT NULL,
			side VARCHAR(5) NOT NULL,
			quantity DECIMAL(20, 8) NOT NULL,
			entry_price DECIMAL(20, 8) NOT NULL,
			exit_price DECIMAL(20, 8),
			pnl DECIMAL(20, 8),
			status VARCHAR(10) NOT NULL DEFAULT 'open',
			opened_at TIMESTAMPTZ NOT NULL,
			closed_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ DEFAULT NOW(),
			updated_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_owner ON trades(owner)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_status ON trades(status)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_trades_contract ON trades(contract_id)`,

		// Cooldown windows per owner
		`CREATE TABLE IF NOT EXISTS cooldowns (
			id UUID PRIMARY KEY,
			owner VARCHAR(100) NOT NULL,
			kind VARCHAR(10) NOT NULL,
			net_pnl DECIMAL(20, 8) NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cooldowns_owner_expires ON cooldowns(owner, expires_at)`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}

	log.Println("Database migrations completed successfully")
	return nil
}
