// Package cache provides Redis-based caching for instrument prices.
package cache

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// DefaultPriceTTL bounds how stale a cached price may be between tick passes.
const DefaultPriceTTL = 5 * time.Second

// ErrMiss is returned on a cache miss.
var ErrMiss = redis.Nil

// PriceCache caches the latest price per instrument with graceful
// degradation. When Redis is unavailable, operations return errors that
// callers should handle by fetching from the broker directly.
type PriceCache struct {
	client       *redis.Client
	log          zerolog.Logger
	ttl          time.Duration
	mu           sync.RWMutex
	healthy      bool
	failureCount int
	lastCheck    time.Time

	maxFailures   int
	checkInterval time.Duration
}

// NewPriceCache creates a price cache and verifies connectivity. A failed
// initial ping returns a cache in degraded mode, not an error.
func NewPriceCache(cfg RedisConfig, log zerolog.Logger) (*PriceCache, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("redis is not enabled in configuration")
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = 10
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pc := &PriceCache{
		client:        client,
		log:           log.With().Str("component", "price_cache").Logger(),
		ttl:           DefaultPriceTTL,
		maxFailures:   3,
		checkInterval: 30 * time.Second,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		pc.log.Warn().Err(err).Msg("initial redis connection failed, starting degraded")
		return pc, nil
	}

	pc.healthy = true
	pc.lastCheck = time.Now()
	pc.log.Info().Str("address", cfg.Address).Msg("redis connected")
	return pc, nil
}

// IsHealthy returns whether Redis is currently available.
func (pc *PriceCache) IsHealthy() bool {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return pc.healthy
}

func (pc *PriceCache) recordFailure() {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.failureCount++
	if pc.failureCount >= pc.maxFailures {
		if pc.healthy {
			pc.log.Warn().Int("failures", pc.failureCount).Msg("redis marked unhealthy")
		}
		pc.healthy = false
	}
}

func (pc *PriceCache) recordSuccess() {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if !pc.healthy {
		pc.log.Info().Msg("redis recovered")
	}
	pc.healthy = true
	pc.failureCount = 0
	pc.lastCheck = time.Now()
}

// checkHealth pings in the background once the retry interval has passed.
func (pc *PriceCache) checkHealth() {
	pc.mu.RLock()
	shouldCheck := !pc.healthy && time.Since(pc.lastCheck) >= pc.checkInterval
	pc.mu.RUnlock()
	if !shouldCheck {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := pc.client.Ping(ctx).Err(); err == nil {
			pc.recordSuccess()
		}
	}()
}

func priceKey(instrument string) string {
	return "price:" + instrument
}

// GetPrice returns the cached price for an instrument. A miss returns ErrMiss.
func (pc *PriceCache) GetPrice(ctx context.Context, instrument string) (float64, error) {
	pc.checkHealth()
	if !pc.IsHealthy() {
		return 0, fmt.Errorf("redis unavailable")
	}

	val, err := pc.client.Get(ctx, priceKey(instrument)).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, err
		}
		pc.recordFailure()
		return 0, fmt.Errorf("redis get failed: %w", err)
	}

	pc.recordSuccess()
	price, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt cached price %q: %w", val, err)
	}
	return price, nil
}

// SetPrice stores an instrument's price under the cache TTL.
func (pc *PriceCache) SetPrice(ctx context.Context, instrument string, price float64) error {
	pc.checkHealth()
	if !pc.IsHealthy() {
		return fmt.Errorf("redis unavailable")
	}

	val := strconv.FormatFloat(price, 'f', -1, 64)
	if err := pc.client.Set(ctx, priceKey(instrument), val, pc.ttl).Err(); err != nil {
		pc.recordFailure()
		return fmt.Errorf("redis set failed: %w", err)
	}
	pc.recordSuccess()
	return nil
}

// Close releases the Redis connection.
func (pc *PriceCache) Close() error {
	return pc.client.Close()
}
