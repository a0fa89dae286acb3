package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"smc-trading-engine/internal/broker"
	"smc-trading-engine/internal/cooldown"
	"smc-trading-engine/internal/database"
	"smc-trading-engine/internal/events"
	"smc-trading-engine/internal/lifecycle"
	"smc-trading-engine/internal/monitor"
)

// RateLimiter provides simple in-memory rate limiting per endpoint
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int
	window   time.Duration
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Allow checks if a request is allowed for the given key
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-r.window)

	var recent []time.Time
	for _, t := range r.requests[key] {
		if t.After(windowStart) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}

	r.requests[key] = append(recent, now)
	return true
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	ProductionMode bool     `json:"production_mode"`
	AllowedOrigins []string `json:"allowed_origins"`
}

// Server represents the HTTP API server
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	config      ServerConfig
	repo        *database.Repository
	monitor     *monitor.Monitor
	manager     *lifecycle.Manager
	gate        *cooldown.Gate
	broker      broker.Broker
	eventBus    *events.EventBus
	hub         *WSHub
	rateLimiter *RateLimiter
	log         zerolog.Logger

	// Serializes the cooldown check against trade creation per owner.
	ownerMu    sync.Mutex
	ownerLocks map[string]*sync.Mutex
}

// NewServer creates a new API server
func NewServer(
	config ServerConfig,
	repo *database.Repository,
	mon *monitor.Monitor,
	manager *lifecycle.Manager,
	gate *cooldown.Gate,
	brk broker.Broker,
	eventBus *events.EventBus,
	log zerolog.Logger,
) *Server {
	if config.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(config.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = config.AllowedOrigins
	} else {
		corsConfig.AllowOrigins = []string{"http://localhost:5173"}
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	server := &Server{
		router:      router,
		config:      config,
		repo:        repo,
		monitor:     mon,
		manager:     manager,
		gate:        gate,
		broker:      brk,
		eventBus:    eventBus,
		hub:         NewWSHub(),
		rateLimiter: NewRateLimiter(120, time.Minute),
		log:         log.With().Str("component", "api").Logger(),
		ownerLocks:  make(map[string]*sync.Mutex),
	}

	server.setupRoutes()
	server.hub.Subscribe(eventBus)
	go server.hub.Run()

	return server
}

func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		if !s.rateLimiter.Allow(path) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/ws", s.handleWebSocket)

	api := s.router.Group("/api")
	api.Use(s.rateLimitMiddleware())
	{
		api.GET("/signals", s.handleListSignals)
		api.GET("/signals/:id", s.handleGetSignal)
		api.POST("/signals", s.handleCreateSignal)

		api.POST("/analysis/:instrument", s.handleRunAnalysis)
		api.GET("/analysis/runs/:id", s.handleGetAnalysis)
		api.GET("/analysis", s.handleListAnalysisRuns)

		api.POST("/trades", s.handleOpenTrade)
		api.POST("/trades/close", s.handleCloseTrades)
		api.GET("/trades/open", s.handleOpenTrades)

		api.GET("/cooldown/:owner", s.handleCooldownStatus)
	}
}

func (s *Server) ownerLock(owner string) *sync.Mutex {
	s.ownerMu.Lock()
	defer s.ownerMu.Unlock()
	l, ok := s.ownerLocks[owner]
	if !ok {
		l = &sync.Mutex{}
		s.ownerLocks[owner] = l
	}
	return l
}

// Start launches the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	s.log.Info().Str("addr", addr).Msg("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
