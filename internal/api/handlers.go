package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"smc-trading-engine/internal/analysis"
	"smc-trading-engine/internal/broker"
	"smc-trading-engine/internal/database"
	"smc-trading-engine/internal/events"
	"smc-trading-engine/internal/lifecycle"
)

func (s *Server) handleHealth(c *gin.Context) {
	status := "ok"
	if err := s.repo.HealthCheck(c.Request.Context()); err != nil {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status": status,
		"time":   time.Now().UTC(),
	})
}

// ============================================================================
// SIGNALS
// ============================================================================

func (s *Server) handleListSignals(c *gin.Context) {
	var statuses []lifecycle.SignalStatus
	if raw := c.Query("status"); raw != "" {
		statuses = append(statuses, lifecycle.SignalStatus(raw))
	} else {
		statuses = []lifecycle.SignalStatus{
			lifecycle.StatusWatching, lifecycle.StatusSignalReady,
			lifecycle.StatusActive, lifecycle.StatusHitSL, lifecycle.StatusHitTP,
		}
	}

	sigs, err := s.repo.ListSignalsByStatus(c.Request.Context(), statuses...)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"signals": sigs, "count": len(sigs)})
}

func (s *Server) handleGetSignal(c *gin.Context) {
	sig, err := s.repo.GetSignalByID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "signal not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sig)
}

type createSignalRequest struct {
	Instrument string `json:"instrument" binding:"required"`
}

func (s *Server) handleCreateSignal(c *gin.Context) {
	var req createSignalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sig := s.manager.NewSignal(req.Instrument)
	if err := s.repo.CreateSignal(c.Request.Context(), sig); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.eventBus.PublishSignalTransition(events.EventSignalWatching, sig.ID, sig.Instrument, string(sig.Status))
	c.JSON(http.StatusCreated, sig)
}

// ============================================================================
// ANALYSIS
// ============================================================================

func (s *Server) handleRunAnalysis(c *gin.Context) {
	instrument := c.Param("instrument")
	result, err := s.monitor.RunAnalysis(c.Request.Context(), instrument)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":           err.Error(),
			"state_unchanged": true,
		})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleGetAnalysis(c *gin.Context) {
	result, err := s.repo.GetAnalysis(c.Request.Context(), c.Param("id"))
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "analysis not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleListAnalysisRuns(c *gin.Context) {
	instrument := c.Query("instrument")
	if instrument == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "instrument is required"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit <= 0 || limit > 200 {
		limit = 20
	}

	runs, err := s.repo.ListAnalysisRuns(c.Request.Context(), instrument, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs)})
}

// ============================================================================
// TRADES
// ============================================================================

type openTradeRequest struct {
	SignalID string  `json:"signal_id" binding:"required"`
	Owner    string  `json:"owner" binding:"required"`
	Quantity float64 `json:"quantity" binding:"required,gt=0"`
}

func (s *Server) handleOpenTrade(c *gin.Context) {
	var req openTradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()

	// Hold the owner lock across the cooldown check and the trade creation
	// so two requests cannot both pass the check.
	lock := s.ownerLock(req.Owner)
	lock.Lock()
	defer lock.Unlock()

	allowed, remaining, err := s.gate.CanOpenTrade(ctx, req.Owner)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !allowed {
		c.JSON(http.StatusConflict, gin.H{
			"error":             "cooldown active",
			"remaining_minutes": int(remaining.Minutes()) + 1,
		})
		return
	}

	sig, err := s.repo.GetSignalByID(ctx, req.SignalID)
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "signal not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if sig.Status != lifecycle.StatusSignalReady {
		c.JSON(http.StatusConflict, gin.H{"error": "signal has no open setup"})
		return
	}

	side := broker.SideLong
	if sig.Direction == analysis.Bearish {
		side = broker.SideShort
	}
	contractID, err := s.broker.OpenPosition(ctx, broker.OrderRequest{
		Instrument:  sig.Instrument,
		Side:        side,
		Quantity:    req.Quantity,
		StopLoss:    sig.StopLoss,
		TakeProfits: sig.TakeProfits,
	})
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":           err.Error(),
			"state_unchanged": true,
		})
		return
	}

	trade := &database.Trade{
		SignalID:   &sig.ID,
		Owner:      req.Owner,
		Instrument: sig.Instrument,
		ContractID: contractID,
		Side:       string(side),
		Quantity:   req.Quantity,
		EntryPrice: sig.EntryPrice,
		Status:     database.TradeStatusOpen,
		OpenedAt:   time.Now().UTC(),
	}
	if err := s.repo.CreateTrade(ctx, trade); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if err := s.manager.Activate(sig); err != nil {
		s.log.Error().Err(err).Str("signal_id", sig.ID).Msg("activate after open")
	} else if err := s.repo.UpdateSignal(ctx, sig); err != nil {
		s.log.Error().Err(err).Str("signal_id", sig.ID).Msg("persist activation")
	}

	s.eventBus.Publish(events.Event{
		Type: events.EventTradeOpened,
		Data: map[string]interface{}{
			"trade_id":    trade.ID,
			"signal_id":   sig.ID,
			"instrument":  sig.Instrument,
			"contract_id": contractID,
			"side":        string(side),
		},
	})
	c.JSON(http.StatusCreated, trade)
}

type closeTradesRequest struct {
	Owner       string   `json:"owner" binding:"required"`
	ContractIDs []string `json:"contract_ids" binding:"required,min=1"`
}

func (s *Server) handleCloseTrades(c *gin.Context) {
	var req closeTradesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()

	closed, failed, err := s.broker.CloseContracts(ctx, req.ContractIDs)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":           err.Error(),
			"state_unchanged": true,
		})
		return
	}

	// Per-item settlement: a failed row never rolls back completed closes.
	now := time.Now().UTC()
	for _, t := range closed {
		price, err := s.broker.CurrentPrice(ctx, t.Instrument)
		if err != nil {
			price = 0
		}
		if err := s.repo.CloseTrade(ctx, t.ContractID, price, t.PnL, now); err != nil {
			s.log.Error().Err(err).Str("contract_id", t.ContractID).Msg("persist close")
			failed = append(failed, t.ContractID)
		}
	}

	entry, err := s.gate.CloseTrades(ctx, req.Owner, closed)
	if err != nil {
		s.log.Error().Err(err).Str("owner", req.Owner).Msg("persist cooldown")
	}
	if entry != nil {
		s.eventBus.PublishCooldownStarted(entry.Owner, string(entry.Kind), entry.NetPnL, entry.ExpiresAt)
	}
	s.eventBus.Publish(events.Event{
		Type: events.EventTradeClosed,
		Data: map[string]interface{}{
			"owner":  req.Owner,
			"closed": len(closed),
			"failed": len(failed),
		},
	})

	resp := gin.H{"closed": closed, "failed": failed}
	if entry != nil {
		resp["cooldown"] = entry
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleOpenTrades(c *gin.Context) {
	owner := c.Query("owner")
	if owner == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "owner is required"})
		return
	}
	trades, err := s.repo.GetOpenTradesByOwner(c.Request.Context(), owner)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades, "count": len(trades)})
}

// ============================================================================
// COOLDOWN
// ============================================================================

func (s *Server) handleCooldownStatus(c *gin.Context) {
	owner := c.Param("owner")
	allowed, remaining, err := s.gate.CanOpenTrade(c.Request.Context(), owner)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	resp := gin.H{"owner": owner, "allowed": allowed}
	if !allowed {
		resp["remaining_minutes"] = int(remaining.Minutes()) + 1
	}
	c.JSON(http.StatusOK, resp)
}
