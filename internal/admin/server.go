// Package admin exposes the read-mostly operator API of a running engine.
package admin

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"polytrader/internal/engine"
	"polytrader/internal/model"
	"polytrader/internal/obs"
	"polytrader/internal/risk"
	"polytrader/internal/store"
)

const (
	defaultTradeLimit = 50
	maxTradeLimit     = 500
)

// Status is the engine summary served on /status.
type Status struct {
	Mode        string            `json:"mode"`
	Strategy    string            `json:"strategy"`
	Cash        decimal.Decimal   `json:"cash"`
	Equity      decimal.Decimal   `json:"equity"`
	InitialCash decimal.Decimal   `json:"initial_cash"`
	Positions   int               `json:"positions"`
	Breaker     risk.BreakerState `json:"breaker"`
	Daily       risk.DailyStats   `json:"daily"`
	Pending     int               `json:"pending_orders"`
}

// FillSink accepts venue fill reports, normally the event hub.
type FillSink interface {
	PublishFill(ctx context.Context, fill model.Fill) error
}

// Server serves the admin API.
type Server struct {
	eng     *engine.Engine
	repo    store.Repository
	metrics *obs.Metrics
	fills   FillSink
	now     func() time.Time
	router  *gin.Engine
}

// New builds the router. repo and metrics may be nil.
func New(eng *engine.Engine, repo store.Repository, metrics *obs.Metrics) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		eng:     eng,
		repo:    repo,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
		router:  gin.New(),
	}
	s.router.Use(gin.Recovery())

	s.router.GET("/healthz", s.health)
	s.router.GET("/status", s.status)
	s.router.GET("/positions", s.positions)
	s.router.GET("/positions/:id", s.position)
	s.router.GET("/trades", s.trades)
	s.router.GET("/metrics", s.snapshot)
	s.router.POST("/breaker/approve", s.approve)
	s.router.POST("/breaker/halt", s.halt)
	s.router.POST("/fills", s.reportFill)
	return s
}

// WithFills enables POST /fills for live fill reports.
func (s *Server) WithFills(sink FillSink) *Server {
	s.fills = sink
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logs.Infof("admin api listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) status(c *gin.Context) {
	now := s.now()
	ledger := s.eng.Ledger()
	c.JSON(http.StatusOK, Status{
		Mode:        s.eng.Executor().Mode().String(),
		Strategy:    s.eng.Strategy().Name(),
		Cash:        ledger.Cash(),
		Equity:      ledger.Equity(),
		InitialCash: ledger.InitialCash(),
		Positions:   ledger.Count(),
		Breaker:     s.eng.Risk().Breaker(now),
		Daily:       s.eng.Risk().Daily(),
		Pending:     len(s.eng.Executor().Pending()),
	})
}

func (s *Server) positions(c *gin.Context) {
	c.JSON(http.StatusOK, s.eng.Ledger().Positions())
}

func (s *Server) position(c *gin.Context) {
	p, ok := s.eng.Ledger().Position(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "position not found"})
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) trades(c *gin.Context) {
	if s.repo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no repository configured"})
		return
	}
	limit := defaultTradeLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxTradeLimit)
	}
	trades, err := s.repo.GetRecentTrades(c.Request.Context(), limit)
	if err != nil {
		logs.Errorf("admin list trades, err: %+v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, trades)
}

func (s *Server) snapshot(c *gin.Context) {
	if s.metrics == nil {
		c.JSON(http.StatusOK, obs.Snapshot{})
		return
	}
	c.JSON(http.StatusOK, s.metrics.Snapshot())
}

func (s *Server) approve(c *gin.Context) {
	if !s.eng.Risk().Approve() {
		c.JSON(http.StatusConflict, gin.H{"error": "breaker is not halted"})
		return
	}
	logs.Warnf("breaker resume approved by operator")
	c.JSON(http.StatusOK, s.eng.Risk().Breaker(s.now()))
}

type haltRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func (s *Server) halt(c *gin.Context) {
	var req haltRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	now := s.now()
	s.eng.Risk().Halt("manual: "+req.Reason, now)
	logs.Warnf("breaker halted by operator: %s", req.Reason)
	c.JSON(http.StatusOK, s.eng.Risk().Breaker(now))
}

type fillReport struct {
	OrderID   string          `json:"order_id" binding:"required"`
	Price     decimal.Decimal `json:"price"`
	Size      decimal.Decimal `json:"size"`
	Timestamp time.Time       `json:"timestamp"`
}

func (s *Server) reportFill(c *gin.Context) {
	if s.fills == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "fill reports disabled"})
		return
	}
	var req fillReport
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	order, ok := s.eng.Executor().Order(req.OrderID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown order"})
		return
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = s.now()
	}
	fill := model.Fill{
		OrderID:      order.ID,
		InstrumentID: order.InstrumentID,
		Side:         order.Side,
		Price:        req.Price,
		Size:         req.Size,
		Timestamp:    req.Timestamp,
	}
	if err := s.fills.PublishFill(c.Request.Context(), fill); err != nil {
		logs.Errorf("admin publish fill %s, err: %+v", req.OrderID, err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"order_id": order.ID})
}
