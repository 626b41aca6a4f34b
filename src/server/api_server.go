package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"microstructure-cache/src/interfaces"
	"microstructure-cache/src/logger"
	"microstructure-cache/src/models"

	"github.com/gin-gonic/gin"
)

// -----------------------------------------------------------------------------
// APIServer
// -----------------------------------------------------------------------------

type APIServer struct {
	Config *models.MConfig
	Logger *logger.Logger
	Reader interfaces.IMetricsReader

	// Status reports the generator lifecycle state for /api/health.
	Status func() string
	// MarketsOpen reports whether any tracked market trades right now.
	MarketsOpen func() bool

	engine  *gin.Engine
	httpSrv *http.Server

	// WebSocket clients, owned by the hub goroutine
	clients    map[*Client]struct{}
	broadcast  chan *models.MSnapshotUpdate
	register   chan *Client
	unregister chan *Client
	stop       chan struct{}
	hubOnce    sync.Once
	stopOnce   sync.Once

	stateMutex   sync.RWMutex
	connections  int
	latestUpdate int64
}

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

func NewAPIServer(cfg *models.MConfig, reader interfaces.IMetricsReader, logger *logger.Logger) *APIServer {
	if !strings.EqualFold(cfg.LogLevel, "DEBUG") {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &APIServer{
		Config:     cfg,
		Logger:     logger,
		Reader:     reader,
		engine:     gin.New(),
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan *models.MSnapshotUpdate, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stop:       make(chan struct{}),
	}

	s.engine.Use(gin.Recovery())
	s.engine.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if strings.HasPrefix(origin, "http://127.0.0.1:") || strings.HasPrefix(origin, "http://localhost:") {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	s.setupRoutes()
	return s
}

// -----------------------------------------------------------------------------
// Route Setup
// -----------------------------------------------------------------------------

func (s *APIServer) setupRoutes() {
	api := s.engine.Group("/api")
	api.GET("/metrics", s.getAllMetrics)
	api.GET("/metrics/:symbol", s.getMetrics)
	api.GET("/metrics/:symbol/history", s.getHistory)
	api.GET("/config", s.getConfig)
	api.GET("/health", s.getHealth)

	s.engine.GET("/ws", s.handleWebSocket)
}

// Handler exposes the router, mainly for httptest.
func (s *APIServer) Handler() http.Handler {
	return s.engine
}

// -----------------------------------------------------------------------------
// Server Lifecycle
// -----------------------------------------------------------------------------

// Start serves HTTP until Stop is called.
func (s *APIServer) Start() error {
	addr := fmt.Sprintf("%s:%d", s.Config.Host, s.Config.Port)
	s.Logger.Info("Starting API server on %s", addr)

	s.startHub()

	s.stateMutex.Lock()
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.httpSrv
	s.stateMutex.Unlock()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// -----------------------------------------------------------------------------

func (s *APIServer) Stop() error {
	s.stopOnce.Do(func() { close(s.stop) })

	s.stateMutex.RLock()
	srv := s.httpSrv
	s.stateMutex.RUnlock()
	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// -----------------------------------------------------------------------------
// Route Handlers
// -----------------------------------------------------------------------------

func (s *APIServer) getAllMetrics(c *gin.Context) {
	ctx := c.Request.Context()

	snapshots := make(map[string]models.MSymbolSnapshot)
	for _, symbol := range s.Reader.Symbols() {
		if snap, found := s.Reader.GetLatestMetrics(ctx, symbol); found {
			snapshots[symbol] = snap
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"symbols":   snapshots,
		"count":     len(snapshots),
		"timestamp": time.Now().Unix(),
	})
}

// -----------------------------------------------------------------------------

func (s *APIServer) getMetrics(c *gin.Context) {
	symbol := c.Param("symbol")

	snap, found := s.Reader.GetLatestMetrics(c.Request.Context(), symbol)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("no metrics for %s", symbol)})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// -----------------------------------------------------------------------------

// getHistory takes from/to as unix seconds and defaults to the last hour.
func (s *APIServer) getHistory(c *gin.Context) {
	symbol := c.Param("symbol")
	now := time.Now().UTC()

	to, err := parseUnixParam(c.Query("to"), now)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'to': " + err.Error()})
		return
	}
	from, err := parseUnixParam(c.Query("from"), to.Add(-time.Hour))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'from': " + err.Error()})
		return
	}
	if to.Before(from) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "'from' must not be after 'to'"})
		return
	}

	snapshots := s.Reader.GetHistorical(c.Request.Context(), symbol, from, to)
	if snapshots == nil {
		snapshots = []models.MSymbolSnapshot{}
	}
	c.JSON(http.StatusOK, gin.H{
		"symbol":    symbol,
		"from":      from.Unix(),
		"to":        to.Unix(),
		"snapshots": snapshots,
	})
}

// -----------------------------------------------------------------------------

func (s *APIServer) getConfig(c *gin.Context) {
	g := s.Config.Generator
	c.JSON(http.StatusOK, gin.H{
		"symbols":                 s.Reader.Symbols(),
		"windows":                 g.Windows,
		"update_interval_seconds": g.UpdateIntervalSeconds,
		"baseline_hours":          g.BaselineHours,
		"memory_ttl_seconds":      s.Config.Cache.MemoryTTLSeconds,
		"retention_hours":         s.Config.Cache.RetentionHours,
	})
}

// -----------------------------------------------------------------------------

func (s *APIServer) getHealth(c *gin.Context) {
	s.stateMutex.RLock()
	connections := s.connections
	latest := s.latestUpdate
	s.stateMutex.RUnlock()

	status := "unknown"
	if s.Status != nil {
		status = s.Status()
	}
	marketsOpen := true
	if s.MarketsOpen != nil {
		marketsOpen = s.MarketsOpen()
	}

	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"generator":     status,
		"markets_open":  marketsOpen,
		"connections":   connections,
		"latest_update": latest,
	})
}
