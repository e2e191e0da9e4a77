package api

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/hearthlink/hearthlink/internal/config"
	"github.com/hearthlink/hearthlink/internal/db"
	"github.com/hearthlink/hearthlink/internal/network"
	"github.com/hearthlink/hearthlink/internal/protocol"
	"github.com/hearthlink/hearthlink/internal/util"
)

// Engine is the connection the API inspects and drives.
// *network.Client implements it.
type Engine interface {
	Stats() network.Stats
	NewCommand(id int) (protocol.Command, error)
	SendCommand(cmd protocol.Command) error
	Commands() *protocol.Registry[protocol.Command]
	Replies() *protocol.Registry[protocol.Reply]
}

// Journal is the session history the API reads.
type Journal interface {
	Recent(ctx context.Context, limit int) ([]db.Session, error)
	RecentChat(ctx context.Context, limit int) ([]db.ChatLine, error)
}

// Options carries what the server reports on besides the engine.
type Options struct {
	Version  string
	Config   *config.Config
	Journal  Journal             // nil when the journal is disabled
	Gatherer prometheus.Gatherer // nil disables /metrics
	LogDir   string
}

// Server is the local diagnostics API.
type Server struct {
	cfg    config.APIConfig
	engine Engine
	opts   Options

	httpServer *http.Server
	router     *gin.Engine
}

// NewServer creates the API server and builds its router.
func NewServer(cfg config.APIConfig, engine Engine, opts Options) *Server {
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:    cfg,
		engine: engine,
		opts:   opts,
	}
	s.router = s.buildRouter()
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	addr := s.cfg.Address()
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("API server error: %w", err)
	}

	if s.cfg.TLSEnabled {
		if err := util.EnsureSelfSignedCert(s.cfg.CertFile, s.cfg.KeyFile); err != nil {
			ln.Close()
			return fmt.Errorf("failed to prepare API certificate: %w", err)
		}
		cert, err := tls.LoadX509KeyPair(s.cfg.CertFile, s.cfg.KeyFile)
		if err != nil {
			ln.Close()
			return fmt.Errorf("failed to load API certificate: %w", err)
		}
		s.httpServer.TLSConfig = &tls.Config{
			MinVersion:   tls.VersionTLS12,
			Certificates: []tls.Certificate{cert},
		}
		ln = tls.NewListener(ln, s.httpServer.TLSConfig)
	}

	log.Info().Str("addr", addr).Bool("tls", s.cfg.TLSEnabled).Msg("diagnostics API starting")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("API server error: %w", err)
	}
	return nil
}

// buildRouter creates the Gin router with all routes and middleware.
func (s *Server) buildRouter() *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(RequestLogger())
	router.Use(SecurityHeaders())

	allowedOrigins := s.cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // must be false when AllowOrigins is "*"
		MaxAge:           12 * time.Hour,
	}))

	rateLimiter := NewRateLimiter(s.cfg.RateLimitRPS)
	router.Use(rateLimiter.Middleware())

	api := router.Group("/api")
	{
		api.GET("/ping", s.handlePing)
		api.GET("/version", s.handleGetVersion)
		api.GET("/system", s.handleGetSystem)

		api.GET("/status", s.handleGetStatus)
		api.GET("/ids", s.handleGetIDs)
		api.GET("/sessions", s.handleGetSessions)
		api.GET("/chat", s.handleGetChat)
		api.GET("/cpu", s.handleGetCPUUsage)
		api.GET("/memory", s.handleGetMemoryUsage)
		api.GET("/logs", s.handleGetLogEntries)
		api.GET("/config", s.handleGetConfig)
	}

	control := router.Group("/api")
	control.Use(RequireToken(s.cfg.Token))
	{
		control.POST("/talk", s.handleTalk)
		control.POST("/move", s.handleMove)
		control.POST("/turn", s.handleTurn)
	}

	if s.opts.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})))
	}

	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Hearthlink diagnostics API is running"})
	})

	return router
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
