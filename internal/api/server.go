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
	"github.com/rs/zerolog/log"

	"github.com/sagereplay/sagereplay/internal/config"
	"github.com/sagereplay/sagereplay/internal/db"
	"github.com/sagereplay/sagereplay/internal/events"
	"github.com/sagereplay/sagereplay/internal/session"
)

// Server is the REST front end. It runs sessions on request and serves
// the session history.
type Server struct {
	cfg      *config.Config
	eventBus *events.EventBus
	runner   *session.Runner
	store    *db.SessionStore

	httpServer *http.Server
	router     *gin.Engine
}

// NewServer creates a new API server. store may be nil when history is
// disabled.
func NewServer(cfg *config.Config, eventBus *events.EventBus, runner *session.Runner, store *db.SessionStore) *Server {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	return &Server{
		cfg:      cfg,
		eventBus: eventBus,
		runner:   runner,
		store:    store,
	}
}

// Start serves the API until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.router = s.buildRouter()

	addr := fmt.Sprintf(":%d", s.cfg.API.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// A workflow run makes six sequential gateway calls.
		WriteTimeout: 6*s.cfg.RequestTimeout() + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	useTLS := s.cfg.API.TLSCertFile != "" && s.cfg.API.TLSKeyFile != ""
	if useTLS {
		s.httpServer.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			CipherSuites: []uint16{
				tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
				tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			},
		}
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("API server error: %w", err)
	}

	log.Info().Str("addr", addr).Bool("tls", useTLS).Msg("REST API server starting")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if useTLS {
		err = s.httpServer.ServeTLS(ln, s.cfg.API.TLSCertFile, s.cfg.API.TLSKeyFile)
	} else {
		err = s.httpServer.Serve(ln)
	}

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
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

	allowedOrigins := s.cfg.API.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Must be false when AllowOrigins is "*"
		MaxAge:           12 * time.Hour,
	}))

	rateLimiter := NewRateLimiter(s.cfg.API.RateLimitRPS)
	router.Use(rateLimiter.Middleware())

	public := router.Group("/api/public")
	{
		public.GET("/ping", s.handlePing)
		public.GET("/version", s.handleGetVersion)
		public.GET("/system_info", s.handleGetSystemInfo)
	}

	apiGroup := router.Group("/api")
	{
		apiGroup.POST("/workflow", s.handleRunWorkflow)
		apiGroup.GET("/workflow/last", s.handleGetLastRun)
		apiGroup.GET("/characters", s.handleGetCharacters)
		apiGroup.GET("/sessions", s.handleListSessions)
		apiGroup.GET("/sessions/:id", s.handleGetSession)
		apiGroup.GET("/config", s.handleGetConfig)
	}

	monitor := router.Group("/api/monitor")
	{
		monitor.GET("/usage", s.handleGetUsage)
	}

	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "sagereplay API is running"})
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
