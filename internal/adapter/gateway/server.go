package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"

	"tutor-dispatch/internal/infra/config"
	"tutor-dispatch/internal/infra/middleware"
)

// Server is the HTTP API in front of the tutor.
type Server struct {
	cfg       config.ServerConfig
	handler   http.Handler
	httpSrv   *http.Server
	logger    *slog.Logger
	boundAddr string
	mu        sync.Mutex
}

var registerValidators = sync.OnceFunc(func() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("notblank", validators.NotBlank)
	}
})

// NewServer builds the router and middleware stack. ctx bounds background
// work such as the rate limiter's cleanup loop.
func NewServer(ctx context.Context, cfg config.ServerConfig, deps HandlerDeps, logger *slog.Logger) *Server {
	registerValidators()

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(logger))
	engine.Use(cors.New(corsConfig(cfg.CORS)))
	registerRoutes(engine, deps, cfg.DebugEndpoints)

	mws := []func(http.Handler) http.Handler{middleware.RequestID, middleware.SecurityHeaders}
	if cfg.RateLimit.Enabled {
		mws = append(mws, middleware.RateLimit(ctx, middleware.RateLimitConfig{
			RequestsPerMin: cfg.RateLimit.RequestsPerMinute,
			BurstSize:      cfg.RateLimit.Burst,
			TrustedProxies: cfg.RateLimit.TrustedProxies,
		}))
	}

	return &Server{
		cfg:     cfg,
		handler: middleware.Chain(engine, mws...),
		logger:  logger,
	}
}

// Handler exposes the full middleware stack, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.handler }

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
	}
	s.mu.Lock()
	s.httpSrv = srv
	s.boundAddr = listener.Addr().String()
	s.mu.Unlock()

	s.logger.Info("gateway started", "addr", listener.Addr().String())

	go func() {
		<-ctx.Done()
		if err := s.Stop(context.Background()); err != nil {
			s.logger.Warn("gateway shutdown", "error", err)
		}
	}()

	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("gateway serve: %w", err)
	}
	return nil
}

// Stop drains in-flight requests for up to server.shutdown_timeout.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpSrv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	s.logger.Info("gateway stopping")
	return srv.Shutdown(shutdownCtx)
}

// BoundAddr returns the listening address. Only valid after Start.
func (s *Server) BoundAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boundAddr
}

func corsConfig(c config.CORSConfig) cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowHeaders = append(cfg.AllowHeaders, middleware.HeaderRequestID)
	cfg.ExposeHeaders = []string{middleware.HeaderRequestID}
	if len(c.AllowedOrigins) == 0 || slices.Contains(c.AllowedOrigins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = c.AllowedOrigins
	}
	return cfg
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"request_id", middleware.RequestIDFrom(c.Request.Context()),
		)
	}
}
