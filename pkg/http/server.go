package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"OrgTrader/pkg/http/middleware"
	applogger "OrgTrader/pkg/logger"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type ServerOption func(*ServerConfig)

type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CORS            bool
	MetricsPath     string // empty disables request metrics and the scrape endpoint
	SlowThreshold   time.Duration
	Registry        *prometheus.Registry
	RateBurst       float64 // per client IP; zero disables rate limiting
	RatePerSec      float64
}

// Handler registers its routes on the shared echo instance.
type Handler interface {
	RegisterRoutes(e *echo.Echo)
}

// Server is the read-only API plus the Prometheus scrape endpoint on one listener.
type Server struct {
	echo *echo.Echo
	cfg  ServerConfig
	l    *applogger.Logger
	addr chan string
}

func NewServer(handler Handler, l *applogger.Logger, opts ...ServerOption) *Server {
	cfg := ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		CORS:            true,
		MetricsPath:     "/metrics",
		SlowThreshold:   time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout

	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.Recover(l))
	e.Use(middleware.RequestLogging(l))
	if cfg.RateBurst > 0 {
		e.Use(middleware.RateLimit(middleware.NewLimiter(cfg.RateBurst, cfg.RatePerSec), l))
	}
	if cfg.MetricsPath != "" {
		var reg prometheus.Registerer = prometheus.DefaultRegisterer
		var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
		if cfg.Registry != nil {
			reg, gatherer = cfg.Registry, cfg.Registry
		}
		e.Use(middleware.Metrics(middleware.NewHTTPMetrics(reg), l, cfg.SlowThreshold))
		e.GET(cfg.MetricsPath, echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	if cfg.CORS {
		e.Use(middleware.CORS(middleware.CORSConfig{
			AllowOrigins: []string{"*"},
			AllowMethods: []string{http.MethodGet, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
			MaxAge:       600,
		}))
	}
	if handler != nil {
		handler.RegisterRoutes(e)
	}

	return &Server{echo: e, cfg: cfg, l: l, addr: make(chan string, 1)}
}

// Start binds the listener synchronously, so a taken port fails here, then serves in the
// background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port))
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	s.echo.Listener = ln
	s.addr <- ln.Addr().String()
	s.info("http server listening", applogger.String("addr", ln.Addr().String()))

	go func() {
		if err := s.echo.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) && s.l != nil {
			s.l.Error("http server error", applogger.Error(err))
		}
	}()
	return nil
}

// Addr blocks until Start has bound the listener and returns its address.
func (s *Server) Addr() string {
	a := <-s.addr
	s.addr <- a
	return a
}

// Stop drains in-flight requests for at most ShutdownTimeout.
func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.info("http server stopped")
	return nil
}

func (s *Server) Echo() *echo.Echo { return s.echo }

func (s *Server) info(msg string, fields ...applogger.Field) {
	if s.l != nil {
		s.l.Info(msg, fields...)
	}
}

func WithHost(host string) ServerOption {
	return func(c *ServerConfig) { c.Host = host }
}

func WithPort(port int) ServerOption {
	return func(c *ServerConfig) { c.Port = port }
}

func WithTimeouts(read, write, shutdown time.Duration) ServerOption {
	return func(c *ServerConfig) {
		c.ReadTimeout = read
		c.WriteTimeout = write
		c.ShutdownTimeout = shutdown
	}
}

func WithCORS(enabled bool) ServerOption {
	return func(c *ServerConfig) { c.CORS = enabled }
}

// WithMetricsPath sets the scrape path. Empty disables HTTP metrics.
func WithMetricsPath(path string) ServerOption {
	return func(c *ServerConfig) { c.MetricsPath = path }
}

// WithRegistry uses reg for HTTP metrics and the scrape endpoint instead of the default registry.
func WithRegistry(reg *prometheus.Registry) ServerOption {
	return func(c *ServerConfig) { c.Registry = reg }
}

// WithRateLimit allows burst requests per client IP, refilled at perSec.
func WithRateLimit(burst, perSec float64) ServerOption {
	return func(c *ServerConfig) {
		c.RateBurst = burst
		c.RatePerSec = perSec
	}
}
