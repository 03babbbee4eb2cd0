package observability

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const defaultMetricsShutdownTimeout = 5 * time.Second

type MetricsServerConfig struct {
	Port            uint
	ShutdownTimeout time.Duration
}

func (c *MetricsServerConfig) validate() error {
	if c.Port == 0 {
		return errors.New("MetricsServerConfig field Port cannot equal to 0")
	}

	return nil
}

type MetricsServerDependencies struct {
	// promhttp.Handler() when nil
	Handler http.Handler
	Logger  *zerolog.Logger
}

// MetricsServer exposes /metrics for processes that have no other http surface.
type MetricsServer struct {
	config MetricsServerConfig
	engine *gin.Engine
	logger zerolog.Logger
}

func NewMetricsServer(config MetricsServerConfig, dependencies MetricsServerDependencies) (*MetricsServer, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = defaultMetricsShutdownTimeout
	}

	logger := zerolog.Nop()
	if dependencies.Logger != nil {
		logger = dependencies.Logger.With().Str("component", "metricsserver").Logger()
	}

	handler := dependencies.Handler
	if handler == nil {
		handler = promhttp.Handler()
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	engine.GET("/metrics", gin.WrapH(handler))

	return &MetricsServer{
		config: config,
		engine: engine,
		logger: logger,
	}, nil
}

func (s *MetricsServer) Handler() http.Handler {
	return s.engine
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *MetricsServer) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		return err
	}

	return s.serve(ctx, lis)
}

func (s *MetricsServer) serve(ctx context.Context, lis net.Listener) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(lis)
	}()
	s.logger.Info().Str("addr", lis.Addr().String()).Msg("metrics server running")

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
