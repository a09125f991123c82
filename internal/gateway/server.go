package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/config"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/logging"
)

// Server wraps the gateway with HTTP server functionality
type Server struct {
	gateway     *Gateway
	config      *config.Config
	httpServer  *http.Server
	adminServer *http.Server
	startTime   time.Time
}

// NewServer creates a new gateway server.
func NewServer(cfg *config.Config) (*Server, error) {
	gw, err := New(cfg)
	if err != nil {
		return nil, err
	}

	s := &Server{
		gateway:   gw,
		config:    cfg,
		startTime: time.Now(),
	}

	s.httpServer = &http.Server{
		Addr:              cfg.Listen.Address,
		Handler:           gw.Handler(),
		ReadTimeout:       cfg.Listen.ReadTimeout,
		ReadHeaderTimeout: cfg.Listen.ReadHeaderTimeout,
		WriteTimeout:      cfg.Listen.WriteTimeout,
		IdleTimeout:       cfg.Listen.IdleTimeout,
		MaxHeaderBytes:    cfg.Listen.MaxHeaderBytes,
	}

	// Configure admin server if enabled
	if cfg.Admin.Enabled {
		s.adminServer = &http.Server{
			Addr:         cfg.Admin.Address,
			Handler:      s.adminHandler(),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
	}

	return s, nil
}

// Gateway returns the underlying gateway
func (s *Server) Gateway() *Gateway {
	return s.gateway
}

// Run serves until ctx is cancelled or SIGINT/SIGTERM arrives, then drains
// in-flight requests for up to listen.shutdown_timeout.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		logging.Info("Starting gateway listener", zap.String("address", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("gateway listener: %w", err)
		}
		return nil
	})

	if s.adminServer != nil {
		eg.Go(func() error {
			logging.Info("Starting admin server", zap.String("address", s.adminServer.Addr))
			if err := s.adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("admin server: %w", err)
			}
			return nil
		})
	}

	eg.Go(func() error {
		return s.gateway.Run(ctx)
	})

	eg.Go(func() error {
		<-ctx.Done()
		logging.Info("Shutting down gracefully...")
		return s.Shutdown(s.config.Listen.ShutdownTimeout)
	})

	return eg.Wait()
}

// Shutdown gracefully shuts down the servers
func (s *Server) Shutdown(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Stop accepting traffic first, then the admin API
	if err := s.httpServer.Shutdown(ctx); err != nil {
		logging.Error("Gateway listener shutdown error", zap.Error(err))
	}
	if s.adminServer != nil {
		if err := s.adminServer.Shutdown(ctx); err != nil {
			logging.Error("Admin server shutdown error", zap.Error(err))
		}
	}

	// Close gateway
	if err := s.gateway.Close(); err != nil {
		logging.Error("Gateway close error", zap.Error(err))
		return err
	}

	logging.Info("Server shutdown complete")
	return nil
}
