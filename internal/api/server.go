// Package api exposes the attestation core over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/wormhole-demo/attestor/internal/core"
)

type Server struct {
	logger *zap.Logger
	core   *core.Core
	r      *gin.Engine
}

func NewServer(logger *zap.Logger, c *core.Core) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{
		logger: logger.With(zap.String("component", "APIServer")),
		core:   c,
		r:      r,
	}
	r.Use(s.logRequests)
	s.routes()
	return s
}

func (s *Server) routes() {
	s.r.GET("/health", s.handleHealth)
	s.r.POST("/verify", s.handleVerify)
	s.r.POST("/vaas", s.handleSubmitVAA)
	s.r.POST("/observations", s.handleSubmitObservation)
	s.r.GET("/committed/:chain/:emitter/:sequence", s.handleCommitted)
	s.r.GET("/pending/:chain/:emitter/:sequence", s.handlePending)
	s.r.GET("/guardian-sets/current", s.handleCurrentGuardianSet)
	s.r.GET("/guardian-sets/:index", s.handleGuardianSet)
	s.r.GET("/emitters/:chain", s.handleEmitter)
	s.r.NoRoute(func(c *gin.Context) {
		writeAPIError(c, http.StatusNotFound, codeNotFound, "route not found")
	})
}

func (s *Server) Handler() http.Handler {
	return s.r
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func (s *Server) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.logger.Debug("Request",
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Int("status", c.Writer.Status()),
		zap.Duration("latency", time.Since(start)),
	)
}
