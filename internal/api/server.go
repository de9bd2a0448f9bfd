// Package api exposes the Messenger webhook plus health and metrics
// endpoints.
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/dharsanguruparan/ReelDrop/internal/logging"
	"github.com/dharsanguruparan/ReelDrop/internal/model"
)

// EventSink accepts inbound events for asynchronous processing.
type EventSink interface {
	Submit(ev model.InboundEvent) bool
}

// Server exposes HTTP endpoints for the webhook.
type Server struct {
	address     string
	verifyToken string
	sink        EventSink
	engine      *gin.Engine
	server      *http.Server
	once        sync.Once
	log         zerolog.Logger
}

// New constructs a Server.
func New(address, verifyToken string, sink EventSink) *Server {
	s := &Server{
		address:     address,
		verifyToken: verifyToken,
		sink:        sink,
		log:         logging.Component("api"),
	}
	s.engine = s.routes()
	return s
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), s.accessLog())
	r.GET("/healthz", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/webhook", s.handleVerify)
	r.POST("/webhook", s.handleEvents)
	return r
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.once.Do(func() {
		s.server = &http.Server{
			Addr:              s.address,
			Handler:           s.engine,
			ReadHeaderTimeout: 10 * time.Second,
		}
	})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()
	s.log.Info().Str("address", s.address).Msg("API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
