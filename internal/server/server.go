package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ai-gateway/chatstream-go/internal/config"
	"github.com/ai-gateway/chatstream-go/internal/guardrails"
	"github.com/ai-gateway/chatstream-go/internal/provider"
	"github.com/ai-gateway/chatstream-go/internal/provider/echo"
	"github.com/ai-gateway/chatstream-go/internal/routing"
	"github.com/ai-gateway/chatstream-go/internal/sse"
)

const contentTypeNDJSON = "application/x-ndjson"

// Server is a mock chat backend answering in SSE, NDJSON or a single JSON
// document.
type Server struct {
	cfg    *config.Config
	engine *gin.Engine
	router *routing.Router
	guards *guardrails.Guardrails
	log    zerolog.Logger
}

func New(cfg *config.Config) *Server {
	r := gin.New()
	rt := routing.New()
	rt.Register("echo", echo.New(cfg.ChunkDelay))
	srv := &Server{
		cfg:    cfg,
		engine: r,
		router: rt,
		guards: guardrails.New(cfg.Banned...),
		log:    log.With().Str("component", "server").Logger(),
	}
	r.Use(gin.Recovery(), srv.accessLog)
	srv.registerRoutes()
	return srv
}

func (s *Server) registerRoutes() {
	api := s.engine.Group("/v1")
	api.POST("/chat/completions", s.chatCompletion)
	api.GET("/models", s.listModels)
}

// Handler exposes the routes, e.g. for httptest.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Address,
		Handler: s.engine,
	}
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()
	s.log.Info().Str("address", s.cfg.Address).Msg("listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) accessLog(c *gin.Context) {
	t0 := time.Now()
	c.Next()
	s.log.Debug().
		Str("method", c.Request.Method).
		Str("path", c.Request.URL.Path).
		Int("status", c.Writer.Status()).
		Dur("took", time.Since(t0)).
		Str("request_id", c.GetHeader("X-Request-Id")).
		Msg("request")
}

func (s *Server) chatCompletion(c *gin.Context) {
	var req provider.Params
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if err := s.guards.CheckParams(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	prov := s.router.ProviderFor(req.Model)
	stream, err := prov.Chat(c.Request.Context(), &req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	switch {
	case !req.Stream:
		var b strings.Builder
		for d := range stream {
			b.WriteString(d.Content)
		}
		c.JSON(http.StatusOK, gin.H{"choices": []provider.Message{{Role: provider.RoleAssistant, Content: b.String()}}})
	case strings.Contains(c.GetHeader("Accept"), contentTypeNDJSON):
		s.writeNDJSON(c, stream)
	default:
		s.writeSSE(c, stream)
	}
}

func (s *Server) writeSSE(c *gin.Context, stream <-chan provider.Delta) {
	c.Writer.Header().Set("Content-Type", sse.ContentType)
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()
	i := 0
	for d := range stream {
		data, err := json.Marshal(d)
		if err != nil {
			return
		}
		i++
		if _, err := fmt.Fprint(c.Writer, sse.Format(sse.Event{ID: fmt.Sprint(i), Data: string(data)})); err != nil {
			return
		}
		c.Writer.Flush()
	}
	_, _ = fmt.Fprint(c.Writer, sse.Format(sse.Event{Data: sse.DoneData}))
	c.Writer.Flush()
}

func (s *Server) writeNDJSON(c *gin.Context, stream <-chan provider.Delta) {
	c.Writer.Header().Set("Content-Type", contentTypeNDJSON)
	c.Writer.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(c.Writer)
	for d := range stream {
		if err := enc.Encode(d); err != nil {
			return
		}
		c.Writer.Flush()
	}
	_ = enc.Encode(provider.Delta{Done: true})
	c.Writer.Flush()
}

func (s *Server) listModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"models": s.router.Models()})
}
