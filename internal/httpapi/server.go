// Package httpapi exposes the question-answering pipeline over HTTP with gin.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"campusqa/internal/domain"
	"campusqa/internal/logger"
	"campusqa/internal/service"
)

// Service is the part of the pipeline the API calls.
type Service interface {
	Ask(ctx context.Context, query string) (*service.Result, error)
	Stats(ctx context.Context) (domain.CollectionInfo, error)
}

// Handler serves the chat endpoints.
type Handler struct {
	svc     Service
	timeout time.Duration
}

// NewHandler returns a handler. A positive timeout bounds each request.
func NewHandler(svc Service, timeout time.Duration) *Handler {
	return &Handler{svc: svc, timeout: timeout}
}

// Register attaches the routes to r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/healthz", h.health)
	api := r.Group("/api")
	api.POST("/ask", h.ask)
	api.GET("/stats", h.stats)
}

// NewRouter builds an engine with recovery, request logging and the chat routes.
func NewRouter(svc Service, timeout time.Duration) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Recovery(), requestLogger())
	NewHandler(svc, timeout).Register(r)
	return r
}

type askRequest struct {
	Query string `json:"query"`
}

type sourceResponse struct {
	ID        string          `json:"id"`
	SourceURL string          `json:"source_url"`
	Score     float64         `json:"score"`
	Excerpt   string          `json:"excerpt"`
	Metadata  domain.Metadata `json:"metadata"`
}

type askResponse struct {
	Answer    string           `json:"answer"`
	Sources   []sourceResponse `json:"sources"`
	ElapsedMS int64            `json:"elapsed_ms"`
}

func (h *Handler) ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Query) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request body must be {\"query\": \"...\"}"})
		return
	}

	ctx := c.Request.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}
	res, err := h.svc.Ask(ctx, req.Query)
	if err != nil {
		writeError(c, err)
		return
	}

	out := askResponse{
		Answer:    res.Answer,
		Sources:   make([]sourceResponse, len(res.Sources)),
		ElapsedMS: res.Elapsed.Milliseconds(),
	}
	for i, s := range res.Sources {
		md := s.Passage.Metadata
		if md == nil {
			md = domain.Metadata{}
		}
		out.Sources[i] = sourceResponse{
			ID:        s.Passage.ID,
			SourceURL: s.Passage.SourceURL,
			Score:     float64(s.Relevance),
			Excerpt:   s.Excerpt,
			Metadata:  md,
		}
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) stats(c *gin.Context) {
	info, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"collection": info.Name,
		"model":      info.Model.Name,
		"dimension":  info.Model.Dimension,
		"count":      info.Count,
	})
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// StatusFor maps a pipeline error onto an HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrEmptyInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrBackendUnavailable), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "path", c.FullPath(), "status", status, "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).Round(time.Millisecond))
	}
}

// Run serves handler on addr until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
