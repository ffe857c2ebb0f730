// Package api exposes the automation pipeline over HTTP.
package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"clipflow/internal/automation"
)

type Server struct {
	orchestrator  *automation.Orchestrator
	poller        *automation.Poller
	operatorToken string
}

type Options struct {
	Orchestrator *automation.Orchestrator
	Poller       *automation.Poller

	// OperatorToken guards the approval and force-failure endpoints. When
	// empty those endpoints are disabled.
	OperatorToken string
}

func NewServer(opts Options) *Server {
	return &Server{
		orchestrator:  opts.Orchestrator,
		poller:        opts.Poller,
		operatorToken: opts.OperatorToken,
	}
}

// Routes builds the gin engine with all endpoints registered.
func (s *Server) Routes() *gin.Engine {
	engine := gin.New()
	engine.Use(requestLogger(), gin.Recovery())

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := engine.Group("/api")
	api.POST("/requests", s.createRequest)
	api.GET("/requests", s.listRequests)
	api.GET("/requests/:id", s.getRequest)
	api.POST("/requests/:id/generate", s.generate)
	api.POST("/requests/:id/render", s.submitRender)
	api.POST("/requests/:id/publish", s.publishRequest)
	api.POST("/requests/:id/retry", s.retry)
	api.POST("/poll", s.pollNow)

	operator := api.Group("", s.requireOperator)
	operator.POST("/requests/:id/approve", s.approve)
	operator.POST("/requests/:id/force-render-failed", s.forceRenderFailed)

	return engine
}

func (s *Server) createRequest(c *gin.Context) {
	var input automation.SubmitInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	request, err := s.orchestrator.Submit(c.Request.Context(), input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, request)
}

func (s *Server) listRequests(c *gin.Context) {
	var filter automation.Filter

	if status := c.Query("status"); status != "" {
		if !automation.IsValidStatus(automation.Status(status)) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status " + strconv.Quote(status)})
			return
		}
		filter.Status = automation.Status(status)
	}
	if limit := c.Query("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		filter.Limit = n
	}

	requests, err := s.orchestrator.List(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	if requests == nil {
		requests = []*automation.AutomationRequest{}
	}
	c.JSON(http.StatusOK, gin.H{"requests": requests})
}

func (s *Server) getRequest(c *gin.Context) {
	request, err := s.orchestrator.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, request)
}

func (s *Server) generate(c *gin.Context) {
	s.run(c, s.orchestrator.Generate)
}

func (s *Server) submitRender(c *gin.Context) {
	s.run(c, s.orchestrator.SubmitRender)
}

func (s *Server) approve(c *gin.Context) {
	s.run(c, s.orchestrator.Approve)
}

func (s *Server) publishRequest(c *gin.Context) {
	s.run(c, s.orchestrator.Publish)
}

func (s *Server) retry(c *gin.Context) {
	s.run(c, s.orchestrator.Retry)
}

func (s *Server) forceRenderFailed(c *gin.Context) {
	s.run(c, s.orchestrator.ForceRenderFailed)
}

// run executes a lifecycle operation on the request named in the path and
// writes the updated record.
func (s *Server) run(c *gin.Context, op func(ctx context.Context, id string) (*automation.AutomationRequest, error)) {
	request, err := op(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, request)
}

func (s *Server) pollNow(c *gin.Context) {
	stats, err := s.poller.RunOnce(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// requireOperator guards endpoints that represent a human decision.
func (s *Server) requireOperator(c *gin.Context) {
	if s.operatorToken == "" {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "operator token not configured"})
		return
	}

	got := c.GetHeader("Authorization")
	want := "Bearer " + s.operatorToken
	if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid operator token"})
		return
	}

	c.Next()
}

func writeError(c *gin.Context, err error) {
	switch {
	case automation.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case automation.IsInvalidState(err), automation.IsConflict(err), errors.Is(err, automation.ErrCycleInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, automation.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		slog.Error("Request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Info("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
