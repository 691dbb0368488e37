// Package server exposes the orchestrator over an embedded HTTP API:
// status, trigger, cancellation, health, and metrics endpoints for
// dashboards or chat hooks. It is a thin adapter; all behavior lives in the
// orchestrator.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loykin/pipeflow/internal/engine"
	"github.com/loykin/pipeflow/internal/health"
	"github.com/loykin/pipeflow/internal/pipeline"
	"github.com/loykin/pipeflow/pkg/orchestrator"
)

// Server wraps a gin engine bound to one orchestrator.
type Server struct {
	orch   *orchestrator.Orchestrator
	router *gin.Engine
}

// New creates a Server for the given orchestrator.
func New(orch *orchestrator.Orchestrator) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		orch:   orch,
		router: gin.New(),
	}
	s.router.Use(gin.Recovery())
	s.routes()
	return s
}

// Handler returns the underlying http.Handler so callers can mount it in
// their own server.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves on the given address until the listener fails.
func (s *Server) Run(addr string) error { return s.router.Run(addr) }

func (s *Server) routes() {
	s.router.GET("/runs", s.listRuns)
	s.router.GET("/runs/:id", s.getRun)
	s.router.POST("/runs/:id/cancel", s.cancelRun)
	s.router.POST("/trigger/:type", s.trigger)
	s.router.GET("/health", s.health)
	s.router.GET("/metrics", s.metrics)
}

type runResponse struct {
	ID       string          `json:"id"`
	Pipeline string          `json:"pipeline"`
	Status   string          `json:"status"`
	Started  *time.Time      `json:"started,omitempty"`
	Ended    *time.Time      `json:"ended,omitempty"`
	Stages   []stageResponse `json:"stages,omitempty"`
	Error    string          `json:"error,omitempty"`
}

type stageResponse struct {
	Name    string `json:"name"`
	Success bool   `json:"success"`
	Tasks   int    `json:"tasks"`
}

func (s *Server) listRuns(c *gin.Context) {
	snaps := s.orch.Runs().List()
	out := make([]runResponse, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, toRunResponse(snap, false))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) getRun(c *gin.Context) {
	snap, ok := s.orch.Runs().Snapshot(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	c.JSON(http.StatusOK, toRunResponse(snap, true))
}

func (s *Server) cancelRun(c *gin.Context) {
	if err := s.orch.CancelRun(c.Param("id")); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

func (s *Server) trigger(c *gin.Context) {
	typ := pipeline.Type(c.Param("type"))
	if !typ.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown pipeline type"})
		return
	}

	// Triggered runs execute synchronously within the request; callers
	// wanting fire-and-forget should poll /runs instead of waiting.
	rec, err := s.orch.TriggerPipeline(context.WithoutCancel(c.Request.Context()), typ)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, toRunResponse(rec.Snapshot(), true))
}

func (s *Server) health(c *gin.Context) {
	report := s.orch.Health().Check()
	code := http.StatusOK
	if report.Overall != health.StatusHealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":     report.Overall,
		"components": report.Components,
	})
}

func (s *Server) metrics(c *gin.Context) {
	tracker := s.orch.Metrics()
	c.JSON(http.StatusOK, gin.H{
		"success_rate": tracker.SuccessRate(),
		"pipelines":    tracker.ByPipeline(),
	})
}

func toRunResponse(snap engine.Snapshot, detail bool) runResponse {
	out := runResponse{
		ID:       snap.ID,
		Pipeline: snap.Pipeline.String(),
		Status:   snap.Status.String(),
	}
	if !snap.StartTime.IsZero() {
		t := snap.StartTime
		out.Started = &t
	}
	if !snap.EndTime.IsZero() {
		t := snap.EndTime
		out.Ended = &t
	}
	if snap.Failure != nil {
		out.Error = snap.Failure.Error
	}
	if detail {
		for _, st := range snap.Stages {
			out.Stages = append(out.Stages, stageResponse{
				Name:    st.Name,
				Success: st.Success,
				Tasks:   len(st.Tasks),
			})
		}
	}
	return out
}
