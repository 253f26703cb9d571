package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/friendlyhq/friendly/pkg/tracing"
)

func (s *Server) handleTraces(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"project":       s.cfg.WeaveProject,
		"weave_enabled": s.cfg.WandbAPIKey != "",
		"performance":   s.tracer.PerformanceSummary(),
		"improvement":   s.tracer.ImprovementData(),
		"recent_traces": s.tracer.RecentTraces("", 10),
	})
}

func (s *Server) handleTracesPerformance(c *gin.Context) {
	c.JSON(http.StatusOK, s.tracer.PerformanceSummary())
}

func (s *Server) handleTracesImprovement(c *gin.Context) {
	c.JSON(http.StatusOK, s.tracer.ImprovementData())
}

func (s *Server) handleTracesRecent(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 1 && n <= 100 {
			limit = n
		}
	}
	c.JSON(http.StatusOK, s.tracer.RecentTraces(c.Query("operation"), limit))
}

func (s *Server) handleTracesBlitz(c *gin.Context) {
	calls := s.tracer.RecentTraces("blitz_call", 50)
	sessions := s.tracer.RecentTraces("blitz_session", 20)
	performance := s.tracer.PerformanceSummary()

	c.JSON(http.StatusOK, gin.H{
		"blitz_insights":  performance["blitz_insights"],
		"recent_calls":    tail(calls, 10),
		"recent_sessions": tail(sessions, 5),
		"total_calls":     len(calls),
		"total_sessions":  len(sessions),
	})
}

func tail(traces []tracing.Trace, n int) []tracing.Trace {
	if len(traces) <= n {
		return traces
	}
	return traces[len(traces)-n:]
}
