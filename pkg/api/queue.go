package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/friendlyhq/friendly/pkg/events"
	"github.com/friendlyhq/friendly/pkg/models"
)

func (s *Server) handleQueueStream(c *gin.Context) {
	sessionID := c.Param("session_id")

	initial := ""
	if session, ok := s.queue.LoadSession(c.Request.Context(), sessionID); ok {
		initial = formatSSE(events.TypeSessionStart, map[string]any{
			"session_id": sessionID,
			"phase":      session.Phase,
			"business":   session.BusinessName,
		})
	}

	s.streamEvents(c, models.AgentQueue, sessionID, initial)
}

func (s *Server) handleQueueSession(c *gin.Context) {
	session, ok := s.queue.LoadSession(c.Request.Context(), c.Param("session_id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"status": "not_found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id":     session.ID,
		"phase":          session.Phase,
		"business":       session.BusinessName,
		"phone":          session.PhoneNumber,
		"hold_elapsed":   session.HoldElapsedSeconds,
		"human_detected": session.HumanDetected,
		"error":          session.Error,
	})
}

func (s *Server) handleQueueTwiML(c *gin.Context) {
	twiml := s.queue.InitialTwiML(c.Param("session_id"))
	c.Data(http.StatusOK, "application/xml", []byte(twiml))
}

func (s *Server) handleQueueIVR(c *gin.Context) {
	twiml := s.queue.HandleIVRSpeech(c.Request.Context(), c.Param("session_id"), c.PostForm("SpeechResult"))
	c.Data(http.StatusOK, "application/xml", []byte(twiml))
}

func (s *Server) handleQueueHoldLoop(c *gin.Context) {
	twiml := s.queue.HoldLoopTwiML(c.Param("session_id"))
	c.Data(http.StatusOK, "application/xml", []byte(twiml))
}

func (s *Server) handleQueueHumanCheck(c *gin.Context) {
	twiml := s.queue.HandleHumanCheck(c.Request.Context(), c.Param("session_id"), c.PostForm("SpeechResult"))
	c.Data(http.StatusOK, "application/xml", []byte(twiml))
}

func (s *Server) handleQueueStatusCallback(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID != "" {
		s.queue.HandleCallStatus(c.Request.Context(), sessionID, c.PostForm("CallStatus"))
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleQueueCancel(c *gin.Context) {
	if s.queue.Cancel(c.Request.Context(), c.Param("session_id")) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "cancelled",
			"message": "Queue cancelled. Call has been hung up.",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "not_found",
		"message": "Queue session not found.",
	})
}
