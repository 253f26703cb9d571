package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/friendlyhq/friendly/pkg/events"
	"github.com/friendlyhq/friendly/pkg/models"
)

func (s *Server) handleCallFriendStream(c *gin.Context) {
	sessionID := c.Param("session_id")

	initial := ""
	if session, ok := s.callFriend.LoadSession(c.Request.Context(), sessionID); ok {
		initial = formatSSE(events.TypeSessionStart, map[string]any{
			"session_id":  sessionID,
			"phase":       session.Phase,
			"friend_name": session.FriendName,
			"question":    session.Question,
		})
	}

	s.streamEvents(c, models.AgentCallFriend, sessionID, initial)
}

func (s *Server) handleCallFriendSession(c *gin.Context) {
	session, ok := s.callFriend.LoadSession(c.Request.Context(), c.Param("session_id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id":   session.ID,
		"friend_name":  session.FriendName,
		"phone_number": session.PhoneNumber,
		"question":     session.Question,
		"phase":        session.Phase,
		"transcript":   session.Transcript,
		"response":     session.Response,
		"summary":      session.Summary,
		"error":        session.Error,
	})
}

func (s *Server) handleCallFriendTwiML(c *gin.Context) {
	twiml := s.callFriend.TwiML(c.Request.Context(), c.Param("session_id"))
	c.Data(http.StatusOK, "application/xml", []byte(twiml))
}

func (s *Server) handleCallFriendWebhook(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID != "" {
		s.callFriend.HandleStatus(c.Request.Context(), sessionID, c.PostForm("CallSid"), c.PostForm("CallStatus"))
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleCallFriendAMD(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID != "" {
		s.callFriend.HandleAMD(c.Request.Context(), sessionID, c.PostForm("AnsweredBy"))
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleCallFriendRecording(c *gin.Context) {
	sessionID := c.Query("session_id")
	recordingURL := c.PostForm("RecordingUrl")
	if sessionID != "" && recordingURL != "" {
		s.callFriend.HandleRecording(c.Request.Context(), sessionID, recordingURL)
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
