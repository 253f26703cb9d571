package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/friendlyhq/friendly/pkg/events"
	"github.com/friendlyhq/friendly/pkg/models"
	"github.com/friendlyhq/friendly/pkg/telephony"
	"github.com/friendlyhq/friendly/pkg/tts"
)

func (s *Server) handleBlitzStream(c *gin.Context) {
	sessionID := c.Param("session_id")

	initial := ""
	if session, ok := s.blitz.Load(c.Request.Context(), sessionID); ok {
		initial = formatSSE(events.TypeSessionStart, map[string]any{
			"session_id": sessionID,
			"status":     session.Status,
			"businesses": session.Businesses,
		})
	}

	s.streamEvents(c, models.AgentBlitz, sessionID, initial)
}

func (s *Server) handleBlitzSession(c *gin.Context) {
	session, ok := s.blitz.Load(c.Request.Context(), c.Param("session_id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}

	calls := make([]gin.H, 0, len(session.Calls))
	for _, call := range session.Calls {
		calls = append(calls, gin.H{
			"business": call.Business.Name,
			"status":   call.Status,
			"result":   call.Result,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": session.ID,
		"status":     session.Status,
		"businesses": session.Businesses,
		"calls":      calls,
		"summary":    session.Summary,
	})
}

// blitzScript renders the outbound call script for a session's service type.
func blitzScript(session *models.BlitzSession) string {
	service := session.ParsedParams.Service
	if service == "" {
		service = "service"
	}
	return tts.BuildCallScript(models.CallScript{
		ServiceType: service,
		Timeframe:   session.ParsedParams.Timeframe,
		Question:    "availability and call-out fee",
	})
}

// handleBlitzTwiML serves the call-control document the carrier fetches when
// a fan-out call connects. With an ElevenLabs key present the script is
// played from pre-generated audio; otherwise carrier-side TTS reads it.
func (s *Server) handleBlitzTwiML(c *gin.Context) {
	sessionID := c.Param("session_id")
	callID := c.Param("call_id")

	session, ok := s.blitz.Load(c.Request.Context(), sessionID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}
	if session.FindCall(callID, "") == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Call not found"})
		return
	}

	audioURL := ""
	if s.cfg.ElevenLabsAPIKey != "" {
		audioURL = fmt.Sprintf("%s/api/blitz/tts-audio/%s/%s", s.cfg.BackendURL, sessionID, callID)
	}
	recordingAction := fmt.Sprintf("%s/api/blitz/recording-complete?session_id=%s&call_id=%s",
		s.cfg.BackendURL, sessionID, callID)

	twiml := telephony.PlaybackTwiML(audioURL, blitzScript(session), recordingAction)
	c.Data(http.StatusOK, "application/xml", []byte(twiml))
}

// handleBlitzTTSAudio serves the pre-generated MP3 the carrier <Play>s.
func (s *Server) handleBlitzTTSAudio(c *gin.Context) {
	session, ok := s.blitz.Load(c.Request.Context(), c.Param("session_id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}

	if s.tts == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "TTS not configured"})
		return
	}
	audio := s.tts.Generate(c.Request.Context(), blitzScript(session))
	if audio == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "TTS generation failed"})
		return
	}

	c.Header("Content-Disposition", "inline")
	c.Header("Cache-Control", "public, max-age=3600")
	c.Data(http.StatusOK, "audio/mpeg", audio)
}

func (s *Server) handleBlitzWebhook(c *gin.Context) {
	s.blitz.HandleStatus(c.Request.Context(),
		c.Query("session_id"),
		c.Query("call_id"),
		c.PostForm("CallSid"),
		c.PostForm("CallStatus"),
	)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleBlitzRecording(c *gin.Context) {
	s.blitz.HandleRecording(c.Request.Context(),
		c.Query("session_id"),
		c.Query("call_id"),
		c.PostForm("RecordingUrl"),
	)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleBlitzRecordingComplete(c *gin.Context) {
	s.blitz.HandleRecordingComplete(c.Request.Context(),
		c.Query("session_id"),
		c.Query("call_id"),
		c.PostForm("RecordingUrl"),
	)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleBlitzAMD(c *gin.Context) {
	s.blitz.HandleAMD(c.Request.Context(),
		c.Query("session_id"),
		c.Query("call_id"),
		c.PostForm("AnsweredBy"),
	)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
