package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"

	"github.com/friendlyhq/friendly/pkg/events"
	"github.com/friendlyhq/friendly/pkg/media"
	"github.com/friendlyhq/friendly/pkg/models"
)

// handleBlitzMediaStream bridges a carrier media stream for one fan-out call
// to the voice agent. The carrier connects here when a call's TwiML opens a
// <Stream>.
func (s *Server) handleBlitzMediaStream(c *gin.Context) {
	sessionID := c.Param("session_id")
	callID := c.Param("call_id")

	service := c.Query("service")
	if service == "" {
		service = "service provider"
	}
	timeframe := c.Query("timeframe")
	if timeframe == "" {
		timeframe = "soon"
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("api: media stream accept failed", "session_id", sessionID, "error", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx := c.Request.Context()

	if s.cfg.ElevenLabsAgentID == "" {
		s.emitter.Emit(ctx, sessionID, events.TypeTranscript, map[string]any{
			"call_id": callID,
			"speaker": "system",
			"text":    "Live conversation mode not configured. Please set ELEVENLABS_AGENT_ID.",
		})
		return
	}

	prompts := media.BusinessCallPrompts(service, timeframe, "")
	s.serveBridge(ctx, conn, media.Config{
		SessionID: sessionID,
		CallID:    callID,
		AgentID:   s.cfg.ElevenLabsAgentID,
		APIKey:    s.cfg.ElevenLabsAPIKey,
		Prompts:   prompts,
		Emitter:   s.emitter,
	}, nil)

	s.emitter.Emit(context.WithoutCancel(ctx), sessionID, events.TypeTranscript, map[string]any{
		"call_id": callID,
		"speaker": "system",
		"text":    "Call ended.",
	})
}

// handleCallFriendMediaStream bridges the friend call's audio. On the start
// frame the session moves to connected; when the stream ends the bridge's
// transcript and extracted response are folded back into the session.
func (s *Server) handleCallFriendMediaStream(c *gin.Context) {
	sessionID := c.Param("session_id")

	session, ok := s.callFriend.LoadSession(c.Request.Context(), sessionID)
	if !ok {
		slog.Error("api: media stream for unknown friend call", "session_id", sessionID)
		c.AbortWithStatus(404)
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("api: media stream accept failed", "session_id", sessionID, "error", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx := c.Request.Context()

	if s.cfg.ElevenLabsAgentID == "" {
		s.emitter.Emit(ctx, sessionID, events.TypeTranscript, map[string]any{
			"speaker": "system",
			"text":    "Live conversation mode not configured. Please set ELEVENLABS_AGENT_ID.",
		})
		return
	}

	onStart := func(ctx context.Context) {
		live, ok := s.callFriend.LoadSession(ctx, sessionID)
		if !ok {
			return
		}
		live.Phase = models.CallFriendConnected
		s.callFriend.SaveSession(ctx, live)

		s.emitter.Emit(ctx, sessionID, events.TypeCallConnected, map[string]any{
			"phase":       "connected",
			"message":     live.FriendName + " answered! AI is now speaking...",
			"friend_name": live.FriendName,
		})
		s.emitter.Emit(ctx, sessionID, events.TypeTranscript, map[string]any{
			"speaker": "system",
			"text":    "Connected to " + live.FriendName + ". AI is introducing itself...",
		})
	}

	bridge := s.serveBridge(ctx, conn, media.Config{
		SessionID: sessionID,
		CallID:    sessionID,
		AgentID:   s.cfg.ElevenLabsAgentID,
		APIKey:    s.cfg.ElevenLabsAPIKey,
		Prompts:   media.FriendCallPrompts(session.FriendName, session.Question),
		Emitter:   s.emitter,
	}, onStart)

	cleanupCtx := context.WithoutCancel(ctx)
	if bridge != nil {
		if transcripts := bridge.Transcripts(); len(transcripts) > 0 {
			if live, ok := s.callFriend.LoadSession(cleanupCtx, sessionID); ok {
				now := time.Now().UTC()
				live.Transcript = transcripts
				live.Response = bridge.FriendResponse()
				live.Phase = models.CallFriendComplete
				live.CompletedAt = &now
				s.callFriend.SaveSession(cleanupCtx, live)
			}
		}
	}

	s.emitter.Emit(cleanupCtx, sessionID, events.TypeTranscript, map[string]any{
		"speaker": "system",
		"text":    "Call ended.",
	})
}

// serveBridge dials the voice agent, registers the bridge, and pumps frames
// both ways until the carrier stops the stream or either side fails. onStart
// fires once when the carrier's start frame arrives.
func (s *Server) serveBridge(ctx context.Context, conn *websocket.Conn, cfg media.Config, onStart func(context.Context)) *media.Bridge {
	bridge, err := media.Dial(ctx, cfg)
	if err != nil {
		slog.Error("api: voice agent dial failed",
			"session_id", cfg.SessionID, "call_id", cfg.CallID, "error", err)
		return nil
	}
	s.bridges.Put(cfg.SessionID, cfg.CallID, bridge)
	defer s.bridges.Remove(cfg.SessionID, cfg.CallID)

	listenCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go bridge.Listen(listenCtx, func(frame []byte) error {
		return conn.Write(listenCtx, websocket.MessageText, frame)
	})

	started := false
	for {
		_, raw, err := conn.Read(ctx)
		if err != nil {
			slog.Info("api: carrier stream closed",
				"session_id", cfg.SessionID, "call_id", cfg.CallID)
			return bridge
		}

		if !started && onStart != nil {
			var probe struct {
				Event string `json:"event"`
			}
			if json.Unmarshal(raw, &probe) == nil && probe.Event == "start" {
				started = true
				onStart(ctx)
			}
		}

		stop, err := bridge.HandleCarrierFrame(ctx, raw)
		if err != nil {
			slog.Warn("api: dropping carrier frame",
				"session_id", cfg.SessionID, "error", err)
			continue
		}
		if stop {
			return bridge
		}
	}
}
