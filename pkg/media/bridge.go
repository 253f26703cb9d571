// Package media bridges a carrier media stream to the ElevenLabs
// conversational voice agent over WebSockets, emitting live transcripts and
// accumulating them for session finalization.
//
// Audio flows carrier → bridge → voice agent → bridge → carrier. The carrier
// side speaks Twilio Media Stream JSON frames; the agent side speaks the
// convai protocol.
package media

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/friendlyhq/friendly/pkg/events"
	"github.com/friendlyhq/friendly/pkg/models"
)

const convaiURL = "wss://api.elevenlabs.io/v1/convai/conversation"

// Prompts configures the voice agent for one call.
type Prompts struct {
	System       string
	FirstMessage string
}

// Config identifies the call a bridge serves.
type Config struct {
	SessionID string
	CallID    string
	AgentID   string
	APIKey    string
	Prompts   Prompts
	Emitter   *events.Emitter
}

// Bridge is one live conversation. Create with Dial, run Listen in a
// goroutine, feed carrier frames through HandleCarrierFrame, and Close when
// the stream stops.
type Bridge struct {
	cfg Config
	ws  *websocket.Conn

	mu          sync.Mutex
	streamSID   string
	closed      bool
	transcripts []models.TranscriptEntry
}

// Dial connects to the voice agent and sends the conversation override
// (system prompt, first message, voice).
func Dial(ctx context.Context, cfg Config) (*Bridge, error) {
	url := fmt.Sprintf("%s?agent_id=%s", convaiURL, cfg.AgentID)
	header := http.Header{}
	header.Set("xi-api-key", cfg.APIKey)

	ws, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return nil, fmt.Errorf("dialing voice agent: %w", err)
	}

	init := map[string]any{
		"type": "conversation_initiation_client_data",
		"conversation_config_override": map[string]any{
			"agent": map[string]any{
				"prompt":        map[string]any{"prompt": cfg.Prompts.System},
				"first_message": cfg.Prompts.FirstMessage,
			},
			"tts": map[string]any{
				"voice_id": "21m00Tcm4TlvDq8ikWAM",
			},
		},
	}
	payload, err := json.Marshal(init)
	if err != nil {
		ws.Close(websocket.StatusInternalError, "init marshal failed")
		return nil, fmt.Errorf("marshaling init message: %w", err)
	}
	if err := ws.Write(ctx, websocket.MessageText, payload); err != nil {
		ws.Close(websocket.StatusInternalError, "init send failed")
		return nil, fmt.Errorf("sending init message: %w", err)
	}

	slog.Info("media: bridge connected", "session_id", cfg.SessionID, "call_id", cfg.CallID)
	return &Bridge{cfg: cfg, ws: ws}, nil
}

// carrierFrame is one Twilio Media Stream message.
type carrierFrame struct {
	Event string `json:"event"`
	Start *struct {
		StreamSID string `json:"streamSid"`
	} `json:"start,omitempty"`
	Media *struct {
		Payload string `json:"payload"`
	} `json:"media,omitempty"`
}

// agentMessage is one convai protocol message. The original flat field shape
// is preserved.
type agentMessage struct {
	Type       string `json:"type"`
	Audio      string `json:"audio,omitempty"`
	Transcript string `json:"transcript,omitempty"`
	IsFinal    bool   `json:"is_final,omitempty"`
	Response   string `json:"response,omitempty"`
	Message    string `json:"message,omitempty"`
}

// HandleCarrierFrame processes one raw frame from the carrier WebSocket.
// Returns stop=true when the carrier signals the end of the stream.
func (b *Bridge) HandleCarrierFrame(ctx context.Context, raw []byte) (stop bool, err error) {
	var frame carrierFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return false, fmt.Errorf("parsing carrier frame: %w", err)
	}

	switch frame.Event {
	case "start":
		sid := ""
		if frame.Start != nil {
			sid = frame.Start.StreamSID
		}
		b.mu.Lock()
		b.streamSID = sid
		b.mu.Unlock()
		slog.Info("media: carrier stream started", "stream_sid", sid, "session_id", b.cfg.SessionID)

	case "media":
		if frame.Media == nil || frame.Media.Payload == "" {
			return false, nil
		}
		chunk, err := json.Marshal(map[string]string{
			"type":        "user_audio_chunk",
			"audio_chunk": frame.Media.Payload,
		})
		if err != nil {
			return false, err
		}
		if err := b.ws.Write(ctx, websocket.MessageText, chunk); err != nil {
			slog.Warn("media: failed to forward audio to voice agent", "error", err)
		}

	case "stop":
		slog.Info("media: carrier stream stopped", "session_id", b.cfg.SessionID)
		return true, nil
	}
	return false, nil
}

// Listen reads voice-agent messages until the connection or ctx closes.
// Agent audio is re-framed for the carrier and handed to send; transcript
// messages are emitted to the session's event stream and accumulated.
func (b *Bridge) Listen(ctx context.Context, send func(frame []byte) error) {
	for {
		_, raw, err := b.ws.Read(ctx)
		if err != nil {
			if ctx.Err() == nil && !b.isClosed() {
				slog.Info("media: voice agent connection closed", "session_id", b.cfg.SessionID, "error", err)
			}
			return
		}

		var msg agentMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			slog.Warn("media: invalid voice agent message", "error", err)
			continue
		}

		switch msg.Type {
		case "audio":
			if msg.Audio == "" {
				continue
			}
			frame, err := b.carrierMediaFrame(msg.Audio)
			if err != nil {
				continue
			}
			if err := send(frame); err != nil {
				slog.Warn("media: failed to send audio to carrier", "error", err)
			}

		case "user_transcript":
			if msg.IsFinal && msg.Transcript != "" {
				b.recordTranscript(ctx, "human", msg.Transcript)
			}

		case "agent_response":
			if msg.Response != "" {
				b.recordTranscript(ctx, "ai", msg.Response)
			}

		case "conversation_end":
			slog.Info("media: conversation ended", "session_id", b.cfg.SessionID)
			b.emitTranscript(ctx, "system", "Conversation ended")

		case "error":
			errText := msg.Message
			if errText == "" {
				errText = "Unknown error"
			}
			slog.Error("media: voice agent error", "error", errText)
			b.emitTranscript(ctx, "error", errText)
		}
	}
}

// carrierMediaFrame wraps agent audio (already base64 mulaw) in the
// carrier's media frame. Audio arriving before the carrier's start frame is
// dropped since no streamSid exists to address it.
func (b *Bridge) carrierMediaFrame(audioB64 string) ([]byte, error) {
	b.mu.Lock()
	sid := b.streamSID
	b.mu.Unlock()
	if sid == "" {
		return nil, fmt.Errorf("no stream sid yet")
	}
	return json.Marshal(map[string]any{
		"event":     "media",
		"streamSid": sid,
		"media":     map[string]string{"payload": audioB64},
	})
}

func (b *Bridge) recordTranscript(ctx context.Context, speaker, text string) {
	entry := models.TranscriptEntry{
		Role:      speaker,
		Text:      text,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	b.mu.Lock()
	b.transcripts = append(b.transcripts, entry)
	b.mu.Unlock()
	b.emitTranscript(ctx, speaker, text)
}

func (b *Bridge) emitTranscript(ctx context.Context, speaker, text string) {
	if b.cfg.Emitter == nil {
		return
	}
	b.cfg.Emitter.Emit(ctx, b.cfg.SessionID, events.TypeTranscript, map[string]any{
		"call_id":   b.cfg.CallID,
		"speaker":   speaker,
		"text":      text,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Transcripts returns a copy of the accumulated conversation.
func (b *Bridge) Transcripts() []models.TranscriptEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.TranscriptEntry, len(b.transcripts))
	copy(out, b.transcripts)
	return out
}

// FriendResponse joins everything the callee said, for session
// finalization. Empty when the callee never spoke.
func (b *Bridge) FriendResponse() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var parts []string
	for _, t := range b.transcripts {
		if t.Role == "human" {
			parts = append(parts, t.Text)
		}
	}
	return strings.Join(parts, " ")
}

func (b *Bridge) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Close shuts the voice-agent connection. Safe to call more than once.
func (b *Bridge) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	b.ws.Close(websocket.StatusNormalClosure, "call ended")
	slog.Info("media: bridge closed", "session_id", b.cfg.SessionID, "call_id", b.cfg.CallID)
}
