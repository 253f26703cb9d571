package api

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/friendlyhq/friendly/pkg/agent"
	"github.com/friendlyhq/friendly/pkg/models"
)

const maxChatMessageLen = 1000

type chatLocation struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type chatRequest struct {
	Message             string              `json:"message"`
	SessionID           string              `json:"session_id"`
	Location            *chatLocation       `json:"location"`
	ConversationHistory []agent.ChatMessage `json:"conversation_history"`
	Model               string              `json:"model"`
	EntityID            string              `json:"entity_id"`
}

type chatResponse struct {
	SessionID string           `json:"session_id"`
	Agent     models.AgentType `json:"agent"`
	Status    string           `json:"status"`
	Message   string           `json:"message"`
	StreamURL string           `json:"stream_url,omitempty"`
}

// phonePattern matches a dialable number anywhere in a message: an optional
// leading + followed by at least 7 digits with common separators.
var phonePattern = regexp.MustCompile(`\+?\d[\d\s().-]{5,}\d`)

// extractPhone pulls the first phone-number-looking token out of text and
// strips separators. Returns "" when nothing dialable is present.
func extractPhone(text string) string {
	match := phonePattern.FindString(text)
	if match == "" {
		return ""
	}
	var b strings.Builder
	for _, r := range match {
		if r == '+' || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if n := strings.TrimPrefix(digits, "+"); len(n) < 7 {
		return ""
	}
	return digits
}

// handleChat classifies the message and either answers synchronously (chat)
// or launches an agent workflow and hands back a stream URL.
func (s *Server) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	message := strings.TrimSpace(req.Message)
	if message == "" || len(message) > maxChatMessageLen {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message must be 1-1000 characters"})
		return
	}

	result := s.classifier.Classify(c.Request.Context(), message)

	switch result.Agent {
	case models.AgentBlitz:
		c.JSON(http.StatusOK, s.launchBlitz(req, message, result))
	case models.AgentBuild:
		c.JSON(http.StatusOK, s.launchBuild(req, message, result))
	case models.AgentInbox:
		c.JSON(http.StatusOK, s.launchInbox(req, message))
	case models.AgentCallFriend:
		c.JSON(http.StatusOK, s.launchCallFriend(message, result))
	case models.AgentQueue:
		c.JSON(http.StatusOK, s.launchQueue(message, result))
	case models.AgentBounce, models.AgentBid:
		c.JSON(http.StatusOK, comingSoon(result.Agent))
	default:
		reply := s.chat.Respond(c.Request.Context(), message, req.ConversationHistory)
		c.JSON(http.StatusOK, chatResponse{
			SessionID: uuid.NewString(),
			Agent:     models.AgentChat,
			Status:    "complete",
			Message:   reply,
		})
	}
}

func (s *Server) launchBlitz(req chatRequest, message string, result models.RouterResult) chatResponse {
	params := result.Params
	if req.Location != nil && params.Location == "" {
		params.Location = fmt.Sprintf("%f,%f", req.Location.Lat, req.Location.Lng)
	}

	session := models.NewBlitzSession(req.SessionID, message, params)
	if s.cfg.DemoMode {
		go s.demo.Run(context.Background(), session)
	} else {
		go s.blitz.Run(context.Background(), session)
	}

	service := params.Service
	if service == "" {
		service = "services"
	}
	return chatResponse{
		SessionID: session.ID,
		Agent:     models.AgentBlitz,
		Status:    "searching",
		Message:   fmt.Sprintf("On it! Let me find some %s for you...", service),
		StreamURL: "/api/blitz/stream/" + session.ID,
	}
}

func (s *Server) launchBuild(req chatRequest, message string, result models.RouterResult) chatResponse {
	session := models.NewBuildSession(req.SessionID, message)
	go s.build.Run(context.Background(), session, message, result.Params)

	return chatResponse{
		SessionID: session.ID,
		Agent:     models.AgentBuild,
		Status:    "building",
		Message:   "Let me build that for you! Watch the progress live...",
		StreamURL: "/api/build/stream/" + session.ID,
	}
}

func (s *Server) launchInbox(req chatRequest, message string) chatResponse {
	entityID := req.EntityID
	if entityID == "" {
		entityID = "default"
	}
	session := models.NewInboxSession(message, entityID)
	go s.inbox.Run(context.Background(), session)

	return chatResponse{
		SessionID: session.ID,
		Agent:     models.AgentInbox,
		Status:    "checking",
		Message:   "Let me check your inbox...",
		StreamURL: "/api/inbox/stream/" + session.ID,
	}
}

func (s *Server) launchCallFriend(message string, result models.RouterResult) chatResponse {
	name := result.Params.Service
	if name == "" {
		name = "your friend"
	}
	question := result.Params.Notes
	if question == "" {
		question = message
	}

	phone := extractPhone(message)
	if phone == "" {
		return chatResponse{
			SessionID: uuid.NewString(),
			Agent:     models.AgentCallFriend,
			Status:    "complete",
			Message:   fmt.Sprintf("I'd love to call %s for you! What's their phone number? Include it and I'll make the call.", name),
		}
	}

	session := models.NewCallFriendSession(name, phone, question)
	go s.callFriend.Run(context.Background(), session)

	return chatResponse{
		SessionID: session.ID,
		Agent:     models.AgentCallFriend,
		Status:    "calling",
		Message:   fmt.Sprintf("Calling %s now! I'll let you know what they say.", name),
		StreamURL: "/api/call_friend/stream/" + session.ID,
	}
}

func (s *Server) launchQueue(message string, result models.RouterResult) chatResponse {
	business := result.Params.Service
	if business == "" {
		business = "them"
	}

	phone := extractPhone(message)
	if phone == "" {
		return chatResponse{
			SessionID: uuid.NewString(),
			Agent:     models.AgentQueue,
			Status:    "complete",
			Message:   fmt.Sprintf("Happy to wait on hold with %s for you! What number should I call?", business),
		}
	}

	session := models.NewQueueSession(message, phone, business, result.Params.Notes)
	go s.queue.Run(context.Background(), session)

	return chatResponse{
		SessionID: session.ID,
		Agent:     models.AgentQueue,
		Status:    "queued",
		Message:   fmt.Sprintf("I'll call %s and wait on hold for you. I'll ping you the moment a human picks up!", business),
		StreamURL: "/api/queue/stream/" + session.ID,
	}
}

func comingSoon(agentType models.AgentType) chatResponse {
	name := string(agentType)
	if name != "" {
		name = strings.ToUpper(name[:1]) + name[1:]
	}
	return chatResponse{
		SessionID: uuid.NewString(),
		Agent:     agentType,
		Status:    "pending",
		Message:   fmt.Sprintf("The %s agent is coming soon! For now, I can help you find services with Blitz.", name),
	}
}
