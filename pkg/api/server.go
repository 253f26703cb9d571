// Package api is the HTTP surface: the chat endpoint that routes messages
// to agent workflows, SSE streams that drain per-session event queues,
// carrier-facing TwiML/webhook endpoints, preview and trace serving, and
// the media-stream WebSocket bridges.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/friendlyhq/friendly/pkg/agent"
	"github.com/friendlyhq/friendly/pkg/config"
	"github.com/friendlyhq/friendly/pkg/events"
	"github.com/friendlyhq/friendly/pkg/media"
	"github.com/friendlyhq/friendly/pkg/models"
	"github.com/friendlyhq/friendly/pkg/tracing"
	"github.com/friendlyhq/friendly/pkg/tts"
	"github.com/friendlyhq/friendly/pkg/version"
)

// Store is the store surface the HTTP layer reads directly. The agent
// workflows carry their own handles.
type Store interface {
	PopEvent(ctx context.Context, sessionID string, timeout time.Duration) (*models.Event, error)
	LoadPreview(ctx context.Context, previewID string) (string, error)
	Ping(ctx context.Context) error
}

// Classifier routes a user message to an agent.
type Classifier interface {
	Classify(ctx context.Context, userMessage string) models.RouterResult
}

// Responder produces the synchronous chat reply.
type Responder interface {
	Respond(ctx context.Context, userMessage string, history []agent.ChatMessage) string
}

// Deps wires the server to everything it serves.
type Deps struct {
	Config     *config.Config
	Store      Store
	Classifier Classifier
	TTS        tts.Generator
	Tracer     *tracing.Store
	Bridges    *media.Registry
	Emitter    *events.Emitter

	Blitz      *agent.Blitz
	Demo       *agent.Demo
	Queue      *agent.Queue
	CallFriend *agent.CallFriend
	Build      *agent.Build
	Inbox      *agent.Inbox
	Chat       Responder
}

// Server hosts the Friendly HTTP API.
type Server struct {
	cfg        *config.Config
	store      Store
	classifier Classifier
	tts        tts.Generator
	tracer     *tracing.Store
	bridges    *media.Registry
	emitter    *events.Emitter

	blitz      *agent.Blitz
	demo       *agent.Demo
	queue      *agent.Queue
	callFriend *agent.CallFriend
	build      *agent.Build
	inbox      *agent.Inbox
	chat       Responder

	engine *gin.Engine
	http   *http.Server
}

// New builds the server and registers all routes.
func New(deps Deps) *Server {
	s := &Server{
		cfg:        deps.Config,
		store:      deps.Store,
		classifier: deps.Classifier,
		tts:        deps.TTS,
		tracer:     deps.Tracer,
		bridges:    deps.Bridges,
		emitter:    deps.Emitter,
		blitz:      deps.Blitz,
		demo:       deps.Demo,
		queue:      deps.Queue,
		callFriend: deps.CallFriend,
		build:      deps.Build,
		inbox:      deps.Inbox,
		chat:       deps.Chat,
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(), corsMiddleware(deps.Config.CORSOrigins))

	r.GET("/health", s.handleHealth)

	api := r.Group("/api")
	api.POST("/chat", rateLimiter(deps.Config.RateLimitPerMinute), s.handleChat)

	blitz := api.Group("/blitz")
	blitz.GET("/stream/:session_id", s.handleBlitzStream)
	blitz.GET("/session/:session_id", s.handleBlitzSession)
	blitz.POST("/twiml/:session_id/:call_id", s.handleBlitzTwiML)
	blitz.GET("/tts-audio/:session_id/:call_id", s.handleBlitzTTSAudio)
	blitz.POST("/webhook", s.handleBlitzWebhook)
	blitz.POST("/recording", s.handleBlitzRecording)
	blitz.POST("/recording-complete", s.handleBlitzRecordingComplete)
	blitz.POST("/amd", s.handleBlitzAMD)
	blitz.GET("/media-stream/:session_id/:call_id", s.handleBlitzMediaStream)

	queue := api.Group("/queue")
	queue.GET("/stream/:session_id", s.handleQueueStream)
	queue.GET("/session/:session_id", s.handleQueueSession)
	queue.POST("/twiml/:session_id", s.handleQueueTwiML)
	queue.POST("/ivr-handler/:session_id", s.handleQueueIVR)
	queue.POST("/hold-loop/:session_id", s.handleQueueHoldLoop)
	queue.POST("/human-check/:session_id", s.handleQueueHumanCheck)
	queue.POST("/status-callback", s.handleQueueStatusCallback)
	queue.POST("/cancel/:session_id", s.handleQueueCancel)

	friend := api.Group("/call_friend")
	friend.GET("/stream/:session_id", s.handleCallFriendStream)
	friend.GET("/session/:session_id", s.handleCallFriendSession)
	friend.POST("/twiml/:session_id", s.handleCallFriendTwiML)
	friend.GET("/twiml/:session_id", s.handleCallFriendTwiML)
	friend.POST("/webhook", s.handleCallFriendWebhook)
	friend.POST("/amd", s.handleCallFriendAMD)
	friend.POST("/recording", s.handleCallFriendRecording)
	friend.GET("/media-stream/:session_id", s.handleCallFriendMediaStream)

	build := api.Group("/build")
	build.GET("/stream/:session_id", s.handleBuildStream)
	build.GET("/preview/:preview_id", s.handleBuildPreview)

	inbox := api.Group("/inbox")
	inbox.GET("/stream/:session_id", s.handleInboxStream)
	inbox.GET("/auth-callback", s.handleInboxAuthCallback)

	api.GET("/traces", s.handleTraces)
	api.GET("/traces/performance", s.handleTracesPerformance)
	api.GET("/traces/improvement", s.handleTracesImprovement)
	api.GET("/traces/recent", s.handleTracesRecent)
	api.GET("/traces/blitz", s.handleTracesBlitz)

	s.engine = r
	return s
}

// Handler exposes the route tree, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	s.http = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("api: listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("serving http: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	health, redisStatus, status := "healthy", "ok", http.StatusOK
	if err := s.store.Ping(ctx); err != nil {
		health, redisStatus, status = "degraded", err.Error(), http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status":    health,
		"version":   version.Full(),
		"redis":     redisStatus,
		"demo_mode": s.cfg.DemoMode,
	})
}
