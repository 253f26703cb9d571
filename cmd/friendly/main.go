// Command friendly runs the Friendly backend: the chat router, the agent
// workflows (Blitz, Queue, Call-a-Friend, Build, Inbox), and the HTTP/SSE
// surface the carrier and the frontend talk to.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/friendlyhq/friendly/pkg/agent"
	"github.com/friendlyhq/friendly/pkg/api"
	"github.com/friendlyhq/friendly/pkg/config"
	"github.com/friendlyhq/friendly/pkg/events"
	"github.com/friendlyhq/friendly/pkg/llm"
	"github.com/friendlyhq/friendly/pkg/media"
	"github.com/friendlyhq/friendly/pkg/places"
	"github.com/friendlyhq/friendly/pkg/router"
	"github.com/friendlyhq/friendly/pkg/store"
	"github.com/friendlyhq/friendly/pkg/telephony"
	"github.com/friendlyhq/friendly/pkg/tracing"
	"github.com/friendlyhq/friendly/pkg/tts"
	"github.com/friendlyhq/friendly/pkg/version"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Load environment + configuration
	if err := godotenv.Load(); err != nil {
		slog.Warn("No .env file found, using environment variables")
	}
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("Configuration loaded",
		"version", version.Full(),
		"port", cfg.Port,
		"demo_mode", cfg.DemoMode,
		"twilio_configured", cfg.TwilioConfigured(),
		"llm_configured", cfg.NvidiaAPIKey != "",
	)

	// 2. Connect Redis (sessions, event queues, previews, traces)
	st, err := store.New(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "url", cfg.RedisURL, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Error("Error closing Redis client", "error", err)
		}
	}()
	slog.Info("Redis connected", "url", cfg.RedisURL)

	// 3. External clients. Each tolerates a missing key and degrades to its
	// fallback path, so startup never blocks on a credential.
	completer := llm.New(cfg.NvidiaAPIKey)
	searcher := places.New(cfg.GooglePlacesAPIKey)
	voice := tts.New(cfg.ElevenLabsAPIKey, st)
	caller := telephony.NewDriver(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioPhoneNumber)
	mail := agent.NewComposioConnector(cfg.ComposioAPIKey, cfg.BackendURL)

	// 4. Tracing: in-memory ring mirrored to Redis, rehydrated across restarts
	tracer := tracing.New(st)
	tracer.Hydrate(ctx)
	defer tracer.Close()

	// 5. Streaming + media infrastructure
	emitter := events.NewEmitter(st)
	bridges := media.NewRegistry()
	defer bridges.CloseAll()

	// 6. Intent router and agent workflows
	classifier := router.New(completer)
	blitz := agent.NewBlitz(st, emitter, searcher, caller, tracer, cfg.BackendURL)
	demo := agent.NewDemo(st, emitter)
	queue := agent.NewQueue(st, emitter, caller, completer, cfg.BackendURL)
	callFriend := agent.NewCallFriend(st, emitter, caller, completer, cfg.BackendURL, cfg.WebSocketURL())
	build := agent.NewBuild(st, st, emitter, completer, cfg.BackendURL)
	inbox := agent.NewInbox(st, st, emitter, mail, completer)
	chat := agent.NewChat(completer, tracer)

	// 7. HTTP server
	srv := api.New(api.Deps{
		Config:     cfg,
		Store:      st,
		Classifier: classifier,
		TTS:        voice,
		Tracer:     tracer,
		Bridges:    bridges,
		Emitter:    emitter,

		Blitz:      blitz,
		Demo:       demo,
		Queue:      queue,
		CallFriend: callFriend,
		Build:      build,
		Inbox:      inbox,
		Chat:       chat,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Run(); err != nil {
			errCh <- err
		}
	}()

	// 8. Wait for shutdown signal or server failure
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		slog.Error("HTTP server error", "error", err)
	}

	// 9. Graceful shutdown: drain HTTP, then tear down live media bridges
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
