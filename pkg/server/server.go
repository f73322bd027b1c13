// Package server provides the public entry point for initializing the
// workspace server: configuration, telemetry, stores, the per-session
// controller factory, and the HTTP router.
//
// Usage:
//
//	srv, err := server.New(ctx)
//	http.ListenAndServe(":8080", srv.Handler)
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/primarycredit/workspace/internal/api"
	"github.com/primarycredit/workspace/internal/api/handlers"
	"github.com/primarycredit/workspace/internal/app"
	"github.com/primarycredit/workspace/internal/attestation"
	"github.com/primarycredit/workspace/internal/chat"
	"github.com/primarycredit/workspace/internal/config"
	"github.com/primarycredit/workspace/internal/feedback"
	"github.com/primarycredit/workspace/internal/sessions"
	"github.com/primarycredit/workspace/internal/storage"
	"github.com/primarycredit/workspace/internal/tasks"
	"github.com/primarycredit/workspace/internal/telemetry"
	"github.com/primarycredit/workspace/pkg/contracts"
)

// Server holds the initialized workspace server.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Sessions is the workspace registry; exposed for shutdown and tests.
	Sessions *sessions.Registry

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc should be called on graceful shutdown to flush
	// telemetry and close stores.
	ShutdownFunc func(context.Context) error
}

// New initializes all workspace components and returns a ready Server.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, config.Load())
}

// NewWithConfig initializes the server with an explicit configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	shutdownTelemetry, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	store := storage.NewClient(cfg.DataDir, "artifacts", log.Logger)

	feedbackStore, err := feedback.NewSQLiteStore(cfg.FeedbackDBPath, log.Logger)
	if err != nil {
		// The workspace still works without persistence; submissions are
		// logged only.
		log.Warn().Err(err).Str("path", cfg.FeedbackDBPath).Msg("feedback store unavailable")
		feedbackStore = nil
	}

	attestationStore := attestation.NewFileStore(cfg.AttestationPath)
	sessionTasks := tasks.New(log.Logger, store, feedbackStore, ".")
	promptCategories := loadPromptSuggestions(cfg.PromptSuggestionsPath)

	// A typed nil must not become a non-nil interface.
	var feedbackSink contracts.MessageFeedbackSink
	if feedbackStore != nil {
		feedbackSink = feedbackStore
	}

	factory := func() *app.Controller {
		chatController := chat.New(chat.Options{
			Backend:          chat.NewMockBackend(cfg.MockBackendDelay),
			AttestationStore: attestationStore,
			PromptCategories: promptCategories,
			Logger:           log.Logger,
			FeedbackSink:     feedbackSink,
		})
		return app.New(app.Options{
			Chat:   chatController,
			Tasks:  sessionTasks,
			Logger: log.Logger,
		})
	}

	registry := sessions.NewRegistry(factory)
	log.Info().Msg("workspace registry initialized")

	h := handlers.New(registry)
	router := api.NewRouter(cfg, h)

	shutdown := func(ctx context.Context) error {
		registry.Close()
		sessionTasks.Close()
		if feedbackStore != nil {
			feedbackStore.Close()
		}
		return shutdownTelemetry(ctx)
	}

	return &Server{
		Handler:      router,
		Sessions:     registry,
		Port:         cfg.Port,
		ShutdownFunc: shutdown,
	}, nil
}

// loadPromptSuggestions reads prompt categories from disk, falling back to
// the built-in defaults when the file is absent or malformed.
func loadPromptSuggestions(path string) map[string][]string {
	raw, err := os.ReadFile(filepath.Clean(path))
	if err == nil {
		var categories map[string][]string
		if err := json.Unmarshal(raw, &categories); err == nil && len(categories) > 0 {
			return categories
		}
		log.Warn().Str("path", path).Msg("prompt suggestions file malformed, using defaults")
	}
	return defaultPromptSuggestions()
}

func defaultPromptSuggestions() map[string][]string {
	return map[string][]string{
		"Market overview": {
			"Summarize today's primary issuance activity.",
			"Which issuers priced the largest deals this week?",
		},
		"Issuance analytics": {
			"Show the tenor distribution for the current lookback window.",
			"Compare USD and EUR issuance volumes.",
		},
	}
}
