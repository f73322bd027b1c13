package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/primarycredit/workspace/internal/api/handlers"
	"github.com/primarycredit/workspace/internal/api/middleware"
	"github.com/primarycredit/workspace/internal/config"
)

// NewRouter creates the HTTP router with all API routes.
func NewRouter(cfg *config.Config, h *handlers.Handlers) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logger)
	r.Use(middleware.WorkspaceExtractor)
	r.Use(middleware.Telemetry)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Workspace-Id", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health & info
	r.Get("/health", healthHandler)
	r.Get("/version", versionHandler(cfg))

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		// Workspace sessions
		r.Route("/workspaces", func(r chi.Router) {
			r.Post("/", h.CreateWorkspace)
			r.Delete("/{workspaceId}", h.DeleteWorkspace)
		})

		// State snapshots + stream
		r.Get("/state", h.GetAppState)
		r.Get("/state/stream", h.StreamState)

		// Auth gates
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", h.Login)
			r.Post("/terms", h.AcceptTerms)
		})
		r.Post("/attestation", h.RecordAttestation)

		// Chat
		r.Route("/chat", func(r chi.Router) {
			r.Get("/", h.GetChatState)
			r.Post("/messages", h.SendMessage)
			r.Route("/messages/{messageId}", func(r chi.Router) {
				r.Post("/code-panel", h.ToggleCodePanel)
				r.Post("/feedback-panel", h.ToggleFeedbackPanel)
				r.Put("/feedback", h.UpdateFeedbackDraft)
				r.Post("/feedback", h.SubmitFeedback)
			})
		})

		// Dataset
		r.Route("/dataset", func(r chi.Router) {
			r.Get("/rows", h.GetDatasetRows)
			r.Put("/lookback", h.SetLookback)
			r.Post("/reload", h.ReloadDataset)
		})

		// UI + inline feedback
		r.Route("/ui", func(r chi.Router) {
			r.Post("/tab", h.SetActiveTab)
			r.Post("/sidebar", h.SetSidebar)
		})
		r.Route("/feedback/inline", func(r chi.Router) {
			r.Put("/", h.UpdateInlineFeedback)
			r.Post("/", h.SubmitInlineFeedback)
		})
	})

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "primarycredit-workspace",
	})
}

func versionHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"version": cfg.Version,
			"service": "primarycredit-workspace",
		})
	}
}
