// Package handlers implements the HTTP handlers for the workspace API.
// Every handler resolves the caller's workspace session, invokes a
// controller method, and responds with the latest published snapshot; the
// controllers are the single source of truth.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/primarycredit/workspace/internal/api/middleware"
	"github.com/primarycredit/workspace/internal/sessions"
	"github.com/primarycredit/workspace/pkg/models"
)

// Handlers holds all handler dependencies.
type Handlers struct {
	Sessions *sessions.Registry
}

// New creates a Handlers instance.
func New(registry *sessions.Registry) *Handlers {
	return &Handlers{Sessions: registry}
}

// ── Workspace lifecycle ─────────────────────────────────────

type workspaceResponse struct {
	ID   string           `json:"id"`
	App  models.AppState  `json:"app"`
	Chat models.ChatState `json:"chat"`
}

func (h *Handlers) CreateWorkspace(w http.ResponseWriter, r *http.Request) {
	ws := h.Sessions.Create()
	respondJSON(w, http.StatusCreated, workspaceResponse{
		ID:   ws.ID,
		App:  ws.Controller.State(),
		Chat: ws.Controller.Chat.State(),
	})
}

func (h *Handlers) DeleteWorkspace(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "workspaceId")
	if err := h.Sessions.Delete(id); err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// workspace resolves the caller's session from the request context.
func (h *Handlers) workspace(w http.ResponseWriter, r *http.Request) (*sessions.Workspace, bool) {
	id := middleware.GetWorkspaceID(r.Context())
	if id == "" {
		respondError(w, http.StatusBadRequest, "missing X-Workspace-Id header")
		return nil, false
	}
	ws, err := h.Sessions.Get(id)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	return ws, true
}

// ── State reads ─────────────────────────────────────────────

func (h *Handlers) GetAppState(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, ws.Controller.State())
}

func (h *Handlers) GetChatState(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, ws.Controller.Chat.State())
}

func (h *Handlers) GetDatasetRows(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	rows := ws.Controller.FilteredRows()
	if rows == nil {
		rows = []map[string]any{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"rows":      rows,
		"row_count": len(rows),
	})
}

// ── Auth gates ──────────────────────────────────────────────

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	var req struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
		respondError(w, http.StatusBadRequest, "username is required")
		return
	}
	ws.Controller.Authenticate(req.Username)
	respondJSON(w, http.StatusOK, ws.Controller.State().Gate)
}

func (h *Handlers) AcceptTerms(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	ws.Controller.AcceptTerms()
	respondJSON(w, http.StatusOK, ws.Controller.State().Gate)
}

func (h *Handlers) RecordAttestation(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	var req struct {
		Accepted bool `json:"accepted"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	ws.Controller.Chat.RecordAttestation(req.Accepted)
	respondJSON(w, http.StatusOK, ws.Controller.Chat.State().Attestation)
}

// ── Chat ────────────────────────────────────────────────────

func (h *Handlers) SendMessage(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	done := ws.Controller.Chat.SendUserMessage(r.Context(), req.Text)
	if waitRequested(r) {
		<-done
	}
	respondJSON(w, http.StatusAccepted, ws.Controller.Chat.State())
}

func (h *Handlers) ToggleCodePanel(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	ws.Controller.Chat.ToggleCodePanel(chi.URLParam(r, "messageId"))
	respondJSON(w, http.StatusOK, ws.Controller.Chat.State())
}

func (h *Handlers) ToggleFeedbackPanel(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	ws.Controller.Chat.ToggleFeedbackPanel(chi.URLParam(r, "messageId"))
	respondJSON(w, http.StatusOK, ws.Controller.Chat.State())
}

func (h *Handlers) UpdateFeedbackDraft(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	var req struct {
		MinutesSaved *int    `json:"minutes_saved"`
		Score        *int    `json:"score"`
		Comments     *string `json:"comments"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ws.Controller.Chat.UpdateFeedbackDraft(chi.URLParam(r, "messageId"), func(draft models.FeedbackDraft) models.FeedbackDraft {
		if req.MinutesSaved != nil {
			draft.MinutesSaved = *req.MinutesSaved
		}
		if req.Score != nil {
			draft.Score = *req.Score
		}
		if req.Comments != nil {
			draft.Comments = *req.Comments
		}
		return draft
	})
	respondJSON(w, http.StatusOK, ws.Controller.Chat.State())
}

func (h *Handlers) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	ws.Controller.Chat.SubmitFeedback(chi.URLParam(r, "messageId"))
	respondJSON(w, http.StatusOK, ws.Controller.Chat.State())
}

// ── Dataset & UI ────────────────────────────────────────────

func (h *Handlers) SetLookback(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	var req struct {
		WindowDays int `json:"window_days"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	done := ws.Controller.SetLookbackDays(req.WindowDays)
	if waitRequested(r) {
		<-done
	}
	respondJSON(w, http.StatusAccepted, ws.Controller.State().Dataset)
}

func (h *Handlers) ReloadDataset(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	done := ws.Controller.ReloadDataset()
	if waitRequested(r) {
		<-done
	}
	respondJSON(w, http.StatusAccepted, ws.Controller.State().Dataset)
}

func (h *Handlers) SetActiveTab(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	var req struct {
		Tab string `json:"tab"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Tab == "" {
		respondError(w, http.StatusBadRequest, "tab is required")
		return
	}
	ws.Controller.SetActiveTab(req.Tab)
	respondJSON(w, http.StatusOK, ws.Controller.State().UI)
}

func (h *Handlers) SetSidebar(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	var req struct {
		Open *bool `json:"open"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Open == nil {
		ws.Controller.ToggleSidebar()
	} else {
		ws.Controller.SetSidebar(*req.Open)
	}
	respondJSON(w, http.StatusOK, ws.Controller.State().UI)
}

func (h *Handlers) UpdateInlineFeedback(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	ws.Controller.UpdateInlineFeedbackText(req.Text)
	respondJSON(w, http.StatusOK, ws.Controller.State().UI)
}

func (h *Handlers) SubmitInlineFeedback(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	done := ws.Controller.SubmitInlineFeedback()
	if waitRequested(r) {
		<-done
	}
	respondJSON(w, http.StatusAccepted, ws.Controller.State().UI)
}

// ── State stream ────────────────────────────────────────────

type streamEvent struct {
	Kind string            `json:"kind"`
	App  *models.AppState  `json:"app,omitempty"`
	Chat *models.ChatState `json:"chat,omitempty"`
}

// StreamState pushes app and chat snapshots over SSE until the client
// disconnects. The first two events are the current snapshots, so clients
// render immediately without a separate fetch.
func (h *Handlers) StreamState(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	appCh := ws.Controller.Subscribe()
	defer ws.Controller.Unsubscribe(appCh)
	chatCh := ws.Controller.Chat.Subscribe()
	defer ws.Controller.Chat.Unsubscribe(chatCh)

	send := func(ev streamEvent) {
		raw, err := json.Marshal(ev)
		if err != nil {
			return
		}
		w.Write([]byte("data: "))
		w.Write(raw)
		w.Write([]byte("\n\n"))
		flusher.Flush()
	}

	appState := ws.Controller.State()
	chatState := ws.Controller.Chat.State()
	send(streamEvent{Kind: "app", App: &appState})
	send(streamEvent{Kind: "chat", Chat: &chatState})

	for {
		select {
		case <-r.Context().Done():
			return
		case snapshot, open := <-appCh:
			if !open {
				return
			}
			send(streamEvent{Kind: "app", App: &snapshot})
		case snapshot, open := <-chatCh:
			if !open {
				return
			}
			send(streamEvent{Kind: "chat", Chat: &snapshot})
		}
	}
}

// ── Helpers ─────────────────────────────────────────────────

func waitRequested(r *http.Request) bool {
	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	return wait
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
