package models

// ── Application state ────────────────────────────────────────

// DefaultAttestationMessage is shown by the terms gate before the workspace
// unlocks AI-generated output.
const DefaultAttestationMessage = "I confirm that I will validate AI output before using it for credit decisions."

// GateState is the minimal state required for the login/attestation flow.
type GateState struct {
	IsAuthenticated    bool   `json:"is_authenticated"`
	HasAcceptedTerms   bool   `json:"has_accepted_terms"`
	Username           string `json:"username,omitempty"`
	AttestationMessage string `json:"attestation_message"`
}

// SessionState tracks the bootstrap/load lifecycle of a workspace session.
type SessionState struct {
	Bootstrapping bool              `json:"bootstrapping"`
	Ready         bool              `json:"ready"`
	Error         string            `json:"error,omitempty"`
	LoadingLabel  string            `json:"loading_label"`
	PublicConfig  map[string]string `json:"public_config,omitempty"`
}

// DatasetState holds the loaded dataset, the active filter, and the
// per-window filter cache. The cache is reset wholesale whenever Raw is
// replaced: every cached FilterResult was computed against the old dataset.
type DatasetState struct {
	Raw             *DatasetResult       `json:"raw,omitempty"`
	Filtered        *FilterResult        `json:"filtered,omitempty"`
	Cache           map[int]FilterResult `json:"-"`
	LookbackDays    int                  `json:"lookback_days"`
	MaxLookbackDays int                  `json:"max_lookback_days"`
	CacheHits       int                  `json:"cache_hits"`
	CacheMisses     int                  `json:"cache_misses"`
	LastDurationMS  *int64               `json:"last_duration_ms,omitempty"`
	LastCacheHit    bool                 `json:"last_cache_hit"`
}

// UIState carries presentation toggles and the inline feedback scratchpad.
type UIState struct {
	SidebarOpen          bool   `json:"sidebar_open"`
	ActiveTab            string `json:"active_tab"`
	InlineFeedbackText   string `json:"inline_feedback_text"`
	InlineFeedbackStatus string `json:"inline_feedback_status"`
	ConversationID       string `json:"conversation_id"`
}

// Inline feedback panel statuses.
const (
	FeedbackIdle       = "idle"
	FeedbackSubmitting = "submitting"
	FeedbackSubmitted  = "submitted"
)

// AppState is the immutable snapshot published by the app controller.
// Every mutation replaces the whole container via a pure transform so that
// concurrent readers never observe a partially updated snapshot.
type AppState struct {
	Gate    GateState    `json:"gate"`
	Session SessionState `json:"session"`
	Dataset DatasetState `json:"dataset"`
	UI      UIState      `json:"ui"`
}

// NewConversationID returns the short conversation handle shown in the
// inline feedback panel and rotated after every submission.
func NewConversationID() string {
	return NewMessageID()[:8]
}

// NewAppState returns the pre-bootstrap default snapshot.
func NewAppState() AppState {
	return AppState{
		Gate: GateState{AttestationMessage: DefaultAttestationMessage},
		Session: SessionState{
			LoadingLabel: "Preparing workspace…",
		},
		Dataset: DatasetState{
			Cache:           map[int]FilterResult{},
			LookbackDays:    14,
			MaxLookbackDays: 60,
		},
		UI: UIState{
			ActiveTab:            "new_issues",
			InlineFeedbackStatus: FeedbackIdle,
			ConversationID:       NewConversationID(),
		},
	}
}
