package models

import "time"

// ── Dataset ──────────────────────────────────────────────────

// DatasetResult is the canonical representation of the loaded issuance
// dataset. Immutable once produced; a reload produces a fresh value.
type DatasetResult struct {
	Rows              []map[string]any `json:"rows"`
	Source            string           `json:"source"`
	LoadedAt          time.Time        `json:"loaded_at"`
	EarliestIssueDate time.Time        `json:"earliest_issue_date"`
	LatestIssueDate   time.Time        `json:"latest_issue_date"`
}

// RowCount returns the number of rows in the dataset.
func (d DatasetResult) RowCount() int {
	return len(d.Rows)
}

// MaxWindowDays is the widest lookback window the dataset can support:
// the inclusive day span between the earliest and latest issue dates.
func (d DatasetResult) MaxWindowDays() int {
	return int(d.LatestIssueDate.Sub(d.EarliestIssueDate).Hours()/24) + 1
}

// FilterResult is the outcome of applying a rolling window filter, keyed in
// the dataset cache by its window size. Immutable once produced.
type FilterResult struct {
	WindowDays int              `json:"window_days"`
	Rows       []map[string]any `json:"rows"`
	RowCount   int              `json:"row_count"`
	DurationMS int64            `json:"duration_ms"`
	CacheHit   bool             `json:"cache_hit"`
}

// InlineFeedback is the record submitted from the inline feedback panel.
type InlineFeedback struct {
	ConversationID string    `json:"conversation_id"`
	Comments       string    `json:"comments"`
	SubmittedAt    time.Time `json:"submitted_at"`
}

// ── Bootstrap ────────────────────────────────────────────────

// RuntimeCredentials is the non-sensitive configuration hydrated during
// bootstrap. The sensitive material stays inside internal/credentials.
type RuntimeCredentials struct {
	AppDisplayName string            `json:"app_display_name"`
	AppName        string            `json:"app_name"`
	AppVersion     string            `json:"app_version"`
	EnvironmentKey string            `json:"environment"`
	Region         string            `json:"region"`
	UID            string            `json:"uid,omitempty"`
	DatasetKey     string            `json:"dataset_key,omitempty"`
	DatabaseURL    string            `json:"-"`
	LLMModel       string            `json:"llm_model,omitempty"`
	Extra          map[string]string `json:"extra,omitempty"`
}

// PublicConfig returns the subset of credentials safe to expose to the UI.
func (c RuntimeCredentials) PublicConfig() map[string]string {
	cfg := map[string]string{
		"app_display_name": c.AppDisplayName,
		"app_name":         c.AppName,
		"app_version":      c.AppVersion,
		"environment":      c.EnvironmentKey,
		"region":           c.Region,
		"dataset_key":      c.DatasetKey,
		"llm_model":        c.LLMModel,
	}
	for k, v := range c.Extra {
		cfg[k] = v
	}
	return cfg
}

// BootstrapResult is the outcome of the initial bootstrap handshake.
type BootstrapResult struct {
	Credentials RuntimeCredentials `json:"credentials"`
}

// PublicConfig exposes the credential summary for the session state.
func (b BootstrapResult) PublicConfig() map[string]string {
	return b.Credentials.PublicConfig()
}
