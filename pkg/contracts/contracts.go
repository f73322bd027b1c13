// Package contracts defines the collaborator interfaces the workspace
// controllers depend on. The controllers treat every method here as a
// black-box async operation: failures are caught at the controller boundary
// and converted to state, never propagated out of a public method.
//
// Concrete implementations live under internal/ (attestation, chat, tasks);
// alternate backends are injected at construction, so swapping the mock chat
// backend for a real one is a single line change in the wiring code.
package contracts

import (
	"context"

	"github.com/primarycredit/workspace/pkg/models"
)

// ── Attestation ─────────────────────────────────────────────

// AttestationDecision is the tri-state value persisted by the attestation
// gate: unknown until the user has ever answered, then accepted or declined.
type AttestationDecision int

const (
	AttestationUnknown AttestationDecision = iota
	AttestationAccepted
	AttestationDeclined
)

// AttestationStore persists the legal disclaimer decision.
type AttestationStore interface {
	// Read returns the persisted decision. An unreadable or corrupt store
	// reports AttestationUnknown rather than an error.
	Read() AttestationDecision

	// Write persists the decision. Callers treat the write as
	// fire-and-forget; a returned error is logged, not surfaced.
	Write(accepted bool) error
}

// MessageFeedbackSink persists submitted per-message feedback. Writes are
// fire-and-forget like AttestationStore.Write: errors are logged, never
// surfaced to the submitting user.
type MessageFeedbackSink interface {
	SaveMessage(messageID string, record models.FeedbackRecord) error
}

// ── Chat backend ────────────────────────────────────────────

// ChatBackend computes one assistant message from an ordered history.
// The placeholder message the UI shows while the call is in flight is not
// part of the history the backend sees.
type ChatBackend interface {
	Respond(ctx context.Context, history []models.Message) (models.Message, error)
}

// ── Session tasks ───────────────────────────────────────────

// SessionTasks bundles the asynchronous operations driven by the app
// controller. All results are immutable value objects.
type SessionTasks interface {
	// Bootstrap performs the initial credential/config handshake.
	Bootstrap(ctx context.Context) (models.BootstrapResult, error)

	// LoadDataset fetches the issuance dataset for the bootstrapped
	// credentials.
	LoadDataset(ctx context.Context, creds models.RuntimeCredentials) (models.DatasetResult, error)

	// FilterDataset produces the trailing windowDays slice of the dataset,
	// ending at its latest issue date.
	FilterDataset(ctx context.Context, dataset models.DatasetResult, windowDays int) (models.FilterResult, error)

	// SubmitInlineFeedback records an inline feedback payload. Failures are
	// swallowed by the caller's finally semantics.
	SubmitInlineFeedback(ctx context.Context, payload models.InlineFeedback) error
}
