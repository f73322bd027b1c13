// Package chat implements the chat controller: message lifecycle against the
// backend, the attestation gate, and per-message feedback.
package chat

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/primarycredit/workspace/internal/state"
	"github.com/primarycredit/workspace/pkg/contracts"
	"github.com/primarycredit/workspace/pkg/models"
)

// Controller orchestrates chat interactions. All state mutations go through
// the snapshot container; the controller itself holds no mutable chat data.
type Controller struct {
	backend contracts.ChatBackend
	store   contracts.AttestationStore
	sink    contracts.MessageFeedbackSink
	log     zerolog.Logger
	state   *state.Container[models.ChatState]
}

// Options configures controller construction.
type Options struct {
	Backend          contracts.ChatBackend
	AttestationStore contracts.AttestationStore
	PromptCategories map[string][]string
	Logger           zerolog.Logger

	// FeedbackSink, when set, receives every submitted per-message feedback
	// record. Nil means submissions live in state only.
	FeedbackSink contracts.MessageFeedbackSink
}

// New builds a controller, deriving the initial attestation state from a
// single read of the store: only a persisted acceptance skips the gate; an
// unknown or declined decision both require it.
func New(opts Options) *Controller {
	accepted := opts.AttestationStore.Read() == contracts.AttestationAccepted

	categories := opts.PromptCategories
	if categories == nil {
		categories = map[string][]string{}
	}

	initial := models.ChatState{
		Attestation: models.AttestationState{
			Required: !accepted,
			Accepted: accepted,
		},
		FeedbackSubmissions: map[string]models.FeedbackRecord{},
		FeedbackDrafts:      map[string]models.FeedbackDraft{},
		PromptCategories:    categories,
	}

	return &Controller{
		backend: opts.Backend,
		store:   opts.AttestationStore,
		sink:    opts.FeedbackSink,
		log:     opts.Logger,
		state:   state.New(initial),
	}
}

// State returns the latest published chat snapshot.
func (c *Controller) State() models.ChatState {
	return c.state.Get()
}

// Subscribe registers a listener for chat snapshots.
func (c *Controller) Subscribe() <-chan models.ChatState {
	return c.state.Subscribe()
}

// Unsubscribe removes a snapshot listener.
func (c *Controller) Unsubscribe(ch <-chan models.ChatState) {
	c.state.Unsubscribe(ch)
}

// ── Attestation ─────────────────────────────────────────────

// RecordAttestation publishes the new attestation state, then persists the
// decision. The write is fire-and-forget: a persistence failure is logged
// and not surfaced to the caller.
func (c *Controller) RecordAttestation(accepted bool) {
	now := time.Now().UTC()

	c.state.Update(func(prev models.ChatState) models.ChatState {
		next := prev
		next.Attestation = models.AttestationState{
			Required: !accepted,
			Accepted: accepted,
		}
		if accepted {
			next.Attestation.LastAcceptedAt = &now
		}
		return next
	})

	if err := c.store.Write(accepted); err != nil {
		c.log.Error().Err(err).Bool("accepted", accepted).Msg("attestation write failed")
	}
}

// ── Messaging ───────────────────────────────────────────────

// SendUserMessage appends the user message and its paired "Thinking…"
// placeholder in one atomic update, then resolves the placeholder from the
// backend asynchronously. The returned channel closes once the resolution
// has been published, letting callers and tests await it deterministically.
//
// Multiple sends may be in flight concurrently; each resolution writes back
// to its own placeholder id, so they do not interfere.
func (c *Controller) SendUserMessage(ctx context.Context, text string) <-chan struct{} {
	done := make(chan struct{})

	text = strings.TrimSpace(text)
	if text == "" {
		close(done)
		return done
	}

	now := time.Now().UTC()
	userMessage := models.Message{
		ID:        models.NewMessageID(),
		Role:      models.RoleUser,
		Blocks:    []models.MessageBlock{models.SingleBlock(models.TextPart(text))},
		Status:    models.StatusComplete,
		CreatedAt: now,
	}
	assistantID := models.NewMessageID()
	placeholder := models.Message{
		ID:               assistantID,
		Role:             models.RoleAssistant,
		Blocks:           []models.MessageBlock{models.SingleBlock(models.TextPart("Thinking…"))},
		Status:           models.StatusThinking,
		CreatedAt:        now,
		ToolbarCollapsed: true,
	}

	// The history snapshot for the backend is captured inside the update so
	// it is consistent with the published state: everything before this send
	// plus the new user message, excluding the placeholder.
	var history []models.Message
	c.state.Update(func(prev models.ChatState) models.ChatState {
		history = make([]models.Message, 0, len(prev.Messages)+1)
		history = append(history, prev.Messages...)
		history = append(history, userMessage)

		next := prev
		next.Messages = make([]models.Message, 0, len(history)+1)
		next.Messages = append(next.Messages, history...)
		next.Messages = append(next.Messages, placeholder)
		next.PendingMessageIDs = append(append([]string{}, prev.PendingMessageIDs...), assistantID)
		return next
	})

	// Once the pair is published the resolution must settle, even when the
	// originating request has already returned. Trace values carry over;
	// only cancellation is severed.
	ctx = context.WithoutCancel(ctx)

	go func() {
		defer close(done)
		c.resolveAssistant(ctx, assistantID, history)
	}()
	return done
}

// resolveAssistant settles a placeholder once the backend call completes.
// The final message is written at the placeholder's current index, looked up
// by id: the list may have grown since the send. A missing id means the
// history was cleared while the call was in flight; the result is dropped.
func (c *Controller) resolveAssistant(ctx context.Context, assistantID string, history []models.Message) {
	final, err := c.backend.Respond(ctx, history)
	if err != nil {
		c.log.Error().Err(err).Str("message_id", assistantID).Msg("chat backend failed")
		final = models.Message{
			ID:   assistantID,
			Role: models.RoleAssistant,
			Blocks: []models.MessageBlock{models.BlockOf(
				models.TextPart("Sorry, something went wrong."),
				models.TextPart(err.Error()),
			)},
			Status:    models.StatusComplete,
			CreatedAt: time.Now().UTC(),
		}
	} else {
		final.ID = assistantID
		final.Status = models.StatusComplete
	}

	c.state.Update(func(prev models.ChatState) models.ChatState {
		next := prev
		if idx := prev.MessageIndex(assistantID); idx >= 0 {
			messages := append([]models.Message{}, prev.Messages...)
			messages[idx] = final
			next.Messages = messages
		}
		pending := make([]string, 0, len(prev.PendingMessageIDs))
		for _, id := range prev.PendingMessageIDs {
			if id != assistantID {
				pending = append(pending, id)
			}
		}
		next.PendingMessageIDs = pending
		return next
	})
}

// ── Toolbar & feedback ──────────────────────────────────────

// ToggleCodePanel flips the toolbar state of one message. Unknown ids are a
// no-op.
func (c *Controller) ToggleCodePanel(messageID string) {
	c.state.Update(func(prev models.ChatState) models.ChatState {
		idx := prev.MessageIndex(messageID)
		if idx < 0 {
			return prev
		}
		next := prev
		messages := append([]models.Message{}, prev.Messages...)
		messages[idx].ToolbarCollapsed = !messages[idx].ToolbarCollapsed
		next.Messages = messages
		return next
	})
}

// ToggleFeedbackPanel opens the feedback panel for a message, closing any
// other open panel; toggling the already-open panel closes it.
func (c *Controller) ToggleFeedbackPanel(messageID string) {
	c.state.Update(func(prev models.ChatState) models.ChatState {
		next := prev
		if prev.ActiveFeedbackMessageID == messageID {
			next.ActiveFeedbackMessageID = ""
		} else {
			next.ActiveFeedbackMessageID = messageID
		}
		return next
	})
}

// UpdateFeedbackDraft applies a pure mutator to the draft for a message,
// starting from the default draft when none exists yet.
func (c *Controller) UpdateFeedbackDraft(messageID string, mutate func(models.FeedbackDraft) models.FeedbackDraft) {
	c.state.Update(func(prev models.ChatState) models.ChatState {
		next := prev
		drafts := make(map[string]models.FeedbackDraft, len(prev.FeedbackDrafts)+1)
		for k, v := range prev.FeedbackDrafts {
			drafts[k] = v
		}
		draft, ok := drafts[messageID]
		if !ok {
			draft = models.NewFeedbackDraft()
		}
		drafts[messageID] = mutate(draft)
		next.FeedbackDrafts = drafts
		return next
	})
}

// SubmitFeedback turns the draft for a message into an immutable record,
// removes the draft, and closes the panel if it was open for that message.
// No draft means no-op. The transition is one-way; reopening the panel for a
// submitted id is refused by the UI layer, not here. The record is then
// handed to the feedback sink; a persistence failure is logged, the state
// transition stands either way.
func (c *Controller) SubmitFeedback(messageID string) {
	var record models.FeedbackRecord
	var submitted bool

	c.state.Update(func(prev models.ChatState) models.ChatState {
		draft, ok := prev.FeedbackDrafts[messageID]
		if !ok {
			return prev
		}
		record = models.FeedbackRecord{
			FeedbackDraft: draft,
			SubmittedAt:   time.Now().UTC(),
		}
		submitted = true

		next := prev
		submissions := make(map[string]models.FeedbackRecord, len(prev.FeedbackSubmissions)+1)
		for k, v := range prev.FeedbackSubmissions {
			submissions[k] = v
		}
		submissions[messageID] = record

		drafts := make(map[string]models.FeedbackDraft, len(prev.FeedbackDrafts))
		for k, v := range prev.FeedbackDrafts {
			if k != messageID {
				drafts[k] = v
			}
		}

		next.FeedbackSubmissions = submissions
		next.FeedbackDrafts = drafts
		if prev.ActiveFeedbackMessageID == messageID {
			next.ActiveFeedbackMessageID = ""
		}
		return next
	})

	if !submitted || c.sink == nil {
		return
	}
	if err := c.sink.SaveMessage(messageID, record); err != nil {
		c.log.Error().Err(err).Str("message_id", messageID).Msg("message feedback write failed")
	}
}
