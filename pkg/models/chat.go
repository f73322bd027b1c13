// Package models defines the data contracts shared by the workspace
// controllers, the session tasks, and the HTTP API.
package models

import (
	"time"

	"github.com/google/uuid"
)

// ── Messages ─────────────────────────────────────────────────

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

type MessageStatus string

const (
	StatusPending  MessageStatus = "pending"
	StatusThinking MessageStatus = "thinking"
	StatusComplete MessageStatus = "complete"
)

type PartKind string

const (
	PartText    PartKind = "text"
	PartImage   PartKind = "image"
	PartTable   PartKind = "table"
	PartInteger PartKind = "integer"
	PartKV      PartKind = "kv"
)

// NewMessageID generates a stable unique identifier for messages.
func NewMessageID() string {
	return uuid.New().String()
}

// KVPair is one ordered key/value entry inside a kv part.
type KVPair struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// MessagePart is a single ordered fragment within a message block.
// Exactly one payload field is populated, matching Kind.
type MessagePart struct {
	Kind         PartKind         `json:"kind"`
	Text         string           `json:"text,omitempty"`
	ImagePath    string           `json:"image_path,omitempty"`
	TableRows    []map[string]any `json:"table_rows,omitempty"`
	IntegerValue int              `json:"integer_value,omitempty"`
	KVPairs      []KVPair         `json:"kv_pairs,omitempty"`
}

func TextPart(text string) MessagePart {
	return MessagePart{Kind: PartText, Text: text}
}

func ImagePart(path string) MessagePart {
	return MessagePart{Kind: PartImage, ImagePath: path}
}

func TablePart(rows []map[string]any) MessagePart {
	return MessagePart{Kind: PartTable, TableRows: rows}
}

func IntegerPart(value int) MessagePart {
	return MessagePart{Kind: PartInteger, IntegerValue: value}
}

func KVPart(pairs []KVPair) MessagePart {
	return MessagePart{Kind: PartKV, KVPairs: pairs}
}

// MessageBlock is an ordered group of fragments rendered together.
type MessageBlock struct {
	Parts []MessagePart `json:"parts"`
}

func SingleBlock(part MessagePart) MessageBlock {
	return MessageBlock{Parts: []MessagePart{part}}
}

func BlockOf(parts ...MessagePart) MessageBlock {
	return MessageBlock{Parts: parts}
}

// MessageMetadata carries supplementary payloads attached to a message.
type MessageMetadata struct {
	PythonCode string `json:"python_code,omitempty"`
	Source     string `json:"source,omitempty"`
	Logs       string `json:"logs,omitempty"`
}

// Message is a chat message composed of ordered blocks. Messages are owned
// exclusively by the chat state's message sequence and are replaced as whole
// values, never mutated in place by callers.
type Message struct {
	ID               string          `json:"id"`
	Role             MessageRole     `json:"role"`
	Blocks           []MessageBlock  `json:"blocks"`
	Metadata         MessageMetadata `json:"metadata"`
	Status           MessageStatus   `json:"status"`
	CreatedAt        time.Time       `json:"created_at"`
	ToolbarCollapsed bool            `json:"toolbar_collapsed"`
}

// ── Feedback ─────────────────────────────────────────────────

// FeedbackDraft is the mutable scratch value edited in the feedback panel.
type FeedbackDraft struct {
	MinutesSaved int    `json:"minutes_saved"`
	Score        int    `json:"score"`
	Comments     string `json:"comments"`
}

// NewFeedbackDraft returns the default draft shown when a panel first opens.
func NewFeedbackDraft() FeedbackDraft {
	return FeedbackDraft{MinutesSaved: 0, Score: 5, Comments: ""}
}

// FeedbackRecord is a submitted draft. Immutable once created.
type FeedbackRecord struct {
	FeedbackDraft
	SubmittedAt time.Time `json:"submitted_at"`
}

// ── Attestation ──────────────────────────────────────────────

// AttestationState tracks whether the user has passed the attestation gate.
// Invariant: Accepted implies !Required.
type AttestationState struct {
	Required       bool       `json:"required"`
	Accepted       bool       `json:"accepted"`
	LastAcceptedAt *time.Time `json:"last_accepted_at,omitempty"`
}

// ── Chat state ───────────────────────────────────────────────

// ChatState is the immutable snapshot published by the chat controller.
// A message id appears in FeedbackSubmissions or FeedbackDrafts, never both.
type ChatState struct {
	Messages                []Message                 `json:"messages"`
	PendingMessageIDs       []string                  `json:"pending_message_ids"`
	Attestation             AttestationState          `json:"attestation"`
	FeedbackSubmissions     map[string]FeedbackRecord `json:"feedback_submissions"`
	FeedbackDrafts          map[string]FeedbackDraft  `json:"feedback_drafts"`
	ActiveFeedbackMessageID string                    `json:"active_feedback_message_id,omitempty"`
	PromptCategories        map[string][]string       `json:"prompt_categories"`
}

// MessageIndex returns the current position of a message id, or -1.
// Resolution looks messages up by id rather than stored index because the
// sequence may have been mutated while a backend call was in flight.
func (s ChatState) MessageIndex(messageID string) int {
	for i, m := range s.Messages {
		if m.ID == messageID {
			return i
		}
	}
	return -1
}

// IsPending reports whether a message id is awaiting a backend reply.
func (s ChatState) IsPending(messageID string) bool {
	for _, id := range s.PendingMessageIDs {
		if id == messageID {
			return true
		}
	}
	return false
}
