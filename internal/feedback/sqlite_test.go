package feedback_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/primarycredit/workspace/internal/feedback"
	"github.com/primarycredit/workspace/pkg/models"
)

func newStore(t *testing.T) *feedback.SQLiteStore {
	t.Helper()
	store, err := feedback.NewSQLiteStore(filepath.Join(t.TempDir(), "feedback.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSaveInlineAndCount(t *testing.T) {
	store := newStore(t)

	for i := 0; i < 3; i++ {
		err := store.SaveInline(models.InlineFeedback{
			ConversationID: "conv-1",
			Comments:       "useful",
			SubmittedAt:    time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("SaveInline() error = %v", err)
		}
	}

	n, err := store.CountInline()
	if err != nil {
		t.Fatalf("CountInline() error = %v", err)
	}
	if n != 3 {
		t.Errorf("CountInline() = %d, want 3", n)
	}
}

func TestSaveMessageUpsertsOnResubmit(t *testing.T) {
	store := newStore(t)

	record := models.FeedbackRecord{
		FeedbackDraft: models.FeedbackDraft{MinutesSaved: 10, Score: 7, Comments: "first"},
		SubmittedAt:   time.Now().UTC(),
	}
	if err := store.SaveMessage("m1", record); err != nil {
		t.Fatalf("SaveMessage() error = %v", err)
	}

	record.Score = 9
	record.Comments = "revised"
	if err := store.SaveMessage("m1", record); err != nil {
		t.Fatalf("SaveMessage() resubmit error = %v", err)
	}
}

func TestSaveMessageRejectsOutOfRangeScore(t *testing.T) {
	store := newStore(t)

	record := models.FeedbackRecord{
		FeedbackDraft: models.FeedbackDraft{Score: 11},
		SubmittedAt:   time.Now().UTC(),
	}
	if err := store.SaveMessage("m1", record); err == nil {
		t.Error("SaveMessage() accepted score outside 1..10")
	}
}
