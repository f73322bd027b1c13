package chat

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"github.com/primarycredit/workspace/pkg/models"
)

// MockBackend is the deterministic echo backend used by the workspace until
// a real analytics backend is wired in, and by the tests. For any prompt it
// produces one composite assistant message whose block parts are, in order:
// text, integer, kv, table, image.
type MockBackend struct {
	// Delay simulates backend latency. Zero means respond immediately.
	Delay time.Duration

	imageChoices []string
}

// NewMockBackend creates a mock backend with the given simulated latency.
func NewMockBackend(delay time.Duration) *MockBackend {
	return &MockBackend{
		Delay: delay,
		imageChoices: []string{
			"/static/bot.png",
			"/static/chart.png",
		},
	}
}

// Respond implements contracts.ChatBackend.
func (b *MockBackend) Respond(ctx context.Context, history []models.Message) (models.Message, error) {
	if b.Delay > 0 {
		select {
		case <-time.After(b.Delay):
		case <-ctx.Done():
			return models.Message{}, ctx.Err()
		}
	}

	prompt := latestUserPrompt(history)
	words := 0
	if prompt != "" {
		words = len(strings.Fields(prompt))
	}

	echo := "Echoing your request: " + prompt
	if prompt == "" {
		echo = "Echoing your request: No prompt provided."
	}

	rows := []map[string]any{
		{"step": "Prompt length", "value": len(prompt)},
		{"step": "Words detected", "value": words},
	}
	pairs := []models.KVPair{
		{Key: "Prompt length", Value: len(prompt)},
		{Key: "Word count", Value: words},
		{Key: "Preview", Value: truncate(prompt, 48)},
	}

	block := models.BlockOf(
		models.TextPart(echo),
		models.IntegerPart(len(prompt)),
		models.KVPart(pairs),
		models.TablePart(rows),
		models.ImagePart(b.imageChoices[rand.Intn(len(b.imageChoices))]),
	)

	return models.Message{
		ID:        models.NewMessageID(),
		Role:      models.RoleAssistant,
		Blocks:    []models.MessageBlock{block},
		Metadata:  models.MessageMetadata{PythonCode: mockResponseCode},
		Status:    models.StatusComplete,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func latestUserPrompt(history []models.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role != models.RoleUser {
			continue
		}
		var texts []string
		for _, block := range history[i].Blocks {
			for _, part := range block.Parts {
				if part.Kind == models.PartText && part.Text != "" {
					texts = append(texts, part.Text)
				}
			}
		}
		return strings.Join(texts, " ")
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

var mockResponseCode = strings.Join([]string{
	"def generate_response(prompt: str) -> dict:",
	"    tokens = prompt.split()",
	"    return {",
	"        'length': len(prompt),",
	"        'words': len(tokens),",
	"        'preview': prompt[:64],",
	"    }",
}, "\n")
