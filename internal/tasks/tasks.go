// Package tasks implements the asynchronous session operations behind the
// app controller: the bootstrap handshake, dataset loading, rolling-window
// filtering, and inline feedback submission. Each operation runs under its
// own trace span.
package tasks

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/primarycredit/workspace/internal/credentials"
	"github.com/primarycredit/workspace/internal/feedback"
	"github.com/primarycredit/workspace/internal/storage"
	"github.com/primarycredit/workspace/pkg/models"
)

var tracer = otel.Tracer("workspace-tasks")

// datasetProvider is the remote dataset source created on demand.
type datasetProvider interface {
	ReadTable(ctx context.Context, table string) ([]map[string]any, error)
	Close()
}

// Tasks is the production SessionTasks implementation. One instance is
// shared by every workspace session.
type Tasks struct {
	log           zerolog.Logger
	storage       *storage.Client
	feedback      *feedback.SQLiteStore
	executionRoot string

	// postgres is created lazily on the first load against a database URL.
	// Sessions bootstrap concurrently, so the init is mutex-guarded.
	pgMu        sync.Mutex
	postgres    datasetProvider
	newProvider func(ctx context.Context, connURL string, log zerolog.Logger) (datasetProvider, error)
}

// New creates the task bundle. The feedback store may be nil, in which case
// inline feedback is only logged.
func New(log zerolog.Logger, store *storage.Client, fb *feedback.SQLiteStore, executionRoot string) *Tasks {
	return &Tasks{
		log:           log,
		storage:       store,
		feedback:      fb,
		executionRoot: executionRoot,
		newProvider: func(ctx context.Context, connURL string, log zerolog.Logger) (datasetProvider, error) {
			return storage.NewPostgresProvider(ctx, connURL, log)
		},
	}
}

// Close releases any lazily created providers.
func (t *Tasks) Close() {
	t.pgMu.Lock()
	defer t.pgMu.Unlock()
	if t.postgres != nil {
		t.postgres.Close()
	}
}

// ── Bootstrap ───────────────────────────────────────────────

// Bootstrap restores or initializes the credential session and hydrates the
// runtime credentials.
func (t *Tasks) Bootstrap(ctx context.Context) (models.BootstrapResult, error) {
	_, span := tracer.Start(ctx, "bootstrap")
	defer span.End()

	session := credentials.LoadSession()
	if session == nil {
		var err error
		session, err = credentials.Bootstrap(t.executionRoot)
		if err != nil {
			return models.BootstrapResult{}, fmt.Errorf("bootstrap environment: %w", err)
		}
	}

	creds := credentials.LoadRuntimeCredentials(session)
	t.log.Info().
		Str("dataset_key", creds.DatasetKey).
		Str("environment", creds.EnvironmentKey).
		Msg("bootstrap complete")
	return models.BootstrapResult{Credentials: creds}, nil
}

// ── Dataset loading ─────────────────────────────────────────

// LoadDataset fetches the issuance dataset: from PostgreSQL when a database
// URL is configured, else from the storage client's CSV, else a synthetic
// fallback so the workspace always has data to show.
func (t *Tasks) LoadDataset(ctx context.Context, creds models.RuntimeCredentials) (models.DatasetResult, error) {
	ctx, span := tracer.Start(ctx, "dataset.load")
	defer span.End()

	if creds.DatabaseURL != "" {
		dataset, err := t.loadPostgresDataset(ctx, creds)
		if err == nil {
			return dataset, nil
		}
		t.log.Error().Err(err).Msg("postgres dataset load failed")
	}
	if creds.DatasetKey != "" {
		dataset, err := t.loadLocalDataset(creds.DatasetKey)
		if err == nil {
			return dataset, nil
		}
		t.log.Error().Err(err).Str("key", creds.DatasetKey).Msg("dataset read failed")
	}

	t.log.Warn().Str("reason", "using synthetic fallback").Msg("dataset synthetic")
	return t.generateSyntheticDataset(60), nil
}

func (t *Tasks) loadPostgresDataset(ctx context.Context, creds models.RuntimeCredentials) (models.DatasetResult, error) {
	provider, err := t.postgresProvider(ctx, creds.DatabaseURL)
	if err != nil {
		return models.DatasetResult{}, err
	}

	table := creds.DatasetKey
	if table == "" {
		table = "issuance"
	}
	rows, err := provider.ReadTable(ctx, table)
	if err != nil {
		return models.DatasetResult{}, err
	}
	return buildDataset(rows, "postgres:"+table)
}

// postgresProvider returns the shared provider, creating it on first use.
func (t *Tasks) postgresProvider(ctx context.Context, connURL string) (datasetProvider, error) {
	t.pgMu.Lock()
	defer t.pgMu.Unlock()
	if t.postgres == nil {
		provider, err := t.newProvider(ctx, connURL, t.log)
		if err != nil {
			return nil, err
		}
		t.postgres = provider
	}
	return t.postgres, nil
}

func (t *Tasks) loadLocalDataset(key string) (models.DatasetResult, error) {
	rows, format, err := t.storage.ReadTable(key)
	if err != nil {
		return models.DatasetResult{}, err
	}
	return buildDataset(rows, "local:"+format)
}

func buildDataset(rows []map[string]any, source string) (models.DatasetResult, error) {
	var earliest, latest time.Time
	for _, row := range rows {
		date, ok := issueDate(row)
		if !ok {
			continue
		}
		if earliest.IsZero() || date.Before(earliest) {
			earliest = date
		}
		if latest.IsZero() || date.After(latest) {
			latest = date
		}
	}
	if earliest.IsZero() {
		return models.DatasetResult{}, fmt.Errorf("dataset from %s has no issue dates", source)
	}

	return models.DatasetResult{
		Rows:              rows,
		Source:            source,
		LoadedAt:          time.Now().UTC(),
		EarliestIssueDate: earliest,
		LatestIssueDate:   latest,
	}, nil
}

func (t *Tasks) generateSyntheticDataset(count int) models.DatasetResult {
	issuers := []string{"Alpha Bank", "Bravo Credit", "Cascade Holdings", "Delta Capital"}
	tenors := []string{"3Y", "5Y", "7Y", "10Y"}
	sizes := []int{250, 500, 750, 1000}
	currencies := []string{"USD", "EUR"}
	bookrunners := []string{"Sierra Markets", "Northwind Securities", "Plaza Brokerage"}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	rows := make([]map[string]any, 0, count)
	for i := 0; i < count; i++ {
		issueDate := today.AddDate(0, 0, -(count - i - 1))
		rows = append(rows, map[string]any{
			storage.IssueDateColumn: issueDate,
			"cusip":                 fmt.Sprintf("0000%05d", i),
			"issuer":                issuers[rand.Intn(len(issuers))],
			"tenor":                 tenors[rand.Intn(len(tenors))],
			"size_mm":               sizes[rand.Intn(len(sizes))],
			"currency":              currencies[rand.Intn(len(currencies))],
			"bookrunner":            bookrunners[rand.Intn(len(bookrunners))],
		})
	}

	return models.DatasetResult{
		Rows:              rows,
		Source:            "synthetic",
		LoadedAt:          time.Now().UTC(),
		EarliestIssueDate: today.AddDate(0, 0, -(count - 1)),
		LatestIssueDate:   today,
	}
}

// ── Filtering ───────────────────────────────────────────────

// FilterDataset returns the trailing windowDays slice of the dataset, ending
// at its latest issue date. windowDays == 1 keeps only rows dated on the
// latest issue date; windowDays == MaxWindowDays keeps every row.
func (t *Tasks) FilterDataset(ctx context.Context, dataset models.DatasetResult, windowDays int) (models.FilterResult, error) {
	_, span := tracer.Start(ctx, "dataset.filter",
		trace.WithAttributes(attribute.Int("window_days", windowDays)))
	defer span.End()

	if windowDays < 1 {
		return models.FilterResult{}, fmt.Errorf("window_days must be positive, got %d", windowDays)
	}

	start := time.Now()
	cutoff := dataset.LatestIssueDate.AddDate(0, 0, -(windowDays - 1))
	filtered := make([]map[string]any, 0, len(dataset.Rows))
	for _, row := range dataset.Rows {
		date, ok := issueDate(row)
		if !ok {
			continue
		}
		if !date.Before(cutoff) {
			filtered = append(filtered, row)
		}
	}
	durationMS := time.Since(start).Milliseconds()

	return models.FilterResult{
		WindowDays: windowDays,
		Rows:       filtered,
		RowCount:   len(filtered),
		DurationMS: durationMS,
		CacheHit:   false,
	}, nil
}

func issueDate(row map[string]any) (time.Time, bool) {
	value, ok := row[storage.IssueDateColumn]
	if !ok {
		return time.Time{}, false
	}
	switch v := value.(type) {
	case time.Time:
		return v.UTC().Truncate(24 * time.Hour), true
	case string:
		t, err := storage.ParseIssueDate(v)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	default:
		return time.Time{}, false
	}
}

// ── Feedback ────────────────────────────────────────────────

// SubmitInlineFeedback logs and, when a feedback store is configured,
// persists the submission.
func (t *Tasks) SubmitInlineFeedback(ctx context.Context, payload models.InlineFeedback) error {
	_, span := tracer.Start(ctx, "feedback.inline")
	defer span.End()

	t.log.Info().
		Str("conversation_id", payload.ConversationID).
		Str("comments", payload.Comments).
		Time("submitted_at", payload.SubmittedAt).
		Msg("inline feedback submitted")

	if t.feedback == nil {
		return nil
	}
	return t.feedback.SaveInline(payload)
}
