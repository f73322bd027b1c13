package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/primarycredit/workspace/internal/app"
	"github.com/primarycredit/workspace/internal/attestation"
	"github.com/primarycredit/workspace/internal/chat"
	"github.com/primarycredit/workspace/pkg/contracts"
	"github.com/primarycredit/workspace/pkg/models"
)

// stubTasks is a controllable SessionTasks double. Error fields can be
// flipped between calls; counters record how often each task ran.
type stubTasks struct {
	mu sync.Mutex

	bootstrapErr error
	loadErr      error
	filterErr    error
	feedbackErr  error

	dataset models.DatasetResult

	bootstrapCalls int
	loadCalls      int
	filterCalls    int
	feedback       []models.InlineFeedback
}

func (s *stubTasks) Bootstrap(context.Context) (models.BootstrapResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bootstrapCalls++
	if s.bootstrapErr != nil {
		return models.BootstrapResult{}, s.bootstrapErr
	}
	return models.BootstrapResult{
		Credentials: models.RuntimeCredentials{
			AppDisplayName: "Primary Credit Workspace",
			AppName:        "workspace-test",
			EnvironmentKey: "test",
		},
	}, nil
}

func (s *stubTasks) LoadDataset(context.Context, models.RuntimeCredentials) (models.DatasetResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadCalls++
	if s.loadErr != nil {
		return models.DatasetResult{}, s.loadErr
	}
	return s.dataset, nil
}

func (s *stubTasks) FilterDataset(_ context.Context, dataset models.DatasetResult, windowDays int) (models.FilterResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filterCalls++
	if s.filterErr != nil {
		return models.FilterResult{}, s.filterErr
	}
	cutoff := dataset.LatestIssueDate.AddDate(0, 0, -(windowDays - 1))
	var rows []map[string]any
	for _, row := range dataset.Rows {
		if date, ok := row["issue_date"].(time.Time); ok && !date.Before(cutoff) {
			rows = append(rows, row)
		}
	}
	return models.FilterResult{
		WindowDays: windowDays,
		Rows:       rows,
		RowCount:   len(rows),
		DurationMS: int64(windowDays * 10),
	}, nil
}

func (s *stubTasks) SubmitInlineFeedback(_ context.Context, payload models.InlineFeedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feedback = append(s.feedback, payload)
	return s.feedbackErr
}

func (s *stubTasks) counts() (bootstrap, load, filter int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bootstrapCalls, s.loadCalls, s.filterCalls
}

func (s *stubTasks) setFilterErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filterErr = err
}

func (s *stubTasks) setDataset(d models.DatasetResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dataset = d
}

// datasetOfDays builds a dataset with one row per day, newest last.
func datasetOfDays(days int) models.DatasetResult {
	latest := time.Date(2026, time.August, 29, 0, 0, 0, 0, time.UTC)
	earliest := latest.AddDate(0, 0, -(days - 1))
	rows := make([]map[string]any, 0, days)
	for i := 0; i < days; i++ {
		rows = append(rows, map[string]any{
			"issue_date": earliest.AddDate(0, 0, i),
			"issuer":     "Alpha Bank",
		})
	}
	return models.DatasetResult{
		Rows:              rows,
		Source:            "stub",
		LoadedAt:          latest,
		EarliestIssueDate: earliest,
		LatestIssueDate:   latest,
	}
}

func newWorkspace(t *testing.T, tasks contracts.SessionTasks) *app.Controller {
	t.Helper()
	chatCtrl := chat.New(chat.Options{
		Backend:          chat.NewMockBackend(0),
		AttestationStore: attestation.NewMemoryStore(contracts.AttestationUnknown),
		Logger:           zerolog.Nop(),
	})
	c := app.New(app.Options{
		Chat:               chatCtrl,
		Tasks:              tasks,
		Logger:             zerolog.Nop(),
		FeedbackResetDelay: 5 * time.Millisecond,
	})
	t.Cleanup(c.Close)
	return c
}

func awaitBootstrap(t *testing.T, c *app.Controller) {
	t.Helper()
	select {
	case <-c.BootstrapDone():
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for bootstrap")
	}
}

func await(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for operation")
	}
}

// ── Bootstrap & dataset loading ─────────────────────────────

func TestBootstrapReachesReadyWithFilteredDataset(t *testing.T) {
	tasks := &stubTasks{dataset: datasetOfDays(30)}
	c := newWorkspace(t, tasks)
	awaitBootstrap(t, c)

	st := c.State()
	if !st.Session.Ready {
		t.Fatalf("Session.Ready = false after bootstrap, error = %q", st.Session.Error)
	}
	if st.Session.Bootstrapping {
		t.Error("Session.Bootstrapping = true after bootstrap settled")
	}
	if got, want := st.Session.LoadingLabel, "Workspace ready"; got != want {
		t.Errorf("LoadingLabel = %q, want %q", got, want)
	}
	if got := st.Session.PublicConfig["app_name"]; got != "workspace-test" {
		t.Errorf("PublicConfig[app_name] = %q", got)
	}

	if st.Dataset.Raw == nil {
		t.Fatal("Dataset.Raw is nil")
	}
	if st.Dataset.Filtered == nil {
		t.Fatal("Dataset.Filtered is nil: ready published before the initial filter")
	}
	if got, want := st.Dataset.LookbackDays, 14; got != want {
		t.Errorf("LookbackDays = %d, want default %d", got, want)
	}
	if got, want := st.Dataset.MaxLookbackDays, 30; got != want {
		t.Errorf("MaxLookbackDays = %d, want %d", got, want)
	}
	if got, want := st.Dataset.Filtered.RowCount, 14; got != want {
		t.Errorf("Filtered.RowCount = %d, want %d", got, want)
	}
	if st.Dataset.CacheMisses != 1 || st.Dataset.CacheHits != 0 {
		t.Errorf("cache counters = %d hits / %d misses, want 0/1",
			st.Dataset.CacheHits, st.Dataset.CacheMisses)
	}

	bootstraps, loads, filters := tasks.counts()
	if bootstraps != 1 || loads != 1 || filters != 1 {
		t.Errorf("task calls = %d bootstrap / %d load / %d filter, want 1/1/1", bootstraps, loads, filters)
	}
}

func TestBootstrapFailurePublishesError(t *testing.T) {
	tasks := &stubTasks{bootstrapErr: errors.New("vault unreachable")}
	c := newWorkspace(t, tasks)
	awaitBootstrap(t, c)

	st := c.State()
	if st.Session.Ready {
		t.Error("Session.Ready = true after failed bootstrap")
	}
	if st.Session.Bootstrapping {
		t.Error("Session.Bootstrapping left true after failed bootstrap")
	}
	if got, want := st.Session.Error, "vault unreachable"; got != want {
		t.Errorf("Session.Error = %q, want %q", got, want)
	}

	_, loads, _ := tasks.counts()
	if loads != 0 {
		t.Errorf("LoadDataset called %d times after failed bootstrap, want 0", loads)
	}
}

func TestDatasetLoadFailurePublishesError(t *testing.T) {
	tasks := &stubTasks{loadErr: errors.New("table missing")}
	c := newWorkspace(t, tasks)
	awaitBootstrap(t, c)

	st := c.State()
	if st.Session.Ready {
		t.Error("Session.Ready = true after failed load")
	}
	if got, want := st.Session.Error, "table missing"; got != want {
		t.Errorf("Session.Error = %q, want %q", got, want)
	}
	if st.Dataset.Raw != nil {
		t.Error("Dataset.Raw set despite load failure")
	}
}

func TestInitialLookbackClampsToDatasetSpan(t *testing.T) {
	tasks := &stubTasks{dataset: datasetOfDays(10)}
	c := newWorkspace(t, tasks)
	awaitBootstrap(t, c)

	st := c.State()
	if got, want := st.Dataset.LookbackDays, 10; got != want {
		t.Errorf("LookbackDays = %d, want clamped %d", got, want)
	}
	if got, want := st.Dataset.MaxLookbackDays, 10; got != want {
		t.Errorf("MaxLookbackDays = %d, want %d", got, want)
	}
}

// ── Filter cache ────────────────────────────────────────────

func TestSetLookbackDaysCachesPerWindow(t *testing.T) {
	tasks := &stubTasks{dataset: datasetOfDays(30)}
	c := newWorkspace(t, tasks)
	awaitBootstrap(t, c)

	await(t, c.SetLookbackDays(7))

	st := c.State()
	if got, want := st.Dataset.Filtered.RowCount, 7; got != want {
		t.Fatalf("Filtered.RowCount = %d, want %d", got, want)
	}
	if st.Dataset.LastCacheHit {
		t.Error("LastCacheHit = true on first filter for window 7")
	}
	if st.Dataset.CacheMisses != 2 {
		t.Errorf("CacheMisses = %d, want 2", st.Dataset.CacheMisses)
	}

	_, _, filtersBefore := tasks.counts()

	// Both windows are cached now: 14 from bootstrap, 7 from above.
	// Revisiting them must not re-run the task.
	await(t, c.SetLookbackDays(14))
	await(t, c.SetLookbackDays(7))

	_, _, filtersAfter := tasks.counts()
	if filtersAfter != filtersBefore {
		t.Errorf("filter task ran %d more times on cached windows, want 0", filtersAfter-filtersBefore)
	}

	st = c.State()
	if !st.Dataset.Filtered.CacheHit {
		t.Error("Filtered.CacheHit = false on cached window")
	}
	if !st.Dataset.LastCacheHit {
		t.Error("LastCacheHit = false on cached window")
	}
	if st.Dataset.LastDurationMS == nil || *st.Dataset.LastDurationMS != 70 {
		t.Errorf("LastDurationMS = %v, want original 70 for window 7", st.Dataset.LastDurationMS)
	}
	if got, want := st.Dataset.CacheHits, 2; got != want {
		t.Errorf("CacheHits = %d, want %d (14 then 7 revisits)", got, want)
	}
	// The stored entry keeps cache_hit false; only the published copy is
	// re-tagged.
	if entry := st.Dataset.Cache[7]; entry.CacheHit {
		t.Error("cache entry for window 7 was re-tagged cache_hit=true")
	}
}

func TestSetLookbackDaysClampsRange(t *testing.T) {
	tasks := &stubTasks{dataset: datasetOfDays(30)}
	c := newWorkspace(t, tasks)
	awaitBootstrap(t, c)

	await(t, c.SetLookbackDays(0))
	if got := c.State().Dataset.LookbackDays; got != 1 {
		t.Errorf("LookbackDays = %d after requesting 0, want 1", got)
	}

	await(t, c.SetLookbackDays(500))
	if got := c.State().Dataset.LookbackDays; got != 30 {
		t.Errorf("LookbackDays = %d after requesting 500, want max 30", got)
	}
}

func TestReloadDatasetResetsCacheAndCounters(t *testing.T) {
	tasks := &stubTasks{dataset: datasetOfDays(30)}
	c := newWorkspace(t, tasks)
	awaitBootstrap(t, c)

	// Populate the cache with two windows and one hit.
	await(t, c.SetLookbackDays(7))
	await(t, c.SetLookbackDays(14))

	st := c.State()
	if len(st.Dataset.Cache) != 2 || st.Dataset.CacheHits != 1 || st.Dataset.CacheMisses != 2 {
		t.Fatalf("pre-reload cache = %d entries, %d hits, %d misses, want 2/1/2",
			len(st.Dataset.Cache), st.Dataset.CacheHits, st.Dataset.CacheMisses)
	}

	// A new dataset invalidates every cached window.
	tasks.setDataset(datasetOfDays(10))
	await(t, c.ReloadDataset())

	st = c.State()
	if got, want := st.Dataset.MaxLookbackDays, 10; got != want {
		t.Errorf("MaxLookbackDays = %d after reload, want %d", got, want)
	}
	if got, want := st.Dataset.LookbackDays, 10; got != want {
		t.Errorf("LookbackDays = %d after reload, want clamped %d", got, want)
	}
	if st.Dataset.CacheHits != 0 {
		t.Errorf("CacheHits = %d after reload, want 0", st.Dataset.CacheHits)
	}
	if st.Dataset.CacheMisses != 1 {
		t.Errorf("CacheMisses = %d after reload, want 1 (the fresh initial filter)", st.Dataset.CacheMisses)
	}
	if len(st.Dataset.Cache) != 1 {
		t.Errorf("len(Cache) = %d after reload, want only the current window", len(st.Dataset.Cache))
	}
	if _, stale := st.Dataset.Cache[7]; stale {
		t.Error("window 7 survived the reload in the cache")
	}
	if st.Dataset.Filtered == nil || st.Dataset.Filtered.RowCount != 10 {
		t.Errorf("Filtered = %+v after reload, want 10 rows of the new dataset", st.Dataset.Filtered)
	}
	if !st.Session.Ready {
		t.Error("Session.Ready = false after reload")
	}
}

func TestFilterFailureKeepsPriorView(t *testing.T) {
	tasks := &stubTasks{dataset: datasetOfDays(30)}
	c := newWorkspace(t, tasks)
	awaitBootstrap(t, c)

	before := c.State().Dataset.Filtered
	tasks.setFilterErr(errors.New("filter backend down"))

	await(t, c.SetLookbackDays(21))

	st := c.State()
	if got, want := st.Dataset.LookbackDays, 21; got != want {
		t.Errorf("LookbackDays = %d, want optimistic %d", got, want)
	}
	if st.Dataset.Filtered == nil || st.Dataset.Filtered.WindowDays != before.WindowDays {
		t.Error("Filtered view replaced despite filter failure")
	}
	if _, cached := st.Dataset.Cache[21]; cached {
		t.Error("failed filter result entered the cache")
	}
}

// ── Gates & UI ──────────────────────────────────────────────

func TestAuthenticateSetsGate(t *testing.T) {
	c := newWorkspace(t, &stubTasks{dataset: datasetOfDays(5)})

	c.Authenticate("analyst")

	gate := c.State().Gate
	if !gate.IsAuthenticated {
		t.Error("IsAuthenticated = false after Authenticate")
	}
	if gate.Username != "analyst" {
		t.Errorf("Username = %q, want analyst", gate.Username)
	}
}

func TestAcceptTermsRecordsAttestation(t *testing.T) {
	c := newWorkspace(t, &stubTasks{dataset: datasetOfDays(5)})

	c.AcceptTerms()

	if !c.State().Gate.HasAcceptedTerms {
		t.Error("HasAcceptedTerms = false after AcceptTerms")
	}
	att := c.Chat.State().Attestation
	if !att.Accepted || att.Required {
		t.Errorf("chat attestation = {Accepted: %v, Required: %v}, want accepted", att.Accepted, att.Required)
	}
}

func TestSidebarAndTab(t *testing.T) {
	c := newWorkspace(t, &stubTasks{dataset: datasetOfDays(5)})

	c.ToggleSidebar()
	if !c.State().UI.SidebarOpen {
		t.Error("SidebarOpen = false after toggle")
	}
	c.SetSidebar(false)
	if c.State().UI.SidebarOpen {
		t.Error("SidebarOpen = true after SetSidebar(false)")
	}
	c.SetActiveTab("analytics")
	if got := c.State().UI.ActiveTab; got != "analytics" {
		t.Errorf("ActiveTab = %q, want analytics", got)
	}
}

// ── Inline feedback ─────────────────────────────────────────

func TestSubmitInlineFeedbackClearsAndRotates(t *testing.T) {
	tasks := &stubTasks{dataset: datasetOfDays(5)}
	c := newWorkspace(t, tasks)
	awaitBootstrap(t, c)

	before := c.State().UI.ConversationID
	c.UpdateInlineFeedbackText("  filters feel snappy  ")

	await(t, c.SubmitInlineFeedback())

	st := c.State()
	if st.UI.InlineFeedbackText != "" {
		t.Errorf("InlineFeedbackText = %q after submit, want empty", st.UI.InlineFeedbackText)
	}
	if st.UI.InlineFeedbackStatus != models.FeedbackIdle {
		t.Errorf("InlineFeedbackStatus = %q after settle, want idle", st.UI.InlineFeedbackStatus)
	}
	if st.UI.ConversationID == before {
		t.Error("ConversationID not rotated after submission")
	}

	tasks.mu.Lock()
	defer tasks.mu.Unlock()
	if len(tasks.feedback) != 1 {
		t.Fatalf("len(feedback) = %d, want 1", len(tasks.feedback))
	}
	if got, want := tasks.feedback[0].Comments, "filters feel snappy"; got != want {
		t.Errorf("submitted comments = %q, want trimmed %q", got, want)
	}
	if tasks.feedback[0].ConversationID != before {
		t.Errorf("submitted ConversationID = %q, want pre-rotation %q", tasks.feedback[0].ConversationID, before)
	}
}

func TestSubmitInlineFeedbackFailureStillClears(t *testing.T) {
	tasks := &stubTasks{dataset: datasetOfDays(5), feedbackErr: errors.New("sink offline")}
	c := newWorkspace(t, tasks)
	awaitBootstrap(t, c)

	before := c.State().UI.ConversationID
	c.UpdateInlineFeedbackText("still counts")

	await(t, c.SubmitInlineFeedback())

	st := c.State()
	if st.UI.InlineFeedbackText != "" {
		t.Error("InlineFeedbackText not cleared after failed submission")
	}
	if st.UI.InlineFeedbackStatus != models.FeedbackIdle {
		t.Errorf("InlineFeedbackStatus = %q, want idle", st.UI.InlineFeedbackStatus)
	}
	if st.UI.ConversationID == before {
		t.Error("ConversationID not rotated after failed submission")
	}
}

func TestSubmitInlineFeedbackIgnoresBlankText(t *testing.T) {
	tasks := &stubTasks{dataset: datasetOfDays(5)}
	c := newWorkspace(t, tasks)
	awaitBootstrap(t, c)

	c.UpdateInlineFeedbackText("   ")
	await(t, c.SubmitInlineFeedback())

	tasks.mu.Lock()
	defer tasks.mu.Unlock()
	if len(tasks.feedback) != 0 {
		t.Errorf("len(feedback) = %d for blank text, want 0", len(tasks.feedback))
	}
}

// ── Accessors ───────────────────────────────────────────────

func TestFilteredRowsFallsBackToRaw(t *testing.T) {
	tasks := &stubTasks{dataset: datasetOfDays(5)}
	c := newWorkspace(t, tasks)

	if rows := c.FilteredRows(); rows != nil {
		t.Errorf("FilteredRows() = %d rows before bootstrap, want nil", len(rows))
	}

	awaitBootstrap(t, c)

	if got, want := len(c.FilteredRows()), 5; got != want {
		t.Errorf("len(FilteredRows()) = %d, want %d", got, want)
	}
}
