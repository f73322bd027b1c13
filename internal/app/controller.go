// Package app implements the workspace controller: session bootstrap,
// dataset loading, the rolling-window filter with its per-window cache, UI
// toggles, and inline feedback. It composes a chat controller as a
// sub-collaborator; the two publish independent state snapshots.
package app

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/primarycredit/workspace/internal/chat"
	"github.com/primarycredit/workspace/internal/state"
	"github.com/primarycredit/workspace/pkg/contracts"
	"github.com/primarycredit/workspace/pkg/models"
)

const defaultFeedbackResetDelay = 1500 * time.Millisecond

// Controller is the high-level orchestrator for one workspace session.
type Controller struct {
	Chat *chat.Controller

	log   zerolog.Logger
	tasks contracts.SessionTasks
	state *state.Container[models.AppState]

	ctx    context.Context
	cancel context.CancelFunc

	// Latches guarding the bootstrap sequence. Mutex-guarded booleans:
	// the controller runs under true parallelism, so read-then-set without
	// a lock would race.
	mu                sync.Mutex
	creds             *models.RuntimeCredentials
	bootstrapStarted  bool
	bootstrapInflight bool

	bootstrapDone      chan struct{}
	feedbackResetDelay time.Duration
}

// Options configures controller construction.
type Options struct {
	Chat   *chat.Controller
	Tasks  contracts.SessionTasks
	Logger zerolog.Logger

	// FeedbackResetDelay is how long the "submitted" confirmation stays
	// visible before the inline feedback panel returns to idle. A UX
	// debounce, not a correctness requirement; tests shrink it.
	FeedbackResetDelay time.Duration
}

// New builds the controller and starts exactly one bootstrap sequence in the
// background. BootstrapDone closes when that sequence has finished, whether
// it ended in ready or in error.
func New(opts Options) *Controller {
	delay := opts.FeedbackResetDelay
	if delay <= 0 {
		delay = defaultFeedbackResetDelay
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		Chat:               opts.Chat,
		log:                opts.Logger,
		tasks:              opts.Tasks,
		state:              state.New(models.NewAppState()),
		ctx:                ctx,
		cancel:             cancel,
		bootstrapDone:      make(chan struct{}),
		feedbackResetDelay: delay,
	}
	c.startBootstrap()
	return c
}

// Close cancels any in-flight background work.
func (c *Controller) Close() {
	c.cancel()
}

// State returns the latest published app snapshot.
func (c *Controller) State() models.AppState {
	return c.state.Get()
}

// Subscribe registers a listener for app snapshots.
func (c *Controller) Subscribe() <-chan models.AppState {
	return c.state.Subscribe()
}

// Unsubscribe removes a snapshot listener.
func (c *Controller) Unsubscribe(ch <-chan models.AppState) {
	c.state.Unsubscribe(ch)
}

// BootstrapDone closes once the construction-time bootstrap sequence has
// settled; tests await it instead of polling.
func (c *Controller) BootstrapDone() <-chan struct{} {
	return c.bootstrapDone
}

// ── Authentication gates ────────────────────────────────────

// Authenticate marks the gate as passed for the given username.
func (c *Controller) Authenticate(username string) {
	c.state.Update(func(prev models.AppState) models.AppState {
		next := prev
		next.Gate.IsAuthenticated = true
		next.Gate.Username = username
		return next
	})
}

// AcceptTerms records terms acceptance on the gate and the attestation on
// the chat controller.
func (c *Controller) AcceptTerms() {
	c.state.Update(func(prev models.AppState) models.AppState {
		next := prev
		next.Gate.HasAcceptedTerms = true
		return next
	})
	c.Chat.RecordAttestation(true)
}

// ── Bootstrap & dataset loading ─────────────────────────────

func (c *Controller) startBootstrap() {
	c.mu.Lock()
	if c.bootstrapStarted {
		c.mu.Unlock()
		return
	}
	c.bootstrapStarted = true
	c.mu.Unlock()

	go func() {
		defer close(c.bootstrapDone)
		c.bootstrap(c.ctx)
	}()
}

func (c *Controller) bootstrap(ctx context.Context) {
	c.mu.Lock()
	if c.bootstrapInflight {
		c.mu.Unlock()
		return
	}
	c.bootstrapInflight = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.bootstrapInflight = false
		c.mu.Unlock()
	}()

	c.state.Update(func(prev models.AppState) models.AppState {
		next := prev
		next.Session.Bootstrapping = true
		return next
	})

	result, err := c.tasks.Bootstrap(ctx)
	if err != nil {
		c.log.Error().Err(err).Msg("bootstrap failed")
		c.state.Update(func(prev models.AppState) models.AppState {
			next := prev
			next.Session.Bootstrapping = false
			next.Session.Error = err.Error()
			next.Session.Ready = false
			return next
		})
		return
	}

	c.mu.Lock()
	c.creds = &result.Credentials
	c.mu.Unlock()

	publicConfig := result.PublicConfig()
	c.state.Update(func(prev models.AppState) models.AppState {
		next := prev
		next.Session.Bootstrapping = false
		next.Session.Error = ""
		next.Session.PublicConfig = publicConfig
		next.Session.Ready = false
		next.Session.LoadingLabel = "Loading issuance data…"
		return next
	})

	c.loadDataset(ctx)
}

// loadDataset loads the dataset and applies the initial filter before the
// session flips to ready, so the UI never shows "ready" with an empty
// filtered view.
func (c *Controller) loadDataset(ctx context.Context) {
	c.mu.Lock()
	creds := c.creds
	c.mu.Unlock()
	if creds == nil {
		return
	}

	c.state.Update(func(prev models.AppState) models.AppState {
		next := prev
		next.Session.Bootstrapping = true
		next.Session.LoadingLabel = "Loading issuance data…"
		return next
	})

	dataset, err := c.tasks.LoadDataset(ctx, *creds)
	if err != nil {
		// Previous dataset, if any, stays displayed: stale data beats a
		// half-applied load.
		c.log.Error().Err(err).Msg("dataset load failed")
		c.state.Update(func(prev models.AppState) models.AppState {
			next := prev
			next.Session.Bootstrapping = false
			next.Session.Error = err.Error()
			next.Session.Ready = false
			return next
		})
		return
	}

	maxWindow := dataset.MaxWindowDays()
	lookback := c.state.Get().Dataset.LookbackDays
	if lookback > maxWindow {
		lookback = maxWindow
	}

	// Full dataset-state reset: every cached filter was computed against
	// the old dataset.
	c.state.Update(func(prev models.AppState) models.AppState {
		next := prev
		next.Dataset = models.DatasetState{
			Raw:             &dataset,
			Filtered:        nil,
			Cache:           map[int]models.FilterResult{},
			LookbackDays:    lookback,
			MaxLookbackDays: maxWindow,
		}
		next.Session.Bootstrapping = false
		next.Session.LoadingLabel = "Applying filters…"
		return next
	})

	c.applyFilter(ctx, lookback)

	c.state.Update(func(prev models.AppState) models.AppState {
		next := prev
		next.Session.Ready = true
		next.Session.LoadingLabel = "Workspace ready"
		return next
	})
}

// ReloadDataset re-runs the dataset load against the bootstrapped
// credentials, resetting the filter cache and its counters wholesale. A
// no-op before bootstrap has produced credentials. The returned channel
// closes when the reload has settled.
func (c *Controller) ReloadDataset() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.loadDataset(c.ctx)
	}()
	return done
}

// applyFilter is the cache policy. Hits re-publish the stored result with
// cache_hit set and the original duration; misses set the requested window
// immediately for UI responsiveness, then await the filter task. A failed
// filter leaves the prior filtered view untouched.
func (c *Controller) applyFilter(ctx context.Context, windowDays int) {
	snapshot := c.state.Get()
	if snapshot.Dataset.Raw == nil {
		return
	}

	if cached, ok := snapshot.Dataset.Cache[windowDays]; ok {
		hit := cached
		hit.CacheHit = true

		c.log.Info().Int("window_days", windowDays).Int("row_count", cached.RowCount).Msg("dataset filter cache hit")
		c.state.Update(func(prev models.AppState) models.AppState {
			next := prev
			cache := copyCache(prev.Dataset.Cache)
			cache[windowDays] = cached
			duration := cached.DurationMS

			next.Dataset.Filtered = &hit
			next.Dataset.Cache = cache
			next.Dataset.LookbackDays = windowDays
			next.Dataset.CacheHits = prev.Dataset.CacheHits + 1
			next.Dataset.LastDurationMS = &duration
			next.Dataset.LastCacheHit = true
			return next
		})
		return
	}

	c.state.Update(func(prev models.AppState) models.AppState {
		next := prev
		next.Dataset.LookbackDays = windowDays
		return next
	})

	result, err := c.tasks.FilterDataset(ctx, *snapshot.Dataset.Raw, windowDays)
	if err != nil {
		c.log.Error().Err(err).Int("window_days", windowDays).Msg("dataset filter failed")
		return
	}

	c.log.Info().
		Int("window_days", windowDays).
		Int("row_count", result.RowCount).
		Int64("duration_ms", result.DurationMS).
		Msg("dataset filter success")
	c.state.Update(func(prev models.AppState) models.AppState {
		next := prev
		cache := copyCache(prev.Dataset.Cache)
		cache[windowDays] = result
		duration := result.DurationMS

		next.Dataset.Filtered = &result
		next.Dataset.Cache = cache
		next.Dataset.LookbackDays = windowDays
		next.Dataset.CacheMisses = prev.Dataset.CacheMisses + 1
		next.Dataset.LastDurationMS = &duration
		next.Dataset.LastCacheHit = false
		return next
	})
}

func copyCache(cache map[int]models.FilterResult) map[int]models.FilterResult {
	out := make(map[int]models.FilterResult, len(cache)+1)
	for k, v := range cache {
		out[k] = v
	}
	return out
}

// ── UI interactions ─────────────────────────────────────────

// SetActiveTab switches the visible workspace tab.
func (c *Controller) SetActiveTab(tab string) {
	c.state.Update(func(prev models.AppState) models.AppState {
		next := prev
		next.UI.ActiveTab = tab
		return next
	})
}

// ToggleSidebar flips the sidebar.
func (c *Controller) ToggleSidebar() {
	c.state.Update(func(prev models.AppState) models.AppState {
		next := prev
		next.UI.SidebarOpen = !prev.UI.SidebarOpen
		return next
	})
}

// SetSidebar sets the sidebar explicitly.
func (c *Controller) SetSidebar(open bool) {
	c.state.Update(func(prev models.AppState) models.AppState {
		next := prev
		next.UI.SidebarOpen = open
		return next
	})
}

// SetLookbackDays clamps the requested window into [1, max], publishes it
// immediately for UI responsiveness, and triggers the filter asynchronously.
// The returned channel closes when the filter attempt has settled.
//
// Two rapid calls are not guarded against out-of-order completion: a slow
// filter for the first call can finish after the second and win. The UI
// re-requests on interaction, so the inconsistency is transient; a stricter
// supersede policy would need request sequencing here.
func (c *Controller) SetLookbackDays(windowDays int) <-chan struct{} {
	maxDays := c.state.Get().Dataset.MaxLookbackDays
	if windowDays < 1 {
		windowDays = 1
	}
	if windowDays > maxDays {
		windowDays = maxDays
	}

	c.state.Update(func(prev models.AppState) models.AppState {
		next := prev
		next.Dataset.LookbackDays = windowDays
		return next
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.applyFilter(c.ctx, windowDays)
	}()
	return done
}

// UpdateInlineFeedbackText stores the inline feedback scratch text.
func (c *Controller) UpdateInlineFeedbackText(text string) {
	c.state.Update(func(prev models.AppState) models.AppState {
		next := prev
		next.UI.InlineFeedbackText = text
		return next
	})
}

// SubmitInlineFeedback fires the submission and, regardless of its outcome,
// clears the panel, rotates the conversation id, and after a display delay
// returns the status to idle. A failed submission is logged but shown to the
// user the same as success. The returned channel closes after the status has
// returned to idle.
func (c *Controller) SubmitInlineFeedback() <-chan struct{} {
	done := make(chan struct{})

	snapshot := c.state.Get()
	comments := strings.TrimSpace(snapshot.UI.InlineFeedbackText)
	if comments == "" {
		close(done)
		return done
	}

	payload := models.InlineFeedback{
		ConversationID: snapshot.UI.ConversationID,
		Comments:       comments,
		SubmittedAt:    time.Now().UTC(),
	}

	c.state.Update(func(prev models.AppState) models.AppState {
		next := prev
		next.UI.InlineFeedbackStatus = models.FeedbackSubmitting
		return next
	})

	go func() {
		defer close(done)

		if err := c.tasks.SubmitInlineFeedback(c.ctx, payload); err != nil {
			c.log.Error().Err(err).Str("conversation_id", payload.ConversationID).Msg("inline feedback submission failed")
		}

		c.state.Update(func(prev models.AppState) models.AppState {
			next := prev
			next.UI.InlineFeedbackText = ""
			next.UI.InlineFeedbackStatus = models.FeedbackSubmitted
			next.UI.ConversationID = models.NewConversationID()
			return next
		})

		select {
		case <-time.After(c.feedbackResetDelay):
		case <-c.ctx.Done():
		}

		c.state.Update(func(prev models.AppState) models.AppState {
			next := prev
			next.UI.InlineFeedbackStatus = models.FeedbackIdle
			return next
		})
	}()
	return done
}

// ── Accessors ───────────────────────────────────────────────

// FilteredRows returns the best available rows: the filtered slice when one
// exists, else the raw dataset, else nothing. Never errors.
func (c *Controller) FilteredRows() []map[string]any {
	snapshot := c.state.Get()
	if snapshot.Dataset.Filtered != nil {
		return snapshot.Dataset.Filtered.Rows
	}
	if snapshot.Dataset.Raw != nil {
		return snapshot.Dataset.Raw.Rows
	}
	return nil
}
