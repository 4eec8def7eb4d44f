// Package session runs configured workflows and publishes their progress
// on the event bus.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sagereplay/sagereplay/internal/assets"
	"github.com/sagereplay/sagereplay/internal/config"
	"github.com/sagereplay/sagereplay/internal/connector"
	"github.com/sagereplay/sagereplay/internal/events"
	"github.com/sagereplay/sagereplay/internal/payload"
	"github.com/sagereplay/sagereplay/internal/service"
	"github.com/sagereplay/sagereplay/internal/util"
	"github.com/sagereplay/sagereplay/internal/workflow"
)

// ErrMissingCredentials is returned when no username or password is known.
var ErrMissingCredentials = errors.New("username and password are required")

// Report is the outcome of one run. Result is nil when the run failed.
type Report struct {
	SessionID string           `json:"session_id"`
	Username  string           `json:"username"`
	State     workflow.State   `json:"state"`
	Steps     []workflow.Step  `json:"steps"`
	Result    *workflow.Result `json:"result,omitempty"`
	Error     string           `json:"error,omitempty"`
	Traffic   connector.Stats  `json:"traffic"`
	StartedAt time.Time        `json:"started_at"`
	Duration  time.Duration    `json:"duration"`
}

// Runner builds a fresh transport and workflow per run from the current
// configuration. Asset tables are shared across runs. Runs may execute
// concurrently.
type Runner struct {
	cfg    *config.Config
	bus    *events.EventBus
	assets *assets.Cache
	logger zerolog.Logger

	mu   sync.RWMutex
	last *Report
}

// NewRunner creates a runner. bus may be nil.
func NewRunner(cfg *config.Config, bus *events.EventBus, cache *assets.Cache) *Runner {
	if cache == nil {
		cache = assets.NewCache(assets.NewFetcher(cfg.RequestTimeout()))
	}
	return &Runner{
		cfg:    cfg,
		bus:    bus,
		assets: cache,
		logger: util.ComponentLogger("session"),
	}
}

// Run executes one session. creds overrides the configured credentials
// when non-nil. The returned report is non-nil whenever the run started.
func (r *Runner) Run(ctx context.Context, creds *workflow.Credentials) (*Report, error) {
	opts := r.cfg.WorkflowOptions()
	if creds != nil {
		opts.Credentials = *creds
	}
	if opts.Credentials.Username == "" || opts.Credentials.Password == "" {
		return nil, ErrMissingCredentials
	}

	connOpts := r.cfg.ConnectorOptions()
	client, err := connector.NewAMFClient(connOpts)
	if err != nil {
		return nil, fmt.Errorf("building transport: %w", err)
	}

	analyticsBase, libraryURL := r.cfg.AssetURLs()
	synth := payload.NewSynthesizer(r.assets, libraryURL)
	analytics := payload.NewAnalyticsBuilder(r.assets, analyticsBase)

	report := &Report{
		SessionID: uuid.NewString(),
		Username:  opts.Credentials.Username,
		State:     workflow.StateInit,
		StartedAt: time.Now().UTC(),
	}
	logger := r.logger.With().Str("session", report.SessionID).Logger()

	r.emit(ctx, events.EventSessionStarted, events.SessionStartedPayload{
		SessionID: report.SessionID,
		Username:  report.Username,
		BaseURL:   client.Endpoint(),
		Channel:   opts.Channel,
		StartedAt: report.StartedAt,
	})
	logger.Info().Str("endpoint", client.Endpoint()).Msg("session started")

	wf := workflow.New(client, analytics, synth, opts)
	wf.Observe(workflow.ObserverFunc(func(step workflow.Step) {
		report.Steps = append(report.Steps, step)
		r.emit(ctx, events.EventStepCompleted, events.StepCompletedPayload{
			SessionID:  report.SessionID,
			State:      step.State.String(),
			Target:     step.Target,
			Skipped:    step.Skipped,
			DurationMS: step.Duration.Milliseconds(),
			Status:     stepStatus(step.Result),
		})
	}))

	result, runErr := wf.Run(ctx)

	report.State = wf.State()
	report.Result = result
	report.Traffic = client.Stats()
	report.Duration = time.Since(report.StartedAt)

	finished := events.SessionFinishedPayload{
		SessionID:  report.SessionID,
		Username:   report.Username,
		State:      report.State.String(),
		DurationMS: report.Duration.Milliseconds(),
	}
	if runErr != nil {
		report.Error = runErr.Error()
		finished.Error = report.Error
		var stepErr *workflow.StepError
		if errors.As(runErr, &stepErr) {
			finished.FailedStep = stepErr.Step.String()
		}
		logger.Warn().Err(runErr).Str("failed_step", finished.FailedStep).Msg("session failed")
	} else {
		finished.Characters = len(result.Characters.Characters)
		logger.Info().
			Int("characters", finished.Characters).
			Int64("calls", report.Traffic.Calls).
			Dur("took", report.Duration).
			Msg("session complete")
	}
	r.emit(ctx, events.EventSessionFinished, finished)

	r.mu.Lock()
	r.last = report
	r.mu.Unlock()

	return report, runErr
}

// Last returns the most recent report, or nil before the first run.
func (r *Runner) Last() *Report {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last
}

// LastSuccessful returns the most recent report if it completed.
func (r *Runner) LastSuccessful() (*Report, bool) {
	last := r.Last()
	if last == nil || last.Result == nil {
		return nil, false
	}
	return last, true
}

// emit publishes synchronously so subscribers see events in order. Sink
// errors are logged by the bus and do not affect the run.
func (r *Runner) emit(ctx context.Context, eventType events.EventType, payload interface{}) {
	if r.bus == nil {
		return
	}
	_ = r.bus.EmitSync(context.WithoutCancel(ctx), events.Event{
		Type:    eventType,
		Source:  "session",
		Payload: payload,
	})
}

// stepStatus extracts the reply status of a step result.
func stepStatus(result any) *int64 {
	var status int64
	switch v := result.(type) {
	case service.VersionInfo:
		status = v.Status
	case service.StatusReply:
		status = v.Status
	case service.EventsInfo:
		status = v.Status
	case service.LoginInfo:
		status = v.Status
	case service.CharacterList:
		status = v.Status
	case service.CharacterData:
		status = v.Status
	default:
		return nil
	}
	return &status
}
