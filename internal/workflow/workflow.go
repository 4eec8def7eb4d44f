// Package workflow drives one client session through the fixed call
// sequence: version check, analytics report, events, login, character list
// and, when a character exists, its detail record.
package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sagereplay/sagereplay/internal/payload"
	"github.com/sagereplay/sagereplay/internal/service"
	"github.com/sagereplay/sagereplay/internal/util"
)

// Credentials are the account login.
type Credentials struct {
	Username string `json:"username" yaml:"username" env:"USERNAME"`
	Password string `json:"password" yaml:"password" env:"PASSWORD"`
}

// Options configures one run.
type Options struct {
	Credentials Credentials
	Channel     string
	// IncludeEvents enables the EventsService.get call. When false an empty
	// zero-status result is recorded instead.
	IncludeEvents          bool
	SelectedCharacterIndex int
	// CharacterSeed and CharacterKey override the values handed out by the
	// version check. An empty key means no override.
	CharacterSeed *int64
	CharacterKey  string
	// Loader defaults to payload.DefaultLoaderInfo when zero.
	Loader payload.LoaderInfo
}

// AnalyticsSource produces the compressed analytics report.
type AnalyticsSource interface {
	Build(ctx context.Context) ([]byte, error)
}

// PayloadSource synthesizes the login payload.
type PayloadSource interface {
	Build(ctx context.Context, username, password string, params payload.SessionParameters, loader payload.LoaderInfo) (*payload.LoginPayload, error)
}

// Step describes one completed transition.
type Step struct {
	State    State         `json:"state"`
	Target   string        `json:"target"`
	Skipped  bool          `json:"skipped,omitempty"`
	Duration time.Duration `json:"duration"`
	Result   any           `json:"-"`
}

// Observer is notified synchronously after every completed transition.
type Observer interface {
	StepCompleted(step Step)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(step Step)

// StepCompleted calls f(step).
func (f ObserverFunc) StepCompleted(step Step) {
	f(step)
}

// Result is the outcome of a complete run. CharacterData is nil when the
// account has no characters.
type Result struct {
	Version       service.VersionInfo    `json:"version"`
	Analytics     service.StatusReply    `json:"analytics"`
	Events        service.EventsInfo     `json:"events"`
	Login         service.LoginInfo      `json:"login"`
	Characters    service.CharacterList  `json:"characters"`
	SelectedIndex *int                   `json:"selected_index,omitempty"`
	CharacterData *service.CharacterData `json:"character_data"`
}

// Workflow runs a single session. It is not reusable.
type Workflow struct {
	client    *service.Client
	analytics AnalyticsSource
	payloads  PayloadSource
	opts      Options
	observers []Observer
	logger    zerolog.Logger

	mu      sync.RWMutex
	state   State
	claimed bool
}

// New creates a workflow issuing calls through caller.
func New(caller service.Caller, analytics AnalyticsSource, payloads PayloadSource, opts Options) *Workflow {
	if opts.Channel == "" {
		opts.Channel = service.DefaultChannel
	}
	if opts.Loader == (payload.LoaderInfo{}) {
		opts.Loader = payload.DefaultLoaderInfo()
	}
	return &Workflow{
		client:    service.NewClient(caller),
		analytics: analytics,
		payloads:  payloads,
		opts:      opts,
		logger:    util.ComponentLogger("workflow"),
		state:     StateInit,
	}
}

// Observe registers an observer. Observers must not block for long; they
// run on the workflow goroutine.
func (w *Workflow) Observe(o Observer) *Workflow {
	w.observers = append(w.observers, o)
	return w
}

// State returns the current state.
func (w *Workflow) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

func (w *Workflow) setState(s State) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = s
}

// Run executes every step in order. Any failure aborts the run with a
// *StepError and no partial result.
func (w *Workflow) Run(ctx context.Context) (*Result, error) {
	w.mu.Lock()
	if w.claimed {
		w.mu.Unlock()
		return nil, ErrAlreadyRun
	}
	w.claimed = true
	w.mu.Unlock()

	started := time.Now()
	var res Result

	t := time.Now()
	version, err := w.client.CheckVersion(ctx, w.opts.Channel)
	if err != nil {
		return nil, w.fail(StateVersionChecked, err)
	}
	res.Version = version
	w.advance(StateVersionChecked, t, false, version)

	t = time.Now()
	report, err := w.analytics.Build(ctx)
	if err != nil {
		return nil, w.fail(StateAnalyticsDone, err)
	}
	analytics, err := w.client.Libraries(ctx, report)
	if err != nil {
		return nil, w.fail(StateAnalyticsDone, err)
	}
	res.Analytics = analytics
	w.advance(StateAnalyticsDone, t, false, analytics)

	t = time.Now()
	if w.opts.IncludeEvents {
		events, err := w.client.Events(ctx)
		if err != nil {
			return nil, w.fail(StateEventsDone, err)
		}
		res.Events = events
	} else {
		res.Events = service.SkippedEvents()
	}
	w.advance(StateEventsDone, t, !w.opts.IncludeEvents, res.Events)

	t = time.Now()
	params := w.sessionParameters(version)
	if err := params.Validate(); err != nil {
		return nil, w.fail(StateLoggedIn, err)
	}
	p, err := w.payloads.Build(ctx, w.opts.Credentials.Username, w.opts.Credentials.Password, params, w.opts.Loader)
	if err != nil {
		return nil, w.fail(StateLoggedIn, err)
	}
	login, err := w.client.Login(ctx, p)
	if err != nil {
		return nil, w.fail(StateLoggedIn, err)
	}
	// Only status 1 carries a usable session; anything else stops here
	// instead of listing characters with an empty key.
	if !login.Succeeded() {
		return nil, w.fail(StateLoggedIn, &service.RejectedError{
			Target: service.TargetLoginUser,
			Status: login.Status,
			Code:   login.Error,
		})
	}
	res.Login = login
	w.advance(StateLoggedIn, t, false, login)

	t = time.Now()
	characters, err := w.client.AllCharacters(ctx, login.UID, login.SessionKey)
	if err != nil {
		return nil, w.fail(StateCharactersListed, err)
	}
	res.Characters = characters
	w.advance(StateCharactersListed, t, false, characters)

	if len(characters.Characters) > 0 {
		t = time.Now()
		charID, idx, err := characters.SelectedID(w.opts.SelectedCharacterIndex)
		if err != nil {
			return nil, w.fail(StateCharacterDataFetched, err)
		}
		data, err := w.client.CharacterData(ctx, charID, login.SessionKey)
		if err != nil {
			return nil, w.fail(StateCharacterDataFetched, err)
		}
		res.SelectedIndex = &idx
		res.CharacterData = &data
		w.advance(StateCharacterDataFetched, t, false, data)
	} else {
		w.logger.Info().Msg("account has no characters, skipping character data")
	}

	w.setState(StateComplete)
	w.logger.Info().
		Int("characters", len(characters.Characters)).
		Bool("character_data", res.CharacterData != nil).
		Dur("took", time.Since(started)).
		Msg("workflow complete")

	return &res, nil
}

// sessionParameters prefers configured overrides over the version reply.
func (w *Workflow) sessionParameters(version service.VersionInfo) payload.SessionParameters {
	params := version.SessionParameters()
	if w.opts.CharacterSeed != nil {
		params.Seed = *w.opts.CharacterSeed
		params.HasSeed = true
	}
	if w.opts.CharacterKey != "" {
		params.Key = w.opts.CharacterKey
	}
	return params
}

func (w *Workflow) advance(next State, started time.Time, skipped bool, result any) {
	w.setState(next)
	step := Step{
		State:    next,
		Target:   next.Target(),
		Skipped:  skipped,
		Duration: time.Since(started),
		Result:   result,
	}

	w.logger.Debug().
		Str("state", next.String()).
		Str("target", step.Target).
		Bool("skipped", skipped).
		Dur("took", step.Duration).
		Msg("step complete")

	for _, o := range w.observers {
		o.StepCompleted(step)
	}
}

func (w *Workflow) fail(step State, err error) error {
	w.setState(StateFailed)
	w.logger.Error().
		Err(err).
		Str("step", step.String()).
		Str("target", step.Target()).
		Msg("workflow failed")
	return &StepError{Step: step, Target: step.Target(), Err: err}
}
