package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagereplay/sagereplay/internal/connector"
	"github.com/sagereplay/sagereplay/internal/payload"
	"github.com/sagereplay/sagereplay/internal/protocol"
	"github.com/sagereplay/sagereplay/internal/service"
)

const testKey = "0123456789abcdef"

// gateway is a fake remoting endpoint answering per target.
type gateway struct {
	mu      sync.Mutex
	replies map[string]protocol.Value
	failing map[string]int
	calls   []string
	args    map[string]protocol.Value
}

func newGateway() *gateway {
	return &gateway{
		replies: map[string]protocol.Value{},
		failing: map[string]int{},
		args:    map[string]protocol.Value{},
	}
}

func (g *gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	env, err := protocol.DecodeResponse(data)
	if err != nil || env.Len() != 1 {
		http.Error(w, "bad envelope", http.StatusBadRequest)
		return
	}
	msg := env.Messages[0]

	g.mu.Lock()
	g.calls = append(g.calls, msg.Target)
	g.args[msg.Target] = msg.Body
	reply := g.replies[msg.Target]
	status := g.failing[msg.Target]
	g.mu.Unlock()

	if status != 0 {
		http.Error(w, "failure", status)
		return
	}
	out, err := protocol.EncodeResponse(msg.Path, reply, false)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Write(out)
}

func (g *gateway) targets() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

type stubLevels struct {
	mu    sync.Mutex
	calls int
}

func (s *stubLevels) ItemLevels(context.Context, string) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return map[string]int{}, nil
}

type stubLengths struct{}

func (stubLengths) AssetLengths(_ context.Context, _ string, names []string) (map[string]int, error) {
	out := make(map[string]int, len(names))
	for i, n := range names {
		out[n] = 1000 + i
	}
	return out, nil
}

func mapping(kv ...any) *protocol.Object {
	o := protocol.NewObject()
	for i := 0; i < len(kv); i += 2 {
		v, err := protocol.FromGo(kv[i+1])
		if err != nil {
			panic(err)
		}
		o.Set(kv[i].(string), v)
	}
	return o
}

func character(id int, name string) *protocol.Object {
	return mapping("char_id", id, "acc_id", 9, "character_name", name, "character_level", 10)
}

// standardReplies sets a successful reply for every target.
func standardReplies(g *gateway, chars ...protocol.Value) {
	g.replies[service.TargetCheckVersion] = mapping("status", 1, "error", 0, "cdn", "https://cdn", "_", 12345, "__", testKey)
	g.replies[service.TargetLibraries] = mapping("status", 1, "error", 0)
	g.replies[service.TargetEvents] = mapping("status", 1).Set("events", mapping("seasonal", []any{"xmas"}))
	g.replies[service.TargetLoginUser] = mapping("status", 1, "error", 0, "uid", 42, "sessionkey", "sk-1", "hash", "h")
	g.replies[service.TargetGetAllCharacters] = mapping("status", 1).Set("account_data", protocol.NewList(chars...))
	g.replies[service.TargetGetCharacterData] = mapping("status", 1).
		Set("character_data", mapping("character_id", 2, "character_name", "second"))
}

func newWorkflow(t *testing.T, g *gateway, levels *stubLevels, opts Options) *Workflow {
	t.Helper()
	srv := httptest.NewServer(g)
	t.Cleanup(srv.Close)

	client, err := connector.NewAMFClient(connector.Options{BaseURL: srv.URL, Timeout: 5 * time.Second})
	require.NoError(t, err)

	if levels == nil {
		levels = &stubLevels{}
	}
	synth := payload.NewSynthesizer(levels, "http://assets.invalid/library.bin")
	analytics := payload.NewAnalyticsBuilder(stubLengths{}, "http://assets.invalid/lib")

	if opts.Credentials.Username == "" {
		opts.Credentials = Credentials{Username: "ninja", Password: "secret"}
	}
	return New(client, analytics, synth, opts)
}

func TestRunCompleteSession(t *testing.T) {
	g := newGateway()
	standardReplies(g, character(1, "first"), character(2, "second"))

	var steps []Step
	wf := newWorkflow(t, g, nil, Options{IncludeEvents: true, SelectedCharacterIndex: 1})
	wf.Observe(ObserverFunc(func(s Step) { steps = append(steps, s) }))

	res, err := wf.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateComplete, wf.State())

	assert.Equal(t, service.Targets, g.targets())

	assert.Equal(t, int64(1), res.Version.Status)
	assert.Equal(t, []any{"xmas"}, res.Events.Events.Seasonal)
	assert.Equal(t, "sk-1", res.Login.SessionKey)
	require.Len(t, res.Characters.Characters, 2)
	require.NotNil(t, res.CharacterData)
	assert.Equal(t, "second", res.CharacterData.Character.Name)
	require.NotNil(t, res.SelectedIndex)
	assert.Equal(t, 1, *res.SelectedIndex)

	require.Len(t, steps, 6)
	wantStates := []State{
		StateVersionChecked, StateAnalyticsDone, StateEventsDone,
		StateLoggedIn, StateCharactersListed, StateCharacterDataFetched,
	}
	for i, s := range steps {
		assert.Equal(t, wantStates[i], s.State)
		assert.Equal(t, service.Targets[i], s.Target)
		assert.False(t, s.Skipped)
	}
	_, ok := steps[3].Result.(service.LoginInfo)
	assert.True(t, ok)
}

func TestRunSendsLoginFieldsFromVersionCheck(t *testing.T) {
	g := newGateway()
	standardReplies(g, character(1, "first"))

	_, err := newWorkflow(t, g, nil, Options{}).Run(context.Background())
	require.NoError(t, err)

	outer := protocol.Items(g.args[service.TargetLoginUser])
	require.Len(t, outer, 1)
	fields := protocol.Items(outer[0])
	require.Len(t, fields, 9)
	assert.Equal(t, protocol.String("ninja"), fields[0])
	assert.Equal(t, protocol.Double(12345), fields[2])
	assert.Equal(t, protocol.Int(payload.DefaultBytesLoaded), fields[3])
	assert.Equal(t, protocol.String(testKey), fields[5])
	assert.Equal(t, protocol.Int(6), fields[8])

	chars := protocol.Items(protocol.Items(g.args[service.TargetGetAllCharacters])[0])
	assert.Equal(t, []protocol.Value{protocol.Int(42), protocol.String("sk-1")}, chars)
}

func TestRunWithoutEventsSkipsCall(t *testing.T) {
	g := newGateway()
	standardReplies(g, character(1, "first"))

	var skipped []Step
	wf := newWorkflow(t, g, nil, Options{IncludeEvents: false})
	wf.Observe(ObserverFunc(func(s Step) {
		if s.Skipped {
			skipped = append(skipped, s)
		}
	}))

	res, err := wf.Run(context.Background())
	require.NoError(t, err)

	assert.NotContains(t, g.targets(), service.TargetEvents)
	assert.Zero(t, res.Events.Status)
	assert.Zero(t, res.Events.Error)
	assert.Empty(t, res.Events.Events.Seasonal)
	assert.Empty(t, res.Events.Events.Permanent)
	assert.Empty(t, res.Events.Events.Features)

	require.Len(t, skipped, 1)
	assert.Equal(t, StateEventsDone, skipped[0].State)
}

func TestRunWithoutCharacters(t *testing.T) {
	g := newGateway()
	standardReplies(g)

	wf := newWorkflow(t, g, nil, Options{IncludeEvents: true, SelectedCharacterIndex: 3})
	res, err := wf.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateComplete, wf.State())
	assert.Nil(t, res.CharacterData)
	assert.Nil(t, res.SelectedIndex)
	assert.NotContains(t, g.targets(), service.TargetGetCharacterData)
}

func TestRunClampsSelectionIndex(t *testing.T) {
	for _, index := range []int{-3, 99} {
		g := newGateway()
		standardReplies(g, character(11, "a"), character(22, "b"), character(33, "c"))

		res, err := newWorkflow(t, g, nil, Options{SelectedCharacterIndex: index}).Run(context.Background())
		require.NoError(t, err)

		want := int64(33)
		wantIdx := 2
		if index < 0 {
			want, wantIdx = 11, 0
		}
		require.NotNil(t, res.SelectedIndex)
		assert.Equal(t, wantIdx, *res.SelectedIndex)

		args := protocol.Items(protocol.Items(g.args[service.TargetGetCharacterData])[0])
		require.Len(t, args, 2)
		assert.Equal(t, protocol.Int(want), args[0])
	}
}

func TestRunMissingSessionParameters(t *testing.T) {
	g := newGateway()
	standardReplies(g, character(1, "first"))
	g.replies[service.TargetCheckVersion] = mapping("status", 1, "error", 0)

	levels := &stubLevels{}
	wf := newWorkflow(t, g, levels, Options{IncludeEvents: true})
	res, err := wf.Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Equal(t, StateFailed, wf.State())

	var step *StepError
	require.True(t, errors.As(err, &step))
	assert.Equal(t, StateLoggedIn, step.Step)
	assert.Equal(t, service.TargetLoginUser, step.Target)

	var missing *payload.MissingSessionParametersError
	require.True(t, errors.As(err, &missing))
	assert.True(t, missing.Seed)
	assert.True(t, missing.Key)

	assert.NotContains(t, g.targets(), service.TargetLoginUser)
	assert.Zero(t, levels.calls)
}

func TestRunUsesOverrides(t *testing.T) {
	g := newGateway()
	standardReplies(g, character(1, "first"))
	g.replies[service.TargetCheckVersion] = mapping("status", 1, "error", 0)

	seed := int64(777)
	wf := newWorkflow(t, g, nil, Options{CharacterSeed: &seed, CharacterKey: testKey})
	_, err := wf.Run(context.Background())
	require.NoError(t, err)

	fields := protocol.Items(protocol.Items(g.args[service.TargetLoginUser])[0])
	require.Len(t, fields, 9)
	assert.Equal(t, protocol.Double(777), fields[2])
	assert.Equal(t, protocol.String(testKey), fields[5])
}

func TestRunTransportFailureAborts(t *testing.T) {
	g := newGateway()
	standardReplies(g, character(1, "first"))
	g.failing[service.TargetGetAllCharacters] = http.StatusBadGateway

	var observed []State
	wf := newWorkflow(t, g, nil, Options{})
	wf.Observe(ObserverFunc(func(s Step) { observed = append(observed, s.State) }))

	res, err := wf.Run(context.Background())
	assert.Nil(t, res)

	var step *StepError
	require.True(t, errors.As(err, &step))
	assert.Equal(t, StateCharactersListed, step.Step)

	var transport *connector.TransportError
	require.True(t, errors.As(err, &transport))
	assert.Equal(t, http.StatusBadGateway, transport.StatusCode)

	assert.Equal(t, StateFailed, wf.State())
	assert.NotContains(t, observed, StateCharactersListed)
	assert.NotContains(t, g.targets(), service.TargetGetCharacterData)
}

func TestRunRejectedLogin(t *testing.T) {
	g := newGateway()
	standardReplies(g, character(1, "first"))
	g.replies[service.TargetLoginUser] = mapping("status", 2, "error", 1)

	_, err := newWorkflow(t, g, nil, Options{}).Run(context.Background())

	var rejected *service.RejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, int64(2), rejected.Status)
	assert.NotContains(t, g.targets(), service.TargetGetAllCharacters)
}

func TestRunMalformedLogin(t *testing.T) {
	g := newGateway()
	standardReplies(g, character(1, "first"))
	g.replies[service.TargetLoginUser] = mapping("status", 1, "uid", 42)

	_, err := newWorkflow(t, g, nil, Options{}).Run(context.Background())

	var shape *service.MalformedResponseShapeError
	require.True(t, errors.As(err, &shape))
	assert.Equal(t, "sessionkey", shape.Field)
}

func TestRunSkipsUnselectedCharacterWithoutID(t *testing.T) {
	g := newGateway()
	standardReplies(g, character(1, "first"), mapping("character_name", "ghost"))

	res, err := newWorkflow(t, g, nil, Options{SelectedCharacterIndex: 0}).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Characters.Characters, 2)
	assert.False(t, res.Characters.Characters[1].HasID())

	data := protocol.Items(protocol.Items(g.args[service.TargetGetCharacterData])[0])
	require.NotEmpty(t, data)
	assert.Equal(t, protocol.Int(1), data[0])
}

func TestRunSelectedCharacterWithoutID(t *testing.T) {
	g := newGateway()
	standardReplies(g, character(1, "first"), mapping("character_name", "ghost"))

	wf := newWorkflow(t, g, nil, Options{SelectedCharacterIndex: 1})
	_, err := wf.Run(context.Background())

	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, StateCharacterDataFetched, stepErr.Step)
	var shape *service.MalformedResponseShapeError
	require.True(t, errors.As(err, &shape))
	assert.Equal(t, "char_id", shape.Field)
	assert.NotContains(t, g.targets(), service.TargetGetCharacterData)
	assert.Equal(t, StateFailed, wf.State())
}

func TestRunTwice(t *testing.T) {
	g := newGateway()
	standardReplies(g)

	wf := newWorkflow(t, g, nil, Options{})
	_, err := wf.Run(context.Background())
	require.NoError(t, err)

	_, err = wf.Run(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRun)
}

func TestConcurrentRunsOnlyOneProceeds(t *testing.T) {
	g := newGateway()
	standardReplies(g)
	wf := newWorkflow(t, g, nil, Options{})

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = wf.Run(context.Background())
		}(i)
	}
	wg.Wait()

	var ok, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrAlreadyRun):
			rejected++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, rejected)
	assert.Equal(t, StateComplete, wf.State())
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "logged_in", StateLoggedIn.String())
	assert.Equal(t, "unknown", State(99).String())
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StateEventsDone.Terminal())
	assert.Equal(t, service.TargetEvents, StateEventsDone.Target())
	assert.Empty(t, StateComplete.Target())

	data, err := json.Marshal(struct {
		S State `json:"s"`
	}{StateCharactersListed})
	require.NoError(t, err)
	assert.JSONEq(t, `{"s":"characters_listed"}`, string(data))
}
