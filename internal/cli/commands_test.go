package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagereplay/sagereplay/internal/assets"
	"github.com/sagereplay/sagereplay/internal/config"
	"github.com/sagereplay/sagereplay/internal/db"
	"github.com/sagereplay/sagereplay/internal/events"
	"github.com/sagereplay/sagereplay/internal/protocol"
	"github.com/sagereplay/sagereplay/internal/service"
	"github.com/sagereplay/sagereplay/internal/service/servicetest"
	"github.com/sagereplay/sagereplay/internal/session"
	"github.com/sagereplay/sagereplay/internal/workflow"
)

func newTestCLI(t *testing.T, input string, creds workflow.Credentials) (*CLI, *bytes.Buffer) {
	t.Helper()
	g := servicetest.NewGateway()
	servicetest.StandardReplies(g, servicetest.Character(1, "first"), servicetest.Character(2, "second"))
	srv := g.Start()
	t.Cleanup(srv.Close)

	cfg := config.DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.RequestTimeoutSec = 5
	cfg.Credentials = creds

	store, err := db.NewSessionStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	bus := events.NewEventBus()
	store.Subscribe(bus)
	runner := session.NewRunner(cfg, bus, assets.NewCache(servicetest.NewAssets("[]")))

	out := &bytes.Buffer{}
	return NewCLI(cfg, bus, runner, store, strings.NewReader(input), out), out
}

func TestCommandLoop(t *testing.T) {
	c, out := newTestCLI(t, "help\nstatus\nrun\ncharacters\nhistory 5\nbogus\nquit\nrun\n",
		workflow.Credentials{Username: "ninja", Password: "secret"})

	c.Start(context.Background())

	text := out.String()
	assert.Contains(t, text, "No session has run yet.")
	assert.Contains(t, text, service.TargetLoginUser)
	assert.Contains(t, text, "second")
	assert.Contains(t, text, "ninja")
	assert.Contains(t, text, "Unknown command: 'bogus'")
	assert.Contains(t, text, "Bye.")
	assert.NotContains(t, text, "secret")
	assert.Equal(t, 1, strings.Count(text, "Session "))
}

func TestRunPromptsForMissingCredentials(t *testing.T) {
	c, _ := newTestCLI(t, "ninja\nsecret\n", workflow.Credentials{})

	report, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ninja", report.Username)
	assert.Equal(t, workflow.StateComplete, report.State)
}

func TestCharactersBeforeRun(t *testing.T) {
	c, _ := newTestCLI(t, "", workflow.Credentials{})
	assert.Error(t, c.execute(context.Background(), "characters", nil))
	assert.Error(t, c.execute(context.Background(), "history", []string{"x"}))
	assert.Error(t, c.execute(context.Background(), "decode", nil))
}

func TestDecodeFile(t *testing.T) {
	data, err := protocol.EncodeRequest(service.TargetCheckVersion, service.CheckVersionArgs(""), "")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "capture.amf")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	out := &bytes.Buffer{}
	require.NoError(t, DecodeFile(out, path))
	assert.Contains(t, out.String(), service.TargetCheckVersion)
	assert.Contains(t, out.String(), "1 message(s)")

	assert.Error(t, DecodeFile(out, filepath.Join(t.TempDir(), "missing.amf")))
}

func TestPrintSessionsEmpty(t *testing.T) {
	out := &bytes.Buffer{}
	PrintSessions(out, nil)
	assert.Contains(t, out.String(), "No recorded sessions.")
}
