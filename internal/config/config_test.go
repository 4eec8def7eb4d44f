package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagereplay/sagereplay/internal/service"
)

func TestLoadCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "config.json")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, cfg.Path())
	assert.Equal(t, service.DefaultChannel, cfg.Channel)
	assert.True(t, cfg.IncludeEvents)
	assert.Equal(t, 20*time.Second, cfg.RequestTimeout())

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestLoadJSONOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"credentials": {"username": "ninja", "password": "pw"},
		"channel": "Public 0.60",
		"include_events": false,
		"selected_character_index": 2,
		"character_seed": 0,
		"loader_info": {"bytes_loaded": 100, "bytes_total": 200}
	}`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.HasCredentials())
	assert.Equal(t, "Public 0.60", cfg.Channel)
	assert.False(t, cfg.IncludeEvents)

	opts := cfg.WorkflowOptions()
	assert.Equal(t, 2, opts.SelectedCharacterIndex)
	require.NotNil(t, opts.CharacterSeed)
	assert.Equal(t, int64(0), *opts.CharacterSeed)
	assert.Equal(t, int32(100), opts.Loader.BytesLoaded)
	assert.Equal(t, int32(200), opts.Loader.BytesTotal)

	// untouched fields keep defaults
	assert.Equal(t, DefaultAPIPort, cfg.API.Port)
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
credentials:
  username: ninja
base_url: https://example.test
request_timeout_sec: 5
mqtt:
  enabled: true
  broker_url: broker.test
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ninja", cfg.Credentials.Username)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout())
	assert.True(t, cfg.MQTT.Enabled)
	assert.Equal(t, "broker.test", cfg.MQTT.BrokerURL)

	co := cfg.ConnectorOptions()
	assert.Equal(t, "https://example.test", co.BaseURL)
	assert.Equal(t, 5*time.Second, co.Timeout)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "broker_url: broker.test")
}

func TestEnvOverridesAreNotPersisted(t *testing.T) {
	t.Setenv("SAGE_USERNAME", "env-user")
	t.Setenv("SAGE_PASSWORD", "env-secret")
	t.Setenv("SAGE_CHANNEL", "Env Channel")
	t.Setenv("SAGE_API_ALLOWED_ORIGINS", "http://a.test,http://b.test")
	t.Setenv("SAGE_LOG_LEVEL", "debug")

	path := filepath.Join(t.TempDir(), "config.json")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-user", cfg.Credentials.Username)
	assert.Equal(t, "env-secret", cfg.Credentials.Password)
	assert.Equal(t, "Env Channel", cfg.Channel)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.API.AllowedOrigins)
	assert.Equal(t, "debug", cfg.Logging.Level)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "env-secret")
}

func TestLoadRejectsBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	result := Validate(cfg)
	assert.True(t, result.IsValid())
	assert.NotEmpty(t, result.Warnings, "missing credentials warn")

	cfg.BaseURL = "ftp://nope"
	cfg.Channel = ""
	cfg.RequestTimeoutSec = 0
	cfg.CharacterKey = "short"
	cfg.MQTT.Enabled = true
	cfg.MQTT.BrokerURL = ""
	cfg.API.Enabled = true
	cfg.API.Port = 70000
	cfg.Schedule.RunIntervalSec = -1
	cfg.Schedule.CleanupTime = "4am"

	result = Validate(cfg)
	assert.False(t, result.IsValid())

	fields := map[string]bool{}
	for _, e := range result.Errors {
		fields[e.Field] = true
	}
	for _, f := range []string{"base_url", "channel", "request_timeout_sec", "character_key", "mqtt.broker_url", "api.port",
		"schedule.run_interval_sec", "schedule.cleanup_time"} {
		assert.True(t, fields[f], f)
	}
}

func TestPromptCredentials(t *testing.T) {
	cfg := DefaultConfig()
	var out bytes.Buffer
	PromptCredentials(cfg, strings.NewReader("ninja\n  spaced pw \n"), &out)

	assert.Equal(t, "ninja", cfg.Credentials.Username)
	assert.Equal(t, "  spaced pw ", cfg.Credentials.Password)
	assert.Contains(t, out.String(), "Username")
}

func TestRunSetupWizardDoesNotSavePassword(t *testing.T) {
	cfg := DefaultConfig()
	cfg.path = filepath.Join(t.TempDir(), "config.json")
	cfg.Credentials.Password = "keep-in-memory"

	input := strings.Join([]string{"ninja", "", "", "10", "no", "1", "no"}, "\n") + "\n"
	var out bytes.Buffer
	require.NoError(t, RunSetupWizard(cfg, strings.NewReader(input), &out))

	assert.Equal(t, "ninja", cfg.Credentials.Username)
	assert.Equal(t, "keep-in-memory", cfg.Credentials.Password)
	assert.False(t, cfg.IncludeEvents)
	assert.Equal(t, 1, cfg.SelectedCharacterIndex)
	assert.Equal(t, 10, cfg.RequestTimeoutSec)

	data, err := os.ReadFile(cfg.path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "keep-in-memory")
}
