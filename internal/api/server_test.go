package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagereplay/sagereplay/internal/assets"
	"github.com/sagereplay/sagereplay/internal/config"
	"github.com/sagereplay/sagereplay/internal/db"
	"github.com/sagereplay/sagereplay/internal/events"
	"github.com/sagereplay/sagereplay/internal/service"
	"github.com/sagereplay/sagereplay/internal/service/servicetest"
	"github.com/sagereplay/sagereplay/internal/session"
	"github.com/sagereplay/sagereplay/internal/workflow"
)

func newTestServer(t *testing.T, g *servicetest.Gateway, withStore bool) (*Server, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	srv := g.Start()
	t.Cleanup(srv.Close)

	cfg := config.DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.RequestTimeoutSec = 5
	cfg.Credentials = workflow.Credentials{Username: "ninja", Password: "secret"}
	cfg.API.RateLimitRPS = 0

	bus := events.NewEventBus()
	var store *db.SessionStore
	if withStore {
		var err error
		store, err = db.NewSessionStore(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
		store.Subscribe(bus)
	}

	runner := session.NewRunner(cfg, bus, assets.NewCache(servicetest.NewAssets("[]")))
	s := &Server{cfg: cfg, eventBus: bus, runner: runner, store: store}
	return s, s.buildRouter()
}

func do(router *gin.Engine, method, path string, body []byte) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestPing(t *testing.T) {
	_, router := newTestServer(t, servicetest.NewGateway(), false)

	w := do(router, http.MethodGet, "/api/public/ping", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
}

func TestWorkflowThenCharactersAndHistory(t *testing.T) {
	g := servicetest.NewGateway()
	servicetest.StandardReplies(g, servicetest.Character(1, "first"))
	_, router := newTestServer(t, g, true)

	w := do(router, http.MethodGet, "/api/characters", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(router, http.MethodPost, "/api/workflow", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "complete", body["state"])
	assert.NotContains(t, w.Body.String(), "sk-1")
	assert.NotContains(t, w.Body.String(), "secret")
	sessionID := body["session_id"].(string)

	w = do(router, http.MethodGet, "/api/characters", nil)
	require.Equal(t, http.StatusOK, w.Code)
	chars := decode(t, w)
	assert.Equal(t, sessionID, chars["session_id"])
	assert.Len(t, chars["characters"], 1)
	assert.NotNil(t, chars["character_data"])

	w = do(router, http.MethodGet, "/api/sessions?limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["total"])

	w = do(router, http.MethodGet, "/api/sessions/"+sessionID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	sess := decode(t, w)
	assert.Equal(t, "complete", sess["state"])
	assert.Len(t, sess["steps"], 6)

	w = do(router, http.MethodGet, "/api/workflow/last", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWorkflowCredentialOverride(t *testing.T) {
	g := servicetest.NewGateway()
	servicetest.StandardReplies(g)
	_, router := newTestServer(t, g, false)

	w := do(router, http.MethodPost, "/api/workflow", []byte(`{"username":"other","password":"pw"}`))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "other", decode(t, w)["username"])

	w = do(router, http.MethodPost, "/api/workflow", []byte(`{not json`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWorkflowFailure(t *testing.T) {
	g := servicetest.NewGateway()
	servicetest.StandardReplies(g)
	g.Fail(service.TargetLoginUser, http.StatusServiceUnavailable)
	_, router := newTestServer(t, g, false)

	w := do(router, http.MethodPost, "/api/workflow", nil)
	require.Equal(t, http.StatusBadGateway, w.Code)
	body := decode(t, w)
	assert.Equal(t, "failed", body["state"])
	assert.Equal(t, "logged_in", body["failed_step"])
	assert.Equal(t, service.TargetLoginUser, body["target"])

	w = do(router, http.MethodGet, "/api/characters", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWorkflowMissingCredentials(t *testing.T) {
	s, router := newTestServer(t, servicetest.NewGateway(), false)
	s.cfg.SetCredentials(workflow.Credentials{})

	w := do(router, http.MethodPost, "/api/workflow", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessionsWithoutStore(t *testing.T) {
	_, router := newTestServer(t, servicetest.NewGateway(), false)

	w := do(router, http.MethodGet, "/api/sessions", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSessionsValidation(t *testing.T) {
	_, router := newTestServer(t, servicetest.NewGateway(), true)

	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodGet, "/api/sessions?limit=0", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(router, http.MethodGet, "/api/sessions/nope", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(router, http.MethodGet, "/api/unknown", nil).Code)
}

func TestConfigIsRedacted(t *testing.T) {
	s, router := newTestServer(t, servicetest.NewGateway(), false)
	s.cfg.CharacterKey = servicetest.CharacterKey

	w := do(router, http.MethodGet, "/api/config", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "secret")
	assert.NotContains(t, w.Body.String(), servicetest.CharacterKey)

	body := decode(t, w)
	assert.Equal(t, "ninja", body["username"])
	assert.Equal(t, true, body["has_password"])
	assert.Equal(t, true, body["character_key_override"])
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))

	now = now.Add(time.Second)
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))

	assert.True(t, NewRateLimiter(0).Allow("a"))
}

func TestHostEndpoints(t *testing.T) {
	_, router := newTestServer(t, servicetest.NewGateway(), false)

	w := do(router, http.MethodGet, "/api/public/system_info", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decode(t, w)["platform"])

	w = do(router, http.MethodGet, "/api/monitor/usage", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode(t, w), "pid")

	w = do(router, http.MethodGet, "/api/monitor/cpu_usage", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
