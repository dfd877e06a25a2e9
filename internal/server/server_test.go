package server_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/raikyaku/internal/auth"
	"github.com/ashita-ai/raikyaku/internal/classify"
	"github.com/ashita-ai/raikyaku/internal/collector"
	"github.com/ashita-ai/raikyaku/internal/consent"
	"github.com/ashita-ai/raikyaku/internal/model"
	"github.com/ashita-ai/raikyaku/internal/provider"
	"github.com/ashita-ai/raikyaku/internal/server"
	"github.com/ashita-ai/raikyaku/internal/store"
)

const testOperatorKey = "test-operator-key-123"

type testEnv struct {
	handler http.Handler
	gate    *consent.Gate
	store   *store.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := t.TempDir()

	gate, err := consent.Open(filepath.Join(dir, "consent"), false, logger)
	require.NoError(t, err)

	st, err := store.Open(filepath.Join(dir, "visitor_logs.json"), 10, logger)
	require.NoError(t, err)

	col := collector.New(provider.Hints(&classify.Substring{}), 2*time.Second, time.Second, logger)

	jwtMgr, err := auth.NewJWTManager("", "", time.Hour)
	require.NoError(t, err)

	keyHash, err := auth.HashKey(testOperatorKey)
	require.NoError(t, err)

	srv := server.New(server.ServerConfig{
		Gate:            gate,
		Store:           st,
		Collector:       col,
		JWTMgr:          jwtMgr,
		OperatorKeyHash: keyHash,
		Logger:          logger,
		Version:         "test",
		SinkName:        "noop",
	})

	return &testEnv{handler: srv.Handler(), gate: gate, store: st}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "203.0.113.9:51234"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) operatorToken(t *testing.T) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/auth/token", "", model.AuthTokenRequest{OperatorKey: testOperatorKey})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data model.AuthTokenResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Data.Token)
	return resp.Data.Token
}

func captureBody() model.CaptureRequest {
	return model.CaptureRequest{
		PageURL:   "https://example.com/pricing",
		PageTitle: "Pricing",
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/126.0.0.0 Safari/537.36",
	}
}

func TestCaptureBlockedWhileUndecided(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/visits", "", captureBody())
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "CONSENT_DECLINED")
	assert.Equal(t, 0, env.store.Len())
}

func TestCaptureBlockedAfterDecline(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.gate.Decide(model.ConsentDeclined))

	rec := env.do(t, http.MethodPost, "/v1/visits", "", captureBody())
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "CONSENT_DECLINED")
	assert.Equal(t, 0, env.store.Len(), "a blocked capture must not touch the store")
}

func TestCaptureAppendsVisit(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.gate.Decide(model.ConsentAccepted))

	rec := env.do(t, http.MethodPost, "/v1/visits", "", captureBody())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Data model.Visit `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Data.Page)
	assert.Equal(t, "https://example.com/pricing", resp.Data.Page.URL)
	require.NotNil(t, resp.Data.Browser)
	assert.Equal(t, "Chrome", resp.Data.Browser.Name)

	assert.Equal(t, 1, env.store.Len())
}

func TestCaptureRejectsInvalidBody(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.gate.Decide(model.ConsentAccepted))

	body := captureBody()
	body.UserAgent = ""
	rec := env.do(t, http.MethodPost, "/v1/visits", "", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_INPUT")
	assert.Equal(t, 0, env.store.Len())
}

func TestConsentDecisionIsTerminal(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/consent", "", model.ConsentRequest{Decision: model.ConsentAccepted})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/consent", "", model.ConsentRequest{Decision: model.ConsentDeclined})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "CONFLICT")

	rec = env.do(t, http.MethodGet, "/v1/consent", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"accepted"`)
}

func TestConsentRejectsInvalidDecision(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/consent", "", model.ConsentRequest{Decision: "maybe"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOperatorRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/v1/visits"},
		{http.MethodDelete, "/v1/visits?confirm=true"},
		{http.MethodGet, "/v1/export/text"},
		{http.MethodGet, "/v1/export/json"},
	} {
		rec := env.do(t, route.method, route.path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", route.method, route.path)
	}
}

func TestInvalidTokenRejected(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/visits", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthTokenWrongKey(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/auth/token", "", model.AuthTokenRequest{OperatorKey: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListVisits(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.gate.Decide(model.ConsentAccepted))
	token := env.operatorToken(t)

	env.do(t, http.MethodPost, "/v1/visits", "", captureBody())
	env.do(t, http.MethodPost, "/v1/visits", "", captureBody())

	rec := env.do(t, http.MethodGet, "/v1/visits", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data model.VisitsResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Data.Total)
	assert.Len(t, resp.Data.Visits, 2)
}

func TestClearRequiresConfirm(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.gate.Decide(model.ConsentAccepted))
	token := env.operatorToken(t)

	env.do(t, http.MethodPost, "/v1/visits", "", captureBody())

	rec := env.do(t, http.MethodDelete, "/v1/visits", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 1, env.store.Len())

	rec = env.do(t, http.MethodDelete, "/v1/visits?confirm=true", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"cleared":1`)
	assert.Equal(t, 0, env.store.Len())
}

func TestExportEmptyLog(t *testing.T) {
	env := newTestEnv(t)
	token := env.operatorToken(t)

	for _, path := range []string{"/v1/export/text", "/v1/export/json"} {
		rec := env.do(t, http.MethodGet, path, token, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
		assert.Contains(t, rec.Body.String(), "EXPORT_EMPTY", path)
	}
}

func TestExportText(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.gate.Decide(model.ConsentAccepted))
	token := env.operatorToken(t)

	env.do(t, http.MethodPost, "/v1/visits", "", captureBody())

	rec := env.do(t, http.MethodGet, "/v1/export/text", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "visitor_logs_")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".txt")
	assert.Contains(t, rec.Body.String(), "VISITOR LOGS EXPORT")
	assert.Contains(t, rec.Body.String(), "Total Visitors Logged: 1")
}

func TestExportJSONRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.gate.Decide(model.ConsentAccepted))
	token := env.operatorToken(t)

	env.do(t, http.MethodPost, "/v1/visits", "", captureBody())

	rec := env.do(t, http.MethodGet, "/v1/export/json", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".json")

	var visits []model.Visit
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &visits))
	require.Len(t, visits, 1)
	assert.Equal(t, "https://example.com/pricing", visits[0].Page.URL)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data model.HealthResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Data.Status)
	assert.Equal(t, "noop", resp.Data.Sink)
	assert.Equal(t, model.ConsentUndecided, resp.Data.Consent)
}

func TestSecurityHeadersPresent(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestUnknownFieldRejected(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.gate.Decide(model.ConsentAccepted))

	req := httptest.NewRequest(http.MethodPost, "/v1/visits",
		strings.NewReader(`{"page_url":"https://example.com","user_agent":"ua","bogus":true}`))
	req.RemoteAddr = "203.0.113.9:51234"
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
