package raikyaku

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
)

// mockServer creates an httptest server that mimics the raikyaku API.
func mockServer(t *testing.T, handlers map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	// Always register auth endpoint.
	if _, ok := handlers["POST /auth/token"]; !ok {
		mux.HandleFunc("POST /auth/token", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{
				"data": map[string]any{
					"token":      "test-token-xyz",
					"expires_at": time.Now().Add(1 * time.Hour).Format(time.RFC3339),
				},
			})
		})
	}

	for pattern, handler := range handlers {
		mux.HandleFunc(pattern, handler)
	}

	return httptest.NewServer(mux)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	c, err := NewClient(Config{
		BaseURL:     serverURL,
		OperatorKey: "test-key",
		Timeout:     5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return c
}

func TestCaptureReturnsVisit(t *testing.T) {
	visitID := uuid.New()

	var receivedBody CaptureRequest
	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /v1/visits": func(w http.ResponseWriter, r *http.Request) {
			if err := json.NewDecoder(r.Body).Decode(&receivedBody); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]any{
					"error": map[string]any{"code": "INVALID_INPUT", "message": err.Error()},
				})
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{
				"data": Visit{
					ID:      visitID,
					Page:    &PageInfo{URL: receivedBody.PageURL},
					Browser: &BrowserInfo{Name: "Chrome", UserAgent: receivedBody.UserAgent},
				},
			})
		},
	})
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	session := NewSession(false)
	session.Click()
	session.Click()
	session.Scroll(40)

	visit, err := client.Capture(context.Background(), CaptureRequest{
		PageURL:   "https://example.com/",
		UserAgent: "test-agent/1.0",
		Session:   session.Snapshot(),
	})
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if visit.ID != visitID {
		t.Errorf("expected visit ID %s, got %s", visitID, visit.ID)
	}
	if visit.Page == nil || visit.Page.URL != "https://example.com/" {
		t.Errorf("unexpected page section: %+v", visit.Page)
	}
	if receivedBody.Session == nil {
		t.Fatal("expected session counters on the wire")
	}
	if receivedBody.Session.Clicks != 2 {
		t.Errorf("expected 2 clicks, got %d", receivedBody.Session.Clicks)
	}
	if receivedBody.Session.ScrollDepthPercent != 40 {
		t.Errorf("expected scroll depth 40, got %d", receivedBody.Session.ScrollDepthPercent)
	}
}

func TestCaptureConsentDeclined(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /v1/visits": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusForbidden, map[string]any{
				"error": map[string]any{"code": "CONSENT_DECLINED", "message": "capture blocked"},
			})
		},
	})
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.Capture(context.Background(), CaptureRequest{
		PageURL:   "https://example.com/",
		UserAgent: "test-agent/1.0",
	})
	if !IsConsentDeclined(err) {
		t.Fatalf("expected consent declined error, got %v", err)
	}
}

func TestDecideConflict(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /v1/consent": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusConflict, map[string]any{
				"error": map[string]any{"code": "CONFLICT", "message": "consent already decided"},
			})
		},
	})
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.Decide(context.Background(), ConsentDeclined)
	if !IsConflict(err) {
		t.Fatalf("expected conflict error, got %v", err)
	}
}

func TestVisitsSendsBearerToken(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /v1/visits": func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer test-token-xyz" {
				writeJSON(w, http.StatusUnauthorized, map[string]any{
					"error": map[string]any{"code": "UNAUTHORIZED", "message": "bad token"},
				})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"data": VisitsPage{
					Visits: []Visit{{ID: uuid.New()}, {ID: uuid.New()}},
					Total:  2,
				},
			})
		},
	})
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	page, err := client.Visits(context.Background())
	if err != nil {
		t.Fatalf("Visits failed: %v", err)
	}
	if page.Total != 2 || len(page.Visits) != 2 {
		t.Errorf("unexpected page: total=%d len=%d", page.Total, len(page.Visits))
	}
}

func TestVisitsWithoutOperatorKey(t *testing.T) {
	srv := mockServer(t, nil)
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if _, err := client.Visits(context.Background()); err == nil {
		t.Fatal("expected error without operator key")
	}
}

func TestTokenIsCached(t *testing.T) {
	var authCalls atomic.Int64
	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /auth/token": func(w http.ResponseWriter, r *http.Request) {
			authCalls.Add(1)
			writeJSON(w, http.StatusOK, map[string]any{
				"data": map[string]any{
					"token":      "test-token-xyz",
					"expires_at": time.Now().Add(1 * time.Hour).Format(time.RFC3339),
				},
			})
		},
		"GET /v1/visits": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"data": VisitsPage{}})
		},
	})
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	for i := 0; i < 3; i++ {
		if _, err := client.Visits(context.Background()); err != nil {
			t.Fatalf("Visits failed: %v", err)
		}
	}
	if got := authCalls.Load(); got != 1 {
		t.Errorf("expected 1 auth call, got %d", got)
	}
}

func TestClearParsesCount(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"DELETE /v1/visits": func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("confirm") != "true" {
				writeJSON(w, http.StatusBadRequest, map[string]any{
					"error": map[string]any{"code": "INVALID_INPUT", "message": "confirm required"},
				})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"cleared": 7}})
		},
	})
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	cleared, err := client.Clear(context.Background())
	if err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if cleared != 7 {
		t.Errorf("expected 7 cleared, got %d", cleared)
	}
}

func TestExportTextRaw(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /v1/export/text": func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			_, _ = w.Write([]byte("VISITOR LOGS EXPORT\nTotal Visitors Logged: 1\n"))
		},
	})
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	report, err := client.ExportText(context.Background())
	if err != nil {
		t.Fatalf("ExportText failed: %v", err)
	}
	if report == "" || report[:7] != "VISITOR" {
		t.Errorf("unexpected report: %q", report)
	}
}

func TestExportEmpty(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /v1/export/json": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusNotFound, map[string]any{
				"error": map[string]any{"code": "EXPORT_EMPTY", "message": "no visits to export"},
			})
		},
	})
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.ExportJSON(context.Background())
	if !IsExportEmpty(err) {
		t.Fatalf("expected export empty error, got %v", err)
	}
}

func TestHealthNoAuth(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /health": func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "" {
				t.Error("health must not send credentials")
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"data": Health{Status: "ok", Consent: ConsentUndecided, Sink: "noop"},
			})
		},
	})
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	health, err := client.Health(context.Background())
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if health.Status != "ok" {
		t.Errorf("unexpected status %q", health.Status)
	}
}

func TestSessionScrollKeepsMaximum(t *testing.T) {
	s := NewSession(true)
	s.Scroll(30)
	s.Scroll(80)
	s.Scroll(50)
	s.Scroll(120)
	s.Scroll(-5)

	snap := s.Snapshot()
	if snap.ScrollDepthPercent != 100 {
		t.Errorf("expected clamped max 100, got %d", snap.ScrollDepthPercent)
	}
	if !snap.ReturningVisitor {
		t.Error("expected returning visitor flag")
	}
}
