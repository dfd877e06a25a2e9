package server

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/ashita-ai/raikyaku/internal/auth"
	"github.com/ashita-ai/raikyaku/internal/collector"
	"github.com/ashita-ai/raikyaku/internal/consent"
	"github.com/ashita-ai/raikyaku/internal/export"
	"github.com/ashita-ai/raikyaku/internal/model"
	"github.com/ashita-ai/raikyaku/internal/provider"
	"github.com/ashita-ai/raikyaku/internal/sink"
	"github.com/ashita-ai/raikyaku/internal/store"
)

// Handlers holds all HTTP handler dependencies.
type Handlers struct {
	gate            *consent.Gate
	store           *store.Store
	collector       *collector.Collector
	dispatcher      *sink.Dispatcher
	jwtMgr          *auth.JWTManager
	operatorKeyHash string
	logger          *slog.Logger
	version         string
	maxBodyBytes    int64
	sinkName        string
	startedAt       time.Time
}

// HandlersDeps holds dependencies for creating Handlers.
type HandlersDeps struct {
	Gate                *consent.Gate
	Store               *store.Store
	Collector           *collector.Collector
	Dispatcher          *sink.Dispatcher
	JWTMgr              *auth.JWTManager
	OperatorKeyHash     string
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
	SinkName            string
}

// NewHandlers creates the handler set.
func NewHandlers(deps HandlersDeps) *Handlers {
	maxBody := deps.MaxRequestBodyBytes
	if maxBody <= 0 {
		maxBody = 256 * 1024
	}
	return &Handlers{
		gate:            deps.Gate,
		store:           deps.Store,
		collector:       deps.Collector,
		dispatcher:      deps.Dispatcher,
		jwtMgr:          deps.JWTMgr,
		operatorKeyHash: deps.OperatorKeyHash,
		logger:          deps.Logger,
		version:         deps.Version,
		maxBodyBytes:    maxBody,
		sinkName:        deps.SinkName,
		startedAt:       time.Now(),
	}
}

// HandleAuthToken exchanges the operator key for a short-lived JWT.
// POST /auth/token
func (h *Handlers) HandleAuthToken(w http.ResponseWriter, r *http.Request) {
	var req model.AuthTokenRequest
	if err := decodeJSON(w, r, &req, h.maxBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if req.OperatorKey == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "operator_key is required")
		return
	}

	if h.operatorKeyHash == "" {
		// No operator key configured. Burn the same work as a real
		// verification so the two cases are not distinguishable by timing.
		auth.DummyVerify()
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid operator key")
		return
	}

	valid, err := auth.VerifyKey(req.OperatorKey, h.operatorKeyHash)
	if err != nil {
		h.logger.Error("operator key verification failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "verification failed")
		return
	}
	if !valid {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid operator key")
		return
	}

	token, expiresAt, err := h.jwtMgr.IssueOperatorToken()
	if err != nil {
		h.logger.Error("token issuance failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "token issuance failed")
		return
	}

	writeJSON(w, r, http.StatusOK, model.AuthTokenResponse{Token: token, ExpiresAt: expiresAt})
}

// HandleConsentState reports the current consent decision.
// GET /v1/consent
func (h *Handlers) HandleConsentState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, model.ConsentResponse{
		State:     h.gate.State(),
		DecidedAt: h.gate.DecidedAt(),
	})
}

// HandleConsentDecide records the visitor's consent decision.
// POST /v1/consent
func (h *Handlers) HandleConsentDecide(w http.ResponseWriter, r *http.Request) {
	var req model.ConsentRequest
	if err := decodeJSON(w, r, &req, h.maxBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	err := h.gate.Decide(req.Decision)
	switch {
	case errors.Is(err, consent.ErrInvalidDecision):
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "decision must be accepted or declined")
		return
	case errors.Is(err, consent.ErrDecided):
		writeError(w, r, http.StatusConflict, model.ErrCodeConflict, "consent already decided")
		return
	case err != nil:
		h.logger.Error("consent persist failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to record decision")
		return
	}

	writeJSON(w, r, http.StatusOK, model.ConsentResponse{
		State:     h.gate.State(),
		DecidedAt: h.gate.DecidedAt(),
	})
}

// HandleCapture runs one capture: the full provider set fans out under
// the overall deadline and the assembled record is appended to the log.
// The consent gate is checked before any collection or storage happens.
// POST /v1/visits
func (h *Handlers) HandleCapture(w http.ResponseWriter, r *http.Request) {
	var req model.CaptureRequest
	if err := decodeJSON(w, r, &req, h.maxBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := model.ValidateCaptureRequest(req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	if !h.gate.Allowed() {
		writeError(w, r, http.StatusForbidden, model.ErrCodeConsentDeclined,
			"capture blocked: consent is "+string(h.gate.State()))
		return
	}

	remote := remoteHost(r)
	visit := h.collector.Run(r.Context(), provider.Input{
		Request:    req,
		RemoteAddr: remote,
		ClientIP:   clientIP(r, remote),
	})

	if err := h.store.Append(*visit); err != nil {
		// The record is retained in memory; only persistence failed.
		h.logger.Error("visit persist failed", "visit_id", visit.ID, "error", err)
	}
	if h.dispatcher != nil {
		h.dispatcher.Enqueue(*visit)
	}

	writeJSON(w, r, http.StatusCreated, visit)
}

// HandleListVisits returns the full stored log in order.
// GET /v1/visits
func (h *Handlers) HandleListVisits(w http.ResponseWriter, r *http.Request) {
	visits := h.store.All()
	writeJSON(w, r, http.StatusOK, model.VisitsResponse{Visits: visits, Total: len(visits)})
}

// HandleClearVisits wipes the stored log. Requires ?confirm=true.
// DELETE /v1/visits
func (h *Handlers) HandleClearVisits(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("confirm") != "true" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "pass confirm=true to clear the log")
		return
	}

	cleared, err := h.store.Clear()
	if err != nil {
		h.logger.Error("clear failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to clear log")
		return
	}

	h.logger.Info("visit log cleared", "cleared", cleared)
	writeJSON(w, r, http.StatusOK, model.ClearResponse{Cleared: cleared})
}

// HandleExportText streams the fixed-layout text report as a download.
// GET /v1/export/text
func (h *Handlers) HandleExportText(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	report, err := export.Text(h.store.All(), now)
	if errors.Is(err, export.ErrNoRecords) {
		writeError(w, r, http.StatusNotFound, model.ErrCodeExportEmpty, "no visits to export")
		return
	}
	if err != nil {
		h.logger.Error("text export failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "export failed")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.TextFilename(now)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(report))
}

// HandleExportJSON streams the lossless JSON export as a download.
// GET /v1/export/json
func (h *Handlers) HandleExportJSON(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	data, err := export.JSON(h.store.All())
	if errors.Is(err, export.ErrNoRecords) {
		writeError(w, r, http.StatusNotFound, model.ErrCodeExportEmpty, "no visits to export")
		return
	}
	if err != nil {
		h.logger.Error("json export failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "export failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.JSONFilename(now)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// HandleHealth reports service liveness and store depth.
// GET /health
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, model.HealthResponse{
		Status:     "ok",
		Version:    h.version,
		StoreDepth: h.store.Len(),
		Consent:    h.gate.State(),
		Sink:       h.sinkName,
		Uptime:     int64(time.Since(h.startedAt).Seconds()),
	})
}

// remoteHost strips the port from the HTTP peer address.
func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// clientIP picks the best-effort public client address for IP-derived
// lookups. The first X-Forwarded-For hop is used when it parses as an
// address; this is a lookup key, not an access control input, so the
// spoofing concerns that keep it out of rate limiting do not apply.
func clientIP(r *http.Request, fallback string) string {
	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		return fallback
	}
	first, _, _ := strings.Cut(xff, ",")
	first = strings.TrimSpace(first)
	if net.ParseIP(first) == nil {
		return fallback
	}
	return first
}
