package raikyaku

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Config holds the settings needed to construct a Client.
type Config struct {
	// BaseURL is the root URL of the raikyaku server (e.g. "http://localhost:8080").
	BaseURL string

	// OperatorKey is the secret exchanged for an operator JWT. It is only
	// required for the operator methods (Visits, Clear, exports); capture
	// and consent calls work without it.
	OperatorKey string

	// HTTPClient is an optional custom HTTP client. If nil, a default client
	// with a 30-second timeout is used.
	HTTPClient *http.Client

	// Timeout applies to individual API requests. Defaults to 30 seconds.
	Timeout time.Duration
}

// Client is an HTTP client for the raikyaku visitor capture API.
// All methods are safe for concurrent use.
type Client struct {
	baseURL  string
	client   *http.Client
	tokenMgr *tokenManager
}

// NewClient creates a Client from the given configuration.
// Returns an error if BaseURL is empty.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("raikyaku: BaseURL is required")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	c := &Client{
		baseURL: baseURL,
		client:  httpClient,
	}
	if cfg.OperatorKey != "" {
		c.tokenMgr = newTokenManager(baseURL, cfg.OperatorKey, httpClient)
	}
	return c, nil
}

// Capture submits one page-load capture and returns the assembled
// record. Attach behavioral counters by setting req.Session from a
// Session tracker's Snapshot.
func (c *Client) Capture(ctx context.Context, req CaptureRequest) (*Visit, error) {
	var resp Visit
	if err := c.post(ctx, "/v1/visits", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ConsentState reads the current consent decision.
func (c *Client) ConsentState(ctx context.Context) (*Consent, error) {
	var resp Consent
	if err := c.get(ctx, "/v1/consent", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Decide submits the visitor's consent decision. The decision is
// terminal; a second call fails with a conflict (see IsConflict).
func (c *Client) Decide(ctx context.Context, decision ConsentState) (*Consent, error) {
	body := map[string]any{"decision": decision}
	var resp Consent
	if err := c.post(ctx, "/v1/consent", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Visits retrieves the full stored log in order. Requires an operator key.
func (c *Client) Visits(ctx context.Context) (*VisitsPage, error) {
	var resp VisitsPage
	if err := c.getAuth(ctx, "/v1/visits", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Clear wipes the stored log and returns how many records were removed.
// Requires an operator key.
func (c *Client) Clear(ctx context.Context) (int, error) {
	var resp struct {
		Cleared int `json:"cleared"`
	}
	if err := c.doDelete(ctx, "/v1/visits?confirm=true", &resp); err != nil {
		return 0, err
	}
	return resp.Cleared, nil
}

// ExportText downloads the fixed-layout text report. Requires an
// operator key. An empty log yields an error for which IsExportEmpty
// returns true.
func (c *Client) ExportText(ctx context.Context) (string, error) {
	data, err := c.download(ctx, "/v1/export/text")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ExportJSON downloads the lossless JSON export and parses it.
// Requires an operator key.
func (c *Client) ExportJSON(ctx context.Context) ([]Visit, error) {
	data, err := c.download(ctx, "/v1/export/json")
	if err != nil {
		return nil, err
	}
	var visits []Visit
	if err := json.Unmarshal(data, &visits); err != nil {
		return nil, fmt.Errorf("raikyaku: decode export: %w", err)
	}
	return visits, nil
}

// Health checks the server's health status. This endpoint does not
// require authentication.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var resp Health
	if err := c.get(ctx, "/health", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ---------------------------------------------------------------------------
// HTTP transport
// ---------------------------------------------------------------------------

// apiEnvelope is the server's standard response wrapper.
type apiEnvelope struct {
	Data json.RawMessage `json:"data"`
}

// apiErrorEnvelope is the server's standard error response wrapper.
type apiErrorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) post(ctx context.Context, path string, body any, dest any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("raikyaku: marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("raikyaku: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.doRequest(req, dest, false)
}

func (c *Client) get(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("raikyaku: create request: %w", err)
	}

	return c.doRequest(req, dest, false)
}

func (c *Client) getAuth(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("raikyaku: create request: %w", err)
	}

	return c.doRequest(req, dest, true)
}

func (c *Client) doDelete(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("raikyaku: create request: %w", err)
	}

	return c.doRequest(req, dest, true)
}

// download fetches an export endpoint, which streams the file body
// directly instead of wrapping it in the response envelope.
func (c *Client) download(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("raikyaku: create request: %w", err)
	}
	if err := c.authorize(ctx, req); err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("raikyaku: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("raikyaku: read response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, parseErrorResponse(resp.StatusCode, body)
	}
	return body, nil
}

func (c *Client) authorize(ctx context.Context, req *http.Request) error {
	if c.tokenMgr == nil {
		return fmt.Errorf("raikyaku: OperatorKey is required for %s", req.URL.Path)
	}
	token, err := c.tokenMgr.getToken(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

func (c *Client) doRequest(req *http.Request, dest any, authed bool) error {
	if authed {
		if err := c.authorize(req.Context(), req); err != nil {
			return err
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("raikyaku: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	return handleResponse(resp, dest)
}

func handleResponse(resp *http.Response, dest any) error {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("raikyaku: read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseErrorResponse(resp.StatusCode, bodyBytes)
	}

	if resp.StatusCode == http.StatusNoContent || dest == nil {
		return nil
	}

	// Unwrap the server's { "data": ... } envelope.
	var envelope apiEnvelope
	if err := json.Unmarshal(bodyBytes, &envelope); err != nil {
		return fmt.Errorf("raikyaku: decode response envelope: %w", err)
	}

	if envelope.Data == nil {
		return json.Unmarshal(bodyBytes, dest)
	}

	return json.Unmarshal(envelope.Data, dest)
}

func parseErrorResponse(statusCode int, body []byte) *Error {
	apiErr := &Error{StatusCode: statusCode}

	var envelope apiErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	} else {
		apiErr.Code = http.StatusText(statusCode)
		apiErr.Message = string(body)
	}

	return apiErr
}
