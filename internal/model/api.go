package model

import (
	"fmt"
	"time"
)

// Field length limits for capture requests. These stop a single oversized
// field from filling the persisted log with caller-controlled garbage.
const (
	MaxUserAgentLen   = 2048
	MaxURLLen         = 4096
	MaxPageTitleLen   = 1024
	MaxFingerprintLen = 256
	MaxClientAddrs    = 16
	MaxLanguages      = 16
)

// CaptureRequest is the request body for POST /v1/visits: the client-side
// hints the browser snippet gathered, plus the raw user agent. Every hint
// is optional; a missing hint becomes an absent section, not an error.
type CaptureRequest struct {
	PageURL   string `json:"page_url"`
	PageTitle string `json:"page_title,omitempty"`
	Referrer  string `json:"referrer,omitempty"`
	UserAgent string `json:"user_agent"`

	Screen       *ScreenInfo     `json:"screen,omitempty"`
	GPU          *GPUInfo        `json:"gpu,omitempty"`
	Battery      *BatteryInfo    `json:"battery,omitempty"`
	Connection   *ConnectionInfo `json:"connection,omitempty"`
	Storage      *StorageInfo    `json:"storage,omitempty"`
	Media        *MediaInfo      `json:"media,omitempty"`
	Timezone     *TimezoneInfo   `json:"timezone,omitempty"`
	Language     *LanguageInfo   `json:"language,omitempty"`
	Capabilities *Capabilities   `json:"capabilities,omitempty"`
	Fingerprints *Fingerprints   `json:"fingerprints,omitempty"`
	Detection    *Detection      `json:"detection,omitempty"`
	GPS          *GPSInfo        `json:"gps,omitempty"`
	Session      *SessionInfo    `json:"session,omitempty"`

	// LocalAddresses are candidate addresses the client discovered on its
	// own network (WebRTC host candidates). They feed the race-merge IP
	// provider as the local-discovery source.
	LocalAddresses []string `json:"local_addresses,omitempty"`
}

// ValidateCaptureRequest checks per-field length limits on the fields
// that flow into the persisted log.
func ValidateCaptureRequest(req CaptureRequest) error {
	if req.UserAgent == "" {
		return fmt.Errorf("user_agent is required")
	}
	if len(req.UserAgent) > MaxUserAgentLen {
		return fmt.Errorf("user_agent exceeds maximum length of %d bytes", MaxUserAgentLen)
	}
	if req.PageURL == "" {
		return fmt.Errorf("page_url is required")
	}
	if len(req.PageURL) > MaxURLLen {
		return fmt.Errorf("page_url exceeds maximum length of %d bytes", MaxURLLen)
	}
	if len(req.Referrer) > MaxURLLen {
		return fmt.Errorf("referrer exceeds maximum length of %d bytes", MaxURLLen)
	}
	if len(req.PageTitle) > MaxPageTitleLen {
		return fmt.Errorf("page_title exceeds maximum length of %d bytes", MaxPageTitleLen)
	}
	if len(req.LocalAddresses) > MaxClientAddrs {
		return fmt.Errorf("local_addresses exceeds maximum of %d entries", MaxClientAddrs)
	}
	if req.Fingerprints != nil {
		for name, fp := range map[string]string{
			"canvas": req.Fingerprints.Canvas,
			"audio":  req.Fingerprints.Audio,
			"webgl":  req.Fingerprints.WebGL,
		} {
			if len(fp) > MaxFingerprintLen {
				return fmt.Errorf("fingerprints.%s exceeds maximum length of %d bytes", name, MaxFingerprintLen)
			}
		}
	}
	if req.Language != nil && len(req.Language.Languages) > MaxLanguages {
		return fmt.Errorf("language.languages exceeds maximum of %d entries", MaxLanguages)
	}
	if req.GPS != nil {
		switch req.GPS.Status {
		case GPSGranted, GPSDenied, GPSUnavailable, GPSTimeout:
		default:
			return fmt.Errorf("gps.status must be one of granted, denied, unavailable, timeout")
		}
	}
	return nil
}

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput    = "INVALID_INPUT"
	ErrCodeUnauthorized    = "UNAUTHORIZED"
	ErrCodeForbidden       = "FORBIDDEN"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeConflict        = "CONFLICT"
	ErrCodeInternalError   = "INTERNAL_ERROR"
	ErrCodeRateLimited     = "RATE_LIMITED"
	ErrCodeConsentDeclined = "CONSENT_DECLINED"
	ErrCodeExportEmpty     = "EXPORT_EMPTY"
)

// ConsentRequest is the request body for POST /v1/consent.
type ConsentRequest struct {
	Decision ConsentState `json:"decision"`
}

// ConsentResponse is the response for GET /v1/consent and POST /v1/consent.
type ConsentResponse struct {
	State     ConsentState `json:"state"`
	DecidedAt *time.Time   `json:"decided_at,omitempty"`
}

// AuthTokenRequest is the request body for POST /auth/token.
type AuthTokenRequest struct {
	OperatorKey string `json:"operator_key"`
}

// AuthTokenResponse is the response for POST /auth/token.
type AuthTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// VisitsResponse is the response for GET /v1/visits.
type VisitsResponse struct {
	Visits []Visit `json:"visits"`
	Total  int     `json:"total"`
}

// ClearResponse is the response for DELETE /v1/visits.
type ClearResponse struct {
	Cleared int `json:"cleared"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status     string       `json:"status"`
	Version    string       `json:"version"`
	StoreDepth int          `json:"store_depth"`
	Consent    ConsentState `json:"consent"`
	Sink       string       `json:"sink"`
	Uptime     int64        `json:"uptime_seconds"`
}
