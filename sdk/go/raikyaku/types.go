package raikyaku

import (
	"time"

	"github.com/google/uuid"
)

// ConsentState is the visitor's data-collection decision.
type ConsentState string

const (
	ConsentUndecided ConsentState = "undecided"
	ConsentAccepted  ConsentState = "accepted"
	ConsentDeclined  ConsentState = "declined"
)

// CaptureRequest is the body for a capture call: the raw user agent plus
// whatever hints the caller gathered. Every hint is optional.
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

	LocalAddresses []string `json:"local_addresses,omitempty"`
}

// Visit is one captured visitor-attribute record as returned by the
// server. Nil sections were not collected; Failures carries the reason.
type Visit struct {
	ID        uuid.UUID `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	LocalTime string    `json:"local_time"`

	Page         *PageInfo       `json:"page,omitempty"`
	Referrer     *ReferrerInfo   `json:"referrer,omitempty"`
	Location     *Location       `json:"location,omitempty"`
	Browser      *BrowserInfo    `json:"browser,omitempty"`
	OS           *OSInfo         `json:"os,omitempty"`
	Device       *DeviceInfo     `json:"device,omitempty"`
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
	IPs          *IPReport       `json:"ips,omitempty"`

	Failures map[string]string `json:"failures,omitempty"`
}

// PageInfo describes the page the visit was captured on.
type PageInfo struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// ReferrerInfo is the referring URL, or "Direct" when the visit had none.
type ReferrerInfo struct {
	URL string `json:"url"`
}

// Location is the IP-derived geolocation section.
type Location struct {
	IP           string  `json:"ip,omitempty"`
	City         string  `json:"city,omitempty"`
	Region       string  `json:"region,omitempty"`
	RegionCode   string  `json:"region_code,omitempty"`
	Country      string  `json:"country,omitempty"`
	CountryCode  string  `json:"country_code,omitempty"`
	ZipCode      string  `json:"zip_code,omitempty"`
	Latitude     float64 `json:"latitude,omitempty"`
	Longitude    float64 `json:"longitude,omitempty"`
	Timezone     string  `json:"timezone,omitempty"`
	ISP          string  `json:"isp,omitempty"`
	Organization string  `json:"organization,omitempty"`
	ASN          string  `json:"asn,omitempty"`
}

// BrowserInfo is the classified browser identity.
type BrowserInfo struct {
	Name      string `json:"name"`
	Version   string `json:"version,omitempty"`
	UserAgent string `json:"user_agent"`
}

// OSInfo is the classified operating system identity.
type OSInfo struct {
	Name     string `json:"name"`
	Version  string `json:"version,omitempty"`
	Platform string `json:"platform,omitempty"`
}

// DeviceInfo is the classified device identity.
type DeviceInfo struct {
	Type  string `json:"type"`
	Brand string `json:"brand,omitempty"`
	Model string `json:"model,omitempty"`
}

// ScreenInfo holds display geometry.
type ScreenInfo struct {
	ScreenWidth    int     `json:"screen_width"`
	ScreenHeight   int     `json:"screen_height"`
	ViewportWidth  int     `json:"viewport_width,omitempty"`
	ViewportHeight int     `json:"viewport_height,omitempty"`
	ColorDepth     int     `json:"color_depth,omitempty"`
	PixelRatio     float64 `json:"pixel_ratio,omitempty"`
}

// GPUInfo holds the graphics adapter identity.
type GPUInfo struct {
	Vendor   string `json:"vendor,omitempty"`
	Renderer string `json:"renderer,omitempty"`
}

// BatteryInfo holds the battery state at capture time.
type BatteryInfo struct {
	Level    float64 `json:"level"`
	Charging bool    `json:"charging"`
}

// ConnectionInfo holds network-information hints.
type ConnectionInfo struct {
	EffectiveType string  `json:"effective_type,omitempty"`
	DownlinkMbps  float64 `json:"downlink_mbps,omitempty"`
	RTTMillis     int     `json:"rtt_ms,omitempty"`
	SaveData      bool    `json:"save_data,omitempty"`
}

// StorageInfo holds the storage-estimate quota probe.
type StorageInfo struct {
	QuotaBytes int64 `json:"quota_bytes,omitempty"`
	UsageBytes int64 `json:"usage_bytes,omitempty"`
}

// MediaInfo counts enumerable media input/output devices.
type MediaInfo struct {
	Microphones int `json:"microphones"`
	Cameras     int `json:"cameras"`
	Speakers    int `json:"speakers"`
}

// TimezoneInfo is the client's resolved timezone.
type TimezoneInfo struct {
	Name             string `json:"name"`
	UTCOffsetMinutes int    `json:"utc_offset_minutes"`
}

// LanguageInfo is the client's language preferences.
type LanguageInfo struct {
	Language  string   `json:"language"`
	Languages []string `json:"languages,omitempty"`
}

// Capabilities holds assorted platform capability flags.
type Capabilities struct {
	CookiesEnabled bool   `json:"cookies_enabled"`
	DoNotTrack     bool   `json:"do_not_track"`
	Online         bool   `json:"online"`
	Vendor         string `json:"vendor,omitempty"`
	HistoryLength  int    `json:"history_length,omitempty"`
	TouchPoints    int    `json:"touch_points,omitempty"`
}

// Fingerprints holds client-computed fingerprint hashes.
type Fingerprints struct {
	Canvas string `json:"canvas,omitempty"`
	Audio  string `json:"audio,omitempty"`
	WebGL  string `json:"webgl,omitempty"`
}

// Detection holds automation detection signals.
type Detection struct {
	Webdriver bool `json:"webdriver"`
	Headless  bool `json:"headless"`
	DevTools  bool `json:"devtools"`
}

// GPS permission outcomes.
const (
	GPSGranted     = "granted"
	GPSDenied      = "denied"
	GPSUnavailable = "unavailable"
	GPSTimeout     = "timeout"
)

// GPSInfo is the geolocation-permission outcome plus coordinates when granted.
type GPSInfo struct {
	Status         string  `json:"status"`
	Latitude       float64 `json:"latitude,omitempty"`
	Longitude      float64 `json:"longitude,omitempty"`
	AccuracyMeters float64 `json:"accuracy_m,omitempty"`
}

// SessionInfo is the session tracker snapshot taken at capture time.
type SessionInfo struct {
	Clicks             int64 `json:"clicks"`
	Keystrokes         int64 `json:"keystrokes"`
	ScrollDepthPercent int   `json:"scroll_depth_percent"`
	DurationMillis     int64 `json:"duration_ms"`
	ReturningVisitor   bool  `json:"returning_visitor"`
}

// IPObservation is one deduplicated network address with provenance.
type IPObservation struct {
	Address string `json:"address"`
	Kind    string `json:"kind"`
	Source  string `json:"source"`
}

// IPReport is the reconciled set of observed network addresses.
type IPReport struct {
	Observations []IPObservation `json:"observations"`
	Counts       map[string]int  `json:"counts,omitempty"`
	Total        int             `json:"total"`
}

// Consent is the server's view of the consent decision.
type Consent struct {
	State     ConsentState `json:"state"`
	DecidedAt *time.Time   `json:"decided_at,omitempty"`
}

// VisitsPage is the full stored log with its count.
type VisitsPage struct {
	Visits []Visit `json:"visits"`
	Total  int     `json:"total"`
}

// Health is the server health report.
type Health struct {
	Status     string       `json:"status"`
	Version    string       `json:"version"`
	StoreDepth int          `json:"store_depth"`
	Consent    ConsentState `json:"consent"`
	Sink       string       `json:"sink"`
	Uptime     int64        `json:"uptime_seconds"`
}
