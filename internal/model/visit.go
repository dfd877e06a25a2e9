// Package model defines the visit record, its sections, and the HTTP API shapes.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Visit is one composite visitor-attribute record, assembled from the
// partial results of all providers for a single page load. Every section
// is a pointer; nil means the corresponding provider failed or timed out,
// and Failures carries the reason. Partial records are normal operation.
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

	// Failures maps a section name to the reason it is absent
	// ("timeout" or the provider's error text).
	Failures map[string]string `json:"failures,omitempty"`
}

// Section is a typed partial result that knows which slot of a Visit it
// fills. Providers return Sections; the collector applies them.
type Section interface {
	SectionName() string
	Apply(v *Visit)
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
	Type  string `json:"type"` // Desktop, Mobile, Tablet
	Brand string `json:"brand,omitempty"`
	Model string `json:"model,omitempty"`
}

// ScreenInfo holds display geometry as reported by the client.
type ScreenInfo struct {
	ScreenWidth    int     `json:"screen_width"`
	ScreenHeight   int     `json:"screen_height"`
	ViewportWidth  int     `json:"viewport_width,omitempty"`
	ViewportHeight int     `json:"viewport_height,omitempty"`
	ColorDepth     int     `json:"color_depth,omitempty"`
	PixelRatio     float64 `json:"pixel_ratio,omitempty"`
}

// GPUInfo holds the WebGL-reported graphics adapter identity.
type GPUInfo struct {
	Vendor   string `json:"vendor,omitempty"`
	Renderer string `json:"renderer,omitempty"`
}

// BatteryInfo holds the battery state at capture time.
type BatteryInfo struct {
	Level    float64 `json:"level"` // 0.0 – 1.0
	Charging bool    `json:"charging"`
}

// ConnectionInfo holds the network-information hints.
type ConnectionInfo struct {
	EffectiveType string  `json:"effective_type,omitempty"` // slow-2g, 2g, 3g, 4g
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

// Detection holds automation/bot detection signals.
type Detection struct {
	Webdriver bool `json:"webdriver"`
	Headless  bool `json:"headless"`
	DevTools  bool `json:"devtools"`
}

// GPS permission outcomes. The outcome is part of the section payload,
// not a provider failure: a denied permission is a successfully captured
// fact about the visit.
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

// SessionInfo is the session accumulator snapshot taken at capture time.
type SessionInfo struct {
	Clicks             int64 `json:"clicks"`
	Keystrokes         int64 `json:"keystrokes"`
	ScrollDepthPercent int   `json:"scroll_depth_percent"`
	DurationMillis     int64 `json:"duration_ms"`
	ReturningVisitor   bool  `json:"returning_visitor"`
}

func (s *PageInfo) SectionName() string     { return "page" }
func (s *PageInfo) Apply(v *Visit)          { v.Page = s }
func (s *ReferrerInfo) SectionName() string { return "referrer" }
func (s *ReferrerInfo) Apply(v *Visit)      { v.Referrer = s }
func (s *Location) SectionName() string     { return "location" }
func (s *Location) Apply(v *Visit)          { v.Location = s }
func (s *BrowserInfo) SectionName() string  { return "browser" }
func (s *BrowserInfo) Apply(v *Visit)       { v.Browser = s }
func (s *OSInfo) SectionName() string       { return "os" }
func (s *OSInfo) Apply(v *Visit)            { v.OS = s }
func (s *DeviceInfo) SectionName() string   { return "device" }
func (s *DeviceInfo) Apply(v *Visit)        { v.Device = s }
func (s *ScreenInfo) SectionName() string   { return "screen" }
func (s *ScreenInfo) Apply(v *Visit)        { v.Screen = s }
func (s *GPUInfo) SectionName() string      { return "gpu" }
func (s *GPUInfo) Apply(v *Visit)           { v.GPU = s }
func (s *BatteryInfo) SectionName() string  { return "battery" }
func (s *BatteryInfo) Apply(v *Visit)       { v.Battery = s }
func (s *ConnectionInfo) SectionName() string { return "connection" }
func (s *ConnectionInfo) Apply(v *Visit)      { v.Connection = s }
func (s *StorageInfo) SectionName() string    { return "storage" }
func (s *StorageInfo) Apply(v *Visit)         { v.Storage = s }
func (s *MediaInfo) SectionName() string      { return "media" }
func (s *MediaInfo) Apply(v *Visit)           { v.Media = s }
func (s *TimezoneInfo) SectionName() string   { return "timezone" }
func (s *TimezoneInfo) Apply(v *Visit)        { v.Timezone = s }
func (s *LanguageInfo) SectionName() string   { return "language" }
func (s *LanguageInfo) Apply(v *Visit)        { v.Language = s }
func (s *Capabilities) SectionName() string   { return "capabilities" }
func (s *Capabilities) Apply(v *Visit)        { v.Capabilities = s }
func (s *Fingerprints) SectionName() string   { return "fingerprints" }
func (s *Fingerprints) Apply(v *Visit)        { v.Fingerprints = s }
func (s *Detection) SectionName() string      { return "detection" }
func (s *Detection) Apply(v *Visit)           { v.Detection = s }
func (s *GPSInfo) SectionName() string        { return "gps" }
func (s *GPSInfo) Apply(v *Visit)             { v.GPS = s }
func (s *SessionInfo) SectionName() string    { return "session" }
func (s *SessionInfo) Apply(v *Visit)         { v.Session = s }
func (s *IPReport) SectionName() string       { return "ips" }
func (s *IPReport) Apply(v *Visit)            { v.IPs = s }
