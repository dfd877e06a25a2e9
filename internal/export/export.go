// Package export serializes the visit log into its two download
// formats: a fixed-layout human-readable text report and a lossless
// JSON re-serialization. Missing sections render as "N/A" in text.
package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ashita-ai/raikyaku/internal/model"
)

// ErrNoRecords signals an empty log. Callers surface it as an explicit
// "nothing to export" rather than writing an empty file.
var ErrNoRecords = errors.New("export: no records")

const na = "N/A"

var rule = strings.Repeat("-", 80)
var banner = strings.Repeat("=", 80)

// TextFilename is the download name for a text export generated at t.
func TextFilename(t time.Time) string {
	return "visitor_logs_" + t.UTC().Format("2006-01-02") + ".txt"
}

// JSONFilename is the download name for a JSON export generated at t.
func JSONFilename(t time.Time) string {
	return "visitor_logs_" + t.UTC().Format("2006-01-02") + ".json"
}

// JSON re-serializes the stored sequence without loss.
func JSON(visits []model.Visit) ([]byte, error) {
	if len(visits) == 0 {
		return nil, ErrNoRecords
	}
	data, err := json.MarshalIndent(visits, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("export: marshal: %w", err)
	}
	return data, nil
}

// FromJSON parses a JSON export back into records. Together with JSON
// it forms a lossless round trip.
func FromJSON(data []byte) ([]model.Visit, error) {
	var visits []model.Visit
	if err := json.Unmarshal(data, &visits); err != nil {
		return nil, fmt.Errorf("export: unmarshal: %w", err)
	}
	return visits, nil
}

// Text renders the full log as the fixed-width report: a header banner,
// one numbered section per record in store order, and a footer with the
// total count.
func Text(visits []model.Visit, generatedAt time.Time) (string, error) {
	if len(visits) == 0 {
		return "", ErrNoRecords
	}

	var b strings.Builder
	b.WriteString(banner + "\n")
	b.WriteString("                    VISITOR LOGS EXPORT\n")
	b.WriteString("                    Generated: " + generatedAt.UTC().Format("1/2/2006, 3:04:05 PM") + "\n")
	b.WriteString(banner + "\n\n")

	for i, v := range visits {
		writeVisit(&b, i+1, v)
	}

	b.WriteString(banner + "\n")
	fmt.Fprintf(&b, "Total Visitors Logged: %d\n", len(visits))
	b.WriteString(banner + "\n")
	return b.String(), nil
}

func writeVisit(b *strings.Builder, n int, v model.Visit) {
	b.WriteString(rule + "\n")
	fmt.Fprintf(b, "VISITOR #%d\n", n)
	b.WriteString(rule + "\n")
	fmt.Fprintf(b, "Timestamp: %s\n", v.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(b, "Local Time: %s\n", orNA(v.LocalTime))
	if v.Page != nil {
		fmt.Fprintf(b, "Page URL: %s\n", orNA(v.Page.URL))
		fmt.Fprintf(b, "Page Title: %s\n", orNA(v.Page.Title))
	} else {
		fmt.Fprintf(b, "Page URL: %s\nPage Title: %s\n", na, na)
	}
	if v.Referrer != nil {
		fmt.Fprintf(b, "Referrer: %s\n\n", orNA(v.Referrer.URL))
	} else {
		fmt.Fprintf(b, "Referrer: %s\n\n", na)
	}

	b.WriteString("LOCATION INFORMATION:\n")
	if loc := v.Location; loc != nil {
		fmt.Fprintf(b, "  IP Address: %s\n", orNA(loc.IP))
		fmt.Fprintf(b, "  City: %s\n", orNA(loc.City))
		fmt.Fprintf(b, "  Region/State: %s (%s)\n", orNA(loc.Region), orNA(loc.RegionCode))
		fmt.Fprintf(b, "  Country: %s (%s)\n", orNA(loc.Country), orNA(loc.CountryCode))
		fmt.Fprintf(b, "  Zip Code: %s\n", orNA(loc.ZipCode))
		fmt.Fprintf(b, "  Coordinates: %g, %g\n", loc.Latitude, loc.Longitude)
		fmt.Fprintf(b, "  Timezone: %s\n", orNA(loc.Timezone))
		fmt.Fprintf(b, "  ISP: %s\n", orNA(loc.ISP))
		fmt.Fprintf(b, "  Organization: %s\n", orNA(loc.Organization))
	} else {
		fmt.Fprintf(b, "  %s\n", na)
	}

	b.WriteString("\nBROWSER INFORMATION:\n")
	if br := v.Browser; br != nil {
		fmt.Fprintf(b, "  Browser: %s %s\n", orNA(br.Name), br.Version)
		fmt.Fprintf(b, "  User Agent: %s\n", orNA(br.UserAgent))
	} else {
		fmt.Fprintf(b, "  %s\n", na)
	}

	b.WriteString("\nOPERATING SYSTEM:\n")
	if os := v.OS; os != nil {
		fmt.Fprintf(b, "  OS: %s %s\n", orNA(os.Name), os.Version)
		fmt.Fprintf(b, "  Platform: %s\n", orNA(os.Platform))
	} else {
		fmt.Fprintf(b, "  %s\n", na)
	}

	b.WriteString("\nDEVICE INFORMATION:\n")
	if d := v.Device; d != nil {
		fmt.Fprintf(b, "  Device Type: %s\n", orNA(d.Type))
		fmt.Fprintf(b, "  Brand: %s\n", orNA(d.Brand))
		fmt.Fprintf(b, "  Model: %s\n", orNA(d.Model))
	} else {
		fmt.Fprintf(b, "  Device Type: %s\n", na)
	}
	if s := v.Screen; s != nil {
		fmt.Fprintf(b, "  Screen Resolution: %dx%d\n", s.ScreenWidth, s.ScreenHeight)
		fmt.Fprintf(b, "  Viewport Size: %dx%d\n", s.ViewportWidth, s.ViewportHeight)
		fmt.Fprintf(b, "  Color Depth: %d bit\n", s.ColorDepth)
		fmt.Fprintf(b, "  Pixel Ratio: %g\n", s.PixelRatio)
	}
	if g := v.GPU; g != nil {
		fmt.Fprintf(b, "  GPU Vendor: %s\n", orNA(g.Vendor))
		fmt.Fprintf(b, "  GPU Renderer: %s\n", orNA(g.Renderer))
	}
	if bat := v.Battery; bat != nil {
		fmt.Fprintf(b, "  Battery Level: %d%%\n", int(bat.Level*100))
		fmt.Fprintf(b, "  Battery Charging: %t\n", bat.Charging)
	}

	b.WriteString("\nCONNECTION INFORMATION:\n")
	if c := v.Connection; c != nil {
		fmt.Fprintf(b, "  Connection Type: %s\n", orNA(c.EffectiveType))
		fmt.Fprintf(b, "  Downlink: %g Mbps\n", c.DownlinkMbps)
		fmt.Fprintf(b, "  RTT: %d ms\n", c.RTTMillis)
	} else {
		fmt.Fprintf(b, "  %s\n", na)
	}

	b.WriteString("\nNETWORK ADDRESSES:\n")
	if ips := v.IPs; ips != nil && len(ips.Observations) > 0 {
		for _, obs := range ips.Observations {
			fmt.Fprintf(b, "  %s [%s] via %s\n", obs.Address, obs.Kind, obs.Source)
		}
		fmt.Fprintf(b, "  Total Addresses: %d\n", ips.Total)
	} else {
		fmt.Fprintf(b, "  %s\n", na)
	}

	b.WriteString("\nGEOLOCATION (GPS):\n")
	if g := v.GPS; g != nil {
		fmt.Fprintf(b, "  Status: %s\n", orNA(g.Status))
		if g.Status == model.GPSGranted {
			fmt.Fprintf(b, "  Coordinates: %g, %g (±%gm)\n", g.Latitude, g.Longitude, g.AccuracyMeters)
		}
	} else {
		fmt.Fprintf(b, "  %s\n", na)
	}

	b.WriteString("\nADDITIONAL DETAILS:\n")
	if l := v.Language; l != nil {
		fmt.Fprintf(b, "  Language: %s\n", orNA(l.Language))
		fmt.Fprintf(b, "  Languages: %s\n", orNA(strings.Join(l.Languages, ", ")))
	} else {
		fmt.Fprintf(b, "  Language: %s\n", na)
	}
	if tz := v.Timezone; tz != nil {
		fmt.Fprintf(b, "  Timezone: %s (UTC offset %d min)\n", orNA(tz.Name), tz.UTCOffsetMinutes)
	}
	if c := v.Capabilities; c != nil {
		fmt.Fprintf(b, "  Cookies Enabled: %t\n", c.CookiesEnabled)
		fmt.Fprintf(b, "  Do Not Track: %t\n", c.DoNotTrack)
		fmt.Fprintf(b, "  Online Status: %t\n", c.Online)
	}
	if st := v.Storage; st != nil {
		fmt.Fprintf(b, "  Storage Quota: %d bytes\n", st.QuotaBytes)
	}
	if m := v.Media; m != nil {
		fmt.Fprintf(b, "  Media Devices: %d mic, %d cam, %d out\n", m.Microphones, m.Cameras, m.Speakers)
	}
	if f := v.Fingerprints; f != nil {
		fmt.Fprintf(b, "  Canvas Fingerprint: %s\n", orNA(f.Canvas))
		fmt.Fprintf(b, "  Audio Fingerprint: %s\n", orNA(f.Audio))
		fmt.Fprintf(b, "  WebGL Fingerprint: %s\n", orNA(f.WebGL))
	}
	if d := v.Detection; d != nil {
		fmt.Fprintf(b, "  Webdriver: %t\n", d.Webdriver)
		fmt.Fprintf(b, "  Headless: %t\n", d.Headless)
	}
	if s := v.Session; s != nil {
		fmt.Fprintf(b, "  Session Duration: %d ms\n", s.DurationMillis)
		fmt.Fprintf(b, "  Clicks: %d\n", s.Clicks)
		fmt.Fprintf(b, "  Keystrokes: %d\n", s.Keystrokes)
		fmt.Fprintf(b, "  Scroll Depth: %d%%\n", s.ScrollDepthPercent)
		fmt.Fprintf(b, "  Returning Visitor: %t\n", s.ReturningVisitor)
	}

	if len(v.Failures) > 0 {
		b.WriteString("\nUNAVAILABLE SECTIONS:\n")
		for _, name := range sortedKeys(v.Failures) {
			fmt.Fprintf(b, "  %s: %s\n", name, v.Failures[name])
		}
	}

	b.WriteString("\n")
}

func orNA(s string) string {
	if s == "" {
		return na
	}
	return s
}

// sortedKeys gives the failure list a deterministic rendering order.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
