// Package classify turns a raw user-agent string into browser, OS, and
// device labels. The core depends only on the Classifier interface; the
// default implementation uses ordered substring matching.
package classify

import (
	"regexp"
	"strings"
)

// Labels is the classification result for one user-agent string.
// Empty fields mean the dimension could not be determined.
type Labels struct {
	Browser        string
	BrowserVersion string
	OS             string
	OSVersion      string
	DeviceType     string // Desktop, Mobile, Tablet
	DeviceBrand    string
	DeviceModel    string
}

// Classifier maps a user-agent string to labels. Implementations must be
// pure: same input, same output, no I/O.
type Classifier interface {
	Classify(userAgent string) Labels
}

// Substring is the default Classifier. Match order matters: Chrome's UA
// contains "Safari/", and Edge's contains both, so the more specific
// token is checked first.
type Substring struct{}

// NewSubstring returns the default substring-based classifier.
func NewSubstring() *Substring { return &Substring{} }

var (
	macOSVersionRe   = regexp.MustCompile(`Mac OS X (\d+[._]\d+[._]?\d*)`)
	androidVersionRe = regexp.MustCompile(`Android (\d+\.?\d*)`)
	iosVersionRe     = regexp.MustCompile(`OS (\d+_\d+)`)
	mobileRe         = regexp.MustCompile(`Mobile|Android|iP(hone|od)|IEMobile|BlackBerry|Kindle|Opera M(obi|ini)`)
	pixelModelRe     = regexp.MustCompile(`Pixel [^;)]+`)
	samsungModelRe   = regexp.MustCompile(`SM-[A-Z0-9]+`)
)

// Classify implements Classifier.
func (c *Substring) Classify(ua string) Labels {
	l := Labels{
		Browser:    "Unknown",
		OS:         "Unknown",
		DeviceType: deviceType(ua),
	}
	l.Browser, l.BrowserVersion = browser(ua)
	l.OS, l.OSVersion = operatingSystem(ua)
	l.DeviceBrand, l.DeviceModel = device(ua)
	return l
}

func browser(ua string) (name, version string) {
	switch {
	case strings.Contains(ua, "Firefox/"):
		return "Firefox", tokenAfter(ua, "Firefox/")
	case strings.Contains(ua, "Edg/"):
		return "Microsoft Edge", tokenAfter(ua, "Edg/")
	case strings.Contains(ua, "OPR/"):
		return "Opera", tokenAfter(ua, "OPR/")
	case strings.Contains(ua, "Chrome/"):
		return "Chrome", tokenAfter(ua, "Chrome/")
	case strings.Contains(ua, "Safari/") && !strings.Contains(ua, "Chrome"):
		return "Safari", tokenAfter(ua, "Version/")
	case strings.Contains(ua, "MSIE") || strings.Contains(ua, "Trident/"):
		return "Internet Explorer", ""
	}
	return "Unknown", ""
}

func operatingSystem(ua string) (name, version string) {
	switch {
	case strings.Contains(ua, "Windows NT 10.0"):
		return "Windows", "10/11"
	case strings.Contains(ua, "Windows NT 6.3"):
		return "Windows", "8.1"
	case strings.Contains(ua, "Windows NT 6.2"):
		return "Windows", "8"
	case strings.Contains(ua, "Windows NT 6.1"):
		return "Windows", "7"
	case strings.Contains(ua, "iPhone") || strings.Contains(ua, "iPad"):
		if m := iosVersionRe.FindStringSubmatch(ua); m != nil {
			return "iOS", strings.ReplaceAll(m[1], "_", ".")
		}
		return "iOS", ""
	case strings.Contains(ua, "Mac OS X"):
		if m := macOSVersionRe.FindStringSubmatch(ua); m != nil {
			return "macOS", strings.ReplaceAll(m[1], "_", ".")
		}
		return "macOS", ""
	case strings.Contains(ua, "Android"):
		if m := androidVersionRe.FindStringSubmatch(ua); m != nil {
			return "Android", m[1]
		}
		return "Android", ""
	case strings.Contains(ua, "Linux"):
		return "Linux", ""
	}
	return "Unknown", ""
}

func deviceType(ua string) string {
	if tabletMatch(ua) {
		return "Tablet"
	}
	if mobileRe.MatchString(ua) {
		return "Mobile"
	}
	return "Desktop"
}

// tabletMatch implements the original tablet rule without negative
// lookahead (RE2 has none): an Android UA is a tablet when it lacks the
// "Mobi" token.
func tabletMatch(ua string) bool {
	lower := strings.ToLower(ua)
	for _, token := range []string{"tablet", "ipad", "playbook", "silk"} {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return strings.Contains(lower, "android") && !strings.Contains(lower, "mobi")
}

func device(ua string) (brand, model string) {
	switch {
	case strings.Contains(ua, "iPhone"):
		return "Apple", "iPhone"
	case strings.Contains(ua, "iPad"):
		return "Apple", "iPad"
	case strings.Contains(ua, "Macintosh"):
		return "Apple", "Mac"
	case samsungModelRe.MatchString(ua):
		return "Samsung", samsungModelRe.FindString(ua)
	case pixelModelRe.MatchString(ua):
		return "Google", pixelModelRe.FindString(ua)
	}
	return "", ""
}

// tokenAfter returns the run of characters following marker, up to the
// next space. Empty when the marker is absent.
func tokenAfter(ua, marker string) string {
	_, after, found := strings.Cut(ua, marker)
	if !found {
		return ""
	}
	if i := strings.IndexByte(after, ' '); i >= 0 {
		return after[:i]
	}
	return after
}
