package provider_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/raikyaku/internal/classify"
	"github.com/ashita-ai/raikyaku/internal/model"
	"github.com/ashita-ai/raikyaku/internal/provider"
)

const uaChrome = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

func hintsByName(t *testing.T) map[string]provider.Provider {
	t.Helper()
	byName := map[string]provider.Provider{}
	for _, p := range provider.Hints(classify.NewSubstring()) {
		byName[p.Name()] = p
	}
	return byName
}

func TestHintsCoverAllSingleSections(t *testing.T) {
	byName := hintsByName(t)
	for _, name := range []string{
		"page", "referrer", "browser", "os", "device",
		"screen", "gpu", "battery", "connection", "storage", "media",
		"timezone", "language", "capabilities", "fingerprints",
		"detection", "gps", "session",
	} {
		p, ok := byName[name]
		require.True(t, ok, "missing provider %q", name)
		assert.Equal(t, provider.KindSingle, p.Kind())
	}
	assert.Len(t, byName, 18)
}

func TestHintPresentAndAbsent(t *testing.T) {
	byName := hintsByName(t)
	in := provider.Input{Request: model.CaptureRequest{
		UserAgent: uaChrome,
		PageURL:   "https://shop.example/checkout",
		PageTitle: "Checkout",
		Screen:    &model.ScreenInfo{ScreenWidth: 2560, ScreenHeight: 1440},
	}}

	sec, err := byName["screen"].Collect(context.Background(), in)
	require.NoError(t, err)
	screen, ok := sec.(*model.ScreenInfo)
	require.True(t, ok)
	assert.Equal(t, 2560, screen.ScreenWidth)
	assert.Equal(t, "screen", sec.SectionName())

	// Battery hint was not sent.
	_, err = byName["battery"].Collect(context.Background(), in)
	assert.ErrorIs(t, err, provider.ErrNotReported)
}

func TestClassifierBackedProviders(t *testing.T) {
	byName := hintsByName(t)
	in := provider.Input{Request: model.CaptureRequest{
		UserAgent: uaChrome,
		PageURL:   "https://shop.example/",
	}}

	sec, err := byName["browser"].Collect(context.Background(), in)
	require.NoError(t, err)
	browser := sec.(*model.BrowserInfo)
	assert.Equal(t, "Chrome", browser.Name)
	assert.Equal(t, uaChrome, browser.UserAgent)

	sec, err = byName["os"].Collect(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "Windows", sec.(*model.OSInfo).Name)

	sec, err = byName["device"].Collect(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "Desktop", sec.(*model.DeviceInfo).Type)
}

func TestReferrerDefaultsToDirect(t *testing.T) {
	byName := hintsByName(t)
	in := provider.Input{Request: model.CaptureRequest{UserAgent: uaChrome, PageURL: "https://shop.example/"}}

	sec, err := byName["referrer"].Collect(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "Direct", sec.(*model.ReferrerInfo).URL)

	in.Request.Referrer = "https://search.example/"
	sec, err = byName["referrer"].Collect(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "https://search.example/", sec.(*model.ReferrerInfo).URL)
}
