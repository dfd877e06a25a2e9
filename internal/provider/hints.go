package provider

import (
	"context"

	"github.com/ashita-ai/raikyaku/internal/classify"
	"github.com/ashita-ai/raikyaku/internal/model"
)

// Hints returns the single-call providers backed by the capture request:
// the client-reported sections plus the three classifier-derived ones.
// Each missing hint yields ErrNotReported for its slot.
func Hints(cls classify.Classifier) []Provider {
	providers := []Provider{
		New("page", KindSingle, 0, func(_ context.Context, in Input) (model.Section, error) {
			return &model.PageInfo{URL: in.Request.PageURL, Title: in.Request.PageTitle}, nil
		}),
		New("referrer", KindSingle, 0, func(_ context.Context, in Input) (model.Section, error) {
			url := in.Request.Referrer
			if url == "" {
				url = "Direct"
			}
			return &model.ReferrerInfo{URL: url}, nil
		}),
		New("browser", KindSingle, 0, func(_ context.Context, in Input) (model.Section, error) {
			l := cls.Classify(in.Request.UserAgent)
			return &model.BrowserInfo{
				Name:      l.Browser,
				Version:   l.BrowserVersion,
				UserAgent: in.Request.UserAgent,
			}, nil
		}),
		New("os", KindSingle, 0, func(_ context.Context, in Input) (model.Section, error) {
			l := cls.Classify(in.Request.UserAgent)
			return &model.OSInfo{Name: l.OS, Version: l.OSVersion}, nil
		}),
		New("device", KindSingle, 0, func(_ context.Context, in Input) (model.Section, error) {
			l := cls.Classify(in.Request.UserAgent)
			return &model.DeviceInfo{Type: l.DeviceType, Brand: l.DeviceBrand, Model: l.DeviceModel}, nil
		}),
	}

	// Pass-through hints. The closure returns nil for an absent hint so
	// the nil check below sees a nil interface.
	for name, get := range map[string]func(model.CaptureRequest) model.Section{
		"screen": func(r model.CaptureRequest) model.Section {
			if r.Screen == nil {
				return nil
			}
			return r.Screen
		},
		"gpu": func(r model.CaptureRequest) model.Section {
			if r.GPU == nil {
				return nil
			}
			return r.GPU
		},
		"battery": func(r model.CaptureRequest) model.Section {
			if r.Battery == nil {
				return nil
			}
			return r.Battery
		},
		"connection": func(r model.CaptureRequest) model.Section {
			if r.Connection == nil {
				return nil
			}
			return r.Connection
		},
		"storage": func(r model.CaptureRequest) model.Section {
			if r.Storage == nil {
				return nil
			}
			return r.Storage
		},
		"media": func(r model.CaptureRequest) model.Section {
			if r.Media == nil {
				return nil
			}
			return r.Media
		},
		"timezone": func(r model.CaptureRequest) model.Section {
			if r.Timezone == nil {
				return nil
			}
			return r.Timezone
		},
		"language": func(r model.CaptureRequest) model.Section {
			if r.Language == nil {
				return nil
			}
			return r.Language
		},
		"capabilities": func(r model.CaptureRequest) model.Section {
			if r.Capabilities == nil {
				return nil
			}
			return r.Capabilities
		},
		"fingerprints": func(r model.CaptureRequest) model.Section {
			if r.Fingerprints == nil {
				return nil
			}
			return r.Fingerprints
		},
		"detection": func(r model.CaptureRequest) model.Section {
			if r.Detection == nil {
				return nil
			}
			return r.Detection
		},
		"gps": func(r model.CaptureRequest) model.Section {
			if r.GPS == nil {
				return nil
			}
			return r.GPS
		},
		"session": func(r model.CaptureRequest) model.Section {
			if r.Session == nil {
				return nil
			}
			return r.Session
		},
	} {
		get := get
		providers = append(providers, New(name, KindSingle, 0, func(_ context.Context, in Input) (model.Section, error) {
			s := get(in.Request)
			if s == nil {
				return nil, ErrNotReported
			}
			return s, nil
		}))
	}

	return providers
}
