// Package publicip implements the IP discovery attribute provider as a
// race-merge: every resolver endpoint is queried concurrently, the HTTP
// peer address and the client's self-discovered local addresses join the
// pool, and everything that arrives before the deadline is reconciled
// into one typed report. Order is fixed by configuration, not arrival.
package publicip

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ashita-ai/raikyaku/internal/model"
	"github.com/ashita-ai/raikyaku/internal/provider"
	"github.com/ashita-ai/raikyaku/internal/reconcile"
)

const maxBodyBytes = 4 * 1024

// Provider is the race-merge IP discovery provider.
type Provider struct {
	endpoints []string
	client    *http.Client
	timeout   time.Duration
	logger    *slog.Logger
}

// New builds the provider over resolver endpoint URLs.
func New(endpoints []string, client *http.Client, timeout time.Duration, logger *slog.Logger) *Provider {
	p := &Provider{endpoints: endpoints, client: client, timeout: timeout, logger: logger}
	if p.client == nil {
		p.client = &http.Client{}
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

func (p *Provider) Name() string           { return "ips" }
func (p *Provider) Kind() provider.Kind    { return provider.KindRaceMerge }
func (p *Provider) Timeout() time.Duration { return p.timeout }

// Collect races all resolvers, then merges resolver answers, the peer
// address, and client-discovered local addresses in that precedence
// order. Endpoint failures reduce the pool; they only surface as an
// error when the pool ends up empty.
func (p *Provider) Collect(ctx context.Context, in provider.Input) (model.Section, error) {
	answers := make([]string, len(p.endpoints))

	g, gctx := errgroup.WithContext(ctx)
	for i, endpoint := range p.endpoints {
		g.Go(func() error {
			addr, err := p.resolve(gctx, endpoint)
			if err != nil {
				p.logger.DebugContext(ctx, "ip resolver failed",
					slog.String("endpoint", endpoint), slog.String("error", err.Error()))
				return nil
			}
			answers[i] = addr
			return nil
		})
	}
	_ = g.Wait()

	var raw []reconcile.Observation
	for i, addr := range answers {
		if addr != "" {
			raw = append(raw, reconcile.Observation{Address: addr, Source: sourceName(p.endpoints[i])})
		}
	}
	if in.RemoteAddr != "" {
		raw = append(raw, reconcile.Observation{Address: in.RemoteAddr, Source: "request"})
	}
	for _, addr := range in.Request.LocalAddresses {
		raw = append(raw, reconcile.Observation{Address: addr, Source: "webrtc", Local: true})
	}

	report := reconcile.Merge(raw)
	if report.Total == 0 {
		return nil, fmt.Errorf("publicip: no addresses discovered")
	}
	return report, nil
}

func (p *Provider) resolve(ctx context.Context, endpoint string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("publicip: build request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("publicip: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("publicip: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("publicip: read body: %w", err)
	}
	return decode(body)
}

// decode handles both resolver response shapes: a JSON object with an
// "ip" field (ipify) and a bare address line (icanhazip).
func decode(body []byte) (string, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var raw struct {
			IP string `json:"ip"`
		}
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return "", fmt.Errorf("publicip: decode response: %w", err)
		}
		if raw.IP == "" {
			return "", fmt.Errorf("publicip: empty ip field")
		}
		return raw.IP, nil
	}
	if len(trimmed) == 0 {
		return "", fmt.Errorf("publicip: empty response")
	}
	return string(trimmed), nil
}

// sourceName tags an observation with the resolver's host.
func sourceName(endpoint string) string {
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		return u.Host
	}
	return strings.TrimPrefix(endpoint, "https://")
}
