// Package geoip implements the IP-geolocation attribute provider as a
// fallback chain over public lookup services. Endpoints are tried in
// order; the first success establishes the result and later successes
// only fill fields the earlier one left empty. A failed or timed-out
// endpoint contributes nothing.
package geoip

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ashita-ai/raikyaku/internal/model"
	"github.com/ashita-ai/raikyaku/internal/provider"
)

const maxBodyBytes = 64 * 1024

// Provider is the fallback-chain geolocation provider. Lookups for the
// same client address are coalesced through a singleflight group.
type Provider struct {
	endpoints []endpoint
	client    *http.Client
	timeout   time.Duration
	logger    *slog.Logger
	group     singleflight.Group
}

type endpoint struct {
	base   string
	lookup func(base, ip string) string
	decode func(body []byte) (*model.Location, error)
}

// New builds the provider from endpoint base URLs. Unrecognized hosts
// are decoded with the ipapi.co field mapping.
func New(endpoints []string, client *http.Client, timeout time.Duration, logger *slog.Logger) *Provider {
	p := &Provider{client: client, timeout: timeout, logger: logger}
	if p.client == nil {
		p.client = &http.Client{}
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	for _, base := range endpoints {
		if strings.Contains(base, "ip-api.com") {
			p.endpoints = append(p.endpoints, endpoint{base: base, lookup: ipAPILookupURL, decode: decodeIPAPI})
			continue
		}
		p.endpoints = append(p.endpoints, endpoint{base: base, lookup: ipapiCoLookupURL, decode: decodeIPAPICo})
	}
	return p
}

func (p *Provider) Name() string           { return "location" }
func (p *Provider) Kind() provider.Kind    { return provider.KindFallbackChain }
func (p *Provider) Timeout() time.Duration { return p.timeout }

// Collect runs the fallback chain for the input's client address.
func (p *Provider) Collect(ctx context.Context, in provider.Input) (model.Section, error) {
	key := in.ClientIP
	v, err, _ := p.group.Do(key, func() (any, error) {
		return p.chain(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	// Copy so concurrent captures never share a mutable section.
	loc := *v.(*model.Location)
	return &loc, nil
}

func (p *Provider) chain(ctx context.Context, ip string) (*model.Location, error) {
	// The chain budget is the caller's deadline when one is set, else the
	// provider's own timeout.
	deadline, bounded := ctx.Deadline()
	if !bounded && p.timeout > 0 {
		deadline = time.Now().Add(p.timeout)
		bounded = true
	}

	var merged *model.Location
	for i, ep := range p.endpoints {
		attemptCtx := ctx
		cancel := context.CancelFunc(func() {})
		if bounded {
			// Split the remaining budget evenly across the remaining
			// sources so a hanging source cannot starve its backups. The
			// shared HTTP client's timeout may equal the whole-chain
			// budget; without this split one slow endpoint eats it all.
			remaining := time.Until(deadline)
			if remaining <= 0 {
				break
			}
			attemptCtx, cancel = context.WithTimeout(ctx, remaining/time.Duration(len(p.endpoints)-i))
		}
		loc, err := p.fetch(attemptCtx, ep, ip)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			p.logger.DebugContext(ctx, "geolocation endpoint failed",
				slog.String("endpoint", ep.base), slog.String("error", err.Error()))
			continue
		}
		if merged == nil {
			merged = loc
		} else {
			fillEmpty(merged, loc)
		}
		if complete(merged) {
			break
		}
	}
	if merged == nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("geoip: all %d endpoints failed", len(p.endpoints))
	}
	return merged, nil
}

func (p *Provider) fetch(ctx context.Context, ep endpoint, ip string) (*model.Location, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ep.lookup(ep.base, ip), nil)
	if err != nil {
		return nil, fmt.Errorf("geoip: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geoip: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geoip: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("geoip: read body: %w", err)
	}
	return ep.decode(body)
}

// ipAPILookupURL appends the address to the path: ip-api.com/json/1.2.3.4.
func ipAPILookupURL(base, ip string) string {
	if ip == "" {
		return base
	}
	return strings.TrimSuffix(base, "/") + "/" + url.PathEscape(ip)
}

// ipapiCoLookupURL inserts the address before the format segment:
// ipapi.co/1.2.3.4/json/.
func ipapiCoLookupURL(base, ip string) string {
	if ip == "" {
		return base
	}
	if i := strings.LastIndex(base, "/json"); i >= 0 {
		return base[:i] + "/" + url.PathEscape(ip) + base[i:]
	}
	return strings.TrimSuffix(base, "/") + "/" + url.PathEscape(ip) + "/json/"
}

func decodeIPAPI(body []byte) (*model.Location, error) {
	var raw struct {
		Status      string  `json:"status"`
		Message     string  `json:"message"`
		Query       string  `json:"query"`
		City        string  `json:"city"`
		RegionName  string  `json:"regionName"`
		Region      string  `json:"region"`
		Country     string  `json:"country"`
		CountryCode string  `json:"countryCode"`
		Zip         string  `json:"zip"`
		Lat         float64 `json:"lat"`
		Lon         float64 `json:"lon"`
		Timezone    string  `json:"timezone"`
		ISP         string  `json:"isp"`
		Org         string  `json:"org"`
		AS          string  `json:"as"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("geoip: decode ip-api response: %w", err)
	}
	if raw.Status != "success" {
		return nil, fmt.Errorf("geoip: ip-api lookup failed: %s", raw.Message)
	}
	return &model.Location{
		IP:           raw.Query,
		City:         raw.City,
		Region:       raw.RegionName,
		RegionCode:   raw.Region,
		Country:      raw.Country,
		CountryCode:  raw.CountryCode,
		ZipCode:      raw.Zip,
		Latitude:     raw.Lat,
		Longitude:    raw.Lon,
		Timezone:     raw.Timezone,
		ISP:          raw.ISP,
		Organization: raw.Org,
		ASN:          raw.AS,
	}, nil
}

func decodeIPAPICo(body []byte) (*model.Location, error) {
	var raw struct {
		Error       bool    `json:"error"`
		Reason      string  `json:"reason"`
		IP          string  `json:"ip"`
		City        string  `json:"city"`
		Region      string  `json:"region"`
		RegionCode  string  `json:"region_code"`
		CountryName string  `json:"country_name"`
		CountryCode string  `json:"country_code"`
		Postal      string  `json:"postal"`
		Latitude    float64 `json:"latitude"`
		Longitude   float64 `json:"longitude"`
		Timezone    string  `json:"timezone"`
		Org         string  `json:"org"`
		ASN         string  `json:"asn"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("geoip: decode ipapi response: %w", err)
	}
	if raw.Error {
		return nil, fmt.Errorf("geoip: ipapi lookup failed: %s", raw.Reason)
	}
	return &model.Location{
		IP:           raw.IP,
		City:         raw.City,
		Region:       raw.Region,
		RegionCode:   raw.RegionCode,
		Country:      raw.CountryName,
		CountryCode:  raw.CountryCode,
		ZipCode:      raw.Postal,
		Latitude:     raw.Latitude,
		Longitude:    raw.Longitude,
		Timezone:     raw.Timezone,
		ISP:          raw.Org,
		Organization: raw.Org,
		ASN:          raw.ASN,
	}, nil
}

// fillEmpty copies src fields into dst slots that are still zero. The
// earlier success keeps precedence per field.
func fillEmpty(dst, src *model.Location) {
	if dst.IP == "" {
		dst.IP = src.IP
	}
	if dst.City == "" {
		dst.City = src.City
	}
	if dst.Region == "" {
		dst.Region = src.Region
	}
	if dst.RegionCode == "" {
		dst.RegionCode = src.RegionCode
	}
	if dst.Country == "" {
		dst.Country = src.Country
	}
	if dst.CountryCode == "" {
		dst.CountryCode = src.CountryCode
	}
	if dst.ZipCode == "" {
		dst.ZipCode = src.ZipCode
	}
	if dst.Latitude == 0 && dst.Longitude == 0 {
		dst.Latitude = src.Latitude
		dst.Longitude = src.Longitude
	}
	if dst.Timezone == "" {
		dst.Timezone = src.Timezone
	}
	if dst.ISP == "" {
		dst.ISP = src.ISP
	}
	if dst.Organization == "" {
		dst.Organization = src.Organization
	}
	if dst.ASN == "" {
		dst.ASN = src.ASN
	}
}

func complete(loc *model.Location) bool {
	return loc.IP != "" && loc.City != "" && loc.Region != "" &&
		loc.Country != "" && loc.CountryCode != "" && loc.ZipCode != "" &&
		loc.Timezone != "" && loc.ISP != "" && loc.ASN != ""
}
