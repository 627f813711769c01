package resolver

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"

	"github.com/miekg/dns"
)

const (
	DefaultCloudflareURL = "https://cloudflare-dns.com/dns-query"
	DefaultGoogleURL     = "https://dns.google.com/resolve"
	DefaultClientSubnet  = "0.0.0.0/0"

	dnsJSONContentType = "application/dns-json"

	minPaddingLength = 10
	maxPaddingLength = 50
	paddingAlphabet  = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-._~"
)

// Provider builds the provider specific HTTP request for a validated hostname.
type Provider interface {
	Name() string
	NewRequest(ctx context.Context, name string, qtype uint16) (*http.Request, error)
}

// CloudflareProvider queries Cloudflare's JSON API.
type CloudflareProvider struct {
	Endpoint string
}

func (p CloudflareProvider) Name() string {
	return "cloudflare"
}

func (p CloudflareProvider) NewRequest(ctx context.Context, name string, qtype uint16) (*http.Request, error) {
	endpoint := p.Endpoint
	if endpoint == "" {
		endpoint = DefaultCloudflareURL
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse cloudflare endpoint: %w", err)
	}

	q := u.Query()
	q.Set("type", dns.TypeToString[qtype])
	q.Set("ct", dnsJSONContentType)
	q.Set("name", name)
	u.RawQuery = q.Encode()

	return newJSONRequest(ctx, u)
}

// GoogleProvider queries Google Public DNS. RandomPadding appends a fresh random pad to
// every request so that request sizes leak less about the queried name.
type GoogleProvider struct {
	Endpoint         string
	CheckingDisabled bool
	ClientSubnet     string
	RandomPadding    bool
}

func (p GoogleProvider) Name() string {
	return "google"
}

func (p GoogleProvider) NewRequest(ctx context.Context, name string, qtype uint16) (*http.Request, error) {
	endpoint := p.Endpoint
	if endpoint == "" {
		endpoint = DefaultGoogleURL
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse google endpoint: %w", err)
	}

	q := u.Query()
	q.Set("type", strconv.Itoa(int(qtype)))
	q.Set("cd", strconv.FormatBool(p.CheckingDisabled))
	if p.ClientSubnet != "" {
		q.Set("edns_client_subnet", p.ClientSubnet)
	}
	if p.RandomPadding {
		q.Set("random_padding", generatePadding())
	}
	q.Set("name", name)
	u.RawQuery = q.Encode()

	return newJSONRequest(ctx, u)
}

func newJSONRequest(ctx context.Context, u *url.URL) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", dnsJSONContentType)
	return req, nil
}

func generatePadding() string {
	n := minPaddingLength + rand.IntN(maxPaddingLength-minPaddingLength+1)
	pad := make([]byte, n)
	for i := range pad {
		pad[i] = paddingAlphabet[rand.IntN(len(paddingAlphabet))]
	}
	return string(pad)
}
