package resolver

import (
	"fmt"
	"strings"
	"time"
)

// Options describes the provider chain built by New.
type Options struct {
	Providers     []string
	Timeout       time.Duration
	CloudflareURL string
	GoogleURL     string
	Google        GoogleProvider
	SOCKS5        string
}

// New builds a Chain of the named providers sharing one HTTP client.
func New(opts Options) (*Chain, error) {
	httpClient, err := NewHTTPClient(opts.Timeout, opts.SOCKS5)
	if err != nil {
		return nil, err
	}

	names := opts.Providers
	if len(names) == 0 {
		names = []string{"cloudflare", "google"}
	}

	resolvers := make([]Resolver, 0, len(names))
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "cloudflare":
			resolvers = append(resolvers, NewClient(CloudflareProvider{Endpoint: opts.CloudflareURL}, httpClient))
		case "google":
			google := opts.Google
			google.Endpoint = opts.GoogleURL
			resolvers = append(resolvers, NewClient(google, httpClient))
		default:
			return nil, fmt.Errorf("resolver: unknown provider %q", name)
		}
	}

	return NewChain(resolvers...), nil
}
