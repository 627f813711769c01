package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/miekg/dns"

	"dnshelper/internal/hostname"
)

const (
	DefaultTimeout   = 8 * time.Second
	maxResponseBytes = 1 << 20
)

type answer struct {
	Name string `json:"name"`
	Type uint16 `json:"type"`
	TTL  uint32 `json:"TTL"`
	Data string `json:"data"`
}

type jsonResponse struct {
	Status int      `json:"Status"`
	Answer []answer `json:"Answer"`
}

// Client resolves hostnames against a single provider.
type Client struct {
	provider   Provider
	httpClient *http.Client
}

// NewClient returns a client for provider. A nil httpClient gets a direct client with DefaultTimeout.
func NewClient(provider Provider, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient, _ = NewHTTPClient(DefaultTimeout, "")
	}
	return &Client{provider: provider, httpClient: httpClient}
}

func (c *Client) Name() string {
	return c.provider.Name()
}

func (c *Client) Resolve(ctx context.Context, host string, qtype uint16) ([]string, error) {
	name, err := hostname.Normalize(host)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", host, err)
	}
	if !supportedType(qtype) {
		return nil, ErrUnsupportedType
	}
	if ctx == nil {
		ctx = context.Background()
	}

	start := time.Now()
	answers, err := c.exchange(ctx, name, qtype)
	queryLatency.WithLabelValues(c.provider.Name()).Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		queryCounter.WithLabelValues(c.provider.Name(), "error").Inc()
		return nil, &ResolutionError{Provider: c.provider.Name(), Hostname: name, Err: err}
	case len(answers) == 0:
		queryCounter.WithLabelValues(c.provider.Name(), "empty").Inc()
		return nil, nil
	}

	queryCounter.WithLabelValues(c.provider.Name(), "answer").Inc()
	log.Debug("DoH lookup answered", "provider", c.provider.Name(), "name", name, "type", dns.TypeToString[qtype], "answers", len(answers))
	return answers, nil
}

func (c *Client) exchange(ctx context.Context, name string, qtype uint16) ([]string, error) {
	req, err := c.provider.NewRequest(ctx, name, qtype)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 2048))
		log.Debug("DoH provider returned non-200", "provider", c.provider.Name(), "name", name, "status", resp.StatusCode)
		return nil, nil
	}

	var payload jsonResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if payload.Status != dns.RcodeSuccess {
		log.Debug("DoH provider returned error rcode", "provider", c.provider.Name(), "name", name, "rcode", dns.RcodeToString[payload.Status])
		return nil, nil
	}

	return filterAnswers(payload.Answer), nil
}

// filterAnswers keeps A and AAAA data in the order the provider returned them.
func filterAnswers(records []answer) []string {
	var out []string
	for _, rec := range records {
		if rec.Type == dns.TypeA || rec.Type == dns.TypeAAAA {
			out = append(out, rec.Data)
		}
	}
	return out
}
