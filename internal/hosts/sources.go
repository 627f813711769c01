package hosts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"dnshelper/internal/resolver"
)

const (
	maxSourceBytes    = 64 << 20
	maxParallelFetch  = 4
	maxImportDuration = 30 * time.Minute
)

// NewSourceClient returns the client used for hosts-file downloads. A non-nil
// dialer makes every connection resolve its host through DoH.
func NewSourceClient(timeout time.Duration, dialer *resolver.Dialer) *http.Client {
	if timeout <= 0 {
		timeout = defaultSourceTimeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if dialer != nil {
		transport.DialContext = dialer.DialContext
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

// ImportSources downloads every source concurrently and then imports them one by
// one in the given order, so the first listed source wins on conflicting
// hostnames. Concurrent calls share a single run, detached from the caller that
// started it and bounded by maxImportDuration.
func (i *Importer) ImportSources(ctx context.Context, sources []string) ([]ImportStats, error) {
	key := strings.Join(sources, "\n")
	ch := i.refresh.DoChan(key, func() (interface{}, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), maxImportDuration)
		defer cancel()
		return i.importSources(runCtx, sources)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			log.Debug("Joined running hosts source import")
		}
		stats, _ := res.Val.([]ImportStats)
		return stats, res.Err
	}
}

func (i *Importer) importSources(ctx context.Context, sources []string) ([]ImportStats, error) {
	bodies := make([][]byte, len(sources))
	fetchErrs := make([]error, len(sources))

	var g errgroup.Group
	g.SetLimit(maxParallelFetch)
	for idx, src := range sources {
		g.Go(func() error {
			bodies[idx], fetchErrs[idx] = i.fetch(ctx, src)
			return nil
		})
	}
	_ = g.Wait()

	var (
		results []ImportStats
		errs    []error
	)
	for idx, src := range sources {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		if fetchErrs[idx] != nil {
			sourceDownloads.WithLabelValues("failed").Inc()
			log.Warn("Hosts source download failed", "source", src, "error", fetchErrs[idx])
			errs = append(errs, fmt.Errorf("fetch %s: %w", src, fetchErrs[idx]))
			continue
		}
		sourceDownloads.WithLabelValues("ok").Inc()

		stats, err := i.ImportReader(ctx, src, bytes.NewReader(bodies[idx]))
		if err != nil {
			log.Error("Hosts source import failed", "source", src, "error", err)
			errs = append(errs, err)
			continue
		}
		results = append(results, *stats)
	}

	return results, errors.Join(errs...)
}

func (i *Importer) fetch(ctx context.Context, source string) ([]byte, error) {
	u, err := url.Parse(source)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported source scheme %q", u.Scheme)
	}

	var body []byte
	policy := backoff.WithContext(backoff.WithMaxRetries(i.newBackOff(), i.maxRetries), ctx)
	err = backoff.RetryNotify(func() error {
		var err error
		body, err = i.download(ctx, u.String())
		return err
	}, policy, func(err error, wait time.Duration) {
		log.Debug("Retrying hosts source download", "source", source, "wait", wait, "error", err)
	})
	return body, err
}

func (i *Importer) download(ctx context.Context, source string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}

	resp, err := i.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		statusErr := fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, backoff.Permanent(statusErr)
		}
		return nil, statusErr
	}

	content, err := io.ReadAll(io.LimitReader(resp.Body, maxSourceBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return content, nil
}
