package hosts

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"dnshelper/internal/domain"
	"dnshelper/internal/hostname"
)

const (
	maxLineBytes         = 1 << 20
	defaultMaxRetries    = 3
	defaultSourceTimeout = 30 * time.Second
)

// LineResult classifies what importing a single line did.
type LineResult int

const (
	LineIgnored LineResult = iota
	LineAdded
	LineDuplicate
	LineInvalid
)

func (r LineResult) String() string {
	switch r {
	case LineAdded:
		return "added"
	case LineDuplicate:
		return "duplicate"
	case LineInvalid:
		return "invalid"
	default:
		return "ignored"
	}
}

// ImportStats summarises one imported source.
type ImportStats struct {
	Source    string        `json:"source"`
	Added     int           `json:"added"`
	Duplicate int           `json:"duplicate"`
	Invalid   int           `json:"invalid"`
	Ignored   int           `json:"ignored"`
	Duration  time.Duration `json:"duration"`
}

func (s *ImportStats) record(r LineResult) {
	switch r {
	case LineAdded:
		s.Added++
	case LineDuplicate:
		s.Duplicate++
	case LineInvalid:
		s.Invalid++
	default:
		s.Ignored++
	}
}

// ParseLine extracts the hostname and trailing comment from one hosts-file line.
// Tabs are removed and '#' becomes a space, so a trailing comment turns into extra
// tokens; the first token is the address column and is not used. ok is false for
// comment lines and lines with fewer than two tokens.
func ParseLine(line string) (host, comment string, ok bool) {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "#") {
		return "", "", false
	}

	line = strings.ReplaceAll(line, "\t", "")
	line = strings.ReplaceAll(line, "#", " ")

	tokens := strings.Split(line, " ")
	if len(tokens) < 2 {
		return "", "", false
	}
	if len(tokens) > 2 {
		comment = strings.Join(tokens[2:], " ")
	}
	return tokens[1], comment, true
}

// ImportLine adds the hostname of line as a permanent entry unless the table
// already knows it. Malformed lines are reported through the result, only
// storage failures are returned as errors.
func (b *Batch) ImportLine(ctx context.Context, line string) (LineResult, error) {
	host, comment, ok := ParseLine(line)
	if !ok || isNullSite(host) {
		return LineIgnored, nil
	}
	if !hostname.Valid(host) {
		return LineInvalid, nil
	}

	if _, found, err := b.GetIP(ctx, host); err != nil {
		return LineIgnored, err
	} else if found {
		return LineDuplicate, nil
	}

	added, err := b.AddSite(ctx, host, WithTTL(domain.PermanentTTL), WithComment(comment))
	if err != nil {
		return LineIgnored, err
	}
	if !added {
		return LineDuplicate, nil
	}
	return LineAdded, nil
}

// Importer merges hosts-file text from readers, local files and remote sources into a Table.
type Importer struct {
	table      *Table
	client     *http.Client
	maxRetries uint64
	newBackOff func() backoff.BackOff
	refresh    singleflight.Group
}

type ImporterOption func(*Importer)

// WithHTTPClient sets the client used to download remote sources.
func WithHTTPClient(client *http.Client) ImporterOption {
	return func(i *Importer) {
		if client != nil {
			i.client = client
		}
	}
}

// WithMaxRetries bounds how often a failed download is retried.
func WithMaxRetries(n int) ImporterOption {
	return func(i *Importer) {
		if n >= 0 {
			i.maxRetries = uint64(n)
		}
	}
}

func NewImporter(table *Table, opts ...ImporterOption) *Importer {
	imp := &Importer{
		table:      table,
		client:     &http.Client{Timeout: defaultSourceTimeout},
		maxRetries: defaultMaxRetries,
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
	for _, opt := range opts {
		opt(imp)
	}
	return imp
}

// ImportLine imports a single line in its own transaction.
func (i *Importer) ImportLine(ctx context.Context, line string) (LineResult, error) {
	var result LineResult
	err := i.table.Import(ctx, func(b *Batch) error {
		var err error
		result, err = b.ImportLine(ctx, line)
		return err
	})
	if err != nil {
		return LineIgnored, err
	}
	importedLines.WithLabelValues(result.String()).Inc()
	return result, nil
}

// ImportReader imports every line of r as one transaction. Nothing from r is kept
// when a storage fault or read error occurs.
func (i *Importer) ImportReader(ctx context.Context, source string, r io.Reader) (*ImportStats, error) {
	start := time.Now()
	stats := &ImportStats{Source: source}

	err := i.table.Import(ctx, func(b *Batch) error {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

		for scanner.Scan() {
			result, err := b.ImportLine(ctx, scanner.Text())
			if err != nil {
				return err
			}
			stats.record(result)
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("read %s: %w", source, err)
		}
		return nil
	})
	if err != nil {
		importRuns.WithLabelValues("failed").Inc()
		return nil, err
	}

	stats.Duration = time.Since(start)
	importRuns.WithLabelValues("committed").Inc()
	importedLines.WithLabelValues(LineAdded.String()).Add(float64(stats.Added))
	importedLines.WithLabelValues(LineDuplicate.String()).Add(float64(stats.Duplicate))
	importedLines.WithLabelValues(LineInvalid.String()).Add(float64(stats.Invalid))
	importedLines.WithLabelValues(LineIgnored.String()).Add(float64(stats.Ignored))

	log.Info("Hosts import completed",
		"source", source,
		"added", stats.Added,
		"duplicate", stats.Duplicate,
		"invalid", stats.Invalid,
		"duration", stats.Duration,
	)
	return stats, nil
}

// ImportFile imports the hosts file at path as one transaction.
func (i *Importer) ImportFile(ctx context.Context, path string) (*ImportStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return i.ImportReader(ctx, path, f)
}

// ImportDir imports every regular file in dir in name order, one transaction per
// file. A file that fails does not stop the others; all failures are returned joined.
func (i *Importer) ImportDir(ctx context.Context, dir string) ([]ImportStats, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read import directory: %w", err)
	}

	names := make([]string, 0, len(dirEntries))
	for _, entry := range dirEntries {
		if entry.Type().IsRegular() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	var (
		results []ImportStats
		errs    []error
	)
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		stats, err := i.ImportFile(ctx, filepath.Join(dir, name))
		if err != nil {
			log.Error("Hosts file import failed", "file", name, "error", err)
			errs = append(errs, err)
			continue
		}
		results = append(results, *stats)
	}

	return results, errors.Join(errs...)
}
