package sources

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"dnshelper/internal/config"
	"dnshelper/internal/hosts"
	"dnshelper/internal/support"
)

const (
	defaultRefreshInterval = 24 * time.Hour
	maxRefreshDuration     = 30 * time.Minute
)

// RefreshOutcome reports one refresh of the hosts table from its configured inputs.
type RefreshOutcome struct {
	Reason   string              `json:"reason"`
	Files    []hosts.ImportStats `json:"files"`
	Sources  []hosts.ImportStats `json:"sources"`
	Exported int                 `json:"exported"`
	Duration time.Duration       `json:"duration"`
}

// Added is the number of new entries across files and sources.
func (o *RefreshOutcome) Added() int {
	total := 0
	for _, s := range o.Files {
		total += s.Added
	}
	for _, s := range o.Sources {
		total += s.Added
	}
	return total
}

type Refresher struct {
	importer *hosts.Importer
	exporter *hosts.Exporter
	group    singleflight.Group
}

func NewRefresher(importer *hosts.Importer, exporter *hosts.Exporter) *Refresher {
	return &Refresher{importer: importer, exporter: exporter}
}

// Refresh imports the local import directory, then the remote sources in their
// configured order, and regenerates the exported hosts file when enabled.
// Concurrent callers share one run. The run is detached from the caller that
// started it and bounded by maxRefreshDuration; a caller whose ctx ends stops
// waiting without cancelling the run for the others.
func (r *Refresher) Refresh(ctx context.Context, reason string) (*RefreshOutcome, error) {
	ch := r.group.DoChan("refresh", func() (interface{}, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), maxRefreshDuration)
		defer cancel()
		return r.refresh(runCtx, reason)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		outcome, _ := res.Val.(*RefreshOutcome)
		return outcome, res.Err
	}
}

func (r *Refresher) refresh(ctx context.Context, reason string) (*RefreshOutcome, error) {
	start := time.Now()
	cfg := config.GetConfig()
	outcome := &RefreshOutcome{Reason: reason}

	var errs []error

	if dir := cfg.Import.Directory; dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			files, err := r.importer.ImportDir(ctx, dir)
			outcome.Files = files
			if err != nil {
				errs = append(errs, err)
			}
		} else if err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}

	if len(cfg.Import.Sources) > 0 {
		stats, err := r.importer.ImportSources(ctx, cfg.Import.Sources)
		outcome.Sources = stats
		if err != nil {
			errs = append(errs, err)
		}
	}

	if ctx.Err() != nil {
		return outcome, ctx.Err()
	}

	if cfg.Export.OnImport && cfg.Export.Path != "" && r.exporter != nil {
		n, err := r.exporter.ExportFile(ctx, cfg.Export.Path)
		if err != nil {
			errs = append(errs, err)
		}
		outcome.Exported = n
	}

	outcome.Duration = time.Since(start)
	return outcome, errors.Join(errs...)
}

// StartRefreshRoutine refreshes at startup and then on the configured import
// interval while this instance holds the import leader lock.
func StartRefreshRoutine(ctx context.Context, r *Refresher) {
	if ctx == nil {
		ctx = context.Background()
	}

	var intervalValue atomic.Value
	initial := config.GetImportInterval()
	if initial <= 0 {
		initial = defaultRefreshInterval
	}
	intervalValue.Store(initial)

	updateSignal := make(chan struct{}, 1)
	updates := config.ImportIntervalUpdates()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case newInterval := <-updates:
				if newInterval <= 0 {
					newInterval = defaultRefreshInterval
				}
				intervalValue.Store(newInterval)
				select {
				case updateSignal <- struct{}{}:
				default:
				}
			}
		}
	}()

	err := support.RunWithLeader(ctx, support.LeaderKey("hosts_import"), support.DefaultLeadershipTTL, func(leaderCtx context.Context) {
		runRefreshLoop(leaderCtx, r, &intervalValue, updateSignal)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Hosts import routine stopped", "error", err)
	}
}

func runRefreshLoop(ctx context.Context, r *Refresher, intervalValue *atomic.Value, updateSignal <-chan struct{}) {
	current := intervalValue.Load().(time.Duration)

	ticker := time.NewTicker(current)
	defer ticker.Stop()

	triggerRefresh(ctx, r, "startup")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			triggerRefresh(ctx, r, "scheduled")
		case <-updateSignal:
			newInterval := intervalValue.Load().(time.Duration)
			if newInterval == current {
				continue
			}
			current = newInterval
			ticker.Reset(current)
		}
	}
}

func triggerRefresh(ctx context.Context, r *Refresher, reason string) {
	outcome, err := r.Refresh(ctx, reason)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info("Hosts import canceled", "reason", reason)
			return
		}
		// partial failures still carry an outcome worth logging
		log.Error("Hosts import finished with errors", "reason", reason, "error", err)
	}
	if outcome == nil {
		return
	}

	log.Info("Hosts import refresh completed",
		"reason", reason,
		"files", len(outcome.Files),
		"sources", len(outcome.Sources),
		"added", outcome.Added(),
		"exported", outcome.Exported,
		"duration", outcome.Duration,
	)
}
