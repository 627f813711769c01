// Package decay counts temporary host entries down one cycle at a time and removes
// them when they run out.
package decay

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/charmbracelet/log"

	"dnshelper/internal/domain"
	"dnshelper/internal/hosts"
)

const DefaultInterval = time.Minute

// Table is the part of hosts.Table the scheduler drives.
type Table interface {
	DecayCandidates(ctx context.Context) ([]domain.HostEntry, error)
	DecayEntry(ctx context.Context, hostname string) (hosts.DecayResult, error)
}

// CycleOutcome summarises one pass over the temporary entries.
type CycleOutcome struct {
	Candidates  int
	Decremented int
	Removed     int
	Skipped     int
	Failed      int
	Duration    time.Duration
}

type Scheduler struct {
	table    Table
	clock    clock.Clock
	interval atomic.Int64
	reset    chan struct{}
	onCycle  func(CycleOutcome, error)
}

type Option func(*Scheduler)

func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) {
		s.clock = c
	}
}

func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		s.SetInterval(d)
	}
}

// WithCycleHook registers fn to be called after every cycle.
func WithCycleHook(fn func(CycleOutcome, error)) Option {
	return func(s *Scheduler) {
		s.onCycle = fn
	}
}

func NewScheduler(table Table, opts ...Option) *Scheduler {
	s := &Scheduler{
		table: table,
		clock: clock.New(),
		reset: make(chan struct{}, 1),
	}
	s.interval.Store(int64(DefaultInterval))
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) Interval() time.Duration {
	return time.Duration(s.interval.Load())
}

// SetInterval changes the pause between cycles. A pause already in progress is
// restarted with the new length.
func (s *Scheduler) SetInterval(d time.Duration) {
	if d <= 0 {
		d = DefaultInterval
	}
	if time.Duration(s.interval.Swap(int64(d))) == d {
		return
	}
	select {
	case s.reset <- struct{}{}:
	default:
	}
}

// Run decays once immediately and then once per interval until ctx is done.
// Cancellation is only observed between cycles; a started cycle always finishes.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		outcome, err := s.RunCycle(context.WithoutCancel(ctx))
		if s.onCycle != nil {
			s.onCycle(outcome, err)
		}

		if err := s.wait(ctx); err != nil {
			return err
		}
	}
}

func (s *Scheduler) wait(ctx context.Context) error {
	timer := s.clock.Timer(s.Interval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		case <-s.reset:
			timer.Stop()
			timer = s.clock.Timer(s.Interval())
		}
	}
}

// RunCycle takes one cycle off every temporary entry, soonest to expire first.
// Entries are re-read one by one, so rows removed since the listing are skipped.
// A failing entry is logged and the cycle moves on; only a failed listing is
// returned as an error.
func (s *Scheduler) RunCycle(ctx context.Context) (CycleOutcome, error) {
	start := s.clock.Now()
	var outcome CycleOutcome

	candidates, err := s.table.DecayCandidates(ctx)
	if err != nil {
		cycles.WithLabelValues("failed").Inc()
		log.Error("Decay cycle could not list entries", "error", err)
		return outcome, err
	}
	outcome.Candidates = len(candidates)

	for _, entry := range candidates {
		result, err := s.table.DecayEntry(ctx, entry.Hostname)
		if err != nil {
			outcome.Failed++
			entryResults.WithLabelValues("failed").Inc()
			log.Error("Decay failed for entry", "hostname", entry.Hostname, "error", err)
			continue
		}

		switch result {
		case hosts.DecayDecremented:
			outcome.Decremented++
		case hosts.DecayRemoved:
			outcome.Removed++
			log.Debug("Temporary entry expired", "hostname", entry.Hostname)
		default:
			outcome.Skipped++
		}
		entryResults.WithLabelValues(result.String()).Inc()
	}

	outcome.Duration = s.clock.Since(start)
	cycles.WithLabelValues("completed").Inc()
	cycleDuration.Observe(outcome.Duration.Seconds())

	if outcome.Candidates > 0 {
		log.Info("Decay cycle completed",
			"candidates", outcome.Candidates,
			"decremented", outcome.Decremented,
			"removed", outcome.Removed,
			"failed", outcome.Failed,
			"duration", outcome.Duration,
		)
	}
	return outcome, nil
}
