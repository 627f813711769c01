package decay

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"

	"dnshelper/internal/config"
	"dnshelper/internal/support"
)

// StartDecayRoutine runs the scheduler for as long as this instance holds the
// decay leader lock, following interval changes from the settings.
func StartDecayRoutine(ctx context.Context, table Table) {
	if ctx == nil {
		ctx = context.Background()
	}

	scheduler := NewScheduler(table, WithInterval(config.GetDecayInterval()))
	updates := config.DecayIntervalUpdates()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case interval := <-updates:
				scheduler.SetInterval(interval)
			}
		}
	}()

	err := support.RunWithLeader(ctx, support.LeaderKey("decay"), support.DefaultLeadershipTTL, func(leaderCtx context.Context) {
		log.Info("Decay scheduler started", "interval", scheduler.Interval())
		if err := scheduler.Run(leaderCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("Decay scheduler stopped", "error", err)
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Decay routine stopped", "error", err)
	}
}
