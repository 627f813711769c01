package maintenance

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"

	"dnshelper/internal/config"
	"dnshelper/internal/hosts"
	"dnshelper/internal/support"
)

const (
	envExportInterval        = "HOSTS_EXPORT_INTERVAL"
	envExportIntervalMinutes = "HOSTS_EXPORT_INTERVAL_MINUTES"

	defaultExportMinutes = 5
)

// StartExportSyncRoutine rewrites the exported hosts file on an interval so that
// decayed entries and API edits reach it between imports. Zero minutes disables it.
func StartExportSyncRoutine(ctx context.Context, exporter *hosts.Exporter) {
	if ctx == nil {
		ctx = context.Background()
	}

	interval := resolveExportInterval()
	if interval <= 0 {
		log.Info("Periodic hosts export disabled")
		return
	}

	err := support.RunWithLeader(ctx, support.LeaderKey("export_sync"), support.DefaultLeadershipTTL, func(leaderCtx context.Context) {
		runExportSyncLoop(leaderCtx, exporter, interval)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Export sync routine stopped", "error", err)
	}
}

func runExportSyncLoop(ctx context.Context, exporter *hosts.Exporter, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := runExportSync(ctx, exporter); err != nil {
				log.Error("Periodic hosts export failed", "error", err)
			}
		}
	}
}

func resolveExportInterval() time.Duration {
	if raw := support.GetEnv(envExportInterval, ""); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil && parsed >= 0 {
			return parsed
		}
		log.Warn("Invalid HOSTS_EXPORT_INTERVAL value, falling back to minutes env", "value", raw)
	}

	minutes := support.GetEnvInt(envExportIntervalMinutes, defaultExportMinutes)
	if minutes < 0 {
		minutes = defaultExportMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// runExportSync writes the configured export path and returns the entry count.
// Nothing is written when no export path is configured.
func runExportSync(ctx context.Context, exporter *hosts.Exporter) (int, error) {
	path := config.GetConfig().Export.Path
	if path == "" {
		return 0, nil
	}

	start := time.Now()
	n, err := exporter.ExportFile(ctx, path)
	if err != nil {
		return 0, err
	}
	log.Debug("Hosts file exported", "path", path, "entries", n, "duration", time.Since(start))
	return n, nil
}
