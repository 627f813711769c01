package hosts

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/facebookgo/atomicfile"
)

// Exporter writes the table as hosts-file text.
type Exporter struct {
	table *Table
}

func NewExporter(table *Table) *Exporter {
	return &Exporter{table: table}
}

// ExportAll writes one "<ip> <hostname>\n" line per entry, ordered by hostname.
// The table is read before anything is written, so no lock is held during I/O.
func (e *Exporter) ExportAll(ctx context.Context, w io.Writer) (int, error) {
	entries, err := e.table.Entries(ctx)
	if err != nil {
		return 0, err
	}

	bw := bufio.NewWriter(w)
	for _, entry := range entries {
		if _, err := bw.WriteString(entry.HostsLine() + "\n"); err != nil {
			return 0, err
		}
	}
	if err := bw.Flush(); err != nil {
		return 0, err
	}

	exportedEntries.Set(float64(len(entries)))
	return len(entries), nil
}

// ExportFile replaces path atomically with the exported table.
func (e *Exporter) ExportFile(ctx context.Context, path string) (int, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, err
		}
	}

	f, err := atomicfile.New(path, 0o644)
	if err != nil {
		return 0, err
	}

	n, err := e.ExportAll(ctx, f)
	if err != nil {
		_ = f.Abort()
		return 0, err
	}
	if err := f.Close(); err != nil {
		return 0, err
	}

	log.Info("Hosts file exported", "path", path, "entries", n)
	return n, nil
}
