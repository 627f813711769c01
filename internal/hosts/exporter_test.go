package hosts

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestExportAllFormat(t *testing.T) {
	table, _ := setupTestTable(t)
	ctx := context.Background()

	if _, err := table.AddSite(ctx, "y.com", WithIP("9.9.9.9")); err != nil {
		t.Fatalf("AddSite: %v", err)
	}

	var buf bytes.Buffer
	n, err := NewExporter(table).ExportAll(ctx, &buf)
	if err != nil {
		t.Fatalf("ExportAll: %v", err)
	}
	if n != 1 || buf.String() != "9.9.9.9 y.com\n" {
		t.Fatalf("ExportAll wrote %d entries: %q", n, buf.String())
	}
}

func TestExportIsDeterministic(t *testing.T) {
	table, _ := setupTestTable(t)
	ctx := context.Background()

	for _, name := range []string{"c.com", "a.com", "b.com"} {
		if _, err := table.AddSite(ctx, name); err != nil {
			t.Fatalf("AddSite %s: %v", name, err)
		}
	}

	exporter := NewExporter(table)
	var first, second bytes.Buffer
	if _, err := exporter.ExportAll(ctx, &first); err != nil {
		t.Fatalf("ExportAll: %v", err)
	}
	if _, err := exporter.ExportAll(ctx, &second); err != nil {
		t.Fatalf("ExportAll: %v", err)
	}

	want := "0.0.0.0 a.com\n0.0.0.0 b.com\n0.0.0.0 c.com\n"
	if first.String() != want || second.String() != want {
		t.Fatalf("exports differ: %q / %q", first.String(), second.String())
	}
}

func TestExportFileRoundTrip(t *testing.T) {
	table, _ := setupTestTable(t)
	ctx := context.Background()

	if err := table.BlockSite(ctx, "blocked.com"); err != nil {
		t.Fatalf("BlockSite: %v", err)
	}

	path := filepath.Join(t.TempDir(), "out", "hosts")
	if _, err := NewExporter(table).ExportFile(ctx, path); err != nil {
		t.Fatalf("ExportFile: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if string(content) != "0.0.0.0 blocked.com\n" {
		t.Fatalf("exported file = %q", content)
	}

	if err := table.UnblockSite(ctx, "blocked.com"); err != nil {
		t.Fatalf("UnblockSite: %v", err)
	}
	stats, err := NewImporter(table).ImportFile(ctx, path)
	if err != nil {
		t.Fatalf("re-import: %v", err)
	}
	if stats.Added != 1 {
		t.Fatalf("re-import added %d entries, want 1", stats.Added)
	}
}
