package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"dnshelper/internal/config"
	"dnshelper/internal/database"
	"dnshelper/internal/domain"
	"dnshelper/internal/hosts"
)

func setupTable(t *testing.T) *hosts.Table {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_fk=1", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&domain.HostEntry{}); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	return hosts.NewTable(database.NewHostStore(db))
}

func useConfig(t *testing.T, mutate func(cfg *config.Config)) {
	t.Helper()

	dir := t.TempDir()
	orig := config.GetConfig()
	config.SetSettingsPath(filepath.Join(dir, "settings.json"))
	t.Cleanup(func() {
		_ = config.SetConfig(orig)
		config.SetSettingsPath("data/settings.json")
	})

	cfg := config.GetConfig()
	mutate(&cfg)
	if err := config.SetConfig(cfg); err != nil {
		t.Fatalf("SetConfig: %v", err)
	}
}

func TestRefreshImportsDirectoryThenSources(t *testing.T) {
	table := setupTable(t)
	work := t.TempDir()

	hostsDir := filepath.Join(work, "hosts.d")
	if err := os.MkdirAll(hostsDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(hostsDir, "local"), []byte("0.0.0.0 shared.com local\n"), 0o644); err != nil {
		t.Fatalf("write local hosts: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("0.0.0.0 shared.com remote\n0.0.0.0 remote.com\n"))
	}))
	defer srv.Close()

	exportPath := filepath.Join(work, "out", "hosts")
	useConfig(t, func(cfg *config.Config) {
		cfg.Import.Directory = hostsDir
		cfg.Import.Sources = []string{srv.URL + "/hosts"}
		cfg.Export.OnImport = true
		cfg.Export.Path = exportPath
	})

	importer := hosts.NewImporter(table, hosts.WithHTTPClient(srv.Client()), hosts.WithMaxRetries(0))
	refresher := NewRefresher(importer, hosts.NewExporter(table))

	outcome, err := refresher.Refresh(context.Background(), "test")
	if err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}
	if outcome.Added() != 2 || outcome.Exported != 2 {
		t.Fatalf("outcome = %+v", outcome)
	}

	entry, _ := table.Lookup(context.Background(), "shared.com")
	if entry == nil || entry.Comment != "local" {
		t.Fatalf("shared.com = %+v, want the local file to win", entry)
	}

	exported, err := os.ReadFile(exportPath)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if string(exported) != "0.0.0.0 remote.com\n0.0.0.0 shared.com\n" {
		t.Fatalf("exported = %q", exported)
	}
}

func TestRefreshReportsSourceFailures(t *testing.T) {
	table := setupTable(t)

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	useConfig(t, func(cfg *config.Config) {
		cfg.Import.Directory = filepath.Join(t.TempDir(), "missing")
		cfg.Import.Sources = []string{srv.URL + "/gone"}
		cfg.Export.OnImport = false
	})

	importer := hosts.NewImporter(table, hosts.WithHTTPClient(srv.Client()), hosts.WithMaxRetries(0))
	outcome, err := NewRefresher(importer, nil).Refresh(context.Background(), "test")
	if err == nil {
		t.Fatal("expected error for a failing source")
	}
	if outcome == nil || outcome.Added() != 0 || outcome.Exported != 0 {
		t.Fatalf("outcome = %+v", outcome)
	}
}

func TestRefreshOutlivesCancelledCaller(t *testing.T) {
	table := setupTable(t)

	hit := make(chan struct{}, 1)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case hit <- struct{}{}:
		default:
		}
		<-release
		_, _ = w.Write([]byte("0.0.0.0 late.example.net\n"))
	}))
	defer srv.Close()
	defer close(release)

	useConfig(t, func(cfg *config.Config) {
		cfg.Import.Directory = ""
		cfg.Import.Sources = []string{srv.URL + "/hosts"}
		cfg.Export.OnImport = false
	})

	importer := hosts.NewImporter(table, hosts.WithHTTPClient(srv.Client()), hosts.WithMaxRetries(0))
	refresher := NewRefresher(importer, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := refresher.Refresh(ctx, "api")
		done <- err
	}()

	select {
	case <-hit:
	case <-time.After(5 * time.Second):
		t.Fatal("source was never requested")
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("cancelled caller got %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled caller kept waiting for the shared run")
	}

	release <- struct{}{}

	deadline := time.Now().Add(5 * time.Second)
	for {
		entry, err := table.Lookup(context.Background(), "late.example.net")
		if err != nil {
			t.Fatalf("Lookup: %v", err)
		}
		if entry != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("shared refresh was cancelled with its first caller")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
