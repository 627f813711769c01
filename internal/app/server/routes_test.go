package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"

	"dnshelper/internal/api/dto"
	"dnshelper/internal/auth"
	"dnshelper/internal/config"
	"dnshelper/internal/database"
	"dnshelper/internal/domain"
	"dnshelper/internal/hosts"
	"dnshelper/internal/jobs/sources"
	"dnshelper/internal/resolver"
)

type namedResolver struct {
	name  string
	addrs []string
	err   error
}

func (n namedResolver) Name() string { return n.name }

func (n namedResolver) Resolve(context.Context, string, uint16) ([]string, error) {
	return n.addrs, n.err
}

func setupServer(t *testing.T, resolvers ...resolver.Resolver) *Server {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_fk=1", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := database.SetupDB(
		database.WithDialector(sqlite.Open(dsn)),
		database.WithMigrations(&domain.HostEntry{}),
	)
	if err != nil {
		t.Fatalf("setup test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
		database.DB = nil
	})

	table := hosts.NewTable(database.NewHostStore(db))
	exporter := hosts.NewExporter(table)
	return New(Deps{
		Table:     table,
		Exporter:  exporter,
		Refresher: sources.NewRefresher(hosts.NewImporter(table), exporter),
		Resolver:  resolver.NewChain(resolvers...),
	})
}

func do(t *testing.T, h http.Handler, method, target, body string, authed bool) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if authed {
		token, err := auth.GenerateJWT("admin", auth.AdminRole)
		if err != nil {
			t.Fatalf("GenerateJWT: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHostsRequireAuth(t *testing.T) {
	h := setupServer(t).Handler()

	if rec := do(t, h, http.MethodGet, "/hosts", "", false); rec.Code != http.StatusUnauthorized {
		t.Fatalf("GET /hosts without token: %d, want 401", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/healthz", "", false); rec.Code != http.StatusOK {
		t.Fatalf("GET /healthz: %d, want 200", rec.Code)
	}
	if rec := do(t, h, http.MethodOptions, "/hosts", "", false); rec.Code != http.StatusNoContent {
		t.Fatalf("preflight: %d, want 204", rec.Code)
	}
}

func TestHostLifecycle(t *testing.T) {
	h := setupServer(t).Handler()

	rec := do(t, h, http.MethodPost, "/hosts", `{"hostname":"ads.example.com.","ttl":5,"comment":"tracker"}`, true)
	if rec.Code != http.StatusCreated {
		t.Fatalf("first add: %d %s", rec.Code, rec.Body)
	}
	var added dto.AddHostResult
	if err := json.Unmarshal(rec.Body.Bytes(), &added); err != nil {
		t.Fatalf("decode add result: %v", err)
	}
	if added.Hostname != "ads.example.com" || !added.Added {
		t.Fatalf("unexpected add result: %+v", added)
	}

	rec = do(t, h, http.MethodPost, "/hosts", `{"hostname":"ads.example.com"}`, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("second add: %d, want 200", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/hosts/ads.example.com", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("get host: %d %s", rec.Code, rec.Body)
	}
	var entry dto.HostEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &entry); err != nil {
		t.Fatalf("decode entry: %v", err)
	}
	if entry.TTL != 5 || entry.IP != domain.NullRoute || entry.Comment != "tracker" || entry.Permanent {
		t.Fatalf("unexpected entry: %+v", entry)
	}

	if rec := do(t, h, http.MethodPost, "/hosts/ads.example.com/block", "", true); rec.Code != http.StatusNoContent {
		t.Fatalf("block: %d", rec.Code)
	}
	rec = do(t, h, http.MethodGet, "/stats", "", true)
	var stats dto.HostStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Permanent != 1 || stats.Temporary != 0 {
		t.Fatalf("stats after block = %+v", stats)
	}

	rec = do(t, h, http.MethodGet, "/export", "", true)
	if rec.Code != http.StatusOK || rec.Body.String() != "0.0.0.0 ads.example.com\n" {
		t.Fatalf("export: %d %q", rec.Code, rec.Body.String())
	}

	if rec := do(t, h, http.MethodPost, "/hosts/ads.example.com/unblock", "", true); rec.Code != http.StatusNoContent {
		t.Fatalf("unblock: %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/hosts/ads.example.com", "", true); rec.Code != http.StatusNotFound {
		t.Fatalf("get after unblock: %d, want 404", rec.Code)
	}
	if rec := do(t, h, http.MethodDelete, "/hosts/ads.example.com", "", true); rec.Code != http.StatusNoContent {
		t.Fatalf("delete absent host: %d, want 204", rec.Code)
	}
}

func TestHostValidationErrors(t *testing.T) {
	h := setupServer(t).Handler()

	cases := []struct {
		name   string
		method string
		target string
		body   string
	}{
		{"empty label", http.MethodPost, "/hosts", `{"hostname":"a..com"}`},
		{"non-ascii hostname", http.MethodPost, "/hosts", `{"hostname":"bücher.de"}`},
		{"negative ttl", http.MethodPost, "/hosts", `{"hostname":"a.com","ttl":-1}`},
		{"bad ip", http.MethodPost, "/hosts", `{"hostname":"a.com","ip":"nope"}`},
		{"malformed body", http.MethodPost, "/hosts", `{`},
		{"bad lookup", http.MethodGet, "/hosts/a..com", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if rec := do(t, h, tc.method, tc.target, tc.body, true); rec.Code != http.StatusBadRequest {
				t.Fatalf("%s %s: %d, want 400 (%s)", tc.method, tc.target, rec.Code, rec.Body)
			}
		})
	}
}

func TestResolveEndpoint(t *testing.T) {
	failing := namedResolver{name: "cloudflare", err: &resolver.ResolutionError{Provider: "cloudflare", Hostname: "example.com", Err: errors.New("boom")}}
	working := namedResolver{name: "google", addrs: []string{"93.184.216.34"}}
	h := setupServer(t, failing, working).Handler()

	rec := do(t, h, http.MethodGet, "/resolve/example.com.", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("chain resolve: %d %s", rec.Code, rec.Body)
	}
	var res dto.Resolution
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode resolution: %v", err)
	}
	if res.Hostname != "example.com" || res.Type != "A" || len(res.Addresses) != 1 || res.Addresses[0] != "93.184.216.34" {
		t.Fatalf("unexpected resolution: %+v", res)
	}

	if rec := do(t, h, http.MethodGet, "/resolve/example.com?provider=cloudflare", "", true); rec.Code != http.StatusBadGateway {
		t.Fatalf("failing provider: %d, want 502", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/resolve/example.com?provider=quad9", "", true); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown provider: %d, want 400", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/resolve/example.com?type=MX", "", true); rec.Code != http.StatusBadRequest {
		t.Fatalf("unsupported type: %d, want 400", rec.Code)
	}
}

func TestImportEndpoint(t *testing.T) {
	src := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "# list\n0.0.0.0 tracker.example.net\n0.0.0.0 ads.example.net # banner\n")
	}))
	defer src.Close()

	orig := config.GetConfig()
	config.SetSettingsPath(filepath.Join(t.TempDir(), "settings.json"))
	t.Cleanup(func() {
		_ = config.SetConfig(orig)
		config.SetSettingsPath("data/settings.json")
	})

	cfg := config.GetConfig()
	cfg.Import.Sources = []string{src.URL}
	cfg.Import.Directory = ""
	cfg.Export.OnImport = false
	if err := config.SetConfig(cfg); err != nil {
		t.Fatalf("SetConfig: %v", err)
	}

	h := setupServer(t).Handler()
	rec := do(t, h, http.MethodPost, "/import", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("import: %d %s", rec.Code, rec.Body)
	}

	var outcome sources.RefreshOutcome
	if err := json.Unmarshal(rec.Body.Bytes(), &outcome); err != nil {
		t.Fatalf("decode outcome: %v", err)
	}
	if outcome.Added() != 2 {
		t.Fatalf("imported %d entries, want 2", outcome.Added())
	}

	rec = do(t, h, http.MethodGet, "/hosts", "", true)
	var entries []dto.HostEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decode hosts: %v", err)
	}
	if len(entries) != 2 || entries[0].Hostname != "ads.example.net" || !entries[0].Permanent {
		t.Fatalf("unexpected hosts after import: %+v", entries)
	}
}

func TestSettingsRejectInvalidConfig(t *testing.T) {
	orig := config.GetConfig()
	config.SetSettingsPath(filepath.Join(t.TempDir(), "settings.json"))
	t.Cleanup(func() {
		_ = config.SetConfig(orig)
		config.SetSettingsPath("data/settings.json")
	})

	h := setupServer(t).Handler()

	rec := do(t, h, http.MethodPost, "/settings", `{"doh":{"providers":["quad9"]}}`, true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid provider: %d, want 400", rec.Code)
	}

	rec = do(t, h, http.MethodPost, "/settings", `{"doh":{"providers":["google"]}}`, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("valid settings: %d %s", rec.Code, rec.Body)
	}
	if got := config.GetConfig().DoH.Providers; len(got) != 1 || got[0] != "google" {
		t.Fatalf("providers after save = %v", got)
	}
}

func TestLogin(t *testing.T) {
	hash, err := auth.HashPassword("s3cret")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	t.Setenv("ADMIN_USERNAME", "admin")
	t.Setenv("ADMIN_PASSWORD_HASH", hash)

	h := setupServer(t).Handler()

	if rec := do(t, h, http.MethodPost, "/login", `{"username":"admin","password":"wrong"}`, false); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password: %d, want 401", rec.Code)
	}

	rec := do(t, h, http.MethodPost, "/login", `{"username":"admin","password":"s3cret"}`, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: %d %s", rec.Code, rec.Body)
	}
	var token dto.Token
	if err := json.Unmarshal(rec.Body.Bytes(), &token); err != nil || token.Token == "" {
		t.Fatalf("decode token: %v %q", err, token.Token)
	}
	if _, err := auth.ValidateJWT(token.Token); err != nil {
		t.Fatalf("issued token invalid: %v", err)
	}
}

func TestSettingsPartialIntervalReplacesTimer(t *testing.T) {
	orig := config.GetConfig()
	config.SetSettingsPath(filepath.Join(t.TempDir(), "settings.json"))
	t.Cleanup(func() {
		_ = config.SetConfig(orig)
		config.SetSettingsPath("data/settings.json")
	})

	h := setupServer(t).Handler()

	rec := do(t, h, http.MethodPost, "/settings", `{"decay":{"interval":{"seconds":30}}}`, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("save settings: %d %s", rec.Code, rec.Body)
	}

	if got := config.GetConfig().Decay.Interval; got != (config.Timer{Seconds: 30}) {
		t.Fatalf("decay timer after save = %+v, want only 30 seconds", got)
	}
	if got := config.GetDecayInterval(); got != 30*time.Second {
		t.Fatalf("decay interval = %s, want 30s", got)
	}
	if got := config.GetConfig().DoH.Providers; len(got) != len(orig.DoH.Providers) {
		t.Fatalf("unrelated settings changed: providers = %v", got)
	}
}
