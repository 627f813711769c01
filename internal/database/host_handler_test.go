package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"dnshelper/internal/domain"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupHostTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_fk=1", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := SetupDB(
		WithDialector(sqlite.Open(dsn)),
		WithMigrations(&domain.HostEntry{}),
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
		DB = nil
	})

	return db
}

func TestHostStoreCRUD(t *testing.T) {
	db := setupHostTestDB(t)
	store := NewHostStore(db)
	ctx := context.Background()

	entry := &domain.HostEntry{Hostname: "a.com", IP: domain.NullRoute, TTL: domain.DefaultTTL, Comment: "ads"}
	if err := store.Create(ctx, entry); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	exists, err := store.Exists(ctx, "a.com")
	if err != nil || !exists {
		t.Fatalf("Exists = %v, %v; want true", exists, err)
	}

	got, err := store.Get(ctx, "a.com")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got == nil || got.TTL != domain.DefaultTTL || got.Comment != "ads" {
		t.Fatalf("Get returned %+v", got)
	}

	got.TTL = 5
	got.IP = "10.0.0.1"
	if err := store.Update(ctx, got); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}

	updated, _ := store.Get(ctx, "a.com")
	if updated.TTL != 5 || updated.IP != "10.0.0.1" {
		t.Fatalf("entry after update = %+v", updated)
	}

	if err := store.Delete(ctx, "a.com"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	missing, err := store.Get(ctx, "a.com")
	if err != nil || missing != nil {
		t.Fatalf("Get after delete = %+v, %v; want nil, nil", missing, err)
	}

	if err := store.Delete(ctx, "a.com"); err != nil {
		t.Fatalf("Delete of missing entry returned error: %v", err)
	}
}

func TestHostStoreUpdateMissing(t *testing.T) {
	store := NewHostStore(setupHostTestDB(t))

	err := store.Update(context.Background(), &domain.HostEntry{Hostname: "missing.com", TTL: 3})
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("Update of missing entry returned %v, want ErrRecordNotFound", err)
	}
}

func TestHostStoreListWhereOrdersByTTL(t *testing.T) {
	store := NewHostStore(setupHostTestDB(t))
	ctx := context.Background()

	seed := []domain.HostEntry{
		{Hostname: "c.com", IP: domain.NullRoute, TTL: 30},
		{Hostname: "a.com", IP: domain.NullRoute, TTL: domain.PermanentTTL},
		{Hostname: "b.com", IP: domain.NullRoute, TTL: 2},
		{Hostname: "d.com", IP: domain.NullRoute, TTL: 2},
	}
	for i := range seed {
		if err := store.Create(ctx, &seed[i]); err != nil {
			t.Fatalf("seed %s: %v", seed[i].Hostname, err)
		}
	}

	temporary, err := store.ListWhere(ctx, domain.HostFilter{TTLBelow: domain.PermanentTTL, OrderByTTL: true})
	if err != nil {
		t.Fatalf("ListWhere returned error: %v", err)
	}
	if got := hostnames(temporary); got != "b.com,d.com,c.com" {
		t.Fatalf("ListWhere order = %s", got)
	}

	all, err := store.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll returned error: %v", err)
	}
	if got := hostnames(all); got != "a.com,b.com,c.com,d.com" {
		t.Fatalf("ListAll order = %s", got)
	}

	permanent, temp, err := CountHosts(ctx)
	if err != nil {
		t.Fatalf("CountHosts returned error: %v", err)
	}
	if permanent != 1 || temp != 3 {
		t.Fatalf("CountHosts = %d/%d, want 1/3", permanent, temp)
	}
}

func TestHostStoreTransactionRollsBack(t *testing.T) {
	store := NewHostStore(setupHostTestDB(t))
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.Transaction(ctx, func(tx domain.HostRepository) error {
		if err := tx.Create(ctx, &domain.HostEntry{Hostname: "x.com", IP: domain.NullRoute, TTL: domain.PermanentTTL}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Transaction returned %v, want boom", err)
	}

	exists, err := store.Exists(ctx, "x.com")
	if err != nil {
		t.Fatalf("Exists returned error: %v", err)
	}
	if exists {
		t.Fatal("entry created inside a rolled back transaction is visible")
	}
}

func TestHostStoreWithoutDatabase(t *testing.T) {
	DB = nil
	if _, err := NewHostStore(nil).Get(context.Background(), "a.com"); err == nil {
		t.Fatal("expected error when database is not initialised")
	}
}

func hostnames(entries []domain.HostEntry) string {
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Hostname)
	}
	return strings.Join(names, ",")
}
