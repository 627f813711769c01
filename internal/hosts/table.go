package hosts

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"dnshelper/internal/domain"
	"dnshelper/internal/hostname"
)

var (
	ErrInvalidTTL = errors.New("hosts: ttl must not be negative")
	ErrInvalidIP  = errors.New("hosts: ip is not an address literal")
)

// SiteOption overrides one of the defaults used by AddSite.
type SiteOption func(*domain.HostEntry)

func WithIP(ip string) SiteOption {
	return func(e *domain.HostEntry) {
		e.IP = strings.TrimSpace(ip)
	}
}

func WithTTL(ttl int) SiteOption {
	return func(e *domain.HostEntry) {
		e.TTL = ttl
	}
}

func WithComment(comment string) SiteOption {
	return func(e *domain.HostEntry) {
		e.Comment = comment
	}
}

// DecayResult tells what a single decay step did to an entry.
type DecayResult int

const (
	DecaySkipped DecayResult = iota
	DecayDecremented
	DecayRemoved
)

func (r DecayResult) String() string {
	switch r {
	case DecayDecremented:
		return "decremented"
	case DecayRemoved:
		return "removed"
	default:
		return "skipped"
	}
}

// Table owns the hostname -> entry mapping. Single operations run concurrently and
// serialize per hostname; an import batch excludes every other operation until it
// commits or rolls back.
type Table struct {
	store Store
	mu    sync.RWMutex
	locks hostLocks
}

func NewTable(store Store) *Table {
	return &Table{store: store}
}

// AddSite inserts hostname with ip 0.0.0.0, ttl 60 and no comment unless opts say
// otherwise. Empty and null-route hostnames and hostnames already present are
// ignored; added reports whether a row was written.
func (t *Table) AddSite(ctx context.Context, host string, opts ...SiteOption) (added bool, err error) {
	entry, ok, err := newEntry(host, opts...)
	if err != nil || !ok {
		return false, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	defer t.locks.lock(entry.Hostname)()

	return addEntry(ctx, t.store, entry)
}

// RemoveSite deletes hostname. Removing an absent hostname is not an error.
func (t *Table) RemoveSite(ctx context.Context, host string) error {
	if isNullSite(host) {
		return nil
	}
	name, err := hostname.Normalize(host)
	if err != nil {
		return fmt.Errorf("remove site %q: %w", host, err)
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	defer t.locks.lock(name)()

	return storageErr("delete", name, t.store.Delete(ctx, name))
}

// UnblockSite is RemoveSite.
func (t *Table) UnblockSite(ctx context.Context, host string) error {
	return t.RemoveSite(ctx, host)
}

// BlockSite replaces any entry for hostname with a permanent null-route entry.
// Repeated calls leave exactly one entry.
func (t *Table) BlockSite(ctx context.Context, host string) error {
	entry, ok, err := newEntry(host, WithTTL(domain.PermanentTTL))
	if err != nil || !ok {
		return err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	defer t.locks.lock(entry.Hostname)()

	err = t.store.Transaction(ctx, func(tx Store) error {
		if err := tx.Delete(ctx, entry.Hostname); err != nil {
			return storageErr("delete", entry.Hostname, err)
		}
		_, err := addEntry(ctx, tx, entry)
		return err
	})
	return asStorageErr("block", entry.Hostname, err)
}

// GetIP returns the stored address of hostname; found is false when it is absent.
func (t *Table) GetIP(ctx context.Context, host string) (ip string, found bool, err error) {
	entry, err := t.Lookup(ctx, host)
	if err != nil || entry == nil {
		return "", false, err
	}
	return entry.IP, true, nil
}

// Lookup returns the entry for hostname, or nil when it is absent.
func (t *Table) Lookup(ctx context.Context, host string) (*domain.HostEntry, error) {
	if isNullSite(host) {
		return nil, nil
	}
	name, err := hostname.Normalize(host)
	if err != nil {
		return nil, fmt.Errorf("lookup %q: %w", host, err)
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	entry, err := t.store.Get(ctx, name)
	return entry, storageErr("get", name, err)
}

// Entries lists the whole table in a stable order.
func (t *Table) Entries(ctx context.Context) ([]domain.HostEntry, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entries, err := t.store.ListAll(ctx)
	return entries, storageErr("list", "", err)
}

// DecayCandidates lists every temporary entry, soonest to expire first. The result
// is a snapshot; entries may disappear before they are decayed.
func (t *Table) DecayCandidates(ctx context.Context) ([]domain.HostEntry, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entries, err := t.store.ListWhere(ctx, domain.HostFilter{TTLBelow: domain.PermanentTTL, OrderByTTL: true})
	return entries, storageErr("list temporary", "", err)
}

// DecayEntry re-reads hostname and takes one cycle off its ttl. The entry is
// removed instead when the decrement would reach zero or the ttl is already
// exhausted.
func (t *Table) DecayEntry(ctx context.Context, name string) (DecayResult, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	defer t.locks.lock(name)()

	current, err := t.store.Get(ctx, name)
	if err != nil {
		return DecaySkipped, storageErr("get", name, err)
	}
	if current == nil || current.IsPermanent() {
		return DecaySkipped, nil
	}

	if current.TTL <= 1 {
		if err := t.store.Delete(ctx, name); err != nil {
			return DecaySkipped, storageErr("delete", name, err)
		}
		return DecayRemoved, nil
	}

	current.TTL--
	if err := t.store.Update(ctx, current); err != nil {
		return DecaySkipped, storageErr("update", name, err)
	}
	return DecayDecremented, nil
}

// Import runs fn inside one store transaction while every other table operation
// waits. Any error returned by fn rolls the whole batch back.
func (t *Table) Import(ctx context.Context, fn func(b *Batch) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	err := t.store.Transaction(ctx, func(tx Store) error {
		return fn(&Batch{store: tx})
	})
	return asStorageErr("import", "", err)
}

// Batch is the view of the table inside an Import.
type Batch struct {
	store Store
}

func (b *Batch) AddSite(ctx context.Context, host string, opts ...SiteOption) (bool, error) {
	entry, ok, err := newEntry(host, opts...)
	if err != nil || !ok {
		return false, err
	}
	return addEntry(ctx, b.store, entry)
}

func (b *Batch) GetIP(ctx context.Context, host string) (string, bool, error) {
	name, err := hostname.Normalize(host)
	if err != nil {
		return "", false, fmt.Errorf("lookup %q: %w", host, err)
	}
	entry, err := b.store.Get(ctx, name)
	if err != nil {
		return "", false, storageErr("get", name, err)
	}
	if entry == nil {
		return "", false, nil
	}
	return entry.IP, true, nil
}

func newEntry(host string, opts ...SiteOption) (*domain.HostEntry, bool, error) {
	if isNullSite(host) {
		return nil, false, nil
	}
	name, err := hostname.Normalize(host)
	if err != nil {
		return nil, false, fmt.Errorf("add site %q: %w", host, err)
	}

	entry := &domain.HostEntry{Hostname: name, IP: domain.NullRoute, TTL: domain.DefaultTTL}
	for _, opt := range opts {
		opt(entry)
	}

	if entry.IP == "" {
		entry.IP = domain.NullRoute
	}
	if net.ParseIP(entry.IP) == nil {
		return nil, false, fmt.Errorf("add site %q: %w", host, ErrInvalidIP)
	}
	if entry.TTL < 0 {
		return nil, false, fmt.Errorf("add site %q: %w", host, ErrInvalidTTL)
	}
	return entry, true, nil
}

func addEntry(ctx context.Context, store Store, entry *domain.HostEntry) (bool, error) {
	exists, err := store.Exists(ctx, entry.Hostname)
	if err != nil {
		return false, storageErr("exists", entry.Hostname, err)
	}
	if exists {
		return false, nil
	}
	if err := store.Create(ctx, entry); err != nil {
		return false, storageErr("create", entry.Hostname, err)
	}
	return true, nil
}

func isNullSite(host string) bool {
	host = strings.TrimSpace(host)
	return host == "" || host == domain.NullRoute
}

// asStorageErr leaves validation and storage errors alone and wraps anything the
// store returned on its own, such as a failed commit.
func asStorageErr(op, name string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) || errors.Is(err, hostname.ErrInvalidHostName) ||
		errors.Is(err, ErrInvalidIP) || errors.Is(err, ErrInvalidTTL) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return storageErr(op, name, err)
}
