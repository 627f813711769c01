package database

import (
	"context"
	"errors"

	"dnshelper/internal/domain"

	"gorm.io/gorm"
)

var errNotInitialised = errors.New("database not initialised")

// HostStore persists host entries through gorm. A store built with a nil
// connection uses the package-level DB.
type HostStore struct {
	db *gorm.DB
}

func NewHostStore(db *gorm.DB) *HostStore {
	return &HostStore{db: db}
}

func (s *HostStore) conn(ctx context.Context) (*gorm.DB, error) {
	db := s.db
	if db == nil {
		db = DB
	}
	if db == nil {
		return nil, errNotInitialised
	}
	if ctx != nil {
		db = db.WithContext(ctx)
	}
	return db, nil
}

func (s *HostStore) Get(ctx context.Context, hostname string) (*domain.HostEntry, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	var entry domain.HostEntry
	err = db.Where("hostname = ?", hostname).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *HostStore) Exists(ctx context.Context, hostname string) (bool, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return false, err
	}

	var count int64
	if err := db.Model(&domain.HostEntry{}).Where("hostname = ?", hostname).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *HostStore) Create(ctx context.Context, entry *domain.HostEntry) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	return db.Create(entry).Error
}

// Update writes ip, ttl and comment of an existing entry. Updating a missing
// hostname reports gorm.ErrRecordNotFound.
func (s *HostStore) Update(ctx context.Context, entry *domain.HostEntry) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}

	result := db.Model(&domain.HostEntry{}).
		Where("hostname = ?", entry.Hostname).
		Updates(map[string]any{
			"ip":      entry.IP,
			"ttl":     entry.TTL,
			"comment": entry.Comment,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (s *HostStore) Delete(ctx context.Context, hostname string) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	return db.Where("hostname = ?", hostname).Delete(&domain.HostEntry{}).Error
}

func (s *HostStore) ListWhere(ctx context.Context, filter domain.HostFilter) ([]domain.HostEntry, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	query := db.Model(&domain.HostEntry{})
	if filter.TTLBelow > 0 {
		query = query.Where("ttl < ?", filter.TTLBelow)
	}
	if filter.OrderByTTL {
		query = query.Order("ttl ASC").Order("hostname ASC")
	} else {
		query = query.Order("hostname ASC")
	}

	var entries []domain.HostEntry
	if err := query.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// ListAll returns every entry ordered by hostname, so repeated exports are byte-identical.
func (s *HostStore) ListAll(ctx context.Context) ([]domain.HostEntry, error) {
	return s.ListWhere(ctx, domain.HostFilter{})
}

func (s *HostStore) Transaction(ctx context.Context, fn func(tx domain.HostRepository) error) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	return db.Transaction(func(tx *gorm.DB) error {
		return fn(&HostStore{db: tx})
	})
}

// CountHosts returns the number of stored entries split into permanent and temporary.
func CountHosts(ctx context.Context) (permanent int64, temporary int64, err error) {
	db, err := (&HostStore{}).conn(ctx)
	if err != nil {
		return 0, 0, err
	}

	if err = db.Model(&domain.HostEntry{}).Where("ttl >= ?", domain.PermanentTTL).Count(&permanent).Error; err != nil {
		return 0, 0, err
	}
	if err = db.Model(&domain.HostEntry{}).Where("ttl < ?", domain.PermanentTTL).Count(&temporary).Error; err != nil {
		return 0, 0, err
	}
	return permanent, temporary, nil
}
