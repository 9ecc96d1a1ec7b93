package cache

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/campushq/rolegate/internal/models"
)

// DatabaseStore implements Store on the primary SQL database. It exists for
// deployments that run several engine processes and prefer shared cache rows
// over fully independent per-process caches; entries remain TTL-bound.
type DatabaseStore struct {
	db *gorm.DB
}

// NewDatabaseStore constructs a database-backed Store.
func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	if db == nil {
		return nil
	}
	return &DatabaseStore{db: db}
}

var errStoreNotInitialised = errors.New("cache: database store not initialised")

// Set stores the value under key, replacing any existing row.
func (s *DatabaseStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s == nil {
		return errStoreNotInitialised
	}
	if ttl <= 0 {
		ttl = time.Minute
	}

	entry := models.CacheEntry{
		Key:       key,
		Value:     append([]byte(nil), value...),
		ExpiresAt: time.Now().Add(ttl),
	}

	return s.db.WithContext(ensureContext(ctx)).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
		}).
		Create(&entry).Error
}

// Get returns the cached value when present and not expired. Expired rows are
// deleted opportunistically.
func (s *DatabaseStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s == nil {
		return nil, false, errStoreNotInitialised
	}
	ctx = ensureContext(ctx)

	var entry models.CacheEntry
	err := s.db.WithContext(ctx).Take(&entry, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	if !time.Now().Before(entry.ExpiresAt) {
		_ = s.db.WithContext(ctx).Delete(&models.CacheEntry{}, "key = ?", key).Error
		return nil, false, nil
	}

	return entry.Value, true, nil
}

// Delete removes the supplied keys.
func (s *DatabaseStore) Delete(ctx context.Context, keys ...string) error {
	if s == nil {
		return errStoreNotInitialised
	}
	if len(keys) == 0 {
		return nil
	}
	return s.db.WithContext(ensureContext(ctx)).
		Delete(&models.CacheEntry{}, "key IN ?", keys).Error
}

// DeletePrefix removes every entry whose key starts with prefix.
func (s *DatabaseStore) DeletePrefix(ctx context.Context, prefix string) error {
	if s == nil {
		return errStoreNotInitialised
	}
	return s.db.WithContext(ensureContext(ctx)).
		Delete(&models.CacheEntry{}, "key LIKE ?", prefix+"%").Error
}

// Flush clears the cache table.
func (s *DatabaseStore) Flush(ctx context.Context) error {
	if s == nil {
		return errStoreNotInitialised
	}
	return s.db.WithContext(ensureContext(ctx)).
		Where("1 = 1").Delete(&models.CacheEntry{}).Error
}

// PruneExpired drops rows past their TTL.
func (s *DatabaseStore) PruneExpired(ctx context.Context) (int64, error) {
	if s == nil {
		return 0, errStoreNotInitialised
	}
	result := s.db.WithContext(ensureContext(ctx)).
		Delete(&models.CacheEntry{}, "expires_at <= ?", time.Now())
	return result.RowsAffected, result.Error
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}
