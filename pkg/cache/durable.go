package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/careloop/patientsync/pkg/common/logger"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	durablePrefix  = "patient-app-"
	durableVersion = "v1-"
)

// DurableStore is the persistence surface of the durable cache. The gorm
// implementation backs it in production; tests use failing fakes to verify
// silent degradation.
type DurableStore interface {
	Read(ctx context.Context, key string) ([]byte, time.Time, bool, error)
	Write(ctx context.Context, key string, payload []byte, expiresAt time.Time) error
	Purge(ctx context.Context, key string) error
}

type durableEntry struct {
	Key       string         `gorm:"primaryKey;column:key"`
	Payload   datatypes.JSON `gorm:"column:payload"`
	ExpiresAt time.Time      `gorm:"column:expires_at;index"`
	CreatedAt time.Time      `gorm:"column:created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at"`
}

func (durableEntry) TableName() string {
	return "cache_entries"
}

type gormDurableStore struct {
	db *gorm.DB
}

func NewGormDurableStore(db *gorm.DB) DurableStore {
	return &gormDurableStore{db: db}
}

func MigrateDurable(db *gorm.DB) error {
	return db.AutoMigrate(&durableEntry{})
}

func (s *gormDurableStore) Read(ctx context.Context, key string) ([]byte, time.Time, bool, error) {
	var entry durableEntry
	err := s.db.WithContext(ctx).First(&entry, "key = ?", key).Error
	if err == gorm.ErrRecordNotFound {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, err
	}
	return []byte(entry.Payload), entry.ExpiresAt, true, nil
}

func (s *gormDurableStore) Write(ctx context.Context, key string, payload []byte, expiresAt time.Time) error {
	now := time.Now().UTC()
	entry := durableEntry{
		Key:       key,
		Payload:   datatypes.JSON(payload),
		ExpiresAt: expiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "expires_at", "updated_at"}),
	}).Create(&entry).Error
}

func (s *gormDurableStore) Purge(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Delete(&durableEntry{}, "key = ?", key).Error
}

// Durable is the secondary cache that survives restarts. Keys are prefixed
// and versioned so a payload schema change only requires bumping the version.
// Every operation degrades silently: a storage failure is logged and the
// caller proceeds as if the cache missed.
type Durable struct {
	store DurableStore
	ttl   time.Duration
	now   func() time.Time
}

func NewDurable(store DurableStore, ttl time.Duration) *Durable {
	return &Durable{store: store, ttl: ttl, now: time.Now}
}

func (d *Durable) Get(ctx context.Context, key string, out interface{}) bool {
	fullKey := durablePrefix + durableVersion + key
	payload, expiresAt, found, err := d.store.Read(ctx, fullKey)
	if err != nil {
		logger.Log.WithError(err).WithField("key", fullKey).Warn("durable cache: read failed")
		return false
	}
	if !found {
		return false
	}
	if d.now().After(expiresAt) {
		if err := d.store.Purge(ctx, fullKey); err != nil {
			logger.Log.WithError(err).WithField("key", fullKey).Warn("durable cache: purge failed")
		}
		return false
	}
	if err := json.Unmarshal(payload, out); err != nil {
		logger.Log.WithError(err).WithField("key", fullKey).Warn("durable cache: corrupt entry")
		return false
	}
	return true
}

func (d *Durable) Set(ctx context.Context, key string, value interface{}) {
	fullKey := durablePrefix + durableVersion + key
	payload, err := json.Marshal(value)
	if err != nil {
		logger.Log.WithError(err).WithField("key", fullKey).Warn("durable cache: marshal failed")
		return
	}
	if err := d.store.Write(ctx, fullKey, payload, d.now().Add(d.ttl)); err != nil {
		logger.Log.WithError(err).WithField("key", fullKey).Warn("durable cache: write failed")
	}
}

func (d *Durable) Remove(ctx context.Context, key string) {
	fullKey := durablePrefix + durableVersion + key
	if err := d.store.Purge(ctx, fullKey); err != nil {
		logger.Log.WithError(err).WithField("key", fullKey).Warn("durable cache: remove failed")
	}
}
