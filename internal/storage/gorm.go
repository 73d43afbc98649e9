package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SessionEntry struct {
	SessionKey string    `gorm:"primaryKey;size:191"`
	Value      []byte    `gorm:"not null"`
	ExpiresAt  time.Time `gorm:"index"`
	UpdatedAt  time.Time
}

func (SessionEntry) TableName() string {
	return "session_entries"
}

type GormKV struct {
	DB  *gorm.DB
	TTL time.Duration
	now func() time.Time
}

func NewGormKV(ctx context.Context, db *gorm.DB, ttl time.Duration) (*GormKV, error) {
	if err := db.WithContext(ctx).AutoMigrate(&SessionEntry{}); err != nil {
		return nil, fmt.Errorf("migrate session_entries: %w", err)
	}
	return &GormKV{DB: db, TTL: ttl, now: time.Now}, nil
}

func (r *GormKV) Get(ctx context.Context, key string) ([]byte, error) {
	var e SessionEntry
	if err := r.DB.WithContext(ctx).Where("session_key = ?", key).First(&e).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	if r.TTL > 0 && !e.ExpiresAt.IsZero() && e.ExpiresAt.Before(r.now()) {
		return nil, ErrNotFound
	}
	return e.Value, nil
}

func (r *GormKV) Set(ctx context.Context, key string, value []byte) error {
	e := SessionEntry{SessionKey: key, Value: value}
	if r.TTL > 0 {
		e.ExpiresAt = r.now().Add(r.TTL)
	}
	err := r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
	}).Create(&e).Error
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (r *GormKV) Delete(ctx context.Context, key string) error {
	if err := r.DB.WithContext(ctx).Where("session_key = ?", key).Delete(&SessionEntry{}).Error; err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// PurgeExpired removes entries whose ttl ran out and reports how many went.
func (r *GormKV) PurgeExpired(ctx context.Context) (int64, error) {
	if r.TTL <= 0 {
		return 0, nil
	}
	res := r.DB.WithContext(ctx).Where("expires_at < ?", r.now()).Delete(&SessionEntry{})
	return res.RowsAffected, res.Error
}
