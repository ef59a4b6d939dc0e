package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/yashrajoria/stock-ledger/services/inventory-service/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// GormSettingsRepository reads the settings table.
type GormSettingsRepository struct {
	db *gorm.DB
}

func NewGormSettingsRepository(db *gorm.DB) *GormSettingsRepository {
	return &GormSettingsRepository{db: db}
}

func (r *GormSettingsRepository) GetByKey(ctx context.Context, key string) (string, error) {
	var s models.Setting
	if err := r.db.WithContext(ctx).First(&s, "key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get setting %s: %w", key, err)
	}
	return s.Value, nil
}

// Set upserts a setting.
func (r *GormSettingsRepository) Set(ctx context.Context, key, value string) error {
	if err := r.db.WithContext(ctx).Save(&models.Setting{Key: key, Value: value}).Error; err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

const settingsCachePrefix = "inventory:settings:"

// CachedSettingsRepository is a read-through Redis cache in front of
// another SettingsRepository. Misses are cached too, as an empty marker.
// Redis failures fall through to the backing repository.
type CachedSettingsRepository struct {
	next   SettingsRepository
	redis  *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedSettingsRepository(next SettingsRepository, client *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedSettingsRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedSettingsRepository{next: next, redis: client, ttl: ttl, logger: logger}
}

// missingMarker cannot collide with a real value: stored values are
// prefixed with "v:".
const missingMarker = "-"

func (r *CachedSettingsRepository) GetByKey(ctx context.Context, key string) (string, error) {
	cacheKey := settingsCachePrefix + key

	cached, err := r.redis.Get(ctx, cacheKey).Result()
	switch {
	case err == nil:
		if cached == missingMarker {
			return "", ErrNotFound
		}
		if v, ok := strings.CutPrefix(cached, "v:"); ok {
			return v, nil
		}
	case !errors.Is(err, redis.Nil):
		r.logger.Debug("settings cache read failed", zap.String("key", key), zap.Error(err))
	}

	value, err := r.next.GetByKey(ctx, key)
	switch {
	case errors.Is(err, ErrNotFound):
		r.store(ctx, cacheKey, missingMarker)
		return "", ErrNotFound
	case err != nil:
		return "", err
	}
	r.store(ctx, cacheKey, "v:"+value)
	return value, nil
}

// Set writes through to the backing repository and drops the cached
// value.
func (r *CachedSettingsRepository) Set(ctx context.Context, key, value string) error {
	w, ok := r.next.(SettingsWriter)
	if !ok {
		return fmt.Errorf("settings repository is read-only")
	}
	if err := w.Set(ctx, key, value); err != nil {
		return err
	}
	if err := r.redis.Del(ctx, settingsCachePrefix+key).Err(); err != nil {
		r.logger.Warn("settings cache invalidation failed", zap.String("key", key), zap.Error(err))
	}
	return nil
}

func (r *CachedSettingsRepository) store(ctx context.Context, cacheKey, value string) {
	if err := r.redis.Set(ctx, cacheKey, value, r.ttl).Err(); err != nil {
		r.logger.Debug("settings cache write failed", zap.String("key", cacheKey), zap.Error(err))
	}
}

// StaticSettingsRepository serves settings from memory. Used when the
// service runs without Postgres.
type StaticSettingsRepository struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewStaticSettingsRepository(values map[string]string) *StaticSettingsRepository {
	cp := make(map[string]string, len(values))
	for k, v := range values {
		cp[k] = v
	}
	return &StaticSettingsRepository{values: cp}
}

func (r *StaticSettingsRepository) GetByKey(_ context.Context, key string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (r *StaticSettingsRepository) Set(_ context.Context, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[key] = value
	return nil
}
