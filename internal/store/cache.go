package store

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// DefaultCacheTTL is the default eviction age for cache entries, per
// spec.md section 4.5.
const DefaultCacheTTL = 5 * time.Minute

// Cache is the encrypted response cache (C5). It never holds plaintext;
// Data is always the opaque bytes as received from the remote.
type Cache struct {
	db  *gorm.DB
	ttl time.Duration
}

// NewCache constructs a Cache backed by db, evicting entries older than
// ttl. A zero ttl defaults to DefaultCacheTTL.
func NewCache(db *gorm.DB, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{db: db, ttl: ttl}
}

// Fingerprint computes the cache key for an endpoint/userId/params tuple,
// per spec.md section 4.5: endpoint ":" userId ":" base64(json(params)).
func Fingerprint(endpoint, userID string, params any) (string, error) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("marshal cache params: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(paramsJSON)
	return endpoint + ":" + userID + ":" + encoded, nil
}

func canonicalHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Put stores data under key for userID, then evicts any entries older
// than the cache's TTL, per spec.md section 4.5.
func (c *Cache) Put(key, userID string, data []byte, version string) error {
	entry := CacheEntry{
		Key:       key,
		UserID:    userID,
		Data:      data,
		Timestamp: time.Now().UTC(),
		Version:   version,
		HashHex:   canonicalHash(data),
	}
	if err := c.db.Save(&entry).Error; err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return c.evictExpired()
}

// Get returns the cached entry for key, enforcing the invariants from
// spec.md section 4.5: miss + evict on userID mismatch, age past TTL, or
// hash mismatch.
func (c *Cache) Get(key, userID string) (data []byte, hit bool, err error) {
	var entry CacheEntry
	if err := c.db.First(&entry, "key = ?", key).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache get: %w", err)
	}

	if entry.UserID != userID {
		_ = c.Invalidate(key)
		return nil, false, nil
	}
	if time.Since(entry.Timestamp) > c.ttl {
		_ = c.Invalidate(key)
		return nil, false, nil
	}
	if canonicalHash(entry.Data) != entry.HashHex {
		_ = c.Invalidate(key)
		return nil, false, nil
	}
	return entry.Data, true, nil
}

// Invalidate drops a single cache row.
func (c *Cache) Invalidate(key string) error {
	return c.db.Delete(&CacheEntry{}, "key = ?", key).Error
}

// InvalidateUser drops every cache row belonging to userID.
func (c *Cache) InvalidateUser(userID string) error {
	return c.db.Delete(&CacheEntry{}, "user_id = ?", userID).Error
}

// Clear drops every cache row.
func (c *Cache) Clear() error {
	return c.db.Where("1 = 1").Delete(&CacheEntry{}).Error
}

// Stats is the summary returned by Stats().
type Stats struct {
	EntryCount int64
	OldestAge  time.Duration
}

// Stats reports the current cache population.
func (c *Cache) Stats() (Stats, error) {
	var count int64
	if err := c.db.Model(&CacheEntry{}).Count(&count).Error; err != nil {
		return Stats{}, err
	}
	var oldest CacheEntry
	err := c.db.Order("timestamp asc").First(&oldest).Error
	if err == gorm.ErrRecordNotFound {
		return Stats{EntryCount: count}, nil
	}
	if err != nil {
		return Stats{}, err
	}
	return Stats{EntryCount: count, OldestAge: time.Since(oldest.Timestamp)}, nil
}

func (c *Cache) evictExpired() error {
	cutoff := time.Now().UTC().Add(-c.ttl)
	return c.db.Where("timestamp < ?", cutoff).Delete(&CacheEntry{}).Error
}
