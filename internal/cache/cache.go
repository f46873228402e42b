// Package cache provides a TTL cache for expensive computation results,
// backed by SQLite and serialized with msgpack. Covariance builds are the
// main consumer: rebuilding a matrix for an unchanged asset set within the
// TTL is wasted work.
package cache

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/folio/internal/database"
)

// TTLCovariance is how long a covariance build stays valid.
const TTLCovariance = 24 * time.Hour

// Cache is a namespaced key/value store with per-entry expiry.
type Cache struct {
	db  *database.DB
	log zerolog.Logger
}

// New creates a cache on the given database.
func New(db *database.DB, log zerolog.Logger) *Cache {
	return &Cache{
		db:  db,
		log: log.With().Str("component", "cache").Logger(),
	}
}

// Init creates the cache table if it does not exist.
func (c *Cache) Init() error {
	_, err := c.db.Conn().Exec(`
		CREATE TABLE IF NOT EXISTS calc_cache (
			namespace  TEXT NOT NULL,
			cache_key  TEXT NOT NULL,
			payload    BLOB NOT NULL,
			expires_at INTEGER NOT NULL,
			PRIMARY KEY (namespace, cache_key)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create calc_cache table: %w", err)
	}
	return nil
}

// Set stores a value under namespace/key with the given TTL.
func (c *Cache) Set(namespace, key string, value interface{}, ttl time.Duration) error {
	payload, err := msgpack.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache payload: %w", err)
	}

	expiresAt := time.Now().Add(ttl).Unix()
	_, err = c.db.Conn().Exec(`
		INSERT INTO calc_cache (namespace, cache_key, payload, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(namespace, cache_key) DO UPDATE SET
			payload = excluded.payload,
			expires_at = excluded.expires_at
	`, namespace, key, payload, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

// Get loads a value into dest. Returns false on miss or expiry.
func (c *Cache) Get(namespace, key string, dest interface{}) bool {
	var payload []byte
	var expiresAt int64
	err := c.db.Conn().QueryRow(`
		SELECT payload, expires_at FROM calc_cache
		WHERE namespace = ? AND cache_key = ?
	`, namespace, key).Scan(&payload, &expiresAt)
	if err != nil {
		return false
	}

	if time.Now().Unix() > expiresAt {
		return false
	}

	if err := msgpack.Unmarshal(payload, dest); err != nil {
		c.log.Warn().Err(err).
			Str("namespace", namespace).
			Msg("Failed to decode cached payload, treating as miss")
		return false
	}
	return true
}

// PurgeExpired deletes expired entries and returns how many were removed.
func (c *Cache) PurgeExpired() (int64, error) {
	res, err := c.db.Conn().Exec(`DELETE FROM calc_cache WHERE expires_at < ?`, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired cache entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}
