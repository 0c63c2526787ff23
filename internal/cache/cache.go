package cache

import (
	"fmt"
	"time"

	"github.com/onnwee/graph-physics/internal/metrics"
)

// Cache stores serialized responses with a TTL.
type Cache interface {
	// Get returns the value and true if present and not expired.
	Get(key string) ([]byte, bool)

	// Set stores value under key. A ttl of 0 uses the cache default.
	Set(key string, value []byte, ttl time.Duration)

	Delete(key string)
	Clear()
	Stats() Stats
}

// Stats represents cache statistics.
type Stats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	KeysAdded uint64 `json:"keys_added"`
	Evictions uint64 `json:"evictions"`
	Size      int64  `json:"size_bytes"` // approximate
	Items     int64  `json:"items"`
}

// SnapshotKey names one encoded node snapshot. Sessions bump their version on
// every mutation, so stale entries are never read and simply age out.
func SnapshotKey(sessionID string, version uint64, encoding string) string {
	return fmt.Sprintf("snapshot:%s:%d:%s", sessionID, version, encoding)
}

// Fetch returns the cached value for key or stores the result of build.
// Hits and misses are counted under endpoint. build errors are returned and
// nothing is cached.
func Fetch(c Cache, endpoint, key string, ttl time.Duration, build func() ([]byte, error)) ([]byte, bool, error) {
	if data, ok := c.Get(key); ok {
		metrics.APICacheHits.WithLabelValues(endpoint).Inc()
		return data, true, nil
	}
	metrics.APICacheMisses.WithLabelValues(endpoint).Inc()

	data, err := build()
	if err != nil {
		return nil, false, err
	}
	c.Set(key, data, ttl)
	metrics.APICacheItems.WithLabelValues(endpoint).Set(float64(c.Stats().Items))
	return data, false, nil
}
