package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"sync/atomic"
	"time"
)

// Cache stores encoded values by key
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// ScoresKey derives a cache key from an ordered score list.
// NaN values hash by their bit pattern, so lists that differ only in the
// position of unknown tokens get different keys.
func ScoresKey(namespace string, scores []float64) string {
	h := sha256.New()
	var buf [8]byte
	for _, s := range scores {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(s))
		h.Write(buf[:])
	}
	return "shiftdetect:" + namespace + ":v1:" + hex.EncodeToString(h.Sum(nil))
}

// Stats counts lookups against a cache
type Stats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Entries int   `json:"entries"` // Items held in memory
}

// HitRate returns hits / lookups, 0 when nothing was looked up
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

type counter struct {
	hits   atomic.Int64
	misses atomic.Int64
}

func (c *counter) record(found bool) {
	if found {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
}

func (c *counter) snapshot() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}
