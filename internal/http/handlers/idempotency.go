package handlers

import (
	"time"

	"github.com/iago/reportflow/internal/cache"
)

const (
	defaultIdempotencyTTL  = 24 * time.Hour
	maxIdempotencyEntries  = 10000
	minIdempotencyKeyLen   = 8
	maxIdempotencyKeyLen   = 128
	idempotencyReplayedHdr = "Idempotent-Replayed"
)

type idempotencyEntry struct {
	PayloadHash string
	JobID       string
}

// idempotencyStore remembers which export job an Idempotency-Key produced.
type idempotencyStore = cache.TTLCache[idempotencyEntry]

func newIdempotencyStore(ttl time.Duration) *idempotencyStore {
	return cache.New[idempotencyEntry](cache.Config{TTL: ttl, MaxEntries: maxIdempotencyEntries})
}
