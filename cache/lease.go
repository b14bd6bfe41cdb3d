package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// TranscodeLease is an exclusive per-track lease guarding the transcode
// pipeline against concurrent duplicate dispatch. The track status field
// alone is not a safe guard; the lease is the authoritative lock.
//
// Each acquisition writes a unique fencing value and release is
// compare-and-delete, so a holder whose lease lapsed mid-run cannot clear a
// lease someone else has since taken.
type TranscodeLease struct {
	Client *redis.Client
	TTL    time.Duration

	mu     sync.Mutex
	values map[int64]string
}

// NewTranscodeLease creates a lease manager on the shared Redis client. ttl
// must cover a worst-case job end to end, retries and backoff included.
func NewTranscodeLease(ttl time.Duration) *TranscodeLease {
	return &TranscodeLease{
		Client: RedisClient,
		TTL:    ttl,
		values: make(map[int64]string),
	}
}

func leaseKey(trackID int64) string {
	return fmt.Sprintf("transcode:lease:%d", trackID)
}

// releaseScript deletes the lease only if it still holds the caller's
// fencing value.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Acquire takes the lease for a track. Returns false when another worker
// already holds it.
func (l *TranscodeLease) Acquire(ctx context.Context, trackID int64) (bool, error) {
	value := uuid.NewString()
	ok, err := l.Client.SetNX(ctx, leaseKey(trackID), value, l.TTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire transcode lease for track %d: %w", trackID, err)
	}
	if ok {
		l.mu.Lock()
		l.values[trackID] = value
		l.mu.Unlock()
	}
	return ok, nil
}

// Release frees the lease after the pipeline run finishes, successful or
// not. A no-op when the lease has lapsed and been re-acquired by another
// holder in the meantime.
func (l *TranscodeLease) Release(ctx context.Context, trackID int64) error {
	l.mu.Lock()
	value, ok := l.values[trackID]
	delete(l.values, trackID)
	l.mu.Unlock()
	if !ok {
		return nil
	}

	if err := releaseScript.Run(ctx, l.Client, []string{leaseKey(trackID)}, value).Err(); err != nil {
		return fmt.Errorf("failed to release transcode lease for track %d: %w", trackID, err)
	}
	return nil
}
