package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// releaseScript deletes the lock key only while it still holds our token,
// so an expired lock re-acquired by someone else is left alone.
var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// RedisSeatLocker serialises admission per seat across processes with a
// SET NX PX lock in Redis.  TTL bounds how long a crashed holder can keep
// a seat locked.
type RedisSeatLocker struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
	logger *zap.Logger

	minBackoff time.Duration
	maxBackoff time.Duration
}

// NewRedisSeatLocker returns a locker that stores keys as "seatlock:<seat>".
func NewRedisSeatLocker(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisSeatLocker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisSeatLocker{
		rdb:        rdb,
		ttl:        ttl,
		prefix:     "seatlock",
		logger:     logger,
		minBackoff: 5 * time.Millisecond,
		maxBackoff: 100 * time.Millisecond,
	}
}

func (l *RedisSeatLocker) key(seatID string) string { return l.prefix + ":" + seatID }

// Lock retries until the seat's key is acquired or ctx is done.
func (l *RedisSeatLocker) Lock(ctx context.Context, seatID string) (func(), error) {
	key := l.key(seatID)
	token := uuid.NewString()
	backoff := l.minBackoff
	for {
		ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			break
		}
		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
		if backoff *= 2; backoff > l.maxBackoff {
			backoff = l.maxBackoff
		}
	}

	return func() {
		// Release even when the caller's context is already cancelled.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.rdb, []string{key}, token).Err(); err != nil {
			l.logger.Warn("Failed to release seat lock", zap.String("key", key), zap.Error(err))
		}
	}, nil
}
