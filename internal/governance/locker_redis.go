package governance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	id "pagemd/pkg/domain"
	"pagemd/pkg/platform/sentinel"
)

// redisLockTTL bounds how long a crashed syncer can wedge a tenant. A sync
// is seconds of work; a minute of spurious 409s after a crash is acceptable.
const redisLockTTL = time.Minute

// RedisLocker coordinates syncs across platform API replicas with SET NX.
type RedisLocker struct {
	client *redis.Client
	logger *slog.Logger
}

func NewRedisLocker(client *redis.Client, logger *slog.Logger) *RedisLocker {
	return &RedisLocker{client: client, logger: logger}
}

func syncLockKey(clinicID id.ClinicID) string {
	return "governance:sync:" + clinicID.String()
}

func (l *RedisLocker) TryLock(ctx context.Context, clinicID id.ClinicID) (func(), error) {
	key := syncLockKey(clinicID)
	ok, err := l.client.SetNX(ctx, key, "1", redisLockTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire sync lock %s: %w", key, err)
	}
	if !ok {
		return nil, sentinel.ErrLockHeld
	}
	release := func() {
		// Best effort: the TTL reclaims the lock if this fails.
		if err := l.client.Del(context.Background(), key).Err(); err != nil && l.logger != nil {
			l.logger.Warn("release sync lock failed", "key", key, "error", err)
		}
	}
	return release, nil
}
