package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// TickLock keeps scan ticks from overlapping across replicas
type TickLock interface {
	// Acquire returns a release func and true if the lock was taken
	Acquire(ctx context.Context) (release func(), ok bool, err error)
}

// releaseScript deletes the key only if it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisTickLock is a SET NX PX lock with a random token per holder
type RedisTickLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisTickLock creates a lock on key. ttl bounds how long a crashed
// holder blocks other replicas.
func NewRedisTickLock(client *redis.Client, key string, ttl time.Duration) *RedisTickLock {
	if key == "" {
		key = "scanner:tick-lock"
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisTickLock{client: client, key: key, ttl: ttl}
}

// Acquire tries once to take the lock
func (l *RedisTickLock) Acquire(ctx context.Context) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire tick lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		// the tick context may already be cancelled on shutdown
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.client, []string{l.key}, token).Err()
	}
	return release, true, nil
}
