package lock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still carries our token, so
// an expired lock taken over by another process is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript resets the expiry of a key we still own.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

const defaultTTL = 5 * time.Minute

// Redis is a Locker shared between processes, built on SET NX PX. A held
// lock is extended every ttl/3 until released, so ttl only bounds how long
// a crashed holder blocks others.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedis(client *redis.Client, ttl time.Duration, logger *slog.Logger) *Redis {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Redis{client: client, prefix: "invoice:processing:", ttl: ttl, logger: logger}
}

func (r *Redis) TryLock(ctx context.Context, key string) (func(), error) {
	k := r.prefix + key
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, k, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrHeld
	}

	stop := make(chan struct{})
	stopped := make(chan struct{})
	go r.keepAlive(k, token, stop, stopped)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-stopped
			// the request context may already be cancelled
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, r.client, []string{k}, token).Err(); err != nil {
				r.logger.Warn("failed to release lock", "key", k, "error", err)
			}
		})
	}, nil
}

func (r *Redis) keepAlive(key, token string, stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	every := r.ttl / 3
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), every)
			n, err := extendScript.Run(ctx, r.client, []string{key}, token, r.ttl.Milliseconds()).Int()
			cancel()
			if err != nil {
				r.logger.Warn("failed to extend lock", "key", key, "error", err)
				continue
			}
			if n == 0 {
				r.logger.Error("lock lost before release", "key", key)
				return
			}
		}
	}
}
