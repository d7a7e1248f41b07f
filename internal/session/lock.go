package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrTurnInProgress means another writer holds the session's turn lock.
var ErrTurnInProgress = errors.New("turn already in progress")

// releaseScript deletes the lock only when the caller still owns it.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Locker serializes turns per session with a redis SET NX PX lock.
type Locker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLocker creates a Locker. The TTL bounds how long a crashed turn can
// wedge a session.
func NewLocker(client *redis.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Locker{client: client, ttl: ttl}
}

func lockKey(sessionID string) string {
	return "dustward:turn:" + sessionID
}

// Acquire takes the session lock and returns the ownership token.
func (l *Locker) Acquire(ctx context.Context, sessionID string) (string, error) {
	token := uuid.New().String()
	ok, err := l.client.SetNX(ctx, lockKey(sessionID), token, l.ttl).Result()
	if err != nil {
		return "", fmt.Errorf("acquire turn lock: %w", err)
	}
	if !ok {
		return "", ErrTurnInProgress
	}
	return token, nil
}

// Release frees the lock if the token still owns it. A lock that expired
// and was re-acquired by someone else is left alone.
func (l *Locker) Release(ctx context.Context, sessionID, token string) error {
	_, err := releaseScript.Run(ctx, l.client, []string{lockKey(sessionID)}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release turn lock: %w", err)
	}
	return nil
}
