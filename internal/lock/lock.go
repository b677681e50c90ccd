// Package lock provides the per-alignment session lock.
//
// Only one owner may edit an alignment graph at a time. The Redis locker
// shares the lock across processes; the memory locker serves a single
// process when no Redis is configured.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLocked is returned when another owner holds the lock.
var ErrLocked = errors.New("alignment session locked")

// ErrNotHeld is returned when releasing or refreshing a lock the caller
// does not hold.
var ErrNotHeld = errors.New("alignment session lock not held")

// HeldError reports who holds a lock. It matches ErrLocked with errors.Is.
type HeldError struct {
	Alignment string
	Holder    string
}

func (e *HeldError) Error() string {
	return fmt.Sprintf("alignment %s is locked by %s", e.Alignment, e.Holder)
}

func (e *HeldError) Is(target error) bool {
	return target == ErrLocked
}

// Locker acquires and releases alignment session locks.
type Locker interface {
	Acquire(ctx context.Context, alignmentID, owner string) error
	Refresh(ctx context.Context, alignmentID, owner string) error
	Release(ctx context.Context, alignmentID, owner string) error
}

// RedisLocker implements Locker with SET NX PX and owner-checked scripts.
type RedisLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// Deletes the key only when it still holds the caller's owner value.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Extends the key only when it still holds the caller's owner value.
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

// NewRedisLocker connects to redisURL and verifies the connection.
func NewRedisLocker(redisURL, prefix string, ttl time.Duration) (*RedisLocker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisLockerWithClient(client, prefix, ttl), nil
}

// NewRedisLockerWithClient creates a locker from an existing client.
func NewRedisLockerWithClient(client *redis.Client, prefix string, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, prefix: prefix, ttl: ttl}
}

func (l *RedisLocker) key(alignmentID string) string {
	return l.prefix + alignmentID
}

// Acquire takes the lock for owner. Re-acquiring a lock the owner already
// holds extends it.
func (l *RedisLocker) Acquire(ctx context.Context, alignmentID, owner string) error {
	key := l.key(alignmentID)
	ok, err := l.client.SetNX(ctx, key, owner, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", alignmentID, err)
	}
	if ok {
		return nil
	}

	holder, err := l.client.Get(ctx, key).Result()
	if err == redis.Nil {
		// Expired between SETNX and GET.
		return l.Acquire(ctx, alignmentID, owner)
	}
	if err != nil {
		return fmt.Errorf("read lock %s: %w", alignmentID, err)
	}
	if holder != owner {
		return &HeldError{Alignment: alignmentID, Holder: holder}
	}
	return l.Refresh(ctx, alignmentID, owner)
}

// Refresh extends a lock owner holds.
func (l *RedisLocker) Refresh(ctx context.Context, alignmentID, owner string) error {
	n, err := refreshScript.Run(ctx, l.client, []string{l.key(alignmentID)}, owner, l.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("refresh lock %s: %w", alignmentID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotHeld, alignmentID)
	}
	return nil
}

// Release drops a lock owner holds.
func (l *RedisLocker) Release(ctx context.Context, alignmentID, owner string) error {
	n, err := releaseScript.Run(ctx, l.client, []string{l.key(alignmentID)}, owner).Int()
	if err != nil {
		return fmt.Errorf("release lock %s: %w", alignmentID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotHeld, alignmentID)
	}
	return nil
}

// Holder returns the current owner of a lock, or "" when it is free.
func (l *RedisLocker) Holder(ctx context.Context, alignmentID string) (string, error) {
	holder, err := l.client.Get(ctx, l.key(alignmentID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read lock %s: %w", alignmentID, err)
	}
	return holder, nil
}

// Close closes the Redis connection.
func (l *RedisLocker) Close() error {
	return l.client.Close()
}

// MemoryLocker implements Locker inside one process. Locks do not expire.
//
// Thread-safety: safe for concurrent use.
type MemoryLocker struct {
	mu      sync.Mutex
	holders map[string]string
}

// NewMemoryLocker creates an empty in-process locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{holders: make(map[string]string)}
}

func (l *MemoryLocker) Acquire(_ context.Context, alignmentID, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if holder, ok := l.holders[alignmentID]; ok && holder != owner {
		return &HeldError{Alignment: alignmentID, Holder: holder}
	}
	l.holders[alignmentID] = owner
	return nil
}

func (l *MemoryLocker) Refresh(_ context.Context, alignmentID, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.holders[alignmentID] != owner {
		return fmt.Errorf("%w: %s", ErrNotHeld, alignmentID)
	}
	return nil
}

func (l *MemoryLocker) Release(_ context.Context, alignmentID, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.holders[alignmentID] != owner {
		return fmt.Errorf("%w: %s", ErrNotHeld, alignmentID)
	}
	delete(l.holders, alignmentID)
	return nil
}
