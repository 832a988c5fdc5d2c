package redlock

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker is a redis SETNX lock. The value identifies the holder so that only
// the holder can unlock or extend the lock. The queue scheduler uses it to
// keep concurrent instances from running overlapping full scans.
type Locker struct {
	client redis.UniversalClient
	key    string
	value  string
}

func NewLocker(client redis.UniversalClient, key, value string) *Locker {
	return &Locker{
		client: client,
		key:    key,
		value:  value,
	}
}

func (l *Locker) Lock(ctx context.Context, timeout time.Duration) error {
	success, err := l.client.SetNX(ctx, l.key, l.value, timeout).Result()
	if err != nil {
		return err
	}
	if !success {
		return fmt.Errorf("lock for key %s is already held", l.key)
	}
	return nil
}

func (l *Locker) Unlock(ctx context.Context) error {
	script := "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('del', KEYS[1]) else return 0 end"
	result, err := l.client.Eval(ctx, script, []string{l.key}, l.value).Result()
	if err != nil {
		return err
	}
	if result == int64(0) {
		return fmt.Errorf("unlock failed, either lock expired or you're not the lock holder for key %s", l.key)
	}
	return nil
}

func (l *Locker) ExtendLock(ctx context.Context, extension time.Duration) error {
	script := "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('pexpire', KEYS[1], ARGV[2]) else return 0 end"
	result, err := l.client.Eval(ctx, script, []string{l.key}, l.value, fmt.Sprintf("%d", extension.Milliseconds())).Result()
	if err != nil {
		return err
	}
	if result == int64(0) {
		return fmt.Errorf("lock extension failed for key %s, either lock expired or you're not the holder", l.key)
	}
	return nil
}

// WaitLock retries Lock with jittered sleeps until waitTimeout elapses or the
// context is cancelled.
func (l *Locker) WaitLock(ctx context.Context, lockTimeout, waitTimeout time.Duration) error {
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		err := l.Lock(ctx, lockTimeout)
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(rand.Intn(100)) * time.Millisecond):
		}
	}
	return fmt.Errorf("failed to acquire lock for key %s within the wait timeout", l.key)
}
