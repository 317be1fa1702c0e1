package flow

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// NewLocalFlowLock 单进程使用的锁, 多实例部署请使用 NewRedisFlowLock
func NewLocalFlowLock() FlowLock {
	return &localFlowLock{
		holders: make(map[string]*localLockInfo),
	}
}

type localFlowLock struct {
	mu      sync.Mutex
	holders map[string]*localLockInfo
}

type localLockInfo struct {
	value    string    // 锁的值，用于验证是否是同一个持有者
	expireAt time.Time // 过期之后其他人可以抢占
}

func (l *localFlowLock) NonBlockingSynchronized(ctx context.Context, key string, maxLockTimeDuration time.Duration, f func(context.Context) error) error {
	if _, ok := ctx.Value(lockKey(key)).(string); ok {
		// 已经持有锁，可重入，直接执行
		return f(ctx)
	}
	value := l.getRandomValue()
	if !l.tryAcquire(key, value, maxLockTimeDuration) {
		return errors.WithMessagef(ErrLockFailed, "[localFlowLock.NonBlockingSynchronized] has been locked, key: %s", key)
	}
	defer l.releaseKey(key, value)
	return f(context.WithValue(ctx, lockKey(key), value))
}

func (l *localFlowLock) tryAcquire(key string, value string, maxLockTimeDuration time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	if info, ok := l.holders[key]; ok && now.Before(info.expireAt) {
		return false
	}
	l.holders[key] = &localLockInfo{value: value, expireAt: now.Add(maxLockTimeDuration)}
	return true
}

func (l *localFlowLock) getRandomValue() string {
	return fmt.Sprintf("%d_%d", rand.Int(), time.Now().UnixNano())
}

// releaseKey 只释放自己持有的锁, 过期后被别人抢占的不动
func (l *localFlowLock) releaseKey(key string, value string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if info, ok := l.holders[key]; ok && info.value == value {
		delete(l.holders, key)
	}
}
