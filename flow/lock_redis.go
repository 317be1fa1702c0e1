package flow

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	delCommand = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
else
    return 0
end
`
)

func NewRedisFlowLock(redisClient redis.Cmdable) FlowLock {
	return &redisFlowLock{redisClient: redisClient}
}

type redisFlowLock struct {
	redisClient redis.Cmdable
}

func (d *redisFlowLock) NonBlockingSynchronized(ctx context.Context, key string, maxLockTimeDuration time.Duration, f func(ctx2 context.Context) error) error {
	if _, ok := ctx.Value(lockKey(key)).(string); ok {
		// 之前成功上锁了,继续执行即可
		return f(ctx)
	}
	value := d.getRandomValue()
	isLock, err := d.redisClient.SetNX(ctx, key, value, maxLockTimeDuration).Result()
	if err != nil {
		return errors.WithMessagef(ErrLockFailed, "[redisFlowLock.NonBlockingSynchronized] key: %s, err:%v", key, err)
	}
	if !isLock {
		return errors.WithMessagef(ErrLockFailed, "[redisFlowLock.NonBlockingSynchronized] has been locked, key: %s", key)
	}
	defer d.releaseKey(key, value)
	return f(context.WithValue(ctx, lockKey(key), value))
}

func (d *redisFlowLock) getRandomValue() string {
	return fmt.Sprintf("%d_%d", rand.Int(), time.Now().UnixNano())
}

func (d *redisFlowLock) releaseKey(key string, value string) {
	// 释放锁, 因为context 可能会被cancel，确保释放锁需要新开一个context,不能用原来的
	reply, err := d.redisClient.Eval(context.Background(), delCommand, []string{key}, value).Int64()
	if err != nil {
		slog.Error("[redisFlowLock.releaseKey] release key failed", "key", key, "err", err)
		return
	}
	if reply != 1 {
		// 锁已经过期, 被别人抢占了
		slog.Warn("[redisFlowLock.releaseKey] lock already expired", "key", key, "reply", reply)
	}
}
