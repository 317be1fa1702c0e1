package flow

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrLockFailed = errors.New("lock failed")
)

type FlowLock interface {
	// NonBlockingSynchronized
	//  @Description:  1.非阻塞同步块,如果没有拿到锁，立刻返回 ErrLockFailed
	//                 2.可以重入锁, 同一个ctx链路上再次加同一个key直接执行
	//  @param ctx 原来的ctx
	//  @param key 锁的key
	//  @param maxLockTimeDuration 锁最大的时间
	//  @param f 具体执行函数的闭包
	//  @return error
	NonBlockingSynchronized(ctx context.Context, key string, maxLockTimeDuration time.Duration, f func(context.Context) error) error
}

type lockKey string

// groupLockKey 同一批次的记录共用一把锁, 保证只推进一次
func groupLockKey(processID string, batchID string) string {
	return fmt.Sprintf("flow:group:%s:%s", processID, batchID)
}

// processLockKey 发起流程时还没有批次
func processLockKey(processID string) string {
	return fmt.Sprintf("flow:process:%s", processID)
}
