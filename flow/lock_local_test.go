package flow

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFlowLock(t *testing.T, flowLock FlowLock) {
	ctx := context.Background()
	key := groupLockKey("p1", "b1")

	t.Run("持有锁时其他人拿不到", func(t *testing.T) {
		err := flowLock.NonBlockingSynchronized(ctx, key, time.Minute, func(ctx context.Context) error {
			err := flowLock.NonBlockingSynchronized(context.Background(), key, time.Minute, func(ctx context.Context) error {
				return nil
			})
			assert.True(t, errors.Is(err, ErrLockFailed))
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("同一个链路可以重入", func(t *testing.T) {
		executed := false
		err := flowLock.NonBlockingSynchronized(ctx, key, time.Minute, func(ctx context.Context) error {
			return flowLock.NonBlockingSynchronized(ctx, key, time.Minute, func(ctx context.Context) error {
				executed = true
				return nil
			})
		})
		require.NoError(t, err)
		assert.True(t, executed)
	})

	t.Run("执行完释放锁并返回错误", func(t *testing.T) {
		bizErr := errors.New("biz error")
		err := flowLock.NonBlockingSynchronized(ctx, key, time.Minute, func(ctx context.Context) error {
			return bizErr
		})
		assert.Equal(t, bizErr, err)
		err = flowLock.NonBlockingSynchronized(ctx, key, time.Minute, func(ctx context.Context) error {
			return nil
		})
		assert.NoError(t, err)
	})

	t.Run("不同批次互不影响", func(t *testing.T) {
		err := flowLock.NonBlockingSynchronized(ctx, key, time.Minute, func(ctx context.Context) error {
			return flowLock.NonBlockingSynchronized(ctx, groupLockKey("p1", "b2"), time.Minute, func(ctx context.Context) error {
				return nil
			})
		})
		assert.NoError(t, err)
	})
}

func TestLocalFlowLock(t *testing.T) {
	testFlowLock(t, NewLocalFlowLock())

	t.Run("过期之后可以抢占", func(t *testing.T) {
		flowLock := NewLocalFlowLock()
		key := groupLockKey("p2", "b1")
		err := flowLock.NonBlockingSynchronized(context.Background(), key, 10*time.Millisecond, func(ctx context.Context) error {
			time.Sleep(30 * time.Millisecond)
			return flowLock.NonBlockingSynchronized(context.Background(), key, time.Minute, func(ctx context.Context) error {
				return nil
			})
		})
		assert.NoError(t, err)
	})
}

// 需要本地 redis, 设置 FLOW_TEST_REDIS_ADDR 之后运行
func TestRedisFlowLock(t *testing.T) {
	addr := os.Getenv("FLOW_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("FLOW_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	require.NoError(t, client.Ping(context.Background()).Err())
	testFlowLock(t, NewRedisFlowLock(client))
}
