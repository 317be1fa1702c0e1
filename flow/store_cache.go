package flow

import (
	"context"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
)

// cachedFlowWorkRepository 流程定义读多写少, 在仓库外面包一层本地缓存
type cachedFlowWorkRepository struct {
	repo  FlowWorkRepository
	cache *cache.Cache
}

// NewCachedFlowWorkRepository ttl<=0 时使用默认的5分钟
func NewCachedFlowWorkRepository(repo FlowWorkRepository, ttl time.Duration) FlowWorkRepository {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &cachedFlowWorkRepository{
		repo:  repo,
		cache: cache.New(ttl, 2*ttl),
	}
}

func workCacheKey(id int64) string {
	return "flow_work_" + strconv.FormatInt(id, 10)
}

func (r *cachedFlowWorkRepository) GetFlowWorkByID(ctx context.Context, id int64) (*FlowWork, error) {
	if i, ok := r.cache.Get(workCacheKey(id)); ok {
		if work, ok := i.(*FlowWork); ok {
			// 返回副本, 调用方会修改状态
			copied := *work
			return &copied, nil
		}
	}
	work, err := r.repo.GetFlowWorkByID(ctx, id)
	if err != nil {
		return nil, errors.WithMessagef(err, "cached GetFlowWorkByID failed, workID: %d", id)
	}
	copied := *work
	r.cache.Set(workCacheKey(id), &copied, cache.DefaultExpiration)
	return work, nil
}

func (r *cachedFlowWorkRepository) SaveFlowWork(ctx context.Context, work *FlowWork) error {
	if err := r.repo.SaveFlowWork(ctx, work); err != nil {
		return err
	}
	r.cache.Delete(workCacheKey(work.ID))
	return nil
}
