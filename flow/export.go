package flow

import (
	"context"
	"log/slog"
	"time"
)

type FlowService interface {
	/**
	 * @description: 发起流程
	 *				 生成开始节点的待办之后, 立刻以待办人的身份提交, 流程停在第一个真正需要审批的节点
	 * @param ctx context.Context
	 * @param req *StartFlowReq
	 * @return *StartFlowResult, error
	 */
	StartFlow(ctx context.Context, req *StartFlowReq) (*StartFlowResult, error)
	/**
	 * @description: 提交流程记录
	 *				 同一批次的记录只会有一个请求推进到下一个节点, 拿不到批次锁会有限次重试,
	 *				 仍然失败返回 ErrAdvanceConflict
	 * @param ctx context.Context
	 * @param req *SubmitFlowReq
	 * @return *SubmitFlowResult, error
	 */
	SubmitFlow(ctx context.Context, req *SubmitFlowReq) (*SubmitFlowResult, error)
	/**
	 * @description: 转办, 当前待办标记为已转办, 给目标操作者生成一条同批次同节点的待办
	 * @param ctx context.Context
	 * @param req *TransferFlowReq
	 * @return *FlowRecord 新的待办, error
	 */
	TransferFlow(ctx context.Context, req *TransferFlowReq) (*FlowRecord, error)
	/**
	 * @description: 发起人撤回, 记录还没有后续记录时才可以撤回
	 *				 同批次的待办一起撤回, 开始节点重新生成发起人的待办
	 * @param ctx context.Context
	 * @param req *RecallFlowReq
	 * @return []*FlowRecord 重新生成的待办, error
	 */
	RecallFlow(ctx context.Context, req *RecallFlowReq) ([]*FlowRecord, error)

	FindTodo(ctx context.Context, operatorID int64) ([]*FlowRecord, error)
	FindProcessRecords(ctx context.Context, processID string) ([]*FlowRecord, error)
	// GetBindData 读取快照并按类型解码
	GetBindData(ctx context.Context, snapshotID int64) (BindData, *BindDataSnapshot, error)
}

// FlowServiceImpl 流程服务
type FlowServiceImpl struct {
	workRepo     FlowWorkRepository
	recordRepo   FlowRecordRepository
	bindDataRepo FlowBindDataRepository
	operatorRepo FlowOperatorRepository
	advanceLock  FlowLock
	registry     *BindDataRegistry
	metrics      *Metrics
	logger       *slog.Logger
	maxRetries   uint64
	lockTimeout  time.Duration
}

type Option func(s *FlowServiceImpl)

func WithBindDataRegistry(registry *BindDataRegistry) Option {
	return func(s *FlowServiceImpl) { s.registry = registry }
}

func WithMetrics(metrics *Metrics) Option {
	return func(s *FlowServiceImpl) { s.metrics = metrics }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *FlowServiceImpl) { s.logger = logger }
}

// WithSubmitRetry 拿不到批次锁时的重试次数
func WithSubmitRetry(maxRetries uint64) Option {
	return func(s *FlowServiceImpl) { s.maxRetries = maxRetries }
}

func WithLockTimeout(timeout time.Duration) Option {
	return func(s *FlowServiceImpl) { s.lockTimeout = timeout }
}

func NewFlowService(
	workRepo FlowWorkRepository,
	recordRepo FlowRecordRepository,
	bindDataRepo FlowBindDataRepository,
	operatorRepo FlowOperatorRepository,
	advanceLock FlowLock,
	opts ...Option,
) *FlowServiceImpl {
	s := &FlowServiceImpl{
		workRepo:     workRepo,
		recordRepo:   recordRepo,
		bindDataRepo: bindDataRepo,
		operatorRepo: operatorRepo,
		advanceLock:  advanceLock,
		maxRetries:   3,
		lockTimeout:  time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = NewBindDataRegistry()
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(nil)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}
