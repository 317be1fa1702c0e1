package flow

import (
	"context"
)

type FlowWorkRepository interface {
	GetFlowWorkByID(ctx context.Context, id int64) (*FlowWork, error)
	SaveFlowWork(ctx context.Context, work *FlowWork) error
}

type FlowRecordRepository interface {
	GetFlowRecordByID(ctx context.Context, id int64) (*FlowRecord, error)
	// SaveFlowRecords 批量新建, 会回写ID
	SaveFlowRecords(ctx context.Context, records []*FlowRecord) error
	// UpdateFlowRecord 只能更新待办状态的记录, 记录已经不是待办时返回 ErrStateConflict
	UpdateFlowRecord(ctx context.Context, record *FlowRecord) error
	FindFlowRecordByPreID(ctx context.Context, processID string, preID int64) ([]*FlowRecord, error)
	// FindFlowRecordByBatchID 同一批次的记录, 包含转办生成的记录
	FindFlowRecordByBatchID(ctx context.Context, processID string, batchID string) ([]*FlowRecord, error)
	FindTodoByOperatorID(ctx context.Context, operatorID int64) ([]*FlowRecord, error)
	FindByProcessID(ctx context.Context, processID string) ([]*FlowRecord, error)
	FindAll(ctx context.Context) ([]*FlowRecord, error)
	// FinishProcess 流程结束, 所有记录标记为 finish
	FinishProcess(ctx context.Context, processID string) error
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type FlowBindDataRepository interface {
	// SaveBindData 新建快照, 回写ID和版本号, 快照保存之后不再修改
	SaveBindData(ctx context.Context, snapshot *BindDataSnapshot) error
	GetBindDataByID(ctx context.Context, id int64) (*BindDataSnapshot, error)
}

type FlowOperatorRepository interface {
	GetFlowOperatorByID(ctx context.Context, id int64) (FlowOperator, error)
}
