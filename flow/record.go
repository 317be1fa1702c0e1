package flow

import (
	"time"

	"github.com/pkg/errors"
)

// FlowRecord 流程记录, 一条记录就是某个节点分配给某个人的一条待办
// 所有记录通过 PreID 组成一棵树, 同一次生成的记录共用一个 BatchID, 是节点的一次办理
type FlowRecord struct {
	ID                int64
	ProcessID         string
	WorkID            int64
	NodeCode          string
	Title             string
	PreID             int64  // 0 表示根记录
	BatchID           string // 退回之后同一个 PreID 下可能有多个批次
	CreateOperatorID  int64 // 流程发起人
	CurrentOperatorID int64 // 当前办理人
	Status            RecordStatus
	FlowStatus        FlowStatus
	SnapshotID        int64
	Opinion           *Opinion
	TransferToID      int64 // 转办之后新生成的记录
	CreatedAt         int64
	FinishedAt        int64
}

func (r *FlowRecord) IsTodo() bool {
	return r.Status == RecordStatusTodo
}

func (r *FlowRecord) IsDone() bool {
	return IsOverRecordStatus(r.Status)
}

// IsPass 通过, 自动办理的记录跟随触发它的意见
func (r *FlowRecord) IsPass() bool {
	switch r.Status {
	case RecordStatusDonePass:
		return true
	case RecordStatusAutoDone:
		return r.Opinion != nil && r.Opinion.IsSuccess()
	}
	return false
}

func (r *FlowRecord) IsTransfer() bool {
	return r.Status == RecordStatusTransfer
}

// IsVoter 转办和撤回的记录不参与会签表决
func (r *FlowRecord) IsVoter() bool {
	return r.Status != RecordStatusTransfer && r.Status != RecordStatusRecall
}

func (r *FlowRecord) IsFinish() bool {
	return r.FlowStatus == FlowStatusFinish
}

func (r *FlowRecord) SubmitStateVerify() error {
	if r.Status != RecordStatusTodo {
		return errors.Wrapf(ErrStateConflict, "flow record is not todo, recordID: %d, status: %s", r.ID, r.Status)
	}
	return nil
}

// Done 办理, 只有当前办理人可以办理
func (r *FlowRecord) Done(operator FlowOperator, snapshot *BindDataSnapshot, opinion Opinion) error {
	if err := r.SubmitStateVerify(); err != nil {
		return err
	}
	if operator == nil || operator.GetOperatorID() != r.CurrentOperatorID {
		return errors.Wrapf(ErrPermissionDenied, "operator is not the assignee of record %d", r.ID)
	}
	if opinion.IsSuccess() {
		r.Status = RecordStatusDonePass
	} else {
		r.Status = RecordStatusDoneReject
	}
	r.finish(snapshot, opinion)
	return nil
}

// AutoDone 非会签节点有人办理之后, 其余待办按同一个意见自动办理
func (r *FlowRecord) AutoDone(operator FlowOperator, snapshot *BindDataSnapshot, opinion Opinion) error {
	if err := r.SubmitStateVerify(); err != nil {
		return err
	}
	r.Status = RecordStatusAutoDone
	r.finish(snapshot, NewOpinion(opinion.Kind(), opinion.Advice()))
	return nil
}

// Transfer 转交给其他人办理, 返回新的待办, 批次和节点保持不变
func (r *FlowRecord) Transfer(operator FlowOperator, target FlowOperator, snapshot *BindDataSnapshot, advice string) (*FlowRecord, error) {
	if err := r.SubmitStateVerify(); err != nil {
		return nil, err
	}
	if operator == nil || operator.GetOperatorID() != r.CurrentOperatorID {
		return nil, errors.Wrapf(ErrPermissionDenied, "operator is not the assignee of record %d", r.ID)
	}
	if target == nil || target.GetOperatorID() == r.CurrentOperatorID {
		return nil, errors.Wrapf(ErrFlowParamInvalid, "transfer target is invalid, recordID: %d", r.ID)
	}
	r.Status = RecordStatusTransfer
	r.finish(snapshot, PassOpinion(advice))
	return &FlowRecord{
		ProcessID:         r.ProcessID,
		WorkID:            r.WorkID,
		NodeCode:          r.NodeCode,
		Title:             r.Title,
		PreID:             r.PreID,
		BatchID:           r.BatchID,
		CreateOperatorID:  r.CreateOperatorID,
		CurrentOperatorID: target.GetOperatorID(),
		Status:            RecordStatusTodo,
		FlowStatus:        FlowStatusRunning,
		SnapshotID:        r.SnapshotID,
		CreatedAt:         time.Now().Unix(),
	}, nil
}

// Recall 发起人撤回
func (r *FlowRecord) Recall(operator FlowOperator) error {
	if err := r.SubmitStateVerify(); err != nil {
		return err
	}
	if operator == nil || operator.GetOperatorID() != r.CreateOperatorID {
		return errors.Wrapf(ErrPermissionDenied, "only the creator can recall record %d", r.ID)
	}
	r.Status = RecordStatusRecall
	r.FinishedAt = time.Now().Unix()
	return nil
}

func (r *FlowRecord) finish(snapshot *BindDataSnapshot, opinion Opinion) {
	if snapshot != nil {
		r.SnapshotID = snapshot.ID
	}
	r.Opinion = &opinion
	r.FinishedAt = time.Now().Unix()
}
