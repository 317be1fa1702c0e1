package flow

import (
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

var validatorUtil = validator.New()

var (
	// 参数校验错误, 流程配置错误, 未注册的绑定数据类型
	ErrFlowParamInvalid = errors.New("flow param invalid")

	ErrFlowWorkNotFound   = errors.New("flow work not found")
	ErrStartNodeNotFound  = errors.New("start node not found")
	ErrFlowRecordNotFound = errors.New("flow record not found")
	ErrFlowNodeNotFound   = errors.New("flow node not found")
	ErrOperatorNotFound   = errors.New("flow operator not found")
	ErrBindDataNotFound   = errors.New("bind data snapshot not found")
	ErrNextNodeNotFound   = errors.New("next node not found")

	// ErrStateConflict 状态不正确, 例如提交一个已经办理过的记录, 或者并发更新时丢失了CAS
	ErrStateConflict = errors.New("flow state conflict")
	// ErrNodeAlreadyDone 非会签节点已经流转到下一个节点了
	ErrNodeAlreadyDone = errors.New("flow node is done")
	// ErrAdvanceConflict 同一个节点实例正在被其他请求推进, 重试多次之后仍然拿不到锁
	ErrAdvanceConflict = errors.New("flow advance conflict")

	ErrNoEligibleOperator = errors.New("no eligible operator")
	ErrPermissionDenied   = errors.New("operator permission denied")
)

// WorkStatus 流程定义的生命周期
type WorkStatus = string

const (
	WorkStatusDraft   WorkStatus = "draft"
	WorkStatusEnabled WorkStatus = "enabled"
	// 已经有实例发起过了, 流程图不能再修改
	WorkStatusLocked WorkStatus = "locked"
)

// ApprovalType 节点审批方式
type ApprovalType = string

const (
	// 会签: 所有人都同意才算通过
	ApprovalTypeSign ApprovalType = "sign"
	// 非会签: 任意一个人办理, 其余人自动办理
	ApprovalTypeUnSign ApprovalType = "un_sign"
)

// RecordStatus 流程记录(待办)的状态
type RecordStatus = string

const (
	RecordStatusTodo       RecordStatus = "todo"
	RecordStatusDonePass   RecordStatus = "done_pass"
	RecordStatusDoneReject RecordStatus = "done_reject"
	RecordStatusAutoDone   RecordStatus = "auto_done"
	RecordStatusTransfer   RecordStatus = "transferred"
	RecordStatusRecall     RecordStatus = "recalled"
)

func IsOverRecordStatus(status RecordStatus) bool {
	return status == RecordStatusDonePass || status == RecordStatusDoneReject ||
		status == RecordStatusAutoDone || status == RecordStatusTransfer || status == RecordStatusRecall
}

func GetRecordStatusText(status RecordStatus) string {
	switch status {
	case RecordStatusTodo:
		return "待办"
	case RecordStatusDonePass:
		return "已通过"
	case RecordStatusDoneReject:
		return "已拒绝"
	case RecordStatusAutoDone:
		return "自动办理"
	case RecordStatusTransfer:
		return "已转办"
	case RecordStatusRecall:
		return "已撤回"
	}
	return "未知"
}

// FlowStatus 流程实例的状态, 冗余在每一条记录上
type FlowStatus = string

const (
	FlowStatusRunning FlowStatus = "running"
	FlowStatusFinish  FlowStatus = "finish"
)

func IsValidationError(err error) bool {
	return err != nil && errors.Is(errors.Cause(err), ErrFlowParamInvalid)
}

func IsNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	causeErr := errors.Cause(err)
	return errors.Is(causeErr, ErrFlowWorkNotFound) ||
		errors.Is(causeErr, ErrStartNodeNotFound) ||
		errors.Is(causeErr, ErrFlowRecordNotFound) ||
		errors.Is(causeErr, ErrFlowNodeNotFound) ||
		errors.Is(causeErr, ErrOperatorNotFound) ||
		errors.Is(causeErr, ErrBindDataNotFound) ||
		errors.Is(causeErr, ErrNextNodeNotFound)
}

// IsStateConflictError 状态冲突, 包括并发推进失败
func IsStateConflictError(err error) bool {
	if err == nil {
		return false
	}
	causeErr := errors.Cause(err)
	return errors.Is(causeErr, ErrStateConflict) ||
		errors.Is(causeErr, ErrNodeAlreadyDone) ||
		errors.Is(causeErr, ErrAdvanceConflict)
}

func IsPermissionError(err error) bool {
	return err != nil && errors.Is(errors.Cause(err), ErrPermissionDenied)
}
