package leaveflow

import (
	"fmt"
	"sync"

	"github.com/blingmoon/simple-flow/flow"
	"github.com/pkg/errors"
)

const (
	LeaveDataType = "leave"

	// 请假超过三天需要经理审批
	ConditionLongLeave = "leave.long"
	longLeaveDays      = 3

	NodeStart   = "start"
	NodeDept    = "dept"
	NodeManager = "manager"
	NodeOver    = "over"
)

// Leave 请假单
type Leave struct {
	Applicant string `json:"applicant"`
	Days      int64  `json:"days"`
	Reason    string `json:"reason"`
}

func (l *Leave) BindDataType() string { return LeaveDataType }

var registerConditionOnce sync.Once

// Register 注册请假单的数据类型和连线条件
func Register(registry *flow.BindDataRegistry) error {
	var err error
	registerConditionOnce.Do(func() {
		err = flow.RegisterRelationCondition(ConditionLongLeave, func(ctx *flow.MatcherContext) (bool, error) {
			switch data := ctx.BindData.(type) {
			case *Leave:
				return data.Days > longLeaveDays, nil
			case *flow.FormData:
				days, _ := data.GetInt64("days")
				return days > longLeaveDays, nil
			}
			return false, nil
		})
	})
	if err != nil {
		return errors.WithMessage(err, "register leave condition failed")
	}
	if registry.IsRegistered(LeaveDataType) {
		return nil
	}
	if err := flow.RegisterBindDataType[*Leave](registry, LeaveDataType); err != nil {
		return errors.WithMessage(err, "register leave data type failed")
	}
	return nil
}

// 工作流结构：发起 -> 部门审批 -> 经理审批 -> 发起人确认
const leaveWorkTemplate = `
title: 请假
nodes:
  - code: start
    name: 发起
    approval_type: un_sign
    matcher:
      kind: any
  - code: dept
    name: 部门审批
    approval_type: %s
    matcher:
      kind: specify
      operator_ids: [%s]
  - code: manager
    name: 经理审批
    approval_type: un_sign
    matcher:
      kind: specify
      operator_ids: [%d]
  - code: over
    name: 发起人确认
    approval_type: un_sign
    matcher:
      kind: creator
relations:
  - name: start-dept
    source: start
    target: dept
  - name: dept-manager
    source: dept
    target: manager
  - name: manager-over
    source: manager
    target: over
`

// 部门审批之后, 超过三天的请假才走经理审批
const shortcutLeaveWorkTemplate = `
title: 请假(短假免经理审批)
nodes:
  - code: start
    name: 发起
    approval_type: un_sign
    matcher:
      kind: any
  - code: dept
    name: 部门审批
    approval_type: un_sign
    matcher:
      kind: specify
      operator_ids: [%d]
  - code: manager
    name: 经理审批
    approval_type: un_sign
    matcher:
      kind: specify
      operator_ids: [%d]
  - code: over
    name: 发起人确认
    approval_type: un_sign
    matcher:
      kind: creator
relations:
  - name: start-dept
    source: start
    target: dept
  - name: dept-manager
    source: dept
    target: manager
    condition: leave.long
  - name: dept-over
    source: dept
    target: over
  - name: manager-over
    source: manager
    target: over
  - name: dept-back-start
    source: dept
    target: start
    back: true
  - name: manager-back-dept
    source: manager
    target: dept
    back: true
`

// WorkConfig 请假流程, 部门审批人有多个时按 sign 配置会签
func WorkConfig(sign bool, managerID int64, deptIDs ...int64) (*flow.WorkConfig, error) {
	if len(deptIDs) == 0 {
		return nil, errors.Wrapf(flow.ErrFlowParamInvalid, "dept operator is empty")
	}
	approvalType := flow.ApprovalTypeUnSign
	if sign {
		approvalType = flow.ApprovalTypeSign
	}
	ids := ""
	for i, id := range deptIDs {
		if i > 0 {
			ids += ", "
		}
		ids += fmt.Sprintf("%d", id)
	}
	return flow.ParseWorkConfig([]byte(fmt.Sprintf(leaveWorkTemplate, approvalType, ids, managerID)))
}

// ShortcutWorkConfig 带条件和退回连线的请假流程
func ShortcutWorkConfig(deptID int64, managerID int64) (*flow.WorkConfig, error) {
	return flow.ParseWorkConfig([]byte(fmt.Sprintf(shortcutLeaveWorkTemplate, deptID, managerID)))
}
