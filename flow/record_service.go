package flow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// FlowRecordService 一次提交用到的计算, 每次提交新建一个, 不在请求之间共享
type FlowRecordService struct {
	operatorRepo    FlowOperatorRepository
	processID       string
	createOperator  FlowOperator
	currentOperator FlowOperator
	snapshot        *BindDataSnapshot
	bindData        BindData
	opinion         Opinion
	work            *FlowWork
	flowNextStep    bool // 当前节点汇总之后是否通过
	historyRecords  []*FlowRecord
}

func NewFlowRecordService(
	operatorRepo FlowOperatorRepository,
	processID string,
	createOperator FlowOperator,
	currentOperator FlowOperator,
	snapshot *BindDataSnapshot,
	bindData BindData,
	opinion Opinion,
	work *FlowWork,
	flowNextStep bool,
	historyRecords []*FlowRecord,
) *FlowRecordService {
	return &FlowRecordService{
		operatorRepo:    operatorRepo,
		processID:       processID,
		createOperator:  createOperator,
		currentOperator: currentOperator,
		snapshot:        snapshot,
		bindData:        bindData,
		opinion:         opinion,
		work:            work,
		flowNextStep:    flowNextStep,
		historyRecords:  historyRecords,
	}
}

func (s *FlowRecordService) matcherContext(node *FlowNode) *MatcherContext {
	return &MatcherContext{
		Work:            s.work,
		Node:            node,
		ProcessID:       s.processID,
		CreateOperator:  s.createOperator,
		CurrentOperator: s.currentOperator,
		HistoryRecords:  s.historyRecords,
		BindData:        s.bindData,
	}
}

// CreateRecord 生成节点的待办, 会签节点每个人一条, 非会签节点只给编号最小的人生成一条
// 同一次生成的记录是一个批次, 返回的记录还没有持久化
func (s *FlowRecordService) CreateRecord(ctx context.Context, preID int64, node *FlowNode) ([]*FlowRecord, error) {
	operatorIDs, err := resolveOperators(node.Matcher, s.matcherContext(node))
	if err != nil {
		return nil, errors.WithMessagef(err, "CreateRecord failed, processID: %s, node: %s", s.processID, node.Code)
	}
	if node.IsUnSign() {
		operatorIDs = operatorIDs[:1]
	}
	createOperatorID := int64(0)
	if s.createOperator != nil {
		createOperatorID = s.createOperator.GetOperatorID()
	}
	snapshotID := int64(0)
	if s.snapshot != nil {
		snapshotID = s.snapshot.ID
	}
	batchID := uuid.NewString()
	now := time.Now().Unix()
	records := make([]*FlowRecord, 0, len(operatorIDs))
	for _, operatorID := range operatorIDs {
		// 操作者必须存在
		if _, err := s.operatorRepo.GetFlowOperatorByID(ctx, operatorID); err != nil {
			return nil, errors.WithMessagef(err, "CreateRecord failed, node: %s, operatorID: %d", node.Code, operatorID)
		}
		records = append(records, &FlowRecord{
			ProcessID:         s.processID,
			WorkID:            s.work.ID,
			NodeCode:          node.Code,
			Title:             s.work.Title + "-" + node.Name,
			PreID:             preID,
			BatchID:           batchID,
			CreateOperatorID:  createOperatorID,
			CurrentOperatorID: operatorID,
			Status:            RecordStatusTodo,
			FlowStatus:        FlowStatusRunning,
			SnapshotID:        snapshotID,
			CreatedAt:         now,
		})
	}
	return records, nil
}

// MatcherNextNode 通过时走第一条条件成立的前进连线, 拒绝时走退回连线
func (s *FlowRecordService) MatcherNextNode(currentNode *FlowNode) (*FlowNode, error) {
	relations := s.work.NextRelations(currentNode.Code, !s.flowNextStep)
	for _, relation := range relations {
		if relation.Condition != "" {
			condition, ok := getRelationCondition(relation.Condition)
			if !ok {
				return nil, errors.Wrapf(ErrFlowParamInvalid, "relation condition not registered: %s", relation.Condition)
			}
			matched, err := condition(s.matcherContext(currentNode))
			if err != nil {
				return nil, errors.WithMessagef(err, "relation condition failed, relation: %s", relation.Name)
			}
			if !matched {
				continue
			}
		}
		return s.work.GetNodeByCode(relation.Target)
	}
	return nil, errors.Wrapf(ErrNextNodeNotFound, "node: %s, pass: %v", currentNode.Code, s.flowNextStep)
}

// FanInResult 一个批次的汇总结果
type FanInResult struct {
	AllDone bool
	AllPass bool
}

// FanIn 批次里所有记录都办理完成才算完成, 转办和撤回的记录不参与表决
func FanIn(siblings []*FlowRecord) FanInResult {
	ret := FanInResult{AllDone: true, AllPass: true}
	for _, record := range siblings {
		if !record.IsDone() {
			ret.AllDone = false
		}
		if record.IsVoter() && !record.IsPass() {
			ret.AllPass = false
		}
	}
	return ret
}
