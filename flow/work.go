package flow

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// FlowNode 流程节点定义
type FlowNode struct {
	Code          string
	Name          string
	FormCode      string
	ApprovalType  ApprovalType
	MatcherConfig MatcherConfig
	Matcher       OperatorMatcher
}

func (n *FlowNode) IsSign() bool {
	return n.ApprovalType == ApprovalTypeSign
}

func (n *FlowNode) IsUnSign() bool {
	return n.ApprovalType != ApprovalTypeSign
}

// FlowRelation 节点之间的连线, Back 为 true 表示拒绝时的退回路线
type FlowRelation struct {
	Name      string
	Source    string
	Target    string
	Back      bool
	Condition string // 已注册的条件名称, 为空表示无条件
}

// RelationCondition 连线条件, 返回 true 表示可以走这条线
type RelationCondition func(ctx *MatcherContext) (bool, error)

var relationConditions = sync.Map{}

func RegisterRelationCondition(name string, condition RelationCondition) error {
	if condition == nil {
		return errors.New("condition is nil")
	}
	if _, loaded := relationConditions.LoadOrStore(name, condition); loaded {
		return errors.New(fmt.Sprintf("relation condition already registered, name: %s", name))
	}
	return nil
}

func getRelationCondition(name string) (RelationCondition, bool) {
	i, ok := relationConditions.Load(name)
	if !ok {
		return nil, false
	}
	condition, ok := i.(RelationCondition)
	return condition, ok
}

// FlowWork 流程定义entity
type FlowWork struct {
	ID        int64
	Title     string
	CreatorID int64
	Status    WorkStatus
	Nodes     []*FlowNode
	Relations []*FlowRelation
	CreatedAt int64
	UpdatedAt int64
}

func (w *FlowWork) Enable() error {
	if w.Status == WorkStatusLocked {
		return nil
	}
	if err := w.Validate(); err != nil {
		return errors.WithMessagef(err, "enable flow work failed, workID: %d", w.ID)
	}
	w.Status = WorkStatusEnabled
	return nil
}

func (w *FlowWork) Disable() error {
	if w.Status == WorkStatusLocked {
		return errors.Wrapf(ErrStateConflict, "flow work is locked, workID: %d", w.ID)
	}
	w.Status = WorkStatusDraft
	return nil
}

// UpdateDefinition 替换节点和连线, 锁定之后不允许修改
func (w *FlowWork) UpdateDefinition(nodes []*FlowNode, relations []*FlowRelation) error {
	if w.Status == WorkStatusLocked {
		return errors.Wrapf(ErrStateConflict, "flow work is locked, workID: %d", w.ID)
	}
	w.Nodes = nodes
	w.Relations = relations
	return nil
}

// EnableValidate 已启用或者已锁定的流程才可以发起和提交
func (w *FlowWork) EnableValidate() error {
	if w.Status != WorkStatusEnabled && w.Status != WorkStatusLocked {
		return errors.Wrapf(ErrStateConflict, "flow work is not enabled, workID: %d, status: %s", w.ID, w.Status)
	}
	return nil
}

func (w *FlowWork) LockValidate() error {
	switch w.Status {
	case WorkStatusLocked:
		return nil
	case WorkStatusEnabled:
		w.Status = WorkStatusLocked
		return nil
	}
	return errors.Wrapf(ErrStateConflict, "flow work can not be locked, workID: %d, status: %s", w.ID, w.Status)
}

func (w *FlowWork) GenerateProcessID() string {
	return uuid.NewString()
}

func (w *FlowWork) GetNodeByCode(code string) (*FlowNode, error) {
	for _, node := range w.Nodes {
		if node.Code == code {
			return node, nil
		}
	}
	return nil, errors.Wrapf(ErrFlowNodeNotFound, "workID: %d, code: %s", w.ID, code)
}

// GetStartNode 没有任何前进连线指向的节点就是开始节点
func (w *FlowWork) GetStartNode() (*FlowNode, error) {
	incoming := make(map[string]struct{})
	for _, relation := range w.Relations {
		if !relation.Back {
			incoming[relation.Target] = struct{}{}
		}
	}
	for _, node := range w.Nodes {
		if _, ok := incoming[node.Code]; !ok {
			return node, nil
		}
	}
	return nil, errors.Wrapf(ErrStartNodeNotFound, "workID: %d", w.ID)
}

func (w *FlowWork) HasBackRelation() bool {
	for _, relation := range w.Relations {
		if relation.Back {
			return true
		}
	}
	return false
}

// NextRelations 节点出去的连线, back 决定是前进还是退回, 保持声明顺序
func (w *FlowWork) NextRelations(code string, back bool) []*FlowRelation {
	ret := make([]*FlowRelation, 0)
	for _, relation := range w.Relations {
		if relation.Source == code && relation.Back == back {
			ret = append(ret, relation)
		}
	}
	return ret
}

func (w *FlowWork) IsEndNode(code string) bool {
	return len(w.NextRelations(code, false)) == 0
}

// Validate 检查流程图: 编码唯一, 连线端点存在, 唯一开始节点, 全部可达, 前进路线无环
func (w *FlowWork) Validate() error {
	if len(w.Nodes) == 0 {
		return errors.Wrapf(ErrFlowParamInvalid, "flow work has no node, workID: %d", w.ID)
	}
	nodeMap := make(map[string]*FlowNode)
	for _, node := range w.Nodes {
		if node.Code == "" {
			return errors.Wrapf(ErrFlowParamInvalid, "node code is empty, workID: %d", w.ID)
		}
		if _, ok := nodeMap[node.Code]; ok {
			return errors.Wrapf(ErrFlowParamInvalid, "duplicate node code: %s", node.Code)
		}
		if node.ApprovalType != ApprovalTypeSign && node.ApprovalType != ApprovalTypeUnSign {
			return errors.Wrapf(ErrFlowParamInvalid, "node %s has unknown approval type: %s", node.Code, node.ApprovalType)
		}
		if node.Matcher == nil {
			return errors.Wrapf(ErrFlowParamInvalid, "node %s has no operator matcher", node.Code)
		}
		nodeMap[node.Code] = node
	}
	incomingCount := make(map[string]int)
	for _, relation := range w.Relations {
		if _, ok := nodeMap[relation.Source]; !ok {
			return errors.Wrapf(ErrFlowParamInvalid, "relation %s source not found: %s", relation.Name, relation.Source)
		}
		if _, ok := nodeMap[relation.Target]; !ok {
			return errors.Wrapf(ErrFlowParamInvalid, "relation %s target not found: %s", relation.Name, relation.Target)
		}
		if relation.Condition != "" {
			if _, ok := getRelationCondition(relation.Condition); !ok {
				return errors.Wrapf(ErrFlowParamInvalid, "relation %s condition not registered: %s", relation.Name, relation.Condition)
			}
		}
		if !relation.Back {
			incomingCount[relation.Target]++
		}
	}
	starts := make([]string, 0)
	for _, node := range w.Nodes {
		if incomingCount[node.Code] == 0 {
			starts = append(starts, node.Code)
		}
	}
	if len(starts) != 1 {
		return errors.Wrapf(ErrFlowParamInvalid, "flow work must have exactly one start node, got: %v", starts)
	}
	visited := make(map[string]bool)
	if err := w.visitNode(starts[0], visited, make(map[string]bool)); err != nil {
		return err
	}
	for _, node := range w.Nodes {
		if !visited[node.Code] {
			return errors.Wrapf(ErrFlowParamInvalid, "node %s is unreachable from start node %s", node.Code, starts[0])
		}
	}
	return nil
}

// visitNode 深度优先遍历前进路线, path 记录当前路径用来发现环
func (w *FlowWork) visitNode(code string, visited map[string]bool, path map[string]bool) error {
	if path[code] {
		return errors.Wrapf(ErrFlowParamInvalid, "node %s is already visited, there is a cycle in the flow", code)
	}
	visited[code] = true
	path[code] = true
	for _, relation := range w.NextRelations(code, false) {
		if err := w.visitNode(relation.Target, visited, path); err != nil {
			return errors.WithMessagef(err, "visit node failed, node: %s, next: %s", code, relation.Target)
		}
	}
	path[code] = false
	return nil
}
