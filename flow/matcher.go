package flow

import (
	"fmt"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// MatcherKind 操作者匹配方式
type MatcherKind = string

const (
	// 任意人, 待办落在流程发起人身上, 被退回时也回到发起人
	MatcherKindAny     MatcherKind = "any"
	MatcherKindSpecify MatcherKind = "specify"
	MatcherKindCreator MatcherKind = "creator"
	// 宿主注册的匹配器, 例如按角色、部门查找
	MatcherKindCustom MatcherKind = "custom"
)

// MatcherConfig 节点上的操作者匹配配置
type MatcherConfig struct {
	Kind        MatcherKind `json:"kind" yaml:"kind" validate:"required,oneof=any specify creator custom"`
	OperatorIDs []int64     `json:"operator_ids,omitempty" yaml:"operator_ids,omitempty" validate:"required_if=Kind specify"`
	Name        string      `json:"name,omitempty" yaml:"name,omitempty" validate:"required_if=Kind custom"`
}

// MatcherContext 匹配操作者时可以使用的上下文
type MatcherContext struct {
	Work            *FlowWork
	Node            *FlowNode
	ProcessID       string
	CreateOperator  FlowOperator
	CurrentOperator FlowOperator
	HistoryRecords  []*FlowRecord
	BindData        BindData
}

// OperatorMatcher 解析可以办理节点的操作者
type OperatorMatcher interface {
	Resolve(ctx *MatcherContext) ([]int64, error)
}

// MatcherFunc 让普通函数也能当作匹配器使用
type MatcherFunc func(ctx *MatcherContext) ([]int64, error)

func (f MatcherFunc) Resolve(ctx *MatcherContext) ([]int64, error) {
	return f(ctx)
}

// OperatorMatcherFactory 自定义匹配器工厂, config 为节点上的完整配置
type OperatorMatcherFactory func(config MatcherConfig) (OperatorMatcher, error)

var customMatchers = sync.Map{}

/*
*
  - @description: 注册自定义操作者匹配器, 节点配置 kind=custom, name=注册名称
  - @param name string
  - @param factory OperatorMatcherFactory
  - @return error
*/
func RegisterOperatorMatcher(name string, factory OperatorMatcherFactory) error {
	if factory == nil {
		return errors.New("factory is nil")
	}
	if _, loaded := customMatchers.LoadOrStore(name, factory); loaded {
		return errors.New(fmt.Sprintf("operator matcher already registered, name: %s", name))
	}
	return nil
}

type anyOperatorMatcher struct{}

func (anyOperatorMatcher) Resolve(ctx *MatcherContext) ([]int64, error) {
	if ctx.CreateOperator != nil {
		return []int64{ctx.CreateOperator.GetOperatorID()}, nil
	}
	if ctx.CurrentOperator != nil {
		return []int64{ctx.CurrentOperator.GetOperatorID()}, nil
	}
	return nil, nil
}

type specifyOperatorMatcher struct {
	operatorIDs []int64
}

func (m specifyOperatorMatcher) Resolve(ctx *MatcherContext) ([]int64, error) {
	return append([]int64(nil), m.operatorIDs...), nil
}

type creatorOperatorMatcher struct{}

func (creatorOperatorMatcher) Resolve(ctx *MatcherContext) ([]int64, error) {
	if ctx.CreateOperator == nil {
		return nil, nil
	}
	return []int64{ctx.CreateOperator.GetOperatorID()}, nil
}

func AnyOperatorMatcher() MatcherConfig {
	return MatcherConfig{Kind: MatcherKindAny}
}

func SpecifyOperatorMatcher(operatorIDs ...int64) MatcherConfig {
	return MatcherConfig{Kind: MatcherKindSpecify, OperatorIDs: operatorIDs}
}

func CreatorOperatorMatcher() MatcherConfig {
	return MatcherConfig{Kind: MatcherKindCreator}
}

func CustomOperatorMatcher(name string) MatcherConfig {
	return MatcherConfig{Kind: MatcherKindCustom, Name: name}
}

// BuildOperatorMatcher 根据配置构建匹配器
func BuildOperatorMatcher(config MatcherConfig) (OperatorMatcher, error) {
	switch config.Kind {
	case MatcherKindAny:
		return anyOperatorMatcher{}, nil
	case MatcherKindSpecify:
		if len(config.OperatorIDs) == 0 {
			return nil, errors.Wrapf(ErrFlowParamInvalid, "specify matcher without operator ids")
		}
		return specifyOperatorMatcher{operatorIDs: config.OperatorIDs}, nil
	case MatcherKindCreator:
		return creatorOperatorMatcher{}, nil
	case MatcherKindCustom:
		i, ok := customMatchers.Load(config.Name)
		if !ok {
			return nil, errors.Wrapf(ErrFlowParamInvalid, "operator matcher not registered, name: %s", config.Name)
		}
		factory, ok := i.(OperatorMatcherFactory)
		if !ok {
			return nil, errors.Wrapf(ErrFlowParamInvalid, "operator matcher type error, name: %s", config.Name)
		}
		matcher, err := factory(config)
		if err != nil {
			return nil, errors.WithMessagef(err, "build operator matcher failed, name: %s", config.Name)
		}
		return matcher, nil
	}
	return nil, errors.Wrapf(ErrFlowParamInvalid, "unknown matcher kind: %s", config.Kind)
}

// resolveOperators 执行匹配器, 结果去重并且升序, 空结果是硬错误
func resolveOperators(matcher OperatorMatcher, ctx *MatcherContext) ([]int64, error) {
	if matcher == nil {
		return nil, errors.Wrapf(ErrNoEligibleOperator, "node %s has no matcher", ctx.Node.Code)
	}
	ids, err := matcher.Resolve(ctx)
	if err != nil {
		return nil, errors.WithMessagef(err, "resolve operators failed, node: %s", ctx.Node.Code)
	}
	ret := make([]int64, 0, len(ids))
	seen := make(map[int64]struct{})
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ret = append(ret, id)
	}
	if len(ret) == 0 {
		return nil, errors.Wrapf(ErrNoEligibleOperator, "node: %s, processID: %s", ctx.Node.Code, ctx.ProcessID)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i] < ret[j] })
	return ret, nil
}
