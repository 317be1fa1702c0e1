package flow

import (
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// WorkConfig 流程定义配置, yaml 和 json 都可以
type WorkConfig struct {
	Title     string            `json:"title" yaml:"title" validate:"required"`
	Nodes     []*NodeConfig     `json:"nodes" yaml:"nodes" validate:"required,min=1,dive"`
	Relations []*RelationConfig `json:"relations" yaml:"relations" validate:"dive"`
}

// NodeConfig 节点配置
type NodeConfig struct {
	Code         string        `json:"code" yaml:"code" validate:"required"`
	Name         string        `json:"name" yaml:"name" validate:"required"`
	FormCode     string        `json:"form_code" yaml:"form_code"`
	ApprovalType ApprovalType  `json:"approval_type" yaml:"approval_type" validate:"required,oneof=sign un_sign"`
	Matcher      MatcherConfig `json:"matcher" yaml:"matcher"`
}

// RelationConfig 连线配置
type RelationConfig struct {
	Name      string `json:"name" yaml:"name"`
	Source    string `json:"source" yaml:"source" validate:"required"`
	Target    string `json:"target" yaml:"target" validate:"required"`
	Back      bool   `json:"back,omitempty" yaml:"back,omitempty"`
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// ParseWorkConfig 解析流程定义, json 是 yaml 的子集所以一起处理
func ParseWorkConfig(data []byte) (*WorkConfig, error) {
	config := &WorkConfig{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, errors.Wrapf(ErrFlowParamInvalid, "unmarshal work config failed, err: %v", err)
	}
	return config, nil
}

// BuildFlowWork 根据配置构建流程定义, 新建的流程是草稿状态
func BuildFlowWork(config *WorkConfig, creatorID int64) (*FlowWork, error) {
	if config == nil {
		return nil, errors.Wrapf(ErrFlowParamInvalid, "work config is nil")
	}
	if err := validatorUtil.Struct(config); err != nil {
		return nil, errors.Wrapf(ErrFlowParamInvalid, "BuildFlowWork failed, title: %s, err: %v", config.Title, err)
	}
	work := &FlowWork{
		Title:     config.Title,
		CreatorID: creatorID,
		Status:    WorkStatusDraft,
	}
	nodes, relations, err := config.build()
	if err != nil {
		return nil, errors.WithMessagef(err, "BuildFlowWork failed, title: %s", config.Title)
	}
	work.Nodes = nodes
	work.Relations = relations
	if err := work.Validate(); err != nil {
		return nil, errors.WithMessagef(err, "BuildFlowWork failed, title: %s", config.Title)
	}
	return work, nil
}

func (c *WorkConfig) build() ([]*FlowNode, []*FlowRelation, error) {
	nodes := make([]*FlowNode, 0, len(c.Nodes))
	for _, nodeConfig := range c.Nodes {
		matcher, err := BuildOperatorMatcher(nodeConfig.Matcher)
		if err != nil {
			return nil, nil, errors.WithMessagef(err, "node: %s", nodeConfig.Code)
		}
		nodes = append(nodes, &FlowNode{
			Code:          nodeConfig.Code,
			Name:          nodeConfig.Name,
			FormCode:      nodeConfig.FormCode,
			ApprovalType:  nodeConfig.ApprovalType,
			MatcherConfig: nodeConfig.Matcher,
			Matcher:       matcher,
		})
	}
	relations := make([]*FlowRelation, 0, len(c.Relations))
	for _, relationConfig := range c.Relations {
		relations = append(relations, &FlowRelation{
			Name:      relationConfig.Name,
			Source:    relationConfig.Source,
			Target:    relationConfig.Target,
			Back:      relationConfig.Back,
			Condition: relationConfig.Condition,
		})
	}
	return nodes, relations, nil
}

// ToWorkConfig 流程定义转回配置, 持久化时使用
func (w *FlowWork) ToWorkConfig() *WorkConfig {
	config := &WorkConfig{
		Title:     w.Title,
		Nodes:     make([]*NodeConfig, 0, len(w.Nodes)),
		Relations: make([]*RelationConfig, 0, len(w.Relations)),
	}
	for _, node := range w.Nodes {
		config.Nodes = append(config.Nodes, &NodeConfig{
			Code:         node.Code,
			Name:         node.Name,
			FormCode:     node.FormCode,
			ApprovalType: node.ApprovalType,
			Matcher:      node.MatcherConfig,
		})
	}
	for _, relation := range w.Relations {
		config.Relations = append(config.Relations, &RelationConfig{
			Name:      relation.Name,
			Source:    relation.Source,
			Target:    relation.Target,
			Back:      relation.Back,
			Condition: relation.Condition,
		})
	}
	return config
}
