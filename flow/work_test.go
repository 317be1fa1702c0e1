package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTestWork(t *testing.T, config *WorkConfig) (*FlowWork, error) {
	t.Helper()
	return BuildFlowWork(config, creatorID)
}

func TestFlowWorkValidate(t *testing.T) {
	nodes := func() []*NodeConfig {
		return []*NodeConfig{
			testNode("start", ApprovalTypeUnSign, AnyOperatorMatcher()),
			testNode("dept", ApprovalTypeSign, SpecifyOperatorMatcher(deptID, deptID2)),
			testNode("over", ApprovalTypeUnSign, CreatorOperatorMatcher()),
		}
	}

	t.Run("合法流程", func(t *testing.T) {
		work, err := buildTestWork(t, &WorkConfig{
			Title:     "请假",
			Nodes:     nodes(),
			Relations: []*RelationConfig{testRelation("start", "dept"), testRelation("dept", "over"), testBackRelation("over", "start")},
		})
		require.NoError(t, err)
		assert.Equal(t, WorkStatusDraft, work.Status)
		start, err := work.GetStartNode()
		require.NoError(t, err)
		assert.Equal(t, "start", start.Code)
		assert.True(t, work.HasBackRelation())
		assert.True(t, work.IsEndNode("over"))
		assert.False(t, work.IsEndNode("dept"))
		assert.Len(t, work.NextRelations("over", true), 1)
	})

	for _, c := range []struct {
		name      string
		nodes     []*NodeConfig
		relations []*RelationConfig
	}{
		{
			name:      "节点编码重复",
			nodes:     append(nodes(), testNode("dept", ApprovalTypeUnSign, AnyOperatorMatcher())),
			relations: []*RelationConfig{testRelation("start", "dept"), testRelation("dept", "over")},
		},
		{
			name:      "连线端点不存在",
			nodes:     nodes(),
			relations: []*RelationConfig{testRelation("start", "dept"), testRelation("dept", "missing")},
		},
		{
			name:      "多个开始节点",
			nodes:     nodes(),
			relations: []*RelationConfig{testRelation("start", "over")},
		},
		{
			name:      "前进路线有环",
			nodes:     nodes(),
			relations: []*RelationConfig{testRelation("start", "dept"), testRelation("dept", "over"), testRelation("over", "dept")},
		},
		{
			name:      "连线条件未注册",
			nodes:     nodes(),
			relations: []*RelationConfig{testRelation("start", "dept"), {Source: "dept", Target: "over", Condition: "not.registered"}},
		},
		{
			name:      "审批方式错误",
			nodes:     append(nodes()[:2], testNode("over", "vote", CreatorOperatorMatcher())),
			relations: []*RelationConfig{testRelation("start", "dept"), testRelation("dept", "over")},
		},
		{
			name:      "指定人为空",
			nodes:     append(nodes()[:2], testNode("over", ApprovalTypeUnSign, SpecifyOperatorMatcher())),
			relations: []*RelationConfig{testRelation("start", "dept"), testRelation("dept", "over")},
		},
	} {
		t.Run(c.name, func(t *testing.T) {
			_, err := buildTestWork(t, &WorkConfig{Title: "非法流程", Nodes: c.nodes, Relations: c.relations})
			assert.True(t, IsValidationError(err), "err: %v", err)
		})
	}

	t.Run("环里所有节点都有入线时找不到开始节点", func(t *testing.T) {
		work := &FlowWork{
			Nodes: []*FlowNode{
				{Code: "a", ApprovalType: ApprovalTypeUnSign, Matcher: anyOperatorMatcher{}},
				{Code: "b", ApprovalType: ApprovalTypeUnSign, Matcher: anyOperatorMatcher{}},
			},
			Relations: []*FlowRelation{{Source: "a", Target: "b"}, {Source: "b", Target: "a"}},
		}
		_, err := work.GetStartNode()
		assert.True(t, IsNotFoundError(err))
		assert.True(t, IsValidationError(work.Validate()))
	})
}

func TestFlowWorkLifecycle(t *testing.T) {
	work, err := buildTestWork(t, &WorkConfig{
		Title: "请假",
		Nodes: []*NodeConfig{
			testNode("start", ApprovalTypeUnSign, AnyOperatorMatcher()),
			testNode("over", ApprovalTypeUnSign, CreatorOperatorMatcher()),
		},
		Relations: []*RelationConfig{testRelation("start", "over")},
	})
	require.NoError(t, err)

	assert.True(t, IsStateConflictError(work.EnableValidate()))
	assert.True(t, IsStateConflictError(work.LockValidate()))

	require.NoError(t, work.Enable())
	assert.NoError(t, work.EnableValidate())
	require.NoError(t, work.LockValidate())
	assert.Equal(t, WorkStatusLocked, work.Status)
	assert.NoError(t, work.EnableValidate())

	// 锁定之后不能修改, 也不能停用
	assert.True(t, IsStateConflictError(work.UpdateDefinition(nil, nil)))
	assert.True(t, IsStateConflictError(work.Disable()))
	assert.NoError(t, work.Enable())
	assert.Equal(t, WorkStatusLocked, work.Status)
}

func TestParseWorkConfig(t *testing.T) {
	yamlConfig := `
title: 报销
nodes:
  - code: start
    name: 发起
    approval_type: un_sign
    matcher:
      kind: any
  - code: finance
    name: 财务
    approval_type: sign
    matcher:
      kind: specify
      operator_ids: [3, 2]
relations:
  - name: start-finance
    source: start
    target: finance
`
	config, err := ParseWorkConfig([]byte(yamlConfig))
	require.NoError(t, err)
	work, err := BuildFlowWork(config, creatorID)
	require.NoError(t, err)
	finance, err := work.GetNodeByCode("finance")
	require.NoError(t, err)
	assert.True(t, finance.IsSign())
	assert.Equal(t, []int64{3, 2}, finance.MatcherConfig.OperatorIDs)

	t.Run("json 也可以解析", func(t *testing.T) {
		jsonConfig := `{"title":"报销","nodes":[{"code":"start","name":"发起","approval_type":"un_sign","matcher":{"kind":"creator"}}]}`
		config, err := ParseWorkConfig([]byte(jsonConfig))
		require.NoError(t, err)
		work, err := BuildFlowWork(config, creatorID)
		require.NoError(t, err)
		assert.True(t, work.IsEndNode("start"))
	})

	t.Run("缺少必填字段", func(t *testing.T) {
		config, err := ParseWorkConfig([]byte(`title: 报销`))
		require.NoError(t, err)
		_, err = BuildFlowWork(config, creatorID)
		assert.True(t, IsValidationError(err))
	})

	t.Run("格式错误", func(t *testing.T) {
		_, err := ParseWorkConfig([]byte("nodes: ["))
		assert.True(t, IsValidationError(err))
	})

	t.Run("持久化之后定义不变", func(t *testing.T) {
		env := newTestEnv(t)
		require.NoError(t, env.repo.SaveFlowWork(env.ctx, work))
		loaded, err := env.repo.GetFlowWorkByID(env.ctx, work.ID)
		require.NoError(t, err)
		assert.Equal(t, work.ToWorkConfig(), loaded.ToWorkConfig())
		assert.Equal(t, WorkStatusDraft, loaded.Status)
	})
}
