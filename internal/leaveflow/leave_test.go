package leaveflow

import (
	"testing"

	"github.com/blingmoon/simple-flow/flow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkConfig(t *testing.T) {
	require.NoError(t, Register(flow.NewBindDataRegistry()))

	config, err := WorkConfig(true, 4, 3, 2)
	require.NoError(t, err)
	work, err := flow.BuildFlowWork(config, 1)
	require.NoError(t, err)
	dept, err := work.GetNodeByCode(NodeDept)
	require.NoError(t, err)
	assert.True(t, dept.IsSign())
	assert.Equal(t, []int64{3, 2}, dept.MatcherConfig.OperatorIDs)
	assert.True(t, work.IsEndNode(NodeOver))
	assert.False(t, work.HasBackRelation())

	shortcut, err := ShortcutWorkConfig(2, 4)
	require.NoError(t, err)
	work, err = flow.BuildFlowWork(shortcut, 1)
	require.NoError(t, err)
	assert.True(t, work.HasBackRelation())
	assert.Len(t, work.NextRelations(NodeDept, false), 2)

	_, err = WorkConfig(false, 4)
	assert.True(t, flow.IsValidationError(err))
}

func TestRegister(t *testing.T) {
	registry := flow.NewBindDataRegistry()
	require.NoError(t, Register(registry))
	// 重复注册不报错
	require.NoError(t, Register(registry))
	assert.True(t, registry.IsRegistered(LeaveDataType))

	snapshot, err := registry.NewSnapshot("p1", 0, &Leave{Applicant: "申请人", Days: 4})
	require.NoError(t, err)
	data, err := registry.Decode(snapshot)
	require.NoError(t, err)
	assert.Equal(t, int64(4), data.(*Leave).Days)
}
