package flow

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateRecordAndFindByPreID(t *testing.T) {
	env := newTestEnv(t)
	work := env.chainWork(t, ApprovalTypeSign, deptID2, deptID)
	node, err := work.GetNodeByCode("dept")
	require.NoError(t, err)
	creator := NewOperator(creatorID, "张三")
	recordService := NewFlowRecordService(env.repo, "p1", creator, creator, &BindDataSnapshot{ID: 9}, nil, PassOpinion(""), work, true, nil)

	records, err := recordService.CreateRecord(env.ctx, 42, node)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, deptID, records[0].CurrentOperatorID)
	assert.Equal(t, deptID2, records[1].CurrentOperatorID)
	require.NoError(t, env.repo.SaveFlowRecords(env.ctx, records))
	assert.NotZero(t, records[0].ID)

	found, err := env.repo.FindFlowRecordByPreID(env.ctx, "p1", 42)
	require.NoError(t, err)
	require.Len(t, found, 2)
	for i, record := range found {
		assert.Equal(t, records[i].ID, record.ID)
		assert.Equal(t, "dept", record.NodeCode)
		assert.Equal(t, int64(9), record.SnapshotID)
		assert.Equal(t, creatorID, record.CreateOperatorID)
		assert.True(t, record.IsTodo())
		assert.Nil(t, record.Opinion)
	}
	other, err := env.repo.FindFlowRecordByPreID(env.ctx, "p2", 42)
	require.NoError(t, err)
	assert.Empty(t, other)

	t.Run("每次生成一个新批次", func(t *testing.T) {
		assert.NotEmpty(t, records[0].BatchID)
		assert.Equal(t, records[0].BatchID, records[1].BatchID)

		again, err := recordService.CreateRecord(env.ctx, 42, node)
		require.NoError(t, err)
		require.NoError(t, env.repo.SaveFlowRecords(env.ctx, again))
		assert.NotEqual(t, records[0].BatchID, again[0].BatchID)

		found, err := env.repo.FindFlowRecordByPreID(env.ctx, "p1", 42)
		require.NoError(t, err)
		assert.Len(t, found, 4)
		batch, err := env.repo.FindFlowRecordByBatchID(env.ctx, "p1", records[0].BatchID)
		require.NoError(t, err)
		require.Len(t, batch, 2)
		assert.Equal(t, records[0].ID, batch[0].ID)
		assert.Equal(t, records[1].ID, batch[1].ID)
		assert.Equal(t, records[0].BatchID, batch[1].BatchID)
	})

	t.Run("操作者不存在", func(t *testing.T) {
		missing := &FlowNode{Code: "x", Name: "x", ApprovalType: ApprovalTypeUnSign, Matcher: specifyOperatorMatcher{operatorIDs: []int64{99}}}
		_, err := recordService.CreateRecord(env.ctx, 0, missing)
		assert.True(t, errors.Is(err, ErrOperatorNotFound))
	})
}

func TestMatcherNextNode(t *testing.T) {
	env := newTestEnv(t)
	work := env.chainWork(t, ApprovalTypeUnSign, deptID)
	dept, err := work.GetNodeByCode("dept")
	require.NoError(t, err)

	pass := NewFlowRecordService(env.repo, "p1", nil, nil, nil, nil, PassOpinion(""), work, true, nil)
	next, err := pass.MatcherNextNode(dept)
	require.NoError(t, err)
	assert.Equal(t, "over", next.Code)

	over, err := work.GetNodeByCode("over")
	require.NoError(t, err)
	_, err = pass.MatcherNextNode(over)
	assert.True(t, errors.Is(err, ErrNextNodeNotFound))

	reject := NewFlowRecordService(env.repo, "p1", nil, nil, nil, nil, RejectOpinion(""), work, false, nil)
	_, err = reject.MatcherNextNode(dept)
	assert.True(t, errors.Is(err, ErrNextNodeNotFound))
}

func TestGormFlowRepo(t *testing.T) {
	env := newTestEnv(t)
	ctx := env.ctx

	t.Run("只能更新待办记录", func(t *testing.T) {
		record := newTodoRecord(deptID)
		record.ID = 0
		require.NoError(t, env.repo.SaveFlowRecords(ctx, []*FlowRecord{record}))
		require.NoError(t, record.Done(NewOperator(deptID, "李四"), nil, PassOpinion("同意")))
		require.NoError(t, env.repo.UpdateFlowRecord(ctx, record))
		err := env.repo.UpdateFlowRecord(ctx, record)
		assert.True(t, errors.Is(err, ErrStateConflict))

		loaded, err := env.repo.GetFlowRecordByID(ctx, record.ID)
		require.NoError(t, err)
		assert.Equal(t, RecordStatusDonePass, loaded.Status)
		assert.Equal(t, "同意", loaded.Opinion.Advice())
		assert.True(t, loaded.Opinion.IsSuccess())
	})

	t.Run("快照版本递增", func(t *testing.T) {
		for i := 1; i <= 3; i++ {
			snapshot := &BindDataSnapshot{ProcessID: "p-version", DataType: FormDataType, Payload: []byte("{}")}
			require.NoError(t, env.repo.SaveBindData(ctx, snapshot))
			assert.Equal(t, int64(i), snapshot.Version)
		}
		other := &BindDataSnapshot{ProcessID: "p-other", DataType: FormDataType, Payload: []byte("{}")}
		require.NoError(t, env.repo.SaveBindData(ctx, other))
		assert.Equal(t, int64(1), other.Version)

		loaded, err := env.repo.GetBindDataByID(ctx, other.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(0), loaded.RecordID)
		assert.Equal(t, "p-other", loaded.ProcessID)

		_, err = env.repo.GetBindDataByID(ctx, 999)
		assert.True(t, IsNotFoundError(err))
	})

	t.Run("结束流程标记所有记录", func(t *testing.T) {
		records := []*FlowRecord{newTodoRecord(deptID), newTodoRecord(deptID2)}
		for _, record := range records {
			record.ID = 0
			record.ProcessID = "p-finish"
		}
		require.NoError(t, env.repo.SaveFlowRecords(ctx, records))
		require.NoError(t, env.repo.FinishProcess(ctx, "p-finish"))
		found, err := env.repo.FindByProcessID(ctx, "p-finish")
		require.NoError(t, err)
		require.Len(t, found, 2)
		for _, record := range found {
			assert.True(t, record.IsFinish())
		}
		all, err := env.repo.FindAll(ctx)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(all), 3)
	})

	t.Run("事务回滚", func(t *testing.T) {
		record := newTodoRecord(managerID)
		record.ID = 0
		record.ProcessID = "p-rollback"
		bizErr := errors.New("biz error")
		err := env.repo.Transaction(ctx, func(ctx context.Context) error {
			// 嵌套事务复用外层事务
			return env.repo.Transaction(ctx, func(ctx context.Context) error {
				if err := env.repo.SaveFlowRecords(ctx, []*FlowRecord{record}); err != nil {
					return err
				}
				return bizErr
			})
		})
		assert.Equal(t, bizErr, err)
		found, err := env.repo.FindByProcessID(ctx, "p-rollback")
		require.NoError(t, err)
		assert.Empty(t, found)
	})

	t.Run("不存在的数据", func(t *testing.T) {
		_, err := env.repo.GetFlowRecordByID(ctx, 999)
		assert.True(t, IsNotFoundError(err))
		_, err = env.repo.GetFlowWorkByID(ctx, 999)
		assert.True(t, IsNotFoundError(err))
		_, err = env.repo.GetFlowOperatorByID(ctx, 999)
		assert.True(t, IsNotFoundError(err))
		operator, err := env.repo.GetFlowOperatorByID(ctx, deptID)
		require.NoError(t, err)
		assert.Equal(t, "李四", operator.GetOperatorName())
	})
}
