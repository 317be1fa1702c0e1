package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTodoRecord(operatorID int64) *FlowRecord {
	return &FlowRecord{
		ID:                10,
		ProcessID:         "p1",
		NodeCode:          "dept",
		PreID:             5,
		BatchID:           "b1",
		CreateOperatorID:  creatorID,
		CurrentOperatorID: operatorID,
		Status:            RecordStatusTodo,
		FlowStatus:        FlowStatusRunning,
	}
}

func TestFlowRecordDone(t *testing.T) {
	snapshot := &BindDataSnapshot{ID: 7}

	t.Run("办理人通过", func(t *testing.T) {
		record := newTodoRecord(deptID)
		require.NoError(t, record.Done(NewOperator(deptID, "李四"), snapshot, PassOpinion("同意")))
		assert.Equal(t, RecordStatusDonePass, record.Status)
		assert.True(t, record.IsPass())
		assert.Equal(t, int64(7), record.SnapshotID)
		assert.NotZero(t, record.FinishedAt)
		assert.Equal(t, "同意", record.Opinion.Advice())

		assert.True(t, IsStateConflictError(record.Done(NewOperator(deptID, "李四"), snapshot, PassOpinion(""))))
	})

	t.Run("办理人拒绝", func(t *testing.T) {
		record := newTodoRecord(deptID)
		require.NoError(t, record.Done(NewOperator(deptID, "李四"), snapshot, RejectOpinion("")))
		assert.Equal(t, RecordStatusDoneReject, record.Status)
		assert.False(t, record.IsPass())
		assert.True(t, record.IsDone())
	})

	t.Run("不是办理人", func(t *testing.T) {
		record := newTodoRecord(deptID)
		assert.True(t, IsPermissionError(record.Done(NewOperator(deptID2, "王五"), snapshot, PassOpinion(""))))
		assert.True(t, record.IsTodo())
	})

	t.Run("自动办理跟随意见", func(t *testing.T) {
		record := newTodoRecord(deptID2)
		require.NoError(t, record.AutoDone(NewOperator(deptID, "李四"), snapshot, RejectOpinion("不同意")))
		assert.Equal(t, RecordStatusAutoDone, record.Status)
		assert.False(t, record.IsPass())
		assert.Equal(t, deptID2, record.CurrentOperatorID)
	})
}

func TestFlowRecordTransferAndRecall(t *testing.T) {
	t.Run("转办", func(t *testing.T) {
		record := newTodoRecord(deptID)
		newRecord, err := record.Transfer(NewOperator(deptID, "李四"), NewOperator(deptID2, "王五"), &BindDataSnapshot{ID: 3}, "出差")
		require.NoError(t, err)
		assert.True(t, record.IsTransfer())
		assert.False(t, record.IsVoter())
		assert.Equal(t, record.PreID, newRecord.PreID)
		assert.Equal(t, record.NodeCode, newRecord.NodeCode)
		assert.Equal(t, record.BatchID, newRecord.BatchID)
		assert.Equal(t, deptID2, newRecord.CurrentOperatorID)
		assert.True(t, newRecord.IsTodo())

		_, err = newTodoRecord(deptID).Transfer(NewOperator(deptID, "李四"), NewOperator(deptID, "李四"), nil, "")
		assert.True(t, IsValidationError(err))
		_, err = newTodoRecord(deptID).Transfer(NewOperator(managerID, "赵六"), NewOperator(deptID2, "王五"), nil, "")
		assert.True(t, IsPermissionError(err))
	})

	t.Run("撤回", func(t *testing.T) {
		record := newTodoRecord(deptID)
		assert.True(t, IsPermissionError(record.Recall(NewOperator(deptID, "李四"))))
		require.NoError(t, record.Recall(NewOperator(creatorID, "张三")))
		assert.Equal(t, RecordStatusRecall, record.Status)
		assert.True(t, record.IsDone())
		assert.False(t, record.IsVoter())
	})
}

func TestFanIn(t *testing.T) {
	done := func(status RecordStatus, opinion Opinion) *FlowRecord {
		return &FlowRecord{Status: status, Opinion: &opinion}
	}
	todo := &FlowRecord{Status: RecordStatusTodo}

	assert.Equal(t, FanInResult{AllDone: false, AllPass: false}, FanIn([]*FlowRecord{done(RecordStatusDonePass, PassOpinion("")), todo}))
	assert.Equal(t, FanInResult{AllDone: true, AllPass: true}, FanIn([]*FlowRecord{
		done(RecordStatusDonePass, PassOpinion("")),
		done(RecordStatusAutoDone, PassOpinion("")),
		// 转办的记录不参与表决
		done(RecordStatusTransfer, PassOpinion("")),
	}))
	assert.Equal(t, FanInResult{AllDone: true, AllPass: false}, FanIn([]*FlowRecord{
		done(RecordStatusDonePass, PassOpinion("")),
		done(RecordStatusDoneReject, RejectOpinion("")),
	}))
}

func TestRecordStatusText(t *testing.T) {
	assert.Equal(t, "待办", GetRecordStatusText(RecordStatusTodo))
	assert.Equal(t, "已转办", GetRecordStatusText(RecordStatusTransfer))
	assert.Equal(t, "未知", GetRecordStatusText("other"))
	assert.False(t, IsOverRecordStatus(RecordStatusTodo))
	assert.True(t, IsOverRecordStatus(RecordStatusAutoDone))
}
