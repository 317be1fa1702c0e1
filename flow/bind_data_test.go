package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type expenseData struct {
	Amount int64  `json:"amount"`
	Remark string `json:"remark"`
}

func (e *expenseData) BindDataType() string { return "expense" }

func TestBindDataRegistry(t *testing.T) {
	registry := NewBindDataRegistry()
	assert.True(t, registry.IsRegistered(FormDataType))
	assert.False(t, registry.IsRegistered("expense"))

	_, err := registry.NewSnapshot("p1", 0, &expenseData{Amount: 100})
	assert.True(t, IsValidationError(err))

	require.NoError(t, RegisterBindDataType[*expenseData](registry, "expense"))
	assert.Error(t, RegisterBindDataType[*expenseData](registry, "expense"))

	snapshot, err := registry.NewSnapshot("p1", 3, &expenseData{Amount: 100, Remark: "差旅"})
	require.NoError(t, err)
	assert.Equal(t, "expense", snapshot.DataType)
	assert.Equal(t, int64(3), snapshot.RecordID)

	data, err := registry.Decode(snapshot)
	require.NoError(t, err)
	expense, ok := data.(*expenseData)
	require.True(t, ok)
	assert.Equal(t, int64(100), expense.Amount)
	assert.Equal(t, "差旅", expense.Remark)

	_, err = registry.Decode(&BindDataSnapshot{DataType: "expense", Payload: []byte("{")})
	assert.True(t, IsValidationError(err))
	_, err = registry.Decode(&BindDataSnapshot{DataType: "unknown"})
	assert.True(t, IsValidationError(err))
	_, err = registry.NewSnapshot("p1", 0, nil)
	assert.True(t, IsValidationError(err))
}

func TestFormData(t *testing.T) {
	form := NewFormData([]byte(`{"leave":{"days":3,"reason":"回家"},"urgent":true}`))
	days, ok := form.GetInt64("leave", "days")
	assert.True(t, ok)
	assert.Equal(t, int64(3), days)
	reason, ok := form.GetString("leave", "reason")
	assert.True(t, ok)
	assert.Equal(t, "回家", reason)
	urgent, ok := form.GetBool("urgent")
	assert.True(t, ok)
	assert.True(t, urgent)
	_, ok = form.Get("leave", "days", "more")
	assert.False(t, ok)

	require.NoError(t, form.Set([]string{"approve", "by"}, "李四"))
	by, ok := form.GetString("approve", "by")
	assert.True(t, ok)
	assert.Equal(t, "李四", by)
	assert.Error(t, form.Set(nil, 1))

	// 快照里的表单还原之后内容一致
	registry := NewBindDataRegistry()
	snapshot, err := registry.NewSnapshot("p1", 0, form)
	require.NoError(t, err)
	decoded, err := registry.Decode(snapshot)
	require.NoError(t, err)
	by, ok = decoded.(*FormData).GetString("approve", "by")
	assert.True(t, ok)
	assert.Equal(t, "李四", by)

	var target struct {
		Leave struct {
			Days int `json:"days"`
		} `json:"leave"`
	}
	require.NoError(t, decoded.(*FormData).Unmarshal(&target))
	assert.Equal(t, 3, target.Leave.Days)
}
