package flow

// FlowOperator 流程操作者, 由宿主系统提供
type FlowOperator interface {
	GetOperatorID() int64
	GetOperatorName() string
}

// OperatorEntity 默认的操作者实现, gorm 仓库读出来的就是它
type OperatorEntity struct {
	ID   int64
	Name string
}

func (o *OperatorEntity) GetOperatorID() int64    { return o.ID }
func (o *OperatorEntity) GetOperatorName() string { return o.Name }

func NewOperator(id int64, name string) *OperatorEntity {
	return &OperatorEntity{ID: id, Name: name}
}
