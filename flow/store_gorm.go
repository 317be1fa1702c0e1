package flow

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type FlowWorkPo struct {
	ID         int64      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Title      string     `gorm:"column:title" json:"title"`
	CreatorID  int64      `gorm:"column:creator_id" json:"creator_id"`
	Status     WorkStatus `gorm:"column:status" json:"status"`
	Definition []byte     `gorm:"column:definition" json:"definition"` // WorkConfig 的 json
	CreatedAt  int64      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt  int64      `gorm:"column:updated_at" json:"updated_at"`
}

func (FlowWorkPo) TableName() string {
	return "flow_work"
}

type FlowRecordPo struct {
	ID                int64        `gorm:"column:id;primaryKey;autoIncrement"`
	ProcessID         string       `gorm:"column:process_id;index:idx_process_pre"`
	WorkID            int64        `gorm:"column:work_id"`
	NodeCode          string       `gorm:"column:node_code"`
	Title             string       `gorm:"column:title"`
	PreID             int64        `gorm:"column:pre_id;index:idx_process_pre"`
	BatchID           string       `gorm:"column:batch_id;index"`
	CreateOperatorID  int64        `gorm:"column:create_operator_id"`
	CurrentOperatorID int64        `gorm:"column:current_operator_id;index"`
	Status            RecordStatus `gorm:"column:status"`
	FlowStatus        FlowStatus   `gorm:"column:flow_status"`
	SnapshotID        int64        `gorm:"column:snapshot_id"`
	OpinionKind       string       `gorm:"column:opinion_kind"`
	OpinionAdvice     string       `gorm:"column:opinion_advice"`
	TransferToID      int64        `gorm:"column:transfer_to_id"`
	CreatedAt         int64        `gorm:"column:created_at"`
	UpdatedAt         int64        `gorm:"column:updated_at"`
	FinishedAt        int64        `gorm:"column:finished_at"`
}

func (FlowRecordPo) TableName() string {
	return "flow_record"
}

type FlowBindDataPo struct {
	ID        int64  `gorm:"column:id;primaryKey;autoIncrement"`
	ProcessID string `gorm:"column:process_id;index"`
	RecordID  int64  `gorm:"column:record_id"`
	Version   int64  `gorm:"column:version"`
	DataType  string `gorm:"column:data_type"`
	Payload   []byte `gorm:"column:payload"`
	CreatedAt int64  `gorm:"column:created_at"`
}

func (FlowBindDataPo) TableName() string {
	return "flow_bind_data"
}

type FlowOperatorPo struct {
	ID        int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Name      string `gorm:"column:name"`
	CreatedAt int64  `gorm:"column:created_at"`
}

func (FlowOperatorPo) TableName() string {
	return "flow_operator"
}

// MigrateTables 建表, 测试和命令行工具使用
func MigrateTables(db *gorm.DB) error {
	return db.AutoMigrate(&FlowWorkPo{}, &FlowRecordPo{}, &FlowBindDataPo{}, &FlowOperatorPo{})
}

// GormFlowRepo 基于 gorm 的仓库, 同时实现流程、记录、快照、操作者四个仓库
type GormFlowRepo struct {
	db *gorm.DB
}

func NewFlowRepo(db *gorm.DB) *GormFlowRepo {
	return &GormFlowRepo{db: db}
}

func (r *GormFlowRepo) GetFlowWorkByID(ctx context.Context, id int64) (*FlowWork, error) {
	po := &FlowWorkPo{}
	err := r.GetDBWithContext(ctx).Where("id = ?", id).Take(po).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.WithMessagef(ErrFlowWorkNotFound, "workID: %d", id)
	}
	if err != nil {
		return nil, errors.WithMessagef(err, "GetFlowWorkByID failed, workID: %d", id)
	}
	return po.toEntity()
}

func (po *FlowWorkPo) toEntity() (*FlowWork, error) {
	config := &WorkConfig{}
	if err := json.Unmarshal(po.Definition, config); err != nil {
		return nil, errors.WithMessagef(err, "unmarshal work definition failed, workID: %d", po.ID)
	}
	nodes, relations, err := config.build()
	if err != nil {
		return nil, errors.WithMessagef(err, "build work definition failed, workID: %d", po.ID)
	}
	return &FlowWork{
		ID:        po.ID,
		Title:     po.Title,
		CreatorID: po.CreatorID,
		Status:    po.Status,
		Nodes:     nodes,
		Relations: relations,
		CreatedAt: po.CreatedAt,
		UpdatedAt: po.UpdatedAt,
	}, nil
}

func (r *GormFlowRepo) SaveFlowWork(ctx context.Context, work *FlowWork) error {
	if work == nil {
		return errors.New("nil FlowWork")
	}
	definition, err := json.Marshal(work.ToWorkConfig())
	if err != nil {
		return errors.WithMessage(err, "marshal work definition failed")
	}
	now := time.Now().Unix()
	if work.CreatedAt == 0 {
		work.CreatedAt = now
	}
	work.UpdatedAt = now
	po := &FlowWorkPo{
		ID:         work.ID,
		Title:      work.Title,
		CreatorID:  work.CreatorID,
		Status:     work.Status,
		Definition: definition,
		CreatedAt:  work.CreatedAt,
		UpdatedAt:  work.UpdatedAt,
	}
	if err := r.GetDBWithContext(ctx).Save(po).Error; err != nil {
		return errors.WithMessagef(err, "SaveFlowWork failed, title: %s", work.Title)
	}
	work.ID = po.ID
	return nil
}

func (r *GormFlowRepo) GetFlowRecordByID(ctx context.Context, id int64) (*FlowRecord, error) {
	po := &FlowRecordPo{}
	err := r.GetDBWithContext(ctx).Where("id = ?", id).Take(po).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.WithMessagef(ErrFlowRecordNotFound, "recordID: %d", id)
	}
	if err != nil {
		return nil, errors.WithMessagef(err, "GetFlowRecordByID failed, recordID: %d", id)
	}
	return po.toEntity(), nil
}

func (r *GormFlowRepo) SaveFlowRecords(ctx context.Context, records []*FlowRecord) error {
	if len(records) == 0 {
		return nil
	}
	pos := make([]*FlowRecordPo, 0, len(records))
	for _, record := range records {
		pos = append(pos, newFlowRecordPo(record))
	}
	if err := r.GetDBWithContext(ctx).Create(&pos).Error; err != nil {
		return errors.WithMessage(err, "SaveFlowRecords failed")
	}
	for i, po := range pos {
		records[i].ID = po.ID
	}
	return nil
}

func (r *GormFlowRepo) UpdateFlowRecord(ctx context.Context, record *FlowRecord) error {
	if record == nil {
		return errors.New("nil FlowRecord")
	}
	updateFields := map[string]any{
		"status":              record.Status,
		"current_operator_id": record.CurrentOperatorID,
		"snapshot_id":         record.SnapshotID,
		"transfer_to_id":      record.TransferToID,
		"finished_at":         record.FinishedAt,
		"updated_at":          time.Now().Unix(),
	}
	if record.Opinion != nil {
		updateFields["opinion_kind"] = record.Opinion.Kind()
		updateFields["opinion_advice"] = record.Opinion.Advice()
	}
	// 只有待办可以流转, 用状态做CAS
	result := r.GetDBWithContext(ctx).Model(&FlowRecordPo{}).
		Where("id = ? AND status = ?", record.ID, RecordStatusTodo).
		Updates(updateFields)
	if result.Error != nil {
		return errors.WithMessagef(result.Error, "UpdateFlowRecord failed, recordID: %d", record.ID)
	}
	if result.RowsAffected == 0 {
		return errors.Wrapf(ErrStateConflict, "flow record is not todo anymore, recordID: %d", record.ID)
	}
	return nil
}

func (r *GormFlowRepo) findFlowRecords(ctx context.Context, query string, args ...any) ([]*FlowRecord, error) {
	pos := make([]*FlowRecordPo, 0)
	db := r.GetDBWithContext(ctx).Model(&FlowRecordPo{})
	if query != "" {
		db = db.Where(query, args...)
	}
	if err := db.Order("id asc").Find(&pos).Error; err != nil {
		return nil, errors.WithMessagef(err, "query flow record failed, query: %s", query)
	}
	ret := make([]*FlowRecord, 0, len(pos))
	for _, po := range pos {
		ret = append(ret, po.toEntity())
	}
	return ret, nil
}

func (r *GormFlowRepo) FindFlowRecordByPreID(ctx context.Context, processID string, preID int64) ([]*FlowRecord, error) {
	return r.findFlowRecords(ctx, "process_id = ? AND pre_id = ?", processID, preID)
}

func (r *GormFlowRepo) FindFlowRecordByBatchID(ctx context.Context, processID string, batchID string) ([]*FlowRecord, error) {
	return r.findFlowRecords(ctx, "process_id = ? AND batch_id = ?", processID, batchID)
}

func (r *GormFlowRepo) FindTodoByOperatorID(ctx context.Context, operatorID int64) ([]*FlowRecord, error) {
	return r.findFlowRecords(ctx, "current_operator_id = ? AND status = ?", operatorID, RecordStatusTodo)
}

func (r *GormFlowRepo) FindByProcessID(ctx context.Context, processID string) ([]*FlowRecord, error) {
	return r.findFlowRecords(ctx, "process_id = ?", processID)
}

func (r *GormFlowRepo) FindAll(ctx context.Context) ([]*FlowRecord, error) {
	return r.findFlowRecords(ctx, "")
}

func (r *GormFlowRepo) FinishProcess(ctx context.Context, processID string) error {
	err := r.GetDBWithContext(ctx).Model(&FlowRecordPo{}).
		Where("process_id = ?", processID).
		Updates(map[string]any{
			"flow_status": FlowStatusFinish,
			"updated_at":  time.Now().Unix(),
		}).Error
	if err != nil {
		return errors.WithMessagef(err, "FinishProcess failed, processID: %s", processID)
	}
	return nil
}

func newFlowRecordPo(record *FlowRecord) *FlowRecordPo {
	po := &FlowRecordPo{
		ID:                record.ID,
		ProcessID:         record.ProcessID,
		WorkID:            record.WorkID,
		NodeCode:          record.NodeCode,
		Title:             record.Title,
		PreID:             record.PreID,
		BatchID:           record.BatchID,
		CreateOperatorID:  record.CreateOperatorID,
		CurrentOperatorID: record.CurrentOperatorID,
		Status:            record.Status,
		FlowStatus:        record.FlowStatus,
		SnapshotID:        record.SnapshotID,
		TransferToID:      record.TransferToID,
		CreatedAt:         record.CreatedAt,
		UpdatedAt:         time.Now().Unix(),
		FinishedAt:        record.FinishedAt,
	}
	if record.Opinion != nil {
		po.OpinionKind = record.Opinion.Kind()
		po.OpinionAdvice = record.Opinion.Advice()
	}
	if po.CreatedAt == 0 {
		po.CreatedAt = po.UpdatedAt
	}
	return po
}

func (po *FlowRecordPo) toEntity() *FlowRecord {
	record := &FlowRecord{
		ID:                po.ID,
		ProcessID:         po.ProcessID,
		WorkID:            po.WorkID,
		NodeCode:          po.NodeCode,
		Title:             po.Title,
		PreID:             po.PreID,
		BatchID:           po.BatchID,
		CreateOperatorID:  po.CreateOperatorID,
		CurrentOperatorID: po.CurrentOperatorID,
		Status:            po.Status,
		FlowStatus:        po.FlowStatus,
		SnapshotID:        po.SnapshotID,
		TransferToID:      po.TransferToID,
		CreatedAt:         po.CreatedAt,
		FinishedAt:        po.FinishedAt,
	}
	if po.OpinionKind != "" {
		opinion := NewOpinion(po.OpinionKind, po.OpinionAdvice)
		record.Opinion = &opinion
	}
	return record
}

// SaveBindData 版本号为同一个流程下已有快照的最大版本+1
func (r *GormFlowRepo) SaveBindData(ctx context.Context, snapshot *BindDataSnapshot) error {
	if snapshot == nil {
		return errors.New("nil BindDataSnapshot")
	}
	var maxVersion int64
	err := r.GetDBWithContext(ctx).Model(&FlowBindDataPo{}).
		Where("process_id = ?", snapshot.ProcessID).
		Select("COALESCE(MAX(version), 0)").
		Scan(&maxVersion).Error
	if err != nil {
		return errors.WithMessagef(err, "query bind data version failed, processID: %s", snapshot.ProcessID)
	}
	po := &FlowBindDataPo{
		ProcessID: snapshot.ProcessID,
		RecordID:  snapshot.RecordID,
		Version:   maxVersion + 1,
		DataType:  snapshot.DataType,
		Payload:   snapshot.Payload,
		CreatedAt: time.Now().Unix(),
	}
	if err := r.GetDBWithContext(ctx).Create(po).Error; err != nil {
		return errors.WithMessagef(err, "SaveBindData failed, processID: %s", snapshot.ProcessID)
	}
	snapshot.ID = po.ID
	snapshot.Version = po.Version
	snapshot.CreatedAt = po.CreatedAt
	return nil
}

func (r *GormFlowRepo) GetBindDataByID(ctx context.Context, id int64) (*BindDataSnapshot, error) {
	po := &FlowBindDataPo{}
	err := r.GetDBWithContext(ctx).Where("id = ?", id).Take(po).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.WithMessagef(ErrBindDataNotFound, "snapshotID: %d", id)
	}
	if err != nil {
		return nil, errors.WithMessagef(err, "GetBindDataByID failed, snapshotID: %d", id)
	}
	return &BindDataSnapshot{
		ID:        po.ID,
		ProcessID: po.ProcessID,
		RecordID:  po.RecordID,
		Version:   po.Version,
		DataType:  po.DataType,
		Payload:   po.Payload,
		CreatedAt: po.CreatedAt,
	}, nil
}

func (r *GormFlowRepo) GetFlowOperatorByID(ctx context.Context, id int64) (FlowOperator, error) {
	po := &FlowOperatorPo{}
	err := r.GetDBWithContext(ctx).Where("id = ?", id).Take(po).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.WithMessagef(ErrOperatorNotFound, "operatorID: %d", id)
	}
	if err != nil {
		return nil, errors.WithMessagef(err, "GetFlowOperatorByID failed, operatorID: %d", id)
	}
	return NewOperator(po.ID, po.Name), nil
}

func (r *GormFlowRepo) SaveFlowOperator(ctx context.Context, operator *OperatorEntity) error {
	if operator == nil {
		return errors.New("nil OperatorEntity")
	}
	po := &FlowOperatorPo{ID: operator.ID, Name: operator.Name, CreatedAt: time.Now().Unix()}
	if err := r.GetDBWithContext(ctx).Save(po).Error; err != nil {
		return errors.WithMessagef(err, "SaveFlowOperator failed, name: %s", operator.Name)
	}
	operator.ID = po.ID
	return nil
}

type contextKey string

const (
	transactionContextKey contextKey = "transaction"
)

func (r *GormFlowRepo) GetDBWithContext(ctx context.Context) *gorm.DB {
	tx := ctx.Value(transactionContextKey)
	if tx == nil {
		// 没有事务，直接返回db即可
		return r.db.WithContext(ctx)
	}
	return tx.(*gorm.DB)
}

// Transaction 已经在事务里面的直接复用外层事务
func (r *GormFlowRepo) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(transactionContextKey) != nil {
		return fn(ctx)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, transactionContextKey, tx))
	})
}
