package flow

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
)

type StartFlowReq struct {
	WorkID     int64    `json:"work_id" validate:"gt=0"`
	OperatorID int64    `json:"operator_id" validate:"gt=0"`
	BindData   BindData `json:"bind_data" validate:"required"`
	Advice     string   `json:"advice"`
}

type StartFlowResult struct {
	ProcessID string
	// 开始节点生成的记录
	Records []*FlowRecord
}

type SubmitFlowReq struct {
	RecordID   int64    `json:"record_id" validate:"gt=0"`
	OperatorID int64    `json:"operator_id" validate:"gt=0"`
	BindData   BindData `json:"bind_data" validate:"required"`
	Opinion    Opinion  `json:"-"`
}

type SubmitFlowResult struct {
	ProcessID string
	// 会签还有人没有办理, 没有推进
	Stalled bool
	// 结束节点通过, 流程结束
	Finished bool
	// 拒绝之后退回到了之前的节点
	Returned    bool
	NextRecords []*FlowRecord
}

type TransferFlowReq struct {
	RecordID         int64    `json:"record_id" validate:"gt=0"`
	OperatorID       int64    `json:"operator_id" validate:"gt=0"`
	TargetOperatorID int64    `json:"target_operator_id" validate:"gt=0,nefield=OperatorID"`
	BindData         BindData `json:"bind_data" validate:"required"`
	Advice           string   `json:"advice"`
}

type RecallFlowReq struct {
	RecordID   int64 `json:"record_id" validate:"gt=0"`
	OperatorID int64 `json:"operator_id" validate:"gt=0"`
}

// advance 批次锁 + 事务, 拿不到锁按指数退避重试
func (s *FlowServiceImpl) advance(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 20 * time.Millisecond
	bo.MaxInterval = 200 * time.Millisecond
	err := backoff.Retry(func() error {
		err := s.advanceLock.NonBlockingSynchronized(ctx, key, s.lockTimeout, func(ctx context.Context) error {
			return s.recordRepo.Transaction(ctx, fn)
		})
		if err != nil && errors.Is(err, ErrLockFailed) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, s.maxRetries), ctx))
	if err != nil && errors.Is(err, ErrLockFailed) {
		s.metrics.Conflicts.Inc()
		s.logger.WarnContext(ctx, "advance lock conflict", "key", key, "err", err)
		return errors.Wrapf(ErrAdvanceConflict, "key: %s, err: %v", key, err)
	}
	return err
}

func (s *FlowServiceImpl) StartFlow(ctx context.Context, req *StartFlowReq) (*StartFlowResult, error) {
	if err := validatorUtil.Struct(req); err != nil {
		return nil, errors.Wrapf(ErrFlowParamInvalid, "StartFlow failed, req: %v,err: %v", req, err)
	}
	operator, err := s.operatorRepo.GetFlowOperatorByID(ctx, req.OperatorID)
	if err != nil {
		return nil, errors.WithMessagef(err, "StartFlow failed, operatorID: %d", req.OperatorID)
	}
	work, err := s.workRepo.GetFlowWorkByID(ctx, req.WorkID)
	if err != nil {
		return nil, errors.WithMessagef(err, "StartFlow failed, workID: %d", req.WorkID)
	}
	if err := work.EnableValidate(); err != nil {
		return nil, errors.WithMessagef(err, "StartFlow failed, workID: %d", req.WorkID)
	}
	processID := work.GenerateProcessID()
	result := &StartFlowResult{ProcessID: processID}

	err = s.advance(ctx, processLockKey(processID), func(ctx context.Context) error {
		if work.Status != WorkStatusLocked {
			if err := work.LockValidate(); err != nil {
				return err
			}
			if err := s.workRepo.SaveFlowWork(ctx, work); err != nil {
				return errors.WithMessagef(err, "lock flow work failed, workID: %d", work.ID)
			}
		}
		snapshot, err := s.saveSnapshot(ctx, processID, 0, req.BindData)
		if err != nil {
			return err
		}
		opinion := PassOpinion(req.Advice)
		start, err := work.GetStartNode()
		if err != nil {
			return err
		}
		recordService := NewFlowRecordService(s.operatorRepo, processID, operator, operator, snapshot, req.BindData, opinion, work, opinion.IsSuccess(), nil)
		records, err := recordService.CreateRecord(ctx, 0, start)
		if err != nil {
			return err
		}
		if err := s.recordRepo.SaveFlowRecords(ctx, records); err != nil {
			return errors.WithMessagef(err, "save start records failed, processID: %s", processID)
		}
		// 开始节点以待办人的身份直接提交
		for _, record := range records {
			assignee := operator
			if record.CurrentOperatorID != operator.GetOperatorID() {
				assignee, err = s.operatorRepo.GetFlowOperatorByID(ctx, record.CurrentOperatorID)
				if err != nil {
					return errors.WithMessagef(err, "load start assignee failed, recordID: %d", record.ID)
				}
			}
			if _, err := s.submitFlow(ctx, record.ID, assignee, req.BindData, opinion); err != nil {
				return errors.WithMessagef(err, "self submit start record failed, recordID: %d", record.ID)
			}
		}
		result.Records = records
		return nil
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "StartFlow failed, workID: %d", req.WorkID)
	}
	s.metrics.Started.Inc()
	s.logger.InfoContext(ctx, "flow started", "workID", work.ID, "processID", processID, "operatorID", req.OperatorID)
	return result, nil
}

func (s *FlowServiceImpl) SubmitFlow(ctx context.Context, req *SubmitFlowReq) (*SubmitFlowResult, error) {
	if err := validatorUtil.Struct(req); err != nil {
		return nil, errors.Wrapf(ErrFlowParamInvalid, "SubmitFlow failed, req: %v,err: %v", req, err)
	}
	if req.Opinion.Kind() == "" {
		return nil, errors.Wrapf(ErrFlowParamInvalid, "SubmitFlow failed, opinion is empty, recordID: %d", req.RecordID)
	}
	operator, err := s.operatorRepo.GetFlowOperatorByID(ctx, req.OperatorID)
	if err != nil {
		return nil, errors.WithMessagef(err, "SubmitFlow failed, operatorID: %d", req.OperatorID)
	}
	record, err := s.recordRepo.GetFlowRecordByID(ctx, req.RecordID)
	if err != nil {
		return nil, errors.WithMessagef(err, "SubmitFlow failed, recordID: %d", req.RecordID)
	}
	var result *SubmitFlowResult
	err = s.advance(ctx, groupLockKey(record.ProcessID, record.BatchID), func(ctx context.Context) error {
		var submitErr error
		result, submitErr = s.submitFlow(ctx, req.RecordID, operator, req.BindData, req.Opinion)
		return submitErr
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "SubmitFlow failed, recordID: %d", req.RecordID)
	}
	return result, nil
}

// submitFlow 调用方需要持有批次锁并且在事务里面
func (s *FlowServiceImpl) submitFlow(ctx context.Context, recordID int64, currentOperator FlowOperator, bindData BindData, opinion Opinion) (*SubmitFlowResult, error) {
	flowRecord, err := s.recordRepo.GetFlowRecordByID(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if err := flowRecord.SubmitStateVerify(); err != nil {
		return nil, err
	}
	work, err := s.workRepo.GetFlowWorkByID(ctx, flowRecord.WorkID)
	if err != nil {
		return nil, err
	}
	if err := work.EnableValidate(); err != nil {
		return nil, err
	}
	flowNode, err := work.GetNodeByCode(flowRecord.NodeCode)
	if err != nil {
		return nil, err
	}
	processID := flowRecord.ProcessID
	if flowNode.IsUnSign() {
		// 非会签, 不能已经存在后续记录
		childrenRecords, err := s.recordRepo.FindFlowRecordByPreID(ctx, processID, flowRecord.ID)
		if err != nil {
			return nil, err
		}
		if len(childrenRecords) > 0 {
			return nil, errors.Wrapf(ErrNodeAlreadyDone, "recordID: %d, node: %s", flowRecord.ID, flowNode.Code)
		}
	}
	createOperator, err := s.operatorRepo.GetFlowOperatorByID(ctx, flowRecord.CreateOperatorID)
	if err != nil {
		return nil, err
	}
	snapshot, err := s.saveSnapshot(ctx, processID, flowRecord.ID, bindData)
	if err != nil {
		return nil, err
	}
	if err := flowRecord.Done(currentOperator, snapshot, opinion); err != nil {
		return nil, err
	}
	if err := s.recordRepo.UpdateFlowRecord(ctx, flowRecord); err != nil {
		return nil, err
	}
	s.metrics.Submitted.WithLabelValues(opinion.Kind()).Inc()

	result := &SubmitFlowResult{ProcessID: processID}
	flowNextStep := opinion.IsSuccess()
	historyRecords := make([]*FlowRecord, 0)
	currentFlowRecords, err := s.findNodeSiblings(ctx, flowRecord)
	if err != nil {
		return nil, err
	}
	if flowNode.IsSign() {
		// 会签: 所有人都办理完成才推进, 所有人都通过才算通过
		fanIn := FanIn(currentFlowRecords)
		if !fanIn.AllDone {
			s.metrics.Stalled.Inc()
			result.Stalled = true
			return result, nil
		}
		if !fanIn.AllPass {
			flowNextStep = false
		}
		historyRecords = append(historyRecords, currentFlowRecords...)
	} else {
		// 非会签: 其余待办按当前意见自动办理, 节点作为一个整体结束
		for _, record := range currentFlowRecords {
			if record.ID == flowRecord.ID || !record.IsTodo() {
				continue
			}
			if err := record.AutoDone(currentOperator, snapshot, opinion); err != nil {
				return nil, err
			}
			if err := s.recordRepo.UpdateFlowRecord(ctx, record); err != nil {
				return nil, err
			}
			historyRecords = append(historyRecords, record)
		}
	}

	recordService := NewFlowRecordService(s.operatorRepo, processID, createOperator, currentOperator, snapshot, bindData, opinion, work, flowNextStep, historyRecords)
	var records []*FlowRecord
	switch {
	case flowNextStep && work.IsEndNode(flowNode.Code):
		if err := s.recordRepo.FinishProcess(ctx, processID); err != nil {
			return nil, err
		}
		s.metrics.Finished.Inc()
		s.logger.InfoContext(ctx, "flow finished", "processID", processID, "recordID", flowRecord.ID)
		result.Finished = true
		return result, nil
	case work.HasBackRelation() || flowNextStep:
		nextNode, err := recordService.MatcherNextNode(flowNode)
		if err != nil {
			return nil, err
		}
		records, err = recordService.CreateRecord(ctx, flowRecord.ID, nextNode)
		if err != nil {
			return nil, err
		}
		result.Returned = !flowNextStep
	default:
		// 拒绝时默认退回上一个节点, 跳过转办的记录
		preRecord, err := s.findReturnRecord(ctx, flowRecord)
		if err != nil {
			return nil, err
		}
		nextNode, err := work.GetNodeByCode(preRecord.NodeCode)
		if err != nil {
			return nil, errors.Wrapf(ErrNextNodeNotFound, "return node %s not found, recordID: %d", preRecord.NodeCode, preRecord.ID)
		}
		records, err = recordService.CreateRecord(ctx, preRecord.ID, nextNode)
		if err != nil {
			return nil, err
		}
		result.Returned = true
	}
	if err := s.recordRepo.SaveFlowRecords(ctx, records); err != nil {
		return nil, err
	}
	if result.Returned {
		s.metrics.Returned.Inc()
	}
	result.NextRecords = records
	return result, nil
}

// findNodeSiblings 同一批次的记录, 节点的一次办理
func (s *FlowServiceImpl) findNodeSiblings(ctx context.Context, flowRecord *FlowRecord) ([]*FlowRecord, error) {
	return s.recordRepo.FindFlowRecordByBatchID(ctx, flowRecord.ProcessID, flowRecord.BatchID)
}

// findReturnRecord 沿着 PreID 向上找第一条不是转办的记录
func (s *FlowServiceImpl) findReturnRecord(ctx context.Context, flowRecord *FlowRecord) (*FlowRecord, error) {
	preID := flowRecord.PreID
	for {
		if preID == 0 {
			return nil, errors.Wrapf(ErrNextNodeNotFound, "no record to return to, recordID: %d", flowRecord.ID)
		}
		preRecord, err := s.recordRepo.GetFlowRecordByID(ctx, preID)
		if err != nil {
			return nil, err
		}
		if !preRecord.IsTransfer() {
			return preRecord, nil
		}
		preID = preRecord.PreID
	}
}

func (s *FlowServiceImpl) saveSnapshot(ctx context.Context, processID string, recordID int64, bindData BindData) (*BindDataSnapshot, error) {
	snapshot, err := s.registry.NewSnapshot(processID, recordID, bindData)
	if err != nil {
		return nil, err
	}
	if err := s.bindDataRepo.SaveBindData(ctx, snapshot); err != nil {
		return nil, errors.WithMessagef(err, "save snapshot failed, processID: %s", processID)
	}
	return snapshot, nil
}

func (s *FlowServiceImpl) TransferFlow(ctx context.Context, req *TransferFlowReq) (*FlowRecord, error) {
	if err := validatorUtil.Struct(req); err != nil {
		return nil, errors.Wrapf(ErrFlowParamInvalid, "TransferFlow failed, req: %v,err: %v", req, err)
	}
	operator, err := s.operatorRepo.GetFlowOperatorByID(ctx, req.OperatorID)
	if err != nil {
		return nil, errors.WithMessagef(err, "TransferFlow failed, operatorID: %d", req.OperatorID)
	}
	target, err := s.operatorRepo.GetFlowOperatorByID(ctx, req.TargetOperatorID)
	if err != nil {
		return nil, errors.WithMessagef(err, "TransferFlow failed, targetOperatorID: %d", req.TargetOperatorID)
	}
	record, err := s.recordRepo.GetFlowRecordByID(ctx, req.RecordID)
	if err != nil {
		return nil, errors.WithMessagef(err, "TransferFlow failed, recordID: %d", req.RecordID)
	}
	var newRecord *FlowRecord
	err = s.advance(ctx, groupLockKey(record.ProcessID, record.BatchID), func(ctx context.Context) error {
		flowRecord, err := s.recordRepo.GetFlowRecordByID(ctx, req.RecordID)
		if err != nil {
			return err
		}
		if err := flowRecord.SubmitStateVerify(); err != nil {
			return err
		}
		work, err := s.workRepo.GetFlowWorkByID(ctx, flowRecord.WorkID)
		if err != nil {
			return err
		}
		if err := work.EnableValidate(); err != nil {
			return err
		}
		snapshot, err := s.saveSnapshot(ctx, flowRecord.ProcessID, flowRecord.ID, req.BindData)
		if err != nil {
			return err
		}
		newRecord, err = flowRecord.Transfer(operator, target, snapshot, req.Advice)
		if err != nil {
			return err
		}
		if err := s.recordRepo.SaveFlowRecords(ctx, []*FlowRecord{newRecord}); err != nil {
			return err
		}
		flowRecord.TransferToID = newRecord.ID
		return s.recordRepo.UpdateFlowRecord(ctx, flowRecord)
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "TransferFlow failed, recordID: %d", req.RecordID)
	}
	s.metrics.Transfered.Inc()
	return newRecord, nil
}

func (s *FlowServiceImpl) RecallFlow(ctx context.Context, req *RecallFlowReq) ([]*FlowRecord, error) {
	if err := validatorUtil.Struct(req); err != nil {
		return nil, errors.Wrapf(ErrFlowParamInvalid, "RecallFlow failed, req: %v,err: %v", req, err)
	}
	operator, err := s.operatorRepo.GetFlowOperatorByID(ctx, req.OperatorID)
	if err != nil {
		return nil, errors.WithMessagef(err, "RecallFlow failed, operatorID: %d", req.OperatorID)
	}
	record, err := s.recordRepo.GetFlowRecordByID(ctx, req.RecordID)
	if err != nil {
		return nil, errors.WithMessagef(err, "RecallFlow failed, recordID: %d", req.RecordID)
	}
	var records []*FlowRecord
	err = s.advance(ctx, groupLockKey(record.ProcessID, record.BatchID), func(ctx context.Context) error {
		flowRecord, err := s.recordRepo.GetFlowRecordByID(ctx, req.RecordID)
		if err != nil {
			return err
		}
		work, err := s.workRepo.GetFlowWorkByID(ctx, flowRecord.WorkID)
		if err != nil {
			return err
		}
		start, err := work.GetStartNode()
		if err != nil {
			return err
		}
		if flowRecord.NodeCode == start.Code {
			return errors.Wrapf(ErrStateConflict, "record is already on the start node, recordID: %d", flowRecord.ID)
		}
		childrenRecords, err := s.recordRepo.FindFlowRecordByPreID(ctx, flowRecord.ProcessID, flowRecord.ID)
		if err != nil {
			return err
		}
		if len(childrenRecords) > 0 {
			return errors.Wrapf(ErrStateConflict, "record already has next records, recordID: %d", flowRecord.ID)
		}
		if err := flowRecord.Recall(operator); err != nil {
			return err
		}
		if err := s.recordRepo.UpdateFlowRecord(ctx, flowRecord); err != nil {
			return err
		}
		recalled := []*FlowRecord{flowRecord}
		siblings, err := s.findNodeSiblings(ctx, flowRecord)
		if err != nil {
			return err
		}
		for _, sibling := range siblings {
			if sibling.ID == flowRecord.ID || !sibling.IsTodo() {
				continue
			}
			if err := sibling.Recall(operator); err != nil {
				return err
			}
			if err := s.recordRepo.UpdateFlowRecord(ctx, sibling); err != nil {
				return err
			}
			recalled = append(recalled, sibling)
		}
		var snapshot *BindDataSnapshot
		var bindData BindData
		if flowRecord.SnapshotID > 0 {
			snapshot, err = s.bindDataRepo.GetBindDataByID(ctx, flowRecord.SnapshotID)
			if err != nil {
				return err
			}
			bindData, err = s.registry.Decode(snapshot)
			if err != nil {
				return err
			}
		}
		recordService := NewFlowRecordService(s.operatorRepo, flowRecord.ProcessID, operator, operator, snapshot, bindData, RejectOpinion("recall"), work, false, recalled)
		records, err = recordService.CreateRecord(ctx, 0, start)
		if err != nil {
			return err
		}
		return s.recordRepo.SaveFlowRecords(ctx, records)
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "RecallFlow failed, recordID: %d", req.RecordID)
	}
	s.metrics.Recalled.Inc()
	return records, nil
}

func (s *FlowServiceImpl) FindTodo(ctx context.Context, operatorID int64) ([]*FlowRecord, error) {
	records, err := s.recordRepo.FindTodoByOperatorID(ctx, operatorID)
	if err != nil {
		return nil, errors.WithMessagef(err, "FindTodo failed, operatorID: %d", operatorID)
	}
	return records, nil
}

func (s *FlowServiceImpl) FindProcessRecords(ctx context.Context, processID string) ([]*FlowRecord, error) {
	records, err := s.recordRepo.FindByProcessID(ctx, processID)
	if err != nil {
		return nil, errors.WithMessagef(err, "FindProcessRecords failed, processID: %s", processID)
	}
	return records, nil
}

func (s *FlowServiceImpl) GetBindData(ctx context.Context, snapshotID int64) (BindData, *BindDataSnapshot, error) {
	snapshot, err := s.bindDataRepo.GetBindDataByID(ctx, snapshotID)
	if err != nil {
		return nil, nil, errors.WithMessagef(err, "GetBindData failed, snapshotID: %d", snapshotID)
	}
	data, err := s.registry.Decode(snapshot)
	if err != nil {
		return nil, nil, errors.WithMessagef(err, "GetBindData failed, snapshotID: %d", snapshotID)
	}
	return data, snapshot, nil
}
