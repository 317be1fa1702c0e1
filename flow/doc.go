// Package flow 提供审批流程引擎。
//
// 一个流程定义(FlowWork)是由节点和连线组成的有向图, 发起之后生成一棵流程记录(FlowRecord)树,
// 每条记录是某个节点分配给某个人的一条待办, 同一次生成的记录属于同一批次(BatchID), 转办沿用原来的批次。
//
// 主要特性：
//   - 会签(sign)与非会签(un_sign)节点
//   - 拒绝时沿退回连线走, 没有退回连线时退回到上一个节点
//   - 连线条件、自定义操作者匹配器
//   - 转办、撤回
//   - 每次提交都会保存业务数据快照
//   - 同一批次的推进使用本地锁或者 Redis 锁串行化
//
// 基础使用示例:
//
//	db, _ := gorm.Open(sqlite.Open("flow.db"), &gorm.Config{})
//	flow.MigrateTables(db)
//
//	repo := flow.NewFlowRepo(db)
//	service := flow.NewFlowService(repo, repo, repo, repo, flow.NewLocalFlowLock())
//
//	config, _ := flow.ParseWorkConfig(workYAML)
//	work, _ := flow.BuildFlowWork(config, creatorID)
//	work.Enable()
//	repo.SaveFlowWork(ctx, work)
//
//	result, _ := service.StartFlow(ctx, &flow.StartFlowReq{
//	    WorkID:     work.ID,
//	    OperatorID: creatorID,
//	    BindData:   flow.NewFormDataFromMap(map[string]any{"days": 2}),
//	})
//
//	todo, _ := service.FindTodo(ctx, approverID)
//	service.SubmitFlow(ctx, &flow.SubmitFlowReq{
//	    RecordID:   todo[0].ID,
//	    OperatorID: approverID,
//	    BindData:   flow.NewFormDataFromMap(nil),
//	    Opinion:    flow.PassOpinion("同意"),
//	})
//
// 错误处理：
//
// 所有错误都可以用 IsValidationError、IsNotFoundError、IsStateConflictError、IsPermissionError 分类。
// 并发提交同一批次时拿不到锁会重试, 仍然失败返回 ErrAdvanceConflict。
package flow
