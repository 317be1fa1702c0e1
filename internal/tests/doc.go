// Package tests 是 simple-flow 的集成测试模块。
//
// 此包位于 internal/ 目录下，外部项目无法导入。
//
// 测试内容
//
// 使用 sqlite 内存库跑完整的请假审批流程：
//   - 发起、逐级通过、结束
//   - 拒绝退回、重新提交
//   - 会签、转办、撤回
//   - 连线条件和退回连线
//
// 运行测试
//
// 在项目根目录：
//
//	go test ./internal/tests/...
package tests
