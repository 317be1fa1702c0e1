package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/blingmoon/simple-flow/flow"
	"github.com/blingmoon/simple-flow/internal/leaveflow"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	reqWorkID     int64
	reqRecordID   int64
	reqOperatorID int64
	reqTargetID   int64
	reqDataType   string
	reqData       string
	reqAdvice     string
	reqReject     bool
	reqProcessID  string
	reqSnapshotID int64
)

// parseBindData --data 是 json, --type 决定解成哪种业务数据
func parseBindData() (flow.BindData, error) {
	payload := []byte(reqData)
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	switch reqDataType {
	case flow.FormDataType:
		form := map[string]any{}
		if err := json.Unmarshal(payload, &form); err != nil {
			return nil, errors.Wrapf(flow.ErrFlowParamInvalid, "invalid form data: %v", err)
		}
		return flow.NewFormDataFromMap(form), nil
	case leaveflow.LeaveDataType:
		leave := &leaveflow.Leave{}
		if err := json.Unmarshal(payload, leave); err != nil {
			return nil, errors.Wrapf(flow.ErrFlowParamInvalid, "invalid leave data: %v", err)
		}
		return leave, nil
	}
	return nil, errors.Wrapf(flow.ErrFlowParamInvalid, "unknown data type: %s", reqDataType)
}

func printRecords(records []*flow.FlowRecord) {
	output(records, func() {
		for _, record := range records {
			opinion := ""
			if record.Opinion != nil {
				opinion = record.Opinion.Kind()
			}
			fmt.Printf("%-5d pre=%-5d %-10s operator=%-5d %-6s %-8s %s %s\n",
				record.ID, record.PreID, record.NodeCode, record.CurrentOperatorID,
				flow.GetRecordStatusText(record.Status), opinion, record.FlowStatus, record.ProcessID)
		}
	})
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a process instance of a flow definition",
	RunE: runWithApp(func(ctx context.Context, a *app, args []string) error {
		data, err := parseBindData()
		if err != nil {
			return err
		}
		result, err := a.service.StartFlow(ctx, &flow.StartFlowReq{
			WorkID:     reqWorkID,
			OperatorID: reqOperatorID,
			BindData:   data,
			Advice:     reqAdvice,
		})
		if err != nil {
			return err
		}
		records, err := a.service.FindProcessRecords(ctx, result.ProcessID)
		if err != nil {
			return err
		}
		printRecords(records)
		return nil
	}),
}

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Pass or reject a todo record",
	RunE: runWithApp(func(ctx context.Context, a *app, args []string) error {
		data, err := parseBindData()
		if err != nil {
			return err
		}
		opinion := flow.PassOpinion(reqAdvice)
		if reqReject {
			opinion = flow.RejectOpinion(reqAdvice)
		}
		result, err := a.service.SubmitFlow(ctx, &flow.SubmitFlowReq{
			RecordID:   reqRecordID,
			OperatorID: reqOperatorID,
			BindData:   data,
			Opinion:    opinion,
		})
		if err != nil {
			return err
		}
		switch {
		case result.Finished:
			a.logger.InfoContext(ctx, "process finished", "processID", result.ProcessID)
		case result.Stalled:
			a.logger.InfoContext(ctx, "waiting for the other sign approvers", "processID", result.ProcessID)
		}
		printRecords(result.NextRecords)
		return nil
	}),
}

var transferCmd = &cobra.Command{
	Use:   "transfer",
	Short: "Hand a todo record over to another operator",
	RunE: runWithApp(func(ctx context.Context, a *app, args []string) error {
		data, err := parseBindData()
		if err != nil {
			return err
		}
		record, err := a.service.TransferFlow(ctx, &flow.TransferFlowReq{
			RecordID:         reqRecordID,
			OperatorID:       reqOperatorID,
			TargetOperatorID: reqTargetID,
			BindData:         data,
			Advice:           reqAdvice,
		})
		if err != nil {
			return err
		}
		printRecords([]*flow.FlowRecord{record})
		return nil
	}),
}

var recallCmd = &cobra.Command{
	Use:   "recall",
	Short: "Recall a todo record as the process creator",
	RunE: runWithApp(func(ctx context.Context, a *app, args []string) error {
		records, err := a.service.RecallFlow(ctx, &flow.RecallFlowReq{
			RecordID:   reqRecordID,
			OperatorID: reqOperatorID,
		})
		if err != nil {
			return err
		}
		printRecords(records)
		return nil
	}),
}

var todoCmd = &cobra.Command{
	Use:   "todo",
	Short: "List todo records of an operator",
	RunE: runWithApp(func(ctx context.Context, a *app, args []string) error {
		records, err := a.service.FindTodo(ctx, reqOperatorID)
		if err != nil {
			return err
		}
		printRecords(records)
		return nil
	}),
}

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List all records of a process instance",
	RunE: runWithApp(func(ctx context.Context, a *app, args []string) error {
		records, err := a.service.FindProcessRecords(ctx, reqProcessID)
		if err != nil {
			return err
		}
		printRecords(records)
		return nil
	}),
}

var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "Show a bind data snapshot",
	RunE: runWithApp(func(ctx context.Context, a *app, args []string) error {
		data, snapshot, err := a.service.GetBindData(ctx, reqSnapshotID)
		if err != nil {
			return err
		}
		output(data, func() {
			fmt.Printf("snapshot %d version=%d type=%s record=%d\n%s\n",
				snapshot.ID, snapshot.Version, snapshot.DataType, snapshot.RecordID, string(snapshot.Payload))
		})
		return nil
	}),
}

func init() {
	startCmd.Flags().Int64Var(&reqWorkID, "work", 0, "flow work id")
	for _, cmd := range []*cobra.Command{submitCmd, transferCmd, recallCmd} {
		cmd.Flags().Int64Var(&reqRecordID, "record", 0, "record id")
		_ = cmd.MarkFlagRequired("record")
	}
	for _, cmd := range []*cobra.Command{startCmd, submitCmd, transferCmd, recallCmd, todoCmd} {
		cmd.Flags().Int64Var(&reqOperatorID, "operator", 0, "operator id")
		_ = cmd.MarkFlagRequired("operator")
	}
	for _, cmd := range []*cobra.Command{startCmd, submitCmd, transferCmd} {
		cmd.Flags().StringVar(&reqDataType, "type", flow.FormDataType, "bind data type: form|leave")
		cmd.Flags().StringVar(&reqData, "data", "", "bind data as json")
		cmd.Flags().StringVar(&reqAdvice, "advice", "", "advice")
	}
	submitCmd.Flags().BoolVar(&reqReject, "reject", false, "reject instead of pass")
	transferCmd.Flags().Int64Var(&reqTargetID, "to", 0, "target operator id")
	_ = transferCmd.MarkFlagRequired("to")
	recordsCmd.Flags().StringVar(&reqProcessID, "process", "", "process id")
	_ = recordsCmd.MarkFlagRequired("process")
	dataCmd.Flags().Int64Var(&reqSnapshotID, "snapshot", 0, "snapshot id")
	_ = dataCmd.MarkFlagRequired("snapshot")

	rootCmd.AddCommand(startCmd, submitCmd, transferCmd, recallCmd, todoCmd, recordsCmd, dataCmd)
}
