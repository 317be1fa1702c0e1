package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/blingmoon/simple-flow/flow"
	"github.com/blingmoon/simple-flow/internal/leaveflow"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	workCreatorID int64
	workEnable    bool
	leaveDeptIDs  []int64
	leaveManager  int64
	leaveSign     bool
	leaveShortcut bool
	operatorID    int64
)

var workCmd = &cobra.Command{
	Use:   "work",
	Short: "Manage flow definitions",
}

var workLoadCmd = &cobra.Command{
	Use:   "load <file>",
	Short: "Load a flow definition from a yaml or json file",
	Args:  cobra.ExactArgs(1),
	RunE: runWithApp(func(ctx context.Context, a *app, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return errors.WithMessagef(err, "read work file failed, path: %s", args[0])
		}
		config, err := flow.ParseWorkConfig(data)
		if err != nil {
			return err
		}
		return saveWork(ctx, a, config)
	}),
}

var workLeaveCmd = &cobra.Command{
	Use:   "leave",
	Short: "Create the built-in leave approval flow",
	RunE: runWithApp(func(ctx context.Context, a *app, args []string) error {
		var config *flow.WorkConfig
		var err error
		if leaveShortcut {
			if len(leaveDeptIDs) != 1 {
				return errors.Wrapf(flow.ErrFlowParamInvalid, "shortcut leave flow needs exactly one dept operator")
			}
			config, err = leaveflow.ShortcutWorkConfig(leaveDeptIDs[0], leaveManager)
		} else {
			config, err = leaveflow.WorkConfig(leaveSign, leaveManager, leaveDeptIDs...)
		}
		if err != nil {
			return err
		}
		return saveWork(ctx, a, config)
	}),
}

var workShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a flow definition",
	Args:  cobra.ExactArgs(1),
	RunE: runWithApp(func(ctx context.Context, a *app, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		work, err := a.repo.GetFlowWorkByID(ctx, id)
		if err != nil {
			return err
		}
		output(work.ToWorkConfig(), func() {
			fmt.Printf("work %d %s [%s]\n", work.ID, work.Title, work.Status)
			for _, node := range work.Nodes {
				fmt.Printf("  node %-10s %-12s %-8s matcher=%s\n", node.Code, node.Name, node.ApprovalType, node.MatcherConfig.Kind)
			}
			for _, relation := range work.Relations {
				fmt.Printf("  %s -> %s back=%v condition=%q\n", relation.Source, relation.Target, relation.Back, relation.Condition)
			}
		})
		return nil
	}),
}

var operatorCmd = &cobra.Command{
	Use:   "operator",
	Short: "Manage operators",
}

var operatorAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add an operator",
	Args:  cobra.ExactArgs(1),
	RunE: runWithApp(func(ctx context.Context, a *app, args []string) error {
		operator := flow.NewOperator(operatorID, args[0])
		if err := a.repo.SaveFlowOperator(ctx, operator); err != nil {
			return err
		}
		output(operator, func() {
			fmt.Printf("operator %d %s\n", operator.ID, operator.Name)
		})
		return nil
	}),
}

func saveWork(ctx context.Context, a *app, config *flow.WorkConfig) error {
	work, err := flow.BuildFlowWork(config, workCreatorID)
	if err != nil {
		return err
	}
	if workEnable {
		if err := work.Enable(); err != nil {
			return err
		}
	}
	if err := a.repo.SaveFlowWork(ctx, work); err != nil {
		return err
	}
	output(work.ToWorkConfig(), func() {
		fmt.Printf("work %d %s [%s]\n", work.ID, work.Title, work.Status)
	})
	return nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Wrapf(flow.ErrFlowParamInvalid, "invalid id: %s", s)
	}
	return id, nil
}

func init() {
	for _, cmd := range []*cobra.Command{workLoadCmd, workLeaveCmd} {
		cmd.Flags().Int64Var(&workCreatorID, "creator", 0, "creator operator id")
		cmd.Flags().BoolVar(&workEnable, "enable", true, "enable the work after saving")
	}
	workLeaveCmd.Flags().Int64SliceVar(&leaveDeptIDs, "dept", nil, "dept approver ids")
	workLeaveCmd.Flags().Int64Var(&leaveManager, "manager", 0, "manager approver id")
	workLeaveCmd.Flags().BoolVar(&leaveSign, "sign", false, "dept approvers must all pass")
	workLeaveCmd.Flags().BoolVar(&leaveShortcut, "shortcut", false, "skip manager for short leaves")
	_ = workLeaveCmd.MarkFlagRequired("dept")
	_ = workLeaveCmd.MarkFlagRequired("manager")
	operatorAddCmd.Flags().Int64Var(&operatorID, "id", 0, "operator id, 0 means auto increment")

	workCmd.AddCommand(workLoadCmd, workLeaveCmd, workShowCmd)
	operatorCmd.AddCommand(operatorAddCmd)
	rootCmd.AddCommand(workCmd, operatorCmd)
}
