package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/keeldb/keel/pkg/api"
)

var actionCmd = &cobra.Command{
	Use:   "action",
	Short: "Manage orchestrator actions",
}

var actionListCmd = &cobra.Command{
	Use:   "list NAMESPACE CLUSTER",
	Short: "List a cluster's actions",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		unfinished, _ := cmd.Flags().GetBool("unfinished")

		c, ctx, cancel := apiClient(cmd)
		defer cancel()

		list, err := c.ListActions(ctx, args[0], args[1], unfinished)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println("No actions")
			return nil
		}

		fmt.Printf("%-38s %-26s %-18s %s\n", "ID", "KIND", "STATE", "CREATED")
		for _, a := range list {
			fmt.Printf("%-38s %-26s %-18s %s\n",
				a.ID, a.Kind, a.State, a.CreatedAt.Format(time.RFC3339))
		}
		return nil
	},
}

var actionSubmitCmd = &cobra.Command{
	Use:   "submit NAMESPACE CLUSTER KIND",
	Short: "Submit a new action against a cluster",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		rawArgs, _ := cmd.Flags().GetString("args")

		var actionArgs json.RawMessage
		if rawArgs != "" {
			if !json.Valid([]byte(rawArgs)) {
				return fmt.Errorf("--args must be valid JSON")
			}
			actionArgs = json.RawMessage(rawArgs)
		}

		c, ctx, cancel := apiClient(cmd)
		defer cancel()

		action, err := c.SubmitAction(ctx, args[0], args[1], api.ActionRequest{
			Kind: args[2],
			Args: actionArgs,
		})
		if err != nil {
			return err
		}
		fmt.Printf("✓ Action submitted: %s (state=%s)\n", action.ID, action.State)
		return nil
	},
}

var actionApproveCmd = &cobra.Command{
	Use:   "approve NAMESPACE CLUSTER ACTION_ID",
	Short: "Approve a pending action",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ctx, cancel := apiClient(cmd)
		defer cancel()

		action, err := c.ApproveAction(ctx, args[0], args[1], args[2])
		if err != nil {
			return err
		}
		fmt.Printf("✓ Action approved: %s (state=%s)\n", action.ID, action.State)
		return nil
	},
}

var actionRejectCmd = &cobra.Command{
	Use:   "reject NAMESPACE CLUSTER ACTION_ID",
	Short: "Reject a pending action",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ctx, cancel := apiClient(cmd)
		defer cancel()

		action, err := c.RejectAction(ctx, args[0], args[1], args[2])
		if err != nil {
			return err
		}
		fmt.Printf("✓ Action rejected: %s\n", action.ID)
		return nil
	},
}

var actionCancelCmd = &cobra.Command{
	Use:   "cancel NAMESPACE CLUSTER ACTION_ID",
	Short: "Cancel a pending action",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, ctx, cancel := apiClient(cmd)
		defer cancel()

		action, err := c.CancelAction(ctx, args[0], args[1], args[2])
		if err != nil {
			return err
		}
		fmt.Printf("✓ Action cancelled: %s\n", action.ID)
		return nil
	},
}

func init() {
	actionCmd.AddCommand(actionListCmd)
	actionCmd.AddCommand(actionSubmitCmd)
	actionCmd.AddCommand(actionApproveCmd)
	actionCmd.AddCommand(actionRejectCmd)
	actionCmd.AddCommand(actionCancelCmd)

	actionCmd.PersistentFlags().String("api", "http://localhost:8080", "Admin API base URL")

	actionListCmd.Flags().Bool("unfinished", false, "Only show unfinished actions")
	actionSubmitCmd.Flags().String("args", "", "Action arguments as JSON")
}
