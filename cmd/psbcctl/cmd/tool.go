package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newToolCommand() *cobra.Command {
	var filename, argsJSON string

	cmd := &cobra.Command{
		Use:   "tool <name>",
		Short: "Invoke an external tool (C7) against an open plot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := map[string]any{"filename": filename, "name": args[0]}
			if argsJSON != "" {
				params["arguments"] = json.RawMessage(argsJSON)
			}
			var result struct {
				CallID  string `json:"callId"`
				Pending bool   `json:"pending"`
			}
			if err := client().Call(context.Background(), "invoke_tool", params, &result); err != nil {
				return err
			}
			fmt.Printf("call %s started (cancel with: psbcctl tool-cancel %s)\n", result.CallID, result.CallID)
			return nil
		},
	}

	cmd.Flags().StringVar(&filename, "filename", "", "Target plot filename (omit to resolve the single open plot).")
	cmd.Flags().StringVar(&argsJSON, "args", "", "Tool arguments as a JSON object.")
	return cmd
}

func newToolCancelCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tool-cancel <callId>",
		Short: "Cancel a tool call started by \"tool\" before it applies any commands",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result struct {
				Cancelled bool `json:"cancelled"`
			}
			params := map[string]any{"callId": args[0]}
			if err := client().Call(context.Background(), "cancel_tool_call", params, &result); err != nil {
				return err
			}
			fmt.Printf("call %s cancelled\n", args[0])
			return nil
		},
	}
}
