package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// supervisorStatus mirrors bridge.supervisorStatusView's wire shape.
type supervisorStatus struct {
	Name             string `json:"name"`
	State            string `json:"state"`
	Tooltip          string `json:"tooltip"`
	ConsecutiveFails int    `json:"consecutiveFails"`
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print each supervised subprocess's current state",
		RunE: func(cmd *cobra.Command, args []string) error {
			var statuses []supervisorStatus
			if err := client().Call(context.Background(), "get_supervisor_status", nil, &statuses); err != nil {
				return err
			}
			for _, s := range statuses {
				fmt.Printf("%-12s %-10s fails=%-3d %s\n", s.Name, s.State, s.ConsecutiveFails, s.Tooltip)
			}
			return nil
		},
	}
}
