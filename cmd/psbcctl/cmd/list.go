package cmd

import (
	"context"
	"fmt"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"
)

// openPlotSummary mirrors bridge.openPlotSummary's wire shape.
type openPlotSummary struct {
	Path  string `json:"path"`
	Title string `json:"title"`
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List open plot documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			var plots []openPlotSummary
			if err := client().Call(context.Background(), "list_open_plots", nil, &plots); err != nil {
				return err
			}

			table := uitable.New()
			table.AddRow("PATH", "TITLE")
			for _, p := range plots {
				table.AddRow(p.Path, p.Title)
			}
			fmt.Println(table.String())
			return nil
		},
	}
}
