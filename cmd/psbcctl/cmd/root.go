package cmd

import (
	"github.com/spf13/cobra"

	"github.com/debrief/psbc/internal/psbc/cliclient"
)

// addr is the shared --addr flag read by every subcommand.
var addr string

// NewPsbcCtlCommand builds the psbcctl root command, grounded on the
// teacher's cobra bootstrap shape (internal/echoctl/cmd/cmd.go) narrowed
// to a flat command list since the teacher's templates.CommandGroups /
// genericclioptions.Factory wrapper packages are not present in the
// retrieval pack to adapt (see DESIGN.md).
func NewPsbcCtlCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "psbcctl",
		Short: "psbcctl operates a running psbcd instance",
		Long:  "psbcctl is the operator CLI for the Plot State & Bridge Core daemon.",
	}

	cmd.PersistentFlags().StringVar(&addr, "addr", "http://localhost:60123", "Base URL of the running psbcd bridge.")

	cmd.AddCommand(
		newStatusCommand(),
		newListCommand(),
		newToolCommand(),
		newToolCancelCommand(),
		newWatchCommand(),
		newDoctorCommand(),
	)
	return cmd
}

func client() *cliclient.Client {
	return cliclient.New(addr)
}
