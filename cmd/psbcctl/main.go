// Command psbcctl is an operator CLI against a running psbcd: status and
// plot listing, ad-hoc tool invocation, a live Supervisor dashboard, and
// host diagnostics for port-conflict troubleshooting.
package main

import (
	"os"

	"github.com/debrief/psbc/cmd/psbcctl/cmd"
)

func main() {
	if err := cmd.NewPsbcCtlCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
