package cmd

import (
	"fmt"
	"net"
	"time"

	hoststat "github.com/likexian/host-stat-go"
	"github.com/spf13/cobra"
)

// newDoctorCommand prints host diagnostics useful when troubleshooting a
// PortConflict supervisor state (spec §5 "no auto-retry"; the operator
// has to investigate and act). Grounded on the teacher's
// internal/eidoctl/cmd/info package use of likexian/host-stat-go, minus
// its genericclioptions.IOStreams/cmdutil.Factory plumbing, which is not
// present in the retrieval pack to adapt (see DESIGN.md).
func newDoctorCommand() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Print host diagnostics and check the bridge port",
		RunE: func(cmd *cobra.Command, args []string) error {
			hostInfo, err := hoststat.GetHostInfo()
			if err != nil {
				return fmt.Errorf("get host info: %w", err)
			}
			fmt.Printf("host:     %s (%s %s)\n", hostInfo.HostName, hostInfo.Release, hostInfo.OSBit)

			memStat, err := hoststat.GetMemStat()
			if err != nil {
				return fmt.Errorf("get mem stat: %w", err)
			}
			fmt.Printf("memory:   %dM total, %dM free\n", memStat.MemTotal, memStat.MemFree)

			cpuStat, err := hoststat.GetCPUInfo()
			if err != nil {
				return fmt.Errorf("get cpu info: %w", err)
			}
			fmt.Printf("cpu:      %d core(s)\n", cpuStat.CoreCount)

			fmt.Printf("port %d:  ", port)
			conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), 2*time.Second)
			if err != nil {
				fmt.Println("free")
				return nil
			}
			conn.Close()
			fmt.Println("in use (either psbcd is already running, or something else is bound there)")
			return nil
		},
	}

	cmd.Flags().IntVar(&port, "port", 60123, "Bridge port to check.")
	return cmd
}
