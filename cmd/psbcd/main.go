// Command psbcd is the PSBC daemon: the process the host's extension
// spawns and talks to over the Bridge Server. Grounded on the teacher's
// cobra/viper entrypoint shape (cmd/echoctl/echoctl.go,
// internal/echoctl/cmd/cmd.go), narrowed to plain cobra+pflag+viper since
// the teacher's own cliflag/genericclioptions/genericapiserver wrapper
// packages are not present in the retrieval pack to adapt (see
// DESIGN.md).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	_ "go.uber.org/automaxprocs"

	"github.com/debrief/psbc/internal/psbc/config"
	"github.com/debrief/psbc/internal/psbc/daemon"
	"github.com/debrief/psbc/pkg/logger"
)

func main() {
	if err := newPsbcdCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newPsbcdCommand() *cobra.Command {
	opts := config.NewOptions()
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "psbcd",
		Short: "psbcd runs the Plot State & Bridge Core daemon",
		Long: `psbcd hosts the Bridge listener and, if configured, supervises the
external tool server process. It is spawned and torn down by the host
editor's extension activation hooks; it never auto-starts its
supervised subprocesses on its own.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(opts, cfgFile)
		},
	}

	flags := cmd.PersistentFlags()
	opts.Flags(flags)
	flags.StringVar(&cfgFile, "config", "", "Path to a YAML/JSON config file (optional; flags and env override it).")

	viper.SetEnvPrefix("PSBC")
	viper.AutomaticEnv()
	_ = viper.BindPFlags(flags)

	return cmd
}

func runDaemon(opts *config.Options, cfgFile string) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("psbcd: read config %q: %w", cfgFile, err)
		}
		if err := viper.Unmarshal(opts); err != nil {
			return fmt.Errorf("psbcd: decode config %q: %w", cfgFile, err)
		}
	}

	cfg, err := config.CreateConfigFromOptions(opts)
	if err != nil {
		return fmt.Errorf("psbcd: %w", err)
	}

	if cfg.Debug {
		logger.SetLevel("debug")
	}

	d, err := daemon.New(cfg)
	if err != nil {
		return fmt.Errorf("psbcd: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := d.Start(ctx); err != nil {
		return fmt.Errorf("psbcd: start: %w", err)
	}
	logger.InfoX("psbcd", "daemon started", "bridgePort", cfg.Bridge.Port)

	<-ctx.Done()
	logger.InfoX("psbcd", "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	d.Stop(shutdownCtx)
	return nil
}
