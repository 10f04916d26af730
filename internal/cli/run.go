package cli

import (
	"fmt"

	"github.com/mfadhilr/toolrun/internal/config"
	"github.com/mfadhilr/toolrun/internal/daemon"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the toolrun daemon in the foreground",
	Long: `Run the toolrun daemon in the foreground until interrupted.
The daemon loads plugin manifests, serves metrics, and schedules
cache and monitor maintenance.`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	d, err := daemon.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize daemon: %w", err)
	}

	return d.Run()
}
