package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/lead-miner/internal/model"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile the local and remote replicas",
	Long:  "Loads both replicas, merges them, and writes the merged state back to both, waiting for the remote writes to finish.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Store.Flush(cmd.Context()); err != nil {
			return err
		}
		formatSync(os.Stdout, env.Report, env.Store.Status())
		return nil
	},
}

var statusInfoCmd = &cobra.Command{
	Use:   "status",
	Short: "Show replica status and lead totals",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		cloud := env.Store.Status()
		if env.Engine.Degraded() {
			cloud = model.CloudOffline
		}
		snap := env.Engine.Snapshot()
		fmt.Fprintf(os.Stdout, "cloud:     %s\n", cloud)
		fmt.Fprintf(os.Stdout, "campaigns: %d\n", len(snap.Campaigns))
		fmt.Fprintf(os.Stdout, "leads:     %d\n", len(snap.Leads))
		fmt.Fprintf(os.Stdout, "provider:  %s\n", cfg.ProviderSettings().Active())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd, statusInfoCmd)
}
