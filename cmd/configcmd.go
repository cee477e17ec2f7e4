package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sells-group/lead-miner/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Persist a setting such as provider.primary_key",
	Long:  "Writes one key into the config file. Settable keys:\n  " + strings.Join(config.SettableKeys(), "\n  "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("file")
		if err := config.Set(path, args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Saved %s to %s\n", args[0], path)
		return nil
	},
}

func init() {
	configSetCmd.Flags().String("file", config.DefaultPath, "config file to write")
	configCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(configCmd)
}
