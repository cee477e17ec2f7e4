package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var neighborhoodsCmd = &cobra.Command{
	Use:   "neighborhoods <city>",
	Short: "List the neighborhoods mining would search in a city",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := newRouter().Neighborhoods(cmd.Context(), cfg.ProviderSettings(), args[0])
		if err != nil {
			return eris.Wrap(err, "neighborhoods")
		}
		if len(list) == 0 {
			fmt.Fprintf(os.Stderr, "No neighborhoods known for %s.\n", args[0])
			return nil
		}
		for _, n := range list {
			fmt.Fprintln(os.Stdout, n)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(neighborhoodsCmd)
}
