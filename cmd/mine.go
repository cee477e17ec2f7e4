package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/lead-miner/internal/mining"
	"github.com/sells-group/lead-miner/internal/provider"
)

var mineCmd = &cobra.Command{
	Use:   "mine <niche>",
	Short: "Search a niche across a city's neighborhoods",
	Long:  "Searches the active provider for businesses of <niche> in each neighborhood of --city, folding new leads into the niche's folder. Ctrl-C stops after the current neighborhood and keeps what was found.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		city, _ := cmd.Flags().GetString("city")
		neighborhoods, _ := cmd.Flags().GetStringSlice("neighborhood")
		deep, _ := cmd.Flags().GetBool("deep")
		if !cmd.Flags().Changed("deep") {
			deep = cfg.Mining.DeepSearch
		}

		req := mining.Request{
			Niche:         args[0],
			City:          city,
			Neighborhoods: neighborhoods,
			DeepSearch:    deep,
		}
		if cmd.Flags().Changed("lat") && cmd.Flags().Changed("lng") {
			lat, _ := cmd.Flags().GetFloat64("lat")
			lng, _ := cmd.Flags().GetFloat64("lng")
			req.Location = &provider.Location{Latitude: lat, Longitude: lng}
		}

		env, err := initApp(ctx, mining.WithObserver(func(p mining.Progress) {
			formatProgress(os.Stderr, p)
		}))
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Miner.Run(ctx, cfg.ProviderSettings(), req)
		if err != nil {
			return err
		}
		formatResult(os.Stdout, res)
		fmt.Fprintf(os.Stdout, "Estimated cost: $%.4f\n", env.Meter.Total())
		if res.State == mining.StateHaltedRateLimit || res.State == mining.StateHaltedCredential {
			return eris.Errorf("mining halted: %s", res.Message)
		}
		return nil
	},
}

func init() {
	mineCmd.Flags().String("city", "", "city to search (required)")
	mineCmd.Flags().StringSlice("neighborhood", nil, "neighborhoods to search (default: every known neighborhood of the city)")
	mineCmd.Flags().Bool("deep", false, "use deeper, slower web search (default from config)")
	mineCmd.Flags().Float64("lat", 0, "latitude hint for the search")
	mineCmd.Flags().Float64("lng", 0, "longitude hint for the search")
	_ = mineCmd.MarkFlagRequired("city")
	rootCmd.AddCommand(mineCmd)
}
