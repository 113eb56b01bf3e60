package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/safetransit/safetransit/internal/config"
	"github.com/safetransit/safetransit/internal/stops"
)

var stopsCmd = &cobra.Command{
	Use:   "stops",
	Short: "List the monitored transit stops",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		registry := stops.Default()
		if cfg.StopsFile != "" {
			registry, err = stops.LoadFile(cfg.StopsFile)
			if err != nil {
				return fmt.Errorf("loading stops file: %w", err)
			}
		}

		out := cmd.OutOrStdout()
		for _, s := range registry.All() {
			fmt.Fprintf(out, "%-24s %9.4f %9.4f\n", s.Name, s.Location.Lat, s.Location.Lon)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(stopsCmd)
}
