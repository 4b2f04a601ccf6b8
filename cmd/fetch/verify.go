package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/pitwall/racefeed/internal/archive"
	"github.com/pitwall/racefeed/internal/replay"
)

func verifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify [YEAR EVENT SESSION]",
		Short: "Validate a cached session and print its contents",
		Long: `Open a cached session without touching the archive, run the same
validation the replay server runs at startup, and print per-driver sample
counts.

Examples:
  racefeed-fetch verify 2023 monaco R`,
		Args: cobra.RangeArgs(0, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			desc, err := parseDescriptor(args)
			if err != nil {
				return err
			}

			cache, err := archive.NewCache(cfg.Cache.Dir)
			if err != nil {
				return err
			}
			defer cache.Close()

			// Cache-only store: verify never goes to the archive
			store := archive.NewStore(cache, nil, logger)

			data, err := store.Load(ctx, desc)
			if err != nil {
				return err
			}

			if _, err := replay.NewSession(data.Tracks); err != nil {
				return fmt.Errorf("session would be rejected by the server: %w", err)
			}

			drivers := make([]string, 0, len(data.Tracks))
			for driver := range data.Tracks {
				drivers = append(drivers, driver)
			}
			sort.Strings(drivers)

			fmt.Printf("%s: %d drivers, %d laps\n", desc, len(drivers), len(data.Laps))
			total := 0
			for _, driver := range drivers {
				track := data.Tracks[driver]
				total += len(track)
				fmt.Printf("  %-4s %6d samples  %8.1fs\n", driver, len(track), track[len(track)-1].Time)
			}
			fmt.Printf("  total %d samples\n", total)

			return nil
		},
	}

	return cmd
}
