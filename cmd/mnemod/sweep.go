package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mnemod/mnemod/internal/config"
	"github.com/mnemod/mnemod/pkg/app"
)

func sweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one retention pass now",
		Long: "Expires records whose tier TTL has lapsed and purges tombstones past\n" +
			"the grace period. With --dry-run it only reports what would be removed.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			dryRun, _ := cmd.Flags().GetBool("dry-run")

			if cfgPath == "" {
				resolved, err := app.ResolveConfigPath()
				if err != nil {
					return err
				}
				cfgPath = resolved
			}
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}

			ctx := context.Background()
			engine, err := app.BuildEngine(ctx, cfg, version)
			if err != nil {
				return err
			}
			defer func() {
				stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				engine.Stop(stopCtx)
			}()

			if dryRun {
				res, err := engine.Sweeper.Preview(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Would expire %d records and purge %d tombstones.\n",
					res.Expired, res.Purged)
				return nil
			}

			res, err := engine.Sweeper.Sweep(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Expired %d records, purged %d tombstones.\n",
				res.Expired, res.Purged)
			return nil
		},
	}
	cmd.Flags().StringP("config", "c", "", "Path to configuration file")
	cmd.Flags().Bool("dry-run", false, "Report without removing anything")
	return cmd
}
