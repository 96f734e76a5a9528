package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewCleanupCmd runs one janitor sweep and exits.
func NewCleanupCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Expire stale rooms and purge ended rooms past retention",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			svc, err := buildServices(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer svc.Close()

			res, err := svc.ctrl.Sweep(cmd.Context(), svc.sweepPolicy())
			if err != nil {
				return err
			}
			log.Info("cleanup finished", zap.Int("expired", res.Expired), zap.Int("purged", res.Purged))
			fmt.Fprintf(cmd.OutOrStdout(), "expired=%d purged=%d\n", res.Expired, res.Purged)
			return nil
		},
	}
}
