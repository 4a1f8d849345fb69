package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/butp-hub/destination-predictor/internal/domain/shared"
	"github.com/butp-hub/destination-predictor/internal/infrastructure/persistence/redis"
)

func newCacheCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the threshold result cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Delete every cached threshold result, e.g. after shipping a new model",
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Config.Redis.Disabled {
				return shared.NewDomainError("cache", "Purge", shared.ErrConfiguration, "redis is disabled")
			}

			ctx := cmd.Context()
			client, err := app.dialRedis(ctx)
			if err != nil {
				return shared.WrapError("cache", "Purge", shared.ErrServiceUnavailable, "cannot connect to redis", err)
			}
			defer client.Close()

			n, err := client.DeleteByPattern(ctx, redis.ThresholdKey("*"))
			if err != nil {
				return shared.WrapError("cache", "Purge", shared.ErrServiceUnavailable, "purge failed", err)
			}
			fmt.Fprintf(app.Out, "deleted %d cached result(s) from %s\n", n, client.Addr())
			return nil
		},
	})

	return cmd
}
