package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/butp-hub/destination-predictor/internal/infrastructure/persistence/postgres"
)

func newMigrateCmd(app *App) *cobra.Command {
	var (
		status   bool
		rollback bool
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the run store migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			conn, err := app.connectDatabase(ctx)
			if err != nil {
				return err
			}
			defer conn.Close()

			m := postgres.NewMigrator(conn)
			switch {
			case status:
				migrations, err := m.Status(ctx)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(app.Out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "VERSION\tNAME\tAPPLIED")
				for _, mig := range migrations {
					applied := "pending"
					if mig.IsApplied {
						applied = mig.AppliedAt.Format("2006-01-02 15:04:05")
					}
					fmt.Fprintf(w, "%d\t%s\t%s\n", mig.Version, mig.Name, applied)
				}
				return w.Flush()

			case rollback:
				if err := m.Rollback(ctx); err != nil {
					return err
				}
				fmt.Fprintln(app.Out, "rolled back the newest migration")
				return nil
			}

			n, err := m.Migrate(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(app.Out, "applied %d migration(s)\n", n)
			return nil
		},
	}

	cmd.Flags().BoolVar(&status, "status", false, "List migrations and their state")
	cmd.Flags().BoolVar(&rollback, "rollback", false, "Revert the newest applied migration")
	cmd.MarkFlagsMutuallyExclusive("status", "rollback")

	return cmd
}
