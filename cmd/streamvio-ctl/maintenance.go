package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

const vacuumTimeout = 10 * time.Minute

func newDBCommand(ctx *commandContext) *cobra.Command {
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Database maintenance",
	}
	dbCmd.AddCommand(&cobra.Command{
		Use:   "vacuum",
		Short: "Rebuild the database file to reclaim space",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opCtx, cancel := context.WithTimeout(cmd.Context(), vacuumTimeout)
			defer cancel()
			db, err := ctx.database(opCtx)
			if err != nil {
				return err
			}
			start := time.Now()
			if err := db.Vacuum(opCtx); err != nil {
				return fmt.Errorf("vacuum: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Vacuumed %s in %s\n", ctx.databasePath(), time.Since(start).Round(time.Millisecond))
			return nil
		},
	})
	return dbCmd
}
