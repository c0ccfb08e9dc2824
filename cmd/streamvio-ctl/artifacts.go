package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newArtifactsCommand(ctx *commandContext) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "artifacts <media-id>",
		Short: "List cataloged outputs for a media item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opCtx, cancel := withTimeout(cmd.Context())
			defer cancel()
			db, err := ctx.database(opCtx)
			if err != nil {
				return err
			}
			list, err := db.ListArtifacts(opCtx, args[0], all)
			if err != nil {
				return err
			}

			if ctx.wantJSON(cmd.OutOrStdout()) {
				return writeJSON(cmd, list)
			}
			if len(list) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No artifacts for %s\n", args[0])
				return nil
			}
			rows := make([][]string, 0, len(list))
			for _, a := range list {
				status := "current"
				if a.SupersededAt != nil {
					status = "superseded"
				}
				rows = append(rows, []string{
					strconv.FormatInt(a.ID, 10),
					string(a.FormatType),
					a.Variant,
					formatSize(a.SizeBytes),
					status,
					formatTime(a.CreatedAt),
					a.FilePath,
				})
			}
			printTable(cmd,
				[]string{"ID", "Format", "Variant", "Size", "Status", "Created", "Path"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignLeft})
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Include superseded artifacts")
	return cmd
}
