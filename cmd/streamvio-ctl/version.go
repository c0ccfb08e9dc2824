package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"streamvio/internal/database"
	"streamvio/internal/startup"
)

type versionInfo struct {
	startup.BuildInfo
	ServerVersion   string `json:"serverVersion,omitempty"`
	ServerStartedAt string `json:"serverStartedAt,omitempty"`
}

func newVersionCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information and the server build that last opened the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := versionInfo{BuildInfo: startup.GetBuildInfo()}

			// the database is optional here
			opCtx, cancel := withTimeout(cmd.Context())
			defer cancel()
			if db, err := ctx.database(opCtx); err == nil {
				info.ServerVersion, _ = db.GetMetadata(opCtx, database.MetaServerVersion)
				info.ServerStartedAt, _ = db.GetMetadata(opCtx, database.MetaServerStartedAt)
			}

			if ctx.output == outputJSON {
				return writeJSON(cmd, info)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "streamvio-ctl %s (commit %s, built %s, %s)\n",
				info.Version, info.Commit, info.BuildTime, info.GoVersion)
			if info.ServerVersion != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "server %s last started %s\n", info.ServerVersion, info.ServerStartedAt)
			}
			return nil
		},
	}
}
