package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"streamvio/internal/logging"
)

func newRootCommand() *cobra.Command {
	ctx := newCommandContext()
	var verbose bool

	rootCmd := &cobra.Command{
		Use:           "streamvio-ctl",
		Short:         "Inspect and manage a streamvio database",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				logging.SetLevel(logging.LevelDebug)
			}
			switch ctx.output {
			case outputAuto, outputTable, outputJSON:
				return nil
			}
			return fmt.Errorf("unknown output format %q (want auto, table or json)", ctx.output)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			ctx.close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&ctx.databaseDir, "database-dir", "", "Database directory (default $DATABASE_DIR or /database)")
	rootCmd.PersistentFlags().StringVar(&ctx.mediaDir, "media-dir", "", "Media root (default $MEDIA_DIR or /media)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output to stderr")
	rootCmd.PersistentFlags().StringVarP(&ctx.output, "output", "o", outputAuto, "Output format: auto, table or json")

	rootCmd.AddCommand(newJobsCommand(ctx))
	rootCmd.AddCommand(newMediaCommand(ctx))
	rootCmd.AddCommand(newArtifactsCommand(ctx))
	rootCmd.AddCommand(newDBCommand(ctx))
	rootCmd.AddCommand(newVersionCommand(ctx))

	return rootCmd
}
