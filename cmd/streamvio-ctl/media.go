package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"streamvio/internal/database"
	"streamvio/internal/encoder"
	"streamvio/internal/library"
)

func newMediaCommand(ctx *commandContext) *cobra.Command {
	mediaCmd := &cobra.Command{
		Use:   "media",
		Short: "Manage registered media",
	}
	mediaCmd.AddCommand(newMediaListCommand(ctx))
	mediaCmd.AddCommand(newMediaAddCommand(ctx))
	mediaCmd.AddCommand(newMediaProbeCommand(ctx))
	mediaCmd.AddCommand(newMediaEventsCommand(ctx))
	return mediaCmd
}

// newProbeInvoker builds an encoder honoring FFPROBE_PATH like the server does.
func newProbeInvoker() *encoder.Invoker {
	cfg := encoder.DefaultConfig()
	if p := os.Getenv("FFPROBE_PATH"); p != "" {
		cfg.FFprobePath = p
	}
	return encoder.New(cfg)
}

func newMediaListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered media",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opCtx, cancel := withTimeout(cmd.Context())
			defer cancel()
			db, err := ctx.database(opCtx)
			if err != nil {
				return err
			}
			items, err := db.ListMedia(opCtx)
			if err != nil {
				return err
			}

			if ctx.wantJSON(cmd.OutOrStdout()) {
				return writeJSON(cmd, items)
			}
			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No media registered")
				return nil
			}
			rows := make([][]string, 0, len(items))
			for _, m := range items {
				rows = append(rows, []string{m.ID, string(m.Type), formatDuration(m.Duration), formatSize(m.Size), m.Path})
			}
			printTable(cmd,
				[]string{"ID", "Type", "Duration", "Size", "Path"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft})
			return nil
		},
	}
}

func newMediaAddCommand(ctx *commandContext) *cobra.Command {
	var id string
	var noProbe bool

	cmd := &cobra.Command{
		Use:   "add <path>",
		Short: "Register a file below the media root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opCtx, cancel := withTimeout(cmd.Context())
			defer cancel()
			db, err := ctx.database(opCtx)
			if err != nil {
				return err
			}

			var prober library.Prober
			if !noProbe {
				prober = newProbeInvoker()
			}
			item, err := library.New(db, ctx.mediaRoot(), prober).Register(opCtx, id, args[0])
			if err != nil {
				return err
			}

			if ctx.wantJSON(cmd.OutOrStdout()) {
				return writeJSON(cmd, item)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s (%s, %s) at %s\n",
				item.ID, item.Type, formatDuration(item.Duration), item.Path)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Media id (generated when empty)")
	cmd.Flags().BoolVar(&noProbe, "no-probe", false, "Skip ffprobe; the duration stays unknown")
	return cmd
}

func newMediaProbeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "probe <media-id|path>",
		Short: "Run ffprobe against a registered item or a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opCtx, cancel := withTimeout(cmd.Context())
			defer cancel()

			path := args[0]
			if _, statErr := os.Stat(path); statErr != nil {
				db, err := ctx.database(opCtx)
				if err != nil {
					return err
				}
				item, err := db.GetMedia(opCtx, args[0])
				if errors.Is(err, database.ErrNotFound) {
					return fmt.Errorf("%s is neither a file nor a registered media id", args[0])
				}
				if err != nil {
					return err
				}
				path = item.Path
			}

			result, err := newProbeInvoker().Probe(opCtx, path)
			if err != nil {
				return err
			}

			if ctx.wantJSON(cmd.OutOrStdout()) {
				return writeJSON(cmd, result)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s, %s\n", path, result.Container, formatDuration(result.Duration))
			rows := make([][]string, 0, len(result.Streams))
			for _, s := range result.Streams {
				dims := "-"
				if s.Width != nil && s.Height != nil {
					dims = strconv.Itoa(*s.Width) + "x" + strconv.Itoa(*s.Height)
				}
				rows = append(rows, []string{strconv.Itoa(s.Index), s.Type, s.Codec, dims, formatBitrate(s.Bitrate)})
			}
			printTable(cmd,
				[]string{"#", "Type", "Codec", "Size", "Bitrate"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight})
			return nil
		},
	}
}

func newMediaEventsCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "events <media-id>",
		Short: "List recent stream starts for a media item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opCtx, cancel := withTimeout(cmd.Context())
			defer cancel()
			db, err := ctx.database(opCtx)
			if err != nil {
				return err
			}
			events, err := db.ListWatchEvents(opCtx, args[0], limit)
			if err != nil {
				return err
			}

			if ctx.wantJSON(cmd.OutOrStdout()) {
				return writeJSON(cmd, events)
			}
			if len(events) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No stream starts recorded for %s\n", args[0])
				return nil
			}
			rows := make([][]string, 0, len(events))
			for _, e := range events {
				rows = append(rows, []string{formatTime(e.CreatedAt), e.UserID, e.Mode})
			}
			printTable(cmd, []string{"Started", "User", "Mode"}, rows, nil)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of events")
	return cmd
}

func formatDuration(d *float64) string {
	if d == nil {
		return "unknown duration"
	}
	total := int(*d)
	return fmt.Sprintf("%d:%02d:%02d", total/3600, total/60%60, total%60)
}

func formatBitrate(b *int64) string {
	if b == nil {
		return "-"
	}
	return strconv.FormatInt(*b/1000, 10) + " kb/s"
}

func formatSize(b int64) string {
	const unit = 1024
	if b < unit {
		return strconv.FormatInt(b, 10) + " B"
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return strconv.FormatFloat(float64(b)/float64(div), 'f', 1, 64) + " " + string("KMGTPE"[exp]) + "iB"
}
