package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"streamvio/internal/database"
	"streamvio/internal/jobs"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect encoder jobs",
	}
	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))
	jobsCmd.AddCommand(newJobsSummaryCommand(ctx))
	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var filter database.JobFilter

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent jobs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if filter.Kind != "" && !jobs.Kind(filter.Kind).Valid() {
				return fmt.Errorf("unknown job kind %q", filter.Kind)
			}
			if filter.State != "" && !validState(jobs.State(filter.State)) {
				return fmt.Errorf("unknown job state %q", filter.State)
			}

			opCtx, cancel := withTimeout(cmd.Context())
			defer cancel()
			db, err := ctx.database(opCtx)
			if err != nil {
				return err
			}
			list, err := db.ListJobs(opCtx, filter)
			if err != nil {
				return err
			}

			if ctx.wantJSON(cmd.OutOrStdout()) {
				return writeJSON(cmd, list)
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No jobs found")
				return nil
			}
			rows := make([][]string, 0, len(list))
			for _, j := range list {
				rows = append(rows, []string{
					j.ID,
					j.MediaID,
					string(j.Kind),
					string(j.State),
					formatProgress(j.Progress),
					formatTime(j.CreatedAt),
					truncate(j.Error, 48),
				})
			}
			printTable(cmd,
				[]string{"ID", "Media", "Kind", "State", "Progress", "Created", "Error"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft})
			return nil
		},
	}

	cmd.Flags().StringVar(&filter.MediaID, "media", "", "Only jobs for this media id")
	cmd.Flags().StringVar(&filter.Kind, "kind", "", "Only jobs of this kind (transcode, hls, thumbnail, storyboard)")
	cmd.Flags().StringVar(&filter.State, "state", "", "Only jobs in this state")
	cmd.Flags().IntVar(&filter.Limit, "limit", 50, "Maximum number of jobs")
	return cmd
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one job in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opCtx, cancel := withTimeout(cmd.Context())
			defer cancel()
			db, err := ctx.database(opCtx)
			if err != nil {
				return err
			}
			job, err := db.GetJob(opCtx, args[0])
			if errors.Is(err, database.ErrNotFound) {
				return fmt.Errorf("job %s not found", args[0])
			}
			if err != nil {
				return err
			}

			if ctx.wantJSON(cmd.OutOrStdout()) {
				return writeJSON(cmd, job)
			}
			rows := [][]string{
				{"ID", job.ID},
				{"Media", job.MediaID},
				{"Kind", string(job.Kind)},
				{"State", string(job.State)},
				{"Progress", formatProgress(job.Progress)},
				{"Input", job.InputPath},
				{"Output", job.OutputPath},
				{"Created", formatTime(job.CreatedAt)},
				{"Started", formatTimePtr(job.StartedAt)},
				{"Completed", formatTimePtr(job.CompletedAt)},
			}
			if job.ErrorCode != "" {
				rows = append(rows, []string{"Error code", string(job.ErrorCode)})
			}
			if job.Error != "" {
				rows = append(rows, []string{"Error", job.Error})
			}
			if job.Notes != "" {
				rows = append(rows, []string{"Notes", job.Notes})
			}
			printTable(cmd, []string{"Field", "Value"}, rows, nil)
			return nil
		},
	}
}

func newJobsSummaryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Count jobs by state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opCtx, cancel := withTimeout(cmd.Context())
			defer cancel()
			db, err := ctx.database(opCtx)
			if err != nil {
				return err
			}
			counts, err := db.CountJobsByState(opCtx)
			if err != nil {
				return err
			}

			if ctx.wantJSON(cmd.OutOrStdout()) {
				return writeJSON(cmd, counts)
			}
			rows := make([][]string, 0, len(allStates))
			for _, s := range allStates {
				rows = append(rows, []string{string(s), strconv.Itoa(counts[s])})
			}
			printTable(cmd, []string{"State", "Jobs"}, rows, []columnAlignment{alignLeft, alignRight})
			return nil
		},
	}
}

var allStates = []jobs.State{
	jobs.StatePending,
	jobs.StateProcessing,
	jobs.StateCompleted,
	jobs.StateFailed,
	jobs.StateCancelled,
}

func validState(s jobs.State) bool {
	for _, known := range allStates {
		if s == known {
			return true
		}
	}
	return false
}

func formatProgress(p float64) string {
	if p < 0 {
		return "-"
	}
	return strconv.FormatFloat(p, 'f', 0, 64) + "%"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return formatTime(*t)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
