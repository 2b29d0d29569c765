package main

import (
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"clipd/internal/jobs"
	"clipd/internal/store"
)

func newJobsCommand(cmdCtx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List recent jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}
			st, err := store.NewSQLiteStore(filepath.Join(cfg.DataDir, "clipd.db"))
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			recent, err := st.ListRecent(limit)
			if err != nil {
				return err
			}
			if len(recent) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no jobs")
				return nil
			}

			headers := []string{"ID", "STATUS", "PROGRESS", "SOURCE", "AGE", "MESSAGE"}
			rows := make([][]string, 0, len(recent))
			for _, job := range recent {
				rows = append(rows, []string{
					shortID(job.ID),
					string(job.Status),
					fmt.Sprintf("%d%%", job.Progress),
					jobSource(job),
					humanize.Time(job.CreatedAt),
					jobDetail(job),
				})
			}
			aligns := []columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignLeft}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(headers, rows, aligns))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of jobs to show")
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func jobSource(job *jobs.Job) string {
	if job.SourceKind == jobs.SourceFile {
		return filepath.Base(job.SourcePath)
	}
	return job.SourceURL
}

func jobDetail(job *jobs.Job) string {
	if job.Status == jobs.StatusFailed && job.Error != "" {
		return job.Error
	}
	return job.Message
}
