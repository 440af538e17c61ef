package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vidmill/internal/api"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and manage queued jobs",
	}

	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))
	jobsCmd.AddCommand(newJobsCancelCommand(ctx))
	jobsCmd.AddCommand(newJobsCancelPendingCommand(ctx))
	jobsCmd.AddCommand(newJobsPurgeCommand(ctx))
	jobsCmd.AddCommand(newJobsHistoryCommand(ctx))

	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs in the live queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.Jobs(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				return printJobs(cmd, ctx, resp, "Queue is empty")
			})
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Filter by status (pending, processing, completed, failed)")
	return cmd
}

func newJobsHistoryCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List jobs from the persistent journal, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.History(cmd.Context(), limit, statuses...)
				if err != nil {
					return err
				}
				return printJobs(cmd, ctx, resp, "Journal is empty")
			})
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Filter by status")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of jobs to show (0 for all)")
	return cmd
}

func printJobs(cmd *cobra.Command, ctx *commandContext, resp api.JobListResponse, empty string) error {
	if ctx.jsonOutput() {
		return writeJSON(cmd, resp)
	}
	out := cmd.OutOrStdout()
	if len(resp.Jobs) == 0 {
		fmt.Fprintln(out, empty)
		return nil
	}
	fmt.Fprint(out, renderTable(jobListHeaders(), buildJobRows(resp.Jobs, shouldColorize(out)), jobListAligns()))
	return nil
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show one job from the queue or journal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				job, err := client.Job(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, job)
				}
				fmt.Fprint(cmd.OutOrStdout(), renderDetails(jobDetails(job)))
				return nil
			})
		},
	}
}

func newJobsCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel ID",
		Short: "Cancel the processing job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				if err := client.Cancel(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cancelled job %s\n", args[0])
				return nil
			})
		},
	}
}

func newJobsCancelPendingCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel-pending",
		Short: "Fail every job that has not started yet",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				count, err := client.CancelPending(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cancelled %d pending jobs\n", count)
				return nil
			})
		},
	}
}

func newJobsPurgeCommand(ctx *commandContext) *cobra.Command {
	var history bool

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove completed and failed jobs from the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.PurgeTerminal(cmd.Context(), history)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Purged %d finished jobs\n", resp.Count)
				if history {
					fmt.Fprintf(out, "Purged %d journal rows\n", resp.Journal)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&history, "history", false, "Also delete finished jobs from the journal")
	return cmd
}
