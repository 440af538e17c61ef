package main

import (
	"fmt"
	"strings"

	"vidmill/internal/api"
)

func jobListHeaders() []string {
	return []string{"ID", "Label", "Status", "Progress", "Result / Error"}
}

func jobListAligns() []columnAlignment {
	return []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft}
}

func buildJobRows(jobs []api.Job, colorize bool) [][]string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, []string{
			job.ID,
			job.Label,
			paint(job.Status, statusKindColor(jobStatusKind(job.Status, job.Cancelled)), colorize),
			fmt.Sprintf("%d%%", job.Progress),
			jobOutcome(job),
		})
	}
	return rows
}

func jobOutcome(job api.Job) string {
	if job.Error != "" {
		return job.Error
	}
	if job.Result != "" {
		if extra := len(job.Outputs) - 1; extra > 0 {
			return fmt.Sprintf("%s (+%d more)", job.Result, extra)
		}
		return job.Result
	}
	return ""
}

func jobDetails(job api.Job) [][2]string {
	pairs := [][2]string{
		{"ID", job.ID},
		{"Label", job.Label},
		{"Status", job.Status},
		{"Progress", fmt.Sprintf("%d%%", job.Progress)},
		{"Media", job.Media.Label()},
	}
	optional := [][2]string{
		{"Created", job.CreatedAt},
		{"Started", job.StartedAt},
		{"Finished", job.FinishedAt},
		{"Error", job.Error},
		{"Result", job.Result},
	}
	for _, p := range optional {
		if strings.TrimSpace(p[1]) != "" {
			pairs = append(pairs, p)
		}
	}
	if job.DurationSeconds > 0 {
		pairs = append(pairs, [2]string{"Duration", fmt.Sprintf("%.1fs", job.DurationSeconds)})
	}
	if len(job.Outputs) > 1 {
		pairs = append(pairs, [2]string{"Outputs", strings.Join(job.Outputs, "\n")})
	}
	return pairs
}
