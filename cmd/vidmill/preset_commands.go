package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"vidmill/internal/api"
	"vidmill/internal/store"
)

func newPresetCommand(ctx *commandContext) *cobra.Command {
	presetCmd := &cobra.Command{
		Use:   "preset",
		Short: "Manage saved transform presets",
	}

	presetCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List saved presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.Presets(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if len(resp.Presets) == 0 {
					fmt.Fprintln(out, "No presets saved")
					return nil
				}
				fmt.Fprint(out, renderTable([]string{"Name", "Updated", "Summary"}, buildPresetRows(resp.Presets), nil))
				return nil
			})
		},
	})

	presetCmd.AddCommand(&cobra.Command{
		Use:   "show NAME",
		Short: "Print a preset's spec as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				preset, err := client.Preset(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd, preset.Spec)
			})
		},
	})

	presetCmd.AddCommand(&cobra.Command{
		Use:   "save NAME FILE",
		Short: "Create or replace a preset from a spec JSON file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := loadSpecFile(args[1])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *api.Client) error {
				preset, err := client.SavePreset(cmd.Context(), args[0], spec)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved preset %q\n", preset.Name)
				return nil
			})
		},
	})

	presetCmd.AddCommand(&cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a preset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				if err := client.DeletePreset(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted preset %q\n", args[0])
				return nil
			})
		},
	})

	return presetCmd
}

func buildPresetRows(presets []store.Preset) [][]string {
	rows := make([][]string, 0, len(presets))
	for _, p := range presets {
		rows = append(rows, []string{p.Name, p.UpdatedAt.Local().Format(time.DateTime), specSummary(p.Spec)})
	}
	return rows
}
