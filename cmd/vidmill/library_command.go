package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"vidmill/internal/api"
)

func newLibraryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "library [FOLDER]",
		Short: "Browse the downloads library the daemon reads from",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				out := cmd.OutOrStdout()
				if len(args) == 1 {
					resp, err := client.Folder(cmd.Context(), args[0])
					if err != nil {
						return err
					}
					if ctx.jsonOutput() {
						return writeJSON(cmd, resp)
					}
					if len(resp.Videos) == 0 {
						fmt.Fprintf(out, "Folder %s has no videos\n", resp.Folder)
						return nil
					}
					rows := make([][]string, 0, len(resp.Videos))
					for _, name := range resp.Videos {
						rows = append(rows, []string{name})
					}
					fmt.Fprint(out, renderTable([]string{resp.Folder}, rows, nil))
					return nil
				}

				resp, err := client.Library(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp)
				}
				if len(resp.Folders) == 0 {
					fmt.Fprintf(out, "No folders under %s\n", resp.Root)
					return nil
				}
				rows := make([][]string, 0, len(resp.Folders))
				for _, f := range resp.Folders {
					rows = append(rows, []string{f.Name, strconv.Itoa(f.VideoCount)})
				}
				fmt.Fprint(out, renderTable([]string{"Folder", "Videos"}, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
}
