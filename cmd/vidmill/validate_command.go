package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vidmill/internal/api"
	"vidmill/internal/transform"
)

func newValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "validate FILE",
		Short:       "Check a transform spec JSON file without a daemon",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := loadSpecFile(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			verr := spec.Validate()
			fields := transform.Fields(verr)

			if ctx.jsonOutput() {
				payload := map[string]any{"valid": verr == nil, "spec": spec}
				if len(fields) > 0 {
					payload["fields"] = api.FieldErrors(verr)
				}
				if err := writeJSON(cmd, payload); err != nil {
					return err
				}
			} else if verr == nil {
				fmt.Fprintf(out, "%s: valid (%s)\n", args[0], specSummary(spec))
			} else {
				rows := make([][]string, 0, len(fields))
				for _, f := range fields {
					rows = append(rows, []string{f.Field, f.Reason})
				}
				fmt.Fprint(out, renderTable([]string{"Field", "Problem"}, rows, nil))
			}
			if verr != nil {
				return fmt.Errorf("%s: %d invalid fields", args[0], len(fields))
			}
			return nil
		},
	}
}
