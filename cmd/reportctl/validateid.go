package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iago/reportflow/internal/domain"
)

func newValidateIDCmd() *cobra.Command {
	var generate int
	cmd := &cobra.Command{
		Use:   "validate-id [id...]",
		Short: "Check identifiers, or generate new ones",
		Long: `Report whether each argument is a well-formed aggregate identifier.
The command fails when any argument is invalid.

Examples:
  reportctl validate-id c0k1v3x9y2m4n5p6q7r8
  reportctl validate-id --generate 3`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for i := 0; i < generate; i++ {
				fmt.Fprintln(out, domain.NewID())
			}
			if generate == 0 && len(args) == 0 {
				return fmt.Errorf("pass at least one id or --generate")
			}

			invalid := 0
			for _, raw := range args {
				if domain.IsValidID(raw) {
					fmt.Fprintf(out, "%s\tvalid\n", raw)
					continue
				}
				invalid++
				fmt.Fprintf(out, "%s\tinvalid\n", raw)
			}
			if invalid > 0 {
				return fmt.Errorf("%d of %d ids are invalid", invalid, len(args))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&generate, "generate", 0, "Print this many freshly generated ids")
	return cmd
}
