package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "reportctl",
		Short:         "Operate a reportflow deployment",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(
		newBenchCmd(),
		newMigrateCmd(),
		newNextRunCmd(),
		newValidateIDCmd(),
	)
	return root
}
