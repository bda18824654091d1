// Package cmd implements the filterkv command-line tool: a small
// demonstration front end over the filter, codec, and storekv packages,
// built the way cue's own cmd/cue/cmd package composes cobra commands —
// one newXCmd factory per subcommand, wired onto a shared root.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewRootCmd builds the filterkv root command with every subcommand
// registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "filterkv",
		Short:         "parse, bind, and encode query filters over a demo schema",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newParseCmd(),
		newBindCmd(),
		newEncodeKeyCmd(),
		newDecodeKeyCmd(),
		newScanCmd(),
	)
	return root
}

func errf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
