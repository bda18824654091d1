package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/relcore/filterkv/cmd/filterkv/demo"
	"github.com/relcore/filterkv/filter/normal"
	"github.com/relcore/filterkv/filter/parse"
)

// newParseCmd parses a filter expression over one of the demo schema's
// record types and prints its canonical form, optionally normalizing it
// first.
func newParseCmd() *cobra.Command {
	var cnf, dnf, reduce bool

	cmd := &cobra.Command{
		Use:   "parse <type> <expression>",
		Short: "parse a filter expression and print its canonical form",
		Long: `parse parses a filter expression over Order or LineItem and prints it back
in canonical textual form.

Examples:

  $ filterkv parse Order 'customer = ? & total > ?'
  customer = ? & total > ?

  $ filterkv parse Order 'customer = ? | customer = ?' --reduce
  customer = ?
  (absorptions applied: 0)
`,
		Args: cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			typ, ok := demo.LookupType(args[0])
			if !ok {
				return errf("unknown record type %q", args[0])
			}
			reg := demo.NewRegistry()
			f, err := parse.Parse("", args[1], typ, reg)
			if err != nil {
				return err
			}

			switch {
			case cnf:
				var stats normal.Stats
				f, stats = normal.CNF(f)
				fmt.Printf("%s\n(distributions: %d, absorptions applied: %d)\n", parse.Print(f), stats.Distributions, stats.AbsorptionsApplied)
			case dnf:
				var stats normal.Stats
				f, stats = normal.DNF(f)
				fmt.Printf("%s\n(distributions: %d, absorptions applied: %d)\n", parse.Print(f), stats.Distributions, stats.AbsorptionsApplied)
			case reduce:
				var stats normal.Stats
				f, stats = normal.Reduce(f)
				fmt.Printf("%s\n(absorptions applied: %d)\n", parse.Print(f), stats.AbsorptionsApplied)
			default:
				fmt.Println(parse.Print(f))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&cnf, "cnf", false, "convert to conjunctive normal form before printing")
	cmd.Flags().BoolVar(&dnf, "dnf", false, "convert to disjunctive normal form before printing")
	cmd.Flags().BoolVar(&reduce, "reduce", false, "apply idempotence/absorption reduction before printing")
	return cmd
}
