package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/relcore/filterkv/cmd/filterkv/demo"
	"github.com/relcore/filterkv/filter/bind"
	"github.com/relcore/filterkv/filter/parse"
)

// newBindCmd parses a filter expression, assigns bind-ids to every
// placeholder, then fills them in order from the remaining arguments,
// printing the bound filter and how many of its placeholders were
// supplied. The supplied values are not rendered into the printed filter.
func newBindCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bind <type> <expression> [value...]",
		Short: "bind a filter's placeholders to literal values",
		Long: `bind parses a filter expression, numbers its placeholders, and fills them
in declared left-to-right order from the values given after the
expression. Numeric-looking values are parsed as int64; anything else is
kept as a string. It prints the bound filter, with its placeholders
rather than the supplied values, and the count of supplied placeholders.

Example:

  $ filterkv bind Order 'customer = ? & total > ?' acme 1000
  customer = ? & total > ? (2/2 supplied)
`,
		Args: cobra.MinimumNArgs(2),
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

			bound := bind.NewBinder().Bind(f)
			fv := bind.Initial(bound)
			for _, raw := range args[2:] {
				fv, err = fv.With(literalValue(raw))
				if err != nil {
					return err
				}
			}

			fmt.Printf("%s (%d/%d supplied)\n", parse.Print(fv.Filter()), fv.Supplied(), fv.Total())
			return nil
		},
	}
	return cmd
}

// literalValue parses raw as an int64 if it looks like one, else keeps it
// as a plain string; the demo schema's only non-string property values
// are integers.
func literalValue(raw string) interface{} {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	return raw
}
