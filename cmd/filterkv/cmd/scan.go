package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/relcore/filterkv/cmd/filterkv/demo"
	"github.com/relcore/filterkv/codec"
	"github.com/relcore/filterkv/storekv"
)

// newScanCmd seeds the in-memory demo store with a handful of orders and
// scans them through storekv.RawCursor, printing each decoded record in
// key order. It exists to exercise RawCursor end to end; the store it
// scans is a fixture, not anything resembling a real backend.
func newScanCmd() *cobra.Command {
	var reverse bool

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "seed the demo store and scan it with a RawCursor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := context.Background()
			schema := demo.OrderSchema()
			store := demo.NewStore(schema)

			seed := []struct {
				id       uint64
				customer string
				total    int64
				notes    interface{}
			}{
				{1, "acme", 1200, nil},
				{2, "globex", 450, "rush order"},
				{3, "initech", 9000, nil},
			}
			for _, o := range seed {
				key, err := codec.EncodeKey(schema, []interface{}{o.id})
				if err != nil {
					return err
				}
				val, err := codec.EncodeValue(schema, []interface{}{o.customer, o.total, o.notes})
				if err != nil {
					return err
				}
				if err := store.Store(ctx, key, val); err != nil {
					return err
				}
			}

			cur, err := storekv.NewRawCursor(store.NewCursorSupport(), storekv.Bounds{
				InclusiveStart: true,
				InclusiveEnd:   true,
				Reverse:        reverse,
			})
			if err != nil {
				return err
			}
			defer cur.Close()

			for {
				ok, err := cur.HasNext(ctx)
				if err != nil {
					return err
				}
				if !ok {
					break
				}
				rec, err := cur.Next(ctx)
				if err != nil {
					return err
				}
				fields := rec.([]interface{})
				fmt.Fprintf(cmd.OutOrStdout(), "customer=%v total=%v notes=%v\n", fields[0], fields[1], fields[2])
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&reverse, "reverse", false, "scan in descending key order")
	return cmd
}
