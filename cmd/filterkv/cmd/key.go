package cmd

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/relcore/filterkv/cmd/filterkv/demo"
	"github.com/relcore/filterkv/codec"
)

// newEncodeKeyCmd encodes an Order's primary key (a single uint64 id)
// through codec.EncodeKey and prints the result as hex, demonstrating the
// order-preserving key codec independent of any filter expression.
func newEncodeKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "encode-key <order-id>",
		Short: "encode an Order primary key to its byte-lexical form",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return errf("invalid order id %q: %v", args[0], err)
			}
			enc, err := codec.EncodeKey(demo.OrderSchema(), []interface{}{id})
			if err != nil {
				return err
			}
			fmt.Println(hex.EncodeToString(enc))
			return nil
		},
	}
	return cmd
}

// newDecodeKeyCmd reverses newEncodeKeyCmd.
func newDecodeKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode-key <hex>",
		Short: "decode a hex-encoded Order primary key",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			raw, err := hex.DecodeString(args[0])
			if err != nil {
				return errf("invalid hex %q: %v", args[0], err)
			}
			vals, err := codec.DecodeKey(demo.OrderSchema(), raw)
			if err != nil {
				return err
			}
			fmt.Printf("id = %v\n", vals[0])
			return nil
		},
	}
	return cmd
}
