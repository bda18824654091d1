// Command filterkv is a small CLI demonstrating the filter, codec, and
// storekv packages: parsing and printing filter expressions, binding
// their placeholders, and encoding/scanning records through the
// order-preserving key/value codec.
package main

import (
	"fmt"
	"os"

	"github.com/relcore/filterkv/cmd/filterkv/cmd"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "filterkv:", err)
		os.Exit(1)
	}
}
