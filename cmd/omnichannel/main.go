// Command omnichannel runs the store-opening pipeline: cleaning, geo
// enrichment, treatment assignment, quarterly aggregation, control matching
// and the preparation of the causal-analysis tables.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "omnichannel:", err)
		os.Exit(exitCode(err))
	}
}
