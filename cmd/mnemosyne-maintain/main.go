// Package main provides the entry point for mnemosyne-maintain, the
// out-of-band retention and compaction sweep (spec section 4.11).
package main

import (
	"fmt"
	"os"

	"github.com/mnemosyne/brain/cmd/mnemosyne-maintain/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
