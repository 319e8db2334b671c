// Command receiverd runs the mTLS backup ingestion server.
package main

import (
	"fmt"
	"os"

	"github.com/haldane-labs/backupd/cmd/receiverd/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
