// Command senderd polls configured backup sources and uploads due
// backups to a receiver over mTLS.
package main

import (
	"fmt"
	"os"

	"github.com/haldane-labs/backupd/cmd/senderd/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
