// Command ledgersync copies shop orders and payments into the remote ledger.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/ledgersync/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ledgersync:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
