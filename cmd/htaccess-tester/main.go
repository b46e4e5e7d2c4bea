// Command htaccess-tester is the reference host for the rewrite core: it
// can evaluate a single URL against a rules file from the command line, or
// serve the same evaluation over HTTP.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "htaccess-tester",
		Short: "Evaluate Apache-style rewrite rules without a web server",
	}

	root.AddCommand(newEvalCmd())
	root.AddCommand(newServeCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
