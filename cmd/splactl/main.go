// Command splactl is a small driver over the spla library: it loads a
// Matrix Market graph and runs one of the bundled algo package's analyses
// against it, printing the result to stdout. It exists as a runnable
// demonstration of the public API, not as a production graph-analytics
// tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "splactl: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "splactl",
		Short:         "Run spla graph algorithms over a Matrix Market input",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newBFSCmd())
	root.AddCommand(newTriangleCountCmd())
	root.AddCommand(newLoadCmd())
	root.AddCommand(newDevicesCmd())
	return root
}
