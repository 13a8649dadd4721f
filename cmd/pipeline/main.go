// Command pipeline runs the application pipeline from local files without the HTTP surface.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pipeline",
		Short: "Run the résumé pipeline from the command line",
		Long: `pipeline drives one application through parsing, company research, gap questions,
the value proposition and the tailored artifacts, using in-memory stores.

Gap questions are answered from a YAML file, or interactively when no file is given.`,
		SilenceUsage: true,
	}
	root.AddCommand(newRunCmd(), newTemplatesCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
