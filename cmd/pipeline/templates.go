package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"resume-pipeline/internal/prompts"
)

func newTemplatesCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "List registered prompt templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			load := prompts.Default
			if dir != "" {
				load = func() (*prompts.Registry, error) { return prompts.LoadDir(dir) }
			}
			reg, err := load()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tVERSION\tPLACEHOLDERS\tDESCRIPTION")
			for _, name := range reg.Names() {
				t, err := reg.Latest(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", t.Name, t.Version, strings.Join(t.Placeholders, ","), t.Description)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "load templates from a directory instead of the embedded set")
	return cmd
}
