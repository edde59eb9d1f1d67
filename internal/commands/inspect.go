package commands

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/banko/internal/core"
)

func newInspectCommand(opts *rootOptions) *cobra.Command {
	var rows int

	cmd := &cobra.Command{
		Use:   "inspect FILE",
		Short: "Show the columns the finance API finds in a CSV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := readFile(args[0])
			if err != nil {
				return err
			}

			snap, err := opts.workflow().SelectFile(cmd.Context(), file)
			if err != nil {
				return err
			}
			return printInspection(cmd.OutOrStdout(), snap, rows)
		},
	}

	cmd.Flags().IntVar(&rows, "rows", 3, "number of sample values shown per column")

	return cmd
}

func printInspection(w io.Writer, snap core.Snapshot, rows int) error {
	fmt.Fprintf(w, "%s: %d columns\n\n", snap.Filename, len(snap.Headers))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COLUMN\tKIND\tSAMPLES")
	for _, h := range snap.Headers {
		samples := snap.Samples[h]
		if rows >= 0 && len(samples) > rows {
			samples = samples[:rows]
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", h, snap.Kinds[h], strings.Join(samples, " | "))
	}
	return tw.Flush()
}
