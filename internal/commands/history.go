package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/banko/internal/core"
)

func newHistoryCommand(opts *rootOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past imports, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := opts.workflow().History(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch format {
			case "table":
				return printHistory(out, records)
			case "csv":
				return core.WriteHistoryCSV(out, records)
			case "json":
				if records == nil {
					records = []core.HistoryRecord{}
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			default:
				return fmt.Errorf("unknown format %q: want table, csv or json", format)
			}
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "table", "output format: table, csv, json")

	return cmd
}

func printHistory(w io.Writer, records []core.HistoryRecord) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "No imports yet.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "AT\tFILE\tIMPORTED")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", r.ImportedAt.Local().Format(time.DateTime), r.Filename, r.ImportedCount)
	}
	return tw.Flush()
}
