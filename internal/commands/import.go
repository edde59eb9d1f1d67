package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/banko/internal/core"
)

func newImportCommand(opts *rootOptions) *cobra.Command {
	var mappings []string

	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import the transactions of a CSV file",
		Long: `Import the transactions of a CSV file.

Each --map flag selects one column for a transaction field. A field may be
mapped to several columns; their order is the order of the flags.

  banko import jan.csv --map date=Date --map name=Payee --map name=Memo \
    --map category=Category --map amount=Amount`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pairs, err := parseMappings(mappings)
			if err != nil {
				return err
			}
			file, err := readFile(args[0])
			if err != nil {
				return err
			}

			wf := opts.workflow()
			if _, err := wf.SelectFile(cmd.Context(), file); err != nil {
				return err
			}
			for _, p := range pairs {
				if _, err := wf.ToggleMappingColumn(p.field, p.column); err != nil {
					if errors.Is(err, core.ErrUnknownColumn) {
						return fmt.Errorf("column %q is not in %s (columns: %s)", p.column, file.Name, strings.Join(wf.Snapshot().Headers, ", "))
					}
					return err
				}
			}

			res, err := wf.Submit(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d transactions from %s\n", res.ImportedCount, file.Name)
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&mappings, "map", "m", nil, "field=Column mapping, repeatable (fields: date, name, category, amount)")

	return cmd
}

type mappingPair struct {
	field  core.LogicalField
	column string
}

// parseMappings parses field=Column flags. Columns may contain '='.
func parseMappings(values []string) ([]mappingPair, error) {
	pairs := make([]mappingPair, 0, len(values))
	for _, v := range values {
		name, column, ok := strings.Cut(v, "=")
		if !ok || column == "" {
			return nil, fmt.Errorf("invalid --map %q: want field=Column", v)
		}
		field, err := core.ParseField(name)
		if err != nil {
			return nil, fmt.Errorf("invalid --map %q: %w", v, err)
		}
		pairs = append(pairs, mappingPair{field: field, column: column})
	}
	return pairs, nil
}
