package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var schemaJSON bool

var schemaCmd = &cobra.Command{
	Use:   "schema [file|url]...",
	Short: "Print the inferred schema of files or of the stored collection",
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, err := loadDataset(cmd.Context(), args)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		if schemaJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return eris.Wrap(enc.Encode(ds.Schema), "schema: encode")
		}

		fmt.Fprintf(out, "source: %s, %s records\n", ds.Source, humanize.Comma(int64(ds.Len())))
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "COLUMN\tTYPE\tDETAIL")
		for _, col := range ds.Schema.Columns {
			t := ds.Schema.Types[col]
			detail := ""
			switch {
			case col == ds.Schema.YearColumn:
				detail = "year column"
			case t.IsDiscrete():
				detail = fmt.Sprintf("%d values", len(ds.UniqueValues(col)))
			case t.IsNumeric():
				r := ds.NumericRange(col)
				detail = fmt.Sprintf("%s .. %s", humanize.Commaf(r.Min), humanize.Commaf(r.Max))
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", col, t, detail)
		}
		return eris.Wrap(tw.Flush(), "schema: flush")
	},
}

func init() {
	addSourceFlags(schemaCmd)
	schemaCmd.Flags().BoolVar(&schemaJSON, "json", false, "print the schema as JSON")
	rootCmd.AddCommand(schemaCmd)
}
