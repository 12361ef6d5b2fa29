package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/emigration-stats/internal/dataset"
	"github.com/sells-group/emigration-stats/internal/store"
)

var importDryRun bool

var importCmd = &cobra.Command{
	Use:   "import <file|url>...",
	Short: "Import CSV, TSV, XLSX, JSON or ZIP files into the record store",
	Long: `Reads every source in parallel and writes the combined rows to the
configured store collection. Nothing is written unless every source parses.

Examples:
  emigration-stats import emigrants_1990.csv emigrants_2000.xlsx
  emigration-stats import --json-path data.rows https://example.org/export.json
  emigration-stats import --dry-run archive.zip`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		records, err := readSources(ctx, args)
		if err != nil {
			return eris.Wrap(err, "import")
		}

		if importDryRun {
			ds := dataset.BuildWith(cfg.Schema, records, nil, nil)
			fmt.Fprintf(out, "parsed %s records, %d columns\n", humanize.Comma(int64(len(records))), len(ds.Schema.Columns))
			for _, col := range ds.Schema.Columns {
				fmt.Fprintf(out, "  %-24s %s\n", col, ds.Schema.Types[col])
			}
			return nil
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := store.ImportAll(ctx, st, cfg.Store.Collection, records)
		if err != nil {
			return eris.Wrap(err, "import: write store")
		}

		zap.L().Info("import complete",
			zap.Int64("records", n),
			zap.Int("sources", len(args)),
			zap.String("collection", cfg.Store.Collection),
		)
		fmt.Fprintf(out, "imported %s records from %s into %q\n",
			humanize.Comma(n), pluralSources(len(args)), cfg.Store.Collection)
		return nil
	},
}

func pluralSources(n int) string {
	if n == 1 {
		return "1 source"
	}
	return fmt.Sprintf("%d sources", n)
}

func init() {
	addSourceFlags(importCmd)
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "parse and print the inferred schema without writing")
	rootCmd.AddCommand(importCmd)
}
