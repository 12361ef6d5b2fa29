package main

import (
	"bufio"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/emigration-stats/internal/export"
)

var (
	exportFormat string
	exportOut    string
)

var exportCmd = &cobra.Command{
	Use:   "export [file|url]...",
	Short: "Export the dataset as CSV, XLSX or JSON",
	Long: `Exports the stored collection, or the given sources, with nested status
counts flattened into dotted columns ("status.single").`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := export.ParseFormat(exportFormat)
		if err != nil {
			return err
		}
		ds, err := loadDataset(cmd.Context(), args)
		if err != nil {
			return err
		}

		if exportOut != "" && exportOut != "-" {
			f, err := os.Create(exportOut)
			if err != nil {
				return eris.Wrapf(err, "export: create %s", exportOut)
			}
			defer f.Close() //nolint:errcheck
			bw := bufio.NewWriter(f)
			if err := export.Write(bw, ds, format); err != nil {
				return err
			}
			if err := bw.Flush(); err != nil {
				return eris.Wrapf(err, "export: flush %s", exportOut)
			}
			zap.L().Info("export complete",
				zap.String("path", exportOut),
				zap.String("format", string(format)),
				zap.Int("records", ds.Len()),
			)
			return nil
		}
		if format == export.FormatXLSX {
			return eris.New("export: xlsx needs --out")
		}
		return export.Write(cmd.OutOrStdout(), ds, format)
	},
}

func init() {
	addSourceFlags(exportCmd)
	exportCmd.Flags().StringVar(&exportFormat, "format", "csv", "output format: csv, xlsx or json")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", `output path ("-" or empty for stdout)`)
	rootCmd.AddCommand(exportCmd)
}
