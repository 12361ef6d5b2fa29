package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/emigration-stats/internal/export"
	"github.com/sells-group/emigration-stats/internal/forecast"
)

var (
	seriesValue   string
	seriesCSV     bool
	seriesHorizon int
	seriesMetric  string
)

var seriesCmd = &cobra.Command{
	Use:   "series [file|url]...",
	Short: "Aggregate a column per year and optionally project it forward",
	Long: `Prints the per-year sum, count and mean of --value, which may be a dotted
path into the status counts ("status.married"). With --forecast N the series
is extended N years along its least-squares trend.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if seriesValue == "" {
			return eris.New("series: --value is required")
		}
		ds, err := loadDataset(cmd.Context(), args)
		if err != nil {
			return err
		}
		if ds.Schema.YearColumn == "" {
			return eris.New("series: dataset has no year column")
		}
		if _, ok := ds.TypeOf(seriesValue); !ok {
			return eris.Errorf("series: unknown column %q", seriesValue)
		}

		points := ds.YearSeries(seriesValue)
		out := cmd.OutOrStdout()
		if seriesCSV {
			return export.WriteSeriesCSV(out, points)
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(tw, "YEAR\tSUM\tCOUNT\tMEAN\t")
		for _, p := range points {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t\n", p.Year,
				humanize.Commaf(p.Sum), humanize.Comma(int64(p.Count)), humanize.FormatFloat("#,###.##", p.Mean()))
		}

		if seriesHorizon > 0 {
			metric := forecast.Metric(seriesMetric)
			if metric != forecast.MetricSum && metric != forecast.MetricMean {
				return eris.Errorf("series: unknown metric %q", seriesMetric)
			}
			res, err := forecast.Project(points, metric, seriesHorizon)
			if err != nil {
				return err
			}
			fmt.Fprintf(tw, "\t\t\t\t\n")
			fmt.Fprintf(tw, "FORECAST\t%s\tR2 %.3f\t\t\n", seriesMetric, res.Trend.R2)
			for _, p := range res.Points {
				if p.Projected {
					fmt.Fprintf(tw, "%d\t%s\t\t\t\n", p.Year, humanize.FormatFloat("#,###.##", p.Value))
				}
			}
		}
		return eris.Wrap(tw.Flush(), "series: flush")
	},
}

func init() {
	addSourceFlags(seriesCmd)
	seriesCmd.Flags().StringVar(&seriesValue, "value", "", "column or dotted path to aggregate (required)")
	seriesCmd.Flags().BoolVar(&seriesCSV, "csv", false, "print the series as CSV")
	seriesCmd.Flags().IntVar(&seriesHorizon, "forecast", 0, "years to project past the last observed year")
	seriesCmd.Flags().StringVar(&seriesMetric, "metric", "sum", "forecast metric: sum or mean")
	rootCmd.AddCommand(seriesCmd)
}
