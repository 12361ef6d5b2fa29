// Package forecast prepares model inputs from a year series and projects the
// series forward with a least-squares linear trend.
package forecast

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/emigration-stats/internal/dataset"
)

// ErrInsufficientData is returned when a series is too short to fit.
var ErrInsufficientData = eris.New("forecast: not enough points")

// Metric selects which aggregate of a YearPoint is forecast.
type Metric string

// Metrics.
const (
	MetricSum  Metric = "sum"
	MetricMean Metric = "mean"
)

// Value extracts the metric from p.
func (m Metric) Value(p dataset.YearPoint) float64 {
	if m == MetricMean {
		return p.Mean()
	}
	return p.Sum
}

// Scaler maps values into [0, 1] with min-max scaling.
type Scaler struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// FitScaler returns the scaler spanning values.
func FitScaler(values []float64) Scaler {
	if len(values) == 0 {
		return Scaler{}
	}
	s := Scaler{Min: values[0], Max: values[0]}
	for _, v := range values[1:] {
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
	}
	return s
}

// Transform scales v. A degenerate scaler maps everything to 0.
func (s Scaler) Transform(v float64) float64 {
	if s.Max == s.Min {
		return 0
	}
	return (v - s.Min) / (s.Max - s.Min)
}

// Inverse undoes Transform.
func (s Scaler) Inverse(v float64) float64 {
	return s.Min + v*(s.Max-s.Min)
}

// Sample is one supervised training row: the scaled values of the previous
// Lags years and the scaled value of Year.
type Sample struct {
	Year   int       `json:"year"`
	Lags   []float64 `json:"lags"`
	Target float64   `json:"target"`
}

// Features is the model input derived from a series.
type Features struct {
	Metric  Metric   `json:"metric"`
	Window  int      `json:"window"`
	Scaler  Scaler   `json:"scaler"`
	Samples []Sample `json:"samples"`
}

// BuildFeatures scales the series and emits one sample per point that has
// window predecessors. Points must be in ascending year order, as returned by
// Dataset.YearSeries; gaps between years are not filled.
func BuildFeatures(points []dataset.YearPoint, metric Metric, window int) (Features, error) {
	if window < 1 {
		return Features{}, eris.Errorf("forecast: window must be positive, got %d", window)
	}
	if len(points) <= window {
		return Features{}, eris.Wrapf(ErrInsufficientData, "forecast: need more than %d points, have %d", window, len(points))
	}

	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = metric.Value(p)
	}
	sc := FitScaler(values)
	scaled := make([]float64, len(values))
	for i, v := range values {
		scaled[i] = sc.Transform(v)
	}

	out := Features{Metric: metric, Window: window, Scaler: sc}
	for i := window; i < len(points); i++ {
		lags := make([]float64, window)
		copy(lags, scaled[i-window:i])
		out.Samples = append(out.Samples, Sample{Year: points[i].Year, Lags: lags, Target: scaled[i]})
	}
	return out, nil
}

// Trend is a fitted line value = Slope*year + Intercept.
type Trend struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
	R2        float64 `json:"r2"`
}

// At evaluates the trend for year.
func (t Trend) At(year int) float64 {
	return t.Slope*float64(year) + t.Intercept
}

// FitTrend fits an ordinary least-squares line through (year, value).
func FitTrend(years []int, values []float64) (Trend, error) {
	if len(years) != len(values) {
		return Trend{}, eris.Errorf("forecast: %d years for %d values", len(years), len(values))
	}
	n := float64(len(years))
	if len(years) < 2 {
		return Trend{}, eris.Wrapf(ErrInsufficientData, "forecast: need 2 points, have %d", len(years))
	}

	var sx, sy float64
	for i := range years {
		sx += float64(years[i])
		sy += values[i]
	}
	mx, my := sx/n, sy/n

	var sxx, sxy, syy float64
	for i := range years {
		dx := float64(years[i]) - mx
		dy := values[i] - my
		sxx += dx * dx
		sxy += dx * dy
		syy += dy * dy
	}
	if sxx == 0 {
		return Trend{}, eris.New("forecast: all points share one year")
	}

	t := Trend{Slope: sxy / sxx}
	t.Intercept = my - t.Slope*mx
	if syy == 0 {
		t.R2 = 1
	} else {
		t.R2 = (sxy * sxy) / (sxx * syy)
	}
	return t, nil
}

// Point is one value of a forecast result.
type Point struct {
	Year      int     `json:"year"`
	Value     float64 `json:"value"`
	Projected bool    `json:"projected"`
}

// Result is the observed series followed by its projection.
type Result struct {
	Metric Metric  `json:"metric"`
	Trend  Trend   `json:"trend"`
	Points []Point `json:"points"`
}

// MaxHorizon is the furthest Project will extend a series.
const MaxHorizon = 100

// Project fits a trend to the series and extends it horizon years past the
// last observed year. Projected values are floored at zero since the series
// are counts.
func Project(points []dataset.YearPoint, metric Metric, horizon int) (Result, error) {
	if horizon < 0 || horizon > MaxHorizon {
		return Result{}, eris.Errorf("forecast: horizon must be between 0 and %d, got %d", MaxHorizon, horizon)
	}
	years := make([]int, len(points))
	values := make([]float64, len(points))
	for i, p := range points {
		years[i] = p.Year
		values[i] = metric.Value(p)
	}
	trend, err := FitTrend(years, values)
	if err != nil {
		return Result{}, err
	}

	res := Result{Metric: metric, Trend: trend, Points: make([]Point, 0, len(points)+horizon)}
	for i := range points {
		res.Points = append(res.Points, Point{Year: years[i], Value: values[i]})
	}
	last := years[len(years)-1]
	for h := 1; h <= horizon; h++ {
		y := last + h
		res.Points = append(res.Points, Point{Year: y, Value: math.Max(0, trend.At(y)), Projected: true})
	}
	return res, nil
}
