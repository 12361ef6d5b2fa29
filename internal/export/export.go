// Package export writes a dataset as CSV, XLSX or JSON. Nested records are
// flattened into dotted columns placed where their parent column sits in the
// schema.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"sort"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/emigration-stats/internal/dataset"
	"github.com/sells-group/emigration-stats/internal/model"
)

// Format is an export file type.
type Format string

// Supported export formats.
const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatJSON Format = "json"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatCSV, FormatXLSX, FormatJSON:
		return f, nil
	default:
		return "", eris.Errorf("export: unsupported format %q", s)
	}
}

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	switch f {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatJSON:
		return "application/json"
	default:
		return "text/csv; charset=utf-8"
	}
}

// Write encodes ds in format f.
func Write(w io.Writer, ds *dataset.Dataset, f Format) error {
	switch f {
	case FormatCSV:
		return WriteCSV(w, ds)
	case FormatXLSX:
		return WriteXLSX(w, ds)
	case FormatJSON:
		return WriteJSON(w, ds)
	default:
		return eris.Errorf("export: unsupported format %q", f)
	}
}

// Columns returns the export header: schema columns in order, with each
// nested column replaced by its sorted dotted leaf paths.
func Columns(ds *dataset.Dataset) []string {
	var out []string
	for _, col := range ds.Schema.Columns {
		if ds.Schema.Types[col] != model.TypeNested {
			out = append(out, col)
			continue
		}
		seen := map[string]bool{}
		var leaves []string
		for _, r := range ds.Records {
			nested := r[col].Record()
			for path := range nested.Flatten() {
				key := col + "." + path
				if !seen[key] {
					seen[key] = true
					leaves = append(leaves, key)
				}
			}
		}
		sort.Strings(leaves)
		out = append(out, leaves...)
	}
	return out
}

// cells returns the flattened values of every record under header.
func cells(ds *dataset.Dataset, header []string) [][]model.Value {
	rows := make([][]model.Value, len(ds.Records))
	for i, r := range ds.Records {
		row := make([]model.Value, len(header))
		for j, col := range header {
			if v, ok := r.Lookup(col); ok {
				row[j] = v
			}
		}
		rows[i] = row
	}
	return rows
}

// WriteCSV writes a header row followed by one row per record.
func WriteCSV(w io.Writer, ds *dataset.Dataset) error {
	header := Columns(ds)
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}
	for _, row := range cells(ds, header) {
		rec := make([]string, len(row))
		for i, v := range row {
			rec[i] = v.String()
		}
		if err := cw.Write(rec); err != nil {
			return eris.Wrap(err, "export: write csv row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}

// WriteXLSX writes a single-sheet workbook. Numbers are stored as numeric
// cells.
func WriteXLSX(w io.Writer, ds *dataset.Dataset) error {
	header := Columns(ds)
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Data")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	hr := sheet.AddRow()
	for _, h := range header {
		hr.AddCell().SetString(h)
	}
	for _, row := range cells(ds, header) {
		xr := sheet.AddRow()
		for _, v := range row {
			cell := xr.AddCell()
			switch v.Kind() {
			case model.KindNumber:
				n, _ := v.Float()
				cell.SetFloat(n)
			case model.KindBool:
				cell.SetBool(v.String() == "true")
			default:
				cell.SetString(v.String())
			}
		}
	}
	return eris.Wrap(f.Write(w), "export: write xlsx")
}

// WriteJSON writes an array of flat objects keyed by the export columns.
// Missing fields are omitted.
func WriteJSON(w io.Writer, ds *dataset.Dataset) error {
	header := Columns(ds)
	out := make([]map[string]model.Value, 0, len(ds.Records))
	for _, row := range cells(ds, header) {
		obj := make(map[string]model.Value, len(header))
		for i, v := range row {
			if v.IsNull() {
				continue
			}
			obj[header[i]] = v
		}
		out = append(out, obj)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(out), "export: write json")
}

// WriteSeriesCSV writes a year series with one row per year.
func WriteSeriesCSV(w io.Writer, points []dataset.YearPoint) error {
	if points == nil {
		points = []dataset.YearPoint{}
	}
	b, err := csvutil.Marshal(points)
	if err != nil {
		return eris.Wrap(err, "export: marshal series")
	}
	_, err = w.Write(b)
	return eris.Wrap(err, "export: write series")
}
