// Package ingest turns uploaded or downloaded files (CSV, XLSX, JSON, or a ZIP
// holding one of them) into raw records. Every cell is read as a string;
// typing happens later during normalization.
package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/emigration-stats/internal/model"
)

// Format identifies a supported file type.
type Format string

// Supported formats.
const (
	FormatCSV  Format = "csv"
	FormatTSV  Format = "tsv"
	FormatXLSX Format = "xlsx"
	FormatJSON Format = "json"
	FormatZIP  Format = "zip"
)

// DetectFormat maps a file name or URL path to its format by extension.
func DetectFormat(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".tsv", ".tab":
		return FormatTSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	case ".json":
		return FormatJSON, nil
	case ".zip":
		return FormatZIP, nil
	default:
		return "", eris.Errorf("ingest: unsupported file type %q", filepath.Ext(name))
	}
}

// Options configures parsing for every format.
type Options struct {
	CSV  CSVOptions
	XLSX XLSXOptions
	// JSONPath selects the record array inside a JSON document using gjson
	// path syntax ("data.rows"). Empty means the document root.
	JSONPath string
}

// Table is a parsed sheet: one header row and the data rows under it.
type Table struct {
	Header []string
	Rows   [][]string
}

// NewTable splits raw rows into a header (the first non-blank row) and data.
// Blank rows are dropped.
func NewTable(rows [][]string) Table {
	var t Table
	for _, row := range rows {
		if blankRow(row) {
			continue
		}
		if t.Header == nil {
			t.Header = headerNames(row)
			continue
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// Records pairs each row with the header. Missing trailing cells become empty
// strings; cells beyond the header are dropped.
func (t Table) Records() []model.RawRecord {
	out := make([]model.RawRecord, 0, len(t.Rows))
	for _, row := range t.Rows {
		rec := make(model.RawRecord, len(t.Header))
		for i, col := range t.Header {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			rec[col] = cell
		}
		out = append(out, rec)
	}
	return out
}

// headerNames trims header cells, names blank ones by position and suffixes
// duplicates so no column is lost.
func headerNames(row []string) []string {
	out := make([]string, len(row))
	seen := make(map[string]int, len(row))
	for i, h := range row {
		name := strings.TrimSpace(h)
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		seen[name]++
		if n := seen[name]; n > 1 {
			name = fmt.Sprintf("%s_%d", name, n)
		}
		out[i] = name
	}
	return out
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// Read parses r as format.
func Read(ctx context.Context, r io.Reader, format Format, opts Options) ([]model.RawRecord, error) {
	switch format {
	case FormatCSV, FormatTSV:
		csvOpts := opts.CSV
		if format == FormatTSV && csvOpts.Delimiter == 0 {
			csvOpts.Delimiter = '\t'
		}
		t, err := ReadCSV(ctx, r, csvOpts)
		if err != nil {
			return nil, err
		}
		return t.Records(), nil
	case FormatXLSX, FormatJSON, FormatZIP:
		body, err := io.ReadAll(r)
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: read %s body", format)
		}
		return readBytes(ctx, body, format, opts)
	default:
		return nil, eris.Errorf("ingest: unsupported format %q", format)
	}
}

func readBytes(ctx context.Context, body []byte, format Format, opts Options) ([]model.RawRecord, error) {
	switch format {
	case FormatXLSX:
		t, err := ReadXLSXBinary(body, opts.XLSX)
		if err != nil {
			return nil, err
		}
		return t.Records(), nil
	case FormatJSON:
		return ReadJSON(body, opts.JSONPath)
	case FormatZIP:
		return ReadZIP(ctx, body, opts)
	default:
		return Read(ctx, bytes.NewReader(body), format, opts)
	}
}

// ReadFile parses the file at path, detecting its format from the extension.
func ReadFile(ctx context.Context, path string, opts Options) ([]model.RawRecord, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	records, err := Read(ctx, f, format, opts)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: %s", filepath.Base(path))
	}
	return records, nil
}
