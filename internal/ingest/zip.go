package ingest

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"path"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/emigration-stats/internal/model"
)

// ReadZIP parses the single data file inside a ZIP archive. Directories,
// macOS resource forks and files of unsupported types are ignored.
func ReadZIP(ctx context.Context, body []byte, opts Options) ([]model.RawRecord, error) {
	r, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return nil, eris.Wrap(err, "zip: open archive")
	}

	var (
		entry  *zip.File
		format Format
	)
	for _, f := range r.File {
		if f.FileInfo().IsDir() || strings.HasPrefix(f.Name, "__MACOSX/") || strings.HasPrefix(path.Base(f.Name), ".") {
			continue
		}
		fm, err := DetectFormat(f.Name)
		if err != nil || fm == FormatZIP {
			continue
		}
		if entry != nil {
			return nil, eris.Errorf("zip: expected exactly 1 data file, found %s and %s", entry.Name, f.Name)
		}
		entry, format = f, fm
	}
	if entry == nil {
		return nil, eris.New("zip: no data file in archive")
	}

	rc, err := entry.Open()
	if err != nil {
		return nil, eris.Wrapf(err, "zip: open entry %s", entry.Name)
	}
	defer rc.Close() //nolint:errcheck

	inner, err := io.ReadAll(rc)
	if err != nil {
		return nil, eris.Wrapf(err, "zip: read entry %s", entry.Name)
	}
	records, err := readBytes(ctx, inner, format, opts)
	if err != nil {
		return nil, eris.Wrapf(err, "zip: parse %s", entry.Name)
	}
	return records, nil
}
