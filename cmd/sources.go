package main

import (
	"context"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/emigration-stats/internal/dataset"
	"github.com/sells-group/emigration-stats/internal/ingest"
	"github.com/sells-group/emigration-stats/internal/model"
	"github.com/sells-group/emigration-stats/internal/store"
	"github.com/sells-group/emigration-stats/internal/workspace"
)

// Parser flags shared by every command that reads files.
var (
	srcDelimiter   string
	srcEncoding    string
	srcSheet       string
	srcJSONPath    string
	srcConcurrency int
)

func addSourceFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&srcDelimiter, "delimiter", "", `CSV delimiter (default ","; "\t" for tab)`)
	cmd.Flags().StringVar(&srcEncoding, "encoding", "", "CSV charset label such as windows-1252 (default UTF-8)")
	cmd.Flags().StringVar(&srcSheet, "sheet", "", "XLSX worksheet name (default first sheet)")
	cmd.Flags().StringVar(&srcJSONPath, "json-path", "", "path to the record array inside a JSON document")
	cmd.Flags().IntVar(&srcConcurrency, "concurrency", 4, "number of sources read in parallel")
}

func sourceOptions() (ingest.Options, error) {
	var opts ingest.Options
	d, err := ingest.ParseDelimiter(srcDelimiter)
	if err != nil {
		return opts, eris.Wrap(err, "--delimiter")
	}
	opts.CSV.Delimiter = d
	opts.CSV.Encoding = srcEncoding
	opts.XLSX.SheetName = srcSheet
	opts.JSONPath = srcJSONPath
	return opts, nil
}

func isRemote(src string) bool {
	return strings.Contains(src, "://")
}

// readSources parses every file or URL in parallel and concatenates the rows
// in argument order. Every failing source is reported; any failure discards
// the whole batch.
func readSources(ctx context.Context, sources []string) ([]model.RawRecord, error) {
	opts, err := sourceOptions()
	if err != nil {
		return nil, err
	}
	var remote *ingest.Remote
	for _, src := range sources {
		if isRemote(src) {
			remote = initRemote()
			break
		}
	}

	results := make([][]model.RawRecord, len(sources))
	var (
		mu   sync.Mutex
		errs *multierror.Error
	)
	g := new(errgroup.Group)
	if srcConcurrency > 0 {
		g.SetLimit(srcConcurrency)
	}
	for i, src := range sources {
		g.Go(func() error {
			var (
				recs []model.RawRecord
				err  error
			)
			if isRemote(src) {
				recs, err = remote.Fetch(ctx, src, opts)
			} else {
				recs, err = ingest.ReadFile(ctx, src, opts)
			}
			if err != nil {
				mu.Lock()
				errs = multierror.Append(errs, eris.Wrapf(err, "read %s", src))
				mu.Unlock()
				return nil
			}
			zap.L().Debug("source read", zap.String("source", src), zap.Int("rows", len(recs)))
			results[i] = recs
			return nil
		})
	}
	_ = g.Wait()
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}

	var out []model.RawRecord
	for _, recs := range results {
		out = append(out, recs...)
	}
	return out, nil
}

// loadDataset builds the dataset from the given sources as an upload, or from
// the configured store when no source is given.
func loadDataset(ctx context.Context, sources []string) (*dataset.Dataset, error) {
	ws := workspace.New(cfg.Schema)
	if len(sources) > 0 {
		recs, err := readSources(ctx, sources)
		if err != nil {
			return nil, err
		}
		return ws.SetUploaded(recs), nil
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	defer st.Close() //nolint:errcheck

	docs, err := st.List(ctx, cfg.Store.Collection)
	if err != nil {
		return nil, eris.Wrap(err, "list records")
	}
	return ws.SetSynced(store.Snapshot(docs)), nil
}
