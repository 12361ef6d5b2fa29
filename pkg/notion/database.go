package notion

import (
	"context"
	"sort"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// QueryAll fetches all pages matching req from a Notion database, following
// cursors. The next page is requested while the current one is appended.
func QueryAll(ctx context.Context, c Client, dbID string, req *notionapi.DatabaseQueryRequest) ([]notionapi.Page, error) {
	base := notionapi.DatabaseQueryRequest{}
	if req != nil {
		base.Filter = req.Filter
		base.Sorts = req.Sorts
		base.PageSize = req.PageSize
	}

	type result struct {
		resp *notionapi.DatabaseQueryResponse
		err  error
	}
	fetch := func(cursor notionapi.Cursor) <-chan result {
		next := base
		next.StartCursor = cursor
		ch := make(chan result, 1)
		go func() {
			resp, err := c.QueryDatabase(ctx, dbID, &next)
			ch <- result{resp, err}
		}()
		return ch
	}

	var all []notionapi.Page
	pending := fetch("")
	for {
		r := <-pending
		if r.err != nil {
			return nil, eris.Wrap(r.err, "notion: query all")
		}
		if r.resp.HasMore {
			pending = fetch(r.resp.NextCursor)
		}
		all = append(all, r.resp.Results...)
		if !r.resp.HasMore {
			return all, nil
		}
	}
}

// QueryCollection fetches the non-archived record pages of one collection,
// oldest first.
func QueryCollection(ctx context.Context, c Client, dbID, collection string) ([]notionapi.Page, error) {
	req := &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: PropCollection,
			Select: &notionapi.SelectFilterCondition{
				Equals: collection,
			},
		},
	}
	pages, err := QueryAll(ctx, c, dbID, req)
	if err != nil {
		return nil, eris.Wrapf(err, "notion: query collection %s", collection)
	}
	live := make([]notionapi.Page, 0, len(pages))
	for _, p := range pages {
		if !p.Archived {
			live = append(live, p)
		}
	}
	sort.SliceStable(live, func(i, j int) bool {
		return live[i].CreatedTime.Before(live[j].CreatedTime)
	})
	return live, nil
}
