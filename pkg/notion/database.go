package notion

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// QueryAll fetches every page of a database, following cursors. While one
// page is processed the next is already being fetched.
func QueryAll(ctx context.Context, c Client, dbID string, filter *notionapi.DatabaseQueryRequest) ([]notionapi.Page, error) {
	next := func(cursor notionapi.Cursor) *notionapi.DatabaseQueryRequest {
		req := &notionapi.DatabaseQueryRequest{StartCursor: cursor}
		if filter != nil {
			req.Filter = filter.Filter
			req.Sorts = filter.Sorts
			req.PageSize = filter.PageSize
		}
		return req
	}

	type result struct {
		resp *notionapi.DatabaseQueryResponse
		err  error
	}
	var pending <-chan result

	var all []notionapi.Page
	for {
		var (
			resp *notionapi.DatabaseQueryResponse
			err  error
		)
		if pending != nil {
			r := <-pending
			resp, err = r.resp, r.err
		} else {
			resp, err = c.QueryDatabase(ctx, dbID, next(""))
		}
		if err != nil {
			return nil, eris.Wrap(err, "notion: query all")
		}

		all = append(all, resp.Results...)
		if !resp.HasMore {
			return all, nil
		}

		ch := make(chan result, 1)
		pending = ch
		req := next(resp.NextCursor)
		go func() {
			r, e := c.QueryDatabase(ctx, dbID, req)
			ch <- result{resp: r, err: e}
		}()
	}
}

// IndexByText maps the plain-text value of property to the page id for every
// page in the database. Pages with an empty value are left out; on repeated
// values the first page wins.
func IndexByText(ctx context.Context, c Client, dbID, property string) (map[string]notionapi.ObjectID, error) {
	pages, err := QueryAll(ctx, c, dbID, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "notion: index by %s", property)
	}
	idx := make(map[string]notionapi.ObjectID, len(pages))
	for _, p := range pages {
		v := PropertyText(p.Properties[property])
		if v == "" {
			continue
		}
		if _, ok := idx[v]; !ok {
			idx[v] = p.ID
		}
	}
	return idx, nil
}
