package api

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// BatchSize is the most items the bulk endpoints accept per request.
const BatchSize = 100

// BatchResult is the mixed outcome of a bulk operation. Both slices keep
// input order.
type BatchResult[T any] struct {
	Succeeded []T
	Failed    []ItemError
}

// Err returns a *PartialFailureError when any item failed, else nil.
func (r *BatchResult[T]) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	return &PartialFailureError{Succeeded: len(r.Succeeded), Failed: r.Failed}
}

// runChunks submits items in BatchSize chunks, strictly in order; submit
// receives the input offset of the chunk's first item. A chunk whose request
// fails charges that error to each of its items and the remaining chunks are
// still attempted.
func runChunks[In, Out any](
	ctx context.Context,
	items []In,
	ref func(In) string,
	submit func(ctx context.Context, offset int, chunk []In) ([]Out, []ItemError, error),
) BatchResult[Out] {
	var res BatchResult[Out]
	for offset := 0; offset < len(items); offset += BatchSize {
		end := min(offset+BatchSize, len(items))
		chunk := items[offset:end]

		var (
			ok     []Out
			failed []ItemError
			err    = ctx.Err()
		)
		if err == nil {
			ok, failed, err = submit(ctx, offset, chunk)
		}
		if err != nil {
			for j, item := range chunk {
				res.Failed = append(res.Failed, ItemError{Row: offset + j + 1, Ref: ref(item), Err: err})
			}
			continue
		}
		res.Succeeded = append(res.Succeeded, ok...)
		res.Failed = append(res.Failed, failed...)
	}
	return res
}

// paginate fetches pages 1, 2, ... in order until a page is shorter than
// pageSize or limit items are collected, truncating to limit. A limit <= 0
// means no limit.
func paginate[T any](ctx context.Context, pageSize, limit int, fetch func(ctx context.Context, page int) ([]T, error)) ([]T, error) {
	var all []T
	for page := 1; ; page++ {
		items, err := fetch(ctx, page)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
		if limit > 0 && len(all) >= limit {
			return all[:limit], nil
		}
		if len(items) < pageSize {
			return all, nil
		}
	}
}

// BulkCreateLinks creates links in chunks of BatchSize. Failures carry the
// 1-based position of the request in reqs.
func (c *Client) BulkCreateLinks(ctx context.Context, reqs []CreateLinkRequest) BatchResult[Link] {
	ref := func(r CreateLinkRequest) string { return r.URL }
	return runChunks(ctx, reqs, ref, func(ctx context.Context, offset int, chunk []CreateLinkRequest) ([]Link, []ItemError, error) {
		raw, err := c.Post(ctx, "/links/bulk", chunk)
		if err != nil {
			return nil, nil, err
		}
		resp, err := decodeBulkCreate(raw)
		if err != nil {
			return nil, nil, err
		}
		links, failed := resp.attribute(offset, chunk)
		return links, failed, nil
	})
}

// BulkDeleteResult is the outcome of BulkDeleteLinks. Deleted is the count
// the server reported; Succeeded lists ids from chunks that went through.
type BulkDeleteResult struct {
	BatchResult[string]
	Deleted int
}

// BulkDeleteLinks deletes links by id in chunks of BatchSize.
func (c *Client) BulkDeleteLinks(ctx context.Context, ids []string) BulkDeleteResult {
	var deleted int
	ref := func(id string) string { return id }
	res := runChunks(ctx, ids, ref, func(ctx context.Context, _ int, chunk []string) ([]string, []ItemError, error) {
		q := url.Values{"linkIds": {strings.Join(chunk, ",")}}
		raw, err := c.Delete(ctx, "/links/bulk", q)
		if err != nil {
			return nil, nil, err
		}
		var body struct {
			DeletedCount *int `json:"deletedCount"`
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &body); err != nil {
				return nil, nil, fmt.Errorf("decode bulk delete response: %w", err)
			}
		}
		if body.DeletedCount != nil {
			deleted += *body.DeletedCount
		} else {
			deleted += len(chunk)
		}
		return chunk, nil, nil
	})
	return BulkDeleteResult{BatchResult: res, Deleted: deleted}
}

// bulkShape tags which of the two bulk-create response layouts was received.
type bulkShape int

const (
	// bulkShapeList is a JSON array with one entry per request, in request
	// order. An entry is either a link or an {error, code} object.
	bulkShapeList bulkShape = iota + 1
	// bulkShapeObject is {"links": [...], "errors": [...]}.
	bulkShapeObject
)

// bulkEntry is one element of either layout. An entry is a failure when it
// has an error and no id.
type bulkEntry struct {
	link  *Link
	index *int
	url   string
	err   error
}

type bulkCreateResponse struct {
	shape   bulkShape
	entries []bulkEntry // bulkShapeList
	links   []Link      // bulkShapeObject
	errors  []bulkEntry // bulkShapeObject
}

// decodeBulkCreate inspects the top-level JSON value once and decodes the
// matching layout.
func decodeBulkCreate(raw json.RawMessage) (*bulkCreateResponse, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, errors.New("empty bulk create response")
	}

	switch trimmed[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("decode bulk create list: %w", err)
		}
		resp := &bulkCreateResponse{shape: bulkShapeList, entries: make([]bulkEntry, 0, len(items))}
		for _, item := range items {
			resp.entries = append(resp.entries, decodeBulkEntry(item))
		}
		return resp, nil

	case '{':
		var obj struct {
			Links  []json.RawMessage `json:"links"`
			Errors []json.RawMessage `json:"errors"`
		}
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return nil, fmt.Errorf("decode bulk create object: %w", err)
		}
		resp := &bulkCreateResponse{shape: bulkShapeObject}
		for _, item := range obj.Links {
			e := decodeBulkEntry(item)
			if e.link != nil {
				resp.links = append(resp.links, *e.link)
			} else {
				resp.errors = append(resp.errors, e)
			}
		}
		for _, item := range obj.Errors {
			e := decodeBulkEntry(item)
			if e.err == nil {
				e.err = errors.New("unknown error")
			}
			resp.errors = append(resp.errors, e)
		}
		return resp, nil

	default:
		return nil, fmt.Errorf("unexpected bulk create response: %.40s", trimmed)
	}
}

func decodeBulkEntry(raw json.RawMessage) bulkEntry {
	var fields struct {
		ID    string          `json:"id"`
		Index *int            `json:"index"`
		URL   string          `json:"url"`
		Error json.RawMessage `json:"error"`
		Code  string          `json:"code"`
		Link  *struct {
			URL string `json:"url"`
		} `json:"link"`
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return bulkEntry{err: fmt.Errorf("decode bulk entry: %w", err)}
	}

	hasError := len(fields.Error) > 0 && string(fields.Error) != "null"
	if fields.ID != "" && !hasError {
		var link Link
		if err := json.Unmarshal(raw, &link); err != nil {
			return bulkEntry{err: fmt.Errorf("decode link: %w", err)}
		}
		return bulkEntry{link: &link}
	}

	e := bulkEntry{index: fields.Index, url: fields.URL}
	if e.url == "" && fields.Link != nil {
		e.url = fields.Link.URL
	}
	e.err = entryError(fields.Error, fields.Code)
	return e
}

// entryError reads an error given either as a string or as {message, code}.
func entryError(raw json.RawMessage, code string) error {
	apiErr := &APIError{Code: code}
	var msg string
	if err := json.Unmarshal(raw, &msg); err == nil {
		apiErr.Message = msg
	} else {
		var obj struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		}
		if err := json.Unmarshal(raw, &obj); err == nil {
			apiErr.Message = obj.Message
			if obj.Code != "" {
				apiErr.Code = obj.Code
			}
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = "link was not created"
	}
	return &bulkItemError{apiErr}
}

// bulkItemError is a per-item rejection inside an accepted bulk request.
type bulkItemError struct{ *APIError }

func (e *bulkItemError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Code)
	}
	return e.Message
}

func (e *bulkItemError) Unwrap() error { return e.APIError }

// attribute splits the response into created links and failures numbered by
// input position.
func (r *bulkCreateResponse) attribute(offset int, chunk []CreateLinkRequest) ([]Link, []ItemError) {
	var (
		links  []Link
		failed []ItemError
	)

	switch r.shape {
	case bulkShapeList:
		for i, e := range r.entries {
			if e.link != nil {
				links = append(links, *e.link)
				continue
			}
			row, ref := 0, e.url
			if i < len(chunk) {
				row, ref = offset+i+1, chunk[i].URL
			}
			failed = append(failed, ItemError{Row: row, Ref: ref, Err: e.err})
		}

	case bulkShapeObject:
		links = r.links
		claimed := make([]bool, len(chunk))
		for _, e := range r.errors {
			pos := -1
			if e.index != nil && *e.index >= 0 && *e.index < len(chunk) {
				pos = *e.index
			} else if e.url != "" {
				for j, req := range chunk {
					if !claimed[j] && req.URL == e.url {
						pos = j
						break
					}
				}
			}
			if pos < 0 {
				failed = append(failed, ItemError{Ref: e.url, Err: e.err})
				continue
			}
			claimed[pos] = true
			failed = append(failed, ItemError{Row: offset + pos + 1, Ref: chunk[pos].URL, Err: e.err})
		}
	}

	// Servers list errors in any order; rows without a position go last.
	slices.SortStableFunc(failed, func(a, b ItemError) int {
		switch {
		case a.Row == b.Row:
			return 0
		case a.Row == 0:
			return 1
		case b.Row == 0:
			return -1
		}
		return cmp.Compare(a.Row, b.Row)
	})
	return links, failed
}
