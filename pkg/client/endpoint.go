package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// headerTotalCount mirrors the server's HEAD count header.
const headerTotalCount = "X-Total-Count"

// Endpoint exposes CRUD calls for one resource.
type Endpoint struct {
	client *Client
	path   string
	pk     string
}

type EndpointOption func(*Endpoint)

// WithPrimaryKey overrides the primary-key field name, "id" by default.
func WithPrimaryKey(name string) EndpointOption {
	return func(e *Endpoint) { e.pk = name }
}

// Resource binds an endpoint to a collection path, e.g. "/tasks".
func (c *Client) Resource(path string, opts ...EndpointOption) *Endpoint {
	e := &Endpoint{client: c, path: path, pk: "id"}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Get fetches one record by primary key.
func (e *Endpoint) Get(ctx context.Context, id any) (Record, error) {
	resp, err := e.client.do(ctx, http.MethodGet, e.recordPath(id), nil, nil)
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(resp.Body, &rec); err != nil {
		return nil, fmt.Errorf("decode %s: %w", e.path, err)
	}
	return rec, nil
}

// List fetches the records matching params. The server collapses a
// one-element result to a bare object; List restores the list shape.
// An id-list filter too large for one URL is split across requests and
// the partial results concatenated.
func (e *Endpoint) List(ctx context.Context, params url.Values) ([]Record, error) {
	var out []Record
	for _, chunk := range e.splitParams(params) {
		resp, err := e.client.do(ctx, http.MethodGet, e.path, chunk, nil)
		if err != nil {
			return nil, err
		}
		records, err := decodeRecords(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", e.path, err)
		}
		out = append(out, records...)
	}
	return out, nil
}

// Count returns the number of records matching params without fetching
// them.
func (e *Endpoint) Count(ctx context.Context, params url.Values) (int, error) {
	resp, err := e.client.do(ctx, http.MethodHead, e.path, params, nil)
	if err != nil {
		return 0, err
	}
	count, err := strconv.Atoi(resp.Headers.Get(headerTotalCount))
	if err != nil {
		return 0, fmt.Errorf("count %s: missing %s header", e.path, headerTotalCount)
	}
	return count, nil
}

// Create persists one record and returns it with server-assigned
// fields filled in.
func (e *Endpoint) Create(ctx context.Context, item Record) (Record, error) {
	resp, err := e.client.do(ctx, http.MethodPost, e.path, nil, item)
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(resp.Body, &rec); err != nil {
		return nil, fmt.Errorf("decode %s: %w", e.path, err)
	}
	return rec, nil
}

// CreateBatch persists records, splitting the batch across requests
// when its serialized size exceeds the client's limit. Each request's
// batch is atomic; the overall call is not.
func (e *Endpoint) CreateBatch(ctx context.Context, items []Record) ([]Record, error) {
	return e.writeBatch(ctx, http.MethodPost, nil, items)
}

// Update applies fields to the record with the given primary key.
func (e *Endpoint) Update(ctx context.Context, id any, fields Record) (Record, error) {
	resp, err := e.client.do(ctx, http.MethodPut, e.recordPath(id), nil, fields)
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(resp.Body, &rec); err != nil {
		return nil, fmt.Errorf("decode %s: %w", e.path, err)
	}
	return rec, nil
}

// UpdateBatch applies a batch of updates; every record must carry the
// primary key. Oversized batches split like CreateBatch.
func (e *Endpoint) UpdateBatch(ctx context.Context, items []Record) ([]Record, error) {
	return e.writeBatch(ctx, http.MethodPut, nil, items)
}

// AppendBatch is UpdateBatch with _action=append: relationship values
// extend the stored collections instead of replacing them.
func (e *Endpoint) AppendBatch(ctx context.Context, items []Record) ([]Record, error) {
	return e.writeBatch(ctx, http.MethodPut, url.Values{"_action": {"append"}}, items)
}

// Delete removes one record. The bool reports whether it existed.
func (e *Endpoint) Delete(ctx context.Context, id any) (bool, error) {
	resp, err := e.client.do(ctx, http.MethodDelete, e.recordPath(id), nil, nil)
	if err != nil {
		return false, err
	}
	var body struct {
		Deleted bool `json:"deleted"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return false, fmt.Errorf("decode %s: %w", e.path, err)
	}
	return body.Deleted, nil
}

// DeleteMany removes every record matching params and returns the count.
func (e *Endpoint) DeleteMany(ctx context.Context, params url.Values) (int, error) {
	resp, err := e.client.do(ctx, http.MethodDelete, e.path, params, nil)
	if err != nil {
		return 0, err
	}
	var body struct {
		Deleted int `json:"deleted"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return 0, fmt.Errorf("decode %s: %w", e.path, err)
	}
	return body.Deleted, nil
}

// ResourceURL returns the absolute URL of one record, useful for
// cross-referencing records in stored fields or logs.
func (e *Endpoint) ResourceURL(id any) string {
	return e.client.baseURL + e.recordPath(id)
}

func (e *Endpoint) recordPath(id any) string {
	return fmt.Sprintf("%s/%v", e.path, id)
}

func (e *Endpoint) writeBatch(ctx context.Context, method string, params url.Values, items []Record) ([]Record, error) {
	if len(items) == 0 {
		return nil, nil
	}
	chunks, err := chunkBySize(items, e.client.maxRequestSize)
	if err != nil {
		return nil, err
	}
	var out []Record
	for _, chunk := range chunks {
		resp, err := e.client.do(ctx, method, e.path, params, chunk)
		if err != nil {
			return nil, err
		}
		records, err := decodeRecords(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", e.path, err)
		}
		out = append(out, records...)
	}
	return out, nil
}

// splitParams splits an oversized primary-key in-list across several
// parameter sets; any other parameter set passes through whole. Each
// emitted set carries the ids as one comma-joined value, the list form
// the server decodes.
func (e *Endpoint) splitParams(params url.Values) []url.Values {
	if params == nil {
		return []url.Values{nil}
	}
	// accept both repeated id params and comma-joined values
	var ids []string
	for _, v := range params[e.pk] {
		for _, id := range strings.Split(v, ",") {
			if id != "" {
				ids = append(ids, id)
			}
		}
	}
	if len(ids) < 2 {
		return []url.Values{params}
	}

	base := url.Values{}
	for k, v := range params {
		if k == e.pk {
			continue
		}
		base[k] = v
	}
	if len(e.path)+len(withIDs(base, e.pk, ids).Encode()) <= e.client.maxRequestSize {
		return []url.Values{withIDs(base, e.pk, ids)}
	}

	// path, separators and the id key count against the budget once per
	// chunk; every id costs its escaped form plus an escaped comma
	baseLen := len(e.path) + 1 + len(base.Encode()) + len(url.QueryEscape(e.pk)) + 2
	var chunks []url.Values
	var cur []string
	curLen := 0
	for _, id := range ids {
		cost := len(url.QueryEscape(id)) + len(url.QueryEscape(","))
		if len(cur) > 0 && baseLen+curLen+cost > e.client.maxRequestSize {
			chunks = append(chunks, withIDs(base, e.pk, cur))
			cur, curLen = nil, 0
		}
		cur = append(cur, id)
		curLen += cost
	}
	if len(cur) > 0 {
		chunks = append(chunks, withIDs(base, e.pk, cur))
	}
	return chunks
}

func withIDs(base url.Values, pk string, ids []string) url.Values {
	out := url.Values{}
	for k, v := range base {
		out[k] = v
	}
	out.Set(pk, strings.Join(ids, ","))
	return out
}

// chunkBySize splits a batch so each chunk's JSON form fits the limit.
// A single record larger than the limit still ships alone.
func chunkBySize(items []Record, limit int) ([][]Record, error) {
	var chunks [][]Record
	var cur []Record
	size := 2 // brackets
	for _, item := range items {
		b, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("marshal record: %w", err)
		}
		if len(cur) > 0 && size+len(b)+1 > limit {
			chunks = append(chunks, cur)
			cur, size = nil, 2
		}
		cur = append(cur, item)
		size += len(b) + 1
	}
	if len(cur) > 0 {
		chunks = append(chunks, cur)
	}
	return chunks, nil
}

// decodeRecords accepts either a bare object or an array of objects.
func decodeRecords(body []byte) ([]Record, error) {
	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	switch v := payload.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return []Record{v}, nil
	case []any:
		out := make([]Record, 0, len(v))
		for _, item := range v {
			rec, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("unexpected element %T", item)
			}
			out = append(out, rec)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unexpected payload %T", payload)
	}
}

// Decode maps a record onto a struct using its json tags.
func Decode(in any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}
