package client

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Filters builds query parameters for List, Count and DeleteMany in the
// wire form the server decodes: comma-joined in-lists, a JSON list of
// [field, operator, value] triples for match, and the reserved
// ordering/pagination/projection controls. Zero value is unusable; use
// NewFilters.
type Filters struct {
	values  url.Values
	matches []any
}

func NewFilters() *Filters {
	return &Filters{values: url.Values{}}
}

// Where filters a column directly. One value means equality, several
// mean an in-list.
func (f *Filters) Where(field string, values ...any) *Filters {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	f.values.Set(field, strings.Join(parts, ","))
	return f
}

// Match adds one structured [field, operator, value] triple. Operators
// follow the server's set: == != < <= > >= in between like ~.
func (f *Filters) Match(field, op string, values ...any) *Filters {
	var val any
	switch len(values) {
	case 1:
		val = values[0]
	default:
		val = values
	}
	f.matches = append(f.matches, []any{field, op, val})
	return f
}

// OrderBy sets the sort column and direction ("asc" or "desc").
func (f *Filters) OrderBy(field, direction string) *Filters {
	f.values.Set("order_by", field)
	f.values.Set("sort", direction)
	return f
}

// Page selects one page of perPage records, 1-indexed.
func (f *Filters) Page(page, perPage int) *Filters {
	f.values.Set("page", strconv.Itoa(page))
	f.values.Set("per_page", strconv.Itoa(perPage))
	return f
}

// NoPaginate requests the full result set.
func (f *Filters) NoPaginate() *Filters {
	f.values.Set("paginate", "false")
	return f
}

// Only limits response fields to the named ones.
func (f *Filters) Only(fields ...string) *Filters {
	f.values.Set("only", strings.Join(fields, ","))
	return f
}

// Exclude drops the named fields from responses.
func (f *Filters) Exclude(fields ...string) *Filters {
	f.values.Set("exclude", strings.Join(fields, ","))
	return f
}

// NoCache bypasses and evicts the server's cached entry for this query.
func (f *Filters) NoCache() *Filters {
	f.values.Set("cache", "false")
	return f
}

// Values encodes the accumulated filters as query parameters.
func (f *Filters) Values() url.Values {
	out := url.Values{}
	for k, v := range f.values {
		out[k] = v
	}
	if len(f.matches) > 0 {
		data, _ := json.Marshal(f.matches)
		out.Set("match", string(data))
	}
	return out
}
