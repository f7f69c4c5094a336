// Package query turns request query parameters into a typed filter
// specification, builds composable predicates from it, and assembles the
// final query plan a store executes.
package query

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ocervell/flash/pkg/apierr"
	"github.com/ocervell/flash/pkg/codec"
	"github.com/ocervell/flash/pkg/schema"
)

// Control parameter names reserved on collection endpoints. Anything else
// in the query string is treated as a direct column filter.
const (
	ParamPage     = "page"
	ParamPerPage  = "per_page"
	ParamPaginate = "paginate"
	ParamOrderBy  = "order_by"
	ParamSort     = "sort"
	ParamOnly     = "only"
	ParamExclude  = "exclude"
	ParamMatch    = "match"
	ParamCache    = "cache"
	ParamAction   = "_action"
)

const (
	ActionOverwrite = "overwrite"
	ActionAppend    = "append"

	SortAsc  = "asc"
	SortDesc = "desc"
)

// Match is one structured filter triple from the `match` parameter.
type Match struct {
	Field  string
	Op     string
	Values []any
}

// Filters is the decoded form of a collection request's query parameters.
type Filters struct {
	// Direct maps column names to their comma-split raw values.
	Direct map[string][]string
	// Matches holds the structured [field, operator, value] triples.
	Matches []Match

	OrderBy string
	Sort    string

	Page     int
	PerPage  int
	Paginate bool

	Only    []string
	Exclude []string

	Cache  bool
	Action string
}

// Parse decodes the query string for model. Direct filters are captured
// only for names matching declared columns; unrecognized names are
// silently ignored, preserving the lenient query-string convention.
// order_by must name a declared column.
func Parse(model *schema.Model, values url.Values) (*Filters, error) {
	f := &Filters{
		Direct:   make(map[string][]string),
		OrderBy:  model.PrimaryKey,
		Sort:     SortDesc,
		Page:     1,
		PerPage:  10,
		Paginate: true,
		Cache:    true,
		Action:   ActionOverwrite,
	}

	for key, vals := range values {
		if len(vals) == 0 || vals[0] == "" {
			continue
		}
		raw := vals[0]
		switch key {
		case ParamPage:
			n, err := parsePositiveInt(raw)
			if err != nil {
				return nil, apierr.FilterInvalid(model.Name, fmt.Sprintf("page=%s", raw))
			}
			f.Page = n
		case ParamPerPage:
			n, err := parsePositiveInt(raw)
			if err != nil {
				return nil, apierr.FilterInvalid(model.Name, fmt.Sprintf("per_page=%s", raw))
			}
			f.PerPage = n
		case ParamPaginate:
			b, err := codec.ParseBool(raw)
			if err != nil {
				return nil, apierr.FilterInvalid(model.Name, fmt.Sprintf("paginate=%s", raw))
			}
			f.Paginate = b
		case ParamCache:
			b, err := codec.ParseBool(raw)
			if err != nil {
				return nil, apierr.FilterInvalid(model.Name, fmt.Sprintf("cache=%s", raw))
			}
			f.Cache = b
		case ParamOrderBy:
			if !model.HasColumn(raw) {
				return nil, apierr.FieldForbidden(model.Name, raw)
			}
			f.OrderBy = raw
		case ParamSort:
			if raw != SortAsc && raw != SortDesc {
				return nil, apierr.FilterInvalid(model.Name, fmt.Sprintf("sort=%s", raw))
			}
			f.Sort = raw
		case ParamOnly:
			f.Only = splitList(raw)
		case ParamExclude:
			f.Exclude = splitList(raw)
		case ParamMatch:
			matches, err := parseMatches(model, raw)
			if err != nil {
				return nil, err
			}
			f.Matches = matches
		case ParamAction:
			if raw != ActionOverwrite && raw != ActionAppend {
				return nil, apierr.FilterInvalid(model.Name, fmt.Sprintf("_action=%s", raw))
			}
			f.Action = raw
		default:
			if model.HasColumn(key) {
				// repeated parameters and comma-joined values both form
				// one in-list
				list := make([]string, 0, len(vals))
				for _, v := range vals {
					list = append(list, splitList(v)...)
				}
				f.Direct[key] = list
			}
			// unknown parameter names are ignored, not errored
		}
	}
	return f, nil
}

// parseMatches decodes the `match` parameter: a YAML- or JSON-encoded
// list of [field, operator, value] triples.
func parseMatches(model *schema.Model, raw string) ([]Match, error) {
	var decoded []any
	if err := yaml.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, apierr.FilterInvalid(model.Name, raw)
	}
	matches := make([]Match, 0, len(decoded))
	for _, entry := range decoded {
		triple, ok := entry.([]any)
		if !ok || len(triple) != 3 {
			return nil, apierr.FilterInvalid(model.Name, entry)
		}
		field, ok := triple[0].(string)
		if !ok {
			return nil, apierr.FilterInvalid(model.Name, entry)
		}
		op, ok := triple[1].(string)
		if !ok {
			return nil, apierr.FilterInvalid(model.Name, entry)
		}
		matches = append(matches, Match{Field: field, Op: op, Values: matchValues(triple[2])})
	}
	return matches, nil
}

// matchValues normalizes a triple's value position: lists stay lists,
// comma-joined strings are split, scalars become one-element lists.
func matchValues(v any) []any {
	switch val := v.(type) {
	case []any:
		return val
	case string:
		parts := splitList(val)
		out := make([]any, len(parts))
		for i, p := range parts {
			out[i] = p
		}
		return out
	default:
		return []any{val}
	}
}

func parsePositiveInt(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("expected positive integer, got %q", raw)
	}
	return n, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
