// Package codec converts raw query-string values and JSON payload fields
// into typed values, using each column's declared type as the contract.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ocervell/flash/pkg/schema"
)

// DateLayout is the only accepted date format, matching the wire format
// used by clients.
const DateLayout = "2006-01-02 15:04:05"

var (
	ErrInvalidBoolean = errors.New("invalid boolean value")
	ErrInvalidDate    = errors.New("invalid date value")
	ErrInvalidNumber  = errors.New("invalid numeric value")
	ErrInvalidJSON    = errors.New("invalid json value")
)

// Decode converts one raw string into the typed value for col.
func Decode(col schema.Column, raw string) (any, error) {
	switch col.Type {
	case schema.Boolean:
		return ParseBool(raw)
	case schema.Date:
		t, err := time.Parse(DateLayout, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
		}
		return t, nil
	case schema.Integer:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidNumber, raw)
		}
		return n, nil
	case schema.Float:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidNumber, raw)
		}
		return f, nil
	case schema.JSON:
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidJSON, raw)
		}
		return v, nil
	default:
		return raw, nil
	}
}

// DecodeList converts a comma-split raw value list. A single element
// yields the element's typed value; more than one element always yields
// a []any for IN semantics, regardless of column type.
//
// For JSON columns the whole list is decoded first; when that fails the
// decode is retried element-by-element and elements that still fail are
// silently dropped. This lossy fallback matches the historical wire
// behavior and is deliberate: callers relying on partial filter lists
// should not start receiving errors.
func DecodeList(col schema.Column, raws []string) (any, error) {
	if len(raws) == 1 {
		return Decode(col, raws[0])
	}
	if col.Type == schema.JSON {
		return decodeJSONList(raws), nil
	}
	vals := make([]any, 0, len(raws))
	for _, raw := range raws {
		v, err := Decode(col, raw)
		if err != nil {
			return nil, err
		}
		vals = append(vals, v)
	}
	return vals, nil
}

func decodeJSONList(raws []string) []any {
	var whole []any
	joined := "[" + strings.Join(raws, ",") + "]"
	if err := json.Unmarshal([]byte(joined), &whole); err == nil {
		return whole
	}
	vals := make([]any, 0, len(raws))
	for _, raw := range raws {
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			continue // drop undecodable elements, see DecodeList
		}
		vals = append(vals, v)
	}
	return vals
}

// ParseBool accepts the lenient boolean spellings used in query strings.
func ParseBool(raw string) (bool, error) {
	switch strings.ToLower(raw) {
	case "true", "yes", "t", "y", "1":
		return true, nil
	case "false", "no", "f", "n", "0":
		return false, nil
	}
	return false, fmt.Errorf("%w: %q", ErrInvalidBoolean, raw)
}

// IsBool reports whether raw spells a boolean ParseBool would accept.
func IsBool(raw string) bool {
	_, err := ParseBool(raw)
	return err == nil
}
