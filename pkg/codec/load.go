package codec

import (
	"fmt"
	"time"

	"github.com/ocervell/flash/pkg/schema"
)

// FieldErrors collects per-field validation failures for one record.
type FieldErrors map[string]string

// LoadRecord validates and coerces one JSON-decoded payload against the
// model's columns and the schema's required set. When partial is true,
// missing required fields are tolerated (PUT semantics); unknown fields
// and type mismatches are always errors. The returned record carries
// typed values ready for the store.
func LoadRecord(m *schema.Model, s *schema.Schema, data map[string]any, partial bool) (map[string]any, FieldErrors) {
	errs := make(FieldErrors)
	record := make(map[string]any, len(data))

	for name, raw := range data {
		if rel, ok := m.Relationship(name); ok {
			v, err := coerceRelationship(rel, raw)
			if err != nil {
				errs[name] = err.Error()
				continue
			}
			record[name] = v
			continue
		}
		col, ok := m.Column(name)
		if !ok {
			errs[name] = "unknown field"
			continue
		}
		v, err := CoerceValue(col, raw)
		if err != nil {
			errs[name] = err.Error()
			continue
		}
		record[name] = v
	}

	if !partial && s != nil {
		for _, req := range s.Required {
			if _, present := record[req]; !present {
				errs[req] = "missing required field"
			}
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return record, nil
}

// CoerceValue converts a JSON-decoded value (string, float64, bool, map,
// slice or nil) into the typed value for col.
func CoerceValue(col schema.Column, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	switch col.Type {
	case schema.Boolean:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case string:
			return ParseBool(v)
		}
		return nil, fmt.Errorf("expected boolean, got %T", raw)
	case schema.Integer:
		switch v := raw.(type) {
		case float64:
			n := int64(v)
			if float64(n) != v {
				return nil, fmt.Errorf("expected integer, got %v", v)
			}
			return n, nil
		case int:
			return int64(v), nil
		case int64:
			return v, nil
		case string:
			return Decode(col, v)
		}
		return nil, fmt.Errorf("expected integer, got %T", raw)
	case schema.Float:
		switch v := raw.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case string:
			return Decode(col, v)
		}
		return nil, fmt.Errorf("expected number, got %T", raw)
	case schema.Date:
		switch v := raw.(type) {
		case time.Time:
			return v, nil
		case string:
			return Decode(col, v)
		}
		return nil, fmt.Errorf("expected date string, got %T", raw)
	case schema.JSON:
		return raw, nil
	default: // text
		v, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", raw)
		}
		return v, nil
	}
}

func coerceRelationship(rel schema.Relationship, raw any) (any, error) {
	if rel.Many {
		items, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("expected list for relationship %s, got %T", rel.Name, raw)
		}
		return items, nil
	}
	item, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected object for relationship %s, got %T", rel.Name, raw)
	}
	return item, nil
}
