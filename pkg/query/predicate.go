package query

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ocervell/flash/pkg/apierr"
	"github.com/ocervell/flash/pkg/codec"
	"github.com/ocervell/flash/pkg/schema"
)

// Op is a canonical comparison operator.
type Op string

const (
	OpEq      Op = "eq"
	OpNe      Op = "ne"
	OpLt      Op = "lt"
	OpLe      Op = "le"
	OpGt      Op = "gt"
	OpGe      Op = "ge"
	OpIn      Op = "in"
	OpBetween Op = "between"
	OpLike    Op = "like"
	OpRegex   Op = "regex"
)

// operators maps the wire spellings from match triples to canonical ops.
var operators = map[string]Op{
	"==": OpEq, "eq": OpEq,
	"!=": OpNe, "ne": OpNe,
	"<": OpLt, "lt": OpLt,
	"<=": OpLe, "le": OpLe,
	">": OpGt, "gt": OpGt,
	">=": OpGe, "ge": OpGe,
	"in":      OpIn,
	"between": OpBetween,
	"like":    OpLike,
	"~":       OpRegex,
}

// Cond is one column condition. For OpLike the values are prefixes,
// OR-combined; for OpBetween exactly two values form an inclusive range.
type Cond struct {
	Column schema.Column
	Op     Op
	Values []any
}

// Predicate is a conjunction of column conditions.
type Predicate struct {
	Conds []Cond
}

// And appends a condition to the conjunction.
func (p *Predicate) And(c Cond) {
	p.Conds = append(p.Conds, c)
}

// Build turns the filter spec's direct filters and match triples into a
// predicate for model. Fields in the schema's read-forbidden set fail
// with FieldForbidden before any query executes. Direct filters on
// unknown fields were already dropped at parse time; match triples on
// unknown fields are skipped here for the same lenient convention.
func Build(model *schema.Model, sch *schema.Schema, f *Filters) (Predicate, error) {
	var pred Predicate

	// ordering by a hidden column would leak its values through the
	// result sequence
	if sch.IsForbidden(f.OrderBy, schema.Read) {
		return Predicate{}, apierr.FieldForbidden(model.Name, f.OrderBy)
	}

	for name, raws := range f.Direct {
		if sch.IsForbidden(name, schema.Read) {
			return Predicate{}, apierr.FieldForbidden(model.Name, name)
		}
		col, ok := model.Column(name)
		if !ok {
			continue
		}
		val, err := codec.DecodeList(col, raws)
		if err != nil {
			return Predicate{}, apierr.FilterInvalid(model.Name, fmt.Sprintf("%s=%s", name, strings.Join(raws, ",")))
		}
		if list, many := val.([]any); many {
			pred.And(Cond{Column: col, Op: OpIn, Values: list})
		} else {
			pred.And(Cond{Column: col, Op: OpEq, Values: []any{val}})
		}
	}

	for _, m := range f.Matches {
		if sch.IsForbidden(m.Field, schema.Read) {
			return Predicate{}, apierr.FieldForbidden(model.Name, m.Field)
		}
		cond, ok, err := buildMatch(model, m)
		if err != nil {
			return Predicate{}, err
		}
		if ok {
			pred.And(cond)
		}
	}
	return pred, nil
}

func buildMatch(model *schema.Model, m Match) (Cond, bool, error) {
	op, known := operators[m.Op]
	if !known {
		return Cond{}, false, apierr.FilterNotSupported(model.Name, m.Op)
	}

	// The regex operator historically targets the model's `name` column
	// only, whatever field the triple names. Kept as a known limitation.
	if op == OpRegex {
		col, ok := model.Column("name")
		if !ok {
			return Cond{}, false, apierr.FilterNotSupported(model.Name, m.Op)
		}
		return Cond{Column: col, Op: OpRegex, Values: m.Values}, true, nil
	}

	col, ok := model.Column(m.Field)
	if !ok {
		return Cond{}, false, nil
	}

	if op == OpBetween && len(m.Values) != 2 {
		return Cond{}, false, apierr.FilterInvalid(model.Name, fmt.Sprintf("between needs 2 values, got %d", len(m.Values)))
	}

	vals := make([]any, 0, len(m.Values))
	for _, v := range m.Values {
		coerced, err := codec.CoerceValue(col, v)
		if err != nil {
			return Cond{}, false, apierr.FilterInvalid(model.Name, fmt.Sprintf("%s %s %v", m.Field, m.Op, v))
		}
		vals = append(vals, coerced)
	}
	return Cond{Column: col, Op: op, Values: vals}, true, nil
}

// Matches evaluates the condition against one record value. It is the
// reference semantics for every store; the SQL compilation in pgstore
// must agree with it.
func (c Cond) Matches(value any) bool {
	switch c.Op {
	case OpEq:
		return len(c.Values) == 1 && compare(value, c.Values[0]) == 0
	case OpNe:
		return len(c.Values) == 1 && compare(value, c.Values[0]) != 0
	case OpLt:
		return allCompare(value, c.Values, func(n int) bool { return n < 0 })
	case OpLe:
		return allCompare(value, c.Values, func(n int) bool { return n <= 0 })
	case OpGt:
		return allCompare(value, c.Values, func(n int) bool { return n > 0 })
	case OpGe:
		return allCompare(value, c.Values, func(n int) bool { return n >= 0 })
	case OpIn:
		for _, v := range c.Values {
			if compare(value, v) == 0 {
				return true
			}
		}
		return false
	case OpBetween:
		return compare(value, c.Values[0]) >= 0 && compare(value, c.Values[1]) <= 0
	case OpLike:
		s, ok := value.(string)
		if !ok {
			return false
		}
		for _, v := range c.Values {
			if prefix, ok := v.(string); ok && strings.HasPrefix(s, prefix) {
				return true
			}
		}
		return false
	case OpRegex:
		s, ok := value.(string)
		if !ok {
			return false
		}
		for _, v := range c.Values {
			expr, ok := v.(string)
			if !ok {
				continue
			}
			if re, err := regexp.Compile(expr); err == nil && re.MatchString(s) {
				return true
			}
		}
		return false
	}
	return false
}

func allCompare(value any, targets []any, pass func(int) bool) bool {
	for _, t := range targets {
		if !pass(compare(value, t)) {
			return false
		}
	}
	return len(targets) > 0
}

// Compare orders two typed values. Numerics compare numerically across
// int64/float64, dates by instant, booleans false<true, strings
// lexicographically. Mismatched or unordered types compare via their
// string forms so ordering stays total.
func Compare(a, b any) int {
	return compare(a, b)
}

func compare(a, b any) int {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			}
			return 0
		}
	}
	if at, aok := a.(time.Time); aok {
		if bt, bok := b.(time.Time); bok {
			return at.Compare(bt)
		}
	}
	if ab, aok := a.(bool); aok {
		if bb, bok := b.(bool); bok {
			switch {
			case ab == bb:
				return 0
			case !ab:
				return -1
			}
			return 1
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
