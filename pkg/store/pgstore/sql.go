package pgstore

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/iancoleman/strcase"
	"github.com/jackc/pgx/v5"
	"github.com/jinzhu/inflection"

	"github.com/ocervell/flash/pkg/query"
	"github.com/ocervell/flash/pkg/schema"
)

// TableName maps a model name to its table: snake_case, pluralized,
// e.g. UserProfile -> user_profiles.
func TableName(model *schema.Model) string {
	return inflection.Plural(strcase.ToSnake(model.Name))
}

// sqlBuilder accumulates a statement and its positional arguments.
type sqlBuilder struct {
	sb   strings.Builder
	args []any
}

func (b *sqlBuilder) write(s string) { b.sb.WriteString(s) }

func (b *sqlBuilder) placeholder(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

func ident(parts ...string) string {
	return pgx.Identifier(parts).Sanitize()
}

// writeWhere compiles the predicate conjunction into a WHERE clause.
// The compilation must agree with query.Cond.Matches.
func (b *sqlBuilder) writeWhere(pred query.Predicate) error {
	if len(pred.Conds) == 0 {
		return nil
	}
	clauses := make([]string, 0, len(pred.Conds))
	for _, c := range pred.Conds {
		clause, err := b.condClause(c)
		if err != nil {
			return err
		}
		clauses = append(clauses, clause)
	}
	b.write(" WHERE ")
	b.write(strings.Join(clauses, " AND "))
	return nil
}

func (b *sqlBuilder) condClause(c query.Cond) (string, error) {
	col := ident(c.Column.Name)
	switch c.Op {
	case query.OpEq:
		if c.Column.Type == schema.Boolean {
			if v, ok := c.Values[0].(bool); ok {
				// IS TRUE / IS FALSE so NULL rows are excluded, not unknown
				if v {
					return fmt.Sprintf("%s IS TRUE", col), nil
				}
				return fmt.Sprintf("%s IS FALSE", col), nil
			}
		}
		return fmt.Sprintf("%s = %s", col, b.placeholder(bindable(c.Values[0]))), nil
	case query.OpNe:
		return fmt.Sprintf("%s != %s", col, b.placeholder(bindable(c.Values[0]))), nil
	case query.OpLt, query.OpLe, query.OpGt, query.OpGe:
		sym := map[query.Op]string{query.OpLt: "<", query.OpLe: "<=", query.OpGt: ">", query.OpGe: ">="}[c.Op]
		clauses := make([]string, 0, len(c.Values))
		for _, v := range c.Values {
			clauses = append(clauses, fmt.Sprintf("%s %s %s", col, sym, b.placeholder(bindable(v))))
		}
		return "(" + strings.Join(clauses, " AND ") + ")", nil
	case query.OpIn:
		placeholders := make([]string, 0, len(c.Values))
		for _, v := range c.Values {
			placeholders = append(placeholders, b.placeholder(bindable(v)))
		}
		return fmt.Sprintf("%s IN (%s)", col, strings.Join(placeholders, ", ")), nil
	case query.OpBetween:
		return fmt.Sprintf("%s BETWEEN %s AND %s",
			col, b.placeholder(bindable(c.Values[0])), b.placeholder(bindable(c.Values[1]))), nil
	case query.OpLike:
		clauses := make([]string, 0, len(c.Values))
		for _, v := range c.Values {
			prefix := fmt.Sprint(v) + "%"
			clauses = append(clauses, fmt.Sprintf("%s LIKE %s", col, b.placeholder(prefix)))
		}
		return "(" + strings.Join(clauses, " OR ") + ")", nil
	case query.OpRegex:
		clauses := make([]string, 0, len(c.Values))
		for _, v := range c.Values {
			clauses = append(clauses, fmt.Sprintf("%s ~ %s", col, b.placeholder(fmt.Sprint(v))))
		}
		return "(" + strings.Join(clauses, " OR ") + ")", nil
	}
	return "", fmt.Errorf("operator %s has no SQL form", c.Op)
}

// bindable converts decoded values into types pgx can bind directly.
// Structured values (JSON columns, relationship lists) bind as JSON text.
func bindable(v any) any {
	switch v.(type) {
	case map[string]any, []any:
		data, _ := json.Marshal(v)
		return string(data)
	}
	return v
}

func buildSelect(plan *query.Plan) (string, []any, error) {
	b := &sqlBuilder{}
	b.write("SELECT * FROM ")
	b.write(ident(TableName(plan.Model)))
	if err := b.writeWhere(plan.Pred); err != nil {
		return "", nil, err
	}
	if plan.Order != nil {
		dir := "ASC"
		if plan.Order.Desc {
			dir = "DESC"
		}
		b.write(fmt.Sprintf(" ORDER BY %s %s", ident(plan.Order.Column), dir))
	}
	if plan.Page.Enabled {
		b.write(fmt.Sprintf(" LIMIT %s", b.placeholder(plan.Page.Size)))
		b.write(fmt.Sprintf(" OFFSET %s", b.placeholder(plan.Page.Offset())))
	}
	return b.sb.String(), b.args, nil
}

func buildCount(plan *query.Plan) (string, []any, error) {
	b := &sqlBuilder{}
	b.write("SELECT COUNT(*) FROM ")
	b.write(ident(TableName(plan.Model)))
	if err := b.writeWhere(plan.Pred); err != nil {
		return "", nil, err
	}
	return b.sb.String(), b.args, nil
}

func buildDelete(plan *query.Plan) (string, []any, error) {
	// bulk delete carries no ORDER BY or LIMIT, ever
	b := &sqlBuilder{}
	b.write("DELETE FROM ")
	b.write(ident(TableName(plan.Model)))
	if err := b.writeWhere(plan.Pred); err != nil {
		return "", nil, err
	}
	return b.sb.String(), b.args, nil
}

func buildInsert(model *schema.Model, rec map[string]any) (string, []any) {
	b := &sqlBuilder{}
	columns := make([]string, 0, len(rec))
	placeholders := make([]string, 0, len(rec))
	for _, name := range orderedKeys(model, rec) {
		columns = append(columns, ident(name))
		placeholders = append(placeholders, b.placeholder(bindable(rec[name])))
	}
	b.write(fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		ident(TableName(model)),
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", ")))
	return b.sb.String(), b.args
}

func buildUpdate(model *schema.Model, id any, set map[string]any, appends map[string][]any) (string, []any) {
	b := &sqlBuilder{}
	clauses := make([]string, 0, len(set)+len(appends))
	for _, name := range orderedKeys(model, set) {
		clauses = append(clauses, fmt.Sprintf("%s = %s", ident(name), b.placeholder(bindable(set[name]))))
	}
	for name, items := range appends {
		data, _ := json.Marshal(items)
		clauses = append(clauses, fmt.Sprintf("%s = COALESCE(%s, '[]'::jsonb) || %s::jsonb",
			ident(name), ident(name), b.placeholder(string(data))))
	}
	where := fmt.Sprintf("%s = %s", ident(model.PrimaryKey), b.placeholder(id))
	b.write(fmt.Sprintf("UPDATE %s SET %s WHERE %s RETURNING *",
		ident(TableName(model)), strings.Join(clauses, ", "), where))
	return b.sb.String(), b.args
}

// orderedKeys walks record keys in model declaration order (columns,
// then relationships) so generated SQL is deterministic.
func orderedKeys(model *schema.Model, rec map[string]any) []string {
	keys := make([]string, 0, len(rec))
	for _, c := range model.Columns {
		if _, ok := rec[c.Name]; ok {
			keys = append(keys, c.Name)
		}
	}
	for _, r := range model.Relationships {
		if _, ok := rec[r.Name]; ok {
			keys = append(keys, r.Name)
		}
	}
	return keys
}
