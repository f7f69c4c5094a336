// Package testutil provides the shared model fixtures used by tests
// across packages.
package testutil

import (
	"github.com/ocervell/flash/pkg/schema"
)

// TaskModel returns the canonical test model: an integer-keyed record
// with one column of each type and a to-many relationship.
func TaskModel() *schema.Model {
	return &schema.Model{
		Name:       "Task",
		PrimaryKey: "id",
		Columns: []schema.Column{
			{Name: "id", Type: schema.Integer},
			{Name: "name", Type: schema.Text},
			{Name: "priority", Type: schema.Integer},
			{Name: "score", Type: schema.Float},
			{Name: "done", Type: schema.Boolean},
			{Name: "due", Type: schema.Date},
			{Name: "meta", Type: schema.JSON},
			{Name: "secret", Type: schema.Text},
			{Name: "created_at", Type: schema.Date},
		},
		Relationships: []schema.Relationship{
			{Name: "tags", Model: "Tag", Many: true},
		},
	}
}

// TaskSchema returns the matching validation contract: name is
// required, secret never crosses the API, created_at is read-only.
func TaskSchema() *schema.Schema {
	return &schema.Schema{
		Required: []string{"name"},
		Excluded: []string{"secret"},
		DumpOnly: []string{"created_at"},
	}
}

// Tasks returns a deterministic seed batch. Records carry no id so
// stores assign 1..n in order.
func Tasks(n int) []map[string]any {
	out := make([]map[string]any, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, map[string]any{
			"name":     "task-" + string(rune('a'+(i-1)%26)),
			"priority": int64(i),
			"score":    float64(i) / 2,
			"done":     i%2 == 0,
		})
	}
	return out
}
