package pgstore

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocervell/flash/internal/testutil"
	"github.com/ocervell/flash/pkg/query"
	"github.com/ocervell/flash/pkg/schema"
)

func fetchPlan(t *testing.T, params url.Values) *query.Plan {
	t.Helper()
	model := testutil.TaskModel()
	f, err := query.Parse(model, params)
	require.NoError(t, err)
	pred, err := query.Build(model, testutil.TaskSchema(), f)
	require.NoError(t, err)
	return query.Assemble(model, pred, f)
}

func TestTableName(t *testing.T) {
	assert.Equal(t, "tasks", TableName(&schema.Model{Name: "Task"}))
	assert.Equal(t, "user_profiles", TableName(&schema.Model{Name: "UserProfile"}))
	assert.Equal(t, "addresses", TableName(&schema.Model{Name: "Address"}))
}

func TestBuildSelect(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		sql, args, err := buildSelect(fetchPlan(t, nil))
		require.NoError(t, err)
		assert.Equal(t, `SELECT * FROM "tasks" ORDER BY "id" DESC LIMIT $1 OFFSET $2`, sql)
		assert.Equal(t, []any{10, 0}, args)
	})

	t.Run("direct equality filter", func(t *testing.T) {
		sql, args, err := buildSelect(fetchPlan(t, url.Values{"priority": {"3"}, "paginate": {"false"}}))
		require.NoError(t, err)
		assert.Equal(t, `SELECT * FROM "tasks" WHERE "priority" = $1 ORDER BY "id" DESC`, sql)
		assert.Equal(t, []any{int64(3)}, args)
	})

	t.Run("value list compiles to IN", func(t *testing.T) {
		sql, args, err := buildSelect(fetchPlan(t, url.Values{"priority": {"1,2"}, "paginate": {"false"}}))
		require.NoError(t, err)
		assert.Equal(t, `SELECT * FROM "tasks" WHERE "priority" IN ($1, $2) ORDER BY "id" DESC`, sql)
		assert.Equal(t, []any{int64(1), int64(2)}, args)
	})

	t.Run("boolean equality compiles to IS", func(t *testing.T) {
		sql, args, err := buildSelect(fetchPlan(t, url.Values{"done": {"true"}, "paginate": {"false"}}))
		require.NoError(t, err)
		assert.Equal(t, `SELECT * FROM "tasks" WHERE "done" IS TRUE ORDER BY "id" DESC`, sql)
		assert.Empty(t, args)
	})

	t.Run("between", func(t *testing.T) {
		sql, args, err := buildSelect(fetchPlan(t, url.Values{
			"match":    {`[["priority", "between", [2, 5]]]`},
			"paginate": {"false"},
		}))
		require.NoError(t, err)
		assert.Equal(t, `SELECT * FROM "tasks" WHERE "priority" BETWEEN $1 AND $2 ORDER BY "id" DESC`, sql)
		assert.Equal(t, []any{int64(2), int64(5)}, args)
	})

	t.Run("like prefixes OR together", func(t *testing.T) {
		sql, args, err := buildSelect(fetchPlan(t, url.Values{
			"match":    {`[["name", "like", "web,api"]]`},
			"paginate": {"false"},
		}))
		require.NoError(t, err)
		assert.Equal(t, `SELECT * FROM "tasks" WHERE ("name" LIKE $1 OR "name" LIKE $2) ORDER BY "id" DESC`, sql)
		assert.Equal(t, []any{"web%", "api%"}, args)
	})

	t.Run("regex targets name", func(t *testing.T) {
		sql, args, err := buildSelect(fetchPlan(t, url.Values{
			"match":    {`[["priority", "~", "^web"]]`},
			"paginate": {"false"},
		}))
		require.NoError(t, err)
		assert.Equal(t, `SELECT * FROM "tasks" WHERE ("name" ~ $1) ORDER BY "id" DESC`, sql)
		assert.Equal(t, []any{"^web"}, args)
	})
}

func TestBuildCountAndDelete(t *testing.T) {
	plan := fetchPlan(t, url.Values{"priority": {"3"}})

	sql, args, err := buildCount(plan.CountPlan())
	require.NoError(t, err)
	assert.Equal(t, `SELECT COUNT(*) FROM "tasks" WHERE "priority" = $1`, sql)
	assert.Equal(t, []any{int64(3)}, args)

	sql, args, err = buildDelete(query.DeletePlan(plan.Model, plan.Pred))
	require.NoError(t, err)
	assert.Equal(t, `DELETE FROM "tasks" WHERE "priority" = $1`, sql)
	assert.Equal(t, []any{int64(3)}, args)
}

func TestBuildInsert(t *testing.T) {
	model := testutil.TaskModel()
	sql, args := buildInsert(model, map[string]any{
		"name":     "write docs",
		"priority": int64(1),
		"tags":     []any{"docs"},
	})
	assert.Equal(t, `INSERT INTO "tasks" ("name", "priority", "tags") VALUES ($1, $2, $3) RETURNING *`, sql)
	assert.Equal(t, []any{"write docs", int64(1), `["docs"]`}, args)
}

func TestBuildUpdate(t *testing.T) {
	model := testutil.TaskModel()

	t.Run("overwrite", func(t *testing.T) {
		sql, args := buildUpdate(model, int64(7), map[string]any{"name": "renamed", "done": true}, nil)
		assert.Equal(t, `UPDATE "tasks" SET "name" = $1, "done" = $2 WHERE "id" = $3 RETURNING *`, sql)
		assert.Equal(t, []any{"renamed", true, int64(7)}, args)
	})

	t.Run("append concatenates jsonb", func(t *testing.T) {
		sql, args := buildUpdate(model, int64(7), nil, map[string][]any{"tags": {"extra"}})
		assert.Equal(t, `UPDATE "tasks" SET "tags" = COALESCE("tags", '[]'::jsonb) || $1::jsonb WHERE "id" = $2 RETURNING *`, sql)
		assert.Equal(t, []any{`["extra"]`, int64(7)}, args)
	})
}
