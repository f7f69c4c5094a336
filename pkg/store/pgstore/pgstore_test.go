package pgstore

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocervell/flash/internal/testutil"
	"github.com/ocervell/flash/internal/testutil/pgtest"
	"github.com/ocervell/flash/pkg/query"
	"github.com/ocervell/flash/pkg/store"
)

// Round-trips records through a real database. Runs only when
// TEST_DATABASE points at one.
func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	pool := pgtest.Pool(ctx, t)
	s := NewWithPool(pool)
	model := testutil.TaskModel()

	_, err := pool.Exec(ctx, `DROP TABLE IF EXISTS tasks`)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `CREATE TABLE tasks (
		id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		name TEXT NOT NULL,
		priority BIGINT,
		score DOUBLE PRECISION,
		done BOOLEAN,
		due TIMESTAMP,
		meta JSONB,
		secret TEXT,
		created_at TIMESTAMP DEFAULT now(),
		tags JSONB
	)`)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DROP TABLE IF EXISTS tasks`)
	})

	created, err := s.InsertAll(ctx, model, []store.Record{
		{"name": "a", "priority": int64(1), "done": false},
		{"name": "b", "priority": int64(2), "done": true},
		{"name": "c", "priority": int64(3), "done": true},
	})
	require.NoError(t, err)
	require.Len(t, created, 3)

	f, err := query.Parse(model, url.Values{"done": {"true"}, "order_by": {"priority"}, "sort": {"asc"}})
	require.NoError(t, err)
	pred, err := query.Build(model, testutil.TaskSchema(), f)
	require.NoError(t, err)
	plan := query.Assemble(model, pred, f)

	records, err := s.Select(ctx, plan)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "b", records[0]["name"])
	assert.Equal(t, "c", records[1]["name"])

	count, err := s.Count(ctx, plan)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	rec, err := s.Get(ctx, model, created[0]["id"])
	require.NoError(t, err)
	assert.Equal(t, "a", rec["name"])

	updated, err := s.UpdateAll(ctx, model, []store.Update{
		{ID: created[0]["id"], Set: store.Record{"done": true}},
	})
	require.NoError(t, err)
	assert.Equal(t, true, updated[0]["done"])

	existed, err := s.DeleteByID(ctx, model, created[0]["id"])
	require.NoError(t, err)
	assert.True(t, existed)

	n, err := s.DeleteWhere(ctx, query.DeletePlan(model, pred))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
