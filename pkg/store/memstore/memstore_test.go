package memstore

import (
	"context"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocervell/flash/internal/testutil"
	"github.com/ocervell/flash/pkg/query"
	"github.com/ocervell/flash/pkg/store"
)

func seed(t *testing.T, s *Store, n int) []store.Record {
	t.Helper()
	created, err := s.InsertAll(context.Background(), testutil.TaskModel(), testutil.Tasks(n))
	require.NoError(t, err)
	require.Len(t, created, n)
	return created
}

func plan(t *testing.T, params url.Values) *query.Plan {
	t.Helper()
	model := testutil.TaskModel()
	f, err := query.Parse(model, params)
	require.NoError(t, err)
	pred, err := query.Build(model, testutil.TaskSchema(), f)
	require.NoError(t, err)
	return query.Assemble(model, pred, f)
}

func TestInsertAssignsIntegerIDs(t *testing.T) {
	s := New()
	created := seed(t, s, 3)
	for i, rec := range created {
		assert.Equal(t, int64(i+1), rec["id"])
	}
}

func TestInsertDuplicatePrimaryKeyAbortsBatch(t *testing.T) {
	s := New()
	ctx := context.Background()
	model := testutil.TaskModel()

	_, err := s.InsertAll(ctx, model, []store.Record{{"id": int64(1), "name": "first"}})
	require.NoError(t, err)

	_, err = s.InsertAll(ctx, model, []store.Record{
		{"name": "fresh"},
		{"id": int64(1), "name": "dup"},
	})
	require.ErrorIs(t, err, store.ErrDuplicate)

	// nothing from the failed batch landed
	count, err := s.Count(ctx, query.DeletePlan(model, query.Predicate{}))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestGet(t *testing.T) {
	s := New()
	seed(t, s, 2)
	ctx := context.Background()
	model := testutil.TaskModel()

	rec, err := s.Get(ctx, model, int64(2))
	require.NoError(t, err)
	assert.Equal(t, int64(2), rec["id"])

	_, err = s.Get(ctx, model, int64(99))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSelectFilterOrderPaginate(t *testing.T) {
	s := New()
	seed(t, s, 30)
	ctx := context.Background()

	t.Run("count equals matched records", func(t *testing.T) {
		records, err := s.Select(ctx, plan(t, url.Values{"done": {"true"}, "paginate": {"false"}}))
		require.NoError(t, err)
		count, err := s.Count(ctx, plan(t, url.Values{"done": {"true"}}))
		require.NoError(t, err)
		assert.Equal(t, count, len(records))
		assert.Equal(t, 15, count)
	})

	t.Run("default order is primary key descending", func(t *testing.T) {
		records, err := s.Select(ctx, plan(t, nil))
		require.NoError(t, err)
		require.Len(t, records, 10) // default page size
		assert.Equal(t, int64(30), records[0]["id"])
		assert.Equal(t, int64(21), records[9]["id"])
	})

	t.Run("page 2 of 20 yields records 21-40 positions", func(t *testing.T) {
		records, err := s.Select(ctx, plan(t, url.Values{
			"order_by": {"id"}, "sort": {"asc"}, "per_page": {"20"}, "page": {"2"},
		}))
		require.NoError(t, err)
		require.Len(t, records, 10) // only 30 exist
		assert.Equal(t, int64(21), records[0]["id"])
		assert.Equal(t, int64(30), records[9]["id"])
	})

	t.Run("page past the end is empty not an error", func(t *testing.T) {
		records, err := s.Select(ctx, plan(t, url.Values{"page": {"99"}}))
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("pagination concatenation covers the set", func(t *testing.T) {
		var ids []any
		for page := 1; page <= 3; page++ {
			records, err := s.Select(ctx, plan(t, url.Values{
				"order_by": {"id"}, "sort": {"asc"}, "page": {strconv.Itoa(page)},
			}))
			require.NoError(t, err)
			for _, rec := range records {
				ids = append(ids, rec["id"])
			}
		}
		assert.Len(t, ids, 30)
		assert.Equal(t, int64(1), ids[0])
		assert.Equal(t, int64(30), ids[29])
	})

	t.Run("text column descending is lexicographic", func(t *testing.T) {
		records, err := s.Select(ctx, plan(t, url.Values{
			"order_by": {"name"}, "sort": {"desc"}, "paginate": {"false"},
		}))
		require.NoError(t, err)
		require.Len(t, records, 30)
		for i := 1; i < len(records); i++ {
			prev, cur := records[i-1]["name"].(string), records[i]["name"].(string)
			assert.GreaterOrEqual(t, prev, cur)
		}
	})

	t.Run("match filters apply", func(t *testing.T) {
		records, err := s.Select(ctx, plan(t, url.Values{
			"match": {`[["priority", "between", [5, 8]]]`}, "paginate": {"false"},
		}))
		require.NoError(t, err)
		assert.Len(t, records, 4)
	})
}

func TestUpdateAll(t *testing.T) {
	model := testutil.TaskModel()
	ctx := context.Background()

	t.Run("applies set values", func(t *testing.T) {
		s := New()
		seed(t, s, 3)
		updated, err := s.UpdateAll(ctx, model, []store.Update{
			{ID: int64(1), Set: store.Record{"done": true}},
			{ID: int64(2), Set: store.Record{"done": true}},
		})
		require.NoError(t, err)
		require.Len(t, updated, 2)
		for _, rec := range updated {
			assert.Equal(t, true, rec["done"])
		}
	})

	t.Run("missing id aborts the whole batch", func(t *testing.T) {
		s := New()
		seed(t, s, 2)
		_, err := s.UpdateAll(ctx, model, []store.Update{
			{ID: int64(1), Set: store.Record{"name": "changed"}},
			{ID: int64(99), Set: store.Record{"name": "ghost"}},
		})
		require.ErrorIs(t, err, store.ErrNotFound)

		rec, err := s.Get(ctx, model, int64(1))
		require.NoError(t, err)
		assert.NotEqual(t, "changed", rec["name"], "failed batch must leave records untouched")
	})

	t.Run("append extends relationship collections", func(t *testing.T) {
		s := New()
		_, err := s.InsertAll(ctx, model, []store.Record{
			{"name": "x", "tags": []any{"a"}},
		})
		require.NoError(t, err)

		updated, err := s.UpdateAll(ctx, model, []store.Update{
			{ID: int64(1), Append: map[string][]any{"tags": {"b", "c"}}},
		})
		require.NoError(t, err)
		assert.Equal(t, []any{"a", "b", "c"}, updated[0]["tags"])
	})
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	model := testutil.TaskModel()

	t.Run("by id reports existence", func(t *testing.T) {
		s := New()
		seed(t, s, 2)
		existed, err := s.DeleteByID(ctx, model, int64(1))
		require.NoError(t, err)
		assert.True(t, existed)

		existed, err = s.DeleteByID(ctx, model, int64(1))
		require.NoError(t, err)
		assert.False(t, existed)
	})

	t.Run("where removes every match", func(t *testing.T) {
		s := New()
		seed(t, s, 10)
		f, err := query.Parse(model, url.Values{"done": {"true"}})
		require.NoError(t, err)
		pred, err := query.Build(model, nil, f)
		require.NoError(t, err)

		n, err := s.DeleteWhere(ctx, query.DeletePlan(model, pred))
		require.NoError(t, err)
		assert.Equal(t, 5, n)

		count, err := s.Count(ctx, query.DeletePlan(model, query.Predicate{}))
		require.NoError(t, err)
		assert.Equal(t, 5, count)
	})
}

func TestSelectReturnsCopies(t *testing.T) {
	s := New()
	seed(t, s, 1)
	ctx := context.Background()

	records, err := s.Select(ctx, plan(t, nil))
	require.NoError(t, err)
	records[0]["name"] = "mutated"

	rec, err := s.Get(ctx, testutil.TaskModel(), int64(1))
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", rec["name"])
}
