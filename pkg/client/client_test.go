package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocervell/flash/pkg/apierr"
)

func TestTokenRefreshReplaysOnce(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"message": "Unauthorized: token expired"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"id": 1, "name": "x"})
	}))
	defer srv.Close()

	tokens := []string{"stale", "fresh"}
	var issued atomic.Int32
	c := New(srv.URL, WithTokenFunc(func(ctx context.Context) (string, error) {
		n := issued.Add(1)
		return tokens[min(int(n)-1, 1)], nil
	}))

	rec, err := c.Resource("/tasks").Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "x", rec["name"])
	assert.Equal(t, int32(2), calls.Load(), "one original request plus one replay")
}

func TestUnauthorizedWithoutTokenFuncSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"message": "Unauthorized: nope"})
	}))
	defer srv.Close()

	_, err := New(srv.URL).Resource("/tasks").Get(context.Background(), 1)
	require.Error(t, err)
	e, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, "Unauthorized", e.Kind)
	assert.Equal(t, http.StatusUnauthorized, e.Code)
}

func TestErrorDecoding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"message": "ResourceNotFound: Task 9"})
	}))
	defer srv.Close()

	_, err := New(srv.URL).Resource("/tasks").Get(context.Background(), 9)
	require.Error(t, err)
	e, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, "ResourceNotFound", e.Kind)
	assert.Equal(t, "Task 9", e.Message)
	assert.Equal(t, http.StatusNotFound, e.Code)
}

func TestListUnwrapsObjectResponses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// servers collapse one-element results to a bare object
		json.NewEncoder(w).Encode(map[string]any{"id": 1})
	}))
	defer srv.Close()

	records, err := New(srv.URL).Resource("/tasks").List(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, float64(1), records[0]["id"])
}

func TestCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodHead, r.Method)
		w.Header().Set(headerTotalCount, "42")
	}))
	defer srv.Close()

	count, err := New(srv.URL).Resource("/tasks").Count(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 42, count)
}

func TestCreateBatchSplitsOversizedPayloads(t *testing.T) {
	var batches [][]Record
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var batch []Record
		require.NoError(t, json.NewDecoder(r.Body).Decode(&batch))
		batches = append(batches, batch)
		json.NewEncoder(w).Encode(batch)
	}))
	defer srv.Close()

	items := make([]Record, 50)
	for i := range items {
		items[i] = Record{"name": "task-" + strconv.Itoa(i)}
	}
	c := New(srv.URL, WithMaxRequestSize(300))

	created, err := c.Resource("/tasks").CreateBatch(context.Background(), items)
	require.NoError(t, err)
	assert.Len(t, created, 50, "all records created across chunks")
	assert.Greater(t, len(batches), 1, "payload over the limit must split")
	for _, batch := range batches {
		data, err := json.Marshal(batch)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(data), 300)
	}
}

func TestListSplitsOversizedIDFilters(t *testing.T) {
	var requests []url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, r.URL.Query())
		// decode the comma-joined in-list the way the server does
		out := make([]Record, 0)
		for _, id := range strings.Split(r.URL.Query().Get("id"), ",") {
			n, _ := strconv.Atoi(id)
			out = append(out, Record{"id": n})
		}
		json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	params := url.Values{"paginate": {"false"}}
	for i := 1; i <= 100; i++ {
		params.Add("id", strconv.Itoa(i))
	}
	c := New(srv.URL, WithMaxRequestSize(200))

	records, err := c.Resource("/tasks").List(context.Background(), params)
	require.NoError(t, err)
	assert.Len(t, records, 100, "results concatenate across chunks")
	assert.Greater(t, len(requests), 1)
	for _, q := range requests {
		assert.Equal(t, "false", q.Get("paginate"), "non-id parameters ride along on every chunk")
		assert.Len(t, q["id"], 1, "ids travel as one comma-joined value")
		assert.LessOrEqual(t, len("/tasks?")+len(q.Encode()), 200)
	}
}

func TestChunkBySize(t *testing.T) {
	items := []Record{
		{"name": "aaaaaaaaaa"},
		{"name": "bbbbbbbbbb"},
		{"name": "cccccccccc"},
	}
	chunks, err := chunkBySize(items, 46)
	require.NoError(t, err)
	assert.Len(t, chunks, 2)
	assert.Len(t, chunks[0], 2)
	assert.Len(t, chunks[1], 1)

	// one record over the limit still ships
	chunks, err = chunkBySize(items[:1], 3)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
}

func TestDelete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tasks/1":
			json.NewEncoder(w).Encode(map[string]any{"deleted": true})
		case "/tasks":
			json.NewEncoder(w).Encode(map[string]any{"deleted": 7})
		}
	}))
	defer srv.Close()

	tasks := New(srv.URL).Resource("/tasks")
	existed, err := tasks.Delete(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, existed)

	n, err := tasks.DeleteMany(context.Background(), url.Values{"done": {"true"}})
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestDecodeIntoStruct(t *testing.T) {
	type Task struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
		Done bool   `json:"done"`
	}
	var task Task
	err := Decode(Record{"id": float64(3), "name": "x", "done": true}, &task)
	require.NoError(t, err)
	assert.Equal(t, Task{ID: 3, Name: "x", Done: true}, task)
}
