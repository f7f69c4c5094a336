// Package store defines the query-execution interface the resource
// engine drives. Implementations execute one plan per call; batch
// mutations are atomic (the whole batch commits or none of it does).
package store

import (
	"context"
	"errors"

	"github.com/ocervell/flash/pkg/query"
	"github.com/ocervell/flash/pkg/schema"
)

// ErrNotFound is returned by Get when no record matches the id.
var ErrNotFound = errors.New("record not found")

// ErrDuplicate is returned by InsertAll when a record's primary key
// already exists.
var ErrDuplicate = errors.New("duplicate primary key")

// Record is one row, keyed by column (and relationship) name.
type Record = map[string]any

// Update is one entry of a batch update. Set values overwrite the
// record's fields; Append values extend relationship collections
// instead of replacing them (_action=append semantics).
type Update struct {
	ID     any
	Set    Record
	Append map[string][]any
}

// Store executes query plans and mutations for registered models.
type Store interface {
	// Select fetches the records matched by plan, ordered and paginated
	// as the plan dictates.
	Select(ctx context.Context, plan *query.Plan) ([]Record, error)
	// Count returns the number of records the plan's predicate matches,
	// ignoring ordering and pagination.
	Count(ctx context.Context, plan *query.Plan) (int, error)
	// Get fetches one record by primary key. Returns ErrNotFound when
	// the id does not resolve.
	Get(ctx context.Context, model *schema.Model, id any) (Record, error)
	// InsertAll persists the batch atomically and returns the created
	// records with server-assigned fields filled in.
	InsertAll(ctx context.Context, model *schema.Model, records []Record) ([]Record, error)
	// UpdateAll applies the batch atomically and returns the updated
	// records in batch order.
	UpdateAll(ctx context.Context, model *schema.Model, updates []Update) ([]Record, error)
	// DeleteByID removes one record. The bool reports whether a record
	// existed; deleting a missing id is not an error.
	DeleteByID(ctx context.Context, model *schema.Model, id any) (bool, error)
	// DeleteWhere removes every record the plan's predicate matches in
	// one statement and returns the count. The plan must carry no
	// ordering or pagination.
	DeleteWhere(ctx context.Context, plan *query.Plan) (int, error)
}
