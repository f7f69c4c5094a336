// Package pgstore executes query plans against PostgreSQL via pgx.
// Plans compile to parameterized SQL; batch mutations run in a single
// transaction so partial application is never committed.
package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ocervell/flash/pkg/query"
	"github.com/ocervell/flash/pkg/schema"
	"github.com/ocervell/flash/pkg/store"
)

type Store struct {
	pool *pgxpool.Pool
}

// New connects a store to the database named by connString.
func New(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool wraps an existing pool, e.g. one shared with migrations.
func NewWithPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Select(ctx context.Context, plan *query.Plan) ([]store.Record, error) {
	sql, args, err := buildSelect(plan)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", plan.Model.Name, err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *Store) Count(ctx context.Context, plan *query.Plan) (int, error) {
	sql, args, err := buildCount(plan.CountPlan())
	if err != nil {
		return 0, err
	}
	var count int
	if err := s.pool.QueryRow(ctx, sql, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count %s: %w", plan.Model.Name, err)
	}
	return count, nil
}

func (s *Store) Get(ctx context.Context, model *schema.Model, id any) (store.Record, error) {
	sql := fmt.Sprintf("SELECT * FROM %s WHERE %s = $1", ident(TableName(model)), ident(model.PrimaryKey))
	rows, err := s.pool.Query(ctx, sql, id)
	if err != nil {
		return nil, fmt.Errorf("get %s %v: %w", model.Name, id, err)
	}
	defer rows.Close()
	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, store.ErrNotFound
	}
	return records[0], nil
}

func (s *Store) InsertAll(ctx context.Context, model *schema.Model, records []store.Record) ([]store.Record, error) {
	var created []store.Record
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, rec := range records {
			sql, args := buildInsert(model, rec)
			rows, err := tx.Query(ctx, sql, args...)
			if err != nil {
				var pgErr *pgconn.PgError
				// 23505 is the SQLSTATE for unique_violation
				if errors.As(err, &pgErr) && pgErr.Code == "23505" {
					return fmt.Errorf("insert %s: %w", model.Name, store.ErrDuplicate)
				}
				return fmt.Errorf("insert %s: %w", model.Name, err)
			}
			out, err := scanRecords(rows)
			rows.Close()
			if err != nil {
				return err
			}
			created = append(created, out...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Store) UpdateAll(ctx context.Context, model *schema.Model, updates []store.Update) ([]store.Record, error) {
	var updated []store.Record
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, u := range updates {
			sql, args := buildUpdate(model, u.ID, u.Set, u.Append)
			rows, err := tx.Query(ctx, sql, args...)
			if err != nil {
				return fmt.Errorf("update %s %v: %w", model.Name, u.ID, err)
			}
			out, err := scanRecords(rows)
			rows.Close()
			if err != nil {
				return err
			}
			if len(out) == 0 {
				return fmt.Errorf("update %s %v: %w", model.Name, u.ID, store.ErrNotFound)
			}
			updated = append(updated, out...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Store) DeleteByID(ctx context.Context, model *schema.Model, id any) (bool, error) {
	sql := fmt.Sprintf("DELETE FROM %s WHERE %s = $1", ident(TableName(model)), ident(model.PrimaryKey))
	tag, err := s.pool.Exec(ctx, sql, id)
	if err != nil {
		return false, fmt.Errorf("delete %s %v: %w", model.Name, id, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) DeleteWhere(ctx context.Context, plan *query.Plan) (int, error) {
	if plan.Order != nil || plan.Page.Enabled {
		return 0, errors.New("bulk delete plan must not carry ordering or pagination")
	}
	sql, args, err := buildDelete(plan)
	if err != nil {
		return 0, err
	}
	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", plan.Model.Name, err)
	}
	return int(tag.RowsAffected()), nil
}

// scanRecords converts pgx rows into generic records keyed by column name.
func scanRecords(rows pgx.Rows) ([]store.Record, error) {
	descs := rows.FieldDescriptions()
	names := make([]string, len(descs))
	for i, fd := range descs {
		names[i] = string(fd.Name)
	}

	records := []store.Record{}
	for rows.Next() {
		values := make([]any, len(names))
		pointers := make([]any, len(names))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}
		rec := make(store.Record, len(names))
		for i, name := range names {
			rec[name] = values[i]
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
