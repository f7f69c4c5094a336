// Package memstore is an in-memory Store used by tests, examples, and
// deployments that don't need a database. It is the reference
// implementation of the plan semantics: filtering via Cond.Matches,
// ordering via query.Compare, non-strict pagination.
package memstore

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/ocervell/flash/pkg/query"
	"github.com/ocervell/flash/pkg/schema"
	"github.com/ocervell/flash/pkg/store"
)

type table struct {
	records []store.Record
	nextID  int64
}

// Store holds one table per model. All operations are guarded by a
// single mutex; batch mutations are applied on a copy and swapped in,
// so a failing batch leaves the table untouched.
type Store struct {
	tables map[string]*table
	mu     sync.RWMutex
}

func New() *Store {
	return &Store{tables: make(map[string]*table)}
}

// tableFor creates the model's table on first use. Caller holds the
// write lock; read paths use lookup instead.
func (s *Store) tableFor(model *schema.Model) *table {
	t, ok := s.tables[model.Name]
	if !ok {
		t = &table{nextID: 1}
		s.tables[model.Name] = t
	}
	return t
}

func (s *Store) lookup(model *schema.Model) *table {
	if t, ok := s.tables[model.Name]; ok {
		return t
	}
	return &table{}
}

func (s *Store) Select(_ context.Context, plan *query.Plan) ([]store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := s.matching(plan)
	if plan.Order != nil {
		col := plan.Order.Column
		desc := plan.Order.Desc
		sort.SliceStable(matched, func(i, j int) bool {
			n := query.Compare(matched[i][col], matched[j][col])
			if desc {
				return n > 0
			}
			return n < 0
		})
	}
	if plan.Page.Enabled {
		off := plan.Page.Offset()
		if off >= len(matched) {
			return []store.Record{}, nil
		}
		end := min(off+plan.Page.Size, len(matched))
		matched = matched[off:end]
	}
	out := make([]store.Record, len(matched))
	for i, rec := range matched {
		out[i] = cloneRecord(rec)
	}
	return out, nil
}

func (s *Store) Count(_ context.Context, plan *query.Plan) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.matching(plan.CountPlan())), nil
}

func (s *Store) Get(_ context.Context, model *schema.Model, id any) (store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t := s.lookup(model)
	if i := indexByID(t, model, id); i >= 0 {
		return cloneRecord(t.records[i]), nil
	}
	return nil, store.ErrNotFound
}

func (s *Store) InsertAll(_ context.Context, model *schema.Model, records []store.Record) ([]store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.tableFor(model)
	created := make([]store.Record, 0, len(records))
	nextID := t.nextID
	for _, rec := range records {
		rec = cloneRecord(rec)
		if rec[model.PrimaryKey] == nil {
			pk, _ := model.Column(model.PrimaryKey)
			if pk.Type == schema.Integer {
				rec[model.PrimaryKey] = nextID
				nextID++
			} else {
				rec[model.PrimaryKey] = uuid.NewString()
			}
		} else if indexByID(t, model, rec[model.PrimaryKey]) >= 0 {
			return nil, fmt.Errorf("%s %v: %w", model.Name, rec[model.PrimaryKey], store.ErrDuplicate)
		}
		created = append(created, rec)
	}
	// all-or-nothing: nothing above mutated the table
	t.records = append(t.records, created...)
	t.nextID = nextID
	out := make([]store.Record, len(created))
	for i, rec := range created {
		out[i] = cloneRecord(rec)
	}
	return out, nil
}

func (s *Store) UpdateAll(_ context.Context, model *schema.Model, updates []store.Update) ([]store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.tableFor(model)
	// stage on copies so a failed entry aborts the whole batch
	staged := make(map[int]store.Record, len(updates))
	order := make([]int, 0, len(updates))
	for _, u := range updates {
		i := indexByID(t, model, u.ID)
		if i < 0 {
			return nil, store.ErrNotFound
		}
		rec, ok := staged[i]
		if !ok {
			rec = cloneRecord(t.records[i])
		}
		maps.Copy(rec, u.Set)
		for rel, items := range u.Append {
			existing, _ := rec[rel].([]any)
			rec[rel] = append(existing, items...)
		}
		staged[i] = rec
		order = append(order, i)
	}
	for i, rec := range staged {
		t.records[i] = rec
	}
	out := make([]store.Record, len(order))
	for n, i := range order {
		out[n] = cloneRecord(t.records[i])
	}
	return out, nil
}

func (s *Store) DeleteByID(_ context.Context, model *schema.Model, id any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tableFor(model)
	i := indexByID(t, model, id)
	if i < 0 {
		return false, nil
	}
	t.records = append(t.records[:i], t.records[i+1:]...)
	return true, nil
}

func (s *Store) DeleteWhere(_ context.Context, plan *query.Plan) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tableFor(plan.Model)
	kept := t.records[:0:0]
	deleted := 0
	for _, rec := range t.records {
		if recordMatches(plan.Pred, rec) {
			deleted++
			continue
		}
		kept = append(kept, rec)
	}
	t.records = kept
	return deleted, nil
}

// matching returns the records the plan's predicate selects. Caller
// holds the lock.
func (s *Store) matching(plan *query.Plan) []store.Record {
	t := s.lookup(plan.Model)
	matched := make([]store.Record, 0, len(t.records))
	for _, rec := range t.records {
		if recordMatches(plan.Pred, rec) {
			matched = append(matched, rec)
		}
	}
	return matched
}

func recordMatches(pred query.Predicate, rec store.Record) bool {
	for _, cond := range pred.Conds {
		if !cond.Matches(rec[cond.Column.Name]) {
			return false
		}
	}
	return true
}

func indexByID(t *table, model *schema.Model, id any) int {
	for i, rec := range t.records {
		if query.Compare(rec[model.PrimaryKey], id) == 0 {
			return i
		}
	}
	return -1
}

func cloneRecord(rec store.Record) store.Record {
	out := make(store.Record, len(rec))
	maps.Copy(out, rec)
	return out
}
