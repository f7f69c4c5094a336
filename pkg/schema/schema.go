// Package schema holds the static model descriptors the rest of the
// framework works against: column names and types, relationships, the
// primary key, and the validation contract for writes. Descriptors are
// declared once at startup and registered in a read-only Registry so
// request handling never reflects over application types.
package schema

import (
	"fmt"
	"maps"
	"sync"
)

// ColumnType is the declared scalar type of a column. It acts as a
// capability contract for the codec and the predicate builder.
type ColumnType string

const (
	Text    ColumnType = "text"
	Integer ColumnType = "integer"
	Float   ColumnType = "float"
	Boolean ColumnType = "boolean"
	Date    ColumnType = "date"
	JSON    ColumnType = "json"
)

type Column struct {
	Name string     `json:"name" yaml:"name"`
	Type ColumnType `json:"type" yaml:"type"`
}

// Relationship links a model to another registered model. Related
// collections are carried inline on the owning record (a JSON-valued
// field named after the relationship).
type Relationship struct {
	Name  string `json:"name" yaml:"name"`
	Model string `json:"model" yaml:"model"`
	Many  bool   `json:"many" yaml:"many"`
}

// Model describes one record type: an ordered set of typed columns,
// zero or more relationships, and exactly one primary-key column.
type Model struct {
	Name          string         `json:"name" yaml:"name"`
	Columns       []Column       `json:"columns" yaml:"columns"`
	Relationships []Relationship `json:"relationships,omitempty" yaml:"relationships,omitempty"`
	PrimaryKey    string         `json:"primary_key" yaml:"primaryKey"`
}

// Column returns the column descriptor for name, if declared.
func (m *Model) Column(name string) (Column, bool) {
	for _, c := range m.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// HasColumn reports whether the model declares a column with this name.
func (m *Model) HasColumn(name string) bool {
	_, ok := m.Column(name)
	return ok
}

// Relationship returns the relationship descriptor for name, if declared.
func (m *Model) Relationship(name string) (Relationship, bool) {
	for _, r := range m.Relationships {
		if r.Name == name {
			return r, true
		}
	}
	return Relationship{}, false
}

// ColumnNames returns the declared column names in declaration order.
func (m *Model) ColumnNames() []string {
	names := make([]string, len(m.Columns))
	for i, c := range m.Columns {
		names[i] = c.Name
	}
	return names
}

// Validate checks the model descriptor invariants: a non-empty name, at
// least one column, and a primary key naming a declared column.
func (m *Model) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("model has no name")
	}
	if len(m.Columns) == 0 {
		return fmt.Errorf("model %s has no columns", m.Name)
	}
	seen := make(map[string]bool, len(m.Columns))
	for _, c := range m.Columns {
		if seen[c.Name] {
			return fmt.Errorf("model %s declares column %s twice", m.Name, c.Name)
		}
		seen[c.Name] = true
	}
	if m.PrimaryKey == "" {
		return fmt.Errorf("model %s has no primary key", m.Name)
	}
	if !m.HasColumn(m.PrimaryKey) {
		return fmt.Errorf("model %s primary key %s is not a column", m.Name, m.PrimaryKey)
	}
	return nil
}

// Registry is the startup-built index of model descriptors. It is safe
// for concurrent readers; models cannot be replaced once registered.
type Registry struct {
	models map[string]*Model
	mu     sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{models: make(map[string]*Model)}
}

// Register validates and adds a model. Registering the same name twice
// is an error: descriptors are immutable after declaration.
func (r *Registry) Register(m *Model) error {
	if err := m.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.models[m.Name]; exists {
		return fmt.Errorf("model %s already registered", m.Name)
	}
	r.models[m.Name] = m
	return nil
}

// Lookup returns the model registered under name.
func (r *Registry) Lookup(name string) (*Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[name]
	return m, ok
}

// Snapshot returns a copy of the registered model index.
func (r *Registry) Snapshot() map[string]*Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap := make(map[string]*Model, len(r.models))
	maps.Copy(snap, r.models)
	return snap
}
