package rest

import (
	"net/http"
	"time"

	"github.com/iancoleman/strcase"
	"github.com/jinzhu/inflection"

	"github.com/ocervell/flash/pkg/cache"
	"github.com/ocervell/flash/pkg/schema"
	"github.com/ocervell/flash/pkg/store"
)

// Preprocessor mutates a write batch before validation. Preprocessors
// run in registration order; an error aborts the request.
type Preprocessor func(r *http.Request, records []store.Record) error

// Resource binds one model to a pair of routes: a collection route
// (list, batch create/update, bulk delete) and a single-record route
// keyed by primary key.
type Resource struct {
	Model  *schema.Model
	Schema *schema.Schema

	// Path overrides the derived collection path. Derived paths are the
	// snake-cased plural of the model name, e.g. TaskRun -> /task_runs.
	Path string

	// Cached enables response caching for collection reads. Individual
	// requests can still bypass and evict with cache=false.
	Cached bool
	// CacheTTL bounds staleness of cached collection responses.
	// Zero means the cache default.
	CacheTTL time.Duration

	// Preprocess maps an HTTP method (POST, PUT) to hooks applied to
	// the decoded batch before validation.
	Preprocess map[string][]Preprocessor

	// Authenticate guards every route of the resource when set. A
	// returned error yields 401 without touching the store.
	Authenticate func(r *http.Request) error
}

// CollectionPath returns the resource's collection route path.
func (res *Resource) CollectionPath() string {
	if res.Path != "" {
		return res.Path
	}
	return "/" + inflection.Plural(strcase.ToSnake(res.Model.Name))
}

// SinglePath returns the single-record route pattern.
func (res *Resource) SinglePath() string {
	return res.CollectionPath() + "/{id}"
}

func (res *Resource) ttl() time.Duration {
	if res.CacheTTL > 0 {
		return res.CacheTTL
	}
	return cache.DefaultTTL
}

func (res *Resource) preprocess(r *http.Request, records []store.Record) error {
	for _, hook := range res.Preprocess[r.Method] {
		if err := hook(r, records); err != nil {
			return err
		}
	}
	return nil
}
