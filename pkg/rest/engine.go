package rest

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"slices"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ocervell/flash/pkg/apierr"
	"github.com/ocervell/flash/pkg/cache"
	"github.com/ocervell/flash/pkg/codec"
	"github.com/ocervell/flash/pkg/httputil"
	"github.com/ocervell/flash/pkg/httputil/middleware"
	"github.com/ocervell/flash/pkg/metrics"
	"github.com/ocervell/flash/pkg/query"
	"github.com/ocervell/flash/pkg/schema"
	"github.com/ocervell/flash/pkg/store"
)

// HeaderTotalCount carries the filtered record count on HEAD responses.
const HeaderTotalCount = "X-Total-Count"

// handler serves one resource's routes.
type handler struct {
	res    *Resource
	store  store.Store
	cache  *cache.Cache
	logger *zap.Logger

	// basePath is the mounted collection path including any router
	// prefix. Cache keys derive from the request URL, so invalidation
	// must use the mounted path, not the bare resource path.
	basePath string
}

// wrap applies per-resource auth and request metrics around a verb handler.
func (h *handler) wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := middleware.NewResponseRecorder(w)

		if h.res.Authenticate != nil {
			if err := h.res.Authenticate(r); err != nil {
				WriteError(h.logger, rec, apierr.Unauthorized(err.Error()))
				h.observe(r, rec.StatusCode, start)
				return
			}
		}
		next(rec, r)
		h.observe(r, rec.StatusCode, start)
	}
}

func (h *handler) observe(r *http.Request, status int, start time.Time) {
	name := h.res.Model.Name
	metrics.Requests.WithLabelValues(name, r.Method, strconv.Itoa(status)).Inc()
	metrics.RequestDuration.WithLabelValues(name, r.Method).Observe(time.Since(start).Seconds())
}

// pathID decodes the {id} path segment as the model's primary-key type.
func (h *handler) pathID(r *http.Request) (any, error) {
	raw := r.PathValue("id")
	pk, _ := h.res.Model.Column(h.res.Model.PrimaryKey)
	id, err := codec.Decode(pk, raw)
	if err != nil {
		return nil, apierr.ResourceNotFound(h.res.Model.Name, raw)
	}
	return id, nil
}

// getOne serves GET on the single-record route. Cached resources cache
// single records under the same prefix as the collection, so any
// mutation evicts both.
func (h *handler) getOne(w http.ResponseWriter, r *http.Request) {
	id, err := h.pathID(r)
	if err != nil {
		WriteError(h.logger, w, err)
		return
	}
	f, err := query.Parse(h.res.Model, r.URL.Query())
	if err != nil {
		WriteError(h.logger, w, err)
		return
	}

	key := cache.Key(r.URL.Path, r.URL.Query())
	if h.res.Cached {
		if !f.Cache {
			h.cache.Delete(key)
		} else if body, ok := h.cache.Get(key); ok {
			metrics.CacheHits.WithLabelValues(h.res.Model.Name, "hit").Inc()
			httputil.Blob(w, http.StatusOK, body)
			return
		} else {
			metrics.CacheHits.WithLabelValues(h.res.Model.Name, "miss").Inc()
		}
	}

	rec, err := h.store.Get(r.Context(), h.res.Model, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			err = apierr.ResourceNotFound(h.res.Model.Name, id)
		}
		WriteError(h.logger, w, err)
		return
	}
	body, err := json.Marshal(h.project(rec, f.Only, f.Exclude))
	if err != nil {
		WriteError(h.logger, w, err)
		return
	}
	if h.res.Cached {
		h.cache.Set(key, body, h.res.ttl())
	}
	httputil.Blob(w, http.StatusOK, body)
}

// getMany serves GET on the collection route. Responses are cached per
// canonical URL when the resource opts in; cache=false evicts the entry
// and serves (and re-caches) a fresh result. A one-element result is
// returned as a bare object rather than a one-element list.
func (h *handler) getMany(w http.ResponseWriter, r *http.Request) {
	f, err := query.Parse(h.res.Model, r.URL.Query())
	if err != nil {
		WriteError(h.logger, w, err)
		return
	}
	pred, err := query.Build(h.res.Model, h.res.Schema, f)
	if err != nil {
		WriteError(h.logger, w, err)
		return
	}

	key := cache.Key(r.URL.Path, r.URL.Query())
	if h.res.Cached {
		if !f.Cache {
			h.cache.Delete(key)
		} else if body, ok := h.cache.Get(key); ok {
			metrics.CacheHits.WithLabelValues(h.res.Model.Name, "hit").Inc()
			httputil.Blob(w, http.StatusOK, body)
			return
		} else {
			metrics.CacheHits.WithLabelValues(h.res.Model.Name, "miss").Inc()
		}
	}

	records, err := h.store.Select(r.Context(), query.Assemble(h.res.Model, pred, f))
	if err != nil {
		WriteError(h.logger, w, err)
		return
	}

	projected := make([]store.Record, 0, len(records))
	for _, rec := range records {
		projected = append(projected, h.project(rec, f.Only, f.Exclude))
	}
	var payload any = projected
	if len(projected) == 1 {
		payload = projected[0]
	}
	body, err := json.Marshal(payload)
	if err != nil {
		WriteError(h.logger, w, err)
		return
	}
	if h.res.Cached {
		h.cache.Set(key, body, h.res.ttl())
	}
	httputil.Blob(w, http.StatusOK, body)
}

// head serves HEAD on the collection route: the filtered record count
// travels in a header, the body stays empty. Ordering and pagination
// parameters are accepted but do not affect the count.
func (h *handler) head(w http.ResponseWriter, r *http.Request) {
	f, err := query.Parse(h.res.Model, r.URL.Query())
	if err != nil {
		WriteError(h.logger, w, err)
		return
	}
	pred, err := query.Build(h.res.Model, h.res.Schema, f)
	if err != nil {
		WriteError(h.logger, w, err)
		return
	}
	count, err := h.store.Count(r.Context(), query.Assemble(h.res.Model, pred, f).CountPlan())
	if err != nil {
		WriteError(h.logger, w, err)
		return
	}
	w.Header().Set(HeaderTotalCount, strconv.Itoa(count))
	w.WriteHeader(http.StatusOK)
}

// create serves POST on the collection route. The body is one object or
// a non-empty array; the batch persists atomically. An object body gets
// an object response, an array body an array response.
func (h *handler) create(w http.ResponseWriter, r *http.Request) {
	batch, single, err := h.decodeBatch(r)
	if err != nil {
		WriteError(h.logger, w, err)
		return
	}
	if err := h.res.preprocess(r, batch); err != nil {
		WriteError(h.logger, w, err)
		return
	}

	loaded := make([]store.Record, 0, len(batch))
	for _, rec := range batch {
		if field, bad := h.forbiddenWrite(rec); bad {
			WriteError(h.logger, w, apierr.Forbidden(h.res.Model.Name, field))
			return
		}
		out, ferrs := codec.LoadRecord(h.res.Model, h.res.Schema, rec, false)
		if ferrs != nil {
			WriteError(h.logger, w, apierr.SchemaValidation(h.res.Model.Name, ferrs))
			return
		}
		loaded = append(loaded, out)
	}

	created, err := h.store.InsertAll(r.Context(), h.res.Model, loaded)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			err = apierr.ResourceAlreadyExists(h.res.Model.Name, h.batchIDs(loaded))
		}
		WriteError(h.logger, w, err)
		return
	}
	h.cache.InvalidatePrefix(h.basePath)

	projected := make([]store.Record, 0, len(created))
	for _, rec := range created {
		projected = append(projected, h.project(rec, nil, nil))
	}
	if single {
		httputil.JSON(w, http.StatusCreated, projected[0])
		return
	}
	httputil.JSON(w, http.StatusCreated, projected)
}

// update serves PUT on both routes. On the single-record route the path
// id addresses the record; on the collection route every object in the
// batch must carry the primary key. The batch applies atomically.
func (h *handler) update(w http.ResponseWriter, r *http.Request) {
	f, err := query.Parse(h.res.Model, r.URL.Query())
	if err != nil {
		WriteError(h.logger, w, err)
		return
	}
	batch, single, err := h.decodeBatch(r)
	if err != nil {
		WriteError(h.logger, w, err)
		return
	}

	var pathID any
	if r.PathValue("id") != "" {
		if pathID, err = h.pathID(r); err != nil {
			WriteError(h.logger, w, err)
			return
		}
		if !single {
			WriteError(h.logger, w, apierr.BadRequest("%s: single-record route takes one object", h.res.Model.Name))
			return
		}
	}
	if err := h.res.preprocess(r, batch); err != nil {
		WriteError(h.logger, w, err)
		return
	}

	updates := make([]store.Update, 0, len(batch))
	for _, rec := range batch {
		id := pathID
		if id == nil {
			raw, present := rec[h.res.Model.PrimaryKey]
			if !present {
				WriteError(h.logger, w, apierr.MissingParameter(h.res.Model.Name, h.res.Model.PrimaryKey))
				return
			}
			pk, _ := h.res.Model.Column(h.res.Model.PrimaryKey)
			if id, err = codec.CoerceValue(pk, raw); err != nil {
				WriteError(h.logger, w, apierr.ResourceNotFound(h.res.Model.Name, raw))
				return
			}
		}
		// the pk addresses the record, it is not a writable field
		delete(rec, h.res.Model.PrimaryKey)

		if field, bad := h.forbiddenWrite(rec); bad {
			WriteError(h.logger, w, apierr.Forbidden(h.res.Model.Name, field))
			return
		}
		set, ferrs := codec.LoadRecord(h.res.Model, h.res.Schema, rec, true)
		if ferrs != nil {
			WriteError(h.logger, w, apierr.SchemaValidation(h.res.Model.Name, ferrs))
			return
		}
		updates = append(updates, h.buildUpdate(id, set, f.Action))
	}

	updated, err := h.store.UpdateAll(r.Context(), h.res.Model, updates)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			err = apierr.ResourceNotFound(h.res.Model.Name, h.updateIDs(updates))
		}
		WriteError(h.logger, w, err)
		return
	}
	h.cache.InvalidatePrefix(h.basePath)

	projected := make([]store.Record, 0, len(updated))
	for _, rec := range updated {
		projected = append(projected, h.project(rec, f.Only, f.Exclude))
	}
	if single {
		httputil.JSON(w, http.StatusOK, projected[0])
		return
	}
	httputil.JSON(w, http.StatusOK, projected)
}

// buildUpdate splits a loaded record into overwrite and append parts.
// With _action=append, relationship collections are extended instead of
// replaced; scalar columns always overwrite.
func (h *handler) buildUpdate(id any, set store.Record, action string) store.Update {
	u := store.Update{ID: id, Set: set}
	if action != query.ActionAppend {
		return u
	}
	for name, val := range set {
		if _, ok := h.res.Model.Relationship(name); !ok {
			continue
		}
		if u.Append == nil {
			u.Append = make(map[string][]any)
		}
		if list, ok := val.([]any); ok {
			u.Append[name] = list
		} else {
			u.Append[name] = []any{val}
		}
		delete(set, name)
	}
	return u
}

// deleteOne serves DELETE on the single-record route. Deleting an id
// that does not exist is not an error; the response reports whether a
// record was removed.
func (h *handler) deleteOne(w http.ResponseWriter, r *http.Request) {
	id, err := h.pathID(r)
	if err != nil {
		WriteError(h.logger, w, err)
		return
	}
	existed, err := h.store.DeleteByID(r.Context(), h.res.Model, id)
	if err != nil {
		WriteError(h.logger, w, err)
		return
	}
	if existed {
		h.cache.InvalidatePrefix(h.basePath)
	}
	httputil.JSON(w, http.StatusOK, map[string]any{"deleted": existed})
}

// deleteMany serves DELETE on the collection route: every record the
// filters match is removed in one statement. Ordering and pagination
// never apply to a bulk delete.
func (h *handler) deleteMany(w http.ResponseWriter, r *http.Request) {
	f, err := query.Parse(h.res.Model, r.URL.Query())
	if err != nil {
		WriteError(h.logger, w, err)
		return
	}
	pred, err := query.Build(h.res.Model, h.res.Schema, f)
	if err != nil {
		WriteError(h.logger, w, err)
		return
	}
	count, err := h.store.DeleteWhere(r.Context(), query.DeletePlan(h.res.Model, pred))
	if err != nil {
		WriteError(h.logger, w, err)
		return
	}
	if count > 0 {
		h.cache.InvalidatePrefix(h.basePath)
	}
	httputil.JSON(w, http.StatusOK, map[string]any{"deleted": count})
}

// decodeBatch reads the request body as one object or a non-empty array
// of objects. The bool reports the object form, which round-trips as an
// object response.
func (h *handler) decodeBatch(r *http.Request) ([]store.Record, bool, error) {
	var payload any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, false, apierr.NoPostData(h.res.Model.Name)
		}
		return nil, false, apierr.BadRequest("%s: invalid json body: %v", h.res.Model.Name, err)
	}
	switch v := payload.(type) {
	case map[string]any:
		return []store.Record{v}, true, nil
	case []any:
		if len(v) == 0 {
			return nil, false, apierr.NoPostData(h.res.Model.Name)
		}
		batch := make([]store.Record, 0, len(v))
		for _, item := range v {
			rec, ok := item.(map[string]any)
			if !ok {
				return nil, false, apierr.BadRequest("%s: array body must contain objects", h.res.Model.Name)
			}
			batch = append(batch, rec)
		}
		return batch, false, nil
	case nil:
		return nil, false, apierr.NoPostData(h.res.Model.Name)
	default:
		return nil, false, apierr.BadRequest("%s: body must be an object or an array of objects", h.res.Model.Name)
	}
}

// forbiddenWrite returns the first write-forbidden field in the payload.
func (h *handler) forbiddenWrite(rec store.Record) (string, bool) {
	for name := range rec {
		if h.res.Schema.IsForbidden(name, schema.Write) {
			return name, true
		}
	}
	return "", false
}

// project strips read-forbidden fields and applies only/exclude. When
// only is non-empty it wins over exclude.
func (h *handler) project(rec store.Record, only, exclude []string) store.Record {
	out := make(store.Record, len(rec))
	for name, val := range rec {
		if h.res.Schema.IsForbidden(name, schema.Read) {
			continue
		}
		if len(only) > 0 {
			if !slices.Contains(only, name) {
				continue
			}
		} else if slices.Contains(exclude, name) {
			continue
		}
		out[name] = val
	}
	return out
}

func (h *handler) batchIDs(records []store.Record) []any {
	var ids []any
	for _, rec := range records {
		if id, ok := rec[h.res.Model.PrimaryKey]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func (h *handler) updateIDs(updates []store.Update) []any {
	ids := make([]any, len(updates))
	for i, u := range updates {
		ids[i] = u.ID
	}
	return ids
}
