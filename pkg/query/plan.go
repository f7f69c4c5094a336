package query

import "github.com/ocervell/flash/pkg/schema"

// Order is the plan's ordering clause.
type Order struct {
	Column string
	Desc   bool
}

// Page is the plan's pagination window. Number is 1-indexed; a page past
// the end of the result set yields an empty result, not an error.
type Page struct {
	Enabled bool
	Number  int
	Size    int
}

// Plan binds a predicate, ordering, and pagination to one model. It is
// built per request and consumed exactly once (fetch, count, or delete).
type Plan struct {
	Model *schema.Model
	Pred  Predicate
	Order *Order
	Page  Page
}

// Assemble composes a fetch plan. Ordering and pagination apply to
// GET/PUT-class reads only; use DeletePlan for bulk deletes.
func Assemble(model *schema.Model, pred Predicate, f *Filters) *Plan {
	return &Plan{
		Model: model,
		Pred:  pred,
		Order: &Order{Column: f.OrderBy, Desc: f.Sort != SortAsc},
		Page: Page{
			Enabled: f.Paginate,
			Number:  f.Page,
			Size:    f.PerPage,
		},
	}
}

// CountPlan strips ordering and pagination: count applies filtering only.
func (p *Plan) CountPlan() *Plan {
	return &Plan{Model: p.Model, Pred: p.Pred}
}

// DeletePlan builds a bulk-delete plan. It never carries ordering or
// pagination: databases reject ORDER BY on bulk delete, so this is a
// correctness rule, not an optimization.
func DeletePlan(model *schema.Model, pred Predicate) *Plan {
	return &Plan{Model: model, Pred: pred}
}

// Offset returns the 0-based record offset of the pagination window.
func (pg Page) Offset() int {
	return (pg.Number - 1) * pg.Size
}
