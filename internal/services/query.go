package services

import (
	"sort"

	"github.com/owuorvin/jubabuy/internal/filters"
	"github.com/owuorvin/jubabuy/internal/store"
)

// BuildQuery turns normalized criteria into a store query using the kind's catalog entry.
// Values without a catalog field are ignored.
func BuildQuery(c filters.Criteria) store.Query {
	spec := filters.Lookup(c.Kind)
	q := store.Query{
		Kind:       c.Kind,
		SortColumn: "created_at",
		Descending: c.SortOrder != "asc",
		Offset:     c.Offset(),
		Limit:      c.Limit,
	}
	if spec == nil {
		return q
	}

	if c.Status != "" {
		q.Predicates = append(q.Predicates, store.Predicate{Column: "status", Op: store.OpEq, Value: c.Status})
	}

	keys := make([]string, 0, len(c.Values))
	for k := range c.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		f, ok := spec.Field(k)
		if !ok {
			continue
		}
		q.Predicates = append(q.Predicates, store.Predicate{Column: f.Column, Op: f.Op, Value: c.Values[k]})
	}

	if c.Search != "" {
		q.Search = c.Search
		q.SearchColumns = spec.SearchColumns
	}
	if col, ok := spec.SortColumn(c.SortBy); ok {
		q.SortColumn = col
	}
	return q
}
