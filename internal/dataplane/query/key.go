package query

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"go.einride.tech/aip/ordering"
)

// SortField orders results by one field path.
type SortField struct {
	Path string `json:"path"`
	Desc bool   `json:"desc,omitempty"`
}

// Sort is an ordered list of sort fields.
type Sort []SortField

// ParseSort parses an order_by expression such as "createdAt desc, title".
// An empty string yields no sort.
func ParseSort(expr string) (Sort, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, nil
	}
	var orderBy ordering.OrderBy
	if err := orderBy.UnmarshalString(expr); err != nil {
		return nil, fmt.Errorf("parse sort %q: %w", expr, err)
	}
	sort := make(Sort, 0, len(orderBy.Fields))
	for _, f := range orderBy.Fields {
		sort = append(sort, SortField{Path: f.Path, Desc: f.Desc})
	}
	return sort, nil
}

// Validate reports an error when a field path is not in allowed.
func (s Sort) Validate(allowed ...string) error {
	orderBy := ordering.OrderBy{Fields: make([]ordering.Field, 0, len(s))}
	for _, f := range s {
		orderBy.Fields = append(orderBy.Fields, ordering.Field{Path: f.Path, Desc: f.Desc})
	}
	return orderBy.ValidateForPaths(allowed...)
}

// String renders the sort back to order_by syntax.
func (s Sort) String() string {
	parts := make([]string, 0, len(s))
	for _, f := range s {
		if f.Desc {
			parts = append(parts, f.Path+" desc")
			continue
		}
		parts = append(parts, f.Path)
	}
	return strings.Join(parts, ", ")
}

// Cursor positions a paginated query.
type Cursor struct {
	Page     int    `json:"page,omitempty"`
	PageSize int    `json:"pageSize,omitempty"`
	Token    string `json:"token,omitempty"`
}

// Key identifies one cached query. Two keys are equal when their canonical
// serializations are equal, so filter map order never matters.
type Key struct {
	Resource string
	Filters  map[string]string
	Sort     Sort
	Cursor   Cursor
}

// NewKey returns a key for resource with the given filters.
func NewKey(resource string, filters map[string]string) Key {
	return Key{Resource: resource, Filters: filters}
}

// String returns the canonical serialization `[resource, filters, sort, cursor]`.
func (k Key) String() string {
	filters := k.Filters
	if filters == nil {
		filters = map[string]string{}
	}
	sort := k.Sort
	if sort == nil {
		sort = Sort{}
	}
	// encoding/json sorts map keys, which makes the output canonical.
	data, err := json.Marshal([]any{k.Resource, filters, sort, k.Cursor})
	if err != nil {
		return k.Resource
	}
	return string(data)
}

// Equal reports whether k and other identify the same query.
func (k Key) Equal(other Key) bool {
	return k.String() == other.String()
}

// Filter returns a filter value or "".
func (k Key) Filter(name string) string {
	return k.Filters[name]
}

// Clone returns a deep copy of k.
func (k Key) Clone() Key {
	out := k
	out.Filters = maps.Clone(k.Filters)
	out.Sort = slices.Clone(k.Sort)
	return out
}

// Predicate selects cache entries by key.
type Predicate func(Key) bool

// MatchKey matches exactly one key.
func MatchKey(key Key) Predicate {
	want := key.String()
	return func(k Key) bool { return k.String() == want }
}

// MatchResource matches every key of a resource.
func MatchResource(resource string) Predicate {
	return func(k Key) bool { return k.Resource == resource }
}

// MatchPrefix matches keys of resource whose filters contain every given
// filter with an equal value. Sort and cursor are ignored.
func MatchPrefix(resource string, filters map[string]string) Predicate {
	return func(k Key) bool {
		if k.Resource != resource {
			return false
		}
		for name, value := range filters {
			got, ok := k.Filters[name]
			if !ok || got != value {
				return false
			}
		}
		return true
	}
}

// MatchAll matches every key.
func MatchAll() Predicate {
	return func(Key) bool { return true }
}

// Or matches keys selected by any predicate.
func Or(preds ...Predicate) Predicate {
	return func(k Key) bool {
		for _, p := range preds {
			if p != nil && p(k) {
				return true
			}
		}
		return false
	}
}
