package docstore

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Op is a filter operator.
type Op string

const (
	// OpEqual matches documents whose field equals the value.
	OpEqual Op = "=="
	// OpArrayContains matches documents whose array field holds the value.
	OpArrayContains Op = "array-contains"
)

// Direction orders query results.
type Direction int

const (
	Asc Direction = iota
	Desc
)

// Filter is one field predicate.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Sort orders results by one field; ties fall back to document id.
type Sort struct {
	Field     string
	Direction Direction
}

// Query selects documents from one collection.
type Query struct {
	Collection string
	Filters    []Filter
	Sort       *Sort
	Max        int
}

// From starts a query on collection.
func From(collection string) Query {
	return Query{Collection: collection}
}

// Where adds a filter.
func (q Query) Where(field string, op Op, value any) Query {
	filters := make([]Filter, len(q.Filters), len(q.Filters)+1)
	copy(filters, q.Filters)
	q.Filters = append(filters, Filter{Field: field, Op: op, Value: value})
	return q
}

// OrderBy sets the result order.
func (q Query) OrderBy(field string, dir Direction) Query {
	q.Sort = &Sort{Field: field, Direction: dir}
	return q
}

// Limit caps the number of results; zero means no cap.
func (q Query) Limit(n int) Query {
	q.Max = n
	return q
}

// Prepare validates q and normalizes its filter values.
func (q Query) Prepare() (Query, error) {
	if q.Collection == "" {
		return q, fmt.Errorf("docstore: query without collection")
	}
	if q.Max < 0 {
		return q, fmt.Errorf("docstore: negative query limit %d", q.Max)
	}
	filters := make([]Filter, len(q.Filters))
	for i, f := range q.Filters {
		if f.Op != OpEqual && f.Op != OpArrayContains {
			return q, fmt.Errorf("docstore: unsupported operator %q", f.Op)
		}
		v, err := Normalize(f.Value)
		if err != nil {
			return q, err
		}
		filters[i] = Filter{Field: f.Field, Op: f.Op, Value: v}
	}
	q.Filters = filters
	return q, nil
}

// Matches reports whether data satisfies every filter of a prepared query.
func (q Query) Matches(data map[string]any) bool {
	for _, f := range q.Filters {
		field, ok := data[f.Field]
		switch f.Op {
		case OpEqual:
			if !ok || !equalValues(field, f.Value) {
				return false
			}
		case OpArrayContains:
			arr, isArr := field.([]any)
			if !ok || !isArr || !containsValue(arr, f.Value) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// Apply filters, orders and limits candidate snapshots of a prepared query.
func (q Query) Apply(candidates []*Snapshot) []*Snapshot {
	out := make([]*Snapshot, 0, len(candidates))
	for _, s := range candidates {
		if s != nil && q.Matches(s.Data) {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if q.Sort != nil {
			c := compareValues(out[i].Data[q.Sort.Field], out[j].Data[q.Sort.Field])
			if c != 0 {
				if q.Sort.Direction == Desc {
					return c > 0
				}
				return c < 0
			}
		}
		return out[i].ID < out[j].ID
	})
	if q.Max > 0 && len(out) > q.Max {
		out = out[:q.Max]
	}
	return out
}

func containsValue(arr []any, v any) bool {
	for _, el := range arr {
		if equalValues(el, v) {
			return true
		}
	}
	return false
}

func typeRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64:
		return 2
	case string:
		return 3
	default:
		return 4
	}
}

// compareValues orders canonical values; RFC 3339 strings compare as instants.
func compareValues(a, b any) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch av := a.(type) {
	case bool:
		bv := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		default:
			return 1
		}
	case float64:
		bv := b.(float64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case string:
		bv := b.(string)
		ta, errA := time.Parse(time.RFC3339Nano, av)
		tb, errB := time.Parse(time.RFC3339Nano, bv)
		if errA == nil && errB == nil {
			return ta.Compare(tb)
		}
		return strings.Compare(av, bv)
	}
	return 0
}
