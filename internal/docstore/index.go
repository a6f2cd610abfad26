package docstore

import (
	"sort"
	"strconv"
)

// IndexSpec lists, per collection, the fields a backend keeps a reverse
// index for (value -> document ids). Backends update the index in the same
// commit as the document, and serve == and array-contains filters on these
// fields from it instead of scanning the collection.
type IndexSpec map[string][]string

// IndexEntry is one (field, value) pair a document is reachable under.
type IndexEntry struct {
	Field string
	Value string
}

// Indexed reports whether field of collection is indexed.
func (s IndexSpec) Indexed(collection, field string) bool {
	for _, f := range s[collection] {
		if f == field {
			return true
		}
	}
	return false
}

// Entries returns the sorted, de-duplicated index entries for data.
func (s IndexSpec) Entries(collection string, data map[string]any) []IndexEntry {
	fields := s[collection]
	if len(fields) == 0 || data == nil {
		return nil
	}
	seen := map[IndexEntry]struct{}{}
	for _, field := range fields {
		v, ok := data[field]
		if !ok {
			continue
		}
		if arr, isArr := v.([]any); isArr {
			for _, el := range arr {
				if iv, ok := IndexValue(el); ok {
					seen[IndexEntry{Field: field, Value: iv}] = struct{}{}
				}
			}
			continue
		}
		if iv, ok := IndexValue(v); ok {
			seen[IndexEntry{Field: field, Value: iv}] = struct{}{}
		}
	}
	out := make([]IndexEntry, 0, len(seen))
	for e := range seen {
		out = append(out, e)
	}
	sortEntries(out)
	return out
}

// Terms returns the index entries a prepared query can be served from.
func (s IndexSpec) Terms(q Query) []IndexEntry {
	var out []IndexEntry
	for _, f := range q.Filters {
		if !s.Indexed(q.Collection, f.Field) {
			continue
		}
		if iv, ok := IndexValue(f.Value); ok {
			out = append(out, IndexEntry{Field: f.Field, Value: iv})
		}
	}
	return out
}

// DiffEntries returns the entries to drop and to add when a document goes
// from before to after.
func DiffEntries(before, after []IndexEntry) (removed, added []IndexEntry) {
	inAfter := make(map[IndexEntry]struct{}, len(after))
	for _, e := range after {
		inAfter[e] = struct{}{}
	}
	inBefore := make(map[IndexEntry]struct{}, len(before))
	for _, e := range before {
		inBefore[e] = struct{}{}
		if _, ok := inAfter[e]; !ok {
			removed = append(removed, e)
		}
	}
	for _, e := range after {
		if _, ok := inBefore[e]; !ok {
			added = append(added, e)
		}
	}
	return removed, added
}

// IndexValue renders a canonical scalar for use as an index key.
func IndexValue(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return "s:" + t, true
	case float64:
		return "n:" + strconv.FormatFloat(t, 'g', -1, 64), true
	case bool:
		return "b:" + strconv.FormatBool(t), true
	default:
		return "", false
	}
}

func sortEntries(entries []IndexEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Field != entries[j].Field {
			return entries[i].Field < entries[j].Field
		}
		return entries[i].Value < entries[j].Value
	})
}
