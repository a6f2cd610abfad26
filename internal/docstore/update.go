package docstore

import "fmt"

type updateKind int

const (
	updateAssign updateKind = iota
	updateArrayUnion
	updateArrayRemove
)

// Update is one field mutation applied by Store.Update, Tx.Update or Batch.Update.
type Update struct {
	Field  string
	kind   updateKind
	values []any
}

// Field replaces a top-level field.
func Field(name string, value any) Update {
	return Update{Field: name, kind: updateAssign, values: []any{value}}
}

// ArrayUnion appends each value not already present in the array field.
// A missing or non-array field is treated as empty.
func ArrayUnion(name string, values ...any) Update {
	return Update{Field: name, kind: updateArrayUnion, values: values}
}

// ArrayRemove drops every occurrence of the values from the array field.
// Removing from a missing field is a no-op.
func ArrayRemove(name string, values ...any) Update {
	return Update{Field: name, kind: updateArrayRemove, values: values}
}

// ApplyUpdates returns a copy of data with updates applied in order.
func ApplyUpdates(data map[string]any, updates []Update) (map[string]any, error) {
	out := Clone(data)
	if out == nil {
		out = map[string]any{}
	}
	for _, u := range updates {
		if u.Field == "" {
			return nil, fmt.Errorf("docstore: update without field")
		}
		values := make([]any, len(u.values))
		for i, v := range u.values {
			nv, err := Normalize(v)
			if err != nil {
				return nil, err
			}
			values[i] = nv
		}
		switch u.kind {
		case updateAssign:
			out[u.Field] = values[0]
		case updateArrayUnion:
			arr, _ := out[u.Field].([]any)
			arr = append([]any{}, arr...)
			for _, v := range values {
				if !containsValue(arr, v) {
					arr = append(arr, v)
				}
			}
			out[u.Field] = arr
		case updateArrayRemove:
			arr, ok := out[u.Field].([]any)
			if !ok {
				if _, present := out[u.Field]; present {
					out[u.Field] = []any{}
				}
				continue
			}
			kept := make([]any, 0, len(arr))
			for _, el := range arr {
				if !containsValue(values, el) {
					kept = append(kept, el)
				}
			}
			out[u.Field] = kept
		}
	}
	return out, nil
}
