package docstore

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Encode converts a struct or map into the canonical document form: the
// value JSON would produce, decoded back into maps, slices, strings,
// float64s, bools and nils.
func Encode(v any) (map[string]any, error) {
	if v == nil {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("docstore: encode document: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("docstore: document must encode to an object: %w", err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

// Normalize converts a single field value into its canonical form.
func Normalize(v any) (any, error) {
	switch t := v.(type) {
	case nil, string, bool, float64:
		return t, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("docstore: encode value: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("docstore: decode value: %w", err)
	}
	return out, nil
}

// Marshal encodes canonical document data for storage.
func Marshal(data map[string]any) ([]byte, error) {
	return json.Marshal(data)
}

// Unmarshal decodes stored document data.
func Unmarshal(raw []byte) (map[string]any, error) {
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("docstore: corrupt document: %w", err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

// Clone deep-copies canonical document data.
func Clone(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return Clone(t)
	case []any:
		cp := make([]any, len(t))
		for i := range t {
			cp[i] = cloneValue(t[i])
		}
		return cp
	default:
		return t
	}
}

func equalValues(a, b any) bool {
	return reflect.DeepEqual(a, b)
}
