package course

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"strings"
)

var ErrInvalidResult = errors.New("invalid step result data")

// mergeResult applies result onto current as a shallow merge: top-level keys
// present in result replace the same keys of current, all others are kept.
// Keys the schema does not declare are rejected, as is anything that is not
// a JSON object. current is left untouched on error.
func mergeResult[D any](current D, result json.RawMessage) (D, error) {
	var zero D
	result = bytes.TrimSpace(result)
	if len(result) == 0 || bytes.Equal(result, []byte("null")) {
		return current, nil
	}

	var overlay map[string]json.RawMessage
	if err := json.Unmarshal(result, &overlay); err != nil {
		return zero, fmt.Errorf("%w: %v", ErrInvalidResult, err)
	}
	if names := jsonFields(reflect.TypeFor[D]()); names != nil {
		for k := range overlay {
			if !names[k] {
				return zero, fmt.Errorf("%w: unknown key %q", ErrInvalidResult, k)
			}
		}
	}

	base, err := json.Marshal(current)
	if err != nil {
		return zero, fmt.Errorf("encode module data: %w", err)
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil || merged == nil {
		merged = make(map[string]json.RawMessage, len(overlay))
	}
	for k, v := range overlay {
		merged[k] = v
	}

	out, err := decodeStrict[D](merged)
	if err != nil {
		return zero, fmt.Errorf("%w: %v", ErrInvalidResult, err)
	}
	return out, nil
}

// jsonFields returns the exact top-level JSON names of a struct type,
// following embedded structs the way encoding/json does. It returns nil for
// non-struct types.
func jsonFields(t reflect.Type) map[string]bool {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}
	names := make(map[string]bool)
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, _, _ := strings.Cut(tag, ",")
		if f.Anonymous && name == "" {
			ft := f.Type
			if ft.Kind() == reflect.Pointer {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct {
				for n := range jsonFields(ft) {
					names[n] = true
				}
				continue
			}
		}
		if !f.IsExported() {
			continue
		}
		if name == "" {
			name = f.Name
		}
		names[name] = true
	}
	return names
}

// decodeData turns stored module data into D. Keys that fail to decode are
// dropped one by one, so a single corrupt value never loses the rest.
func decodeData[D any](raw json.RawMessage) D {
	var d D
	if len(bytes.TrimSpace(raw)) == 0 {
		return d
	}
	if err := json.Unmarshal(raw, &d); err == nil {
		return d
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		slog.Debug("module data is not an object, using defaults", "error", err)
		var zero D
		return zero
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	good := make(map[string]json.RawMessage, len(fields))
	for _, k := range keys {
		var probe D
		one, _ := json.Marshal(map[string]json.RawMessage{k: fields[k]})
		if err := json.Unmarshal(one, &probe); err != nil {
			slog.Debug("dropping undecodable module data key", "key", k, "error", err)
			continue
		}
		good[k] = fields[k]
	}

	var out D
	data, _ := json.Marshal(good)
	if err := json.Unmarshal(data, &out); err != nil {
		var zero D
		return zero
	}
	return out
}

func decodeStrict[D any](fields map[string]json.RawMessage) (D, error) {
	var out D
	data, err := json.Marshal(fields)
	if err != nil {
		return out, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		var zero D
		return zero, err
	}
	return out, nil
}

func encodeData[D any](d D) (json.RawMessage, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode module data: %w", err)
	}
	return data, nil
}

func cloneData[D any](d D) (D, error) {
	var out D
	raw, err := encodeData(d)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("copy module data: %w", err)
	}
	return out, nil
}
