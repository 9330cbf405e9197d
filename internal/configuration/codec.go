package configuration

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Format is the on-disk encoding of a configuration entry.
type Format string

const (
	JSON Format = "json"
	YAML Format = "yaml"
)

// Ext returns the file extension used for the format.
func (f Format) Ext() string {
	if f == YAML {
		return "yml"
	}
	return "json"
}

func (f Format) valid() bool {
	return f == JSON || f == YAML
}

// encode serializes a document: two-space indented JSON or YAML.
func (f Format) encode(doc map[string]any) ([]byte, error) {
	if f == YAML {
		return yaml.Marshal(doc)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// decode parses file content into a normalized document. An empty file is an
// empty document.
func (f Format) decode(data []byte) (map[string]any, error) {
	var raw any
	switch f {
	case YAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	default:
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	}
	if raw == nil {
		return map[string]any{}, nil
	}
	doc, err := normalize(raw)
	if err != nil {
		return nil, err
	}
	m, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected a mapping at the top level, got %T", doc)
	}
	return m, nil
}

// normalize maps any decoded value onto the JSON data model (float64 numbers,
// map[string]any objects) so documents from both formats compare equal.
func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func normalizeDocument(doc map[string]any) (map[string]any, error) {
	v, err := normalize(doc)
	if err != nil {
		return nil, err
	}
	m, _ := v.(map[string]any)
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}

// toDocument converts a typed value into a document.
func toDocument[T any](v T) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	doc := map[string]any{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("configuration type must encode as an object: %w", err)
	}
	return doc, nil
}

// fromDocument converts a document back into the typed value.
func fromDocument[T any](doc map[string]any) (T, error) {
	var v T
	data, err := json.Marshal(doc)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, err
	}
	return v, nil
}
