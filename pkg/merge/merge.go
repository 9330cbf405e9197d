// Package merge deep-merges plain mappings decoded from JSON or YAML documents.
package merge

// Options controls how Merge treats its target.
type Options struct {
	// Clone leaves the target untouched and returns a fresh mapping.
	Clone bool
}

// Option configures Merge.
type Option func(*Options)

// InPlace makes Merge write into the target mapping instead of copying it.
func InPlace() Option {
	return func(o *Options) { o.Clone = false }
}

// Merge copies every key of source into target. When both sides hold a mapping
// under the same key the two are merged recursively; otherwise the source value
// replaces the target value wholesale (slices are not concatenated).
// The key "__proto__" is always skipped.
//
// By default target is cloned first, so neither input is modified.
func Merge(target, source map[string]any, opts ...Option) map[string]any {
	o := Options{Clone: true}
	for _, opt := range opts {
		opt(&o)
	}
	return merge(target, source, o)
}

func merge(target, source map[string]any, o Options) map[string]any {
	out := target
	if o.Clone || out == nil {
		out = make(map[string]any, len(target)+len(source))
		for k, v := range target {
			out[k] = v
		}
	}

	for key, value := range source {
		if key == "__proto__" {
			continue
		}

		src, srcIsMap := value.(map[string]any)
		dst, dstIsMap := out[key].(map[string]any)
		if srcIsMap && dstIsMap {
			out[key] = merge(dst, src, o)
			continue
		}

		if o.Clone {
			out[key] = Copy(value)
		} else {
			out[key] = value
		}
	}

	return out
}

// Copy returns a deep copy of v, descending into mappings and slices.
func Copy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = Copy(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Copy(val)
		}
		return out
	default:
		return v
	}
}
