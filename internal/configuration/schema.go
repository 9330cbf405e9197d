package configuration

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

// Schema validates configuration documents against a closed CUE definition.
//
// The source lists the fields of the document, for example:
//
//	channelId: string
//	message:   string & !=""
//	color:     =~"^#[0-9a-fA-F]{6}$"
//
// Fields not declared in the source are rejected.
type Schema struct {
	mu  sync.Mutex
	ctx *cue.Context
	def cue.Value
	src string
}

// CompileSchema compiles CUE field declarations into a Schema.
func CompileSchema(src string) (*Schema, error) {
	ctx := cuecontext.New()

	v := ctx.CompileString("#Schema: {\n" + src + "\n}")
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("failed to compile schema: %s", cueerrors.Details(err, nil))
	}

	def := v.LookupPath(cue.ParsePath("#Schema"))
	if !def.Exists() {
		return nil, errors.New("failed to compile schema: definition missing")
	}

	return &Schema{ctx: ctx, def: def, src: src}, nil
}

// Source returns the CUE declarations the schema was compiled from.
func (s *Schema) Source() string { return s.src }

// ValidateComplete checks that doc satisfies every constraint and that all
// fields are concrete.
func (s *Schema) ValidateComplete(doc map[string]any) error {
	return s.validate(doc, true)
}

// ValidatePartial checks the fields present in doc. Missing fields are allowed,
// unknown fields and constraint violations are not.
func (s *Schema) ValidatePartial(doc map[string]any) error {
	return s.validate(doc, false)
}

func (s *Schema) validate(doc map[string]any, complete bool) error {
	norm, err := normalizeDocument(doc)
	if err != nil {
		return fmt.Errorf("document is not serializable: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.ctx.Encode(numbers(s.def, norm))
	if err := v.Err(); err != nil {
		return err
	}

	unified := s.def.Unify(v)
	if complete {
		return unified.Validate(cue.Concrete(true))
	}
	return unified.Validate()
}

// numbers restores the int/float distinction that the JSON data model drops.
// A whole float64 becomes an int64 unless the schema only admits floats there,
// so both "retries: int" and "ratio: float" accept a value of 2.
func numbers(schema cue.Value, x any) any {
	switch t := x.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = numbers(schema.LookupPath(cue.MakePath(cue.Str(k))), e)
		}
		return out
	case []any:
		elem := schema.LookupPath(cue.MakePath(cue.AnyIndex))
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = numbers(elem, e)
		}
		return out
	case float64:
		if t != math.Trunc(t) || math.Abs(t) > math.MaxInt64/2 {
			return t
		}
		if schema.Exists() && schema.IncompleteKind()&cue.IntKind == 0 {
			return t
		}
		return int64(t)
	}
	return x
}

// ValidationError reports a document rejected by a configuration schema.
type ValidationError struct {
	Key string
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration %s is invalid: %s", e.Key, strings.TrimSpace(cueerrors.Details(e.Err, nil)))
}

func (e *ValidationError) Unwrap() error { return e.Err }
