// Package configuration provides typed settings persisted as JSON or YAML files,
// validated by a CUE schema and completed with defaults.
//
// Each Configuration lives at <dir>/[<addon>/]<name>.<json|yml>. The first Get
// or Load reads the file (creating it from the defaults when missing), merges
// it over the defaults, validates it and, when the merge added anything,
// writes the healed document back. Update validates a partial document, merges
// it over the current state and persists the result before caching it.
package configuration

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"

	"github.com/rs/zerolog"

	"github.com/keshon/botkit/pkg/filestore"
	"github.com/keshon/botkit/pkg/merge"
	"github.com/keshon/botkit/pkg/mutex"
)

// DefaultDir is used until a Configuration is attached to an Environment.
const DefaultDir = "configs"

// Environment binds declared configurations to a directory and a logger.
type Environment struct {
	Dir    string
	Logger zerolog.Logger
}

// Entry is the type-erased view of a Configuration used by registries and tooling.
type Entry interface {
	Key() string
	Path() string
	Attach(env Environment)
	Load(ctx context.Context) error
	Reload(ctx context.Context) error
	Document(ctx context.Context) map[string]any
	Inspect(ctx context.Context) (map[string]any, error)
	UpdateDocument(ctx context.Context, partial map[string]any) (map[string]any, error)
	SchemaSource() string
}

// Options declares a configuration entry.
type Options[T any] struct {
	Name     string
	Format   Format
	Schema   string
	Defaults T
	// Addon namespaces the file under configs/<addon>/.
	Addon string
}

type cached[T any] struct {
	value T
	doc   map[string]any
}

// Configuration is a typed, file-backed settings object.
type Configuration[T any] struct {
	name   string
	addon  string
	format Format
	schema *Schema

	defaults    T
	defaultsDoc map[string]any

	lock mutex.Mutex // serializes file access; reentrant per operation

	mu        sync.RWMutex
	env       Environment
	cache     *cached[T]
	attempted bool
}

// New declares a configuration entry. The defaults must satisfy the schema.
func New[T any](opts Options[T]) (*Configuration[T], error) {
	if opts.Name == "" {
		return nil, errors.New("configuration name is required")
	}
	if opts.Format == "" {
		opts.Format = JSON
	}
	if !opts.Format.valid() {
		return nil, fmt.Errorf("configuration %s: unknown format %q", opts.Name, opts.Format)
	}

	schema, err := CompileSchema(opts.Schema)
	if err != nil {
		return nil, fmt.Errorf("configuration %s: %w", opts.Name, err)
	}

	defaultsDoc, err := toDocument(opts.Defaults)
	if err != nil {
		return nil, fmt.Errorf("configuration %s: %w", opts.Name, err)
	}

	c := &Configuration[T]{
		name:        opts.Name,
		addon:       opts.Addon,
		format:      opts.Format,
		schema:      schema,
		defaults:    opts.Defaults,
		defaultsDoc: defaultsDoc,
		env:         Environment{Dir: DefaultDir, Logger: zerolog.Nop()},
	}

	if err := schema.ValidateComplete(defaultsDoc); err != nil {
		return nil, &ValidationError{Key: c.Key(), Err: err}
	}
	return c, nil
}

// MustNew is New for package-level declarations; it panics on error.
func MustNew[T any](opts Options[T]) *Configuration[T] {
	c, err := New(opts)
	if err != nil {
		panic(err)
	}
	return c
}

// Key identifies the entry: [addon/]name.format.
func (c *Configuration[T]) Key() string {
	key := c.name + "." + string(c.format)
	if c.addon != "" {
		key = c.addon + "/" + key
	}
	return key
}

// Name returns the declared name.
func (c *Configuration[T]) Name() string { return c.name }

// Addon returns the owning addon ID, if any.
func (c *Configuration[T]) Addon() string { return c.addon }

// Defaults returns the declared defaults.
func (c *Configuration[T]) Defaults() T { return c.defaults }

// SchemaSource returns the CUE declarations of the schema.
func (c *Configuration[T]) SchemaSource() string { return c.schema.Source() }

// Attach points the entry at a directory and logger. It must happen before the
// first Load; attaching later drops the cache.
func (c *Configuration[T]) Attach(env Environment) {
	if env.Dir == "" {
		env.Dir = DefaultDir
	}
	env.Logger = env.Logger.With().Str("component", "config").Str("config", c.Key()).Logger()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.env = env
	c.cache = nil
	c.attempted = false
}

// Path returns the backing file path.
func (c *Configuration[T]) Path() string {
	c.mu.RLock()
	dir := c.env.Dir
	c.mu.RUnlock()

	file := c.name + "." + c.format.Ext()
	if c.addon != "" {
		return filepath.Join(dir, c.addon, file)
	}
	return filepath.Join(dir, file)
}

func (c *Configuration[T]) logger() *zerolog.Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	l := c.env.Logger
	return &l
}

// Load populates the cache from disk unless it is already populated.
//
// A missing file is created from the defaults. A file that cannot be parsed or
// fails validation is logged and leaves the cache empty, so Get serves the
// defaults. Only I/O failures are returned.
func (c *Configuration[T]) Load(ctx context.Context) error {
	ctx, owner := withOwner(ctx)
	release, err := c.lock.Lock(ctx, owner)
	if err != nil {
		return err
	}
	defer release()

	c.mu.Lock()
	c.attempted = true
	loaded := c.cache != nil
	c.mu.Unlock()
	if loaded {
		return nil
	}

	return c.load(ctx)
}

// Reload drops the cache and loads the file again.
func (c *Configuration[T]) Reload(ctx context.Context) error {
	ctx, owner := withOwner(ctx)
	release, err := c.lock.Lock(ctx, owner)
	if err != nil {
		return err
	}
	defer release()

	c.mu.Lock()
	c.cache = nil
	c.attempted = true
	c.mu.Unlock()

	return c.load(ctx)
}

func (c *Configuration[T]) load(ctx context.Context) error {
	path := c.Path()
	log := c.logger()

	exists, err := filestore.Exists(path)
	if err != nil {
		return err
	}

	if !exists {
		data, err := c.format.encode(c.defaultsDoc)
		if err != nil {
			return fmt.Errorf("failed to encode defaults for %s: %w", c.Key(), err)
		}
		if err := filestore.WriteAtomic(path, data); err != nil {
			return err
		}
		c.setCache(c.defaults, merge.Copy(c.defaultsDoc).(map[string]any))
		log.Info().Str("path", path).Msg("Created configuration file with defaults")
		return nil
	}

	f, err := c.readFile(path)
	if err != nil {
		return err
	}
	if f.invalid != nil {
		log.Error().Err(f.invalid).Str("path", path).Msg("Error loading config file")
		return nil
	}
	merged, fileDoc := f.merged, f.fileDoc

	c.setCache(f.value, merged)

	// Compare parsed values, not text, so formatting never triggers a rewrite.
	if !reflect.DeepEqual(merged, fileDoc) {
		log.Info().Str("path", path).Msg("Healing configuration file")
		if _, err := c.update(ctx, merged); err != nil {
			return err
		}
	}
	return nil
}

type fileState[T any] struct {
	value   T
	merged  map[string]any
	fileDoc map[string]any
	// invalid is set when the file cannot be decoded or fails the schema.
	invalid error
}

// readFile decodes the file at path and merges it over the defaults without
// touching the cache or the disk.
func (c *Configuration[T]) readFile(path string) (fileState[T], error) {
	var f fileState[T]
	raw, err := os.ReadFile(path)
	if err != nil {
		return f, fmt.Errorf("failed to read %s: %w", path, err)
	}

	f.fileDoc, err = c.format.decode(raw)
	if err != nil {
		f.invalid = err
		return f, nil
	}

	f.merged = merge.Merge(c.defaultsDoc, f.fileDoc)
	if err := c.schema.ValidateComplete(f.merged); err != nil {
		f.invalid = &ValidationError{Key: c.Key(), Err: err}
		return f, nil
	}

	f.value, err = fromDocument[T](f.merged)
	if err != nil {
		f.invalid = err
	}
	return f, nil
}

// loadOnce runs the first load. Later calls return at once, even when the
// first load left the cache empty.
func (c *Configuration[T]) loadOnce(ctx context.Context) error {
	ctx, owner := withOwner(ctx)
	release, err := c.lock.Lock(ctx, owner)
	if err != nil {
		return err
	}
	defer release()

	c.mu.Lock()
	done := c.attempted || c.cache != nil
	c.attempted = true
	c.mu.Unlock()
	if done {
		return nil
	}
	return c.load(ctx)
}

// Get returns the cached value, loading it on first use. It never fails: when
// the file is unusable the defaults are returned.
func (c *Configuration[T]) Get(ctx context.Context) T {
	if v, ok := c.cached(); ok {
		return v.value
	}

	if err := c.loadOnce(ctx); err != nil {
		c.logger().Error().Err(err).Msg("Failed to load configuration")
	}

	if v, ok := c.cached(); ok {
		return v.value
	}
	return c.defaults
}

// Document returns the current state as a document, falling back to the defaults.
func (c *Configuration[T]) Document(ctx context.Context) map[string]any {
	c.Get(ctx)
	if v, ok := c.cached(); ok {
		return merge.Copy(v.doc).(map[string]any)
	}
	return merge.Copy(c.defaultsDoc).(map[string]any)
}

// Inspect returns the document Get would serve without creating, healing or
// caching anything. A missing or unusable file yields the defaults.
func (c *Configuration[T]) Inspect(context.Context) (map[string]any, error) {
	if v, ok := c.cached(); ok {
		return merge.Copy(v.doc).(map[string]any), nil
	}

	path := c.Path()
	exists, err := filestore.Exists(path)
	if err != nil {
		return nil, err
	}
	if exists {
		f, err := c.readFile(path)
		if err != nil {
			return nil, err
		}
		if f.invalid == nil {
			return f.merged, nil
		}
	}
	return merge.Copy(c.defaultsDoc).(map[string]any), nil
}

// Update validates partial, merges it over the defaults and the current state,
// writes the result and caches it. A partial rejected by the schema returns a
// *ValidationError and changes nothing.
func (c *Configuration[T]) Update(ctx context.Context, partial map[string]any) (T, error) {
	ctx, owner := withOwner(ctx)
	release, err := c.lock.Lock(ctx, owner)
	if err != nil {
		var zero T
		return zero, err
	}
	defer release()

	return c.update(ctx, partial)
}

// Set replaces the stored value with v.
func (c *Configuration[T]) Set(ctx context.Context, v T) (T, error) {
	doc, err := toDocument(v)
	if err != nil {
		var zero T
		return zero, err
	}
	return c.Update(ctx, doc)
}

// UpdateDocument is Update for callers without the static type.
func (c *Configuration[T]) UpdateDocument(ctx context.Context, partial map[string]any) (map[string]any, error) {
	if _, err := c.Update(ctx, partial); err != nil {
		return nil, err
	}
	return c.Document(ctx), nil
}

func (c *Configuration[T]) update(ctx context.Context, partial map[string]any) (T, error) {
	var zero T

	if err := c.schema.ValidatePartial(partial); err != nil {
		return zero, &ValidationError{Key: c.Key(), Err: err}
	}

	current := c.defaultsDoc
	if _, ok := c.cached(); !ok {
		c.Get(ctx)
	}
	if v, ok := c.cached(); ok {
		current = v.doc
	}

	data, err := normalizeDocument(merge.Merge(merge.Merge(c.defaultsDoc, current), partial))
	if err != nil {
		return zero, &ValidationError{Key: c.Key(), Err: err}
	}
	if err := c.schema.ValidateComplete(data); err != nil {
		return zero, &ValidationError{Key: c.Key(), Err: err}
	}

	value, err := fromDocument[T](data)
	if err != nil {
		return zero, &ValidationError{Key: c.Key(), Err: err}
	}

	encoded, err := c.format.encode(data)
	if err != nil {
		return zero, fmt.Errorf("failed to encode %s: %w", c.Key(), err)
	}
	if err := filestore.WriteAtomic(c.Path(), encoded); err != nil {
		return zero, err
	}

	c.setCache(value, data)
	return value, nil
}

func (c *Configuration[T]) cached() (cached[T], bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.cache == nil {
		return cached[T]{}, false
	}
	return *c.cache, true
}

func (c *Configuration[T]) setCache(value T, doc map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = &cached[T]{value: value, doc: doc}
}

type ownerKey struct{}

// withOwner returns the lock owner carried by ctx, creating one when absent, so
// nested operations of one call re-enter the entry's lock.
func withOwner(ctx context.Context) (context.Context, mutex.Owner) {
	if owner, ok := ctx.Value(ownerKey{}).(mutex.Owner); ok {
		return ctx, owner
	}
	owner := mutex.NewOwner()
	return context.WithValue(ctx, ownerKey{}, owner), owner
}
