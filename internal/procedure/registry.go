package procedure

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Kind names the procedure variant a definition builds.
type Kind string

const (
	KindBasic Kind = "basic"
	KindStep  Kind = "step"
)

// SourceBuiltin marks definitions registered from compiled code.
const SourceBuiltin = "builtin"

// Factory constructs a fresh procedure instance for one run.
type Factory func(Values) (Procedure, error)

// Definition is a registry entry: how to build a named procedure.
type Definition struct {
	Name        string
	Description string
	Kind        Kind
	// Source records where the definition came from (a file path or "builtin").
	Source  string
	Params  ParamSet
	Factory Factory
}

func (d Definition) validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return ErrMissingName
	}
	if d.Factory == nil {
		return fmt.Errorf("procedure %s: factory is required", d.Name)
	}
	return nil
}

// Discoverer loads every definition reachable from a module path.
type Discoverer interface {
	Discover(modulePath string) ([]Definition, error)
}

// Registry maintains known procedure definitions: those registered explicitly
// and those found by the last successful discovery pass.
type Registry struct {
	mu         sync.RWMutex
	registered map[string]Definition
	discovered map[string]Definition
	discoverer Discoverer
}

// RegistryOption customizes a Registry.
type RegistryOption func(*Registry)

// WithDiscoverer sets the loader used by Discover.
func WithDiscoverer(d Discoverer) RegistryOption {
	return func(r *Registry) { r.discoverer = d }
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		registered: map[string]Definition{},
		discovered: map[string]Definition{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Register installs a definition. Returns an error if the name already exists.
func (r *Registry) Register(def Definition) error {
	def.Name = strings.TrimSpace(def.Name)
	if err := def.validate(); err != nil {
		return err
	}
	if def.Source == "" {
		def.Source = SourceBuiltin
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.lookupLocked(def.Name); ok {
		return &DuplicateNameError{Name: def.Name, First: existing.Source, Second: def.Source}
	}
	r.registered[def.Name] = def
	return nil
}

// MustRegister panics if registration fails.
func (r *Registry) MustRegister(def Definition) {
	if err := r.Register(def); err != nil {
		panic(err)
	}
}

// Discover replaces the discovered definitions with a fresh scan of
// modulePath. The scan is all or nothing: on any error the previous state is
// kept and the error is returned.
func (r *Registry) Discover(modulePath string) error {
	if r.discoverer == nil {
		return &DiscoveryError{Path: modulePath, Err: fmt.Errorf("no discoverer configured")}
	}
	defs, err := r.discoverer.Discover(modulePath)
	if err != nil {
		var discoveryErr *DiscoveryError
		var duplicateErr *DuplicateNameError
		if errors.As(err, &discoveryErr) || errors.As(err, &duplicateErr) {
			return err
		}
		return &DiscoveryError{Path: modulePath, Err: err}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	next := make(map[string]Definition, len(defs))
	for _, def := range defs {
		def.Name = strings.TrimSpace(def.Name)
		if def.Name == "" {
			continue
		}
		if err := def.validate(); err != nil {
			return &DiscoveryError{Path: def.Source, Err: err}
		}
		if existing, ok := next[def.Name]; ok {
			return &DuplicateNameError{Name: def.Name, First: existing.Source, Second: def.Source}
		}
		if existing, ok := r.registered[def.Name]; ok {
			return &DuplicateNameError{Name: def.Name, First: existing.Source, Second: def.Source}
		}
		next[def.Name] = def
	}
	r.discovered = next
	return nil
}

// List returns every known procedure name, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.registered)+len(r.discovered))
	for name := range r.registered {
		names = append(names, name)
	}
	for name := range r.discovered {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns every definition ordered by name.
func (r *Registry) Definitions() []Definition {
	names := r.List()
	defs := make([]Definition, 0, len(names))
	for _, name := range names {
		if def, err := r.Load(name); err == nil {
			defs = append(defs, def)
		}
	}
	return defs
}

// Load returns the definition registered under name.
func (r *Registry) Load(name string) (Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.lookupLocked(strings.TrimSpace(name))
	if !ok {
		return Definition{}, &NotFoundError{Name: name}
	}
	return def, nil
}

func (r *Registry) lookupLocked(name string) (Definition, bool) {
	if def, ok := r.registered[name]; ok {
		return def, true
	}
	def, ok := r.discovered[name]
	return def, ok
}

// Instantiate binds values to the definition's parameters and builds a new
// procedure instance.
func (r *Registry) Instantiate(name string, values map[string]any) (Procedure, error) {
	def, err := r.Load(name)
	if err != nil {
		return nil, err
	}
	bound, err := def.Params.Bind(values)
	if err != nil {
		return nil, &ConstructionError{Procedure: def.Name, Err: err}
	}
	proc, err := def.Factory(bound)
	if err != nil {
		var constructionErr *ConstructionError
		if errors.As(err, &constructionErr) {
			return nil, err
		}
		return nil, &ConstructionError{Procedure: def.Name, Err: err}
	}
	if proc == nil {
		return nil, &ConstructionError{Procedure: def.Name, Err: fmt.Errorf("factory returned no procedure")}
	}
	return proc, nil
}

// Run instantiates the named procedure and runs it.
func (r *Registry) Run(ctx context.Context, name string, values map[string]any) (Result, error) {
	proc, err := r.Instantiate(name, values)
	if err != nil {
		return Result{Status: StatusFailed}, err
	}
	return proc.Run(ctx)
}
