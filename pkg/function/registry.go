// Package function provides the registry of scalar and aggregate functions
// callable from query expressions.
package function

import (
	"sort"
	"strings"
	"sync"

	"github.com/JayabrataBasu/veridicalql/pkg/ast"
	"github.com/JayabrataBasu/veridicalql/pkg/catalog"
	"github.com/JayabrataBasu/veridicalql/pkg/errs"
)

// Function is a callable SQL function.
//
// Scalar functions receive one value per parameter. Aggregate functions take a
// single parameter and receive its value for every record of the group.
type Function interface {
	Name() string
	Aggregate() bool
	// Preprocess checks the arity and may rewrite the parameters before they
	// are compiled.
	Preprocess(params []ast.Expression) ([]ast.Expression, error)
	Run(args ...catalog.Value) (catalog.Value, error)
	ReturnType(argTypes []catalog.DataType) catalog.DataType
}

// Factory creates a Function instance.
type Factory func() Function

// Registry maps case-insensitive function names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates a registry holding the built-in functions.
func NewRegistry() *Registry {
	r := NewEmptyRegistry()
	for _, b := range builtins() {
		b := b
		_ = r.Register(b.name, func() Function { return b }, true)
	}
	return r
}

// NewEmptyRegistry creates a registry without any functions.
func NewEmptyRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under name. When the name is taken it fails with
// ErrAlreadyExists if failIfExists is set, and replaces the entry otherwise.
func (r *Registry) Register(name string, factory Factory, failIfExists bool) error {
	if name == "" || factory == nil {
		return errs.Syntax("function registration requires a name and a factory")
	}
	key := strings.ToLower(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.factories[key]; ok && failIfExists {
		return errs.AlreadyExists("function", name)
	}
	r.factories[key] = factory
	return nil
}

// Resolve returns a new instance of the named function.
func (r *Registry) Resolve(name string) (Function, error) {
	r.mu.RLock()
	factory, ok := r.factories[strings.ToLower(name)]
	r.mu.RUnlock()

	if !ok {
		return nil, errs.NotFound("function", name)
	}
	return factory(), nil
}

// Names returns the registered names in lowercase, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
