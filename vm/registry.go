package vm

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// ---------------------------------------------------------------------------
// TemplateRegistry: Go types -> templates
// ---------------------------------------------------------------------------

// TemplateRegistry maps host Go types to templates and template names to
// templates. It is filled before threads run and only read afterwards.
// Thread-safe for concurrent registration and lookup.
type TemplateRegistry struct {
	mu     sync.RWMutex
	byType map[reflect.Type]Template
	byName map[string]Template
}

// NewTemplateRegistry creates an empty registry.
func NewTemplateRegistry() *TemplateRegistry {
	return &TemplateRegistry{
		byType: make(map[reflect.Type]Template),
		byName: make(map[string]Template),
	}
}

// Register binds goType to tmpl. Re-registering the same pair is a no-op;
// binding a type or name to a different template is an error.
func (r *TemplateRegistry) Register(goType reflect.Type, tmpl Template) error {
	if tmpl == nil {
		return fmt.Errorf("register %v: nil template", goType)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byType[goType]; ok && existing != tmpl {
		return fmt.Errorf("register %v: already bound to template %s", goType, existing.Name())
	}
	if existing, ok := r.byName[tmpl.Name()]; ok && existing != tmpl {
		return fmt.Errorf("register %v: template name %s already taken", goType, tmpl.Name())
	}
	if goType != nil {
		r.byType[goType] = tmpl
	}
	r.byName[tmpl.Name()] = tmpl
	return nil
}

// RegisterFor binds the dynamic type of sample to tmpl.
func (r *TemplateRegistry) RegisterFor(sample any, tmpl Template) error {
	return r.Register(reflect.TypeOf(sample), tmpl)
}

// RegisterStatic adds a template reachable only by name, for static calls.
func (r *TemplateRegistry) RegisterStatic(tmpl Template) error {
	return r.Register(nil, tmpl)
}

// ForHost returns the template bound to host's dynamic type.
func (r *TemplateRegistry) ForHost(host any) (Template, bool) {
	if host == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	tmpl, ok := r.byType[reflect.TypeOf(host)]
	return tmpl, ok
}

// Lookup returns the template registered under name.
func (r *TemplateRegistry) Lookup(name string) (Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tmpl, ok := r.byName[name]
	return tmpl, ok
}

// Count returns the number of named templates.
func (r *TemplateRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}

// Names returns the registered template names in sorted order.
func (r *TemplateRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ---------------------------------------------------------------------------
// Environment
// ---------------------------------------------------------------------------

// Environment holds the registries shared by every thread: native
// functions and templates. Populate it before creating threads.
type Environment struct {
	Natives   *NativeRegistry
	Templates *TemplateRegistry
}

// NewEnvironment creates an environment with the built-in Array template.
func NewEnvironment() *Environment {
	env := &Environment{
		Natives:   NewNativeRegistry(),
		Templates: NewTemplateRegistry(),
	}
	if err := env.Templates.RegisterFor((*Array)(nil), ArrayTemplate); err != nil {
		panic(err)
	}
	return env
}

// Provides reports whether a native or template with this name exists.
func (e *Environment) Provides(name string) bool {
	if _, ok := e.Natives.Lookup(name); ok {
		return true
	}
	_, ok := e.Templates.Lookup(name)
	return ok
}
