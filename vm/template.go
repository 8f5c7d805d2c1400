package vm

import "fmt"

// GetterFunc reads a field from a host object.
type GetterFunc func(t *Thread, host any) (Primitive, error)

// SetterFunc writes a field on a host object. The setter does not own v;
// it must retain object references it keeps.
type SetterFunc func(t *Thread, host any, v Primitive) error

// MethodFunc implements an instance method.
type MethodFunc func(t *Thread, host any, args []Primitive) (Primitive, error)

// StaticFunc implements a template-level method with no receiver.
type StaticFunc func(t *Thread, args []Primitive) (Primitive, error)

// HookFunc observes an instance lifecycle event.
type HookFunc func(t *Thread, inst *Instance)

// Template is the capability surface a host type exposes to scripts.
// Every lookup is by name; a missing entry means the script may not use it.
type Template interface {
	Name() string
	Getter(field string) (GetterFunc, bool)
	Setter(field string) (SetterFunc, bool)
	Method(name string, arity int) (MethodFunc, bool)
	StaticMethod(name string, arity int) (StaticFunc, bool)

	// ContentsEqual backs Primitive.ValueEquals for two hosts of this template.
	ContentsEqual(a, b any) bool
	Display(host any) string

	// OnAddToHeap fires when the instance's refcount goes 0 -> 1.
	OnAddToHeap(t *Thread, inst *Instance)
	// OnFree fires when the refcount goes 1 -> 0.
	OnFree(t *Thread, inst *Instance)
	// OnThreadShutdown fires once per pooled instance when the thread ends,
	// whatever its refcount.
	OnThreadShutdown(t *Thread, inst *Instance)
}

// ---------------------------------------------------------------------------
// Class: table-driven Template
// ---------------------------------------------------------------------------

type methodKey struct {
	name  string
	arity int
}

func (k methodKey) String() string { return fmt.Sprintf("%s/%d", k.name, k.arity) }

// Class is a Template built from explicit registrations. Build it once at
// startup and treat it as immutable once threads use it.
type Class struct {
	name    string
	getters map[string]GetterFunc
	setters map[string]SetterFunc
	methods map[methodKey]MethodFunc
	statics map[methodKey]StaticFunc

	equal      func(a, b any) bool
	display    func(host any) string
	onAdd      HookFunc
	onFree     HookFunc
	onShutdown HookFunc
}

// NewClass creates an empty class template.
func NewClass(name string) *Class {
	return &Class{
		name:    name,
		getters: make(map[string]GetterFunc),
		setters: make(map[string]SetterFunc),
		methods: make(map[methodKey]MethodFunc),
		statics: make(map[methodKey]StaticFunc),
	}
}

// DefineField registers a field. A nil setter makes the field read-only.
func (c *Class) DefineField(name string, get GetterFunc, set SetterFunc) *Class {
	if get != nil {
		c.getters[name] = get
	}
	if set != nil {
		c.setters[name] = set
	}
	return c
}

// Define registers an instance method for a given arity.
func (c *Class) Define(name string, arity int, fn MethodFunc) *Class {
	c.methods[methodKey{name, arity}] = fn
	return c
}

// DefineStatic registers a static method for a given arity.
func (c *Class) DefineStatic(name string, arity int, fn StaticFunc) *Class {
	c.statics[methodKey{name, arity}] = fn
	return c
}

// Equality sets the contents-equal predicate.
func (c *Class) Equality(fn func(a, b any) bool) *Class {
	c.equal = fn
	return c
}

// Displayer sets the display text function.
func (c *Class) Displayer(fn func(host any) string) *Class {
	c.display = fn
	return c
}

// HookAdd sets the added-to-heap hook.
func (c *Class) HookAdd(fn HookFunc) *Class {
	c.onAdd = fn
	return c
}

// HookFree sets the freed hook.
func (c *Class) HookFree(fn HookFunc) *Class {
	c.onFree = fn
	return c
}

// HookShutdown sets the thread shutdown hook.
func (c *Class) HookShutdown(fn HookFunc) *Class {
	c.onShutdown = fn
	return c
}

func (c *Class) Name() string { return c.name }

func (c *Class) Getter(field string) (GetterFunc, bool) {
	fn, ok := c.getters[field]
	return fn, ok
}

func (c *Class) Setter(field string) (SetterFunc, bool) {
	fn, ok := c.setters[field]
	return fn, ok
}

func (c *Class) Method(name string, arity int) (MethodFunc, bool) {
	fn, ok := c.methods[methodKey{name, arity}]
	return fn, ok
}

func (c *Class) StaticMethod(name string, arity int) (StaticFunc, bool) {
	fn, ok := c.statics[methodKey{name, arity}]
	return fn, ok
}

// ContentsEqual uses the registered predicate, falling back to identity.
func (c *Class) ContentsEqual(a, b any) bool {
	if c.equal != nil {
		return c.equal(a, b)
	}
	ka, okA := identityKey(a)
	kb, okB := identityKey(b)
	return okA && okB && ka == kb
}

func (c *Class) Display(host any) string {
	if c.display != nil {
		return c.display(host)
	}
	return "<" + c.name + ">"
}

func (c *Class) OnAddToHeap(t *Thread, inst *Instance) {
	if c.onAdd != nil {
		c.onAdd(t, inst)
	}
}

func (c *Class) OnFree(t *Thread, inst *Instance) {
	if c.onFree != nil {
		c.onFree(t, inst)
	}
}

func (c *Class) OnThreadShutdown(t *Thread, inst *Instance) {
	if c.onShutdown != nil {
		c.onShutdown(t, inst)
	}
}
