package vm

import (
	"fmt"
	"reflect"
)

// ---------------------------------------------------------------------------
// Instance: a host object paired with its template
// ---------------------------------------------------------------------------

// Instance wraps exactly one host object together with the Template that
// exposes it to scripts. Instances are created unbound; the first heap that
// retains one owns it from then on.
type Instance struct {
	host     any
	template Template
	refs     int
	id       int // pool slot while registered, -1 otherwise
	heap     *Heap
}

// NewInstance creates an unbound instance with a zero reference count.
// Pushing it onto a thread's stack (or passing it as a start argument)
// registers it in that thread's heap.
func NewInstance(host any, tmpl Template) *Instance {
	if tmpl == nil {
		panic("vm.NewInstance: nil template")
	}
	return &Instance{host: host, template: tmpl, id: -1}
}

// Host returns the wrapped host object.
func (inst *Instance) Host() any { return inst.host }

// Template returns the template describing the host object.
func (inst *Instance) Template() Template { return inst.template }

// RefCount returns the number of script-side holders.
func (inst *Instance) RefCount() int { return inst.refs }

// ID returns the pool slot of a registered instance, or -1.
func (inst *Instance) ID() int { return inst.id }

// Registered reports whether the instance is currently in its heap's pool.
func (inst *Instance) Registered() bool { return inst.id >= 0 }

// Heap returns the owning heap, nil while unbound.
func (inst *Instance) Heap() *Heap { return inst.heap }

// String returns the template's display text for the host object.
func (inst *Instance) String() string {
	return inst.template.Display(inst.host)
}

// identityKey returns a map key that compares by object identity. Only
// reference-like host values have an identity; value types (structs,
// strings, numbers) are never shared between instances.
func identityKey(host any) (any, bool) {
	if host == nil {
		return nil, false
	}
	switch reflect.TypeOf(host).Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.UnsafePointer:
		return host, true
	}
	return nil, false
}

// ---------------------------------------------------------------------------
// InvariantError
// ---------------------------------------------------------------------------

// InvariantError reports a broken heap invariant: releasing a reference
// nobody holds, identity map corruption, or an instance crossing threads.
// These are fatal for the thread that hits them.
type InvariantError struct {
	Op     string
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrInvariant, e.Op, e.Detail)
}

// Unwrap lets errors.Is match ErrInvariant.
func (e *InvariantError) Unwrap() error { return ErrInvariant }
