package vm

import (
	"fmt"
	"sort"
)

// ---------------------------------------------------------------------------
// Frame: local variables of one function call
// ---------------------------------------------------------------------------

// Frame holds the variables of an active function call.
type Frame struct {
	Function *Function
	Args     []Primitive
	Locals   map[string]Primitive

	returnSlot int // index of this call's address in the jump-return stack
	stackBase  int // operand stack depth at entry
}

// ---------------------------------------------------------------------------
// Heap: per-thread object pool and variable scopes
// ---------------------------------------------------------------------------

// Heap owns the live instances of one thread plus its variables.
//
// An instance is in the pool and the identity map exactly while its
// refcount is positive.
type Heap struct {
	thread   *Thread
	pool     []*Instance
	free     []int
	live     int
	identity map[any]*Instance

	globals map[string]Primitive
	frames  []*Frame
}

func newHeap(t *Thread) *Heap {
	return &Heap{
		thread:   t,
		identity: make(map[any]*Instance),
		globals:  make(map[string]Primitive),
	}
}

// Len returns the number of registered instances.
func (h *Heap) Len() int { return h.live }

// Instance returns the registered instance in pool slot id, or nil.
func (h *Heap) Instance(id int) *Instance {
	if id < 0 || id >= len(h.pool) {
		return nil
	}
	return h.pool[id]
}

// Instances returns a snapshot of the pool in slot order.
func (h *Heap) Instances() []*Instance {
	out := make([]*Instance, 0, h.live)
	for _, inst := range h.pool {
		if inst != nil {
			out = append(out, inst)
		}
	}
	return out
}

// Find returns the registered instance wrapping host, by identity.
func (h *Heap) Find(host any) *Instance {
	key, ok := identityKey(host)
	if !ok {
		return nil
	}
	return h.identity[key]
}

// Retain increments the refcount of an object reference. Other kinds are
// ignored.
func (h *Heap) Retain(p Primitive) {
	if p.kind == KindObject && p.obj != nil {
		h.retain(p.obj)
	}
}

// Release decrements the refcount of an object reference. Other kinds are
// ignored.
func (h *Heap) Release(p Primitive) {
	if p.kind == KindObject && p.obj != nil {
		h.release(p.obj)
	}
}

// ReleaseAll releases every value in ps.
func (h *Heap) ReleaseAll(ps []Primitive) {
	for _, p := range ps {
		h.Release(p)
	}
}

func (h *Heap) retain(inst *Instance) {
	if inst.heap != nil && inst.heap != h {
		panic(&InvariantError{Op: "retain", Detail: fmt.Sprintf("instance of %s belongs to another thread", inst.template.Name())})
	}
	inst.heap = h
	inst.refs++
	if inst.refs == 1 {
		h.register(inst)
		inst.template.OnAddToHeap(h.thread, inst)
	}
}

func (h *Heap) release(inst *Instance) {
	if inst.heap != h {
		panic(&InvariantError{Op: "release", Detail: fmt.Sprintf("instance of %s is not owned by this heap", inst.template.Name())})
	}
	if inst.refs <= 0 {
		panic(&InvariantError{Op: "release", Detail: fmt.Sprintf("refcount of %s instance already zero", inst.template.Name())})
	}
	inst.refs--
	if inst.refs == 0 {
		h.deregister(inst)
		inst.template.OnFree(h.thread, inst)
	}
}

func (h *Heap) register(inst *Instance) {
	if key, ok := identityKey(inst.host); ok {
		if other, exists := h.identity[key]; exists && other != inst {
			panic(&InvariantError{Op: "register", Detail: fmt.Sprintf("host %T already tracked by another instance", inst.host)})
		}
		h.identity[key] = inst
	}
	if n := len(h.free); n > 0 {
		inst.id = h.free[n-1]
		h.free = h.free[:n-1]
		h.pool[inst.id] = inst
	} else {
		inst.id = len(h.pool)
		h.pool = append(h.pool, inst)
	}
	h.live++
}

func (h *Heap) deregister(inst *Instance) {
	if key, ok := identityKey(inst.host); ok && h.identity[key] == inst {
		delete(h.identity, key)
	}
	if inst.id >= 0 && inst.id < len(h.pool) && h.pool[inst.id] == inst {
		h.pool[inst.id] = nil
		h.free = append(h.free, inst.id)
		h.live--
	}
	inst.id = -1
}

// Repoint swaps the host object behind inst. A registered instance moves
// its identity registration from the old host to the new one.
func (h *Heap) Repoint(inst *Instance, host any) error {
	if inst.refs == 0 {
		inst.host = host
		return nil
	}
	if inst.heap != h {
		return &InvariantError{Op: "repoint", Detail: "instance is not owned by this heap"}
	}
	oldKey, oldTracked := identityKey(inst.host)
	if oldTracked && h.identity[oldKey] != inst {
		return &InvariantError{Op: "repoint", Detail: fmt.Sprintf("old host %T is not registered to this instance", inst.host)}
	}
	newKey, newTracked := identityKey(host)
	if newTracked {
		if other, exists := h.identity[newKey]; exists && other != inst {
			return &InvariantError{Op: "repoint", Detail: fmt.Sprintf("new host %T already tracked by another instance", host)}
		}
	}
	if oldTracked {
		delete(h.identity, oldKey)
	}
	if newTracked {
		h.identity[newKey] = inst
	}
	inst.host = host
	return nil
}

// sweep calls OnThreadShutdown for every pooled instance and returns how
// many were visited.
func (h *Heap) sweep() int {
	insts := h.Instances()
	for _, inst := range insts {
		inst.template.OnThreadShutdown(h.thread, inst)
	}
	return len(insts)
}

// ---------------------------------------------------------------------------
// Variable scopes
// ---------------------------------------------------------------------------

// Frame returns the innermost call frame, nil at main level.
func (h *Heap) Frame() *Frame {
	if len(h.frames) == 0 {
		return nil
	}
	return h.frames[len(h.frames)-1]
}

// Depth returns the number of active call frames.
func (h *Heap) Depth() int { return len(h.frames) }

// pushFrame enters a function call. Each argument is copied into the
// positional slice and into the local named by its parameter, and every
// placement is retained. The caller keeps its own references to args.
func (h *Heap) pushFrame(fn *Function, args []Primitive, returnSlot, stackBase int) *Frame {
	f := &Frame{
		Function:   fn,
		Args:       make([]Primitive, len(args)),
		Locals:     make(map[string]Primitive, len(fn.Params)),
		returnSlot: returnSlot,
		stackBase:  stackBase,
	}
	for i, a := range args {
		f.Args[i] = a
		h.Retain(a)
		if i < len(fn.Params) {
			f.Locals[fn.Params[i]] = a
			h.Retain(a)
		}
	}
	h.frames = append(h.frames, f)
	return f
}

// popFrame leaves the innermost call and releases everything it held.
func (h *Heap) popFrame() *Frame {
	n := len(h.frames)
	if n == 0 {
		return nil
	}
	f := h.frames[n-1]
	h.frames[n-1] = nil
	h.frames = h.frames[:n-1]
	h.ReleaseAll(f.Args)
	for _, name := range sortedKeys(f.Locals) {
		h.Release(f.Locals[name])
	}
	return f
}

// Var looks a variable up in the innermost frame, then in globals.
func (h *Heap) Var(name string) (Primitive, bool) {
	if f := h.Frame(); f != nil {
		if v, ok := f.Locals[name]; ok {
			return v, true
		}
	}
	v, ok := h.globals[name]
	return v, ok
}

// Assign stores v, whose reference the caller hands over, into the
// innermost visible binding. New names become locals inside a call and
// globals at main level. The displaced value is released.
func (h *Heap) Assign(name string, v Primitive) {
	f := h.Frame()
	if f != nil {
		if old, ok := f.Locals[name]; ok {
			f.Locals[name] = v
			h.Release(old)
			return
		}
	}
	if old, ok := h.globals[name]; ok {
		h.globals[name] = v
		h.Release(old)
		return
	}
	if f != nil {
		f.Locals[name] = v
		return
	}
	h.globals[name] = v
}

// SetGlobal binds a global for the host, retaining v.
func (h *Heap) SetGlobal(name string, v Primitive) {
	h.Retain(v)
	old, had := h.globals[name]
	h.globals[name] = v
	if had {
		h.Release(old)
	}
}

// Global returns a global variable.
func (h *Heap) Global(name string) (Primitive, bool) {
	v, ok := h.globals[name]
	return v, ok
}

// GlobalNames returns the names of all globals in sorted order.
func (h *Heap) GlobalNames() []string {
	return sortedKeys(h.globals)
}

func sortedKeys(m map[string]Primitive) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
