package vm

import (
	"fmt"
	"sort"
	"sync"
)

// NativeFunc implements a host function callable from scripts. args are
// borrowed for the duration of the call.
//
// A native may leave its own result on the stack instead of returning one,
// or suspend the thread with Thread.Yield; in both cases the returned
// primitive is discarded.
type NativeFunc func(t *Thread, args []Primitive) (Primitive, error)

// Native is a registered host function.
type Native struct {
	Name    string
	MinArgs int
	Fn      NativeFunc
}

// NativeRegistry maps names to native functions.
type NativeRegistry struct {
	mu      sync.RWMutex
	natives map[string]*Native
}

// NewNativeRegistry creates an empty registry.
func NewNativeRegistry() *NativeRegistry {
	return &NativeRegistry{natives: make(map[string]*Native)}
}

// Register adds or replaces a native function.
func (r *NativeRegistry) Register(name string, minArgs int, fn NativeFunc) {
	if fn == nil {
		panic(fmt.Sprintf("vm: native %s registered with nil function", name))
	}
	r.mu.Lock()
	r.natives[name] = &Native{Name: name, MinArgs: minArgs, Fn: fn}
	r.mu.Unlock()
}

// Lookup returns the native registered under name.
func (r *NativeRegistry) Lookup(name string) (*Native, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.natives[name]
	return n, ok
}

// Names returns all native names in sorted order.
func (r *NativeRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.natives))
	for name := range r.natives {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
