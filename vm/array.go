package vm

import (
	"fmt"
	"strings"
)

// Array is the host type behind script arrays. It holds a reference to
// each element while registered.
type Array struct {
	Elements []Primitive
}

// ArrayTemplate exposes *Array to scripts.
var ArrayTemplate = newArrayTemplate()

// NewArray creates an unbound array instance; ownership of the element
// references passes to the array.
func NewArray(elems []Primitive) *Instance {
	return NewInstance(&Array{Elements: elems}, ArrayTemplate)
}

func arrayIndex(a *Array, idx Primitive) (int, error) {
	if !idx.IsInteger() {
		return 0, fmt.Errorf("%w: array index must be an integer, got %s", ErrTypeMismatch, idx.TypeName())
	}
	i := int(idx.Int())
	if i < 0 || i >= len(a.Elements) {
		return 0, fmt.Errorf("array index %d out of range [0,%d)", i, len(a.Elements))
	}
	return i, nil
}

func newArrayTemplate() *Class {
	c := NewClass("Array")

	c.DefineField("length", func(t *Thread, host any) (Primitive, error) {
		return Number(float64(len(host.(*Array).Elements))), nil
	}, nil)

	c.Define("get", 1, func(t *Thread, host any, args []Primitive) (Primitive, error) {
		a := host.(*Array)
		i, err := arrayIndex(a, args[0])
		if err != nil {
			return Null, err
		}
		return a.Elements[i], nil
	})

	c.Define("set", 2, func(t *Thread, host any, args []Primitive) (Primitive, error) {
		a := host.(*Array)
		i, err := arrayIndex(a, args[0])
		if err != nil {
			return Null, err
		}
		old := a.Elements[i]
		t.heap.Retain(args[1])
		a.Elements[i] = args[1]
		t.heap.Release(old)
		return Null, nil
	})

	c.Define("push", 1, func(t *Thread, host any, args []Primitive) (Primitive, error) {
		a := host.(*Array)
		t.heap.Retain(args[0])
		a.Elements = append(a.Elements, args[0])
		return Number(float64(len(a.Elements))), nil
	})

	// pop leaves the removed element on the stack itself so the array's
	// reference can be dropped only after the stack holds one.
	c.Define("pop", 0, func(t *Thread, host any, args []Primitive) (Primitive, error) {
		a := host.(*Array)
		n := len(a.Elements)
		if n == 0 {
			return Null, nil
		}
		v := a.Elements[n-1]
		a.Elements[n-1] = Null
		a.Elements = a.Elements[:n-1]
		t.stack.Push(v)
		t.heap.Release(v)
		return Null, nil
	})

	c.Define("contains", 1, func(t *Thread, host any, args []Primitive) (Primitive, error) {
		for _, e := range host.(*Array).Elements {
			if e.ValueEquals(args[0]) {
				return Bool(true), nil
			}
		}
		return Bool(false), nil
	})

	c.DefineStatic("new", 0, func(t *Thread, args []Primitive) (Primitive, error) {
		return Ref(NewInstance(&Array{}, c)), nil
	})

	c.Equality(func(a, b any) bool {
		return arraysEqual(a.(*Array), b.(*Array), make(map[[2]*Array]bool))
	})

	c.Displayer(func(host any) string {
		var sb strings.Builder
		displayArray(&sb, host.(*Array), make(map[*Array]bool))
		return sb.String()
	})

	c.HookFree(func(t *Thread, inst *Instance) {
		a := inst.Host().(*Array)
		elems := a.Elements
		a.Elements = nil
		t.heap.ReleaseAll(elems)
	})

	return c
}

// arraysEqual compares element-wise. A pair already under comparison is
// taken as equal, so self-containing arrays terminate.
func arraysEqual(x, y *Array, seen map[[2]*Array]bool) bool {
	if x == y {
		return true
	}
	if len(x.Elements) != len(y.Elements) {
		return false
	}
	pair := [2]*Array{x, y}
	if seen[pair] {
		return true
	}
	seen[pair] = true
	for i := range x.Elements {
		ex, ey := x.Elements[i], y.Elements[i]
		ax, okX := ex.Host().(*Array)
		ay, okY := ey.Host().(*Array)
		if okX && okY && ex.obj.template == ey.obj.template {
			if !arraysEqual(ax, ay, seen) {
				return false
			}
			continue
		}
		if !ex.ValueEquals(ey) {
			return false
		}
	}
	return true
}

// displayArray renders a nested array, printing [...] for an array that is
// already being rendered further up.
func displayArray(sb *strings.Builder, a *Array, active map[*Array]bool) {
	if active[a] {
		sb.WriteString("[...]")
		return
	}
	active[a] = true
	defer delete(active, a)

	sb.WriteByte('[')
	for i, e := range a.Elements {
		if i > 0 {
			sb.WriteString(", ")
		}
		if inner, ok := e.Host().(*Array); ok {
			displayArray(sb, inner, active)
		} else {
			sb.WriteString(e.AsString())
		}
	}
	sb.WriteByte(']')
}
