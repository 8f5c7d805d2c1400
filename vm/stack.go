package vm

import "fmt"

// Stack is a thread's operand stack.
//
// Values on the stack hold a reference. Push retains, PopWithGC releases,
// PopWithoutGC hands the reference to the caller.
type Stack struct {
	thread *Thread
	heap   *Heap
	values []Primitive
}

func newStack(t *Thread, h *Heap) *Stack {
	return &Stack{thread: t, heap: h, values: make([]Primitive, 0, 64)}
}

// Len returns the number of values on the stack.
func (s *Stack) Len() int { return len(s.values) }

// Push places v on the stack and retains it.
func (s *Stack) Push(v Primitive) {
	s.heap.Retain(v)
	s.values = append(s.values, v)
}

// PushObject wraps a host object, reusing the instance that already tracks
// it, and pushes the reference. The template comes from the environment's
// registry by the host's Go type.
func (s *Stack) PushObject(host any) error {
	if host == nil {
		s.Push(Null)
		return nil
	}
	p, err := s.thread.Wrap(host)
	if err != nil {
		return err
	}
	s.Push(p)
	return nil
}

// Peek returns the top value without removing it.
func (s *Stack) Peek() Primitive {
	if len(s.values) == 0 {
		panic(fmt.Errorf("%w: peek on empty stack", ErrStackUnderflow))
	}
	return s.values[len(s.values)-1]
}

// PopWithGC removes the top value and releases it. Use it when the value
// is being discarded.
func (s *Stack) PopWithGC() Primitive {
	v := s.PopWithoutGC()
	s.heap.Release(v)
	return v
}

// PopWithoutGC removes the top value without touching its refcount. The
// caller now owns the reference and must store or release it.
func (s *Stack) PopWithoutGC() Primitive {
	n := len(s.values)
	if n == 0 {
		panic(fmt.Errorf("%w: pop from empty stack", ErrStackUnderflow))
	}
	v := s.values[n-1]
	s.values[n-1] = Null
	s.values = s.values[:n-1]
	return v
}

// PopN removes the top n values without releasing them and returns them in
// the order they were pushed.
func (s *Stack) PopN(n int) []Primitive {
	if n < 0 || n > len(s.values) {
		panic(fmt.Errorf("%w: need %d values, have %d", ErrStackUnderflow, n, len(s.values)))
	}
	start := len(s.values) - n
	out := make([]Primitive, n)
	copy(out, s.values[start:])
	for i := start; i < len(s.values); i++ {
		s.values[i] = Null
	}
	s.values = s.values[:start]
	return out
}

// Values returns a copy of the stack, bottom first.
func (s *Stack) Values() []Primitive {
	out := make([]Primitive, len(s.values))
	copy(out, s.values)
	return out
}
