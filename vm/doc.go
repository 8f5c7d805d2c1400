// Package vm implements the quill scripting runtime.
//
// This package contains:
//   - Tagged primitive values (number, string, object reference)
//   - Reference-counted object instances bridging host Go objects
//   - Per-thread heap with global and local variable scopes
//   - Operand stack with transfer and release pop semantics
//   - Bytecode dispatch loop
//   - Thread state machine with cooperative yield/resume
//
// A compiled Script is produced elsewhere (the compiler is not part of this
// module). Hosts register native functions and object templates on an
// Environment, create one Thread per script invocation and drive it with
// Start and Resume:
//
//	env := vm.NewEnvironment()
//	env.Natives.Register("print", 1, printFn)
//	t := vm.NewThread(env, script, vm.String("hello"))
//	status, err := t.Start()
//	for status == vm.StatusYield {
//		status, err = t.Resume(vm.String(readLine()))
//	}
//
// # Reference counting
//
// Go's collector owns memory. Refcounts are a liveness signal: an Instance
// is registered in its thread's heap while at least one stack slot,
// variable binding or array element holds it, and templates are told when
// it enters and leaves the heap. Every Push retains; PopWithGC releases;
// PopWithoutGC hands the reference to the caller, who must either store it
// or release it.
package vm
