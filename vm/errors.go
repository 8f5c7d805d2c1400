package vm

import (
	"errors"
	"fmt"
)

// Script-logic errors.
var (
	ErrArgumentCount  = errors.New("wrong argument count")
	ErrUnresolved     = errors.New("unresolved name")
	ErrTypeMismatch   = errors.New("type mismatch")
	ErrDivisionByZero = errors.New("division by zero")
	ErrNullReference  = errors.New("null reference")
	ErrStackUnderflow = errors.New("stack underflow")
	ErrInvalidScript  = errors.New("invalid script")
)

// Protocol and heap errors.
var (
	// ErrProtocol is returned when the host drives a thread in a way its
	// state does not allow, such as resuming a thread that is not yielded.
	ErrProtocol = errors.New("protocol misuse")
	// ErrInvariant marks refcount and identity map corruption.
	ErrInvariant = errors.New("invariant violation")
)

// BindingError wraps an error raised by host code: a native function, a
// field accessor or a template method. The original error stays reachable
// through errors.Unwrap.
type BindingError struct {
	Kind     string // "native", "getter", "setter", "method" or "static"
	Template string // empty for natives
	Name     string
	Err      error
}

func (e *BindingError) Error() string {
	if e.Template == "" {
		return fmt.Sprintf("%s %s: %v", e.Kind, e.Name, e.Err)
	}
	return fmt.Sprintf("%s %s.%s: %v", e.Kind, e.Template, e.Name, e.Err)
}

func (e *BindingError) Unwrap() error { return e.Err }

// RuntimeError is the error a thread ends with. It records where in the
// script the failing instruction sits.
type RuntimeError struct {
	PC       int
	Op       Opcode
	Function string // "main" outside function calls
	Label    string // nearest label at or before PC, may be empty
	Line     int
	Err      error
}

func (e *RuntimeError) Error() string {
	loc := fmt.Sprintf("%s@%04d", e.Function, e.PC)
	if e.Label != "" {
		loc += " (" + e.Label + ")"
	}
	if e.Line > 0 {
		loc += fmt.Sprintf(" line %d", e.Line)
	}
	return fmt.Sprintf("%s %s: %v", loc, e.Op, e.Err)
}

func (e *RuntimeError) Unwrap() error { return e.Err }

// panicError converts a recovered panic value into an error.
func panicError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("panic: %v", r)
}
