// Package stdlib registers the core native functions available to every
// script run by the quill CLI.
//
//	print(v...)      write values separated by spaces, then a newline
//	str(v)           display string of v
//	num(v)           number from a number or numeric string
//	len(v)           rune count of a string, element count of an array
//	type(v)          type name of v
//	input([prompt])  suspend; the host resumes with a line of input
//	wait(ms)         suspend; the host resumes after ms milliseconds
//	assert(c, [msg]) fail the thread unless c is truthy
package stdlib

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/chazu/quill/vm"
)

// ErrAssertion is the cause of a failed assert call.
var ErrAssertion = errors.New("assertion failed")

// Options configures the natives.
type Options struct {
	// Out receives print output. Defaults to os.Stdout.
	Out io.Writer
}

// Names lists the natives Register installs.
func Names() []string {
	return []string{"assert", "input", "len", "num", "print", "str", "type", "wait"}
}

// Register installs the standard natives into env.
func Register(env *vm.Environment, opts Options) {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	n := env.Natives

	n.Register("print", 0, func(t *vm.Thread, args []vm.Primitive) (vm.Primitive, error) {
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = a.AsString()
		}
		_, err := fmt.Fprintln(out, strings.Join(parts, " "))
		return vm.Null, err
	})

	n.Register("str", 1, func(t *vm.Thread, args []vm.Primitive) (vm.Primitive, error) {
		return vm.String(args[0].AsString()), nil
	})

	n.Register("num", 1, func(t *vm.Thread, args []vm.Primitive) (vm.Primitive, error) {
		v := args[0]
		switch {
		case v.IsNumber():
			return v, nil
		case v.IsString():
			f, err := strconv.ParseFloat(strings.TrimSpace(v.Str()), 64)
			if err != nil {
				return vm.Null, fmt.Errorf("%w: %q is not a number", vm.ErrTypeMismatch, v.Str())
			}
			return vm.Number(f), nil
		}
		return vm.Null, fmt.Errorf("%w: num of %s", vm.ErrTypeMismatch, v.TypeName())
	})

	n.Register("len", 1, func(t *vm.Thread, args []vm.Primitive) (vm.Primitive, error) {
		v := args[0]
		if v.IsString() {
			return vm.Number(float64(utf8.RuneCountInString(v.Str()))), nil
		}
		if a, ok := v.Host().(*vm.Array); ok {
			return vm.Number(float64(len(a.Elements))), nil
		}
		return vm.Null, fmt.Errorf("%w: len of %s", vm.ErrTypeMismatch, v.TypeName())
	})

	n.Register("type", 1, func(t *vm.Thread, args []vm.Primitive) (vm.Primitive, error) {
		return vm.String(args[0].TypeName()), nil
	})

	n.Register("input", 0, func(t *vm.Thread, args []vm.Primitive) (vm.Primitive, error) {
		prompt := vm.Null
		if len(args) > 0 {
			prompt = vm.String(args[0].AsString())
		}
		_, err := t.YieldWith(prompt)
		return vm.Null, err
	})

	n.Register("wait", 1, func(t *vm.Thread, args []vm.Primitive) (vm.Primitive, error) {
		if !args[0].IsNumber() || args[0].Num() < 0 {
			return vm.Null, fmt.Errorf("%w: wait needs a non-negative number of milliseconds", vm.ErrTypeMismatch)
		}
		_, err := t.YieldWith(args[0])
		return vm.Null, err
	})

	n.Register("assert", 1, func(t *vm.Thread, args []vm.Primitive) (vm.Primitive, error) {
		if args[0].Truthy() {
			return vm.Null, nil
		}
		if len(args) > 1 {
			return vm.Null, fmt.Errorf("%w: %s", ErrAssertion, args[1].AsString())
		}
		return vm.Null, ErrAssertion
	})
}
