package vm

import (
	"errors"
	"testing"
)

// point is a pointer-identity host type used across tests.
type point struct {
	X, Y float64
}

// hookCounts records template lifecycle events.
type hookCounts struct {
	added    int
	freed    int
	shutdown int
}

func newPointClass(hc *hookCounts) *Class {
	c := NewClass("Point")
	c.DefineField("x",
		func(t *Thread, host any) (Primitive, error) { return Number(host.(*point).X), nil },
		func(t *Thread, host any, v Primitive) error {
			if !v.IsNumber() {
				return errors.New("x must be a number")
			}
			host.(*point).X = v.Num()
			return nil
		})
	c.DefineField("y",
		func(t *Thread, host any) (Primitive, error) { return Number(host.(*point).Y), nil },
		nil)
	c.Define("add", 1, func(t *Thread, host any, args []Primitive) (Primitive, error) {
		p := host.(*point)
		o, ok := args[0].Host().(*point)
		if !ok {
			return Null, errors.New("add expects a Point")
		}
		return t.Wrap(&point{X: p.X + o.X, Y: p.Y + o.Y})
	})
	c.Define("self", 0, func(t *Thread, host any, args []Primitive) (Primitive, error) {
		return t.Wrap(host)
	})
	c.DefineStatic("origin", 0, func(t *Thread, args []Primitive) (Primitive, error) {
		return t.Wrap(&point{})
	})
	c.DefineStatic("at", 2, func(t *Thread, args []Primitive) (Primitive, error) {
		return t.Wrap(&point{X: args[0].Num(), Y: args[1].Num()})
	})
	c.Equality(func(a, b any) bool {
		x, y := a.(*point), b.(*point)
		return x.X == y.X && x.Y == y.Y
	})
	c.Displayer(func(host any) string {
		p := host.(*point)
		return "Point(" + formatNumber(p.X) + ", " + formatNumber(p.Y) + ")"
	})
	if hc != nil {
		c.HookAdd(func(t *Thread, inst *Instance) { hc.added++ })
		c.HookFree(func(t *Thread, inst *Instance) { hc.freed++ })
		c.HookShutdown(func(t *Thread, inst *Instance) { hc.shutdown++ })
	}
	return c
}

// newTestEnv returns an environment with the Point template and a few
// natives used by interpreter tests.
func newTestEnv(t *testing.T) (*Environment, *hookCounts) {
	t.Helper()
	hc := &hookCounts{}
	env := NewEnvironment()
	if err := env.Templates.RegisterFor(&point{}, newPointClass(hc)); err != nil {
		t.Fatalf("register Point: %v", err)
	}
	env.Natives.Register("sum", 1, func(th *Thread, args []Primitive) (Primitive, error) {
		total := 0.0
		for _, a := range args {
			total += a.Num()
		}
		return Number(total), nil
	})
	env.Natives.Register("wait", 0, func(th *Thread, args []Primitive) (Primitive, error) {
		_, err := th.Yield()
		return Number(-1), err
	})
	env.Natives.Register("leave", 0, func(th *Thread, args []Primitive) (Primitive, error) {
		th.Stack().Push(String("left"))
		return String("returned"), nil
	})
	env.Natives.Register("fail", 0, func(th *Thread, args []Primitive) (Primitive, error) {
		return Null, errHost
	})
	env.Natives.Register("depth", 0, func(th *Thread, args []Primitive) (Primitive, error) {
		return Number(float64(th.Stack().Len())), nil
	})
	return env, hc
}

var errHost = errors.New("host exploded")

// start builds the script, starts a thread and returns it.
func start(t *testing.T, env *Environment, b *Builder, args ...Primitive) *Thread {
	t.Helper()
	script, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	th := NewThread(env, script, args...)
	if _, err := th.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return th
}

// finish asserts the thread finished and returns its result.
func finish(t *testing.T, th *Thread) Primitive {
	t.Helper()
	if th.Status() != StatusFinished {
		t.Fatalf("status = %s, want FINISHED (err: %v)", th.Status(), th.Err())
	}
	r, err := th.Result()
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	return r
}

// failWith asserts the thread ended in ERROR wrapping target.
func failWith(t *testing.T, th *Thread, target error) {
	t.Helper()
	if th.Status() != StatusError {
		t.Fatalf("status = %s, want ERROR", th.Status())
	}
	if !errors.Is(th.Err(), target) {
		t.Fatalf("err = %v, want %v", th.Err(), target)
	}
}

// newIdleThread returns a thread over an empty script, for heap and stack
// tests that do not execute instructions.
func newIdleThread(env *Environment) *Thread {
	if env == nil {
		env = NewEnvironment()
	}
	return NewThread(env, &Script{Name: "idle"})
}
