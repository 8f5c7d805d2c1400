package vm

import (
	"errors"
	"math"
	"testing"
)

func TestBinaryOperators(t *testing.T) {
	tests := []struct {
		name string
		a, b Primitive
		op   Opcode
		want Primitive
	}{
		{"add", Number(2), Number(3), OpAdd, Number(5)},
		{"sub", Number(2), Number(3), OpSub, Number(-1)},
		{"mul", Number(4), Number(2.5), OpMul, Number(10)},
		{"div", Number(7), Number(2), OpDiv, Number(3.5)},
		{"mod", Number(7), Number(3), OpMod, Number(1)},
		{"shl", Number(1), Number(4), OpShl, Number(16)},
		{"shr", Number(16), Number(2), OpShr, Number(4)},
		{"shl past width", Number(1), Number(64), OpShl, Number(0)},
		{"shl far past width", Number(1), Number(100), OpShl, Number(0)},
		{"shr past width", Number(8), Number(64), OpShr, Number(0)},
		{"shr negative past width", Number(-8), Number(70), OpShr, Number(-1)},
		{"and truncates", Number(7.9), Number(2.2), OpBitAnd, Number(2)},
		{"and", Number(6), Number(3), OpBitAnd, Number(2)},
		{"or", Number(6), Number(3), OpBitOr, Number(7)},
		{"xor", Number(6), Number(3), OpBitXor, Number(5)},
		{"less", Number(1), Number(2), OpLess, Number(1)},
		{"less eq", Number(2), Number(2), OpLessEq, Number(1)},
		{"greater", Number(1), Number(2), OpGreater, Number(0)},
		{"greater eq", Number(3), Number(2), OpGreaterEq, Number(1)},
		{"equal", Number(2), Number(2), OpEqual, Number(1)},
		{"not equal", Number(2), Number(2), OpNotEqual, Number(0)},
		{"equal kinds differ", Number(1), String("1"), OpEqual, Number(0)},
		{"concat", String("a"), Number(1), OpAdd, String("a1")},
		{"concat left number", Number(2), String("b"), OpAdd, String("2b")},
		{"string less", String("a"), String("b"), OpLess, Number(1)},
		{"null equal", Null, Null, OpEqual, Number(1)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env, _ := newTestEnv(t)
			b := NewBuilder(tc.name).Const(tc.a).Const(tc.b).Op(tc.op).Return()
			got := finish(t, start(t, env, b))
			if !got.Equals(tc.want) {
				t.Errorf("got %v (%s), want %v", got, got.TypeName(), tc.want)
			}
		})
	}
}

func TestOperatorErrors(t *testing.T) {
	tests := []struct {
		name  string
		build func(b *Builder)
		want  error
	}{
		{"div by zero", func(b *Builder) { b.Number(10).Number(0).Op(OpDiv) }, ErrDivisionByZero},
		{"mod by zero", func(b *Builder) { b.Number(10).Number(0).Op(OpMod) }, ErrDivisionByZero},
		{"sub string", func(b *Builder) { b.Text("a").Number(1).Op(OpSub) }, ErrTypeMismatch},
		{"mixed compare", func(b *Builder) { b.Text("a").Number(1).Op(OpLess) }, ErrTypeMismatch},
		{"negative shift", func(b *Builder) { b.Number(1).Number(-1).Op(OpShl) }, ErrTypeMismatch},
		{"shift of NaN", func(b *Builder) { b.Number(math.NaN()).Number(1).Op(OpShl) }, ErrTypeMismatch},
		{"and with infinity", func(b *Builder) { b.Number(math.Inf(1)).Number(1).Op(OpBitAnd) }, ErrTypeMismatch},
		{"or out of range", func(b *Builder) { b.Number(1e20).Number(1).Op(OpBitOr) }, ErrTypeMismatch},
		{"shift count infinite", func(b *Builder) { b.Number(1).Number(math.Inf(-1)).Op(OpShr) }, ErrTypeMismatch},
		{"not non-boolean", func(b *Builder) { b.Number(2).Op(OpNot) }, ErrTypeMismatch},
		{"negate string", func(b *Builder) { b.Text("x").Op(OpNegate) }, ErrTypeMismatch},
		{"pop empty", func(b *Builder) { b.Op(OpPop) }, ErrStackUnderflow},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env, _ := newTestEnv(t)
			b := NewBuilder(tc.name)
			tc.build(b)
			b.Return()
			failWith(t, start(t, env, b), tc.want)
		})
	}
}

func TestUnaryOperators(t *testing.T) {
	tests := []struct {
		v    Primitive
		op   Opcode
		want Primitive
	}{
		{Number(1), OpNot, Number(0)},
		{Number(0), OpNot, Number(1)},
		{Number(4), OpNegate, Number(-4)},
		{String(""), OpInvert, Number(0)},
		{Null, OpInvert, Number(1)},
		{Number(3), OpInvert, Number(0)},
	}
	for _, tc := range tests {
		env, _ := newTestEnv(t)
		got := finish(t, start(t, env, NewBuilder("unary").Const(tc.v).Op(tc.op).Return()))
		if !got.Equals(tc.want) {
			t.Errorf("%s %v = %v, want %v", tc.op, tc.v, got, tc.want)
		}
	}
}

func TestShortCircuit(t *testing.T) {
	tests := []struct {
		name string
		op   Opcode
		lhs  float64
		want float64
	}{
		{"and falsy keeps lhs", OpAnd, 0, 0},
		{"and truthy evaluates rhs", OpAnd, 1, 5},
		{"or falsy evaluates rhs", OpOr, 0, 5},
		{"or truthy keeps lhs", OpOr, 3, 3},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env, _ := newTestEnv(t)
			b := NewBuilder(tc.name).
				Number(tc.lhs).
				Jump(tc.op, "end").
				Number(5).
				Label("end").
				Return()
			th := start(t, env, b)
			if got := finish(t, th); got.Num() != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
			if th.Stack().Len() != 0 {
				t.Errorf("stack left with %d values", th.Stack().Len())
			}
		})
	}
}

func switchScript(subject float64) *Builder {
	return NewBuilder("switch").
		Number(subject).
		Number(1).Jump(OpSwitch, "one").
		Number(2).Jump(OpSwitch, "two").
		Number(3).Jump(OpSwitch, "three").
		Op(OpPop).Text("none").Return().
		Label("one").Text("one").Return().
		Label("two").Text("two").Return().
		Label("three").Text("three").Return()
}

func TestSwitch(t *testing.T) {
	for subject, want := range map[float64]string{1: "one", 2: "two", 3: "three", 9: "none"} {
		env, _ := newTestEnv(t)
		th := start(t, env, switchScript(subject))
		if got := finish(t, th); got.Str() != want {
			t.Errorf("switch %v = %q, want %q", subject, got.Str(), want)
		}
		if th.Stack().Len() != 0 {
			t.Errorf("switch %v left %d values on the stack", subject, th.Stack().Len())
		}
	}
}

func TestJumps(t *testing.T) {
	// sum = 0; i = 0; while i < 5 { sum = sum + i; i = i + 1 }; return sum
	b := NewBuilder("loop").
		Number(0).Set("sum").
		Number(0).Set("i").
		Label("top").
		Var("i").Number(5).Op(OpLess).
		Jump(OpJumpUnless, "done").
		Var("sum").Var("i").Op(OpAdd).Set("sum").
		Var("i").Number(1).Op(OpAdd).Set("i").
		Jump(OpJump, "top").
		Label("done").
		Var("sum").Return()
	env, _ := newTestEnv(t)
	th := start(t, env, b)
	if got := finish(t, th); got.Num() != 10 {
		t.Errorf("sum = %v, want 10", got)
	}
}

func TestStatementsLeaveStackBalanced(t *testing.T) {
	env, _ := newTestEnv(t)
	b := NewBuilder("balance").
		Number(1).Number(2).Op(OpAdd).Set("x").
		Var("x").Op(OpPop).
		Text("a").Set("y").
		Static("Point", "origin", 0).Op(OpPop).
		Number(1).Number(2).Array(2).Set("arr").
		Var("arr").Get("length").Op(OpPop)
	th := start(t, env, b)
	if got := finish(t, th); !got.IsNull() {
		t.Errorf("implicit result = %v, want null", got)
	}
	if th.Stack().Len() != 0 {
		t.Errorf("stack holds %v", th.Stack().Values())
	}
}

func TestUnresolvedVariable(t *testing.T) {
	env, _ := newTestEnv(t)
	failWith(t, start(t, env, NewBuilder("v").Var("missing").Return()), ErrUnresolved)
}

func TestFunctionCalls(t *testing.T) {
	env, _ := newTestEnv(t)
	b := NewBuilder("calls").
		Number(2).Number(3).Call("add", 2).Return().
		Func("add", "a", "b").
		Var("a").Var("b").Op(OpAdd).Return()
	if got := finish(t, start(t, env, b)); got.Num() != 5 {
		t.Errorf("add = %v, want 5", got)
	}
}

func TestRecursion(t *testing.T) {
	env, _ := newTestEnv(t)
	b := NewBuilder("fact").
		Number(5).Call("fact", 1).Return().
		Func("fact", "n").
		Var("n").Number(1).Op(OpLessEq).Jump(OpJumpIf, "base").
		Var("n").
		Var("n").Number(1).Op(OpSub).Call("fact", 1).
		Op(OpMul).Return().
		Label("base").Number(1).Return()
	th := start(t, env, b)
	if got := finish(t, th); got.Num() != 120 {
		t.Errorf("fact(5) = %v, want 120", got)
	}
	if th.Heap().Depth() != 0 {
		t.Errorf("frames left: %d", th.Heap().Depth())
	}
}

func TestFunctionReturnIsolatesCallerStack(t *testing.T) {
	env, _ := newTestEnv(t)
	b := NewBuilder("ret").
		Number(9).Call("noop", 0).Op(OpPop).
		Number(7).Call("messy", 0).Op(OpAdd).
		Op(OpAdd).Return().
		Func("noop").Return().
		Func("messy").Number(100).Number(2).Return()
	// 9 + (7 + 2)
	th := start(t, env, b)
	if got := finish(t, th); got.Num() != 18 {
		t.Errorf("got %v, want 18", got)
	}
}

func TestFunctionArgumentsByPosition(t *testing.T) {
	env, _ := newTestEnv(t)
	b := NewBuilder("args").
		Text("x").Text("y").Call("second", 2).Return().
		Func("second", "a", "b").Arg(1).Return()
	if got := finish(t, start(t, env, b)); got.Str() != "y" {
		t.Errorf("got %v, want y", got)
	}
}

func TestMainArguments(t *testing.T) {
	env, _ := newTestEnv(t)
	b := NewBuilder("main").Arg(0).Arg(1).Op(OpAdd).Return()
	th := start(t, env, b, Number(40), Number(2))
	if got := finish(t, th); got.Num() != 42 {
		t.Errorf("got %v, want 42", got)
	}

	env, _ = newTestEnv(t)
	failWith(t, start(t, env, NewBuilder("main").Arg(3).Return()), ErrArgumentCount)
}

func TestCallResolution(t *testing.T) {
	tests := []struct {
		name  string
		build func(b *Builder)
		want  error
	}{
		{"unknown function", func(b *Builder) { b.Call("nope", 0) }, ErrUnresolved},
		{"wrong overload", func(b *Builder) { b.Number(1).Number(2).Number(3).Call("f", 3) }, ErrArgumentCount},
		{"native too few args", func(b *Builder) { b.Call("sum", 0) }, ErrArgumentCount},
		{"native error", func(b *Builder) { b.Call("fail", 0) }, errHost},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env, _ := newTestEnv(t)
			b := NewBuilder(tc.name)
			tc.build(b)
			b.Return().Func("f", "x").Var("x").Return()
			failWith(t, start(t, env, b), tc.want)
		})
	}
}

func TestOverloadsByArity(t *testing.T) {
	env, _ := newTestEnv(t)
	b := NewBuilder("overloads").
		Number(1).Call("f", 1).
		Number(1).Number(2).Call("f", 2).
		Op(OpAdd).Return().
		Func("f", "a").Number(10).Return().
		Func("f", "a", "b").Number(20).Return()
	if got := finish(t, start(t, env, b)); got.Num() != 30 {
		t.Errorf("got %v, want 30", got)
	}
}

func TestNatives(t *testing.T) {
	env, _ := newTestEnv(t)
	b := NewBuilder("natives").Number(1).Number(2).Number(3).Call("sum", 3).Return()
	if got := finish(t, start(t, env, b)); got.Num() != 6 {
		t.Errorf("sum = %v, want 6", got)
	}
}

func TestNativeLeavingItsOwnResult(t *testing.T) {
	env, _ := newTestEnv(t)
	th := start(t, env, NewBuilder("leave").Call("leave", 0).Return())
	if got := finish(t, th); got.Str() != "left" {
		t.Errorf("got %q, want the value the native pushed", got.Str())
	}
}

func TestNativeErrorIsBindingError(t *testing.T) {
	env, _ := newTestEnv(t)
	th := start(t, env, NewBuilder("fail").Call("fail", 0).Return())
	var be *BindingError
	if !errors.As(th.Err(), &be) {
		t.Fatalf("err = %v, want a BindingError", th.Err())
	}
	if be.Kind != "native" || be.Name != "fail" {
		t.Errorf("binding error = %+v", be)
	}
}

func TestRuntimeErrorLocation(t *testing.T) {
	env, _ := newTestEnv(t)
	b := NewBuilder("loc").
		Call("divide", 0).Return().
		Func("divide").
		Line(7).Number(1).Number(0).
		Label("inner").
		Op(OpDiv).Return()
	th := start(t, env, b)
	var re *RuntimeError
	if !errors.As(th.Err(), &re) {
		t.Fatalf("err = %v, want a RuntimeError", th.Err())
	}
	if re.PC != 4 || re.Op != OpDiv || re.Line != 7 {
		t.Errorf("location = pc %d op %s line %d", re.PC, re.Op, re.Line)
	}
	if re.Function != "divide" || re.Label != "inner" {
		t.Errorf("function %q label %q", re.Function, re.Label)
	}
	if !errors.Is(th.Err(), ErrDivisionByZero) {
		t.Errorf("cause lost: %v", th.Err())
	}
}

func TestGosub(t *testing.T) {
	env, _ := newTestEnv(t)
	b := NewBuilder("gosub").
		Number(10).Jump(OpGosub, "inc").Jump(OpGosub, "inc").Return().
		Label("inc").Number(1).Op(OpAdd).Op(OpRetsub)
	if got := finish(t, start(t, env, b)); got.Num() != 12 {
		t.Errorf("got %v, want 12", got)
	}
}

func TestRetsubWithoutGosub(t *testing.T) {
	env, _ := newTestEnv(t)
	failWith(t, start(t, env, NewBuilder("retsub").Op(OpRetsub)), ErrStackUnderflow)

	// A function cannot return through its caller's gosub address.
	env, _ = newTestEnv(t)
	b := NewBuilder("nested").
		Jump(OpGosub, "sub").Return().
		Label("sub").Call("f", 0).Op(OpRetsub).
		Func("f").Op(OpRetsub)
	failWith(t, start(t, env, b), ErrStackUnderflow)
}

func TestMethodsAndStatics(t *testing.T) {
	env, _ := newTestEnv(t)
	b := NewBuilder("methods").
		Number(1).Number(2).Static("Point", "at", 2).
		Number(3).Number(4).Static("Point", "at", 2).
		Method("add", 1).
		Get("y").Return()
	if got := finish(t, start(t, env, b)); got.Num() != 6 {
		t.Errorf("y = %v, want 6", got)
	}
}

func TestMethodReturningSelfKeepsIdentity(t *testing.T) {
	env, _ := newTestEnv(t)
	p := &point{}
	b := NewBuilder("self").Arg(0).Method("self", 0).Arg(0).Op(OpEqual).Return()
	th := NewThread(env, b.MustBuild(), Ref(NewInstance(p, newPointClass(nil))))
	if _, err := th.Start(); err != nil {
		t.Fatal(err)
	}
	// self wraps the host through the registry, which finds the
	// registered instance by identity.
	if got := finish(t, th); got.Num() != 1 {
		t.Errorf("self identity = %v, want 1", got)
	}
}

func TestFields(t *testing.T) {
	env, _ := newTestEnv(t)
	p := &point{X: 1, Y: 2}
	b := NewBuilder("fields").
		Arg(0).Number(9).Put("x").
		Arg(0).Get("x").Return()
	th := NewThread(env, b.MustBuild(), Ref(NewInstance(p, newPointClass(nil))))
	if _, err := th.Start(); err != nil {
		t.Fatal(err)
	}
	if got := finish(t, th); got.Num() != 9 {
		t.Errorf("x = %v, want 9", got)
	}
	if p.X != 9 {
		t.Errorf("host X = %v, want 9", p.X)
	}
}

func TestFieldAndMethodErrors(t *testing.T) {
	tests := []struct {
		name  string
		build func(b *Builder)
		want  error
	}{
		{"get on null", func(b *Builder) { b.Null().Get("x") }, ErrNullReference},
		{"get on number", func(b *Builder) { b.Number(1).Get("x") }, ErrTypeMismatch},
		{"missing field", func(b *Builder) { b.Static("Point", "origin", 0).Get("z") }, ErrUnresolved},
		{"read-only field", func(b *Builder) { b.Static("Point", "origin", 0).Number(1).Put("y") }, ErrUnresolved},
		{"setter rejects", func(b *Builder) { b.Static("Point", "origin", 0).Text("s").Put("x") }, nil},
		{"method on null", func(b *Builder) { b.Null().Method("add", 0) }, ErrNullReference},
		{"unknown method", func(b *Builder) { b.Static("Point", "origin", 0).Method("scale", 0) }, ErrUnresolved},
		{"method missing receiver", func(b *Builder) { b.Number(1).Method("scale", 1) }, ErrStackUnderflow},
		{"wrong method arity", func(b *Builder) { b.Static("Point", "origin", 0).Number(1).Method("self", 1) }, ErrUnresolved},
		{"unknown template", func(b *Builder) { b.Static("Vector", "zero", 0) }, ErrUnresolved},
		{"unknown static", func(b *Builder) { b.Static("Point", "zero", 0) }, ErrUnresolved},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env, _ := newTestEnv(t)
			b := NewBuilder(tc.name)
			tc.build(b)
			b.Return()
			th := start(t, env, b)
			if tc.want == nil {
				var be *BindingError
				if th.Status() != StatusError || !errors.As(th.Err(), &be) || be.Kind != "setter" {
					t.Fatalf("status %s err %v, want a setter BindingError", th.Status(), th.Err())
				}
				return
			}
			failWith(t, th, tc.want)
		})
	}
}

func TestArrays(t *testing.T) {
	env, _ := newTestEnv(t)
	b := NewBuilder("arrays").
		Number(1).Number(2).Number(3).Array(3).Set("a").
		Var("a").Number(4).Method("push", 1).Op(OpPop).
		Var("a").Number(0).Number(10).Method("set", 2).Op(OpPop).
		Var("a").Number(0).Method("get", 1).
		Var("a").Get("length").
		Op(OpAdd).Return()
	if got := finish(t, start(t, env, b)); got.Num() != 14 {
		t.Errorf("got %v, want 14", got)
	}
}

func TestTemplateHooksFollowStackTraffic(t *testing.T) {
	env, hc := newTestEnv(t)
	b := NewBuilder("hooks").
		Static("Point", "origin", 0).Op(OpPop).
		Static("Point", "origin", 0).Set("keep")
	th := start(t, env, b)
	finish(t, th)
	if hc.added != 2 || hc.freed != 1 {
		t.Errorf("added=%d freed=%d, want 2 and 1", hc.added, hc.freed)
	}
	if hc.shutdown != 1 || th.Sweeps() != 1 {
		t.Errorf("shutdown=%d sweeps=%d, want 1 and 1", hc.shutdown, th.Sweeps())
	}
}

func TestPushConstRejectsObjects(t *testing.T) {
	inst := NewInstance(&point{}, newPointClass(nil))
	_, err := NewBuilder("const").Const(Ref(inst)).Return().Build()
	if !errors.Is(err, ErrInvalidScript) {
		t.Errorf("err = %v, want ErrInvalidScript", err)
	}
}
