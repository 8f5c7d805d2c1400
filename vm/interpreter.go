package vm

import "fmt"

// ---------------------------------------------------------------------------
// Main interpreter loop
// ---------------------------------------------------------------------------

// run executes prelude and then instructions until the thread stops
// running. Panics and errors are caught here, and only here.
func (t *Thread) run(prelude func()) {
	defer func() {
		if r := recover(); r != nil {
			t.Fail(t.locate(panicError(r)))
		}
		if t.Status() == StatusCancelled {
			t.finalize()
		}
	}()

	if prelude != nil {
		prelude()
	}

	code := t.script.Instructions
	for t.Status() == StatusRunning {
		if t.pc < 0 || t.pc >= len(code) {
			// Falling off the end is an implicit return of null.
			t.complete(Null)
			return
		}
		t.current = t.pc
		in := code[t.pc]
		t.pc++

		if t.trace {
			log.Debugf("thread %s: %04d %s (stack %d)", t.id, t.current, t.script.formatInstruction(in), t.stack.Len())
		}

		if err := t.exec(in); err != nil {
			t.Fail(t.locate(err))
			return
		}
	}
}

// locate attaches the current code position to err.
func (t *Thread) locate(err error) *RuntimeError {
	re := &RuntimeError{PC: t.current, Function: "main", Err: err}
	if t.current >= 0 && t.current < len(t.script.Instructions) {
		in := t.script.Instructions[t.current]
		re.Op = in.Op
		re.Line = in.Line
	}
	if f := t.heap.Frame(); f != nil {
		re.Function = f.Function.Name
	}
	if label, ok := t.script.LabelAt(t.current); ok {
		re.Label = label
	}
	return re
}

func (t *Thread) exec(in Instruction) error {
	s := t.stack
	h := t.heap

	switch in.Op {
	// --- Literals ---
	case OpPushNumber:
		s.Push(Number(in.Num))

	case OpPushString:
		s.Push(String(in.Str))

	case OpPushNull:
		s.Push(Null)

	case OpPushConst:
		s.Push(in.Value)

	// --- Variables ---
	case OpPushVar:
		v, ok := h.Var(in.Name)
		if !ok {
			return fmt.Errorf("%w: variable %s", ErrUnresolved, in.Name)
		}
		s.Push(v)

	case OpSetVar:
		h.Assign(in.Name, s.PopWithoutGC())

	case OpPushArg:
		args := t.args
		if f := h.Frame(); f != nil {
			args = f.Args
		}
		if in.Arg >= len(args) {
			return fmt.Errorf("%w: argument %d requested, %d passed", ErrArgumentCount, in.Arg, len(args))
		}
		s.Push(args[in.Arg])

	// --- Stack ---
	case OpPop:
		s.PopWithGC()

	case OpDup:
		s.Push(s.Peek())

	// --- Unary ---
	case OpNot, OpNegate, OpInvert:
		v := s.PopWithoutGC()
		defer h.Release(v)
		r, err := unary(in.Op, v)
		if err != nil {
			return err
		}
		s.Push(r)

	// --- Binary ---
	case OpAdd, OpSub, OpMul, OpDiv, OpMod,
		OpShl, OpShr, OpBitAnd, OpBitOr, OpBitXor,
		OpLess, OpLessEq, OpGreater, OpGreaterEq,
		OpEqual, OpNotEqual:
		b := s.PopWithoutGC()
		a := s.PopWithoutGC()
		defer h.Release(a)
		defer h.Release(b)
		r, err := binary(in.Op, a, b)
		if err != nil {
			return err
		}
		s.Push(r)

	// --- Control flow ---
	case OpJump:
		t.pc = in.Arg

	case OpJumpIf:
		if s.PopWithGC().Truthy() {
			t.pc = in.Arg
		}

	case OpJumpUnless:
		if !s.PopWithGC().Truthy() {
			t.pc = in.Arg
		}

	case OpAnd:
		// The falsy operand stays on the stack as the value of the chain.
		if s.Peek().Truthy() {
			s.PopWithGC()
		} else {
			t.pc = in.Arg
		}

	case OpOr:
		// The truthy operand stays on the stack as the value of the chain.
		if s.Peek().Truthy() {
			t.pc = in.Arg
		} else {
			s.PopWithGC()
		}

	case OpGosub:
		t.returns = append(t.returns, t.pc)
		t.pc = in.Arg

	case OpRetsub:
		n := len(t.returns)
		base := 0
		if f := h.Frame(); f != nil {
			base = f.returnSlot + 1
		}
		if n <= base {
			return fmt.Errorf("%w: Retsub without Gosub", ErrStackUnderflow)
		}
		t.pc = t.returns[n-1]
		t.returns = t.returns[:n-1]

	case OpSwitch:
		candidate := s.PopWithoutGC()
		defer h.Release(candidate)
		if candidate.Equals(s.Peek()) {
			s.PopWithGC()
			t.pc = in.Arg
		}

	// --- Calls ---
	case OpCall:
		return t.callFunction(in.Name, in.Arg)

	case OpCallMethod:
		return t.callMethod(in.Name, in.Arg)

	case OpCallStatic:
		return t.callStatic(in.Template, in.Name, in.Arg)

	// --- Fields ---
	case OpGetField:
		recv := s.PopWithoutGC()
		defer h.Release(recv)
		inst, err := receiver(recv, "field "+in.Name)
		if err != nil {
			return err
		}
		get, ok := inst.template.Getter(in.Name)
		if !ok {
			return fmt.Errorf("%w: template %s has no readable field %s", ErrUnresolved, inst.template.Name(), in.Name)
		}
		return t.invoke("getter", inst.template.Name(), in.Name, func() (Primitive, error) {
			return get(t, inst.host)
		})

	case OpSetField:
		val := s.PopWithoutGC()
		recv := s.PopWithoutGC()
		defer h.Release(recv)
		defer h.Release(val)
		inst, err := receiver(recv, "field "+in.Name)
		if err != nil {
			return err
		}
		set, ok := inst.template.Setter(in.Name)
		if !ok {
			return fmt.Errorf("%w: template %s has no writable field %s", ErrUnresolved, inst.template.Name(), in.Name)
		}
		if err := set(t, inst.host, val); err != nil {
			return &BindingError{Kind: "setter", Template: inst.template.Name(), Name: in.Name, Err: err}
		}

	// --- Arrays ---
	case OpMakeArray:
		elems := s.PopN(in.Arg)
		s.Push(Ref(NewArray(elems)))

	// --- Returns ---
	case OpReturn:
		if f := h.Frame(); f != nil {
			// The callee's top value is its result; anything else it left
			// behind is discarded.
			result := Null
			if s.Len() > f.stackBase {
				result = s.PopWithoutGC()
			}
			for s.Len() > f.stackBase {
				s.PopWithGC()
			}
			h.popFrame()
			s.Push(result)
			h.Release(result)
			t.pc = t.returns[f.returnSlot]
			t.returns = t.returns[:f.returnSlot]
			return nil
		}
		result := Null
		if s.Len() > 0 {
			result = s.PopWithoutGC()
		}
		t.complete(result)

	case OpYield:
		v := s.PopWithoutGC()
		if _, err := t.suspend(v); err != nil {
			h.Release(v)
			return err
		}

	default:
		return fmt.Errorf("%w: unknown opcode %s", ErrInvalidScript, in.Op)
	}
	return nil
}

// receiver checks that v refers to an object.
func receiver(v Primitive, what string) (*Instance, error) {
	if !v.IsObjectReference() {
		return nil, fmt.Errorf("%w: %s on %s", ErrTypeMismatch, what, v.TypeName())
	}
	if v.obj == nil {
		return nil, fmt.Errorf("%w: %s on null", ErrNullReference, what)
	}
	return v.obj, nil
}

// ---------------------------------------------------------------------------
// Call protocol
// ---------------------------------------------------------------------------

// invoke runs host code and pushes its result, unless the callee already
// left a value on the stack or suspended the thread.
func (t *Thread) invoke(kind, template, name string, fn func() (Primitive, error)) error {
	depth := t.stack.Len()
	r, err := fn()
	if err != nil {
		return &BindingError{Kind: kind, Template: template, Name: name, Err: err}
	}
	if t.stack.Len() == depth && t.Status() == StatusRunning {
		t.stack.Push(r)
	}
	return nil
}

func (t *Thread) callFunction(name string, argc int) error {
	args := t.stack.PopN(argc)
	defer t.heap.ReleaseAll(args)

	if fn, ok := t.script.Function(name, argc); ok {
		slot := len(t.returns)
		t.returns = append(t.returns, t.pc)
		t.heap.pushFrame(fn, args, slot, t.stack.Len())
		t.pc = fn.Address
		return nil
	}

	if native, ok := t.env.Natives.Lookup(name); ok {
		if argc < native.MinArgs {
			return fmt.Errorf("%w: %s needs at least %d arguments, got %d", ErrArgumentCount, name, native.MinArgs, argc)
		}
		return t.invoke("native", "", name, func() (Primitive, error) {
			return native.Fn(t, args)
		})
	}

	if t.script.HasFunction(name) {
		return fmt.Errorf("%w: no overload of %s takes %d arguments", ErrArgumentCount, name, argc)
	}
	return fmt.Errorf("%w: function %s", ErrUnresolved, name)
}

func (t *Thread) callMethod(name string, argc int) error {
	args := t.stack.PopN(argc)
	recv := t.stack.PopWithoutGC()
	defer t.heap.Release(recv)
	defer t.heap.ReleaseAll(args)

	inst, err := receiver(recv, "method "+name)
	if err != nil {
		return err
	}
	m, ok := inst.template.Method(name, argc)
	if !ok {
		return fmt.Errorf("%w: template %s has no method %s/%d", ErrUnresolved, inst.template.Name(), name, argc)
	}
	return t.invoke("method", inst.template.Name(), name, func() (Primitive, error) {
		return m(t, inst.host, args)
	})
}

func (t *Thread) callStatic(template, name string, argc int) error {
	args := t.stack.PopN(argc)
	defer t.heap.ReleaseAll(args)

	tmpl, ok := t.env.Templates.Lookup(template)
	if !ok {
		return fmt.Errorf("%w: template %s", ErrUnresolved, template)
	}
	m, ok := tmpl.StaticMethod(name, argc)
	if !ok {
		return fmt.Errorf("%w: template %s has no static method %s/%d", ErrUnresolved, template, name, argc)
	}
	return t.invoke("static", template, name, func() (Primitive, error) {
		return m(t, args)
	})
}
