package vm

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Function is an entry in a script's function table.
type Function struct {
	Name    string
	Address int
	Params  []string
}

// Arity returns the number of declared parameters.
func (f *Function) Arity() int { return len(f.Params) }

// Script is a compiled program: the instruction list, the function table
// and a label table used only for diagnostics. Scripts are shared by all
// threads running them and must not change once a thread starts.
type Script struct {
	Name         string
	Instructions []Instruction
	Functions    []*Function
	Labels       map[string]int

	indexOnce sync.Once
	byKey     map[methodKey]*Function
	byName    map[string]bool
	labelAddr []labelEntry
}

type labelEntry struct {
	name string
	addr int
}

func (s *Script) index() {
	s.indexOnce.Do(func() {
		s.byKey = make(map[methodKey]*Function, len(s.Functions))
		s.byName = make(map[string]bool, len(s.Functions))
		for _, fn := range s.Functions {
			k := methodKey{fn.Name, fn.Arity()}
			if _, dup := s.byKey[k]; !dup {
				s.byKey[k] = fn
			}
			s.byName[fn.Name] = true
		}
		for name, addr := range s.Labels {
			s.labelAddr = append(s.labelAddr, labelEntry{name, addr})
		}
		sort.Slice(s.labelAddr, func(i, j int) bool {
			if s.labelAddr[i].addr != s.labelAddr[j].addr {
				return s.labelAddr[i].addr < s.labelAddr[j].addr
			}
			return s.labelAddr[i].name < s.labelAddr[j].name
		})
	})
}

// Function resolves a script function by name and arity.
func (s *Script) Function(name string, arity int) (*Function, bool) {
	s.index()
	fn, ok := s.byKey[methodKey{name, arity}]
	return fn, ok
}

// HasFunction reports whether any overload of name exists.
func (s *Script) HasFunction(name string) bool {
	s.index()
	return s.byName[name]
}

// LabelAt returns the nearest label at or before pc.
func (s *Script) LabelAt(pc int) (string, bool) {
	s.index()
	i := sort.Search(len(s.labelAddr), func(i int) bool { return s.labelAddr[i].addr > pc })
	if i == 0 {
		return "", false
	}
	return s.labelAddr[i-1].name, true
}

// labelsAt returns every label placed exactly at pc.
func (s *Script) labelsAt(pc int) []string {
	s.index()
	var out []string
	for _, l := range s.labelAddr {
		if l.addr == pc {
			out = append(out, l.name)
		}
	}
	return out
}

// Validate checks that every address and count in the script is in range.
func (s *Script) Validate() error {
	n := len(s.Instructions)
	var errs []error
	for pc, in := range s.Instructions {
		if !in.Op.Valid() {
			errs = append(errs, fmt.Errorf("%04d: unknown opcode %s", pc, in.Op))
			continue
		}
		switch {
		case in.Op.IsJump():
			if in.Arg < 0 || in.Arg > n {
				errs = append(errs, fmt.Errorf("%04d: %s target %d out of range", pc, in.Op, in.Arg))
			}
		case in.Op.IsCall(), in.Op == OpMakeArray, in.Op == OpPushArg:
			if in.Arg < 0 {
				errs = append(errs, fmt.Errorf("%04d: %s has negative operand %d", pc, in.Op, in.Arg))
			}
		}
		switch in.Op {
		case OpPushVar, OpSetVar, OpCall, OpCallMethod, OpGetField, OpSetField:
			if in.Name == "" {
				errs = append(errs, fmt.Errorf("%04d: %s without a name", pc, in.Op))
			}
		case OpCallStatic:
			if in.Name == "" || in.Template == "" {
				errs = append(errs, fmt.Errorf("%04d: CallStatic needs template and name", pc))
			}
		case OpPushConst:
			if in.Value.Instance() != nil {
				errs = append(errs, fmt.Errorf("%04d: PushConst cannot carry an object reference", pc))
			}
		}
	}
	seen := make(map[methodKey]bool)
	for _, fn := range s.Functions {
		if fn.Address < 0 || fn.Address >= n {
			errs = append(errs, fmt.Errorf("function %s: address %d out of range", fn.Name, fn.Address))
		}
		k := methodKey{fn.Name, fn.Arity()}
		if seen[k] {
			errs = append(errs, fmt.Errorf("function %s defined twice", k))
		}
		seen[k] = true
	}
	for name, addr := range s.Labels {
		if addr < 0 || addr > n {
			errs = append(errs, fmt.Errorf("label %s: address %d out of range", name, addr))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w %q: %w", ErrInvalidScript, s.Name, errors.Join(errs...))
	}
	return nil
}

// ---------------------------------------------------------------------------
// Builder: programmatic script assembly
// ---------------------------------------------------------------------------

// Builder assembles a Script in code, resolving label references when
// Build is called. It is the interface compilers and tests target.
type Builder struct {
	name   string
	code   []Instruction
	funcs  []*Function
	labels map[string]int
	fixups map[int]string
	line   int
}

// NewBuilder starts an empty script.
func NewBuilder(name string) *Builder {
	return &Builder{
		name:   name,
		labels: make(map[string]int),
		fixups: make(map[int]string),
	}
}

// PC returns the address of the next emitted instruction.
func (b *Builder) PC() int { return len(b.code) }

// Line sets the source line attached to subsequent instructions.
func (b *Builder) Line(n int) *Builder {
	b.line = n
	return b
}

// Emit appends a raw instruction.
func (b *Builder) Emit(in Instruction) *Builder {
	if in.Line == 0 {
		in.Line = b.line
	}
	b.code = append(b.code, in)
	return b
}

// Op appends an operand-free instruction.
func (b *Builder) Op(op Opcode) *Builder { return b.Emit(Instruction{Op: op}) }

// Label marks the current address.
func (b *Builder) Label(name string) *Builder {
	b.labels[name] = len(b.code)
	return b
}

// Func declares a function starting at the current address and labels it.
func (b *Builder) Func(name string, params ...string) *Builder {
	b.funcs = append(b.funcs, &Function{Name: name, Address: len(b.code), Params: params})
	b.labels[name] = len(b.code)
	return b
}

func (b *Builder) Number(f float64) *Builder {
	return b.Emit(Instruction{Op: OpPushNumber, Num: f})
}

func (b *Builder) Text(s string) *Builder {
	return b.Emit(Instruction{Op: OpPushString, Str: s})
}

func (b *Builder) Null() *Builder { return b.Op(OpPushNull) }

func (b *Builder) Const(v Primitive) *Builder {
	return b.Emit(Instruction{Op: OpPushConst, Value: v})
}

func (b *Builder) Var(name string) *Builder {
	return b.Emit(Instruction{Op: OpPushVar, Name: name})
}

func (b *Builder) Set(name string) *Builder {
	return b.Emit(Instruction{Op: OpSetVar, Name: name})
}

func (b *Builder) Arg(i int) *Builder {
	return b.Emit(Instruction{Op: OpPushArg, Arg: i})
}

// Jump emits a jump-family instruction targeting label.
func (b *Builder) Jump(op Opcode, label string) *Builder {
	b.fixups[len(b.code)] = label
	return b.Emit(Instruction{Op: op})
}

func (b *Builder) Call(name string, argc int) *Builder {
	return b.Emit(Instruction{Op: OpCall, Name: name, Arg: argc})
}

func (b *Builder) Method(name string, argc int) *Builder {
	return b.Emit(Instruction{Op: OpCallMethod, Name: name, Arg: argc})
}

func (b *Builder) Static(template, name string, argc int) *Builder {
	return b.Emit(Instruction{Op: OpCallStatic, Template: template, Name: name, Arg: argc})
}

func (b *Builder) Get(field string) *Builder {
	return b.Emit(Instruction{Op: OpGetField, Name: field})
}

func (b *Builder) Put(field string) *Builder {
	return b.Emit(Instruction{Op: OpSetField, Name: field})
}

func (b *Builder) Array(n int) *Builder {
	return b.Emit(Instruction{Op: OpMakeArray, Arg: n})
}

func (b *Builder) Return() *Builder { return b.Op(OpReturn) }

func (b *Builder) Yield() *Builder { return b.Op(OpYield) }

// Build resolves labels and validates the script.
func (b *Builder) Build() (*Script, error) {
	code := make([]Instruction, len(b.code))
	copy(code, b.code)
	for pc, label := range b.fixups {
		addr, ok := b.labels[label]
		if !ok {
			return nil, fmt.Errorf("%w %q: %04d: undefined label %s", ErrInvalidScript, b.name, pc, label)
		}
		code[pc].Arg = addr
	}
	labels := make(map[string]int, len(b.labels))
	for k, v := range b.labels {
		labels[k] = v
	}
	s := &Script{
		Name:         b.name,
		Instructions: code,
		Functions:    b.funcs,
		Labels:       labels,
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// MustBuild is Build for scripts known to be valid.
func (b *Builder) MustBuild() *Script {
	s, err := b.Build()
	if err != nil {
		panic(err)
	}
	return s
}
