// Package dist implements the compiled script bundle: the CBOR container
// a compiler writes and a host loads. A bundle carries the script's
// instructions, function and label tables, a SHA-256 content hash of the
// script and the list of host capabilities the script calls into.
package dist

import (
	"errors"
	"sort"

	"github.com/chazu/quill/vm"
)

// FormatVersion is the bundle layout written by this package.
const FormatVersion byte = 1

var (
	ErrHashMismatch = errors.New("dist: bundle hash mismatch")
	ErrVersion      = errors.New("dist: unsupported bundle version")
)

// Bundle is the unit handed from a compiler to a host.
type Bundle struct {
	Version      byte       `cbor:"1,keyasint"`
	Hash         [32]byte   `cbor:"2,keyasint"`
	Script       ScriptWire `cbor:"3,keyasint"`
	Capabilities []string   `cbor:"4,keyasint,omitempty"` // natives and templates the script calls
}

// ScriptWire is the serialized form of a vm.Script.
type ScriptWire struct {
	Name         string            `cbor:"1,keyasint"`
	Instructions []InstructionWire `cbor:"2,keyasint"`
	Functions    []FunctionWire    `cbor:"3,keyasint,omitempty"`
	Labels       map[string]int    `cbor:"4,keyasint,omitempty"`
}

// InstructionWire is one serialized instruction.
type InstructionWire struct {
	Op       uint8      `cbor:"1,keyasint"`
	Arg      int        `cbor:"2,keyasint,omitempty"`
	Name     string     `cbor:"3,keyasint,omitempty"`
	Template string     `cbor:"4,keyasint,omitempty"`
	Num      float64    `cbor:"5,keyasint,omitempty"`
	Str      string     `cbor:"6,keyasint,omitempty"`
	Const    *ConstWire `cbor:"7,keyasint,omitempty"`
	Line     int        `cbor:"8,keyasint,omitempty"`
}

// ConstWire is a PushConst operand. Only literal kinds can be encoded.
type ConstWire struct {
	Kind uint8   `cbor:"1,keyasint"`
	Num  float64 `cbor:"2,keyasint,omitempty"`
	Str  string  `cbor:"3,keyasint,omitempty"`
}

// FunctionWire is one function table entry.
type FunctionWire struct {
	Name    string   `cbor:"1,keyasint"`
	Address int      `cbor:"2,keyasint"`
	Params  []string `cbor:"3,keyasint,omitempty"`
}

// NewBundle validates s and packs it with its hash and capability list.
func NewBundle(s *vm.Script) (*Bundle, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	w := EncodeScript(s)
	h, err := HashScript(&w)
	if err != nil {
		return nil, err
	}
	return &Bundle{
		Version:      FormatVersion,
		Hash:         h,
		Script:       w,
		Capabilities: RequiredCapabilities(s),
	}, nil
}

// EncodeScript converts a script to its wire form.
func EncodeScript(s *vm.Script) ScriptWire {
	w := ScriptWire{
		Name:         s.Name,
		Instructions: make([]InstructionWire, len(s.Instructions)),
	}
	for i, in := range s.Instructions {
		iw := InstructionWire{
			Op:       uint8(in.Op),
			Arg:      in.Arg,
			Name:     in.Name,
			Template: in.Template,
			Num:      in.Num,
			Str:      in.Str,
			Line:     in.Line,
		}
		if in.Op == vm.OpPushConst {
			iw.Const = &ConstWire{
				Kind: uint8(in.Value.Kind()),
				Num:  in.Value.Num(),
				Str:  in.Value.Str(),
			}
		}
		w.Instructions[i] = iw
	}
	for _, fn := range s.Functions {
		w.Functions = append(w.Functions, FunctionWire{
			Name:    fn.Name,
			Address: fn.Address,
			Params:  append([]string(nil), fn.Params...),
		})
	}
	if len(s.Labels) > 0 {
		w.Labels = make(map[string]int, len(s.Labels))
		for k, v := range s.Labels {
			w.Labels[k] = v
		}
	}
	return w
}

// DecodeScript rebuilds a validated script from its wire form.
func DecodeScript(w *ScriptWire) (*vm.Script, error) {
	s := &vm.Script{
		Name:         w.Name,
		Instructions: make([]vm.Instruction, len(w.Instructions)),
		Labels:       make(map[string]int, len(w.Labels)),
	}
	for i, iw := range w.Instructions {
		in := vm.Instruction{
			Op:       vm.Opcode(iw.Op),
			Arg:      iw.Arg,
			Name:     iw.Name,
			Template: iw.Template,
			Num:      iw.Num,
			Str:      iw.Str,
			Line:     iw.Line,
		}
		if iw.Const != nil {
			switch vm.Kind(iw.Const.Kind) {
			case vm.KindNumber:
				in.Value = vm.Number(iw.Const.Num)
			case vm.KindString:
				in.Value = vm.String(iw.Const.Str)
			default:
				in.Value = vm.Null
			}
		}
		s.Instructions[i] = in
	}
	for _, fw := range w.Functions {
		s.Functions = append(s.Functions, &vm.Function{
			Name:    fw.Name,
			Address: fw.Address,
			Params:  append([]string(nil), fw.Params...),
		})
	}
	for k, v := range w.Labels {
		s.Labels[k] = v
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// RequiredCapabilities lists, sorted, every native function and template
// the script reaches outside its own function table.
func RequiredCapabilities(s *vm.Script) []string {
	seen := make(map[string]bool)
	for _, in := range s.Instructions {
		switch in.Op {
		case vm.OpCall:
			if _, ok := s.Function(in.Name, in.Arg); !ok {
				seen[in.Name] = true
			}
		case vm.OpCallStatic:
			seen[in.Template] = true
		}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Verify checks the format version and that the hash matches the script.
func (b *Bundle) Verify() error {
	if b.Version != FormatVersion {
		return ErrVersion
	}
	h, err := HashScript(&b.Script)
	if err != nil {
		return err
	}
	if h != b.Hash {
		return ErrHashMismatch
	}
	return nil
}

// Load verifies the bundle and decodes its script.
func (b *Bundle) Load() (*vm.Script, error) {
	if err := b.Verify(); err != nil {
		return nil, err
	}
	s, err := DecodeScript(&b.Script)
	if err != nil {
		return nil, err
	}
	log.Debugf("loaded %s (%x): %d instructions", s.Name, b.Hash[:6], len(s.Instructions))
	return s, nil
}
