package vm

import "strconv"

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode identifies an instruction kind.
type Opcode uint8

// Stack literals
const (
	OpPushNumber Opcode = iota + 1 // push Num
	OpPushString                   // push Str
	OpPushNull                     // push null
	OpPushConst                    // push precomputed Value
)

// Variables
const (
	OpPushVar Opcode = iota + 0x10 // push variable Name (local, then global)
	OpSetVar                       // pop into variable Name
	OpPushArg                      // push positional call argument Arg
)

// Stack manipulation
const (
	OpPop Opcode = iota + 0x18 // discard top of stack
	OpDup                      // duplicate top of stack
)

// Unary operators
const (
	OpNot    Opcode = iota + 0x20 // logical not of a boolean
	OpNegate                      // numeric negation
	OpInvert                      // truthiness inversion of any value
)

// Binary operators
const (
	OpAdd Opcode = iota + 0x28
	OpSub
	OpMul
	OpDiv
	OpMod
	OpShl
	OpShr
	OpBitAnd
	OpBitOr
	OpBitXor
	OpLess
	OpLessEq
	OpGreater
	OpGreaterEq
	OpEqual
	OpNotEqual
)

// Control flow (target address in Arg)
const (
	OpJump       Opcode = iota + 0x40 // unconditional
	OpJumpIf                          // pop, jump when truthy
	OpJumpUnless                      // pop, jump when falsy
	OpAnd                             // peek: truthy pops, falsy jumps
	OpOr                              // peek: truthy jumps, falsy pops
	OpGosub                           // push return address, jump
	OpRetsub                          // pop return address, jump back
	OpSwitch                          // pop candidate, on match with top pop it too and jump
)

// Calls and objects
const (
	OpCall       Opcode = iota + 0x50 // call function Name with Arg arguments
	OpCallMethod                      // call method Name with Arg arguments on receiver
	OpCallStatic                      // call static Template.Name with Arg arguments
	OpGetField                        // pop receiver, push field Name
	OpSetField                        // pop value and receiver, store field Name
	OpMakeArray                       // pop Arg values into a new array
)

// Returns and suspension
const (
	OpReturn Opcode = iota + 0x60 // return from call, or finish the thread
	OpYield                       // pop yielded value and suspend
)

var opcodeNames = map[Opcode]string{
	OpPushNumber: "PushNumber",
	OpPushString: "PushString",
	OpPushNull:   "PushNull",
	OpPushConst:  "PushConst",
	OpPushVar:    "PushVar",
	OpSetVar:     "SetVar",
	OpPushArg:    "PushArg",
	OpPop:        "Pop",
	OpDup:        "Dup",
	OpNot:        "Not",
	OpNegate:     "Negate",
	OpInvert:     "Invert",
	OpAdd:        "Add",
	OpSub:        "Sub",
	OpMul:        "Mul",
	OpDiv:        "Div",
	OpMod:        "Mod",
	OpShl:        "Shl",
	OpShr:        "Shr",
	OpBitAnd:     "BitAnd",
	OpBitOr:      "BitOr",
	OpBitXor:     "BitXor",
	OpLess:       "Less",
	OpLessEq:     "LessEq",
	OpGreater:    "Greater",
	OpGreaterEq:  "GreaterEq",
	OpEqual:      "Equal",
	OpNotEqual:   "NotEqual",
	OpJump:       "Jump",
	OpJumpIf:     "JumpIf",
	OpJumpUnless: "JumpUnless",
	OpAnd:        "And",
	OpOr:         "Or",
	OpGosub:      "Gosub",
	OpRetsub:     "Retsub",
	OpSwitch:     "Switch",
	OpCall:       "Call",
	OpCallMethod: "CallMethod",
	OpCallStatic: "CallStatic",
	OpGetField:   "GetField",
	OpSetField:   "SetField",
	OpMakeArray:  "MakeArray",
	OpReturn:     "Return",
	OpYield:      "Yield",
}

// String returns the opcode mnemonic.
func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return "Op(0x" + strconv.FormatUint(uint64(op), 16) + ")"
}

// Valid reports whether op is a known opcode.
func (op Opcode) Valid() bool {
	_, ok := opcodeNames[op]
	return ok
}

// IsJump reports whether Arg holds a jump target.
func (op Opcode) IsJump() bool {
	switch op {
	case OpJump, OpJumpIf, OpJumpUnless, OpAnd, OpOr, OpGosub, OpSwitch:
		return true
	}
	return false
}

// IsCall reports whether Arg holds an argument count.
func (op Opcode) IsCall() bool {
	switch op {
	case OpCall, OpCallMethod, OpCallStatic:
		return true
	}
	return false
}

// OpcodeByName returns the opcode with the given mnemonic.
func OpcodeByName(name string) (Opcode, bool) {
	for op, n := range opcodeNames {
		if n == name {
			return op, true
		}
	}
	return 0, false
}

// ---------------------------------------------------------------------------
// Instruction
// ---------------------------------------------------------------------------

// Instruction is one decoded operation. Which operand fields matter
// depends on Op.
type Instruction struct {
	Op       Opcode
	Arg      int       // jump target, argument count, argument index or element count
	Name     string    // variable, function, method or field name
	Template string    // template name for OpCallStatic
	Num      float64   // OpPushNumber
	Str      string    // OpPushString
	Value    Primitive // OpPushConst
	Line     int       // source line, 0 when unknown
}
