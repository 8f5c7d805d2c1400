package vm

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing of the script.
func (s *Script) Disassemble() string {
	var sb strings.Builder

	if s.Name != "" {
		sb.WriteString(fmt.Sprintf("; === %s ===\n", s.Name))
	}
	sb.WriteString(fmt.Sprintf("; %d instructions\n", len(s.Instructions)))

	if len(s.Functions) > 0 {
		sb.WriteString("; Functions:\n")
		for _, fn := range s.Functions {
			sb.WriteString(fmt.Sprintf(";   %s/%d @ %04d (%s)\n",
				fn.Name, fn.Arity(), fn.Address, strings.Join(fn.Params, ", ")))
		}
	}
	sb.WriteString("\n")

	for pc, in := range s.Instructions {
		for _, label := range s.labelsAt(pc) {
			sb.WriteString(label + ":\n")
		}
		sb.WriteString(fmt.Sprintf("  %04d  %s\n", pc, s.formatInstruction(in)))
	}
	for _, label := range s.labelsAt(len(s.Instructions)) {
		sb.WriteString(label + ":\n")
	}
	return sb.String()
}

func (s *Script) formatInstruction(in Instruction) string {
	op := fmt.Sprintf("%-12s", in.Op)
	switch {
	case in.Op == OpPushNumber:
		return op + formatNumber(in.Num)
	case in.Op == OpPushString:
		return op + fmt.Sprintf("%q", in.Str)
	case in.Op == OpPushConst:
		if in.Value.IsString() {
			return op + fmt.Sprintf("%q", in.Value.Str())
		}
		return op + in.Value.AsString()
	case in.Op == OpPushVar, in.Op == OpSetVar, in.Op == OpGetField, in.Op == OpSetField:
		return op + in.Name
	case in.Op == OpPushArg, in.Op == OpMakeArray:
		return op + fmt.Sprintf("%d", in.Arg)
	case in.Op.IsJump():
		target := fmt.Sprintf("-> %04d", in.Arg)
		if labels := s.labelsAt(in.Arg); len(labels) > 0 {
			target += " (" + labels[0] + ")"
		}
		return op + target
	case in.Op == OpCallStatic:
		return op + fmt.Sprintf("%s.%s/%d", in.Template, in.Name, in.Arg)
	case in.Op.IsCall():
		return op + fmt.Sprintf("%s/%d", in.Name, in.Arg)
	}
	return strings.TrimRight(op, " ")
}
