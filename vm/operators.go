package vm

import (
	"fmt"
	"math"
	"strings"
)

func mismatch(op Opcode, operands ...Primitive) error {
	kinds := make([]string, len(operands))
	for i, p := range operands {
		kinds[i] = p.TypeName()
	}
	return fmt.Errorf("%w: %s on %s", ErrTypeMismatch, op, strings.Join(kinds, " and "))
}

func unary(op Opcode, v Primitive) (Primitive, error) {
	switch op {
	case OpNot:
		if !v.IsBoolean() {
			return Null, mismatch(op, v)
		}
		return Bool(v.Int() == 0), nil
	case OpNegate:
		if !v.IsNumber() {
			return Null, mismatch(op, v)
		}
		return Number(-v.num), nil
	case OpInvert:
		return Bool(!v.Truthy()), nil
	}
	return Null, fmt.Errorf("%w: %s is not a unary operator", ErrInvalidScript, op)
}

func binary(op Opcode, a, b Primitive) (Primitive, error) {
	switch op {
	case OpEqual:
		return Bool(a.Equals(b)), nil
	case OpNotEqual:
		return Bool(!a.Equals(b)), nil
	case OpAdd:
		if a.IsString() || b.IsString() {
			return String(a.AsString() + b.AsString()), nil
		}
	case OpLess, OpLessEq, OpGreater, OpGreaterEq:
		if a.IsString() && b.IsString() {
			return Bool(compare(op, strings.Compare(a.str, b.str))), nil
		}
	}

	if !a.IsNumber() || !b.IsNumber() {
		return Null, mismatch(op, a, b)
	}
	x, y := a.num, b.num

	switch op {
	case OpAdd:
		return Number(x + y), nil
	case OpSub:
		return Number(x - y), nil
	case OpMul:
		return Number(x * y), nil
	case OpDiv:
		if y == 0 {
			return Null, fmt.Errorf("%w: %s / 0", ErrDivisionByZero, formatNumber(x))
		}
		return Number(x / y), nil
	case OpMod:
		if y == 0 {
			return Null, fmt.Errorf("%w: %s %% 0", ErrDivisionByZero, formatNumber(x))
		}
		return Number(math.Mod(x, y)), nil
	case OpLess, OpLessEq, OpGreater, OpGreaterEq:
		c := 0
		switch {
		case x < y:
			c = -1
		case x > y:
			c = 1
		}
		return Bool(compare(op, c)), nil
	}

	// Bitwise operators work on truncated integers.
	i, ok1 := toInt64(x)
	j, ok2 := toInt64(y)
	if !ok1 || !ok2 {
		return Null, fmt.Errorf("%w: %s needs finite int64 operands, got %s and %s", ErrTypeMismatch, op, formatNumber(x), formatNumber(y))
	}
	switch op {
	case OpShl, OpShr:
		if j < 0 {
			return Null, fmt.Errorf("%w: negative shift count %d", ErrTypeMismatch, j)
		}
		if op == OpShl {
			return Number(float64(i << uint64(j))), nil
		}
		return Number(float64(i >> uint64(j))), nil
	case OpBitAnd:
		return Number(float64(i & j)), nil
	case OpBitOr:
		return Number(float64(i | j)), nil
	case OpBitXor:
		return Number(float64(i ^ j)), nil
	}
	return Null, fmt.Errorf("%w: %s is not a binary operator", ErrInvalidScript, op)
}

func compare(op Opcode, c int) bool {
	switch op {
	case OpLess:
		return c < 0
	case OpLessEq:
		return c <= 0
	case OpGreater:
		return c > 0
	default:
		return c >= 0
	}
}

// toInt64 truncates f, rejecting values an int64 cannot hold.
func toInt64(f float64) (int64, bool) {
	if math.IsNaN(f) || f < -(1<<63) || f >= 1<<63 {
		return 0, false
	}
	return int64(f), true
}
