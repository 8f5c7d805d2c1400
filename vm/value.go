package vm

import (
	"math"
	"strconv"
)

// Kind tags the payload carried by a Primitive.
type Kind uint8

const (
	// KindObject is an object reference. A nil instance is scripted null,
	// which makes the zero Primitive null.
	KindObject Kind = iota
	KindNumber
	KindString
)

// String returns the kind name as shown in error messages.
func (k Kind) String() string {
	switch k {
	case KindObject:
		return "object"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// integerEpsilon is the tolerance used when treating a number as an integer.
const integerEpsilon = 1e-5

// Primitive is the value type manipulated by scripts.
//
// Booleans are numbers: 0 is false, 1 is true. There is no separate boolean
// tag, so IsBoolean and Truthy work on numeric ranges.
//
// Copying a Primitive never changes reference counts. Whoever extends the
// lifetime of a copied object reference must retain it explicitly.
type Primitive struct {
	kind Kind
	num  float64
	str  string
	obj  *Instance
}

// Null is the scripted null value.
var Null = Primitive{}

// Number returns a numeric primitive.
func Number(f float64) Primitive {
	return Primitive{kind: KindNumber, num: f}
}

// String returns a string primitive.
func String(s string) Primitive {
	return Primitive{kind: KindString, str: s}
}

// Bool returns 1 for true and 0 for false.
func Bool(b bool) Primitive {
	if b {
		return Number(1)
	}
	return Number(0)
}

// Ref returns an object reference. Ref(nil) is Null.
func Ref(inst *Instance) Primitive {
	return Primitive{kind: KindObject, obj: inst}
}

// Kind returns the tag of the primitive.
func (p Primitive) Kind() Kind { return p.kind }

// IsNull reports whether p is an object reference to nothing.
func (p Primitive) IsNull() bool { return p.kind == KindObject && p.obj == nil }

// IsNumber reports whether p is a number.
func (p Primitive) IsNumber() bool { return p.kind == KindNumber }

// IsString reports whether p is a string.
func (p Primitive) IsString() bool { return p.kind == KindString }

// IsObjectReference reports whether p carries the object tag, null included.
func (p Primitive) IsObjectReference() bool { return p.kind == KindObject }

// IsInteger reports whether p is a number within integerEpsilon of a whole
// number.
func (p Primitive) IsInteger() bool {
	if p.kind != KindNumber || math.IsNaN(p.num) || math.IsInf(p.num, 0) {
		return false
	}
	return math.Abs(p.num-math.Round(p.num)) < integerEpsilon
}

// IsBoolean reports whether p is the integer 0 or 1.
func (p Primitive) IsBoolean() bool {
	if !p.IsInteger() {
		return false
	}
	n := math.Round(p.num)
	return n == 0 || n == 1
}

// Num returns the numeric payload, 0 for other kinds.
func (p Primitive) Num() float64 { return p.num }

// Int returns the numeric payload rounded to the nearest integer.
func (p Primitive) Int() int64 { return int64(math.Round(p.num)) }

// Str returns the raw string payload, "" for other kinds.
func (p Primitive) Str() string { return p.str }

// Instance returns the referenced instance, nil for null and non-objects.
func (p Primitive) Instance() *Instance { return p.obj }

// Host returns the host object behind an object reference, or nil.
func (p Primitive) Host() any {
	if p.obj == nil {
		return nil
	}
	return p.obj.host
}

// AsString renders p for display and string concatenation.
func (p Primitive) AsString() string {
	switch p.kind {
	case KindNumber:
		return formatNumber(p.num)
	case KindString:
		return p.str
	default:
		if p.obj == nil {
			return "null"
		}
		return p.obj.String()
	}
}

// String implements fmt.Stringer.
func (p Primitive) String() string { return p.AsString() }

func formatNumber(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Truthy reports the truthiness of p: strings are always true, numbers are
// true when non-zero and object references when non-null.
func (p Primitive) Truthy() bool {
	switch p.kind {
	case KindNumber:
		return p.num != 0
	case KindString:
		return true
	default:
		return p.obj != nil
	}
}

// Equals is strict identity: same tag and same payload, with object
// references compared by instance identity.
func (p Primitive) Equals(o Primitive) bool {
	if p.kind != o.kind {
		return false
	}
	switch p.kind {
	case KindNumber:
		return p.num == o.num
	case KindString:
		return p.str == o.str
	default:
		return p.obj == o.obj
	}
}

// ValueEquals is semantic equality. Object references must share a
// template, which then compares the host contents. Other kinds behave as
// Equals.
func (p Primitive) ValueEquals(o Primitive) bool {
	if p.kind != KindObject || o.kind != KindObject {
		return p.Equals(o)
	}
	if p.obj == nil || o.obj == nil {
		return p.obj == o.obj
	}
	if p.obj == o.obj {
		return true
	}
	if p.obj.template != o.obj.template {
		return false
	}
	return p.obj.template.ContentsEqual(p.obj.host, o.obj.host)
}

// TypeName returns a short type description used by diagnostics and the
// type() native.
func (p Primitive) TypeName() string {
	switch p.kind {
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	default:
		if p.obj == nil {
			return "null"
		}
		return p.obj.template.Name()
	}
}
