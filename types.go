package condexpr

import (
	"math/big"
	"strconv"
)

// Type is the kind of value an expression produces.
type Type int8

const (
	TypeNone Type = iota
	TypeBool
	TypeNumber
	TypeString
)

func (t Type) String() string {
	switch t {
	case TypeBool:
		return "bool"
	case TypeNumber:
		return "number"
	case TypeString:
		return "string"
	default:
		return "none"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. It accepts the names
// produced by String, except "none".
func (t *Type) UnmarshalText(text []byte) error {
	switch string(text) {
	case "bool", "boolean":
		*t = TypeBool
	case "number", "num", "float":
		*t = TypeNumber
	case "string", "str":
		*t = TypeString
	default:
		return &TypeNameError{Name: string(text)}
	}
	return nil
}

// TypeNameError is an error for an unrecognized type name.
type TypeNameError struct {
	Name string
}

func (err *TypeNameError) Error() string {
	return "unknown type " + strconv.Quote(err.Name)
}

// Value holds a typed value. It is the slot that evaluation writes results
// into. A Value may be reused across any number of evaluations; once it has
// held a number, storing further numbers does not allocate.
//
// The zero Value has type TypeNone.
type Value struct {
	typ Type
	b   bool
	n   *big.Float
	s   string
}

// Bool returns a new boolean Value.
func Bool(b bool) *Value {
	return new(Value).SetBool(b)
}

// Number returns a new numeric Value holding a copy of x.
func Number(x *big.Float) *Value {
	return new(Value).SetNumber(x)
}

// Float returns a new numeric Value holding f at 64 bits of precision.
func Float(f float64) *Value {
	return new(Value).SetFloat64(f)
}

// String returns a new string Value.
func String(s string) *Value {
	return new(Value).SetString(s)
}

// Type returns the type of the value held in v.
func (v *Value) Type() Type {
	return v.typ
}

// Bool returns v's boolean value. The result is false if v is not a bool.
func (v *Value) Bool() bool {
	return v.typ == TypeBool && v.b
}

// Number returns v's numeric value. The result is nil if v is not a number.
// The returned Float is owned by v and is overwritten by later updates.
func (v *Value) Number() *big.Float {
	if v.typ != TypeNumber {
		return nil
	}
	return v.n
}

// Float64 returns the nearest float64 to v's numeric value, or 0 if v is not
// a number.
func (v *Value) Float64() float64 {
	if v.typ != TypeNumber {
		return 0
	}
	f, _ := v.n.Float64()
	return f
}

// Text returns v's string value. The result is empty if v is not a string.
func (v *Value) Text() string {
	if v.typ != TypeString {
		return ""
	}
	return v.s
}

// SetBool sets v to a boolean value and returns v.
func (v *Value) SetBool(b bool) *Value {
	v.typ = TypeBool
	v.b = b
	return v
}

// SetNumber sets v to a copy of x and returns v. If v has never held a
// number, its precision becomes that of x; otherwise x is rounded to v's
// existing precision.
func (v *Value) SetNumber(x *big.Float) *Value {
	v.typ = TypeNumber
	if v.n == nil {
		v.n = new(big.Float).Set(x)
		return v
	}
	v.n.Set(x)
	return v
}

// SetFloat64 sets v to a numeric value and returns v.
func (v *Value) SetFloat64(f float64) *Value {
	v.num().SetFloat64(f)
	return v
}

// SetString sets v to a string value and returns v.
func (v *Value) SetString(s string) *Value {
	v.typ = TypeString
	v.s = s
	return v
}

// Set sets v to the value held in x and returns v.
func (v *Value) Set(x *Value) *Value {
	switch x.typ {
	case TypeBool:
		v.SetBool(x.b)
	case TypeNumber:
		v.SetNumber(x.n)
	case TypeString:
		v.SetString(x.s)
	default:
		v.typ = TypeNone
	}
	return v
}

// num marks v as a number and returns its Float for writing.
func (v *Value) num() *big.Float {
	v.typ = TypeNumber
	if v.n == nil {
		v.n = new(big.Float).SetPrec(64)
	}
	return v.n
}

// prec sets the precision of v's numeric storage, allocating it if needed.
func (v *Value) prec(prec uint) *Value {
	if v.n == nil {
		v.n = new(big.Float).SetPrec(prec)
	} else if v.n.Prec() != prec {
		v.n.SetPrec(prec)
	}
	return v
}

// String formats v for display. Strings are quoted.
func (v *Value) String() string {
	switch v.typ {
	case TypeBool:
		return strconv.FormatBool(v.b)
	case TypeNumber:
		return v.n.Text('g', -1)
	case TypeString:
		return strconv.Quote(v.s)
	default:
		return "<none>"
	}
}

// convert sets v to the value of x converted to type t. It reports false if
// there is no conversion from x's type to t.
func (v *Value) convert(x *Value, t Type) bool {
	if x.typ == t {
		v.Set(x)
		return true
	}
	switch {
	case x.typ == TypeBool && t == TypeNumber:
		if x.b {
			v.num().SetInt64(1)
		} else {
			v.num().SetInt64(0)
		}
		return true
	case x.typ == TypeNumber && t == TypeBool:
		v.SetBool(x.n.Sign() != 0)
		return true
	}
	return false
}

// convertible reports whether values of type from convert to type to.
func convertible(from, to Type) bool {
	return from == to ||
		from == TypeBool && to == TypeNumber ||
		from == TypeNumber && to == TypeBool
}
