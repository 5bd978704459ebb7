package condexpr

import (
	"math"
	"strconv"
	"unicode"
	"unicode/utf8"
)

// Op is the semantics of an operator. Which tokens spell each Op, and how
// tightly they bind, is configured by an OperatorTable.
type Op int8

const (
	OpNone Op = iota

	// unary
	OpNeg  // -x
	OpPlus // +x
	OpNot  // !b

	// binary
	OpAdd // x + y
	OpSub // x - y
	OpMul // x * y
	OpDiv // x / y
	OpMod // x % y, truncated
	OpPow // x ^ y
	OpAnd // a && b, short-circuit
	OpOr  // a || b, short-circuit
	OpEq  // x == y, any equal types
	OpNe  // x != y, any equal types
	OpLt  // x < y
	OpLe  // x <= y
	OpGt  // x > y
	OpGe  // x >= y

	opCount
)

var opnames = [opCount]string{
	OpNone: "none",
	OpNeg:  "neg",
	OpPlus: "plus",
	OpNot:  "not",
	OpAdd:  "add",
	OpSub:  "sub",
	OpMul:  "mul",
	OpDiv:  "div",
	OpMod:  "mod",
	OpPow:  "pow",
	OpAnd:  "and",
	OpOr:   "or",
	OpEq:   "eq",
	OpNe:   "ne",
	OpLt:   "lt",
	OpLe:   "le",
	OpGt:   "gt",
	OpGe:   "ge",
}

// opsyms are the canonical spellings used when rendering trees, so that
// trees parsed under different operator tables compare equal.
var opsyms = [opCount]string{
	OpNone: "?",
	OpNeg:  "-",
	OpPlus: "+",
	OpNot:  "!",
	OpAdd:  "+",
	OpSub:  "-",
	OpMul:  "*",
	OpDiv:  "/",
	OpMod:  "%",
	OpPow:  "^",
	OpAnd:  "&&",
	OpOr:   "||",
	OpEq:   "==",
	OpNe:   "!=",
	OpLt:   "<",
	OpLe:   "<=",
	OpGt:   ">",
	OpGe:   ">=",
}

func (op Op) String() string {
	if op < 0 || op >= opCount {
		return "Op(" + strconv.Itoa(int(op)) + ")"
	}
	return opnames[op]
}

// Symbol returns the canonical spelling of op.
func (op Op) Symbol() string {
	if op < 0 || op >= opCount {
		return "?"
	}
	return opsyms[op]
}

// Unary reports whether op is a prefix operation.
func (op Op) Unary() bool {
	return op == OpNeg || op == OpPlus || op == OpNot
}

// Binary reports whether op is an infix operation.
func (op Op) Binary() bool {
	return op >= OpAdd && op < opCount
}

// MarshalText implements encoding.TextMarshaler.
func (op Op) MarshalText() ([]byte, error) {
	return []byte(op.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler using the names returned
// by String.
func (op *Op) UnmarshalText(text []byte) error {
	for k, name := range opnames {
		if k != int(OpNone) && name == string(text) {
			*op = Op(k)
			return nil
		}
	}
	return &OperatorTableError{Token: string(text), Reason: "unknown operation"}
}

// unaryResult gives the result type of a unary op applied to x, or TypeNone
// if the operand is ill-typed.
func (op Op) unaryResult(x Type) Type {
	switch op {
	case OpNeg, OpPlus:
		if x == TypeNumber {
			return TypeNumber
		}
	case OpNot:
		if x == TypeBool {
			return TypeBool
		}
	}
	return TypeNone
}

// binaryResult gives the result type of a binary op applied to l and r, or
// TypeNone if the operands are ill-typed.
func (op Op) binaryResult(l, r Type) Type {
	switch op {
	case OpAdd, OpSub, OpMul, OpDiv, OpMod, OpPow:
		if l == TypeNumber && r == TypeNumber {
			return TypeNumber
		}
	case OpAnd, OpOr:
		if l == TypeBool && r == TypeBool {
			return TypeBool
		}
	case OpEq, OpNe:
		if l == r && l != TypeNone {
			return TypeBool
		}
	case OpLt, OpLe, OpGt, OpGe:
		if l == TypeNumber && r == TypeNumber {
			return TypeBool
		}
	}
	return TypeNone
}

// Operator binds a token to an operation.
type Operator struct {
	// Token is the text of the operator, either punctuation like "&&" or a
	// word like "and".
	Token string `yaml:"token"`
	// Op is the operation the token performs.
	Op Op `yaml:"op"`
	// Priority is the binding strength of a binary operator. Higher binds
	// more tightly. Unary operators ignore it; they always bind more tightly
	// than any binary operator.
	Priority int `yaml:"priority,omitempty"`
	// Right marks a binary operator as right-associative.
	Right bool `yaml:"right,omitempty"`
}

// unaryPriority is the priority of every unary operator.
const unaryPriority = math.MaxInt

// moreBinding reports whether a pending operator p must be resolved before
// an incoming binary operator than is pushed.
func (p Operator) moreBinding(than Operator) bool {
	if p.Priority != than.Priority {
		return p.Priority > than.Priority
	}
	return !than.Right
}

// OperatorTable lists the operators and reserved words of a language.
type OperatorTable struct {
	Unary    []Operator `yaml:"unary"`
	Binary   []Operator `yaml:"binary"`
	Reserved []string   `yaml:"reserved,omitempty"`
}

// DefaultOperators returns a C-like operator table.
func DefaultOperators() *OperatorTable {
	return &OperatorTable{
		Unary: []Operator{
			{Token: "-", Op: OpNeg},
			{Token: "+", Op: OpPlus},
			{Token: "!", Op: OpNot},
		},
		Binary: []Operator{
			{Token: "||", Op: OpOr, Priority: 1},
			{Token: "&&", Op: OpAnd, Priority: 2},
			{Token: "==", Op: OpEq, Priority: 3},
			{Token: "!=", Op: OpNe, Priority: 3},
			{Token: "<", Op: OpLt, Priority: 4},
			{Token: "<=", Op: OpLe, Priority: 4},
			{Token: ">", Op: OpGt, Priority: 4},
			{Token: ">=", Op: OpGe, Priority: 4},
			{Token: "+", Op: OpAdd, Priority: 5},
			{Token: "-", Op: OpSub, Priority: 5},
			{Token: "*", Op: OpMul, Priority: 6},
			{Token: "/", Op: OpDiv, Priority: 6},
			{Token: "%", Op: OpMod, Priority: 6},
			{Token: "^", Op: OpPow, Priority: 7, Right: true},
		},
	}
}

// Validate checks that the table is usable by the lexer and parser.
func (t *OperatorTable) Validate() error {
	if err := checkops(t.Unary, true); err != nil {
		return err
	}
	if err := checkops(t.Binary, false); err != nil {
		return err
	}
	for _, w := range t.Reserved {
		if !isword(w) {
			return &OperatorTableError{Token: w, Reason: "reserved word is not an identifier"}
		}
	}
	return nil
}

func checkops(ops []Operator, unary bool) error {
	seen := make(map[string]bool, len(ops))
	for _, o := range ops {
		switch {
		case o.Token == "":
			return &OperatorTableError{Token: o.Token, Reason: "empty token"}
		case seen[o.Token]:
			return &OperatorTableError{Token: o.Token, Reason: "duplicate token"}
		case unary && !o.Op.Unary():
			return &OperatorTableError{Token: o.Token, Reason: o.Op.String() + " is not a unary operation"}
		case !unary && !o.Op.Binary():
			return &OperatorTableError{Token: o.Token, Reason: o.Op.String() + " is not a binary operation"}
		case !isword(o.Token) && !ispunct(o.Token):
			return &OperatorTableError{Token: o.Token, Reason: "token mixes word and symbol characters"}
		}
		seen[o.Token] = true
	}
	return nil
}

// isword reports whether s lexes as a single identifier.
func isword(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if !identRune(r, i == 0) {
			return false
		}
	}
	return true
}

// ispunct reports whether s can be matched as an operator symbol: it
// contains no identifier, space, bracket, separator, or quote runes.
func ispunct(s string) bool {
	if s == "" || !utf8.ValidString(s) {
		return false
	}
	for _, r := range s {
		if identRune(r, false) || unicode.IsSpace(r) || isdelim(r) {
			return false
		}
	}
	return true
}

// OperatorTableError is an error describing an invalid operator table.
type OperatorTableError struct {
	// Token is the offending operator token or name.
	Token string
	// Reason describes the problem.
	Reason string
}

func (err *OperatorTableError) Error() string {
	return "operator " + strconv.Quote(err.Token) + ": " + err.Reason
}
