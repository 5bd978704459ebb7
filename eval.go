package condexpr

import (
	"fmt"
	"log/slog"
	"math/big"
	"strconv"

	"github.com/zephyrtronium/bigfloat"
)

// Vars supplies variable values during evaluation.
type Vars interface {
	// Lookup sets v to the current value of the named variable and reports
	// whether the variable is bound. Implementations should reuse v's
	// storage, e.g. with v.SetNumber, rather than replacing it.
	Lookup(name string, v *Value) bool
}

// VarsFunc adapts an ordinary function to Vars.
type VarsFunc func(name string, v *Value) bool

func (f VarsFunc) Lookup(name string, v *Value) bool {
	return f(name, v)
}

// Bindings is a simple map implementation of Vars. Setting an existing
// binding reuses its storage.
type Bindings map[string]*Value

func (b Bindings) Lookup(name string, v *Value) bool {
	x := b[name]
	if x == nil {
		return false
	}
	v.Set(x)
	return true
}

func (b Bindings) slot(name string) *Value {
	v := b[name]
	if v == nil {
		v = new(Value)
		b[name] = v
	}
	return v
}

// SetBool binds a boolean variable. Returns b for chaining.
func (b Bindings) SetBool(name string, x bool) Bindings {
	b.slot(name).SetBool(x)
	return b
}

// SetNumber binds a numeric variable to a copy of x. Returns b for chaining.
func (b Bindings) SetNumber(name string, x *big.Float) Bindings {
	b.slot(name).SetNumber(x)
	return b
}

// SetFloat64 binds a numeric variable. Returns b for chaining.
func (b Bindings) SetFloat64(name string, x float64) Bindings {
	b.slot(name).SetFloat64(x)
	return b
}

// SetString binds a string variable. Returns b for chaining.
func (b Bindings) SetString(name string, x string) Bindings {
	b.slot(name).SetString(x)
	return b
}

// Evaluator evaluates expressions. It holds scratch storage that is reused
// across evaluations, so that repeated evaluation of the same expressions
// does not allocate. It is not safe to use an Evaluator concurrently, but any
// number of Evaluators may evaluate the same Expr concurrently.
type Evaluator struct {
	stack []*Value
	prec  uint
	// tmp is scratch for operators that need an intermediate value.
	tmp  big.Float
	busy bool
}

// NewEvaluator creates an evaluator that computes numbers to prec bits. If
// prec is 0, DefaultPrec is used.
func NewEvaluator(prec uint) *Evaluator {
	if prec == 0 {
		prec = DefaultPrec
	}
	return &Evaluator{prec: prec}
}

// Prec returns the precision to which values are computed.
func (ev *Evaluator) Prec() uint {
	return ev.prec
}

// Eval evaluates e with variable values from vars and stores the result in
// out. On error, out is unchanged. An error from a failed evaluation does not
// affect later evaluations.
func (ev *Evaluator) Eval(e *Expr, vars Vars, out *Value) (err error) {
	if ev.busy {
		panic("condexpr: Eval during Eval")
	}
	ev.busy = true
	ev.stack = ev.stack[:0]
	defer func() { ev.busy = false }()
	defer recoverDomain(&err)
	if err := e.n.eval(ev, vars); err != nil {
		return err
	}
	if len(ev.stack) != 1 {
		panic("condexpr: inconsistent stack: " + strconv.Itoa(len(ev.stack)) + " items (bad AST?)")
	}
	out.Set(ev.stack[0])
	return nil
}

// Eval evaluates an expression with a new Evaluator at the expression's
// parse precision.
func Eval(e *Expr, vars Vars, out *Value) error {
	return NewEvaluator(e.prec).Eval(e, vars, out)
}

// EvalString is a shortcut to parse and evaluate an expression. If cfg is
// nil, the result of DefaultConfig is used.
func EvalString(src string, cfg *Config, vars Vars) (*Value, error) {
	e, err := Parse(src, cfg)
	if err != nil {
		return nil, err
	}
	r := new(Value)
	if err := Eval(e, vars, r); err != nil {
		return nil, err
	}
	return r, nil
}

// push ensures a settable value on the stack.
func (ev *Evaluator) push() *Value {
	if len(ev.stack) < cap(ev.stack) {
		ev.stack = ev.stack[:len(ev.stack)+1]
		if ev.stack[len(ev.stack)-1] == nil {
			ev.stack[len(ev.stack)-1] = new(Value)
		}
	} else {
		ev.stack = append(ev.stack, new(Value))
	}
	return ev.stack[len(ev.stack)-1].prec(ev.prec)
}

// pop removes the top from the stack and returns it. The returned value may be
// modified by future node evaluations.
func (ev *Evaluator) pop() *Value {
	r := ev.stack[len(ev.stack)-1]
	ev.stack = ev.stack[:len(ev.stack)-1]
	return r
}

// top is a shortcut to get the top element of the stack.
func (ev *Evaluator) top() *Value {
	return ev.stack[len(ev.stack)-1]
}

// eval pushes the node's value to the evaluator's stack.
func (n *node) eval(ev *Evaluator, vars Vars) error {
	switch n.kind {
	case nodeConst:
		ev.push().Set(n.val)
	case nodeVar:
		v := ev.push()
		if vars == nil || !vars.Lookup(n.name, v) {
			return &NameError{Name: n.name, Want: n.typ}
		}
		if v.typ != n.typ {
			return &NameError{Name: n.name, Want: n.typ, Got: v.typ}
		}
	case nodeUnary:
		if err := n.left.eval(ev, vars); err != nil {
			return err
		}
		v := ev.top()
		switch n.op {
		case OpNeg:
			v.n.Neg(v.n)
		case OpPlus: // do nothing
		case OpNot:
			v.b = !v.b
		default:
			panic("condexpr: invalid unary op " + n.op.String())
		}
	case nodeBinary:
		return n.evalBinary(ev, vars)
	case nodeCall:
		r := ev.push()
		k := len(ev.stack)
		for _, a := range n.args {
			if err := a.eval(ev, vars); err != nil {
				return err
			}
		}
		invoc := ev.stack[k:len(ev.stack):len(ev.stack)]
		if err := n.fn.Func.Call(ev, invoc, r); err != nil {
			return err
		}
		if r.typ != n.fn.Result {
			return fmt.Errorf("condexpr: %v produced a %v", n.fn, r.typ)
		}
		ev.stack = ev.stack[:k]
	case nodeConv:
		if err := n.left.eval(ev, vars); err != nil {
			return err
		}
		v := ev.top()
		if !v.convert(v, n.typ) {
			panic("condexpr: no conversion from " + v.typ.String() + " to " + n.typ.String())
		}
	default:
		panic("condexpr: invalid AST node " + n.kind.String())
	}
	return nil
}

func (n *node) evalBinary(ev *Evaluator, vars Vars) error {
	if err := n.left.eval(ev, vars); err != nil {
		return err
	}
	switch n.op {
	case OpAnd:
		if !ev.top().b {
			return nil
		}
		ev.pop()
		return n.right.eval(ev, vars)
	case OpOr:
		if ev.top().b {
			return nil
		}
		ev.pop()
		return n.right.eval(ev, vars)
	}
	if err := n.right.eval(ev, vars); err != nil {
		return err
	}
	r := ev.pop()
	l := ev.top()
	switch n.op {
	case OpAdd:
		l.n.Add(l.n, r.n)
	case OpSub:
		l.n.Sub(l.n, r.n)
	case OpMul:
		l.n.Mul(l.n, r.n)
	case OpDiv:
		// Guard against invalid divisions, x/0 or inf/inf.
		if r.n.Sign() == 0 || l.n.IsInf() && r.n.IsInf() {
			return DomainError{X: new(big.Float).Copy(r.n), Arg: 2, Func: "/"}
		}
		l.n.Quo(l.n, r.n)
	case OpMod:
		if r.n.Sign() == 0 || l.n.IsInf() {
			return DomainError{X: new(big.Float).Copy(r.n), Arg: 2, Func: "%"}
		}
		ev.mod(l.n, l.n, r.n)
	case OpPow:
		if err := ev.pow(l.n, l.n, r.n); err != nil {
			return err
		}
	case OpEq:
		l.SetBool(equal(l, r))
	case OpNe:
		l.SetBool(!equal(l, r))
	case OpLt:
		l.SetBool(l.n.Cmp(r.n) < 0)
	case OpLe:
		l.SetBool(l.n.Cmp(r.n) <= 0)
	case OpGt:
		l.SetBool(l.n.Cmp(r.n) > 0)
	case OpGe:
		l.SetBool(l.n.Cmp(r.n) >= 0)
	default:
		panic("condexpr: invalid binary op " + n.op.String())
	}
	return nil
}

// equal compares two values of the same type.
func equal(x, y *Value) bool {
	switch x.typ {
	case TypeBool:
		return x.b == y.b
	case TypeNumber:
		return x.n.Cmp(y.n) == 0
	case TypeString:
		return x.s == y.s
	default:
		return false
	}
}

// trunc sets z to x rounded toward zero to an integer and returns z.
func trunc(z, x *big.Float) *big.Float {
	if x.IsInf() || x.IsInt() {
		return z.Set(x)
	}
	exp := x.MantExp(nil)
	if exp <= 0 {
		// |x| < 1
		return z.SetInt64(0)
	}
	prec, mode := z.Prec(), z.Mode()
	z.SetMode(big.ToZero).SetPrec(uint(exp)).Set(x)
	return z.SetMode(mode).SetPrec(prec)
}

// mod sets z to the truncated remainder x - y*trunc(x/y). z may alias x or y.
// y must be nonzero and x finite.
func (ev *Evaluator) mod(z, x, y *big.Float) *big.Float {
	if y.IsInf() {
		return z.Set(x)
	}
	// The quotient keeps every integer bit and rounds toward zero, so
	// truncating it gives trunc(x/y) exactly. The product is exact as well.
	bits := max(int64(z.Prec()), int64(x.MantExp(nil))-int64(y.MantExp(nil))+int64(z.Prec()))
	bits = min(bits, int64(big.MaxPrec-y.MinPrec()))
	q := &ev.tmp
	q.SetMode(big.ToZero).SetPrec(uint(bits))
	q.Quo(x, y)
	trunc(q, q)
	q.SetPrec(uint(bits) + y.MinPrec())
	q.Mul(q, y)
	q.SetMode(big.ToNearestEven)
	return z.Sub(x, q)
}

// pow sets z to x^y. z may alias x but not y. Negative bases are allowed with
// integer exponents.
func (ev *Evaluator) pow(z, x, y *big.Float) error {
	switch {
	case y.Sign() == 0:
		z.SetInt64(1)
		return nil
	case x.IsInf() || y.IsInf():
		return DomainError{X: new(big.Float).Copy(x), Arg: 1, Func: "^"}
	case x.Sign() == 0:
		if y.Sign() < 0 {
			return DomainError{X: new(big.Float).Copy(x), Arg: 1, Func: "^"}
		}
		z.SetInt64(0)
		return nil
	case x.Sign() < 0:
		if !y.IsInt() {
			return DomainError{X: new(big.Float).Copy(x), Arg: 1, Func: "^"}
		}
		// Parity of the exponent. Halving is exact.
		h := &ev.tmp
		h.SetPrec(y.Prec()).SetMantExp(y, -1)
		odd := !h.IsInt()
		z.Abs(x)
		bigfloat.Pow(z, z, y)
		if odd {
			z.Neg(z)
		}
		return nil
	}
	bigfloat.Pow(z, x, y)
	return nil
}

// NameError is an error from a lookup for a variable that is unbound or bound
// to a value of the wrong type.
type NameError struct {
	// Name is the variable name.
	Name string
	// Want is the variable's declared type.
	Want Type
	// Got is the type of the bound value, or TypeNone if the variable was
	// unbound.
	Got Type
}

func (err *NameError) Error() string {
	if err.Got == TypeNone {
		return "undefined variable: " + strconv.Quote(err.Name)
	}
	return "variable " + strconv.Quote(err.Name) + " is " + err.Got.String() + ", expected " + err.Want.String()
}

// LogValue implements slog.LogValuer.
func (err *NameError) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("name", err.Name),
		slog.String("want", err.Want.String()),
		slog.String("got", err.Got.String()),
	)
}
