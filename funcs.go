package condexpr

import (
	"errors"
	"log/slog"
	"maps"
	"math/big"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/sahilm/fuzzy"
	"github.com/zephyrtronium/bigfloat"
)

// Func is the evaluation rule of a typed function.
type Func interface {
	// Call evaluates the function. args holds the evaluated arguments, one
	// per declared parameter and already of the declared parameter types.
	// The function must set r to a value of its declared result type and
	// should not use the value of r otherwise. Call may modify the elements
	// of args.
	Call(ev *Evaluator, args []*Value, r *Value) error
}

// FuncOf adapts an ordinary function to a Func.
type FuncOf func(ev *Evaluator, args []*Value, r *Value) error

func (f FuncOf) Call(ev *Evaluator, args []*Value, r *Value) error {
	return f(ev, args, r)
}

// TypedFunc is a function signature bound to its evaluation rule.
type TypedFunc struct {
	// Name is the name that calls the function.
	Name string
	// Params are the parameter types.
	Params []Type
	// Result is the result type.
	Result Type
	// Pure indicates that the result depends only on the arguments, so that
	// calls with constant arguments may be folded during simplification.
	Pure bool
	// Func is the evaluation rule.
	Func Func
}

func (f *TypedFunc) String() string {
	var b strings.Builder
	b.WriteString(f.Name)
	b.WriteByte('(')
	for i, p := range f.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.String())
	}
	b.WriteString(") ")
	b.WriteString(f.Result.String())
	return b.String()
}

// Registry maps function names to overloaded signatures. Functions are
// registered once, normally at startup; lookups are safe for concurrent use
// with each other and with registration.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string][]*TypedFunc
	// compat decides whether an argument type may be passed to a parameter
	// of a different type.
	compat func(arg, param Type) bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string][]*TypedFunc)}
}

// Register adds a function signature. It is an error to register a second
// function with the same name and parameter types, to register a function
// with no parameters, or to use a name that is not an identifier.
func (r *Registry) Register(f *TypedFunc) error {
	switch {
	case !isword(f.Name):
		return &RegisterError{Func: f.String(), Reason: "name is not an identifier"}
	case len(f.Params) == 0:
		return &RegisterError{Func: f.String(), Reason: "functions must take at least one argument"}
	case f.Result == TypeNone:
		return &RegisterError{Func: f.String(), Reason: "no result type"}
	case f.Func == nil:
		return &RegisterError{Func: f.String(), Reason: "no evaluation rule"}
	}
	for _, p := range f.Params {
		if p == TypeNone {
			return &RegisterError{Func: f.String(), Reason: "parameter has no type"}
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range r.funcs[f.Name] {
		if slices.Equal(g.Params, f.Params) {
			return &RegisterError{Func: f.String(), Reason: "duplicate signature"}
		}
	}
	c := *f
	c.Params = slices.Clone(f.Params)
	r.funcs[f.Name] = append(r.funcs[f.Name], &c)
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(f *TypedFunc) *Registry {
	if err := r.Register(f); err != nil {
		panic("condexpr: " + err.Error())
	}
	return r
}

// SetCompatible installs a host-defined compatibility rule. An argument of
// type arg matches a parameter of a different type param when
// compat(arg, param) is true and a conversion between them exists; bool and
// number convert to each other as 1 and 0 and nonzero-is-true. With no rule,
// argument types must match exactly.
func (r *Registry) SetCompatible(compat func(arg, param Type) bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.compat = compat
}

// Lookup returns the signatures registered under name, in registration
// order.
func (r *Registry) Lookup(name string) []*TypedFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.funcs[name])
}

// Names returns the registered function names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.funcs))
}

// Resolve finds the first registered signature of name whose parameters
// accept the given argument types. The error is a *ResolveError.
func (r *Registry) Resolve(name string, args []Type) (*TypedFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fns, ok := r.funcs[name]
	if !ok {
		return nil, &ResolveError{Kind: KindUnknownFunction, Name: name, Args: args, Suggest: suggest(name, r.names())}
	}
	for _, f := range fns {
		if r.accepts(f, args) {
			return f, nil
		}
	}
	return nil, &ResolveError{Kind: KindNoOverload, Name: name, Args: args}
}

func (r *Registry) names() []string {
	return slices.Sorted(maps.Keys(r.funcs))
}

func (r *Registry) accepts(f *TypedFunc, args []Type) bool {
	if len(f.Params) != len(args) {
		return false
	}
	for i, p := range f.Params {
		if !r.matches(args[i], p) {
			return false
		}
	}
	return true
}

// matches reports whether an argument of type arg may be passed to a
// parameter of type param.
func (r *Registry) matches(arg, param Type) bool {
	if arg == param {
		return true
	}
	return r.compat != nil && r.compat(arg, param) && convertible(arg, param)
}

// ResolveError is an error resolving a function call.
type ResolveError struct {
	// Kind is KindUnknownFunction or KindNoOverload.
	Kind ErrorKind
	// Name is the function name.
	Name string
	// Args are the argument types of the call.
	Args []Type
	// Suggest lists similar function names.
	Suggest []string
}

func (err *ResolveError) Error() string {
	return err.Kind.String() + " " + err.Name + "(" + typelist(err.Args) + ")"
}

func typelist(ts []Type) string {
	s := make([]string, len(ts))
	for i, t := range ts {
		s[i] = t.String()
	}
	return strings.Join(s, ", ")
}

// RegisterError is an error registering a function.
type RegisterError struct {
	Func   string
	Reason string
}

func (err *RegisterError) Error() string {
	return "registering " + err.Func + ": " + err.Reason
}

// suggest returns up to three candidates that fuzzily match name.
func suggest(name string, candidates []string) []string {
	if len(candidates) == 0 || name == "" {
		return nil
	}
	matches := fuzzy.Find(name, candidates)
	if len(matches) == 0 {
		// Also try the other direction, so that "sqrtt" finds "sqrt".
		for _, c := range candidates {
			if len(c) >= 2 && strings.Contains(name, c) {
				matches = append(matches, fuzzy.Match{Str: c})
			}
		}
	}
	var r []string
	for _, m := range matches {
		r = append(r, m.Str)
		if len(r) == 3 {
			break
		}
	}
	return r
}

var (
	defaultOnce  sync.Once
	defaultFuncs *Registry
)

// DefaultFuncs returns a new registry holding the built-in functions:
//
//	exp(number) number
//	ln(number) number
//	log(number) number           base 10
//	log(number, number) number   log(x, b) is the base b logarithm of x
//	sqrt(number) number
//	abs(number) number
//	min(number, number) number
//	max(number, number) number
//	clamp(number, number, number) number
//	if(bool, number, number) number
//	if(bool, bool, bool) bool
//	if(bool, string, string) string
//
// The registry is a fresh copy each call, so callers may add to it.
func DefaultFuncs() *Registry {
	defaultOnce.Do(func() {
		defaultFuncs = NewRegistry()
		for _, f := range builtins() {
			defaultFuncs.MustRegister(f)
		}
	})
	r := NewRegistry()
	defaultFuncs.mu.RLock()
	defer defaultFuncs.mu.RUnlock()
	for k, v := range defaultFuncs.funcs {
		r.funcs[k] = slices.Clone(v)
	}
	return r
}

func builtins() []*TypedFunc {
	num1 := []Type{TypeNumber}
	num2 := []Type{TypeNumber, TypeNumber}
	return []*TypedFunc{
		{Name: "exp", Params: num1, Result: TypeNumber, Pure: true, Func: Monadic(exp)},
		{Name: "ln", Params: num1, Result: TypeNumber, Pure: true, Func: Monadic(ln)},
		{Name: "log", Params: num1, Result: TypeNumber, Pure: true, Func: FuncOf(log10)},
		{Name: "log", Params: num2, Result: TypeNumber, Pure: true, Func: FuncOf(logb)},
		{Name: "sqrt", Params: num1, Result: TypeNumber, Pure: true, Func: Monadic((*big.Float).Sqrt)},
		{Name: "abs", Params: num1, Result: TypeNumber, Pure: true, Func: Monadic((*big.Float).Abs)},
		{Name: "min", Params: num2, Result: TypeNumber, Pure: true, Func: Dyadic(func(out, x, y *big.Float) *big.Float {
			if y.Cmp(x) < 0 {
				return out.Set(y)
			}
			return out.Set(x)
		})},
		{Name: "max", Params: num2, Result: TypeNumber, Pure: true, Func: Dyadic(func(out, x, y *big.Float) *big.Float {
			if y.Cmp(x) > 0 {
				return out.Set(y)
			}
			return out.Set(x)
		})},
		{Name: "clamp", Params: []Type{TypeNumber, TypeNumber, TypeNumber}, Result: TypeNumber, Pure: true, Func: FuncOf(clamp)},
		{Name: "if", Params: []Type{TypeBool, TypeNumber, TypeNumber}, Result: TypeNumber, Pure: true, Func: FuncOf(choose)},
		{Name: "if", Params: []Type{TypeBool, TypeBool, TypeBool}, Result: TypeBool, Pure: true, Func: FuncOf(choose)},
		{Name: "if", Params: []Type{TypeBool, TypeString, TypeString}, Result: TypeString, Pure: true, Func: FuncOf(choose)},
	}
}

// exp is bigfloat.Exp with infinite arguments handled.
func exp(out, in *big.Float) *big.Float {
	if in.IsInf() {
		if in.Signbit() {
			return out.SetInt64(0)
		}
		return out.SetInf(false)
	}
	return bigfloat.Exp(out, in)
}

// ln is bigfloat.Log with domain checks.
func ln(out, in *big.Float) *big.Float {
	switch {
	case in.Signbit() && in.Sign() != 0:
		panic(DomainError{X: new(big.Float).Copy(in), Func: "ln"})
	case in.Sign() == 0:
		return out.SetInf(true)
	case in.IsInf():
		return out.SetInf(false)
	}
	return bigfloat.Log(out, in)
}

func log10(ev *Evaluator, args []*Value, r *Value) (err error) {
	defer recoverDomain(&err)
	out := r.prec(ev.Prec()).num()
	ln(out, args[0].n)
	ten := args[0].n.SetInt64(10)
	ln(ev.tmp.SetPrec(ev.Prec()), ten)
	out.Quo(out, &ev.tmp)
	return nil
}

func logb(ev *Evaluator, args []*Value, r *Value) (err error) {
	defer recoverDomain(&err)
	b := args[1].n
	if b.Sign() <= 0 || b.IsInf() || b.Cmp(ev.tmp.SetPrec(ev.Prec()).SetInt64(1)) == 0 {
		return DomainError{X: new(big.Float).Copy(b), Arg: 2, Func: "log"}
	}
	out := r.prec(ev.Prec()).num()
	ln(out, args[0].n)
	ln(&ev.tmp, b)
	out.Quo(out, &ev.tmp)
	return nil
}

func clamp(ev *Evaluator, args []*Value, r *Value) error {
	x, lo, hi := args[0].n, args[1].n, args[2].n
	if lo.Cmp(hi) > 0 {
		return DomainError{X: new(big.Float).Copy(lo), Arg: 2, Func: "clamp"}
	}
	out := r.prec(ev.Prec()).num()
	switch {
	case x.Cmp(lo) < 0:
		out.Set(lo)
	case x.Cmp(hi) > 0:
		out.Set(hi)
	default:
		out.Set(x)
	}
	return nil
}

func choose(ev *Evaluator, args []*Value, r *Value) error {
	if args[0].b {
		r.Set(args[1])
	} else {
		r.Set(args[2])
	}
	return nil
}

type monadic struct {
	f func(out, in *big.Float) *big.Float
}

func (m monadic) Call(ev *Evaluator, args []*Value, r *Value) (err error) {
	defer recoverDomain(&err)
	in := args[0].n
	out := r.prec(ev.Prec()).num()
	m.f(out, in)
	return nil
}

// Monadic wraps a function of one number into a Func. f must set out to its
// result; its return value is always ignored. If f is called on an argument
// outside its domain, it should panic with a DomainError or big.ErrNaN.
func Monadic(f func(out, in *big.Float) *big.Float) Func {
	return monadic{f}
}

type dyadic struct {
	f func(out, x, y *big.Float) *big.Float
}

func (d dyadic) Call(ev *Evaluator, args []*Value, r *Value) (err error) {
	defer recoverDomain(&err)
	out := r.prec(ev.Prec()).num()
	d.f(out, args[0].n, args[1].n)
	return nil
}

// Dyadic wraps a function of two numbers into a Func, with the same
// contract as Monadic.
func Dyadic(f func(out, x, y *big.Float) *big.Float) Func {
	return dyadic{f}
}

// recoverDomain converts a panic with a DomainError or big.ErrNaN into an
// error. Other panics are propagated.
func recoverDomain(err *error) {
	r := recover()
	if r == nil {
		return
	}
	e, ok := r.(error)
	if !ok {
		panic(r)
	}
	if errors.As(e, new(DomainError)) {
		*err = e
		return
	}
	var nan big.ErrNaN
	if errors.As(e, &nan) {
		*err = DomainError{msg: nan.Error()}
		return
	}
	panic(r)
}

// DomainError is an error returned when an operation is applied to operands
// outside its domain. DomainError unwraps to big.ErrNaN.
type DomainError struct {
	// X is the out-of-domain argument, if known.
	X *big.Float
	// Arg is the 1-based index of the argument.
	Arg int
	// Func is a name identifying the function or operator.
	Func string

	msg string
}

func (err DomainError) Error() string {
	if err.X == nil {
		if err.msg != "" {
			return "domain error: " + err.msg
		}
		return "domain error in " + err.Func
	}
	r := err.X.String() + " outside domain"
	if err.Func != "" {
		r += " of " + err.Func
	}
	if err.Arg > 0 {
		r += " (argument " + strconv.Itoa(err.Arg) + ")"
	}
	return r
}

// LogValue implements slog.LogValuer.
func (err DomainError) LogValue() slog.Value {
	attrs := []slog.Attr{slog.String("func", err.Func)}
	if err.X != nil {
		attrs = append(attrs, slog.String("x", err.X.String()), slog.Int("arg", err.Arg))
	}
	if err.msg != "" {
		attrs = append(attrs, slog.String("msg", err.msg))
	}
	return slog.GroupValue(attrs...)
}

func (err DomainError) Unwrap() error {
	return big.ErrNaN{}
}
