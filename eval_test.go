package condexpr_test

import (
	"errors"
	"math"
	"math/big"
	"strconv"
	"sync"
	"testing"

	"github.com/expr-lang/expr"

	"github.com/zephyrtronium/condexpr"
)

func testBindings() condexpr.Bindings {
	return condexpr.Bindings{}.
		SetFloat64("a", 3).
		SetFloat64("b", 4).
		SetFloat64("c", 0.5).
		SetFloat64("d", -2).
		SetBool("p", true).
		SetBool("q", false).
		SetString("s", "hi")
}

func closeEnough(got, want float64) bool {
	if got == want {
		return true
	}
	return math.Abs(got-want) <= 1e-12*math.Max(1, math.Abs(want))
}

func TestEvalNumber(t *testing.T) {
	cases := []struct {
		src  string
		want float64
	}{
		{"a + b", 7},
		{"a - b*c", 1},
		{"a / b", 0.75},
		{"7 % 3", 1},
		{"-7 % 3", -1},
		{"7 % -3", 1},
		{"7.5 % 2", 1.5},
		{"a % c", 0},
		{"1180591620717411303424 % 3", 1},
		{"1208925819614629174706176 % 7", 4},
		{"1267650600228229401496703205376 % 10", 6},
		{"-1180591620717411303424 % 3", -1},
		{"2 ^ 10", 1024},
		{"2 ^ 3 ^ 2", 512},
		{"-2 ^ 2", 4},
		{"d ^ 3", -8},
		{"d ^ 2", 4},
		{"d ^ -1", -0.5},
		{"4 ^ 0.5", 2},
		{"0 ^ 2", 0},
		{"a ^ 0", 1},
		{"sqrt(16)", 4},
		{"abs(d)", 2},
		{"min(a, b)", 3},
		{"max(a, b)", 4},
		{"clamp(10, 0, 5)", 5},
		{"clamp(d, 0, 5)", 0},
		{"clamp(a, 0, 5)", 3},
		{"exp(0)", 1},
		{"exp(1)", math.E},
		{"ln(e)", 1},
		{"log(1000)", 3},
		{"log(8, 2)", 3},
		{"if(a > b, a, b)", 4},
		{"pi", math.Pi},
		{"1e3 + 1", 1001},
		{"1e999999999999", math.Inf(1)},
		{"-1e999999999999", math.Inf(-1)},
		{"1e99999999999999999999", math.Inf(1)},
		{"1e-999999999999", 0},
		{"1e-999999999999 + a", 3},
		{"c * 4", 2},
		{"-(a + b)", -7},
	}
	cfg := testConfig(t)
	vars := testBindings()
	for _, c := range cases {
		t.Run(c.src, func(t *testing.T) {
			r, err := condexpr.EvalString(c.src, cfg, vars)
			if err != nil {
				t.Fatal(err)
			}
			if r.Type() != condexpr.TypeNumber {
				t.Fatalf("%q gave a %v", c.src, r.Type())
			}
			if got := r.Float64(); !closeEnough(got, c.want) {
				t.Errorf("wrong result for %q: want %v, got %v", c.src, c.want, got)
			}
		})
	}
}

func TestEvalOther(t *testing.T) {
	cases := []struct {
		src  string
		want *condexpr.Value
	}{
		{"a < b", condexpr.Bool(true)},
		{"a >= b", condexpr.Bool(false)},
		{"a <= 3", condexpr.Bool(true)},
		{"a > d", condexpr.Bool(true)},
		{"a == 3", condexpr.Bool(true)},
		{"a != 3", condexpr.Bool(false)},
		{"p && !q", condexpr.Bool(true)},
		{"p && q", condexpr.Bool(false)},
		{"q || p", condexpr.Bool(true)},
		{"p == q", condexpr.Bool(false)},
		{"p != q", condexpr.Bool(true)},
		{`s == "hi"`, condexpr.Bool(true)},
		{`s != "hi"`, condexpr.Bool(false)},
		{`s`, condexpr.String("hi")},
		{`if(p, s, "no")`, condexpr.String("hi")},
		{`if(q, s, "no")`, condexpr.String("no")},
		{"if(q, p, q)", condexpr.Bool(false)},
		{"a * b > 10 && !(c < 1)", condexpr.Bool(false)},
	}
	cfg := testConfig(t)
	vars := testBindings()
	for _, c := range cases {
		t.Run(c.src, func(t *testing.T) {
			r, err := condexpr.EvalString(c.src, cfg, vars)
			if err != nil {
				t.Fatal(err)
			}
			if r.String() != c.want.String() || r.Type() != c.want.Type() {
				t.Errorf("wrong result for %q: want %v, got %v", c.src, c.want, r)
			}
		})
	}
}

func TestEvalDomain(t *testing.T) {
	cases := []string{
		"1/0",
		"a/(b-4)",
		"1 % 0",
		"0 ^ -1",
		"d ^ 0.5",
		"sqrt(d)",
		"ln(d)",
		"log(8, 1)",
		"log(8, 0)",
		"log(8, d)",
		"clamp(1, 5, 0)",
		"p || a/0 > 1 || true",
	}
	cfg := testConfig(t)
	vars := condexpr.Bindings{}.SetFloat64("a", 3).SetFloat64("b", 4).SetFloat64("d", -2).SetBool("p", false)
	ev := condexpr.NewEvaluator(0)
	for _, src := range cases {
		t.Run(src, func(t *testing.T) {
			e := condexpr.MustParse(src, cfg)
			r := condexpr.Float(42)
			err := ev.Eval(e, vars, r)
			if err == nil {
				t.Fatalf("%q evaluated to %v", src, r)
			}
			var de condexpr.DomainError
			if !errors.As(err, &de) {
				t.Errorf("%q gave non-domain error %#v", src, err)
			}
			if !errors.Is(err, big.ErrNaN{}) {
				t.Errorf("%q: %v does not match big.ErrNaN", src, err)
			}
			if r.Float64() != 42 {
				t.Errorf("%q: output changed to %v on error", src, r)
			}
			// The evaluator must still work after an error.
			var ok condexpr.Value
			if err := ev.Eval(condexpr.MustParse("a + b", cfg), vars, &ok); err != nil || ok.Float64() != 7 {
				t.Errorf("evaluator broken after %q: got %v, %v", src, &ok, err)
			}
		})
	}
}

func TestEvalShortCircuit(t *testing.T) {
	cfg := testConfig(t, condexpr.Var("u", condexpr.TypeBool))
	vars := testBindings()
	cases := []struct {
		src  string
		want bool
	}{
		{"true || u", true},
		{"p || u", true},
		{"false && u", false},
		{"q && u", false},
		{"q && 1/0 > 1", false},
		{"p || sqrt(-1) > 0", true},
	}
	for _, c := range cases {
		r, err := condexpr.EvalString(c.src, cfg, vars)
		if err != nil {
			t.Errorf("%q: %v", c.src, err)
			continue
		}
		if r.Bool() != c.want {
			t.Errorf("%q: want %t, got %v", c.src, c.want, r)
		}
	}
	_, err := condexpr.EvalString("false || u", cfg, vars)
	var ne *condexpr.NameError
	if !errors.As(err, &ne) || ne.Name != "u" || ne.Got != condexpr.TypeNone {
		t.Errorf("expected unbound u, got %v", err)
	}
}

func TestEvalNameError(t *testing.T) {
	cfg := testConfig(t)
	e := condexpr.MustParse("a + 1", cfg)
	var r condexpr.Value

	err := condexpr.Eval(e, condexpr.Bindings{}, &r)
	var ne *condexpr.NameError
	if !errors.As(err, &ne) {
		t.Fatalf("expected NameError, got %v", err)
	}
	if ne.Name != "a" || ne.Want != condexpr.TypeNumber || ne.Got != condexpr.TypeNone {
		t.Errorf("wrong error for unbound variable: %+v", ne)
	}

	err = condexpr.Eval(e, nil, &r)
	if !errors.As(err, &ne) || ne.Name != "a" {
		t.Errorf("expected NameError with no vars, got %v", err)
	}

	err = condexpr.Eval(e, condexpr.Bindings{}.SetString("a", "3"), &r)
	if !errors.As(err, &ne) {
		t.Fatalf("expected NameError, got %v", err)
	}
	if ne.Got != condexpr.TypeString || ne.Want != condexpr.TypeNumber {
		t.Errorf("wrong error for mistyped variable: %+v", ne)
	}
	if r.Type() != condexpr.TypeNone {
		t.Errorf("output set to %v on error", &r)
	}
}

func TestEvalVarsFunc(t *testing.T) {
	cfg := testConfig(t)
	e := condexpr.MustParse("a * b", cfg)
	var looked []string
	vars := condexpr.VarsFunc(func(name string, v *condexpr.Value) bool {
		looked = append(looked, name)
		v.SetFloat64(float64(len(name) + 1))
		return true
	})
	var r condexpr.Value
	if err := condexpr.Eval(e, vars, &r); err != nil {
		t.Fatal(err)
	}
	if r.Float64() != 4 {
		t.Errorf("wrong result %v", &r)
	}
	if len(looked) != 2 {
		t.Errorf("looked up %q", looked)
	}
}

func TestEvalPrec(t *testing.T) {
	cfg := testConfig(t)
	e := condexpr.MustParse("1/3", cfg)
	for _, prec := range []uint{24, 64, 256} {
		var r condexpr.Value
		if err := condexpr.NewEvaluator(prec).Eval(e, nil, &r); err != nil {
			t.Fatal(err)
		}
		if got := r.Number().Prec(); got != prec {
			t.Errorf("evaluating at %d bits gave %d bits", prec, got)
		}
	}
}

func TestEvalReuse(t *testing.T) {
	cfg := testConfig(t)
	vars := testBindings()
	exprs := []*condexpr.Expr{
		condexpr.MustParse("a + b * c", cfg),
		condexpr.MustParse("min(a, b) < max(c, d) || p", cfg),
		condexpr.MustParse(`if(p, s, "x")`, cfg),
		condexpr.MustParse("clamp(a * 2, 0, b) ^ 2", cfg),
	}
	ev := condexpr.NewEvaluator(0)
	var r condexpr.Value
	first := make([]string, len(exprs))
	for i, e := range exprs {
		if err := ev.Eval(e, vars, &r); err != nil {
			t.Fatal(err)
		}
		first[i] = r.String()
	}
	for k := 0; k < 3; k++ {
		for i, e := range exprs {
			if err := ev.Eval(e, vars, &r); err != nil {
				t.Fatal(err)
			}
			if r.String() != first[i] {
				t.Errorf("%v gave %s, then %s", e, first[i], &r)
			}
		}
	}
}

func TestEvalConcurrent(t *testing.T) {
	cfg := testConfig(t)
	e := condexpr.MustParse("sqrt(a*a + b*b) == 5 && p", cfg)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			vars := testBindings()
			ev := condexpr.NewEvaluator(0)
			var r condexpr.Value
			for k := 0; k < 100; k++ {
				if err := ev.Eval(e, vars, &r); err != nil {
					t.Error(err)
					return
				}
				if !r.Bool() {
					t.Errorf("wrong result %v", &r)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestEvalReentrant(t *testing.T) {
	ev := condexpr.NewEvaluator(0)
	reg := condexpr.DefaultFuncs()
	inner := condexpr.MustParse("1", nil)
	reg.MustRegister(&condexpr.TypedFunc{
		Name:   "again",
		Params: []condexpr.Type{condexpr.TypeNumber},
		Result: condexpr.TypeNumber,
		Func: condexpr.FuncOf(func(_ *condexpr.Evaluator, args []*condexpr.Value, r *condexpr.Value) error {
			return ev.Eval(inner, nil, r)
		}),
	})
	e := condexpr.MustParse("again(1)", testConfig(t, condexpr.Funcs(reg)))
	func() {
		defer func() {
			if recover() == nil {
				t.Error("reentrant Eval didn't panic")
			}
		}()
		var r condexpr.Value
		ev.Eval(e, nil, &r)
	}()
	// The evaluator is usable after the panic.
	var r condexpr.Value
	if err := ev.Eval(inner, nil, &r); err != nil || r.Float64() != 1 {
		t.Errorf("evaluator broken after panic: %v, %v", &r, err)
	}
}

func TestEvalAllocs(t *testing.T) {
	cfg := testConfig(t)
	e := condexpr.MustParse(`a < b && !q || s == "x" && c >= d`, cfg)
	vars := testBindings()
	ev := condexpr.NewEvaluator(0)
	var r condexpr.Value
	if err := ev.Eval(e, vars, &r); err != nil {
		t.Fatal(err)
	}
	allocs := testing.AllocsPerRun(100, func() {
		ev.Eval(e, vars, &r)
	})
	if allocs != 0 {
		t.Errorf("evaluation allocated %v times per run", allocs)
	}
}

// TestEvalAgainstExpr compares results with an independent expression engine
// on the operators both languages share.
func TestEvalAgainstExpr(t *testing.T) {
	srcs := []string{
		"a + b * c",
		"(a - b) / c",
		"-a * b + 4",
		"a / b / c",
		"a - b - c - 1",
		"a * (b + c) - a * b",
		"a < b || b < c",
		"a * b > 10 && !(c < 1)",
		"-(a + b) * 2 == -2 * (a + b)",
	}
	inputs := [][3]float64{
		{3, 4, 0.5},
		{-1, 2.5, 8},
		{0, 0.25, -3},
		{1e6, -7, 11},
	}
	cfg := testConfig(t)
	ev := condexpr.NewEvaluator(0)
	var r condexpr.Value
	for _, src := range srcs {
		e := condexpr.MustParse(src, cfg)
		prog, err := expr.Compile(src, expr.Env(map[string]any{"a": 0.0, "b": 0.0, "c": 0.0}))
		if err != nil {
			t.Fatalf("reference couldn't compile %q: %v", src, err)
		}
		for _, in := range inputs {
			env := map[string]any{"a": in[0], "b": in[1], "c": in[2]}
			want, err := expr.Run(prog, env)
			if err != nil {
				t.Fatalf("reference couldn't run %q: %v", src, err)
			}
			vars := condexpr.Bindings{}.SetFloat64("a", in[0]).SetFloat64("b", in[1]).SetFloat64("c", in[2])
			if err := ev.Eval(e, vars, &r); err != nil {
				t.Errorf("%q with %v: %v", src, in, err)
				continue
			}
			switch want := want.(type) {
			case bool:
				if r.Type() != condexpr.TypeBool || r.Bool() != want {
					t.Errorf("%q with %v: want %t, got %v", src, in, want, &r)
				}
			case float64:
				if r.Type() != condexpr.TypeNumber || !closeEnough(r.Float64(), want) {
					t.Errorf("%q with %v: want %v, got %v", src, in, want, &r)
				}
			case int:
				if r.Type() != condexpr.TypeNumber || r.Float64() != float64(want) {
					t.Errorf("%q with %v: want %d, got %v", src, in, want, &r)
				}
			default:
				t.Errorf("%q: reference gave %T", src, want)
			}
		}
	}
}

func TestEvalSimplified(t *testing.T) {
	srcs := []string{
		"a + 2 * 3 - -b",
		"min(a, 1 + 1) * max(2 ^ 3, b)",
		"true && p || false",
		`if(1 < 2, s, "x") == s`,
		"--a + +b",
		"clamp(a, 0, 1 + 1) + sqrt(4)",
	}
	cfg := testConfig(t)
	vars := testBindings()
	ev := condexpr.NewEvaluator(0)
	for _, src := range srcs {
		e := condexpr.MustParse(src, cfg)
		var x, y condexpr.Value
		if err := ev.Eval(e, vars, &x); err != nil {
			t.Fatalf("%q: %v", src, err)
		}
		if err := ev.Eval(e.Simplify(), vars, &y); err != nil {
			t.Fatalf("simplified %q: %v", src, err)
		}
		if x.String() != y.String() {
			t.Errorf("%q gave %v, but simplified gave %v", src, &x, &y)
		}
	}
}

func BenchmarkEval(b *testing.B) {
	cfg := testConfig(b)
	cases := []string{
		"a < b && p",
		"a + b * c - d",
		"sqrt(a*a + b*b) > c",
		`if(p, s, "none") == "hi"`,
	}
	vars := testBindings()
	for _, src := range cases {
		b.Run(strconv.Quote(src), func(b *testing.B) {
			e := condexpr.MustParse(src, cfg)
			ev := condexpr.NewEvaluator(0)
			var r condexpr.Value
			b.ReportAllocs()
			for b.Loop() {
				ev.Eval(e, vars, &r)
			}
		})
	}
}
