package condexpr_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zephyrtronium/condexpr"
)

const wordsConfig = `
prec: 128
operators:
  unary:
    - {token: not, op: not}
    - {token: "-", op: neg}
  binary:
    - {token: or, op: or, priority: 1}
    - {token: and, op: and, priority: 2}
    - {token: "=", op: eq, priority: 3}
    - {token: "<", op: lt, priority: 4}
    - {token: "+", op: add, priority: 5}
    - {token: "*", op: mul, priority: 6}
    - {token: "**", op: pow, priority: 7, right: true}
  reserved: [frame]
vars:
  x: number
  ok: bool
  label: string
constants:
  limit: 10
  widget: "gear"
  half: 0.5
  debug: true
`

func TestReadConfig(t *testing.T) {
	cfg, err := condexpr.ReadConfig(strings.NewReader(wordsConfig))
	require.NoError(t, err)
	assert.EqualValues(t, 128, cfg.Prec())
	assert.Equal(t, []string{"label", "ok", "x"}, cfg.VarNames())
	assert.Equal(t, condexpr.TypeBool, cfg.VarType("ok"))
	assert.Equal(t, condexpr.TypeNone, cfg.VarType("y"))
	assert.Len(t, cfg.Operators().Binary, 7)

	a, err := condexpr.Parse("x ** 2 ** 3", cfg)
	require.NoError(t, err)
	b, err := condexpr.Parse("x ** (2 ** 3)", cfg)
	require.NoError(t, err)
	assert.Equal(t, b.String(), a.String(), "** should be right-associative")
	assert.Equal(t, "([x] ^ [(2) ^ (3)])", a.String())

	e, err := condexpr.Parse("not ok and x * half < limit or debug", cfg)
	require.NoError(t, err)
	assert.Equal(t, condexpr.TypeBool, e.Type())
	assert.Equal(t, "([(![ok]) && ([(x) * (half)] < [limit])] || [debug])", e.String())
	vars := condexpr.Bindings{}.SetBool("ok", false).SetFloat64("x", 30)
	var r condexpr.Value
	require.NoError(t, condexpr.Eval(e, vars, &r))
	assert.True(t, r.Bool())

	r2, err := condexpr.EvalString(`label = widget`, cfg, condexpr.Bindings{}.SetString("label", "gear"))
	require.NoError(t, err)
	assert.True(t, r2.Bool())

	// Operators left out of the table are unavailable.
	_, err = condexpr.Parse("x - 1", cfg)
	require.Error(t, err)
	_, err = condexpr.Parse("ok && ok", cfg)
	require.Error(t, err)

	_, err = condexpr.Parse("frame", cfg)
	var pe *condexpr.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, condexpr.KindReserved, pe.Kind)

	// Word operators still split from neighboring identifiers.
	_, err = condexpr.Parse("notok", cfg)
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, condexpr.KindUnknownVariable, pe.Kind)
}

func TestReadConfigOptions(t *testing.T) {
	cfg, err := condexpr.ReadConfig(strings.NewReader(wordsConfig), condexpr.Prec(32), condexpr.Var("y", condexpr.TypeNumber))
	require.NoError(t, err)
	assert.EqualValues(t, 32, cfg.Prec())
	assert.Equal(t, []string{"label", "ok", "x", "y"}, cfg.VarNames())
}

func TestReadConfigErrors(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{"unknown-field", "prec: 64\nbogus: 1\n"},
		{"bad-type", "vars:\n  x: matrix\n"},
		{"bad-op", "operators:\n  binary:\n    - {token: '+', op: frob, priority: 1}\n"},
		{"unary-binary", "operators:\n  unary:\n    - {token: '+', op: add}\n"},
		{"duplicate", "operators:\n  binary:\n    - {token: '+', op: add, priority: 1}\n    - {token: '+', op: sub, priority: 1}\n"},
		{"mixed-token", "operators:\n  binary:\n    - {token: 'a+', op: add, priority: 1}\n"},
		{"bad-constant", "constants:\n  l: [1, 2]\n"},
		{"reserved-var", "operators:\n  reserved: [x]\nvars:\n  x: number\n"},
		{"shadow", "vars:\n  pi: number\n"},
		{"syntax", "vars: [\n"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg, err := condexpr.ReadConfig(strings.NewReader(c.doc))
			assert.Error(t, err)
			assert.Nil(t, cfg)
		})
	}
}

func TestNewConfigErrors(t *testing.T) {
	cases := []struct {
		name string
		opts []condexpr.Option
	}{
		{"not-ident", []condexpr.Option{condexpr.Var("1x", condexpr.TypeNumber)}},
		{"no-type", []condexpr.Option{condexpr.Var("x", condexpr.TypeNone)}},
		{"true", []condexpr.Option{condexpr.Var("true", condexpr.TypeBool)}},
		{"shadow", []condexpr.Option{condexpr.Var("pi", condexpr.TypeNumber)}},
		{"const-ident", []condexpr.Option{condexpr.Constant("a b", condexpr.Float(1))}},
		{"const-empty", []condexpr.Option{condexpr.Constant("z", new(condexpr.Value))}},
		{"word-op", []condexpr.Option{
			condexpr.Operators(&condexpr.OperatorTable{
				Binary: []condexpr.Operator{{Token: "and", Op: condexpr.OpAnd, Priority: 1}},
			}),
			condexpr.Var("and", condexpr.TypeBool),
		}},
		{"empty-token", []condexpr.Option{condexpr.Operators(&condexpr.OperatorTable{
			Unary: []condexpr.Operator{{Op: condexpr.OpNeg}},
		})}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg, err := condexpr.NewConfig(c.opts...)
			assert.Error(t, err)
			assert.Nil(t, cfg)
		})
	}
}

func TestNewConfigErrorTypes(t *testing.T) {
	_, err := condexpr.NewConfig(condexpr.Var("pi", condexpr.TypeNumber))
	var ce *condexpr.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "pi", ce.Name)

	_, err = condexpr.NewConfig(condexpr.Operators(&condexpr.OperatorTable{
		Unary: []condexpr.Operator{{Token: "~", Op: condexpr.OpMul}},
	}))
	var oe *condexpr.OperatorTableError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, "~", oe.Token)
}

func TestNoDefaultConstants(t *testing.T) {
	cfg, err := condexpr.NewConfig(condexpr.NoDefaultConstants(), condexpr.Var("pi", condexpr.TypeNumber))
	require.NoError(t, err)
	e, err := condexpr.Parse("pi * 2", cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"pi"}, e.Vars())
	_, err = condexpr.Parse("e", cfg)
	assert.Error(t, err)
}

func TestConstants(t *testing.T) {
	cfg, err := condexpr.NewConfig(
		condexpr.Prec(200),
		condexpr.Constant("g", condexpr.Float(9.81)),
		condexpr.Constant("unit", condexpr.String("m/s")),
	)
	require.NoError(t, err)
	r, err := condexpr.EvalString(`g > 9 && unit == "m/s" && pi > 3.14159 && e < 2.72`, cfg, nil)
	require.NoError(t, err)
	assert.True(t, r.Bool())
	e := condexpr.MustParse("pi", cfg)
	var v condexpr.Value
	require.NoError(t, condexpr.Eval(e, nil, &v))
	assert.EqualValues(t, 200, v.Number().Prec())
}
