package condexpr

import (
	"fmt"
	"io"
	"maps"
	"math/big"
	"slices"
	"strconv"

	"github.com/goccy/go-yaml"
	"github.com/zephyrtronium/bigfloat"

	"github.com/zephyrtronium/condexpr/internal/log"
)

// DefaultPrec is the precision in bits of numeric literals and constants when
// no Prec option is given.
const DefaultPrec = 64

// Config is a language configuration: the operators, reserved words,
// functions, variables, and constants available to parsed expressions. A
// Config is immutable once created and is safe to share between goroutines.
type Config struct {
	ops    OperatorTable
	unary  map[string]Operator
	binary map[string]Operator
	// punct is the list of symbolic operator tokens, longest first, so that
	// the lexer always takes the longest match.
	punct    []string
	words    map[string]bool
	reserved map[string]bool
	funcs    *Registry
	vars     map[string]Type
	consts   map[string]*Value
	prec     uint
	logger   log.Logger
}

// Option is an option for creating a Config.
type Option interface {
	configure(*settings)
}

// settings accumulates options before a Config is built.
type settings struct {
	ops      *OperatorTable
	funcs    *Registry
	vars     map[string]Type
	consts   map[string]*Value
	prec     uint
	logger   *log.Logger
	noconsts bool
}

type (
	opsopt   struct{ t *OperatorTable }
	funcsopt struct{ r *Registry }
	varopt   struct {
		name string
		typ  Type
	}
	varsopt  map[string]Type
	constopt struct {
		name string
		val  *Value
	}
	precopt   uint
	loggeropt struct{ l log.Logger }
	noconsts  struct{}
)

// Operators sets the operator table. The default is DefaultOperators().
func Operators(t *OperatorTable) Option {
	return opsopt{t}
}

func (o opsopt) configure(s *settings) { s.ops = o.t }

// Funcs sets the function registry. The default is DefaultFuncs(). Pass an
// empty registry to disable function calls.
func Funcs(r *Registry) Option {
	return funcsopt{r}
}

func (o funcsopt) configure(s *settings) { s.funcs = o.r }

// Var declares a variable and its type.
func Var(name string, typ Type) Option {
	return varopt{name, typ}
}

func (o varopt) configure(s *settings) {
	if s.vars == nil {
		s.vars = make(map[string]Type)
	}
	s.vars[o.name] = o.typ
}

// Vars declares any number of variables.
func Vars(vars map[string]Type) Option {
	return varsopt(vars)
}

func (o varsopt) configure(s *settings) {
	if s.vars == nil {
		// Always make a copy.
		s.vars = make(map[string]Type, len(o))
	}
	maps.Copy(s.vars, o)
}

// Constant defines a named constant, which parses as its value.
func Constant(name string, val *Value) Option {
	return constopt{name, val}
}

func (o constopt) configure(s *settings) {
	if s.consts == nil {
		s.consts = make(map[string]*Value)
	}
	s.consts[o.name] = new(Value).Set(o.val)
}

// NoDefaultConstants disables the constants pi and e.
func NoDefaultConstants() Option {
	return noconsts{}
}

func (noconsts) configure(s *settings) { s.noconsts = true }

// Prec sets the precision of numeric literals and constants.
func Prec(prec uint) Option {
	return precopt(prec)
}

func (o precopt) configure(s *settings) { s.prec = uint(o) }

// Logger sets the logger that receives parse traces. The default is the
// package logger of condexpr's internal log package.
func Logger(l log.Logger) Option {
	return loggeropt{l}
}

func (o loggeropt) configure(s *settings) { s.logger = &o.l }

// NewConfig creates a language configuration. The options are applied in
// order.
func NewConfig(opts ...Option) (*Config, error) {
	var s settings
	for _, opt := range opts {
		if opt != nil {
			opt.configure(&s)
		}
	}
	return s.build()
}

// DefaultConfig returns a configuration with the default operators,
// functions, and constants and no variables.
func DefaultConfig() *Config {
	cfg, err := NewConfig()
	if err != nil {
		panic("condexpr: invalid default config: " + err.Error())
	}
	return cfg
}

func (s *settings) build() (*Config, error) {
	cfg := Config{
		funcs:  s.funcs,
		prec:   s.prec,
		logger: log.Default(),
	}
	if s.ops == nil {
		s.ops = DefaultOperators()
	}
	if err := s.ops.Validate(); err != nil {
		return nil, err
	}
	cfg.ops = OperatorTable{
		Unary:    slices.Clone(s.ops.Unary),
		Binary:   slices.Clone(s.ops.Binary),
		Reserved: slices.Clone(s.ops.Reserved),
	}
	if cfg.funcs == nil {
		cfg.funcs = DefaultFuncs()
	}
	if cfg.prec == 0 {
		cfg.prec = DefaultPrec
	}
	if s.logger != nil {
		cfg.logger = *s.logger
	}

	cfg.unary = make(map[string]Operator, len(cfg.ops.Unary))
	cfg.binary = make(map[string]Operator, len(cfg.ops.Binary))
	cfg.words = make(map[string]bool)
	cfg.reserved = map[string]bool{"true": true, "false": true}
	punct := make(map[string]bool)
	for _, o := range cfg.ops.Unary {
		o.Priority, o.Right = unaryPriority, true
		cfg.unary[o.Token] = o
	}
	for _, o := range cfg.ops.Binary {
		cfg.binary[o.Token] = o
	}
	for _, o := range slices.Concat(cfg.ops.Unary, cfg.ops.Binary) {
		if isword(o.Token) {
			cfg.words[o.Token] = true
		} else {
			punct[o.Token] = true
		}
	}
	cfg.punct = slices.SortedFunc(maps.Keys(punct), func(a, b string) int {
		if len(a) != len(b) {
			return len(b) - len(a)
		}
		if a < b {
			return -1
		}
		if a > b {
			return 1
		}
		return 0
	})
	for _, w := range cfg.ops.Reserved {
		cfg.reserved[w] = true
	}

	cfg.consts = make(map[string]*Value, len(s.consts)+2)
	if !s.noconsts {
		cfg.consts["pi"] = Number(bigfloat.Pi(new(big.Float).SetPrec(cfg.prec)))
		one := new(big.Float).SetPrec(cfg.prec).SetInt64(1)
		cfg.consts["e"] = Number(bigfloat.Exp(new(big.Float).SetPrec(cfg.prec), one))
	}
	maps.Copy(cfg.consts, s.consts)
	cfg.vars = maps.Clone(s.vars)
	if cfg.vars == nil {
		cfg.vars = make(map[string]Type)
	}

	for name, typ := range cfg.vars {
		switch {
		case !isword(name):
			return nil, &ConfigError{Name: name, Reason: "variable name is not an identifier"}
		case cfg.reserved[name], cfg.words[name]:
			return nil, &ConfigError{Name: name, Reason: "variable name is reserved"}
		case typ == TypeNone:
			return nil, &ConfigError{Name: name, Reason: "variable has no type"}
		}
		if _, ok := cfg.consts[name]; ok {
			return nil, &ConfigError{Name: name, Reason: "variable shadows a constant"}
		}
	}
	for name, v := range cfg.consts {
		switch {
		case !isword(name):
			return nil, &ConfigError{Name: name, Reason: "constant name is not an identifier"}
		case cfg.reserved[name], cfg.words[name]:
			return nil, &ConfigError{Name: name, Reason: "constant name is reserved"}
		case v.Type() == TypeNone:
			return nil, &ConfigError{Name: name, Reason: "constant has no value"}
		}
	}
	return &cfg, nil
}

// Operators returns a copy of the operator table in use.
func (cfg *Config) Operators() *OperatorTable {
	return &OperatorTable{
		Unary:    slices.Clone(cfg.ops.Unary),
		Binary:   slices.Clone(cfg.ops.Binary),
		Reserved: slices.Clone(cfg.ops.Reserved),
	}
}

// Funcs returns the function registry.
func (cfg *Config) Funcs() *Registry {
	return cfg.funcs
}

// VarType returns the declared type of a variable, or TypeNone if it is not
// declared.
func (cfg *Config) VarType(name string) Type {
	return cfg.vars[name]
}

// VarNames returns the declared variable names in sorted order.
func (cfg *Config) VarNames() []string {
	return slices.Sorted(maps.Keys(cfg.vars))
}

// Prec returns the precision of numeric literals and constants.
func (cfg *Config) Prec() uint {
	return cfg.prec
}

// fileConfig is the YAML document read by ReadConfig.
type fileConfig struct {
	Prec      uint            `yaml:"prec"`
	Operators *OperatorTable  `yaml:"operators"`
	Vars      map[string]Type `yaml:"vars"`
	Constants map[string]any  `yaml:"constants"`
}

// ReadConfig reads a YAML language configuration and creates a Config from
// it. The document may contain the keys prec, operators (with unary, binary,
// and reserved lists), vars (a map from names to type names), and constants
// (a map from names to scalars). The given options are applied after the
// file's settings, so they take precedence.
func ReadConfig(r io.Reader, opts ...Option) (*Config, error) {
	var f fileConfig
	dec := yaml.NewDecoder(r, yaml.DisallowUnknownField())
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var fopts []Option
	if f.Prec != 0 {
		fopts = append(fopts, Prec(f.Prec))
	}
	if f.Operators != nil {
		fopts = append(fopts, Operators(f.Operators))
	}
	if f.Vars != nil {
		fopts = append(fopts, Vars(f.Vars))
	}
	for _, name := range slices.Sorted(maps.Keys(f.Constants)) {
		v, err := scalar(f.Constants[name])
		if err != nil {
			return nil, &ConfigError{Name: name, Reason: err.Error()}
		}
		fopts = append(fopts, Constant(name, v))
	}
	return NewConfig(append(fopts, opts...)...)
}

// scalar converts a decoded YAML scalar into a Value.
func scalar(x any) (*Value, error) {
	switch x := x.(type) {
	case bool:
		return Bool(x), nil
	case string:
		return String(x), nil
	case int:
		return Number(new(big.Float).SetInt64(int64(x))), nil
	case int64:
		return Number(new(big.Float).SetInt64(x)), nil
	case uint64:
		return Number(new(big.Float).SetUint64(x)), nil
	case float64:
		return Float(x), nil
	default:
		return nil, fmt.Errorf("unsupported constant value %v (%T)", x, x)
	}
}

// ConfigError describes an invalid variable or constant declaration.
type ConfigError struct {
	Name   string
	Reason string
}

func (err *ConfigError) Error() string {
	return strconv.Quote(err.Name) + ": " + err.Reason
}
