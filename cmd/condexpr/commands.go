package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/goccy/go-yaml"
	"github.com/pkg/profile"

	"github.com/zephyrtronium/condexpr"
	"github.com/zephyrtronium/condexpr/internal/log"
)

var (
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	caretStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	hintStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	resultStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
)

type parseCmd struct {
	Expr     string   `arg:"" help:"Expression to parse."`
	Decl     []string `help:"Declare a variable, as name=type." short:"d" placeholder:"NAME=TYPE"`
	Simplify bool     `help:"Print the simplified tree." short:"s"`
}

func (c *parseCmd) Run(cli *CLI, out *output) error {
	var opts []condexpr.Option
	for _, d := range c.Decl {
		name, typ, ok := strings.Cut(d, "=")
		if !ok {
			return fmt.Errorf(`declarations must be "name=type", not %q`, d)
		}
		var t condexpr.Type
		if err := t.UnmarshalText([]byte(strings.TrimSpace(typ))); err != nil {
			return fmt.Errorf("declaring %s: %w", name, err)
		}
		opts = append(opts, condexpr.Var(strings.TrimSpace(name), t))
	}
	cfg, err := cli.config(opts...)
	if err != nil {
		return err
	}
	e, err := condexpr.Parse(c.Expr, cfg)
	if err != nil {
		diagnose(out.stderr, c.Expr, err)
		return fmt.Errorf("parse: %w", err)
	}
	if c.Simplify {
		e = e.Simplify()
	}
	fmt.Fprintln(out.stdout, e.String())
	fmt.Fprintln(out.stdout, hintStyle.Render("type: "+e.Type().String()))
	if vars := e.Vars(); len(vars) > 0 {
		fmt.Fprintln(out.stdout, hintStyle.Render("vars: "+strings.Join(vars, ", ")))
	}
	return nil
}

type evalCmd struct {
	Expr       string   `arg:"" help:"Expression to evaluate."`
	Var        []string `help:"Bind a variable, as name=value. The type follows from the value." short:"v" placeholder:"NAME=VALUE"`
	Simplify   bool     `help:"Simplify before evaluating." short:"s"`
	Repeat     int      `help:"Evaluate this many times, reusing storage." default:"1" short:"n"`
	Profile    string   `help:"Profile the evaluation." enum:",cpu,mem,alloc,trace" default:""`
	ProfileDir string   `help:"Profile output directory." type:"path" default:"."`
}

func (c *evalCmd) Run(cli *CLI, out *output) error {
	defs := make(map[string]string, len(c.Var))
	var opts []condexpr.Option
	for _, d := range c.Var {
		name, val, ok := strings.Cut(d, "=")
		if !ok {
			return fmt.Errorf(`variable definitions must be "name=value", not %q`, d)
		}
		name = strings.TrimSpace(name)
		defs[name] = strings.TrimSpace(val)
		opts = append(opts, condexpr.Var(name, literal(defs[name], 0).Type()))
	}
	cfg, err := cli.config(opts...)
	if err != nil {
		return err
	}
	// Values are read again at the configured precision.
	vars := make(condexpr.Bindings, len(defs))
	for name, val := range defs {
		vars[name] = literal(val, cfg.Prec())
	}
	e, err := condexpr.Parse(c.Expr, cfg)
	if err != nil {
		diagnose(out.stderr, c.Expr, err)
		return fmt.Errorf("parse: %w", err)
	}
	if c.Simplify {
		e = e.Simplify()
	}

	n := max(c.Repeat, 1)
	if c.Profile != "" {
		if n == 1 {
			log.Warn("profiling a single evaluation; use -n to repeat it", slog.String("profile", c.Profile))
		}
		log.Info("profiling", slog.String("profile", c.Profile), slog.String("dir", c.ProfileDir), slog.Int("repeat", n))
		defer profile.Start(profileMode(c.Profile), profile.ProfilePath(c.ProfileDir), profile.Quiet).Stop()
	}
	ev := condexpr.NewEvaluator(cfg.Prec())
	var r condexpr.Value
	start := time.Now()
	for range n {
		if err := ev.Eval(e, vars, &r); err != nil {
			fmt.Fprintln(out.stderr, errorStyle.Render(err.Error()))
			return fmt.Errorf("eval: %w", err)
		}
	}
	elapsed := time.Since(start)
	log.Debug("evaluated",
		slog.Int("repeat", n),
		slog.Duration("elapsed", elapsed),
		slog.Duration("per_eval", elapsed/time.Duration(n)),
	)
	fmt.Fprintln(out.stdout, resultStyle.Render(r.String()))
	return nil
}

// literal interprets a command-line value: true and false are booleans,
// anything that parses as a number is a number, and everything else is a
// string, with surrounding double quotes removed.
func literal(s string, prec uint) *condexpr.Value {
	switch s {
	case "true":
		return condexpr.Bool(true)
	case "false":
		return condexpr.Bool(false)
	}
	if prec == 0 {
		prec = condexpr.DefaultPrec
	}
	if x, _, err := new(big.Float).SetPrec(prec).Parse(s, 10); err == nil {
		return condexpr.Number(x)
	}
	if u, err := strconv.Unquote(s); err == nil && strings.HasPrefix(s, `"`) {
		return condexpr.String(u)
	}
	return condexpr.String(s)
}

func profileMode(mode string) func(*profile.Profile) {
	switch mode {
	case "mem":
		return profile.MemProfile
	case "alloc":
		return profile.MemProfileAllocs
	case "trace":
		return profile.TraceProfile
	default:
		return profile.CPUProfile
	}
}

type opsCmd struct{}

// opsDoc is the document printed by the ops command. It has the layout
// that condexpr.ReadConfig reads.
type opsDoc struct {
	Prec      uint                     `yaml:"prec"`
	Operators *condexpr.OperatorTable  `yaml:"operators"`
	Vars      map[string]condexpr.Type `yaml:"vars,omitempty"`
}

func (c *opsCmd) Run(cli *CLI, out *output) error {
	cfg, err := cli.config()
	if err != nil {
		return err
	}
	doc := opsDoc{Prec: cfg.Prec(), Operators: cfg.Operators()}
	if names := cfg.VarNames(); len(names) > 0 {
		doc.Vars = make(map[string]condexpr.Type, len(names))
		for _, name := range names {
			doc.Vars[name] = cfg.VarType(name)
		}
	}
	b, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	if _, err := out.stdout.Write(b); err != nil {
		return err
	}
	fmt.Fprintln(out.stdout, "# functions:")
	reg := cfg.Funcs()
	for _, name := range reg.Names() {
		for _, f := range reg.Lookup(name) {
			fmt.Fprintln(out.stdout, "#   "+f.String())
		}
	}
	return nil
}

// diagnose prints a parse error with a caret under the column where it was
// detected.
func diagnose(w io.Writer, src string, err error) {
	var ie condexpr.InputError
	if !errors.As(err, &ie) {
		fmt.Fprintln(w, errorStyle.Render(err.Error()))
		return
	}
	runes := []rune(src)
	col := min(max(ie.Pos(), 1), len(runes)+1)
	pad := lipgloss.Width(string(runes[:col-1]))
	fmt.Fprintln(w, "  "+src)
	fmt.Fprintln(w, "  "+strings.Repeat(" ", pad)+caretStyle.Render("^"))
	fmt.Fprintln(w, errorStyle.Render(err.Error()))
}
