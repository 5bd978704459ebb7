package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"github.com/zephyrtronium/condexpr"
	"github.com/zephyrtronium/condexpr/internal/log"
)

// CLI is the top-level command-line interface.
type CLI struct {
	Log logConfig `embed:"" group:"log" prefix:"log-"`

	Config string `help:"YAML language configuration file." short:"c" type:"existingfile"`
	Prec   uint   `help:"Precision of numbers in bits. Overrides the configuration file."`

	Parse parseCmd `cmd:"" help:"Parse an expression and print its tree."`
	Eval  evalCmd  `cmd:"" help:"Evaluate an expression." default:"withargs"`
	Ops   opsCmd   `cmd:"" help:"Print the operators, functions, and variables in effect as YAML."`
}

// output holds the writers commands print to.
type output struct {
	stdout io.Writer
	stderr io.Writer
}

func run(stdout, stderr io.Writer, exit func(int), args ...string) error {
	var cli CLI
	out := output{stdout: stdout, stderr: stderr}
	parser, err := kong.New(&cli,
		kong.Name("condexpr"),
		kong.Description("Parse and evaluate typed condition expressions."),
		kong.UsageOnError(),
		kong.Exit(exit),
		kong.Writers(stdout, stderr),
		kong.ExplicitGroups([]kong.Group{cli.Log.group()}),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true, Summary: true}),
	)
	if err != nil {
		return err
	}
	ktx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	defer cli.Log.start()()
	return ktx.Run(&cli, &out)
}

// config builds the language configuration from the configuration file, if
// any, followed by opts.
func (c *CLI) config(opts ...condexpr.Option) (*condexpr.Config, error) {
	opts = append([]condexpr.Option{condexpr.Logger(log.Default())}, opts...)
	if c.Prec != 0 {
		opts = append(opts, condexpr.Prec(c.Prec))
	}
	if c.Config == "" {
		return condexpr.NewConfig(opts...)
	}
	f, err := os.Open(c.Config)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	cfg, err := condexpr.ReadConfig(f, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.Config, err)
	}
	log.Debug("loaded config", slog.String("file", c.Config), slog.Any("vars", cfg.VarNames()))
	return cfg, nil
}

// logLevel configures the logger level as a side effect of parsing, so that
// the level applies to messages during flag parsing.
type logLevel string

func (l *logLevel) UnmarshalText(text []byte) error {
	*l = logLevel(text)
	log.Config(log.WithLevel(log.ParseLevel(string(*l))))
	return nil
}

type logFormat string

func (f *logFormat) UnmarshalText(text []byte) error {
	*f = logFormat(text)
	log.Config(log.WithFormat(log.ParseFormat(string(*f))))
	return nil
}

type logConfig struct {
	Level  logLevel  `default:"warn" enum:"trace,debug,info,warn,error" help:"Set log level."`
	Format logFormat `default:"text" enum:"json,text"                   help:"Set log format."`
	Caller bool      `help:"Include caller information." negatable:""`
	File   string    `help:"Also write logs to a rotating file."       type:"path"`
	FileMB int       `help:"Rotate the log file at this size in MB."   default:"10" name:"file-mb"`
}

func (*logConfig) group() kong.Group {
	return kong.Group{Key: "log", Title: "Logging options"}
}

// start applies the logging options and returns a function to release the
// log file.
func (f *logConfig) start() (stop func()) {
	opts := []log.Option{
		log.WithLevel(log.ParseLevel(string(f.Level))),
		log.WithFormat(log.ParseFormat(string(f.Format))),
		log.WithCaller(f.Caller),
		log.WithFile(f.File, f.FileMB),
	}
	log.Config(opts...)
	log.Debug("logger initialized",
		slog.String("level", string(f.Level)),
		slog.String("format", string(f.Format)),
		slog.String("file", f.File),
	)
	return func() { log.Default().Close() }
}
