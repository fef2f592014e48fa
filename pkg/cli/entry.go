// Package cli implements the duet command.
package cli

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/mattn/go-isatty"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/funvibe/duet/internal/config"
	"github.com/funvibe/duet/internal/diagnostics"
	"github.com/funvibe/duet/internal/pipeline"
	"github.com/funvibe/duet/internal/utils"
)

var log = commonlog.GetLogger("duet.cli")

// Version is reported by `duet version`.
// Can be set at build time using: -ldflags "-X github.com/funvibe/duet/pkg/cli.Version=..."
var Version = "0.1.0"

// Env is the process environment a command runs against.
type Env struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	// Color enables ANSI colors on Stderr.
	Color bool
}

type command struct {
	usage string
	help  string
	run   func(env *Env, args []string) int
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"run":     {"run [flags] <file>", "evaluate a source file", cmdRun},
		"repl":    {"repl [flags]", "interactive session", cmdRepl},
		"disasm":  {"disasm [flags] <file>", "print the bytecode listing of a source file", cmdDisasm},
		"compile": {"compile [flags] [-o out] <file>", "write a validated bytecode bundle (" + config.BundleFileExt + ")", cmdCompile},
		"exec":    {"exec [flags] <bundle>", "validate and run a bytecode bundle", cmdExec},
		"parity":  {"parity [flags] <file|corpus.txtar>", "run programs on both engines and compare", cmdParity},
		"serve":   {"serve [flags] [-listen addr]", "serve the gRPC evaluation service", cmdServe},
		"history": {"history [flags] [-n count]", "list recent journaled evaluations", cmdHistory},
		"fmt":     {"fmt [-w] <file>...", "print (or rewrite) files in canonical form", cmdFmt},
		"version": {"version", "print the version", cmdVersion},
	}
}

// Run executes the command line args against the process streams and
// returns the exit code.
func Run(args []string) int {
	env := &Env{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Color:  isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()),
	}
	return env.Main(args)
}

// Main dispatches args to a subcommand.
func (env *Env) Main(args []string) int {
	if len(args) == 0 {
		env.usage()
		return 2
	}
	name := args[0]
	switch name {
	case "-h", "-help", "--help", "help":
		env.usage()
		return 0
	case "-v", "-version", "--version":
		name = "version"
	}
	cmd, ok := commands[name]
	if !ok {
		// A bare source file runs it.
		if utils.HasSourceExt(name) {
			return cmdRun(env, args)
		}
		fmt.Fprintf(env.Stderr, "unknown command %q\n\n", name)
		env.usage()
		return 2
	}
	return cmd.run(env, args[1:])
}

func (env *Env) usage() {
	fmt.Fprintln(env.Stderr, "usage: duet <command> [flags] [args]")
	fmt.Fprintln(env.Stderr)
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(env.Stderr, "  %-36s %s\n", commands[name].usage, commands[name].help)
	}
}

// commonFlags are accepted by every command that evaluates code.
type commonFlags struct {
	configPath string
	debug      bool
	engine     string
	journal    string
	verbosity  int
}

func newFlagSet(env *Env, name string) (*flag.FlagSet, *commonFlags) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(env.Stderr)
	cf := &commonFlags{verbosity: -1}
	fs.StringVar(&cf.configPath, "config", "", "configuration file (default: duet.yaml/duet.toml found upwards)")
	fs.BoolVar(&cf.debug, "debug", false, "enable ownership enforcement")
	fs.StringVar(&cf.engine, "engine", "", "engine: vm or tree-walk")
	fs.StringVar(&cf.journal, "journal", "", "record evaluations to this sqlite file")
	fs.IntVar(&cf.verbosity, "v", -1, "log verbosity (0 quiet .. 4 debug)")
	return fs, cf
}

// load resolves the configuration: file first, then flags.
func (cf *commonFlags) load() (config.Config, error) {
	path := cf.configPath
	if path == "" {
		found, err := config.Find(".")
		if err != nil {
			return config.Config{}, err
		}
		path = found
	}

	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	if cf.debug {
		cfg.Debug = true
	}
	if cf.engine != "" {
		cfg.Engine = cf.engine
	}
	if cf.journal != "" {
		cfg.Journal = cf.journal
	}
	if cf.verbosity >= 0 {
		cfg.LogVerbosity = cf.verbosity
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}

	commonlog.Configure(cfg.LogVerbosity, nil)
	if path != "" {
		log.Debugf("configuration loaded from %s", path)
	}
	return cfg, nil
}

// parse parses args and loads the configuration. ok is false when the
// command should exit with code.
func parse(env *Env, fs *flag.FlagSet, cf *commonFlags, args []string) (cfg config.Config, code int, ok bool) {
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return cfg, 0, false
		}
		return cfg, 2, false
	}
	cfg, err := cf.load()
	if err != nil {
		env.errorf("%s", err)
		return cfg, 2, false
	}
	return cfg, 0, true
}

// readSource reads a program file into a fresh pipeline context.
func readSource(path string, cfg config.Config) (*pipeline.PipelineContext, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading source file: %w", err)
	}
	ctx := pipeline.NewContext(string(src), cfg)
	if abs, err := filepath.Abs(path); err == nil {
		ctx.FilePath = abs
	} else {
		ctx.FilePath = path
	}
	return ctx, nil
}

const (
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorReset  = "\033[0m"
)

func (env *Env) paint(color, s string) string {
	if !env.Color {
		return s
	}
	return color + s + colorReset
}

func (env *Env) errorf(format string, args ...any) {
	fmt.Fprintln(env.Stderr, env.paint(colorRed, fmt.Sprintf(format, args...)))
}

// reportFrontend prints frontend diagnostics.
func (env *Env) reportFrontend(ctx *pipeline.PipelineContext) {
	env.errorf("Processing failed with errors:")
	for _, err := range ctx.Errors {
		fmt.Fprintf(env.Stderr, "- %s\n", err.Error())
	}
}

// reportFault prints a runtime fault with its location and trace.
func (env *Env) reportFault(err error) {
	if rt, ok := diagnostics.AsRuntime(err); ok {
		env.errorf("%s", rt.Format())
		return
	}
	env.errorf("Runtime error: %s", err)
}

func (env *Env) reportAdvisories(advs []diagnostics.Advisory) {
	for _, a := range advs {
		fmt.Fprintln(env.Stderr, env.paint(colorYellow, a.String()))
	}
}
