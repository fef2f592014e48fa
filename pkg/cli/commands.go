package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/funvibe/duet/internal/backend"
	"github.com/funvibe/duet/internal/config"
	"github.com/funvibe/duet/internal/diagnostics"
	"github.com/funvibe/duet/internal/journal"
	"github.com/funvibe/duet/internal/pipeline"
	"github.com/funvibe/duet/internal/prettyprinter"
	"github.com/funvibe/duet/internal/server"
	"github.com/funvibe/duet/internal/utils"
	"github.com/funvibe/duet/internal/value"
	"github.com/funvibe/duet/internal/vm"
)

func cmdVersion(env *Env, _ []string) int {
	fmt.Fprintln(env.Stdout, "duet "+Version)
	return 0
}

// openJournal opens the configured journal; nil when journaling is off.
func openJournal(cfg config.Config) (*journal.Journal, error) {
	if cfg.Journal == "" {
		return nil, nil
	}
	return journal.Open(cfg.Journal)
}

// finish reports the outcome of an executed context and returns the exit code.
func (env *Env) finish(ctx *pipeline.PipelineContext) int {
	if ctx.HasErrors() {
		env.reportFrontend(ctx)
		return 1
	}
	env.reportAdvisories(ctx.Advisories)
	if ctx.Fault != nil {
		env.reportFault(ctx.Fault)
		return 1
	}
	if ctx.Result != nil {
		if _, isNull := ctx.Result.(value.Null); !isNull {
			fmt.Fprintln(env.Stdout, value.Display(ctx.Result))
		}
	}
	return 0
}

func cmdRun(env *Env, args []string) int {
	fs, cf := newFlagSet(env, "run")
	cfg, code, ok := parse(env, fs, cf, args)
	if !ok {
		return code
	}
	if fs.NArg() != 1 {
		env.errorf("usage: duet %s", commands["run"].usage)
		return 2
	}

	ctx, err := readSource(fs.Arg(0), cfg)
	if err != nil {
		env.errorf("Error: %s", err)
		return 1
	}
	ctx.Out = env.Stdout

	b, err := backend.New(cfg.Engine)
	if err != nil {
		env.errorf("%s", err)
		return 2
	}
	j, err := openJournal(cfg)
	if err != nil {
		env.errorf("%s", err)
		return 1
	}
	if j != nil {
		defer j.Close()
	}

	processingPipeline := pipeline.New(
		backend.Frontend(),
		backend.NewExecutionProcessor(b),
		&journal.Processor{Journal: j},
	)
	return env.finish(processingPipeline.Run(ctx))
}

func cmdDisasm(env *Env, args []string) int {
	fs, cf := newFlagSet(env, "disasm")
	cfg, code, ok := parse(env, fs, cf, args)
	if !ok {
		return code
	}
	if fs.NArg() != 1 {
		env.errorf("usage: duet %s", commands["disasm"].usage)
		return 2
	}
	ctx, err := readSource(fs.Arg(0), cfg)
	if err != nil {
		env.errorf("Error: %s", err)
		return 1
	}
	ctx = backend.Prepare(ctx)
	if ctx.HasErrors() {
		env.reportFrontend(ctx)
		return 1
	}
	listing, err := backend.NewVM().Disassemble(ctx)
	if err != nil {
		env.errorf("%s", err)
		return 1
	}
	fmt.Fprint(env.Stdout, listing)
	return 0
}

// cmdCompile compiles a source file to a bytecode bundle.
func cmdCompile(env *Env, args []string) int {
	fs, cf := newFlagSet(env, "compile")
	output := fs.String("o", "", "output path (default: source path with "+config.BundleFileExt+")")
	cfg, code, ok := parse(env, fs, cf, args)
	if !ok {
		return code
	}
	if fs.NArg() != 1 {
		env.errorf("usage: duet %s", commands["compile"].usage)
		return 2
	}
	sourcePath := fs.Arg(0)

	ctx, err := readSource(sourcePath, cfg)
	if err != nil {
		env.errorf("Error: %s", err)
		return 1
	}
	ctx = backend.Prepare(ctx)
	if ctx.HasErrors() {
		env.reportFrontend(ctx)
		return 1
	}
	chunk, err := backend.NewVM().Compile(ctx)
	if err != nil {
		env.errorf("Compilation error: %s", err)
		return 1
	}
	data, err := vm.Serialize(chunk)
	if err != nil {
		env.errorf("Serialization error: %s", err)
		return 1
	}

	outputPath := *output
	if outputPath == "" {
		outputPath = utils.BundlePath(sourcePath)
	}
	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		env.errorf("Error writing bytecode file: %s", err)
		return 1
	}
	mode := "release"
	if chunk.Debug {
		mode = "debug"
	}
	fmt.Fprintf(env.Stdout, "Compiled %s -> %s (%d bytes, %s)\n", sourcePath, outputPath, len(data), mode)
	return 0
}

// cmdExec runs a bundle. The build mode is the one it was compiled with.
func cmdExec(env *Env, args []string) int {
	fs, cf := newFlagSet(env, "exec")
	cfg, code, ok := parse(env, fs, cf, args)
	if !ok {
		return code
	}
	if fs.NArg() != 1 {
		env.errorf("usage: duet %s", commands["exec"].usage)
		return 2
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		env.errorf("Error reading bundle: %s", err)
		return 1
	}
	chunk, err := vm.Deserialize(data)
	if err != nil {
		env.errorf("Error loading bundle %s: %s", fs.Arg(0), err)
		return 1
	}

	cfg.Debug = chunk.Debug
	ctx := pipeline.NewContext("", cfg)
	ctx.FilePath = chunk.File
	ctx.Out = env.Stdout
	res, err := backend.NewVM().Execute(ctx, chunk)
	if err != nil {
		var vf *vm.ValidationFailure
		if errors.As(err, &vf) {
			env.errorf("Bundle rejected: %s", err)
			return 1
		}
		ctx.Fault = err
	} else {
		ctx.Result = res.Value
		ctx.Advisories = res.Advisories
	}
	return env.finish(ctx)
}

func cmdParity(env *Env, args []string) int {
	fs, cf := newFlagSet(env, "parity")
	both := fs.Bool("both", false, "run a single file in release and debug mode")
	cfg, code, ok := parse(env, fs, cf, args)
	if !ok {
		return code
	}
	if fs.NArg() != 1 {
		env.errorf("usage: duet %s", commands["parity"].usage)
		return 2
	}
	path := fs.Arg(0)

	if strings.HasSuffix(path, ".txtar") {
		return env.parityCorpus(path, cfg)
	}

	modes := []bool{cfg.Debug}
	if *both {
		modes = []bool{false, true}
	}
	exit := 0
	for _, debug := range modes {
		modeCfg := cfg
		modeCfg.Debug = debug
		ctx, err := readSource(path, modeCfg)
		if err != nil {
			env.errorf("Error: %s", err)
			return 1
		}
		report, err := backend.Compare(ctx)
		if err != nil {
			var diags diagnostics.Errors
			if errors.As(err, &diags) {
				ctx.Errors = diags
				env.reportFrontend(ctx)
			} else {
				env.errorf("%s", err)
			}
			return 1
		}
		fmt.Fprintf(env.Stdout, "%s [%s]: %s\n", utils.ExtractModuleName(path), modeName(debug), report)
		if !report.Match() {
			exit = 1
		}
	}
	return exit
}

func (env *Env) parityCorpus(path string, cfg config.Config) int {
	ar, err := backend.LoadCorpus(path)
	if err != nil {
		env.errorf("%s", err)
		return 1
	}
	failed := 0
	cases := backend.RunCorpus(context.Background(), ar, cfg)
	for _, c := range cases {
		failures := c.Failures()
		if len(failures) == 0 {
			fmt.Fprintf(env.Stdout, "ok   %s [%s]\n", c.Name, c.Mode())
			continue
		}
		failed++
		fmt.Fprintf(env.Stdout, "FAIL %s [%s]\n", c.Name, c.Mode())
		for _, f := range failures {
			fmt.Fprintf(env.Stdout, "     %s\n", f)
		}
	}
	fmt.Fprintf(env.Stdout, "%d/%d cases passed\n", len(cases)-failed, len(cases))
	if failed > 0 {
		return 1
	}
	return 0
}

func modeName(debug bool) string {
	if debug {
		return "debug"
	}
	return "release"
}

func cmdServe(env *Env, args []string) int {
	fs, cf := newFlagSet(env, "serve")
	listen := fs.String("listen", "", "address to listen on (default from config, "+config.DefaultListen+")")
	cfg, code, ok := parse(env, fs, cf, args)
	if !ok {
		return code
	}
	if *listen != "" {
		cfg.Listen = *listen
	}

	j, err := openJournal(cfg)
	if err != nil {
		env.errorf("%s", err)
		return 1
	}
	if j != nil {
		defer j.Close()
	}

	srv, err := server.New(cfg, j)
	if err != nil {
		env.errorf("%s", err)
		return 1
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigc)
	go func() {
		<-sigc
		log.Infof("shutting down")
		srv.Stop()
	}()

	fmt.Fprintf(env.Stderr, "serving %s on %s\n", server.ServiceName, cfg.Listen)
	if err := srv.ListenAndServe(cfg.Listen); err != nil {
		env.errorf("%s", err)
		return 1
	}
	return 0
}

func cmdHistory(env *Env, args []string) int {
	fs, cf := newFlagSet(env, "history")
	limit := fs.Int("n", 20, "number of entries")
	cfg, code, ok := parse(env, fs, cf, args)
	if !ok {
		return code
	}
	if cfg.Journal == "" {
		env.errorf("no journal configured (use -journal or the journal config key)")
		return 2
	}
	j, err := journal.Open(cfg.Journal)
	if err != nil {
		env.errorf("%s", err)
		return 1
	}
	defer j.Close()

	entries, err := j.Recent(context.Background(), *limit)
	if err != nil {
		env.errorf("%s", err)
		return 1
	}
	for _, e := range entries {
		outcome := e.Result
		if e.Failed() {
			outcome = "error: " + e.Fault
		}
		fmt.Fprintf(env.Stdout, "%s  %s  %-9s %-7s %s  %s\n",
			e.Created.Format(time.RFC3339), e.ID, e.Engine, modeName(e.Debug), displayFile(e.File), outcome)
	}
	return 0
}

func displayFile(path string) string {
	if path == "" {
		return "-"
	}
	return filepath.Base(path)
}

// cmdFmt formats source files. The formatter drops comments, so -w refuses
// files that contain any.
func cmdFmt(env *Env, args []string) int {
	fs := flag.NewFlagSet("fmt", flag.ContinueOnError)
	fs.SetOutput(env.Stderr)
	write := fs.Bool("w", false, "write the result back to the file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		env.errorf("usage: duet %s", commands["fmt"].usage)
		return 2
	}

	exit := 0
	for _, path := range fs.Args() {
		src, err := os.ReadFile(path)
		if err != nil {
			env.errorf("Error: %s", err)
			exit = 1
			continue
		}
		formatted, err := prettyprinter.FormatSource(string(src), path)
		if err != nil {
			env.errorf("%s", err)
			exit = 1
			continue
		}
		if !*write {
			fmt.Fprint(env.Stdout, formatted)
			continue
		}
		if strings.Contains(string(src), "//") {
			env.errorf("%s: contains comments, which fmt would drop; not rewritten", path)
			exit = 1
			continue
		}
		if formatted == string(src) {
			continue
		}
		if err := os.WriteFile(path, []byte(formatted), 0o644); err != nil {
			env.errorf("Error: %s", err)
			exit = 1
		}
	}
	return exit
}
