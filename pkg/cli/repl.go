package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/funvibe/duet/internal/backend"
	"github.com/funvibe/duet/internal/config"
	"github.com/funvibe/duet/internal/lexer"
	"github.com/funvibe/duet/internal/pipeline"
	"github.com/funvibe/duet/internal/token"
	"github.com/funvibe/duet/internal/value"
)

const (
	promptMain  = "duet> "
	promptCont  = "  ... "
	historyFile = ".duet_history"
)

// session accumulates the accepted entries of a REPL. Programs have no
// persistent heap, so each entry runs after a replay of the session; the
// replay's output was already shown and is skipped.
type session struct {
	cfg     config.Config
	backend backend.Backend
	source  strings.Builder
	shown   int
	advised int
}

func newSession(cfg config.Config) (*session, error) {
	b, err := backend.New(cfg.Engine)
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, backend: b}, nil
}

// eval runs entry after the session. On success the entry joins the
// session and ctx.Advisories holds only the entry's own advisories.
func (s *session) eval(entry string, out io.Writer) *pipeline.PipelineContext {
	program := s.source.String() + entry + "\n"
	ctx := pipeline.NewContext(program, s.cfg)
	var buf bytes.Buffer
	ctx.Out = &buf

	ctx = backend.Evaluate(ctx, s.backend)

	printed := buf.Bytes()
	if len(printed) > s.shown {
		out.Write(printed[s.shown:])
	}
	if !ctx.HasErrors() && ctx.Fault == nil {
		s.source.WriteString(entry + "\n")
		s.shown = len(printed)
		all := ctx.Advisories
		if s.advised <= len(all) {
			ctx.Advisories = all[s.advised:]
		}
		s.advised = len(all)
	}
	return ctx
}

// incomplete reports whether src still has open brackets.
func incomplete(src string) bool {
	depth := 0
	for _, tok := range lexer.New(src).Tokenize() {
		switch tok.Type {
		case token.LBRACE, token.LPAREN, token.LBRACKET:
			depth++
		case token.RBRACE, token.RPAREN, token.RBRACKET:
			depth--
		}
	}
	return depth > 0
}

func readEntry(ln *liner.State) (string, bool) {
	var b strings.Builder
	for {
		prompt := promptMain
		if b.Len() > 0 {
			prompt = promptCont
		}
		line, err := ln.Prompt(prompt)
		if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
			return "", false
		}
		if err != nil {
			return "", false
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
		if !incomplete(b.String()) {
			return b.String(), true
		}
	}
}

func cmdRepl(env *Env, args []string) int {
	fs, cf := newFlagSet(env, "repl")
	cfg, code, ok := parse(env, fs, cf, args)
	if !ok {
		return code
	}

	s, err := newSession(cfg)
	if err != nil {
		env.errorf("%s", err)
		return 2
	}

	fmt.Fprintf(env.Stdout, "duet %s (%s, %s). Type :quit to exit, :reset to clear the session.\n",
		Version, cfg.Engine, modeName(cfg.Debug))

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	for {
		entry, ok := readEntry(ln)
		if !ok {
			fmt.Fprintln(env.Stdout)
			return 0
		}
		trimmed := strings.TrimSpace(entry)
		switch {
		case trimmed == "":
			continue
		case trimmed == ":quit" || trimmed == ":q":
			return 0
		case trimmed == ":reset":
			s = &session{cfg: cfg, backend: s.backend}
			continue
		case strings.HasPrefix(trimmed, ":"):
			fmt.Fprintln(env.Stdout, "unknown command. Type :quit to exit.")
			continue
		}
		ln.AppendHistory(strings.ReplaceAll(entry, "\n", " "))

		ctx := s.eval(entry, env.Stdout)
		switch {
		case ctx.HasErrors():
			for _, err := range ctx.Errors {
				env.errorf("%s", err)
			}
		case ctx.Fault != nil:
			env.reportFault(ctx.Fault)
		default:
			env.reportAdvisories(ctx.Advisories)
			if _, isNull := ctx.Result.(value.Null); ctx.Result != nil && !isNull {
				fmt.Fprintln(env.Stdout, value.Display(ctx.Result))
			}
		}
	}
}
