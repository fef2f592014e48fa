package backend

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/tools/txtar"

	"github.com/funvibe/duet/internal/config"
	"github.com/funvibe/duet/internal/pipeline"
)

// A corpus is a txtar archive of programs. For a program `name.duet` the
// optional files `name.want`, `name.debug.want` and `name.release.want`
// hold the expected result summary (see Outcome.Summary), and `name.out`
// the expected printed output. Every program runs in both build modes.

// CorpusCase is one program of a corpus run in one build mode.
type CorpusCase struct {
	Name    string
	Debug   bool
	Source  string
	Want    string // expected summary, empty when unchecked
	WantOut string
	hasOut  bool

	Report *ParityReport
	Err    error // frontend failure
}

// Mode names the build mode the case ran in.
func (c *CorpusCase) Mode() string {
	if c.Debug {
		return "debug"
	}
	return "release"
}

// Failures lists why the case did not pass; empty means it passed.
func (c *CorpusCase) Failures() []string {
	if c.Err != nil {
		return []string{c.Err.Error()}
	}
	var out []string
	out = append(out, c.Report.Mismatches...)
	if got := c.Report.VM.Summary(); c.Want != "" && got != c.Want {
		out = append(out, fmt.Sprintf("result: got %q, want %q", got, c.Want))
	}
	if c.hasOut && c.Report.VM.Output != c.WantOut {
		out = append(out, fmt.Sprintf("output: got %q, want %q", c.Report.VM.Output, c.WantOut))
	}
	return out
}

// LoadCorpus reads a txtar corpus file.
func LoadCorpus(path string) (*txtar.Archive, error) {
	ar, err := txtar.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading corpus %s: %w", path, err)
	}
	return ar, nil
}

// CorpusCases expands an archive into cases, programs in name order.
func CorpusCases(ar *txtar.Archive) []*CorpusCase {
	files := make(map[string]string, len(ar.Files))
	var programs []string
	for _, f := range ar.Files {
		files[f.Name] = string(f.Data)
		if name, ok := strings.CutSuffix(f.Name, config.SourceFileExt); ok {
			programs = append(programs, name)
		}
	}
	sort.Strings(programs)

	var cases []*CorpusCase
	for _, name := range programs {
		for _, debug := range []bool{false, true} {
			c := &CorpusCase{Name: name, Debug: debug, Source: files[name+config.SourceFileExt]}
			c.Want = expectation(files, name, c.Mode())
			c.WantOut, c.hasOut = files[name+".out"]
			cases = append(cases, c)
		}
	}
	return cases
}

func expectation(files map[string]string, name, mode string) string {
	if w, ok := files[name+"."+mode+".want"]; ok {
		return strings.TrimSpace(w)
	}
	return strings.TrimSpace(files[name+".want"])
}

// RunCorpus runs every case of ar under cfg, overriding only the build mode.
func RunCorpus(ctx context.Context, ar *txtar.Archive, cfg config.Config) []*CorpusCase {
	cases := CorpusCases(ar)
	for _, c := range cases {
		caseCfg := cfg
		caseCfg.Debug = c.Debug
		pctx := pipeline.NewContext(c.Source, caseCfg)
		pctx.Context = ctx
		pctx.FilePath = c.Name + config.SourceFileExt
		c.Report, c.Err = Compare(pctx)
	}
	return cases
}
