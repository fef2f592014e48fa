package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/funvibe/duet/internal/config"
)

func runCLI(t *testing.T, args ...string) (stdout, stderr string, code int) {
	t.Helper()
	var out, errOut bytes.Buffer
	env := &Env{Stdin: strings.NewReader(""), Stdout: &out, Stderr: &errOut}
	code = env.Main(args)
	return out.String(), errOut.String(), code
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const consumeSource = `fn consume(own data) {
  return len(data);
}
let arr = [1, 2, 3];
consume(arr);
arr;
`

func TestRun(t *testing.T) {
	dir := t.TempDir()
	prog := writeFile(t, dir, "main.duet", `print("hello"); fn sq(n) { return n * n; } sq(7);`)

	tests := []struct {
		name string
		args []string
	}{
		{"vm", []string{"run", prog}},
		{"tree-walk", []string{"run", "-engine", config.EngineTreeWalk, prog}},
		{"bare file", []string{prog}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, errOut, code := runCLI(t, tt.args...)
			if code != 0 {
				t.Fatalf("exit %d: %s", code, errOut)
			}
			if out != "hello\n49\n" {
				t.Errorf("got %q", out)
			}
		})
	}
}

func TestRunOwnershipModes(t *testing.T) {
	prog := writeFile(t, t.TempDir(), "consume.duet", consumeSource)

	out, _, code := runCLI(t, "run", prog)
	if code != 0 || out != "[1, 2, 3]\n" {
		t.Errorf("release: exit %d, output %q", code, out)
	}

	_, errOut, code := runCLI(t, "run", "-debug", prog)
	if code != 1 {
		t.Fatalf("debug: exit %d", code)
	}
	if !strings.Contains(errOut, "ERROR at 6:1") || !strings.Contains(errOut, "at <main> (line 6)") {
		t.Errorf("debug: %s", errOut)
	}
}

func TestRunErrors(t *testing.T) {
	dir := t.TempDir()
	bad := writeFile(t, dir, "bad.duet", "let x = 1; x = 2;")

	_, errOut, code := runCLI(t, "run", bad)
	if code != 1 || !strings.Contains(errOut, "A001") {
		t.Errorf("exit %d: %s", code, errOut)
	}
	if _, _, code := runCLI(t, "run", filepath.Join(dir, "missing.duet")); code != 1 {
		t.Errorf("missing file: exit %d", code)
	}
	if _, _, code := runCLI(t, "run", "-engine", "jit", bad); code != 2 {
		t.Errorf("bad engine: exit %d", code)
	}
	if _, _, code := runCLI(t, "frobnicate"); code != 2 {
		t.Errorf("unknown command: exit %d", code)
	}
}

func TestCompileAndExec(t *testing.T) {
	dir := t.TempDir()
	prog := writeFile(t, dir, "consume.duet", consumeSource)
	bundle := filepath.Join(dir, "consume"+config.BundleFileExt)

	out, errOut, code := runCLI(t, "compile", "-debug", prog)
	if code != 0 {
		t.Fatalf("compile: exit %d: %s", code, errOut)
	}
	if !strings.Contains(out, "debug") {
		t.Errorf("compile output %q", out)
	}

	// The bundle keeps its build mode whatever the exec flags say.
	_, errOut, code = runCLI(t, "exec", bundle)
	if code != 1 || !strings.Contains(errOut, "moved") {
		t.Errorf("exec: exit %d: %s", code, errOut)
	}

	release := filepath.Join(dir, "release.dbc")
	if _, errOut, code := runCLI(t, "compile", "-o", release, prog); code != 0 {
		t.Fatalf("compile: %s", errOut)
	}
	out, _, code = runCLI(t, "exec", release)
	if code != 0 || out != "[1, 2, 3]\n" {
		t.Errorf("exec release: exit %d, output %q", code, out)
	}

	junk := writeFile(t, dir, "junk.dbc", "not a bundle")
	if _, _, code := runCLI(t, "exec", junk); code != 1 {
		t.Errorf("junk bundle: exit %d", code)
	}
}

func TestDisasm(t *testing.T) {
	prog := writeFile(t, t.TempDir(), "f.duet", "fn f(borrow a) { return a; } f(1);")
	out, errOut, code := runCLI(t, "disasm", "-debug", prog)
	if code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	for _, want := range []string{"RETURN", "CALL"} {
		if !strings.Contains(out, want) {
			t.Errorf("listing lacks %s:\n%s", want, out)
		}
	}
}

func TestParity(t *testing.T) {
	prog := writeFile(t, t.TempDir(), "consume.duet", consumeSource)
	out, errOut, code := runCLI(t, "parity", "-both", prog)
	if code != 0 {
		t.Fatalf("exit %d: %s%s", code, out, errOut)
	}
	if strings.Count(out, "parity ok") != 2 {
		t.Errorf("got %q", out)
	}

	out, _, code = runCLI(t, "parity", "../../internal/backend/testdata/corpus.txtar")
	if code != 0 {
		t.Fatalf("corpus: exit %d\n%s", code, out)
	}
	if strings.Contains(out, "FAIL") {
		t.Errorf("corpus failures:\n%s", out)
	}
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	prog := writeFile(t, dir, "consume.duet", consumeSource)
	cfgPath := writeFile(t, dir, "duet.yaml", "debug: true\nengine: tree-walk\n")

	_, errOut, code := runCLI(t, "run", "-config", cfgPath, prog)
	if code != 1 || !strings.Contains(errOut, "moved") {
		t.Errorf("exit %d: %s", code, errOut)
	}

	badCfg := writeFile(t, dir, "bad.toml", "engine = \"jit\"\n")
	if _, _, code := runCLI(t, "run", "-config", badCfg, prog); code != 2 {
		t.Errorf("bad config: exit %d", code)
	}
}

func TestJournalHistory(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "journal.db")
	prog := writeFile(t, dir, "answer.duet", "6 * 7;")

	if _, errOut, code := runCLI(t, "run", "-journal", db, prog); code != 0 {
		t.Fatalf("run: %s", errOut)
	}
	out, errOut, code := runCLI(t, "history", "-journal", db)
	if code != 0 {
		t.Fatalf("history: %s", errOut)
	}
	if !strings.Contains(out, "answer.duet") || !strings.Contains(out, "42") {
		t.Errorf("history %q", out)
	}

	if _, _, code := runCLI(t, "history"); code != 2 {
		t.Errorf("history without journal: exit %d", code)
	}
}

func TestVersion(t *testing.T) {
	out, _, code := runCLI(t, "version")
	if code != 0 || out != "duet "+Version+"\n" {
		t.Errorf("exit %d, %q", code, out)
	}
}

func TestFmt(t *testing.T) {
	dir := t.TempDir()
	prog := writeFile(t, dir, "messy.duet", "let x=(1+2)*3;x;")
	commented := writeFile(t, dir, "commented.duet", "// keep me\nlet x=1;")

	out, _, code := runCLI(t, "fmt", prog)
	if code != 0 || out != "let x = (1 + 2) * 3;\nx;\n" {
		t.Errorf("exit %d, %q", code, out)
	}

	if _, errOut, code := runCLI(t, "fmt", "-w", prog); code != 0 {
		t.Fatalf("fmt -w: %s", errOut)
	}
	data, _ := os.ReadFile(prog)
	if string(data) != "let x = (1 + 2) * 3;\nx;\n" {
		t.Errorf("rewritten file %q", data)
	}

	if _, _, code := runCLI(t, "fmt", "-w", commented); code != 1 {
		t.Errorf("commented file: exit %d", code)
	}
	data, _ = os.ReadFile(commented)
	if string(data) != "// keep me\nlet x=1;" {
		t.Errorf("commented file was modified: %q", data)
	}
}
