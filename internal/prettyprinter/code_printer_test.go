package prettyprinter

import (
	"strings"
	"testing"
)

func TestFormatSource(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			"redundant parens",
			"let x=(1+(2*3));",
			"let x = 1 + 2 * 3;\n",
		},
		{
			"needed parens",
			"(1 + 2) * 3; a - (b - c); (a - b) - c;",
			"(1 + 2) * 3;\na - (b - c);\na - b - c;\n",
		},
		{
			"prefix",
			"-(a + b); !(!x); -f(1)[0];",
			"-(a + b);\n!(!x);\n-f(1)[0];\n",
		},
		{
			"logic",
			"a || b && c; (a || b) && c;",
			"a || b && c;\n(a || b) && c;\n",
		},
		{
			"function",
			"fn f(own a, borrow b, shared c, d) -> own { if (a) { return b; } else if (c) { return; } else { d[0] = 1; } }",
			"fn f(own a, borrow b, shared c, d) -> own {\n" +
				"    if (a) {\n" +
				"        return b;\n" +
				"    } else if (c) {\n" +
				"        return;\n" +
				"    } else {\n" +
				"        d[0] = 1;\n" +
				"    }\n" +
				"}\n",
		},
		{
			"spacing around functions",
			"var i = 0; fn g() {} while (i < 3) { i = i + 1; } g();",
			"var i = 0;\n\nfn g() {}\n\nwhile (i < 3) {\n    i = i + 1;\n}\ng();\n",
		},
		{
			"compound assignment",
			"var n=0; n+=1; n -= 2*3; n++; n--; xs[i+1]%=4; xs[0]++;",
			"var n = 0;\nn += 1;\nn -= 2 * 3;\nn++;\nn--;\nxs[i + 1] %= 4;\nxs[0]++;\n",
		},
		{
			"loop control",
			"while (true) { if (done) { break; } continue; }",
			"while (true) {\n    if (done) {\n        break;\n    }\n    continue;\n}\n",
		},
		{
			"nested negation",
			"a - (-b); -(-x);",
			"a - -b;\n-(-x);\n",
		},
		{
			"literals",
			`print("a\"b", true, null, 1.5, []);`,
			`print("a\"b", true, null, 1.5, []);` + "\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FormatSource(tt.src, "")
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got:\n%s\nwant:\n%s", got, tt.want)
			}
			again, err := FormatSource(got, "")
			if err != nil {
				t.Fatal(err)
			}
			if again != got {
				t.Errorf("not idempotent:\n%s", again)
			}
		})
	}
}

func TestLongListsWrap(t *testing.T) {
	src := "let xs = [" + strings.Repeat("100000, ", 20) + "1];"
	got, err := FormatSource(src, "")
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(got), "\n")
	if len(lines) != 23 || lines[0] != "let xs = [" || lines[22] != "];" {
		t.Errorf("unexpected layout:\n%s", got)
	}
	for _, l := range lines {
		if len(l) > 100 {
			t.Errorf("line too long: %q", l)
		}
	}
}

func TestFormatSourceSyntaxError(t *testing.T) {
	if _, err := FormatSource("let = ;", "bad.duet"); err == nil {
		t.Fatal("expected syntax error")
	}
}

// FuzzFormat checks that formatted output parses again and is a fixed point.
func FuzzFormat(f *testing.F) {
	for _, seed := range []string{
		"let x=(1+(2*3));",
		"fn f(own a, borrow b) -> borrow { while (a < b) { a = a + 1; } return a; }",
		"var n = 0; while (n < 5) { n += 1; xs[n]--; if (n == 2) { continue; } break; }",
		"var xs = [1, \"two\", true, null]; xs[0] = -xs[1];",
		"if (a) { b; } else if (c) { d; } else { }",
	} {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, src string) {
		first, err := FormatSource(src, "fuzz.duet")
		if err != nil {
			return
		}
		second, err := FormatSource(first, "fuzz.duet")
		if err != nil {
			t.Fatalf("formatted output does not parse: %v\n%s", err, first)
		}
		if first != second {
			t.Fatalf("not idempotent:\n%s\n---\n%s", first, second)
		}
	})
}
