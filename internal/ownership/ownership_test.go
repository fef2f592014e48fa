package ownership

import (
	"strings"
	"testing"
)

func TestTags(t *testing.T) {
	for _, a := range []Annotation{None, Own, Borrow, Shared} {
		got, err := FromTag(a.Tag())
		if err != nil || got != a {
			t.Errorf("%s: FromTag(%d) = %s, %v", a, a.Tag(), got, err)
		}
	}
	if Own.Tag() != 1 || Shared.Tag() != 3 {
		t.Errorf("tags moved: own=%d shared=%d", Own.Tag(), Shared.Tag())
	}
	if _, err := FromTag(4); err == nil {
		t.Error("tag 4 accepted")
	}
}

func TestSignature(t *testing.T) {
	tests := []struct {
		params []string
		modes  []Annotation
		ret    Annotation
		want   string
	}{
		{[]string{"data"}, []Annotation{Own}, Borrow, "fn consume(own data) -> borrow"},
		{[]string{"data", "n"}, []Annotation{Own, None}, None, "fn consume(own data, n)"},
		{[]string{"a", "b"}, nil, Own, "fn consume(a, b) -> own"},
		{nil, nil, None, "fn consume()"},
	}
	for _, tt := range tests {
		if got := Signature("consume", tt.params, tt.modes, tt.ret); got != tt.want {
			t.Errorf("got %q, want %q", got, tt.want)
		}
	}
}

func TestMessages(t *testing.T) {
	if got := MovedValueMessage("arr"); got != "use of moved value: `arr` was passed to an owning parameter and is no longer valid." {
		t.Errorf("moved: %q", got)
	}
	if got := SharedViolationMessage("c", "array"); got != "ownership violation: parameter `c` expects a shared value but received `array`." {
		t.Errorf("shared: %q", got)
	}
	if got := AdvisoryMessage("take", "x", Own); !strings.Contains(got, "`x` of `take` is declared `own`") {
		t.Errorf("advisory: %q", got)
	}
}
