// Package ownership defines the parameter-passing annotations and the fault
// texts both execution engines report when a debug build enforces them.
package ownership

import (
	"fmt"
	"strings"
)

// Annotation is the ownership mode of a parameter or return position.
type Annotation uint8

const (
	// None means an unannotated parameter: plain value-copy semantics.
	None Annotation = iota
	// Own transfers the value; a bare caller binding is consumed.
	Own
	// Borrow grants temporary read access; the caller keeps its binding.
	Borrow
	// Shared requires the argument to already be a shared-reference value.
	Shared
)

func (a Annotation) String() string {
	switch a {
	case None:
		return "none"
	case Own:
		return "own"
	case Borrow:
		return "borrow"
	case Shared:
		return "shared"
	default:
		return fmt.Sprintf("annotation(%d)", uint8(a))
	}
}

// Tag is the fixed binary tag used in serialized function records.
func (a Annotation) Tag() uint8 { return uint8(a) }

// FromTag decodes a serialized tag.
func FromTag(tag uint8) (Annotation, error) {
	if tag > uint8(Shared) {
		return None, fmt.Errorf("invalid ownership tag %d", tag)
	}
	return Annotation(tag), nil
}

// Violation classifies an ownership fault.
type Violation uint8

const (
	MovedValue Violation = iota + 1
	SharedRequired
)

func (v Violation) String() string {
	switch v {
	case MovedValue:
		return "moved-value"
	case SharedRequired:
		return "shared-required"
	default:
		return "unknown"
	}
}

// MovedValueMessage is the fault raised when a consumed binding is read.
func MovedValueMessage(name string) string {
	return fmt.Sprintf("use of moved value: `%s` was passed to an owning parameter and is no longer valid.", name)
}

// SharedViolationMessage is the fault raised when a shared parameter receives
// a value of another kind.
func SharedViolationMessage(param, kind string) string {
	return fmt.Sprintf("ownership violation: parameter `%s` expects a shared value but received `%s`.", param, kind)
}

// AdvisoryMessage is the non-fatal note for a shared value passed to an own
// or borrow parameter.
func AdvisoryMessage(fn, param string, mode Annotation) string {
	return fmt.Sprintf("ownership advisory: parameter `%s` of `%s` is declared `%s` but received a shared value; the shared cell stays aliased.", param, fn, mode)
}

// Signature renders an annotated function signature for tooling, e.g.
// "fn consume(own data, n) -> borrow".
func Signature(name string, params []string, modes []Annotation, ret Annotation) string {
	var sb strings.Builder
	sb.WriteString("fn ")
	sb.WriteString(name)
	sb.WriteByte('(')
	for i, p := range params {
		if i > 0 {
			sb.WriteString(", ")
		}
		if i < len(modes) && modes[i] != None {
			sb.WriteString(modes[i].String())
			sb.WriteByte(' ')
		}
		sb.WriteString(p)
	}
	sb.WriteByte(')')
	if ret != None {
		sb.WriteString(" -> ")
		sb.WriteString(ret.String())
	}
	return sb.String()
}
