package revision

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedRevision is matched by every MalformedRevisionError.
var ErrMalformedRevision = errors.New("malformed revision number")

// MalformedRevisionError reports a revision string that is not a dotted
// sequence of non-negative integers.
type MalformedRevisionError struct {
	Input  string
	Reason string
}

func (e *MalformedRevisionError) Error() string {
	return fmt.Sprintf("malformed revision number %q: %s", e.Input, e.Reason)
}

func (e *MalformedRevisionError) Is(target error) bool {
	return target == ErrMalformedRevision
}

// Number is a CVS revision number such as 1.2 or 1.2.2.4. Values are
// immutable; every operation returns a new Number.
type Number struct {
	parts []int
}

// Parse reads a dotted revision string.
func Parse(s string) (Number, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Number{}, &MalformedRevisionError{Input: s, Reason: "empty"}
	}

	fields := strings.Split(trimmed, ".")
	parts := make([]int, len(fields))
	for i, f := range fields {
		if f == "" {
			return Number{}, &MalformedRevisionError{Input: s, Reason: fmt.Sprintf("empty component at position %d", i)}
		}
		n, err := strconv.Atoi(f)
		if err != nil || n < 0 || f[0] == '+' || f[0] == '-' {
			return Number{}, &MalformedRevisionError{Input: s, Reason: fmt.Sprintf("component %q is not a non-negative integer", f)}
		}
		if len(f) > 1 && f[0] == '0' {
			return Number{}, &MalformedRevisionError{Input: s, Reason: fmt.Sprintf("component %q has a leading zero", f)}
		}
		parts[i] = n
	}

	return Number{parts: parts}, nil
}

// MustParse is Parse for literals known to be valid.
func MustParse(s string) Number {
	n, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return n
}

// FromComponents builds a Number from raw components.
func FromComponents(components ...int) (Number, error) {
	if len(components) == 0 {
		return Number{}, &MalformedRevisionError{Reason: "no components"}
	}
	parts := make([]int, len(components))
	for i, c := range components {
		if c < 0 {
			return Number{}, &MalformedRevisionError{Reason: fmt.Sprintf("negative component %d", c)}
		}
		parts[i] = c
	}
	return Number{parts: parts}, nil
}

// SubRevisions returns a copy of the integer components.
func (n Number) SubRevisions() []int {
	out := make([]int, len(n.parts))
	copy(out, n.parts)
	return out
}

func (n Number) Len() int {
	return len(n.parts)
}

func (n Number) IsZero() bool {
	return len(n.parts) == 0
}

// Component returns the i-th component counted from the head.
func (n Number) Component(i int) int {
	return n.parts[i]
}

// WithTailRemoved drops the last count components.
func (n Number) WithTailRemoved(count int) (Number, error) {
	if count < 0 || count > len(n.parts) {
		return Number{}, fmt.Errorf("cannot remove %d components from %q: %w", count, n.String(), ErrMalformedRevision)
	}
	parts := make([]int, len(n.parts)-count)
	copy(parts, n.parts)
	return Number{parts: parts}, nil
}

// WithTailAppended appends components after the current tail. Branch tags
// are synthesised as WithTailAppended(0, branch).
func (n Number) WithTailAppended(components ...int) Number {
	parts := make([]int, 0, len(n.parts)+len(components))
	parts = append(parts, n.parts...)
	parts = append(parts, components...)
	return Number{parts: parts}
}

// String renders the canonical dotted form.
func (n Number) String() string {
	var sb strings.Builder
	for i, p := range n.parts {
		if i > 0 {
			sb.WriteByte('.')
		}
		sb.WriteString(strconv.Itoa(p))
	}
	return sb.String()
}

func (n Number) Equal(other Number) bool {
	return Compare(n, other) == 0
}

// IsOnBranch reports whether the revision lives on a branch rather than the trunk.
func (n Number) IsOnBranch() bool {
	return len(n.parts) >= 4
}

// IsAncestorOf reports whether n is a strict prefix of other.
func (n Number) IsAncestorOf(other Number) bool {
	if len(n.parts) >= len(other.parts) {
		return false
	}
	for i, p := range n.parts {
		if other.parts[i] != p {
			return false
		}
	}
	return true
}

// Compare orders revision numbers component by component. A strict prefix
// sorts before the longer number.
func Compare(a, b Number) int {
	for i := 0; i < len(a.parts) && i < len(b.parts); i++ {
		switch {
		case a.parts[i] < b.parts[i]:
			return -1
		case a.parts[i] > b.parts[i]:
			return 1
		}
	}
	switch {
	case len(a.parts) < len(b.parts):
		return -1
	case len(a.parts) > len(b.parts):
		return 1
	}
	return 0
}
