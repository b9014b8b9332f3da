package domain

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// FlowPosition locates a concept or inference in the plan's operator tree as
// a dotted path ("2.1.2"). Nesting is positional: everything under a loop's
// position belongs to that loop's body.
type FlowPosition string

// ParsePosition validates and normalizes a dotted path. A trailing dot is
// tolerated and stripped.
func ParsePosition(s string) (FlowPosition, error) {
	trimmed := strings.TrimSuffix(s, ".")
	if trimmed == "" {
		return "", errors.New("empty flow position")
	}
	for _, seg := range strings.Split(trimmed, ".") {
		if seg == "" {
			return "", errors.Newf("flow position %q has an empty segment", s)
		}
		if _, err := strconv.Atoi(seg); err != nil {
			return "", errors.Newf("flow position %q: segment %q is not a number", s, seg)
		}
	}
	return FlowPosition(trimmed), nil
}

func (p FlowPosition) String() string { return string(p) }

// Depth is the number of path segments.
func (p FlowPosition) Depth() int {
	if p == "" {
		return 0
	}
	return strings.Count(string(p), ".") + 1
}

// Under reports whether p sits strictly inside parent's subtree.
func (p FlowPosition) Under(parent FlowPosition) bool {
	return strings.HasPrefix(string(p), string(parent)+".")
}

// Parent returns the enclosing position, or "" at the root.
func (p FlowPosition) Parent() FlowPosition {
	i := strings.LastIndex(string(p), ".")
	if i < 0 {
		return ""
	}
	return p[:i]
}
