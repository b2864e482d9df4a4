package graph

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPath is returned for empty paths or paths with empty/slashed segments
var ErrInvalidPath = errors.New("invalid graph path")

// Path addresses a node from the room root, one key per segment
type Path []string

// ParsePath splits a slash separated path ("room/approvals/id")
func ParsePath(s string) Path {
	s = strings.Trim(s, "/")
	if s == "" {
		return nil
	}
	return Path(strings.Split(s, "/"))
}

// String joins the segments with "/"
func (p Path) String() string {
	return strings.Join(p, "/")
}

// Key returns the last segment
func (p Path) Key() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

// Parent returns the path without its last segment
func (p Path) Parent() Path {
	if len(p) == 0 {
		return nil
	}
	return p[: len(p)-1 : len(p)-1]
}

// Child returns a new path extended by key
func (p Path) Child(key string) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, key)
}

// Equal reports whether both paths have the same segments
func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether prefix is p itself or one of its ancestors
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	return p[:len(prefix)].Equal(prefix)
}

// Validate checks the path can address a node
func (p Path) Validate() error {
	if len(p) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	for i, seg := range p {
		if seg == "" {
			return fmt.Errorf("%w: empty segment at %d", ErrInvalidPath, i)
		}
		if strings.Contains(seg, "/") {
			return fmt.Errorf("%w: segment %q contains '/'", ErrInvalidPath, seg)
		}
	}
	return nil
}
