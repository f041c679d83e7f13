package draft

import (
	"fmt"
	"strconv"
	"strings"
)

// Segment is one step of a Path: either a Key into an object or an Index into an array.
// The set of segment kinds is closed; only Key and Index implement it.
type Segment interface {
	segment()
	String() string
}

// Key addresses a field of an object node
type Key string

// Index addresses a position in an array node
type Index int

func (Key) segment()   {}
func (Index) segment() {}

func (k Key) String() string   { return string(k) }
func (i Index) String() string { return strconv.Itoa(int(i)) }

// Path is an ordered list of segments from the document root to a value
type Path []Segment

// ParsePath splits a dot-separated path such as "items.0.price" into segments.
// A segment that parses as a non-negative integer becomes an Index, anything else a Key.
func ParsePath(raw string) (Path, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty path")
	}

	parts := strings.Split(raw, ".")
	path := make(Path, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			return nil, fmt.Errorf("empty segment in path %q", raw)
		}
		if n, err := strconv.Atoi(part); err == nil && n >= 0 {
			path = append(path, Index(n))
			continue
		}
		path = append(path, Key(part))
	}
	return path, nil
}

// String renders the path back into dot notation
func (p Path) String() string {
	parts := make([]string, len(p))
	for i, seg := range p {
		parts[i] = seg.String()
	}
	return strings.Join(parts, ".")
}

// Touches reports whether the path starts at the given top-level key
func (p Path) Touches(key Key) bool {
	if len(p) == 0 {
		return false
	}
	k, ok := p[0].(Key)
	return ok && k == key
}
