package value

import (
	"strconv"
	"strings"
)

// Path locates a value inside a state's object graph. Segments index
// objects and maps by key and arrays by decimal position.
type Path []string

func ParsePath(s string) Path {
	if s == "" {
		return nil
	}
	return strings.Split(s, ".")
}

func (p Path) String() string {
	return strings.Join(p, ".")
}

// Child returns a new path with key appended; p is never modified.
func (p Path) Child(keys ...string) Path {
	c := make(Path, 0, len(p)+len(keys))
	c = append(c, p...)
	return append(c, keys...)
}

func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i, seg := range prefix {
		if p[i] != seg {
			return false
		}
	}
	return true
}

// Touches reports whether a write at p can change the value read at other,
// which is the case when either path is a prefix of the other.
func (p Path) Touches(other Path) bool {
	return p.HasPrefix(other) || other.HasPrefix(p)
}

func (p Path) Equal(other Path) bool {
	return len(p) == len(other) && p.HasPrefix(other)
}

func index(seg string, length int, allowAppend bool) (int, bool) {
	i, err := strconv.Atoi(seg)
	if err != nil || i < 0 {
		return 0, false
	}
	if i > length || (i == length && !allowAppend) {
		return 0, false
	}
	return i, true
}
