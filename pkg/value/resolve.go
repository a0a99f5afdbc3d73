package value

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrNoPath       = errors.New("value: path does not resolve")
	ErrNotContainer = errors.New("value: not a container")
)

type PathError struct {
	Path Path
	Err  error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%s: %q", e.Err, e.Path.String())
}

func (e *PathError) Unwrap() error { return e.Err }

func child(node any, seg string) (any, bool) {
	switch n := node.(type) {
	case map[string]any:
		v, ok := n[seg]
		return v, ok
	case []any:
		i, ok := index(seg, len(n), false)
		if !ok {
			return nil, false
		}
		return n[i], true
	case Map:
		v, ok := n[seg]
		return v, ok
	}
	return nil, false
}

// GetIn resolves path against root.
func GetIn(root any, path Path) (any, bool) {
	node := root
	for _, seg := range path {
		v, ok := child(node, seg)
		if !ok {
			return nil, false
		}
		node = v
	}
	return node, true
}

// FindPath searches root for target by identity and returns its location.
// Object keys are visited in sorted order so the result is stable.
func FindPath(root, target any) (Path, bool) {
	if target == nil {
		return nil, false
	}
	return findPath(root, target, nil)
}

func findPath(node, target any, at Path) (Path, bool) {
	if Same(node, target) {
		return at, true
	}
	obj, ok := node.(map[string]any)
	if !ok {
		return nil, false
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if p, ok := findPath(obj[k], target, at.Child(k)); ok {
			return p, true
		}
	}
	return nil, false
}
