package value

import (
	"maps"
	"slices"
)

// Mutation is one write applied to a draft, kept for diffing and logging.
type Mutation struct {
	Path Path
	Old  any
	New  any
}

// Draft is a copy-on-write working copy of an immutable root. Containers
// are shallow-copied the first time a write passes through them; anything
// never written stays shared with the base.
type Draft struct {
	base  any
	root  any
	owned map[uintptr]struct{}
	log   []Mutation
	done  bool
}

func NewDraft(base any) *Draft {
	return &Draft{
		base:  base,
		root:  base,
		owned: map[uintptr]struct{}{},
	}
}

func (d *Draft) Base() any             { return d.base }
func (d *Draft) Root() any             { return d.root }
func (d *Draft) Done() bool            { return d.done }
func (d *Draft) Mutations() []Mutation { return d.log }

// Changed reports whether the root no longer shares identity with the base.
func (d *Draft) Changed() bool {
	return !Same(d.base, d.root)
}

func (d *Draft) Get(path Path) (any, bool) {
	return GetIn(d.root, path)
}

// Set writes v at path. Writing a value identical to the current one is a
// no-op and reports false.
func (d *Draft) Set(path Path, v any) (bool, error) {
	old, existed := d.Get(path)
	if existed && Same(old, v) {
		return false, nil
	}
	if len(path) == 0 {
		d.root = v
	} else if err := d.update(path, func(any, bool) (any, error) {
		return v, nil
	}); err != nil {
		return false, err
	}
	d.log = append(d.log, Mutation{Path: path, Old: old, New: v})
	return true, nil
}

// Delete removes the key at path from its parent object or map.
func (d *Draft) Delete(path Path) (bool, error) {
	if len(path) == 0 {
		return false, &PathError{Path: path, Err: ErrNoPath}
	}
	old, existed := d.Get(path)
	if !existed {
		return false, nil
	}
	parent, key := path[:len(path)-1], path[len(path)-1]
	err := d.Mutate(parent, func(owned any) (any, error) {
		switch n := owned.(type) {
		case map[string]any:
			delete(n, key)
		case Map:
			delete(n, key)
		default:
			return nil, &PathError{Path: parent, Err: ErrNotContainer}
		}
		return owned, nil
	})
	if err != nil {
		return false, err
	}
	d.log = append(d.log, Mutation{Path: path, Old: old})
	return true, nil
}

// Mutate hands fn an owned copy of the container at path and stores what
// fn returns in its place.
func (d *Draft) Mutate(path Path, fn func(owned any) (any, error)) error {
	old, _ := d.Get(path)
	apply := func(cur any, ok bool) (any, error) {
		if !ok {
			return nil, &PathError{Path: path, Err: ErrNoPath}
		}
		r, err := fn(d.own(cur))
		if err != nil {
			return nil, err
		}
		d.markOwned(r)
		return r, nil
	}
	if len(path) == 0 {
		r, err := apply(d.root, true)
		if err != nil {
			return err
		}
		d.root = r
	} else if err := d.update(path, apply); err != nil {
		return err
	}
	nv, _ := d.Get(path)
	d.log = append(d.log, Mutation{Path: path, Old: old, New: nv})
	return nil
}

// Finalize closes the draft and returns the new root.
func (d *Draft) Finalize() any {
	d.done = true
	return d.root
}

// Discard closes the draft without producing a value.
func (d *Draft) Discard() {
	d.done = true
	d.root = d.base
}

func (d *Draft) update(path Path, fn func(cur any, ok bool) (any, error)) error {
	root, err := d.updateIn(d.root, true, path, nil, fn)
	if err != nil {
		return err
	}
	d.root = root
	return nil
}

func (d *Draft) updateIn(node any, exists bool, rest, at Path, fn func(any, bool) (any, error)) (any, error) {
	if len(rest) == 0 {
		return fn(node, exists)
	}
	if !exists {
		return nil, &PathError{Path: at, Err: ErrNoPath}
	}
	if k := KindOf(node); k != KindObject && k != KindArray && k != KindMap {
		return nil, &PathError{Path: at, Err: ErrNotContainer}
	}

	seg := rest[0]
	switch n := d.own(node).(type) {
	case map[string]any:
		cur, ok := n[seg]
		nv, err := d.updateIn(cur, ok, rest[1:], at.Child(seg), fn)
		if err != nil {
			return nil, err
		}
		n[seg] = nv
		return n, nil
	case Map:
		cur, ok := n[seg]
		nv, err := d.updateIn(cur, ok, rest[1:], at.Child(seg), fn)
		if err != nil {
			return nil, err
		}
		n[seg] = nv
		return n, nil
	case []any:
		i, ok := index(seg, len(n), len(rest) == 1)
		if !ok {
			return nil, &PathError{Path: at.Child(seg), Err: ErrNoPath}
		}
		if i == len(n) {
			nv, err := fn(nil, false)
			if err != nil {
				return nil, err
			}
			n = append(n, nv)
			d.markOwned(n)
			return n, nil
		}
		nv, err := d.updateIn(n[i], true, rest[1:], at.Child(seg), fn)
		if err != nil {
			return nil, err
		}
		n[i] = nv
		return n, nil
	}
	panic("not a container")
}

func (d *Draft) own(v any) any {
	if id, ok := identity(v); ok {
		if _, owned := d.owned[id]; owned {
			return v
		}
	}
	c := shallowCopy(v)
	d.markOwned(c)
	return c
}

func (d *Draft) markOwned(v any) {
	if id, ok := identity(v); ok {
		d.owned[id] = struct{}{}
	}
}

func shallowCopy(v any) any {
	switch n := v.(type) {
	case map[string]any:
		if n == nil {
			return map[string]any{}
		}
		return maps.Clone(n)
	case Map:
		if n == nil {
			return Map{}
		}
		return maps.Clone(n)
	case []any:
		return slices.Clone(n)
	case *Set:
		if n == nil {
			return NewSet()
		}
		return n.Clone()
	}
	return v
}
