package pods

import (
	"slices"

	"github.com/pkg/errors"

	"github.com/delaneyj/pods/pkg/value"
)

// collectionBase is shared by the collection wrappers. A wrapper is only
// valid within the batch it was handed out in.
type collectionBase struct {
	state *State
	path  value.Path
	seq   uint64
}

func (c collectionBase) check() error {
	e := c.state.engine
	if !e.status.mutable() {
		return &IllegalMutationError{
			State:  c.state.id,
			Path:   c.path.String(),
			Status: e.status,
			Reason: "collections can only be mutated inside action handlers or concurrent observers",
		}
	}
	if c.seq != e.batchSeq {
		return &IllegalMutationError{
			State:  c.state.id,
			Path:   c.path.String(),
			Status: e.status,
			Reason: "collection draft outlived the batch it was created in",
		}
	}
	return nil
}

func (c collectionBase) rawValue() any {
	v, _ := c.state.read(c.path)
	return v
}

func (c collectionBase) Path() value.Path { return c.path }

// mutate runs fn on an owned copy of the collection and reports the path
// as changed.
func (c collectionBase) mutate(fn func(owned any) (any, error)) error {
	if err := c.check(); err != nil {
		return err
	}
	return c.state.write(c.path, func(d *value.Draft) (bool, error) {
		if err := d.Mutate(c.path, fn); err != nil {
			return false, err
		}
		return true, nil
	})
}

type ArrayDraft struct{ collectionBase }

func (a *ArrayDraft) values() []any {
	v, _ := a.rawValue().([]any)
	return v
}

func (a *ArrayDraft) Len() int { return len(a.values()) }

func (a *ArrayDraft) Values() []any { return slices.Clone(a.values()) }

// Index returns the element at i, or nil when i is out of range.
func (a *ArrayDraft) Index(i int) any {
	vals := a.values()
	if i < 0 || i >= len(vals) {
		return nil
	}
	return vals[i]
}

func (a *ArrayDraft) Push(vals ...any) (int, error) {
	n := 0
	err := a.mutate(func(owned any) (any, error) {
		arr := append(owned.([]any), unwrapAll(vals)...)
		n = len(arr)
		return arr, nil
	})
	return n, err
}

func (a *ArrayDraft) Pop() (any, error) {
	var out any
	err := a.mutate(func(owned any) (any, error) {
		arr := owned.([]any)
		if len(arr) == 0 {
			return arr, nil
		}
		out = arr[len(arr)-1]
		return arr[:len(arr)-1], nil
	})
	return out, err
}

func (a *ArrayDraft) Shift() (any, error) {
	var out any
	err := a.mutate(func(owned any) (any, error) {
		arr := owned.([]any)
		if len(arr) == 0 {
			return arr, nil
		}
		out = arr[0]
		return slices.Delete(arr, 0, 1), nil
	})
	return out, err
}

func (a *ArrayDraft) Unshift(vals ...any) (int, error) {
	n := 0
	err := a.mutate(func(owned any) (any, error) {
		arr := slices.Insert(owned.([]any), 0, unwrapAll(vals)...)
		n = len(arr)
		return arr, nil
	})
	return n, err
}

// Splice removes deleteCount elements at start, inserts items in their
// place and returns the removed elements. Out of range arguments are
// clamped.
func (a *ArrayDraft) Splice(start, deleteCount int, items ...any) ([]any, error) {
	var removed []any
	err := a.mutate(func(owned any) (any, error) {
		arr := owned.([]any)
		if start < 0 {
			start = max(len(arr)+start, 0)
		}
		start = min(start, len(arr))
		end := min(start+max(deleteCount, 0), len(arr))
		removed = slices.Clone(arr[start:end])
		arr = slices.Delete(arr, start, end)
		return slices.Insert(arr, start, unwrapAll(items)...), nil
	})
	return removed, err
}

func (a *ArrayDraft) Reverse() error {
	return a.mutate(func(owned any) (any, error) {
		arr := owned.([]any)
		slices.Reverse(arr)
		return arr, nil
	})
}

// Sort is stable. cmp must not be nil.
func (a *ArrayDraft) Sort(cmp func(x, y any) int) error {
	if cmp == nil {
		return errors.New("pods: sort needs a comparison function")
	}
	return a.mutate(func(owned any) (any, error) {
		arr := owned.([]any)
		slices.SortStableFunc(arr, cmp)
		return arr, nil
	})
}

func (a *ArrayDraft) Fill(v any) error {
	v = unwrap(v)
	return a.mutate(func(owned any) (any, error) {
		arr := owned.([]any)
		for i := range arr {
			arr[i] = v
		}
		return arr, nil
	})
}

func (a *ArrayDraft) SetIndex(i int, v any) error {
	v = unwrap(v)
	return a.mutate(func(owned any) (any, error) {
		arr := owned.([]any)
		if i < 0 || i > len(arr) {
			return nil, &value.PathError{Path: a.path, Err: value.ErrNoPath}
		}
		if i == len(arr) {
			return append(arr, v), nil
		}
		arr[i] = v
		return arr, nil
	})
}

type MapDraft struct{ collectionBase }

func (m *MapDraft) values() value.Map {
	v, _ := m.rawValue().(value.Map)
	return v
}

func (m *MapDraft) Len() int { return len(m.values()) }

func (m *MapDraft) Get(k any) (any, bool) {
	v, ok := m.values()[k]
	return v, ok
}

func (m *MapDraft) Has(k any) bool {
	_, ok := m.values()[k]
	return ok
}

func (m *MapDraft) Keys() []any { return m.values().Keys() }

func (m *MapDraft) Set(k, v any) error {
	v = unwrap(v)
	return m.mutate(func(owned any) (any, error) {
		mm := owned.(value.Map)
		mm[k] = v
		return mm, nil
	})
}

func (m *MapDraft) Delete(k any) (bool, error) {
	if !m.Has(k) {
		return false, m.check()
	}
	err := m.mutate(func(owned any) (any, error) {
		mm := owned.(value.Map)
		delete(mm, k)
		return mm, nil
	})
	return err == nil, err
}

func (m *MapDraft) Clear() error {
	return m.mutate(func(owned any) (any, error) {
		mm := owned.(value.Map)
		clear(mm)
		return mm, nil
	})
}

type SetDraft struct{ collectionBase }

func (s *SetDraft) values() *value.Set {
	v, _ := s.rawValue().(*value.Set)
	return v
}

func (s *SetDraft) Len() int { return s.values().Len() }

func (s *SetDraft) Has(v any) bool { return s.values().Has(v) }

func (s *SetDraft) Values() []any { return s.values().Values() }

func (s *SetDraft) Add(v any) error {
	v = unwrap(v)
	return s.mutate(func(owned any) (any, error) {
		set := owned.(*value.Set)
		set.Add(v)
		return set, nil
	})
}

func (s *SetDraft) Delete(v any) (bool, error) {
	if !s.Has(v) {
		return false, s.check()
	}
	err := s.mutate(func(owned any) (any, error) {
		set := owned.(*value.Set)
		set.Delete(v)
		return set, nil
	})
	return err == nil, err
}

func (s *SetDraft) Clear() error {
	return s.mutate(func(owned any) (any, error) {
		set := owned.(*value.Set)
		set.Clear()
		return set, nil
	})
}

func unwrapAll(vals []any) []any {
	out := make([]any, len(vals))
	for i, v := range vals {
		out[i] = unwrap(v)
	}
	return out
}
