package value

import (
	mapset "github.com/deckarep/golang-set/v2"
)

type Kind uint8

const (
	KindLeaf   Kind = iota // anything that is not a container
	KindObject             // map[string]any, proxied key by key
	KindArray              // []any
	KindMap                // Map
	KindSet                // *Set
)

func (k Kind) String() string {
	switch k {
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	case KindMap:
		return "map"
	case KindSet:
		return "set"
	default:
		return "leaf"
	}
}

// Collection reports whether values of this kind are mutated through
// method calls rather than key assignment.
func (k Kind) Collection() bool {
	return k == KindArray || k == KindMap || k == KindSet
}

func KindOf(v any) Kind {
	switch v.(type) {
	case map[string]any:
		return KindObject
	case []any:
		return KindArray
	case Map:
		return KindMap
	case *Set:
		return KindSet
	default:
		return KindLeaf
	}
}

// Map is a keyed collection whose keys are not limited to strings. Unlike
// an object it is never proxied key by key.
type Map map[any]any

func (m Map) Keys() []any {
	keys := make([]any, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

// Set is an unordered collection of comparable values.
type Set struct {
	items mapset.Set[any]
}

func NewSet(vals ...any) *Set {
	return &Set{items: mapset.NewThreadUnsafeSet[any](vals...)}
}

func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return s.items.Cardinality()
}

func (s *Set) Has(v any) bool {
	return s != nil && s.items.Contains(v)
}

func (s *Set) Add(v any) {
	s.items.Add(v)
}

func (s *Set) Delete(v any) {
	s.items.Remove(v)
}

func (s *Set) Clear() {
	s.items.Clear()
}

func (s *Set) Values() []any {
	if s == nil {
		return nil
	}
	return s.items.ToSlice()
}

func (s *Set) Clone() *Set {
	return &Set{items: s.items.Clone()}
}

// Equal compares contents. It also lets go-cmp compare sets without
// reaching into unexported fields.
func (s *Set) Equal(other *Set) bool {
	if s == nil || other == nil {
		return s.Len() == other.Len()
	}
	return s.items.Equal(other.items)
}
