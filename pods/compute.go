package pods

import (
	"iter"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/delaneyj/pods/pkg/value"
)

// Yield suspends a compute after its narrowing reads. It follows the
// iterator contract: when it returns false the compute should return.
type Yield func(narrowed ...any) bool

// ComputeFunc derives a value from its state. Reads made before calling
// yield narrow when the compute is re-run; a compute that never yields
// re-runs whenever anything it read is written.
//
//	z := func(p *Proxy, yield Yield) any {
//		yield(p.Get("x"))
//		return Get[int](p, "x") * Get[int](p, "y")
//	}
type ComputeFunc func(p *Proxy, yield Yield) any

type Narrowed struct {
	pre func(p *Proxy)
}

// Narrow is the callback form of a yielding compute: pre makes the
// narrowing reads and the function passed to Compute produces the value.
//
//	Narrow(func(p *Proxy) { p.Get("x") }).Compute(func(p *Proxy) any { ... })
func Narrow(pre func(p *Proxy)) Narrowed {
	return Narrowed{pre: pre}
}

func (n Narrowed) Compute(full func(p *Proxy) any) ComputeFunc {
	return func(p *Proxy, yield Yield) any {
		n.pre(p)
		if !yield() {
			return nil
		}
		return full(p)
	}
}

type compute struct {
	key string
	fn  ComputeFunc

	// reads made before the yield; nil when the compute does not yield
	narrow []value.Path
	// reads the last value was computed from
	deps    []value.Path
	yielded bool
}

type step struct {
	yielded bool
	value   any
}

func (s *State) addCompute(key string, fn ComputeFunc) error {
	if fn == nil {
		return &InvalidComputeError{Key: key, Reason: "compute function is nil"}
	}
	if s.computeKeys.Contains(key) {
		return &InvalidComputeError{Key: key, Reason: "compute declared twice"}
	}
	s.computeKeys.Add(key)
	s.computes = append(s.computes, &compute{key: key, fn: fn})
	return nil
}

// trigger is the set of paths whose writes re-run the compute.
func (c *compute) trigger() []value.Path {
	if c.yielded {
		return c.narrow
	}
	return c.deps
}

func (c *compute) touchedBy(path value.Path) bool {
	if len(path) > 0 && path[0] == c.key {
		return false
	}
	for _, dep := range c.trigger() {
		if path.Touches(dep) {
			return true
		}
	}
	return false
}

// evaluate runs the compute to completion as a single-yield coroutine,
// recording the reads on each side of the yield.
func (c *compute) evaluate(s *State) (any, error) {
	e := s.engine
	next, stop := iter.Pull(func(yield func(step) bool) {
		res := c.fn(s.Draft(), func(...any) bool {
			return yield(step{yielded: true})
		})
		yield(step{value: res})
	})
	defer stop()

	var (
		pre, post []Reference
		st        step
		yielded   bool
	)
	err := e.withStatus(StatusCompute, func() error {
		pre = e.collectReads(func() {
			st, _ = next()
		})
		if !st.yielded {
			return nil
		}
		yielded = true
		if len(ownPaths(s, pre)) == 0 {
			return &InvalidComputeError{Key: c.key, Reason: "yield must reference at least one property to narrow the compute"}
		}
		post = e.collectReads(func() {
			st, _ = next()
		})
		if st.yielded {
			return &InvalidComputeError{Key: c.key, Reason: "computes can only yield once"}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	st.value = unwrap(st.value)
	if st.value == nil {
		return nil, &InvalidComputeError{Key: c.key, Reason: "computes cannot return nil or static values"}
	}
	if yielded {
		c.narrow = ownPaths(s, pre)
		c.deps = ownPaths(s, post)
	} else {
		c.deps = ownPaths(s, pre)
		if len(c.deps) == 0 {
			return nil, &InvalidComputeError{Key: c.key, Reason: "computes cannot return nil or static values"}
		}
	}
	c.yielded = yielded
	return st.value, nil
}

// ownPaths keeps the distinct paths of reads made on s. Reading an object
// on the way to one of its properties only depends on the property.
func ownPaths(s *State, refs []Reference) []value.Path {
	seen := mapset.NewThreadUnsafeSet[string]()
	var paths []value.Path
	for _, r := range refs {
		if r.State != s || !seen.Add(r.Path.String()) {
			continue
		}
		paths = append(paths, r.Path)
	}

	out := paths[:0:0]
	for i, p := range paths {
		if !refined(p, i, paths) {
			out = append(out, p)
		}
	}
	return out
}

func refined(p value.Path, i int, paths []value.Path) bool {
	for j, q := range paths {
		if j != i && len(q) > len(p) && q.HasPrefix(p) {
			return true
		}
	}
	return false
}

// recompute re-runs every compute a write at path touched and stores
// values that differ. Stored values are writes themselves, so computes
// reading other computes chain; depth bounds a cycle between them.
func (s *State) recompute(path value.Path, depth int) error {
	if len(s.computes) == 0 {
		return nil
	}
	if depth > len(s.computes) {
		return &InvalidComputeError{Key: path.String(), Reason: "computes depend on each other in a cycle"}
	}
	for _, c := range s.computes {
		if !c.touchedBy(path) {
			continue
		}
		v, err := c.evaluate(s)
		if err != nil {
			return err
		}
		key := value.Path{c.key}
		if old, ok := s.read(key); ok && value.Equal(old, v) {
			continue
		}
		if _, err := s.draft.Set(key, v); err != nil {
			return err
		}
		if err := s.recompute(key, depth+1); err != nil {
			return err
		}
	}
	return nil
}
