package pods

import (
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/delaneyj/pods/pkg/value"
)

type ObserverKind uint8

const (
	// Consecutive observers run once after a batch settles.
	Consecutive ObserverKind = iota
	// Concurrent observers run during settle, with mutation privileges.
	Concurrent
)

func (k ObserverKind) String() string {
	if k == Concurrent {
		return "concurrent"
	}
	return "consecutive"
}

// Trackable is anything an observer can watch: a whole *State or a
// Reference narrowed to one of its properties.
type Trackable interface {
	target() (*State, value.Path)
}

// Reference is a state narrowed to the property at Path.
type Reference struct {
	State *State
	Path  value.Path
}

func (r Reference) target() (*State, value.Path) {
	return r.State, r.Path
}

// Value reads the referenced property from the latest root.
func (r Reference) Value() any {
	v, _ := r.State.read(r.Path)
	return v
}

type Change struct {
	Target   Trackable
	Current  any
	Previous any
}

type ObserverFunc func(changes []Change) error

type registration struct {
	seq     uint64
	kind    ObserverKind
	targets []Trackable
	fn      ObserverFunc
	removed bool
}

// changes reports every tracked value against the snapshot prev returns
// for its state, and whether at least one of them is a different value.
func (r *registration) changes(prev func(*State) any) ([]Change, bool) {
	if r.removed {
		return nil, false
	}
	out := make([]Change, 0, len(r.targets))
	changed := false
	for _, t := range r.targets {
		s, path := t.target()
		cur, _ := value.GetIn(s.latest(), path)
		old, _ := value.GetIn(prev(s), path)
		if !value.Same(cur, old) {
			changed = true
		}
		out = append(out, Change{Target: t, Current: cur, Previous: old})
	}
	return out, changed
}

type registry struct {
	seq     uint64
	regs    []*registration
	byState map[*State]mapset.Set[*registration]
}

func newRegistry() *registry {
	return &registry{
		byState: map[*State]mapset.Set[*registration]{},
	}
}

func (r *registry) add(reg *registration) {
	r.seq++
	reg.seq = r.seq
	r.regs = append(r.regs, reg)
	for _, t := range reg.targets {
		s, _ := t.target()
		set, ok := r.byState[s]
		if !ok {
			set = mapset.NewThreadUnsafeSet[*registration]()
			r.byState[s] = set
		}
		set.Add(reg)
	}
}

func (r *registry) remove(reg *registration) {
	if reg.removed {
		return
	}
	reg.removed = true
	for i, x := range r.regs {
		if x == reg {
			r.regs = append(r.regs[:i:i], r.regs[i+1:]...)
			break
		}
	}
	for _, t := range reg.targets {
		s, _ := t.target()
		if set, ok := r.byState[s]; ok {
			set.Remove(reg)
			if set.Cardinality() == 0 {
				delete(r.byState, s)
			}
		}
	}
}

// tracking returns the registrations of kind that watch s, in registration
// order.
func (r *registry) tracking(s *State, kind ObserverKind) []*registration {
	set, ok := r.byState[s]
	if !ok {
		return nil
	}
	var out []*registration
	for _, reg := range r.regs {
		if reg.kind == kind && set.Contains(reg) {
			out = append(out, reg)
		}
	}
	return out
}

func (r *registry) all(kind ObserverKind) []*registration {
	var out []*registration
	for _, reg := range r.regs {
		if reg.kind == kind {
			out = append(out, reg)
		}
	}
	return out
}

// Observe registers a Consecutive observer: fn runs once per settled batch
// in which at least one target changed. The returned func unregisters it
// and may be called any number of times.
func Observe(targets []Trackable, fn ObserverFunc) (func(), error) {
	return observe(Consecutive, targets, fn)
}

// Track registers a Concurrent observer: fn runs while the batch settles,
// each time a target's state is finalized with a change, and may mutate
// other states.
func Track(targets []Trackable, fn ObserverFunc) (func(), error) {
	return observe(Concurrent, targets, fn)
}

func observe(kind ObserverKind, targets []Trackable, fn ObserverFunc) (func(), error) {
	if len(targets) == 0 {
		return nil, &UnregisteredStateError{Reason: "observers need at least one state"}
	}
	var e *Engine
	for _, t := range targets {
		s, _ := t.target()
		switch {
		case s == nil || s.engine == nil:
			return nil, &UnregisteredStateError{Reason: "observed state is not attached to an engine"}
		case e == nil:
			e = s.engine
		case s.engine != e:
			return nil, &UnregisteredStateError{State: s.id, Reason: "observed states belong to different engines"}
		}
	}

	reg := &registration{
		kind:    kind,
		targets: append([]Trackable(nil), targets...),
		fn:      fn,
	}
	e.observers.add(reg)
	return func() {
		e.observers.remove(reg)
	}, nil
}

// Watch observes the whole state with unboxed values.
func (s *State) Watch(fn func(current, previous any) error) (func(), error) {
	return Observe([]Trackable{s}, func(changes []Change) error {
		return fn(changes[0].Current, changes[0].Previous)
	})
}

// Use calls fn with the current value now and again after every settled
// change, the way a view binding re-renders.
func (s *State) Use(fn func(current any)) (func(), error) {
	unsubscribe, err := s.Watch(func(current, _ any) error {
		fn(current)
		return nil
	})
	if err != nil {
		return nil, err
	}
	fn(s.Current())
	return unsubscribe, nil
}
