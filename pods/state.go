package pods

import (
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"

	"github.com/delaneyj/pods/pkg/value"
)

// boxKey holds the value of a primitive state inside its boxed root.
const boxKey = "value"

type initialKind uint8

const (
	initialObject initialKind = iota
	initialPrimitive
)

// initial is the tagged union a state was declared with. Objects are kept
// as is, everything else is boxed so it has an identity and a path.
type initial struct {
	kind  initialKind
	value any
}

type StateOption func(*State) error

func WithCompute(key string, fn ComputeFunc) StateOption {
	return func(s *State) error {
		return s.addCompute(key, fn)
	}
}

func WithAction(name string, fn ActionFunc) StateOption {
	return func(s *State) error {
		return s.addAction(name, fn)
	}
}

// State is a container of one immutable value tree. Committed values are
// never mutated in place; writes go through a copy-on-write draft that
// the engine finalizes when the batch settles.
type State struct {
	id     uint64
	engine *Engine

	initial  initial
	current  any
	previous any
	draft    *value.Draft

	path    value.Path
	mounted bool
	pending *pendingMarker

	actions     map[string]Handler
	computes    []*compute
	computeKeys mapset.Set[string]
}

// NewState attaches a new state to e. A map[string]any initial value is an
// object state: ComputeFunc entries become computed keys and ActionFunc
// entries declared actions. Any other value is a primitive state.
func NewState(e *Engine, init any, opts ...StateOption) (*State, error) {
	if e == nil {
		return nil, &UnregisteredStateError{Reason: "state needs an engine"}
	}
	switch init.(type) {
	case nil:
		return nil, errors.New("pods: initial state must not be nil")
	case Handler, ActionFunc, ComputeFunc, func():
		return nil, errors.Errorf("pods: initial state must be a value, got %T", init)
	}

	s := &State{
		engine:      e,
		actions:     map[string]Handler{},
		computeKeys: mapset.NewThreadUnsafeSet[string](),
	}

	var root map[string]any
	if obj, ok := init.(map[string]any); ok {
		s.initial = initial{kind: initialObject, value: obj}
		root = make(map[string]any, len(obj))

		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			var err error
			switch v := obj[k].(type) {
			case ComputeFunc:
				err = s.addCompute(k, v)
			case ActionFunc:
				err = s.addAction(k, v)
			default:
				root[k] = v
			}
			if err != nil {
				return nil, err
			}
		}
	} else {
		s.initial = initial{kind: initialPrimitive, value: init}
		root = map[string]any{boxKey: init}
	}
	s.current = root
	s.previous = root

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if len(s.computes) > 0 && s.initial.kind != initialObject {
		return nil, &InvalidComputeError{Key: s.computes[0].key, Reason: "computes need an object state"}
	}
	for k := range s.actions {
		if _, ok := root[k]; ok {
			return nil, errors.Errorf("pods: action %q shadows a state key", k)
		}
	}

	for _, c := range s.computes {
		v, err := c.evaluate(s)
		if err != nil {
			return nil, err
		}
		root[c.key] = v
	}

	e.register(s)
	return s, nil
}

func (s *State) ID() uint64 { return s.id }

func (s *State) Engine() *Engine { return s.engine }

// Current returns the last committed value, unboxed for primitive states.
func (s *State) Current() any {
	v, _ := value.GetIn(s.current, s.rootPath())
	return v
}

// Previous returns the committed value at the start of the in-flight batch.
func (s *State) Previous() any {
	v, _ := value.GetIn(s.previous, s.rootPath())
	return v
}

// Draft returns the root proxy. Reads go through it anywhere; writes only
// inside action handlers and concurrent observers.
func (s *State) Draft() *Proxy {
	return &Proxy{state: s, path: s.rootPath()}
}

// Ref narrows the state to the property at a dotted path.
func (s *State) Ref(path string) Reference {
	return Reference{State: s, Path: s.rootPath().Child(value.ParsePath(path)...)}
}

// Reducer returns the function a host store folds this state with. During
// host registration it returns a unique marker so the state can be located
// in the host tree by identity.
func (s *State) Reducer() Reducer {
	return func(_ any, a Action) any {
		if a.Is(ActionInit) {
			return s.marker()
		}
		return s.Current()
	}
}

// Path is the dotted location of the state in its host's tree.
func (s *State) Path() (string, error) {
	if !s.mounted {
		return "", &UnregisteredStateError{State: s.id, Reason: "state is not mounted on a host"}
	}
	return s.path.String(), nil
}

// Select picks this state's value out of a host state tree.
func (s *State) Select(hostState any) (any, error) {
	if !s.mounted {
		return nil, &UnregisteredStateError{State: s.id, Reason: "state is not mounted on a host"}
	}
	v, ok := value.GetIn(hostState, s.path)
	if !ok {
		return nil, &UnregisteredStateError{State: s.id, Reason: "state not found at " + s.path.String()}
	}
	return v, nil
}

// Resolve mutates the state on the concurrent path, outside any declared
// action.
func (s *State) Resolve(fn func(p *Proxy) error) error {
	return s.engine.Apply(func() error {
		return fn(s.Draft())
	})
}

func (s *State) target() (*State, value.Path) {
	return s, s.rootPath()
}

func (s *State) rootPath() value.Path {
	if s.initial.kind == initialPrimitive {
		return value.Path{boxKey}
	}
	return nil
}

func (s *State) marker() *pendingMarker {
	if s.pending == nil {
		s.pending = &pendingMarker{state: s.id}
	}
	return s.pending
}

// latest is the root reads see: the draft while one is open, otherwise
// the committed value.
func (s *State) latest() any {
	if s.draft != nil {
		return s.draft.Root()
	}
	return s.current
}

func (s *State) read(path value.Path) (any, bool) {
	return value.GetIn(s.latest(), path)
}

func (s *State) checkMutable(path value.Path) error {
	status := s.engine.status
	if !status.mutable() {
		return &IllegalMutationError{
			State:  s.id,
			Path:   path.String(),
			Status: status,
			Reason: "state can only be mutated inside action handlers or concurrent observers",
		}
	}
	if len(path) > 0 && s.computeKeys.Contains(path[0]) {
		return &IllegalMutationError{
			State:  s.id,
			Path:   path.String(),
			Status: status,
			Reason: "computed properties are read-only",
		}
	}
	return nil
}

// write applies fn to the state's draft, opening one and joining the batch
// on first use, and recomputes the computes the write touched.
func (s *State) write(path value.Path, fn func(d *value.Draft) (bool, error)) error {
	if err := s.checkMutable(path); err != nil {
		return err
	}
	if s.draft == nil {
		s.draft = value.NewDraft(s.current)
		s.engine.markUpdated(s)
	}
	changed, err := fn(s.draft)
	if err != nil {
		return errors.Wrapf(err, "writing state %d at %q", s.id, path.String())
	}
	if !changed {
		return nil
	}
	return s.recompute(path, 0)
}

// finalize closes the draft and reports whether the committed value
// changed. A result deep-equal to the committed value keeps the old
// reference.
func (s *State) finalize() bool {
	root := s.draft.Finalize()
	s.draft = nil
	if value.Same(root, s.current) || value.Equal(root, s.current) {
		return false
	}
	s.current = root
	return true
}

func (s *State) discardDraft() {
	s.draft.Discard()
	s.draft = nil
}
