package pods

import (
	"github.com/pkg/errors"

	"github.com/delaneyj/pods/pkg/value"
)

// Proxy is a view of one path inside a state. It never owns data: every
// read resolves against the state's latest root and every write goes
// through the state's draft.
type Proxy struct {
	state *State
	path  value.Path
}

// raw is implemented by views that stand in for a value in the tree.
type raw interface {
	rawValue() any
}

func (p *Proxy) State() *State { return p.state }

func (p *Proxy) Path() value.Path { return p.path }

// At returns a proxy for a dotted path below p.
func (p *Proxy) At(path string) *Proxy {
	return &Proxy{state: p.state, path: p.path.Child(value.ParsePath(path)...)}
}

// Get reads key. At the root a declared action name yields its bound
// Handler. Objects come back as nested proxies; arrays, maps and sets come
// back as draft wrappers while mutation is allowed and as raw values
// otherwise.
func (p *Proxy) Get(key string) any {
	s := p.state
	if p.atRoot() {
		if h, ok := s.actions[key]; ok {
			return h
		}
	}

	path := p.path.Child(key)
	v, ok := s.read(path)
	if !ok {
		s.engine.recordRead(s, path)
		return nil
	}

	e := s.engine
	switch value.KindOf(v) {
	case value.KindObject:
		e.recordRead(s, path)
		return &Proxy{state: s, path: path}
	case value.KindArray, value.KindMap, value.KindSet:
		if e.status.mutable() {
			return p.collection(path, v)
		}
	}
	e.recordRead(s, path)
	return v
}

// Value returns the raw value at p's path.
func (p *Proxy) Value() any {
	v, _ := p.state.read(p.path)
	p.state.engine.recordRead(p.state, p.path)
	return v
}

func (p *Proxy) rawValue() any {
	v, _ := p.state.read(p.path)
	return v
}

// Set writes v at key. Proxies and collection wrappers are stored by the
// value they view.
func (p *Proxy) Set(key string, v any) error {
	path := p.path.Child(key)
	v = unwrap(v)
	return p.state.write(path, func(d *value.Draft) (bool, error) {
		return d.Set(path, v)
	})
}

func (p *Proxy) Delete(key string) error {
	path := p.path.Child(key)
	return p.state.write(path, func(d *value.Draft) (bool, error) {
		return d.Delete(path)
	})
}

// Replace swaps the whole value at p's path.
func (p *Proxy) Replace(v any) error {
	v = unwrap(v)
	s := p.state
	if len(p.path) == 0 {
		if _, ok := v.(map[string]any); !ok {
			return &IllegalMutationError{
				State:  s.id,
				Status: s.engine.status,
				Reason: "the root of an object state must stay an object",
			}
		}
	}
	return s.write(p.path, func(d *value.Draft) (bool, error) {
		return d.Set(p.path, v)
	})
}

// Call invokes the declared action name with args.
func (p *Proxy) Call(name string, args ...any) (any, error) {
	h, ok := p.state.actions[name]
	if !ok {
		return nil, errors.Errorf("pods: state %d has no action %q", p.state.id, name)
	}
	return h(args...)
}

func (p *Proxy) atRoot() bool {
	return p.path.Equal(p.state.rootPath())
}

func (p *Proxy) collection(path value.Path, v any) any {
	base := collectionBase{
		state: p.state,
		path:  path,
		seq:   p.state.engine.batchSeq,
	}
	switch v.(type) {
	case []any:
		return &ArrayDraft{base}
	case value.Map:
		return &MapDraft{base}
	case *value.Set:
		return &SetDraft{base}
	}
	return v
}

func unwrap(v any) any {
	if r, ok := v.(raw); ok {
		return r.rawValue()
	}
	return v
}

// Get reads key from p as a T, returning the zero value when the key is
// missing or holds another type.
func Get[T any](p *Proxy, key string) T {
	t, _ := p.Get(key).(T)
	return t
}
