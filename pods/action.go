package pods

import (
	"github.com/pkg/errors"
)

// ActionFunc is a declared action body. It mutates its state through p.
type ActionFunc func(p *Proxy, args ...any) (any, error)

// Handler is an action bound to the engine: calling it runs the body as an
// action handler and settles the batch.
type Handler func(args ...any) (any, error)

func (s *State) addAction(name string, fn ActionFunc) error {
	if fn == nil {
		return errors.Errorf("pods: action %q is nil", name)
	}
	if _, ok := s.actions[name]; ok {
		return errors.Errorf("pods: action %q declared twice", name)
	}
	s.actions[name] = s.bind(fn)
	return nil
}

func (s *State) bind(fn ActionFunc) Handler {
	return func(args ...any) (any, error) {
		return s.engine.RunActionHandler(func() (any, error) {
			return fn(s.Draft(), args...)
		})
	}
}

// Actions declares several actions at once and returns their handlers.
func (s *State) Actions(fns map[string]ActionFunc) (map[string]Handler, error) {
	out := make(map[string]Handler, len(fns))
	for name, fn := range fns {
		if s.computeKeys.Contains(name) {
			return nil, errors.Errorf("pods: action %q shadows a compute", name)
		}
		if err := s.addAction(name, fn); err != nil {
			return nil, err
		}
		out[name] = s.actions[name]
	}
	return out, nil
}

// Handler looks up a declared action.
func (s *State) Handler(name string) (Handler, bool) {
	h, ok := s.actions[name]
	return h, ok
}

// BindAction binds a typed one-argument action to s. The returned error is
// only ever a contract error; failures of fn itself are reported through
// the engine and revert the batch.
func BindAction[A any](s *State, fn func(p *Proxy, arg A) error) func(A) error {
	return func(arg A) error {
		_, err := s.engine.RunActionHandler(func() (any, error) {
			return nil, fn(s.Draft(), arg)
		})
		return err
	}
}

func BindAction0(s *State, fn func(p *Proxy) error) func() error {
	return func() error {
		_, err := s.engine.RunActionHandler(func() (any, error) {
			return nil, fn(s.Draft())
		})
		return err
	}
}
