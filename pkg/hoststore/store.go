// Package hoststore is a minimal unidirectional store: one reducer folds
// dispatched actions into a state tree and listeners are told after each
// dispatch. It is the smallest host a pods engine can be registered with.
package hoststore

import (
	"slices"

	"github.com/delaneyj/pods/pods"
	"github.com/delaneyj/pods/pkg/value"
)

var ActionInit = pods.NewAction("@@hoststore/INIT", nil)

// Store is not safe for concurrent use.
type Store struct {
	reducer   pods.Reducer
	state     any
	listeners []*listener
	version   uint64
}

type listener struct {
	fn func()
}

func New(reducer pods.Reducer) *Store {
	s := &Store{reducer: reducer}
	s.state = reducer(nil, ActionInit)
	return s
}

func (s *Store) GetState() any { return s.state }

// Version counts dispatches that produced a new state reference.
func (s *Store) Version() uint64 { return s.version }

func (s *Store) Dispatch(a pods.Action) {
	next := s.reducer(s.state, a)
	if !value.Same(next, s.state) {
		s.version++
	}
	s.state = next
	for _, l := range slices.Clone(s.listeners) {
		l.fn()
	}
}

func (s *Store) Subscribe(fn func()) func() {
	l := &listener{fn: fn}
	s.listeners = append(s.listeners, l)
	return func() {
		s.listeners = slices.DeleteFunc(s.listeners, func(x *listener) bool {
			return x == l
		})
	}
}

// Combine nests reducers under keys. The combined state keeps its
// reference when no child reducer produced a new value.
func Combine(reducers map[string]pods.Reducer) pods.Reducer {
	keys := make([]string, 0, len(reducers))
	for k := range reducers {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	return func(committed any, a pods.Action) any {
		prev, _ := committed.(map[string]any)
		next := make(map[string]any, len(keys))
		changed := prev == nil || len(prev) != len(keys)
		for _, k := range keys {
			old, ok := prev[k]
			v := reducers[k](old, a)
			if !ok || !value.Same(v, old) {
				changed = true
			}
			next[k] = v
		}
		if !changed {
			return prev
		}
		return next
	}
}
