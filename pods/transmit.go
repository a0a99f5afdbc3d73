package pods

import (
	"log/slog"
	"slices"
)

// Transmitter broadcasts one payload to every state listening on it. All
// listeners run inside a single action handler, so the broadcast settles
// as one batch.
type Transmitter[T any] struct {
	engine    *Engine
	action    Action
	listeners []*transmitListener[T]
}

type transmitListener[T any] struct {
	state *State
	fn    func(p *Proxy, data T) error
}

func NewTransmitter[T any](e *Engine, name string) *Transmitter[T] {
	return &Transmitter[T]{
		engine: e,
		action: NewAction(actionPrefix+"/transmit/"+name, nil),
	}
}

// On makes s listen. fn mutates s through its proxy.
func (t *Transmitter[T]) On(s *State, fn func(p *Proxy, data T) error) (func(), error) {
	if s.engine != t.engine {
		return nil, &UnregisteredStateError{State: s.id, Reason: "transmitter belongs to another engine"}
	}
	l := &transmitListener[T]{state: s, fn: fn}
	t.listeners = append(t.listeners, l)
	return func() {
		t.listeners = slices.DeleteFunc(t.listeners, func(x *transmitListener[T]) bool {
			return x == l
		})
	}, nil
}

func (t *Transmitter[T]) Transmit(data T) error {
	listeners := slices.Clone(t.listeners)
	t.engine.logger.Debug("transmitting",
		slog.String("type", t.action.Type),
		slog.Uint64("id", t.action.ID),
		slog.Int("listeners", len(listeners)),
	)
	_, err := t.engine.RunActionHandler(func() (any, error) {
		for _, l := range listeners {
			if err := l.fn(l.state.Draft(), data); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}
