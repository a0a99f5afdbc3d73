package pods_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/delaneyj/pods/pkg/hoststore"
	"github.com/delaneyj/pods/pods"
)

//	root
//	├── counter  {count}
//	└── nested
//	    └── name "ryan"
func TestRegisterDetectsPaths(t *testing.T) {
	e, _ := newEngine(t)
	counter := mustState(t, e, map[string]any{"count": 0})
	name := mustState(t, e, "ryan")
	loose := mustState(t, e, map[string]any{"unused": true})

	store := hoststore.New(hoststore.Combine(map[string]pods.Reducer{
		"counter": counter.Reducer(),
		"nested": hoststore.Combine(map[string]pods.Reducer{
			"name": name.Reducer(),
		}),
	}))
	_, err := e.Register(store)
	require.NoError(t, err)

	p, err := counter.Path()
	require.NoError(t, err)
	assert.Equal(t, "counter", p)

	p, err = name.Path()
	require.NoError(t, err)
	assert.Equal(t, "nested.name", p)

	_, err = loose.Path()
	assert.ErrorIs(t, err, pods.ErrUnregisteredState)

	// markers are gone once registration finishes
	v, err := name.Select(store.GetState())
	require.NoError(t, err)
	assert.Equal(t, "ryan", v)

	v, err = counter.Select(store.GetState())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"count": 0}, v)
}

// the host sees one dispatch per settled batch
func TestHostReceivesOneCommitPerBatch(t *testing.T) {
	e, _ := newEngine(t)
	a := mustState(t, e, map[string]any{"v": 0})
	b := mustState(t, e, 1)

	store := hoststore.New(hoststore.Combine(map[string]pods.Reducer{
		"a": a.Reducer(),
		"b": b.Reducer(),
	}))
	unregister, err := e.Register(store)
	require.NoError(t, err)

	dispatches := 0
	store.Subscribe(func() { dispatches++ })
	version := store.Version()

	both := pods.BindAction0(a, func(d *pods.Proxy) error {
		if err := d.Set("v", 1); err != nil {
			return err
		}
		return b.Draft().Replace(2)
	})
	require.NoError(t, both())
	assert.Equal(t, 1, dispatches)
	assert.Equal(t, version+1, store.Version())

	root := store.GetState().(map[string]any)
	assert.Equal(t, map[string]any{"v": 1}, root["a"])
	assert.Equal(t, 2, root["b"])

	// nothing changed, nothing dispatched
	require.NoError(t, setter(a, "v")(1))
	assert.Equal(t, 1, dispatches)

	unregister()
	require.NoError(t, setter(a, "v")(2))
	assert.Equal(t, 1, dispatches)
}

// consecutive observers run from the engine's host listener, after the
// host holds the batch and before listeners subscribed later
func TestHostListenerResolvesObservers(t *testing.T) {
	e, _ := newEngine(t)
	s := mustState(t, e, map[string]any{"v": 0})
	store := hoststore.New(hoststore.Combine(map[string]pods.Reducer{"s": s.Reducer()}))
	_, err := e.Register(store)
	require.NoError(t, err)

	later := 0
	store.Subscribe(func() { later++ })

	var (
		seen      []any
		laterSeen []int
	)
	_, err = s.Watch(func(any, any) error {
		seen = append(seen, store.GetState().(map[string]any)["s"])
		laterSeen = append(laterSeen, later)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, setter(s, "v")(1))
	assert.Equal(t, []any{map[string]any{"v": 1}}, seen)
	assert.Equal(t, []int{0}, laterSeen)
	assert.Equal(t, 1, later)
}

func TestRegisterTwiceIsNoop(t *testing.T) {
	e, _ := newEngine(t)
	s := mustState(t, e, map[string]any{"v": 0})
	store := hoststore.New(hoststore.Combine(map[string]pods.Reducer{"s": s.Reducer()}))

	_, err := e.Register(store)
	require.NoError(t, err)
	_, err = e.Register(store)
	require.NoError(t, err)

	dispatches := 0
	store.Subscribe(func() { dispatches++ })
	require.NoError(t, setter(s, "v")(1))
	assert.Equal(t, 1, dispatches)
}

func TestReducerIsPure(t *testing.T) {
	e, _ := newEngine(t)
	s := mustState(t, e, map[string]any{"v": 0})
	reduce := s.Reducer()

	committed := s.Current()
	out := reduce(committed, pods.NewAction("unknown", nil))
	assert.Equal(t, committed, out)

	a := pods.NewAction("x", 1)
	assert.True(t, a.Is(pods.NewAction("x", 2)))
	assert.False(t, a.Is(pods.NewAction("y", 1)))
}

// every listening state handles a transmission once, in one batch
func TestTransmit(t *testing.T) {
	e, _ := newEngine(t)
	a := mustState(t, e, map[string]any{"v": 0})
	b := mustState(t, e, map[string]any{"v": 0})

	tx := pods.NewTransmitter[int](e, "reset")
	handled := map[string]int{}
	listen := func(name string, s *pods.State) func() {
		stop, err := tx.On(s, func(d *pods.Proxy, v int) error {
			handled[name]++
			return d.Set("v", v)
		})
		require.NoError(t, err)
		return stop
	}
	listen("a", a)
	stopB := listen("b", b)

	calls := 0
	_, err := pods.Observe([]pods.Trackable{a, b}, func([]pods.Change) error {
		calls++
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, tx.Transmit(7))
	assert.Equal(t, map[string]int{"a": 1, "b": 1}, handled)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 7, field(a, "v"))
	assert.Equal(t, 7, field(b, "v"))

	stopB()
	require.NoError(t, tx.Transmit(9))
	assert.Equal(t, 9, field(a, "v"))
	assert.Equal(t, 7, field(b, "v"))

	other, _ := newEngine(t)
	_, err = tx.On(mustState(t, other, map[string]any{}), func(*pods.Proxy, int) error { return nil })
	assert.ErrorIs(t, err, pods.ErrUnregisteredState)
}

// an async action settles synchronously, then applies its continuation
func TestAsyncAction(t *testing.T) {
	e, _ := newEngine(t)
	s := mustState(t, e, map[string]any{"status": "idle"})

	res, err := e.RunActionHandler(func() (any, error) {
		if err := s.Draft().Set("status", "loading"); err != nil {
			return nil, err
		}
		return pods.Go(context.Background(), func(context.Context) (any, error) {
			return pods.Mutation(func() error {
				return s.Draft().Set("status", "done")
			}), nil
		}), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "loading", field(s, "status"))

	p, ok := res.(*pods.Promise)
	require.True(t, ok)
	v, err := p.Await(context.Background())
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.Equal(t, "done", field(s, "status"))

	// the continuation is applied once
	_, err = p.Await(context.Background())
	require.NoError(t, err)
}

func TestAwaitPlainValue(t *testing.T) {
	p := pods.Go(context.Background(), func(context.Context) (any, error) {
		return 42, nil
	})
	v, err := p.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestAwaitCancelled(t *testing.T) {
	release := make(chan struct{})
	p := pods.Go(context.Background(), func(context.Context) (any, error) {
		<-release
		return nil, nil
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := p.Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAwaitUnboundMutation(t *testing.T) {
	p := pods.Go(context.Background(), func(context.Context) (any, error) {
		return pods.Mutation(func() error { return nil }), nil
	})
	<-p.Done()
	_, err := p.Await(context.Background())
	assert.ErrorIs(t, err, pods.ErrUnregisteredState)
}
