package pods_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/delaneyj/pods/pods"
)

// one action touching many states notifies a consecutive observer once
func TestConsecutiveFiresOncePerAction(t *testing.T) {
	e, _ := newEngine(t)
	a := mustState(t, e, map[string]any{"v": 0})
	b := mustState(t, e, map[string]any{"v": 0})
	c := mustState(t, e, map[string]any{"v": 0})

	calls := 0
	var last []pods.Change
	_, err := pods.Observe([]pods.Trackable{a, b, c}, func(changes []pods.Change) error {
		calls++
		last = changes
		return nil
	})
	require.NoError(t, err)

	all := pods.BindAction0(a, func(d *pods.Proxy) error {
		for i, s := range []*pods.State{a, b, c} {
			if err := s.Draft().Set("v", i+1); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, all())
	assert.Equal(t, 1, calls)
	require.Len(t, last, 3)
	assert.Equal(t, map[string]any{"v": 3}, last[2].Current)
	assert.Equal(t, map[string]any{"v": 0}, last[2].Previous)
}

// A ──track──▶ B: the write to B lands in the same batch
func TestConcurrentPropagation(t *testing.T) {
	e, _ := newEngine(t)
	a := mustState(t, e, map[string]any{"v": 0})
	b := mustState(t, e, map[string]any{"doubled": 0})

	_, err := pods.Track([]pods.Trackable{a}, func(changes []pods.Change) error {
		v := changes[0].Current.(map[string]any)["v"].(int)
		return b.Draft().Set("doubled", v*2)
	})
	require.NoError(t, err)

	calls := 0
	_, err = pods.Observe([]pods.Trackable{a, b}, func([]pods.Change) error {
		calls++
		assert.Equal(t, field(a, "v").(int)*2, field(b, "doubled"))
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, setter(a, "v")(4))
	assert.Equal(t, 8, field(b, "doubled"))
	assert.Equal(t, 1, calls)
}

// a concurrent observer sees a write to B made by the handler that
// changed A, before B itself is finalized
func TestConcurrentSeesLatestValues(t *testing.T) {
	e, _ := newEngine(t)
	a := mustState(t, e, map[string]any{"v": 0})
	b := mustState(t, e, map[string]any{"v": 0})

	var seen []any
	_, err := pods.Track([]pods.Trackable{a, b}, func(changes []pods.Change) error {
		seen = append(seen, changes[1].Current.(map[string]any)["v"])
		return nil
	})
	require.NoError(t, err)

	both := pods.BindAction0(a, func(d *pods.Proxy) error {
		if err := d.Set("v", 1); err != nil {
			return err
		}
		return b.Draft().Set("v", 2)
	})
	require.NoError(t, both())
	require.NotEmpty(t, seen)
	assert.Equal(t, 2, seen[0])
}

// A and B tracking each other with ever changing writes never settle
func TestObserverCycleGuard(t *testing.T) {
	e, _ := newEngine(t, pods.WithMaxObserverPasses(4))
	a := mustState(t, e, map[string]any{"v": 0})
	b := mustState(t, e, map[string]any{"v": 0})

	follow := func(from, to *pods.State) {
		_, err := pods.Track([]pods.Trackable{from}, func(changes []pods.Change) error {
			v := changes[0].Current.(map[string]any)["v"].(int)
			return to.Draft().Set("v", v+1)
		})
		require.NoError(t, err)
	}
	follow(a, b)
	follow(b, a)

	err := setter(a, "v")(1)
	require.ErrorIs(t, err, pods.ErrObserverCycle)

	var cycle *pods.ObserverCycleError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, 5, cycle.Passes)

	assert.Equal(t, 0, field(a, "v"))
	assert.Equal(t, 0, field(b, "v"))
	assert.Equal(t, pods.StatusIdle, e.Status())
}

// A and B tracking each other converge once the values stop changing
func TestObserverMutualConverges(t *testing.T) {
	e, _ := newEngine(t)
	a := mustState(t, e, map[string]any{"v": 0})
	b := mustState(t, e, map[string]any{"v": 0})

	mirror := func(from, to *pods.State) {
		_, err := pods.Track([]pods.Trackable{from}, func(changes []pods.Change) error {
			return to.Draft().Set("v", changes[0].Current.(map[string]any)["v"])
		})
		require.NoError(t, err)
	}
	mirror(a, b)
	mirror(b, a)

	require.NoError(t, setter(a, "v")(7))
	assert.Equal(t, 7, field(a, "v"))
	assert.Equal(t, 7, field(b, "v"))
}

// a narrowed observer ignores writes to other properties
func TestPropertyNarrowsObserver(t *testing.T) {
	e, _ := newEngine(t)
	s := mustState(t, e, map[string]any{
		"count": 0,
		"user":  map[string]any{"name": "ryan"},
	})

	ref, err := e.Property(func() {
		s.Draft().Get("user").(*pods.Proxy).Get("name")
	})
	require.NoError(t, err)
	assert.Equal(t, "user.name", ref.Path.String())
	assert.Equal(t, "ryan", ref.Value())

	var got []any
	_, err = pods.Observe([]pods.Trackable{ref}, func(changes []pods.Change) error {
		got = append(got, changes[0].Current)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, setter(s, "count")(1))
	assert.Empty(t, got)

	rename := pods.BindAction(s, func(d *pods.Proxy, name string) error {
		return d.At("user").Set("name", name)
	})
	require.NoError(t, rename("john"))
	assert.Equal(t, []any{"john"}, got)

	_, err = e.Property(func() {})
	assert.ErrorIs(t, err, pods.ErrUnregisteredState)
}

func TestUnregisterIsIdempotent(t *testing.T) {
	e, _ := newEngine(t)
	s := mustState(t, e, map[string]any{"v": 0})

	calls := 0
	stop, err := s.Watch(func(any, any) error {
		calls++
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, setter(s, "v")(1))
	stop()
	stop()
	require.NoError(t, setter(s, "v")(2))
	assert.Equal(t, 1, calls)
}

func TestObserveErrors(t *testing.T) {
	e1, _ := newEngine(t)
	e2, _ := newEngine(t)
	a := mustState(t, e1, map[string]any{"v": 0})
	b := mustState(t, e2, map[string]any{"v": 0})
	noop := func([]pods.Change) error { return nil }

	_, err := pods.Observe(nil, noop)
	assert.ErrorIs(t, err, pods.ErrUnregisteredState)

	_, err = pods.Track([]pods.Trackable{a, b}, noop)
	assert.ErrorIs(t, err, pods.ErrUnregisteredState)

	_, err = pods.Observe([]pods.Trackable{pods.Reference{}}, noop)
	assert.ErrorIs(t, err, pods.ErrUnregisteredState)
}

// a failing observer is reported and the batch still commits
func TestObserverErrorsAreReported(t *testing.T) {
	e, errs := newEngine(t)
	s := mustState(t, e, map[string]any{"v": 0})

	boom := errors.New("boom")
	_, err := s.Watch(func(any, any) error { return boom })
	require.NoError(t, err)
	_, err = pods.Track([]pods.Trackable{s}, func([]pods.Change) error { return boom })
	require.NoError(t, err)

	require.NoError(t, setter(s, "v")(1))
	assert.Equal(t, 1, field(s, "v"))
	require.Len(t, *errs, 2)
	for _, err := range *errs {
		assert.ErrorIs(t, err, boom)
	}
}

// observers may not write while the batch is being handed out
func TestConsecutiveObserverCannotWrite(t *testing.T) {
	e, _ := newEngine(t)
	s := mustState(t, e, map[string]any{"v": 0})

	var inner error
	_, err := s.Watch(func(any, any) error {
		inner = s.Draft().Set("v", 100)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, setter(s, "v")(1))
	require.ErrorIs(t, inner, pods.ErrIllegalMutation)
	assert.Equal(t, 1, field(s, "v"))
}

// a contract error inside a concurrent observer aborts the whole batch
func TestConcurrentObserverContractErrorAborts(t *testing.T) {
	e, errs := newEngine(t)
	a := mustState(t, e, map[string]any{"v": 0})
	b := mustState(t, e, map[string]any{"key": "a", "a": 1},
		pods.WithCompute("picked", func(p *pods.Proxy, _ pods.Yield) any {
			return p.Get(pods.Get[string](p, "key"))
		}),
	)

	_, err := pods.Track([]pods.Trackable{a}, func([]pods.Change) error {
		return b.Draft().Set("key", "missing")
	})
	require.NoError(t, err)

	err = setter(a, "v")(1)
	require.ErrorIs(t, err, pods.ErrInvalidCompute)

	// should leave both states at their pre-action values
	assert.Equal(t, 0, field(a, "v"))
	assert.Equal(t, "a", field(b, "key"))
	assert.Equal(t, 1, field(b, "picked"))
	assert.Empty(t, *errs)
	assert.Equal(t, pods.StatusIdle, e.Status())
}

// a contract error from a consecutive observer reaches the caller; the
// batch it was told about stays committed
func TestConsecutiveObserverContractError(t *testing.T) {
	e, errs := newEngine(t)
	s := mustState(t, e, map[string]any{"v": 0})

	calls := 0
	_, err := s.Watch(func(any, any) error {
		calls++
		return s.Draft().Set("v", 100)
	})
	require.NoError(t, err)

	err = setter(s, "v")(1)
	require.ErrorIs(t, err, pods.ErrIllegalMutation)
	assert.Equal(t, 1, field(s, "v"))
	assert.Equal(t, 1, calls)
	assert.Empty(t, *errs)

	require.ErrorIs(t, setter(s, "v")(2), pods.ErrIllegalMutation)
	assert.Equal(t, 2, field(s, "v"))
	assert.Equal(t, 2, calls)
}

func TestUse(t *testing.T) {
	e, _ := newEngine(t)
	n := mustState(t, e, "a")

	var renders []any
	stop, err := n.Use(func(current any) {
		renders = append(renders, current)
	})
	require.NoError(t, err)
	assert.Equal(t, []any{"a"}, renders)

	set := pods.BindAction(n, func(d *pods.Proxy, v string) error {
		return d.Replace(v)
	})
	require.NoError(t, set("b"))
	require.NoError(t, set("b"))
	assert.Equal(t, []any{"a", "b"}, renders)

	stop()
	require.NoError(t, set("c"))
	assert.Len(t, renders, 2)
}
