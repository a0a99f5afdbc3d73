package hoststore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/delaneyj/pods/pkg/hoststore"
	"github.com/delaneyj/pods/pkg/value"
	"github.com/delaneyj/pods/pods"
)

var bump = pods.NewAction("bump", nil)

func counter(committed any, a pods.Action) any {
	n, _ := committed.(int)
	if a.Is(bump) {
		return n + 1
	}
	return n
}

func TestStore(t *testing.T) {
	store := hoststore.New(counter)
	assert.Equal(t, 0, store.GetState())

	calls := 0
	stop := store.Subscribe(func() { calls++ })

	store.Dispatch(bump)
	store.Dispatch(pods.NewAction("other", nil))
	assert.Equal(t, 1, store.GetState())
	assert.Equal(t, 2, calls)
	assert.Equal(t, uint64(1), store.Version())

	stop()
	stop()
	store.Dispatch(bump)
	assert.Equal(t, 2, calls)
}

// the combined tree keeps its reference when no child changed
func TestCombine(t *testing.T) {
	reduce := hoststore.Combine(map[string]pods.Reducer{
		"a": counter,
		"b": hoststore.Combine(map[string]pods.Reducer{"c": counter}),
	})

	first := reduce(nil, pods.NewAction("init", nil))
	assert.Equal(t, map[string]any{"a": 0, "b": map[string]any{"c": 0}}, first)

	same := reduce(first, pods.NewAction("other", nil))
	assert.True(t, value.Same(first, same))

	next := reduce(first, bump)
	assert.False(t, value.Same(first, next))
	assert.Equal(t, map[string]any{"a": 1, "b": map[string]any{"c": 1}}, next)
}
