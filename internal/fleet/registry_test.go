package fleet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNode(tag string) *Node {
	return NewNode(tag, nil, nil, nil, nil, nil, testLogger())
}

func TestRegistry_AddGetRemove(t *testing.T) {
	r := NewRegistry()
	n := newTestNode("worker_1")
	r.Add(n)

	got, ok := r.Get("worker_1")
	require.True(t, ok)
	assert.Same(t, n, got)

	r.Remove("worker_1")
	_, ok = r.Get("worker_1")
	assert.False(t, ok)
}

func TestRegistry_KeysNaturalSort(t *testing.T) {
	r := NewRegistry()
	for _, tag := range []string{"worker_10", "worker_2", "worker_1"} {
		r.Add(newTestNode(tag))
	}
	assert.Equal(t, []string{"worker_1", "worker_2", "worker_10"}, r.Keys())
}

func TestRegistry_ValuesMatchesKeysOrder(t *testing.T) {
	r := NewRegistry()
	for _, tag := range []string{"gpu_20", "gpu_3"} {
		r.Add(newTestNode(tag))
	}
	values := r.Values()
	require.Len(t, values, 2)
	assert.Equal(t, "gpu_3", values[0].Tag())
	assert.Equal(t, "gpu_20", values[1].Tag())
}

func TestRegistry_Len(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, 0, r.Len())
	r.Add(newTestNode("worker_1"))
	assert.Equal(t, 1, r.Len())
}
