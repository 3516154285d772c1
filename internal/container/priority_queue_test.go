package container

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPriorityQueueOrdersByPriority(t *testing.T) {
	q := NewPriorityQueue[string]()
	q.HeapPush("c", 3)
	q.HeapPush("a", 1)
	q.HeapPush("b", 2)

	v, p, ok := q.HeapPop()
	assert.True(t, ok)
	assert.Equal(t, "a", v)
	assert.Equal(t, 1.0, p)

	v, _, _ = q.HeapPop()
	assert.Equal(t, "b", v)
	v, _, _ = q.HeapPop()
	assert.Equal(t, "c", v)

	_, _, ok = q.HeapPop()
	assert.False(t, ok)
}

func TestPriorityQueueFirstDoesNotRemove(t *testing.T) {
	q := NewPriorityQueue[int]()
	q.HeapPush(42, 1)
	v, _, ok := q.First()
	assert.True(t, ok)
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, q.Len())
}
