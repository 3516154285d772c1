package container

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestListInsertSortedOrder(t *testing.T) {
	l := NewList[string]("test")
	l.InsertSorted("b", 5)
	l.InsertSorted("a", 1)
	l.InsertSorted("c", 9)
	assert.Equal(t, []string{"a", "b", "c"}, l.Values())
	assert.Equal(t, 3, l.Len())
}

func TestListInsertSortedStableOnTies(t *testing.T) {
	l := NewList[string]("test")
	l.InsertSorted("first", 5)
	l.InsertSorted("second", 5)
	assert.Equal(t, []string{"first", "second"}, l.Values())
}

func TestListRemove(t *testing.T) {
	l := NewList[int]("test")
	n1 := l.InsertSorted(1, 1)
	n2 := l.InsertSorted(2, 2)
	n3 := l.InsertSorted(3, 3)
	l.Remove(n2)
	assert.Equal(t, []int{1, 3}, l.Values())
	assert.Equal(t, n1, l.First())
	assert.Equal(t, n3, l.Last())
}

func TestListRemoveForeignNodePanics(t *testing.T) {
	l1 := NewList[int]("l1")
	l2 := NewList[int]("l2")
	n := l1.InsertSorted(1, 1)
	assert.Panics(t, func() { l2.Remove(n) })
}
