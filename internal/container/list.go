package container

import "fmt"

// Node is one element of a List, ordered by S among its siblings.
type Node[T any] struct {
	list *List[T]
	prev *Node[T]
	next *Node[T]

	S     float64
	Value T
}

// Prev returns the node immediately ahead (smaller S), or nil at the head.
func (n *Node[T]) Prev() *Node[T] { return n.prev }

// Next returns the node immediately behind (larger S), or nil at the tail.
func (n *Node[T]) Next() *Node[T] { return n.next }

// List is a generic doubly-linked list kept sorted by each Node's S field,
// adapted from utils/container/list.go's List[T,E] — the teacher's
// per-lane vehicle/pedestrian ordering structure. This is the structural
// basis of queue.Queue (spec.md §4.C).
type List[T any] struct {
	Name   string
	head   *Node[T]
	tail   *Node[T]
	length int
}

// NewList returns an empty List tagged with name (used only in panic
// diagnostics, mirroring the teacher's List.ID field).
func NewList[T any](name string) *List[T] {
	return &List[T]{Name: name}
}

// Len reports the number of nodes in the list.
func (l *List[T]) Len() int { return l.length }

// First returns the node with the smallest S, or nil if empty.
func (l *List[T]) First() *Node[T] { return l.head }

// Last returns the node with the largest S, or nil if empty.
func (l *List[T]) Last() *Node[T] { return l.tail }

// InsertSorted creates a node for value at position s and inserts it in
// sorted order, returning the new node. Ties keep insertion order (new
// node placed after any existing node with the same S), mirroring the
// teacher's InsertBefore/InsertAfter stable-ordering convention.
func (l *List[T]) InsertSorted(value T, s float64) *Node[T] {
	n := &Node[T]{list: l, S: s, Value: value}
	if l.head == nil {
		l.head = n
		l.tail = n
		l.length++
		return n
	}
	// Find the first node whose S is strictly greater than s; insert before it.
	cur := l.head
	for cur != nil && cur.S <= s {
		cur = cur.next
	}
	if cur == nil {
		// append at tail
		n.prev = l.tail
		l.tail.next = n
		l.tail = n
	} else if cur.prev == nil {
		// new head
		n.next = cur
		cur.prev = n
		l.head = n
	} else {
		n.prev = cur.prev
		n.next = cur
		cur.prev.next = n
		cur.prev = n
	}
	l.length++
	return n
}

// Remove detaches n from its list. Panics if n does not belong to l,
// mirroring the teacher's InsertBefore/InsertAfter parent-ownership guard.
func (l *List[T]) Remove(n *Node[T]) {
	if n.list != l {
		panic(fmt.Sprintf("container: remove node not belonging to list %q", l.Name))
	}
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		l.tail = n.prev
	}
	n.prev, n.next, n.list = nil, nil, nil
	l.length--
}

// Values returns every value in ascending-S order.
func (l *List[T]) Values() []T {
	out := make([]T, 0, l.length)
	for n := l.head; n != nil; n = n.next {
		out = append(out, n.Value)
	}
	return out
}
