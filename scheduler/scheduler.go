// Package scheduler implements spec.md §4.B's deterministic event
// scheduler: a min-priority queue of (Time, Command) ordered by
// (Time, sequence-number), supporting push/update/cancel/peek_time/pop with
// lazy deletion. Grounded on utils/container/priority_queue.go's generic
// PriorityQueue[T], but the (Time, seq) composite key does not fit that
// type's single-float64 priority cleanly, so the heap here is specialized
// directly per spec.md §9's own recommendation:
// BinaryHeap<(Reverse<Time>, u64 seq, Command)> plus a companion map for
// update/cancel.
package scheduler

import (
	"container/heap"

	"github.com/tsinghua-fib-lab/citysim-go/internal/logging"
	"github.com/tsinghua-fib-lab/citysim-go/simtime"
)

var log = logging.For("scheduler")

type entry struct {
	time  simtime.Time
	seq   uint64
	cmd   Command
	index int
	dead  bool
}

type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].time != h[j].time {
		return h[i].time < h[j].time
	}
	return h[i].seq < h[j].seq
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Scheduler is a stable min-priority queue of (Time, Command). Given
// identical push/update/cancel call sequences, pop always returns commands
// in (Time, insertion-order) order (spec.md §8 Determinism/Scheduler
// invariants).
type Scheduler struct {
	heap    entryHeap
	live    map[Key]*entry
	nextSeq uint64
	lastPop simtime.Time
	popped  bool
}

// New returns an empty Scheduler.
func New() *Scheduler {
	return &Scheduler{
		heap: make(entryHeap, 0),
		live: make(map[Key]*entry),
	}
}

// Push inserts cmd at time, ties broken by a monotonically increasing
// sequence number. If cmd already has a live scheduled occurrence, that
// occurrence is invalidated first (Push behaves like Update for an
// existing key, matching the teacher's "one UpdateCar command per car at
// all times" invariant from spec.md §4.D's transition contract).
func (s *Scheduler) Push(time simtime.Time, cmd Command) {
	key := cmd.Key()
	if old, ok := s.live[key]; ok {
		old.dead = true
	}
	e := &entry{time: time, seq: s.nextSeq, cmd: cmd}
	s.nextSeq++
	heap.Push(&s.heap, e)
	s.live[key] = e
}

// Update reschedules cmd's existing live occurrence to newTime; idempotent,
// and behaves like Push if no occurrence exists yet. Matches spec.md
// §4.B's update(cmd, new_time) signature.
func (s *Scheduler) Update(cmd Command, newTime simtime.Time) {
	s.Push(newTime, cmd)
}

// Cancel lazily removes cmd's live scheduled occurrence, if any.
func (s *Scheduler) Cancel(cmd Command) {
	key := cmd.Key()
	if e, ok := s.live[key]; ok {
		e.dead = true
		delete(s.live, key)
	}
}

// PeekTime returns the time of the next live command, without popping it.
func (s *Scheduler) PeekTime() (simtime.Time, bool) {
	s.dropDead()
	if s.heap.Len() == 0 {
		return 0, false
	}
	return s.heap[0].time, true
}

// Pop removes and returns the earliest live (time, Command), or false if
// the scheduler is empty. Popped times are non-decreasing across the
// Scheduler's lifetime (spec.md §8 Scheduler invariant); a call that
// violates this indicates an engine bug and panics rather than silently
// continuing.
func (s *Scheduler) Pop() (simtime.Time, Command, bool) {
	s.dropDead()
	if s.heap.Len() == 0 {
		return 0, Command{}, false
	}
	e := heap.Pop(&s.heap).(*entry)
	if cur, ok := s.live[e.cmd.Key()]; ok && cur == e {
		delete(s.live, e.cmd.Key())
	}
	if s.popped && e.time < s.lastPop {
		log.Panicf("scheduler: monotonicity violated, popped %v after %v", e.time, s.lastPop)
	}
	s.lastPop = e.time
	s.popped = true
	return e.time, e.cmd, true
}

// Len reports the number of live (non-cancelled) commands.
func (s *Scheduler) Len() int {
	return len(s.live)
}

// dropDead discards cancelled/stale entries sitting at the heap's root,
// implementing the "lazy deletion" contract of spec.md §4.B.
func (s *Scheduler) dropDead() {
	for s.heap.Len() > 0 {
		top := s.heap[0]
		if !top.dead {
			if cur, ok := s.live[top.cmd.Key()]; !ok || cur != top {
				// A newer Push superseded this entry's key; this one is stale.
				heap.Pop(&s.heap)
				continue
			}
			return
		}
		heap.Pop(&s.heap)
	}
}
