// Package queue implements spec.md §4.C's per-Traversable vehicle queue:
// an ordered list of cars with spacing/car-following invariants and the
// "laggy head" transition between consecutive Traversables. Structurally
// grounded on utils/container/list.go's per-lane ordered vehicle list
// (entity/lane/lane.go's Lane.vehicles), generalized from a per-Lane-only
// structure into one usable for both lanes and turns, since spec.md §3
// requires a Queue "per Traversable (lanes and turns both)".
package queue

import (
	"github.com/tsinghua-fib-lab/citysim-go/agent"
	"github.com/tsinghua-fib-lab/citysim-go/internal/container"
	"github.com/tsinghua-fib-lab/citysim-go/internal/logging"
	"github.com/tsinghua-fib-lab/citysim-go/simtime"
)

var log = logging.For("queue")

// FollowingDistance is the fixed positive spacing every pair of
// consecutive cars on a Traversable must maintain (spec.md §4.C).
const FollowingDistance = 2.0 // meters

// CarState distinguishes how a queued car's position is currently
// evolving, mirroring the Crossing/Queued/WaitingToAdvance split of
// spec.md §4.D that the queue model must track positions for.
type CarState int

const (
	StateCrossing CarState = iota
	StateQueued
	StateWaitingToAdvance
)

// entryData is the payload carried by each container.Node in the queue's
// list, keyed by FrontDistAlong (the list's sort key).
type entryData struct {
	Car            agent.CarID
	Length         float64
	State          CarState
	// Crossing-only: linear interpolation bounds.
	T0, T1 simtime.Time
	D0, D1 float64
	// laggy marks this entry as the previous Traversable's retained "laggy
	// head" (GLOSSARY) rather than a car native to this queue.
	Laggy bool
}

// Queue is the ordered vehicle list for one Traversable (lane or turn).
// FrontDistAlong is monotonically non-increasing from head (list index 0,
// largest S) to tail — the underlying container.List keeps ascending S
// order, so "head" here means container.List.Last() and "tail" means
// container.List.First(); Queue's exported methods hide this inversion.
type Queue struct {
	length float64 // the Traversable's own length, for bounds checks
	list   *container.List[entryData]
	byCar  map[agent.CarID]*container.Node[entryData]
}

// New returns an empty Queue for a Traversable of the given length.
func New(name string, traversableLength float64) *Queue {
	return &Queue{
		length: traversableLength,
		list:   container.NewList[entryData](name),
		byCar:  make(map[agent.CarID]*container.Node[entryData]),
	}
}

// Len reports the number of cars (including any laggy head) in the queue.
func (q *Queue) Len() int { return q.list.Len() }

// Head returns the car with the largest FrontDistAlong (the lead car), or
// false if empty.
func (q *Queue) Head() (agent.CarID, float64, bool) {
	n := q.list.Last()
	if n == nil {
		return 0, 0, false
	}
	return n.Value.Car, n.S, true
}

// Tail returns the car with the smallest FrontDistAlong (the rearmost
// car), or false if empty.
func (q *Queue) Tail() (agent.CarID, float64, bool) {
	n := q.list.First()
	if n == nil {
		return 0, 0, false
	}
	return n.Value.Car, n.S, true
}

// LeaderBound returns the maximum front_dist_along a new follower of
// length vehLen may occupy without violating the leader's
// FollowingDistance, given the current head position. If the queue is
// empty, the traversable's own Length bounds it (no leader).
func (q *Queue) LeaderBound() float64 {
	if _, leaderFront, ok := q.Head(); ok {
		leaderNode := q.list.Last()
		return leaderFront - leaderNode.Value.Length - FollowingDistance
	}
	return q.length
}

// CanInsert reports whether a car of vehLen can be placed at start without
// overlapping its future leader (spec.md §4.C get_idx_to_insert_car,
// simplified to the only case the engine needs: insertion always happens
// at the tail end of free-flow travel, i.e. behind every existing car).
func (q *Queue) CanInsert(start float64, vehLen float64) bool {
	return start <= q.LeaderBound()+1e-9
}

// InsertCrossing adds car as the new tail, in the Crossing state,
// interpolating from (t0,d0) to (t1,d1). It panics if car is already
// present (the Parking invariant and single-queue-membership invariant
// are the trip manager's and driving sim's responsibility to uphold
// before calling this).
func (q *Queue) InsertCrossing(car agent.CarID, length float64, t0, t1 simtime.Time, d0, d1 float64) {
	if _, ok := q.byCar[car]; ok {
		log.Panicf("queue %s: car %v already present", q.list.Name, car)
	}
	n := q.list.InsertSorted(entryData{
		Car: car, Length: length, State: StateCrossing,
		T0: t0, T1: t1, D0: d0, D1: d1,
	}, d0)
	q.byCar[car] = n
}

// MarkQueued transitions car to Queued/WaitingToAdvance at a pinned
// position (the clipped leader-bound position, or the Traversable's end if
// it is the head), updating its sort key accordingly.
func (q *Queue) MarkQueued(car agent.CarID, state CarState, pinnedAt float64) {
	n, ok := q.byCar[car]
	if !ok {
		log.Panicf("queue %s: unknown car %v", q.list.Name, car)
	}
	data := n.Value
	data.State = state
	q.list.Remove(n)
	nn := q.list.InsertSorted(data, pinnedAt)
	q.byCar[car] = nn
}

// Remove takes car out of the queue entirely (it has crossed onto the next
// Traversable and its back has cleared, or it has parked).
func (q *Queue) Remove(car agent.CarID) {
	n, ok := q.byCar[car]
	if !ok {
		log.Panicf("queue %s: remove unknown car %v", q.list.Name, car)
	}
	q.list.Remove(n)
	delete(q.byCar, car)
}

// MarkLaggyHead re-inserts car as this queue's retained laggy head
// (GLOSSARY), pinned at the Traversable's own Length, after it has
// physically advanced onto the next Traversable. The previous queue keeps
// it for spacing decisions until its back clears (spec.md §4.C).
func (q *Queue) MarkLaggyHead(car agent.CarID, length float64) {
	if _, ok := q.byCar[car]; ok {
		log.Panicf("queue %s: laggy head %v already tracked here", q.list.Name, car)
	}
	n := q.list.InsertSorted(entryData{Car: car, Length: length, State: StateQueued, Laggy: true}, q.length)
	q.byCar[car] = n
}

// ClearLaggyHead removes car's laggy-head entry once its back has cleared
// this Traversable (UpdateLaggyHead command effect, spec.md §4.B table).
func (q *Queue) ClearLaggyHead(car agent.CarID) {
	q.Remove(car)
}

// Position returns car's current front_dist_along and state.
func (q *Queue) Position(car agent.CarID) (float64, CarState, bool) {
	n, ok := q.byCar[car]
	if !ok {
		return 0, 0, false
	}
	return n.S, n.Value.State, true
}

// PositionAt computes car's interpolated position at `now`, given its
// node is Crossing (spec.md §4.C get_car_positions): linear interpolation
// between (T0,D0) and (T1,D1); outside that window the endpoint is
// returned. Queued/WaitingToAdvance cars simply report their pinned S.
func (q *Queue) PositionAt(car agent.CarID, now simtime.Time) float64 {
	n, ok := q.byCar[car]
	if !ok {
		log.Panicf("queue %s: position of unknown car %v", q.list.Name, car)
	}
	d := n.Value
	if d.State != StateCrossing {
		return n.S
	}
	if now <= d.T0 {
		return d.D0
	}
	if now >= d.T1 {
		return d.D1
	}
	frac := float64(now-d.T0) / float64(d.T1-d.T0)
	return d.D0 + frac*(d.D1-d.D0)
}

// CheckSpacingInvariant verifies the spec.md §8 Queue invariant over every
// consecutive pair: a.front - a.length - b.front >= FollowingDistance - eps.
// It panics on violation (an invariant violation per spec.md §7 kind 2),
// returning nothing on success.
func (q *Queue) CheckSpacingInvariant(eps float64) {
	prev := q.list.Last()
	if prev == nil {
		return
	}
	for n := prev.Prev(); n != nil; n = n.Prev() {
		ahead := prev.Value
		gap := prev.S - ahead.Length - n.S
		if gap < FollowingDistance-eps {
			log.Panicf("queue %s: spacing violated between %v and %v: gap=%.3f",
				q.list.Name, ahead.Car, n.Value.Car, gap)
		}
		prev = n
	}
}

// Cars returns every CarID currently tracked, head-to-tail order.
func (q *Queue) Cars() []agent.CarID {
	out := make([]agent.CarID, 0, q.list.Len())
	for n := q.list.Last(); n != nil; n = n.Prev() {
		out = append(out, n.Value.Car)
	}
	return out
}
