package driving

import (
	"testing"

	"git.fiblab.net/general/common/v2/geometry"
	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/citysim-go/agent"
	"github.com/tsinghua-fib-lab/citysim-go/citymap"
	"github.com/tsinghua-fib-lab/citysim-go/event"
	"github.com/tsinghua-fib-lab/citysim-go/intersection"
	"github.com/tsinghua-fib-lab/citysim-go/path"
	"github.com/tsinghua-fib-lab/citysim-go/queue"
	"github.com/tsinghua-fib-lab/citysim-go/scheduler"
	"github.com/tsinghua-fib-lab/citysim-go/simtime"
)

func twoLaneMap() *citymap.Map {
	return citymap.Build(citymap.Input{
		Lanes: []citymap.LaneInput{
			{ID: 1, Type: citymap.LaneTypeDriving, Center: []geometry.Point{{X: 0, Y: 0}, {X: 100, Y: 0}}, MaxSpeed: 10},
			{ID: 2, Type: citymap.LaneTypeDriving, Center: []geometry.Point{{X: 110, Y: 0}, {X: 210, Y: 0}}, MaxSpeed: 10},
		},
		Turns: []citymap.TurnInput{
			{ID: 100, FromLane: 1, ToLane: 2, Junction: 1, Movement: 1, Center: []geometry.Point{{X: 100, Y: 0}, {X: 110, Y: 0}}, MaxSpeed: 10},
		},
		Intersections: []citymap.IntersectionInput{
			{ID: 1, Control: citymap.ControlUncontrolled, Turns: []citymap.TurnID{100}},
		},
	})
}

func newCar(id agent.CarID, steps ...path.Step) *Car {
	return &Car{
		ID: id, VehicleType: agent.VehicleTypeCar, Length: 5,
		Path: path.NewPath(path.Request{Kind: agent.VehicleTypeCar}, steps),
	}
}

func TestSpawnCarEntersCrossingAndSchedulesUpdate(t *testing.T) {
	m := twoLaneMap()
	mgr := New(m)
	sched := scheduler.New()
	events := &event.Buffer{}
	car := newCar(1, path.LaneStep(1), path.TurnStep(100), path.LaneStep(2))

	mgr.SpawnCar(car, 0, simtime.Time(0), sched, events)

	assert.Equal(t, Crossing, car.State.Kind)
	tm, ok := sched.PeekTime()
	assert.True(t, ok)
	assert.Equal(t, simtime.Time(10), tm) // 100m / 10m/s
	evs := events.Drain()
	assert.Len(t, evs, 1)
	assert.Equal(t, event.AgentEntersTraversable, evs[0].Kind)
}

func TestUncontrolledIntersectionGrantsAndCarAdvancesThroughTurn(t *testing.T) {
	m := twoLaneMap()
	mgr := New(m)
	inter := intersection.New(m, false)
	sched := scheduler.New()
	events := &event.Buffer{}
	car := newCar(1, path.LaneStep(1), path.TurnStep(100), path.LaneStep(2))

	mgr.SpawnCar(car, 0, simtime.Time(0), sched, events)
	_, cmd, ok := sched.Pop()
	assert.True(t, ok)
	assert.Equal(t, scheduler.UpdateCar, cmd.Kind)

	outcome := mgr.UpdateCar(1, simtime.Time(10), sched, events, inter)
	assert.Equal(t, OutcomeNone, outcome)
	assert.Equal(t, WaitingToAdvance, car.State.Kind)

	grants := inter.TryToGrant(1, simtime.Time(10))
	assert.Len(t, grants, 1)

	outcome = mgr.UpdateCar(1, simtime.Time(10), sched, events, inter)
	assert.Equal(t, OutcomeNone, outcome)
	assert.Equal(t, Crossing, car.State.Kind)
	assert.Equal(t, citymap.OfTurn(100), car.Current)
}

func TestReachingPathEndReportsOutcome(t *testing.T) {
	m := twoLaneMap()
	mgr := New(m)
	inter := intersection.New(m, false)
	sched := scheduler.New()
	events := &event.Buffer{}
	car := newCar(1, path.LaneStep(1))

	mgr.SpawnCar(car, 0, simtime.Time(0), sched, events)
	outcome := mgr.UpdateCar(1, simtime.Time(10), sched, events, inter)
	assert.Equal(t, OutcomeReachedPathEnd, outcome)
	assert.Equal(t, Queued, car.State.Kind)
}

func TestBlockedAdvanceBecomesQueuedAndRetries(t *testing.T) {
	m := twoLaneMap()
	mgr := New(m)
	inter := intersection.New(m, false)
	sched := scheduler.New()
	events := &event.Buffer{}

	// Occupy the turn right at its front, leaving no room for a follower.
	occupant := newCar(99, path.TurnStep(100))
	mgr.QueueFor(citymap.OfTurn(100)).InsertCrossing(99, 5, simtime.Time(0), simtime.Time(0), 1, 1)
	mgr.QueueFor(citymap.OfTurn(100)).MarkQueued(99, queue.StateQueued, 1)

	car := newCar(1, path.LaneStep(1), path.TurnStep(100), path.LaneStep(2))
	mgr.SpawnCar(car, 0, simtime.Time(0), sched, events)
	sched.Pop()

	outcome := mgr.UpdateCar(1, simtime.Time(10), sched, events, inter)
	assert.Equal(t, OutcomeNone, outcome)
	assert.Equal(t, WaitingToAdvance, car.State.Kind)

	sched.Pop() // the UpdateIntersection the turn request scheduled at t=10
	grants := inter.TryToGrant(1, simtime.Time(10))
	assert.Len(t, grants, 1)

	outcome = mgr.UpdateCar(1, simtime.Time(10), sched, events, inter)
	assert.Equal(t, OutcomeNone, outcome)
	assert.Equal(t, Queued, car.State.Kind)

	tm, ok := sched.PeekTime()
	assert.True(t, ok)
	assert.Equal(t, simtime.Time(11), tm)
	_ = occupant
}
