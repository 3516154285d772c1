package walking

import (
	"testing"

	"git.fiblab.net/general/common/v2/geometry"
	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/citysim-go/agent"
	"github.com/tsinghua-fib-lab/citysim-go/citymap"
	"github.com/tsinghua-fib-lab/citysim-go/event"
	"github.com/tsinghua-fib-lab/citysim-go/intersection"
	"github.com/tsinghua-fib-lab/citysim-go/path"
	"github.com/tsinghua-fib-lab/citysim-go/scheduler"
	"github.com/tsinghua-fib-lab/citysim-go/simtime"
)

func sidewalkMap() *citymap.Map {
	return citymap.Build(citymap.Input{
		Lanes: []citymap.LaneInput{
			{ID: 1, Type: citymap.LaneTypeWalking, Center: []geometry.Point{{X: 0, Y: 0}, {X: 13.4, Y: 0}}, MaxSpeed: 10},
			{ID: 2, Type: citymap.LaneTypeWalking, Center: []geometry.Point{{X: 20, Y: 0}, {X: 33.4, Y: 0}}, MaxSpeed: 10},
		},
		Turns: []citymap.TurnInput{
			{ID: 100, FromLane: 1, ToLane: 2, Junction: 1, Movement: 1, Type: citymap.TurnCrosswalk},
		},
		Intersections: []citymap.IntersectionInput{
			{ID: 1, Control: citymap.ControlUncontrolled, Turns: []citymap.TurnID{100}},
		},
	})
}

func newPed(id agent.PedID, steps ...path.Step) *Pedestrian {
	return &Pedestrian{
		ID:   id,
		Path: path.NewPath(path.Request{}, steps),
	}
}

func TestSpawnPedEntersCrossingAtDefaultSpeed(t *testing.T) {
	m := sidewalkMap()
	mgr := New(m)
	sched := scheduler.New()
	events := &event.Buffer{}
	p := newPed(1, path.LaneStep(1), path.TurnStep(100), path.LaneStep(2))

	mgr.SpawnPed(p, 0, simtime.Time(0), sched, events)

	assert.Equal(t, Crossing, p.State.Kind)
	assert.Equal(t, 1, mgr.CrowdCount(citymap.OfLane(1)))
	tm, ok := sched.PeekTime()
	assert.True(t, ok)
	assert.InDelta(t, 13.4/DefaultWalkSpeed, tm.Seconds(), 0.01)
}

func TestPedCrossesCrosswalkAfterGrant(t *testing.T) {
	m := sidewalkMap()
	mgr := New(m)
	inter := intersection.New(m, false)
	sched := scheduler.New()
	events := &event.Buffer{}
	p := newPed(1, path.LaneStep(1), path.TurnStep(100), path.LaneStep(2))

	mgr.SpawnPed(p, 0, simtime.Time(0), sched, events)
	tm, _, _ := sched.Pop()

	outcome := mgr.UpdatePed(1, tm, sched, events, inter)
	assert.Equal(t, OutcomeNone, outcome)
	assert.Equal(t, WaitingToTurn, p.State.Kind)
	assert.Equal(t, 1, mgr.CrowdCount(citymap.OfLane(1))) // still occupies the sidewalk while waiting for a grant

	grants := inter.TryToGrant(1, tm)
	assert.Len(t, grants, 1)

	outcome = mgr.UpdatePed(1, tm, sched, events, inter)
	assert.Equal(t, OutcomeNone, outcome)
	assert.Equal(t, Crossing, p.State.Kind)
	assert.Equal(t, citymap.OfTurn(100), p.Current)
}

func TestPedReachingPathEndReportsOutcome(t *testing.T) {
	m := sidewalkMap()
	mgr := New(m)
	inter := intersection.New(m, false)
	sched := scheduler.New()
	events := &event.Buffer{}
	p := newPed(1, path.LaneStep(1))

	mgr.SpawnPed(p, 0, simtime.Time(0), sched, events)
	outcome := mgr.UpdatePed(1, simtime.Time(10), sched, events, inter)
	assert.Equal(t, OutcomeReachedPathEnd, outcome)
}

func TestBusBoardAndAlightTransitionStates(t *testing.T) {
	m := sidewalkMap()
	mgr := New(m)
	events := &event.Buffer{}
	p := newPed(1, path.LaneStep(1))
	mgr.peds[1] = p

	mgr.BeginWaitingForBus(1, 200, 300, simtime.Time(0), events)
	assert.Equal(t, WaitingForBus, p.State.Kind)

	mgr.BoardBus(1, 42, 0, simtime.Time(5), events)
	assert.Equal(t, RidingBus, p.State.Kind)
	assert.Equal(t, agent.CarID(42), p.State.Bus)

	sched := scheduler.New()
	p.Path = path.NewPath(path.Request{}, []path.Step{path.LaneStep(2)})
	mgr.AlightBus(1, 0, simtime.Time(10), sched, events)
	assert.Equal(t, WaitingToTurn, p.State.Kind)
}
