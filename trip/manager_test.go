package trip

import (
	"testing"

	"git.fiblab.net/general/common/v2/geometry"
	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/citysim-go/citymap"
	"github.com/tsinghua-fib-lab/citysim-go/driving"
	"github.com/tsinghua-fib-lab/citysim-go/event"
	"github.com/tsinghua-fib-lab/citysim-go/parking"
	"github.com/tsinghua-fib-lab/citysim-go/path"
	"github.com/tsinghua-fib-lab/citysim-go/scheduler"
	"github.com/tsinghua-fib-lab/citysim-go/simtime"
	"github.com/tsinghua-fib-lab/citysim-go/transit"
	"github.com/tsinghua-fib-lab/citysim-go/walking"
)

func fixtureMap() *citymap.Map {
	return citymap.Build(citymap.Input{
		Lanes: []citymap.LaneInput{
			{ID: 1, Type: citymap.LaneTypeWalking, Center: []geometry.Point{{X: 0, Y: 0}, {X: 100, Y: 0}}, MaxSpeed: 2},
		},
		Buildings: []citymap.BuildingInput{
			{ID: 10, WalkingLanes: []citymap.LaneID{1}, WalkingS: map[citymap.LaneID]float64{1: 90}},
		},
	})
}

func newManager(m *citymap.Map, pf path.Pathfinder) *Manager {
	return New(m, pf, NewIDAllocator(), driving.New(m), walking.New(m), transit.New(m), parking.New(m, nil))
}

func TestWalkTripCompletesAndEmitsExpectedEvents(t *testing.T) {
	m := fixtureMap()
	pf := path.PathfinderFunc(func(req path.Request) *path.Path {
		return path.NewPath(req, []path.Step{path.LaneStep(1)})
	})
	mgr := newManager(m, pf)
	sched := scheduler.New()
	events := &event.Buffer{}

	trip := &Trip{
		ID: 1, Person: 100,
		Legs: []Leg{{
			Kind:  LegWalk,
			Start: path.Endpoint{Kind: path.EndpointSuddenlyAppear, Position: citymap.Position{Lane: 1, S: 0}},
			End:   path.Endpoint{Kind: path.EndpointBuilding, Building: 10},
		}},
		Depart: simtime.Time(0),
	}
	mgr.Schedule(trip, sched)
	tm, cmd, _ := sched.Pop()
	assert.Equal(t, scheduler.StartTrip, cmd.Kind)
	mgr.StartTrip(cmd.Trip, tm, sched, events)

	assert.Equal(t, Active, trip.Status.Kind)
	evs := events.Drain()
	assert.True(t, len(evs) >= 2)

	// walk to the end of the lane, then report path-end to the manager.
	tm2, cmd2, ok := sched.Pop()
	assert.True(t, ok)
	assert.Equal(t, scheduler.UpdatePed, cmd2.Kind)
	mgr.OnPedReachedPathEnd(trip.Ped, tm2, sched, events)

	assert.Equal(t, Finished, trip.Status.Kind)
	evs = events.Drain()
	var sawBuilding, sawFinished bool
	for _, e := range evs {
		if e.Kind == event.PedReachedBuilding {
			sawBuilding = true
		}
		if e.Kind == event.TripFinished {
			sawFinished = true
		}
	}
	assert.True(t, sawBuilding)
	assert.True(t, sawFinished)
}

func TestDriveLegCancelsOnNoPath(t *testing.T) {
	m := fixtureMap()
	pf := path.PathfinderFunc(func(req path.Request) *path.Path { return nil })
	mgr := newManager(m, pf)
	sched := scheduler.New()
	events := &event.Buffer{}

	trip := &Trip{
		ID: 2, Person: 200,
		Legs: []Leg{{
			Kind:  LegDrive,
			Start: path.Endpoint{Kind: path.EndpointSuddenlyAppear, Position: citymap.Position{Lane: 1, S: 0}},
			End:   path.Endpoint{Kind: path.EndpointSuddenlyAppear, Position: citymap.Position{Lane: 1, S: 50}},
		}},
		Depart: simtime.Time(0),
	}
	mgr.Schedule(trip, sched)
	tm, cmd, _ := sched.Pop()
	mgr.StartTrip(cmd.Trip, tm, sched, events)

	assert.Equal(t, Cancelled, trip.Status.Kind)
	assert.Equal(t, ReasonNoPath, trip.Status.Reason)
}
