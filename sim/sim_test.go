package sim

import (
	"testing"
	"time"

	"git.fiblab.net/general/common/v2/geometry"
	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/citysim-go/citymap"
	"github.com/tsinghua-fib-lab/citysim-go/event"
	"github.com/tsinghua-fib-lab/citysim-go/path"
	"github.com/tsinghua-fib-lab/citysim-go/simtime"
	"github.com/tsinghua-fib-lab/citysim-go/trip"
)

// straightPathfinder always routes to the single lane present in the
// fixture map, matching the one-lane-per-mode fixtures used throughout the
// package-level tests this repository already carries (trip/manager_test.go).
func straightPathfinder(lane citymap.LaneID) path.Pathfinder {
	return path.PathfinderFunc(func(req path.Request) *path.Path {
		return path.NewPath(req, []path.Step{path.LaneStep(lane)})
	})
}

func walkFixtureMap() *citymap.Map {
	return citymap.Build(citymap.Input{
		Lanes: []citymap.LaneInput{
			{ID: 1, Type: citymap.LaneTypeWalking, Center: []geometry.Point{{X: 0, Y: 0}, {X: 50, Y: 0}}, MaxSpeed: 2},
		},
		Buildings: []citymap.BuildingInput{
			{ID: 10, WalkingLanes: []citymap.LaneID{1}, WalkingS: map[citymap.LaneID]float64{1: 45}},
		},
	})
}

func TestSimStepCompletesWalkTrip(t *testing.T) {
	m := walkFixtureMap()
	s := New(m, straightPathfinder(1), nil, Opts{RecordAnything: true})

	s.ScheduleTrip(&trip.Trip{
		ID:     1,
		Person: 100,
		Legs: []trip.Leg{{
			Kind:  trip.LegWalk,
			Start: path.Endpoint{Kind: path.EndpointSuddenlyAppear, Position: citymap.Position{Lane: 1, S: 0}},
			End:   path.Endpoint{Kind: path.EndpointBuilding, Building: 10},
		}},
		Depart: simtime.StartOfDay,
	})

	for i := 0; i < 100 && s.GetAnalytics().CompletionRate() == 0; i++ {
		s.Step(simtime.Duration(10))
	}

	assert.Equal(t, 1.0, s.GetAnalytics().CompletionRate())
}

func TestSimStepZeroIsNoop(t *testing.T) {
	m := walkFixtureMap()
	s := New(m, straightPathfinder(1), nil, Opts{})
	before := s.Time()
	s.Step(simtime.Duration(0))
	assert.Equal(t, before, s.Time())
}

func TestTimeLimitedStepHaltsOnEvent(t *testing.T) {
	m := walkFixtureMap()
	s := New(m, straightPathfinder(1), nil, Opts{RecordAnything: true})

	s.ScheduleTrip(&trip.Trip{
		ID:     1,
		Person: 100,
		Legs: []trip.Leg{{
			Kind:  trip.LegWalk,
			Start: path.Endpoint{Kind: path.EndpointSuddenlyAppear, Position: citymap.Position{Lane: 1, S: 0}},
			End:   path.Endpoint{Kind: path.EndpointBuilding, Building: 10},
		}},
		Depart: simtime.StartOfDay,
	})

	var sawPersonEntersMap bool
	s.TimeLimitedStep(simtime.Duration(1000), time.Second, func(e event.Event) bool {
		if e.Kind == event.PersonEntersMap {
			sawPersonEntersMap = true
			return true
		}
		return false
	})

	assert.True(t, sawPersonEntersMap)
	assert.True(t, s.Time().Before(simtime.Time(1000)))
}

func TestRegisterCallbackFiresPeriodically(t *testing.T) {
	m := walkFixtureMap()
	s := New(m, straightPathfinder(1), nil, Opts{})

	var fired int
	s.RegisterCallback(simtime.Duration(10), func(now simtime.Time) {
		fired++
	})

	s.Step(simtime.Duration(35))
	assert.GreaterOrEqual(t, fired, 3)
}

func TestCancelCallbackStopsFutureFires(t *testing.T) {
	m := walkFixtureMap()
	s := New(m, straightPathfinder(1), nil, Opts{})

	var fired int
	id := s.RegisterCallback(simtime.Duration(10), func(now simtime.Time) {
		fired++
	})
	s.Step(simtime.Duration(15))
	s.CancelCallback(id)
	after := fired
	s.Step(simtime.Duration(100))
	assert.Equal(t, after, fired)
}
