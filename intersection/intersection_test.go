package intersection

import (
	"testing"

	"git.fiblab.net/general/common/v2/geometry"
	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/citysim-go/agent"
	"github.com/tsinghua-fib-lab/citysim-go/citymap"
	"github.com/tsinghua-fib-lab/citysim-go/simtime"
)

func stopSignMap() *citymap.Map {
	return citymap.Build(citymap.Input{
		Lanes: []citymap.LaneInput{
			{ID: 1, Type: citymap.LaneTypeDriving, Center: []geometry.Point{{X: 0, Y: 0}, {X: 10, Y: 0}}, MaxSpeed: 10},
			{ID: 2, Type: citymap.LaneTypeDriving, Center: []geometry.Point{{X: 20, Y: 0}, {X: 30, Y: 0}}, MaxSpeed: 10},
			{ID: 3, Type: citymap.LaneTypeDriving, Center: []geometry.Point{{X: 0, Y: 10}, {X: 10, Y: 10}}, MaxSpeed: 10},
		},
		Turns: []citymap.TurnInput{
			{ID: 100, FromLane: 1, ToLane: 2, Junction: 1, Movement: 1},
			{ID: 101, FromLane: 3, ToLane: 2, Junction: 1, Movement: 2},
		},
		Intersections: []citymap.IntersectionInput{
			{
				ID:      1,
				Control: citymap.ControlSigned,
				Turns:   []citymap.TurnID{100, 101},
				ConflictSets: map[citymap.TurnID][]citymap.TurnID{
					100: {101},
					101: {100},
				},
			},
		},
	})
}

func TestStopSignFIFOSameApproachNoConflict(t *testing.T) {
	m := stopSignMap()
	// Single approach only: remove the conflict so multiple cars on the
	// same turn never block each other.
	m.Intersections[1].ConflictSets = map[citymap.TurnID][]citymap.TurnID{}
	mgr := New(m, false)

	t0 := simtime.Time(11 * 3600)
	mgr.SubmitRequest(1, Request{Agent: agent.CarAgent(1), Turn: 100}, t0)
	mgr.SubmitRequest(1, Request{Agent: agent.CarAgent(2), Turn: 100}, t0.Add(1))
	mgr.SubmitRequest(1, Request{Agent: agent.CarAgent(3), Turn: 100}, t0.Add(2))

	grants := mgr.TryToGrant(1, t0.Add(2)+simtime.Time(StopDelay))
	assert.Len(t, grants, 3)
	assert.Equal(t, agent.CarAgent(1), grants[0].Req.Agent)
	assert.Equal(t, agent.CarAgent(2), grants[1].Req.Agent)
	assert.Equal(t, agent.CarAgent(3), grants[2].Req.Agent)
}

func TestStopSignRespectsStopDelay(t *testing.T) {
	m := stopSignMap()
	m.Intersections[1].ConflictSets = map[citymap.TurnID][]citymap.TurnID{}
	mgr := New(m, false)

	now := simtime.Time(100)
	mgr.SubmitRequest(1, Request{Agent: agent.CarAgent(1), Turn: 100}, now)
	grants := mgr.TryToGrant(1, now) // not enough wait yet
	assert.Empty(t, grants)

	grants = mgr.TryToGrant(1, now.Add(StopDelay))
	assert.Len(t, grants, 1)
}

func TestConflictingTurnsBlockEachOther(t *testing.T) {
	m := stopSignMap()
	mgr := New(m, false)
	now := simtime.Time(100)
	mgr.SubmitRequest(1, Request{Agent: agent.CarAgent(1), Turn: 100}, now)
	mgr.SubmitRequest(1, Request{Agent: agent.CarAgent(2), Turn: 101}, now)

	grants := mgr.TryToGrant(1, now.Add(StopDelay))
	assert.Len(t, grants, 1)
	assert.Equal(t, citymap.TurnID(100), grants[0].Req.Turn)
	assert.True(t, mgr.IsAccepted(1, Request{Agent: agent.CarAgent(1), Turn: 100}))
	assert.False(t, mgr.IsAccepted(1, Request{Agent: agent.CarAgent(2), Turn: 101}))

	mgr.OnExit(1, Request{Agent: agent.CarAgent(1), Turn: 100})
	grants = mgr.TryToGrant(1, now.Add(StopDelay))
	assert.Len(t, grants, 1)
	assert.Equal(t, citymap.TurnID(101), grants[0].Req.Turn)
}

func TestSubmitRequestIdempotent(t *testing.T) {
	m := stopSignMap()
	mgr := New(m, false)
	now := simtime.Time(0)
	req := Request{Agent: agent.CarAgent(1), Turn: 100}
	mgr.SubmitRequest(1, req, now)
	mgr.SubmitRequest(1, req, now.Add(5))
	assert.True(t, mgr.HasNonEmptyWaiting(1))
	grants := mgr.TryToGrant(1, now.Add(simtime.Duration(10)))
	assert.Len(t, grants, 1)
	// delay measured from the first submission, not the second.
	assert.Equal(t, simtime.Duration(10), grants[0].Delay)
}

func TestPhaseForTimeCyclesThroughPhases(t *testing.T) {
	inter := &citymap.Intersection{
		Control: citymap.ControlSignalled,
		Phases: []citymap.Phase{
			{Movements: []citymap.MovementID{1}, Duration: 30},
			{Movements: []citymap.MovementID{2}, Duration: 30},
		},
	}
	assert.Equal(t, 0, PhaseForTime(inter, simtime.Time(0)))
	assert.Equal(t, 0, PhaseForTime(inter, simtime.Time(29)))
	assert.Equal(t, 1, PhaseForTime(inter, simtime.Time(31)))
	assert.Equal(t, 0, PhaseForTime(inter, simtime.Time(61))) // wraps
}

func TestSignalledGrantsOnlyActiveMovement(t *testing.T) {
	m := stopSignMap()
	m.Intersections[1].Control = citymap.ControlSignalled
	m.Intersections[1].Phases = []citymap.Phase{
		{Movements: []citymap.MovementID{1}, Duration: 30},
		{Movements: []citymap.MovementID{2}, Duration: 30},
	}
	mgr := New(m, false)
	now := simtime.Time(0)
	mgr.SubmitRequest(1, Request{Agent: agent.CarAgent(1), Turn: 100}, now) // movement 1
	mgr.SubmitRequest(1, Request{Agent: agent.CarAgent(2), Turn: 101}, now) // movement 2

	grants := mgr.TryToGrant(1, simtime.Time(10))
	assert.Len(t, grants, 1)
	assert.Equal(t, citymap.TurnID(100), grants[0].Req.Turn)
}

func TestAdaptiveMaxPressureSelectsHighestDemandPhase(t *testing.T) {
	m := stopSignMap()
	m.Intersections[1].Control = citymap.ControlSignalled
	m.Intersections[1].Phases = []citymap.Phase{
		{Movements: []citymap.MovementID{1}, Duration: 30},
		{Movements: []citymap.MovementID{2}, Duration: 30},
	}
	mgr := New(m, true)

	now := simtime.Time(0)
	mgr.SubmitRequest(1, Request{Agent: agent.CarAgent(1), Turn: 100}, now)
	mgr.TryToGrant(1, now) // settles the controller onto phase 0 (movement 1)

	// Pile up far more demand on movement 2 and let MinPhaseDuration elapse;
	// the controller should switch to the phase carrying the larger queue.
	mgr.SubmitRequest(1, Request{Agent: agent.CarAgent(2), Turn: 101}, now)
	mgr.SubmitRequest(1, Request{Agent: agent.CarAgent(3), Turn: 101}, now)
	mgr.SubmitRequest(1, Request{Agent: agent.CarAgent(4), Turn: 101}, now)
	mgr.OnExit(1, Request{Agent: agent.CarAgent(1), Turn: 100}) // car 1 has cleared its conflicting turn

	grants := mgr.TryToGrant(1, now.Add(MinPhaseDuration))
	assert.NotEmpty(t, grants)
	for _, g := range grants {
		assert.Equal(t, citymap.TurnID(101), g.Req.Turn)
	}
}

func TestAdaptiveMaxPressureHoldsPhaseUntilMinDuration(t *testing.T) {
	m := stopSignMap()
	m.Intersections[1].Control = citymap.ControlSignalled
	m.Intersections[1].Phases = []citymap.Phase{
		{Movements: []citymap.MovementID{1}, Duration: 30},
		{Movements: []citymap.MovementID{2}, Duration: 30},
	}
	mgr := New(m, true)
	st := mgr.states[1]

	now := simtime.Time(0)
	mgr.SubmitRequest(1, Request{Agent: agent.CarAgent(1), Turn: 100}, now)
	mgr.TryToGrant(1, now)
	assert.Equal(t, 0, st.curPhase)

	// A late-arriving movement-2 request can't flip the phase before
	// MinPhaseDuration elapses.
	mgr.SubmitRequest(1, Request{Agent: agent.CarAgent(2), Turn: 101}, now.Add(1))
	mgr.TryToGrant(1, now.Add(1))
	assert.Equal(t, 0, st.curPhase)
}
