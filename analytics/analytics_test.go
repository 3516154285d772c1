package analytics

import (
	"testing"

	"git.fiblab.net/general/common/v2/geometry"
	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/citysim-go/agent"
	"github.com/tsinghua-fib-lab/citysim-go/citymap"
	"github.com/tsinghua-fib-lab/citysim-go/event"
	"github.com/tsinghua-fib-lab/citysim-go/simtime"
)

func emptyMap() *citymap.Map {
	return citymap.Build(citymap.Input{})
}

func TestRecordAnythingFalseIgnoresEvents(t *testing.T) {
	a := New(false)
	m := emptyMap()
	a.Consume(event.Event{Kind: event.TripFinished, Trip: 1, Time: simtime.Time(10)}, m)
	assert.Equal(t, 0.0, a.CompletionRate())
	assert.Empty(t, a.TripLog)
}

func TestTripFinishedRecordsDurationFromPhaseStart(t *testing.T) {
	a := New(true)
	m := emptyMap()
	a.Consume(event.Event{Kind: event.TripPhaseStarting, Trip: 1, Time: simtime.Time(0)}, m)
	a.Consume(event.Event{Kind: event.TripFinished, Trip: 1, Time: simtime.Time(30), TotalTime: simtime.Duration(30)}, m)

	d, ok := a.FinishedTripTime(1)
	assert.True(t, ok)
	assert.Equal(t, simtime.Duration(30), d)
	assert.Equal(t, 1.0, a.CompletionRate())
}

func TestCompletionRateAveragesFinishedAndCancelled(t *testing.T) {
	a := New(true)
	m := emptyMap()
	a.Consume(event.Event{Kind: event.TripPhaseStarting, Trip: 1, Time: simtime.Time(0)}, m)
	a.Consume(event.Event{Kind: event.TripFinished, Trip: 1, Time: simtime.Time(10)}, m)
	a.Consume(event.Event{Kind: event.TripPhaseStarting, Trip: 2, Time: simtime.Time(0)}, m)
	a.Consume(event.Event{Kind: event.TripCancelled, Trip: 2, Time: simtime.Time(5)}, m)

	assert.Equal(t, 0.5, a.CompletionRate())
}

func TestPassengerBoardingRecordedPerStop(t *testing.T) {
	a := New(true)
	m := emptyMap()
	a.Consume(event.Event{Kind: event.PassengerBoardsTransit, BusStop: 7, Time: simtime.Time(1), Wait: simtime.Duration(4)}, m)
	assert.Len(t, a.PassengersBoarding[7], 1)
	assert.Equal(t, simtime.Duration(4), a.PassengersBoarding[7][0].Wait)
}

func TestIntersectionDelaySummaryZeroWithoutSamples(t *testing.T) {
	a := New(true)
	mean, stddev, err := a.IntersectionDelaySummary(999)
	assert.NoError(t, err)
	assert.Equal(t, 0.0, mean)
	assert.Equal(t, 0.0, stddev)
}

func TestThroughputTotalForCountsAcrossAgentTypes(t *testing.T) {
	m := citymap.Build(citymap.Input{
		Lanes: []citymap.LaneInput{
			{ID: 1, Type: citymap.LaneTypeDriving, Center: []geometry.Point{{X: 0, Y: 0}, {X: 10, Y: 0}}, MaxSpeed: 10},
		},
		Roads: []citymap.RoadInput{{ID: 99, Lanes: []citymap.LaneID{1}}},
	})
	a := New(true)
	rd := citymap.RoadID(99)
	a.Consume(event.Event{Kind: event.AgentEntersTraversable, Traversable: citymap.OfLane(1), Time: simtime.Time(0), AgentType: agent.VehicleTypeCar}, m)
	a.Consume(event.Event{Kind: event.AgentEntersTraversable, Traversable: citymap.OfLane(1), Time: simtime.Time(1), AgentType: agent.VehicleTypeBike}, m)
	assert.Equal(t, 2, a.RoadThroughput.TotalFor(rd))
}
