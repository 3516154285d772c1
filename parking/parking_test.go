package parking

import (
	"testing"

	"git.fiblab.net/general/common/v2/geometry"
	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/citysim-go/agent"
	"github.com/tsinghua-fib-lab/citysim-go/citymap"
)

func testMap() *citymap.Map {
	return citymap.Build(citymap.Input{
		Lanes: []citymap.LaneInput{
			{ID: 1, Type: citymap.LaneTypeDriving, Center: []geometry.Point{{X: 0, Y: 0}, {X: 200, Y: 0}}, MaxSpeed: 15},
			{ID: 2, Type: citymap.LaneTypeWalking, Center: []geometry.Point{{X: 0, Y: 2}, {X: 200, Y: 2}}, MaxSpeed: 2},
		},
		Buildings: []citymap.BuildingInput{
			{ID: 10, OffstreetSpots: 2, DrivingLanes: []citymap.LaneID{1}, DrivingS: map[citymap.LaneID]float64{1: 50}, WalkingLanes: []citymap.LaneID{2}, WalkingS: map[citymap.LaneID]float64{2: 50}},
		},
	})
}

func TestOnstreetSpotCountDerivedFromLaneLength(t *testing.T) {
	m := testMap()
	l := New(m, map[citymap.LaneID]struct {
		Sidewalk citymap.LaneID
		Driving  citymap.LaneID
	}{1: {Sidewalk: 2, Driving: 1}})
	// 200 / 6 = 33, minus 2 = 31
	assert.Len(t, l.GetFreeOnstreetSpots(1), 31)
}

func TestReserveThenParkThenRemove(t *testing.T) {
	m := testMap()
	l := New(m, map[citymap.LaneID]struct {
		Sidewalk citymap.LaneID
		Driving  citymap.LaneID
	}{1: {Sidewalk: 2, Driving: 1}})
	spot, ok := l.NearestFreeSpot(1, 0)
	assert.True(t, ok)

	assert.True(t, l.ReserveSpot(spot, agent.CarID(1)))
	assert.False(t, l.ReserveSpot(spot, agent.CarID(2)))
	assert.True(t, l.ReserveSpot(spot, agent.CarID(1))) // idempotent

	l.ParkCar(spot, agent.CarID(1))
	assert.True(t, l.IsOccupied(spot))
	assert.NotContains(t, l.GetFreeOnstreetSpots(1), spot)

	got, ok := l.RemoveParkedCar(agent.CarID(1))
	assert.True(t, ok)
	assert.Equal(t, spot, got)
	assert.False(t, l.IsOccupied(spot))
}

func TestOffstreetSpotsFromBuilding(t *testing.T) {
	m := testMap()
	l := New(m, nil)
	spots := l.GetFreeOffstreetSpots(10)
	assert.Len(t, spots, 2)
	pos, ok := l.DrivingPosition(spots[0])
	assert.True(t, ok)
	assert.Equal(t, citymap.LaneID(1), pos.Lane)
	assert.Equal(t, 50.0, pos.S)
}
