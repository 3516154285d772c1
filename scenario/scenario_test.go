package scenario

import (
	"testing"

	"git.fiblab.net/general/common/v2/geometry"
	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/citysim-go/citymap"
	"github.com/tsinghua-fib-lab/citysim-go/path"
	"github.com/tsinghua-fib-lab/citysim-go/simtime"
	"github.com/tsinghua-fib-lab/citysim-go/trip"
)

func fixtureMap() *citymap.Map {
	return citymap.Build(citymap.Input{
		Lanes: []citymap.LaneInput{
			{ID: 1, Type: citymap.LaneTypeWalking, Center: []geometry.Point{{X: 0, Y: 0}, {X: 100, Y: 0}}, MaxSpeed: 2},
		},
		BusStops: []citymap.BusStop{
			{ID: 20, SidewalkLane: 1, SidewalkS: 10},
			{ID: 21, SidewalkLane: 1, SidewalkS: 90},
		},
	})
}

func TestToTripsSingleModeLeg(t *testing.T) {
	m := fixtureMap()
	s := Scenario{Persons: []PersonSpec{{
		ID: 1,
		Trips: []IndividTrip{{
			Depart: simtime.StartOfDay,
			Mode:   ModeWalk,
			Origin: path.Endpoint{Kind: path.EndpointSuddenlyAppear, Position: citymap.Position{Lane: 1, S: 0}},
			Dest:   path.Endpoint{Kind: path.EndpointSuddenlyAppear, Position: citymap.Position{Lane: 1, S: 50}},
		}},
	}}}

	trips, err := ToTrips(s, m)
	assert.NoError(t, err)
	assert.Len(t, trips, 1)
	assert.Len(t, trips[0].Legs, 1)
	assert.Equal(t, trip.LegWalk, trips[0].Legs[0].Kind)
	assert.Equal(t, trip.Scheduled, trips[0].Status.Kind)
}

func TestToTripsAssignsDistinctSequentialIDs(t *testing.T) {
	m := fixtureMap()
	leg := IndividTrip{
		Depart: simtime.StartOfDay,
		Mode:   ModeWalk,
		Origin: path.Endpoint{Kind: path.EndpointSuddenlyAppear, Position: citymap.Position{Lane: 1, S: 0}},
		Dest:   path.Endpoint{Kind: path.EndpointSuddenlyAppear, Position: citymap.Position{Lane: 1, S: 50}},
	}
	s := Scenario{Persons: []PersonSpec{
		{ID: 1, Trips: []IndividTrip{leg, leg}},
		{ID: 2, Trips: []IndividTrip{leg}},
	}}

	trips, err := ToTrips(s, m)
	assert.NoError(t, err)
	assert.Len(t, trips, 3)
	assert.Equal(t, trips[0].ID+1, trips[1].ID)
	assert.NotEqual(t, trips[0].ID, trips[1].ID)
	assert.NotEqual(t, trips[1].ID, trips[2].ID)
}

func TestBusTripSynthesizesAccessAndEgressWalkLegs(t *testing.T) {
	m := fixtureMap()
	s := Scenario{Persons: []PersonSpec{{
		ID: 1,
		Trips: []IndividTrip{{
			Depart:     simtime.StartOfDay,
			Mode:       ModeBus,
			Origin:     path.Endpoint{Kind: path.EndpointSuddenlyAppear, Position: citymap.Position{Lane: 1, S: 0}},
			Dest:       path.Endpoint{Kind: path.EndpointSuddenlyAppear, Position: citymap.Position{Lane: 1, S: 100}},
			Route:      5,
			BoardStop:  20,
			AlightStop: 21,
		}},
	}}}

	trips, err := ToTrips(s, m)
	assert.NoError(t, err)
	assert.Len(t, trips, 1)
	legs := trips[0].Legs
	assert.Len(t, legs, 3)
	assert.Equal(t, trip.LegWalk, legs[0].Kind)
	assert.Equal(t, trip.LegRideBus, legs[1].Kind)
	assert.Equal(t, citymap.BusRouteID(5), legs[1].Route)
	assert.Equal(t, trip.LegWalk, legs[2].Kind)
}

func TestBusTripOmitsAccessLegWhenOriginIsBoardStop(t *testing.T) {
	m := fixtureMap()
	s := Scenario{Persons: []PersonSpec{{
		ID: 1,
		Trips: []IndividTrip{{
			Depart:     simtime.StartOfDay,
			Mode:       ModeBus,
			Origin:     path.Endpoint{Kind: path.EndpointSuddenlyAppear, Position: citymap.Position{Lane: 1, S: 10}},
			Dest:       path.Endpoint{Kind: path.EndpointSuddenlyAppear, Position: citymap.Position{Lane: 1, S: 100}},
			Route:      5,
			BoardStop:  20,
			AlightStop: 21,
		}},
	}}}

	trips, err := ToTrips(s, m)
	assert.NoError(t, err)
	legs := trips[0].Legs
	assert.Len(t, legs, 2)
	assert.Equal(t, trip.LegRideBus, legs[0].Kind)
	assert.Equal(t, trip.LegWalk, legs[1].Kind)
}

func TestToTripsErrorsOnUnknownBusStop(t *testing.T) {
	m := fixtureMap()
	s := Scenario{Persons: []PersonSpec{{
		ID: 1,
		Trips: []IndividTrip{{
			Mode:       ModeBus,
			Origin:     path.Endpoint{Kind: path.EndpointSuddenlyAppear, Position: citymap.Position{Lane: 1, S: 0}},
			Dest:       path.Endpoint{Kind: path.EndpointSuddenlyAppear, Position: citymap.Position{Lane: 1, S: 100}},
			BoardStop:  999,
			AlightStop: 21,
		}},
	}}}

	_, err := ToTrips(s, m)
	assert.Error(t, err)
}
