// Package scenario defines the external population input consumed by the
// engine (spec.md §6 Scenario) and converts it into scheduled trip.Trips.
// Grounded on the teacher's entity/person/schedule/schedule.go, which holds
// the same per-person list-of-trips shape before NextTrip/Set turn it into
// live simulation state; generalized here into a plain data type decoupled
// from the teacher's protobuf/MongoDB-backed entity/person loader
// (utils/input/input.go), since scenario generation and persistence format
// are explicitly external collaborators, not engine concerns (spec.md §1).
package scenario

import (
	"fmt"

	"github.com/tsinghua-fib-lab/citysim-go/agent"
	"github.com/tsinghua-fib-lab/citysim-go/citymap"
	"github.com/tsinghua-fib-lab/citysim-go/path"
	"github.com/tsinghua-fib-lab/citysim-go/simtime"
	"github.com/tsinghua-fib-lab/citysim-go/trip"
)

// Mode names the single mode of one IndividTrip, matching spec.md §6's
// IndividTrip.mode field (one mode per trip, at odds with Trip.mode_plan's
// potential multi-leg generality; a RideBus trip's access/egress walk is
// synthesized automatically in ToTrips when BoardStop/AlightStop sit away
// from the trip's own endpoints).
type Mode int

const (
	ModeWalk Mode = iota
	ModeDrive
	ModeBike
	ModeBus
	ModeRemote
)

func (m Mode) String() string {
	switch m {
	case ModeDrive:
		return "drive"
	case ModeBike:
		return "bike"
	case ModeBus:
		return "bus"
	case ModeRemote:
		return "remote"
	default:
		return "walk"
	}
}

// IndividTrip is one leg of a person's daily plan as supplied by the
// external scenario generator (spec.md §6).
type IndividTrip struct {
	Depart  simtime.Time
	Purpose string // free-form activity label, carried through for analytics only
	Origin  path.Endpoint
	Dest    path.Endpoint
	Mode    Mode

	// Route/BoardStop/AlightStop apply only when Mode == ModeBus: the
	// scenario generator is expected to have already matched the person to
	// a route and stop pair, since stop selection is a pathfinding/access
	// concern outside the engine's scope (spec.md §1).
	Route      citymap.BusRouteID
	BoardStop  citymap.BusStopID
	AlightStop citymap.BusStopID
}

// PersonSpec is one synthetic traveler and their full daily plan (spec.md
// §6).
type PersonSpec struct {
	ID     agent.PersonID
	OrigID string // source dataset identifier, carried through for traceability only
	Trips  []IndividTrip
}

// Scenario is the full population the engine is handed at run start (spec.md
// §6).
type Scenario struct {
	Persons []PersonSpec
}

// ToTrips converts every PersonSpec's IndividTrips into scheduled
// trip.Trips, assigning each a fresh sequential TripID (trip.Manager itself
// has no TripID allocator of its own — Trip.ID is caller-assigned, mirroring
// the teacher's schedule.go, where a person's trip index within their own
// schedule is the identity, not a globally-minted ID). One IndividTrip
// becomes one trip.Trip with exactly one Leg, except ModeBus: when the
// rider's Origin isn't already the board stop's sidewalk position (or Dest
// isn't the alight stop's), a Walk access/egress leg is prepended/appended,
// mirroring how the teacher's schedule.go always routes a bus rider to/from
// the stop on foot (entity/person/schedule/schedule.go's RideBus handling).
func ToTrips(s Scenario, m *citymap.Map) ([]*trip.Trip, error) {
	var out []*trip.Trip
	var nextID agent.TripID = 1
	for _, p := range s.Persons {
		for _, it := range p.Trips {
			t, err := toTrip(p, it, nextID, m)
			if err != nil {
				return nil, err
			}
			nextID++
			out = append(out, t)
		}
	}
	return out, nil
}

func toTrip(p PersonSpec, it IndividTrip, id agent.TripID, m *citymap.Map) (*trip.Trip, error) {
	legs, err := legsFor(it, m)
	if err != nil {
		return nil, fmt.Errorf("scenario: person %d trip at %v: %w", p.ID, it.Depart, err)
	}
	return &trip.Trip{
		ID:     id,
		Person: p.ID,
		Legs:   legs,
		Status: trip.Status{Kind: trip.Scheduled},
		Depart: it.Depart,
	}, nil
}

func legsFor(it IndividTrip, m *citymap.Map) ([]trip.Leg, error) {
	switch it.Mode {
	case ModeWalk:
		return []trip.Leg{{Kind: trip.LegWalk, Start: it.Origin, End: it.Dest}}, nil
	case ModeDrive:
		return []trip.Leg{{Kind: trip.LegDrive, Start: it.Origin, End: it.Dest}}, nil
	case ModeBike:
		return []trip.Leg{{Kind: trip.LegBike, Start: it.Origin, End: it.Dest}}, nil
	case ModeRemote:
		return []trip.Leg{{Kind: trip.LegRemote, Start: it.Origin, End: it.Dest}}, nil
	case ModeBus:
		return busLegs(it, m)
	default:
		return nil, fmt.Errorf("unknown mode %v", it.Mode)
	}
}

func busLegs(it IndividTrip, m *citymap.Map) ([]trip.Leg, error) {
	stop := m.BusStops[it.BoardStop]
	alight := m.BusStops[it.AlightStop]
	if stop == nil || alight == nil {
		return nil, fmt.Errorf("bus trip references unknown stop (board=%v alight=%v)", it.BoardStop, it.AlightStop)
	}
	boardPos := path.Endpoint{Kind: path.EndpointSuddenlyAppear, Position: citymap.Position{Lane: stop.SidewalkLane, S: stop.SidewalkS}}
	alightPos := path.Endpoint{Kind: path.EndpointSuddenlyAppear, Position: citymap.Position{Lane: alight.SidewalkLane, S: alight.SidewalkS}}

	ride := trip.Leg{
		Kind:       trip.LegRideBus,
		Start:      boardPos,
		End:        alightPos,
		Route:      it.Route,
		BoardStop:  it.BoardStop,
		AlightStop: it.AlightStop,
	}

	legs := []trip.Leg{}
	if !endpointsEqual(it.Origin, boardPos) {
		legs = append(legs, trip.Leg{Kind: trip.LegWalk, Start: it.Origin, End: boardPos})
	}
	legs = append(legs, ride)
	if !endpointsEqual(it.Dest, alightPos) {
		legs = append(legs, trip.Leg{Kind: trip.LegWalk, Start: alightPos, End: it.Dest})
	}
	return legs, nil
}

func endpointsEqual(a, b path.Endpoint) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case path.EndpointBuilding:
		return a.Building == b.Building
	case path.EndpointBorder:
		return a.Border == b.Border
	default:
		return a.Position.Lane == b.Position.Lane && a.Position.S == b.Position.S
	}
}
