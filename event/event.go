// Package event defines the tagged Event union the engine publishes:
// spec.md §4.A's full variant list, plus the append-only Buffer that
// collects events within one step for draining into analytics and
// external callbacks in emission order.
package event

import (
	"github.com/tsinghua-fib-lab/citysim-go/agent"
	"github.com/tsinghua-fib-lab/citysim-go/citymap"
	"github.com/tsinghua-fib-lab/citysim-go/path"
	"github.com/tsinghua-fib-lab/citysim-go/simtime"
)

// Kind enumerates every Event variant named in spec.md §4.A. A single
// tagged struct (Event) carries a Kind plus every possibly-relevant field,
// left zero-valued when not applicable — the same flattening the teacher
// applies to its runtime struct regardless of the agent's current Status
// (entity/person/personruntime.go).
type Kind int

const (
	CarReachedParkingSpot Kind = iota
	CarLeftParkingSpot
	CarOrBikeReachedBorder
	BikeStoppedAtSidewalk
	PedReachedBuilding
	PedReachedBusStop
	PassengerBoardsTransit
	PassengerAlightsTransit
	BusArrivedAtStop
	BusDepartedFromStop
	AgentEntersTraversable
	AgentLeavesTraversable
	IntersectionDelayMeasured
	TripPhaseStarting
	TripFinished
	TripCancelled
	PersonEntersMap
	PersonLeavesMap
	PathAmended
	Alert
)

// PhaseKind distinguishes the sub-kinds of TripPhaseStarting (one per
// TripLeg mode, see trip.Leg).
type PhaseKind int

const (
	PhaseWalk PhaseKind = iota
	PhaseDrive
	PhaseBike
	PhaseRideBus
	PhaseRemote
)

// Event is one tagged occurrence published by the engine within a single
// step, in emission order (spec.md §4.J).
type Event struct {
	Kind Kind
	Time simtime.Time

	Agent       agent.ID
	Car         agent.CarID
	Ped         agent.PedID
	Trip        agent.TripID
	Person      agent.PersonID
	ParkingSpot citymap.BuildingID // building-owning or onstreet-lane-owning spot's owner id; see parking.Spot for full addressing
	ParkingLane citymap.LaneID
	SpotIndex   int

	Traversable  citymap.Traversable
	PassengerCnt int

	Turn        citymap.TurnID
	Delay       simtime.Duration
	AgentType   agent.VehicleType

	PathRequest *path.Request
	Phase       PhaseKind

	TotalTime    simtime.Duration
	Mode         PhaseKind
	CancelReason string

	BusRoute citymap.BusRouteID
	BusStop  citymap.BusStopID
	Wait     simtime.Duration

	Location string
	Message  string
}

// Buffer is an append-only collector for events emitted within one step.
// Owned exclusively by sim.Sim (spec.md §3 Ownership); drained into
// analytics at the end of each step (registered periodic callbacks do
// not receive events), never
// retained by any sub-component.
type Buffer struct {
	events []Event
}

// Push appends one event.
func (b *Buffer) Push(e Event) {
	b.events = append(b.events, e)
}

// Drain returns every buffered event in emission order and empties the
// buffer.
func (b *Buffer) Drain() []Event {
	out := b.events
	b.events = nil
	return out
}

// Len reports how many events are currently buffered.
func (b *Buffer) Len() int {
	return len(b.events)
}

// Peek returns every buffered event without draining the buffer, for
// callers (the sim façade's intersection-exit and time-limited-step
// callback hooks) that need to react to events within a step before the
// end-of-step drain.
func (b *Buffer) Peek() []Event {
	return b.events
}
