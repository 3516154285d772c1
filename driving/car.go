// Package driving implements spec.md §4.D's per-car state machine:
// Crossing -> Queued/WaitingToAdvance -> (next Traversable) or
// Unparking/Parking/Idling side-states, riding on top of the queue model
// (package queue) for spacing and the first-order (no-acceleration)
// car-following policy spec.md §4.C mandates. Grounded in shape on
// entity/person/vehicle.go's updateVehicle/computeVAndDistance, with the
// IDM acceleration controller (entity/person/controller.go) deliberately
// not ported — see SPEC_FULL.md §4.D.
package driving

import (
	"github.com/tsinghua-fib-lab/citysim-go/agent"
	"github.com/tsinghua-fib-lab/citysim-go/citymap"
	"github.com/tsinghua-fib-lab/citysim-go/path"
	"github.com/tsinghua-fib-lab/citysim-go/simtime"
)

// StateKind enumerates spec.md §4.D's six car states.
type StateKind int

const (
	Crossing StateKind = iota
	Queued
	WaitingToAdvance
	Unparking
	Parking
	Idling
)

// State is the tagged union of the car's current phase, generalized from
// the teacher's flat always-populated runtime struct
// (entity/person/personruntime.go) the same way event.Event is.
type State struct {
	Kind StateKind

	// Crossing
	T0, T1 simtime.Time
	D0, D1 float64

	// Queued / WaitingToAdvance
	BlockedSince simtime.Time

	// Unparking / Parking
	StartTime    simtime.Time
	TimeToFinish simtime.Time // absolute time the sub-state ends
	SpotBuilding citymap.BuildingID
	SpotLane     citymap.LaneID
	SpotIndex    int

	// Idling (e.g. bus dwelling)
	EndTime simtime.Time
}

// Car is one vehicle under direct driving-sim control (spec.md §3).
type Car struct {
	ID          agent.CarID
	Trip        agent.TripID
	VehicleType agent.VehicleType
	Length      float64
	MaxSpeed    float64 // 0 means "use the traversable's own speed limit only"

	Path    *path.Path
	State   State
	Current citymap.Traversable

	// BusRoute is non-zero only for VehicleTypeBus cars: the cyclic route
	// this bus serves, replacing Path for the Idling/stop-to-stop loop
	// (spec.md §4.D "Buses").
	BusRoute   citymap.BusRouteID
	BusStopIdx int

	blockedSinceSet bool
}

// EffectiveSpeed returns min(vehicle.max_speed, traversable.speed_limit),
// spec.md §4.C's uniform first-order speed rule.
func (c *Car) EffectiveSpeed(m *citymap.Map) float64 {
	limit := m.TraversableMaxSpeed(c.Current)
	if c.MaxSpeed > 0 && c.MaxSpeed < limit {
		return c.MaxSpeed
	}
	return limit
}

// IsBus reports whether this car represents a transit vehicle.
func (c *Car) IsBus() bool {
	return c.VehicleType == agent.VehicleTypeBus
}
