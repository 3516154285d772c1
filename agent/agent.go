// Package agent defines the opaque identity handles shared by every
// simulation component: car/pedestrian/person/trip IDs and the tagged
// AgentID union that replaces a shared agent interface.
package agent

import "fmt"

// CarID identifies a single vehicle (car, bike, bus, or train) in the
// driving simulation.
type CarID int32

func (id CarID) String() string { return fmt.Sprintf("car:%d", int32(id)) }

// PedID identifies a single pedestrian in the walking simulation.
type PedID int32

func (id PedID) String() string { return fmt.Sprintf("ped:%d", int32(id)) }

// PersonID identifies a person in the scenario population, independent of
// which entity (car or pedestrian) currently represents them.
type PersonID int32

// TripID identifies one multi-leg trip owned by the trip manager.
type TripID int32

// VehicleType classifies a CarID's physical vehicle kind.
type VehicleType int

const (
	VehicleTypeUnspecified VehicleType = iota
	VehicleTypeCar
	VehicleTypeBike
	VehicleTypeBus
	VehicleTypeTrain
)

func (t VehicleType) String() string {
	switch t {
	case VehicleTypeCar:
		return "car"
	case VehicleTypeBike:
		return "bike"
	case VehicleTypeBus:
		return "bus"
	case VehicleTypeTrain:
		return "train"
	default:
		return "unspecified"
	}
}

// Kind distinguishes the variant held by an AgentID.
type Kind int

const (
	KindUnspecified Kind = iota
	KindCar
	KindPed
)

// ID is a tagged union over the two physical agent kinds the engine
// schedules directly (cars and pedestrians; bus passengers are tracked as
// pedestrians mid-ride, see walking.StateRidingBus). This replaces a
// virtual-dispatch "IPerson"-style interface per the engine's explicit
// redesign guidance against trait-object polymorphism over agents: callers
// switch on Kind and read only the populated field.
type ID struct {
	Kind Kind
	Car  CarID
	Ped  PedID
}

// CarAgent builds an AgentID for a car.
func CarAgent(id CarID) ID { return ID{Kind: KindCar, Car: id} }

// PedAgent builds an AgentID for a pedestrian.
func PedAgent(id PedID) ID { return ID{Kind: KindPed, Ped: id} }

func (a ID) String() string {
	switch a.Kind {
	case KindCar:
		return a.Car.String()
	case KindPed:
		return a.Ped.String()
	default:
		return "agent:none"
	}
}
