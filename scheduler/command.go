package scheduler

import (
	"github.com/tsinghua-fib-lab/citysim-go/agent"
	"github.com/tsinghua-fib-lab/citysim-go/citymap"
)

// CommandKind enumerates every Command variant of spec.md §4.B's table. A
// tagged struct (Command), not a virtual-dispatch "Command trait" per
// spec.md §9's explicit guidance.
type CommandKind int

const (
	StartTrip CommandKind = iota
	SpawnCar
	UpdateCar
	UpdateLaggyHead
	UpdatePed
	UpdateIntersection
	Callback
	Pandemic
	FinishRemoteTrip
)

// Command is a tagged union over every schedulable action. Only the fields
// relevant to Kind are populated.
type Command struct {
	Kind CommandKind

	Trip         agent.TripID
	Car          agent.CarID
	Ped          agent.PedID
	Intersection citymap.IntersectionID
	CallbackID   int

	// LegIdx is SpawnCar's leg index within the owning trip.
	LegIdx int
}

// Key returns the identity used by Scheduler.Update/Cancel to find a
// command's live scheduled occurrence: the discriminant plus whichever ID
// field that Kind uses. Two Commands with equal Key are the "same"
// scheduled action, mirroring spec.md §4.B's "update(cmd, new_time)
// reschedules any existing occurrence of cmd".
type Key struct {
	Kind         CommandKind
	Trip         agent.TripID
	Car          agent.CarID
	Ped          agent.PedID
	Intersection citymap.IntersectionID
	CallbackID   int
}

func (c Command) Key() Key {
	switch c.Kind {
	case StartTrip, FinishRemoteTrip:
		return Key{Kind: c.Kind, Trip: c.Trip}
	case SpawnCar, UpdateCar, UpdateLaggyHead:
		return Key{Kind: c.Kind, Car: c.Car}
	case UpdatePed:
		return Key{Kind: c.Kind, Ped: c.Ped}
	case UpdateIntersection:
		return Key{Kind: c.Kind, Intersection: c.Intersection}
	case Callback:
		return Key{Kind: c.Kind, CallbackID: c.CallbackID}
	default:
		return Key{Kind: c.Kind}
	}
}

func StartTripCmd(id agent.TripID) Command  { return Command{Kind: StartTrip, Trip: id} }
func SpawnCarCmd(id agent.CarID, leg int) Command {
	return Command{Kind: SpawnCar, Car: id, LegIdx: leg}
}
func UpdateCarCmd(id agent.CarID) Command         { return Command{Kind: UpdateCar, Car: id} }
func UpdateLaggyHeadCmd(id agent.CarID) Command   { return Command{Kind: UpdateLaggyHead, Car: id} }
func UpdatePedCmd(id agent.PedID) Command         { return Command{Kind: UpdatePed, Ped: id} }
func UpdateIntersectionCmd(id citymap.IntersectionID) Command {
	return Command{Kind: UpdateIntersection, Intersection: id}
}
func CallbackCmd(id int) Command            { return Command{Kind: Callback, CallbackID: id} }
func FinishRemoteTripCmd(id agent.TripID) Command { return Command{Kind: FinishRemoteTrip, Trip: id} }
