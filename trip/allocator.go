package trip

import "github.com/tsinghua-fib-lab/citysim-go/agent"

// IDAllocator hands out fresh CarIDs/PedIDs for the transient entities a
// trip leg spawns (a car for Drive/Bike, a pedestrian for Walk), grounded
// on entity/person/manager.go's PersonManager.nextPersonID incrementing
// counter. One allocator is shared by trip.Manager and any other component
// that spawns driving/walking entities (e.g. the sim façade's bus spawner),
// so the two ID spaces never collide.
type IDAllocator struct {
	nextCar agent.CarID
	nextPed agent.PedID
}

// NewIDAllocator returns an allocator starting from the teacher's own
// reserved base (entity/person/manager.go's nextPersonID: 10000000), kept
// well above any small fixture IDs tests use.
func NewIDAllocator() *IDAllocator {
	return &IDAllocator{nextCar: 10000000, nextPed: 10000000}
}

// NextCar returns a fresh, never-before-returned CarID.
func (a *IDAllocator) NextCar() agent.CarID {
	id := a.nextCar
	a.nextCar++
	return id
}

// NextPed returns a fresh, never-before-returned PedID.
func (a *IDAllocator) NextPed() agent.PedID {
	id := a.nextPed
	a.nextPed++
	return id
}
