// Package transit implements spec.md §4.H: buses as cars whose path cycles
// through a route's stops, dwelling at each one to board/alight waiting
// pedestrians. Grounded on jwmdev-brt08's bus/stop/passenger model
// (backend/model/bus.go's capacity-clamped LoadPassengers/UnloadPassengers
// and BoardPassengersAtStop/AlightPassengersAtCurrentStop stop-matching
// idiom), generalized from jwmdev-brt08's standalone bus entity into
// spec.md §4.D's "a bus is a car whose Router contains a cyclic schedule"
// framing: the physical motion is driving.Manager's, this package only
// owns route membership, stop queues, and boarding/alighting.
package transit

import (
	"github.com/tsinghua-fib-lab/citysim-go/agent"
	"github.com/tsinghua-fib-lab/citysim-go/citymap"
	"github.com/tsinghua-fib-lab/citysim-go/event"
	"github.com/tsinghua-fib-lab/citysim-go/internal/logging"
	"github.com/tsinghua-fib-lab/citysim-go/simtime"
)

var log = logging.For("transit")

// Capacity is the default passenger capacity of a bus, used when a route
// does not override it (no spec.md numeric value given; engine-chosen,
// grounded on jwmdev-brt08's BusType.Capacity field existing per-type
// rather than as a single constant — kept as one constant here since
// spec.md does not model bus types).
const Capacity = 40

// DwellTime is the fallback dwell duration at a stop when the route's own
// BusRoute.DwellTime is zero.
const DwellTime = simtime.Duration(20)

// Bus is one live transit vehicle's route-following state, layered on top
// of its driving.Car identity (the CarID is the join key).
type Bus struct {
	Car       agent.CarID
	Route     citymap.BusRouteID
	StopIdx   int // index into the route's Stops this bus is approaching/at
	Onboard   []agent.PedID
	Capacity  int
}

func (b *Bus) remainingCapacity() int {
	cap := b.Capacity
	if cap <= 0 {
		cap = Capacity
	}
	return cap - len(b.Onboard)
}

// waitingPassenger is one pedestrian queued at a stop for a specific route.
type waitingPassenger struct {
	Ped   agent.PedID
	Since simtime.Time
}

// Manager owns every live Bus and each stop's per-route waiting queue. It
// holds no references to driving.Manager/walking.Manager/scheduler/event —
// every method takes them as explicit parameters, matching the façade-
// friendly style of driving.Manager and intersection.Manager.
type Manager struct {
	m      *citymap.Map
	buses  map[agent.CarID]*Bus
	queues map[citymap.BusStopID]map[citymap.BusRouteID][]waitingPassenger
}

// New returns an empty Manager bound to m.
func New(m *citymap.Map) *Manager {
	return &Manager{
		m:      m,
		buses:  make(map[agent.CarID]*Bus),
		queues: make(map[citymap.BusStopID]map[citymap.BusRouteID][]waitingPassenger),
	}
}

// SpawnBus registers a new bus entering route at stop index 0. The caller
// is responsible for placing the underlying Car in driving.Manager.
func (mgr *Manager) SpawnBus(car agent.CarID, route citymap.BusRouteID) *Bus {
	b := &Bus{Car: car, Route: route, Capacity: Capacity}
	mgr.buses[car] = b
	return b
}

// RemoveBus forgets a bus whose cyclic schedule has ended (route withdrawn
// or simulation shutdown); not part of spec.md's steady-state operation
// since routes normally cycle forever.
func (mgr *Manager) RemoveBus(id agent.CarID) {
	delete(mgr.buses, id)
}

// Bus returns the live Bus for car, panicking if absent.
func (mgr *Manager) Bus(car agent.CarID) *Bus {
	b, ok := mgr.buses[car]
	if !ok {
		log.Panicf("transit: unknown bus %v", car)
	}
	return b
}

// Enqueue adds ped to stop's waiting queue for route (spec.md §4.E
// WaitingForBus), called by the trip manager when a RideBus leg begins.
func (mgr *Manager) Enqueue(stop citymap.BusStopID, route citymap.BusRouteID, ped agent.PedID, now simtime.Time) {
	byRoute := mgr.queues[stop]
	if byRoute == nil {
		byRoute = make(map[citymap.BusRouteID][]waitingPassenger)
		mgr.queues[stop] = byRoute
	}
	byRoute[route] = append(byRoute[route], waitingPassenger{Ped: ped, Since: now})
}

// Dequeue removes ped from stop's waiting queue for route, used when a
// trip is cancelled while a pedestrian is still waiting.
func (mgr *Manager) Dequeue(stop citymap.BusStopID, route citymap.BusRouteID, ped agent.PedID) {
	byRoute := mgr.queues[stop]
	if byRoute == nil {
		return
	}
	q := byRoute[route]
	for i, w := range q {
		if w.Ped == ped {
			byRoute[route] = append(q[:i], q[i+1:]...)
			return
		}
	}
}

// BoardResult names one boarded passenger and how long they waited.
type BoardResult struct {
	Ped  agent.PedID
	Wait simtime.Duration
}

// ArriveAtStop performs spec.md §4.H's per-stop dwell sequence steps 2-3:
// board every waiting passenger for this bus's route up to capacity, and
// return the boarded passengers with their waits. It does not alight
// anyone: callers alight passengers themselves via Alight, checking each
// one's trip leg's AlightStop against stopID, since Manager does not know
// trip legs.
func (mgr *Manager) ArriveAtStop(car agent.CarID, stopID citymap.BusStopID, now simtime.Time, events *event.Buffer) []BoardResult {
	bus := mgr.Bus(car)
	bus.StopIdx++
	events.Push(event.Event{Kind: event.BusArrivedAtStop, Time: now, Car: car, BusRoute: bus.Route, BusStop: stopID})

	byRoute := mgr.queues[stopID]
	if byRoute == nil {
		return nil
	}
	q := byRoute[bus.Route]
	var boarded []BoardResult
	remaining := bus.remainingCapacity()
	i := 0
	for ; i < len(q) && remaining > 0; i++ {
		bus.Onboard = append(bus.Onboard, q[i].Ped)
		boarded = append(boarded, BoardResult{Ped: q[i].Ped, Wait: now.Sub(q[i].Since)})
		remaining--
	}
	byRoute[bus.Route] = q[i:]
	return boarded
}

// Alight removes ped from car's onboard list (spec.md §4.H step 3),
// returning whether ped was actually onboard.
func (mgr *Manager) Alight(car agent.CarID, ped agent.PedID) bool {
	bus := mgr.Bus(car)
	for i, p := range bus.Onboard {
		if p == ped {
			bus.Onboard = append(bus.Onboard[:i], bus.Onboard[i+1:]...)
			return true
		}
	}
	return false
}

// DwellDuration resolves the dwell time for route, falling back to
// DwellTime when the route's own value is unset.
func DwellDuration(route *citymap.BusRoute) simtime.Duration {
	if route.DwellTime > 0 {
		return simtime.Duration(route.DwellTime)
	}
	return DwellTime
}
