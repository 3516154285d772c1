package trip

import (
	"fmt"

	"github.com/tsinghua-fib-lab/citysim-go/agent"
	"github.com/tsinghua-fib-lab/citysim-go/citymap"
	"github.com/tsinghua-fib-lab/citysim-go/driving"
	"github.com/tsinghua-fib-lab/citysim-go/event"
	"github.com/tsinghua-fib-lab/citysim-go/internal/logging"
	"github.com/tsinghua-fib-lab/citysim-go/parking"
	"github.com/tsinghua-fib-lab/citysim-go/path"
	"github.com/tsinghua-fib-lab/citysim-go/scheduler"
	"github.com/tsinghua-fib-lab/citysim-go/simtime"
	"github.com/tsinghua-fib-lab/citysim-go/transit"
	"github.com/tsinghua-fib-lab/citysim-go/walking"
)

var log = logging.For("trip")

// ParkingDuration is how long BeginParking/BeginUnparking's maneuver takes,
// no spec.md numeric value given; engine-chosen (SPEC_FULL.md §4.I).
const ParkingDuration = simtime.Duration(15)

// RemoteTripDuration is how long a RemoteTrip leg occupies before
// FinishRemoteTrip fires; spec.md calls this event "long-lived" without a
// number, so this is an engine-chosen placeholder duration.
const RemoteTripDuration = simtime.Duration(1800)

// Manager owns every Trip and the PersonID -> active TripID mapping
// (spec.md §4.I). Unlike driving.Manager/walking.Manager, it legitimately
// holds direct references to every downstream simulation component it
// coordinates (driving, walking, transit, parking, the path resolver) since
// those components never call back into Manager — there is no cycle, only
// the one-directional "trip manager orchestrates everything else" shape
// spec.md §4.I describes, grounded on entity/person/schedule/schedule.go's
// Schedule holding an entity.ITaskContext to reach every other manager.
type Manager struct {
	m          *citymap.Map
	pathfinder path.Pathfinder
	ids        *IDAllocator

	driving *driving.Manager
	walking *walking.Manager
	transit *transit.Manager
	parking *parking.Lot

	trips   map[agent.TripID]*Trip
	current map[agent.PersonID]agent.TripID

	carTrip map[agent.CarID]agent.TripID
	pedTrip map[agent.PedID]agent.TripID

	reservedSpot map[agent.TripID]parking.Spot
}

// New builds a Manager wired to every downstream component it needs to
// drive a trip leg to completion.
func New(m *citymap.Map, pathfinder path.Pathfinder, ids *IDAllocator, drv *driving.Manager, wlk *walking.Manager, trn *transit.Manager, prk *parking.Lot) *Manager {
	return &Manager{
		m: m, pathfinder: pathfinder, ids: ids,
		driving: drv, walking: wlk, transit: trn, parking: prk,
		trips:        make(map[agent.TripID]*Trip),
		current:      make(map[agent.PersonID]agent.TripID),
		carTrip:      make(map[agent.CarID]agent.TripID),
		pedTrip:      make(map[agent.PedID]agent.TripID),
		reservedSpot: make(map[agent.TripID]parking.Spot),
	}
}

// Get returns the live Trip for id, panicking if absent — a scheduler
// Command referencing an unknown TripID is a structural engine bug, not a
// recoverable condition (SPEC_FULL.md §9 Open Question 1).
func (mgr *Manager) Get(id agent.TripID) *Trip {
	t, ok := mgr.trips[id]
	if !ok {
		log.Panicf("trip: unknown trip %v", id)
	}
	return t
}

// All returns every trip this manager owns, in no particular order, for
// the sim façade's rendering/analytics queries.
func (mgr *Manager) All() []*Trip {
	out := make([]*Trip, 0, len(mgr.trips))
	for _, t := range mgr.trips {
		out = append(out, t)
	}
	return out
}

// PedAlightStop reports the bus stop a riding pedestrian's current leg
// alights at, used by the sim façade to decide whether an arriving bus
// should alight them (spec.md §4.I's PassengerAlightsTransit terminal
// event).
func (mgr *Manager) PedAlightStop(pedID agent.PedID) (citymap.BusStopID, bool) {
	tripID, ok := mgr.pedTrip[pedID]
	if !ok {
		return 0, false
	}
	t := mgr.Get(tripID)
	leg := t.CurrentLeg()
	if leg.Kind != LegRideBus {
		return 0, false
	}
	return leg.AlightStop, true
}

// Schedule registers trip and pushes its StartTrip command at its
// departure time (spec.md §4.I "a trip is scheduled... this enqueues a
// StartTrip(trip_id) command at the trip's departure time").
func (mgr *Manager) Schedule(t *Trip, sched *scheduler.Scheduler) {
	mgr.trips[t.ID] = t
	t.Status = Status{Kind: Scheduled}
	sched.Push(t.Depart, scheduler.StartTripCmd(t.ID))
}

// StartTrip begins the first leg of trip id, the StartTrip command handler.
func (mgr *Manager) StartTrip(id agent.TripID, now simtime.Time, sched *scheduler.Scheduler, events *event.Buffer) {
	t := mgr.Get(id)
	t.Status = Status{Kind: Active, LegIdx: 0}
	mgr.current[t.Person] = id
	events.Push(event.Event{Kind: event.PersonEntersMap, Time: now, Trip: id, Person: t.Person})
	mgr.beginLeg(t, now, sched, events)
}

func (mgr *Manager) resolvePosition(ep path.Endpoint, walk bool) (citymap.Position, error) {
	switch ep.Kind {
	case path.EndpointSuddenlyAppear:
		return ep.Position, nil
	case path.EndpointBuilding:
		b := mgr.m.Building(ep.Building)
		if walk {
			if len(b.WalkingLanes) == 0 {
				return citymap.Position{}, errNoPath("building %d has no walking gate", b.ID)
			}
			lane := b.WalkingLanes[0]
			return citymap.Position{Lane: lane, S: b.WalkingS[lane]}, nil
		}
		if len(b.DrivingLanes) == 0 {
			return citymap.Position{}, errNoPath("building %d has no driving gate", b.ID)
		}
		lane := b.DrivingLanes[0]
		return citymap.Position{Lane: lane, S: b.DrivingS[lane]}, nil
	case path.EndpointBorder:
		inter := mgr.m.Intersection(ep.Border)
		for _, laneID := range inter.Lanes {
			lane := mgr.m.Lane(laneID)
			if walk && lane.Type == citymap.LaneTypeWalking {
				return citymap.Position{Lane: laneID, S: 0}, nil
			}
			if !walk && lane.Type == citymap.LaneTypeDriving {
				return citymap.Position{Lane: laneID, S: 0}, nil
			}
		}
		return citymap.Position{}, errNoPath("border %d has no matching lane", ep.Border)
	}
	return citymap.Position{}, errNoPath("unrecognized endpoint")
}

type pathError string

func (e pathError) Error() string { return string(e) }

func errNoPath(format string, args ...interface{}) error {
	return pathError(fmt.Sprintf(format, args...))
}

// beginLeg resolves, pathfinds, and spawns the entity for trip's current
// leg (spec.md §4.I leg-transition steps 3-5); a failure at any point
// cancels the trip rather than panicking, since every failure here is
// reachable through a scenario the pathfinder or parking state cannot
// satisfy (SPEC_FULL.md §9 Open Question 1).
func (mgr *Manager) beginLeg(t *Trip, now simtime.Time, sched *scheduler.Scheduler, events *event.Buffer) {
	leg := t.CurrentLeg()
	switch leg.Kind {
	case LegWalk:
		mgr.beginWalkLeg(t, leg, now, sched, events)
	case LegBike:
		mgr.beginVehicleLeg(t, leg, agent.VehicleTypeBike, now, sched, events)
	case LegDrive:
		mgr.beginVehicleLeg(t, leg, agent.VehicleTypeCar, now, sched, events)
	case LegRideBus:
		mgr.beginRideBusLeg(t, leg, now, events)
	case LegRemote:
		events.Push(event.Event{Kind: event.TripPhaseStarting, Time: now, Trip: t.ID, Person: t.Person, Phase: event.PhaseRemote})
		sched.Push(now.Add(RemoteTripDuration), scheduler.FinishRemoteTripCmd(t.ID))
	}
}

func (mgr *Manager) beginWalkLeg(t *Trip, leg Leg, now simtime.Time, sched *scheduler.Scheduler, events *event.Buffer) {
	start, err := mgr.resolvePosition(leg.Start, true)
	if err != nil {
		mgr.cancel(t, ReasonNoPath, now, events)
		return
	}
	pedID := mgr.ids.NextPed()
	req := path.Request{Agent: agent.PedAgent(pedID), Start: start, Goal: leg.End}
	p := mgr.pathfinder.Pathfind(req)
	if p == nil {
		mgr.cancel(t, ReasonNoPath, now, events)
		return
	}
	t.Ped = pedID
	mgr.pedTrip[pedID] = t.ID
	events.Push(event.Event{Kind: event.TripPhaseStarting, Time: now, Trip: t.ID, Person: t.Person, PathRequest: &req, Phase: event.PhaseWalk})
	ped := &walking.Pedestrian{ID: pedID, Trip: t.ID, Path: p}
	mgr.walking.SpawnPed(ped, start.S, now, sched, events)
}

func (mgr *Manager) beginVehicleLeg(t *Trip, leg Leg, vt agent.VehicleType, now simtime.Time, sched *scheduler.Scheduler, events *event.Buffer) {
	start, err := mgr.resolvePosition(leg.Start, false)
	if err != nil {
		mgr.cancel(t, ReasonNoPath, now, events)
		return
	}

	if vt == agent.VehicleTypeCar && leg.End.Kind == path.EndpointBuilding {
		spots := mgr.parking.GetFreeOffstreetSpots(leg.End.Building)
		if len(spots) == 0 {
			mgr.cancel(t, ReasonSpotUnreachable, now, events)
			return
		}
		spot := spots[0]
		if !mgr.parking.ReserveSpot(spot, 0) {
			mgr.cancel(t, ReasonSpotUnreachable, now, events)
			return
		}
		mgr.reservedSpot[t.ID] = spot
	}

	carID := mgr.ids.NextCar()
	req := path.Request{Agent: agent.CarAgent(carID), Start: start, Goal: leg.End, Kind: vt}
	p := mgr.pathfinder.Pathfind(req)
	if p == nil {
		if spot, ok := mgr.reservedSpot[t.ID]; ok {
			mgr.parking.ReleaseReservation(spot, 0)
			delete(mgr.reservedSpot, t.ID)
		}
		mgr.cancel(t, ReasonNoPath, now, events)
		return
	}
	t.Car = carID
	mgr.carTrip[carID] = t.ID

	phase := event.PhaseDrive
	if vt == agent.VehicleTypeBike {
		phase = event.PhaseBike
	}
	events.Push(event.Event{Kind: event.TripPhaseStarting, Time: now, Trip: t.ID, Person: t.Person, PathRequest: &req, Phase: phase})

	car := &driving.Car{ID: carID, Trip: t.ID, VehicleType: vt, Length: defaultVehicleLength(vt), Path: p}
	mgr.driving.SpawnCar(car, start.S, now, sched, events)
}

func defaultVehicleLength(vt agent.VehicleType) float64 {
	if vt == agent.VehicleTypeBike {
		return 1.8
	}
	return 5.0
}

func (mgr *Manager) beginRideBusLeg(t *Trip, leg Leg, now simtime.Time, events *event.Buffer) {
	events.Push(event.Event{Kind: event.TripPhaseStarting, Time: now, Trip: t.ID, Person: t.Person, Phase: event.PhaseRideBus})
	mgr.transit.Enqueue(leg.BoardStop, leg.Route, t.Ped, now)
	mgr.walking.BeginWaitingForBus(t.Ped, leg.BoardStop, leg.Route, now, events)
}

// AdvanceLeg moves trip id to its next leg, or finishes it if the leg just
// completed was the last one (spec.md §4.I step 2).
func (mgr *Manager) AdvanceLeg(id agent.TripID, now simtime.Time, sched *scheduler.Scheduler, events *event.Buffer) {
	t := mgr.Get(id)
	if !t.HasNextLeg() {
		mgr.finish(t, now, events)
		return
	}
	t.Status.LegIdx++
	mgr.beginLeg(t, now, sched, events)
}

func (mgr *Manager) finish(t *Trip, now simtime.Time, events *event.Buffer) {
	t.Status = Status{Kind: Finished, LegIdx: t.Status.LegIdx}
	delete(mgr.current, t.Person)
	events.Push(event.Event{Kind: event.TripFinished, Time: now, Trip: t.ID, Person: t.Person})
	if t.CurrentLeg().End.Kind == path.EndpointBorder {
		events.Push(event.Event{Kind: event.PersonLeavesMap, Time: now, Trip: t.ID, Person: t.Person})
	}
}

func (mgr *Manager) cancel(t *Trip, reason CancelReason, now simtime.Time, events *event.Buffer) {
	t.Status = Status{Kind: Cancelled, LegIdx: t.Status.LegIdx, Reason: reason}
	delete(mgr.current, t.Person)
	events.Push(event.Event{Kind: event.TripCancelled, Time: now, Trip: t.ID, Person: t.Person, CancelReason: reason.String()})
}

// OnCarReachedPathEnd is called by the sim façade when driving.UpdateCar
// returns OutcomeReachedPathEnd for a car this manager spawned (spec.md
// §4.I "leg finishes by an engine-level terminal event").
func (mgr *Manager) OnCarReachedPathEnd(carID agent.CarID, now simtime.Time, sched *scheduler.Scheduler, events *event.Buffer) {
	tripID, ok := mgr.carTrip[carID]
	if !ok {
		log.Panicf("trip: OutcomeReachedPathEnd for untracked car %v", carID)
	}
	t := mgr.Get(tripID)
	leg := t.CurrentLeg()

	if leg.Kind == LegBike {
		car := mgr.driving.Car(carID)
		events.Push(event.Event{Kind: event.BikeStoppedAtSidewalk, Time: now, Agent: agent.CarAgent(carID), Car: carID, Traversable: car.Current})
		mgr.driving.RemoveCar(carID, now, sched, events)
		delete(mgr.carTrip, carID)
		mgr.AdvanceLeg(tripID, now, sched, events)
		return
	}

	if leg.End.Kind == path.EndpointBorder {
		car := mgr.driving.Car(carID)
		events.Push(event.Event{Kind: event.CarOrBikeReachedBorder, Time: now, Agent: agent.CarAgent(carID), Car: carID, Traversable: car.Current})
		mgr.driving.RemoveCar(carID, now, sched, events)
		delete(mgr.carTrip, carID)
		mgr.AdvanceLeg(tripID, now, sched, events)
		return
	}

	spot, ok := mgr.reservedSpot[tripID]
	if !ok {
		log.Panicf("trip: drive leg for trip %v reached its end with no reserved spot", tripID)
	}
	mgr.driving.BeginParking(carID, spot.Building, spot.Lane, spot.Index, now, ParkingDuration, sched)
}

// OnParkingFinished is called by the sim façade when a car's BeginParking
// duration has elapsed (the UpdateCar command handler observing
// State.Kind == driving.Parking).
func (mgr *Manager) OnParkingFinished(carID agent.CarID, now simtime.Time, sched *scheduler.Scheduler, events *event.Buffer) {
	tripID := mgr.carTrip[carID]
	spot := mgr.reservedSpot[tripID]
	mgr.parking.ParkCar(spot, carID)
	mgr.driving.FinishParking(carID, now, sched, events)
	delete(mgr.carTrip, carID)
	delete(mgr.reservedSpot, tripID)
	mgr.AdvanceLeg(tripID, now, sched, events)
}

// OnPedReachedPathEnd is called by the sim façade when walking.UpdatePed
// returns OutcomeReachedPathEnd for a pedestrian this manager spawned.
func (mgr *Manager) OnPedReachedPathEnd(pedID agent.PedID, now simtime.Time, sched *scheduler.Scheduler, events *event.Buffer) {
	tripID, ok := mgr.pedTrip[pedID]
	if !ok {
		log.Panicf("trip: OutcomeReachedPathEnd for untracked pedestrian %v", pedID)
	}
	t := mgr.Get(tripID)
	leg := t.CurrentLeg()

	if leg.End.Kind == path.EndpointBorder {
		events.Push(event.Event{Kind: event.PersonLeavesMap, Time: now, Trip: tripID, Person: t.Person, Agent: agent.PedAgent(pedID)})
		mgr.walking.RemovePed(pedID, now, sched, events)
		delete(mgr.pedTrip, pedID)
		mgr.AdvanceLeg(tripID, now, sched, events)
		return
	}

	if t.HasNextLeg() && t.Legs[t.Status.LegIdx+1].Kind == LegRideBus {
		// The pedestrian waits at the bus stop in place; AdvanceLeg's
		// RideBus branch enqueues them without removing them from
		// walking sim — boarding itself removes them (OnPedBoardedBus).
		mgr.AdvanceLeg(tripID, now, sched, events)
		return
	}

	events.Push(event.Event{Kind: event.PedReachedBuilding, Time: now, Trip: tripID, Person: t.Person, Agent: agent.PedAgent(pedID)})
	mgr.walking.RemovePed(pedID, now, sched, events)
	delete(mgr.pedTrip, pedID)
	mgr.AdvanceLeg(tripID, now, sched, events)
}

// OnPedBoardedBus is called by the sim façade when transit.ArriveAtStop
// reports ped boarded bus at stopIdx.
func (mgr *Manager) OnPedBoardedBus(pedID agent.PedID, bus agent.CarID, stopIdx int, now simtime.Time, events *event.Buffer) {
	mgr.walking.BoardBus(pedID, bus, stopIdx, now, events)
}

// OnPedAlightedBus is called by the sim façade when a riding pedestrian's
// alight stop matches the bus's current stop.
func (mgr *Manager) OnPedAlightedBus(pedID agent.PedID, startS float64, now simtime.Time, sched *scheduler.Scheduler, events *event.Buffer) {
	mgr.walking.AlightBus(pedID, startS, now, sched, events)
	tripID := mgr.pedTrip[pedID]
	mgr.AdvanceLeg(tripID, now, sched, events)
}

// OnRemoteTripFinished is the FinishRemoteTrip command handler.
func (mgr *Manager) OnRemoteTripFinished(id agent.TripID, now simtime.Time, sched *scheduler.Scheduler, events *event.Buffer) {
	mgr.AdvanceLeg(id, now, sched, events)
}
