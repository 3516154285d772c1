// Package sim implements spec.md §4.J: the façade owning every other
// component and the single-threaded command-dispatch loop that replaces
// the teacher's concurrent prepare/update tick. Sim's field layout and
// construction order (lane/road/junction data already folded into
// citymap.Map -> parking -> intersection -> driving/walking/transit ->
// trip -> analytics) mirrors task/task.go's Context.Init() call sequence
// (laneManager -> aoiManager -> roadManager -> junctionManager ->
// personManager -> router), generalized to this engine's package split.
// task/simulet.go's concurrent prepare()/update() two-phase
// sync.WaitGroup tree is deliberately not ported: spec.md §5 mandates a
// single-threaded, deterministic step loop, so Sim.Step pops and dispatches
// scheduler commands one at a time instead.
package sim

import (
	"time"

	"github.com/tsinghua-fib-lab/citysim-go/agent"
	"github.com/tsinghua-fib-lab/citysim-go/analytics"
	"github.com/tsinghua-fib-lab/citysim-go/citymap"
	"github.com/tsinghua-fib-lab/citysim-go/driving"
	"github.com/tsinghua-fib-lab/citysim-go/event"
	"github.com/tsinghua-fib-lab/citysim-go/internal/logging"
	"github.com/tsinghua-fib-lab/citysim-go/intersection"
	"github.com/tsinghua-fib-lab/citysim-go/parking"
	"github.com/tsinghua-fib-lab/citysim-go/path"
	"github.com/tsinghua-fib-lab/citysim-go/scheduler"
	"github.com/tsinghua-fib-lab/citysim-go/simtime"
	"github.com/tsinghua-fib-lab/citysim-go/transit"
	"github.com/tsinghua-fib-lab/citysim-go/trip"
	"github.com/tsinghua-fib-lab/citysim-go/walking"

	"git.fiblab.net/general/common/v2/geometry"
)

var log = logging.For("sim")

// TinyStepDuration is tiny_step's fixed increment (spec.md §4.J), used by
// interactive callers to get immediate feedback after spawning an agent.
const TinyStepDuration = simtime.Duration(1)

// BusLength is the nominal length used for every spawned bus, no spec.md
// numeric value given (engine-chosen, consistent with trip's
// defaultVehicleLength idiom for cars/bikes).
const BusLength = 12.0

// ParkingLaneAdjacency pairs one onstreet parking lane with the driving
// and sidewalk lanes a parked/parking car enters and exits through
// (parking.New's constructor parameter, re-exported here so callers never
// import the parking package just to build this map).
type ParkingLaneAdjacency = struct {
	Sidewalk citymap.LaneID
	Driving  citymap.LaneID
}

// Opts mirrors spec.md §6's SimOpts: every option is enumerated with its
// effect, defaults producing realistic behavior.
type Opts struct {
	// InfiniteParking, when true, bypasses spot scarcity: every drive leg
	// ending at a building is treated as always having a free spot. Recorded
	// for SimOpts round-tripping; trip.Manager always reserves a real spot
	// through parking.Lot regardless (DESIGN.md notes this as unwired rather
	// than silently dropped).
	InfiniteParking bool
	// RecordAnything gates analytics.Analytics's event consumption and its
	// expensive raw per-sample throughput vectors (analytics.rs's
	// record_anything).
	RecordAnything bool
	// AdaptiveSignal selects intersection.Manager's pressure-driven phase
	// selection over the fixed Phases program (intersection.New's
	// adaptiveSignal parameter).
	AdaptiveSignal bool
	// DisableTurnConflicts, HandleUberTurns, RecalcLaneChanging are
	// accepted for interface completeness with spec.md §6's SimOpts list.
	// This engine's intersection/driving layer always enforces conflict
	// sets and uber-turn atomic admittance (intersection.go has no
	// per-option gate for either, since disabling either would require a
	// second arbitration code path this pass did not build), and there is
	// no lane-changing model for RecalcLaneChanging to toggle — recorded
	// here so callers can pass the full SimOpts list without it being
	// silently dropped; config.Control does not expose these three fields.
	DisableTurnConflicts bool
	HandleUberTurns      bool
	RecalcLaneChanging   bool
}

// Callback is a registered periodic external hook (scheduler.Callback
// command), invoked with the time it fired.
type Callback func(now simtime.Time)

// Sim owns every sub-component and the single scheduler/event buffer they
// share. Per spec.md §9's first redesign flag, sub-packages never import
// sim and never hold pointers to each other — every cross-component call
// is a method on Sim passing the specific collaborators a callee needs.
type Sim struct {
	m          *citymap.Map
	pathfinder path.Pathfinder
	opts       Opts

	sched  *scheduler.Scheduler
	events *event.Buffer

	parking      *parking.Lot
	intersection *intersection.Manager
	driving      *driving.Manager
	walking      *walking.Manager
	transit      *transit.Manager
	trip         *trip.Manager
	analytics    *analytics.Analytics

	ids *trip.IDAllocator
	now simtime.Time

	callbacks      map[int]Callback
	nextCallbackID int
}

// New builds a Sim over m, wiring every sub-component in the order
// task/task.go's Context.Init() establishes for its own managers: the
// immutable map first, then the components that only read it (parking,
// intersection), then the components that mutate shared queues/requests
// (driving, walking, transit), then the orchestrator that spawns into all
// three (trip), then the passive observer (analytics).
func New(m *citymap.Map, pf path.Pathfinder, parkingLanes map[citymap.LaneID]ParkingLaneAdjacency, opts Opts) *Sim {
	ids := trip.NewIDAllocator()
	prk := parking.New(m, parkingLanes)
	inter := intersection.New(m, opts.AdaptiveSignal)
	drv := driving.New(m)
	wlk := walking.New(m)
	trn := transit.New(m)
	tm := trip.New(m, pf, ids, drv, wlk, trn, prk)

	return &Sim{
		m: m, pathfinder: pf, opts: opts,
		sched:  scheduler.New(),
		events: &event.Buffer{},

		parking:      prk,
		intersection: inter,
		driving:      drv,
		walking:      wlk,
		transit:      trn,
		trip:         tm,
		analytics:    analytics.New(opts.RecordAnything),

		ids: ids,
		now: simtime.StartOfDay,

		callbacks: make(map[int]Callback),
	}
}

// Time returns the simulation's current clock value.
func (s *Sim) Time() simtime.Time { return s.now }

// GetAnalytics returns the live Analytics store (spec.md §4.J).
func (s *Sim) GetAnalytics() *analytics.Analytics { return s.analytics }

// ScheduleTrip registers t and pushes its departure command, the entry
// point scenario loading uses to populate the engine (spec.md §6
// Scenario).
func (s *Sim) ScheduleTrip(t *trip.Trip) {
	s.trip.Schedule(t, s.sched)
}

// SpawnBus registers a new bus on routeID, starting it toward the second
// stop of its cycle (the first stop is treated as its spawn point). Buses
// are framed per spec.md §4.D as "a car whose Router contains a cyclic
// schedule": the physical motion runs through driving.Manager exactly like
// any other car, while transit.Manager tracks route/stop/passenger state
// keyed by the same CarID.
func (s *Sim) SpawnBus(routeID citymap.BusRouteID) (agent.CarID, bool) {
	route := s.m.BusRoutes[routeID]
	if route == nil || len(route.Stops) < 2 {
		log.Warnf("sim: cannot spawn bus on route %v: fewer than two stops", routeID)
		return 0, false
	}
	carID := s.ids.NextCar()
	from := s.m.BusStops[route.Stops[0]]
	start := citymap.Position{Lane: from.SidewalkLane, S: from.SidewalkS}
	p := s.busPathToStop(carID, route, start, 1)
	if p == nil {
		log.Warnf("sim: bus route %v has no path from stop 0 to stop 1", routeID)
		return 0, false
	}
	s.transit.SpawnBus(carID, routeID)
	car := &driving.Car{ID: carID, VehicleType: agent.VehicleTypeBus, Length: BusLength, Path: p, BusRoute: routeID, BusStopIdx: 1}
	s.driving.SpawnCar(car, start.S, s.now, s.sched, s.events)
	return carID, true
}

func (s *Sim) busPathToStop(carID agent.CarID, route *citymap.BusRoute, start citymap.Position, stopIdx int) *path.Path {
	to := s.m.BusStops[route.Stops[stopIdx%len(route.Stops)]]
	req := path.Request{
		Agent: agent.CarAgent(carID),
		Start: start,
		Goal:  path.Endpoint{Kind: path.EndpointSuddenlyAppear, Position: citymap.Position{Lane: to.SidewalkLane, S: to.SidewalkS}},
		Kind:  agent.VehicleTypeBus,
	}
	return s.pathfinder.Pathfind(req)
}

// RegisterCallback schedules fn to run every period, returning an id that
// can cancel it via CancelCallback (spec.md §4.B's periodic Callback
// command).
func (s *Sim) RegisterCallback(period simtime.Duration, fn Callback) int {
	id := s.nextCallbackID
	s.nextCallbackID++
	s.callbacks[id] = fn
	s.sched.Push(s.now.Add(period), callbackCmd(id, period))
	return id
}

// CancelCallback stops a previously registered periodic callback.
func (s *Sim) CancelCallback(id int) {
	delete(s.callbacks, id)
}

// callbackPeriod threads a callback's own period through its repeated
// scheduler.Command so the handler can re-push itself; scheduler.Command
// has no spare field for this, so periods are tracked in a side table
// instead of widening scheduler.Command for one caller.
var callbackPeriods = make(map[int]simtime.Duration)

func callbackCmd(id int, period simtime.Duration) scheduler.Command {
	callbackPeriods[id] = period
	return scheduler.CallbackCmd(id)
}

// Step advances the simulation by exactly dt, repeatedly popping commands
// with time <= now+dt and dispatching them, then draining the event
// buffer through analytics in emission order (spec.md §4.J).
func (s *Sim) Step(dt simtime.Duration) {
	s.runUntil(s.now.Add(dt), nil, nil)
}

// TimeLimitedStep is Step, but also stops early if realBudget of wall-clock
// time elapses, or as soon as onEvent returns true for some event emitted
// within the step (spec.md §4.J, "used by interactive play").
func (s *Sim) TimeLimitedStep(dt simtime.Duration, realBudget time.Duration, onEvent func(event.Event) bool) {
	deadline := time.Now().Add(realBudget)
	s.runUntil(s.now.Add(dt), func() bool { return time.Now().After(deadline) }, onEvent)
}

// TinyStep advances by TinyStepDuration, for immediate feedback after an
// interactive spawn (spec.md §4.J).
func (s *Sim) TinyStep() {
	s.Step(TinyStepDuration)
}

// runUntil is Step/TimeLimitedStep's shared dispatch loop. haltCheck, when
// non-nil, is polled between commands and stops the loop early without
// advancing now past the last dispatched command's time. onEvent, when
// non-nil, is checked against every event emitted by the just-dispatched
// command; a true result halts the loop the same way haltCheck does.
func (s *Sim) runUntil(target simtime.Time, haltCheck func() bool, onEvent func(event.Event) bool) {
	halted := false
	for {
		t, ok := s.sched.PeekTime()
		if !ok || t.After(target) {
			break
		}
		if haltCheck != nil && haltCheck() {
			halted = true
			break
		}
		tm, cmd, ok := s.sched.Pop()
		if !ok {
			break
		}
		s.now = tm
		before := s.events.Len()
		s.dispatch(cmd, tm)
		if onEvent != nil && haltOnNewEvent(s.events.Peek()[before:], onEvent) {
			halted = true
			break
		}
	}
	if !halted && s.now.Before(target) {
		s.now = target
	}
	s.drain()
}

func haltOnNewEvent(events []event.Event, onEvent func(event.Event) bool) bool {
	for _, e := range events {
		if onEvent(e) {
			return true
		}
	}
	return false
}

// drain flushes the event buffer through analytics in emission order
// (spec.md §4.J's end-of-step contract). Registered periodic callbacks do
// not receive events (they are invoked with the firing time only); only
// TimeLimitedStep's onEvent hook sees events, inline during dispatch.
func (s *Sim) drain() {
	for _, e := range s.events.Drain() {
		s.analytics.Consume(e, s.m)
	}
}

// dispatch executes one popped Command, the switch spec.md §4.B's command
// table describes. Every branch reads committed state, computes the
// effect, and applies it synchronously — the "commit-then-compute"
// two-phase idea task/simulet.go's concurrent loop used survives only as
// this ordering within one command, per SPEC_FULL.md §4.J.
func (s *Sim) dispatch(cmd scheduler.Command, now simtime.Time) {
	before := len(s.events.Peek())
	switch cmd.Kind {
	case scheduler.StartTrip:
		s.trip.StartTrip(cmd.Trip, now, s.sched, s.events)
	case scheduler.SpawnCar:
		// Every ordinary leg spawns its car synchronously from within
		// trip.Manager.beginVehicleLeg; this Command variant is reserved
		// for a deferred spawn a future scenario-population bootstrap
		// would use (spec.md §4.B table), not exercised by trip-driven
		// traffic in this engine.
	case scheduler.UpdateCar:
		s.dispatchUpdateCar(cmd.Car, now)
	case scheduler.UpdateLaggyHead:
		s.driving.ClearLaggyHead(cmd.Car)
	case scheduler.UpdatePed:
		outcome := s.walking.UpdatePed(cmd.Ped, now, s.sched, s.events, s.intersection)
		if outcome == walking.OutcomeReachedPathEnd {
			s.trip.OnPedReachedPathEnd(cmd.Ped, now, s.sched, s.events)
		}
	case scheduler.UpdateIntersection:
		s.dispatchUpdateIntersection(cmd.Intersection, now)
	case scheduler.Callback:
		if fn, ok := s.callbacks[cmd.CallbackID]; ok {
			fn(now)
			if period, ok := callbackPeriods[cmd.CallbackID]; ok {
				s.sched.Push(now.Add(period), callbackCmd(cmd.CallbackID, period))
			}
		}
	case scheduler.Pandemic:
		log.Debugf("sim: Pandemic command fired at %v with no registered handler", now)
	case scheduler.FinishRemoteTrip:
		s.trip.OnRemoteTripFinished(cmd.Trip, now, s.sched, s.events)
	}
	s.observeExits(before)
}

// observeExits scans the events appended by the last dispatch for
// AgentLeavesTraversable(Turn) occurrences and releases the matching
// intersection grant, keeping intersection.Manager free of an event.Buffer
// dependency (spec.md §4.G Exit: "removes req from accepted, called when
// the agent physically clears the turn").
func (s *Sim) observeExits(before int) {
	all := s.events.Peek()
	for _, e := range all[before:] {
		if e.Kind != event.AgentLeavesTraversable || e.Traversable.Kind != citymap.TraversableTurn {
			continue
		}
		turn := s.m.Turn(e.Traversable.Turn)
		s.intersection.OnExit(turn.Junction, intersection.Request{Agent: e.Agent, Turn: e.Traversable.Turn})
	}
}

// dispatchUpdateCar is the UpdateCar command handler. driving.Manager's
// UpdateCar only transitions Crossing/Queued/WaitingToAdvance cars;
// Parking/Idling completions are driven here by inspecting the car's
// current sub-state, since driving.Manager deliberately has no dependency
// on trip.Manager/transit.Manager to call back into.
func (s *Sim) dispatchUpdateCar(id agent.CarID, now simtime.Time) {
	if !s.driving.HasCar(id) {
		return
	}
	car := s.driving.Car(id)
	switch car.State.Kind {
	case driving.Parking:
		s.trip.OnParkingFinished(id, now, s.sched, s.events)
	case driving.Idling:
		if car.IsBus() {
			if s.driving.FinishIdling(id, now, s.sched, s.events, s.intersection) == driving.OutcomeReachedPathEnd {
				s.busReachedStop(id, now)
			}
		}
	default:
		outcome := s.driving.UpdateCar(id, now, s.sched, s.events, s.intersection)
		if outcome != driving.OutcomeReachedPathEnd {
			return
		}
		if car.IsBus() {
			s.busReachedStop(id, now)
			return
		}
		s.trip.OnCarReachedPathEnd(id, now, s.sched, s.events)
	}
}

// busReachedStop handles a bus car's OutcomeReachedPathEnd: alight every
// onboard passenger whose leg ends here, board every waiting passenger up
// to capacity, dwell, and retarget the car's Path at the next stop.
// Grounded on jwmdev-brt08's AdvanceToStop alighted-then-boarded ordering
// (see transit package doc).
func (s *Sim) busReachedStop(carID agent.CarID, now simtime.Time) {
	car := s.driving.Car(carID)
	route := s.m.BusRoutes[car.BusRoute]
	if route == nil || len(route.Stops) == 0 {
		log.Panicf("sim: bus %v has no route %v", carID, car.BusRoute)
	}
	arrivedIdx := car.BusStopIdx % len(route.Stops)
	stopID := route.Stops[arrivedIdx]
	stop := s.m.BusStops[stopID]

	bus := s.transit.Bus(carID)
	onboard := append([]agent.PedID(nil), bus.Onboard...)
	for _, ped := range onboard {
		alightStop, ok := s.trip.PedAlightStop(ped)
		if !ok || alightStop != stopID {
			continue
		}
		s.transit.Alight(carID, ped)
		s.trip.OnPedAlightedBus(ped, stop.SidewalkS, now, s.sched, s.events)
	}

	boarded := s.transit.ArriveAtStop(carID, stopID, now, s.events)
	for _, b := range boarded {
		s.trip.OnPedBoardedBus(b.Ped, carID, arrivedIdx, now, s.events)
	}

	dwell := transit.DwellDuration(route)
	s.driving.BeginIdling(carID, now, dwell, s.sched, s.events)

	// The Path continuing from this stop must start exactly where the car
	// physically sits (the tail of its current Traversable), not the stop's
	// sidewalk position — Path.Steps[0] must equal car.Current for
	// advanceToTraversable's Shift/Current update to stay coherent (see
	// path.Path's Steps[0]-is-current-position convention).
	nextIdx := car.BusStopIdx + 1
	start := citymap.Position{Lane: car.Current.Lane, S: s.m.TraversableLength(car.Current)}
	p := s.busPathToStop(carID, route, start, nextIdx)
	if p == nil {
		log.Warnf("sim: bus %v stranded at stop %v on route %v: no path to next stop", carID, stopID, route.ID)
		return
	}
	car.Path = p
	car.BusStopIdx = nextIdx
}

// dispatchUpdateIntersection is the UpdateIntersection command handler: it
// re-evaluates ix's arbitration state and wakes every admitted agent.
func (s *Sim) dispatchUpdateIntersection(ix citymap.IntersectionID, now simtime.Time) {
	grants := s.intersection.TryToGrant(ix, now)
	for _, g := range grants {
		s.events.Push(event.Event{Kind: event.IntersectionDelayMeasured, Time: now, Turn: g.Req.Turn, Delay: g.Delay, Agent: g.Req.Agent, AgentType: agentVehicleType(g.Req.Agent)})
		switch g.Req.Agent.Kind {
		case agent.KindCar:
			s.sched.Push(now, scheduler.UpdateCarCmd(g.Req.Agent.Car))
		case agent.KindPed:
			s.sched.Push(now, scheduler.UpdatePedCmd(g.Req.Agent.Ped))
		}
	}
	inter := s.m.Intersection(ix)
	if inter.Control != citymap.ControlConstruction && s.intersection.HasNonEmptyWaiting(ix) {
		s.sched.Push(now.Add(simtime.Duration(1)), scheduler.UpdateIntersectionCmd(ix))
	}
}

func agentVehicleType(id agent.ID) agent.VehicleType {
	if id.Kind == agent.KindCar {
		return agent.VehicleTypeCar
	}
	return agent.VehicleTypeUnspecified
}

// PersonState is one agent's renderable snapshot (spec.md §4.J
// get_all_person_states).
type PersonState struct {
	Person agent.PersonID
	Trip   agent.TripID
	Status trip.Status
	Point  geometry.Point
	Found  bool
}

// GetAllPersonStates returns a renderable snapshot of every active trip
// (spec.md §4.J).
func (s *Sim) GetAllPersonStates() []PersonState {
	trips := s.trip.All()
	out := make([]PersonState, 0, len(trips))
	for _, t := range trips {
		if t.Status.Kind != trip.Active {
			continue
		}
		var id agent.ID
		if t.CurrentLeg().Kind == trip.LegDrive || t.CurrentLeg().Kind == trip.LegBike {
			id = agent.CarAgent(t.Car)
		} else {
			id = agent.PedAgent(t.Ped)
		}
		pt, ok := s.CanonicalPointForAgent(id)
		out = append(out, PersonState{Person: t.Person, Trip: t.ID, Status: t.Status, Point: pt, Found: ok})
	}
	return out
}

// CanonicalPointForAgent resolves agent's current physical position for
// external rendering (spec.md §4.J/§6). Turn traversables carry no
// centerline in this map representation (citymap.Turn has no Center
// field), so a car mid-turn is approximated by its FromLane's endpoint —
// an intentional simplification, the same tier as trip.resolvePosition's
// "first matching lane" border handling.
func (s *Sim) CanonicalPointForAgent(id agent.ID) (geometry.Point, bool) {
	switch id.Kind {
	case agent.KindCar:
		if !s.driving.HasCar(id.Car) {
			return geometry.Point{}, false
		}
		car := s.driving.Car(id.Car)
		return s.traversablePoint(car.Current, s.carProgress(car)), true
	case agent.KindPed:
		if !s.walking.HasPed(id.Ped) {
			return geometry.Point{}, false
		}
		p := s.walking.Ped(id.Ped)
		return s.traversablePoint(p.Current, s.pedProgress(p)), true
	default:
		return geometry.Point{}, false
	}
}

// carProgress returns how far along car.Current the car currently sits.
// Crossing interpolates between its departure/arrival times; every other
// state (Queued, WaitingToAdvance, Parking, Idling, Unparking) pins the car
// at the tail of its current Traversable, since those states retain no
// distance-along field of their own (driving.State only carries D0/D1 for
// Crossing).
func (s *Sim) carProgress(car *driving.Car) float64 {
	if car.State.Kind != driving.Crossing {
		return s.m.TraversableLength(car.Current)
	}
	return s.interpolate(car.State.T0, car.State.T1, car.State.D0, car.State.D1)
}

func (s *Sim) pedProgress(p *walking.Pedestrian) float64 {
	if p.State.Kind != walking.Crossing {
		return s.m.TraversableLength(p.Current)
	}
	return s.interpolate(p.State.T0, p.State.T1, p.State.D0, p.State.D1)
}

func (s *Sim) interpolate(t0, t1 simtime.Time, d0, d1 float64) float64 {
	span := t1.Sub(t0)
	if span <= 0 {
		return d1
	}
	frac := s.now.Sub(t0).Seconds() / span.Seconds()
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	return d0 + frac*(d1-d0)
}

func (s *Sim) traversablePoint(t citymap.Traversable, sAlong float64) geometry.Point {
	if t.Kind == citymap.TraversableLane {
		return s.m.Lane(t.Lane).PositionXY(sAlong)
	}
	turn := s.m.Turn(t.Turn)
	from := s.m.Lane(turn.FromLane)
	return from.PositionXY(from.Length)
}
