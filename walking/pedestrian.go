// Package walking implements spec.md §4.E's per-pedestrian state machine:
// pedestrians follow a Path over sidewalks and crosswalks at a constant
// per-person speed, with no car-following spacing (sidewalks only track
// crowd counts for rendering, never block). Grounded on
// entity/person/pedestrian.go's updatePedestrian segment-stepping loop,
// generalized from its continuous per-dt integration into the
// discrete-event Crossing-interval model spec.md §4.C/§4.D already use for
// cars (SPEC_FULL.md §4.E).
package walking

import (
	"github.com/tsinghua-fib-lab/citysim-go/agent"
	"github.com/tsinghua-fib-lab/citysim-go/citymap"
	"github.com/tsinghua-fib-lab/citysim-go/event"
	"github.com/tsinghua-fib-lab/citysim-go/internal/logging"
	"github.com/tsinghua-fib-lab/citysim-go/intersection"
	"github.com/tsinghua-fib-lab/citysim-go/path"
	"github.com/tsinghua-fib-lab/citysim-go/scheduler"
	"github.com/tsinghua-fib-lab/citysim-go/simtime"
)

var log = logging.For("walking")

// DefaultWalkSpeed is the fallback per-person walking speed, grounded on
// entity/person/pedestrian.go's defaultWalkV.
const DefaultWalkSpeed = 1.34 // meters/second

// StateKind enumerates spec.md §4.E's six pedestrian states.
type StateKind int

const (
	Crossing StateKind = iota
	WaitingToTurn
	LeavingBuilding
	EnteringBuilding
	WaitingForBus
	RidingBus
)

// State is the pedestrian's current phase, flattened the same way
// driving.State is.
type State struct {
	Kind StateKind

	// Crossing
	T0, T1 simtime.Time
	D0, D1 float64

	// WaitingToTurn
	Turn  citymap.TurnID
	Since simtime.Time

	// LeavingBuilding / EnteringBuilding
	Building     citymap.BuildingID
	TimeToFinish simtime.Time

	// WaitingForBus / RidingBus
	BusStop  citymap.BusStopID
	Route    citymap.BusRouteID
	Bus      agent.CarID
	StopIdx  int
}

// Pedestrian is one walker under direct walking-sim control.
type Pedestrian struct {
	ID    agent.PedID
	Trip  agent.TripID
	Speed float64 // 0 means DefaultWalkSpeed

	Path    *path.Path
	State   State
	Current citymap.Traversable
}

func (p *Pedestrian) speed() float64 {
	if p.Speed > 0 {
		return p.Speed
	}
	return DefaultWalkSpeed
}

// Outcome reports what UpdatePed accomplished.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeReachedPathEnd
)

// Manager owns every pedestrian and the non-blocking crowd counters used
// for rendering aggregation (spec.md §4.E "Sidewalk capacity"). It holds no
// scheduler/event/intersection reference, matching driving.Manager's
// façade-friendly parameter-passing style.
type Manager struct {
	m     *citymap.Map
	peds  map[agent.PedID]*Pedestrian
	crowd map[citymap.Traversable]int
}

// New returns an empty Manager bound to m.
func New(m *citymap.Map) *Manager {
	return &Manager{
		m:     m,
		peds:  make(map[agent.PedID]*Pedestrian),
		crowd: make(map[citymap.Traversable]int),
	}
}

// Ped returns the live Pedestrian for id, panicking if absent.
func (mgr *Manager) Ped(id agent.PedID) *Pedestrian {
	p, ok := mgr.peds[id]
	if !ok {
		log.Panicf("walking: unknown pedestrian %v", id)
	}
	return p
}

// HasPed reports whether id is currently tracked, letting callers (e.g.
// the sim façade's rendering queries) probe without risking Ped's panic.
func (mgr *Manager) HasPed(id agent.PedID) bool {
	_, ok := mgr.peds[id]
	return ok
}

// CrowdCount returns how many pedestrians currently occupy t, for crowd
// aggregation / rendering only — never a blocking resource (spec.md §4.E).
func (mgr *Manager) CrowdCount(t citymap.Traversable) int {
	return mgr.crowd[t]
}

// SpawnPed places ped at the start of its Path's first step, in Crossing
// state, and schedules its first UpdatePed.
func (mgr *Manager) SpawnPed(p *Pedestrian, startS float64, now simtime.Time, sched *scheduler.Scheduler, events *event.Buffer) {
	if _, exists := mgr.peds[p.ID]; exists {
		log.Panicf("walking: pedestrian %v already spawned", p.ID)
	}
	step := p.Path.CurrentStep()
	p.Current = step.Traversable()
	mgr.peds[p.ID] = p
	mgr.crowd[p.Current]++

	length := mgr.m.TraversableLength(p.Current)
	dt := simtime.FromSeconds((length - startS) / p.speed())
	t1 := now.Add(dt)
	p.State = State{Kind: Crossing, T0: now, T1: t1, D0: startS, D1: length}

	events.Push(event.Event{Kind: event.AgentEntersTraversable, Time: now, Agent: agent.PedAgent(p.ID), Traversable: p.Current})
	sched.Push(t1, scheduler.UpdatePedCmd(p.ID))
}

// RemovePed removes ped entirely (path finished, e.g. reached a
// building or a bus stop and the trip manager takes over).
func (mgr *Manager) RemovePed(id agent.PedID, now simtime.Time, sched *scheduler.Scheduler, events *event.Buffer) {
	p := mgr.Ped(id)
	mgr.crowd[p.Current]--
	events.Push(event.Event{Kind: event.AgentLeavesTraversable, Time: now, Agent: agent.PedAgent(id), Traversable: p.Current})
	sched.Cancel(scheduler.UpdatePedCmd(id))
	delete(mgr.peds, id)
}

// UpdatePed advances ped id's state machine by one transition, the handler
// for the UpdatePed command.
func (mgr *Manager) UpdatePed(id agent.PedID, now simtime.Time, sched *scheduler.Scheduler, events *event.Buffer, inter *intersection.Manager) Outcome {
	p := mgr.Ped(id)
	switch p.State.Kind {
	case Crossing:
		return mgr.finishCrossing(p, now, sched, events, inter)
	case WaitingToTurn:
		return mgr.retryTurn(p, now, sched, events, inter)
	default:
		return OutcomeNone
	}
}

func (mgr *Manager) finishCrossing(p *Pedestrian, now simtime.Time, sched *scheduler.Scheduler, events *event.Buffer, inter *intersection.Manager) Outcome {
	if !p.Path.HasNext() {
		p.State = State{Kind: WaitingToTurn, Since: now} // pinned; caller (trip mgr) removes it
		return OutcomeReachedPathEnd
	}
	next := p.Path.NextStep()
	if next.Kind == path.StepTurn && mgr.isCrosswalk(next.Turn) {
		mgr.submitCrosswalk(p, next.Turn, now, sched, events, inter)
		return OutcomeNone
	}
	mgr.advance(p, next.Traversable(), now, sched, events)
	return OutcomeNone
}

func (mgr *Manager) isCrosswalk(id citymap.TurnID) bool {
	t := mgr.m.Turn(id)
	return t.Type == citymap.TurnCrosswalk || t.Type == citymap.TurnSharedSidewalkCorner
}

func (mgr *Manager) submitCrosswalk(p *Pedestrian, turnID citymap.TurnID, now simtime.Time, sched *scheduler.Scheduler, events *event.Buffer, inter *intersection.Manager) {
	p.State = State{Kind: WaitingToTurn, Turn: turnID, Since: now}
	turn := mgr.m.Turn(turnID)
	inter.SubmitRequest(turn.Junction, intersection.Request{Agent: agent.PedAgent(p.ID), Turn: turnID}, now)
	sched.Push(now, scheduler.UpdateIntersectionCmd(turn.Junction))
}

func (mgr *Manager) retryTurn(p *Pedestrian, now simtime.Time, sched *scheduler.Scheduler, events *event.Buffer, inter *intersection.Manager) Outcome {
	if !p.Path.HasNext() {
		return OutcomeNone
	}
	next := p.Path.NextStep()
	req := intersection.Request{Agent: agent.PedAgent(p.ID), Turn: next.Turn}
	if !inter.IsAccepted(mgr.m.Turn(next.Turn).Junction, req) {
		return OutcomeNone
	}
	mgr.advance(p, next.Traversable(), now, sched, events)
	return OutcomeNone
}

func (mgr *Manager) advance(p *Pedestrian, dst citymap.Traversable, now simtime.Time, sched *scheduler.Scheduler, events *event.Buffer) {
	prev := p.Current
	mgr.crowd[prev]--
	p.Path.Shift()
	p.Current = dst
	mgr.crowd[dst]++

	length := mgr.m.TraversableLength(dst)
	dt := simtime.FromSeconds(length / p.speed())
	t1 := now.Add(dt)
	p.State = State{Kind: Crossing, T0: now, T1: t1, D0: 0, D1: length}

	events.Push(event.Event{Kind: event.AgentLeavesTraversable, Time: now, Agent: agent.PedAgent(p.ID), Traversable: prev})
	events.Push(event.Event{Kind: event.AgentEntersTraversable, Time: now, Agent: agent.PedAgent(p.ID), Traversable: dst})
	sched.Push(t1, scheduler.UpdatePedCmd(p.ID))
}

// BeginEnteringBuilding transitions ped into EnteringBuilding and schedules
// an UpdatePed at finishIn. UpdatePed takes no action in this state: the
// pedestrian is neither removed nor moved on when the time elapses.
func (mgr *Manager) BeginEnteringBuilding(id agent.PedID, bldg citymap.BuildingID, now simtime.Time, finishIn simtime.Duration, sched *scheduler.Scheduler) {
	p := mgr.Ped(id)
	p.State = State{Kind: EnteringBuilding, Building: bldg, TimeToFinish: now.Add(finishIn)}
	sched.Push(now.Add(finishIn), scheduler.UpdatePedCmd(id))
}

// BeginLeavingBuilding transitions ped into LeavingBuilding and schedules an
// UpdatePed at finishIn. UpdatePed takes no action in this state: the
// pedestrian is not placed onto its Path when the time elapses.
func (mgr *Manager) BeginLeavingBuilding(id agent.PedID, bldg citymap.BuildingID, now simtime.Time, finishIn simtime.Duration, sched *scheduler.Scheduler) {
	mgr.peds[id] = mgr.Ped(id)
	p := mgr.Ped(id)
	p.State = State{Kind: LeavingBuilding, Building: bldg, TimeToFinish: now.Add(finishIn)}
	sched.Push(now.Add(finishIn), scheduler.UpdatePedCmd(id))
}

// BeginWaitingForBus transitions ped into WaitingForBus at a stop.
func (mgr *Manager) BeginWaitingForBus(id agent.PedID, stop citymap.BusStopID, route citymap.BusRouteID, now simtime.Time, events *event.Buffer) {
	p := mgr.Ped(id)
	p.State = State{Kind: WaitingForBus, BusStop: stop, Route: route, Since: now}
	events.Push(event.Event{Kind: event.PedReachedBusStop, Time: now, Agent: agent.PedAgent(id), Person: 0})
}

// BoardBus transitions a waiting pedestrian onto a bus.
func (mgr *Manager) BoardBus(id agent.PedID, bus agent.CarID, stopIdx int, now simtime.Time, events *event.Buffer) {
	p := mgr.Ped(id)
	route := p.State.Route
	events.Push(event.Event{Kind: event.PassengerBoardsTransit, Time: now, Agent: agent.PedAgent(id), Car: bus, BusRoute: route, BusStop: p.State.BusStop, Wait: now.Sub(p.State.Since)})
	p.State = State{Kind: RidingBus, Route: route, Bus: bus, StopIdx: stopIdx}
}

// AlightBus transitions a riding pedestrian back to its Path's next step as
// a Crossing pedestrian on the alighting sidewalk.
func (mgr *Manager) AlightBus(id agent.PedID, startS float64, now simtime.Time, sched *scheduler.Scheduler, events *event.Buffer) {
	p := mgr.Ped(id)
	events.Push(event.Event{Kind: event.PassengerAlightsTransit, Time: now, Agent: agent.PedAgent(id), Car: p.State.Bus, BusRoute: p.State.Route})
	if !p.Path.HasNext() {
		p.State = State{Kind: WaitingToTurn, Since: now}
		return
	}
	p.Path.Shift()
	step := p.Path.CurrentStep()
	p.Current = step.Traversable()
	mgr.crowd[p.Current]++
	length := mgr.m.TraversableLength(p.Current)
	dt := simtime.FromSeconds((length - startS) / p.speed())
	t1 := now.Add(dt)
	p.State = State{Kind: Crossing, T0: now, T1: t1, D0: startS, D1: length}
	sched.Push(t1, scheduler.UpdatePedCmd(id))
}
