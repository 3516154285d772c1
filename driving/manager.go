package driving

import (
	"github.com/tsinghua-fib-lab/citysim-go/agent"
	"github.com/tsinghua-fib-lab/citysim-go/citymap"
	"github.com/tsinghua-fib-lab/citysim-go/event"
	"github.com/tsinghua-fib-lab/citysim-go/internal/logging"
	"github.com/tsinghua-fib-lab/citysim-go/intersection"
	"github.com/tsinghua-fib-lab/citysim-go/path"
	"github.com/tsinghua-fib-lab/citysim-go/queue"
	"github.com/tsinghua-fib-lab/citysim-go/scheduler"
	"github.com/tsinghua-fib-lab/citysim-go/simtime"
)

var log = logging.For("driving")

// RetryInterval bounds how long a Queued car waits before re-attempting
// admittance onto a destination it could not enter for lack of spacing. The
// teacher's lane.go has no equivalent (its per-dt polling loop retries
// every tick for free); a discrete-event engine needs an explicit bound, so
// this is an engine-chosen constant rather than something borrowed from the
// spec's prose (SPEC_FULL.md §4.D).
const RetryInterval = simtime.Duration(1)

// Outcome reports what UpdateCar accomplished. The sim façade hands
// OutcomeReachedPathEnd to the trip manager (or to its bus-stop handling
// for buses), which decides what happens when a car's path runs out:
// park, stop at a border, or finish a leg.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeReachedPathEnd
)

// Manager owns every car and the per-Traversable queues they occupy. It
// holds no reference to the scheduler, event buffer, intersection manager,
// or parking lot: every operation takes them as explicit parameters, per
// the engine's façade redesign away from the teacher's ITaskContext
// god-object (entity/contexttype.go) — see SPEC_FULL.md §4.J.
type Manager struct {
	m       *citymap.Map
	cars    map[agent.CarID]*Car
	queues  map[citymap.Traversable]*queue.Queue
	laggyOf map[agent.CarID]citymap.Traversable
}

// New returns an empty Manager bound to m.
func New(m *citymap.Map) *Manager {
	return &Manager{
		m:       m,
		cars:    make(map[agent.CarID]*Car),
		queues:  make(map[citymap.Traversable]*queue.Queue),
		laggyOf: make(map[agent.CarID]citymap.Traversable),
	}
}

// Car returns the live Car state for id, panicking if absent.
func (mgr *Manager) Car(id agent.CarID) *Car {
	c, ok := mgr.cars[id]
	if !ok {
		log.Panicf("driving: unknown car %v", id)
	}
	return c
}

// HasCar reports whether id is currently tracked, letting callers (e.g.
// the sim façade's rendering queries) probe without risking Car's panic.
func (mgr *Manager) HasCar(id agent.CarID) bool {
	_, ok := mgr.cars[id]
	return ok
}

func (mgr *Manager) queueFor(t citymap.Traversable) *queue.Queue {
	q, ok := mgr.queues[t]
	if !ok {
		q = queue.New(t.String(), mgr.m.TraversableLength(t))
		mgr.queues[t] = q
	}
	return q
}

// QueueFor exposes the queue for position-query callers (sim façade);
// driving sim is the only mutator.
func (mgr *Manager) QueueFor(t citymap.Traversable) *queue.Queue {
	return mgr.queueFor(t)
}

// SpawnCar places car at the start of its Path's first step, in Crossing
// state toward that step's end, and schedules its first UpdateCar (spec.md
// §4.B SpawnCar command effect).
func (mgr *Manager) SpawnCar(car *Car, startS float64, now simtime.Time, sched *scheduler.Scheduler, events *event.Buffer) {
	if _, exists := mgr.cars[car.ID]; exists {
		log.Panicf("driving: car %v already spawned", car.ID)
	}
	step := car.Path.CurrentStep()
	car.Current = step.Traversable()
	mgr.cars[car.ID] = car

	length := mgr.m.TraversableLength(car.Current)
	q := mgr.queueFor(car.Current)
	if !q.CanInsert(startS, car.Length) {
		log.Panicf("driving: car %v cannot be spawned at %v s=%.2f: no spacing", car.ID, car.Current, startS)
	}

	speed := car.EffectiveSpeed(mgr.m)
	remaining := length - startS
	dt := simtime.FromSeconds(remaining / speed)
	t1 := now.Add(dt)
	q.InsertCrossing(car.ID, car.Length, now, t1, startS, length)
	car.State = State{Kind: Crossing, T0: now, T1: t1, D0: startS, D1: length}

	events.Push(event.Event{Kind: event.AgentEntersTraversable, Time: now, Agent: agent.CarAgent(car.ID), Traversable: car.Current})
	sched.Push(t1, scheduler.UpdateCarCmd(car.ID))
}

// RemoveCar deletes car from its current queue and the manager entirely
// (path finished and no further driving sub-state follows, e.g. the trip
// manager has taken over for parking or has finished the leg).
func (mgr *Manager) RemoveCar(id agent.CarID, now simtime.Time, sched *scheduler.Scheduler, events *event.Buffer) {
	car := mgr.Car(id)
	mgr.queueFor(car.Current).Remove(id)
	events.Push(event.Event{Kind: event.AgentLeavesTraversable, Time: now, Agent: agent.CarAgent(id), Traversable: car.Current})
	sched.Cancel(scheduler.UpdateCarCmd(id))
	delete(mgr.cars, id)
}

// UpdateCar advances car id's state machine by one transition (spec.md
// §4.D). It is the handler for the UpdateCar command.
func (mgr *Manager) UpdateCar(id agent.CarID, now simtime.Time, sched *scheduler.Scheduler, events *event.Buffer, inter *intersection.Manager) Outcome {
	car := mgr.Car(id)

	switch car.State.Kind {
	case Crossing:
		return mgr.finishCrossing(car, now, sched, events, inter)
	case WaitingToAdvance:
		return mgr.retryAdvance(car, now, sched, events, inter)
	case Queued:
		return mgr.retryAdvance(car, now, sched, events, inter)
	default:
		// Unparking/Parking/Idling completions are driven by the caller
		// (parking/transit sub-systems) via their own dedicated methods,
		// not through the generic UpdateCar transition.
		return OutcomeNone
	}
}

// finishCrossing is reached when a car's Crossing interval elapses: it has
// arrived at the end of its current Traversable.
func (mgr *Manager) finishCrossing(car *Car, now simtime.Time, sched *scheduler.Scheduler, events *event.Buffer, inter *intersection.Manager) Outcome {
	if !car.Path.HasNext() {
		car.State = State{Kind: Queued, BlockedSince: now}
		mgr.queueFor(car.Current).MarkQueued(car.ID, queue.StateQueued, mgr.m.TraversableLength(car.Current))
		return OutcomeReachedPathEnd
	}

	next := car.Path.NextStep()
	if next.Kind == path.StepTurn {
		mgr.submitTurnRequest(car, next, now, sched, events, inter)
		return OutcomeNone
	}
	return mgr.advanceToTraversable(car, next.Traversable(), now, sched, events)
}

// submitTurnRequest pins car at the head of its current queue and asks the
// owning intersection for the turn (spec.md §4.D end-of-traversable
// policy step 1).
func (mgr *Manager) submitTurnRequest(car *Car, next path.Step, now simtime.Time, sched *scheduler.Scheduler, events *event.Buffer, inter *intersection.Manager) {
	length := mgr.m.TraversableLength(car.Current)
	mgr.queueFor(car.Current).MarkQueued(car.ID, queue.StateWaitingToAdvance, length)
	car.State = State{Kind: WaitingToAdvance, BlockedSince: now}

	turn := mgr.m.Turn(next.Turn)
	ix := turn.Junction
	inter.SubmitRequest(ix, intersection.Request{Agent: agent.CarAgent(car.ID), Turn: next.Turn}, now)
	sched.Push(now, scheduler.UpdateIntersectionCmd(ix))
}

// retryAdvance is called whenever a Queued or WaitingToAdvance car should
// re-check whether it can now proceed: either its intersection request was
// granted, or spacing opened up on the destination Traversable.
func (mgr *Manager) retryAdvance(car *Car, now simtime.Time, sched *scheduler.Scheduler, events *event.Buffer, inter *intersection.Manager) Outcome {
	next := car.Path.NextStep()
	if next.Kind == path.StepTurn {
		turn := mgr.m.Turn(next.Turn)
		req := intersection.Request{Agent: agent.CarAgent(car.ID), Turn: next.Turn}
		if !inter.IsAccepted(turn.Junction, req) {
			return OutcomeNone // still waiting on the intersection
		}
	}
	return mgr.advanceToTraversable(car, next.Traversable(), now, sched, events)
}

// advanceToTraversable attempts to move car from its current queue onto
// dst. On success, the old queue retains car as a laggy head until its back
// clears (spec.md §4.C "Laggy head"); on failure (no spacing), car becomes
// Queued and a retry is scheduled (spec.md §4.D Queued/WaitingToAdvance
// "fires when the blocker's own update fires (chained)", approximated here
// by RetryInterval polling — see const doc).
func (mgr *Manager) advanceToTraversable(car *Car, dst citymap.Traversable, now simtime.Time, sched *scheduler.Scheduler, events *event.Buffer) Outcome {
	dstQueue := mgr.queueFor(dst)
	if !dstQueue.CanInsert(0, car.Length) {
		length := mgr.m.TraversableLength(car.Current)
		mgr.queueFor(car.Current).MarkQueued(car.ID, queue.StateQueued, length)
		car.State = State{Kind: Queued, BlockedSince: now}
		sched.Push(now.Add(RetryInterval), scheduler.UpdateCarCmd(car.ID))
		return OutcomeNone
	}

	prevTraversable := car.Current
	prevQueue := mgr.queueFor(prevTraversable)

	// Exiting a turn releases its intersection grant immediately; the
	// caller (sim façade) does this via intersection.Manager.OnExit once it
	// observes the AgentLeavesTraversable event below, keeping this method
	// free of an intersection.Manager dependency for the common lane case.

	car.Path.Shift()
	car.Current = dst
	length := mgr.m.TraversableLength(dst)
	speed := car.EffectiveSpeed(mgr.m)
	dt := simtime.FromSeconds(length / speed)
	t1 := now.Add(dt)
	dstQueue.InsertCrossing(car.ID, car.Length, now, t1, 0, length)
	car.State = State{Kind: Crossing, T0: now, T1: t1, D0: 0, D1: length}

	prevQueue.Remove(car.ID)
	prevQueue.MarkLaggyHead(car.ID, car.Length)
	mgr.laggyOf[car.ID] = prevTraversable
	clearDelay := simtime.FromSeconds(car.Length / speed)
	sched.Push(now.Add(clearDelay), scheduler.UpdateLaggyHeadCmd(car.ID))

	events.Push(event.Event{Kind: event.AgentLeavesTraversable, Time: now, Agent: agent.CarAgent(car.ID), Traversable: prevTraversable})
	events.Push(event.Event{Kind: event.AgentEntersTraversable, Time: now, Agent: agent.CarAgent(car.ID), Traversable: dst})
	sched.Push(t1, scheduler.UpdateCarCmd(car.ID))

	return OutcomeNone
}

// ClearLaggyHead removes car's retained laggy-head entry once its back has
// cleared (the UpdateLaggyHead command handler, spec.md §4.B table).
func (mgr *Manager) ClearLaggyHead(id agent.CarID) {
	traversable, ok := mgr.laggyOf[id]
	if !ok {
		return
	}
	mgr.queueFor(traversable).ClearLaggyHead(id)
	delete(mgr.laggyOf, id)
}

// BeginParking transitions car into the Parking sub-state for the given
// duration, pinning it at its current position until time_to_finish (spec.md
// §4.D "Parking").
func (mgr *Manager) BeginParking(id agent.CarID, spot citymap.BuildingID, lane citymap.LaneID, index int, now simtime.Time, finishIn simtime.Duration, sched *scheduler.Scheduler) {
	car := mgr.Car(id)
	car.State = State{
		Kind: Parking, StartTime: now, TimeToFinish: now.Add(finishIn),
		SpotBuilding: spot, SpotLane: lane, SpotIndex: index,
	}
	sched.Push(now.Add(finishIn), scheduler.UpdateCarCmd(id))
}

// FinishParking removes car from the driving sim entirely, emitting
// CarReachedParkingSpot, after BeginParking's duration elapses.
func (mgr *Manager) FinishParking(id agent.CarID, now simtime.Time, sched *scheduler.Scheduler, events *event.Buffer) {
	car := mgr.Car(id)
	mgr.queueFor(car.Current).Remove(id)
	events.Push(event.Event{
		Kind: event.CarReachedParkingSpot, Time: now, Agent: agent.CarAgent(id), Car: id,
		ParkingSpot: car.State.SpotBuilding, ParkingLane: car.State.SpotLane, SpotIndex: car.State.SpotIndex,
	})
	sched.Cancel(scheduler.UpdateCarCmd(id))
	delete(mgr.cars, id)
}

// BeginUnparking registers car in Unparking for finishIn before it becomes a
// normal Crossing car (spec.md §4.D "Unparking"). The car is not inserted
// into any queue while unparking, so it does not block the destination lane.
func (mgr *Manager) BeginUnparking(car *Car, now simtime.Time, finishIn simtime.Duration, sched *scheduler.Scheduler) {
	mgr.cars[car.ID] = car
	car.State = State{Kind: Unparking, StartTime: now, TimeToFinish: now.Add(finishIn)}
	sched.Push(now.Add(finishIn), scheduler.UpdateCarCmd(car.ID))
}

// FinishUnparking transitions car from Unparking onto its Path's first step
// as an ordinary Crossing car, mirroring SpawnCar's insertion logic.
func (mgr *Manager) FinishUnparking(id agent.CarID, startS float64, now simtime.Time, sched *scheduler.Scheduler, events *event.Buffer) {
	car := mgr.Car(id)
	step := car.Path.CurrentStep()
	car.Current = step.Traversable()
	length := mgr.m.TraversableLength(car.Current)
	q := mgr.queueFor(car.Current)
	speed := car.EffectiveSpeed(mgr.m)
	dt := simtime.FromSeconds((length-startS) / speed)
	t1 := now.Add(dt)
	q.InsertCrossing(id, car.Length, now, t1, startS, length)
	car.State = State{Kind: Crossing, T0: now, T1: t1, D0: startS, D1: length}
	events.Push(event.Event{Kind: event.CarLeftParkingSpot, Time: now, Agent: agent.CarAgent(id), Car: id})
	sched.Push(t1, scheduler.UpdateCarCmd(id))
}

// BeginIdling parks a bus at a stop for dwellTime (spec.md §4.D "Buses").
// The caller is responsible for emitting BusArrivedAtStop (transit.Manager
// does so with the richer BusStop-qualified event) before calling this.
func (mgr *Manager) BeginIdling(id agent.CarID, now simtime.Time, dwellTime simtime.Duration, sched *scheduler.Scheduler, events *event.Buffer) {
	car := mgr.Car(id)
	car.State = State{Kind: Idling, EndTime: now.Add(dwellTime)}
	sched.Push(now.Add(dwellTime), scheduler.UpdateCarCmd(id))
}

// FinishIdling resumes a dwelling bus's Crossing progress toward the next
// stop, via the same end-of-traversable logic a regular car uses.
func (mgr *Manager) FinishIdling(id agent.CarID, now simtime.Time, sched *scheduler.Scheduler, events *event.Buffer, inter *intersection.Manager) Outcome {
	car := mgr.Car(id)
	events.Push(event.Event{Kind: event.BusDepartedFromStop, Time: now, Car: id, BusRoute: car.BusRoute})
	return mgr.finishCrossing(car, now, sched, events, inter)
}
