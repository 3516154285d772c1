// Package intersection implements spec.md §4.G: per-intersection request
// arbitration for stop-sign/uncontrolled and signalled control types, with
// a starvation bound, a stop-delay requirement, and uber-turn atomic
// admittance. Grounded on entity/junction/trafficlight/local.go's fixed-
// program phase state (reshaped from per-dt polling into a pure function
// of elapsed time, per SPEC_FULL.md §4.G) and
// entity/junction/trafficlight/max_pressure.go's pressure-driven phase
// selection, offered here as the optional adaptive mode.
package intersection

import (
	"sort"

	"github.com/tsinghua-fib-lab/citysim-go/agent"
	"github.com/tsinghua-fib-lab/citysim-go/citymap"
	"github.com/tsinghua-fib-lab/citysim-go/internal/logging"
	"github.com/tsinghua-fib-lab/citysim-go/simtime"
)

var log = logging.For("intersection")

// StarvationThreshold is how long an uncontrolled/stop-sign request may
// wait before its priority is forced to the top (spec.md §4.G).
const StarvationThreshold = simtime.Duration(60)

// StopDelay is the minimum time a stop-sign request must have waited
// before it is eligible for a grant, modeling the full-stop requirement.
const StopDelay = simtime.Duration(2)

// MinPhaseDuration is the shortest time the adaptive max-pressure
// controller holds a phase before it is allowed to re-evaluate, mirroring
// max_pressure.go's phaseTime default.
const MinPhaseDuration = simtime.Duration(15)

// Request identifies one agent's claim on one turn.
type Request struct {
	Agent agent.ID
	Turn  citymap.TurnID
}

type waitingEntry struct {
	since simtime.Time
}

// State is one intersection's live arbitration state: waiting and
// accepted request sets, mirroring spec.md §4.G's
// BTreeMap<Request,Time>/BTreeSet<Request> pair.
type State struct {
	id IntersectionIDAlias

	waiting  map[Request]waitingEntry
	accepted map[Request]struct{}

	// curPhase/phaseSince track the adaptive max-pressure controller's
	// chosen phase; unused when the intersection runs a fixed program.
	curPhase   int
	phaseSince simtime.Time
}

// IntersectionIDAlias avoids importing citymap twice under two names;
// it is simply citymap.IntersectionID.
type IntersectionIDAlias = citymap.IntersectionID

func newState(id citymap.IntersectionID) *State {
	return &State{
		id:       id,
		waiting:  make(map[Request]waitingEntry),
		accepted: make(map[Request]struct{}),
		curPhase: -1,
	}
}

// Manager owns every intersection's arbitration State.
type Manager struct {
	m        *citymap.Map
	states   map[citymap.IntersectionID]*State
	pressure bool // adaptive max-pressure signal selection, SimOpts.AdaptiveSignal
}

// New builds a Manager with one empty State per intersection in m.
func New(m *citymap.Map, adaptiveSignal bool) *Manager {
	mgr := &Manager{m: m, states: make(map[citymap.IntersectionID]*State), pressure: adaptiveSignal}
	for id := range m.Intersections {
		mgr.states[id] = newState(id)
	}
	return mgr
}

// Grant is the outcome of a try-to-grant pass: requests admitted this call,
// each carrying the delay measured at grant time for IntersectionDelayMeasured.
type Grant struct {
	Req   Request
	Delay simtime.Duration
}

// SubmitRequest inserts req into the waiting set if absent, idempotent per
// spec.md §4.G.
func (mgr *Manager) SubmitRequest(ix citymap.IntersectionID, req Request, now simtime.Time) {
	st := mgr.states[ix]
	if st == nil {
		log.Panicf("intersection: unknown intersection %d", ix)
	}
	if _, ok := st.waiting[req]; ok {
		return
	}
	if _, ok := st.accepted[req]; ok {
		return
	}
	st.waiting[req] = waitingEntry{since: now}
}

// OnExit removes req from accepted, called when the agent physically
// clears the turn (spec.md §4.G Exit).
func (mgr *Manager) OnExit(ix citymap.IntersectionID, req Request) {
	st := mgr.states[ix]
	if st == nil {
		return
	}
	delete(st.accepted, req)
}

// IsAccepted reports whether req currently holds a grant.
func (mgr *Manager) IsAccepted(ix citymap.IntersectionID, req Request) bool {
	st := mgr.states[ix]
	if st == nil {
		return false
	}
	_, ok := st.accepted[req]
	return ok
}

// PhaseForTime returns the index into inter.Phases active at `now`,
// computed as a pure function of (now - offset) mod cycle_length — spec.md
// §4.G's `phase_for`, replacing the teacher's per-dt-polling
// local.go/Update countdown with a stateless lookup (SPEC_FULL.md §4.G).
func PhaseForTime(inter *citymap.Intersection, now simtime.Time) int {
	cycle := inter.CycleLength()
	if cycle <= 0 {
		return -1
	}
	elapsed := now.Seconds() - inter.CycleOffset
	// normalize into [0, cycle)
	t := elapsed - cycle*float64(int(elapsed/cycle))
	if t < 0 {
		t += cycle
	}
	acc := 0.0
	for i, p := range inter.Phases {
		acc += p.Duration
		if t < acc {
			return i
		}
	}
	return len(inter.Phases) - 1
}

// phasePressure sums the number of waiting requests whose turn belongs to
// a movement active in phaseIdx, standing in for max_pressure.go's
// per-lane queue pressure since this arbitration layer has no lane
// occupancy counts of its own, only waiting requests.
func (mgr *Manager) phasePressure(st *State, inter *citymap.Intersection, phaseIdx int) float64 {
	phase := inter.Phases[phaseIdx]
	pressure := 0.0
	for req := range st.waiting {
		turn := mgr.m.Turn(req.Turn)
		for _, mv := range phase.Movements {
			if turn.Movement == mv {
				pressure++
				break
			}
		}
	}
	return pressure
}

// phaseForPressure picks the highest-pressure phase, holding the current
// one for at least MinPhaseDuration before switching — the fixed-interval
// analogue of max_pressure.go's repeat-count cap, without that file's
// yellow/all-red transition sub-phases, which have no home in this
// request-based arbitration model.
func (mgr *Manager) phaseForPressure(st *State, inter *citymap.Intersection, now simtime.Time) int {
	if len(inter.Phases) == 0 {
		return -1
	}
	if st.curPhase < 0 {
		st.curPhase = 0
		st.phaseSince = now
		return st.curPhase
	}
	if now.Sub(st.phaseSince) < MinPhaseDuration {
		return st.curPhase
	}
	best, bestPressure := st.curPhase, mgr.phasePressure(st, inter, st.curPhase)
	for i := range inter.Phases {
		if i == st.curPhase {
			continue
		}
		if pr := mgr.phasePressure(st, inter, i); pr > bestPressure {
			best, bestPressure = i, pr
		}
	}
	if best != st.curPhase {
		st.curPhase = best
		st.phaseSince = now
	}
	return st.curPhase
}

func movementActive(inter *citymap.Intersection, phaseIdx int, movement citymap.MovementID) bool {
	if phaseIdx < 0 || phaseIdx >= len(inter.Phases) {
		return false
	}
	for _, mv := range inter.Phases[phaseIdx].Movements {
		if mv == movement {
			return true
		}
	}
	return false
}

// TryToGrant re-evaluates ix's waiting set against its control policy and
// admits every eligible request, in priority order, respecting conflict
// sets. Uber-turns (citymap.Turn.UberTurnSeq non-empty) are admitted
// atomically: every turn in the sequence must be simultaneously grantable
// or none are (SPEC_FULL.md §9 Open Question 2 — chosen over sequential
// admittance because partial admittance could strand an agent mid-way
// through a merged intersection with no queue model for "inside the
// intersection but not on any Traversable").
func (mgr *Manager) TryToGrant(ix citymap.IntersectionID, now simtime.Time) []Grant {
	st := mgr.states[ix]
	if st == nil {
		log.Panicf("intersection: unknown intersection %d", ix)
	}
	inter := mgr.m.Intersection(ix)

	switch inter.Control {
	case citymap.ControlConstruction:
		return nil
	case citymap.ControlSignalled:
		return mgr.tryToGrantSignalled(st, inter, now)
	default:
		return mgr.tryToGrantPriority(st, inter, now)
	}
}

func (mgr *Manager) conflictsWithAccepted(st *State, turn citymap.TurnID) bool {
	for req := range st.accepted {
		if mgr.m.ConflictsWith(turn, req.Turn) {
			return true
		}
	}
	return false
}

func (mgr *Manager) tryToGrantSignalled(st *State, inter *citymap.Intersection, now simtime.Time) []Grant {
	phaseIdx := PhaseForTime(inter, now)
	if mgr.pressure {
		phaseIdx = mgr.phaseForPressure(st, inter, now)
	}
	var grants []Grant
	// deterministic order: sort waiting by (since, turn) to keep emission
	// order stable across runs.
	reqs := make([]Request, 0, len(st.waiting))
	for r := range st.waiting {
		reqs = append(reqs, r)
	}
	sort.Slice(reqs, func(i, j int) bool {
		wi, wj := st.waiting[reqs[i]], st.waiting[reqs[j]]
		if wi.since != wj.since {
			return wi.since < wj.since
		}
		return reqs[i].Turn < reqs[j].Turn
	})
	for _, req := range reqs {
		turn := mgr.m.Turn(req.Turn)
		if !movementActive(inter, phaseIdx, turn.Movement) {
			continue
		}
		if !mgr.tryAdmit(st, req, turn, now, &grants) {
			continue
		}
	}
	return grants
}

func (mgr *Manager) tryToGrantPriority(st *State, inter *citymap.Intersection, now simtime.Time) []Grant {
	isStopSign := inter.Control == citymap.ControlSigned

	reqs := make([]Request, 0, len(st.waiting))
	for r := range st.waiting {
		reqs = append(reqs, r)
	}
	sort.Slice(reqs, func(i, j int) bool {
		pi, pj := mgr.priority(inter, reqs[i], st.waiting[reqs[i]], now), mgr.priority(inter, reqs[j], st.waiting[reqs[j]], now)
		if pi != pj {
			return pi > pj // higher priority first
		}
		wi, wj := st.waiting[reqs[i]].since, st.waiting[reqs[j]].since
		if wi != wj {
			return wi < wj
		}
		return reqs[i].Turn < reqs[j].Turn
	})

	var grants []Grant
	for _, req := range reqs {
		w := st.waiting[req]
		if isStopSign && now.Sub(w.since) < StopDelay {
			continue
		}
		turn := mgr.m.Turn(req.Turn)
		mgr.tryAdmit(st, req, turn, now, &grants)
	}
	return grants
}

// priority derives a sort key from road rank: major-road turns preempt
// minor-road turns, with a starvation override after StarvationThreshold.
func (mgr *Manager) priority(inter *citymap.Intersection, req Request, w waitingEntry, now simtime.Time) int {
	if now.Sub(w.since) >= StarvationThreshold {
		return 1 << 30
	}
	turn := mgr.m.Turn(req.Turn)
	lane := mgr.m.Lane(turn.FromLane)
	return inter.RoadRank[lane.ParentRoad]
}

// tryAdmit grants req (and, if it starts an uber-turn sequence, the whole
// sequence atomically) when every member turn is conflict-free against
// currently accepted requests; members are not checked against each other.
// Returns whether it admitted anything.
func (mgr *Manager) tryAdmit(st *State, req Request, turn *citymap.Turn, now simtime.Time, grants *[]Grant) bool {
	seq := turn.UberTurnSeq
	if len(seq) == 0 {
		if mgr.conflictsWithAccepted(st, req.Turn) {
			return false
		}
		mgr.admit(st, req, w(st, req), now, grants)
		return true
	}

	// Uber-turn: every member turn must be individually conflict-free, and
	// every member must already be present in waiting for this agent
	// (spec.md §9 Open Question 2: atomic all-or-nothing admittance).
	members := make([]Request, 0, len(seq))
	for _, t := range seq {
		mreq := Request{Agent: req.Agent, Turn: t}
		if _, ok := st.waiting[mreq]; !ok {
			return false
		}
		if mgr.conflictsWithAccepted(st, t) {
			return false
		}
		members = append(members, mreq)
	}
	for _, mreq := range members {
		mgr.admit(st, mreq, w(st, mreq), now, grants)
	}
	return true
}

func w(st *State, req Request) waitingEntry {
	return st.waiting[req]
}

func (mgr *Manager) admit(st *State, req Request, entry waitingEntry, now simtime.Time, grants *[]Grant) {
	delete(st.waiting, req)
	st.accepted[req] = struct{}{}
	*grants = append(*grants, Grant{Req: req, Delay: now.Sub(entry.since)})
}

// HasNonEmptyWaiting reports whether ix has at least one waiting request,
// used by the sim façade's retry scheduling: while it holds, every
// intersection other than a construction site is re-evaluated one second
// later.
func (mgr *Manager) HasNonEmptyWaiting(ix citymap.IntersectionID) bool {
	st := mgr.states[ix]
	return st != nil && len(st.waiting) > 0
}
