// Package path models the output of the external pathfinder: a sequence of
// lane/turn steps the driving and walking simulations follow. Pathfinding
// itself is out of scope (spec.md §1); this package only defines the
// consumed shape, grounded on citymap.Traversable's tagged-union pattern
// per the engine's "no inheritance for PathStep polymorphism" guidance
// (spec.md §9).
package path

import (
	"fmt"

	"github.com/tsinghua-fib-lab/citysim-go/agent"
	"github.com/tsinghua-fib-lab/citysim-go/citymap"
)

// StepKind distinguishes the three PathStep variants.
type StepKind int

const (
	StepLane StepKind = iota
	StepContraflowLane
	StepTurn
)

// Step is one element of a Path: Lane(L), ContraflowLane(L), or Turn(T).
type Step struct {
	Kind StepKind
	Lane citymap.LaneID
	Turn citymap.TurnID
}

func LaneStep(id citymap.LaneID) Step           { return Step{Kind: StepLane, Lane: id} }
func ContraflowLaneStep(id citymap.LaneID) Step { return Step{Kind: StepContraflowLane, Lane: id} }
func TurnStep(id citymap.TurnID) Step           { return Step{Kind: StepTurn, Turn: id} }

// Traversable resolves a Step to the citymap.Traversable it occupies; a
// ContraflowLane step occupies the same physical lane as a forward step
// for queue-model purposes.
func (s Step) Traversable() citymap.Traversable {
	if s.Kind == StepTurn {
		return citymap.OfTurn(s.Turn)
	}
	return citymap.OfLane(s.Lane)
}

func (s Step) String() string {
	switch s.Kind {
	case StepTurn:
		return fmt.Sprintf("turn:%d", s.Turn)
	case StepContraflowLane:
		return fmt.Sprintf("contraflow-lane:%d", s.Lane)
	default:
		return fmt.Sprintf("lane:%d", s.Lane)
	}
}

// EndpointKind distinguishes the three TripEndpoint variants (GLOSSARY).
type EndpointKind int

const (
	EndpointBuilding EndpointKind = iota
	EndpointBorder
	EndpointSuddenlyAppear
)

// Endpoint is a trip leg's start or end location.
type Endpoint struct {
	Kind     EndpointKind
	Building citymap.BuildingID
	Border   citymap.IntersectionID
	Position citymap.Position
}

// Request describes a path the caller wants from the pathfinder: the
// starting Position, a goal Endpoint, and the agent asking (used by the
// pathfinder to pick mode-appropriate lanes, e.g. driving vs walking).
type Request struct {
	Agent agent.ID
	Start citymap.Position
	Goal  Endpoint
	Kind  agent.VehicleType // 0 (unspecified) for pedestrians
}

// Path is a non-empty, ordered sequence of Steps annotated with the
// PathRequest that produced it (spec.md §3). Invariants (geometric
// connectivity of adjacent steps, uber-turn sequencing) are established by
// the external pathfinder; Path only tracks traversal progress.
type Path struct {
	Request Request
	Steps   []Step
	cur     int
}

// NewPath wraps a non-empty step sequence produced by the pathfinder.
func NewPath(req Request, steps []Step) *Path {
	if len(steps) == 0 {
		panic("path: NewPath requires a non-empty step sequence")
	}
	return &Path{Request: req, Steps: steps}
}

// CurrentStep returns the step currently being traversed.
func (p *Path) CurrentStep() Step {
	return p.Steps[p.cur]
}

// CurrentIndex returns the index of CurrentStep within Steps.
func (p *Path) CurrentIndex() int {
	return p.cur
}

// HasNext reports whether a step follows CurrentStep.
func (p *Path) HasNext() bool {
	return p.cur+1 < len(p.Steps)
}

// NextStep returns the step after CurrentStep; callers must check HasNext
// first.
func (p *Path) NextStep() Step {
	return p.Steps[p.cur+1]
}

// IsUberTurnStart reports whether CurrentStep begins a multi-turn uber-turn
// sequence that must be admitted atomically (GLOSSARY: Uber-turn), given
// the map's per-turn UberTurnSeq annotation.
func (p *Path) IsUberTurnStart(m *citymap.Map) ([]citymap.TurnID, bool) {
	step := p.CurrentStep()
	if step.Kind != StepTurn {
		return nil, false
	}
	seq := m.Turn(step.Turn).UberTurnSeq
	if len(seq) == 0 || seq[0] != step.Turn {
		return nil, false
	}
	return seq, true
}

// Shift advances the path by one step, returning false if this was the
// final step (the path is finished).
func (p *Path) Shift() bool {
	if !p.HasNext() {
		return false
	}
	p.cur++
	return true
}

// IsFinished reports whether CurrentStep is the path's last step.
func (p *Path) IsFinished() bool {
	return p.cur == len(p.Steps)-1
}

// RemainingDistance returns the sum of the lengths of CurrentStep and every
// step after it, using m for Traversable lengths. It does not subtract
// progress already made within CurrentStep; callers combine it with their
// own within-step offset.
func (p *Path) RemainingDistance(m *citymap.Map) float64 {
	var total float64
	for i := p.cur; i < len(p.Steps); i++ {
		total += m.TraversableLength(p.Steps[i].Traversable())
	}
	return total
}

// Pathfinder is the pure external collaborator the trip manager calls to
// resolve each leg's route: a nil Path means no route exists (the driving
// input to a TripCancelled(NoPath) outcome, see trip.CancelReason).
type Pathfinder interface {
	Pathfind(req Request) *Path
}

// PathfinderFunc adapts a plain function to the Pathfinder interface.
type PathfinderFunc func(req Request) *Path

func (f PathfinderFunc) Pathfind(req Request) *Path { return f(req) }
