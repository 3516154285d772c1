package citymap

import (
	"fmt"

	"git.fiblab.net/general/common/v2/geometry"
	"git.fiblab.net/general/common/v2/parallel"
	"github.com/samber/lo"
)

// Map is the complete, immutable street network the engine consumes. It is
// built once via Build and never mutated afterwards — the generalization of
// the teacher's four mutable manager singletons (entity/lane/manager.go,
// entity/road/manager.go, entity/junction/manager.go, entity/aoi/manager.go)
// into a single read-only value, since nothing downstream of Build is
// allowed to add or remove map entities.
type Map struct {
	Lanes         map[LaneID]*Lane
	Turns         map[TurnID]*Turn
	Intersections map[IntersectionID]*Intersection
	Roads         map[RoadID]*Road
	Buildings     map[BuildingID]*Building
	BusStops      map[BusStopID]*BusStop
	BusRoutes     map[BusRouteID]*BusRoute
}

// Lane looks up a lane, panicking if absent — mirrors the teacher's
// manager.Get(id) behavior (entity/lane/manager.go), used everywhere a
// missing lane is an engine bug, not a recoverable condition.
func (m *Map) Lane(id LaneID) *Lane {
	l, ok := m.Lanes[id]
	if !ok {
		panic(fmt.Sprintf("citymap: no such lane %d", id))
	}
	return l
}

// LaneOrError is the recoverable counterpart to Lane, mirroring the
// teacher's manager.GetOrError(id).
func (m *Map) LaneOrError(id LaneID) (*Lane, error) {
	l, ok := m.Lanes[id]
	if !ok {
		return nil, fmt.Errorf("citymap: no such lane %d", id)
	}
	return l, nil
}

func (m *Map) Turn(id TurnID) *Turn {
	t, ok := m.Turns[id]
	if !ok {
		panic(fmt.Sprintf("citymap: no such turn %d", id))
	}
	return t
}

func (m *Map) Intersection(id IntersectionID) *Intersection {
	i, ok := m.Intersections[id]
	if !ok {
		panic(fmt.Sprintf("citymap: no such intersection %d", id))
	}
	return i
}

func (m *Map) Building(id BuildingID) *Building {
	b, ok := m.Buildings[id]
	if !ok {
		panic(fmt.Sprintf("citymap: no such building %d", id))
	}
	return b
}

// TraversableLength returns the length of a Lane or Turn Traversable.
func (m *Map) TraversableLength(t Traversable) float64 {
	if t.Kind == TraversableLane {
		return m.Lane(t.Lane).Length
	}
	return m.Turn(t.Turn).Length
}

// TraversableMaxSpeed returns the speed limit of a Lane or Turn Traversable.
func (m *Map) TraversableMaxSpeed(t Traversable) float64 {
	if t.Kind == TraversableLane {
		return m.Lane(t.Lane).MaxSpeed
	}
	return m.Turn(t.Turn).MaxSpeed
}

// LaneInput is the raw, pre-geometry description of a lane as supplied by
// the (out-of-scope) map-construction step; Build derives every computed
// geometry field from Center.
type LaneInput struct {
	ID       LaneID
	Type     LaneType
	Turn     TurnType
	Center   []geometry.Point
	Width    float64
	MaxSpeed float64

	Predecessors []LaneID
	Successors   []LaneID
	LeftLanes    []LaneID
	RightLanes   []LaneID
}

// TurnInput is the raw description of a turn.
type TurnInput struct {
	ID          TurnID
	Type        TurnType
	FromLane    LaneID
	ToLane      LaneID
	Junction    IntersectionID
	Center      []geometry.Point
	MaxSpeed    float64
	Movement    MovementID
	UberTurnSeq []TurnID
}

// IntersectionInput is the raw description of an intersection. ConflictSets
// is a precomputed conflict table that Build copies as given; Build derives
// no conflicts of its own (the geometric conflict test lives in the
// map-construction step, out of scope).
type IntersectionInput struct {
	ID           IntersectionID
	Control      ControlType
	Lanes        []LaneID
	Turns        []TurnID
	ConflictSets map[TurnID][]TurnID
	Phases       []Phase
	CycleOffset  float64
	RoadRank     map[RoadID]int
}

// RoadInput is the raw description of a road.
type RoadInput struct {
	ID    RoadID
	Name  string
	Lanes []LaneID
}

// BuildingInput is the raw description of a building/AOI.
type BuildingInput struct {
	ID             BuildingID
	Centroid       geometry.Point
	DrivingLanes   []LaneID
	DrivingS       map[LaneID]float64
	WalkingLanes   []LaneID
	WalkingS       map[LaneID]float64
	OffstreetSpots int
}

// Input is the complete set of raw fixtures Build consumes.
type Input struct {
	Lanes         []LaneInput
	Turns         []TurnInput
	Intersections []IntersectionInput
	Roads         []RoadInput
	Buildings     []BuildingInput
	BusStops      []BusStop
	BusRoutes     []BusRoute
}

// Build constructs an immutable Map from raw fixtures, computing derived
// geometry (polyline lengths/directions/total length) once per lane and
// turn. This is the engine's only use of
// git.fiblab.net/general/common/v2/parallel — a one-time, side-effect-free
// load with no scheduler or shared mutable queues involved, unlike
// Sim.step which must stay single-threaded (see SPEC_FULL.md §5).
func Build(in Input) *Map {
	m := &Map{
		Lanes:         make(map[LaneID]*Lane, len(in.Lanes)),
		Turns:         make(map[TurnID]*Turn, len(in.Turns)),
		Intersections: make(map[IntersectionID]*Intersection, len(in.Intersections)),
		Roads:         make(map[RoadID]*Road, len(in.Roads)),
		Buildings:     make(map[BuildingID]*Building, len(in.Buildings)),
		BusStops:      make(map[BusStopID]*BusStop, len(in.BusStops)),
		BusRoutes:     make(map[BusRouteID]*BusRoute, len(in.BusRoutes)),
	}

	lanes := parallel.GoMap(in.Lanes, func(raw LaneInput) *Lane {
		lengths := geometry.GetPolylineLengths2D(raw.Center)
		length := 0.0
		if len(lengths) > 0 {
			length = lengths[len(lengths)-1]
		}
		return &Lane{
			ID:           raw.ID,
			Type:         raw.Type,
			Turn:         raw.Turn,
			Center:       raw.Center,
			Lengths:      lengths,
			Directions:   geometry.GetPolylineDirections(raw.Center),
			Length:       length,
			Width:        raw.Width,
			MaxSpeed:     raw.MaxSpeed,
			Predecessors: raw.Predecessors,
			Successors:   raw.Successors,
			LeftLanes:    raw.LeftLanes,
			RightLanes:   raw.RightLanes,
		}
	})
	for _, l := range lanes {
		m.Lanes[l.ID] = l
	}

	turns := parallel.GoMap(in.Turns, func(raw TurnInput) *Turn {
		lengths := geometry.GetPolylineLengths2D(raw.Center)
		length := 0.0
		if len(lengths) > 0 {
			length = lengths[len(lengths)-1]
		}
		return &Turn{
			ID:          raw.ID,
			Type:        raw.Type,
			FromLane:    raw.FromLane,
			ToLane:      raw.ToLane,
			Junction:    raw.Junction,
			Length:      length,
			MaxSpeed:    raw.MaxSpeed,
			Movement:    raw.Movement,
			UberTurnSeq: raw.UberTurnSeq,
		}
	})
	for _, t := range turns {
		m.Turns[t.ID] = t
	}

	for _, raw := range in.Intersections {
		m.Intersections[raw.ID] = &Intersection{
			ID:           raw.ID,
			Control:      raw.Control,
			Lanes:        raw.Lanes,
			Turns:        raw.Turns,
			ConflictSets: raw.ConflictSets,
			Phases:       raw.Phases,
			CycleOffset:  raw.CycleOffset,
			RoadRank:     raw.RoadRank,
		}
	}
	for _, l := range m.Lanes {
		if jid, ok := laneJunctionOf(l, m.Turns); ok {
			l.InJunction = true
			l.ParentJunction = jid
		}
	}

	for _, raw := range in.Roads {
		m.Roads[raw.ID] = &Road{ID: raw.ID, Name: raw.Name, Lanes: raw.Lanes}
		for offset, laneID := range raw.Lanes {
			if l, ok := m.Lanes[laneID]; ok {
				l.InRoad = true
				l.ParentRoad = raw.ID
				l.OffsetInRoad = offset
			}
		}
	}

	for _, raw := range in.Buildings {
		m.Buildings[raw.ID] = &Building{
			ID:             raw.ID,
			Centroid:       raw.Centroid,
			DrivingLanes:   raw.DrivingLanes,
			DrivingS:       raw.DrivingS,
			WalkingLanes:   raw.WalkingLanes,
			WalkingS:       raw.WalkingS,
			OffstreetSpots: raw.OffstreetSpots,
		}
	}

	for _, s := range in.BusStops {
		cp := s
		m.BusStops[s.ID] = &cp
	}
	for _, r := range in.BusRoutes {
		cp := r
		m.BusRoutes[r.ID] = &cp
	}

	return m
}

// laneJunctionOf reports whether a lane is a turn's from/to lane's
// intersection member by scanning turns that reference it as FromLane or
// ToLane — a
// junction-interior driving lane is itself modeled as a sequence of turns
// in this simplified map, so membership is derived rather than stored
// directly on LaneInput.
func laneJunctionOf(l *Lane, turns map[TurnID]*Turn) (IntersectionID, bool) {
	for _, t := range turns {
		if t.FromLane == l.ID || t.ToLane == l.ID {
			return t.Junction, true
		}
	}
	return 0, false
}

// ConflictsWith reports whether turns a and b belong to conflicting
// movements at their shared intersection, per the precomputed conflict
// table.
func (m *Map) ConflictsWith(a, b TurnID) bool {
	if a == b {
		return false
	}
	ia := m.Turn(a).Junction
	i := m.Intersection(ia)
	return lo.Contains(i.ConflictSets[a], b)
}
