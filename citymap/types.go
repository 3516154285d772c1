// Package citymap is the read-only, externally-constructed street network
// the engine consumes: lanes, turns, intersections, buildings, and transit
// infrastructure. It is the spec's "Map" — out of scope for construction,
// geometry, or persistence; the engine only reads it. Generalized from the
// teacher's protobuf-backed mapv2 types (entity/lane, entity/road,
// entity/junction, entity/aoi) into plain Go structs, since the wire schema
// itself is outside the engine's scope.
package citymap

import (
	"fmt"

	"git.fiblab.net/general/common/v2/geometry"
)

// LaneID, IntersectionID, TurnID, RoadID, BuildingID, BusStopID and
// BusRouteID are opaque, totally-ordered integer handles, following the
// teacher's convention of int32 entity IDs (entity/lane/lane.go's
// Lane.id int32, entity/junction/junction.go's Junction.id int32).
type (
	LaneID         int32
	IntersectionID int32
	TurnID         int32
	RoadID         int32
	BuildingID     int32
	BusStopID      int32
	BusRouteID     int32
)

// LaneType classifies what travels on a lane.
type LaneType int

const (
	LaneTypeUnspecified LaneType = iota
	LaneTypeDriving
	LaneTypeWalking
	LaneTypeRailTransit
)

// TurnType classifies the geometric relationship of a turn's two lanes.
type TurnType int

const (
	TurnUnspecified TurnType = iota
	TurnStraight
	TurnRight
	TurnLeft
	TurnUTurn
	TurnCrosswalk
	TurnSharedSidewalkCorner
)

// ControlType classifies how an intersection arbitrates conflicting turns.
type ControlType int

const (
	ControlUncontrolled ControlType = iota
	ControlSigned
	ControlSignalled
	ControlConstruction
)

// TraversableKind distinguishes the two Traversable variants.
type TraversableKind int

const (
	TraversableLane TraversableKind = iota
	TraversableTurn
)

// Traversable is either a Lane or a Turn: the unit of path-following and
// queue occupancy (GLOSSARY). A tagged struct, not an interface, per the
// engine's "no trait objects for heterogeneous domain values" guidance.
type Traversable struct {
	Kind TraversableKind
	Lane LaneID
	Turn TurnID
}

// OfLane builds a Traversable wrapping a lane.
func OfLane(id LaneID) Traversable { return Traversable{Kind: TraversableLane, Lane: id} }

// OfTurn builds a Traversable wrapping a turn.
func OfTurn(id TurnID) Traversable { return Traversable{Kind: TraversableTurn, Turn: id} }

func (t Traversable) String() string {
	if t.Kind == TraversableLane {
		return fmt.Sprintf("lane:%d", t.Lane)
	}
	return fmt.Sprintf("turn:%d", t.Turn)
}

// Position is a point along a lane: (LaneID, distance along its centerline).
type Position struct {
	Lane LaneID
	S    float64
}

// Lane is one lane of a road or intersection: a polyline with a type, a
// parent road or junction, and a speed limit. Geometry helpers
// (length/direction/closest-point) are computed once at Build time using
// git.fiblab.net/general/common/v2/geometry, exactly as the teacher's
// entity/lane/lane.go does.
type Lane struct {
	ID   LaneID
	Type LaneType
	Turn TurnType

	// Center is the lane's centerline; Lengths[i] is the cumulative length
	// to Center[i]; Length is Lengths[len-1]. Directions[i] is the
	// direction of the segment Center[i]->Center[i+1].
	Center     []geometry.Point
	Lengths    []float64
	Directions []geometry.PolylineDirection
	Length     float64
	Width      float64
	MaxSpeed   float64

	ParentRoad       RoadID
	InRoad           bool
	ParentJunction   IntersectionID
	InJunction       bool
	OffsetInRoad     int

	Predecessors []LaneID
	Successors   []LaneID
	LeftLanes    []LaneID // nearest first
	RightLanes   []LaneID
}

// PositionXY resolves a distance-along-lane s to an (x,y,z) point, clamping
// s to [0, Length], mirroring entity/lane/lane.go's GetPositionByS.
func (l *Lane) PositionXY(s float64) geometry.Point {
	if len(l.Center) == 0 {
		return geometry.Point{}
	}
	if s <= l.Lengths[0] {
		return l.Center[0]
	}
	if s >= l.Length {
		return l.Center[len(l.Center)-1]
	}
	// linear scan is fine: lanes have few polyline vertices.
	for i := 1; i < len(l.Lengths); i++ {
		if s <= l.Lengths[i] {
			sLow, sHigh := l.Lengths[i-1], l.Lengths[i]
			k := (s - sLow) / (sHigh - sLow)
			return geometry.Blend(l.Center[i-1], l.Center[i], k)
		}
	}
	return l.Center[len(l.Center)-1]
}

// Turn connects two lanes at an intersection.
type Turn struct {
	ID       TurnID
	Type     TurnType
	FromLane LaneID
	ToLane   LaneID
	Junction IntersectionID
	Length   float64
	MaxSpeed float64
	// Movement is the equivalence class of turns this turn belongs to for
	// signal-phase admittance purposes (GLOSSARY: Movement).
	Movement MovementID
	// UberTurnSeq, when non-empty, lists every TurnID of the uber-turn this
	// turn participates in, in traversal order (GLOSSARY: Uber-turn).
	UberTurnSeq []TurnID
}

// MovementID identifies an equivalence class of turns admitted together by
// a signal phase.
type MovementID int32

// Phase is one element of a signalled intersection's cycle.
type Phase struct {
	Movements []MovementID
	Duration  float64 // seconds
}

// Intersection is a junction of lanes with an arbitration policy.
type Intersection struct {
	ID      IntersectionID
	Control ControlType

	// Lanes lists every lane (driving, walking, or crosswith) physically
	// inside this intersection's footprint.
	Lanes []LaneID
	Turns []TurnID

	// ConflictSets[t] lists every TurnID whose movement conflicts
	// geometrically with t's, precomputed at Build time.
	ConflictSets map[TurnID][]TurnID

	// Phases is the signal program for ControlSignalled intersections; it
	// is ignored otherwise. CycleOffset shifts phase_for's clock origin.
	Phases      []Phase
	CycleOffset float64

	// RoadRank gives each incoming RoadID a priority class for stop-sign
	// arbitration (higher wins); absent entries default to 0.
	RoadRank map[RoadID]int
}

// CycleLength returns the total duration of one signal cycle.
func (i *Intersection) CycleLength() float64 {
	var total float64
	for _, p := range i.Phases {
		total += p.Duration
	}
	return total
}

// Road groups an ordered set of parallel lanes between two intersections.
type Road struct {
	ID           RoadID
	Name         string
	Lanes        []LaneID
	Predecessor  IntersectionID
	Successor    IntersectionID
}

// Building is a point of interest with sidewalk and (optionally) driving
// frontage, and zero or more parking spots.
type Building struct {
	ID       BuildingID
	Centroid geometry.Point

	DrivingLanes []LaneID
	DrivingS     map[LaneID]float64
	WalkingLanes []LaneID
	WalkingS     map[LaneID]float64

	// OffstreetSpots is the number of offstreet parking spots attached to
	// this building (spec.md §3 "a building has zero or more spots").
	OffstreetSpots int
}

// BusStop is a point along a sidewalk where passengers board/alight buses.
type BusStop struct {
	ID          BusStopID
	SidewalkLane LaneID
	SidewalkS    float64
}

// BusRoute is an ordered cycle of stops plus the spawn schedule for buses
// serving it.
type BusRoute struct {
	ID         BusRouteID
	Stops      []BusStopID
	DwellTime  float64
	SpawnTimes []float64 // seconds since day start
}
