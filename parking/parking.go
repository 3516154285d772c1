// Package parking implements spec.md §4.F: onstreet and offstreet parking
// spots, reservation tracked separately from occupancy, and the
// position-mapping helpers the driving/trip packages use to route a car to
// a spot. The teacher repo has no parking subsystem of its own (its AOIs
// model only driving/walking gate positions); this package is new code
// grounded directly on spec.md §3/§4.F, reusing the teacher's two-table
// reverse-mapping idiom seen elsewhere (e.g. entity/person/vehicle.go's
// node/shadowNode dual bookkeeping).
package parking

import (
	"fmt"

	"github.com/tsinghua-fib-lab/citysim-go/agent"
	"github.com/tsinghua-fib-lab/citysim-go/citymap"
)

// SpotLength is the nominal length of one onstreet parking space, used to
// derive a parking lane's spot count (spec.md §3).
const SpotLength = 6.0 // meters

// SpotKind distinguishes the two ParkingSpot variants.
type SpotKind int

const (
	Onstreet SpotKind = iota
	Offstreet
)

// Spot addresses one parking space, either a slot along a parking lane or
// a slot belonging to a building's offstreet lot.
type Spot struct {
	Kind     SpotKind
	Lane     citymap.LaneID     // Onstreet
	Building citymap.BuildingID // Offstreet
	Index    int
}

func (s Spot) String() string {
	if s.Kind == Onstreet {
		return fmt.Sprintf("onstreet(lane=%d,idx=%d)", s.Lane, s.Index)
	}
	return fmt.Sprintf("offstreet(bldg=%d,idx=%d)", s.Building, s.Index)
}

// Lot owns every parking spot in the map: occupancy, reservation, and the
// sidewalk/driving position each spot maps to. Exclusively owned by
// sim.Sim, mutated only from the currently executing command (spec.md §5).
type Lot struct {
	m *citymap.Map

	// occupant and reserved both key by Spot; occupant holds the CarID
	// physically parked there, reserved holds the CarID that has claimed
	// it but not yet arrived.
	occupant map[Spot]agent.CarID
	reserved map[Spot]agent.CarID
	byCar    map[agent.CarID]Spot

	onstreetSpots  map[citymap.LaneID]int
	offstreetSpots map[citymap.BuildingID]int

	// drivingPos/sidewalkPos cache each onstreet spot's mapped position on
	// the adjacent driving/sidewalk lane (spec.md §4.F "Position mapping").
	drivingPos  map[Spot]citymap.Position
	sidewalkPos map[Spot]citymap.Position
}

// New builds a Lot with onstreet spots derived from every parking-eligible
// driving lane's length (floor(length/SpotLength) - 2, no spots adjacent
// to intersections, spec.md §3) and offstreet spots taken from each
// Building's OffstreetSpots count. parkingLanes lists which driving lanes
// have an adjacent on-lane parking area, each paired with the sidewalk and
// driving lane it maps spots onto (map-construction's job in the full
// system; passed in here since citymap itself does not model "which lanes
// are parking lanes" — spec.md §1 excludes map construction from this
// repo's scope).
func New(m *citymap.Map, parkingLanes map[citymap.LaneID]struct {
	Sidewalk citymap.LaneID
	Driving  citymap.LaneID
}) *Lot {
	l := &Lot{
		m:              m,
		occupant:       make(map[Spot]agent.CarID),
		reserved:       make(map[Spot]agent.CarID),
		byCar:          make(map[agent.CarID]Spot),
		onstreetSpots:  make(map[citymap.LaneID]int),
		offstreetSpots: make(map[citymap.BuildingID]int),
		drivingPos:     make(map[Spot]citymap.Position),
		sidewalkPos:    make(map[Spot]citymap.Position),
	}
	for laneID, adj := range parkingLanes {
		lane := m.Lane(laneID)
		n := int(lane.Length/SpotLength) - 2
		if n < 0 {
			n = 0
		}
		l.onstreetSpots[laneID] = n
		for i := 0; i < n; i++ {
			spot := Spot{Kind: Onstreet, Lane: laneID, Index: i}
			s := (float64(i) + 1.5) * SpotLength
			l.drivingPos[spot] = citymap.Position{Lane: adj.Driving, S: s}
			l.sidewalkPos[spot] = citymap.Position{Lane: adj.Sidewalk, S: s}
		}
	}
	for bid, b := range m.Buildings {
		l.offstreetSpots[bid] = b.OffstreetSpots
	}
	return l
}

// ReserveSpot succeeds iff spot is not currently occupied and not
// currently reserved; idempotent per (spot, car) (spec.md §4.F).
func (l *Lot) ReserveSpot(spot Spot, car agent.CarID) bool {
	if held, ok := l.reserved[spot]; ok {
		return held == car
	}
	if _, ok := l.occupant[spot]; ok {
		return false
	}
	l.reserved[spot] = car
	return true
}

// ReleaseReservation drops a reservation without marking the spot occupied
// (used when a trip is cancelled before the car arrives).
func (l *Lot) ReleaseReservation(spot Spot, car agent.CarID) {
	if l.reserved[spot] == car {
		delete(l.reserved, spot)
	}
}

// ParkCar marks spot occupied by car, completing a reservation (or parking
// without one). Maintains the
// spec.md §4.F invariant car ∈ driving_sim ⇔ car ∉ parking_sim by being
// the single place a car enters parking sim's ownership.
func (l *Lot) ParkCar(spot Spot, car agent.CarID) {
	delete(l.reserved, spot)
	l.occupant[spot] = car
	l.byCar[car] = spot
}

// RemoveParkedCar releases the spot car occupies, returning that spot.
func (l *Lot) RemoveParkedCar(car agent.CarID) (Spot, bool) {
	spot, ok := l.byCar[car]
	if !ok {
		return Spot{}, false
	}
	delete(l.occupant, spot)
	delete(l.byCar, car)
	return spot, true
}

// IsOccupied reports whether spot currently holds a parked car.
func (l *Lot) IsOccupied(spot Spot) bool {
	_, ok := l.occupant[spot]
	return ok
}

// DrivingPosition returns the driving-lane position a car targeting spot
// should stop at.
func (l *Lot) DrivingPosition(spot Spot) (citymap.Position, bool) {
	if spot.Kind == Offstreet {
		b := l.m.Building(spot.Building)
		if len(b.DrivingLanes) == 0 {
			return citymap.Position{}, false
		}
		lane := b.DrivingLanes[0]
		return citymap.Position{Lane: lane, S: b.DrivingS[lane]}, true
	}
	pos, ok := l.drivingPos[spot]
	return pos, ok
}

// SidewalkPosition returns the sidewalk-lane position adjacent to spot.
func (l *Lot) SidewalkPosition(spot Spot) (citymap.Position, bool) {
	if spot.Kind == Offstreet {
		b := l.m.Building(spot.Building)
		if len(b.WalkingLanes) == 0 {
			return citymap.Position{}, false
		}
		lane := b.WalkingLanes[0]
		return citymap.Position{Lane: lane, S: b.WalkingS[lane]}, true
	}
	pos, ok := l.sidewalkPos[spot]
	return pos, ok
}

// GetFreeOnstreetSpots lists every currently free (unoccupied, unreserved)
// onstreet spot on lane.
func (l *Lot) GetFreeOnstreetSpots(lane citymap.LaneID) []Spot {
	n := l.onstreetSpots[lane]
	out := make([]Spot, 0, n)
	for i := 0; i < n; i++ {
		spot := Spot{Kind: Onstreet, Lane: lane, Index: i}
		if l.free(spot) {
			out = append(out, spot)
		}
	}
	return out
}

// GetFreeOffstreetSpots lists every currently free offstreet spot
// belonging to bldg.
func (l *Lot) GetFreeOffstreetSpots(bldg citymap.BuildingID) []Spot {
	n := l.offstreetSpots[bldg]
	out := make([]Spot, 0, n)
	for i := 0; i < n; i++ {
		spot := Spot{Kind: Offstreet, Building: bldg, Index: i}
		if l.free(spot) {
			out = append(out, spot)
		}
	}
	return out
}

func (l *Lot) free(spot Spot) bool {
	if _, ok := l.occupant[spot]; ok {
		return false
	}
	if _, ok := l.reserved[spot]; ok {
		return false
	}
	return true
}

// NearestFreeSpot picks the free onstreet spot on lane whose driving
// position is closest to startS, used by drive-to-building trips
// (spec.md §4.F nearest_free_spot). Returns false if none are free.
func (l *Lot) NearestFreeSpot(lane citymap.LaneID, startS float64) (Spot, bool) {
	best := Spot{}
	bestDist := -1.0
	found := false
	for _, spot := range l.GetFreeOnstreetSpots(lane) {
		pos := l.drivingPos[spot]
		d := pos.S - startS
		if d < 0 {
			d = -d
		}
		if !found || d < bestDist {
			best, bestDist, found = spot, d, true
		}
	}
	return best, found
}
