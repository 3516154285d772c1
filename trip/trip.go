// Package trip implements spec.md §4.I: multi-leg trip state, mode
// transitions on leg completion, cancellation, and border (off-map)
// handling. Grounded directly on entity/person/schedule/schedule.go's
// Schedule type: NextTrip's leg advancement becomes Manager.AdvanceLeg,
// and Schedule.Set's checkDrivingPositionOk/checkWalkingPositionOk
// validate-or-skip idiom becomes Manager's per-leg start checks, generalized
// from "log and silently skip" into an explicit TripCancelled event per
// spec.md §4.I/§7.
package trip

import (
	"github.com/tsinghua-fib-lab/citysim-go/agent"
	"github.com/tsinghua-fib-lab/citysim-go/citymap"
	"github.com/tsinghua-fib-lab/citysim-go/path"
	"github.com/tsinghua-fib-lab/citysim-go/simtime"
)

// LegKind distinguishes the five TripLeg modes of spec.md §3.
type LegKind int

const (
	LegWalk LegKind = iota
	LegDrive
	LegBike
	LegRideBus
	LegRemote
)

// Leg is one mode-homogeneous segment of a trip's mode_plan.
type Leg struct {
	Kind  LegKind
	Start path.Endpoint
	End   path.Endpoint

	// Route/BoardStop/AlightStop apply only to LegRideBus.
	Route      citymap.BusRouteID
	BoardStop  citymap.BusStopID
	AlightStop citymap.BusStopID
}

// CancelReason names why a trip was cancelled (spec.md §4.I).
type CancelReason int

const (
	ReasonNone CancelReason = iota
	ReasonNoPath
	ReasonSpawnBlocked
	ReasonSpotUnreachable
)

func (r CancelReason) String() string {
	switch r {
	case ReasonNoPath:
		return "no_path"
	case ReasonSpawnBlocked:
		return "spawn_blocked"
	case ReasonSpotUnreachable:
		return "spot_unreachable"
	default:
		return "none"
	}
}

// StatusKind distinguishes Trip's four lifecycle states.
type StatusKind int

const (
	Scheduled StatusKind = iota
	Active
	Finished
	Cancelled
)

// Status is Trip's current lifecycle state, LegIdx/Reason populated only
// for the kind that uses them.
type Status struct {
	Kind   StatusKind
	LegIdx int
	Reason CancelReason
}

// Trip is one person's scheduled multi-leg journey.
type Trip struct {
	ID     agent.TripID
	Person agent.PersonID
	Legs   []Leg
	Status Status
	Depart simtime.Time

	// Car/Ped is the live entity representing the person during the
	// currently active leg, populated by Manager.beginLeg.
	Car agent.CarID
	Ped agent.PedID
}

// CurrentLeg returns the leg at Status.LegIdx; callers must check
// Status.Kind == Active first.
func (t *Trip) CurrentLeg() Leg {
	return t.Legs[t.Status.LegIdx]
}

// HasNextLeg reports whether a leg follows the current one.
func (t *Trip) HasNextLeg() bool {
	return t.Status.LegIdx+1 < len(t.Legs)
}
