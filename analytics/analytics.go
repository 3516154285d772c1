// Package analytics implements spec.md §4.K: a pure event.Event consumer
// owned by sim.Sim that never influences the engine's behavior. The
// teacher repo has no analogue of this shape at all (its closest relative
// is entity/lane/lane.go's per-lane exponential-smoothing traffic
// counters); this package is grounded directly on original_source's
// sim/src/analytics.rs (an Analytics struct fed by the same Event stream,
// queried by a UI for time-series and summary statistics), reshaped into
// Go idiom: generic TimeSeriesCount[X] replaces the Rust struct's
// X: Ord + Clone bound, and percentile/mean/stddev summaries use
// github.com/montanaflynn/stats instead of hand-rolled math.
package analytics

import (
	"github.com/montanaflynn/stats"
	"github.com/tsinghua-fib-lab/citysim-go/agent"
	"github.com/tsinghua-fib-lab/citysim-go/citymap"
	"github.com/tsinghua-fib-lab/citysim-go/event"
	"github.com/tsinghua-fib-lab/citysim-go/internal/logging"
	"github.com/tsinghua-fib-lab/citysim-go/path"
	"github.com/tsinghua-fib-lab/citysim-go/simtime"
)

var log = logging.For("analytics")

// RawThroughputWindow is the rolling window width raw_throughput sums over
// (analytics.rs's raw_throughput hard-codes one hour).
const RawThroughputWindow = simtime.Duration(3600)

// hourBucket buckets a Time into its hour-of-day, analytics.rs's
// `time.get_parts().0`.
func hourBucket(t simtime.Time) int {
	h := int(t.Seconds()) / 3600
	if h < 0 {
		h = 0
	}
	return h
}

type countKey[X comparable] struct {
	entity X
	agent  agent.VehicleType
	hour   int
}

// RawSample is one raw (Time, AgentType, entity) throughput observation,
// retained only when Analytics.recordAnything ("raw mode") is set.
type RawSample[X comparable] struct {
	Time   simtime.Time
	Agent  agent.VehicleType
	Entity X
}

// TimeSeriesCount records per-hour entity throughput, plus an optional raw
// sample list for rolling-window queries, mirroring analytics.rs's
// TimeSeriesCount<X>.
type TimeSeriesCount[X comparable] struct {
	counts map[countKey[X]]int
	raw    []RawSample[X]
	keepRaw bool
}

func newTimeSeriesCount[X comparable](keepRaw bool) *TimeSeriesCount[X] {
	return &TimeSeriesCount[X]{counts: make(map[countKey[X]]int), keepRaw: keepRaw}
}

// Record adds count occurrences of entity/agentType at time.
func (ts *TimeSeriesCount[X]) Record(t simtime.Time, entity X, agentType agent.VehicleType, count int) {
	if ts.keepRaw {
		for i := 0; i < count; i++ {
			ts.raw = append(ts.raw, RawSample[X]{Time: t, Agent: agentType, Entity: entity})
		}
	}
	ts.counts[countKey[X]{entity: entity, agent: agentType, hour: hourBucket(t)}] += count
}

// TotalFor sums every hour/agent-type bucket recorded for entity.
func (ts *TimeSeriesCount[X]) TotalFor(entity X) int {
	total := 0
	for k, v := range ts.counts {
		if k.entity == entity {
			total += v
		}
	}
	return total
}

// window is a sliding deque of Times within windowSize of the most recent
// query, mirroring analytics.rs's Window.
type window struct {
	times      []simtime.Time
	windowSize simtime.Duration
}

func newWindow(size simtime.Duration) *window {
	return &window{windowSize: size}
}

func (w *window) add(t simtime.Time) int {
	w.times = append(w.times, t)
	return w.count(t)
}

func (w *window) count(end simtime.Time) int {
	i := 0
	for i < len(w.times) && end.Sub(w.times[i]) > w.windowSize {
		i++
	}
	w.times = w.times[i:]
	return len(w.times)
}

// RawThroughput replays entity's raw samples up to now through a one-hour
// sliding window, returning a (time, count) series per agent type
// (analytics.rs's raw_throughput; requires keepRaw).
func (ts *TimeSeriesCount[X]) RawThroughput(now simtime.Time, entity X) map[agent.VehicleType][][2]float64 {
	out := make(map[agent.VehicleType][][2]float64)
	windows := make(map[agent.VehicleType]*window)
	for _, s := range ts.raw {
		if s.Entity != entity || s.Time.After(now) {
			continue
		}
		w, ok := windows[s.Agent]
		if !ok {
			w = newWindow(RawThroughputWindow)
			windows[s.Agent] = w
			out[s.Agent] = [][2]float64{{0, 0}}
		}
		cnt := w.add(s.Time)
		out[s.Agent] = append(out[s.Agent], [2]float64{s.Time.Seconds(), float64(cnt)})
	}
	return out
}

// FinishedTrip is one completed or cancelled trip record
// (analytics.rs's finished_trips entry).
type FinishedTrip struct {
	Time     simtime.Time
	Trip     agent.TripID
	Mode     event.PhaseKind
	Duration *simtime.Duration // nil on cancellation
}

// TripLogEntry is one phase-transition record (analytics.rs's trip_log).
type TripLogEntry struct {
	Time        simtime.Time
	Trip        agent.TripID
	PathRequest *path.Request
	Phase       event.Kind
}

// IntersectionDelaySample is one measured admittance delay
// (analytics.rs's intersection_delays).
type IntersectionDelaySample struct {
	Turn  citymap.TurnID
	Time  simtime.Time
	Delay simtime.Duration
	Agent agent.VehicleType
}

// ParkingChange records a spot transitioning filled/free
// (analytics.rs's parking_lane_changes/parking_lot_changes, merged here
// since parking.Spot already distinguishes onstreet/offstreet).
type ParkingChange struct {
	Time   simtime.Time
	Filled bool
}

// BoardingSample records one passenger's wait time at a stop
// (analytics.rs's passengers_boarding).
type BoardingSample struct {
	Time  simtime.Time
	Route citymap.BusRouteID
	Wait  simtime.Duration
}

// Analytics consumes event.Events into query-friendly stores. It is purely
// an observer (spec.md §4.K "must never influence the engine's
// behavior"): every method either records an event or answers a read-only
// query, never pushes anything back onto the scheduler or event buffer.
type Analytics struct {
	recordAnything bool

	RoadThroughput         *TimeSeriesCount[citymap.RoadID]
	IntersectionThroughput *TimeSeriesCount[citymap.IntersectionID]
	MovementThroughput     *TimeSeriesCount[citymap.MovementID]

	startedTrips map[agent.TripID]simtime.Time
	FinishedTrips []FinishedTrip
	TripLog       []TripLogEntry

	IntersectionDelays map[citymap.IntersectionID][]IntersectionDelaySample

	ParkingChangesByLane     map[citymap.LaneID][]ParkingChange
	ParkingChangesByBuilding map[citymap.BuildingID][]ParkingChange

	PassengersBoarding   map[citymap.BusStopID][]BoardingSample
	PassengersAlighting  map[citymap.BusStopID][]simtime.Time
}

// New builds an empty Analytics. recordAnything gates both the expensive
// raw per-sample throughput vectors and whether events are consumed at
// all, mirroring analytics.rs's `record_anything` field and its early
// return at the top of `event()`.
func New(recordAnything bool) *Analytics {
	return &Analytics{
		recordAnything:           recordAnything,
		RoadThroughput:           newTimeSeriesCount[citymap.RoadID](recordAnything),
		IntersectionThroughput:   newTimeSeriesCount[citymap.IntersectionID](recordAnything),
		MovementThroughput:       newTimeSeriesCount[citymap.MovementID](recordAnything),
		startedTrips:             make(map[agent.TripID]simtime.Time),
		IntersectionDelays:       make(map[citymap.IntersectionID][]IntersectionDelaySample),
		ParkingChangesByLane:     make(map[citymap.LaneID][]ParkingChange),
		ParkingChangesByBuilding: make(map[citymap.BuildingID][]ParkingChange),
		PassengersBoarding:       make(map[citymap.BusStopID][]BoardingSample),
		PassengersAlighting:      make(map[citymap.BusStopID][]simtime.Time),
	}
}

// Consume folds one event into the relevant store, the Go analogue of
// analytics.rs's `event(&mut self, ev, time, map)` match. m resolves a
// Traversable's owning Road/Intersection for the throughput counters.
func (a *Analytics) Consume(e event.Event, m *citymap.Map) {
	if !a.recordAnything {
		return
	}
	switch e.Kind {
	case event.AgentEntersTraversable:
		a.recordThroughput(e, m)
	case event.CarReachedParkingSpot:
		a.ParkingChangesByBuilding[e.ParkingSpot] = append(a.ParkingChangesByBuilding[e.ParkingSpot], ParkingChange{Time: e.Time, Filled: true})
		if e.ParkingLane != 0 {
			a.ParkingChangesByLane[e.ParkingLane] = append(a.ParkingChangesByLane[e.ParkingLane], ParkingChange{Time: e.Time, Filled: true})
		}
	case event.CarLeftParkingSpot:
		a.ParkingChangesByBuilding[e.ParkingSpot] = append(a.ParkingChangesByBuilding[e.ParkingSpot], ParkingChange{Time: e.Time, Filled: false})
		if e.ParkingLane != 0 {
			a.ParkingChangesByLane[e.ParkingLane] = append(a.ParkingChangesByLane[e.ParkingLane], ParkingChange{Time: e.Time, Filled: false})
		}
	case event.IntersectionDelayMeasured:
		turn := m.Turn(e.Turn)
		a.IntersectionDelays[turn.Junction] = append(a.IntersectionDelays[turn.Junction], IntersectionDelaySample{
			Turn: e.Turn, Time: e.Time, Delay: e.Delay, Agent: e.AgentType,
		})
	case event.TripPhaseStarting:
		if _, ok := a.startedTrips[e.Trip]; !ok {
			a.startedTrips[e.Trip] = e.Time
		}
		a.TripLog = append(a.TripLog, TripLogEntry{Time: e.Time, Trip: e.Trip, PathRequest: e.PathRequest, Phase: e.Kind})
	case event.TripFinished:
		a.TripLog = append(a.TripLog, TripLogEntry{Time: e.Time, Trip: e.Trip, Phase: e.Kind})
		a.recordFinishedTrip(e, true)
	case event.TripCancelled:
		a.TripLog = append(a.TripLog, TripLogEntry{Time: e.Time, Trip: e.Trip, Phase: e.Kind})
		a.recordFinishedTrip(e, false)
	case event.BusArrivedAtStop:
		// bus_arrivals in analytics.rs; bus arrivals are not recorded here
		// (only the boarding and alighting events below are kept per stop).
	case event.PassengerBoardsTransit:
		a.PassengersBoarding[e.BusStop] = append(a.PassengersBoarding[e.BusStop], BoardingSample{Time: e.Time, Route: e.BusRoute, Wait: e.Wait})
	case event.PassengerAlightsTransit:
		a.PassengersAlighting[e.BusStop] = append(a.PassengersAlighting[e.BusStop], e.Time)
	case event.Alert:
		log.Warnf("alert at %v: %s (%s)", e.Time, e.Message, e.Location)
	}
}

func (a *Analytics) recordThroughput(e event.Event, m *citymap.Map) {
	switch e.Traversable.Kind {
	case citymap.TraversableLane:
		lane := m.Lane(e.Traversable.Lane)
		a.RoadThroughput.Record(e.Time, lane.ParentRoad, e.AgentType, 1)
	case citymap.TraversableTurn:
		turn := m.Turn(e.Traversable.Turn)
		a.IntersectionThroughput.Record(e.Time, turn.Junction, e.AgentType, 1)
		a.MovementThroughput.Record(e.Time, turn.Movement, e.AgentType, 1)
	}
}

func (a *Analytics) recordFinishedTrip(e event.Event, succeeded bool) {
	var dur *simtime.Duration
	if succeeded {
		if start, ok := a.startedTrips[e.Trip]; ok {
			d := e.Time.Sub(start)
			dur = &d
		}
	}
	a.FinishedTrips = append(a.FinishedTrips, FinishedTrip{Time: e.Time, Trip: e.Trip, Mode: e.Mode, Duration: dur})
	delete(a.startedTrips, e.Trip)
}

// FinishedTripTime mirrors analytics.rs's finished_trip_time query.
func (a *Analytics) FinishedTripTime(trip agent.TripID) (simtime.Duration, bool) {
	for _, ft := range a.FinishedTrips {
		if ft.Trip == trip && ft.Duration != nil {
			return *ft.Duration, true
		}
	}
	return 0, false
}

// TripDurationSummary computes median/mean/stddev over every completed
// (non-cancelled) trip's duration, spec.md §4.K's "rolling window
// queries" sibling for one-shot summaries, using
// github.com/montanaflynn/stats rather than hand-rolled percentile math.
func (a *Analytics) TripDurationSummary() (median, mean, stddev float64, err error) {
	var durations stats.Float64Data
	for _, ft := range a.FinishedTrips {
		if ft.Duration != nil {
			durations = append(durations, ft.Duration.Seconds())
		}
	}
	if len(durations) == 0 {
		return 0, 0, 0, nil
	}
	median, err = durations.Median()
	if err != nil {
		return 0, 0, 0, err
	}
	mean, err = durations.Mean()
	if err != nil {
		return 0, 0, 0, err
	}
	stddev, err = durations.StandardDeviation()
	return median, mean, stddev, err
}

// IntersectionDelaySummary computes mean/stddev of every measured delay at
// ix, used to flag intersections trending toward starvation.
func (a *Analytics) IntersectionDelaySummary(ix citymap.IntersectionID) (mean, stddev float64, err error) {
	samples := a.IntersectionDelays[ix]
	if len(samples) == 0 {
		return 0, 0, nil
	}
	var delays stats.Float64Data
	for _, s := range samples {
		delays = append(delays, s.Delay.Seconds())
	}
	mean, err = delays.Mean()
	if err != nil {
		return 0, 0, err
	}
	stddev, err = delays.StandardDeviation()
	return mean, stddev, err
}

// CompletionRate reports the fraction of finished-or-cancelled trips that
// actually completed, a cheap health check over FinishedTrips. It is 0
// while no trip has finished or been cancelled.
func (a *Analytics) CompletionRate() float64 {
	if len(a.FinishedTrips) == 0 {
		return 0
	}
	completed := 0
	for _, ft := range a.FinishedTrips {
		if ft.Duration != nil {
			completed++
		}
	}
	return float64(completed) / float64(len(a.FinishedTrips))
}
