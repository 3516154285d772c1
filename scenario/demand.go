package scenario

import (
	"github.com/tsinghua-fib-lab/citysim-go/agent"
	"github.com/tsinghua-fib-lab/citysim-go/citymap"
	"github.com/tsinghua-fib-lab/citysim-go/path"
	"github.com/tsinghua-fib-lab/citysim-go/randengine"
	"github.com/tsinghua-fib-lab/citysim-go/simtime"
)

// GenerateBackgroundBusDemand synthesizes extra bus-riding PersonSpecs for
// route over [start, end), a Poisson arrival process per stop (excluding
// the route's last stop, which has no downstream destination), grounded on
// jwmdev-brt08/backend/sim/simulator.go's generateArrivals/newPassenger:
// each stop samples its own arrivals independently, and each arriving
// passenger picks a uniformly random strictly-downstream alight stop.
// Unlike the teacher's Knuth-algorithm poisson() sampling directly off
// Float64/NormFloat64, arrival instants here are drawn as successive
// exponential inter-arrival gaps via randengine.Engine.ExpFloat64Safe,
// the standard construction of a Poisson process and the sampling mode
// that method's own doc comment names. Every synthesized rider is a real
// PersonSpec with a single bus leg, so it flows through ToTrips and
// trip.Manager exactly like a scenario-supplied trip — there is no
// separate "background passenger" code path in transit or sim.
func GenerateBackgroundBusDemand(m *citymap.Map, route citymap.BusRouteID, start, end simtime.Time, lambdaPerMinute float64, engine *randengine.Engine, firstPersonID agent.PersonID) []PersonSpec {
	r := m.BusRoutes[route]
	if r == nil || len(r.Stops) < 2 || lambdaPerMinute <= 0 {
		return nil
	}
	meanGap := simtime.Duration(60.0 / lambdaPerMinute)

	var out []PersonSpec
	nextID := firstPersonID
	for i := 0; i < len(r.Stops)-1; i++ {
		boardID := r.Stops[i]
		board := m.BusStops[boardID]
		if board == nil {
			continue
		}
		t := start.Add(simtime.Duration(float64(meanGap) * engine.ExpFloat64Safe()))
		for t.Before(end) {
			destIdx := i + 1 + engine.IntnSafe(len(r.Stops)-i-1)
			alightID := r.Stops[destIdx]
			alight := m.BusStops[alightID]
			if alight == nil {
				t = t.Add(simtime.Duration(float64(meanGap) * engine.ExpFloat64Safe()))
				continue
			}
			boardPos := path.Endpoint{Kind: path.EndpointSuddenlyAppear, Position: citymap.Position{Lane: board.SidewalkLane, S: board.SidewalkS}}
			alightPos := path.Endpoint{Kind: path.EndpointSuddenlyAppear, Position: citymap.Position{Lane: alight.SidewalkLane, S: alight.SidewalkS}}
			out = append(out, PersonSpec{
				ID: nextID,
				Trips: []IndividTrip{{
					Depart:     t,
					Purpose:    "background_transit_demand",
					Mode:       ModeBus,
					Origin:     boardPos,
					Dest:       alightPos,
					Route:      route,
					BoardStop:  boardID,
					AlightStop: alightID,
				}},
			})
			nextID++
			t = t.Add(simtime.Duration(float64(meanGap) * engine.ExpFloat64Safe()))
		}
	}
	return out
}
