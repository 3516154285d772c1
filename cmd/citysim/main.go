// Command citysim is the thin run-driver binary: load a YAML configuration
// and on-disk map/scenario fixtures, build a sim.Sim, step it to completion,
// and print an analytics snapshot. Grounded on the teacher's main.go
// (flag-driven config load, logrus-easy-formatter setup, config.Config
// unmarshalling) with the teacher's syncer/connect-rpc distributed-serving
// surface stripped out, since spec.md §6 excludes any network/CLI surface
// from the engine itself — this binary is ambient wiring around the
// library, kept the way the teacher keeps main.go separate from entity/*.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/tsinghua-fib-lab/citysim-go/agent"
	"github.com/tsinghua-fib-lab/citysim-go/citymap"
	"github.com/tsinghua-fib-lab/citysim-go/config"
	"github.com/tsinghua-fib-lab/citysim-go/randengine"
	"github.com/tsinghua-fib-lab/citysim-go/scenario"
	"github.com/tsinghua-fib-lab/citysim-go/sim"

	easy "git.fiblab.net/utils/logrus-easy-formatter"
	"github.com/sirupsen/logrus"
)

var (
	configPath = flag.String("config", "", "run configuration YAML file path")
	logLevel   = flag.String("log.level", "info", "log level: trace debug info warn error")
)

var log = logrus.WithField("module", "citysim")

func main() {
	flag.Parse()
	logrus.SetFormatter(&easy.Formatter{
		TimestampFormat: "2006-01-02 15:04:05.0000",
		LogFormat:       "[%module%] [%time%] [%lvl%] %msg%\n",
	})
	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		log.Panicf("log.level: %v", err)
	}
	logrus.SetLevel(level)

	if *configPath == "" {
		log.Panic("-config is required")
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Panicf("config load: %v", err)
	}
	rc := config.NewRuntimeConfig(cfg)
	log.Infof("loaded config: %+v", cfg)

	m := loadMap(cfg.Input.Map)
	sc := loadScenario(cfg.Input.Scenario)

	sc.Persons = append(sc.Persons, backgroundDemandPersons(cfg, m, rc)...)

	trips, err := scenario.ToTrips(sc, m)
	if err != nil {
		log.Panicf("scenario: %v", err)
	}

	pf := newBFSPathfinder(m)
	s := sim.New(m, pf, parkingAdjacency(m), rc.Opts)
	for _, t := range trips {
		s.ScheduleTrip(t)
	}

	log.Infof("running from %v to %v, dt=%v", rc.StartAt, rc.EndAt, rc.DT)
	for now := rc.StartAt; now.Before(rc.EndAt); now = s.Time() {
		s.Step(rc.DT)
	}

	printSnapshot(s)
}

// parkingAdjacency derives each parking-eligible driving lane's adjacent
// sidewalk lane from the map's buildings: every one of a building's
// DrivingLanes is paired with that building's first WalkingLane (no
// position check is made), the same adjacency the teacher's
// entity/aoi/aoi.go associates for on-street parking frontage.
func parkingAdjacency(m *citymap.Map) map[citymap.LaneID]sim.ParkingLaneAdjacency {
	out := make(map[citymap.LaneID]sim.ParkingLaneAdjacency)
	for _, b := range m.Buildings {
		if len(b.DrivingLanes) == 0 || len(b.WalkingLanes) == 0 {
			continue
		}
		sidewalk := b.WalkingLanes[0]
		for _, dl := range b.DrivingLanes {
			out[dl] = sim.ParkingLaneAdjacency{Sidewalk: sidewalk, Driving: dl}
		}
	}
	return out
}

// backgroundDemandPersons synthesizes riders for every route named in
// cfg.Control.BusDemand via scenario.GenerateBackgroundBusDemand, each
// route's generator seeded from RandomSeed plus its own route ID so two
// routes never draw from the same sequence.
func backgroundDemandPersons(cfg config.Config, m *citymap.Map, rc *config.RuntimeConfig) []scenario.PersonSpec {
	var out []scenario.PersonSpec
	nextID := agent.PersonID(90000000)
	for _, bd := range cfg.Control.BusDemand {
		engine := randengine.New(cfg.Control.RandomSeed + uint64(bd.Route))
		riders := scenario.GenerateBackgroundBusDemand(m, citymap.BusRouteID(bd.Route), rc.StartAt, rc.EndAt, bd.LambdaPerMinute, engine, nextID)
		out = append(out, riders...)
		nextID += agent.PersonID(len(riders)) + 1
	}
	return out
}

func loadMap(ip config.InputPath) *citymap.Map {
	var in citymap.Input
	readJSONFixture(ip, &in)
	return citymap.Build(in)
}

func loadScenario(ip config.InputPath) scenario.Scenario {
	var sc scenario.Scenario
	readJSONFixture(ip, &sc)
	return sc
}

// readJSONFixture loads a single-file or multi-file JSON fixture. The wire
// format is this binary's own choice (spec.md §6: "persisted state...
// binary layout is not part of the spec"), not an engine concern.
func readJSONFixture(ip config.InputPath, out interface{}) {
	files := ip.Files
	if ip.File != "" {
		files = []string{ip.File}
	}
	if len(files) == 0 {
		log.Panic("input path has neither file nor files set")
	}
	if len(files) > 1 {
		log.Panicf("multiple fixture files are not supported: %v", files)
	}
	data, err := os.ReadFile(files[0])
	if err != nil {
		log.Panicf("reading fixture %s: %v", files[0], err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		log.Panicf("parsing fixture %s: %v", files[0], err)
	}
}

func printSnapshot(s *sim.Sim) {
	a := s.GetAnalytics()
	median, mean, stddev, err := a.TripDurationSummary()
	if err != nil {
		log.Warnf("trip duration summary: %v", err)
	}
	fmt.Printf("completion_rate=%.4f trip_duration(median=%.1f mean=%.1f stddev=%.1f) sim_time=%v\n",
		a.CompletionRate(), median, mean, stddev, s.Time())
}
