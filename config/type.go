// Package config defines the YAML run configuration consumed by
// cmd/citysim, adapted from the teacher's utils/config/{config,type}.go
// yaml-tagged struct pattern almost verbatim (SPEC_FULL.md §6): InputPath's
// file-vs-database precedence and ControlStep's start/total/interval shape
// are kept exactly, repointed at this engine's own input fixtures instead
// of the teacher's MongoDB/protobuf-backed map and person stores.
package config

// InputPath names where one fixture (map or scenario) is loaded from:
// a single file, or a Files list, mirroring the teacher's InputPath
// db/col/file/files precedence (file takes priority over any database
// source; this engine drops the MongoDB/cache fields since persistence
// format is outside the engine's scope, spec.md §6). cmd/citysim reads only
// one file: a Files list with more than one entry is rejected, not merged.
type InputPath struct {
	File  string   `yaml:"file,omitempty"`  // single fixture file path
	Files []string `yaml:"files,omitempty"` // fixture file list; cmd/citysim accepts at most one entry
}

// Input names every on-disk fixture a run needs.
type Input struct {
	Map      InputPath `yaml:"map"`
	Scenario InputPath `yaml:"scenario"`
}

// ControlStep bounds the simulated time range and step granularity a run
// advances the engine through, mirroring the teacher's ControlStep.
type ControlStep struct {
	Start    float64 `yaml:"start"`    // simulation start time, seconds since midnight
	Total    float64 `yaml:"total"`    // total simulated duration, seconds
	Interval float64 `yaml:"interval"` // Sim.Step's dt per iteration, seconds
}

// BusDemand names one route's synthetic Poisson passenger-arrival process,
// consumed by scenario.GenerateBackgroundBusDemand.
type BusDemand struct {
	Route           int32   `yaml:"route"`
	LambdaPerMinute float64 `yaml:"lambda_per_minute"`
}

// Control holds the engine-level options carried from spec.md §6's SimOpts,
// plus the teacher's PreferFixedLight toggle generalized into
// sim.Opts.AdaptiveSignal (inverted: PreferFixedLight true means
// AdaptiveSignal false).
type Control struct {
	Step             ControlStep `yaml:"step"`
	InfiniteParking  bool        `yaml:"infinite_parking,omitempty"`
	RecordAnything   bool        `yaml:"record_anything,omitempty"`
	PreferFixedLight bool        `yaml:"prefer_fixed_light,omitempty"`
	RandomSeed       uint64      `yaml:"random_seed,omitempty"`
	BusDemand        []BusDemand `yaml:"bus_demand,omitempty"`
}

// Config is the root of a run's YAML configuration file.
type Config struct {
	Input   Input   `yaml:"input"`
	Control Control `yaml:"control"`
}
