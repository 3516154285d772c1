package config

import (
	"os"

	"github.com/tsinghua-fib-lab/citysim-go/sim"
	"github.com/tsinghua-fib-lab/citysim-go/simtime"
	"gopkg.in/yaml.v2"
)

// RuntimeConfig is the validated, run-ready form of a Config, mirroring the
// teacher's NewRuntimeConfig/RuntimeConfig split between "as parsed from
// YAML" and "as the rest of the program consumes it."
type RuntimeConfig struct {
	Raw     Config
	Opts    sim.Opts
	StartAt simtime.Time
	EndAt   simtime.Time
	DT      simtime.Duration
}

// Load reads and strictly unmarshals path into a Config, failing on any
// field in the file that doesn't match Config's shape — the teacher's own
// UnmarshalStrict convention (utils/config/config.go), which catches typo'd
// keys at startup instead of silently ignoring them.
func Load(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// NewRuntimeConfig derives a RuntimeConfig from a parsed Config: the
// control-step window becomes simtime values, and Control's flags map onto
// sim.Opts (PreferFixedLight inverted into AdaptiveSignal, matching
// spec.md §6's SimOpts naming from the engine's point of view rather than
// the teacher's signal-centric naming).
func NewRuntimeConfig(cfg Config) *RuntimeConfig {
	step := cfg.Control.Step
	return &RuntimeConfig{
		Raw:     cfg,
		StartAt: simtime.Time(step.Start),
		EndAt:   simtime.Time(step.Start + step.Total),
		DT:      simtime.Duration(step.Interval),
		Opts: sim.Opts{
			InfiniteParking: cfg.Control.InfiniteParking,
			RecordAnything:  cfg.Control.RecordAnything,
			AdaptiveSignal:  !cfg.Control.PreferFixedLight,
		},
	}
}
