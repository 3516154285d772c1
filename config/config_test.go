package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "run.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadParsesValidConfig(t *testing.T) {
	p := writeTempConfig(t, `
input:
  map:
    file: map.json
  scenario:
    file: scenario.json
control:
  step:
    start: 0
    total: 3600
    interval: 1
  record_anything: true
`)
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "map.json", cfg.Input.Map.File)
	assert.Equal(t, 3600.0, cfg.Control.Step.Total)
	assert.True(t, cfg.Control.RecordAnything)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	p := writeTempConfig(t, `
input:
  map:
    file: map.json
control:
  step:
    start: 0
    total: 10
    interval: 1
  not_a_real_field: true
`)
	_, err := Load(p)
	assert.Error(t, err)
}

func TestNewRuntimeConfigDerivesTimeWindow(t *testing.T) {
	cfg := Config{Control: Control{Step: ControlStep{Start: 100, Total: 50, Interval: 5}}}
	rc := NewRuntimeConfig(cfg)
	assert.Equal(t, 100.0, rc.StartAt.Seconds())
	assert.Equal(t, 150.0, rc.EndAt.Seconds())
	assert.Equal(t, 5.0, rc.DT.Seconds())
}

func TestNewRuntimeConfigInvertsPreferFixedLightIntoAdaptiveSignal(t *testing.T) {
	cfg := Config{Control: Control{PreferFixedLight: true}}
	rc := NewRuntimeConfig(cfg)
	assert.False(t, rc.Opts.AdaptiveSignal)

	cfg2 := Config{Control: Control{PreferFixedLight: false}}
	rc2 := NewRuntimeConfig(cfg2)
	assert.True(t, rc2.Opts.AdaptiveSignal)
}
