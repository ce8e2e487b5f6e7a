package experiment

import (
	"bytes"
	"context"
	"errors"
	"log"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/san-kum/sensorless/internal/config"
	"github.com/san-kum/sensorless/internal/dynamo"
	"github.com/san-kum/sensorless/internal/estimator"
	"github.com/san-kum/sensorless/internal/motor"
	"github.com/san-kum/sensorless/internal/storage"
)

const deg = math.Pi / 180

func shortPreset(t *testing.T, name string, duration float64) *config.Config {
	t.Helper()
	cfg := config.GetPreset(name)
	if cfg == nil {
		t.Fatalf("missing preset %s", name)
	}
	cfg.Duration = duration
	cfg.Settle = duration / 2
	return cfg
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	if got := strings.Join(r.ListIntegrators(), ","); got != "euler,rk4,rk45" {
		t.Errorf("integrators: %s", got)
	}
	if got := strings.Join(r.ListDrives(), ","); got != "feedforward,none,vf" {
		t.Errorf("drives: %s", got)
	}

	if _, err := r.GetIntegrator("verlet"); err == nil {
		t.Error("expected unknown integrator error")
	}
	if _, err := r.GetDrive("foc", config.DefaultConfig()); err == nil {
		t.Error("expected unknown drive error")
	}

	cfg := config.DefaultConfig()
	cfg.DriveCfg.Kp = 0.5
	drive, err := r.GetDrive("feedforward", cfg)
	if err != nil {
		t.Fatal(err)
	}
	if kp := drive.(dynamo.Configurable).GetParams()["kp"]; kp != 0.5 {
		t.Errorf("kp override not applied: %v", kp)
	}
}

func TestExperimentNominal(t *testing.T) {
	exp := New(config.GetPreset("nominal"))
	if err := exp.Setup(); err != nil {
		t.Fatal(err)
	}

	result, err := exp.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	m := result.Metrics
	if m["position_rms"] > 2*deg {
		t.Errorf("position rms %.3f deg", m["position_rms"]/deg)
	}
	if m["velocity_rel"] > 0.01 {
		t.Errorf("velocity error %.4f", m["velocity_rel"])
	}
	if m["lock_time"] < 0 || m["lock_time"] > 0.5 {
		t.Errorf("lock time %v", m["lock_time"])
	}
	if math.Abs(m["flux_ratio"]-1) > 0.05 {
		t.Errorf("flux ratio %v", m["flux_ratio"])
	}
	if _, ok := m["eta_factor_avg"]; !ok {
		t.Error("probe metric missing")
	}

	meta := exp.Metadata()
	if meta.Name != "nominal" || meta.Bandwidth != estimator.DefaultPLLBandwidth {
		t.Errorf("metadata %+v", meta)
	}
}

func TestExperimentNotSetup(t *testing.T) {
	if _, err := New(config.DefaultConfig()).Run(context.Background()); err == nil {
		t.Error("expected error before setup")
	}
}

func TestExperimentUnstablePreset(t *testing.T) {
	var buf bytes.Buffer
	exp := New(shortPreset(t, "unstable", 0.1))
	exp.SetLogger(log.New(&buf, "", 0))
	if err := exp.Setup(); err != nil {
		t.Fatalf("setup should accept the config: %v", err)
	}

	_, err := exp.Run(context.Background())
	if !errors.Is(err, estimator.ErrTimingViolation) {
		t.Fatalf("expected timing violation, got %v", err)
	}
	if !strings.Contains(buf.String(), "axis unstable") {
		t.Errorf("fault not logged: %q", buf.String())
	}
}

func TestExperimentFreeRun(t *testing.T) {
	exp := New(config.GetPreset("freerun"))
	if err := exp.Setup(); err != nil {
		t.Fatal(err)
	}

	result, err := exp.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	last := result.Samples[len(result.Samples)-1]
	if last.TrueOmega < 1000 {
		t.Errorf("rotor reached only %.1f rad/s", last.TrueOmega)
	}
	if result.Metrics["position_rms"] > 5*deg {
		t.Errorf("position rms %.3f deg", result.Metrics["position_rms"]/deg)
	}
}

func TestSetParam(t *testing.T) {
	exp := New(config.DefaultConfig())

	tests := []struct {
		name    string
		param   string
		wantErr bool
	}{
		{"estimator", "estimator.pll_bandwidth", false},
		{"motor", "motor.resistance", false},
		{"drive", "drive.current", false},
		{"no prefix", "resistance", true},
		{"unknown component", "pll.bandwidth", true},
		{"unknown estimator key", "estimator.kp", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := exp.SetParam(tt.param, 1)
			if (err != nil) != tt.wantErr {
				t.Errorf("SetParam(%s) error = %v", tt.param, err)
			}
		})
	}
}

func TestSetParamOverrides(t *testing.T) {
	base := config.DefaultConfig()
	exp := New(base)

	if err := exp.SetParam("estimator.pll_bandwidth", 1500); err != nil {
		t.Fatal(err)
	}
	if err := exp.SetParam("motor.resistance", 0.1); err != nil {
		t.Fatal(err)
	}
	if err := exp.SetParam("drive.current", 4); err != nil {
		t.Fatal(err)
	}
	if err := exp.Setup(); err != nil {
		t.Fatal(err)
	}

	if exp.Config().Estimator.PLLBandwidth != 1500 {
		t.Error("estimator override not applied")
	}
	if base.Estimator.PLLBandwidth != estimator.DefaultPLLBandwidth {
		t.Error("base config modified")
	}
	if exp.Plant().Params.Resistance != 0.1 || exp.Config().Motor.Resistance != 0.1 {
		t.Error("motor override not applied")
	}
	if base.Motor.Resistance == 0.1 {
		t.Error("motor override modified the base config")
	}
	if exp.Config().Estimator.PhaseResistance != estimator.DefaultPhaseResistance {
		t.Error("motor override leaked into the estimator")
	}
	if cur := exp.Simulator().Drive().(dynamo.Configurable).GetParams()["current"]; cur != 4 {
		t.Errorf("drive current %v", cur)
	}
}

func TestMotorOverrideMatchesConfig(t *testing.T) {
	const flux = 3.16e-3

	run := func(exp *Experiment) map[string]float64 {
		t.Helper()
		if err := exp.Setup(); err != nil {
			t.Fatal(err)
		}
		result, err := exp.Run(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		return result.Metrics
	}

	fromFile := shortPreset(t, "nominal", 0.2)
	fromFile.Motor.FluxLinkage = flux
	byConfig := New(fromFile)
	want := run(byConfig)

	base := shortPreset(t, "nominal", 0.2)
	byFlag := New(base)
	if err := byFlag.SetParam("motor.flux_linkage", flux); err != nil {
		t.Fatal(err)
	}
	got := run(byFlag)

	if len(got) != len(want) {
		t.Fatalf("metric sets differ: %v vs %v", got, want)
	}
	for name, w := range want {
		g, ok := got[name]
		if !ok {
			t.Errorf("metric %s missing", name)
			continue
		}
		if g != w && !(math.IsNaN(g) && math.IsNaN(w)) {
			t.Errorf("%s: override %v, config %v", name, g, w)
		}
	}

	if !reflect.DeepEqual(byFlag.Metadata(), byConfig.Metadata()) {
		t.Errorf("metadata differs: %+v vs %+v", byFlag.Metadata(), byConfig.Metadata())
	}
	if byFlag.Metadata().Flux != flux {
		t.Errorf("metadata flux %v", byFlag.Metadata().Flux)
	}
	if base.Motor.FluxLinkage == flux {
		t.Error("base config modified")
	}
}

func TestSetParamRejectsInvalidMotor(t *testing.T) {
	exp := New(config.DefaultConfig())
	before := exp.Config().Motor

	if err := exp.SetParam("motor.inductance", 0); err == nil {
		t.Error("expected error for zero inductance")
	}
	if err := exp.SetParam("motor.backlash", 1); !errors.Is(err, dynamo.ErrParameterBounds) {
		t.Errorf("expected bounds error, got %v", err)
	}
	if exp.Config().Motor != before {
		t.Error("rejected override changed the motor")
	}
}

func TestSetParamDriveWithoutParams(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Drive = "none"
	exp := New(cfg)
	exp.SetParam("drive.current", 1)

	if err := exp.Setup(); !errors.Is(err, dynamo.ErrParameterBounds) {
		t.Errorf("expected bounds error, got %v", err)
	}
}

func TestNewPlant(t *testing.T) {
	cfg := config.DefaultConfig()
	plant, err := NewPlant(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if plant.Profile == nil {
		t.Error("dyno mode without a profile")
	}
	if x := plant.InitialState(0); x[motor.Omega] != config.DefaultSpeed {
		t.Errorf("initial speed %v", x[motor.Omega])
	}

	cfg.Mode = config.ModeFree
	plant, err = NewPlant(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if plant.Profile != nil {
		t.Error("free mode with a profile")
	}

	cfg.Mode = config.ModeDyno
	cfg.Profile.Kind = "sine"
	if _, err := NewPlant(cfg); err == nil {
		t.Error("expected unknown profile error")
	}
}

func TestGridSearchPoints(t *testing.T) {
	g := NewGridSearch([]string{"a", "b"}, [][]float64{{1, 2}, {10, 20, 30}})

	points := g.Points()
	if len(points) != 6 {
		t.Fatalf("expected 6 points, got %d", len(points))
	}
	if points[0]["a"] != 1 || points[0]["b"] != 10 {
		t.Errorf("first point %v", points[0])
	}
	if points[2]["a"] != 1 || points[2]["b"] != 30 {
		t.Errorf("third point %v", points[2])
	}
	if points[5]["a"] != 2 || points[5]["b"] != 30 {
		t.Errorf("last point %v", points[5])
	}
}

func TestGridSearchMismatch(t *testing.T) {
	g := NewGridSearch([]string{"a"}, nil)
	if _, err := g.Search(context.Background(), config.DefaultConfig(), "position_rms"); !errors.Is(err, dynamo.ErrDimensionMismatch) {
		t.Errorf("expected dimension mismatch, got %v", err)
	}
}

func TestTune(t *testing.T) {
	base := shortPreset(t, "nominal", 0.3)

	trials, err := Tune(context.Background(), base, []float64{1000, 5000}, []float64{1000})
	if err != nil {
		t.Fatal(err)
	}
	if len(trials) != 2 {
		t.Fatalf("expected 2 trials, got %d", len(trials))
	}

	best := trials[0]
	if best.Err != nil || best.Params["estimator.pll_bandwidth"] != 1000 {
		t.Errorf("best trial %+v", best)
	}
	if best.Score > 2*deg {
		t.Errorf("best score %.3f deg", best.Score/deg)
	}

	// 5000 rad/s at 8 kHz gives period*kp = 1.25
	worst := trials[1]
	if !math.IsInf(worst.Score, 1) || !errors.Is(worst.Err, estimator.ErrTimingViolation) {
		t.Errorf("worst trial score %v err %v", worst.Score, worst.Err)
	}
}

func TestSweep(t *testing.T) {
	base := shortPreset(t, "nominal", 0.3)
	psi := base.Estimator.PMFluxLinkage

	points, err := Sweep(context.Background(), base, "estimator.pm_flux_linkage", 0.8*psi, 1.2*psi, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(points) != 3 {
		t.Fatalf("expected 3 points, got %d", len(points))
	}
	if math.Abs(points[1].Value-psi) > 1e-12 {
		t.Errorf("middle point %v, want %v", points[1].Value, psi)
	}
	for _, p := range points {
		if p.Err != nil {
			t.Errorf("value %v failed: %v", p.Value, p.Err)
		}
	}
	// the observer pulls |eta| toward its own psi, not the plant's
	if points[0].Metrics["flux_ratio"] >= points[2].Metrics["flux_ratio"] {
		t.Errorf("flux ratio did not follow psi: %v vs %v",
			points[0].Metrics["flux_ratio"], points[2].Metrics["flux_ratio"])
	}

	if _, err := Sweep(context.Background(), base, "estimator.observer_gain", 0, 1, 1); err == nil {
		t.Error("expected error for a single point sweep")
	}
}

func TestMonteCarlo(t *testing.T) {
	base := shortPreset(t, "noisy", 0.2)

	summary, err := MonteCarlo(context.Background(), base, 3, "position_rms")
	if err != nil {
		t.Fatal(err)
	}
	if len(summary.Values) != 3 {
		t.Fatalf("expected 3 values, got %d", len(summary.Values))
	}
	if summary.Min > summary.Mean || summary.Mean > summary.Max {
		t.Errorf("summary out of order: %+v", summary)
	}
	if summary.Values[0] == summary.Values[1] {
		t.Error("seeds produced identical runs")
	}

	if _, err := MonteCarlo(context.Background(), base, 0, "position_rms"); err == nil {
		t.Error("expected error for zero trials")
	}
	if _, err := MonteCarlo(context.Background(), base, 1, "nope"); err == nil {
		t.Error("expected unknown metric error")
	}
}

func TestScenario(t *testing.T) {
	dir := t.TempDir()

	custom := config.DefaultConfig()
	custom.Name = "custom"
	custom.Duration = 0.05
	if err := config.Save(filepath.Join(dir, "custom.yaml"), custom); err != nil {
		t.Fatal(err)
	}

	script := `name: smoke
description: three short runs
steps:
  - preset: nominal
    duration: 0.05
    save: true
  - name: tuned
    preset: slow
    duration: 0.05
    seed: 7
    params:
      estimator.pll_bandwidth: 800
  - config: custom.yaml
`
	path := filepath.Join(dir, "scenario.yaml")
	if err := os.WriteFile(path, []byte(script), 0644); err != nil {
		t.Fatal(err)
	}

	sc, err := LoadScenario(path)
	if err != nil {
		t.Fatal(err)
	}
	if sc.Name != "smoke" || len(sc.Steps) != 3 {
		t.Fatalf("parsed %+v", sc)
	}

	store := storage.New(filepath.Join(dir, "runs"))
	var progress bytes.Buffer
	results, err := RunScenario(context.Background(), sc, store, &progress)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	if results[0].RunID == "" || results[1].RunID != "" {
		t.Errorf("only the first step should be saved: %q %q", results[0].RunID, results[1].RunID)
	}
	if results[1].Step != "tuned" || results[2].Step != "custom" {
		t.Errorf("step names %q %q", results[1].Step, results[2].Step)
	}
	if n := len(results[0].Result.Samples); n != 400 {
		t.Errorf("step 1 ran %d ticks", n)
	}
	if !strings.Contains(progress.String(), "Running step 3/3: custom") {
		t.Errorf("progress output %q", progress.String())
	}

	runs, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].Name != "nominal" {
		t.Errorf("stored runs %+v", runs)
	}
}

func TestScenarioErrors(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.yaml")
	os.WriteFile(empty, []byte("name: nothing\n"), 0644)
	if _, err := LoadScenario(empty); err == nil {
		t.Error("expected error for a scenario without steps")
	}

	bad := filepath.Join(dir, "bad.yaml")
	os.WriteFile(bad, []byte("steps:\n  - preset: warp\n"), 0644)
	sc, err := LoadScenario(bad)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := RunScenario(context.Background(), sc, nil, &bytes.Buffer{}); err == nil {
		t.Error("expected unknown preset error")
	}
}
