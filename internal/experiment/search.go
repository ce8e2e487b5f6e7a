package experiment

import (
	"context"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/sensorless/internal/config"
	"github.com/san-kum/sensorless/internal/dynamo"
	"github.com/san-kum/sensorless/internal/sim"
)

// Trial is one point of a search: the overrides applied and what came out.
// A run that failed scores +Inf and keeps its error.
type Trial struct {
	Params  map[string]float64
	Metrics map[string]float64
	Score   float64
	Err     error
}

// GridSearch evaluates every combination of parameter values and ranks them
// by one metric, lowest first.
type GridSearch struct {
	paramNames []string
	ranges     [][]float64
	minChunk   int
}

func NewGridSearch(params []string, ranges [][]float64) *GridSearch {
	return &GridSearch{paramNames: params, ranges: ranges, minChunk: 1}
}

// Points expands the grid in row-major order, last parameter fastest.
func (g *GridSearch) Points() []map[string]float64 {
	points := []map[string]float64{{}}
	for depth, name := range g.paramNames {
		next := make([]map[string]float64, 0, len(points)*len(g.ranges[depth]))
		for _, p := range points {
			for _, val := range g.ranges[depth] {
				q := make(map[string]float64, len(p)+1)
				for k, v := range p {
					q[k] = v
				}
				q[name] = val
				next = append(next, q)
			}
		}
		points = next
	}
	return points
}

// Search runs base once per grid point in parallel and returns all trials
// sorted by metric, best first. It fails only on a malformed grid or a
// cancelled context.
func (g *GridSearch) Search(ctx context.Context, base *config.Config, metricName string) ([]Trial, error) {
	if len(g.paramNames) != len(g.ranges) {
		return nil, fmt.Errorf("%w: %d parameters, %d ranges", dynamo.ErrDimensionMismatch, len(g.paramNames), len(g.ranges))
	}

	points := g.Points()
	trials := make([]Trial, len(points))

	dynamo.ParallelFor(len(points), g.minChunk, func(start, end int) {
		for i := start; i < end; i++ {
			trials[i] = runTrial(ctx, base, points[i], metricName)
		}
	})

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(trials, func(i, j int) bool {
		return trials[i].Score < trials[j].Score
	})
	return trials, nil
}

func runTrial(ctx context.Context, base *config.Config, params map[string]float64, metricName string) Trial {
	trial := Trial{Params: params, Score: math.Inf(1)}

	exp := New(base)
	exp.SetLogger(quietLogger)
	for name, val := range params {
		if err := exp.SetParam(name, val); err != nil {
			trial.Err = err
			return trial
		}
	}
	if err := exp.Setup(); err != nil {
		trial.Err = err
		return trial
	}

	result, err := exp.Run(ctx)
	if err != nil {
		trial.Err = err
		return trial
	}

	trial.Metrics = result.Metrics
	val, ok := result.Metrics[metricName]
	switch {
	case !ok:
		trial.Err = fmt.Errorf("unknown metric %q", metricName)
	case math.IsNaN(val):
	default:
		trial.Score = val
	}
	return trial
}

// Tune searches PLL bandwidth against observer gain for base and scores by
// RMS position error.
func Tune(ctx context.Context, base *config.Config, bandwidths, gains []float64) ([]Trial, error) {
	g := NewGridSearch(
		[]string{"estimator.pll_bandwidth", "estimator.observer_gain"},
		[][]float64{bandwidths, gains},
	)
	return g.Search(ctx, base, "position_rms")
}

// SweepPoint is the outcome of one value of a one-parameter sweep.
type SweepPoint struct {
	Value   float64
	Metrics map[string]float64
	Err     error
}

// Sweep varies one parameter linearly over [lo, hi] in n points, in the
// manner of a bifurcation sweep; typically an estimator constant against a
// fixed plant to study parameter mismatch. Points are returned in value
// order.
func Sweep(ctx context.Context, base *config.Config, param string, lo, hi float64, n int) ([]SweepPoint, error) {
	if n < 2 {
		return nil, fmt.Errorf("%w: sweep needs at least 2 points, got %d", dynamo.ErrParameterBounds, n)
	}

	values := floats.Span(make([]float64, n), lo, hi)
	points := make([]SweepPoint, n)

	dynamo.ParallelFor(n, 1, func(start, end int) {
		for i := start; i < end; i++ {
			trial := runTrial(ctx, base, map[string]float64{param: values[i]}, "position_rms")
			points[i] = SweepPoint{Value: values[i], Metrics: trial.Metrics, Err: trial.Err}
		}
	})

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return points, nil
}

// MonteCarloSummary aggregates one metric over seeded repetitions.
type MonteCarloSummary struct {
	Metric string
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
	Values []float64
}

// MonteCarlo repeats base with trials consecutive sensor-noise seeds starting
// at base.Seed and summarises metricName.
func MonteCarlo(ctx context.Context, base *config.Config, trials int, metricName string) (*MonteCarloSummary, error) {
	if trials < 1 {
		return nil, fmt.Errorf("%w: trials must be >= 1, got %d", dynamo.ErrParameterBounds, trials)
	}

	build := func(seed int64) (*sim.Simulator, error) {
		cfg := base.Clone()
		cfg.Seed = seed
		exp := New(cfg)
		exp.SetLogger(quietLogger)
		if err := exp.Setup(); err != nil {
			return nil, err
		}
		return exp.Simulator(), nil
	}

	results, err := sim.NewEnsemble(build, trials, base.Seed).Run(ctx, SimConfig(base))
	if err != nil {
		return nil, err
	}

	values := make([]float64, len(results))
	for i, r := range results {
		v, ok := r.Metrics[metricName]
		if !ok {
			return nil, fmt.Errorf("unknown metric %q", metricName)
		}
		values[i] = v
	}

	mean, std := stat.MeanStdDev(values, nil)
	if trials == 1 {
		std = 0
	}
	return &MonteCarloSummary{
		Metric: metricName,
		Mean:   mean,
		StdDev: std,
		Min:    floats.Min(values),
		Max:    floats.Max(values),
		Values: values,
	}, nil
}
