package main

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/guptarohit/asciigraph"
	"github.com/joho/godotenv"
	"github.com/pkg/browser"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/san-kum/sensorless/internal/analysis"
	"github.com/san-kum/sensorless/internal/config"
	"github.com/san-kum/sensorless/internal/experiment"
	"github.com/san-kum/sensorless/internal/export"
	"github.com/san-kum/sensorless/internal/metrics"
	"github.com/san-kum/sensorless/internal/monitor"
	"github.com/san-kum/sensorless/internal/recorder"
	"github.com/san-kum/sensorless/internal/sim"
	"github.com/san-kum/sensorless/internal/storage"
	"github.com/san-kum/sensorless/internal/viz"
)

var (
	dataDir    string
	configFile string
	preset     string
	duration   float64
	settle     float64
	seed       int64
	integrator string
	drive      string
	mode       string
	theta0     float64
	substeps   int
	speed      float64
	current    float64
	bandwidth  float64
	gamma      float64
	noise      float64
	busVoltage float64
	overrides  map[string]string
	// Tick trace database
	recordDB string
	// Plot output
	svgOut string
	// Tuning grid
	bandwidths []float64
	gains      []float64
	top        int
	// Mismatch sweep
	sweepParam string
	sweepFrom  float64
	sweepTo    float64
	sweepN     int
	// Monte Carlo
	trials int
	// HTTP monitor
	port        int
	rate        float64
	openBrowser bool
)

func main() {
	log.SetFlags(log.Ltime)
	log.SetPrefix("sensorless: ")

	// a .env file may set SENSORLESS_DATA
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("ignoring .env: %v", err)
	}
	defaultData := os.Getenv("SENSORLESS_DATA")
	if defaultData == "" {
		defaultData = ".sensorless"
	}

	rootCmd := &cobra.Command{
		Use:           "sensorless",
		Short:         "sensorless PMSM rotor estimator lab",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", defaultData, "data directory")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run the estimator against the simulated motor",
		Args:  cobra.NoArgs,
		RunE:  runSimulation,
	}
	addRunFlags(runCmd)
	runCmd.Flags().StringVar(&recordDB, "record", "", "also trace every tick to this sqlite database (\"auto\" picks a name)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot true vs estimated angle",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringVar(&svgOut, "svg", "", "write the plot to an svg file instead")

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export run metadata and samples as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return storage.New(dataDir).Export(os.Stdout, args[0], "json")
		},
	}

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "export run samples as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return storage.New(dataDir).Export(os.Stdout, args[0], "csv")
		},
	}

	analyzeCmd := &cobra.Command{
		Use:   "analyze [run_id]",
		Short: "error statistics, error spectrum and flux locus",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeRun,
	}

	liveCmd := &cobra.Command{
		Use:   "live",
		Short: "run with live terminal visualization",
		Args:  cobra.NoArgs,
		RunE:  runLive,
	}
	addRunFlags(liveCmd)

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list available presets",
		RunE:  listPresets,
	}

	tuneCmd := &cobra.Command{
		Use:   "tune",
		Short: "grid search PLL bandwidth against observer gain",
		Args:  cobra.NoArgs,
		RunE:  tuneEstimator,
	}
	addRunFlags(tuneCmd)
	tuneCmd.Flags().Float64SliceVar(&bandwidths, "bandwidths", []float64{250, 500, 1000, 2000, 3000}, "PLL bandwidths [rad/s]")
	tuneCmd.Flags().Float64SliceVar(&gains, "gains", []float64{0, 250, 1000, 4000}, "observer gains")
	tuneCmd.Flags().IntVar(&top, "top", 10, "rows to show")

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "sweep one parameter, e.g. an estimator constant against a fixed motor",
		Args:  cobra.NoArgs,
		RunE:  sweepParameter,
	}
	addRunFlags(sweepCmd)
	sweepCmd.Flags().StringVar(&sweepParam, "param", "estimator.phase_resistance", "parameter to sweep (component.name)")
	sweepCmd.Flags().Float64Var(&sweepFrom, "from", 0.025, "first value")
	sweepCmd.Flags().Float64Var(&sweepTo, "to", 0.1, "last value")
	sweepCmd.Flags().IntVar(&sweepN, "points", 7, "number of points")

	monteCarloCmd := &cobra.Command{
		Use:   "montecarlo",
		Short: "repeat a run over sensor noise seeds",
		Args:  cobra.NoArgs,
		RunE:  runMonteCarlo,
	}
	addRunFlags(monteCarloCmd)
	monteCarloCmd.Flags().IntVar(&trials, "trials", 16, "number of seeds")

	scenarioCmd := &cobra.Command{
		Use:   "scenario [file]",
		Short: "run a scripted sequence of runs",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}

	monitorCmd := &cobra.Command{
		Use:   "monitor",
		Short: "run while serving progress and estimator state over HTTP",
		Args:  cobra.NoArgs,
		RunE:  runMonitor,
	}
	addRunFlags(monitorCmd)
	monitorCmd.Flags().IntVar(&port, "port", 0, "HTTP port, 0 picks a free one")
	monitorCmd.Flags().Float64Var(&rate, "rate", 2000, "ticks per second, 0 runs unthrottled")
	monitorCmd.Flags().BoolVar(&openBrowser, "open", false, "open the status page in a browser")

	rootCmd.AddCommand(runCmd, listCmd, plotCmd, exportJSONCmd, exportCSVCmd, analyzeCmd,
		liveCmd, monitorCmd, presetsCmd, tuneCmd, sweepCmd, monteCarloCmd, scenarioCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		atexit.Exit(1)
	}
	atexit.Exit(0)
}

func addRunFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&configFile, "config", "", "config file path (yaml)")
	f.StringVar(&preset, "preset", "", "start from a preset (see presets)")
	f.Float64Var(&duration, "time", config.DefaultDuration, "duration [s]")
	f.Float64Var(&settle, "settle", config.DefaultSettle, "metrics ignore samples before this time [s]")
	f.Int64Var(&seed, "seed", 0, "sensor noise seed")
	f.StringVar(&integrator, "integrator", "rk4", "plant integrator (euler, rk4, rk45)")
	f.StringVar(&drive, "drive", "feedforward", "drive (feedforward, vf, none)")
	f.StringVar(&mode, "mode", config.ModeDyno, "dyno (imposed speed) or free (mechanical model)")
	f.Float64Var(&theta0, "theta0", 0, "initial electrical angle [rad]")
	f.IntVar(&substeps, "substeps", 1, "plant integration steps per tick")
	f.Float64Var(&speed, "speed", config.DefaultSpeed, "dyno speed [rad/s electrical]")
	f.Float64Var(&current, "current", config.DefaultCurrent, "feed-forward current amplitude [A]")
	f.Float64Var(&bandwidth, "bandwidth", 0, "PLL bandwidth [rad/s]")
	f.Float64Var(&gamma, "gamma", 0, "observer gain")
	f.Float64Var(&noise, "noise", 0, "current sensor noise std [A]")
	f.Float64Var(&busVoltage, "vbus", config.DefaultBusVoltage, "inverter bus voltage [V]")
	f.StringToStringVar(&overrides, "set", nil, "parameter overrides, e.g. --set motor.resistance=0.08")
}

// resolveConfig layers preset, config file and flags, in increasing priority.
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if preset != "" {
		cfg = config.GetPreset(preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
	}

	if configFile != "" {
		loaded, err := config.LoadWith(configFile, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	f := cmd.Flags()
	if f.Changed("time") {
		cfg.Duration = duration
	}
	if f.Changed("settle") {
		cfg.Settle = settle
	}
	if f.Changed("seed") {
		cfg.Seed = seed
	}
	if f.Changed("integrator") {
		cfg.Integrator = integrator
	}
	if f.Changed("drive") {
		cfg.Drive = drive
	}
	if f.Changed("mode") {
		cfg.Mode = mode
	}
	if f.Changed("theta0") {
		cfg.Theta0 = theta0
	}
	if f.Changed("substeps") {
		cfg.Substeps = substeps
	}
	if f.Changed("speed") {
		cfg.Profile.Speed = speed
		cfg.DriveCfg.Target = speed
	}
	if f.Changed("current") {
		cfg.DriveCfg.Current = current
	}
	if f.Changed("bandwidth") {
		cfg.Estimator.PLLBandwidth = bandwidth
	}
	if f.Changed("gamma") {
		cfg.Estimator.ObserverGain = gamma
	}
	if f.Changed("noise") {
		cfg.Sensor.NoiseStd = noise
	}
	if f.Changed("vbus") {
		cfg.Inverter.BusVoltage = busVoltage
	}
	if cfg.Name == "" {
		cfg.Name = "run"
	}
	return cfg, nil
}

// newExperiment resolves the config and applies --set overrides.
func newExperiment(cmd *cobra.Command) (*experiment.Experiment, error) {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return nil, err
	}

	exp := experiment.New(cfg)
	for name, raw := range overrides {
		val, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("--set %s: %w", name, err)
		}
		if err := exp.SetParam(name, val); err != nil {
			return nil, err
		}
	}
	if err := exp.Setup(); err != nil {
		return nil, err
	}
	return exp, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func runSimulation(cmd *cobra.Command, args []string) (err error) {
	exp, err := newExperiment(cmd)
	if err != nil {
		return err
	}
	cfg := exp.Config()

	if recordDB != "" {
		path := recordDB
		if path == "auto" {
			path = ""
		}
		rec, err := recorder.New(path)
		if err != nil {
			return err
		}
		defer func() {
			// Close reports the first insert that failed during the run
			if cerr := rec.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("record %s: %w", rec.Path(), cerr)
			}
		}()
		if err := rec.StartRun(cfg.Name); err != nil {
			return err
		}
		exp.Simulator().AddObserver(rec)
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Printf("running %s: %s drive, %s mode, %.2fs...\n", cfg.Name, cfg.Drive, cfg.Mode, cfg.Duration)
	start := time.Now()

	result, err := exp.Run(ctx)
	if err != nil {
		if result != nil && len(result.Samples) > 0 {
			fmt.Printf("stopped after %d ticks\n", len(result.Samples))
		}
		return err
	}
	elapsed := time.Since(start)

	runID, err := st.Save(exp.Metadata(), result)
	if err != nil {
		return err
	}

	fmt.Printf("completed in %v\n", elapsed)
	fmt.Printf("run id: %s\n", runID)
	fmt.Printf("ticks: %d\n", result.Ticks)
	printMetrics(result.Metrics)
	return nil
}

func printMetrics(m map[string]float64) {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("\nmetrics:")
	for _, name := range names {
		val := m[name]
		if name == "position_rms" {
			fmt.Printf("  %s: %.6f (%.3f deg)\n", name, val, val*180/math.Pi)
			continue
		}
		fmt.Printf("  %s: %.6f\n", name, val)
	}
}

func listRuns(cmd *cobra.Command, args []string) error {
	runs, err := storage.New(dataDir).List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIME\tDURATION\tTICKS\tINTEG\tDRIVE\tMODE\tPOS_RMS")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%.2fs\t%d\t%s\t%s\t%s\t%.3f°\n",
			run.ID,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Duration,
			run.Ticks,
			run.Integrator,
			run.Drive,
			run.Mode,
			run.Metrics["position_rms"]*180/math.Pi,
		)
	}

	return w.Flush()
}

func loadRun(runID string) (*storage.RunMetadata, []sim.Sample, error) {
	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return nil, nil, err
	}

	samples, err := st.LoadSamples(runID)
	if err != nil {
		return nil, nil, err
	}
	if len(samples) == 0 {
		return nil, nil, fmt.Errorf("no data in run %s", runID)
	}
	return meta, samples, nil
}

// decimate keeps at most n evenly spaced values.
func decimate(x []float64, n int) []float64 {
	if len(x) <= n {
		return x
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = x[i*len(x)/n]
	}
	return out
}

func plotRun(cmd *cobra.Command, args []string) error {
	meta, samples, err := loadRun(args[0])
	if err != nil {
		return err
	}

	if svgOut != "" {
		f, err := os.Create(svgOut)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := export.WriteTrackingSVG(f, samples, meta.ID); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", svgOut)
		return nil
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("samples: %d\n\n", len(samples))

	// the last 20 ms of angle so individual turns are visible
	tail := samples[max(0, len(samples)-int(0.02/meta.Period)):]
	truth := make([]float64, len(tail))
	est := make([]float64, len(tail))
	for i, s := range tail {
		truth[i] = s.TrueTheta
		est[i] = s.Position
	}
	fmt.Println(asciigraph.PlotMany([][]float64{decimate(truth, 160), decimate(est, 160)},
		asciigraph.Height(10),
		asciigraph.Width(80),
		asciigraph.SeriesColors(asciigraph.Green, asciigraph.Magenta),
		asciigraph.Caption("true (green) vs estimated (magenta) angle, last 20 ms [rad]"),
	))
	fmt.Println()

	posErr, velErr := analysis.TrackingErrors(samples)
	for i := range posErr {
		posErr[i] *= 180 / math.Pi
	}
	fmt.Println(asciigraph.Plot(decimate(posErr, 400),
		asciigraph.Height(10),
		asciigraph.Width(80),
		asciigraph.Caption("angle error [deg]"),
	))
	fmt.Println()

	fmt.Println(asciigraph.Plot(decimate(velErr, 400),
		asciigraph.Height(8),
		asciigraph.Width(80),
		asciigraph.Caption("velocity error [rad/s]"),
	))
	return nil
}

func analyzeRun(cmd *cobra.Command, args []string) error {
	meta, samples, err := loadRun(args[0])
	if err != nil {
		return err
	}

	sum := analysis.Summarize(samples, meta.Settle, metrics.LockBand)
	const toDeg = 180 / math.Pi

	fmt.Printf("analysis: %s\n", meta.ID)
	fmt.Printf("samples after %.3fs: %d\n\n", sum.Settle, sum.Samples)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\tMEAN\tSTDDEV\tRMS\tMAX")
	fmt.Fprintf(w, "angle [deg]\t%.4f\t%.4f\t%.4f\t%.4f\n",
		sum.Position.Mean*toDeg, sum.Position.StdDev*toDeg, sum.Position.RMS*toDeg, sum.Position.MaxAbs*toDeg)
	fmt.Fprintf(w, "speed [rad/s]\t%.4f\t%.4f\t%.4f\t%.4f\n",
		sum.Velocity.Mean, sum.Velocity.StdDev, sum.Velocity.RMS, sum.Velocity.MaxAbs)
	w.Flush()

	if sum.LockTime >= 0 {
		fmt.Printf("\nlocked within %.0f° at %.4fs\n", metrics.LockBand*toDeg, sum.LockTime)
	} else {
		fmt.Printf("\nnever locked within %.0f°\n", metrics.LockBand*toDeg)
	}

	bins := analysis.ErrorSpectrum(samples, meta.Period, meta.Settle)
	if len(bins) >= 16 {
		power := make([]float64, len(bins)/4)
		for i := range power {
			power[i] = bins[i].Power
		}
		fmt.Println()
		fmt.Println(asciigraph.Plot(decimate(power, 200),
			asciigraph.Height(12),
			asciigraph.Width(80),
			asciigraph.Caption(fmt.Sprintf("angle error power spectrum, 0 to %.0f Hz", bins[len(power)].Freq)),
		))
		peak := analysis.Peak(bins)
		fmt.Printf("\ndominant error frequency: %.1f Hz (%.3e rad^2)\n", peak.Freq, peak.Power)
	}

	locus := analysis.NewFluxLocus(samples, meta.Flux, max(1, len(samples)/2000))
	fmt.Println("\nflux locus (eta_alpha, eta_beta):")
	fmt.Println(locus.ASCII(41, 21))
	return nil
}

func runLive(cmd *cobra.Command, args []string) error {
	exp, err := newExperiment(cmd)
	if err != nil {
		return err
	}
	cfg := exp.Config()

	// the model shows estimator faults; log lines would tear the alt screen
	exp.Simulator().Estimator().SetReporter(nil)

	m, err := viz.NewModel(exp.Simulator(), experiment.SimConfig(cfg), cfg.Name)
	if err != nil {
		return err
	}

	p := tea.NewProgram(m, tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return err
	}
	if fm, ok := final.(viz.Model); ok && fm.Err() != nil {
		return fm.Err()
	}
	return nil
}

func runMonitor(cmd *cobra.Command, args []string) error {
	exp, err := newExperiment(cmd)
	if err != nil {
		return err
	}
	cfg := exp.Config()

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	m := monitor.New(exp.Simulator(), experiment.SimConfig(cfg), cfg.Name).WithStore(st).WithRate(rate)
	if port != 0 {
		m.WithPortNumber(port)
	}
	url, err := m.StartServer()
	if err != nil {
		return err
	}
	defer m.Close()

	if openBrowser {
		if err := browser.OpenURL(url + "/api/status"); err != nil {
			log.Printf("could not open browser: %v", err)
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	result, err := m.Run(ctx)
	if err != nil {
		return err
	}

	runID, err := st.Save(exp.Metadata(), result)
	if err != nil {
		return err
	}
	fmt.Printf("run id: %s\n", runID)
	printMetrics(result.Metrics)

	fmt.Fprintln(os.Stderr, "run finished; still serving, interrupt to exit")
	<-ctx.Done()
	return nil
}

func listPresets(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tMODE\tDRIVE\tPROFILE\tSPEED\tDURATION\tBANDWIDTH\tTS*KP")

	for _, name := range config.ListPresets() {
		p := config.GetPreset(name)
		kp := 2 * p.Estimator.PLLBandwidth
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.0f\t%.2fs\t%.0f\t%.3f\n",
			name, p.Mode, p.Drive, p.Profile.Kind, p.Profile.Speed, p.Duration,
			p.Estimator.PLLBandwidth, p.Estimator.SamplePeriod*kp)
	}
	return w.Flush()
}

func tuneEstimator(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Printf("tuning %s: %d bandwidths x %d observer gains\n\n", cfg.Name, len(bandwidths), len(gains))
	start := time.Now()
	results, err := experiment.Tune(ctx, cfg, bandwidths, gains)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "BANDWIDTH\tGAIN\tPOS_RMS\tVEL_REL\tLOCK_TIME\tNOTE")
	for i, r := range results {
		if i >= top {
			break
		}
		note := ""
		if r.Err != nil {
			note = r.Err.Error()
		}
		fmt.Fprintf(w, "%.0f\t%.0f\t%.3f°\t%.4f\t%.4f\t%s\n",
			r.Params["estimator.pll_bandwidth"], r.Params["estimator.observer_gain"],
			r.Score*180/math.Pi, r.Metrics["velocity_rel"], r.Metrics["lock_time"], note)
	}
	w.Flush()

	fmt.Printf("\n%d runs in %v\n", len(results), time.Since(start))
	return nil
}

func sweepParameter(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	points, err := experiment.Sweep(ctx, cfg, sweepParam, sweepFrom, sweepTo, sweepN)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\tPOS_RMS\tVEL_REL\tFLUX_RATIO\tNOTE\n", strings.ToUpper(sweepParam))
	rms := make([]float64, 0, len(points))
	for _, p := range points {
		if p.Err != nil {
			fmt.Fprintf(w, "%g\t-\t-\t-\t%v\n", p.Value, p.Err)
			continue
		}
		rms = append(rms, p.Metrics["position_rms"]*180/math.Pi)
		fmt.Fprintf(w, "%g\t%.3f°\t%.4f\t%.3f\t\n",
			p.Value, p.Metrics["position_rms"]*180/math.Pi, p.Metrics["velocity_rel"], p.Metrics["flux_ratio"])
	}
	w.Flush()

	if len(rms) > 1 {
		fmt.Println()
		fmt.Println(asciigraph.Plot(rms,
			asciigraph.Height(8),
			asciigraph.Width(60),
			asciigraph.Caption("position rms [deg] across the sweep"),
		))
	}
	return nil
}

func runMonteCarlo(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Sensor.NoiseStd == 0 {
		fmt.Println("warning: sensor noise is zero, every trial will be identical")
	}

	ctx, cancel := signalContext()
	defer cancel()

	sum, err := experiment.MonteCarlo(ctx, cfg, trials, "position_rms")
	if err != nil {
		return err
	}

	const toDeg = 180 / math.Pi
	fmt.Printf("%d trials, seeds %d..%d\n", trials, cfg.Seed, cfg.Seed+int64(trials)-1)
	fmt.Printf("position rms: mean %.3f°  std %.3f°  min %.3f°  max %.3f°\n",
		sum.Mean*toDeg, sum.StdDev*toDeg, sum.Min*toDeg, sum.Max*toDeg)
	return nil
}

func runScenario(cmd *cobra.Command, args []string) error {
	scenario, err := experiment.LoadScenario(args[0])
	if err != nil {
		return err
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Printf("scenario: %s\n", scenario.Name)
	if scenario.Description != "" {
		fmt.Printf("%s\n", scenario.Description)
	}
	fmt.Println()

	results, err := experiment.RunScenario(ctx, scenario, st, os.Stdout)
	for _, r := range results {
		id := r.RunID
		if id == "" {
			id = "(not saved)"
		}
		fmt.Printf("  %-16s %-32s pos_rms %.3f°  lock %.4fs\n",
			r.Step, id, r.Result.Metrics["position_rms"]*180/math.Pi, r.Result.Metrics["lock_time"])
	}
	return err
}
