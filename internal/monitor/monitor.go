// Package monitor serves a running estimator over HTTP so it can be watched
// and paused from outside the process.
package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"strings"
	"sync"
	"time"

	// Enable profiling
	_ "net/http/pprof"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/san-kum/sensorless/internal/estimator"
	"github.com/san-kum/sensorless/internal/metrics"
	"github.com/san-kum/sensorless/internal/sim"
	"github.com/san-kum/sensorless/internal/storage"
)

const pausePoll = 10 * time.Millisecond

// Monitor steps a simulator and exposes its progress, the estimator state
// and the run store through a small JSON API.
type Monitor struct {
	mu         sync.Mutex
	sim        *sim.Simulator
	cfg        sim.Config
	name       string
	store      *storage.Store
	portNumber int
	rate       float64 // ticks per second, 0 runs unthrottled

	paused   bool
	done     bool
	ticks    int
	total    int
	last     sim.Sample
	err      error
	progress *ProgressBar

	server *http.Server
}

// New creates a monitor for s. The run is not started until Run.
func New(s *sim.Simulator, cfg sim.Config, name string) *Monitor {
	return &Monitor{
		sim:  s,
		cfg:  cfg,
		name: name,
	}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithStore makes the stored runs browsable.
func (m *Monitor) WithStore(st *storage.Store) *Monitor {
	m.store = st
	return m
}

// WithRate throttles the run to ticksPerSecond. Zero or less runs as fast
// as possible.
func (m *Monitor) WithRate(ticksPerSecond float64) *Monitor {
	m.rate = max(0, ticksPerSecond)
	return m
}

func (m *Monitor) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = true
}

func (m *Monitor) Continue() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = false
}

func (m *Monitor) Paused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

// Run starts the simulator and ticks it to the end of the configured
// duration, honouring pauses. The partial result is returned with the error
// when the run faults or ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) (*sim.Result, error) {
	m.mu.Lock()
	if err := m.sim.Start(m.cfg); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	total := int(math.Round(m.cfg.Duration / m.sim.Period()))
	m.total = total
	m.ticks = 0
	m.done = false
	m.err = nil
	m.last = sim.Sample{}
	m.progress = NewProgressBar(m.name, uint64(total))
	m.mu.Unlock()

	result := &sim.Result{
		Samples: make([]sim.Sample, 0, total),
		Metrics: make(map[string]float64),
		Period:  m.sim.Period(),
	}

	batch := 1
	if m.rate > 0 {
		batch = max(1, int(m.rate/100))
	}

	for result.Ticks < total {
		if err := ctx.Err(); err != nil {
			return result, m.finish(result, err)
		}
		if m.Paused() {
			time.Sleep(pausePoll)
			continue
		}

		m.mu.Lock()
		s, err := m.sim.Tick()
		if err == nil {
			m.ticks++
			m.last = s
		}
		m.mu.Unlock()
		if err != nil {
			return result, m.finish(result, err)
		}

		m.progress.IncrementFinished(1)
		result.Samples = append(result.Samples, s)
		result.Ticks++

		if m.rate > 0 && result.Ticks%batch == 0 {
			time.Sleep(time.Duration(float64(batch) / m.rate * float64(time.Second)))
		}
	}

	return result, m.finish(result, nil)
}

func (m *Monitor) finish(result *sim.Result, err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	result.Metrics = m.sim.Metrics()
	m.done = true
	m.err = err
	return err
}

// Status is the monitor's view of the run.
type Status struct {
	Name          string     `json:"name"`
	Tick          int        `json:"tick"`
	Total         int        `json:"total"`
	Time          float64    `json:"time"`
	Paused        bool       `json:"paused"`
	Done          bool       `json:"done"`
	Error         string     `json:"error,omitempty"`
	Locked        bool       `json:"locked"`
	PositionError float64    `json:"position_error"` // [rad]
	Sample        sim.Sample `json:"sample"`
}

func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{
		Name:   m.name,
		Tick:   m.ticks,
		Total:  m.total,
		Time:   m.last.T,
		Paused: m.paused,
		Done:   m.done,
		Sample: m.last,
	}
	if m.err != nil {
		st.Error = m.err.Error()
	}
	if m.ticks > 0 {
		st.PositionError = m.last.PositionError()
		st.Locked = math.Abs(st.PositionError) < metrics.LockBand
	}
	return st
}

// estimatorView is what the estimator endpoints serialize.
type estimatorView struct {
	Config estimator.Config
	Gains  estimator.Gains
	State  estimator.Snapshot
}

func (m *Monitor) estimatorView() *estimatorView {
	m.mu.Lock()
	defer m.mu.Unlock()

	est := m.sim.Estimator()
	return &estimatorView{
		Config: est.Config(),
		Gains:  est.Gains(),
		State:  est.State(),
	}
}

// Handler routes the monitor API.
func (m *Monitor) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/pause", m.pause)
	r.HandleFunc("/api/continue", m.resume)
	r.HandleFunc("/api/now", m.now)
	r.HandleFunc("/api/status", m.status)
	r.HandleFunc("/api/metrics", m.listMetrics)
	r.HandleFunc("/api/estimator", m.estimatorDetails)
	r.HandleFunc("/api/field/{path}", m.estimatorField)
	r.HandleFunc("/api/progress", m.listProgress)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.HandleFunc("/api/runs", m.listRuns)
	r.HandleFunc("/api/runs/{id}", m.exportRun)
	r.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)

	return r
}

// StartServer serves the API in the background and returns its URL.
func (m *Monitor) StartServer() (string, error) {
	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("http://localhost:%d", listener.Addr().(*net.TCPAddr).Port)
	fmt.Fprintf(os.Stderr, "Monitoring estimator with %s\n", url)

	m.server = &http.Server{Handler: m.Handler()}
	go func() {
		if err := m.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "monitor: %v\n", err)
		}
	}()

	return url, nil
}

// Close stops the server started by StartServer.
func (m *Monitor) Close() error {
	if m.server == nil {
		return nil
	}
	return m.server.Close()
}

func writeJSON(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

func (m *Monitor) pause(w http.ResponseWriter, _ *http.Request) {
	m.Pause()
	w.WriteHeader(http.StatusOK)
}

func (m *Monitor) resume(w http.ResponseWriter, _ *http.Request) {
	m.Continue()
	w.WriteHeader(http.StatusOK)
}

func (m *Monitor) now(w http.ResponseWriter, _ *http.Request) {
	st := m.Status()
	fmt.Fprintf(w, "{\"tick\":%d,\"now\":%.10f}", st.Tick, st.Time)
}

func (m *Monitor) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, m.Status())
}

func (m *Monitor) listMetrics(w http.ResponseWriter, _ *http.Request) {
	m.mu.Lock()
	values := m.sim.Metrics()
	m.mu.Unlock()

	writeJSON(w, values)
}

func (m *Monitor) estimatorDetails(w http.ResponseWriter, _ *http.Request) {
	serializer := goseth.NewSerializer()
	serializer.SetRoot(m.estimatorView())
	serializer.SetMaxDepth(2)

	var buf bytes.Buffer
	if err := serializer.Serialize(&buf); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_, _ = w.Write(buf.Bytes())
}

func (m *Monitor) estimatorField(w http.ResponseWriter, r *http.Request) {
	fields := strings.Split(mux.Vars(r)["path"], ".")

	serializer := goseth.NewSerializer()
	serializer.SetRoot(m.estimatorView())
	serializer.SetMaxDepth(1)

	if err := serializer.SetEntryPoint(fields); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var buf bytes.Buffer
	if err := serializer.Serialize(&buf); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	_, _ = w.Write(buf.Bytes())
}

func (m *Monitor) listProgress(w http.ResponseWriter, _ *http.Request) {
	m.mu.Lock()
	bar := m.progress
	m.mu.Unlock()

	bars := []progressRsp{}
	if bar != nil {
		bars = append(bars, bar.snapshot())
	}
	writeJSON(w, bars)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	memory, err := proc.MemoryInfo()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memory.RSS,
	})
}

// collectProfile samples the CPU for one second.
func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	if err := pprof.StartCPUProfile(buf); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	time.Sleep(time.Second)
	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, prof)
}

func (m *Monitor) listRuns(w http.ResponseWriter, _ *http.Request) {
	if m.store == nil {
		http.Error(w, "no run store", http.StatusNotFound)
		return
	}

	runs, err := m.store.List()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, runs)
}

func (m *Monitor) exportRun(w http.ResponseWriter, r *http.Request) {
	if m.store == nil {
		http.Error(w, "no run store", http.StatusNotFound)
		return
	}

	var buf bytes.Buffer
	err := m.store.Export(&buf, mux.Vars(r)["id"], "json")
	if errors.Is(err, storage.ErrRunNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(buf.Bytes())
}
