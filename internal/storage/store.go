package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/fatih/structs"
	"github.com/rs/xid"

	"github.com/san-kum/sensorless/internal/sim"
)

const (
	metadataFile = "metadata.json"
	samplesFile  = "samples.csv"
)

var ErrRunNotFound = errors.New("storage: run not found")

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

func (s *Store) Dir() string { return s.baseDir }

type RunMetadata struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	Timestamp  time.Time          `json:"timestamp"`
	Seed       int64              `json:"seed"`
	Period     float64            `json:"period"`
	Duration   float64            `json:"duration"`
	Settle     float64            `json:"settle"`
	Ticks      int                `json:"ticks"`
	Integrator string             `json:"integrator"`
	Drive      string             `json:"drive"`
	Mode       string             `json:"mode"`
	Bandwidth  float64            `json:"pll_bandwidth"`
	Gamma      float64            `json:"observer_gain"`
	Flux       float64            `json:"flux_linkage"`
	Metrics    map[string]float64 `json:"metrics"`
}

// Save writes meta and the sampled trace under a fresh run directory and
// returns the run ID. ID, Timestamp, Period and Ticks are filled in from the
// result.
func (s *Store) Save(meta RunMetadata, result *sim.Result) (string, error) {
	if meta.Name == "" {
		meta.Name = "run"
	}
	meta.ID = meta.Name + "_" + xid.New().String()
	meta.Timestamp = time.Now()
	meta.Period = result.Period
	meta.Ticks = result.Ticks
	meta.Metrics = result.Metrics

	runDir := filepath.Join(s.baseDir, meta.ID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}
	if err := writeRun(runDir, meta, result.Samples); err != nil {
		os.RemoveAll(runDir)
		return "", err
	}
	return meta.ID, nil
}

// writeRun fills a run directory. Any error leaves it for the caller to
// remove.
func writeRun(runDir string, meta RunMetadata, samples []sim.Sample) error {
	metaFile, err := os.Create(filepath.Join(runDir, metadataFile))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		metaFile.Close()
		return fmt.Errorf("run %s metadata: %w", meta.ID, err)
	}
	if err := metaFile.Close(); err != nil {
		return err
	}

	csvFile, err := os.Create(filepath.Join(runDir, samplesFile))
	if err != nil {
		return err
	}
	if err := WriteCSV(csvFile, samples); err != nil {
		csvFile.Close()
		return fmt.Errorf("run %s samples: %w", meta.ID, err)
	}
	return csvFile.Close()
}

// List returns every readable run, oldest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].Timestamp.Before(runs[j].Timestamp)
	})
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parse %s metadata: %w", runID, err)
	}
	return &meta, nil
}

func (s *Store) LoadSamples(runID string) ([]sim.Sample, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, samplesFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, err
	}
	defer file.Close()

	return ReadCSV(file)
}

// Columns lists the sample fields in CSV order, named by their structs tag.
func Columns() []string {
	fields := structs.New(sim.Sample{}).Fields()
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.Tag("structs")
	}
	return cols
}

func WriteCSV(w io.Writer, samples []sim.Sample) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(Columns()); err != nil {
		return err
	}

	for _, sample := range samples {
		fields := structs.New(sample).Fields()
		row := make([]string, len(fields))
		for i, f := range fields {
			row[i] = strconv.FormatFloat(f.Value().(float64), 'g', -1, 64)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// ReadCSV parses a trace written by WriteCSV. Columns are matched by name so
// traces with missing or extra columns still load.
func ReadCSV(r io.Reader) ([]sim.Sample, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return []sim.Sample{}, nil
	}

	header := records[0]
	samples := make([]sim.Sample, 0, len(records)-1)
	for line, record := range records[1:] {
		var sample sim.Sample
		byTag := make(map[string]*structs.Field)
		for _, f := range structs.New(&sample).Fields() {
			byTag[f.Tag("structs")] = f
		}

		for i, val := range record {
			if i >= len(header) {
				break
			}
			f, ok := byTag[header[i]]
			if !ok {
				continue
			}
			v, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %s: %w", line+2, header[i], err)
			}
			if err := f.Set(v); err != nil {
				return nil, err
			}
		}
		samples = append(samples, sample)
	}

	return samples, nil
}

type ExportData struct {
	RunMetadata
	Samples []sim.Sample `json:"samples"`
}

func ExportJSON(w io.Writer, meta RunMetadata, samples []sim.Sample) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(ExportData{RunMetadata: meta, Samples: samples})
}

// Export writes a stored run to w as JSON or CSV.
func (s *Store) Export(w io.Writer, runID, format string) error {
	samples, err := s.LoadSamples(runID)
	if err != nil {
		return err
	}

	switch format {
	case "json":
		meta, err := s.Load(runID)
		if err != nil {
			return err
		}
		return ExportJSON(w, *meta, samples)
	case "csv":
		return WriteCSV(w, samples)
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}
