// Package recorder traces every simulator tick into a SQLite database.
package recorder

import (
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/structs"
	// Pure Go SQLite driver registered as "sqlite".
	_ "github.com/glebarez/go-sqlite"
	"github.com/rs/xid"
	"github.com/tebeka/atexit"

	"github.com/san-kum/sensorless/internal/sim"
)

const (
	tableName        = "samples"
	defaultBatchSize = 10000
)

// Recorder is a sim.Observer that buffers samples and inserts them in
// batches, one transaction per batch. Rows are tagged with the current run
// name so one database can hold many runs.
type Recorder struct {
	*sql.DB

	path      string
	run       string
	columns   []string
	batchSize int
	pending   []sim.Sample
	err       error
}

// New opens (or creates) the database at path. An empty path creates a
// fresh "sensorless_trace_<xid>.sqlite3" in the working directory. Buffered
// samples are flushed at process exit.
func New(path string) (*Recorder, error) {
	if path == "" {
		path = "sensorless_trace_" + xid.New().String() + ".sqlite3"
		fmt.Fprintf(os.Stderr, "Trace is recorded in database: %s\n", path)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	r := &Recorder{
		DB:        db,
		path:      path,
		run:       xid.New().String(),
		columns:   columns(),
		batchSize: defaultBatchSize,
	}
	if err := r.createTable(); err != nil {
		db.Close()
		return nil, err
	}

	atexit.Register(func() { r.Flush() })
	return r, nil
}

func columns() []string {
	fields := structs.New(sim.Sample{}).Fields()
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.Tag("structs")
	}
	return cols
}

func (r *Recorder) createTable() error {
	defs := make([]string, 0, len(r.columns)+1)
	defs = append(defs, "run TEXT NOT NULL")
	for _, c := range r.columns {
		defs = append(defs, c+" REAL")
	}

	query := "CREATE TABLE IF NOT EXISTS " + tableName +
		" (\n\t" + strings.Join(defs, ",\n\t") + "\n);"
	if _, err := r.Exec(query); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	_, err := r.Exec("CREATE INDEX IF NOT EXISTS samples_run ON " + tableName + " (run, t)")
	return err
}

func (r *Recorder) Path() string { return r.path }
func (r *Recorder) Run() string  { return r.run }

// SetBatchSize sets how many samples are buffered before an insert.
func (r *Recorder) SetBatchSize(n int) {
	if n < 1 {
		n = 1
	}
	r.batchSize = n
}

// StartRun flushes what is buffered and tags subsequent rows with name.
func (r *Recorder) StartRun(name string) error {
	if err := r.Flush(); err != nil {
		return err
	}
	r.run = name
	return nil
}

func (r *Recorder) OnTick(s sim.Sample) {
	r.pending = append(r.pending, s)
	if len(r.pending) >= r.batchSize {
		r.Flush()
	}
}

// Err returns the first error hit while flushing from OnTick.
func (r *Recorder) Err() error { return r.err }

// Flush writes every buffered sample in one transaction.
func (r *Recorder) Flush() error {
	if len(r.pending) == 0 {
		return r.err
	}

	tx, err := r.Begin()
	if err != nil {
		return r.fail(err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(r.columns)+1), ", ")
	stmt, err := tx.Prepare("INSERT INTO " + tableName + " (run, " +
		strings.Join(r.columns, ", ") + ") VALUES (" + placeholders + ")")
	if err != nil {
		tx.Rollback()
		return r.fail(err)
	}
	defer stmt.Close()

	for _, s := range r.pending {
		args := append([]any{r.run}, structs.Values(s)...)
		if _, err := stmt.Exec(args...); err != nil {
			tx.Rollback()
			return r.fail(fmt.Errorf("insert t=%g: %w", s.T, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return r.fail(err)
	}
	r.pending = r.pending[:0]
	return r.err
}

func (r *Recorder) fail(err error) error {
	if r.err == nil {
		r.err = err
	}
	return err
}

// Close flushes and closes the database.
func (r *Recorder) Close() error {
	ferr := r.Flush()
	if err := r.DB.Close(); err != nil {
		return err
	}
	return ferr
}

// Runs lists the run names stored in the database.
func (r *Recorder) Runs() ([]string, error) {
	rows, err := r.Query("SELECT DISTINCT run FROM " + tableName + " ORDER BY run")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []string
	for rows.Next() {
		var run string
		if err := rows.Scan(&run); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Samples reads back the trace of one run in time order.
func (r *Recorder) Samples(run string) ([]sim.Sample, error) {
	rows, err := r.Query("SELECT "+strings.Join(r.columns, ", ")+" FROM "+tableName+
		" WHERE run = ? ORDER BY t", run)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []sim.Sample
	for rows.Next() {
		var s sim.Sample
		fields := structs.New(&s).Fields()
		dest := make([]any, len(fields))
		vals := make([]float64, len(fields))
		for i := range vals {
			dest[i] = &vals[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		for i, f := range fields {
			if err := f.Set(vals[i]); err != nil {
				return nil, err
			}
		}
		samples = append(samples, s)
	}
	return samples, rows.Err()
}
