package tracing

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/sarchlab/wavefreq/datarecording"
	"github.com/sarchlab/wavefreq/subproblem"
)

// Table names written by a DBTracer.
const (
	DispatchTable = "dispatches"
	JobTable      = "jobs"
)

// DispatchRow is one row of DispatchTable.
type DispatchRow struct {
	DispatchID string
	Mode       string
	Total      int
	Completed  int
	StartTime  float64
	EndTime    float64
	Err        string
}

// JobRow is one row of JobTable. Times are seconds since the Unix epoch.
type JobRow struct {
	DispatchID string
	JobIndex   int
	FreqReal   float64
	FreqImag   float64
	Mode       string
	Worker     int
	StartTime  float64
	EndTime    float64
	Elapsed    float64
	Err        string
}

// DBTracer writes every dispatch and job to a DataRecorder.
type DBTracer struct {
	mu      sync.Mutex
	backend datarecording.DataRecorder
	now     func() time.Time

	dispatchStart map[string]time.Time
	jobStart      map[jobKey]time.Time
}

type jobKey struct {
	dispatch string
	index    int
}

// NewDBTracer creates the trace tables in the recorder.
func NewDBTracer(recorder datarecording.DataRecorder) (*DBTracer, error) {
	if err := recorder.CreateTable(DispatchTable, DispatchRow{}); err != nil {
		return nil, err
	}

	if err := recorder.CreateTable(JobTable, JobRow{}); err != nil {
		return nil, err
	}

	return &DBTracer{
		backend:       recorder,
		now:           time.Now,
		dispatchStart: make(map[string]time.Time),
		jobStart:      make(map[jobKey]time.Time),
	}, nil
}

func seconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func errString(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}

// StartDispatch remembers when the dispatch started.
func (t *DBTracer) StartDispatch(d subproblem.DispatchInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.dispatchStart[d.ID] = t.now()
}

// EndDispatch records the dispatch.
func (t *DBTracer) EndDispatch(d subproblem.DispatchInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()

	start, ok := t.dispatchStart[d.ID]
	if !ok {
		return
	}
	delete(t.dispatchStart, d.ID)

	t.insert(DispatchTable, DispatchRow{
		DispatchID: d.ID,
		Mode:       string(d.Mode),
		Total:      d.Total,
		Completed:  d.Completed,
		StartTime:  seconds(start),
		EndTime:    seconds(t.now()),
		Err:        errString(d.Err),
	})
}

// StartJob remembers when the job started.
func (t *DBTracer) StartJob(job subproblem.JobInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.jobStart[jobKey{job.DispatchID, job.Index}] = t.now()
}

// EndJob records the job. Jobs that never started are ignored.
func (t *DBTracer) EndJob(job subproblem.JobInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := jobKey{job.DispatchID, job.Index}

	start, ok := t.jobStart[key]
	if !ok {
		return
	}
	delete(t.jobStart, key)

	t.insert(JobTable, JobRow{
		DispatchID: job.DispatchID,
		JobIndex:   job.Index,
		FreqReal:   real(job.Freq),
		FreqImag:   imag(job.Freq),
		Mode:       string(job.Mode),
		Worker:     job.Worker,
		StartTime:  seconds(start),
		EndTime:    seconds(t.now()),
		Elapsed:    job.Elapsed.Seconds(),
		Err:        errString(job.Err),
	})
}

func (t *DBTracer) insert(table string, row any) {
	if err := t.backend.InsertData(table, row); err != nil {
		log.Error("recording trace", "table", table, "err", err)
	}
}

// Terminate flushes the recorder.
func (t *DBTracer) Terminate() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.dispatchStart = make(map[string]time.Time)
	t.jobStart = make(map[jobKey]time.Time)

	if err := t.backend.Flush(); err != nil {
		return fmt.Errorf("tracing: flush: %w", err)
	}

	return nil
}

var _ DispatchTracer = (*DBTracer)(nil)
