package tracing

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/wavefreq/datarecording"
	"github.com/sarchlab/wavefreq/discretization"
	"github.com/sarchlab/wavefreq/hooking"
	"github.com/sarchlab/wavefreq/sparse"
	"github.com/sarchlab/wavefreq/subproblem"
	"github.com/sarchlab/wavefreq/workpool"
)

var _ = Describe("DBTracer", func() {
	var (
		mockCtrl *gomock.Controller
		backend  *MockDataRecorder
		tracer   *DBTracer
		clock    time.Time
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		backend = NewMockDataRecorder(mockCtrl)

		backend.EXPECT().CreateTable(DispatchTable, DispatchRow{})
		backend.EXPECT().CreateTable(JobTable, JobRow{})

		var err error
		tracer, err = NewDBTracer(backend)
		Expect(err).NotTo(HaveOccurred())

		clock = time.Unix(100, 0)
		tracer.now = func() time.Time { return clock }
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should fail when the tables cannot be created", func() {
		other := NewMockDataRecorder(mockCtrl)
		other.EXPECT().CreateTable(DispatchTable, gomock.Any()).
			Return(errors.New("read-only"))

		t, err := NewDBTracer(other)

		Expect(t).To(BeNil())
		Expect(err).To(MatchError("read-only"))
	})

	It("should record a finished job", func() {
		job := subproblem.JobInfo{
			DispatchID: "d1",
			Index:      2,
			Freq:       complex(10, 0.5),
			Mode:       subproblem.Parallel,
		}

		tracer.StartJob(job)
		clock = clock.Add(2 * time.Second)

		job.Elapsed = 1500 * time.Millisecond
		job.Worker = 3
		backend.EXPECT().InsertData(JobTable, JobRow{
			DispatchID: "d1",
			JobIndex:   2,
			FreqReal:   10,
			FreqImag:   0.5,
			Mode:       "parallel",
			Worker:     3,
			StartTime:  100,
			EndTime:    102,
			Elapsed:    1.5,
		})

		tracer.EndJob(job)
	})

	It("should record the error of a failed job", func() {
		job := subproblem.JobInfo{DispatchID: "d1", Index: 0}
		tracer.StartJob(job)

		job.Err = workpool.ErrTimeout
		backend.EXPECT().InsertData(JobTable, gomock.Any()).Do(
			func(_ string, row any) {
				Expect(row.(JobRow).Err).To(Equal(workpool.ErrTimeout.Error()))
			})

		tracer.EndJob(job)
	})

	It("should ignore jobs that never started", func() {
		tracer.EndJob(subproblem.JobInfo{DispatchID: "d1", Index: 0})
	})

	It("should record a dispatch", func() {
		d := subproblem.DispatchInfo{ID: "d1", Mode: subproblem.Sequential, Total: 3}
		tracer.StartDispatch(d)
		clock = clock.Add(time.Second)

		d.Completed = 3
		backend.EXPECT().InsertData(DispatchTable, DispatchRow{
			DispatchID: "d1",
			Mode:       "sequential",
			Total:      3,
			Completed:  3,
			StartTime:  100,
			EndTime:    101,
		})

		tracer.EndDispatch(d)
	})

	It("should flush on terminate", func() {
		backend.EXPECT().Flush()

		Expect(tracer.Terminate()).To(Succeed())
	})
})

var _ = Describe("Tracing a dispatch", func() {
	tridiagonal := func(d *discretization.Discretization) (sparse.Matrix, error) {
		n := d.Config().Cells()
		t := sparse.NewTriplet(n, n)
		for i := 0; i < n; i++ {
			t.Add(i, i, 4+d.Freq()/10)
			if i > 0 {
				t.Add(i, i-1, -1)
			}
		}

		return t, nil
	}

	build := func(parallel bool) *subproblem.MultiFreq {
		registry := discretization.NewRegistry()
		registry.Register("lower", discretization.OperatorBuilderFunc(tridiagonal))

		m, err := subproblem.MakeBuilder().
			WithBase(discretization.Config{
				Operator: "lower",
				Nx:       2,
				Nz:       2,
				C:        discretization.Uniform[complex128](1500),
			}).
			WithConstructor(registry.Constructor()).
			WithFrequencies(5, 10, 15, 20).
			WithParallel(parallel).
			WithPoolFactory(workpool.NewGoroutinePoolFactory(2)).
			Build()
		Expect(err).NotTo(HaveOccurred())

		return m
	}

	dispatch := func(m *subproblem.MultiFreq) {
		seq, err := m.Multiply(context.Background(), subproblem.Shared(
			sparse.NewVector([]complex128{1, 1, 1, 1})))
		Expect(err).NotTo(HaveOccurred())

		_, err = subproblem.Collect(seq)
		Expect(err).NotTo(HaveOccurred())
	}

	It("should write one row per job", func() {
		recorder, err := datarecording.New(filepath.Join(GinkgoT().TempDir(), "trace.sqlite3"))
		Expect(err).NotTo(HaveOccurred())
		defer recorder.Close()

		tracer, err := NewDBTracer(recorder)
		Expect(err).NotTo(HaveOccurred())

		m := build(true)
		CollectTrace(m.Dispatcher(), tracer)
		dispatch(m)
		Expect(tracer.Terminate()).To(Succeed())

		reader, err := datarecording.NewReader(recorder.Path())
		Expect(err).NotTo(HaveOccurred())
		defer reader.Close()
		Expect(reader.MapTable(JobTable, JobRow{})).To(Succeed())
		Expect(reader.MapTable(DispatchTable, DispatchRow{})).To(Succeed())

		rows, total, err := reader.Query(context.Background(), JobTable,
			datarecording.QueryParams{OrderBy: "JobIndex"})
		Expect(err).NotTo(HaveOccurred())
		Expect(total).To(Equal(4))
		Expect(rows[3].(*JobRow).FreqReal).To(Equal(20.0))
		Expect(rows[3].(*JobRow).Mode).To(Equal("parallel"))

		_, total, err = reader.Query(context.Background(), DispatchTable,
			datarecording.QueryParams{Where: "Completed = ?", Args: []any{4}})
		Expect(err).NotTo(HaveOccurred())
		Expect(total).To(Equal(1))
	})

	It("should read back dispatches and their failed jobs", func() {
		recorder, err := datarecording.New(filepath.Join(GinkgoT().TempDir(), "trace.sqlite3"))
		Expect(err).NotTo(HaveOccurred())
		defer recorder.Close()

		tracer, err := NewDBTracer(recorder)
		Expect(err).NotTo(HaveOccurred())

		good := build(false)
		CollectTrace(good.Dispatcher(), tracer)
		dispatch(good)

		registry := discretization.NewRegistry()
		registry.Register("fussy", discretization.OperatorBuilderFunc(
			func(d *discretization.Discretization) (sparse.Matrix, error) {
				if d.Freq() == 15 {
					return nil, errors.New("no operator at 15")
				}

				return tridiagonal(d)
			}))
		bad, err := subproblem.MakeBuilder().
			WithBase(good.Base().With(func(c *discretization.Config) { c.Operator = "fussy" })).
			WithConstructor(registry.Constructor()).
			WithFrequencies(5, 10, 15, 20).
			WithParallel(false).
			Build()
		Expect(err).NotTo(HaveOccurred())
		CollectTrace(bad.Dispatcher(), tracer)

		seq, err := bad.Multiply(context.Background(), subproblem.Shared(
			sparse.NewVector([]complex128{1, 1, 1, 1})))
		Expect(err).NotTo(HaveOccurred())
		_, err = subproblem.Collect(seq)
		Expect(err).To(MatchError(workpool.ErrJobFailed))

		Expect(tracer.Terminate()).To(Succeed())

		reader, err := datarecording.NewReader(recorder.Path())
		Expect(err).NotTo(HaveOccurred())
		defer reader.Close()

		traces, err := NewTraceReader(reader)
		Expect(err).NotTo(HaveOccurred())

		dispatches, err := traces.Dispatches(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(dispatches).To(HaveLen(2))
		Expect(dispatches[0].Completed).To(Equal(4))
		Expect(dispatches[0].Err).To(BeEmpty())
		Expect(dispatches[1].Completed).To(Equal(2))
		Expect(dispatches[1].Err).To(ContainSubstring("no operator at 15"))

		jobs, err := traces.Jobs(context.Background(), JobQuery{})
		Expect(err).NotTo(HaveOccurred())
		Expect(jobs).To(HaveLen(7))

		mine, err := traces.Jobs(context.Background(),
			JobQuery{DispatchID: dispatches[0].DispatchID})
		Expect(err).NotTo(HaveOccurred())
		Expect(mine).To(HaveLen(4))
		Expect(mine[3].JobIndex).To(Equal(3))

		failed, err := traces.Jobs(context.Background(), JobQuery{FailedOnly: true})
		Expect(err).NotTo(HaveOccurred())
		Expect(failed).To(HaveLen(1))
		Expect(failed[0].JobIndex).To(Equal(2))
		Expect(failed[0].DispatchID).To(Equal(dispatches[1].DispatchID))
	})

	It("should add up solve times", func() {
		m := build(false)
		total := NewTotalTimeTracer(nil)
		failed := NewTotalTimeTracer(FailedJobs)
		CollectTrace(m.Dispatcher(), total)
		CollectTrace(m.Dispatcher(), failed)

		dispatch(m)

		Expect(total.Jobs()).To(Equal(4))
		Expect(total.TotalTime()).To(BeNumerically(">", 0))
		Expect(failed.Jobs()).To(BeZero())
	})

	It("should refuse to attach a tracer twice", func() {
		m := build(false)
		tracer := NewTotalTimeTracer(nil)
		CollectTrace(m.Dispatcher(), tracer)

		Expect(func() { CollectTrace(m.Dispatcher(), tracer) }).To(Panic())
	})

	It("should ignore hook positions it does not know", func() {
		tracer := NewTotalTimeTracer(nil)
		h := &traceHook{t: tracer}

		h.Func(hooking.HookCtx{Pos: &hooking.HookPos{Name: "Other"}})
		h.Func(hooking.HookCtx{
			Pos:  subproblem.HookPosDispatchEnd,
			Item: subproblem.DispatchInfo{},
		})

		Expect(tracer.Jobs()).To(BeZero())
	})
})
