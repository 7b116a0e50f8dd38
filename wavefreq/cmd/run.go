package cmd

import (
	"context"
	"fmt"
	"io"
	"math/cmplx"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/wavefreq/datarecording"
	"github.com/sarchlab/wavefreq/monitoring"
	"github.com/sarchlab/wavefreq/operators"
	"github.com/sarchlab/wavefreq/project"
	"github.com/sarchlab/wavefreq/sparse"
	"github.com/sarchlab/wavefreq/subproblem"
	"github.com/sarchlab/wavefreq/tracing"
	"github.com/sarchlab/wavefreq/workpool"
)

// Pool kinds accepted by --pool.
const (
	poolGoroutine = "goroutine"
	poolProcess   = "process"
	poolSync      = "sync"
)

var runCmd = &cobra.Command{
	Use:   "run <project.hcl>",
	Short: "Solve a project at all of its frequencies.",
	Long: `Solve a project at all of its frequencies and print the wavefield ` +
		`amplitude at the receivers. Flags, WAVEFREQ_RUN_* variables and the ` +
		`configuration file override the run block of the project.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		s, err := settingsFromConfig()
		if err != nil {
			return err
		}

		return runProject(ctx, cmd.OutOrStdout(), args[0], s)
	},
}

func init() {
	f := runCmd.Flags()
	f.Bool("parallel", true, "solve the subproblems on a worker pool")
	f.String("pool", poolGoroutine, "worker pool: goroutine, process or sync")
	f.Int("workers", 0, "number of workers; 0 uses every CPU")
	f.Duration("timeout", subproblem.DefaultTimeout, "time to wait for each result")
	f.String("scale", "1", "complex factor applied to every wavefield, such as 2 or 0.5+1i")
	f.String("record", "", "record dispatches and jobs to this sqlite file")
	f.Bool("monitor", false, "serve the progress monitor while solving")
	f.Int("monitor-port", 0, "port of the monitor; below 1000 picks one")
	f.Bool("open-monitor", false, "open the monitor in a browser")
	f.Int("receivers", 6, "number of receivers to print")

	for _, name := range []string{
		"parallel", "pool", "workers", "timeout", "scale", "record",
		"monitor", "monitor-port", "open-monitor", "receivers",
	} {
		_ = viper.BindPFlag("run."+name, f.Lookup(name))
	}

	rootCmd.AddCommand(runCmd)
}

// runSettings are the run options of the command line and the
// configuration. Options left unset fall back to the project file.
type runSettings struct {
	Parallel *bool
	Scale    *complex128
	Timeout  *time.Duration

	Pool        string
	Workers     int
	Record      string
	Monitor     bool
	MonitorPort int
	OpenMonitor bool
	Receivers   int
}

func settingsFromConfig() (runSettings, error) {
	s := runSettings{
		Pool:        viper.GetString("run.pool"),
		Workers:     viper.GetInt("run.workers"),
		Record:      viper.GetString("run.record"),
		Monitor:     viper.GetBool("run.monitor"),
		MonitorPort: viper.GetInt("run.monitor-port"),
		OpenMonitor: viper.GetBool("run.open-monitor"),
		Receivers:   viper.GetInt("run.receivers"),
	}

	if viper.IsSet("run.parallel") {
		v := viper.GetBool("run.parallel")
		s.Parallel = &v
	}

	if viper.IsSet("run.scale") {
		v, err := parseScale(viper.GetString("run.scale"))
		if err != nil {
			return s, err
		}

		s.Scale = &v
	}

	if viper.IsSet("run.timeout") {
		v := viper.GetDuration("run.timeout")
		s.Timeout = &v
	}

	return s, nil
}

// parseScale reads a real or complex scale term.
func parseScale(text string) (complex128, error) {
	k, err := strconv.ParseComplex(strings.TrimSpace(text), 128)
	if err != nil {
		return 0, fmt.Errorf("invalid scale %q: %w", text, err)
	}

	return k, nil
}

// merge fills the options s leaves unset from the project.
func (s runSettings) merge(opts project.RunOptions) runSettings {
	if s.Parallel == nil {
		s.Parallel = opts.Parallel
	}

	if s.Scale == nil && opts.Scale != nil {
		k := complex(*opts.Scale, 0)
		s.Scale = &k
	}

	if s.Timeout == nil {
		s.Timeout = opts.Timeout
	}

	return s
}

func poolFactory(s runSettings) (workpool.Factory, error) {
	switch s.Pool {
	case "", poolGoroutine:
		return workpool.NewGoroutinePoolFactory(s.Workers), nil
	case poolProcess:
		b := workpool.MakeProcessPoolBuilder().
			WithSize(s.Workers).
			WithEnv("WAVEFREQ_LOG_LEVEL=" + log.GetLevel().String()).
			WithLogger(log.Default().With("pool", poolProcess))

		return workpool.NewProcessPoolFactory(b), nil
	case poolSync:
		return workpool.SyncPoolFactory, nil
	default:
		return nil, fmt.Errorf("unknown pool %q", s.Pool)
	}
}

func buildMultiFreq(p *project.Project, s runSettings) (*subproblem.MultiFreq, error) {
	factory, err := poolFactory(s)
	if err != nil {
		return nil, err
	}

	b := subproblem.MakeBuilder().
		WithBase(p.Base).
		WithConstructor(operators.NewRegistry().Constructor()).
		WithFrequencies(p.Frequencies...).
		WithPoolFactory(factory).
		WithLogger(log.Default())

	if s.Parallel != nil {
		b = b.WithParallel(*s.Parallel)
	}

	if s.Scale != nil {
		b = b.WithScaleTerm(*s.Scale)
	}

	if s.Timeout != nil {
		b = b.WithTimeout(*s.Timeout)
	}

	return b.Build()
}

// attachRecorder records the dispatches of mf to a sqlite file. The returned
// function flushes and closes the file; it also runs at exit.
func attachRecorder(mf *subproblem.MultiFreq, path string) (func(), error) {
	rec, err := datarecording.New(path)
	if err != nil {
		return nil, err
	}

	tracer, err := tracing.NewDBTracer(rec)
	if err != nil {
		_ = rec.Close()
		return nil, err
	}

	tracing.CollectTrace(mf.Dispatcher(), tracer)

	done := sync.OnceFunc(func() {
		if err := tracer.Terminate(); err != nil {
			log.Error("flushing trace", "path", rec.Path(), "err", err)
		}

		if err := rec.Close(); err != nil {
			log.Error("closing trace", "path", rec.Path(), "err", err)
		}

		log.Info("trace recorded", "path", rec.Path())
	})
	atexit.Register(done)

	return done, nil
}

func startMonitor(mf *subproblem.MultiFreq, name string, s runSettings) (func(), error) {
	mon := monitoring.NewMonitor().WithPortNumber(s.MonitorPort)
	mon.RegisterWrapper(name, mf.Wrapper)

	url, err := mon.StartServer()
	if err != nil {
		return nil, err
	}

	if s.OpenMonitor {
		if err := monitoring.OpenInBrowser(url); err != nil {
			log.Warn("could not open browser", "url", url, "err", err)
		}
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := mon.Shutdown(ctx); err != nil {
			log.Warn("stopping monitor", "err", err)
		}
	}, nil
}

func runProject(ctx context.Context, out io.Writer, path string, s runSettings) error {
	p, err := project.Load(path)
	if err != nil {
		return err
	}

	s = s.merge(p.Run)

	mf, err := buildMultiFreq(p, s)
	if err != nil {
		return err
	}

	total := tracing.NewTotalTimeTracer(tracing.AllJobs)
	tracing.CollectTrace(mf.Dispatcher(), total)

	if s.Record != "" {
		closeRecorder, err := attachRecorder(mf, s.Record)
		if err != nil {
			return err
		}
		defer closeRecorder()
	}

	if s.Monitor {
		stop, err := startMonitor(mf, filepath.Base(path), s)
		if err != nil {
			return err
		}
		defer stop()
	}

	log.Info("solving",
		"project", path,
		"frequencies", len(p.Frequencies),
		"mode", mf.Dispatcher().Mode(),
		"pool", s.Pool)

	start := time.Now()

	seq, err := mf.Multiply(ctx, subproblem.Shared(sourceVector(mf.Base())))
	if err != nil {
		return err
	}

	fields, err := subproblem.Collect(seq)
	if err != nil {
		return err
	}

	writeSummary(out, mf, fields, s.Receivers)

	log.Info("solved",
		"jobs", total.Jobs(),
		"solve_time", total.TotalTime(),
		"wall_time", time.Since(start))

	return nil
}

func writeSummary(out io.Writer, mf *subproblem.MultiFreq, fields []*sparse.Dense, receivers int) {
	cells := receiverCells(mf.Base())
	if len(cells) > receivers {
		cells = cells[:max(receivers, 0)]
	}

	headers := []string{"freq", "peak |u|"}
	for i := range cells {
		headers = append(headers, "r"+strconv.Itoa(i))
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...)

	freqs := mf.Frequencies()
	for i, u := range fields {
		row := []string{formatFreq(freqs[i]), fmt.Sprintf("%.4e", peak(u))}
		for _, c := range cells {
			row = append(row, fmt.Sprintf("%.4e", cmplx.Abs(u.At(c, 0))))
		}

		t.Row(row...)
	}

	fmt.Fprintln(out, t.String())
}

func formatFreq(f complex128) string {
	if imag(f) == 0 {
		return strconv.FormatFloat(real(f), 'g', -1, 64)
	}

	return strconv.FormatComplex(f, 'g', -1, 128)
}
