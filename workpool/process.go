package workpool

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/sarchlab/wavefreq/discretization"
	"github.com/sarchlab/wavefreq/sparse"
)

// WorkerArg is the argument the default worker command is started with.
const WorkerArg = "worker"

type request struct {
	Index  int
	Config discretization.Config
	RHS    *sparse.Dense
}

type response struct {
	Index     int
	Wavefield *sparse.Dense
	Elapsed   time.Duration
	Err       string
}

type workerProcess struct {
	id    int
	cmd   *exec.Cmd
	stdin io.WriteCloser
	enc   *gob.Encoder
	dec   *gob.Decoder
}

func (w *workerProcess) roundTrip(job Job) (Result, error) {
	req := request{
		Index:  job.Index,
		Config: job.Subproblem.Config(),
		RHS:    job.RHS,
	}

	if err := w.enc.Encode(&req); err != nil {
		return Result{}, fmt.Errorf("send job %d: %w", job.Index, err)
	}

	var resp response
	if err := w.dec.Decode(&resp); err != nil {
		return Result{}, fmt.Errorf("receive job %d: %w", job.Index, err)
	}

	res := Result{
		Index:     resp.Index,
		Wavefield: resp.Wavefield,
		Elapsed:   resp.Elapsed,
		Worker:    w.id,
	}
	if resp.Err != "" {
		res.Err = errors.New(resp.Err)
	}

	return res, nil
}

// ProcessPool runs jobs in worker processes. Each worker receives the
// configuration of the subproblem and rebuilds it on its side.
type ProcessPool struct {
	logger    *log.Logger
	queue     *jobQueue
	procs     []*workerProcess
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// ProcessPoolBuilder configures and starts ProcessPools.
type ProcessPoolBuilder struct {
	size    int
	command []string
	env     []string
	logger  *log.Logger
}

// MakeProcessPoolBuilder creates a builder that starts one worker per
// logical CPU, running the current executable with WorkerArg.
func MakeProcessPoolBuilder() ProcessPoolBuilder {
	return ProcessPoolBuilder{}
}

// WithSize sets the number of worker processes.
func (b ProcessPoolBuilder) WithSize(n int) ProcessPoolBuilder {
	b.size = n
	return b
}

// WithCommand sets the worker command line.
func (b ProcessPoolBuilder) WithCommand(name string, args ...string) ProcessPoolBuilder {
	b.command = append([]string{name}, args...)
	return b
}

// WithEnv appends KEY=VALUE pairs to the environment of the workers.
func (b ProcessPoolBuilder) WithEnv(env ...string) ProcessPoolBuilder {
	b.env = append(append([]string(nil), b.env...), env...)
	return b
}

// WithLogger sets the logger. Worker stderr is forwarded to it.
func (b ProcessPoolBuilder) WithLogger(logger *log.Logger) ProcessPoolBuilder {
	b.logger = logger
	return b
}

// Build starts the worker processes. If any of them cannot start, the ones
// already running are stopped.
func (b ProcessPoolBuilder) Build(ctx context.Context) (*ProcessPool, error) {
	command := b.command
	if len(command) == 0 {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("workpool: locate executable: %w", err)
		}

		command = []string{exe, WorkerArg}
	}

	size := b.size
	if size <= 0 {
		size = HostConcurrency()
	}

	logger := b.logger
	if logger == nil {
		logger = log.Default()
	}

	p := &ProcessPool{
		logger: logger,
		queue:  newJobQueue(),
	}

	for i := 0; i < size; i++ {
		w, err := p.spawn(ctx, i, command, b.env)
		if err != nil {
			_ = p.Close()
			return nil, err
		}

		p.procs = append(p.procs, w)
	}

	for _, w := range p.procs {
		p.wg.Add(1)
		go p.serve(w)
	}

	logger.Debug("worker processes started", "count", size, "command", command[0])

	return p, nil
}

// NewProcessPoolFactory returns a Factory that starts a ProcessPool from the
// builder on every call.
func NewProcessPoolFactory(b ProcessPoolBuilder) Factory {
	return func(ctx context.Context) (Pool, error) {
		return b.Build(ctx)
	}
}

func (p *ProcessPool) spawn(
	ctx context.Context,
	id int,
	command []string,
	env []string,
) (*workerProcess, error) {
	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.Env = append(os.Environ(), env...)
	cmd.Stderr = p.logger.StandardLog(log.StandardLogOptions{
		ForceLevel: log.DebugLevel,
	}).Writer()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("workpool: worker %d stdin: %w", id, err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("workpool: worker %d stdout: %w", id, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("workpool: start worker %d: %w", id, err)
	}

	return &workerProcess{
		id:    id,
		cmd:   cmd,
		stdin: stdin,
		enc:   gob.NewEncoder(stdin),
		dec:   gob.NewDecoder(stdout),
	}, nil
}

func (p *ProcessPool) serve(w *workerProcess) {
	defer p.wg.Done()

	var broken error
	for {
		item, ok := p.queue.pop()
		if !ok {
			return
		}

		if broken != nil {
			item.handle.resolve(Result{Index: item.job.Index, Worker: w.id, Err: broken})
			continue
		}

		res, err := w.roundTrip(item.job)
		if err != nil {
			broken = fmt.Errorf("worker process %d: %w", w.id, err)
			p.logger.Warn("worker process lost", "worker", w.id, "err", err)
			res = Result{Index: item.job.Index, Worker: w.id, Err: broken}
		}

		item.handle.resolve(res)
	}
}

// Submit queues the job for the next free worker process.
func (p *ProcessPool) Submit(job Job) *Handle {
	return p.queue.push(job)
}

// Await waits for the result of the job.
func (p *ProcessPool) Await(
	ctx context.Context,
	h *Handle,
	timeout time.Duration,
) (Result, error) {
	return await(ctx, h, timeout)
}

// Size returns the number of worker processes.
func (p *ProcessPool) Size() int {
	return len(p.procs)
}

// Close kills and reaps every worker process. It is safe to call more than
// once.
func (p *ProcessPool) Close() error {
	p.closeOnce.Do(func() {
		p.queue.close()

		var errs []error
		for _, w := range p.procs {
			_ = w.stdin.Close()

			if err := w.cmd.Process.Kill(); err != nil &&
				!errors.Is(err, os.ErrProcessDone) {
				errs = append(errs, fmt.Errorf("kill worker %d: %w", w.id, err))
			}

			// The exit status of a killed worker carries no information.
			_ = w.cmd.Wait()
		}

		p.wg.Wait()
		p.closeErr = errors.Join(errs...)
	})

	return p.closeErr
}

// Serve is the loop run by a worker process. It reads jobs from r until EOF,
// builds the subproblem of each with construct, and writes the wavefield to
// w.
func Serve(
	ctx context.Context,
	r io.Reader,
	w io.Writer,
	construct discretization.Constructor,
) error {
	dec := gob.NewDecoder(r)
	enc := gob.NewEncoder(w)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var req request
		if err := dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}

			return fmt.Errorf("workpool: decode job: %w", err)
		}

		resp := handleRequest(req, construct)
		if err := enc.Encode(&resp); err != nil {
			return fmt.Errorf("workpool: encode result of job %d: %w", req.Index, err)
		}
	}
}

func handleRequest(req request, construct discretization.Constructor) (resp response) {
	start := time.Now()
	resp.Index = req.Index

	defer func() {
		if r := recover(); r != nil {
			resp.Wavefield = nil
			resp.Err = fmt.Sprintf("panic: %v", r)
		}
		resp.Elapsed = time.Since(start)
	}()

	d, err := construct(req.Config)
	if err != nil {
		resp.Err = err.Error()
		return resp
	}

	u, err := d.Solve(req.RHS)
	if err != nil {
		resp.Err = err.Error()
		return resp
	}

	resp.Wavefield = u

	return resp
}

var _ Pool = (*ProcessPool)(nil)
