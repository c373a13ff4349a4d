package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/backmassage/dashmaster/internal/planner"
)

// Sentinel errors for run-level failures.
var (
	ErrRetriesExhausted = errors.New("retries exhausted")
	ErrStalled          = errors.New("transcoder stalled")
	ErrCancelled        = errors.New("run cancelled")
)

// Process is a running transcoder owned by the scheduler.
type Process interface {
	// Lines yields output lines and is closed when the process's output ends.
	Lines() <-chan string
	// Wait blocks until the process exits and returns nil on exit code zero.
	Wait() error
	// Terminate stops the process and any children it spawned.
	Terminate() error
}

// Launcher spawns the transcoder for one attempt of a rendition. The
// process must write to the rendition's temp output.
type Launcher interface {
	Start(ctx context.Context, r *planner.Rendition, attempt int) (Process, error)
}

// Progress receives the textual progress of every task. Implementations
// are called only from the scheduler loop.
type Progress interface {
	Begin(task string, duration time.Duration)
	Observe(task, line string)
	Percent(task string) float64
	Fail(task string)
	MarkRedo(task string)
	Finish(task string)
	Cancel(task string)
}

// Logger is the subset of the application logger the scheduler uses.
type Logger interface {
	Info(string, ...interface{})
	Warn(string, ...interface{})
	Error(string, ...interface{})
	Debug(string, ...interface{})
}

// Options configures a Scheduler.
type Options struct {
	Concurrency  int
	Policy       Policy
	StallTimeout time.Duration // 0 disables the stall watchdog

	// Observer, when set, sees every state transition in order.
	Observer func(Transition)
	// Finalize replaces the default container check and rename.
	Finalize func(r *planner.Rendition) error
}

// Scheduler executes renditions. A Scheduler may be reused across assets
// but Run is not safe for concurrent use.
type Scheduler struct {
	launcher Launcher
	progress Progress
	log      Logger
	opts     Options
}

// New returns a Scheduler. Concurrency below one is treated as one.
func New(l Launcher, p Progress, log Logger, opts Options) *Scheduler {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Policy.MaxTries < 1 {
		opts.Policy = DefaultPolicy()
	}
	if opts.Finalize == nil {
		opts.Finalize = Finalize
	}
	return &Scheduler{launcher: l, progress: p, log: log, opts: opts}
}

type eventKind int

const (
	evLine eventKind = iota
	evExit
)

type event struct {
	task *Task
	kind eventKind
	line string
	err  error
}

// run is the state of one Run call. It is touched only by the loop.
type run struct {
	s        *Scheduler
	ctx      context.Context
	tasks    []*Task
	pending  []*Task
	redo     []*Task
	running  map[*Task]struct{}
	events   chan event
	abortErr error
	spawned  int
}

// Run executes every rendition to completion. It returns nil once all
// tasks have succeeded, or the error that aborted the run. The Report is
// always populated.
func (s *Scheduler) Run(ctx context.Context, renditions []planner.Rendition) (*Report, error) {
	r := &run{
		s:       s,
		ctx:     ctx,
		running: make(map[*Task]struct{}),
		events:  make(chan event),
	}
	for i := range renditions {
		t := &Task{Rendition: &renditions[i], Name: renditions[i].Name, State: StatePending}
		r.tasks = append(r.tasks, t)
		r.pending = append(r.pending, t)
	}

	var tick <-chan time.Time
	if s.opts.StallTimeout > 0 {
		ticker := time.NewTicker(stallInterval(s.opts.StallTimeout))
		defer ticker.Stop()
		tick = ticker.C
	}

	done := ctx.Done()
	r.dispatch()
	for len(r.running) > 0 {
		select {
		case ev := <-r.events:
			r.handle(ev)
		case now := <-tick:
			r.checkStalls(now)
		case <-done:
			done = nil
			r.abort(errors.Wrap(ErrCancelled, ctx.Err().Error()))
		}
		r.dispatch()
	}
	return r.report(), r.abortErr
}

// dispatch fills free slots from the pending queue. The redo queue is only
// drawn from when nothing is running or pending, one task at a time.
func (r *run) dispatch() {
	for r.abortErr == nil {
		if err := r.ctx.Err(); err != nil {
			r.abort(errors.Wrap(ErrCancelled, err.Error()))
			return
		}
		switch {
		case len(r.running) < r.s.opts.Concurrency && len(r.pending) > 0:
			t := r.pending[0]
			r.pending = r.pending[1:]
			r.start(t, false)
		case len(r.running) == 0 && len(r.pending) == 0 && len(r.redo) > 0:
			t := r.redo[0]
			r.redo = r.redo[1:]
			r.start(t, true)
		default:
			return
		}
	}
}

func (r *run) start(t *Task, fromRedo bool) {
	t.Attempts++
	t.fromRedo = fromRedo
	t.stalled = false
	t.Percent = 0
	t.lastActivity = time.Now()
	r.s.progress.Begin(t.Name, t.Rendition.Duration)
	r.transition(t, StateRunning)

	proc, err := r.s.launcher.Start(r.ctx, t.Rendition, t.Attempts)
	if err != nil {
		delete(r.running, t)
		r.fail(t, errors.Wrap(err, "spawn"))
		return
	}
	r.spawned++
	t.proc = proc
	r.s.log.Debug("%s: attempt %d started", t.Name, t.Attempts)
	go pump(t, proc, r.events)
}

// pump forwards a process's lines and then its exit status to the loop.
func pump(t *Task, p Process, events chan<- event) {
	for line := range p.Lines() {
		events <- event{task: t, kind: evLine, line: line}
	}
	events <- event{task: t, kind: evExit, err: p.Wait()}
}

func (r *run) handle(ev event) {
	t := ev.task
	switch ev.kind {
	case evLine:
		t.lastActivity = time.Now()
		if r.abortErr == nil {
			r.s.progress.Observe(t.Name, ev.line)
		}
	case evExit:
		delete(r.running, t)
		t.proc = nil
		if r.abortErr != nil {
			r.s.progress.Cancel(t.Name)
			r.transition(t, StateCancelled)
			return
		}
		err := ev.err
		if err == nil {
			if err = r.s.opts.Finalize(t.Rendition); err == nil {
				r.s.progress.Finish(t.Name)
				r.transition(t, StateSucceeded)
				r.s.log.Info("%s: done (attempt %d)", t.Name, t.Attempts)
				return
			}
		}
		if t.stalled {
			err = errors.Wrapf(ErrStalled, "no output for %s", r.s.opts.StallTimeout)
		}
		r.fail(t, err)
	}
}

// fail applies the retry policy to a task whose attempt just failed.
func (r *run) fail(t *Task, err error) {
	t.LastErr = err
	if p := r.s.progress.Percent(t.Name); p > t.Percent {
		t.Percent = p
	}
	r.s.progress.Fail(t.Name)
	r.transition(t, StateFailed)

	decision := r.s.opts.Policy.OnFailure(t.Attempts, t.Percent, t.fromRedo)
	r.s.log.Warn("%s: attempt %d failed at %.0f%% (%v); %s", t.Name, t.Attempts, t.Percent, err, decision)

	switch decision {
	case RetryParallel:
		r.transition(t, StatePending)
		r.pending = append([]*Task{t}, r.pending...)
	case RetryRedo:
		r.transition(t, StateRedoPending)
		r.redo = append(r.redo, t)
		r.s.progress.MarkRedo(t.Name)
	default:
		r.transition(t, StateExhausted)
		r.abort(errors.Wrapf(ErrRetriesExhausted, "%s failed %d times, last error: %v", t.Name, t.Attempts, err))
	}
}

// abort terminates every running process and cancels all queued work. The
// loop keeps draining events until every process has exited.
func (r *run) abort(err error) {
	if r.abortErr != nil {
		return
	}
	r.abortErr = err
	r.s.log.Error("aborting: %v", err)

	for t := range r.running {
		if t.proc != nil {
			if terr := t.proc.Terminate(); terr != nil {
				r.s.log.Debug("%s: terminate: %v", t.Name, terr)
			}
		}
	}
	for _, t := range append(r.pending, r.redo...) {
		r.s.progress.Cancel(t.Name)
		r.transition(t, StateCancelled)
	}
	r.pending, r.redo = nil, nil
}

// checkStalls terminates processes that have been silent for longer than
// the stall timeout. Their exit is then handled as an ordinary failure.
func (r *run) checkStalls(now time.Time) {
	if r.abortErr != nil {
		return
	}
	for t := range r.running {
		if t.stalled || t.proc == nil || now.Sub(t.lastActivity) < r.s.opts.StallTimeout {
			continue
		}
		t.stalled = true
		r.s.log.Warn("%s: no output for %s, terminating", t.Name, r.s.opts.StallTimeout)
		if err := t.proc.Terminate(); err != nil {
			r.s.log.Debug("%s: terminate: %v", t.Name, err)
		}
	}
}

func (r *run) transition(t *Task, to State) {
	if t.State.Terminal() {
		return
	}
	from := t.State
	t.State = to
	if to == StateRunning {
		r.running[t] = struct{}{}
	}
	if r.s.opts.Observer != nil {
		running := 0
		for _, x := range r.tasks {
			if x.State == StateRunning {
				running++
			}
		}
		r.s.opts.Observer(Transition{
			Task:    t.Name,
			From:    from,
			To:      to,
			Attempt: t.Attempts,
			Percent: t.Percent,
			Running: running,
		})
	}
}

func (r *run) report() *Report {
	rep := &Report{Spawned: r.spawned}
	for _, t := range r.tasks {
		rep.Tasks = append(rep.Tasks, TaskReport{Name: t.Name, State: t.State, Attempts: t.Attempts, Err: t.LastErr})
		rep.TotalAttempts += t.Attempts
	}
	return rep
}

func stallInterval(timeout time.Duration) time.Duration {
	iv := timeout / 4
	switch {
	case iv < 10*time.Millisecond:
		return 10 * time.Millisecond
	case iv > 5*time.Second:
		return 5 * time.Second
	}
	return iv
}

// String renders a one-line outcome, e.g. "5 tasks, 6 attempts".
func (r *Report) String() string {
	return fmt.Sprintf("%d tasks, %d attempts", len(r.Tasks), r.TotalAttempts)
}
