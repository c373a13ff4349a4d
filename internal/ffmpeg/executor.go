package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v4/process"
	"golang.org/x/sync/errgroup"

	"github.com/backmassage/dashmaster/internal/config"
	"github.com/backmassage/dashmaster/internal/planner"
	"github.com/backmassage/dashmaster/internal/scheduler"
)

const (
	stderrTailLines = 40
	killGrace       = 5 * time.Second
)

// Logger is the subset of the application logger the launcher uses.
type Logger interface {
	Info(string, ...interface{})
	Debug(string, ...interface{})
}

// Launcher spawns ffmpeg for rendition attempts. It implements
// [scheduler.Launcher] and keeps one [RetryState] per rendition output.
type Launcher struct {
	cfg   *config.Config
	log   Logger
	grace time.Duration

	mu      sync.Mutex
	retries map[string]*RetryState
}

// NewLauncher returns a Launcher for cfg.
func NewLauncher(cfg *config.Config, log Logger) *Launcher {
	return &Launcher{cfg: cfg, log: log, grace: killGrace, retries: make(map[string]*RetryState)}
}

// Start builds the command for the given attempt and starts it. A stale
// temp output from an earlier attempt is removed first.
func (l *Launcher) Start(ctx context.Context, r *planner.Rendition, attempt int) (scheduler.Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rs := l.retryState(r, attempt)
	args := Build(l.cfg, r, rs)
	l.log.Debug("%s: %s", r.Name, strings.Join(args, " "))

	if err := os.Remove(r.TempOutput()); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "remove stale temp output")
	}

	cmd := exec.Command(args[0], args[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "stdout pipe")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.Wrap(err, "stderr pipe")
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "start %s", args[0])
	}

	p := &proc{
		cmd:   cmd,
		rs:    rs,
		log:   l.log,
		name:  r.Name,
		grace: l.grace,
		lines: make(chan string, 64),
		done:  make(chan struct{}),
	}
	var g errgroup.Group
	g.Go(func() error { return p.scan(stdout, nil) })
	g.Go(func() error { return p.scan(stderr, &p.tail) })
	go func() {
		readErr := g.Wait()
		close(p.lines)
		p.err = cmd.Wait()
		if p.err == nil && readErr != nil {
			p.err = errors.Wrap(readErr, "read output")
		}
		close(p.done)
	}()
	return p, nil
}

// retryState returns the rendition's remedies, resetting them on a first
// attempt and otherwise advancing them from the previous attempt's stderr.
func (l *Launcher) retryState(r *planner.Rendition, attempt int) *RetryState {
	l.mu.Lock()
	defer l.mu.Unlock()

	rs, ok := l.retries[r.Output]
	if !ok || attempt <= 1 {
		rs = NewRetryState(r)
		l.retries[r.Output] = rs
		return rs
	}
	if action := rs.Advance(rs.lastStderr); action != RetryNone {
		l.log.Info("%s: attempt %d with %s", r.Name, attempt, action)
	}
	return rs
}

// proc is a running ffmpeg. Lines carries both stdout and stderr lines,
// split on CR as well as LF so that -stats updates arrive one by one.
type proc struct {
	cmd   *exec.Cmd
	rs    *RetryState
	log   Logger
	name  string
	grace time.Duration

	lines chan string
	done  chan struct{}
	tail  tail
	err   error
	once  sync.Once
}

func (p *proc) Lines() <-chan string { return p.lines }

// Wait blocks until ffmpeg exits. A non-zero exit is returned with the
// last stderr line and a classification when one matches.
func (p *proc) Wait() error {
	<-p.done
	stderr := p.tail.String()
	p.rs.lastStderr = stderr
	if p.err == nil {
		return nil
	}
	msg := p.tail.Last()
	if reason := Classify(stderr); reason != "" {
		msg = reason + ": " + msg
	}
	if msg == "" {
		return p.err
	}
	return errors.Wrap(p.err, msg)
}

// Terminate stops ffmpeg and every process it spawned: SIGTERM first,
// SIGKILL for anything still alive after the grace period.
func (p *proc) Terminate() error {
	var err error
	p.once.Do(func() {
		if p.cmd.Process == nil {
			return
		}
		err = terminateTree(int32(p.cmd.Process.Pid), p.grace, p.done)
	})
	return err
}

func (p *proc) scan(r io.Reader, t *tail) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	sc.Split(scanLinesCR)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if t != nil {
			t.Add(line)
			if !isStatsLine(line) {
				p.log.Debug("%s: %s", p.name, line)
			}
		}
		p.lines <- line
	}
	return sc.Err()
}

func terminateTree(pid int32, grace time.Duration, done <-chan struct{}) error {
	root, err := process.NewProcess(pid)
	if err != nil {
		// Already exited.
		return nil
	}
	tree := append([]*process.Process{root}, descendants(root)...)
	var first error
	for _, pr := range tree {
		if err := pr.Terminate(); err != nil && first == nil && pr == root {
			first = errors.Wrapf(err, "terminate pid %d", pid)
		}
	}
	go func() {
		select {
		case <-done:
			return
		case <-time.After(grace):
		}
		for _, pr := range tree {
			_ = pr.Kill()
		}
	}()
	return first
}

func descendants(p *process.Process) []*process.Process {
	children, err := p.Children()
	if err != nil {
		return nil
	}
	var out []*process.Process
	for _, c := range children {
		out = append(out, c)
		out = append(out, descendants(c)...)
	}
	return out
}

// scanLinesCR is bufio.ScanLines that also breaks on a bare carriage return.
func scanLinesCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func isStatsLine(line string) bool {
	return strings.HasPrefix(line, "frame=") || strings.HasPrefix(line, "size=")
}

// tail keeps the last stderrTailLines lines. It is written by one scanner
// and read only after that scanner has finished.
type tail struct {
	lines []string
}

func (t *tail) Add(line string) {
	if isStatsLine(line) {
		return
	}
	t.lines = append(t.lines, line)
	if len(t.lines) > stderrTailLines {
		t.lines = t.lines[len(t.lines)-stderrTailLines:]
	}
}

func (t *tail) Last() string {
	if len(t.lines) == 0 {
		return ""
	}
	return t.lines[len(t.lines)-1]
}

func (t *tail) String() string { return strings.Join(t.lines, "\n") }
