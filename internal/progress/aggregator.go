// Package progress turns the textual output of running transcoders into
// per-task records and one composite status line.
package progress

import (
	"io"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/backmassage/dashmaster/internal/display"
	"github.com/backmassage/dashmaster/internal/term"
)

// State is what the status line shows for a task.
type State int

const (
	StateActive State = iota
	StateRedo
	StateFailed
	StateDone
	StateCancelled
)

var (
	rePercent = regexp.MustCompile(`(?i)^\s*(?:(?:progress|percent)\s*[:=]\s*)?(\d{1,3}(?:\.\d+)?)\s*%`)
	reTime    = regexp.MustCompile(`time=\s*(\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)
	reSpeed   = regexp.MustCompile(`speed=\s*(\d+(?:\.\d+)?)x`)
)

// barMax is never reached so the bar stays live between assets; the
// composite line carries the real percentages.
const barMax = 1000

// drawInterval limits how often progress updates redraw the line. State
// changes always redraw.
const drawInterval = 100 * time.Millisecond

// Record is the progress of one task.
type Record struct {
	Name     string
	Percent  float64 // highest seen in the current attempt
	Speed    float64 // last reported throughput multiplier
	Errors   int     // failed attempts so far
	State    State
	duration time.Duration
}

// Aggregator collects progress for every task of one pipeline run. The
// record methods are called from the scheduler loop only; Clear may be
// called from any goroutine.
type Aggregator struct {
	records map[string]*Record
	order   []string

	mu       sync.Mutex // guards bar and lastDraw
	bar      *progressbar.ProgressBar
	throttle time.Duration
	lastDraw time.Time
}

// New returns an Aggregator. When w is nil no status line is drawn and the
// Aggregator only keeps records.
func New(w io.Writer) *Aggregator {
	a := &Aggregator{records: make(map[string]*Record), throttle: drawInterval}
	if w != nil {
		a.bar = progressbar.NewOptions(barMax,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetWidth(20),
			progressbar.OptionSetPredictTime(false),
		)
	}
	return a
}

func (a *Aggregator) record(task string) *Record {
	r, ok := a.records[task]
	if !ok {
		r = &Record{Name: task}
		a.records[task] = r
		a.order = append(a.order, task)
	}
	return r
}

// Begin starts a new attempt of task. duration is what the transcoder
// will emit and is the basis for time-to-percent conversion.
func (a *Aggregator) Begin(task string, duration time.Duration) {
	r := a.record(task)
	r.Percent = 0
	r.Speed = 0
	r.State = StateActive
	r.duration = duration
	a.render(true)
}

// Observe parses one chunk of transcoder output. A chunk may hold several
// CR- or LF-separated updates, or only part of one. Unparseable text is
// ignored.
func (a *Aggregator) Observe(task, line string) {
	r := a.record(task)
	changed := false
	for _, chunk := range strings.FieldsFunc(line, func(c rune) bool { return c == '\r' || c == '\n' }) {
		if p, ok := parsePercent(chunk, r.duration); ok && p > r.Percent {
			r.Percent = p
			changed = true
		}
		if m := reSpeed.FindStringSubmatch(chunk); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				r.Speed = v
				changed = true
			}
		}
	}
	if changed {
		a.render(false)
	}
}

// Percent returns the highest percent seen in task's current attempt.
func (a *Aggregator) Percent(task string) float64 {
	if r, ok := a.records[task]; ok {
		return r.Percent
	}
	return 0
}

// Speed returns task's last reported throughput.
func (a *Aggregator) Speed(task string) float64 {
	if r, ok := a.records[task]; ok {
		return r.Speed
	}
	return 0
}

// Fail counts a failed attempt.
func (a *Aggregator) Fail(task string) {
	r := a.record(task)
	r.Errors++
	r.State = StateFailed
	a.render(true)
}

// MarkRedo shows task as waiting on the redo queue.
func (a *Aggregator) MarkRedo(task string) {
	a.record(task).State = StateRedo
	a.render(true)
}

// Finish marks task done.
func (a *Aggregator) Finish(task string) {
	r := a.record(task)
	r.Percent = 100
	r.State = StateDone
	a.render(true)
}

// Cancel marks task cancelled by an abort.
func (a *Aggregator) Cancel(task string) {
	a.record(task).State = StateCancelled
	a.render(true)
}

// Record returns a copy of task's record.
func (a *Aggregator) Record(task string) (Record, bool) {
	r, ok := a.records[task]
	if !ok {
		return Record{}, false
	}
	return *r, true
}

// Overall is the mean percent across all tasks.
func (a *Aggregator) Overall() float64 {
	if len(a.order) == 0 {
		return 0
	}
	sum := 0.0
	for _, name := range a.order {
		sum += a.records[name].Percent
	}
	return sum / float64(len(a.order))
}

// Line renders the composite status, e.g.
// "1080p 42% 1.30x | 480p (redo) x2 | audio done".
func (a *Aggregator) Line() string {
	parts := make([]string, 0, len(a.order))
	for _, name := range a.order {
		parts = append(parts, segment(a.records[name]))
	}
	return strings.Join(parts, term.StyleMuted.Render(" | "))
}

func segment(r *Record) string {
	var s string
	switch r.State {
	case StateDone:
		s = term.StyleDone.Render(r.Name + " done")
	case StateRedo:
		s = term.StyleRedo.Render(r.Name + " (redo)")
	case StateFailed:
		s = term.StyleError.Render(r.Name + " failed")
	case StateCancelled:
		s = term.StyleMuted.Render(r.Name + " cancelled")
	default:
		s = r.Name + " " + display.FormatPercent(r.Percent)
		if r.Speed > 0 {
			s += " " + display.FormatSpeed(r.Speed)
		}
		s = term.StyleActive.Render(s)
	}
	if r.Errors > 0 && r.State != StateDone {
		s += term.StyleError.Render(" x" + strconv.Itoa(r.Errors))
	}
	return s
}

// Clear erases the status line so a log line can be printed. The next
// update redraws it.
func (a *Aggregator) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.bar != nil {
		_ = a.bar.Clear()
		a.lastDraw = time.Time{}
	}
}

// Close erases the status line for good.
func (a *Aggregator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.bar != nil {
		_ = a.bar.Clear()
		a.bar = nil
	}
}

// render redraws the status line. Unforced draws within the throttle of
// the previous draw are dropped.
func (a *Aggregator) render(force bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.bar == nil {
		return
	}
	now := time.Now()
	if !force && now.Sub(a.lastDraw) < a.throttle {
		return
	}
	a.lastDraw = now
	v := int(a.Overall() * 10)
	if v >= barMax {
		v = barMax - 1
	}
	a.bar.Describe(a.Line())
	_ = a.bar.Set(v)
	_ = a.bar.RenderBlank()
}

// parsePercent reads a percent token that opens the chunk, optionally
// keyed as "progress:" or "percent=", or converts a time= token against
// duration. Percent signs inside other text, such as stream metadata, are
// not progress.
func parsePercent(chunk string, duration time.Duration) (float64, bool) {
	if m := rePercent.FindStringSubmatch(chunk); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil && v <= 100 {
			return v, true
		}
	}
	if duration <= 0 {
		return 0, false
	}
	m := reTime.FindStringSubmatch(chunk)
	if m == nil {
		return 0, false
	}
	h, _ := strconv.Atoi(m[1])
	min, _ := strconv.Atoi(m[2])
	sec, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return 0, false
	}
	elapsed := time.Duration(h)*time.Hour + time.Duration(min)*time.Minute + time.Duration(sec*float64(time.Second))
	p := 100 * float64(elapsed) / float64(duration)
	if p > 100 {
		p = 100
	}
	return p, true
}
