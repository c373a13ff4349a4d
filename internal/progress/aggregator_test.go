package progress

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backmassage/dashmaster/internal/config"
	"github.com/backmassage/dashmaster/internal/term"
)

func init() { term.Configure(config.ColorNever) }

func TestObserve_Signals(t *testing.T) {
	tests := []struct {
		name      string
		duration  time.Duration
		lines     []string
		wantPct   float64
		wantSpeed float64
	}{
		{"explicit percent", 0, []string{"Progress: 42%"}, 42, 0},
		{"fractional percent", 0, []string{"12.5 %"}, 12.5, 0},
		{"time converted", 100 * time.Second, []string{"frame=10 fps=24 time=00:00:25.00 bitrate=1k speed=1.5x"}, 25, 1.5},
		{"hours", 2 * time.Hour, []string{"time=01:00:00.00"}, 50, 0},
		{"time without duration", 0, []string{"time=00:00:25.00"}, 0, 0},
		{"time clamped", 10 * time.Second, []string{"time=00:00:12.00"}, 100, 0},
		{"out of order keeps max", 100 * time.Second, []string{"time=00:00:40.00", "time=00:00:20.00"}, 40, 0},
		{"CR separated chunk", 100 * time.Second, []string{"time=00:00:10.00 speed=2x\rtime=00:00:30.00 speed=3.1x\r"}, 30, 3.1},
		{"partial line", 100 * time.Second, []string{"frame=1 ti", "me=N/A"}, 0, 0},
		{"garbage", 100 * time.Second, []string{"", "\x00\xff", "Stream #0:0: Video: h264", "999%"}, 0, 0},
		{"percent inside metadata", 2 * time.Hour, []string{"      title           : 100% Wolf", "time=00:06:00.00"}, 5, 0},
		{"percent after other text", 0, []string{"Input #0, matroska, from 'Best 50% Of.mkv':"}, 0, 0},
		{"keyed percent", 0, []string{"percent=63.5%"}, 63.5, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := New(nil)
			a.Begin("1080p", tt.duration)
			for _, l := range tt.lines {
				a.Observe("1080p", l)
			}
			assert.InDelta(t, tt.wantPct, a.Percent("1080p"), 0.001)
			assert.InDelta(t, tt.wantSpeed, a.Speed("1080p"), 0.001)
		})
	}
}

func TestBegin_ResetsAttempt(t *testing.T) {
	a := New(nil)
	a.Begin("480p", 0)
	a.Observe("480p", "55%")
	a.Fail("480p")
	a.Begin("480p", 0)
	assert.Zero(t, a.Percent("480p"))

	rec, ok := a.Record("480p")
	require.True(t, ok)
	assert.Equal(t, 1, rec.Errors, "error count survives a new attempt")
	assert.Equal(t, StateActive, rec.State)
}

func TestLine_Composite(t *testing.T) {
	a := New(nil)
	a.Begin("1080p", 0)
	a.Observe("1080p", "42%")
	a.Observe("1080p", "frame=9 speed=1.3x")
	a.Begin("480p", 0)
	a.Fail("480p")
	a.Begin("480p", 0)
	a.Fail("480p")
	a.MarkRedo("480p")
	a.Begin("audio", 0)
	a.Finish("audio")

	assert.Equal(t, "1080p 42% 1.30x | 480p (redo) x2 | audio done", a.Line())
	assert.InDelta(t, (42.0+0+100)/3, a.Overall(), 0.001)
}

func TestLine_Cancelled(t *testing.T) {
	a := New(nil)
	a.Begin("720p", 0)
	a.Cancel("720p")
	assert.Equal(t, "720p cancelled", a.Line())
}

func TestUnknownTask(t *testing.T) {
	a := New(nil)
	assert.Zero(t, a.Percent("nope"))
	assert.Zero(t, a.Overall())
	_, ok := a.Record("nope")
	assert.False(t, ok)
	assert.Equal(t, "", a.Line())
}

func TestStatusLineDrawn(t *testing.T) {
	var buf bytes.Buffer
	a := New(&buf)
	a.Begin("1080p", 0)
	assert.Contains(t, buf.String(), "1080p 0%")

	a.Observe("1080p", "50%")
	assert.NotContains(t, buf.String(), "1080p 50%", "updates inside the draw interval are dropped")
	assert.InDelta(t, 50, a.Percent("1080p"), 0.001)

	a.Finish("1080p")
	assert.Contains(t, buf.String(), "1080p done", "state changes always draw")

	a.Close()
	n := buf.Len()
	a.Observe("1080p", "50%")
	assert.Equal(t, n, buf.Len(), "nothing drawn after Close")
}

func TestStatusLineUnthrottled(t *testing.T) {
	var buf bytes.Buffer
	a := New(&buf)
	a.throttle = 0
	a.Begin("720p", 0)
	a.Observe("720p", "25%")
	assert.Contains(t, buf.String(), "720p 25%")

	a.Clear()
	a.throttle = time.Hour
	a.Observe("720p", "30%")
	assert.Contains(t, buf.String(), "720p 30%", "first update after Clear redraws")
}
