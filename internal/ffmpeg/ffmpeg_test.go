package ffmpeg

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backmassage/dashmaster/internal/config"
	"github.com/backmassage/dashmaster/internal/logging"
	"github.com/backmassage/dashmaster/internal/planner"
	"github.com/backmassage/dashmaster/internal/source"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	return &cfg
}

func large1080() *planner.Rendition {
	return &planner.Rendition{
		Name: "1080p", Kind: planner.KindVideo, Height: 1080, Codec: config.CodecH264, CRF: 20,
		AudioIndex: -1, Input: "/lib/Movie.mkv", VideoIndex: 0,
		Output: "/out/Movie.1080p.h264.mp4", Duration: time.Hour,
	}
}

func small360() *planner.Rendition {
	return &planner.Rendition{
		Name: "360p", Kind: planner.KindVideo, Height: 360, Codec: config.CodecVP9, Small: true, CRF: 33,
		Audio: true, AudioIndex: 1, AudioChannels: 6, Input: "/lib/Movie.mkv", VideoIndex: 0,
		Output: "/out/Movie.360p.vp9.webm", Duration: time.Hour,
	}
}

// value returns the argument following flag, or "" when flag is absent.
func value(args []string, flag string) string {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func index(args []string, flag string) int {
	for i, a := range args {
		if a == flag {
			return i
		}
	}
	return -1
}

func TestBuild_LargeH264(t *testing.T) {
	cfg := testConfig()
	r := large1080()
	args := Build(cfg, r, NewRetryState(r))

	assert.Equal(t, "ffmpeg", args[0])
	assert.Equal(t, "/out/Movie.1080p.h264.tmp.mp4", args[len(args)-1])
	assert.Equal(t, "mp4", value(args, "-f"))
	assert.Equal(t, "libx264", value(args, "-c:v"))
	assert.Equal(t, "20", value(args, "-crf"))
	assert.Equal(t, "48", value(args, "-g"))
	assert.Equal(t, "0", value(args, "-sc_threshold"))
	assert.Equal(t, "[vout]", value(args, "-map"))
	assert.Equal(t, "+faststart", value(args, "-movflags"))
	assert.Contains(t, args, "-an")
	assert.Contains(t, args, "-stats")
	assert.Equal(t, "4096", value(args, "-max_muxing_queue_size"))
	assert.NotContains(t, args, "-fflags")
	assert.Contains(t, value(args, "-filter_complex"), "scale=w=1920:h=1080")
}

func TestBuild_SmallVP9CarriesOpus(t *testing.T) {
	r := small360()
	args := Build(testConfig(), r, NewRetryState(r))

	assert.Equal(t, "libvpx-vp9", value(args, "-c:v"))
	assert.Equal(t, "0", value(args, "-b:v"))
	assert.Equal(t, "libopus", value(args, "-c:a"))
	assert.Equal(t, "96k", value(args, "-b:a"))
	assert.Equal(t, "2", value(args, "-ac"))
	assert.Equal(t, "webm", value(args, "-f"))
	assert.NotContains(t, args, "-movflags")
	assert.Contains(t, strings.Join(args, " "), "-map 0:1")
}

func TestBuild_LoneLargeCarriesAAC(t *testing.T) {
	r := large1080()
	r.Audio, r.AudioIndex, r.AudioChannels = true, 2, 8
	args := Build(testConfig(), r, NewRetryState(r))

	assert.Equal(t, "aac", value(args, "-c:a"))
	assert.Equal(t, "384k", value(args, "-b:a"))
	assert.Equal(t, "6", value(args, "-ac"), "channels capped at 5.1")
	assert.NotContains(t, args, "-an")
}

func TestBuild_AudioOnly(t *testing.T) {
	r := &planner.Rendition{
		Name: "audio", Kind: planner.KindAudio, Audio: true, AudioIndex: 1, AudioChannels: 2,
		Input: "/lib/Movie.mkv", VideoIndex: -1, Output: "/out/Movie.audio.m4a",
	}
	args := Build(testConfig(), r, NewRetryState(r))

	assert.Equal(t, "0:1", value(args, "-map"))
	assert.Contains(t, args, "-vn")
	assert.NotContains(t, args, "-filter_complex")
	assert.Equal(t, "aac", value(args, "-c:a"))
	assert.Equal(t, "192k", value(args, "-b:a"))
	assert.Equal(t, "mp4", value(args, "-f"))
	assert.Equal(t, "/out/Movie.audio.tmp.m4a", args[len(args)-1])
}

func TestBuild_SampleWindow(t *testing.T) {
	window := &planner.Window{Start: 90 * time.Second, Length: 30 * time.Second}

	t.Run("input seeking", func(t *testing.T) {
		r := small360()
		r.Kind = planner.KindSample
		r.Transform.Window = window
		args := Build(testConfig(), r, NewRetryState(r))
		assert.Equal(t, "90.000", value(args, "-ss"))
		assert.Equal(t, "30.000", value(args, "-t"))
		assert.Less(t, index(args, "-ss"), index(args, "-i"))
	})

	t.Run("output seeking with text subtitle", func(t *testing.T) {
		r := small360()
		r.Kind = planner.KindSample
		r.Transform.Window = window
		r.Transform.BurnSubtitle = &source.Subtitle{Index: 3, Ordinal: 0}
		args := Build(testConfig(), r, NewRetryState(r))
		assert.Greater(t, index(args, "-ss"), index(args, "-i"))
		assert.Contains(t, value(args, "-filter_complex"), "subtitles=")
	})
}

func TestBuild_RetryStateApplied(t *testing.T) {
	r := small360()
	r.Transform.BurnSubtitle = &source.Subtitle{Index: 4, Bitmap: true}
	rs := NewRetryState(r)
	require.True(t, rs.BurnIn)
	assert.Contains(t, value(Build(testConfig(), r, rs), "-filter_complex"), "overlay")

	rs.BurnIn = false
	rs.MuxQueueSize = muxQueueEscalate
	rs.TimestampFix = true
	args := Build(testConfig(), r, rs)
	assert.NotContains(t, value(args, "-filter_complex"), "overlay")
	assert.Equal(t, "16384", value(args, "-max_muxing_queue_size"))
	assert.Equal(t, "+genpts+discardcorrupt", value(args, "-fflags"))
	assert.Equal(t, "make_zero", value(args, "-avoid_negative_ts"))
	assert.Less(t, index(args, "-fflags"), index(args, "-i"))
}

func TestRetryState_Advance(t *testing.T) {
	r := small360()
	r.Transform.BurnSubtitle = &source.Subtitle{Index: 4}
	rs := NewRetryState(r)

	stderr := "[Parsed_subtitles_5 @ 0x1] Unable to locate subtitle stream\n" +
		"Too many packets buffered for output stream 0:1.\n" +
		"Non-monotonous DTS in output stream 0:1"

	assert.Equal(t, RetryDropBurnIn, rs.Advance(stderr))
	assert.Equal(t, RetryIncreaseMux, rs.Advance(stderr))
	assert.Equal(t, RetryFixTimestamps, rs.Advance(stderr))
	assert.Equal(t, RetryNone, rs.Advance(stderr))
	assert.Equal(t, 4, rs.Attempt)
	assert.Equal(t, RetryNone, rs.Advance("Conversion failed!"))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		stderr string
		want   string
	}{
		{"av_malloc: Cannot allocate memory", "out of memory"},
		{"Error writing trailer: No space left on device", "disk full"},
		{"/lib/x.mkv: Invalid data found when processing input", "invalid input"},
		{"Unknown encoder 'libfoo'", "encoder unavailable"},
		{"Too many packets buffered for output stream 0:0.", "mux queue overflow"},
		{"Conversion failed!", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.stderr), tt.stderr)
	}
}

func TestScanLinesCR(t *testing.T) {
	sc := bufio.NewScanner(strings.NewReader("frame=1 time=00:00:01.00\rframe=2 time=00:00:02.00\rdone\nlast"))
	sc.Split(scanLinesCR)
	var got []string
	for sc.Scan() {
		got = append(got, sc.Text())
	}
	assert.Equal(t, []string{"frame=1 time=00:00:01.00", "frame=2 time=00:00:02.00", "done", "last"}, got)
}

func TestTail(t *testing.T) {
	var tl tail
	for i := 0; i < stderrTailLines+10; i++ {
		tl.Add("line")
	}
	tl.Add("frame=10 fps=1.0 time=00:00:01.00")
	tl.Add("Conversion failed!")
	assert.Len(t, tl.lines, stderrTailLines)
	assert.Equal(t, "Conversion failed!", tl.Last())
}

// --- Launcher against a shell stand-in for ffmpeg ---

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs /bin/sh")
	}
	path := filepath.Join(t.TempDir(), "fake-ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func drain(p interface{ Lines() <-chan string }) []string {
	var lines []string
	for l := range p.Lines() {
		lines = append(lines, l)
	}
	return lines
}

func TestLauncher_StreamsLinesAndWritesTemp(t *testing.T) {
	cfg := testConfig()
	cfg.FFmpegPath = writeScript(t, `for last; do :; done
printf 'frame=1 time=00:00:01.00 speed=2.0x\rframe=2 time=00:00:02.00 speed=2.0x\r' >&2
printf 'ftypisom' > "$last"
exit 0
`)
	out := t.TempDir()
	r := large1080()
	r.Output = filepath.Join(out, "Movie.1080p.h264.mp4")

	l := NewLauncher(cfg, logging.Discard())
	p, err := l.Start(context.Background(), r, 1)
	require.NoError(t, err)

	lines := drain(p)
	require.NoError(t, p.Wait())
	assert.Equal(t, []string{"frame=1 time=00:00:01.00 speed=2.0x", "frame=2 time=00:00:02.00 speed=2.0x"}, lines)
	assert.FileExists(t, r.TempOutput())
	assert.NoFileExists(t, r.Output)
}

func TestLauncher_FailureAdvancesRemedy(t *testing.T) {
	cfg := testConfig()
	cfg.FFmpegPath = writeScript(t, `echo "Too many packets buffered for output stream 0:0." >&2
exit 1
`)
	r := large1080()
	r.Output = filepath.Join(t.TempDir(), "Movie.1080p.h264.mp4")
	l := NewLauncher(cfg, logging.Discard())

	p, err := l.Start(context.Background(), r, 1)
	require.NoError(t, err)
	drain(p)
	err = p.Wait()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mux queue overflow")

	p, err = l.Start(context.Background(), r, 2)
	require.NoError(t, err)
	drain(p)
	_ = p.Wait()
	assert.Equal(t, muxQueueEscalate, l.retries[r.Output].MuxQueueSize)

	_, err = l.Start(context.Background(), r, 1)
	require.NoError(t, err)
	assert.Equal(t, muxQueueDefault, l.retries[r.Output].MuxQueueSize, "first attempt resets remedies")
}

func TestLauncher_TerminateKillsTree(t *testing.T) {
	cfg := testConfig()
	cfg.FFmpegPath = writeScript(t, `sleep 30 &
wait
`)
	r := large1080()
	r.Output = filepath.Join(t.TempDir(), "Movie.1080p.h264.mp4")
	l := NewLauncher(cfg, logging.Discard())
	l.grace = 200 * time.Millisecond

	p, err := l.Start(context.Background(), r, 1)
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, p.Terminate())

	done := make(chan error, 1)
	go func() {
		drain(p)
		done <- p.Wait()
	}()
	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("process tree survived Terminate")
	}
}

func TestLauncher_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewLauncher(testConfig(), logging.Discard()).Start(ctx, large1080(), 1)
	assert.ErrorIs(t, err, context.Canceled)
}
