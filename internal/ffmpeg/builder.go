package ffmpeg

import (
	"fmt"
	"strconv"
	"time"

	"github.com/backmassage/dashmaster/internal/config"
	"github.com/backmassage/dashmaster/internal/naming"
	"github.com/backmassage/dashmaster/internal/planner"
)

// maxAudioChannels caps the channel count of AAC outputs (5.1).
const maxAudioChannels = 6

// Build constructs the complete ffmpeg argument slice for a rendition.
// args[0] is the configured ffmpeg binary. The output is always the
// rendition's temp path; the scheduler renames it on success.
//
// The retry state supplies the mux queue size, the timestamp fix, and
// whether a subtitle is still burned in, all of which may differ from
// the rendition's initial values after remedies were applied.
func Build(cfg *config.Config, r *planner.Rendition, rs *RetryState) []string {
	args := make([]string, 0, 64)

	// --- Preamble ---
	args = append(args, cfg.FFmpegPath, "-hide_banner", "-nostdin", "-y")
	if cfg.Verbose {
		args = append(args, "-loglevel", "info")
	} else {
		args = append(args, "-loglevel", "error")
	}
	// -stats keeps the time= progress lines coming even at -loglevel error.
	args = append(args, "-stats",
		"-probesize", cfg.FFmpegProbesize,
		"-analyzeduration", cfg.FFmpegAnalyzeDuration,
	)

	// --- Pre-input flags (timestamp fix) ---
	if rs.TimestampFix {
		args = append(args, "-fflags", "+genpts+discardcorrupt")
	}

	// --- Input and time window ---
	// Text subtitles rendered by the subtitles filter are timed against the
	// whole input, so a burned-in text subtitle forces output seeking.
	window := r.Transform.Window
	outputSeek := window != nil && burnsTextSubtitle(r, rs)
	if window != nil && !outputSeek {
		args = append(args, "-ss", seconds(window.Start))
	}
	args = append(args, "-i", r.Input)
	if outputSeek {
		args = append(args, "-ss", seconds(window.Start))
	}
	if window != nil {
		args = append(args, "-t", seconds(window.Length))
	}

	// --- Streams and codecs ---
	container := naming.ContainerFor(r.Codec)
	if r.Kind == planner.KindAudio {
		container = "mp4"
		args = appendAudioOnly(args, cfg, r)
	} else {
		args = appendVideo(args, cfg, r, rs)
		args = appendMuxedAudio(args, cfg, r, container)
	}

	// --- Global stream flags ---
	args = append(args,
		"-max_muxing_queue_size", strconv.Itoa(rs.MuxQueueSize),
		"-map_metadata", "-1",
		"-map_chapters", "-1",
	)
	if rs.TimestampFix {
		args = append(args, "-avoid_negative_ts", "make_zero")
	}

	// --- Container ---
	if container == "mp4" {
		args = append(args, "-movflags", "+faststart")
	}
	args = append(args, "-f", container, r.TempOutput())
	return args
}

// appendVideo adds the filter graph, the video map, and the encoder.
func appendVideo(args []string, cfg *config.Config, r *planner.Rendition, rs *RetryState) []string {
	graph := *r
	if !rs.BurnIn {
		graph.Transform.BurnSubtitle = nil
	}
	args = append(args,
		"-filter_complex", planner.BuildFilterGraph(&graph),
		"-map", "["+planner.OutLabel+"]",
		"-sn", "-dn",
	)

	gop := strconv.Itoa(cfg.KeyframeInterval)
	crf := strconv.Itoa(r.CRF)
	switch r.Codec {
	case config.CodecHEVC:
		args = append(args,
			"-c:v", VideoEncoder(r.Codec),
			"-preset", cfg.X264Preset,
			"-crf", crf,
			"-tag:v", "hvc1",
			"-x265-params", fmt.Sprintf("keyint=%s:min-keyint=%s:scenecut=0:log-level=error", gop, gop),
		)
	case config.CodecVP9:
		args = append(args,
			"-c:v", VideoEncoder(r.Codec),
			"-crf", crf, "-b:v", "0",
			"-row-mt", "1",
			"-deadline", "good",
			"-cpu-used", "2",
			"-g", gop,
		)
	case config.CodecAV1:
		args = append(args,
			"-c:v", VideoEncoder(r.Codec),
			"-crf", crf, "-b:v", "0",
			"-row-mt", "1",
			"-cpu-used", "6",
			"-g", gop,
		)
	default:
		args = append(args,
			"-c:v", VideoEncoder(r.Codec),
			"-preset", cfg.X264Preset,
			"-crf", crf,
			"-profile:v", "high",
			"-g", gop,
			"-keyint_min", gop,
			"-sc_threshold", "0",
		)
	}
	return args
}

// appendMuxedAudio maps the primary audio track into a video rendition,
// or disables audio when the rendition carries none.
func appendMuxedAudio(args []string, cfg *config.Config, r *planner.Rendition, container string) []string {
	if !r.Audio || r.AudioIndex < 0 {
		return append(args, "-an")
	}
	args = append(args, "-map", fmt.Sprintf("0:%d", r.AudioIndex))
	if container == "webm" {
		return append(args,
			"-c:a", "libopus",
			"-b:a", cfg.SmallAudioBitrate,
			"-ac", "2",
		)
	}
	return appendAAC(args, cfg, r.AudioChannels)
}

// appendAudioOnly builds the manifest's audio elementary stream.
func appendAudioOnly(args []string, cfg *config.Config, r *planner.Rendition) []string {
	args = append(args,
		"-map", fmt.Sprintf("0:%d", r.AudioIndex),
		"-vn", "-sn", "-dn",
	)
	return appendAAC(args, cfg, r.AudioChannels)
}

func appendAAC(args []string, cfg *config.Config, channels int) []string {
	bitrate := cfg.StereoBitrate
	switch {
	case channels > maxAudioChannels:
		channels = maxAudioChannels
		bitrate = cfg.SurroundBitrate
	case channels > 2:
		bitrate = cfg.SurroundBitrate
	case channels < 1:
		channels = 2
	}
	return append(args,
		"-c:a", "aac",
		"-b:a", bitrate,
		"-ac", strconv.Itoa(channels),
	)
}

// VideoEncoder names the ffmpeg encoder that renders codec.
func VideoEncoder(c config.Codec) string {
	switch c {
	case config.CodecHEVC:
		return "libx265"
	case config.CodecVP9:
		return "libvpx-vp9"
	case config.CodecAV1:
		return "libaom-av1"
	default:
		return "libx264"
	}
}

func burnsTextSubtitle(r *planner.Rendition, rs *RetryState) bool {
	s := r.Transform.BurnSubtitle
	return rs.BurnIn && s != nil && !s.Bitmap
}

// seconds formats d the way ffmpeg's time options accept it.
func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}
