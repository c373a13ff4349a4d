package naming

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/backmassage/dashmaster/internal/config"
)

// TempMarker is inserted before the extension of every file while it is
// being written. It is removed only by the final rename.
const TempMarker = ".tmp"

// BusyMarker is the sentinel file name created in an output directory while
// a pipeline run owns it.
const BusyMarker = ".dashmaster.busy"

// SegmentSuffix ends the name of each fragmented stream the muxer writes
// for a manifest, e.g. "Movie.1080p.h264_dashinit.mp4".
const SegmentSuffix = "_dashinit.mp4"

const (
	audioSuffix    = ".audio.m4a"
	sampleSuffix   = ".sample.webm"
	manifestSuffix = ".mpd"
	reportSuffix   = ".dashmaster-error.txt"
)

// reVideoName matches "<base>.<H>p.<codec>.<ext>".
var reVideoName = regexp.MustCompile(`^(.+)\.([0-9]{2,4})p\.(h264|hevc|vp9|av1)\.(mp4|webm)$`)

// Base returns the asset's file name without directory or extension.
func Base(assetPath string) string {
	name := filepath.Base(assetPath)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// ContainerFor returns the file extension (without dot) used for a codec:
// mp4 for the large codecs, webm for the small ones.
func ContainerFor(codec config.Codec) string {
	switch codec {
	case config.CodecVP9, config.CodecAV1:
		return "webm"
	default:
		return "mp4"
	}
}

// VideoName is the final name of a video rendition, e.g. "Movie.1080p.h264.mp4".
func VideoName(base string, height int, codec config.Codec) string {
	return fmt.Sprintf("%s.%dp.%s.%s", base, height, codec, ContainerFor(codec))
}

// AudioName is the final name of the audio-only elementary stream.
func AudioName(base string) string { return base + audioSuffix }

// SampleName is the final name of the preview sample clip.
func SampleName(base string) string { return base + sampleSuffix }

// ManifestName is the final name of the adaptive manifest.
func ManifestName(base string) string { return base + manifestSuffix }

// ErrorReportName is the name of the report written beside the asset when
// manifest assembly fails.
func ErrorReportName(base string) string { return base + reportSuffix }

// StagingDirName is the hidden directory, beside the manifest, the muxer
// writes into before its outputs are renamed into place.
func StagingDirName(base string) string { return "." + base + TempMarker + ".dash" }

// VideoInfo is the decoded form of a video rendition name.
type VideoInfo struct {
	Base   string
	Height int
	Codec  config.Codec
}

// ParseVideoName decodes a final rendition name. Temp names never parse.
func ParseVideoName(name string) (VideoInfo, bool) {
	m := reVideoName.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return VideoInfo{}, false
	}
	codec := config.Codec(m[3])
	if ContainerFor(codec) != m[4] {
		return VideoInfo{}, false
	}
	h, _ := strconv.Atoi(m[2])
	return VideoInfo{Base: m[1], Height: h, Codec: codec}, true
}

// TempName inserts [TempMarker] before the extension of path:
// "/out/Movie.720p.h264.mp4" becomes "/out/Movie.720p.h264.tmp.mp4".
func TempName(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + TempMarker + ext
}

// FinalName reverses [TempName]. ok is false when path carries no marker.
func FinalName(path string) (final string, ok bool) {
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	if !strings.HasSuffix(stem, TempMarker) {
		return path, false
	}
	return strings.TrimSuffix(stem, TempMarker) + ext, true
}

// IsTempName reports whether name is an unfinished output.
func IsTempName(name string) bool {
	_, ok := FinalName(filepath.Base(name))
	return ok
}

// IsArtifactName reports whether name is something dashmaster writes,
// finished or not. Discovery uses it so outputs are never treated as assets.
func IsArtifactName(name string) bool {
	name = filepath.Base(name)
	if name == BusyMarker || IsTempName(name) {
		return true
	}
	if _, ok := ParseVideoName(name); ok {
		return true
	}
	for _, suffix := range []string{audioSuffix, sampleSuffix, manifestSuffix, reportSuffix, SegmentSuffix} {
		if strings.HasSuffix(name, suffix) && len(name) > len(suffix) {
			return true
		}
	}
	return false
}
