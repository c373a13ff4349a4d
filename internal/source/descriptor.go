// Package source builds the immutable snapshot of one asset that the
// rendition planner works from: geometry, duration, audio layout,
// classification, and which artifacts already exist in the output directory.
package source

import (
	"context"
	"path/filepath"
	"regexp"
	"time"

	"github.com/backmassage/dashmaster/internal/config"
	"github.com/backmassage/dashmaster/internal/naming"
	"github.com/backmassage/dashmaster/internal/probe"
)

// Subtitle identifies the subtitle stream burned into small renditions.
type Subtitle struct {
	Index   int // absolute stream index
	Ordinal int // position among subtitle streams
	Bitmap  bool
}

// Descriptor is a read-only snapshot of an asset, produced once per asset
// per pipeline run.
type Descriptor struct {
	Path      string
	Base      string // asset file name without extension
	OutputDir string
	Class     naming.MediaType

	HasVideo      bool
	VideoIndex    int // absolute index of the primary video stream
	Width         int
	Height        int
	DisplayWidth  int // width * SAR
	SARNum        int
	SARDen        int
	Interlaced    bool
	Stereo3D      bool
	Crop          *probe.Crop
	BurnSubtitle  *Subtitle
	Duration      time.Duration
	AudioIndex    int // absolute index of the primary audio stream, -1 if none
	AudioChannels int

	Present Presence
}

// DurationMicros is the duration in microseconds.
func (d *Descriptor) DurationMicros() int64 { return d.Duration.Microseconds() }

// Anamorphic reports whether the source uses non-square pixels.
func (d *Descriptor) Anamorphic() bool { return d.SARNum != d.SARDen }

// reStereoName catches 3-D releases whose container carries no stereo flag.
var reStereoName = regexp.MustCompile(`(?i)(^|[^[:alnum:]])(H?SBS|H?TAB|3D)([^[:alnum:]]|$)`)

// Describe probes assetPath and scans outputDir for existing artifacts.
// When cfg.DetectCrop is set a short cropdetect pass runs as well; its
// failure only means no crop is applied.
func Describe(ctx context.Context, cfg *config.Config, assetPath, outputDir string) (*Descriptor, error) {
	pr, err := probe.Probe(ctx, cfg.FFprobePath, assetPath, cfg.FFmpegProbesize, cfg.FFmpegAnalyzeDuration)
	if err != nil {
		return nil, err
	}
	present, err := ScanPresence(outputDir, naming.Base(assetPath))
	if err != nil {
		return nil, err
	}

	d := FromProbe(pr, assetPath, outputDir, cfg.BurnSubtitles, present)

	if cfg.DetectCrop && d.HasVideo && !d.Stereo3D {
		offset := time.Duration(float64(d.Duration) * cfg.SampleOffsetFraction)
		if c, ok, err := probe.DetectCrop(ctx, cfg.FFmpegPath, assetPath, offset, d.Width, d.Height); err == nil && ok {
			d.Crop = &c
		}
	}
	return d, nil
}

// FromProbe assembles a Descriptor from an already-parsed probe result.
func FromProbe(pr *probe.ProbeResult, assetPath, outputDir string, burnSubs bool, present Presence) *Descriptor {
	if present == nil {
		present = Presence{}
	}
	d := &Descriptor{
		Path:       assetPath,
		Base:       naming.Base(assetPath),
		OutputDir:  outputDir,
		Class:      naming.Classify(assetPath),
		Duration:   time.Duration(pr.Format.Duration * float64(time.Second)),
		AudioIndex: -1,
		SARNum:     1,
		SARDen:     1,
		Present:    present,
	}

	if v := pr.PrimaryVideo; v != nil && v.Width > 0 && v.Height > 0 {
		d.HasVideo = true
		d.VideoIndex = v.Index
		d.Width = v.Width
		d.Height = v.Height
		d.SARNum, d.SARDen = pr.SampleAspect()
		d.DisplayWidth = pr.DisplayWidth()
		d.Interlaced = pr.IsInterlaced()
		d.Stereo3D = pr.IsStereo3D() || reStereoName.MatchString(filepath.Base(assetPath))
	}

	if a := pr.PrimaryAudio(); a != nil {
		d.AudioIndex = a.Index
		d.AudioChannels = a.Channels
	}

	if burnSubs {
		if s := pr.ForcedSubtitle(); s != nil {
			d.BurnSubtitle = &Subtitle{Index: s.Index, Ordinal: s.Ordinal, Bitmap: s.IsBitmap}
		}
	}
	return d
}
