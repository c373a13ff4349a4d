package planner

import (
	"time"

	"github.com/backmassage/dashmaster/internal/config"
	"github.com/backmassage/dashmaster/internal/naming"
	"github.com/backmassage/dashmaster/internal/probe"
	"github.com/backmassage/dashmaster/internal/source"
)

// Kind distinguishes what a rendition produces.
type Kind int

const (
	KindVideo  Kind = iota // a ladder rung, large or small
	KindAudio              // audio-only elementary stream for the manifest
	KindSample             // preview clip cut from a time window
)

func (k Kind) String() string {
	switch k {
	case KindAudio:
		return "audio"
	case KindSample:
		return "sample"
	default:
		return "video"
	}
}

// SkipReason explains an empty plan. Empty means there is work to do.
type SkipReason string

const (
	SkipNone       SkipReason = ""
	SkipIneligible SkipReason = "ineligible" // stereoscopic, or nothing to encode
	SkipComplete   SkipReason = "complete"   // every artifact already present
)

// Window is a time range of the source, used for the sample clip.
type Window struct {
	Start  time.Duration
	Length time.Duration
}

// Transform holds the per-asset picture adjustments applied to a video
// rendition. The zero value means "encode the frame as is".
type Transform struct {
	Deinterlace  bool
	Crop         *probe.Crop
	SquarePixels bool // stretch anamorphic sources to square pixels
	BurnSubtitle *source.Subtitle
	Window       *Window
}

// Rendition is one output the scheduler will produce.
type Rendition struct {
	Name   string // task name shown in progress ("1080p", "audio", "sample")
	Kind   Kind
	Height int
	Codec  config.Codec
	Small  bool
	CRF    int

	// Audio carries the primary audio track muxed in. For KindAudio it is
	// always true.
	Audio         bool
	AudioIndex    int
	AudioChannels int

	Input      string // asset path
	VideoIndex int
	Output     string // final path
	Transform  Transform
	Duration   time.Duration // what the transcoder will emit; basis for time-to-percent
}

// TempOutput is the path the transcoder writes before finalization.
func (r *Rendition) TempOutput() string { return naming.TempName(r.Output) }

// Plan is the planner's verdict for one asset.
type Plan struct {
	Skip       SkipReason
	Renditions []Rendition

	NeedsAudio      bool
	NeedsManifest   bool
	ManifestPresent bool
	LargeTotal      int // large renditions planned plus already present

	// ManifestVideos are the final paths of every large rendition the
	// manifest references, highest first. ManifestAudio is empty when the
	// asset has no audio.
	ManifestVideos []string
	ManifestAudio  string
	ManifestPath   string
}

// Complete reports whether nothing at all remains to be done.
func (p *Plan) Complete() bool {
	return len(p.Renditions) == 0 && (!p.NeedsManifest || p.ManifestPresent)
}
