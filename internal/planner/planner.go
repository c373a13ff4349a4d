package planner

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/backmassage/dashmaster/internal/config"
	"github.com/backmassage/dashmaster/internal/naming"
	"github.com/backmassage/dashmaster/internal/source"
)

// BuildPlan produces the Plan for one asset. This is the decision matrix the
// pipeline calls for every asset.
//
// Flow:
//  1. Reject stereoscopic sources and sources with nothing to encode
//  2. Walk the ladder: cap by classification, drop upscales, drop renditions
//     an equivalent-or-better file already covers
//  3. Count large renditions (planned + present) to decide audio and manifest
//  4. Append the audio stream and the optional sample clip
func BuildPlan(cfg *config.Config, d *source.Descriptor) *Plan {
	manifestName := naming.ManifestName(d.Base)
	p := &Plan{
		ManifestPath:    filepath.Join(d.OutputDir, manifestName),
		ManifestPresent: d.Present.Has(manifestName),
	}

	// --- 1. Eligibility ---
	if d.Stereo3D || (!d.HasVideo && d.AudioChannels == 0) {
		p.Skip = SkipIneligible
		return p
	}
	hasAudio := d.AudioChannels > 0 && d.AudioIndex >= 0

	// --- 2. Ladder ---
	tf := Transform{
		Deinterlace:  d.Interlaced,
		Crop:         d.Crop,
		SquarePixels: d.Anamorphic(),
	}
	tier := NativeTier(d)
	names := make(map[string]bool)
	var planned []Rendition

	if d.HasVideo {
		for _, c := range cfg.Renditions {
			if !Allowed(cfg, d.Class, c.Height) || Upscales(c.Height, tier, cfg.UpscaleTolerance) {
				continue
			}
			if PresentEquivalent(d.Present, d.Base, c) {
				continue
			}
			planned = append(planned, videoRendition(cfg, d, c, tf, hasAudio, names))
		}
	}

	present := presentLarge(d)
	largeHeights := make(map[int]string, len(present))
	for h, path := range present {
		largeHeights[h] = path
	}
	for _, r := range planned {
		if !r.Small {
			largeHeights[r.Height] = r.Output
		}
	}

	// A source below every large rung still gets one large rendition at its
	// own height so it is playable at full quality.
	if d.HasVideo && len(largeHeights) == 0 {
		if c, ok := fallbackLarge(cfg, d, tier); ok && !PresentEquivalent(d.Present, d.Base, c) {
			r := videoRendition(cfg, d, c, tf, hasAudio, names)
			planned = append([]Rendition{r}, planned...)
			largeHeights[r.Height] = r.Output
		}
	}

	// --- 3. Audio and manifest ---
	p.LargeTotal = len(largeHeights)
	p.NeedsManifest = p.LargeTotal > 1
	for i := range planned {
		if !planned[i].Small {
			// Only a lone large rendition carries audio itself; otherwise
			// the audio stream is a separate manifest entry.
			planned[i].Audio = hasAudio && !p.NeedsManifest
			if !planned[i].Audio {
				planned[i].AudioIndex = -1
				planned[i].AudioChannels = 0
			}
		}
	}

	audioPath := filepath.Join(d.OutputDir, naming.AudioName(d.Base))
	audioPresent := d.Present.Has(naming.AudioName(d.Base))
	if hasAudio && (p.NeedsManifest || !d.HasVideo) {
		p.NeedsAudio = !audioPresent
		if p.NeedsManifest {
			p.ManifestAudio = audioPath
		}
	}
	if p.NeedsManifest {
		heights := make([]int, 0, len(largeHeights))
		for h := range largeHeights {
			heights = append(heights, h)
		}
		sort.Sort(sort.Reverse(sort.IntSlice(heights)))
		for _, h := range heights {
			p.ManifestVideos = append(p.ManifestVideos, largeHeights[h])
		}
	}

	// --- 4. Audio stream and sample ---
	p.Renditions = planned
	if p.NeedsAudio {
		p.Renditions = append(p.Renditions, Rendition{
			Name:          "audio",
			Kind:          KindAudio,
			Audio:         true,
			AudioIndex:    d.AudioIndex,
			AudioChannels: d.AudioChannels,
			Input:         d.Path,
			VideoIndex:    -1,
			Output:        audioPath,
			Duration:      d.Duration,
		})
	}
	if r, ok := sampleRendition(cfg, d, tf, tier, hasAudio); ok {
		p.Renditions = append(p.Renditions, r)
	}

	if p.Complete() {
		p.Skip = SkipComplete
	}
	return p
}

// NativeTier is the height of the 16:9 box the source fills after crop and
// pixel-aspect correction: a 1920x800 scope film counts as 1080.
func NativeTier(d *source.Descriptor) int {
	h, dw := d.Height, d.DisplayWidth
	if d.Crop != nil {
		h = d.Crop.Height
		dw = d.Crop.Width * d.SARNum / d.SARDen
	}
	if boxed := dw * 9 / 16; boxed > h {
		return boxed
	}
	return h
}

// Upscales reports whether rendering height would exceed the source tier by
// more than tolerance (a fraction; 0.05 allows 5%).
func Upscales(height, tier int, tolerance float64) bool {
	return float64(height) > float64(tier)*(1+tolerance)
}

// Allowed applies the classification caps. A cap of zero means uncapped.
func Allowed(cfg *config.Config, class naming.MediaType, height int) bool {
	var limit int
	switch class {
	case naming.MediaTV:
		limit = cfg.TVMaxHeight
	case naming.MediaExtra:
		limit = cfg.ExtraMaxHeight
	}
	return limit <= 0 || height <= limit
}

// PresentEquivalent reports whether the candidate itself, or a rendition of
// the same height and class with an equal or better codec, already exists.
func PresentEquivalent(present source.Presence, base string, c config.RenditionConfig) bool {
	if present.Has(naming.VideoName(base, c.Height, c.Codec)) {
		return true
	}
	for _, v := range present.Videos() {
		if v.Height == c.Height && IsSmallCodec(v.Codec) == c.Small && codecRank(v.Codec) >= codecRank(c.Codec) {
			return true
		}
	}
	return false
}

// IsSmallCodec reports whether codec belongs to the small (webm) class.
func IsSmallCodec(codec config.Codec) bool {
	return codec == config.CodecVP9 || codec == config.CodecAV1
}

func codecRank(codec config.Codec) int {
	switch codec {
	case config.CodecHEVC, config.CodecAV1:
		return 2
	default:
		return 1
	}
}

// presentLarge maps height to the best large rendition on disk.
func presentLarge(d *source.Descriptor) map[int]string {
	out := make(map[int]string)
	best := make(map[int]int)
	for _, v := range d.Present.Videos() {
		if IsSmallCodec(v.Codec) {
			continue
		}
		if codecRank(v.Codec) > best[v.Height] {
			best[v.Height] = codecRank(v.Codec)
			out[v.Height] = filepath.Join(d.OutputDir, naming.VideoName(d.Base, v.Height, v.Codec))
		}
	}
	return out
}

// fallbackLarge picks the lowest large rung and resizes it to the source tier.
func fallbackLarge(cfg *config.Config, d *source.Descriptor, tier int) (config.RenditionConfig, bool) {
	var pick config.RenditionConfig
	found := false
	for _, c := range cfg.Renditions {
		if c.Small || !Allowed(cfg, d.Class, c.Height) {
			continue
		}
		if !found || c.Height < pick.Height {
			pick, found = c, true
		}
	}
	if !found || tier < 2 {
		return pick, false
	}
	if tier < pick.Height {
		pick.Height = tier &^ 1
	}
	return pick, true
}

func videoRendition(cfg *config.Config, d *source.Descriptor, c config.RenditionConfig, tf Transform, hasAudio bool, names map[string]bool) Rendition {
	name := fmt.Sprintf("%dp", c.Height)
	if names[name] {
		name = fmt.Sprintf("%dp-%s", c.Height, c.Codec)
	}
	names[name] = true

	if c.Small {
		tf.BurnSubtitle = d.BurnSubtitle
	}
	r := Rendition{
		Name:       name,
		Kind:       KindVideo,
		Height:     c.Height,
		Codec:      c.Codec,
		Small:      c.Small,
		CRF:        c.CRF,
		Audio:      hasAudio,
		AudioIndex: -1,
		Input:      d.Path,
		VideoIndex: d.VideoIndex,
		Output:     filepath.Join(d.OutputDir, naming.VideoName(d.Base, c.Height, c.Codec)),
		Transform:  tf,
		Duration:   d.Duration,
	}
	if hasAudio {
		r.AudioIndex = d.AudioIndex
		r.AudioChannels = d.AudioChannels
	}
	return r
}

// sampleRendition builds the preview clip: the first small rung that fits
// the source, cut from offset = fraction*duration (capped) for SampleLength.
func sampleRendition(cfg *config.Config, d *source.Descriptor, tf Transform, tier int, hasAudio bool) (Rendition, bool) {
	name := naming.SampleName(d.Base)
	if !cfg.Sample || !d.HasVideo || d.Duration <= 0 || d.Present.Has(name) {
		return Rendition{}, false
	}

	var pick *config.RenditionConfig
	for i := range cfg.Renditions {
		c := &cfg.Renditions[i]
		if !c.Small || !Allowed(cfg, d.Class, c.Height) {
			continue
		}
		if !Upscales(c.Height, tier, cfg.UpscaleTolerance) {
			pick = c
			break
		}
		if pick == nil || c.Height < pick.Height {
			pick = c
		}
	}
	if pick == nil {
		return Rendition{}, false
	}
	height := pick.Height
	if Upscales(height, tier, cfg.UpscaleTolerance) {
		height = tier &^ 1
	}
	if height < 2 {
		return Rendition{}, false
	}

	start := time.Duration(float64(d.Duration) * cfg.SampleOffsetFraction)
	if cfg.SampleMaxOffset > 0 && start > cfg.SampleMaxOffset {
		start = cfg.SampleMaxOffset
	}
	length := cfg.SampleLength
	if rest := d.Duration - start; rest < length {
		length = rest
	}
	if length <= 0 {
		return Rendition{}, false
	}

	tf.BurnSubtitle = d.BurnSubtitle
	tf.Window = &Window{Start: start, Length: length}
	r := Rendition{
		Name:       "sample",
		Kind:       KindSample,
		Height:     height,
		Codec:      pick.Codec,
		Small:      true,
		CRF:        pick.CRF,
		Audio:      hasAudio,
		AudioIndex: -1,
		Input:      d.Path,
		VideoIndex: d.VideoIndex,
		Output:     filepath.Join(d.OutputDir, name),
		Transform:  tf,
		Duration:   length,
	}
	if hasAudio {
		r.AudioIndex = d.AudioIndex
		r.AudioChannels = d.AudioChannels
	}
	return r, true
}
