package probe

import (
	"strconv"
	"strings"
)

// SampleAspect returns the primary video's sample (pixel) aspect ratio as
// num/den. Unknown or zero ratios are reported as square pixels.
func (p *ProbeResult) SampleAspect() (num, den int) {
	if p.PrimaryVideo == nil {
		return 1, 1
	}
	n, d, ok := parseRatio(p.PrimaryVideo.SampleAspect)
	if !ok {
		return 1, 1
	}
	return n, d
}

// DisplayWidth is the width the frame occupies once non-square pixels are
// stretched: width * SAR, rounded to an even number.
func (p *ProbeResult) DisplayWidth() int {
	if p.PrimaryVideo == nil {
		return 0
	}
	num, den := p.SampleAspect()
	w := p.PrimaryVideo.Width * num / den
	return w &^ 1
}

// IsStereo3D reports whether the primary video is stereoscopic, from the
// matroska stereo_mode tag or "Stereo 3D" side data.
func (p *ProbeResult) IsStereo3D() bool {
	v := p.PrimaryVideo
	if v == nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(v.StereoMode)) {
	case "", "mono", "0":
	default:
		return true
	}
	for _, sd := range v.SideData {
		if strings.EqualFold(sd, "Stereo 3D") {
			return true
		}
	}
	return false
}

// IsInterlaced returns true if the primary video stream's field_order
// indicates interlaced content (tt, bb, tb, bt).
func (p *ProbeResult) IsInterlaced() bool {
	if p.PrimaryVideo == nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(p.PrimaryVideo.FieldOrder)) {
	case "tt", "bb", "tb", "bt":
		return true
	}
	return false
}

func parseRatio(s string) (num, den int, ok bool) {
	a, b, found := strings.Cut(strings.TrimSpace(s), ":")
	if !found {
		return 0, 0, false
	}
	n, err1 := strconv.Atoi(a)
	d, err2 := strconv.Atoi(b)
	if err1 != nil || err2 != nil || n <= 0 || d <= 0 {
		return 0, 0, false
	}
	return n, d, true
}
