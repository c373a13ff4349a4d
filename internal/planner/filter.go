package planner

import (
	"fmt"
	"strings"
)

// OutLabel is the filter graph output pad the video encoder maps.
const OutLabel = "vout"

// deinterlaceFilter matches yadif's field-aware defaults for mixed content.
const deinterlaceFilter = "yadif=mode=send_frame:parity=auto:deint=interlaced"

// BuildFilterGraph constructs the -filter_complex graph for a video or
// sample rendition. Order: deinterlace, bitmap subtitle overlay (subtitle
// coordinates are in source pixels), crop, square pixels, fit to the 16:9
// box of the target height, text subtitles, pixel format.
func BuildFilterGraph(r *Rendition) string {
	in := fmt.Sprintf("[0:%d]", r.VideoIndex)
	tf := r.Transform

	var pre []string
	if tf.Deinterlace {
		pre = append(pre, deinterlaceFilter)
	}

	var post []string
	if tf.Crop != nil {
		post = append(post, tf.Crop.Filter())
	}
	if tf.SquarePixels {
		post = append(post, "scale=trunc(iw*sar/2)*2:ih", "setsar=1")
	}
	post = append(post, BoxScale(r.Height))
	if s := tf.BurnSubtitle; s != nil && !s.Bitmap {
		post = append(post, fmt.Sprintf("subtitles=filename=%s:si=%d", escapeFilterValue(r.Input), s.Ordinal))
	}
	post = append(post, "format=yuv420p")
	out := "[" + OutLabel + "]"

	if s := tf.BurnSubtitle; s != nil && s.Bitmap {
		head := in
		if len(pre) > 0 {
			head = in + strings.Join(pre, ",") + "[base];[base]"
		}
		return head + fmt.Sprintf("[0:%d]overlay,", s.Index) + strings.Join(post, ",") + out
	}
	return in + strings.Join(append(pre, post...), ",") + out
}

// BoxScale fits the frame inside the 16:9 box for height without changing
// its aspect ratio. 1080 becomes 1920x1080, 480 becomes 852x480.
func BoxScale(height int) string {
	width := (height * 16 / 9) &^ 1
	return fmt.Sprintf("scale=w=%d:h=%d:force_original_aspect_ratio=decrease:force_divisible_by=2", width, height)
}

// escapeFilterValue applies both escaping levels ffmpeg needs for a path
// used as a filter option inside a filter graph.
func escapeFilterValue(v string) string {
	opt := strings.NewReplacer(`\`, `\\`, `'`, `\'`, `:`, `\:`).Replace(v)
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`, `[`, `\[`, `]`, `\]`, `,`, `\,`, `;`, `\;`).Replace(opt)
}
