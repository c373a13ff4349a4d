package probe

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"time"
)

// Crop is a crop rectangle in source pixels.
type Crop struct {
	Width, Height, X, Y int
}

// Filter renders the crop as an ffmpeg filter ("crop=w:h:x:y").
func (c Crop) Filter() string {
	return fmt.Sprintf("crop=%d:%d:%d:%d", c.Width, c.Height, c.X, c.Y)
}

var reCropdetect = regexp.MustCompile(`crop=([0-9]+):([0-9]+):([0-9]+):([0-9]+)`)

// cropWindow is how much video cropdetect samples.
const cropWindow = 20 * time.Second

// DetectCrop samples the video at offset with ffmpeg's cropdetect filter.
// ok is false when the frame has no letterbox or pillarbox worth removing.
func DetectCrop(ctx context.Context, ffmpegBin, path string, offset time.Duration, width, height int) (Crop, bool, error) {
	cmd := exec.CommandContext(ctx, ffmpegBin,
		"-hide_banner", "-nostdin",
		"-ss", strconv.FormatFloat(offset.Seconds(), 'f', 3, 64),
		"-i", path,
		"-t", strconv.Itoa(int(cropWindow.Seconds())),
		"-map", "0:v:0",
		"-vf", "cropdetect=24:2:0",
		"-an", "-sn",
		"-f", "null", "-",
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return Crop{}, false, fmt.Errorf("cropdetect %q: %w", path, err)
	}
	c, ok := ParseCropdetect(string(out), width, height)
	return c, ok, nil
}

// ParseCropdetect takes the last crop suggestion from cropdetect output.
// Suggestions that trim less than 2% of either dimension are ignored, as
// are ones that do not fit the frame.
func ParseCropdetect(out string, width, height int) (Crop, bool) {
	all := reCropdetect.FindAllStringSubmatch(out, -1)
	if len(all) == 0 || width <= 0 || height <= 0 {
		return Crop{}, false
	}
	m := all[len(all)-1]
	c := Crop{atoi(m[1]), atoi(m[2]), atoi(m[3]), atoi(m[4])}
	if c.Width <= 0 || c.Height <= 0 || c.X+c.Width > width || c.Y+c.Height > height {
		return Crop{}, false
	}
	if c.Width*100 >= width*98 && c.Height*100 >= height*98 {
		return Crop{}, false
	}
	return c, true
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
