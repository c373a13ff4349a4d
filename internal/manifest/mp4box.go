package manifest

import (
	"context"
	"os/exec"
	"strconv"
)

// RunFunc runs an external command and returns its combined output.
type RunFunc func(ctx context.Context, bin string, args ...string) ([]byte, error)

// ExecRun is the RunFunc used outside tests.
func ExecRun(ctx context.Context, bin string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, bin, args...).CombinedOutput()
}

// BuildArgs returns the MP4Box arguments that mux videos and audio into
// the manifest at out. Videos are referenced in the given order, then the
// audio stream when there is one.
func BuildArgs(segmentMs int, out string, videos []string, audio string) []string {
	seg := strconv.Itoa(segmentMs)
	args := []string{
		"-dash", seg,
		"-frag", seg,
		"-rap",
		"-profile", "onDemand",
		"-out", out,
	}
	for _, v := range videos {
		args = append(args, v+"#video")
	}
	if audio != "" {
		args = append(args, audio+"#audio")
	}
	return args
}
