package scheduler

import (
	"os"

	"github.com/h2non/filetype"
	"github.com/pkg/errors"

	"github.com/backmassage/dashmaster/internal/planner"
)

// ErrBadOutput is returned when a transcoder exited cleanly but its output
// is not a recognizable audio or video container.
var ErrBadOutput = errors.New("output is not an audio or video container")

// Finalize checks the rendition's temp output and renames it to its final
// name. The rename is the only way a rendition becomes visible.
func Finalize(r *planner.Rendition) error {
	tmp := r.TempOutput()
	kind, err := filetype.MatchFile(tmp)
	if err != nil {
		return errors.Wrapf(err, "inspect %s", tmp)
	}
	if kind.MIME.Type != "video" && kind.MIME.Type != "audio" {
		return errors.Wrapf(ErrBadOutput, "%s (detected %q)", tmp, kind.MIME.Value)
	}
	if err := os.Rename(tmp, r.Output); err != nil {
		return errors.Wrap(err, "finalize rendition")
	}
	return nil
}
