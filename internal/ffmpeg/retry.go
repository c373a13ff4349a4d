package ffmpeg

import "github.com/backmassage/dashmaster/internal/planner"

// RetryAction identifies which fix was applied (or none).
type RetryAction int

const (
	RetryNone          RetryAction = iota
	RetryDropBurnIn                // Encode without the burned-in subtitle.
	RetryIncreaseMux               // Raise max_muxing_queue_size to 16384.
	RetryFixTimestamps             // Enable +genpts+discardcorrupt.
)

func (a RetryAction) String() string {
	switch a {
	case RetryDropBurnIn:
		return "subtitle burn-in dropped"
	case RetryIncreaseMux:
		return "mux queue raised"
	case RetryFixTimestamps:
		return "timestamp fix enabled"
	}
	return "no change"
}

const (
	muxQueueDefault  = 4096
	muxQueueEscalate = 16384
)

// RetryState tracks which fixes have been applied across the attempts of a
// single rendition.
type RetryState struct {
	Attempt      int
	BurnIn       bool
	MuxQueueSize int
	TimestampFix bool

	lastStderr string
}

// NewRetryState initializes a RetryState from the rendition's initial values.
func NewRetryState(r *planner.Rendition) *RetryState {
	return &RetryState{
		BurnIn:       r.Transform.BurnSubtitle != nil,
		MuxQueueSize: muxQueueDefault,
	}
}

// Advance inspects stderr from a failed run, finds the first matching
// error pattern whose fix has not yet been applied, applies that fix, and
// returns the action taken. Returns RetryNone when no fixable pattern
// matches; the next attempt then reruns the same command.
//
// Pattern evaluation order: burn-in → mux queue → timestamp.
// Only one fix is applied per call (one fix per retry attempt).
func (s *RetryState) Advance(stderr string) RetryAction {
	s.Attempt++

	if s.BurnIn && MatchBurnInIssue(stderr) {
		s.BurnIn = false
		return RetryDropBurnIn
	}
	if s.MuxQueueSize < muxQueueEscalate && MatchMuxQueueOverflow(stderr) {
		s.MuxQueueSize = muxQueueEscalate
		return RetryIncreaseMux
	}
	if !s.TimestampFix && MatchTimestampIssue(stderr) {
		s.TimestampFix = true
		return RetryFixTimestamps
	}
	return RetryNone
}
