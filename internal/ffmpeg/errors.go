package ffmpeg

import "regexp"

// Pre-compiled regexes for classifying ffmpeg stderr output. The remedy
// patterns are checked in order by [RetryState.Advance]; the first matching
// pattern whose fix has not yet been applied wins.
var (
	reBurnInIssue = regexp.MustCompile(
		`(?i)Error initializing filter 'subtitles'|` +
			`No such filter: 'subtitles'|` +
			`Unable to open .*\.(srt|ass|ssa|vtt)|` +
			`Unable to locate subtitle stream|` +
			`Error initializing complex filters|` +
			`Invalid stream specifier: 0:\d+|` +
			`Stream specifier .* matches no streams|` +
			`Subtitle codec .* is not supported`)

	reMuxQueueOverflow = regexp.MustCompile(
		`Too many packets buffered for output stream`)

	reTimestampIssue = regexp.MustCompile(
		`(?i)Non-monotonous DTS|non monotonically increasing dts|` +
			`invalid, non monotonically increasing dts|` +
			`DTS .*out of order|PTS .*out of order|` +
			`pts has no value|missing PTS|Timestamps are unset`)
)

// Patterns for failures no remedy can fix. Used only to label errors.
var (
	reOutOfMemory  = regexp.MustCompile(`(?i)Cannot allocate memory|out of memory`)
	reDiskFull     = regexp.MustCompile(`(?i)No space left on device`)
	reInvalidInput = regexp.MustCompile(`Invalid data found when processing input|moov atom not found`)
	reEncoderOpen  = regexp.MustCompile(`(?i)Error while opening encoder|Unknown encoder`)
)

// MatchBurnInIssue reports whether stderr shows the subtitle burn-in failing.
func MatchBurnInIssue(stderr string) bool {
	return reBurnInIssue.MatchString(stderr)
}

// MatchMuxQueueOverflow reports whether stderr contains a mux queue overflow.
func MatchMuxQueueOverflow(stderr string) bool {
	return reMuxQueueOverflow.MatchString(stderr)
}

// MatchTimestampIssue reports whether stderr contains a timestamp discontinuity.
func MatchTimestampIssue(stderr string) bool {
	return reTimestampIssue.MatchString(stderr)
}

// Classify returns a short label for a failed run's stderr, or "" when
// nothing recognizable matched.
func Classify(stderr string) string {
	switch {
	case reOutOfMemory.MatchString(stderr):
		return "out of memory"
	case reDiskFull.MatchString(stderr):
		return "disk full"
	case reInvalidInput.MatchString(stderr):
		return "invalid input"
	case reEncoderOpen.MatchString(stderr):
		return "encoder unavailable"
	case MatchBurnInIssue(stderr):
		return "subtitle burn-in"
	case MatchMuxQueueOverflow(stderr):
		return "mux queue overflow"
	case MatchTimestampIssue(stderr):
		return "timestamps"
	}
	return ""
}
