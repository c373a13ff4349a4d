// Package ffmpeg builds transcoder command lines for renditions and runs
// them as supervised processes.
//
// [Build] assembles the argument vector from a [planner.Rendition] and the
// task's [RetryState]. [Launcher] implements [scheduler.Launcher]: it
// spawns ffmpeg, streams its output lines, keeps a stderr tail for error
// classification, and terminates the whole process tree on request.
//
// Between attempts of the same rendition the launcher applies at most one
// stderr-driven remedy (drop the burned subtitle, raise the mux queue, or
// regenerate timestamps). The retry budget itself belongs to the scheduler.
package ffmpeg
