// Package scheduler runs a plan's renditions as external transcoder
// processes with bounded concurrency and a two-tier retry policy.
//
// One goroutine (the loop in Run) owns every task, every process handle and
// the progress aggregator. Each process gets a pump goroutine that forwards
// its output lines and exit status to the loop over a channel, so the loop
// only ever suspends waiting for those events.
//
// Failed tasks either go back to the front of the pending queue for an
// immediate parallel retry, or to the redo queue, which runs one task at a
// time once nothing else is running. Exhausting the retry budget aborts the
// run: every process is terminated, queued work is cancelled, and nothing
// is renamed into place afterwards.
//
//   - task.go: State, Task, Transition, Report
//   - policy.go: Policy (retry tiers)
//   - scheduler.go: Launcher/Process contracts and the event loop
//   - finalize.go: container check and temp-to-final rename
package scheduler
