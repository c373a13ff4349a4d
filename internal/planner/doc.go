// Package planner decides which renditions an asset still needs and with
// what parameters. It is pure: given a source descriptor and the config it
// returns a Plan and touches neither processes nor the filesystem.
//
//   - types.go: Plan, Rendition, Transform, SkipReason
//   - planner.go: BuildPlan (caps, upscale rule, presence, audio/manifest flags)
//   - filter.go: ffmpeg filter graph for a rendition's transforms
package planner
