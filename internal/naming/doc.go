// Package naming owns every file name dashmaster reads or writes: rendition,
// audio, sample and manifest names derived from an asset's base name, the
// temp marker used until a file is finalized, the busy marker, and the error
// report. It also classifies assets as movie, tv or extra from their path.
//
// Split: outputs.go (artifact and temp names), classify.go (media type).
package naming
