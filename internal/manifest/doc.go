// Package manifest stitches finished renditions into one DASH manifest.
//
// The [Assembler] runs MP4Box against the finalized elementary streams
// (every video first, the optional audio last), writes the manifest under
// a temp name, rewrites each BaseURL to a bare escaped file name, and only
// then renames it into place. Any failure leaves no manifest behind and
// writes an error report beside the asset.
package manifest
