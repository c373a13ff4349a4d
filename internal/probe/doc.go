// Package probe provides ffprobe-based media inspection and typed result
// structures. A single JSON call per file yields everything the source
// descriptor needs: dimensions, aspect ratios, duration, audio layout,
// subtitle dispositions, and stereoscopic markers.
//
// Split: prober.go (types on the wire + Probe/ParseJSON), types.go (domain
// types), geometry.go (aspect, stereo 3D, interlace), crop.go (cropdetect).
package probe
