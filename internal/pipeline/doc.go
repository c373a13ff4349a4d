// Package pipeline runs the rendition pipeline for each asset of a
// library: claim the output directory with the busy marker, describe the
// source, plan the missing renditions, schedule the transcoders, and
// assemble the manifest once every rendition has succeeded.
//
// [Run] is the batch entry point; [Runner.ProcessAsset] handles a single
// asset and is what watch mode calls for new files.
package pipeline
