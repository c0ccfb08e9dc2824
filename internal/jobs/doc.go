// Package jobs holds the job model shared by the dispatcher, the encoder and
// the job store.
//
// A job derives one artifact from one source file. Its kind-specific options
// are a closed sum type: exactly one of TranscodeOptions, HLSOptions,
// ThumbnailOptions or StoryboardOptions. Consumers switch on the concrete type.
//
// Options are normalized before use, and the normalized form produces the
// de-duplication key. Two requests with the same media id and equal keys
// describe the same work.
package jobs
