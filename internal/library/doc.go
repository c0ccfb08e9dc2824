// Package library resolves media identifiers to source files.
//
// It is a minimal stand-in for a full media library: items are registered
// explicitly (by the ctl CLI or an API call) and stored in the media table.
// Resolve and IsSupportedType are the two calls the pipeline depends on.
package library
