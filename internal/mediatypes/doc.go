// Package mediatypes provides shared type definitions for media handling
// across streamvio.
//
// It is a dependency-free leaf so any package can import it without cycles.
//
// # File Types
//
//	mediatypes.FileTypeVideo // mp4, mkv, webm, ...
//	mediatypes.FileTypeAudio // mp3, flac, m4a, ...
//	mediatypes.FileTypeImage // jpg, png, webp, ...
//	mediatypes.FileTypeOther // anything else
//
// # Operation Support
//
// Supports answers whether an operation is meaningful for a file type, for
// example HLS for a photo is not:
//
//	mediatypes.Supports(mediatypes.FileTypeImage, mediatypes.OpHLS) // false
//
// # MIME Types
//
// GetMimeType and MimeTypeForPath cover media containers as well as HLS
// playlists (.m3u8) and segments (.ts, .m4s).
package mediatypes
