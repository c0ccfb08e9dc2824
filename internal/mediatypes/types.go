package mediatypes

import (
	"path/filepath"
	"strings"
)

// FileType represents the type of a media file.
type FileType string

const (
	// FileTypeVideo represents a video file.
	FileTypeVideo FileType = "video"
	// FileTypeAudio represents an audio-only file.
	FileTypeAudio FileType = "audio"
	// FileTypeImage represents a still image.
	FileTypeImage FileType = "image"
	// FileTypeOther represents an unknown or unsupported file type.
	FileTypeOther FileType = "other"
)

// Operation names something the pipeline can do with a media item.
type Operation string

const (
	// OpTranscode produces a progressive rendition.
	OpTranscode Operation = "transcode"
	// OpHLS produces an adaptive segmented ladder.
	OpHLS Operation = "hls"
	// OpThumbnail extracts a still frame.
	OpThumbnail Operation = "thumbnail"
	// OpStoryboard extracts evenly spaced preview frames.
	OpStoryboard Operation = "storyboard"
	// OpStream serves the file bytes directly.
	OpStream Operation = "stream"
)

// support lists the operations each file type can satisfy.
var support = map[FileType]map[Operation]bool{
	FileTypeVideo: {OpTranscode: true, OpHLS: true, OpThumbnail: true, OpStoryboard: true, OpStream: true},
	FileTypeAudio: {OpTranscode: true, OpHLS: true, OpStream: true},
	FileTypeImage: {OpThumbnail: true, OpStream: true},
}

// Supports reports whether op makes sense for a file of type t.
func Supports(t FileType, op Operation) bool {
	return support[t][op]
}

// ImageExtensions maps file extensions to whether they are supported image formats.
var ImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
	".tiff": true,
	".tif":  true,
}

// VideoExtensions maps file extensions to whether they are supported video formats.
var VideoExtensions = map[string]bool{
	".mp4":  true,
	".mkv":  true,
	".avi":  true,
	".mov":  true,
	".wmv":  true,
	".flv":  true,
	".webm": true,
	".m4v":  true,
	".mpeg": true,
	".mpg":  true,
	".3gp":  true,
	".ts":   true,
}

// AudioExtensions maps file extensions to whether they are supported audio formats.
var AudioExtensions = map[string]bool{
	".mp3":  true,
	".aac":  true,
	".m4a":  true,
	".flac": true,
	".ogg":  true,
	".opus": true,
	".wav":  true,
}

// MimeTypes maps file extensions to their MIME types.
var MimeTypes = map[string]string{
	// Images
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".webp": "image/webp",
	".tiff": "image/tiff",
	".tif":  "image/tiff",

	// Videos
	".mp4":  "video/mp4",
	".mkv":  "video/x-matroska",
	".avi":  "video/x-msvideo",
	".mov":  "video/quicktime",
	".wmv":  "video/x-ms-wmv",
	".flv":  "video/x-flv",
	".webm": "video/webm",
	".m4v":  "video/x-m4v",
	".mpeg": "video/mpeg",
	".mpg":  "video/mpeg",
	".3gp":  "video/3gpp",
	".ts":   "video/mp2t",

	// Audio
	".mp3":  "audio/mpeg",
	".aac":  "audio/aac",
	".m4a":  "audio/mp4",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
	".opus": "audio/opus",
	".wav":  "audio/wav",

	// HLS
	".m3u8": "application/vnd.apple.mpegurl",
	".m4s":  "video/iso.segment",
}

// GetFileType returns the FileType for a given file extension.
// The extension should be lowercase and include the leading dot (e.g., ".mp4").
func GetFileType(ext string) FileType {
	switch {
	case VideoExtensions[ext]:
		return FileTypeVideo
	case AudioExtensions[ext]:
		return FileTypeAudio
	case ImageExtensions[ext]:
		return FileTypeImage
	}
	return FileTypeOther
}

// DetectFileType classifies a path by its extension, case-insensitively.
func DetectFileType(path string) FileType {
	return GetFileType(strings.ToLower(filepath.Ext(path)))
}

// GetMimeType returns the MIME type for a given file extension.
// Returns "application/octet-stream" if the extension is not recognized.
func GetMimeType(ext string) string {
	if mime, ok := MimeTypes[strings.ToLower(ext)]; ok {
		return mime
	}
	return "application/octet-stream"
}

// MimeTypeForPath returns the MIME type for the extension of path.
func MimeTypeForPath(path string) string {
	return GetMimeType(filepath.Ext(path))
}
