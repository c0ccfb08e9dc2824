package database

import (
	"time"

	"streamvio/internal/mediatypes"
)

// FormatType classifies a cataloged artifact.
type FormatType string

const (
	FormatOriginal   FormatType = "original"
	FormatTranscoded FormatType = "transcoded"
	FormatHLS        FormatType = "hls"
	FormatThumbnail  FormatType = "thumbnail"
	FormatStoryboard FormatType = "storyboard"
)

// MediaItem is a registered source file.
type MediaItem struct {
	ID        string              `json:"id"`
	Path      string              `json:"path"`
	Type      mediatypes.FileType `json:"type"`
	Duration  *float64            `json:"duration,omitempty"`
	Size      int64               `json:"size"`
	ModTime   time.Time           `json:"modTime"`
	CreatedAt time.Time           `json:"createdAt"`
}

// TechnicalMetadata describes an encoded artifact. Nil fields were not measured.
type TechnicalMetadata struct {
	Bitrate  *int64   `json:"bitrate,omitempty"`
	Width    *int     `json:"width,omitempty"`
	Height   *int     `json:"height,omitempty"`
	Codec    string   `json:"codec,omitempty"`
	Duration *float64 `json:"duration,omitempty"`
}

// StoryboardFrame is one extracted preview frame.
type StoryboardFrame struct {
	Offset float64 `json:"offset"`
	Path   string  `json:"path"`
}

// ArtifactExtra carries format-specific details stored as JSON.
type ArtifactExtra struct {
	Frames     []StoryboardFrame `json:"frames,omitempty"`
	SpritePath string            `json:"spritePath,omitempty"`
	Renditions []string          `json:"renditions,omitempty"`
}

// Artifact is a cataloged output file or directory.
type Artifact struct {
	ID           int64             `json:"id"`
	MediaID      string            `json:"mediaId"`
	FormatType   FormatType        `json:"formatType"`
	Variant      string            `json:"variant,omitempty"`
	FilePath     string            `json:"filePath"`
	MimeType     string            `json:"mimeType"`
	SizeBytes    int64             `json:"sizeBytes"`
	Metadata     TechnicalMetadata `json:"technicalMetadata"`
	Extra        ArtifactExtra     `json:"extra,omitempty"`
	JobID        string            `json:"jobId,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	SupersededAt *time.Time        `json:"supersededAt,omitempty"`
}

// WatchProgress is the per-(user, media) playback position.
type WatchProgress struct {
	UserID     string    `json:"userId"`
	MediaID    string    `json:"mediaId"`
	Position   float64   `json:"position"`
	Duration   *float64  `json:"duration,omitempty"`
	Completed  bool      `json:"completed"`
	LastPlayed time.Time `json:"lastPlayed"`
	PlayCount  int       `json:"playCount"`
}

// WatchEvent records one stream start.
type WatchEvent struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"userId"`
	MediaID   string    `json:"mediaId"`
	Mode      string    `json:"mode"`
	CreatedAt time.Time `json:"createdAt"`
}

// JobFilter narrows ListJobs. Zero values match everything.
type JobFilter struct {
	MediaID string
	Kind    string
	State   string
	Limit   int
}
