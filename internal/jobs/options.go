package jobs

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind identifies what a job produces.
type Kind string

const (
	// KindTranscode produces a single progressive rendition.
	KindTranscode Kind = "transcode"
	// KindHLS produces a master playlist and a bitrate ladder.
	KindHLS Kind = "hls"
	// KindThumbnail produces one still frame.
	KindThumbnail Kind = "thumbnail"
	// KindStoryboard produces evenly spaced preview frames.
	KindStoryboard Kind = "storyboard"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindTranscode, KindHLS, KindThumbnail, KindStoryboard:
		return true
	}
	return false
}

// Defaults applied during normalization.
const (
	DefaultProfile         = "standard"
	DefaultStoryboardCount = 10
	MaxStoryboardCount     = 200 // larger requests are rejected
	DefaultThumbnailWidth  = 320
	DefaultThumbnailHeight = 180
	DefaultStoryboardWidth = 160
)

// Options is implemented by the kind-specific option structs only.
type Options interface {
	Kind() Kind
	// Normalize returns a copy with defaults applied and values canonicalized.
	Normalize() Options
	// Key is the canonical string used for de-duplication. It must only be
	// called on normalized options.
	Key() string
	isOptions()
}

// TranscodeOptions selects a named profile and optional explicit overrides.
type TranscodeOptions struct {
	Profile      string `json:"profile"`
	Height       int    `json:"height,omitempty"`
	VideoCodec   string `json:"videoCodec,omitempty"`
	VideoBitrate string `json:"videoBitrate,omitempty"`
	AudioCodec   string `json:"audioCodec,omitempty"`
	AudioBitrate string `json:"audioBitrate,omitempty"`
}

// HLSOptions bounds the ladder. MaxHeight 0 means no cap beyond the source.
type HLSOptions struct {
	MaxHeight      int `json:"maxHeight,omitempty"`
	SegmentSeconds int `json:"segmentSeconds,omitempty"`
}

// ThumbnailOptions picks the frame offset in seconds and the bounding box.
type ThumbnailOptions struct {
	Offset float64 `json:"offset"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
}

// StoryboardOptions requests Count evenly spaced frames of the given width.
type StoryboardOptions struct {
	Count int `json:"count"`
	Width int `json:"width"`
}

func (TranscodeOptions) Kind() Kind  { return KindTranscode }
func (HLSOptions) Kind() Kind        { return KindHLS }
func (ThumbnailOptions) Kind() Kind  { return KindThumbnail }
func (StoryboardOptions) Kind() Kind { return KindStoryboard }

func (TranscodeOptions) isOptions()  {}
func (HLSOptions) isOptions()        {}
func (ThumbnailOptions) isOptions()  {}
func (StoryboardOptions) isOptions() {}

func (o TranscodeOptions) Normalize() Options {
	o.Profile = strings.ToLower(strings.TrimSpace(o.Profile))
	if o.Profile == "" {
		o.Profile = DefaultProfile
	}
	if o.Height < 0 {
		o.Height = 0
	}
	o.VideoCodec = strings.ToLower(strings.TrimSpace(o.VideoCodec))
	o.AudioCodec = strings.ToLower(strings.TrimSpace(o.AudioCodec))
	o.VideoBitrate = strings.ToLower(strings.TrimSpace(o.VideoBitrate))
	o.AudioBitrate = strings.ToLower(strings.TrimSpace(o.AudioBitrate))
	return o
}

func (o TranscodeOptions) Key() string {
	return fmt.Sprintf("profile=%s;h=%d;vc=%s;vb=%s;ac=%s;ab=%s",
		o.Profile, o.Height, o.VideoCodec, o.VideoBitrate, o.AudioCodec, o.AudioBitrate)
}

func (o HLSOptions) Normalize() Options {
	if o.MaxHeight < 0 {
		o.MaxHeight = 0
	}
	if o.SegmentSeconds < 0 {
		o.SegmentSeconds = 0
	}
	return o
}

func (o HLSOptions) Key() string {
	return fmt.Sprintf("maxh=%d;seg=%d", o.MaxHeight, o.SegmentSeconds)
}

func (o ThumbnailOptions) Normalize() Options {
	if o.Offset < 0 || math.IsNaN(o.Offset) || math.IsInf(o.Offset, 0) {
		o.Offset = 0
	}
	// millisecond precision is plenty for frame selection
	o.Offset = math.Round(o.Offset*1000) / 1000
	if o.Width <= 0 {
		o.Width = DefaultThumbnailWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultThumbnailHeight
	}
	return o
}

func (o ThumbnailOptions) Key() string {
	return "t=" + strconv.FormatFloat(o.Offset, 'f', 3, 64) + fmt.Sprintf(";w=%d;h=%d", o.Width, o.Height)
}

func (o StoryboardOptions) Normalize() Options {
	if o.Count <= 0 {
		o.Count = DefaultStoryboardCount
	}
	if o.Width <= 0 {
		o.Width = DefaultStoryboardWidth
	}
	return o
}

func (o StoryboardOptions) Key() string {
	return fmt.Sprintf("n=%d;w=%d", o.Count, o.Width)
}

// DedupeKey identifies the work a job performs. opts must be normalized.
func DedupeKey(mediaID string, opts Options) string {
	return mediaID + "|" + string(opts.Kind()) + "|" + opts.Key()
}

// EncodeOptions serializes options for storage.
func EncodeOptions(opts Options) (string, error) {
	data, err := json.Marshal(opts)
	if err != nil {
		return "", fmt.Errorf("encode %s options: %w", opts.Kind(), err)
	}
	return string(data), nil
}

// DecodeOptions restores options stored by EncodeOptions.
func DecodeOptions(kind Kind, data string) (Options, error) {
	if data == "" {
		data = "{}"
	}
	var (
		opts Options
		err  error
	)
	switch kind {
	case KindTranscode:
		var o TranscodeOptions
		err = json.Unmarshal([]byte(data), &o)
		opts = o
	case KindHLS:
		var o HLSOptions
		err = json.Unmarshal([]byte(data), &o)
		opts = o
	case KindThumbnail:
		var o ThumbnailOptions
		err = json.Unmarshal([]byte(data), &o)
		opts = o
	case KindStoryboard:
		var o StoryboardOptions
		err = json.Unmarshal([]byte(data), &o)
		opts = o
	default:
		return nil, fmt.Errorf("unknown job kind %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s options: %w", kind, err)
	}
	return opts, nil
}
