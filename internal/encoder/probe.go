package encoder

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Stream is one elementary stream reported by the probe. Nil fields were
// absent from the probe output, which is different from a measured zero.
type Stream struct {
	Index      int      `json:"index"`
	Type       string   `json:"type"`
	Codec      string   `json:"codec,omitempty"`
	Width      *int     `json:"width,omitempty"`
	Height     *int     `json:"height,omitempty"`
	Bitrate    *int64   `json:"bitrate,omitempty"`
	FrameRate  *float64 `json:"frameRate,omitempty"`
	Channels   *int     `json:"channels,omitempty"`
	SampleRate *int     `json:"sampleRate,omitempty"`
	// AttachedPic marks embedded cover art, which is not playable video.
	AttachedPic bool `json:"attachedPic,omitempty"`
}

// ProbeResult is the parsed media information for a file.
type ProbeResult struct {
	Container string            `json:"container,omitempty"`
	Duration  *float64          `json:"duration,omitempty"`
	Bitrate   *int64            `json:"bitrate,omitempty"`
	Streams   []Stream          `json:"streams"`
	Tags      map[string]string `json:"tags,omitempty"`
}

// Video returns the first real video stream, or nil for audio-only files.
func (p *ProbeResult) Video() *Stream {
	for i := range p.Streams {
		if p.Streams[i].Type == "video" && !p.Streams[i].AttachedPic {
			return &p.Streams[i]
		}
	}
	return nil
}

// Audio returns the first audio stream, or nil.
func (p *ProbeResult) Audio() *Stream {
	for i := range p.Streams {
		if p.Streams[i].Type == "audio" {
			return &p.Streams[i]
		}
	}
	return nil
}

// durationOr prefers the probed duration and falls back to hint.
func (p *ProbeResult) durationOr(hint *float64) *float64 {
	if p != nil && p.Duration != nil && *p.Duration > 0 {
		return p.Duration
	}
	if hint != nil && *hint > 0 {
		return hint
	}
	return nil
}

type ffprobeOutput struct {
	Format struct {
		FormatName string            `json:"format_name"`
		Duration   string            `json:"duration"`
		BitRate    string            `json:"bit_rate"`
		Tags       map[string]string `json:"tags"`
	} `json:"format"`
	Streams []struct {
		Index        int    `json:"index"`
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        *int   `json:"width"`
		Height       *int   `json:"height"`
		BitRate      string `json:"bit_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
		Channels     *int   `json:"channels"`
		SampleRate   string `json:"sample_rate"`
		Duration     string `json:"duration"`
		Disposition  struct {
			AttachedPic int `json:"attached_pic"`
		} `json:"disposition"`
	} `json:"streams"`
}

func probeArgs(path string) []string {
	return []string{
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}
}

// parseProbe decodes ffprobe JSON output.
func parseProbe(data []byte) (*ProbeResult, error) {
	var out ffprobeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse probe output: %w", err)
	}

	result := &ProbeResult{
		Container: out.Format.FormatName,
		Duration:  parseFloat(out.Format.Duration),
		Bitrate:   parseInt64(out.Format.BitRate),
		Tags:      out.Format.Tags,
		Streams:   make([]Stream, 0, len(out.Streams)),
	}

	for _, s := range out.Streams {
		stream := Stream{
			Index:       s.Index,
			Type:        s.CodecType,
			Codec:       s.CodecName,
			Bitrate:     parseInt64(s.BitRate),
			FrameRate:   parseRate(s.AvgFrameRate),
			Channels:    s.Channels,
			AttachedPic: s.Disposition.AttachedPic == 1,
		}
		if s.Width != nil && *s.Width > 0 {
			stream.Width = s.Width
		}
		if s.Height != nil && *s.Height > 0 {
			stream.Height = s.Height
		}
		if rate := parseInt64(s.SampleRate); rate != nil {
			v := int(*rate)
			stream.SampleRate = &v
		}
		// some containers only report duration per stream
		if result.Duration == nil {
			result.Duration = parseFloat(s.Duration)
		}
		result.Streams = append(result.Streams, stream)
	}

	return result, nil
}

func parseFloat(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "N/A" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

func parseInt64(s string) *int64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "N/A" {
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

// parseRate handles ffprobe rationals such as "30000/1001".
func parseRate(s string) *float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		return parseFloat(s)
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 || n == 0 {
		return nil
	}
	v := n / d
	return &v
}
