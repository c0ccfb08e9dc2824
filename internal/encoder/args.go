package encoder

import (
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	// MasterPlaylist is the name of the HLS entry point inside an output directory.
	MasterPlaylist = "master.m3u8"
	// VariantPlaylist is the per-rendition playlist inside each v<N> directory.
	VariantPlaylist = "index.m3u8"
	// SpriteName is the storyboard sprite sheet inside a storyboard directory.
	SpriteName = "sprite.jpg"
	// DefaultSegmentSeconds is the HLS target segment duration.
	DefaultSegmentSeconds = 6
)

// Rendition is one rung of the HLS bitrate ladder.
type Rendition struct {
	Height       int
	VideoBitrate string
	MaxRate      string
	BufSize      string
	AudioBitrate string
}

// Name is the conventional label for the rung, e.g. "720p".
func (r Rendition) Name() string {
	if r.Height == 0 {
		return "audio"
	}
	return strconv.Itoa(r.Height) + "p"
}

var hlsLadder = []Rendition{
	{Height: 1080, VideoBitrate: "5000k", MaxRate: "5350k", BufSize: "7500k", AudioBitrate: "192k"},
	{Height: 720, VideoBitrate: "2800k", MaxRate: "2996k", BufSize: "4200k", AudioBitrate: "128k"},
	{Height: 480, VideoBitrate: "1400k", MaxRate: "1498k", BufSize: "2100k", AudioBitrate: "128k"},
	{Height: 360, VideoBitrate: "800k", MaxRate: "856k", BufSize: "1200k", AudioBitrate: "96k"},
}

var audioOnlyRendition = Rendition{AudioBitrate: "128k"}

// SelectLadder returns the rungs no taller than maxHeight (0 = no cap) or the
// source. Upscaling is never done: a source shorter than every rung gets a
// single rendition at its own height. An unknown source height keeps the
// whole capped ladder.
func SelectLadder(maxHeight, sourceHeight int) []Rendition {
	limit := math.MaxInt
	if maxHeight > 0 {
		limit = maxHeight
	}
	if sourceHeight > 0 && sourceHeight < limit {
		limit = sourceHeight
	}

	var ladder []Rendition
	for _, r := range hlsLadder {
		if r.Height <= limit {
			ladder = append(ladder, r)
		}
	}
	if len(ladder) == 0 {
		r := hlsLadder[len(hlsLadder)-1]
		r.Height = evenHeight(limit)
		ladder = append(ladder, r)
	}
	return ladder
}

// evenHeight rounds down to an even number, which yuv420p requires.
func evenHeight(h int) int {
	if h < 2 {
		return 2
	}
	return h &^ 1
}

// ClampOffset keeps a frame offset inside [0, duration). An offset at or past
// the end is moved to one second before it.
func ClampOffset(offset, duration float64) float64 {
	if offset < 0 || math.IsNaN(offset) {
		return 0
	}
	if duration <= 0 {
		return offset
	}
	if offset >= duration {
		return math.Max(duration-1, 0)
	}
	return offset
}

// StoryboardOffsets spaces count frames evenly: frame i is taken at
// duration*i/count.
func StoryboardOffsets(duration float64, count int) []float64 {
	if count <= 0 || duration <= 0 {
		return nil
	}
	offsets := make([]float64, count)
	for i := range offsets {
		offsets[i] = duration * float64(i) / float64(count)
	}
	return offsets
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}

// baseArgs start every ffmpeg invocation: quiet logging so stderr holds only
// diagnostics, and no stdin so a stray prompt cannot block a worker.
func baseArgs() []string {
	return []string{"-hide_banner", "-nostdin", "-v", "error", "-y"}
}

func progressArgs() []string {
	return []string{"-progress", "pipe:1", "-nostats"}
}

// transcodeArgs builds a progressive rendition. Sources without video get an
// audio-only output.
func transcodeArgs(input, output string, p Profile, src *ProbeResult) []string {
	args := baseArgs()
	args = append(args, "-i", input, "-sn")

	video := src.Video()
	if video != nil {
		args = append(args,
			"-map", "0:v:0",
			"-c:v", p.VideoCodec,
			"-preset", p.Preset,
			"-pix_fmt", "yuv420p",
			"-b:v", p.VideoBitrate,
		)
		// only ever scale down
		if p.Height > 0 && (video.Height == nil || *video.Height > p.Height) {
			args = append(args, "-vf", fmt.Sprintf("scale=-2:%d", evenHeight(p.Height)))
		}
	} else {
		args = append(args, "-vn")
	}

	if src.Audio() != nil {
		args = append(args,
			"-map", "0:a:0",
			"-c:a", p.AudioCodec,
			"-b:a", p.AudioBitrate,
			"-ac", "2",
		)
	}

	args = append(args, "-movflags", "+faststart")
	args = append(args, progressArgs()...)
	return append(args, output)
}

// hlsArgs builds a single run that writes every rung. Paths are relative to
// the output directory, which the caller uses as the working directory.
func hlsArgs(input string, ladder []Rendition, hasVideo, hasAudio bool, segmentSeconds int) []string {
	seg := strconv.Itoa(segmentSeconds)
	args := baseArgs()
	args = append(args, "-i", input, "-sn")

	var streamMap []string

	switch {
	case hasVideo:
		var filter strings.Builder
		fmt.Fprintf(&filter, "[0:v:0]split=%d", len(ladder))
		for i := range ladder {
			fmt.Fprintf(&filter, "[v%d]", i)
		}
		for i, r := range ladder {
			fmt.Fprintf(&filter, ";[v%d]scale=-2:%d[out%d]", i, r.Height, i)
		}
		args = append(args, "-filter_complex", filter.String())

		for i := range ladder {
			args = append(args, "-map", fmt.Sprintf("[out%d]", i))
			if hasAudio {
				args = append(args, "-map", "0:a:0")
			}
		}

		args = append(args,
			"-c:v", "libx264",
			"-preset", "veryfast",
			"-pix_fmt", "yuv420p",
			"-sc_threshold", "0",
			"-force_key_frames", fmt.Sprintf("expr:gte(t,n_forced*%d)", segmentSeconds),
		)
		for i, r := range ladder {
			args = append(args,
				fmt.Sprintf("-b:v:%d", i), r.VideoBitrate,
				fmt.Sprintf("-maxrate:v:%d", i), r.MaxRate,
				fmt.Sprintf("-bufsize:v:%d", i), r.BufSize,
			)
			if hasAudio {
				args = append(args, fmt.Sprintf("-b:a:%d", i), r.AudioBitrate)
				streamMap = append(streamMap, fmt.Sprintf("v:%d,a:%d", i, i))
			} else {
				streamMap = append(streamMap, fmt.Sprintf("v:%d", i))
			}
		}
		if hasAudio {
			args = append(args, "-c:a", "aac", "-ac", "2")
		}
	default:
		args = append(args,
			"-map", "0:a:0",
			"-c:a", "aac",
			"-b:a", audioOnlyRendition.AudioBitrate,
			"-ac", "2",
		)
		streamMap = append(streamMap, "a:0")
	}

	args = append(args,
		"-f", "hls",
		"-hls_time", seg,
		"-hls_list_size", "0",
		"-hls_playlist_type", "vod",
		"-hls_flags", "independent_segments",
		"-hls_segment_type", "mpegts",
		"-hls_segment_filename", "v%v/segment_%05d.ts",
		"-master_pl_name", MasterPlaylist,
		"-var_stream_map", strings.Join(streamMap, " "),
	)
	args = append(args, progressArgs()...)
	return append(args, filepath.Join("v%v", VariantPlaylist))
}

// frameArgs extracts one frame as PNG on stdout. A zero offset skips seeking
// so still images and very short clips still yield a frame.
func frameArgs(input string, offset float64) []string {
	args := []string{"-hide_banner", "-nostdin", "-v", "error"}
	if offset > 0 {
		args = append(args, "-ss", formatSeconds(offset))
	}
	return append(args,
		"-i", input,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	)
}
