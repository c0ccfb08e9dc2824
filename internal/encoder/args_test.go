package encoder

import (
	"reflect"
	"slices"
	"strings"
	"testing"
)

func intPtr(v int) *int { return &v }

func TestStoryboardOffsets(t *testing.T) {
	tests := []struct {
		name     string
		duration float64
		count    int
		expected []float64
	}{
		{"five frames of 100s", 100, 5, []float64{0, 20, 40, 60, 80}},
		{"single frame", 42, 1, []float64{0}},
		{"fractional spacing", 10, 4, []float64{0, 2.5, 5, 7.5}},
		{"zero count", 100, 0, nil},
		{"unknown duration", 0, 5, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StoryboardOffsets(tt.duration, tt.count)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("StoryboardOffsets(%v, %d) = %v, expected %v", tt.duration, tt.count, got, tt.expected)
			}
		})
	}
}

func TestClampOffset(t *testing.T) {
	tests := []struct {
		name     string
		offset   float64
		duration float64
		expected float64
	}{
		{"inside", 12.5, 100, 12.5},
		{"beyond end", 500, 100, 99},
		{"exactly at end", 100, 100, 99},
		{"just before end", 99.5, 100, 99.5},
		{"negative", -3, 100, 0},
		{"short clip", 10, 0.5, 0},
		{"unknown duration", 7, 0, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClampOffset(tt.offset, tt.duration); got != tt.expected {
				t.Errorf("ClampOffset(%v, %v) = %v, expected %v", tt.offset, tt.duration, got, tt.expected)
			}
		})
	}
}

func ladderHeights(ladder []Rendition) []int {
	heights := make([]int, len(ladder))
	for i, r := range ladder {
		heights[i] = r.Height
	}
	return heights
}

func TestSelectLadder(t *testing.T) {
	tests := []struct {
		name         string
		maxHeight    int
		sourceHeight int
		expected     []int
	}{
		{"1080p source, no cap", 0, 1080, []int{1080, 720, 480, 360}},
		{"1080p source capped at 720", 720, 1080, []int{720, 480, 360}},
		{"720p source never upscaled", 0, 720, []int{720, 480, 360}},
		{"4k source", 0, 2160, []int{1080, 720, 480, 360}},
		{"unknown source height", 480, 0, []int{480, 360}},
		{"tiny source", 0, 241, []int{240}},
		{"cap below every rung", 300, 1080, []int{300}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ladderHeights(SelectLadder(tt.maxHeight, tt.sourceHeight))
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("SelectLadder(%d, %d) = %v, expected %v", tt.maxHeight, tt.sourceHeight, got, tt.expected)
			}
		})
	}
}

func argValue(args []string, flag string) (string, bool) {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1], true
		}
	}
	return "", false
}

func TestTranscodeArgs(t *testing.T) {
	profile := DefaultProfiles()["standard"]

	t.Run("downscales taller source", func(t *testing.T) {
		src := &ProbeResult{Streams: []Stream{
			{Type: "video", Codec: "hevc", Height: intPtr(1080)},
			{Type: "audio", Codec: "ac3"},
		}}
		args := transcodeArgs("/in/movie.mkv", "/out/.tmp-j-movie.mp4", profile, src)

		if vf, ok := argValue(args, "-vf"); !ok || vf != "scale=-2:720" {
			t.Errorf("Expected scale=-2:720, got %q (present=%v)", vf, ok)
		}
		if v, _ := argValue(args, "-c:v"); v != "libx264" {
			t.Errorf("Expected libx264, got %q", v)
		}
		if v, _ := argValue(args, "-b:a"); v != "128k" {
			t.Errorf("Expected 128k audio, got %q", v)
		}
		if args[len(args)-1] != "/out/.tmp-j-movie.mp4" {
			t.Errorf("Expected output last, got %q", args[len(args)-1])
		}
		if v, _ := argValue(args, "-progress"); v != "pipe:1" {
			t.Errorf("Expected progress on stdout, got %q", v)
		}
	})

	t.Run("does not upscale", func(t *testing.T) {
		src := &ProbeResult{Streams: []Stream{{Type: "video", Height: intPtr(480)}}}
		args := transcodeArgs("in.mp4", "out.mp4", profile, src)
		if _, ok := argValue(args, "-vf"); ok {
			t.Error("Expected no scale filter for a shorter source")
		}
		if slices.Contains(args, "0:a:0") {
			t.Error("Expected no audio map without an audio stream")
		}
	})

	t.Run("audio only", func(t *testing.T) {
		src := &ProbeResult{Streams: []Stream{{Type: "audio", Codec: "mp3"}}}
		args := transcodeArgs("in.mp3", "out.m4a", profile, src)
		if !slices.Contains(args, "-vn") {
			t.Error("Expected -vn for audio-only source")
		}
		if slices.Contains(args, "-c:v") {
			t.Error("Expected no video codec for audio-only source")
		}
	})

	t.Run("cover art is not video", func(t *testing.T) {
		src := &ProbeResult{Streams: []Stream{
			{Type: "audio", Codec: "flac"},
			{Type: "video", Codec: "mjpeg", AttachedPic: true},
		}}
		if !slices.Contains(transcodeArgs("in.flac", "out.m4a", profile, src), "-vn") {
			t.Error("Expected attached picture to be ignored")
		}
	})
}

func TestHLSArgs(t *testing.T) {
	ladder := SelectLadder(720, 1080)
	args := hlsArgs("/in/movie.mkv", ladder, true, true, 6)

	filter, ok := argValue(args, "-filter_complex")
	if !ok {
		t.Fatal("Expected -filter_complex")
	}
	expectedFilter := "[0:v:0]split=3[v0][v1][v2];[v0]scale=-2:720[out0];[v1]scale=-2:480[out1];[v2]scale=-2:360[out2]"
	if filter != expectedFilter {
		t.Errorf("filter = %q, expected %q", filter, expectedFilter)
	}

	if m, _ := argValue(args, "-var_stream_map"); m != "v:0,a:0 v:1,a:1 v:2,a:2" {
		t.Errorf("unexpected var_stream_map %q", m)
	}
	if v, _ := argValue(args, "-hls_time"); v != "6" {
		t.Errorf("Expected hls_time 6, got %q", v)
	}
	if v, _ := argValue(args, "-master_pl_name"); v != MasterPlaylist {
		t.Errorf("Expected master playlist name, got %q", v)
	}
	if v, _ := argValue(args, "-b:v:1"); v != "1400k" {
		t.Errorf("Expected 1400k for the 480p rung, got %q", v)
	}
	if last := args[len(args)-1]; last != "v%v/index.m3u8" {
		t.Errorf("Expected relative variant playlist pattern, got %q", last)
	}
}

func TestHLSArgsWithoutAudio(t *testing.T) {
	args := hlsArgs("in.mp4", SelectLadder(0, 480), true, false, 4)
	if m, _ := argValue(args, "-var_stream_map"); m != "v:0 v:1" {
		t.Errorf("unexpected var_stream_map %q", m)
	}
	if slices.Contains(args, "0:a:0") {
		t.Error("Expected no audio mapping")
	}
}

func TestHLSArgsAudioOnly(t *testing.T) {
	args := hlsArgs("in.mp3", []Rendition{audioOnlyRendition}, false, true, 6)
	if _, ok := argValue(args, "-filter_complex"); ok {
		t.Error("Expected no video filter for audio-only ladder")
	}
	if m, _ := argValue(args, "-var_stream_map"); m != "a:0" {
		t.Errorf("unexpected var_stream_map %q", m)
	}
}

func TestFrameArgs(t *testing.T) {
	args := frameArgs("/in/clip.mp4", 12.5)
	if v, _ := argValue(args, "-ss"); v != "12.500" {
		t.Errorf("Expected -ss 12.500, got %q", v)
	}
	// input seeking: -ss must come before -i
	if slices.Index(args, "-ss") > slices.Index(args, "-i") {
		t.Error("Expected -ss before -i")
	}

	args = frameArgs("/in/photo.heic", 0)
	if slices.Contains(args, "-ss") {
		t.Error("Expected no seek at offset 0")
	}
	if !strings.HasSuffix(strings.Join(args, " "), "image2pipe -vcodec png -") {
		t.Errorf("Expected PNG on stdout, got %v", args)
	}
}

func TestParseBitrate(t *testing.T) {
	tests := map[string]int64{"2800k": 2800000, "5M": 5000000, "128000": 128000}
	for in, expected := range tests {
		got := parseBitrate(in)
		if got == nil || *got != expected {
			t.Errorf("parseBitrate(%q) = %v, expected %d", in, got, expected)
		}
	}
	if parseBitrate("") != nil || parseBitrate("fast") != nil {
		t.Error("Expected nil for unparseable bitrates")
	}
}
