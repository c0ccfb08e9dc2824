package encoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"streamvio/internal/apperr"
	"streamvio/internal/filesystem"
	"streamvio/internal/jobs"
	"streamvio/internal/logging"
	"streamvio/internal/media"
	"streamvio/internal/mediatypes"
)

var log = logging.For("encoder")

// ProbeTimeout bounds a single ffprobe run.
const ProbeTimeout = 30 * time.Second

// Config configures an Invoker.
type Config struct {
	FFmpegPath      string
	FFprobePath     string
	Timeout         time.Duration
	CancelGrace     time.Duration
	DiagnosticLimit int
	SegmentSeconds  int
	Profiles        Profiles
}

// DefaultConfig returns tool names resolved via PATH and conservative limits.
func DefaultConfig() Config {
	return Config{
		FFmpegPath:      "ffmpeg",
		FFprobePath:     "ffprobe",
		Timeout:         2 * time.Hour,
		CancelGrace:     10 * time.Second,
		DiagnosticLimit: apperr.DefaultDiagnosticLimit,
		SegmentSeconds:  DefaultSegmentSeconds,
		Profiles:        DefaultProfiles(),
	}
}

// Invoker runs encoder processes. It holds only configuration and is safe
// for concurrent use.
type Invoker struct {
	cfg Config
}

// New creates an Invoker, filling unset fields from DefaultConfig.
func New(cfg Config) *Invoker {
	def := DefaultConfig()
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = def.FFmpegPath
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = def.FFprobePath
	}
	if cfg.DiagnosticLimit <= 0 {
		cfg.DiagnosticLimit = def.DiagnosticLimit
	}
	if cfg.SegmentSeconds <= 0 {
		cfg.SegmentSeconds = def.SegmentSeconds
	}
	if cfg.Profiles == nil {
		cfg.Profiles = def.Profiles
	}
	return &Invoker{cfg: cfg}
}

// Profiles returns the configured transcode presets.
func (i *Invoker) Profiles() Profiles {
	return i.cfg.Profiles
}

// Request is one unit of encoder work.
type Request struct {
	JobID     string
	InputPath string
	// OutputPath is the final location: a file for transcode and thumbnail,
	// a directory for hls and storyboard. It must not be shared with any
	// other in-flight request.
	OutputPath string
	Options    jobs.Options
	// Duration is used when the probe cannot determine one.
	Duration *float64
	// Progress, when set, receives completion percentages in [0, 100].
	Progress func(percent float64)
}

// Metadata describes a produced artifact. Nil fields were not measured.
type Metadata struct {
	Bitrate  *int64   `json:"bitrate,omitempty"`
	Width    *int     `json:"width,omitempty"`
	Height   *int     `json:"height,omitempty"`
	Codec    string   `json:"codec,omitempty"`
	Duration *float64 `json:"duration,omitempty"`
}

// Frame is one extracted still.
type Frame struct {
	Offset float64 `json:"offset"`
	Path   string  `json:"path"`
}

// Result describes a successful invocation.
type Result struct {
	// OutputPath is the file to serve: the rendition, the master playlist,
	// the thumbnail or the storyboard sprite.
	OutputPath string
	MimeType   string
	Metadata   Metadata
	Frames     []Frame
	Renditions []string
}

// Invoke produces the artifact described by req.Options.
func (i *Invoker) Invoke(ctx context.Context, req Request) (*Result, error) {
	if _, err := filesystem.StatWithRetry(req.InputPath, filesystem.DefaultRetryConfig()); err != nil {
		return nil, apperr.Wrap(apperr.CodeSourceMissing, err, "source %s is not accessible", req.InputPath)
	}
	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0o755); err != nil {
		return nil, apperr.Wrap(apperr.CodeStorageFailed, err, "create output directory")
	}

	switch opts := req.Options.(type) {
	case jobs.TranscodeOptions:
		return i.transcode(ctx, req, opts)
	case jobs.HLSOptions:
		return i.hls(ctx, req, opts)
	case jobs.ThumbnailOptions:
		return i.thumbnail(ctx, req, opts)
	case jobs.StoryboardOptions:
		return i.storyboard(ctx, req, opts)
	default:
		return nil, apperr.New(apperr.CodeInternal, "no encoder for options %T", req.Options)
	}
}

// Probe extracts media information from path.
func (i *Invoker) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	timeout := ProbeTimeout
	if i.cfg.Timeout > 0 && i.cfg.Timeout < timeout {
		timeout = i.cfg.Timeout
	}

	var stdout bytes.Buffer
	err := i.run(ctx, invocation{
		op:      "probe",
		bin:     i.cfg.FFprobePath,
		args:    probeArgs(path),
		stdout:  &stdout,
		timeout: timeout,
	})
	if err != nil {
		return nil, err
	}

	result, err := parseProbe(stdout.Bytes())
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeEncodingFailed, err, "probe %s", path)
	}
	return result, nil
}

func (i *Invoker) transcode(ctx context.Context, req Request, opts jobs.TranscodeOptions) (*Result, error) {
	profile, err := i.cfg.Profiles.Resolve(opts)
	if err != nil {
		return nil, err
	}

	src, err := i.Probe(ctx, req.InputPath)
	if err != nil {
		return nil, err
	}
	if src.Video() == nil && src.Audio() == nil {
		return nil, apperr.New(apperr.CodeEncodingFailed, "%s has no audio or video streams", req.InputPath)
	}
	duration := src.durationOr(req.Duration)

	tmp := tempPath(req.OutputPath, req.JobID)
	defer removeQuietly(tmp)

	err = i.run(ctx, invocation{
		op:      string(jobs.KindTranscode),
		bin:     i.cfg.FFmpegPath,
		args:    transcodeArgs(req.InputPath, tmp, profile, src),
		stdout:  newProgressWriter(duration, req.Progress),
		timeout: i.cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}
	if err := requireOutput(tmp); err != nil {
		return nil, err
	}
	if err := os.Rename(tmp, req.OutputPath); err != nil {
		return nil, apperr.Wrap(apperr.CodeStorageFailed, err, "move transcode into place")
	}

	return &Result{
		OutputPath: req.OutputPath,
		MimeType:   mediatypes.MimeTypeForPath(req.OutputPath),
		Metadata:   i.outputMetadata(ctx, req.OutputPath, duration),
	}, nil
}

func (i *Invoker) hls(ctx context.Context, req Request, opts jobs.HLSOptions) (*Result, error) {
	src, err := i.Probe(ctx, req.InputPath)
	if err != nil {
		return nil, err
	}

	video, audio := src.Video(), src.Audio()
	if video == nil && audio == nil {
		return nil, apperr.New(apperr.CodeEncodingFailed, "%s has no audio or video streams", req.InputPath)
	}

	segment := opts.SegmentSeconds
	if segment <= 0 {
		segment = i.cfg.SegmentSeconds
	}

	ladder := []Rendition{audioOnlyRendition}
	if video != nil {
		sourceHeight := 0
		if video.Height != nil {
			sourceHeight = *video.Height
		}
		ladder = SelectLadder(opts.MaxHeight, sourceHeight)
	}

	tmpDir := tempPath(req.OutputPath, req.JobID)
	defer removeAllQuietly(tmpDir)
	if err := os.RemoveAll(tmpDir); err != nil {
		return nil, apperr.Wrap(apperr.CodeStorageFailed, err, "clear temp directory")
	}
	renditions := make([]string, len(ladder))
	for n := range ladder {
		variant := fmt.Sprintf("v%d", n)
		if err := os.MkdirAll(filepath.Join(tmpDir, variant), 0o755); err != nil {
			return nil, apperr.Wrap(apperr.CodeStorageFailed, err, "create rendition directory")
		}
		renditions[n] = filepath.Join(variant, VariantPlaylist)
	}

	duration := src.durationOr(req.Duration)
	err = i.run(ctx, invocation{
		op:      string(jobs.KindHLS),
		bin:     i.cfg.FFmpegPath,
		args:    hlsArgs(req.InputPath, ladder, video != nil, audio != nil, segment),
		dir:     tmpDir,
		stdout:  newProgressWriter(duration, req.Progress),
		timeout: i.cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}
	if err := requireOutput(filepath.Join(tmpDir, MasterPlaylist)); err != nil {
		return nil, err
	}

	// the destination is unique per job, so anything there is a leftover
	if err := os.RemoveAll(req.OutputPath); err != nil {
		return nil, apperr.Wrap(apperr.CodeStorageFailed, err, "clear hls destination")
	}
	if err := os.Rename(tmpDir, req.OutputPath); err != nil {
		return nil, apperr.Wrap(apperr.CodeStorageFailed, err, "move hls ladder into place")
	}

	top := ladder[0]
	meta := Metadata{Codec: "aac", Duration: duration}
	if video != nil {
		height := top.Height
		meta.Height = &height
		meta.Codec = "h264"
		if br := parseBitrate(top.VideoBitrate); br != nil {
			meta.Bitrate = br
		}
	}

	return &Result{
		OutputPath: filepath.Join(req.OutputPath, MasterPlaylist),
		MimeType:   mediatypes.MimeTypeForPath(MasterPlaylist),
		Metadata:   meta,
		Renditions: renditions,
	}, nil
}

func (i *Invoker) thumbnail(ctx context.Context, req Request, opts jobs.ThumbnailOptions) (*Result, error) {
	var (
		img    image.Image
		offset float64
	)

	if mediatypes.DetectFileType(req.InputPath) == mediatypes.FileTypeImage {
		loaded, err := media.LoadImageConstrained(req.InputPath, media.MaxImageDimension, media.MaxImagePixels)
		if err != nil {
			log.Debug("native decode of %s failed, using ffmpeg: %v", req.InputPath, err)
		} else {
			img = loaded
		}
	}

	if img == nil {
		src, err := i.Probe(ctx, req.InputPath)
		if err != nil {
			return nil, err
		}
		offset = opts.Offset
		if d := src.durationOr(req.Duration); d != nil {
			offset = ClampOffset(opts.Offset, *d)
		}
		if offset != opts.Offset {
			log.Debug("thumbnail offset %.3f clamped to %.3f for %s", opts.Offset, offset, req.InputPath)
		}
		img, err = i.extractFrame(ctx, string(jobs.KindThumbnail), req.InputPath, offset)
		if err != nil {
			return nil, err
		}
	}

	thumb := media.Fit(img, opts.Width, opts.Height)
	if err := media.WriteJPEG(req.OutputPath, thumb); err != nil {
		return nil, apperr.Wrap(apperr.CodeStorageFailed, err, "write thumbnail")
	}
	reportDone(req.Progress)

	width, height := thumb.Bounds().Dx(), thumb.Bounds().Dy()
	return &Result{
		OutputPath: req.OutputPath,
		MimeType:   "image/jpeg",
		Metadata:   Metadata{Width: &width, Height: &height, Codec: "mjpeg"},
		Frames:     []Frame{{Offset: offset, Path: req.OutputPath}},
	}, nil
}

func (i *Invoker) storyboard(ctx context.Context, req Request, opts jobs.StoryboardOptions) (*Result, error) {
	src, err := i.Probe(ctx, req.InputPath)
	if err != nil {
		return nil, err
	}
	if src.Video() == nil {
		return nil, apperr.New(apperr.CodeUnsupportedOperation, "%s has no video stream", req.InputPath)
	}
	duration := src.durationOr(req.Duration)
	if duration == nil {
		return nil, apperr.New(apperr.CodeEncodingFailed, "duration of %s is unknown", req.InputPath)
	}

	tmpDir := tempPath(req.OutputPath, req.JobID)
	defer removeAllQuietly(tmpDir)
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, apperr.Wrap(apperr.CodeStorageFailed, err, "create storyboard directory")
	}

	offsets := StoryboardOffsets(*duration, opts.Count)
	frames := make([]Frame, 0, len(offsets))
	images := make([]image.Image, 0, len(offsets))

	for n, offset := range offsets {
		img, err := i.extractFrame(ctx, string(jobs.KindStoryboard), req.InputPath, offset)
		if err != nil {
			return nil, err
		}
		fitted := media.Fit(img, opts.Width, 0)
		name := fmt.Sprintf("frame_%03d.jpg", n)
		if err := media.WriteJPEG(filepath.Join(tmpDir, name), fitted); err != nil {
			return nil, apperr.Wrap(apperr.CodeStorageFailed, err, "write storyboard frame")
		}
		frames = append(frames, Frame{Offset: offset, Path: filepath.Join(req.OutputPath, name)})
		images = append(images, fitted)

		if req.Progress != nil {
			req.Progress(float64(n+1) / float64(len(offsets)) * 99)
		}
	}

	sheet, err := media.Sprite(images, media.SpriteColumns(len(images)))
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeEncodingFailed, err, "compose sprite")
	}
	if err := media.WriteJPEG(filepath.Join(tmpDir, SpriteName), sheet); err != nil {
		return nil, apperr.Wrap(apperr.CodeStorageFailed, err, "write sprite")
	}

	if err := os.RemoveAll(req.OutputPath); err != nil {
		return nil, apperr.Wrap(apperr.CodeStorageFailed, err, "clear storyboard destination")
	}
	if err := os.Rename(tmpDir, req.OutputPath); err != nil {
		return nil, apperr.Wrap(apperr.CodeStorageFailed, err, "move storyboard into place")
	}
	reportDone(req.Progress)

	width, height := images[0].Bounds().Dx(), images[0].Bounds().Dy()
	return &Result{
		OutputPath: filepath.Join(req.OutputPath, SpriteName),
		MimeType:   "image/jpeg",
		Metadata:   Metadata{Width: &width, Height: &height, Codec: "mjpeg", Duration: duration},
		Frames:     frames,
	}, nil
}

// extractFrame runs ffmpeg for one PNG frame and decodes it.
func (i *Invoker) extractFrame(ctx context.Context, op, input string, offset float64) (image.Image, error) {
	var stdout bytes.Buffer
	err := i.run(ctx, invocation{
		op:      op,
		bin:     i.cfg.FFmpegPath,
		args:    frameArgs(input, offset),
		stdout:  &stdout,
		timeout: i.cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}
	if stdout.Len() == 0 {
		return nil, apperr.New(apperr.CodeEncodingFailed, "no frame at %.3fs in %s", offset, input)
	}
	img, err := media.DecodeFrame(stdout.Bytes())
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeEncodingFailed, err, "frame at %.3fs", offset)
	}
	return img, nil
}

// outputMetadata probes a finished rendition. Failures only cost metadata.
func (i *Invoker) outputMetadata(ctx context.Context, path string, duration *float64) Metadata {
	meta := Metadata{Duration: duration}
	out, err := i.Probe(ctx, path)
	if err != nil {
		log.Warn("could not probe output %s: %v", path, err)
		return meta
	}
	meta.Bitrate = out.Bitrate
	if out.Duration != nil {
		meta.Duration = out.Duration
	}
	if v := out.Video(); v != nil {
		meta.Width, meta.Height, meta.Codec = v.Width, v.Height, v.Codec
	} else if a := out.Audio(); a != nil {
		meta.Codec = a.Codec
	}
	return meta
}

// tempPath is a sibling of final that keeps its extension, so ffmpeg still
// infers the container from the name.
func tempPath(final, jobID string) string {
	return filepath.Join(filepath.Dir(final), ".tmp-"+jobID+"-"+filepath.Base(final))
}

func requireOutput(path string) error {
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		if err == nil {
			err = errors.New("output is empty")
		}
		return apperr.Wrap(apperr.CodeEncodingFailed, err, "encoder produced no output")
	}
	return nil
}

func removeQuietly(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn("failed to remove %s: %v", path, err)
	}
}

func removeAllQuietly(path string) {
	if err := os.RemoveAll(path); err != nil {
		log.Warn("failed to remove %s: %v", path, err)
	}
}

func reportDone(progress func(float64)) {
	if progress != nil {
		progress(100)
	}
}

// parseBitrate reads ffmpeg rates such as "2800k" into bits per second.
func parseBitrate(s string) *int64 {
	if s == "" {
		return nil
	}
	mult := int64(1)
	switch s[len(s)-1] {
	case 'k', 'K':
		mult, s = 1000, s[:len(s)-1]
	case 'm', 'M':
		mult, s = 1000000, s[:len(s)-1]
	}
	v := parseInt64(s)
	if v == nil {
		return nil
	}
	bps := *v * mult
	return &bps
}
