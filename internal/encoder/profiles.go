package encoder

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"streamvio/internal/apperr"
	"streamvio/internal/jobs"
)

// Profile is a named transcode preset.
type Profile struct {
	VideoCodec   string `toml:"video_codec" json:"videoCodec"`
	VideoBitrate string `toml:"video_bitrate" json:"videoBitrate"`
	Height       int    `toml:"height" json:"height"`
	AudioCodec   string `toml:"audio_codec" json:"audioCodec"`
	AudioBitrate string `toml:"audio_bitrate" json:"audioBitrate"`
	Preset       string `toml:"preset" json:"preset"`
}

// Profiles maps lower-case profile names to presets.
type Profiles map[string]Profile

// DefaultProfiles returns the built-in presets.
func DefaultProfiles() Profiles {
	return Profiles{
		"low": {
			VideoCodec: "libx264", VideoBitrate: "800k", Height: 480,
			AudioCodec: "aac", AudioBitrate: "96k", Preset: "veryfast",
		},
		"standard": {
			VideoCodec: "libx264", VideoBitrate: "2500k", Height: 720,
			AudioCodec: "aac", AudioBitrate: "128k", Preset: "veryfast",
		},
		"high": {
			VideoCodec: "libx264", VideoBitrate: "5000k", Height: 1080,
			AudioCodec: "aac", AudioBitrate: "192k", Preset: "fast",
		},
		"uhd": {
			VideoCodec: "libx264", VideoBitrate: "14000k", Height: 2160,
			AudioCodec: "aac", AudioBitrate: "192k", Preset: "fast",
		},
	}
}

type profilesFile struct {
	Profiles map[string]Profile `toml:"profiles"`
}

// LoadProfiles reads a TOML file of [profiles.<name>] tables and merges it
// over the defaults. Fields left empty in the file are taken from the
// built-in "standard" profile.
func LoadProfiles(path string) (Profiles, error) {
	profiles := DefaultProfiles()
	if path == "" {
		return profiles, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open profiles file: %w", err)
	}
	defer file.Close()

	var parsed profilesFile
	decoder := toml.NewDecoder(file)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&parsed); err != nil {
		return nil, fmt.Errorf("parse profiles file: %w", err)
	}

	base := profiles[jobs.DefaultProfile]
	for name, p := range parsed.Profiles {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			return nil, fmt.Errorf("profiles file %s: empty profile name", path)
		}
		if p.Height < 0 {
			return nil, fmt.Errorf("profile %q: height must not be negative", name)
		}
		profiles[name] = p.withDefaults(base)
	}
	return profiles, nil
}

func (p Profile) withDefaults(base Profile) Profile {
	if p.VideoCodec == "" {
		p.VideoCodec = base.VideoCodec
	}
	if p.VideoBitrate == "" {
		p.VideoBitrate = base.VideoBitrate
	}
	if p.AudioCodec == "" {
		p.AudioCodec = base.AudioCodec
	}
	if p.AudioBitrate == "" {
		p.AudioBitrate = base.AudioBitrate
	}
	if p.Preset == "" {
		p.Preset = base.Preset
	}
	return p
}

// Names lists profile names in sorted order.
func (p Profiles) Names() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve applies explicit overrides in opts to the named profile. Unknown
// profile names are an INVALID_ARGUMENT error.
func (p Profiles) Resolve(opts jobs.TranscodeOptions) (Profile, error) {
	name := opts.Profile
	if name == "" {
		name = jobs.DefaultProfile
	}
	profile, ok := p[name]
	if !ok {
		return Profile{}, apperr.New(apperr.CodeInvalidArgument,
			"unknown profile %q (available: %s)", name, strings.Join(p.Names(), ", "))
	}

	if opts.Height > 0 {
		profile.Height = opts.Height
	}
	if opts.VideoCodec != "" {
		profile.VideoCodec = opts.VideoCodec
	}
	if opts.VideoBitrate != "" {
		profile.VideoBitrate = opts.VideoBitrate
	}
	if opts.AudioCodec != "" {
		profile.AudioCodec = opts.AudioCodec
	}
	if opts.AudioBitrate != "" {
		profile.AudioBitrate = opts.AudioBitrate
	}
	return profile, nil
}
