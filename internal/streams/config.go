package streams

import (
	"regexp"
	"strconv"

	"github.com/smazurov/hlsfeed/internal/ffmpeg"
)

// Defaults applied to zero-valued Config fields.
const (
	DefaultSegmentDuration = 6
	DefaultVideoBitrate    = "1500k"
	DefaultAudioBitrate    = "128k"
	DefaultResolution      = "1920x1080"
	DefaultFPS             = 30
	DefaultPreset          = "veryfast"
)

var (
	bitrateRegex    = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?[kKmM]?$`)
	resolutionRegex = regexp.MustCompile(`^([0-9]+)x([0-9]+)$`)
	presetRegex     = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	encoderRegex    = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// Config is the caller-supplied encoding configuration for one stream.
type Config struct {
	SegmentDuration float64 `json:"segmentDuration,omitempty" toml:"segment_duration,omitempty" doc:"HLS segment length in seconds" example:"6"`
	VideoBitrate    string  `json:"videoBitrate,omitempty" toml:"video_bitrate,omitempty" doc:"Target video bitrate" example:"1500k"`
	AudioBitrate    string  `json:"audioBitrate,omitempty" toml:"audio_bitrate,omitempty" doc:"Audio bitrate" example:"128k"`
	Resolution      string  `json:"resolution,omitempty" toml:"resolution,omitempty" doc:"Output size, letterboxed" example:"1920x1080"`
	FPS             float64 `json:"fps,omitempty" toml:"fps,omitempty" doc:"Output frame rate" example:"30"`
	Preset          string  `json:"preset,omitempty" toml:"preset,omitempty" doc:"Software encoder preset" example:"veryfast"`
	Encoder         string  `json:"encoder,omitempty" toml:"encoder,omitempty" doc:"Force a video encoder, bypassing detection" example:"h264_nvenc"`
	UseGPU          *bool   `json:"useGPU,omitempty" toml:"use_gpu,omitempty" doc:"Use the detected hardware encoder (default true)"`
}

// DefaultConfig returns the configuration used when a caller supplies nothing.
func DefaultConfig() Config {
	return Config{}.WithDefaults()
}

// WithDefaults returns a copy with every zero-valued field defaulted.
// Non-zero values are kept even when invalid so Validate can report them.
func (c Config) WithDefaults() Config {
	if c.SegmentDuration == 0 {
		c.SegmentDuration = DefaultSegmentDuration
	}
	if c.VideoBitrate == "" {
		c.VideoBitrate = DefaultVideoBitrate
	}
	if c.AudioBitrate == "" {
		c.AudioBitrate = DefaultAudioBitrate
	}
	if c.Resolution == "" {
		c.Resolution = DefaultResolution
	}
	if c.FPS == 0 {
		c.FPS = DefaultFPS
	}
	if c.Preset == "" {
		c.Preset = DefaultPreset
	}
	return c
}

// WantsGPU reports the GPU preference, true unless explicitly disabled.
func (c Config) WantsGPU() bool {
	return c.UseGPU == nil || *c.UseGPU
}

// Validate checks every field and returns an INVALID_PARAMS *StreamError
// naming the first offending one.
func (c Config) Validate() error {
	if c.SegmentDuration <= 0 {
		return invalidParam("segmentDuration", "must be a positive number of seconds")
	}
	if !bitrateRegex.MatchString(c.VideoBitrate) {
		return invalidParam("videoBitrate", "must look like 1500k or 2M")
	}
	if !bitrateRegex.MatchString(c.AudioBitrate) {
		return invalidParam("audioBitrate", "must look like 128k")
	}
	if err := validateResolution(c.Resolution); err != nil {
		return err
	}
	if c.FPS <= 0 {
		return invalidParam("fps", "must be positive")
	}
	if !presetRegex.MatchString(c.Preset) {
		return invalidParam("preset", "may only contain letters, digits and underscores")
	}
	if c.Encoder != "" && !encoderRegex.MatchString(c.Encoder) {
		return invalidParam("encoder", "may only contain letters, digits, underscores and dashes")
	}
	return nil
}

func validateResolution(res string) error {
	m := resolutionRegex.FindStringSubmatch(res)
	if m == nil {
		return invalidParam("resolution", "must be WIDTHxHEIGHT")
	}
	w, errW := strconv.Atoi(m[1])
	h, errH := strconv.Atoi(m[2])
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return invalidParam("resolution", "width and height must be positive")
	}
	return nil
}

// Params converts the config into builder parameters for the chosen encoder.
func (c Config) Params(encoder string, isHardware bool) ffmpeg.Params {
	return ffmpeg.Params{
		Encoder:         encoder,
		IsHardware:      isHardware,
		Preset:          c.Preset,
		VideoBitrate:    c.VideoBitrate,
		AudioBitrate:    c.AudioBitrate,
		Resolution:      c.Resolution,
		FPS:             c.FPS,
		SegmentDuration: c.SegmentDuration,
	}
}
