package ffmpeg

import "runtime"

// Video encoder tokens understood by the engine.
const (
	EncoderSoftware     = "libx264"
	EncoderNVENC        = "h264_nvenc"
	EncoderAMF          = "h264_amf"
	EncoderQSV          = "h264_qsv"
	EncoderVAAPI        = "h264_vaapi"
	EncoderVideoToolbox = "h264_videotoolbox"
)

// HLS output layout inside a stream's output directory.
const (
	PlaylistName   = "stream.m3u8"
	SegmentPattern = "stream_%03d.ts"
	SegmentExt     = ".ts"
	PlaylistWindow = 10
)

// VAAPIDevice is the render node used for the VA-API accel path.
const VAAPIDevice = "/dev/dri/renderD128"

const (
	bufferSize      = "3000k"
	audioCodec      = "aac"
	audioSampleRate = "48000"
	audioChannels   = "2"
	outputPixFmt    = "yuv420p"
)

// Params represents everything the HLS command depends on besides paths.
type Params struct {
	// Encoder Configuration
	Encoder    string // h264_nvenc, libx264, etc.
	IsHardware bool
	Preset     string // only used by the software path

	// Rate Control
	VideoBitrate string // 1500k
	AudioBitrate string // 128k

	// Picture
	Resolution string  // 1920x1080
	FPS        float64 // 30, 29.97

	// HLS
	SegmentDuration float64 // seconds

	// TargetOS selects platform-specific accel flags. Empty means runtime.GOOS.
	TargetOS string
}

func (p *Params) targetOS() string {
	if p.TargetOS != "" {
		return p.TargetOS
	}
	return runtime.GOOS
}
