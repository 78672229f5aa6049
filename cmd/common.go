// Package cmd holds the hlsfeed subcommands.
package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/smazurov/hlsfeed/internal/logging"
	"github.com/smazurov/hlsfeed/internal/playlist"
	"github.com/smazurov/hlsfeed/internal/streams"
)

// encodeFlags are the stream options shared by the stream and args commands.
// Only flags the user set override values from a playlist file.
type encodeFlags struct {
	ffmpegPath      string
	encoder         string
	resolution      string
	videoBitrate    string
	audioBitrate    string
	preset          string
	fps             float64
	segmentDuration float64
	noGPU           bool
}

func (f *encodeFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.ffmpegPath, "ffmpeg-path", "", "Path to the ffmpeg binary")
	fs.StringVar(&f.encoder, "encoder-override", "", "Force a video encoder (e.g. libx264, h264_nvenc)")
	fs.StringVar(&f.resolution, "resolution", "", "Output resolution, e.g. 1280x720 (default 1920x1080)")
	fs.StringVar(&f.videoBitrate, "video-bitrate", "", "Video bitrate (default 1500k)")
	fs.StringVar(&f.audioBitrate, "audio-bitrate", "", "Audio bitrate (default 128k)")
	fs.StringVar(&f.preset, "preset", "", "Software encoder preset (default veryfast)")
	fs.Float64Var(&f.fps, "fps", 0, "Output frame rate (default 30)")
	fs.Float64Var(&f.segmentDuration, "segment-duration", 0, "HLS segment length in seconds (default 6)")
	fs.BoolVar(&f.noGPU, "no-gpu", false, "Use the software encoder")
}

func (f *encodeFlags) apply(fs *pflag.FlagSet, cfg streams.Config) streams.Config {
	if fs.Changed("encoder-override") {
		cfg.Encoder = f.encoder
	}
	if fs.Changed("resolution") {
		cfg.Resolution = f.resolution
	}
	if fs.Changed("video-bitrate") {
		cfg.VideoBitrate = f.videoBitrate
	}
	if fs.Changed("audio-bitrate") {
		cfg.AudioBitrate = f.audioBitrate
	}
	if fs.Changed("preset") {
		cfg.Preset = f.preset
	}
	if fs.Changed("fps") {
		cfg.FPS = f.fps
	}
	if fs.Changed("segment-duration") {
		cfg.SegmentDuration = f.segmentDuration
	}
	if f.noGPU {
		off := false
		cfg.UseGPU = &off
	}
	return cfg
}

// inputs is what a command line of media files or a single playlist file resolves to.
type inputs struct {
	files    []string
	options  streams.Config
	playlist string // set when the files came from a playlist file
}

// resolveInputs turns positional arguments into absolute media paths. A single
// .json or .toml argument is read as a playlist file.
func resolveInputs(args []string) (*inputs, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("at least one media file or playlist is required")
	}

	in := &inputs{files: args}
	if len(args) == 1 && playlist.IsPlaylistFile(args[0]) {
		f, err := playlist.LoadFile(args[0])
		if err != nil {
			return nil, err
		}
		in.files = f.Files
		in.options = f.Options
		in.playlist = args[0]
	}
	if len(in.files) == 0 {
		return nil, playlist.ErrEmptyPlaylist
	}

	abs, err := absolutePaths(in.files)
	if err != nil {
		return nil, err
	}
	in.files = abs
	return in, nil
}

func absolutePaths(files []string) ([]string, error) {
	out := make([]string, len(files))
	for i, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", f, err)
		}
		out[i] = abs
	}
	return out, nil
}

func initLogging(logJSON bool) {
	cfg := logging.Config{Level: "info", Format: "text"}
	if logJSON {
		cfg.Format = "json"
	}
	logging.Initialize(cfg)
}
