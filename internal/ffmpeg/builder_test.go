package ffmpeg

import (
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func softwareParams() Params {
	return Params{
		Encoder:         EncoderSoftware,
		Preset:          "veryfast",
		VideoBitrate:    "1500k",
		AudioBitrate:    "128k",
		Resolution:      "1280x720",
		FPS:             30,
		SegmentDuration: 6,
		TargetOS:        "linux",
	}
}

// flagValue returns the token following flag, or "" if flag is absent.
func flagValue(args []string, flag string) string {
	i := slices.Index(args, flag)
	if i == -1 || i+1 >= len(args) {
		return ""
	}
	return args[i+1]
}

func TestBuildHLSArgsSoftwareGolden(t *testing.T) {
	out := filepath.Join("out", "cam")
	got := BuildHLSArgs("/tmp/cam_concat.txt", out, softwareParams())

	want := []string{
		"-f", "concat", "-safe", "0", "-re", "-i", "/tmp/cam_concat.txt",
		"-c:v", "libx264",
		"-preset", "veryfast", "-b:v", "1500k", "-maxrate", "1500k", "-bufsize", "3000k",
		"-c:a", "aac", "-b:a", "128k", "-ar", "48000", "-ac", "2",
		"-vf", "scale=1280x720:force_original_aspect_ratio=decrease,pad=1280:720:(ow-iw)/2:(oh-ih)/2:black",
		"-pix_fmt", "yuv420p", "-r", "30",
		"-f", "hls",
		"-hls_time", "6",
		"-hls_list_size", "10",
		"-hls_flags", "delete_segments+omit_endlist",
		"-hls_segment_type", "mpegts",
		"-hls_segment_filename", filepath.Join(out, "stream_%03d.ts"),
		"-y", filepath.Join(out, "stream.m3u8"),
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("BuildHLSArgs() mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildHLSArgsDeterministic(t *testing.T) {
	encoders := []struct {
		encoder string
		hw      bool
	}{
		{EncoderSoftware, false},
		{EncoderNVENC, true},
		{EncoderQSV, true},
		{EncoderAMF, true},
		{EncoderVAAPI, true},
	}

	for _, e := range encoders {
		t.Run(e.encoder, func(t *testing.T) {
			p := softwareParams()
			p.Encoder = e.encoder
			p.IsHardware = e.hw

			first := BuildHLSArgs("/m.txt", "/out", p)
			second := BuildHLSArgs("/m.txt", "/out", p)
			if !reflect.DeepEqual(first, second) {
				t.Errorf("two builds differ:\n%q\n%q", first, second)
			}
		})
	}
}

func TestHWAccelFlagsPrecedeInput(t *testing.T) {
	tests := []struct {
		encoder  string
		targetOS string
		want     []string
	}{
		{EncoderNVENC, "linux", []string{"-hwaccel", "cuda", "-hwaccel_output_format", "cuda"}},
		{EncoderQSV, "linux", []string{"-hwaccel", "qsv"}},
		{EncoderAMF, "windows", []string{"-hwaccel", "d3d11va"}},
		{EncoderAMF, "linux", nil},
		{EncoderVAAPI, "linux", []string{"-hwaccel", "vaapi", "-vaapi_device", "/dev/dri/renderD128"}},
	}

	for _, tt := range tests {
		t.Run(tt.encoder+"/"+tt.targetOS, func(t *testing.T) {
			p := softwareParams()
			p.Encoder = tt.encoder
			p.IsHardware = true
			p.TargetOS = tt.targetOS

			args := BuildHLSArgs("/m.txt", "/out", p)
			input := slices.Index(args, "-i")
			if input == -1 {
				t.Fatal("no -i in args")
			}

			concat := slices.Index(args, "concat")
			if concat == -1 || concat > input {
				t.Fatalf("concat demuxer not before -i: %q", args)
			}
			prefix := args[:concat-1]
			if len(tt.want) == 0 {
				if len(prefix) != 0 {
					t.Errorf("expected no accel flags, got %q", prefix)
				}
				return
			}
			if !reflect.DeepEqual(prefix, tt.want) {
				t.Errorf("accel prefix = %q, want %q", prefix, tt.want)
			}
			if hw := slices.Index(args, "-hwaccel"); hw > input {
				t.Errorf("-hwaccel at %d after -i at %d", hw, input)
			}
		})
	}
}

func TestSoftwarePathIgnoresAccelEvenForHardwareToken(t *testing.T) {
	p := softwareParams()
	p.Encoder = EncoderNVENC
	p.IsHardware = false

	args := BuildHLSArgs("/m.txt", "/out", p)
	if slices.Contains(args, "-hwaccel") {
		t.Errorf("unexpected -hwaccel without hardware: %q", args)
	}
	if vf := flagValue(args, "-vf"); !strings.HasPrefix(vf, "scale=") {
		t.Errorf("expected software scale filter, got %q", vf)
	}
}

func TestVideoFilter1080p(t *testing.T) {
	vf := VideoFilter(EncoderSoftware, false, "1920x1080")
	if !strings.Contains(vf, "pad=1920:1080") {
		t.Errorf("filter %q missing pad target 1920:1080", vf)
	}
	if !strings.Contains(vf, "scale=1920x1080") {
		t.Errorf("filter %q missing scale target 1920x1080", vf)
	}
	if !strings.HasSuffix(vf, ":black") {
		t.Errorf("filter %q does not pad with black", vf)
	}
}

func TestVideoFilterNVENC(t *testing.T) {
	vf := VideoFilter(EncoderNVENC, true, "1280x720")
	want := "scale_cuda=1280x720:force_original_aspect_ratio=decrease,hwdownload,format=nv12"
	if vf != want {
		t.Errorf("VideoFilter() = %q, want %q", vf, want)
	}
}

func TestEncoderTuning(t *testing.T) {
	tests := []struct {
		encoder string
		want    []string
	}{
		{EncoderNVENC, []string{"-preset", "p4", "-tune", "hq", "-b:v", "2M", "-maxrate", "2M", "-bufsize", "3000k", "-rc", "vbr"}},
		{EncoderQSV, []string{"-preset", "medium", "-b:v", "2M", "-maxrate", "2M", "-bufsize", "3000k"}},
		{EncoderAMF, []string{"-quality", "balanced", "-b:v", "2M", "-maxrate", "2M", "-bufsize", "3000k"}},
		{EncoderSoftware, []string{"-preset", "slow", "-b:v", "2M", "-maxrate", "2M", "-bufsize", "3000k"}},
	}

	for _, tt := range tests {
		t.Run(tt.encoder, func(t *testing.T) {
			p := softwareParams()
			p.Encoder = tt.encoder
			p.Preset = "slow"
			p.VideoBitrate = "2M"

			got := encoderTuningArgs(p)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("encoderTuningArgs() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHLSMuxerFlags(t *testing.T) {
	args := BuildHLSArgs("/m.txt", "/out", softwareParams())

	if v := flagValue(args, "-hls_time"); v != "6" {
		t.Errorf("hls_time = %q, want 6", v)
	}
	if v := flagValue(args, "-hls_list_size"); v != "10" {
		t.Errorf("hls_list_size = %q, want 10", v)
	}
	pattern := flagValue(args, "-hls_segment_filename")
	if !strings.HasSuffix(pattern, "%03d.ts") {
		t.Errorf("segment pattern %q does not end in a 3-digit counter", pattern)
	}
	if last := args[len(args)-1]; filepath.Base(last) != PlaylistName {
		t.Errorf("last arg = %q, want playlist path", last)
	}
	if args[len(args)-2] != "-y" {
		t.Errorf("expected -y before playlist path, got %q", args[len(args)-2])
	}
}

func TestFormatNumber(t *testing.T) {
	tests := map[float64]string{
		30:    "30",
		29.97: "29.97",
		2.5:   "2.5",
	}
	for in, want := range tests {
		if got := FormatNumber(in); got != want {
			t.Errorf("FormatNumber(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatCommandQuotesSpaces(t *testing.T) {
	got := FormatCommand("ffmpeg", []string{"-i", "/my videos/list.txt", "-y"})
	want := `ffmpeg -i "/my videos/list.txt" -y`
	if got != want {
		t.Errorf("FormatCommand() = %q, want %q", got, want)
	}
}

func TestEncoderTestArgs(t *testing.T) {
	args := BuildEncoderTestArgs(EncoderQSV)
	if flagValue(args, "-c:v") != EncoderQSV {
		t.Errorf("encoder not passed through: %q", args)
	}
	if flagValue(args, "-i") != "color=black:s=64x64:d=0.1" {
		t.Errorf("unexpected test source: %q", args)
	}
	if args[len(args)-1] != "-" {
		t.Errorf("expected null output, got %q", args)
	}
}
