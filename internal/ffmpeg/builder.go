package ffmpeg

import (
	"path/filepath"
	"strconv"
	"strings"
)

// BuildHLSArgs builds the engine argument vector that turns a concat manifest
// into a live HLS playlist inside outputDir.
//
// The result depends only on its inputs. Accel flags must come before -i or
// the engine applies them to the output instead of the decoder.
func BuildHLSArgs(manifestPath, outputDir string, p Params) []string {
	args := make([]string, 0, 64)

	if p.IsHardware {
		args = append(args, HWAccelArgs(p.Encoder, p.targetOS())...)
	}

	// Input: concat demuxer, unsafe paths allowed, paced at native rate
	args = append(args,
		"-f", "concat",
		"-safe", "0",
		"-re",
		"-i", manifestPath,
	)

	args = append(args, "-c:v", p.Encoder)
	args = append(args, encoderTuningArgs(p)...)

	args = append(args,
		"-c:a", audioCodec,
		"-b:a", p.AudioBitrate,
		"-ar", audioSampleRate,
		"-ac", audioChannels,
	)

	args = append(args, "-vf", VideoFilter(p.Encoder, p.IsHardware, p.Resolution))

	args = append(args,
		"-pix_fmt", outputPixFmt,
		"-r", FormatNumber(p.FPS),
	)

	args = append(args,
		"-f", "hls",
		"-hls_time", FormatNumber(p.SegmentDuration),
		"-hls_list_size", strconv.Itoa(PlaylistWindow),
		"-hls_flags", "delete_segments+omit_endlist",
		"-hls_segment_type", "mpegts",
		"-hls_segment_filename", filepath.Join(outputDir, SegmentPattern),
		"-y",
		filepath.Join(outputDir, PlaylistName),
	)

	return args
}

// HWAccelArgs returns the decoder acceleration flags for an encoder.
// AMD only gets d3d11va on windows; elsewhere it decodes in software.
func HWAccelArgs(encoder, targetOS string) []string {
	switch encoder {
	case EncoderNVENC:
		return []string{"-hwaccel", "cuda", "-hwaccel_output_format", "cuda"}
	case EncoderQSV:
		return []string{"-hwaccel", "qsv"}
	case EncoderAMF:
		if targetOS == "windows" {
			return []string{"-hwaccel", "d3d11va"}
		}
		return nil
	case EncoderVAAPI:
		return []string{"-hwaccel", "vaapi", "-vaapi_device", VAAPIDevice}
	default:
		return nil
	}
}

// encoderTuningArgs returns the rate control and quality knobs for the encoder.
func encoderTuningArgs(p Params) []string {
	rate := []string{
		"-b:v", p.VideoBitrate,
		"-maxrate", p.VideoBitrate,
		"-bufsize", bufferSize,
	}

	switch p.Encoder {
	case EncoderNVENC:
		// p1 (fastest) .. p7 (slowest)
		args := []string{"-preset", "p4", "-tune", "hq"}
		args = append(args, rate...)
		return append(args, "-rc", "vbr")
	case EncoderQSV:
		return append([]string{"-preset", "medium"}, rate...)
	case EncoderAMF:
		return append([]string{"-quality", "balanced"}, rate...)
	default:
		return append([]string{"-preset", p.Preset}, rate...)
	}
}

// VideoFilter returns the -vf expression scaling to resolution.
// NVENC scales on the device and downloads to nv12; every other path
// scales in software and letterboxes to the exact size.
func VideoFilter(encoder string, isHardware bool, resolution string) string {
	if isHardware && encoder == EncoderNVENC {
		return "scale_cuda=" + resolution + ":force_original_aspect_ratio=decrease,hwdownload,format=nv12"
	}

	pad := strings.Replace(resolution, "x", ":", 1)
	return "scale=" + resolution + ":force_original_aspect_ratio=decrease," +
		"pad=" + pad + ":(ow-iw)/2:(oh-ih)/2:black"
}

// BuildEncodersListArgs returns the arguments that list compiled-in encoders.
func BuildEncodersListArgs() []string {
	return []string{"-hide_banner", "-encoders"}
}

// BuildEncoderTestArgs returns the arguments for a functional encoder test:
// a tenth of a second of black 64x64 video encoded to the null muxer.
func BuildEncoderTestArgs(encoder string) []string {
	return []string{
		"-hide_banner",
		"-f", "lavfi",
		"-i", "color=black:s=64x64:d=0.1",
		"-c:v", encoder,
		"-f", "null",
		"-",
	}
}

// FormatNumber renders n without a trailing ".0" so 30 stays "30" and 29.97 stays "29.97".
func FormatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// FormatCommand renders binary and args for logs. It is never executed by a shell.
func FormatCommand(binary string, args []string) string {
	var cmd strings.Builder
	cmd.WriteString(binary)
	for _, arg := range args {
		cmd.WriteByte(' ')
		if arg == "" || strings.ContainsAny(arg, " \t'\"") {
			cmd.WriteString(strconv.Quote(arg))
			continue
		}
		cmd.WriteString(arg)
	}
	return cmd.String()
}
