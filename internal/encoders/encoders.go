package encoders

import (
	"bufio"
	"fmt"
	"regexp"
	"strings"
)

// EncoderType represents the type of encoder (video, audio, subtitle)
type EncoderType string

const (
	VideoEncoder    EncoderType = "V"
	AudioEncoder    EncoderType = "A"
	SubtitleEncoder EncoderType = "S"
	Unknown         EncoderType = "?"
)

// Encoder represents one line of the engine's encoder listing
type Encoder struct {
	Type        EncoderType `json:"type"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	HWAccel     bool        `json:"hwaccel"`
}

// EncoderList holds a categorized list of encoders
type EncoderList struct {
	VideoEncoders    []Encoder `json:"video_encoders"`
	AudioEncoders    []Encoder `json:"audio_encoders"`
	SubtitleEncoders []Encoder `json:"subtitle_encoders"`
	OtherEncoders    []Encoder `json:"other_encoders"`
}

var (
	encoderRegex = regexp.MustCompile(`^\s*([VASFXBD\.]{6})\s+(\w+)\s+(.+)$`)
	hwaccelRegex = regexp.MustCompile(`(?i)(nvenc|qsv|amf|vaapi|videotoolbox|vdpau|cuda|dxva2|d3d11va|opencl|vulkan)`)
)

// ParseEncoderList processes the output of "ffmpeg -encoders".
// The legend block ("V..... = Video") never matches because its name column is "=".
func ParseEncoderList(output string) (*EncoderList, error) {
	result := &EncoderList{
		VideoEncoders:    []Encoder{},
		AudioEncoders:    []Encoder{},
		SubtitleEncoders: []Encoder{},
		OtherEncoders:    []Encoder{},
	}

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		matches := encoderRegex.FindStringSubmatch(scanner.Text())
		if len(matches) != 4 {
			continue
		}

		typeFlags, name, description := matches[1], matches[2], matches[3]

		var encoderType EncoderType
		switch typeFlags[0] {
		case 'V':
			encoderType = VideoEncoder
		case 'A':
			encoderType = AudioEncoder
		case 'S':
			encoderType = SubtitleEncoder
		default:
			encoderType = Unknown
		}

		encoder := Encoder{
			Type:        encoderType,
			Name:        name,
			Description: strings.TrimSpace(description),
			HWAccel:     hwaccelRegex.MatchString(name) || hwaccelRegex.MatchString(description),
		}

		switch encoderType {
		case VideoEncoder:
			result.VideoEncoders = append(result.VideoEncoders, encoder)
		case AudioEncoder:
			result.AudioEncoders = append(result.AudioEncoders, encoder)
		case SubtitleEncoder:
			result.SubtitleEncoders = append(result.SubtitleEncoders, encoder)
		default:
			result.OtherEncoders = append(result.OtherEncoders, encoder)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading encoder listing: %w", err)
	}

	return result, nil
}

// Has reports whether a video encoder with the exact name is listed.
func (l *EncoderList) Has(name string) bool {
	for _, e := range l.VideoEncoders {
		if e.Name == name {
			return true
		}
	}
	return false
}

// HardwareVideoEncoders returns the video encoders that run on an accelerator.
func (l *EncoderList) HardwareVideoEncoders() []Encoder {
	var hw []Encoder
	for _, e := range l.VideoEncoders {
		if e.HWAccel {
			hw = append(hw, e)
		}
	}
	return hw
}
