package encoders

import "github.com/smazurov/hlsfeed/internal/ffmpeg"

// SelectEncoder picks the video encoder for one stream.
//
// An explicit override is used verbatim and counts as hardware unless it is
// the software encoder. Otherwise a GPU request takes the snapshot's winner,
// which is already libx264 when no device was confirmed, and anything else
// forces libx264.
func SelectEncoder(s Snapshot, wantsGPU bool, override string) (encoder string, isHardware bool) {
	if override != "" {
		return override, override != ffmpeg.EncoderSoftware
	}
	if wantsGPU && s.Encoder != "" {
		return s.Encoder, s.Encoder != ffmpeg.EncoderSoftware
	}
	return ffmpeg.EncoderSoftware, false
}
