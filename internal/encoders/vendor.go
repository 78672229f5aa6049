package encoders

import (
	"fmt"

	"github.com/smazurov/hlsfeed/internal/ffmpeg"
)

// Vendor identifies which encoder family won the probe.
type Vendor string

const (
	VendorCPU      Vendor = "CPU"
	VendorNVIDIA   Vendor = "NVIDIA"
	VendorAMD      Vendor = "AMD"
	VendorIntelQSV Vendor = "IntelQSV"
)

// HardwareSet records which hardware encoders the engine was built with.
type HardwareSet struct {
	NVENC        bool `json:"nvenc"`
	AMF          bool `json:"amf"`
	QSV          bool `json:"qsv"`
	VAAPI        bool `json:"vaapi"`
	VideoToolbox bool `json:"videotoolbox"`
}

// Any reports whether at least one hardware encoder is compiled in.
func (h HardwareSet) Any() bool {
	return h.NVENC || h.AMF || h.QSV || h.VAAPI || h.VideoToolbox
}

// hardwareSetFromList maps the engine's encoder listing onto vendor flags.
func hardwareSetFromList(list *EncoderList) HardwareSet {
	return HardwareSet{
		NVENC:        list.Has(ffmpeg.EncoderNVENC),
		AMF:          list.Has(ffmpeg.EncoderAMF),
		QSV:          list.Has(ffmpeg.EncoderQSV),
		VAAPI:        list.Has(ffmpeg.EncoderVAAPI),
		VideoToolbox: list.Has(ffmpeg.EncoderVideoToolbox),
	}
}

// Snapshot is the result of a capability probe. It never changes once computed.
type Snapshot struct {
	Type             Vendor      `json:"type"`
	Encoder          string      `json:"encoder"`
	Available        HardwareSet `json:"available"`
	HWAccelConfirmed bool        `json:"hwAccelAvailable"`
}

// CPUSnapshot is the software fallback every failed probe degrades to.
func CPUSnapshot() Snapshot {
	return Snapshot{
		Type:    VendorCPU,
		Encoder: ffmpeg.EncoderSoftware,
	}
}

// Description summarizes the snapshot for logs and the CLI.
func (s Snapshot) Description() string {
	if !s.HWAccelConfirmed {
		return fmt.Sprintf("%s encoding (%s)", s.Type, s.Encoder)
	}
	return fmt.Sprintf("%s hardware encoding (%s)", s.Type, s.Encoder)
}

// Recommendation is the human readable verdict shown by the GPU endpoint.
func (s Snapshot) Recommendation() string {
	if s.HWAccelConfirmed {
		return fmt.Sprintf("GPU encoding is available! Streams will use %s for hardware acceleration.", s.Encoder)
	}
	return fmt.Sprintf("No GPU detected. Streams will use CPU encoding (%s).", ffmpeg.EncoderSoftware)
}

type candidate struct {
	vendor  Vendor
	encoder string
	present func(HardwareSet) bool
}

// probeOrder is the fixed vendor priority. The first functional encoder wins.
var probeOrder = []candidate{
	{VendorNVIDIA, ffmpeg.EncoderNVENC, func(h HardwareSet) bool { return h.NVENC }},
	{VendorAMD, ffmpeg.EncoderAMF, func(h HardwareSet) bool { return h.AMF }},
	{VendorIntelQSV, ffmpeg.EncoderQSV, func(h HardwareSet) bool { return h.QSV }},
}
