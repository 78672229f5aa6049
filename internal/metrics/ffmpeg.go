package metrics

import (
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ffmpegFPS = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ffmpeg",
		Name:      "fps",
		Help:      "Current FFmpeg encoding FPS",
	}, []string{"stream_id"})

	ffmpegDroppedFrames = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ffmpeg",
		Name:      "dropped_frames_total",
		Help:      "Total dropped frames",
	}, []string{"stream_id"})

	ffmpegDuplicateFrames = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ffmpeg",
		Name:      "duplicate_frames_total",
		Help:      "Total duplicate frames",
	}, []string{"stream_id"})

	ffmpegSpeed = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ffmpeg",
		Name:      "processing_speed",
		Help:      "FFmpeg processing speed multiplier",
	}, []string{"stream_id"})

	// Local cache so the API can report progress without scraping Prometheus.
	ffmpegCache   = make(map[string]*FFmpegStreamMetrics)
	ffmpegCacheMu sync.RWMutex
)

// FFmpegStreamMetrics holds current metric values for a stream.
type FFmpegStreamMetrics struct {
	FPS             float64 `json:"fps"`
	DroppedFrames   float64 `json:"droppedFrames"`
	DuplicateFrames float64 `json:"duplicateFrames"`
	Speed           float64 `json:"speed"`
}

// SetFFmpegFPS sets the current FPS for a stream.
func SetFFmpegFPS(streamID string, fps float64) {
	ffmpegFPS.WithLabelValues(streamID).Set(fps)
	updateCache(streamID, func(m *FFmpegStreamMetrics) { m.FPS = fps })
}

// SetFFmpegDroppedFrames sets the dropped frames count for a stream.
func SetFFmpegDroppedFrames(streamID string, count float64) {
	ffmpegDroppedFrames.WithLabelValues(streamID).Set(count)
	updateCache(streamID, func(m *FFmpegStreamMetrics) { m.DroppedFrames = count })
}

// SetFFmpegDuplicateFrames sets the duplicate frames count for a stream.
func SetFFmpegDuplicateFrames(streamID string, count float64) {
	ffmpegDuplicateFrames.WithLabelValues(streamID).Set(count)
	updateCache(streamID, func(m *FFmpegStreamMetrics) { m.DuplicateFrames = count })
}

// SetFFmpegSpeed sets the processing speed for a stream.
func SetFFmpegSpeed(streamID string, speed float64) {
	ffmpegSpeed.WithLabelValues(streamID).Set(speed)
	updateCache(streamID, func(m *FFmpegStreamMetrics) { m.Speed = speed })
}

// DeleteFFmpegMetrics removes all metrics for a stream.
func DeleteFFmpegMetrics(streamID string) {
	ffmpegFPS.DeleteLabelValues(streamID)
	ffmpegDroppedFrames.DeleteLabelValues(streamID)
	ffmpegDuplicateFrames.DeleteLabelValues(streamID)
	ffmpegSpeed.DeleteLabelValues(streamID)

	ffmpegCacheMu.Lock()
	delete(ffmpegCache, streamID)
	ffmpegCacheMu.Unlock()
}

// GetFFmpegMetrics returns current metric values for a stream.
func GetFFmpegMetrics(streamID string) *FFmpegStreamMetrics {
	ffmpegCacheMu.RLock()
	defer ffmpegCacheMu.RUnlock()
	if m, ok := ffmpegCache[streamID]; ok {
		dup := *m
		return &dup
	}
	return nil
}

func updateCache(streamID string, update func(*FFmpegStreamMetrics)) {
	ffmpegCacheMu.Lock()
	defer ffmpegCacheMu.Unlock()
	m, ok := ffmpegCache[streamID]
	if !ok {
		m = &FFmpegStreamMetrics{}
		ffmpegCache[streamID] = m
	}
	update(m)
}

// statsField matches "key=value" pairs in the engine's stats line, where
// values may be padded ("fps= 30") and speed carries a trailing x.
var statsField = regexp.MustCompile(`(\w+)=\s*(\S+)`)

// ParseStatsLine extracts key/value pairs from a line such as
// "frame=  120 fps= 30 q=28.0 size=N/A time=00:00:04.00 bitrate=N/A dup=1 drop=0 speed=1.01x".
// Returns nil for lines that are not stats lines.
func ParseStatsLine(line string) map[string]string {
	if !strings.HasPrefix(line, "frame=") {
		return nil
	}
	fields := make(map[string]string)
	for _, m := range statsField.FindAllStringSubmatch(line, -1) {
		fields[m[1]] = m[2]
	}
	return fields
}

// ProgressHandler turns engine stats lines into per-stream gauges.
// It satisfies process.OutputHandler.
type ProgressHandler struct {
	StreamID string
}

// HandleLine implements process.OutputHandler.
func (h ProgressHandler) HandleLine(_ string, line string) {
	fields := ParseStatsLine(line)
	if fields == nil {
		return
	}

	if fps, err := strconv.ParseFloat(fields["fps"], 64); err == nil {
		SetFFmpegFPS(h.StreamID, fps)
	}
	if drop, err := strconv.ParseFloat(fields["drop"], 64); err == nil {
		SetFFmpegDroppedFrames(h.StreamID, drop)
	}
	if dup, err := strconv.ParseFloat(fields["dup"], 64); err == nil {
		SetFFmpegDuplicateFrames(h.StreamID, dup)
	}
	if speed, err := strconv.ParseFloat(strings.TrimSuffix(fields["speed"], "x"), 64); err == nil {
		SetFFmpegSpeed(h.StreamID, speed)
	}
}
