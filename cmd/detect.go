package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/hlsfeed/internal/encoders"
	"github.com/smazurov/hlsfeed/internal/ffmpeg"
	"github.com/smazurov/hlsfeed/internal/logging"
)

// CreateDetectEncodersCmd creates the detect-encoders command.
func CreateDetectEncodersCmd() *cobra.Command {
	var ffmpegPath string
	var noGPU, asJSON bool

	cmd := &cobra.Command{
		Use:   "detect-encoders",
		Short: "Probe which H.264 encoder works on this machine",
		Long: `Lists the encoders ffmpeg was built with, runs a short functional test of each hardware ` +
			`encoder in priority order (NVIDIA, AMD, Intel QSV) and reports the one streams will use.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(c *cobra.Command, _ []string) error {
			initLogging(false)

			path, source := ffmpeg.ResolveBinary(ffmpegPath)
			logging.GetLogger("encoders").Debug("Using ffmpeg", "path", path, "source", source)

			var took time.Duration
			prober := encoders.NewProber(encoders.ProberOptions{
				FFmpegPath: path,
				DisableGPU: noGPU,
				OnDetected: func(_ encoders.Snapshot, d time.Duration) { took = d },
			})
			snap := prober.Detect(c.Context())

			out := c.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					encoders.Snapshot
					FFmpegPath string `json:"ffmpegPath"`
				}{snap, path})
			}

			fmt.Fprintf(out, "ffmpeg:    %s (%s)\n", path, source)
			fmt.Fprintf(out, "compiled:  %s\n", formatHardwareSet(snap.Available))
			fmt.Fprintf(out, "selected:  %s\n", snap.Description())
			fmt.Fprintf(out, "probe:     %s\n", took.Round(time.Millisecond))
			fmt.Fprintln(out, snap.Recommendation())
			return nil
		},
	}

	cmd.Flags().StringVar(&ffmpegPath, "ffmpeg-path", "", "Path to the ffmpeg binary")
	cmd.Flags().BoolVar(&noGPU, "no-gpu", false, "Skip hardware probing")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the snapshot as JSON")

	return cmd
}

func formatHardwareSet(h encoders.HardwareSet) string {
	var names []string
	for _, e := range []struct {
		name string
		ok   bool
	}{
		{ffmpeg.EncoderNVENC, h.NVENC},
		{ffmpeg.EncoderAMF, h.AMF},
		{ffmpeg.EncoderQSV, h.QSV},
		{ffmpeg.EncoderVAAPI, h.VAAPI},
		{ffmpeg.EncoderVideoToolbox, h.VideoToolbox},
	} {
		if e.ok {
			names = append(names, e.name)
		}
	}
	if len(names) == 0 {
		return "no hardware encoders"
	}
	return fmt.Sprint(names)
}
