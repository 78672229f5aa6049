package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/smazurov/hlsfeed/internal/ffmpeg"
	"github.com/smazurov/hlsfeed/internal/playlist"
	"github.com/smazurov/hlsfeed/internal/streams"
)

// CreateArgsCmd creates the args command, a dry run of stream.
func CreateArgsCmd() *cobra.Command {
	var flags encodeFlags
	var streamID, outputDir, playlistDir string
	var showManifest bool

	cmd := &cobra.Command{
		Use:   "args <file|playlist>...",
		Short: "Print the ffmpeg command a stream would run",
		Long: `Resolves the encoder exactly as the server would and prints the resulting ffmpeg command ` +
			`line without writing the manifest or starting anything.`,
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(c *cobra.Command, args []string) error {
			initLogging(false)

			if !playlist.ValidID(streamID) {
				return fmt.Errorf("invalid stream id %q", streamID)
			}
			in, err := resolveInputs(args)
			if err != nil {
				return err
			}
			cfg := flags.apply(c.Flags(), in.options)

			supervisor := streams.NewSupervisor(streams.SupervisorOptions{
				FFmpegPath: flags.ffmpegPath,
				DisableGPU: flags.noGPU,
			})
			manifest := playlist.NewManager(playlistDir, nil).ConcatPath(streamID)

			bin, argv, err := supervisor.Command(c.Context(), manifest, filepath.Join(outputDir, streamID), cfg)
			if err != nil {
				return err
			}

			out := c.OutOrStdout()
			if showManifest {
				fmt.Fprintf(out, "# %s\n%s\n", manifest, playlist.ConcatContent(in.files))
			}
			fmt.Fprintln(out, ffmpeg.FormatCommand(bin, argv))
			return nil
		},
	}

	flags.register(cmd.Flags())
	cmd.Flags().StringVar(&streamID, "id", "preview", "Stream id used for the manifest and output paths")
	cmd.Flags().StringVar(&outputDir, "output-dir", "output", "Root directory for HLS output")
	cmd.Flags().StringVar(&playlistDir, "playlist-dir", playlist.DefaultDir, "Directory for concat manifests")
	cmd.Flags().BoolVar(&showManifest, "show-manifest", false, "Also print the concat manifest contents")

	return cmd
}
