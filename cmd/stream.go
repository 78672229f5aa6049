package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"reflect"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/hlsfeed/internal/config"
	"github.com/smazurov/hlsfeed/internal/events"
	"github.com/smazurov/hlsfeed/internal/ffmpeg"
	"github.com/smazurov/hlsfeed/internal/logging"
	"github.com/smazurov/hlsfeed/internal/playlist"
	"github.com/smazurov/hlsfeed/internal/streams"
)

// CreateStreamCmd creates the stream command.
func CreateStreamCmd() *cobra.Command {
	var flags encodeFlags
	var outputDir, playlistDir string
	var watch, logJSON bool

	cmd := &cobra.Command{
		Use:   "stream <stream-id> <file|playlist>...",
		Short: "Run a single HLS stream in the foreground",
		Long: `Writes a concat manifest for the given media files and runs one stream until interrupted. ` +
			`When the input is a playlist file (.json or .toml) it is watched and the stream restarts ` +
			`whenever its file list or options change.`,
		Args:         cobra.MinimumNArgs(2),
		SilenceUsage: true,
		RunE: func(c *cobra.Command, args []string) error {
			initLogging(logJSON)

			streamID := args[0]
			if !playlist.ValidID(streamID) {
				return fmt.Errorf("invalid stream id %q: use letters, digits, underscores and dashes", streamID)
			}
			// Create logger with stream_id context for journal integration
			logger := logging.GetLogger("stream").With("stream_id", streamID)

			in, err := resolveInputs(args[1:])
			if err != nil {
				return err
			}
			cfg := flags.apply(c.Flags(), in.options)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			bus := events.New()
			exited := make(chan events.StreamExitedEvent, 1)
			unsubscribe := events.On(bus, func(e events.StreamExitedEvent) {
				if e.StreamID != streamID || e.Requested {
					return
				}
				select {
				case exited <- e:
				default:
				}
			})
			defer unsubscribe()

			supervisor := streams.NewSupervisor(streams.SupervisorOptions{
				FFmpegPath: flags.ffmpegPath,
				DisableGPU: flags.noGPU,
				EventBus:   bus,
				Logger:     logger,
			})
			playlists := playlist.NewManager(playlistDir, logging.GetLogger("playlist"))
			streamDir := filepath.Join(outputDir, streamID)

			start := func(files []string, cfg streams.Config) error {
				playlists.ValidateFiles(files)
				manifest, err := playlists.CreateConcatFile(streamID, files)
				if err != nil {
					return err
				}
				info, err := supervisor.Start(ctx, streamID, manifest, streamDir, cfg)
				if err != nil {
					return err
				}
				logger.Info("Stream started",
					"playlist", filepath.Join(info.OutputDir, ffmpeg.PlaylistName),
					"encoder", info.Encoder,
					"hardware", info.Hardware,
					"ready", info.Ready)
				return nil
			}

			if err := start(in.files, cfg); err != nil {
				return err
			}

			if in.playlist != "" && watch {
				current := in.files
				watcher := config.NewConfigWatcher(in.playlist, playlist.LoadFile, logger,
					config.WithErrorHandler[*playlist.File](func(err error) {
						logger.Warn("Playlist rejected, keeping current stream", "error", err)
					}))

				watcher.OnReload(func(f *playlist.File) {
					files, err := absolutePaths(f.Files)
					if err != nil || len(files) == 0 {
						logger.Warn("Playlist has no usable files, keeping current stream", "error", err)
						return
					}
					next := flags.apply(c.Flags(), f.Options)
					if slices.Equal(files, current) && reflect.DeepEqual(next, cfg) {
						logger.Debug("Playlist reloaded, nothing changed")
						return
					}

					logger.Info("Playlist changed, restarting stream", "files", len(files))
					if err := start(files, next); err != nil {
						logger.Error("Failed to restart stream", "error", err)
						return
					}
					current, cfg = files, next
				})

				// Start config watcher (non-fatal if it fails)
				if err := watcher.Start(); err != nil {
					logger.Warn("Failed to watch playlist, hot-reload disabled", "error", err)
				} else {
					defer func() { _ = watcher.Stop() }()
				}
			}

			var exitErr error
			select {
			case <-ctx.Done():
				logger.Info("Signal received, stopping stream")
			case e := <-exited:
				if e.ExitCode != 0 {
					exitErr = fmt.Errorf("ffmpeg exited with code %d", e.ExitCode)
				} else {
					logger.Info("Stream finished")
				}
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := supervisor.StopAll(shutdownCtx); err != nil {
				logger.Warn("Stream did not exit in time", "error", err)
			}
			return exitErr
		},
	}

	flags.register(cmd.Flags())
	cmd.Flags().StringVar(&outputDir, "output-dir", "output", "Root directory for HLS output")
	cmd.Flags().StringVar(&playlistDir, "playlist-dir", playlist.DefaultDir, "Directory for concat manifests")
	cmd.Flags().BoolVar(&watch, "watch", true, "Restart the stream when the playlist file changes")
	cmd.Flags().BoolVar(&logJSON, "log-json", false, "Use JSON log format")

	return cmd
}
