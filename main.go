package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/smazurov/hlsfeed/cmd"
	"github.com/smazurov/hlsfeed/internal/api"
	"github.com/smazurov/hlsfeed/internal/config"
	"github.com/smazurov/hlsfeed/internal/events"
	"github.com/smazurov/hlsfeed/internal/feeds"
	"github.com/smazurov/hlsfeed/internal/logging"
	"github.com/smazurov/hlsfeed/internal/metrics"
	"github.com/smazurov/hlsfeed/internal/playlist"
	"github.com/smazurov/hlsfeed/internal/process"
	"github.com/smazurov/hlsfeed/internal/streams"
	"github.com/smazurov/hlsfeed/internal/systemd"
	"github.com/smazurov/hlsfeed/internal/version"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port        string `help:"Address to listen on" short:"p" default:":3000" toml:"server.port" env:"SERVER_PORT"`
	AllowRemote bool   `help:"Serve the /api routes to non-local clients" default:"false" toml:"server.allow_remote" env:"SERVER_ALLOW_REMOTE"`

	// Engine settings
	FfmpegPath  string `help:"Path to the ffmpeg binary (default: FFMPEG_PATH, bundled bin/, then PATH)" toml:"ffmpeg.path" env:"FFMPEG_PATH"`
	DisableGpu  bool   `help:"Never use hardware encoders" default:"false" toml:"ffmpeg.disable_gpu" env:"FFMPEG_DISABLE_GPU"`
	SegmentWait int    `help:"Seconds to wait for the first segment on start" default:"10" toml:"ffmpeg.segment_wait" env:"FFMPEG_SEGMENT_WAIT"`
	StartRate   int    `help:"Start requests allowed per minute (0 disables the limit)" default:"120" toml:"ffmpeg.start_rate" env:"FFMPEG_START_RATE"`
	StartBurst  int    `help:"Start requests allowed in a burst" default:"5" toml:"ffmpeg.start_burst" env:"FFMPEG_START_BURST"`

	// Output settings
	OutputDir   string `help:"Root directory for HLS output" default:"output" toml:"streams.output_dir" env:"STREAMS_OUTPUT_DIR"`
	PlaylistDir string `help:"Directory for concat manifests" default:"playlists" toml:"streams.playlist_dir" env:"STREAMS_PLAYLIST_DIR"`

	// Feeds settings
	FeedsFile  string `help:"Declared feeds file" default:"feeds.toml" toml:"feeds.file" env:"FEEDS_FILE"`
	WatchFeeds bool   `help:"Reconcile streams when the feeds file changes" default:"true" toml:"feeds.watch" env:"FEEDS_WATCH"`

	// Logging settings
	LoggingLevel    string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat   string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingStreams  string `help:"Streams logging level" default:"info" toml:"logging.streams" env:"LOGGING_STREAMS"`
	LoggingEncoders string `help:"Encoders logging level" default:"info" toml:"logging.encoders" env:"LOGGING_ENCODERS"`
	LoggingFfmpeg   string `help:"Engine output logging level" default:"info" toml:"logging.ffmpeg" env:"LOGGING_FFMPEG"`
	LoggingFeeds    string `help:"Feeds logging level" default:"info" toml:"logging.feeds" env:"LOGGING_FEEDS"`
	LoggingPlaylist string `help:"Playlist logging level" default:"info" toml:"logging.playlist" env:"LOGGING_PLAYLIST"`
	LoggingAPI      string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
}

// startRate converts the per-minute start limit to a token rate. Zero or
// less disables the limit.
func startRate(perMinute int) rate.Limit {
	if perMinute <= 0 {
		return 0
	}
	return rate.Limit(float64(perMinute) / 60)
}

func main() {
	// A .env next to the binary may carry FFMPEG_PATH, PORT and friends.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Failed to load .env", "error", err)
	}

	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		// Load configuration automatically
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}
		// Older deployments set PORT; honour it while --port is at its default.
		if port := os.Getenv("PORT"); port != "" && opts.Port == ":3000" {
			opts.Port = ":" + port
		}

		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"streams":  opts.LoggingStreams,
				"encoders": opts.LoggingEncoders,
				"ffmpeg":   opts.LoggingFfmpeg,
				"feeds":    opts.LoggingFeeds,
				"playlist": opts.LoggingPlaylist,
				"api":      opts.LoggingAPI,
				"http":     opts.LoggingAPI,
			},
		})

		logger := logging.GetLogger("main")
		logger.Info("Starting", "version", version.Banner(api.ServiceName))

		// Create event bus for in-process event handling
		eventBus := events.New()
		unsubscribeMetrics := metrics.Subscribe(eventBus)
		notifier := systemd.NewNotifier(logging.GetLogger("systemd"))
		unsubscribeNotifier := notifier.Subscribe(eventBus)

		supervisor := streams.NewSupervisor(streams.SupervisorOptions{
			FFmpegPath:         opts.FfmpegPath,
			DisableGPU:         opts.DisableGpu,
			EventBus:           eventBus,
			SegmentWaitTimeout: time.Duration(opts.SegmentWait) * time.Second,
			NewOutputHandler: func(streamID string) process.OutputHandler {
				return metrics.ProgressHandler{StreamID: streamID}
			},
		})
		playlists := playlist.NewManager(opts.PlaylistDir, logging.GetLogger("playlist"))

		server := api.NewServer(&api.Options{
			Supervisor:        supervisor,
			Playlists:         playlists,
			EventBus:          eventBus,
			OutputRoot:        opts.OutputDir,
			AllowRemote:       opts.AllowRemote,
			StartRate:         startRate(opts.StartRate),
			StartBurst:        opts.StartBurst,
			PrometheusHandler: promhttp.Handler(),
		})

		reconciler := feeds.NewReconciler(feeds.Options{
			Supervisor: supervisor,
			Playlists:  playlists,
			OutputRoot: opts.OutputDir,
			BaseDir:    filepath.Dir(opts.FeedsFile),
		})

		var watcher *config.Watcher[*config.Feeds]
		if opts.WatchFeeds {
			watcher = config.NewConfigWatcher(opts.FeedsFile, config.LoadFeeds, logging.GetLogger("feeds"),
				config.WithErrorHandler[*config.Feeds](func(err error) {
					logger.Warn("Feeds file rejected, keeping current streams", "path", opts.FeedsFile, "error", err)
				}))
		}

		// Cancelled on shutdown so a pending segment wait does not hold up OnStop.
		runCtx, cancelRun := context.WithCancel(context.Background())

		hooks.OnStart(func() {
			declared, err := config.LoadFeeds(opts.FeedsFile)
			if err != nil {
				logger.Error("Failed to load feeds", "path", opts.FeedsFile, "error", err)
			} else {
				go func() {
					if applyErr := reconciler.Apply(runCtx, declared); applyErr != nil {
						logger.Warn("Some feeds failed to start", "error", applyErr)
					}
				}()
			}

			if watcher != nil {
				watcher.OnReload(func(next *config.Feeds) {
					if applyErr := reconciler.Apply(runCtx, next); applyErr != nil {
						logger.Warn("Some feeds failed to start", "error", applyErr)
					}
				})
				if startErr := watcher.Start(); startErr != nil {
					logger.Warn("Failed to watch feeds file", "path", opts.FeedsFile, "error", startErr)
				}
			}

			// Warm the capability cache so the first start does not pay for the probe.
			go supervisor.DetectCapabilities(runCtx)

			notifier.Ready()
			notifier.Status("serving on %s", opts.Port)

			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			notifier.Stopping()
			cancelRun()

			if watcher != nil {
				if stopErr := watcher.Stop(); stopErr != nil {
					logger.Warn("Error stopping feeds watcher", "error", stopErr)
				}
			}
			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}

			// Stop all FFmpeg processes (after HTTP server stops accepting new requests)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			logger.Info("Stopping all streams", "count", supervisor.Count())
			if stopErr := supervisor.StopAll(ctx); stopErr != nil {
				logger.Warn("Streams did not exit in time", "error", stopErr)
			}
			unsubscribeMetrics()
			unsubscribeNotifier()
		})
	})

	cli.Root().Use = "hlsfeed"
	cli.Root().Short = "Turn lists of local video files into live HLS feeds"
	cli.Root().Version = version.Banner(api.ServiceName)

	cli.Root().AddCommand(cmd.CreateDetectEncodersCmd())
	cli.Root().AddCommand(cmd.CreateStreamCmd())
	cli.Root().AddCommand(cmd.CreateArgsCmd())

	// Run the CLI
	cli.Run()
}
