package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"golang.org/x/time/rate"

	"github.com/smazurov/hlsfeed/internal/api/models"
	"github.com/smazurov/hlsfeed/internal/events"
	"github.com/smazurov/hlsfeed/internal/logging"
	"github.com/smazurov/hlsfeed/internal/playlist"
	"github.com/smazurov/hlsfeed/internal/streams"
	"github.com/smazurov/hlsfeed/internal/version"
	"github.com/smazurov/hlsfeed/ui"
)

// ServiceName is reported by the health endpoint and the OpenAPI document.
const ServiceName = "hlsfeed"

// Options configures the API server.
type Options struct {
	Supervisor *streams.Supervisor
	Playlists  *playlist.Manager
	EventBus   *events.Bus // optional, enables /api/events

	// OutputRoot holds one HLS directory per stream id.
	OutputRoot string

	// AllowRemote disables the local-network restriction on /api routes.
	AllowRemote bool

	// StartRate limits how often start requests may spawn engine processes.
	// Zero disables the limit.
	StartRate  rate.Limit
	StartBurst int

	PrometheusHandler http.Handler // optional, served at /metrics
}

// Server is the HTTP front of the stream supervisor.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	options    *Options
	logger     logging.Logger

	startLimiter *rate.Limiter
}

// NewServer builds the mux and registers every route.
func NewServer(opts *Options) *Server {
	mux := http.NewServeMux()

	corsConfig := DefaultCORSConfig()
	AddCORSHandler(mux, corsConfig)

	config := huma.DefaultConfig("hlsfeed API", version.String())
	config.Info.Description = "Turns lists of local video files into live HLS feeds"
	config.Servers = []*huma.Server{}

	api := humago.New(mux, config)

	server := &Server{
		api:     api,
		mux:     mux,
		options: opts,
		logger:  logging.GetLogger("api"),
	}
	if opts.StartRate > 0 {
		server.startLimiter = rate.NewLimiter(opts.StartRate, max(opts.StartBurst, 1))
	}

	api.UseMiddleware(NewCORSMiddleware(corsConfig))
	api.UseMiddleware(HTTPLoggingMiddleware)
	if !opts.AllowRemote {
		api.UseMiddleware(LocalNetworkOnly(api))
	}

	if opts.PrometheusHandler != nil {
		mux.Handle("GET /metrics", opts.PrometheusHandler)
	}

	server.registerRoutes()
	return server
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// GetAPI returns the Huma API instance.
func (s *Server) GetAPI() huma.API {
	return s.api
}

// Start listens on addr and blocks until the server is closed.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting API server", "addr", addr)
	s.logger.Info("OpenAPI documentation available", "url", "http://"+addr+"/docs")

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop closes the listener. Open SSE connections are dropped.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")
	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

func (s *Server) registerRoutes() {
	health := func(ctx context.Context, _ *struct{}) (*models.HealthResponse, error) {
		snap := s.options.Supervisor.DetectCapabilities(ctx)
		return &models.HealthResponse{
			Body: models.HealthData{
				Name:          ServiceName,
				Version:       version.String(),
				Status:        "running",
				ActiveStreams: s.options.Supervisor.Count(),
				GPU: &models.GPUSummary{
					Type:             snap.Type,
					HWAccelAvailable: snap.HWAccelConfirmed,
				},
			},
		}, nil
	}

	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Description: "Service status, active stream count and capability summary",
		Tags:        []string{"health"},
		Errors:      []int{403},
	}, health)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Description: "Get application version information",
		Tags:        []string{"system"},
		Errors:      []int{403},
	}, func(_ context.Context, _ *struct{}) (*models.VersionResponse, error) {
		info := version.Get()
		return &models.VersionResponse{
			Body: models.VersionData{
				Version:   info.Version,
				GitCommit: info.GitCommit,
				BuildDate: info.BuildDate,
				BuildID:   info.BuildID,
				GoVersion: info.GoVersion,
				Compiler:  info.Compiler,
				Platform:  info.Platform,
			},
		}, nil
	})

	s.registerGPURoutes()
	s.registerStreamRoutes()
	s.registerPlaylistRoutes()
	s.registerSSERoutes()
	s.registerHLSRoutes()

	player := ui.Handler()
	s.mux.Handle("GET /{$}", player)
	s.mux.Handle("GET /player.html", player)
}
