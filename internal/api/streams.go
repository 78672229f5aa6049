package api

import (
	"context"
	"net/http"
	"path/filepath"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/hlsfeed/internal/api/models"
	"github.com/smazurov/hlsfeed/internal/metrics"
	"github.com/smazurov/hlsfeed/internal/playlist"
	"github.com/smazurov/hlsfeed/internal/streams"
)

func (s *Server) registerStreamRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "start-stream",
		Method:      http.MethodPost,
		Path:        "/api/stream/start",
		Summary:     "Start Stream",
		Description: "Write a concat manifest for the files and start an HLS stream from it. " +
			"A stream already running under the same id is replaced. Missing files only produce a warning.",
		Tags:   []string{"streams"},
		Errors: []int{400, 403, 409, 429, 500},
	}, func(ctx context.Context, input *models.StartStreamRequest) (*models.StartStreamResponse, error) {
		if s.startLimiter != nil && !s.startLimiter.Allow() {
			metrics.RecordStartRejected()
			return nil, huma.Error429TooManyRequests("Too many start requests, retry shortly")
		}

		body := input.Body
		if body.StreamID == "" {
			return nil, huma.Error400BadRequest("streamId is required")
		}
		if !playlist.ValidID(body.StreamID) {
			return nil, huma.Error400BadRequest("streamId may only contain letters, digits, underscores and dashes")
		}
		if len(body.Files) == 0 {
			return nil, huma.Error400BadRequest("files array is required and must not be empty")
		}

		s.logger.Info("Starting stream", "stream_id", body.StreamID, "files", len(body.Files))

		validation := s.options.Playlists.ValidateFiles(body.Files)
		manifest, err := s.options.Playlists.CreateConcatFile(body.StreamID, body.Files)
		if err != nil {
			return nil, huma.Error500InternalServerError("Failed to write concat file", err)
		}

		var cfg streams.Config
		if body.Options != nil {
			cfg = *body.Options
		}

		outputDir := filepath.Join(s.options.OutputRoot, body.StreamID)
		info, err := s.options.Supervisor.Start(ctx, body.StreamID, manifest, outputDir, cfg)
		if err != nil {
			s.logger.Error("Failed to start stream", "stream_id", body.StreamID, "error", err)
			return nil, mapStreamError(err)
		}

		return &models.StartStreamResponse{
			Body: models.StartStreamData{
				Success:    true,
				Stream:     info,
				Validation: validation,
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "stop-stream",
		Method:      http.MethodPost,
		Path:        "/api/stream/stop",
		Summary:     "Stop Stream",
		Description: "Request termination of a stream. Returns immediately; stopping an unknown id succeeds.",
		Tags:        []string{"streams"},
		Errors:      []int{400, 403},
	}, func(_ context.Context, input *models.StopStreamRequest) (*models.StopStreamResponse, error) {
		id := input.Body.StreamID
		if id == "" {
			return nil, huma.Error400BadRequest("streamId is required")
		}

		s.logger.Info("Stopping stream", "stream_id", id)
		wasRunning := s.options.Supervisor.Stop(id)

		return &models.StopStreamResponse{
			Body: models.StopStreamData{
				Success:    true,
				Message:    "Stream " + id + " stopped",
				WasRunning: wasRunning,
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "list-streams",
		Method:      http.MethodGet,
		Path:        "/api/streams",
		Summary:     "List Streams",
		Description: "List registered streams with uptime, the latest engine progress and process resource use",
		Tags:        []string{"streams"},
		Errors:      []int{403},
	}, func(ctx context.Context, _ *struct{}) (*models.StreamListResponse, error) {
		list := s.options.Supervisor.List()
		data := make([]models.StreamData, len(list))
		for i, st := range list {
			data[i] = models.StreamData{
				StreamStatus: st,
				PlaybackURL:  s.options.Supervisor.PlaybackPath(st.ID),
				Progress:     metrics.GetFFmpegMetrics(st.ID),
			}
			// The process may exit between List and the read; report no usage then.
			if usage, err := metrics.GetProcessUsage(ctx, st.PID); err == nil {
				data[i].Usage = usage
			}
		}

		return &models.StreamListResponse{
			Body: models.StreamListData{
				Count:   len(data),
				Streams: data,
			},
		}, nil
	})
}
