package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/hlsfeed/internal/api/models"
)

func (s *Server) registerGPURoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-gpu",
		Method:      http.MethodGet,
		Path:        "/api/gpu",
		Summary:     "Hardware Acceleration",
		Description: "Report the detected encoder capabilities. The first call runs the probe.",
		Tags:        []string{"encoders"},
		Errors:      []int{403},
	}, func(ctx context.Context, _ *struct{}) (*models.GPUResponse, error) {
		snap := s.options.Supervisor.DetectCapabilities(ctx)
		return &models.GPUResponse{
			Body: models.GPUData{
				GPU:            snap,
				FFmpegPath:     s.options.Supervisor.FFmpegPath(),
				Recommendation: snap.Recommendation(),
			},
		}, nil
	})
}
