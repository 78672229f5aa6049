package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/hlsfeed/internal/api/models"
	"github.com/smazurov/hlsfeed/internal/playlist"
)

func (s *Server) registerPlaylistRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "create-playlist",
		Method:      http.MethodPost,
		Path:        "/api/playlist/create",
		Summary:     "Create Playlist",
		Description: "Write a concat manifest without starting a stream",
		Tags:        []string{"playlists"},
		Errors:      []int{400, 403, 500},
	}, func(_ context.Context, input *models.CreatePlaylistRequest) (*models.CreatePlaylistResponse, error) {
		body := input.Body
		if body.PlaylistID == "" || body.Files == nil {
			return nil, huma.Error400BadRequest("playlistId and files are required")
		}
		if !playlist.ValidID(body.PlaylistID) {
			return nil, huma.Error400BadRequest("playlistId may only contain letters, digits, underscores and dashes")
		}
		if len(body.Files) == 0 {
			return nil, huma.Error400BadRequest("files must not be empty")
		}

		path, err := s.options.Playlists.CreateConcatFile(body.PlaylistID, body.Files)
		if err != nil {
			return nil, huma.Error500InternalServerError("Failed to create playlist", err)
		}

		return &models.CreatePlaylistResponse{
			Body: models.CreatePlaylistData{
				Success:        true,
				ConcatFilePath: path,
				Validation:     s.options.Playlists.ValidateFiles(body.Files),
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "list-playlists",
		Method:      http.MethodGet,
		Path:        "/api/playlists",
		Summary:     "List Playlists",
		Description: "List concat manifests in the playlist directory",
		Tags:        []string{"playlists"},
		Errors:      []int{403},
	}, func(_ context.Context, _ *struct{}) (*models.PlaylistListResponse, error) {
		files := s.options.Playlists.ListConcatFiles()
		return &models.PlaylistListResponse{
			Body: models.PlaylistListData{
				Count: len(files),
				Files: files,
			},
		}, nil
	})
}
