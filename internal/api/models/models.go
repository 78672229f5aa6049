// Package models holds the request and response bodies of the HTTP API.
package models

import (
	"github.com/smazurov/hlsfeed/internal/encoders"
	"github.com/smazurov/hlsfeed/internal/metrics"
	"github.com/smazurov/hlsfeed/internal/playlist"
	"github.com/smazurov/hlsfeed/internal/streams"
)

// Health models
type GPUSummary struct {
	Type             encoders.Vendor `json:"type" example:"NVIDIA" doc:"Detected encoder vendor"`
	HWAccelAvailable bool            `json:"hwAccelAvailable" doc:"Whether a hardware encoder passed its functional test"`
}

type HealthData struct {
	Name          string      `json:"name" example:"hlsfeed" doc:"Service name"`
	Version       string      `json:"version" example:"1.0.0" doc:"Service version"`
	Status        string      `json:"status" example:"running" doc:"Service status"`
	ActiveStreams int         `json:"activeStreams" example:"2" doc:"Number of registered streams"`
	GPU           *GPUSummary `json:"gpu" doc:"Capability summary"`
}

type HealthResponse struct {
	Body HealthData
}

type VersionData struct {
	Version   string `json:"version" example:"1.0.0" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit hash"`
	BuildDate string `json:"build_date" example:"2026-01-27T10:30:00Z" doc:"Build timestamp"`
	BuildID   string `json:"build_id" example:"42" doc:"Build identifier"`
	GoVersion string `json:"go_version" example:"go1.24.11" doc:"Go toolchain version"`
	Compiler  string `json:"compiler" example:"gc" doc:"Go compiler"`
	Platform  string `json:"platform" example:"linux/amd64" doc:"OS and architecture"`
}

type VersionResponse struct {
	Body VersionData
}

// GPU models
type GPUData struct {
	GPU            encoders.Snapshot `json:"gpu" doc:"Capability snapshot"`
	FFmpegPath     string            `json:"ffmpegPath" example:"/usr/bin/ffmpeg" doc:"Engine binary in use"`
	Recommendation string            `json:"recommendation" doc:"Human-readable summary"`
}

type GPUResponse struct {
	Body GPUData
}

// Stream models
type StartStreamBody struct {
	StreamID string          `json:"streamId,omitempty" example:"lobby" doc:"Stream identifier"`
	Files    []string        `json:"files,omitempty" doc:"Media files, played in order"`
	Options  *streams.Config `json:"options,omitempty" doc:"Encoding options, defaulted when omitted"`
}

type StartStreamRequest struct {
	Body StartStreamBody
}

type StartStreamData struct {
	Success    bool                `json:"success"`
	Stream     *streams.StreamInfo `json:"stream"`
	Validation playlist.Validation `json:"validation"`
}

type StartStreamResponse struct {
	Body StartStreamData
}

type StopStreamBody struct {
	StreamID string `json:"streamId,omitempty" example:"lobby" doc:"Stream identifier"`
}

type StopStreamRequest struct {
	Body StopStreamBody
}

type StopStreamData struct {
	Success    bool   `json:"success"`
	Message    string `json:"message" example:"Stream lobby stopped"`
	WasRunning bool   `json:"wasRunning" doc:"Whether a stream was registered under the id"`
}

type StopStreamResponse struct {
	Body StopStreamData
}

type StreamData struct {
	streams.StreamStatus
	PlaybackURL string                       `json:"playbackUrl" example:"/stream/lobby/stream.m3u8"`
	Progress    *metrics.FFmpegStreamMetrics `json:"progress,omitempty" doc:"Latest engine progress, once reported"`
	Usage       *metrics.ProcessUsage        `json:"usage,omitempty" doc:"Engine process resource use"`
}

type StreamListData struct {
	Count   int          `json:"count" example:"2" doc:"Number of registered streams"`
	Streams []StreamData `json:"streams" doc:"Registered streams, sorted by id"`
}

type StreamListResponse struct {
	Body StreamListData
}

// Playlist models
type CreatePlaylistBody struct {
	PlaylistID string   `json:"playlistId,omitempty" example:"lobby" doc:"Playlist identifier"`
	Files      []string `json:"files,omitempty" doc:"Media files, played in order"`
}

type CreatePlaylistRequest struct {
	Body CreatePlaylistBody
}

type CreatePlaylistData struct {
	Success        bool                `json:"success"`
	ConcatFilePath string              `json:"concatFilePath" example:"playlists/lobby_concat.txt"`
	Validation     playlist.Validation `json:"validation"`
}

type CreatePlaylistResponse struct {
	Body CreatePlaylistData
}

type PlaylistListData struct {
	Count int      `json:"count" example:"1"`
	Files []string `json:"files" example:"[\"lobby_concat.txt\"]"`
}

type PlaylistListResponse struct {
	Body PlaylistListData
}
