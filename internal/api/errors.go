package api

import (
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/hlsfeed/internal/streams"
)

// mapStreamError converts supervisor errors to HTTP errors.
func mapStreamError(err error) error {
	var se *streams.StreamError
	if !errors.As(err, &se) {
		return huma.Error500InternalServerError("Failed to start stream", err)
	}

	switch se.Code {
	case streams.ErrCodeInvalidParams:
		detail := &huma.ErrorDetail{Message: se.Message, Location: "body.options"}
		if se.Field != "" {
			detail.Location += "." + se.Field
		}
		if se.Field == "id" {
			detail.Location = "body.streamId"
		}
		return huma.Error400BadRequest("Invalid stream options", detail)
	case streams.ErrCodeStreamNotFound:
		return huma.Error404NotFound(se.Message)
	case streams.ErrCodeStartCancelled:
		return huma.Error409Conflict(se.Message)
	default:
		return huma.Error500InternalServerError("Failed to start stream", err)
	}
}
