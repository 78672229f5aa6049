package api

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"regexp"

	"github.com/smazurov/hlsfeed/internal/ffmpeg"
	"github.com/smazurov/hlsfeed/internal/playlist"
)

var segmentNameRegex = regexp.MustCompile(`^[A-Za-z0-9_-]+\.ts$`)

const (
	playlistContentType = "application/vnd.apple.mpegurl"
	segmentContentType  = "video/mp2t"
)

// registerHLSRoutes serves stream output straight from the output root.
// These routes are plain mux handlers and are reachable from any network.
func (s *Server) registerHLSRoutes() {
	cors := DefaultCORSConfig()
	s.mux.HandleFunc("GET /stream/{id}/{file}", func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w, cors)
		s.serveStreamFile(w, r, r.PathValue("id"), r.PathValue("file"))
	})
}

func (s *Server) serveStreamFile(w http.ResponseWriter, r *http.Request, id, file string) {
	if !playlist.ValidID(id) {
		writeJSONError(w, http.StatusNotFound, "Stream not found", "The requested stream does not exist or is not ready")
		return
	}

	switch {
	case file == ffmpeg.PlaylistName:
		w.Header().Set("Content-Type", playlistContentType)
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
	case segmentNameRegex.MatchString(file):
		w.Header().Set("Content-Type", segmentContentType)
		w.Header().Set("Cache-Control", "max-age=10")
	default:
		writeJSONError(w, http.StatusNotFound, "Not found", "Only the stream playlist and its segments are served")
		return
	}

	path := filepath.Join(s.options.OutputRoot, id, file)
	f, err := os.Open(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("Failed to open stream file", "path", path, "error", err)
		}
		w.Header().Del("Cache-Control")
		if file == ffmpeg.PlaylistName {
			writeJSONError(w, http.StatusNotFound, "Stream not found", "The requested stream does not exist or is not ready")
		} else {
			writeJSONError(w, http.StatusNotFound, "Segment not found", "The segment has not been written or was already rotated out")
		}
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		writeJSONError(w, http.StatusNotFound, "Not found", "")
		return
	}

	http.ServeContent(w, r, file, info.ModTime(), f)
}

func writeJSONError(w http.ResponseWriter, status int, title, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   title,
		"message": message,
	})
}
