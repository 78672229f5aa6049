package playlist

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/smazurov/hlsfeed/internal/streams"
)

// File is an on-disk playlist: a files array, optionally with stream options.
//
// JSON:  {"files": ["/media/a.mp4", "/media/b.mp4"], "options": {"fps": 25}}
// TOML:  files = ["/media/a.mp4", "/media/b.mp4"]
//
//	[options]
//	fps = 25
type File struct {
	Files   []string       `json:"files" toml:"files"`
	Options streams.Config `json:"options,omitempty" toml:"options,omitempty"`
}

var errNoFiles = errors.New(`playlist must have a "files" array`)

// LoadFile reads a playlist file. The format follows the extension:
// .toml is TOML, anything else is JSON.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read playlist: %w", err)
	}

	var f File
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(data, &f)
	} else {
		err = json.Unmarshal(data, &f)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse playlist %s: %w", path, err)
	}

	if f.Files == nil {
		return nil, fmt.Errorf("%s: %w", path, errNoFiles)
	}
	return &f, nil
}

// LoadFiles returns just the file list of a playlist file.
func LoadFiles(path string) ([]string, error) {
	f, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return f.Files, nil
}

// IsPlaylistFile reports whether path looks like a playlist rather than media.
func IsPlaylistFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".toml":
		return true
	}
	return false
}
