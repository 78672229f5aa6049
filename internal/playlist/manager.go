package playlist

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/smazurov/hlsfeed/internal/fsutil"
	"github.com/smazurov/hlsfeed/internal/logging"
)

// DefaultDir is where concat manifests are written when no directory is configured.
const DefaultDir = "playlists"

const concatSuffix = "_concat.txt"

var idRegex = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ErrEmptyPlaylist is returned when a manifest would contain no files.
var ErrEmptyPlaylist = errors.New("file list must not be empty")

// Validation summarizes which playlist entries exist on disk.
type Validation struct {
	Total    int      `json:"total"`
	Existing int      `json:"existing"`
	Missing  []string `json:"missing"`
}

// Manager writes and tracks concat manifests in a single directory.
type Manager struct {
	dir    string
	logger logging.Logger
}

// NewManager creates a manager rooted at dir.
func NewManager(dir string, logger logging.Logger) *Manager {
	if dir == "" {
		dir = DefaultDir
	}
	if logger == nil {
		logger = logging.GetLogger("playlist")
	}
	return &Manager{dir: dir, logger: logger}
}

// Dir returns the manifest directory.
func (m *Manager) Dir() string {
	return m.dir
}

// ValidID reports whether id can be used as a manifest or stream id.
func ValidID(id string) bool {
	return idRegex.MatchString(id)
}

// ConcatPath returns the manifest path for id.
func (m *Manager) ConcatPath(id string) string {
	return filepath.Join(m.dir, id+concatSuffix)
}

// CreateConcatFile writes the concat manifest for id, replacing any previous
// one, and returns its path.
func (m *Manager) CreateConcatFile(id string, files []string) (string, error) {
	if !ValidID(id) {
		return "", fmt.Errorf("invalid playlist id %q", id)
	}
	if len(files) == 0 {
		return "", ErrEmptyPlaylist
	}

	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create playlist directory: %w", err)
	}

	path := m.ConcatPath(id)
	if err := fsutil.WriteFile(path, []byte(ConcatContent(files)), 0o644); err != nil {
		return "", fmt.Errorf("failed to write concat file: %w", err)
	}

	m.logger.Info("Created concat file", "path", path, "files", len(files))
	return path, nil
}

// ConcatContent renders files in the concat demuxer format, one
// file '<path>' line each.
func ConcatContent(files []string) string {
	var b strings.Builder
	for _, f := range files {
		b.WriteString("file '")
		b.WriteString(quotePath(f))
		b.WriteString("'\n")
	}
	return b.String()
}

// quotePath normalizes separators to forward slashes and escapes single
// quotes for a single-quoted concat entry.
func quotePath(path string) string {
	path = strings.ReplaceAll(path, `\`, "/")
	return strings.ReplaceAll(path, "'", `'\''`)
}

// ValidateFiles checks which files exist. Missing files are logged, not fatal.
func (m *Manager) ValidateFiles(files []string) Validation {
	v := Validation{Total: len(files), Missing: []string{}}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			v.Missing = append(v.Missing, f)
			continue
		}
		v.Existing++
	}

	if len(v.Missing) > 0 {
		m.logger.Warn("Playlist files not found", "count", len(v.Missing), "files", v.Missing)
	}
	return v
}

// ListConcatFiles returns the manifest file names in the directory, sorted.
// A missing directory yields an empty list.
func (m *Manager) ListConcatFiles() []string {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return []string{}
	}

	names := []string{}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), concatSuffix) {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	return names
}

// DeleteConcatFile removes the manifest for id. Returns false if it could not be removed.
func (m *Manager) DeleteConcatFile(id string) bool {
	if !ValidID(id) {
		return false
	}
	path := m.ConcatPath(id)
	if err := os.Remove(path); err != nil {
		m.logger.Error("Failed to delete concat file", "path", path, "error", err)
		return false
	}
	m.logger.Info("Deleted concat file", "path", path)
	return true
}
