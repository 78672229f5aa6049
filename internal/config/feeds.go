package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"slices"

	"github.com/pelletier/go-toml/v2"

	"github.com/smazurov/hlsfeed/internal/fsutil"
	"github.com/smazurov/hlsfeed/internal/playlist"
	"github.com/smazurov/hlsfeed/internal/streams"
)

// DefaultFeedsFile is the declared-feeds file the server reads when none is configured.
const DefaultFeedsFile = "feeds.toml"

// Feed declares one stream the server keeps running.
//
//	[feeds.lobby]
//	files = ["/media/intro.mp4", "/media/loop.mp4"]
//
//	[feeds.lobby.options]
//	resolution = "1280x720"
type Feed struct {
	Files    []string       `toml:"files,omitempty" json:"files,omitempty"`
	Playlist string         `toml:"playlist,omitempty" json:"playlist,omitempty"` // JSON or TOML playlist file, relative to the feeds file
	Enabled  *bool          `toml:"enabled,omitempty" json:"enabled,omitempty"`
	Options  streams.Config `toml:"options,omitempty" json:"options,omitempty"`
}

// IsEnabled reports whether the feed should run. Feeds are enabled unless disabled explicitly.
func (f Feed) IsEnabled() bool {
	return f.Enabled == nil || *f.Enabled
}

// ResolveFiles returns the feed's media files. An inline list wins over a
// playlist reference; relative playlist paths are resolved against baseDir.
func (f Feed) ResolveFiles(baseDir string) ([]string, error) {
	if len(f.Files) > 0 {
		return f.Files, nil
	}
	if f.Playlist == "" {
		return nil, errors.New("feed has neither files nor playlist")
	}

	path := f.Playlist
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	return playlist.LoadFiles(path)
}

// Feeds is the complete declared-feeds file.
type Feeds struct {
	Version int             `toml:"version" json:"version"`
	Feeds   map[string]Feed `toml:"feeds" json:"feeds"`
}

// LoadFeeds reads a feeds file. A missing file yields an empty set.
func LoadFeeds(path string) (*Feeds, error) {
	feeds := &Feeds{Version: 1, Feeds: make(map[string]Feed)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return feeds, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read feeds file: %w", err)
	}

	if err := toml.Unmarshal(data, feeds); err != nil {
		return nil, fmt.Errorf("failed to parse feeds file: %w", err)
	}
	if feeds.Feeds == nil {
		feeds.Feeds = make(map[string]Feed)
	}
	if feeds.Version == 0 {
		feeds.Version = 1
	}

	for id := range feeds.Feeds {
		if !playlist.ValidID(id) {
			return nil, fmt.Errorf("feeds file: invalid feed id %q", id)
		}
	}
	return feeds, nil
}

// Save writes the feeds file, creating its directory if needed.
func (f *Feeds) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create feeds directory: %w", err)
	}

	data, err := toml.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to marshal feeds: %w", err)
	}
	if err := fsutil.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write feeds file: %w", err)
	}
	return nil
}

// EnabledIDs returns the ids of enabled feeds, sorted.
func (f *Feeds) EnabledIDs() []string {
	ids := make([]string, 0, len(f.Feeds))
	for id, feed := range f.Feeds {
		if feed.IsEnabled() {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// DiffFeeds compares two feed sets. start holds enabled feeds that are new or
// whose definition changed; stop holds feeds that were enabled in old and are
// now removed or disabled. Both are sorted.
func DiffFeeds(old, next *Feeds) (start, stop []string) {
	prev := map[string]Feed{}
	if old != nil {
		prev = old.Feeds
	}

	for _, id := range next.EnabledIDs() {
		if before, ok := prev[id]; !ok || !before.IsEnabled() || !reflect.DeepEqual(before, next.Feeds[id]) {
			start = append(start, id)
		}
	}

	for id, before := range prev {
		if !before.IsEnabled() {
			continue
		}
		if now, ok := next.Feeds[id]; !ok || !now.IsEnabled() {
			stop = append(stop, id)
		}
	}
	slices.Sort(stop)
	return start, stop
}
