// Package feeds keeps the running streams in line with the declared-feeds file.
package feeds

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/smazurov/hlsfeed/internal/config"
	"github.com/smazurov/hlsfeed/internal/logging"
	"github.com/smazurov/hlsfeed/internal/playlist"
	"github.com/smazurov/hlsfeed/internal/streams"
)

// Options configures a Reconciler.
type Options struct {
	Supervisor *streams.Supervisor
	Playlists  *playlist.Manager
	OutputRoot string // each feed writes to <OutputRoot>/<id>
	BaseDir    string // resolves relative playlist references
	Logger     logging.Logger
}

// Reconciler starts, restarts and stops streams so that the supervisor runs
// exactly the enabled feeds of the last applied set.
type Reconciler struct {
	opts   Options
	logger logging.Logger

	mu      sync.Mutex
	current *config.Feeds
}

// NewReconciler creates a reconciler with nothing applied yet.
func NewReconciler(opts Options) *Reconciler {
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("feeds")
	}
	return &Reconciler{opts: opts, logger: logger}
}

// Apply brings the running streams in line with next. Feeds that fail to
// start are reported together; the rest are still applied.
func (r *Reconciler) Apply(ctx context.Context, next *config.Feeds) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	start, stop := config.DiffFeeds(r.current, next)
	r.current = next

	if len(start) == 0 && len(stop) == 0 {
		r.logger.Debug("Feeds unchanged")
		return nil
	}
	r.logger.Info("Applying feeds", "start", start, "stop", stop)

	var errs []error
	if len(stop) > 0 {
		if err := r.opts.Supervisor.StopAll(ctx, stop...); err != nil {
			errs = append(errs, err)
		}
		for _, id := range stop {
			r.opts.Playlists.DeleteConcatFile(id)
		}
	}

	for _, id := range start {
		if err := r.startFeed(ctx, id, next.Feeds[id]); err != nil {
			r.logger.Error("Failed to start feed", "feed", id, "error", err)
			errs = append(errs, fmt.Errorf("feed %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// Current returns the last applied feed set, or nil.
func (r *Reconciler) Current() *config.Feeds {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

func (r *Reconciler) startFeed(ctx context.Context, id string, feed config.Feed) error {
	files, err := feed.ResolveFiles(r.opts.BaseDir)
	if err != nil {
		return err
	}

	manifest, err := r.opts.Playlists.CreateConcatFile(id, files)
	if err != nil {
		return err
	}
	r.opts.Playlists.ValidateFiles(files)

	_, err = r.opts.Supervisor.Start(ctx, id, manifest, filepath.Join(r.opts.OutputRoot, id), feed.Options)
	return err
}
