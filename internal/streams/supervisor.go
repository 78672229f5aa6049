package streams

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/smazurov/hlsfeed/internal/encoders"
	"github.com/smazurov/hlsfeed/internal/events"
	"github.com/smazurov/hlsfeed/internal/ffmpeg"
	"github.com/smazurov/hlsfeed/internal/logging"
	"github.com/smazurov/hlsfeed/internal/process"
)

// Supervisor defaults.
const (
	DefaultSegmentWaitTimeout  = 10 * time.Second
	DefaultSegmentPollInterval = 500 * time.Millisecond
	DefaultStopGracePeriod     = 2 * time.Second
	DefaultKillTimeout         = 5 * time.Second
	DefaultPlaybackPrefix      = "/stream"
)

// CapabilityDetector returns the cached hardware capability snapshot.
type CapabilityDetector interface {
	Detect(ctx context.Context) encoders.Snapshot
}

// SupervisorOptions configures a Supervisor. Zero values get defaults.
type SupervisorOptions struct {
	FFmpegPath string

	// Prober overrides capability detection. When nil the supervisor builds
	// an encoders.Prober from the probe fields below.
	Prober           CapabilityDetector
	DisableGPU       bool
	ProbeListTimeout time.Duration
	ProbeTestTimeout time.Duration

	EventBus *events.Bus
	Logger   logging.Logger

	SegmentWaitTimeout  time.Duration
	SegmentPollInterval time.Duration
	StopGracePeriod     time.Duration
	KillTimeout         time.Duration

	// PlaybackPrefix is the URL path the HTTP layer serves stream output under.
	PlaybackPrefix string

	// NewOutputHandler, when set, attaches a handler to every engine process.
	NewOutputHandler func(streamID string) process.OutputHandler

	// OnStateChange is called after every state transition (optional).
	OnStateChange process.StateChangeCallback
}

// StreamInfo is returned by a successful Start.
type StreamInfo struct {
	ID           string `json:"streamId" example:"lobby" doc:"Stream identifier"`
	PlaybackPath string `json:"playbackUrl" example:"/stream/lobby/stream.m3u8" doc:"Relative playlist URL"`
	OutputDir    string `json:"outputDir" example:"output/lobby" doc:"Directory holding the playlist and segments"`
	Encoder      string `json:"encoder" example:"libx264" doc:"Video encoder in use"`
	Hardware     bool   `json:"hardware" doc:"Whether the encoder runs on an accelerator"`
	Ready        bool   `json:"ready" doc:"Whether the first segment appeared before Start returned"`
}

// StreamStatus describes one registered stream.
type StreamStatus struct {
	ID        string        `json:"id"`
	OutputDir string        `json:"outputDir"`
	Uptime    time.Duration `json:"-"`
	UptimeMs  int64         `json:"uptimeMs"`
	State     process.State `json:"state"`
	Encoder   string        `json:"encoder"`
	Hardware  bool          `json:"hardware"`
	PID       int           `json:"pid"`
}

// runningStream is one registry entry. An entry is registered before its
// process is spawned; proc stays nil until then. proc and the fields after
// it are guarded by Supervisor.mu and final once spawned is closed.
type runningStream struct {
	id        string
	outputDir string

	proc      *process.Process
	startedAt time.Time
	encoder   string
	hardware  bool
	state     process.State

	stopRequested atomic.Bool
	spawned       chan struct{} // closed when Start has spawned the process or given up
	observed      chan struct{} // closed once the exit observer has finished
}

type startLock struct {
	mu   sync.Mutex
	refs int
}

// Supervisor owns the registry of running engine processes, keyed by stream id.
// At most one process is registered per id at any instant.
type Supervisor struct {
	opts         SupervisorOptions
	logger       logging.Logger
	ffmpegLogger logging.Logger
	prober       CapabilityDetector

	mu      sync.Mutex
	streams map[string]*runningStream

	startLocksMu sync.Mutex
	startLocks   map[string]*startLock
}

// NewSupervisor creates a supervisor.
func NewSupervisor(opts SupervisorOptions) *Supervisor {
	if opts.FFmpegPath == "" {
		opts.FFmpegPath, _ = ffmpeg.ResolveBinary("")
	}
	if opts.SegmentWaitTimeout <= 0 {
		opts.SegmentWaitTimeout = DefaultSegmentWaitTimeout
	}
	if opts.SegmentPollInterval <= 0 {
		opts.SegmentPollInterval = DefaultSegmentPollInterval
	}
	if opts.StopGracePeriod <= 0 {
		opts.StopGracePeriod = DefaultStopGracePeriod
	}
	if opts.KillTimeout <= 0 {
		opts.KillTimeout = DefaultKillTimeout
	}
	if opts.PlaybackPrefix == "" {
		opts.PlaybackPrefix = DefaultPlaybackPrefix
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("streams")
	}

	s := &Supervisor{
		opts:         opts,
		logger:       logger,
		ffmpegLogger: logging.GetLogger("ffmpeg"),
		streams:      make(map[string]*runningStream),
		startLocks:   make(map[string]*startLock),
	}

	s.prober = opts.Prober
	if s.prober == nil {
		s.prober = encoders.NewProber(encoders.ProberOptions{
			FFmpegPath:  opts.FFmpegPath,
			DisableGPU:  opts.DisableGPU,
			ListTimeout: opts.ProbeListTimeout,
			TestTimeout: opts.ProbeTestTimeout,
			OnDetected:  s.publishCapabilities,
		})
	}

	return s
}

// FFmpegPath returns the engine binary the supervisor spawns.
func (s *Supervisor) FFmpegPath() string {
	return s.opts.FFmpegPath
}

// DetectCapabilities returns the capability snapshot, probing on first use.
// It never fails; the worst case is the CPU snapshot.
func (s *Supervisor) DetectCapabilities(ctx context.Context) encoders.Snapshot {
	return s.prober.Detect(ctx)
}

// Command returns the binary and arguments Start would run for cfg,
// without spawning anything.
func (s *Supervisor) Command(ctx context.Context, manifestPath, outputDir string, cfg Config) (string, []string, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return "", nil, err
	}
	encoder, hw := encoders.SelectEncoder(s.DetectCapabilities(ctx), cfg.WantsGPU(), cfg.Encoder)
	return s.opts.FFmpegPath, ffmpeg.BuildHLSArgs(manifestPath, outputDir, cfg.Params(encoder, hw)), nil
}

// Start launches the engine for id, replacing any stream already registered
// under the same id. It returns once the first segment appears or the wait
// times out; a timeout is logged and still counts as success.
func (s *Supervisor) Start(ctx context.Context, id, manifestPath, outputDir string, cfg Config) (*StreamInfo, error) {
	if id == "" {
		return nil, invalidParam("id", "is required")
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	unlock := s.lockStart(id)
	defer unlock()

	if existing := s.detach(id); existing != nil {
		s.logger.Info("Stream already running, stopping it first", "stream_id", id)
		if err := s.halt(ctx, existing); err != nil {
			return nil, NewStreamError(ErrCodeStopTimeout, "previous process for "+id+" did not exit", err)
		}
	}

	// Registered before probing so Stop and StopAll can see a start in flight.
	rs := &runningStream{
		id:        id,
		outputDir: outputDir,
		startedAt: time.Now(),
		state:     process.StateStarting,
		spawned:   make(chan struct{}),
		observed:  make(chan struct{}),
	}
	s.mu.Lock()
	s.streams[id] = rs
	s.mu.Unlock()
	s.notifyState(id, process.StateAbsent, process.StateStarting)

	snapshot := s.DetectCapabilities(ctx)

	if err := prepareOutputDir(outputDir); err != nil {
		s.abandon(rs)
		return nil, NewStreamError(ErrCodeOutputDirError, "failed to prepare output directory", err)
	}

	encoder, hw := encoders.SelectEncoder(snapshot, cfg.WantsGPU(), cfg.Encoder)
	args := ffmpeg.BuildHLSArgs(manifestPath, outputDir, cfg.Params(encoder, hw))

	if rs.stopRequested.Load() {
		s.abandon(rs)
		return nil, NewStreamError(ErrCodeStartCancelled, "stream "+id+" was stopped while starting", nil)
	}

	s.logger.Info("Starting stream", "stream_id", id, "encoder", encoder, "hardware", hw, "output_dir", outputDir)
	s.logger.Debug("Engine command", "stream_id", id, "command", ffmpeg.FormatCommand(s.opts.FFmpegPath, args))

	proc := process.New(id, s.opts.FFmpegPath, args, s.logger)
	proc.SetLogParser(s.ffmpegLogger, ffmpeg.ParseLogLevel)
	if s.opts.NewOutputHandler != nil {
		proc.SetOutputHandler(s.opts.NewOutputHandler(id))
	}

	if err := proc.Start(); err != nil {
		s.abandon(rs)
		return nil, NewStreamError(ErrCodeSpawnFailed, fmt.Sprintf("failed to start %s", s.opts.FFmpegPath), err)
	}

	s.mu.Lock()
	rs.proc = proc
	rs.startedAt = proc.StartedAt()
	rs.encoder = encoder
	rs.hardware = hw
	cur, registered := s.streams[id]
	registered = registered && cur == rs
	active := len(s.streams)
	s.mu.Unlock()
	close(rs.spawned)
	go s.observe(rs)

	if !registered {
		// Stop or StopAll detached the entry while the probe ran. They wait
		// on observed, so stopping here is enough.
		s.logger.Info("Stream stopped while starting, terminating new process", "stream_id", id, "pid", proc.PID())
		proc.Stop(s.opts.StopGracePeriod)
		return nil, NewStreamError(ErrCodeStartCancelled, "stream "+id+" was stopped while starting", nil)
	}

	s.publish(events.StreamStartedEvent{
		StreamID:  id,
		Encoder:   encoder,
		Hardware:  hw,
		OutputDir: outputDir,
		PID:       proc.PID(),
		Active:    active,
		Timestamp: timestamp(),
	})

	ready := s.waitForSegment(ctx, rs)
	if ready && s.transition(rs, process.StateStarting, process.StateRunning) {
		s.notifyState(id, process.StateStarting, process.StateRunning)
	}

	return &StreamInfo{
		ID:           id,
		PlaybackPath: s.PlaybackPath(id),
		OutputDir:    outputDir,
		Encoder:      encoder,
		Hardware:     hw,
		Ready:        ready,
	}, nil
}

// abandon unregisters an entry whose process was never spawned.
func (s *Supervisor) abandon(rs *runningStream) {
	s.mu.Lock()
	if cur, ok := s.streams[rs.id]; ok && cur == rs {
		delete(s.streams, rs.id)
	}
	prev := rs.state
	rs.state = process.StateAbsent
	s.mu.Unlock()

	close(rs.spawned)
	close(rs.observed)
	s.settle(rs.id, prev)
}

// PlaybackPath returns the relative playlist URL for id.
func (s *Supervisor) PlaybackPath(id string) string {
	return path.Join(s.opts.PlaybackPrefix, id, ffmpeg.PlaylistName)
}

// Stop requests termination of id and returns immediately. The entry is
// removed before the process exits so a new Start is never blocked. The
// process is killed if it is still alive after the grace period.
// Returns false when nothing was registered under id.
func (s *Supervisor) Stop(id string) bool {
	rs := s.detach(id)
	if rs == nil {
		return false
	}

	s.logger.Info("Stopping stream", "stream_id", id)
	// A nil process means Start is still probing; it sees the detach and
	// stops what it spawns.
	if proc := s.spawnedProcess(rs); proc != nil {
		proc.Stop(s.opts.StopGracePeriod)
	}
	return true
}

// spawnedProcess returns rs's process, or nil while Start has not spawned it.
func (s *Supervisor) spawnedProcess(rs *runningStream) *process.Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	return rs.proc
}

// halt stops a detached entry and waits for its exit observer. A start still
// in flight is waited for first. Gives up when ctx is done or the process
// outlives the kill timeout.
func (s *Supervisor) halt(ctx context.Context, rs *runningStream) error {
	select {
	case <-rs.spawned:
	case <-ctx.Done():
		return ctx.Err()
	}

	if rs.proc != nil {
		rs.proc.StopAndWait(s.opts.StopGracePeriod, s.opts.KillTimeout)
		if !rs.proc.Exited() {
			return fmt.Errorf("stream %s did not exit after kill", rs.id)
		}
	}

	select {
	case <-rs.observed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StopAll stops the given streams, or every registered stream when ids is
// empty, concurrently. It returns when all of them have exited or ctx is done.
func (s *Supervisor) StopAll(ctx context.Context, ids ...string) error {
	var targets []*runningStream
	if len(ids) == 0 {
		s.mu.Lock()
		ids = make([]string, 0, len(s.streams))
		for id := range s.streams {
			ids = append(ids, id)
		}
		s.mu.Unlock()
	}
	for _, id := range ids {
		if rs := s.detach(id); rs != nil {
			targets = append(targets, rs)
		}
	}

	if len(targets) == 0 {
		return nil
	}
	s.logger.Info("Stopping streams", "count", len(targets))

	var g errgroup.Group
	for _, rs := range targets {
		g.Go(func() error {
			return s.halt(ctx, rs)
		})
	}
	return g.Wait()
}

// List returns every registered stream sorted by id.
func (s *Supervisor) List() []StreamStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	result := make([]StreamStatus, 0, len(s.streams))
	for _, rs := range s.streams {
		uptime := now.Sub(rs.startedAt)
		pid := 0
		if rs.proc != nil {
			pid = rs.proc.PID()
		}
		result = append(result, StreamStatus{
			ID:        rs.id,
			OutputDir: rs.outputDir,
			Uptime:    uptime,
			UptimeMs:  uptime.Milliseconds(),
			State:     rs.state,
			Encoder:   rs.encoder,
			Hardware:  rs.hardware,
			PID:       pid,
		})
	}

	slices.SortFunc(result, func(a, b StreamStatus) int {
		return strings.Compare(a.ID, b.ID)
	})
	return result
}

// Count returns how many streams are registered.
func (s *Supervisor) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.streams)
}

// detach removes id from the registry, marks it stopping and publishes the
// change. Returns nil when id is not registered.
func (s *Supervisor) detach(id string) *runningStream {
	s.mu.Lock()
	rs, ok := s.streams[id]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	delete(s.streams, id)
	rs.stopRequested.Store(true)
	prev := rs.state
	rs.state = process.StateStopping
	active := len(s.streams)
	s.mu.Unlock()

	s.notifyState(id, prev, process.StateStopping)
	s.publish(events.StreamStoppedEvent{
		StreamID:  id,
		Active:    active,
		Timestamp: timestamp(),
	})
	return rs
}

// observe waits for the process to exit and removes its entry if the entry
// still refers to this process.
func (s *Supervisor) observe(rs *runningStream) {
	defer close(rs.observed)

	<-rs.proc.Done()
	code := rs.proc.ExitCode()
	requested := rs.stopRequested.Load()
	uptime := time.Since(rs.startedAt)

	s.mu.Lock()
	if cur, ok := s.streams[rs.id]; ok && cur == rs {
		delete(s.streams, rs.id)
	}
	prev := rs.state
	rs.state = process.StateAbsent
	active := len(s.streams)
	s.mu.Unlock()

	var tail []string
	switch {
	case requested:
		s.logger.Info("Stream process stopped", "stream_id", rs.id, "exit_code", code)
	case code == 0:
		s.logger.Info("Stream process exited", "stream_id", rs.id, "uptime", uptime)
	default:
		tail = rs.proc.Tail()
		s.logger.Error("Stream process exited unexpectedly",
			"stream_id", rs.id,
			"exit_code", code,
			"uptime", uptime,
			"output", strings.Join(tail, "\n"))
	}

	s.settle(rs.id, prev)
	s.publish(events.StreamExitedEvent{
		StreamID:  rs.id,
		ExitCode:  code,
		Requested: requested,
		UptimeMs:  uptime.Milliseconds(),
		Tail:      tail,
		Active:    active,
		Timestamp: timestamp(),
	})
}

// settle publishes the path from prev to absent. An entry that leaves
// without a stop request still passes through stopping.
func (s *Supervisor) settle(id string, prev process.State) {
	if prev != process.StateStopping {
		s.notifyState(id, prev, process.StateStopping)
	}
	s.notifyState(id, process.StateStopping, process.StateAbsent)
}

// waitForSegment polls the output directory until a segment appears.
// Returns false on timeout, early exit, or ctx cancellation; the process
// keeps running in every case.
func (s *Supervisor) waitForSegment(ctx context.Context, rs *runningStream) bool {
	deadline := time.NewTimer(s.opts.SegmentWaitTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(s.opts.SegmentPollInterval)
	defer ticker.Stop()

	for {
		if hasSegment(rs.outputDir) {
			s.logger.Info("Stream producing segments", "stream_id", rs.id, "after", time.Since(rs.startedAt))
			return true
		}

		select {
		case <-ticker.C:
		case <-deadline.C:
			s.logger.Warn("Timed out waiting for first segment, stream may still become ready",
				"stream_id", rs.id, "timeout", s.opts.SegmentWaitTimeout)
			return false
		case <-rs.proc.Done():
			s.logger.Warn("Stream process exited before producing a segment", "stream_id", rs.id)
			return false
		case <-ctx.Done():
			return false
		}
	}
}

// transition moves rs from one state to another if it is still in from.
func (s *Supervisor) transition(rs *runningStream, from, to process.State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rs.state != from {
		return false
	}
	rs.state = to
	return true
}

// lockStart serializes Start calls for the same id.
func (s *Supervisor) lockStart(id string) func() {
	s.startLocksMu.Lock()
	l, ok := s.startLocks[id]
	if !ok {
		l = &startLock{}
		s.startLocks[id] = l
	}
	l.refs++
	s.startLocksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.startLocksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.startLocks, id)
		}
		s.startLocksMu.Unlock()
	}
}

func (s *Supervisor) notifyState(id string, from, to process.State) {
	s.logger.Debug("Stream state changed", "stream_id", id, "from", from, "to", to)
	if s.opts.OnStateChange != nil {
		s.opts.OnStateChange(id, from, to)
	}
	s.publish(events.StreamStateChangedEvent{
		StreamID:  id,
		From:      string(from),
		To:        string(to),
		Timestamp: timestamp(),
	})
}

func (s *Supervisor) publish(ev events.Event) {
	if s.opts.EventBus != nil {
		s.opts.EventBus.Publish(ev)
	}
}

func (s *Supervisor) publishCapabilities(snap encoders.Snapshot, took time.Duration) {
	s.publish(events.CapabilitiesDetectedEvent{
		EncoderType:      string(snap.Type),
		Encoder:          snap.Encoder,
		HWAccelConfirmed: snap.HWAccelConfirmed,
		DurationSeconds:  took.Seconds(),
		Timestamp:        timestamp(),
	})
}

// prepareOutputDir creates dir and clears playlist output left by an
// earlier run, so the segment wait only sees files from the new process.
func prepareOutputDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !isStreamOutput(name) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

func isStreamOutput(name string) bool {
	if name == ffmpeg.PlaylistName {
		return true
	}
	return strings.HasPrefix(name, "stream_") && strings.HasSuffix(name, ffmpeg.SegmentExt)
}

func hasSegment(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ffmpeg.SegmentExt) {
			return true
		}
	}
	return false
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
