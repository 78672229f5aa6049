package streams

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/smazurov/hlsfeed/internal/encoders"
	"github.com/smazurov/hlsfeed/internal/ffmpeg"
	"github.com/smazurov/hlsfeed/internal/process"
)

// segmentScript writes a segment next to the playlist (the last argument)
// and then idles until signalled.
const segmentScript = `#!/bin/sh
for last; do :; done
dir=$(dirname "$last")
touch "$dir/stream_000.ts" "$last"
exec sleep 30
`

const idleScript = `#!/bin/sh
exec sleep 30
`

const crashScript = `#!/bin/sh
echo "[error] Invalid data found when processing input" >&2
exit 1
`

type staticProber struct {
	snap encoders.Snapshot
}

func (p staticProber) Detect(context.Context) encoders.Snapshot { return p.snap }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ffmpeg")
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestSupervisor(t *testing.T, script string, mutate ...func(*SupervisorOptions)) *Supervisor {
	t.Helper()
	opts := SupervisorOptions{
		FFmpegPath:          writeScript(t, script),
		Prober:              staticProber{snap: encoders.CPUSnapshot()},
		Logger:              testLogger(),
		SegmentWaitTimeout:  3 * time.Second,
		SegmentPollInterval: 20 * time.Millisecond,
		StopGracePeriod:     500 * time.Millisecond,
		KillTimeout:         time.Second,
	}
	for _, m := range mutate {
		m(&opts)
	}
	s := NewSupervisor(opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.StopAll(ctx)
	})
	return s
}

func eventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestStartProducesReadyStream(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := newTestSupervisor(t, segmentScript)
	out := filepath.Join(t.TempDir(), "lobby")

	info, err := s.Start(context.Background(), "lobby", "/tmp/lobby_concat.txt", out, Config{})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !info.Ready {
		t.Error("Ready = false, want true once a segment exists")
	}
	if info.PlaybackPath != "/stream/lobby/stream.m3u8" {
		t.Errorf("PlaybackPath = %q", info.PlaybackPath)
	}
	if info.Encoder != ffmpeg.EncoderSoftware || info.Hardware {
		t.Errorf("encoder = %q hardware = %v, want software", info.Encoder, info.Hardware)
	}

	list := s.List()
	if len(list) != 1 {
		t.Fatalf("List() len = %d, want 1", len(list))
	}
	if list[0].State != process.StateRunning {
		t.Errorf("state = %q, want running", list[0].State)
	}
	if list[0].PID == 0 {
		t.Error("PID = 0 for running stream")
	}

	if err := s.StopAll(context.Background()); err != nil {
		t.Fatalf("StopAll() error = %v", err)
	}
}

func TestStartSameIDReplacesProcess(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := newTestSupervisor(t, segmentScript)
	out := filepath.Join(t.TempDir(), "cam")

	if _, err := s.Start(context.Background(), "cam", "/m.txt", out, Config{}); err != nil {
		t.Fatal(err)
	}
	firstPID := s.List()[0].PID

	if _, err := s.Start(context.Background(), "cam", "/m.txt", out, Config{}); err != nil {
		t.Fatal(err)
	}

	list := s.List()
	if len(list) != 1 {
		t.Fatalf("List() len = %d, want exactly 1 stream for the id", len(list))
	}
	if list[0].PID == firstPID {
		t.Error("second Start kept the first process")
	}

	if err := s.StopAll(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestConcurrentStartsKeepOneProcess(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := newTestSupervisor(t, segmentScript)
	out := filepath.Join(t.TempDir(), "cam")

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Start(context.Background(), "cam", "/m.txt", out, Config{}); err != nil {
				t.Errorf("Start() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if n := s.Count(); n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
	if err := s.StopAll(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestStopAbsentID(t *testing.T) {
	s := newTestSupervisor(t, segmentScript)
	if s.Stop("missing") {
		t.Error("Stop() = true for an id that was never started")
	}
}

func TestStopRemovesEntryImmediately(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var mu sync.Mutex
	var transitions []string
	s := newTestSupervisor(t, segmentScript, func(o *SupervisorOptions) {
		o.OnStateChange = func(_ string, from, to process.State) {
			mu.Lock()
			transitions = append(transitions, string(from)+">"+string(to))
			mu.Unlock()
		}
	})
	if _, err := s.Start(context.Background(), "a", "/m.txt", filepath.Join(t.TempDir(), "a"), Config{}); err != nil {
		t.Fatal(err)
	}

	if !s.Stop("a") {
		t.Fatal("Stop() = false for a running stream")
	}
	if s.Count() != 0 {
		t.Error("entry still registered after Stop returned")
	}

	eventually(t, 3*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return slices.Contains(transitions, "stopping>absent")
	})

	mu.Lock()
	defer mu.Unlock()
	want := []string{"absent>starting", "starting>running", "running>stopping", "stopping>absent"}
	if !slices.Equal(transitions, want) {
		t.Errorf("transitions = %v, want %v", transitions, want)
	}
}

func TestStopAllSubset(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := newTestSupervisor(t, segmentScript)
	root := t.TempDir()
	for _, id := range []string{"a", "b", "c"} {
		if _, err := s.Start(context.Background(), id, "/m.txt", filepath.Join(root, id), Config{}); err != nil {
			t.Fatal(err)
		}
	}

	if err := s.StopAll(context.Background(), "a", "c", "missing"); err != nil {
		t.Fatalf("StopAll() error = %v", err)
	}

	list := s.List()
	if len(list) != 1 || list[0].ID != "b" {
		t.Errorf("remaining = %+v, want only b", list)
	}

	if err := s.StopAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if s.Count() != 0 {
		t.Errorf("Count() = %d after StopAll", s.Count())
	}
}

func TestStopAllForcesKill(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	stubborn := `#!/bin/sh
trap '' TERM
for last; do :; done
touch "$(dirname "$last")/stream_000.ts"
while :; do sleep 0.05; done
`
	s := newTestSupervisor(t, stubborn, func(o *SupervisorOptions) {
		o.StopGracePeriod = 100 * time.Millisecond
	})
	if _, err := s.Start(context.Background(), "x", "/m.txt", filepath.Join(t.TempDir(), "x"), Config{}); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	if err := s.StopAll(context.Background()); err != nil {
		t.Fatalf("StopAll() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("StopAll took %v", elapsed)
	}
}

func TestStartSpawnFailure(t *testing.T) {
	s := NewSupervisor(SupervisorOptions{
		FFmpegPath: filepath.Join(t.TempDir(), "no-such-ffmpeg"),
		Prober:     staticProber{snap: encoders.CPUSnapshot()},
		Logger:     testLogger(),
	})

	_, err := s.Start(context.Background(), "x", "/m.txt", filepath.Join(t.TempDir(), "x"), Config{})
	if code := ErrorCode(err); code != ErrCodeSpawnFailed {
		t.Fatalf("ErrorCode = %q (err %v), want %s", code, err, ErrCodeSpawnFailed)
	}
	if s.Count() != 0 {
		t.Error("failed spawn left a registry entry")
	}
}

func TestStartOutputDirError(t *testing.T) {
	s := newTestSupervisor(t, segmentScript)

	file := filepath.Join(t.TempDir(), "occupied")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := s.Start(context.Background(), "x", "/m.txt", filepath.Join(file, "out"), Config{})
	if code := ErrorCode(err); code != ErrCodeOutputDirError {
		t.Fatalf("ErrorCode = %q (err %v), want %s", code, err, ErrCodeOutputDirError)
	}
}

func TestStartRejectsInvalidConfig(t *testing.T) {
	s := newTestSupervisor(t, segmentScript)

	tests := []struct {
		name  string
		id    string
		cfg   Config
		field string
	}{
		{"empty id", "", Config{}, "id"},
		{"negative segment", "x", Config{SegmentDuration: -1}, "segmentDuration"},
		{"bad bitrate", "x", Config{VideoBitrate: "fast"}, "videoBitrate"},
		{"bad resolution", "x", Config{Resolution: "1080p"}, "resolution"},
		{"injected preset", "x", Config{Preset: "fast;rm"}, "preset"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Start(context.Background(), tt.id, "/m.txt", t.TempDir(), tt.cfg)
			var se *StreamError
			if !errors.As(err, &se) {
				t.Fatalf("error = %v, want *StreamError", err)
			}
			if se.Code != ErrCodeInvalidParams || se.Field != tt.field {
				t.Errorf("got %s/%s, want %s/%s", se.Code, se.Field, ErrCodeInvalidParams, tt.field)
			}
		})
	}
	if s.Count() != 0 {
		t.Error("invalid start registered a stream")
	}
}

func TestCrashRemovesEntry(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var mu sync.Mutex
	var transitions []string
	s := newTestSupervisor(t, crashScript, func(o *SupervisorOptions) {
		o.OnStateChange = func(_ string, from, to process.State) {
			mu.Lock()
			transitions = append(transitions, string(from)+">"+string(to))
			mu.Unlock()
		}
	})

	info, err := s.Start(context.Background(), "x", "/m.txt", filepath.Join(t.TempDir(), "x"), Config{})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if info.Ready {
		t.Error("Ready = true for a process that never wrote a segment")
	}

	eventually(t, 3*time.Second, func() bool { return s.Count() == 0 })
	eventually(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return slices.Contains(transitions, "stopping>absent")
	})

	// An exit nobody asked for still goes through stopping.
	mu.Lock()
	defer mu.Unlock()
	want := []string{"absent>starting", "starting>stopping", "stopping>absent"}
	if !slices.Equal(transitions, want) {
		t.Errorf("transitions = %v, want %v", transitions, want)
	}
}

func TestSegmentWaitTimeoutStillSucceeds(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := newTestSupervisor(t, idleScript, func(o *SupervisorOptions) {
		o.SegmentWaitTimeout = 150 * time.Millisecond
	})

	start := time.Now()
	info, err := s.Start(context.Background(), "slow", "/m.txt", filepath.Join(t.TempDir(), "slow"), Config{})
	if err != nil {
		t.Fatalf("Start() error = %v, a segment timeout is not a failure", err)
	}
	if info.Ready {
		t.Error("Ready = true without a segment")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Start blocked for %v", elapsed)
	}

	list := s.List()
	if len(list) != 1 || list[0].State != process.StateStarting {
		t.Errorf("List() = %+v, want one stream still starting", list)
	}

	if err := s.StopAll(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestStartCleansStaleOutput(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	out := filepath.Join(t.TempDir(), "cam")
	if err := os.MkdirAll(out, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"stream_041.ts", "stream.m3u8", "poster.jpg"} {
		if err := os.WriteFile(filepath.Join(out, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	s := newTestSupervisor(t, idleScript, func(o *SupervisorOptions) {
		o.SegmentWaitTimeout = 100 * time.Millisecond
	})
	info, err := s.Start(context.Background(), "cam", "/m.txt", out, Config{})
	if err != nil {
		t.Fatal(err)
	}
	if info.Ready {
		t.Error("stale segment counted as ready")
	}

	for _, name := range []string{"stream_041.ts", "stream.m3u8"} {
		if _, err := os.Stat(filepath.Join(out, name)); !os.IsNotExist(err) {
			t.Errorf("%s survived start", name)
		}
	}
	if _, err := os.Stat(filepath.Join(out, "poster.jpg")); err != nil {
		t.Error("unrelated file removed")
	}

	if err := s.StopAll(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestStartPassesBuiltArgs(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	argsFile := filepath.Join(t.TempDir(), "args")
	script := `#!/bin/sh
printf '%s\n' "$@" > "` + argsFile + `"
for last; do :; done
touch "$(dirname "$last")/stream_000.ts"
exec sleep 30
`
	s := newTestSupervisor(t, script)
	out := filepath.Join(t.TempDir(), "cam")
	cfg := Config{Resolution: "1280x720", FPS: 25}

	if _, err := s.Start(context.Background(), "cam", "/lists/cam_concat.txt", out, cfg); err != nil {
		t.Fatal(err)
	}
	_, want, err := s.Command(context.Background(), "/lists/cam_concat.txt", out, cfg)
	if err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatal(err)
	}
	got := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	if !slices.Equal(got, want) {
		t.Errorf("process args = %q\nwant %q", got, want)
	}

	if err := s.StopAll(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestListSortedByID(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := newTestSupervisor(t, segmentScript)
	root := t.TempDir()
	for _, id := range []string{"zeta", "alpha", "mid"} {
		if _, err := s.Start(context.Background(), id, "/m.txt", filepath.Join(root, id), Config{}); err != nil {
			t.Fatal(err)
		}
	}

	var ids []string
	for _, st := range s.List() {
		ids = append(ids, st.ID)
	}
	if !slices.Equal(ids, []string{"alpha", "mid", "zeta"}) {
		t.Errorf("List() order = %v", ids)
	}

	if err := s.StopAll(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestHardwareSnapshotSelectsGPU(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := newTestSupervisor(t, segmentScript, func(o *SupervisorOptions) {
		o.Prober = staticProber{snap: encoders.Snapshot{
			Type:             encoders.VendorNVIDIA,
			Encoder:          ffmpeg.EncoderNVENC,
			HWAccelConfirmed: true,
		}}
	})

	info, err := s.Start(context.Background(), "gpu", "/m.txt", filepath.Join(t.TempDir(), "gpu"), Config{})
	if err != nil {
		t.Fatal(err)
	}
	if info.Encoder != ffmpeg.EncoderNVENC || !info.Hardware {
		t.Errorf("encoder = %q hardware = %v, want nvenc on hardware", info.Encoder, info.Hardware)
	}

	off := false
	info, err = s.Start(context.Background(), "cpu", "/m.txt", filepath.Join(t.TempDir(), "cpu"), Config{UseGPU: &off})
	if err != nil {
		t.Fatal(err)
	}
	if info.Encoder != ffmpeg.EncoderSoftware || info.Hardware {
		t.Errorf("useGPU=false picked %q hardware=%v", info.Encoder, info.Hardware)
	}

	if err := s.StopAll(context.Background()); err != nil {
		t.Fatal(err)
	}
}

// gatedProber blocks Detect until release is closed.
type gatedProber struct {
	entered chan struct{}
	release chan struct{}
}

func newGatedProber() *gatedProber {
	return &gatedProber{entered: make(chan struct{}, 1), release: make(chan struct{})}
}

func (p *gatedProber) Detect(context.Context) encoders.Snapshot {
	select {
	case p.entered <- struct{}{}:
	default:
	}
	<-p.release
	return encoders.CPUSnapshot()
}

func TestStopAllDuringProbeCancelsStart(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	prober := newGatedProber()
	s := newTestSupervisor(t, segmentScript, func(o *SupervisorOptions) {
		o.Prober = prober
	})

	startErr := make(chan error, 1)
	go func() {
		_, err := s.Start(context.Background(), "lobby", "/m.txt", filepath.Join(t.TempDir(), "lobby"), Config{})
		startErr <- err
	}()
	<-prober.entered

	if list := s.List(); len(list) != 1 || list[0].State != process.StateStarting || list[0].PID != 0 {
		t.Fatalf("List() during probe = %+v, want one starting entry without a pid", list)
	}

	stopped := make(chan error, 1)
	go func() { stopped <- s.StopAll(context.Background()) }()

	// StopAll must wait for the start in flight rather than return early.
	select {
	case err := <-stopped:
		t.Fatalf("StopAll returned %v before the probe finished", err)
	case <-time.After(100 * time.Millisecond):
	}

	close(prober.release)

	if err := <-stopped; err != nil {
		t.Fatalf("StopAll() error = %v", err)
	}
	if err := <-startErr; ErrorCode(err) != ErrCodeStartCancelled {
		t.Fatalf("Start() error = %v, want %s", err, ErrCodeStartCancelled)
	}
	if s.Count() != 0 {
		t.Errorf("Count() = %d after StopAll returned", s.Count())
	}
}

func TestStopDuringProbeReportsRunning(t *testing.T) {
	prober := newGatedProber()
	s := newTestSupervisor(t, segmentScript, func(o *SupervisorOptions) {
		o.Prober = prober
	})

	startErr := make(chan error, 1)
	go func() {
		_, err := s.Start(context.Background(), "lobby", "/m.txt", filepath.Join(t.TempDir(), "lobby"), Config{})
		startErr <- err
	}()
	<-prober.entered

	if !s.Stop("lobby") {
		t.Error("Stop() = false for a stream that is starting")
	}
	close(prober.release)

	if err := <-startErr; ErrorCode(err) != ErrCodeStartCancelled {
		t.Fatalf("Start() error = %v, want %s", err, ErrCodeStartCancelled)
	}
	if s.Count() != 0 {
		t.Errorf("Count() = %d, a stopped start must not register", s.Count())
	}
}

func TestHaltGivesUpWithContext(t *testing.T) {
	s := newTestSupervisor(t, segmentScript)

	tests := []struct {
		name string
		rs   *runningStream
	}{
		{"never spawned", &runningStream{id: "a", spawned: make(chan struct{}), observed: make(chan struct{})}},
		{"observer never finishes", func() *runningStream {
			rs := &runningStream{id: "b", spawned: make(chan struct{}), observed: make(chan struct{})}
			close(rs.spawned)
			return rs
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			if err := s.halt(ctx, tt.rs); !errors.Is(err, context.DeadlineExceeded) {
				t.Errorf("halt() error = %v, want deadline exceeded", err)
			}
		})
	}
}
