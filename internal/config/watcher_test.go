package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type watchedConfig struct {
	Name  string `toml:"name"`
	Value int    `toml:"value"`
}

func loadWatched(path string) (watchedConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return watchedConfig{}, err
	}
	var cfg watchedConfig
	err = toml.Unmarshal(data, &cfg)
	return cfg, err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startWatcher(t *testing.T, path string, opts ...WatcherOption[watchedConfig]) *Watcher[watchedConfig] {
	t.Helper()
	opts = append([]WatcherOption[watchedConfig]{WithDebounce[watchedConfig](50 * time.Millisecond)}, opts...)
	w := NewConfigWatcher(path, loadWatched, discardLogger(), opts...)
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := w.Stop(); err != nil {
			t.Errorf("Stop() error = %v", err)
		}
	})
	return w
}

func writeWatched(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feeds.toml")
	writeWatched(t, path, "name = \"initial\"\nvalue = 1\n")

	received := make(chan watchedConfig, 4)
	w := startWatcher(t, path)
	w.OnReload(func(cfg watchedConfig) { received <- cfg })

	writeWatched(t, path, "name = \"updated\"\nvalue = 42\n")

	select {
	case cfg := <-received:
		if cfg.Name != "updated" || cfg.Value != 42 {
			t.Errorf("got %+v", cfg)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for reload")
	}
}

func TestWatcherSeesAtomicRename(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "feeds.toml")
	writeWatched(t, path, "value = 1\n")

	received := make(chan watchedConfig, 4)
	w := startWatcher(t, path)
	w.OnReload(func(cfg watchedConfig) { received <- cfg })

	tmp := filepath.Join(dir, ".feeds.toml.swp")
	writeWatched(t, tmp, "value = 7\n")
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-received:
		if cfg.Value != 7 {
			t.Errorf("Value = %d, want 7", cfg.Value)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("rename over the file was not picked up")
	}
}

func TestWatcherDebounces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feeds.toml")
	writeWatched(t, path, "value = 0\n")

	var calls atomic.Int32
	last := make(chan int, 16)
	w := startWatcher(t, path, WithDebounce[watchedConfig](200*time.Millisecond))
	w.OnReload(func(cfg watchedConfig) {
		calls.Add(1)
		last <- cfg.Value
	})

	for i := 1; i <= 5; i++ {
		writeWatched(t, path, "value = "+string(rune('0'+i))+"\n")
		time.Sleep(20 * time.Millisecond)
	}

	select {
	case v := <-last:
		if v != 5 {
			t.Errorf("first reload saw %d, want the final value 5", v)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for reload")
	}
	time.Sleep(400 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Errorf("handler called %d times, want 1", n)
	}
}

func TestWatcherIgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "feeds.toml")
	writeWatched(t, path, "value = 1\n")

	var calls atomic.Int32
	w := startWatcher(t, path)
	w.OnReload(func(watchedConfig) { calls.Add(1) })

	writeWatched(t, filepath.Join(dir, "other.toml"), "value = 2\n")
	time.Sleep(300 * time.Millisecond)

	if n := calls.Load(); n != 0 {
		t.Errorf("handler called %d times for an unrelated file", n)
	}
}

func TestWatcherLoadErrorKeepsWatching(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feeds.toml")
	writeWatched(t, path, "value = 1\n")

	errs := make(chan error, 4)
	received := make(chan watchedConfig, 4)
	w := startWatcher(t, path, WithErrorHandler[watchedConfig](func(err error) { errs <- err }))
	w.OnReload(func(cfg watchedConfig) { received <- cfg })

	writeWatched(t, path, "value = [broken\n")
	select {
	case <-errs:
	case <-time.After(3 * time.Second):
		t.Fatal("error handler not called")
	}

	writeWatched(t, path, "value = 3\n")
	select {
	case cfg := <-received:
		if cfg.Value != 3 {
			t.Errorf("Value = %d", cfg.Value)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("watcher stopped after a load error")
	}
}

func TestWatcherUnsubscribe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feeds.toml")
	writeWatched(t, path, "value = 1\n")

	var removed atomic.Int32
	kept := make(chan struct{}, 4)
	w := startWatcher(t, path)
	unsub := w.OnReload(func(watchedConfig) { removed.Add(1) })
	w.OnReload(func(watchedConfig) { kept <- struct{}{} })
	unsub()

	writeWatched(t, path, "value = 2\n")
	select {
	case <-kept:
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for reload")
	}
	if removed.Load() != 0 {
		t.Error("unsubscribed handler was called")
	}
}

func TestWatcherStopWithoutStart(t *testing.T) {
	w := NewConfigWatcher("feeds.toml", loadWatched, discardLogger())
	if err := w.Stop(); err != nil {
		t.Errorf("Stop() before Start = %v", err)
	}
}
