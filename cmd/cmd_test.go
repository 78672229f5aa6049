package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"

	"github.com/smazurov/hlsfeed/internal/streams"
)

func TestResolveInputsMediaFiles(t *testing.T) {
	in, err := resolveInputs([]string{"a.mp4", "/media/b.mkv"})
	if err != nil {
		t.Fatal(err)
	}
	if in.playlist != "" {
		t.Errorf("playlist = %q, want none", in.playlist)
	}
	if !filepath.IsAbs(in.files[0]) || in.files[1] != "/media/b.mkv" {
		t.Errorf("files = %q", in.files)
	}
}

func TestResolveInputsPlaylistFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mix.json")
	content := `{"files": ["/media/a.mp4", "/media/b.mp4"], "options": {"resolution": "1280x720"}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	in, err := resolveInputs([]string{path})
	if err != nil {
		t.Fatal(err)
	}
	if in.playlist != path || len(in.files) != 2 {
		t.Errorf("inputs = %+v", in)
	}
	if in.options.Resolution != "1280x720" {
		t.Errorf("options = %+v", in.options)
	}
}

func TestResolveInputsErrors(t *testing.T) {
	if _, err := resolveInputs(nil); err == nil {
		t.Error("expected error without inputs")
	}

	path := filepath.Join(t.TempDir(), "empty.json")
	if err := os.WriteFile(path, []byte(`{"files": []}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := resolveInputs([]string{path}); err == nil {
		t.Error("expected error for an empty playlist")
	}
}

func TestEncodeFlagsOverrideOnlyWhenSet(t *testing.T) {
	var flags encodeFlags
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.register(fs)
	if err := fs.Parse([]string{"--fps", "25", "--no-gpu"}); err != nil {
		t.Fatal(err)
	}

	cfg := flags.apply(fs, streams.Config{FPS: 60, Resolution: "1280x720"})
	if cfg.FPS != 25 {
		t.Errorf("fps = %v, want flag value", cfg.FPS)
	}
	if cfg.Resolution != "1280x720" {
		t.Errorf("resolution = %q, playlist value should survive", cfg.Resolution)
	}
	if cfg.WantsGPU() {
		t.Error("--no-gpu not applied")
	}
}

func TestArgsCommandPrintsCommand(t *testing.T) {
	dir := t.TempDir()
	cmd := CreateArgsCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{
		"--no-gpu",
		"--ffmpeg-path", "/opt/ffmpeg/bin/ffmpeg",
		"--id", "lobby",
		"--output-dir", filepath.Join(dir, "out"),
		"--playlist-dir", filepath.Join(dir, "lists"),
		"--resolution", "1280x720",
		"--show-manifest",
		"/media/it's.mp4",
	})

	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}

	got := out.String()
	for _, want := range []string{
		"/opt/ffmpeg/bin/ffmpeg -f concat",
		filepath.Join(dir, "lists", "lobby_concat.txt"),
		"-c:v libx264",
		"scale=1280x720",
		filepath.Join(dir, "out", "lobby", "stream.m3u8"),
		`file '/media/it'\''s.mp4'`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "lists")); !os.IsNotExist(err) {
		t.Error("dry run wrote the manifest directory")
	}
}

func TestArgsCommandRejectsInvalidOptions(t *testing.T) {
	cmd := CreateArgsCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--no-gpu", "--ffmpeg-path", "/bin/false", "--fps", "-1", "/media/a.mp4"})

	if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "fps") {
		t.Errorf("Execute() error = %v, want fps validation error", err)
	}
}
