package playlist

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(filepath.Join(t.TempDir(), "playlists"), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestCreateConcatFile(t *testing.T) {
	m := testManager(t)

	path, err := m.CreateConcatFile("lobby", []string{"/media/a.mp4", `C:\Videos\b.mp4`})
	if err != nil {
		t.Fatalf("CreateConcatFile() error = %v", err)
	}
	if filepath.Base(path) != "lobby_concat.txt" {
		t.Errorf("path = %q", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "file '/media/a.mp4'\nfile 'C:/Videos/b.mp4'\n"
	if string(data) != want {
		t.Errorf("content = %q, want %q", data, want)
	}
}

func TestConcatContentEscapesQuotes(t *testing.T) {
	got := ConcatContent([]string{"/media/Bob's clip.mp4"})
	want := `file '/media/Bob'\''s clip.mp4'` + "\n"
	if got != want {
		t.Errorf("ConcatContent() = %q, want %q", got, want)
	}
}

func TestCreateConcatFileRejects(t *testing.T) {
	m := testManager(t)

	if _, err := m.CreateConcatFile("lobby", nil); !errors.Is(err, ErrEmptyPlaylist) {
		t.Errorf("empty list error = %v, want ErrEmptyPlaylist", err)
	}
	for _, id := range []string{"", "../etc", "a b", "x/y"} {
		if _, err := m.CreateConcatFile(id, []string{"/a.mp4"}); err == nil {
			t.Errorf("CreateConcatFile(%q) succeeded", id)
		}
	}
}

func TestCreateConcatFileOverwrites(t *testing.T) {
	m := testManager(t)

	if _, err := m.CreateConcatFile("cam", []string{"/a.mp4", "/b.mp4"}); err != nil {
		t.Fatal(err)
	}
	path, err := m.CreateConcatFile("cam", []string{"/c.mp4"})
	if err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "file '/c.mp4'\n" {
		t.Errorf("content = %q", data)
	}
}

func TestValidateFiles(t *testing.T) {
	m := testManager(t)
	dir := t.TempDir()
	present := filepath.Join(dir, "a.mp4")
	if err := os.WriteFile(present, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	missing := filepath.Join(dir, "gone.mp4")

	v := m.ValidateFiles([]string{present, missing})
	if v.Total != 2 || v.Existing != 1 {
		t.Errorf("validation = %+v", v)
	}
	if !slices.Equal(v.Missing, []string{missing}) {
		t.Errorf("missing = %v", v.Missing)
	}
}

func TestListAndDeleteConcatFiles(t *testing.T) {
	m := testManager(t)

	if got := m.ListConcatFiles(); len(got) != 0 {
		t.Errorf("ListConcatFiles() before any write = %v", got)
	}

	for _, id := range []string{"b", "a"} {
		if _, err := m.CreateConcatFile(id, []string{"/x.mp4"}); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(m.Dir(), "notes.txt"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	if got := m.ListConcatFiles(); !slices.Equal(got, []string{"a_concat.txt", "b_concat.txt"}) {
		t.Errorf("ListConcatFiles() = %v", got)
	}

	if !m.DeleteConcatFile("a") {
		t.Error("DeleteConcatFile(a) = false")
	}
	if m.DeleteConcatFile("a") {
		t.Error("second DeleteConcatFile(a) = true")
	}
	if got := m.ListConcatFiles(); !slices.Equal(got, []string{"b_concat.txt"}) {
		t.Errorf("after delete = %v", got)
	}
}
