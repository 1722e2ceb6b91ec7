package library

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestLibrary(t *testing.T, files ...string) *Library {
	t.Helper()
	dir := t.TempDir()
	for _, name := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("audio"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return New(dir)
}

func TestRandomTrack(t *testing.T) {
	lib := newTestLibrary(t, "one.mp3", "two.m4a", "notes.txt")

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		track, err := lib.RandomTrack()
		if err != nil {
			t.Fatalf("RandomTrack: %v", err)
		}
		if track == "notes.txt" {
			t.Fatal("picked a non-audio file")
		}
		seen[track] = true
	}
	if len(seen) == 0 {
		t.Fatal("no tracks returned")
	}
}

func TestRandomTrackEmpty(t *testing.T) {
	lib := newTestLibrary(t)
	if _, err := lib.RandomTrack(); !errors.Is(err, ErrEmpty) {
		t.Errorf("err = %v, want ErrEmpty", err)
	}
}

func TestRandomTrackMissingDir(t *testing.T) {
	lib := New(filepath.Join(t.TempDir(), "does-not-exist"))
	if _, err := lib.RandomTrack(); !errors.Is(err, ErrEmpty) {
		t.Errorf("err = %v, want ErrEmpty", err)
	}
}

func TestResolveConfinesToRoot(t *testing.T) {
	lib := newTestLibrary(t, "one.mp3")

	if _, err := lib.Resolve("../one.mp3"); err == nil {
		t.Error("expected error for traversal")
	}
	if _, err := lib.Resolve("sub/one.mp3"); err == nil {
		t.Error("expected error for nested path")
	}
	if _, err := lib.Resolve("one.txt"); err == nil {
		t.Error("expected error for non-audio extension")
	}
	if _, err := lib.Resolve("missing.mp3"); err == nil {
		t.Error("expected error for missing file")
	}

	path, err := lib.Resolve("one.mp3")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if filepath.Base(path) != "one.mp3" {
		t.Errorf("path = %q", path)
	}
}
