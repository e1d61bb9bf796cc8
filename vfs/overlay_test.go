package vfs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOverlayFallsThroughOnAnyError(t *testing.T) {
	bottomDir := t.TempDir()
	topDir := t.TempDir()

	if err := os.WriteFile(filepath.Join(bottomDir, "a.txt"), []byte("bottom"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(topDir, "a.txt"), []byte("top"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(bottomDir, "b.txt"), []byte("bottom-only"), 0o644); err != nil {
		t.Fatal(err)
	}

	ov := NewOverlay(NewLocal(topDir), NewLocal(bottomDir))

	got, err := ov.Read("a.txt")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "top" {
		t.Fatalf("expected top to shadow bottom, got %q", got)
	}

	got, err = ov.Read("b.txt")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "bottom-only" {
		t.Fatalf("expected fallthrough to bottom, got %q", got)
	}
}

func TestOverlayReadDirMerges(t *testing.T) {
	bottomDir := t.TempDir()
	topDir := t.TempDir()
	os.WriteFile(filepath.Join(bottomDir, "only-bottom"), nil, 0o644)
	os.WriteFile(filepath.Join(topDir, "only-top"), nil, 0o644)
	os.WriteFile(filepath.Join(bottomDir, "shared"), []byte("bottom"), 0o644)
	os.WriteFile(filepath.Join(topDir, "shared"), []byte("top"), 0o644)

	ov := NewOverlay(NewLocal(topDir), NewLocal(bottomDir))
	entries, err := ov.ReadDir(".")
	if err != nil {
		t.Fatal(err)
	}
	names := map[string]bool{}
	for _, e := range entries {
		names[e.Name] = true
	}
	for _, want := range []string{"only-bottom", "only-top", "shared"} {
		if !names[want] {
			t.Fatalf("expected merged entry %q, got %v", want, entries)
		}
	}
}
