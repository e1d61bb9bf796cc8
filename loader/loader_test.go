package loader

import (
	"archive/zip"
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/carton-ml/carton/pack"
)

func TestOpenLocalDir(t *testing.T) {
	dir := t.TempDir()
	modelDir := filepath.Join(dir, "model")
	if err := os.MkdirAll(modelDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(modelDir, "blob.bin"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	_, err := pack.Save(&buf, &pack.SaveInput{
		ModelName: "m",
		ModelDir:  modelDir,
		Runner:    pack.RunnerInfo{Name: "noop"},
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Write the packed bytes back out as an unpacked directory by
	// extracting them, exercising the KindLocalDir path of Locate/Open.
	extractDir := t.TempDir()
	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatal(err)
		}
		dest := filepath.Join(extractDir, f.Name)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(dest, data, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	resolved, err := Open(extractDir, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if resolved.Result.Info.ModelName != "m" {
		t.Fatalf("unexpected model name: %s", resolved.Result.Info.ModelName)
	}
	if len(resolved.Result.ManifestSHA256) != 64 {
		t.Fatalf("unexpected manifest sha256 length: %d", len(resolved.Result.ManifestSHA256))
	}
}

// Scenario B: pack, shrink with a link for the blob, load through Open
// against the shrunken archive while serving the blob over HTTP.
func TestOpenResolvesShrunkLinks(t *testing.T) {
	dir := t.TempDir()
	modelDir := filepath.Join(dir, "model")
	if err := os.MkdirAll(modelDir, 0o755); err != nil {
		t.Fatal(err)
	}
	blob := []byte("the quick brown fox")
	if err := os.WriteFile(filepath.Join(modelDir, "blob.bin"), blob, 0o644); err != nil {
		t.Fatal(err)
	}

	var packed bytes.Buffer
	_, err := pack.Save(&packed, &pack.SaveInput{
		ModelName: "m",
		ModelDir:  modelDir,
		Runner:    pack.RunnerInfo{Name: "noop"},
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "blob", time.Time{}, bytes.NewReader(blob))
	}))
	defer srv.Close()

	sha := pack.SHA256Hex(blob)

	zr, err := zip.NewReader(bytes.NewReader(packed.Bytes()), int64(packed.Len()))
	if err != nil {
		t.Fatal(err)
	}
	var shrunk bytes.Buffer
	if err := pack.Shrink(&shrunk, zr, map[string][]string{sha: {srv.URL + "/blob"}}); err != nil {
		t.Fatalf("Shrink: %v", err)
	}

	archivePath := filepath.Join(dir, "m.carton")
	if err := os.WriteFile(archivePath, shrunk.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	resolved, err := Open(archivePath, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, err := resolved.FS.Read("model/blob.bin")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, blob) {
		t.Fatalf("got %q, want %q", got, blob)
	}
}

func TestOverridesApply(t *testing.T) {
	info := pack.RunnerInfo{Name: "orig", RequiredFrameworkVersion: "1.0.0", Opts: map[string]any{"a": 1}}
	o := Overrides{RunnerName: "custom", ExtraRunnerOpts: map[string]any{"b": 2}}
	out := o.Apply(info)
	if out.Name != "custom" {
		t.Fatalf("got name %q", out.Name)
	}
	if out.Opts["a"] != 1 || out.Opts["b"] != 2 {
		t.Fatalf("unexpected merged opts: %+v", out.Opts)
	}
}
