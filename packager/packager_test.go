package packager

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func zipBundle(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		fw, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write([]byte(content))
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func TestInstallIsAtomicAndIdempotent(t *testing.T) {
	bundle := zipBundle(t, map[string]string{"runner": "#!/bin/sh\necho hi\n", "runner.toml": "version = 1\n"})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bundle)
	}))
	defer srv.Close()

	info := &DownloadInfo{
		RunnerName: "noop",
		Items: []DownloadItem{
			{URL: srv.URL, SHA256: sha256Hex(bundle), RelativePath: "."},
		},
	}

	root := t.TempDir()
	target, err := Install(root, info, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(target, "runner")); err != nil {
		t.Fatalf("expected extracted runner executable: %v", err)
	}

	// Installing again with the same id is a no-op, not an error.
	target2, err := Install(root, info, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if target2 != target {
		t.Fatalf("expected same target on reinstall, got %q vs %q", target2, target)
	}
}

func TestInstallRejectsSHAMismatch(t *testing.T) {
	bundle := zipBundle(t, map[string]string{"runner": "x"})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bundle)
	}))
	defer srv.Close()

	info := &DownloadInfo{
		Items: []DownloadItem{{URL: srv.URL, SHA256: "deadbeef", RelativePath: "."}},
	}
	if _, err := Install(t.TempDir(), info, Options{}); err == nil {
		t.Fatal("expected sha256 mismatch error")
	}
}
