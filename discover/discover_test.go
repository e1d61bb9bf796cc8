package discover

import (
	"os"
	"path/filepath"
	"testing"
)

func writeRunnerToml(t *testing.T, dir string, body string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "runner.toml"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestScanAndSelectLatestRelease(t *testing.T) {
	root := t.TempDir()
	writeRunnerToml(t, filepath.Join(root, "old"), `
version = 1
[[runners]]
runner_name = "noop"
framework_version = "1.0.0"
runner_compat_version = "1"
runner_interface_version = 1
runner_release_date = "2024-01-01T00:00:00Z"
runner_path = "runner"
platform = "linux-x86_64"
`)
	writeRunnerToml(t, filepath.Join(root, "new"), `
version = 1
[[runners]]
runner_name = "noop"
framework_version = "1.2.0"
runner_compat_version = "1"
runner_interface_version = 1
runner_release_date = "2025-06-01T00:00:00Z"
runner_path = "runner"
platform = "linux-x86_64"
`)

	candidates, err := Scan(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(candidates))
	}

	best, err := Select(candidates, Query{
		RunnerName:            "noop",
		RunnerCompatVersion:   "1",
		FrameworkVersionRange: ">=1.0.0 <2.0.0",
		Platform:              "linux-x86_64",
	})
	if err != nil {
		t.Fatal(err)
	}
	if best.FrameworkVersion != "1.2.0" {
		t.Fatalf("expected latest release (1.2.0), got %s", best.FrameworkVersion)
	}
	if !filepath.IsAbs(best.RunnerPath) {
		t.Fatalf("expected runner_path to be rewritten absolute, got %q", best.RunnerPath)
	}
}

func TestSelectNoMatch(t *testing.T) {
	root := t.TempDir()
	writeRunnerToml(t, root, `
version = 1
[[runners]]
runner_name = "noop"
framework_version = "1.0.0"
runner_compat_version = "1"
runner_interface_version = 1
runner_release_date = "2024-01-01T00:00:00Z"
runner_path = "runner"
platform = "linux-x86_64"
`)
	candidates, err := Scan(root)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Select(candidates, Query{
		RunnerName:            "other",
		RunnerCompatVersion:   "1",
		FrameworkVersionRange: ">=1.0.0",
		Platform:              "linux-x86_64",
	}); err == nil {
		t.Fatal("expected no match error")
	}
}

func TestScanSkipsTmpDirs(t *testing.T) {
	root := t.TempDir()
	writeRunnerToml(t, filepath.Join(root, ".tmp123"), `
version = 1
[[runners]]
runner_name = "noop"
framework_version = "1.0.0"
runner_compat_version = "1"
runner_interface_version = 1
runner_release_date = "2024-01-01T00:00:00Z"
runner_path = "runner"
platform = "linux-x86_64"
`)
	candidates, err := Scan(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(candidates) != 0 {
		t.Fatalf("expected in-progress install to be skipped, got %d candidates", len(candidates))
	}
}
