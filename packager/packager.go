// Package packager implements the runner packager (§4.11): downloading
// and atomically installing packaged runner bundles, and selecting among
// an index of available packages using the same predicate as discover.
package packager

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/carton-ml/carton/discover"
)

// DownloadItem is one file to fetch and place within an installed
// package (§4.11 "Package"). The first item of a DownloadInfo's Items is
// always the runner bundle itself.
type DownloadItem struct {
	URL          string
	SHA256       string
	RelativePath string
}

// DownloadInfo is one installable runner package: its discovery metadata
// plus the files that make it up.
type DownloadInfo struct {
	RunnerName             string
	FrameworkVersion       string
	RunnerCompatVersion    string
	RunnerInterfaceVersion int
	RunnerReleaseDate      string
	Platform               string

	Items []DownloadItem
}

// ID is the sha256 of the concatenation of every item's sha256, used as
// the package's installed directory name (§4.11 "Package").
func (d *DownloadInfo) ID() string {
	h := sha256.New()
	for _, item := range d.Items {
		io.WriteString(h, item.SHA256)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Options configures Install.
type Options struct {
	HTTPClient      *http.Client
	AllowLocalFiles bool // required for file:// sources (§4.11 "Install")
}

// Install fetches every item of info and extracts it under
// {runnerRoot}/{info.ID()}, atomically via a temp-dir-then-rename
// (§4.11 "Install"). If the target already exists, Install is a no-op.
func Install(runnerRoot string, info *DownloadInfo, opts Options) (string, error) {
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	target := filepath.Join(runnerRoot, info.ID())
	if _, err := os.Stat(target); err == nil {
		slog.Debug("packager: already installed", "target", target)
		return target, nil
	}

	tmp, err := os.MkdirTemp(runnerRoot, ".tmp-install-*")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(tmp)

	// Items are fetched concurrently (they are independent downloads) but
	// extracted in order, since the first item is always the runner
	// bundle and gets special-cased below.
	fetched := make([][]byte, len(info.Items))
	var g errgroup.Group
	for i, item := range info.Items {
		i, item := i, item
		g.Go(func() error {
			data, err := fetch(item, opts)
			if err != nil {
				return fmt.Errorf("packager: item %d (%s): %w", i, item.RelativePath, err)
			}
			fetched[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	for i, item := range info.Items {
		data := fetched[i]
		dest := filepath.Join(tmp, filepath.FromSlash(item.RelativePath))
		if i == 0 {
			// The runner bundle itself is a zip with a single executable
			// entry "runner" and a generated runner.toml.
			if err := extractZip(data, dest); err != nil {
				return "", fmt.Errorf("packager: extracting runner bundle: %w", err)
			}
			continue
		}
		if err := extractArchive(data, dest, item.RelativePath); err != nil {
			return "", fmt.Errorf("packager: extracting %s: %w", item.RelativePath, err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, target); err != nil {
		if errors.Is(err, syscall.ENOTEMPTY) {
			slog.Debug("packager: lost install race, treating as success", "target", target)
			return target, nil
		}
		return "", err
	}
	return target, nil
}

func fetch(item DownloadItem, opts Options) ([]byte, error) {
	u, err := url.Parse(item.URL)
	if err != nil {
		return nil, err
	}
	var data []byte
	switch u.Scheme {
	case "file", "":
		if !opts.AllowLocalFiles {
			return nil, fmt.Errorf("local file sources require AllowLocalFiles: %s", item.URL)
		}
		data, err = os.ReadFile(u.Path)
		if err != nil {
			return nil, err
		}
	default:
		resp, err := opts.HTTPClient.Get(item.URL)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status %s fetching %s", resp.Status, item.URL)
		}
		data, err = io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
	}
	sum := sha256.Sum256(data)
	got := hex.EncodeToString(sum[:])
	if item.SHA256 != "" && got != item.SHA256 {
		return nil, fmt.Errorf("sha256 mismatch for %s: got %s, want %s", item.URL, got, item.SHA256)
	}
	return data, nil
}

// archiveKind detects zip/tar/tar.gz by content, falling back to the
// relative path's extension when the magic bytes are ambiguous.
func archiveKind(data []byte, relPath string) string {
	switch {
	case len(data) >= 4 && data[0] == 'P' && data[1] == 'K':
		return "zip"
	case len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b:
		return "tar.gz"
	case strings.HasSuffix(relPath, ".tar"):
		return "tar"
	default:
		return "tar"
	}
}

func extractArchive(data []byte, dest, relPath string) error {
	switch archiveKind(data, relPath) {
	case "zip":
		return extractZip(data, dest)
	case "tar.gz":
		gz, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return err
		}
		defer gz.Close()
		return extractTar(gz, dest)
	default:
		return extractTar(bytes.NewReader(data), dest)
	}
}

func extractZip(data []byte, dest string) error {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return err
	}
	for _, f := range zr.File {
		out := filepath.Join(dest, filepath.FromSlash(f.Name))
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(out, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return err
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		if err := writeFile(out, rc, f.Mode()); err != nil {
			rc.Close()
			return err
		}
		rc.Close()
	}
	return nil
}

func extractTar(r io.Reader, dest string) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		out := filepath.Join(dest, filepath.FromSlash(hdr.Name))
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(out, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
				return err
			}
			if err := writeFile(out, tr, os.FileMode(hdr.Mode)); err != nil {
				return err
			}
		}
	}
}

func writeFile(path string, r io.Reader, mode os.FileMode) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(f, r)
	return err
}

// FetchIndex fetches and decodes §4.11 "Index": a JSON list of
// DownloadInfo records served at indexURL.
func FetchIndex(indexURL string, client *http.Client) ([]DownloadInfo, error) {
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Get(indexURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("packager: index fetch: unexpected status %s", resp.Status)
	}
	var infos []DownloadInfo
	if err := json.NewDecoder(resp.Body).Decode(&infos); err != nil {
		return nil, fmt.Errorf("packager: decoding index: %w", err)
	}
	return infos, nil
}

// SelectFromIndex applies discover's selection predicate to an index of
// DownloadInfo records (§4.11 "Index": "Selection over the index uses
// the same predicate as §4.10").
func SelectFromIndex(infos []DownloadInfo, q discover.Query) (*DownloadInfo, error) {
	candidates := make([]discover.Candidate, 0, len(infos))
	byKey := map[string]*DownloadInfo{}
	for i := range infos {
		info := &infos[i]
		t, err := parseReleaseDate(info.RunnerReleaseDate)
		if err != nil {
			continue
		}
		key := fmt.Sprintf("%d", i)
		candidates = append(candidates, discover.Candidate{
			Record: discover.Record{
				RunnerName:             info.RunnerName,
				FrameworkVersion:       info.FrameworkVersion,
				RunnerCompatVersion:    info.RunnerCompatVersion,
				RunnerInterfaceVersion: info.RunnerInterfaceVersion,
				RunnerReleaseDate:      info.RunnerReleaseDate,
				RunnerPath:             key,
				Platform:               info.Platform,
			},
			ReleaseDate: t,
		})
		byKey[key] = info
	}
	best, err := discover.Select(candidates, q)
	if err != nil {
		return nil, err
	}
	return byKey[best.RunnerPath], nil
}

func parseReleaseDate(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
