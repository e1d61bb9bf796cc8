// Package loader implements the loader pipeline of §4.8: turning a model
// reference (a local path, a file:// URL, or an http(s) URL) into a
// resolved, read-only VFS and a decoded CartonInfo, then optionally
// selecting and launching a runner and performing the load RPC.
package loader

import (
	"fmt"
	"net/http"
	"net/url"
	"os"

	"github.com/carton-ml/carton/pack"
	"github.com/carton-ml/carton/vfs"
)

// Kind classifies a model reference (§4.8 stage 1 "Locate").
type Kind int

const (
	KindLocalDir Kind = iota
	KindLocalFile
	KindFileURL
	KindHTTP
)

// Locate classifies ref, failing fast on anything else (§4.8: "anything
// else fails fast").
func Locate(ref string) (Kind, string, error) {
	if u, err := url.Parse(ref); err == nil && u.Scheme != "" {
		switch u.Scheme {
		case "file":
			return KindFileURL, u.Path, nil
		case "http", "https":
			return KindHTTP, ref, nil
		default:
			return 0, "", fmt.Errorf("loader: unsupported scheme %q in %q", u.Scheme, ref)
		}
	}
	info, err := os.Stat(ref)
	if err != nil {
		return 0, "", fmt.Errorf("loader: locating %q: %w", ref, err)
	}
	if info.IsDir() {
		return KindLocalDir, ref, nil
	}
	return KindLocalFile, ref, nil
}

// Resolved is the output of stages 2-4: a read-only VFS rooted at the
// carton's contents plus its decoded info.
type Resolved struct {
	FS     vfs.FS
	Result *pack.LoadResult
}

// Options configures Fetch/Resolve's network behavior.
type Options struct {
	HTTPClient *http.Client
}

// Open runs stages 1 through 4 of §4.8 on ref: locate, fetch a VFS, parse
// MANIFEST + LINKS, and run pack.Load over the resolved overlay.
func Open(ref string, opts Options) (*Resolved, error) {
	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	kind, normalized, err := Locate(ref)
	if err != nil {
		return nil, err
	}

	if kind == KindLocalDir {
		fs := vfs.NewLocal(normalized)
		result, err := pack.Load(fs)
		if err != nil {
			return nil, err
		}
		return &Resolved{FS: fs, Result: result}, nil
	}

	archiveFS, err := fetchArchive(kind, normalized, client)
	if err != nil {
		return nil, err
	}

	resolvedFS, err := resolveLinks(archiveFS, client)
	if err != nil {
		return nil, err
	}

	result, err := pack.Load(resolvedFS)
	if err != nil {
		return nil, err
	}
	return &Resolved{FS: resolvedFS, Result: result}, nil
}

// fetchArchive builds the byte source (local file or ranged HTTP reads)
// and wraps it in a zip VFS (§4.8 stage 2 "Fetch").
func fetchArchive(kind Kind, normalized string, client *http.Client) (vfs.FS, error) {
	switch kind {
	case KindLocalFile, KindFileURL:
		f, err := os.Open(normalized)
		if err != nil {
			return nil, fmt.Errorf("loader: opening %q: %w", normalized, err)
		}
		info, err := f.Stat()
		if err != nil {
			return nil, err
		}
		return vfs.NewZip(f, info.Size())
	case KindHTTP:
		ra, size, err := newHTTPReaderAt(normalized, client)
		if err != nil {
			return nil, err
		}
		return vfs.NewZip(ra, size)
	default:
		return nil, fmt.Errorf("loader: cannot fetch an archive for local directory reference")
	}
}

// resolveLinks requires MANIFEST to exist and, if LINKS is present,
// overlays an HTTP VFS over the archive that resolves each manifest path
// whose sha256 has a LINKS entry to its first registered URL (§4.8 stage
// 3 "Resolve").
func resolveLinks(archive vfs.FS, client *http.Client) (vfs.FS, error) {
	manifestBytes, err := archive.Read("MANIFEST")
	if err != nil {
		return nil, fmt.Errorf("loader: not a valid carton: missing MANIFEST: %w", err)
	}
	manifest, err := pack.ParseManifest(manifestBytes)
	if err != nil {
		return nil, err
	}

	linksBytes, err := archive.Read("LINKS")
	if err != nil {
		return archive, nil // no LINKS: archive alone is authoritative
	}
	links, err := pack.ParseLinks(linksBytes)
	if err != nil {
		return nil, err
	}

	pathToURL := map[string]string{}
	for filePath, sha := range manifest.Entries {
		urls, ok := links.URLs[sha]
		if !ok || len(urls) == 0 {
			continue
		}
		pathToURL[filePath] = urls[0]
	}
	if len(pathToURL) == 0 {
		return archive, nil
	}

	remote := vfs.NewHTTP(client)
	remote.URLFor = vfs.LinksURLFor(pathToURL)
	return vfs.NewOverlay(remote, archive), nil
}

// Overrides are the optional §4.8 stage 5 "Merge load overrides".
type Overrides struct {
	RunnerName               string
	RequiredFrameworkVersion string // validated as a semver range by the caller before use
	ExtraRunnerOpts          map[string]any
	ReplaceRunnerOpts        bool
}

// Apply merges o into info's runner block, mutating a copy.
func (o Overrides) Apply(info pack.RunnerInfo) pack.RunnerInfo {
	out := info
	if o.RunnerName != "" {
		out.Name = o.RunnerName
	}
	if o.RequiredFrameworkVersion != "" {
		out.RequiredFrameworkVersion = o.RequiredFrameworkVersion
	}
	if len(o.ExtraRunnerOpts) > 0 {
		merged := map[string]any{}
		if !o.ReplaceRunnerOpts {
			for k, v := range out.Opts {
				merged[k] = v
			}
		}
		for k, v := range o.ExtraRunnerOpts {
			merged[k] = v
		}
		out.Opts = merged
	}
	return out
}
