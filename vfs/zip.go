package vfs

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"
)

// Zip is a random-access read-only FS over an underlying byte source
// (§4.5 "Implementations"): open returns a reader over the entry's
// decompressed stream, read_dir enumerates entries under a prefix.
type Zip struct {
	r      *zip.Reader
	prefix string // path prefix this view is rooted at, e.g. "" for the whole archive
	byName map[string]*zip.File
}

// NewZip opens a zip archive for random access over ra, which must know
// its own total size.
func NewZip(ra io.ReaderAt, size int64) (*Zip, error) {
	r, err := zip.NewReader(ra, size)
	if err != nil {
		return nil, fmt.Errorf("vfs: open zip: %w", err)
	}
	byName := make(map[string]*zip.File, len(r.File))
	for _, f := range r.File {
		byName[strings.TrimSuffix(f.Name, "/")] = f
	}
	return &Zip{r: r, byName: byName}, nil
}

func (z *Zip) rooted(p string) string {
	return path.Join(z.prefix, strings.TrimPrefix(path.Clean("/"+p), "/"))
}

func (z *Zip) find(p string) (*zip.File, bool) {
	f, ok := z.byName[z.rooted(p)]
	return f, ok
}

type zipFile struct {
	f  *zip.File
	rc io.ReadCloser
	// pos tracks logical offset for Seek, since zip's ReadCloser from
	// Open() does not support seeking on compressed entries.
	pos int64
}

func (z *Zip) Open(p string) (File, error) {
	f, ok := z.find(p)
	if !ok {
		return nil, fs.ErrNotExist
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	return &zipFile{f: f, rc: rc}, nil
}

func (zf *zipFile) Read(p []byte) (int, error) {
	n, err := zf.rc.Read(p)
	zf.pos += int64(n)
	return n, err
}

// Seek only supports SeekStart(0) by reopening the entry; compressed zip
// streams cannot be seeked arbitrarily. This is adequate for the loader's
// access patterns (read a whole file, or restart it).
func (zf *zipFile) Seek(offset int64, whence int) (int64, error) {
	if offset != 0 || whence != io.SeekStart {
		return 0, fmt.Errorf("vfs: zip entries only support seeking to the start")
	}
	zf.rc.Close()
	rc, err := zf.f.Open()
	if err != nil {
		return 0, err
	}
	zf.rc = rc
	zf.pos = 0
	return 0, nil
}

func (zf *zipFile) Close() error { return zf.rc.Close() }

func (zf *zipFile) Clone() (File, error) {
	rc, err := zf.f.Open()
	if err != nil {
		return nil, err
	}
	return &zipFile{f: zf.f, rc: rc}, nil
}

func (zf *zipFile) Metadata() (FileInfo, error) {
	return FileInfo{
		Name:    path.Base(zf.f.Name),
		Size:    int64(zf.f.UncompressedSize64),
		Mode:    zf.f.Mode(),
		ModTime: zf.f.Modified,
		IsDir:   zf.f.Mode().IsDir(),
	}, nil
}

func (z *Zip) Metadata(p string) (FileInfo, error) {
	f, ok := z.find(p)
	if !ok {
		return FileInfo{}, fs.ErrNotExist
	}
	return FileInfo{
		Name:    path.Base(f.Name),
		Size:    int64(f.UncompressedSize64),
		Mode:    f.Mode(),
		ModTime: f.Modified,
		IsDir:   f.Mode().IsDir(),
	}, nil
}

func (z *Zip) SymlinkMetadata(p string) (FileInfo, error) { return z.Metadata(p) }

func (z *Zip) Read(p string) ([]byte, error) {
	f, err := z.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (z *Zip) ReadToString(p string) (string, error) {
	b, err := z.Read(p)
	return string(b), err
}

func (z *Zip) ReadDir(p string) ([]DirEntry, error) {
	root := z.rooted(p)
	prefix := root + "/"
	if root == "" {
		prefix = ""
	}
	seen := map[string]bool{}
	var out []DirEntry
	for _, f := range z.r.File {
		name := strings.TrimSuffix(f.Name, "/")
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		rel := strings.TrimPrefix(name, prefix)
		isDir := strings.HasSuffix(f.Name, "/")
		if i := strings.IndexByte(rel, '/'); i >= 0 {
			rel = rel[:i]
			isDir = true
		}
		if rel == "" || seen[rel] {
			continue
		}
		seen[rel] = true
		out = append(out, DirEntry{Name: rel, IsDir: isDir})
	}
	return out, nil
}

// ReadLink is unsupported: zip archives in Carton's package format don't
// encode symlinks as link entries (model directories are added verbatim
// but flattened by following symlinks at pack time, per §4.7 step 5).
func (z *Zip) ReadLink(p string) (string, error) {
	return "", fmt.Errorf("vfs: zip: read_link unsupported")
}

func (z *Zip) Canonicalize(p string) (string, error) {
	if _, ok := z.find(p); !ok {
		return "", fs.ErrNotExist
	}
	return z.rooted(p), nil
}

var _ FS = (*Zip)(nil)
