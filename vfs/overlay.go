package vfs

import "path"

// Overlay pairs a (bottom, top) readable filesystem: reads try top first
// and fall through to bottom on *any* error, not only not-found, and
// read_dir merges entries with top overriding bottom by path (§4.5
// "Implementations"). §9 calls this choice out explicitly as intentional
// and required to be preserved — in the loader the top is the LINKS-backed
// HTTP filesystem, which reports a path with no registered link as a plain
// error rather than fs.ErrNotExist, so a not-found-only fallthrough would
// never reach the archive underneath.
type Overlay struct {
	Top, Bottom FS
}

func NewOverlay(top, bottom FS) *Overlay {
	return &Overlay{Top: top, Bottom: bottom}
}

func (o *Overlay) Open(path string) (File, error) {
	if f, err := o.Top.Open(path); err == nil {
		return f, nil
	}
	return o.Bottom.Open(path)
}

func (o *Overlay) Metadata(path string) (FileInfo, error) {
	if fi, err := o.Top.Metadata(path); err == nil {
		return fi, nil
	}
	return o.Bottom.Metadata(path)
}

func (o *Overlay) Read(path string) ([]byte, error) {
	if b, err := o.Top.Read(path); err == nil {
		return b, nil
	}
	return o.Bottom.Read(path)
}

func (o *Overlay) ReadToString(path string) (string, error) {
	if s, err := o.Top.ReadToString(path); err == nil {
		return s, nil
	}
	return o.Bottom.ReadToString(path)
}

func (o *Overlay) ReadLink(path string) (string, error) {
	if s, err := o.Top.ReadLink(path); err == nil {
		return s, nil
	}
	return o.Bottom.ReadLink(path)
}

func (o *Overlay) SymlinkMetadata(path string) (FileInfo, error) {
	if fi, err := o.Top.SymlinkMetadata(path); err == nil {
		return fi, nil
	}
	return o.Bottom.SymlinkMetadata(path)
}

// Canonicalize uses whichever side has the file, preferring top; if
// neither resolves it, the path is returned normalized rather than erroring
// (§4.5: "else return path-normalized").
func (o *Overlay) Canonicalize(name string) (string, error) {
	if p, err := o.Top.Canonicalize(name); err == nil {
		return p, nil
	}
	if p, err := o.Bottom.Canonicalize(name); err == nil {
		return p, nil
	}
	return path.Clean(name), nil
}

// ReadDir merges entries from both sides; top overrides bottom by name.
func (o *Overlay) ReadDir(path string) ([]DirEntry, error) {
	topEntries, topErr := o.Top.ReadDir(path)
	bottomEntries, bottomErr := o.Bottom.ReadDir(path)
	if topErr != nil && bottomErr != nil {
		return nil, topErr
	}
	seen := map[string]bool{}
	var out []DirEntry
	for _, e := range topEntries {
		seen[e.Name] = true
		out = append(out, e)
	}
	for _, e := range bottomEntries {
		if !seen[e.Name] {
			out = append(out, e)
		}
	}
	return out, nil
}

var _ FS = (*Overlay)(nil)
