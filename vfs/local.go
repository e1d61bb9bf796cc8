package vfs

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Local is a thin mapping onto OS filesystem calls, rooted at Dir
// (§4.5 "Implementations").
type Local struct {
	Dir string
}

func NewLocal(dir string) *Local { return &Local{Dir: dir} }

func (l *Local) abs(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(l.Dir, path)
}

func toFileInfo(fi os.FileInfo) FileInfo {
	return FileInfo{
		Name:    fi.Name(),
		Size:    fi.Size(),
		Mode:    fi.Mode(),
		ModTime: fi.ModTime(),
		IsDir:   fi.IsDir(),
	}
}

type localFile struct {
	f    *os.File
	path string
}

func (f *localFile) Read(p []byte) (int, error)   { return f.f.Read(p) }
func (f *localFile) Seek(offset int64, whence int) (int64, error) {
	return f.f.Seek(offset, whence)
}
func (f *localFile) Close() error { return f.f.Close() }
func (f *localFile) Clone() (File, error) {
	nf, err := os.Open(f.path)
	if err != nil {
		return nil, err
	}
	return &localFile{f: nf, path: f.path}, nil
}
func (f *localFile) Metadata() (FileInfo, error) {
	fi, err := f.f.Stat()
	if err != nil {
		return FileInfo{}, err
	}
	return toFileInfo(fi), nil
}
func (f *localFile) Write(p []byte) (int, error) { return f.f.Write(p) }
func (f *localFile) SyncAll() error              { return f.f.Sync() }
func (f *localFile) SyncData() error             { return f.f.Sync() }
func (f *localFile) SetLen(size int64) error     { return f.f.Truncate(size) }
func (f *localFile) SetPermissions(mode fs.FileMode) error {
	return f.f.Chmod(mode)
}
func (f *localFile) Flush() error   { return nil }
func (f *localFile) Shutdown() error { return f.f.Close() }

func (l *Local) Open(path string) (File, error) {
	f, err := os.Open(l.abs(path))
	if err != nil {
		return nil, err
	}
	return &localFile{f: f, path: l.abs(path)}, nil
}

func (l *Local) Metadata(path string) (FileInfo, error) {
	fi, err := os.Stat(l.abs(path))
	if err != nil {
		return FileInfo{}, err
	}
	return toFileInfo(fi), nil
}

func (l *Local) SymlinkMetadata(path string) (FileInfo, error) {
	fi, err := os.Lstat(l.abs(path))
	if err != nil {
		return FileInfo{}, err
	}
	return toFileInfo(fi), nil
}

func (l *Local) Read(path string) ([]byte, error) {
	return os.ReadFile(l.abs(path))
}

func (l *Local) ReadToString(path string) (string, error) {
	b, err := l.Read(path)
	return string(b), err
}

func (l *Local) ReadDir(path string) ([]DirEntry, error) {
	entries, err := os.ReadDir(l.abs(path))
	if err != nil {
		return nil, err
	}
	out := make([]DirEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, DirEntry{Name: e.Name(), IsDir: e.IsDir()})
	}
	return out, nil
}

func (l *Local) ReadLink(path string) (string, error) {
	return os.Readlink(l.abs(path))
}

func (l *Local) Canonicalize(path string) (string, error) {
	return filepath.EvalSymlinks(l.abs(path))
}

func (l *Local) Create(path string) (WritableFile, error) {
	f, err := os.Create(l.abs(path))
	if err != nil {
		return nil, err
	}
	return &localFile{f: f, path: l.abs(path)}, nil
}

func (l *Local) OpenWithOpts(path string, opts OpenOptions) (WritableFile, error) {
	flag := 0
	if opts.Read && opts.Write {
		flag = os.O_RDWR
	} else if opts.Write {
		flag = os.O_WRONLY
	} else {
		flag = os.O_RDONLY
	}
	if opts.Append {
		flag |= os.O_APPEND
	}
	if opts.Create {
		flag |= os.O_CREATE
	}
	if opts.Truncate {
		flag |= os.O_TRUNC
	}
	if opts.CreateNew {
		flag |= os.O_CREATE | os.O_EXCL
	}
	f, err := os.OpenFile(l.abs(path), flag, 0o644)
	if err != nil {
		return nil, err
	}
	return &localFile{f: f, path: l.abs(path)}, nil
}

func (l *Local) Copy(src, dst string) error {
	in, err := os.Open(l.abs(src))
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(l.abs(dst))
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

func (l *Local) CreateDir(path string) error    { return os.Mkdir(l.abs(path), 0o755) }
func (l *Local) CreateDirAll(path string) error { return os.MkdirAll(l.abs(path), 0o755) }
func (l *Local) HardLink(src, dst string) error { return os.Link(l.abs(src), l.abs(dst)) }
func (l *Local) RemoveDir(path string) error     { return os.Remove(l.abs(path)) }
func (l *Local) RemoveDirAll(path string) error  { return os.RemoveAll(l.abs(path)) }
func (l *Local) RemoveFile(path string) error    { return os.Remove(l.abs(path)) }
func (l *Local) Rename(src, dst string) error    { return os.Rename(l.abs(src), l.abs(dst)) }
func (l *Local) SetPermissions(path string, mode fs.FileMode) error {
	return os.Chmod(l.abs(path), mode)
}
func (l *Local) Symlink(src, dst string) error { return os.Symlink(src, l.abs(dst)) }
func (l *Local) Write(path string, data []byte) error {
	return os.WriteFile(l.abs(path), data, 0o644)
}

var (
	_ FS         = (*Local)(nil)
	_ WritableFS = (*Local)(nil)
)
