package vfsrpc

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/carton-ml/carton/mux"
	"github.com/carton-ml/carton/vfs"
)

// Server serves a single vfs.FS (optionally a vfs.WritableFS) over one
// mux.Stream[Message], enforcing caps and processing requests strictly
// in arrival order (§4.6 "Session": "operations on the same FS stream
// are serialized by the server in arrival order").
type Server struct {
	fs     vfs.FS
	wfs    vfs.WritableFS // non-nil iff caps.Write
	caps   Capabilities
	stream *mux.Stream[Message]

	mu      sync.Mutex
	handles map[uint64]any // vfs.File or vfs.WritableFile
	nextH   atomic.Uint64
}

// Serve starts a server loop over stream for fs under caps. If caps.Write
// is set, fs must also implement vfs.WritableFS (the caller is
// responsible for that invariant; Serve panics otherwise to fail fast on
// a programmer error rather than silently downgrading).
func Serve(stream *mux.Stream[Message], filesystem vfs.FS, caps Capabilities) *Server {
	s := &Server{fs: filesystem, caps: caps, stream: stream, handles: map[uint64]any{}}
	if caps.Write {
		wfs, ok := filesystem.(vfs.WritableFS)
		if !ok {
			panic("vfsrpc: Capabilities.Write set but fs does not implement vfs.WritableFS")
		}
		s.wfs = wfs
	}
	go s.loop()
	return s
}

func (s *Server) loop() {
	for msg := range s.stream.In {
		if msg.Op == nil {
			continue
		}
		result := s.handle(msg.Op)
		if err := s.stream.Send(Message{ReqID: msg.ReqID, Result: result}); err != nil {
			slog.Debug("vfsrpc: server send failed, client likely gone", "error", err)
			return
		}
	}
}

func (s *Server) newHandle(f any) uint64 {
	h := s.nextH.Add(1)
	s.mu.Lock()
	s.handles[h] = f
	s.mu.Unlock()
	return h
}

func (s *Server) file(h uint64) (vfs.File, error) {
	s.mu.Lock()
	f, ok := s.handles[h]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("vfsrpc: unknown file handle %d", h)
	}
	return f.(vfs.File), nil
}

func (s *Server) writableFile(h uint64) (vfs.WritableFile, error) {
	f, err := s.file(h)
	if err != nil {
		return nil, err
	}
	wf, ok := f.(vfs.WritableFile)
	if !ok {
		return nil, ErrUnsupported
	}
	return wf, nil
}

func (s *Server) handle(op *Op) *Result {
	switch {
	// Per-file read
	case op.ReadBytes != nil:
		return s.doReadBytes(op.ReadBytes)
	case op.FileMetadata != nil:
		return s.doFileMetadata(op.FileMetadata)

	// Per-file seek
	case op.Seek != nil:
		if !s.caps.Seek {
			return errResult(ErrUnsupported)
		}
		f, err := s.file(op.Seek.Handle)
		if err != nil {
			return errResult(err)
		}
		pos, err := f.Seek(op.Seek.Offset, op.Seek.Whence)
		if err != nil {
			return errResult(err)
		}
		return &Result{Position: &pos}

	// Per-file write
	case op.WriteData != nil:
		if !s.caps.Write {
			return errResult(ErrUnsupported)
		}
		wf, err := s.writableFile(op.WriteData.Handle)
		if err != nil {
			return errResult(err)
		}
		n, err := wf.Write(op.WriteData.Data)
		if err != nil {
			return errResult(err)
		}
		nn := int64(n)
		return &Result{Position: &nn}
	case op.WriteFlush != nil:
		return s.withWritable(op.WriteFlush.Handle, func(wf vfs.WritableFile) error { return wf.Flush() })
	case op.WriteShutdown != nil:
		return s.withWritable(op.WriteShutdown.Handle, func(wf vfs.WritableFile) error { return wf.Shutdown() })
	case op.FileSyncAll != nil:
		return s.withWritable(op.FileSyncAll.Handle, func(wf vfs.WritableFile) error { return wf.SyncAll() })
	case op.FileSyncData != nil:
		return s.withWritable(op.FileSyncData.Handle, func(wf vfs.WritableFile) error { return wf.SyncData() })
	case op.FileSetLen != nil:
		return s.withWritable(op.FileSetLen.Handle, func(wf vfs.WritableFile) error { return wf.SetLen(op.FileSetLen.Size) })
	case op.FileSetPermissions != nil:
		return s.withWritable(op.FileSetPermissions.Handle, func(wf vfs.WritableFile) error {
			return wf.SetPermissions(op.FileSetPermissions.Mode)
		})
	case op.CloseFile != nil:
		f, err := s.file(op.CloseFile.Handle)
		if err != nil {
			return errResult(err)
		}
		s.mu.Lock()
		delete(s.handles, op.CloseFile.Handle)
		s.mu.Unlock()
		return errResult(f.Close())

	// FS read
	case op.OpenFile != nil:
		if !s.caps.Read {
			return errResult(ErrUnsupported)
		}
		f, err := s.fs.Open(op.OpenFile.Path)
		if err != nil {
			return errResult(err)
		}
		h := s.newHandle(f)
		return &Result{Handle: &h}
	case op.Canonicalize != nil:
		if !s.caps.Read {
			return errResult(ErrUnsupported)
		}
		p, err := s.fs.Canonicalize(op.Canonicalize.Path)
		if err != nil {
			return errResult(err)
		}
		return &Result{String: p}
	case op.Metadata != nil:
		return s.doMetadata(op.Metadata.Path, s.fs.Metadata)
	case op.Read != nil:
		if !s.caps.Read {
			return errResult(ErrUnsupported)
		}
		b, err := s.fs.Read(op.Read.Path)
		if err != nil {
			return errResult(err)
		}
		return &Result{Bytes: b}
	case op.ReadLink != nil:
		if !s.caps.Read {
			return errResult(ErrUnsupported)
		}
		p, err := s.fs.ReadLink(op.ReadLink.Path)
		if err != nil {
			return errResult(err)
		}
		return &Result{String: p}
	case op.ReadToString != nil:
		if !s.caps.Read {
			return errResult(ErrUnsupported)
		}
		str, err := s.fs.ReadToString(op.ReadToString.Path)
		if err != nil {
			return errResult(err)
		}
		return &Result{String: str}
	case op.SymlinkMetadata != nil:
		return s.doMetadata(op.SymlinkMetadata.Path, s.fs.SymlinkMetadata)
	case op.ReadDir != nil:
		if !s.caps.Read {
			return errResult(ErrUnsupported)
		}
		entries, err := s.fs.ReadDir(op.ReadDir.Path)
		if err != nil {
			return errResult(err)
		}
		out := make([]DirEntryWire, len(entries))
		for i, e := range entries {
			out[i] = DirEntryWire{Name: e.Name, IsDir: e.IsDir}
		}
		return &Result{Entries: out}

	// FS write
	case op.CreateFile != nil:
		return s.doOpenWritable(op.CreateFile.Path, func(p string) (vfs.WritableFile, error) { return s.wfs.Create(p) })
	case op.OpenFileWithOpts != nil:
		o := op.OpenFileWithOpts
		return s.doOpenWritable(o.Path, func(p string) (vfs.WritableFile, error) {
			return s.wfs.OpenWithOpts(p, vfs.OpenOptions{
				Read: o.Read, Write: o.Write, Append: o.Append,
				Create: o.Create, Truncate: o.Truncate, CreateNew: o.CreateNew,
			})
		})
	case op.Copy != nil:
		return s.withWrite(func() error { return s.wfs.Copy(op.Copy.Src, op.Copy.Dst) })
	case op.CreateDir != nil:
		return s.withWrite(func() error { return s.wfs.CreateDir(op.CreateDir.Path) })
	case op.CreateDirAll != nil:
		return s.withWrite(func() error { return s.wfs.CreateDirAll(op.CreateDirAll.Path) })
	case op.HardLink != nil:
		return s.withWrite(func() error { return s.wfs.HardLink(op.HardLink.Src, op.HardLink.Dst) })
	case op.RemoveDir != nil:
		return s.withWrite(func() error { return s.wfs.RemoveDir(op.RemoveDir.Path) })
	case op.RemoveDirAll != nil:
		return s.withWrite(func() error { return s.wfs.RemoveDirAll(op.RemoveDirAll.Path) })
	case op.RemoveFile != nil:
		return s.withWrite(func() error { return s.wfs.RemoveFile(op.RemoveFile.Path) })
	case op.Rename != nil:
		return s.withWrite(func() error { return s.wfs.Rename(op.Rename.Src, op.Rename.Dst) })
	case op.SetPermissions != nil:
		return s.withWrite(func() error { return s.wfs.SetPermissions(op.SetPermissions.Path, op.SetPermissions.Mode) })
	case op.Symlink != nil:
		return s.withWrite(func() error { return s.wfs.Symlink(op.Symlink.Src, op.Symlink.Dst) })
	case op.Write != nil:
		return s.withWrite(func() error { return s.wfs.Write(op.Write.Path, op.Write.Data) })

	default:
		return errResult(fmt.Errorf("vfsrpc: empty op"))
	}
}

func (s *Server) doReadBytes(o *OpReadBytes) *Result {
	if !s.caps.Read {
		return errResult(ErrUnsupported)
	}
	f, err := s.file(o.Handle)
	if err != nil {
		return errResult(err)
	}
	buf := make([]byte, o.Max)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return errResult(err)
	}
	return &Result{Bytes: buf[:n]}
}

func (s *Server) doFileMetadata(o *OpFileMetadata) *Result {
	f, err := s.file(o.Handle)
	if err != nil {
		return errResult(err)
	}
	fi, err := f.Metadata()
	if err != nil {
		return errResult(err)
	}
	return &Result{Info: toWireInfo(fi)}
}

func (s *Server) doMetadata(path string, get func(string) (vfs.FileInfo, error)) *Result {
	if !s.caps.Read {
		return errResult(ErrUnsupported)
	}
	fi, err := get(path)
	if err != nil {
		return errResult(err)
	}
	return &Result{Info: toWireInfo(fi)}
}

func (s *Server) doOpenWritable(path string, open func(string) (vfs.WritableFile, error)) *Result {
	if !s.caps.Write {
		return errResult(ErrUnsupported)
	}
	f, err := open(path)
	if err != nil {
		return errResult(err)
	}
	h := s.newHandle(f)
	return &Result{Handle: &h}
}

func (s *Server) withWrite(fn func() error) *Result {
	if !s.caps.Write {
		return errResult(ErrUnsupported)
	}
	return errResult(fn())
}

func (s *Server) withWritable(h uint64, fn func(vfs.WritableFile) error) *Result {
	if !s.caps.Write {
		return errResult(ErrUnsupported)
	}
	wf, err := s.writableFile(h)
	if err != nil {
		return errResult(err)
	}
	return errResult(fn(wf))
}

func toWireInfo(fi vfs.FileInfo) *FileInfoWire {
	return &FileInfoWire{Name: fi.Name, Size: fi.Size, Mode: fi.Mode, ModTime: fi.ModTime.UnixNano(), IsDir: fi.IsDir}
}

func errResult(err error) *Result {
	if err != nil {
		return &Result{Err: toErrWire(err)}
	}
	return &Result{Empty: true}
}
