package vfsrpc

import (
	"fmt"
	"io"
	"io/fs"
	"sync"
	"sync/atomic"
	"time"

	"github.com/carton-ml/carton/mux"
	"github.com/carton-ml/carton/vfs"
)

// Client is the peer-side handle returned by Connect: it implements
// vfs.FS and vfs.WritableFS by translating every call into an Op/Result
// round trip over stream; calls into a group the server did not grant
// fail with ErrUnsupported from the server
// (§4.6 "lets one peer serve a VFS to the other... the client receives
// a handle that implements the same VFS traits by translating each
// operation into an RPC").
type Client struct {
	stream *mux.Stream[Message]
	caps   Capabilities

	nextReq atomic.Uint64
	mu      sync.Mutex
	pending map[uint64]chan *Result
}

// Connect wraps an already-established stream as a Client advertising
// caps (caps must match what Serve was given on the other end; Connect
// does not itself negotiate capabilities).
func Connect(stream *mux.Stream[Message], caps Capabilities) *Client {
	c := &Client{stream: stream, caps: caps, pending: map[uint64]chan *Result{}}
	go c.loop()
	return c
}

func (c *Client) loop() {
	for msg := range c.stream.In {
		c.mu.Lock()
		ch, ok := c.pending[msg.ReqID]
		if ok {
			delete(c.pending, msg.ReqID)
		}
		c.mu.Unlock()
		if ok {
			ch <- msg.Result
		}
	}
	c.mu.Lock()
	for id, ch := range c.pending {
		delete(c.pending, id)
		close(ch)
	}
	c.mu.Unlock()
}

func (c *Client) call(op *Op) (*Result, error) {
	id := c.nextReq.Add(1)
	ch := make(chan *Result, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()

	if err := c.stream.Send(Message{ReqID: id, Op: op}); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, err
	}
	result, ok := <-ch
	if !ok {
		return nil, fmt.Errorf("vfsrpc: stream closed before response for request %d", id)
	}
	if result.Err != nil {
		return nil, fromErrWire(result.Err)
	}
	return result, nil
}

// remoteFile implements vfs.File (and vfs.WritableFile when the handle
// was opened for writing) by delegating through its owning Client.
type remoteFile struct {
	c      *Client
	handle uint64
	pos    int64
}

func (c *Client) Open(path string) (vfs.File, error) {
	r, err := c.call(&Op{OpenFile: &OpPath{Path: path}})
	if err != nil {
		return nil, err
	}
	return &remoteFile{c: c, handle: *r.Handle}, nil
}

func (c *Client) Metadata(path string) (vfs.FileInfo, error) {
	r, err := c.call(&Op{Metadata: &OpPath{Path: path}})
	if err != nil {
		return vfs.FileInfo{}, err
	}
	return fromWireInfo(r.Info), nil
}

func (c *Client) Read(path string) ([]byte, error) {
	r, err := c.call(&Op{Read: &OpPath{Path: path}})
	if err != nil {
		return nil, err
	}
	return r.Bytes, nil
}

func (c *Client) ReadToString(path string) (string, error) {
	r, err := c.call(&Op{ReadToString: &OpPath{Path: path}})
	if err != nil {
		return "", err
	}
	return r.String, nil
}

func (c *Client) ReadDir(path string) ([]vfs.DirEntry, error) {
	r, err := c.call(&Op{ReadDir: &OpPath{Path: path}})
	if err != nil {
		return nil, err
	}
	out := make([]vfs.DirEntry, len(r.Entries))
	for i, e := range r.Entries {
		out[i] = vfs.DirEntry{Name: e.Name, IsDir: e.IsDir}
	}
	return out, nil
}

func (c *Client) ReadLink(path string) (string, error) {
	r, err := c.call(&Op{ReadLink: &OpPath{Path: path}})
	if err != nil {
		return "", err
	}
	return r.String, nil
}

func (c *Client) SymlinkMetadata(path string) (vfs.FileInfo, error) {
	r, err := c.call(&Op{SymlinkMetadata: &OpPath{Path: path}})
	if err != nil {
		return vfs.FileInfo{}, err
	}
	return fromWireInfo(r.Info), nil
}

func (c *Client) Canonicalize(path string) (string, error) {
	r, err := c.call(&Op{Canonicalize: &OpPath{Path: path}})
	if err != nil {
		return "", err
	}
	return r.String, nil
}

// Writable FS operations; only meaningful when caps.Write was granted.

func (c *Client) Create(path string) (vfs.WritableFile, error) {
	r, err := c.call(&Op{CreateFile: &OpPath{Path: path}})
	if err != nil {
		return nil, err
	}
	return &remoteFile{c: c, handle: *r.Handle}, nil
}

func (c *Client) OpenWithOpts(path string, opts vfs.OpenOptions) (vfs.WritableFile, error) {
	r, err := c.call(&Op{OpenFileWithOpts: &OpOpenWithOpts{
		Path: path, Read: opts.Read, Write: opts.Write, Append: opts.Append,
		Create: opts.Create, Truncate: opts.Truncate, CreateNew: opts.CreateNew,
	}})
	if err != nil {
		return nil, err
	}
	return &remoteFile{c: c, handle: *r.Handle}, nil
}

func (c *Client) Copy(src, dst string) error {
	_, err := c.call(&Op{Copy: &OpCopy{Src: src, Dst: dst}})
	return err
}
func (c *Client) CreateDir(path string) error {
	_, err := c.call(&Op{CreateDir: &OpPath{Path: path}})
	return err
}
func (c *Client) CreateDirAll(path string) error {
	_, err := c.call(&Op{CreateDirAll: &OpPath{Path: path}})
	return err
}
func (c *Client) HardLink(src, dst string) error {
	_, err := c.call(&Op{HardLink: &OpCopy{Src: src, Dst: dst}})
	return err
}
func (c *Client) RemoveDir(path string) error {
	_, err := c.call(&Op{RemoveDir: &OpPath{Path: path}})
	return err
}
func (c *Client) RemoveDirAll(path string) error {
	_, err := c.call(&Op{RemoveDirAll: &OpPath{Path: path}})
	return err
}
func (c *Client) RemoveFile(path string) error {
	_, err := c.call(&Op{RemoveFile: &OpPath{Path: path}})
	return err
}
func (c *Client) Rename(src, dst string) error {
	_, err := c.call(&Op{Rename: &OpCopy{Src: src, Dst: dst}})
	return err
}
func (c *Client) SetPermissions(path string, mode fs.FileMode) error {
	_, err := c.call(&Op{SetPermissions: &OpSetPermissions{Path: path, Mode: mode}})
	return err
}
func (c *Client) Symlink(src, dst string) error {
	_, err := c.call(&Op{Symlink: &OpCopy{Src: src, Dst: dst}})
	return err
}
func (c *Client) Write(path string, data []byte) error {
	_, err := c.call(&Op{Write: &OpWrite{Path: path, Data: data}})
	return err
}

// remoteFile

func (f *remoteFile) Read(p []byte) (int, error) {
	r, err := f.c.call(&Op{ReadBytes: &OpReadBytes{Handle: f.handle, Max: len(p)}})
	if err != nil {
		return 0, err
	}
	n := copy(p, r.Bytes)
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (f *remoteFile) Seek(offset int64, whence int) (int64, error) {
	r, err := f.c.call(&Op{Seek: &OpSeek{Handle: f.handle, Offset: offset, Whence: whence}})
	if err != nil {
		return 0, err
	}
	return *r.Position, nil
}

func (f *remoteFile) Close() error {
	_, err := f.c.call(&Op{CloseFile: &OpHandle{Handle: f.handle}})
	return err
}

func (f *remoteFile) Clone() (vfs.File, error) {
	return nil, fmt.Errorf("vfsrpc: file_try_clone is not implemented by the client handle")
}

func (f *remoteFile) Metadata() (vfs.FileInfo, error) {
	r, err := f.c.call(&Op{FileMetadata: &OpFileMetadata{Handle: f.handle}})
	if err != nil {
		return vfs.FileInfo{}, err
	}
	return fromWireInfo(r.Info), nil
}

func (f *remoteFile) Write(p []byte) (int, error) {
	r, err := f.c.call(&Op{WriteData: &OpWriteData{Handle: f.handle, Data: p}})
	if err != nil {
		return 0, err
	}
	return int(*r.Position), nil
}

func (f *remoteFile) SyncAll() error {
	_, err := f.c.call(&Op{FileSyncAll: &OpHandle{Handle: f.handle}})
	return err
}
func (f *remoteFile) SyncData() error {
	_, err := f.c.call(&Op{FileSyncData: &OpHandle{Handle: f.handle}})
	return err
}
func (f *remoteFile) SetLen(size int64) error {
	_, err := f.c.call(&Op{FileSetLen: &OpFileSetLen{Handle: f.handle, Size: size}})
	return err
}
func (f *remoteFile) SetPermissions(mode fs.FileMode) error {
	_, err := f.c.call(&Op{FileSetPermissions: &OpFileSetPermissions{Handle: f.handle, Mode: mode}})
	return err
}
func (f *remoteFile) Flush() error {
	_, err := f.c.call(&Op{WriteFlush: &OpHandle{Handle: f.handle}})
	return err
}
func (f *remoteFile) Shutdown() error {
	_, err := f.c.call(&Op{WriteShutdown: &OpHandle{Handle: f.handle}})
	return err
}

func fromWireInfo(w *FileInfoWire) vfs.FileInfo {
	if w == nil {
		return vfs.FileInfo{}
	}
	return vfs.FileInfo{Name: w.Name, Size: w.Size, Mode: w.Mode, ModTime: time.Unix(0, w.ModTime), IsDir: w.IsDir}
}

var _ vfs.FS = (*Client)(nil)
var _ vfs.WritableFS = (*Client)(nil)
