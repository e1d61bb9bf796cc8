// Package vfsrpc implements FS-over-RPC (§4.6): serving a vfs.FS (or
// vfs.WritableFS) to a peer process over a single multiplexed mux.Stream,
// translating every vfs operation into a request/response pair and
// enforcing a capability envelope of {read, write, seek}.
package vfsrpc

import "io/fs"

// Capabilities declares what a served filesystem permits; a request
// whose group is not enabled fails with ErrUnsupported rather than being
// attempted (§4.6 "Capability enforcement").
type Capabilities struct {
	Read  bool
	Write bool
	Seek  bool
}

// Op carries exactly one request variant (§4.6 "Operation surface").
// Per-file operations key by Handle, a 64-bit id the server minted for
// an earlier OpenFile/CreateFile.
type Op struct {
	// Per-file read
	ReadBytes    *OpReadBytes
	FileMetadata *OpFileMetadata

	// Per-file seek
	Seek *OpSeek

	// Per-file write
	WriteData          *OpWriteData
	WriteFlush         *OpHandle
	WriteShutdown      *OpHandle
	FileSyncAll        *OpHandle
	FileSyncData       *OpHandle
	FileSetLen         *OpFileSetLen
	FileSetPermissions *OpFileSetPermissions
	CloseFile          *OpHandle

	// FS read
	OpenFile        *OpPath
	Canonicalize    *OpPath
	Metadata        *OpPath
	Read            *OpPath
	ReadLink        *OpPath
	ReadToString    *OpPath
	SymlinkMetadata *OpPath
	ReadDir         *OpPath

	// FS write
	CreateFile       *OpPath
	OpenFileWithOpts *OpOpenWithOpts
	Copy             *OpCopy
	CreateDir        *OpPath
	CreateDirAll     *OpPath
	HardLink         *OpCopy
	RemoveDir        *OpPath
	RemoveDirAll     *OpPath
	RemoveFile       *OpPath
	Rename           *OpCopy
	SetPermissions   *OpSetPermissions
	Symlink          *OpCopy
	Write            *OpWrite
}

type OpHandle struct{ Handle uint64 }
type OpFileMetadata struct{ Handle uint64 }
type OpPath struct{ Path string }
type OpReadBytes struct {
	Handle uint64
	Max    int
}
type OpSeek struct {
	Handle uint64
	Offset int64
	Whence int
}
type OpWriteData struct {
	Handle uint64
	Data   []byte
}
type OpFileSetLen struct {
	Handle uint64
	Size   int64
}
type OpFileSetPermissions struct {
	Handle uint64
	Mode   fs.FileMode
}
type OpOpenWithOpts struct {
	Path      string
	Read      bool
	Write     bool
	Append    bool
	Create    bool
	Truncate  bool
	CreateNew bool
}
type OpCopy struct{ Src, Dst string }
type OpSetPermissions struct {
	Path string
	Mode fs.FileMode
}
type OpWrite struct {
	Path string
	Data []byte
}

// FileInfoWire mirrors vfs.FileInfo for wire transport.
type FileInfoWire struct {
	Name    string
	Size    int64
	Mode    fs.FileMode
	ModTime int64 // unix nanos
	IsDir   bool
}

type DirEntryWire struct {
	Name  string
	IsDir bool
}

// Result carries exactly one response variant, or Err if the operation
// failed.
type Result struct {
	Err *ErrWire

	Handle   *uint64
	Bytes    []byte
	String   string
	Info     *FileInfoWire
	Entries  []DirEntryWire
	Position *int64
	Empty    bool
}

// ErrWire is the serialized error kind of §4.6 "Capability enforcement":
// a closed subset of standard IO error kinds (folding anything else into
// Other) plus a textual message.
type ErrWire struct {
	Kind    string // "not_found", "permission_denied", "already_exists", "unsupported", "other"
	Message string
}

const (
	ErrKindNotFound         = "not_found"
	ErrKindPermissionDenied = "permission_denied"
	ErrKindAlreadyExists    = "already_exists"
	ErrKindUnsupported      = "unsupported"
	ErrKindOther            = "other"
)

// Message is the wire envelope carried by the mux frame payload:
// exactly one of Op or Result is set, correlated by ReqID.
type Message struct {
	ReqID  uint64
	Op     *Op
	Result *Result
}
