package tensor

import (
	"fmt"
	"sync"
)

// Region is a shared-memory mapping that may be referenced by more than
// one Tensor and may be transferred to a peer process by its file
// descriptor (§3 "SHM region").
type Region struct {
	fd   uintptr
	addr uintptr
	data []byte // mmap'd view

	mu       sync.Mutex
	refs     int
	poolSize int  // 0 if not pool-backed
	imported bool // true for a region created by ImportRegion: unmapped on last release rather than pooled
}

// newMappedRegion is implemented per-platform (shm_linux.go, shm_other.go):
// it creates an anonymous (or named-and-unlinked) shared memory object of
// the given size and mmaps it read/write.
var newMappedRegion func(size int) (*Region, error)

// SHMStorage is a numeric Tensor's view into a Region: a byte offset plus
// the length this view covers.
type SHMStorage struct {
	Region *Region
	Offset int64
	Len    int64
}

func (s *SHMStorage) Bytes() []byte {
	return s.Region.data[s.Offset : s.Offset+s.Len]
}

func (s *SHMStorage) Release() {
	if s == nil || s.Region == nil {
		return
	}
	r := s.Region
	s.Region = nil
	r.release()
}

// AllocSHMTensor allocates a pool-backed numeric Tensor backed by a whole
// SHM region sized to the tensor (§4.1 "SHM variant").
func AllocSHMTensor(dt DType, shape Shape) (*Tensor, error) {
	if !dt.IsNumeric() {
		return nil, &Error{Op: "alloc_shm", Msg: "dtype " + dt.String() + " is not numeric"}
	}
	size := int(shape.NumElements()) * dt.ElemSize()
	region, err := shmPool.get(size)
	if err != nil {
		return nil, fmt.Errorf("tensor: alloc_shm: %w", err)
	}
	shmRegistry.register(region)
	return &Tensor{
		DType: dt,
		Shape: shape.Clone(),
		Storage: &SHMStorage{
			Region: region,
			Offset: 0,
			Len:    int64(size),
		},
	}, nil
}

func (r *Region) retain() {
	r.mu.Lock()
	r.refs++
	r.mu.Unlock()
}

// release drops one reference; when the last reference drops, the region
// is returned to shmPool, which keeps it mapped for reuse and never
// evicts it (per §4.1's pool policy applied to whole regions); an
// imported region is unmapped instead.
func (r *Region) release() {
	r.mu.Lock()
	r.refs--
	done := r.refs <= 0
	r.mu.Unlock()
	if !done {
		return
	}
	shmRegistry.unregister(r)
	if r.imported {
		unmapImported(r)
		return
	}
	shmPool.put(r)
}

// Addr returns the [start, end) byte address range of the region's
// mapping, used as the registry key.
func (r *Region) Addr() (uintptr, uintptr) {
	return r.addr, r.addr + uintptr(len(r.data))
}

// FD returns the region's backing file descriptor, for passing to a peer
// process over comms (§4.2).
func (r *Region) FD() uintptr { return r.fd }

// Data returns the full mapped byte slice.
func (r *Region) Data() []byte { return r.data }
